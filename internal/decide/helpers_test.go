package decide

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlscope/internal/curi"
	"github.com/JakeFAU/crawlscope/internal/settings"
)

var model = curi.NewModel(curi.ModelOptions{})

// cand parses "uri [hops [via]]".
func cand(t *testing.T, text string) *curi.Candidate {
	t.Helper()
	c, err := curi.ParseCandidate(text)
	require.NoError(t, err)
	return c
}

func fetchedURI(t *testing.T, text string) *curi.CrawlURI {
	t.Helper()
	return model.ToCrawlURI(cand(t, text), 1)
}

func params(rule string, kv map[string]any, overrides ...settings.Override) *settings.Params {
	return settings.NewParams(rule, kv, settings.NewResolver(overrides), nil)
}
