package scope

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlscope/internal/metrics"
	"github.com/JakeFAU/crawlscope/internal/storage"
)

// ErrNoPrefixSource is returned when a dump is requested from a scope that
// has no SURT prefix rules.
var ErrNoPrefixSource = errors.New("scope has no surt prefix rules")

// SurtPrefixCount returns the number of prefixes across every SURT rule.
func (s *Scope) SurtPrefixCount() int {
	n := 0
	for _, r := range s.surts {
		n += len(r.Prefixes())
	}
	return n
}

func (s *Scope) publishPrefixCount() {
	metrics.SetSurtPrefixes(s.SurtPrefixCount())
}

// ExportSurts writes every SURT rule's prefixes to w, one section per
// rule headed by a "# name" comment line that ImportFrom skips.
func (s *Scope) ExportSurts(w io.Writer) error {
	if len(s.surts) == 0 {
		return ErrNoPrefixSource
	}
	for i, r := range s.surts {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return fmt.Errorf("export surts: %w", err)
			}
		}
		if _, err := fmt.Fprintf(w, "# %s\n", r.Name()); err != nil {
			return fmt.Errorf("export surts: %w", err)
		}
		if err := r.ExportTo(w); err != nil {
			return fmt.Errorf("export surts %s: %w", r.Name(), err)
		}
	}
	return nil
}

// DumpSurts exports the SURT prefixes to the blob store under the
// configured dump path and returns the stored object's URI. Without a
// configured path a timestamped name under "surts/" is used.
func (s *Scope) DumpSurts(ctx context.Context) (string, error) {
	blobs := s.blobs
	if blobs == nil {
		blobs = storage.NoOpStore{}
	}
	var buf bytes.Buffer
	if err := s.ExportSurts(&buf); err != nil {
		return "", err
	}
	name := s.cfg.DumpPath
	if name == "" {
		name = path.Join("surts", s.now().UTC().Format("20060102T150405Z")+".txt")
	}
	started := time.Now()
	uri, err := blobs.PutObject(ctx, name, storage.ContentTypeSurts, &buf)
	if err != nil {
		return "", fmt.Errorf("dump surts: %w", err)
	}
	s.logger.Info("surt prefixes dumped",
		zap.String("uri", uri),
		zap.Int("prefixes", s.SurtPrefixCount()),
		zap.Duration("elapsed", time.Since(started)),
	)
	return uri, nil
}
