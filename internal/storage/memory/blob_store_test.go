package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStoreKeepsCopies(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("http://(com,example,)\n")
	uri, err := store.PutObject(context.Background(), "run/surts.txt", "text/plain", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://run/surts.txt", uri)

	payload[0] = 'H'
	got, ok := store.Get("run/surts.txt")
	require.True(t, ok)
	require.Equal(t, "http://(com,example,)\n", string(got))

	got[0] = 'X'
	again, _ := store.Get("run/surts.txt")
	require.Equal(t, byte('h'), again[0])

	_, ok = store.Get("missing")
	require.False(t, ok)
	require.Equal(t, []string{"run/surts.txt"}, store.Paths())
}
