package store_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voxlogica-go/voxlogica/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGet_ReadYourWrites(t *testing.T) {
	s := openTestStore(t)

	has, err := s.Has("n1")
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, s.Put("n1", float64(42), nil))

	has, err = s.Has("n1")
	require.NoError(t, err)
	require.True(t, has)

	rec, ok, err := s.Get("n1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float64(42), rec.PayloadJSON["value"])
}

func TestPut_IdempotentOnEqualContent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put("n1", "hello", nil))
	require.NoError(t, s.Put("n1", "hello", nil))
}

func TestPut_ConflictingContentRejected(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put("n1", "hello", nil))
	err := s.Put("n1", "goodbye", nil)
	require.Error(t, err)
	var conflict *store.ConflictingContentError
	require.ErrorAs(t, err, &conflict)
}

func TestFlush_DrainsWriterAndPersists(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put("n1", float64(1), nil))
	require.True(t, s.Flush(5*time.Second))

	rec, ok, err := s.Get("n1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, true, rec.Metadata["persisted"])
}

func TestGet_MissingReturnsFalse(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	require.False(t, ok)
}
