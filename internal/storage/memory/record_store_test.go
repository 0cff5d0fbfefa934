package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
)

func TestRecordStore(t *testing.T) {
	t.Parallel()

	store := NewRecordStore()
	require.NoError(t, store.Append(context.Background(), harvest.PaperRecord{Title: "A"}))
	require.NoError(t, store.Append(context.Background(), harvest.PaperRecord{Title: "B"}))

	got := store.Records()
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Title)

	store.FailWith = errors.New("disk full")
	assert.EqualError(t, store.Append(context.Background(), harvest.PaperRecord{}), "disk full")

	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Append(context.Background(), harvest.PaperRecord{}), ErrStoreClosed)
}
