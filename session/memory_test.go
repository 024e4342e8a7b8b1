package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferryerrors "github.com/fileferry/ferry/errors"
)

func memGrant(id, requestID string, issuedAt time.Time) Grant {
	return Grant{
		ID:          id,
		RequestID:   requestID,
		RequesterID: "analyst-7",
		IssuedAt:    issuedAt,
		ExpiresAt:   issuedAt.Add(10 * time.Second),
	}
}

func TestMemoryStoreSweepCollectsExpiredEntries(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(ctx, memGrant("g1", "REQ-1", now)))

	// Within retention the grant is collectable but the marker is not, so
	// the request ID stays blocked.
	grants, markers := store.Sweep(now.Add(time.Minute))
	assert.Equal(t, 1, grants)
	assert.Equal(t, 0, markers)

	_, err := store.Get(ctx, "g1")
	assert.ErrorIs(t, err, ferryerrors.ErrGrantNotFound)

	used, err := store.Used(ctx, "REQ-1")
	require.NoError(t, err)
	assert.True(t, used)

	// Past retention the marker goes too.
	grants, markers = store.Sweep(now.Add(markerRetention).Add(time.Second))
	assert.Equal(t, 0, grants)
	assert.Equal(t, 1, markers)

	used, err = store.Used(ctx, "REQ-1")
	require.NoError(t, err)
	assert.False(t, used)
}

func TestMemoryStorePutCollectsLazily(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(ctx, memGrant("g1", "REQ-1", now)))

	// The next Put after the marker retention window sweeps for free, and
	// the lapsed request ID becomes claimable again.
	later := now.Add(markerRetention).Add(time.Minute)
	require.NoError(t, store.Put(ctx, memGrant("g2", "REQ-2", later)))

	_, err := store.Get(ctx, "g1")
	assert.ErrorIs(t, err, ferryerrors.ErrGrantNotFound)

	require.NoError(t, store.Put(ctx, memGrant("g3", "REQ-1", later)))
}

func TestMemoryStoreMarkerSurvivesDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(ctx, memGrant("g1", "REQ-1", now)))
	require.NoError(t, store.Delete(ctx, "g1"))

	used, err := store.Used(ctx, "REQ-1")
	require.NoError(t, err)
	assert.True(t, used)
	assert.ErrorIs(t, store.Put(ctx, memGrant("g2", "REQ-1", now)), ferryerrors.ErrDuplicateRequest)
}
