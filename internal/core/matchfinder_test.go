package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypool/waypool-backend/internal/models"
)

func matchIDs(matches []models.RideRequest) []uint {
	ids := make([]uint, len(matches))
	for i := range matches {
		ids[i] = matches[i].ID
	}
	return ids
}

func TestFindMatchesSameDestinationInsideWindow(t *testing.T) {
	svc, st, _ := newTestService(testSettings())
	r1, r2 := pairFixture(st) // 20 minutes apart, both airport

	matches, err := svc.FindMatches(context.Background(), 1)
	require.NoError(t, err)
	assert.Contains(t, matchIDs(matches), r2.ID)
	assert.NotContains(t, matchIDs(matches), r1.ID, "own ride must not match")
}

func TestFindMatchesFilters(t *testing.T) {
	svc, st, _ := newTestService(testSettings())
	pairFixture(st)
	otherDest := seedRide(st, 3, models.DestinationMall, testBase.Add(time.Hour))
	outsideWindow := seedRide(st, 4, models.DestinationAirport, testBase.Add(4*time.Hour))

	confirmed := seedRide(st, 5, models.DestinationAirport, testBase.Add(time.Hour))
	st.mu.Lock()
	ride := st.rides[confirmed.ID]
	ride.Status = models.RideStatusConfirmed
	st.rides[confirmed.ID] = ride
	st.mu.Unlock()

	matches, err := svc.FindMatches(context.Background(), 1)
	require.NoError(t, err)
	ids := matchIDs(matches)
	assert.NotContains(t, ids, otherDest.ID)
	assert.NotContains(t, ids, outsideWindow.ID)
	assert.NotContains(t, ids, confirmed.ID)
}

func TestFindMatchesRankedByTimeDistance(t *testing.T) {
	svc, st, _ := newTestService(testSettings())
	seedRide(st, 1, models.DestinationAirport, testBase.Add(time.Hour))
	far := seedRide(st, 2, models.DestinationAirport, testBase.Add(time.Hour+30*time.Minute))
	near := seedRide(st, 3, models.DestinationAirport, testBase.Add(time.Hour+5*time.Minute))
	mid := seedRide(st, 4, models.DestinationAirport, testBase.Add(time.Hour-10*time.Minute))

	matches, err := svc.FindMatches(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, []uint{near.ID, mid.ID, far.ID}, matchIDs(matches))
}

func TestFindMatchesTruncated(t *testing.T) {
	cfg := testSettings()
	cfg.MaxMatches = 2
	svc, st, _ := newTestService(cfg)
	seedRide(st, 1, models.DestinationAirport, testBase.Add(time.Hour))
	for owner := uint(2); owner <= 5; owner++ {
		seedRide(st, owner, models.DestinationAirport, testBase.Add(time.Hour+time.Duration(owner)*5*time.Minute))
	}

	matches, err := svc.FindMatches(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestFindMatchesWithoutRide(t *testing.T) {
	svc, _, _ := newTestService(testSettings())

	matches, err := svc.FindMatches(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindMatchesKeepsPendingCounterparts(t *testing.T) {
	svc, st, _ := newTestService(testSettings())
	_, r2 := pairFixture(st)
	_, err := svc.InitiateConversation(context.Background(), 1, r2.ID)
	require.NoError(t, err)

	// A pending pairing does not hide the counterpart; initiate guards
	// against duplicates, not the match list.
	matches, err := svc.FindMatches(context.Background(), 1)
	require.NoError(t, err)
	assert.Contains(t, matchIDs(matches), r2.ID)
}
