package core

import (
	"context"
	"sort"
	"time"

	"github.com/waypool/waypool-backend/internal/models"
)

// FindMatches returns candidate rides for the owner's current ride:
// same destination, departing within the match window, not confirmed,
// and not already mutually confirmed with the requester. Results are
// ranked by how close the departure times are and truncated to the
// configured maximum.
//
// This is a pure read with no locking. It may serve slightly stale
// rows; every precondition is re-validated when a pairing is actually
// initiated.
func (s *Service) FindMatches(ctx context.Context, ownerID uint) ([]models.RideRequest, error) {
	ride, err := s.store.RideByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if ride == nil {
		return []models.RideRequest{}, nil
	}

	from := ride.DepartureTime.Add(-s.cfg.MatchWindow)
	to := ride.DepartureTime.Add(s.cfg.MatchWindow)
	candidates, err := s.store.CandidateRides(ctx, ride.Destination, from, to)
	if err != nil {
		return nil, err
	}

	matches := make([]models.RideRequest, 0, len(candidates))
	for _, cand := range candidates {
		if cand.ID == ride.ID || cand.Status == models.RideStatusConfirmed {
			continue
		}
		// Skip counterparts the requester already locked in with.
		if ref := ride.ActiveRefWith(cand.ID); ref != nil && ref.Status == models.RefStatusConfirmed {
			continue
		}
		matches = append(matches, cand)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		di := absDuration(matches[i].DepartureTime.Sub(ride.DepartureTime))
		dj := absDuration(matches[j].DepartureTime.Sub(ride.DepartureTime))
		if di != dj {
			return di < dj
		}
		return matches[i].ID < matches[j].ID
	})

	if s.cfg.MaxMatches > 0 && len(matches) > s.cfg.MaxMatches {
		matches = matches[:s.cfg.MaxMatches]
	}
	return matches, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
