package validator

import (
	"time"

	"spotbook/internal/bookings/interval"
	"spotbook/pkg/model"
)

// Existing is a stored booking as the conflict check sees it.
type Existing struct {
	ID     string
	SpotID string
	interval.Interval
}

type Conflict struct {
	BookingID string
	StartDate time.Time
	EndDate   time.Time
}

// FindConflicts returns every existing booking that shares a night with candidate.
// A non-empty excludeID skips that booking, which is how an edit ignores itself.
func FindConflicts(candidate interval.Interval, existing []Existing, excludeID string) []Conflict {
	var conflicts []Conflict
	for _, e := range existing {
		if excludeID != "" && e.ID == excludeID {
			continue
		}
		if interval.Overlaps(candidate, e.Interval) {
			conflicts = append(conflicts, Conflict{
				BookingID: e.ID,
				StartDate: e.Start,
				EndDate:   e.End,
			})
		}
	}
	return conflicts
}

// FindConflictsForSpot runs FindConflicts over stored bookings, ignoring any that
// belong to a different spot.
func FindConflictsForSpot(spotID string, candidate interval.Interval, bookings []*model.Booking, excludeID string) []Conflict {
	existing := make([]Existing, 0, len(bookings))
	for _, b := range bookings {
		if b == nil || b.SpotID != spotID {
			continue
		}
		existing = append(existing, Existing{
			ID:       b.ID,
			SpotID:   b.SpotID,
			Interval: interval.Interval{Start: b.StartDate, End: b.EndDate},
		})
	}
	return FindConflicts(candidate, existing, excludeID)
}
