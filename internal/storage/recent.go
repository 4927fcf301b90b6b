package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// maxRecentCities bounds each recent-city list.
const maxRecentCities = 5

// RecentCities keeps small per-user city lists for the search form,
// most-recent-first, deduplicated by value and bounded to five entries.
type RecentCities struct {
	KV *KV
}

func NewRecentCities(kv *KV) *RecentCities {
	return &RecentCities{KV: kv}
}

func recentKey(userID, direction string) string {
	return fmt.Sprintf("recent_cities:%s:%s", userID, direction)
}

// Add records city at the front of the user's list for the given direction
// ("from" or "to"), dropping any earlier occurrence.
func (r *RecentCities) Add(ctx context.Context, userID, direction, city string) error {
	if city == "" {
		return nil
	}
	cities, err := r.List(ctx, userID, direction)
	if err != nil {
		return err
	}

	updated := make([]string, 0, maxRecentCities)
	updated = append(updated, city)
	for _, c := range cities {
		if c == city {
			continue
		}
		updated = append(updated, c)
		if len(updated) == maxRecentCities {
			break
		}
	}

	raw, err := json.Marshal(updated)
	if err != nil {
		return err
	}
	return r.KV.Set(ctx, recentKey(userID, direction), raw)
}

// List returns the user's recent cities, most recent first. Malformed
// stored data is treated as an empty list.
func (r *RecentCities) List(ctx context.Context, userID, direction string) ([]string, error) {
	raw, err := r.KV.Get(ctx, recentKey(userID, direction))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []string{}, nil
	}
	var cities []string
	if err := json.Unmarshal(raw, &cities); err != nil {
		return []string{}, nil
	}
	return cities, nil
}
