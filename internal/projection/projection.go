// Package projection derives the displayed queue from authoritative state
// plus the optimistic overlay. Project is pure: same inputs, same output, no
// side effects.
package projection

import (
	"sort"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/domain"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/overlay"
)

// SortMode names a tie-break ordering. Both are valid projections over the
// same data; surfaces pick one rather than conflating them.
type SortMode int

const (
	// SortAudience breaks score ties newest-first, for the request-submission view.
	SortAudience SortMode = iota
	// SortAdmin breaks score ties oldest-first, for operator triage.
	SortAdmin
)

// String returns the query-string name of the mode.
func (m SortMode) String() string {
	if m == SortAdmin {
		return "admin"
	}
	return "audience"
}

// ParseSortMode maps a query-string value onto a SortMode.
func ParseSortMode(name string) SortMode {
	if name == "admin" {
		return SortAdmin
	}
	return SortAudience
}

// Project computes the ordered, de-duplicated, played-free queue view.
//
// Played requests are excluded. Authoritative requests carry their
// authoritative votes plus any still-pending optimistic vote delta. Overlay
// requests appear only while no authoritative request matches their title.
// Ordering: the locked request first (at most one exists), then descending
// by votes+requesters, ties broken by creation time per mode.
func Project(authoritative []domain.Request, ov overlay.View, mode SortMode) []domain.Request {
	out := make([]domain.Request, 0, len(authoritative)+len(ov.Requests))
	seen := make(map[string]struct{}, len(authoritative))

	for _, req := range authoritative {
		if req.IsPlayed() {
			continue
		}
		if _, dup := seen[req.ID]; dup {
			continue
		}
		seen[req.ID] = struct{}{}
		if delta := ov.VoteDeltas[req.ID]; delta > 0 {
			req.Votes += delta
		}
		out = append(out, req)
	}

	for _, opt := range ov.Requests {
		if hasUnplayedTitle(authoritative, opt.Title) {
			continue
		}
		if _, dup := seen[opt.ID]; dup {
			continue
		}
		seen[opt.ID] = struct{}{}
		out = append(out, opt)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsLocked() != b.IsLocked() {
			return a.IsLocked()
		}
		if sa, sb := a.Score(), b.Score(); sa != sb {
			return sa > sb
		}
		if mode == SortAdmin {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	return out
}

func hasUnplayedTitle(requests []domain.Request, title string) bool {
	for i := range requests {
		if requests[i].MatchesTitle(title) {
			return true
		}
	}
	return false
}
