// Package pagination implements the list-envelope cursor semantics shared by
// every collection endpoint: newest-first ordering with descending-id
// tie-break, id-based starting_after/ending_before cursors applied after
// sorting, a default limit of ten, and the created/status/type filters.
package pagination

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const DefaultLimit = 10

// Item is the minimal surface pagination needs from an entity.
type Item interface {
	ObjectID() string
	CreatedAt() int64
}

// statusItem is implemented by entities with a lifecycle status
// (subscriptions); canceled ones are suppressed unless asked for.
type statusItem interface {
	ObjectStatus() string
}

// typedItem is implemented by entities with a dot-delimited type taxonomy
// (events) for type/types filtering.
type typedItem interface {
	ObjectType() string
}

// CreatedFilter matches an exact creation time or one open bound. Only one
// bound applies, checked in gt/gte/lt/lte order.
type CreatedFilter struct {
	Exact *int64
	GT    *int64
	GTE   *int64
	LT    *int64
	LTE   *int64
}

func (f CreatedFilter) matches(created int64) bool {
	switch {
	case f.Exact != nil:
		return created == *f.Exact
	case f.GT != nil:
		return created > *f.GT
	case f.GTE != nil:
		return created >= *f.GTE
	case f.LT != nil:
		return created < *f.LT
	case f.LTE != nil:
		return created <= *f.LTE
	}
	return true
}

// Params are the parsed pagination query parameters.
type Params struct {
	Limit         int
	StartingAfter string
	EndingBefore  string
	Status        string
	Type          string
	Types         []string
	Created       CreatedFilter
}

// FromQuery reads the wire form of the parameters, including the
// created[gt]-style bracket syntax.
func FromQuery(q url.Values) Params {
	p := Params{Limit: DefaultLimit}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		p.Limit = v
	}
	p.StartingAfter = q.Get("starting_after")
	p.EndingBefore = q.Get("ending_before")
	p.Status = q.Get("status")
	p.Type = strings.ToLower(q.Get("type"))
	p.Types = append(q["types"], q["types[]"]...)

	p.Created.Exact = parseInt(q.Get("created"))
	p.Created.GT = parseInt(q.Get("created[gt]"))
	p.Created.GTE = parseInt(q.Get("created[gte]"))
	p.Created.LT = parseInt(q.Get("created[lt]"))
	p.Created.LTE = parseInt(q.Get("created[lte]"))
	return p
}

func parseInt(s string) *int64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Apply sorts, windows and filters items, returning the page and whether
// more items follow it.
func Apply[T Item](items []T, p Params) ([]T, bool) {
	sorted := make([]T, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt() != sorted[j].CreatedAt() {
			return sorted[i].CreatedAt() > sorted[j].CreatedAt()
		}
		return sorted[i].ObjectID() > sorted[j].ObjectID()
	})

	if p.StartingAfter != "" {
		if idx := indexOf(sorted, p.StartingAfter); idx >= 0 {
			sorted = sorted[idx+1:]
		}
	}
	if p.EndingBefore != "" {
		if idx := indexOf(sorted, p.EndingBefore); idx >= 0 {
			sorted = sorted[:idx]
		}
	}

	filtered := sorted[:0:0]
	for _, item := range sorted {
		if matches(item, p) {
			filtered = append(filtered, item)
		}
	}

	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	hasMore := false
	if len(filtered) > limit {
		hasMore = true
		filtered = filtered[:limit]
	}
	return filtered, hasMore
}

func matches[T Item](item T, p Params) bool {
	// Canceled entries are hidden unless the caller filters for them.
	if s, ok := any(item).(statusItem); ok {
		if s.ObjectStatus() == "canceled" && p.Status != "canceled" {
			return false
		}
	}
	if !p.Created.matches(item.CreatedAt()) {
		return false
	}
	if p.Type != "" || len(p.Types) > 0 {
		t, ok := any(item).(typedItem)
		if !ok {
			return true
		}
		if p.Type != "" {
			return matchType(p.Type, t.ObjectType())
		}
		for _, want := range p.Types {
			if matchType(want, t.ObjectType()) {
				return true
			}
		}
		return false
	}
	return true
}

func matchType(pattern, value string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == value
}

func indexOf[T Item](items []T, id string) int {
	for i, item := range items {
		if item.ObjectID() == id {
			return i
		}
	}
	return -1
}
