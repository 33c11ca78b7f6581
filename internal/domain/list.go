package domain

// List is the standard collection envelope. TotalCount reflects the page
// that was returned, not the whole collection, matching the reference API.
type List[T any] struct {
	Object     string `json:"object"`
	Data       []T    `json:"data"`
	HasMore    bool   `json:"has_more"`
	TotalCount int    `json:"total_count"`
	URL        string `json:"url"`
}

// NewList wraps items in a list envelope with has_more unset.
func NewList[T any](items []T, url string) List[T] {
	if items == nil {
		items = []T{}
	}
	return List[T]{
		Object:     "list",
		Data:       items,
		HasMore:    false,
		TotalCount: len(items),
		URL:        url,
	}
}
