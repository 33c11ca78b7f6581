// Package clock abstracts time so billing period arithmetic can be
// pinned in tests.
package clock

import (
	"context"
	"time"
)

// Clock yields the current instant. Services take it instead of calling
// time.Now so invoices and prorations are reproducible under a Fixed clock.
type Clock interface {
	Now(ctx context.Context) time.Time
}
