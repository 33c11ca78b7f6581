package clock

import (
	"context"
	"time"
)

type SystemClock struct{}

func (SystemClock) Now(ctx context.Context) time.Time {
	return time.Now().UTC()
}

// Fixed is a clock pinned to one instant, for tests that assert on period
// arithmetic.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now(ctx context.Context) time.Time {
	return f.T
}

// FixedUnix pins the clock to an epoch second.
func FixedUnix(sec int64) Fixed {
	return Fixed{T: time.Unix(sec, 0).UTC()}
}
