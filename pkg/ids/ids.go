// Package ids generates the prefixed object identifiers used across the API
// surface (cus_..., sub_..., in_...). The random part is a ULID with
// monotonic entropy, so ids issued by one process sort lexicographically in
// creation order and tie-breaking "descending id" equals "newest first".
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Object id prefixes, one per entity type.
const (
	PrefixCard         = "card"
	PrefixCharge       = "ch"
	PrefixCoupon       = "cou"
	PrefixCustomer     = "cus"
	PrefixDiscount     = "di"
	PrefixEvent        = "evt"
	PrefixInvoice      = "in"
	PrefixInvoiceItem  = "ii"
	PrefixPlan         = "plan"
	PrefixSubscription = "sub"
	PrefixSubItem      = "si"
	PrefixToken        = "tok"
	PrefixTransaction  = "txn"
	PrefixWebhook      = "wh"
)

// Generator issues prefixed ids. Safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// New returns "<prefix>_<ULID>".
func (g *Generator) New(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now().UTC()), g.entropy)
	return prefix + "_" + id.String()
}
