// Package idx mints the ULIDs naming users, sessions, password resets and
// requests.
package idx

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator hands out ULIDs from monotonic entropy, so ids minted within
// the same millisecond still sort in creation order.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewGenerator draws entropy from r.
func NewGenerator(r io.Reader) *Generator {
	return &Generator{entropy: ulid.Monotonic(r, 0)}
}

// At returns an id stamped with t, truncated to the millisecond.
func (g *Generator) At(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}

var global = sync.OnceValue(func() *Generator { return NewGenerator(rand.Reader) })

// New returns an id stamped with the current time.
func New() string {
	return global().At(time.Now())
}

// NewAt returns an id stamped with t. Services pass their own clock here.
func NewAt(t time.Time) string {
	return global().At(t)
}
