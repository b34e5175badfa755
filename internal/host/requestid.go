package host

import (
	"sync"

	"github.com/google/uuid"
)

// RequestIDGenerator produces correlation ids for incoming calls.
type RequestIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 request ids. The embedded
// timestamp only helps humans read logs; ordering always uses seq.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined request ids, for golden traces and
// replay. Generate panics once the ids are exhausted.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all request ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
