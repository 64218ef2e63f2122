// Package embellish decorates generated replies with emoji suffixes.
package embellish

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Greeting is appended to the first generated reply of a session.
const Greeting = "🖤"

// DefaultProbability is the chance a later reply gets a random suffix.
const DefaultProbability = 0.35

// DefaultSuffixes is the pool random suffixes are drawn from.
var DefaultSuffixes = []string{"✨", "🌙", "🌸", "💫", "⭐️", "☁️", "🌷"}

// Embellisher appends decorative suffixes. It is safe for concurrent use.
type Embellisher struct {
	mu          sync.Mutex
	rng         *rand.Rand
	probability float64
	suffixes    []string
}

// New creates an embellisher drawing from the given source. A nil source is
// replaced with one seeded from the clock.
func New(src rand.Source) *Embellisher {
	if src == nil {
		src = NewSource(0)
	}
	return &Embellisher{
		rng:         rand.New(src),
		probability: DefaultProbability,
		suffixes:    DefaultSuffixes,
	}
}

// NewSource returns a PCG source for the seed. Seed 0 means time-seeded.
func NewSource(seed uint64) rand.Source {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

// Decorate returns the decorated reply and whether the session is now
// greeted. The greeting is applied exactly when greeted is false.
func (e *Embellisher) Decorate(reply string, greeted bool) (string, bool) {
	if !greeted {
		return reply + " " + Greeting, true
	}

	e.mu.Lock()
	roll := e.rng.Float64()
	idx := e.rng.IntN(len(e.suffixes))
	e.mu.Unlock()

	if roll < e.probability {
		return reply + " " + e.suffixes[idx], true
	}
	return reply, true
}
