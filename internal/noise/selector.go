package noise

import (
	"math/rand"
	"sync"
	"time"
)

// Selector picks one of n manifest entries.
type Selector interface {
	Select(n int) int
}

// RandomSelector picks entries uniformly at random. It is safe for concurrent use.
type RandomSelector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSelector returns a selector drawing from src. A nil src is seeded
// from the clock.
func NewRandomSelector(src rand.Source) *RandomSelector {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &RandomSelector{rng: rand.New(src)}
}

func (s *RandomSelector) Select(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// IndexSelector always picks the same entry, wrapping around the manifest length.
type IndexSelector int

func (s IndexSelector) Select(n int) int {
	i := int(s) % n
	if i < 0 {
		i += n
	}
	return i
}

// NewSelector builds the selector named by the noise.selection config value.
func NewSelector(policy string, seed int64) Selector {
	switch policy {
	case "first":
		return IndexSelector(0)
	default:
		if seed != 0 {
			return NewRandomSelector(rand.NewSource(seed))
		}
		return NewRandomSelector(nil)
	}
}
