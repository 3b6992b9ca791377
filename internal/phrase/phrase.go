// Package phrase isolates templated phrase generation behind a small picker
// interface so the random-selection policy can be swapped for a
// deterministic one in tests.
package phrase

import (
	"math/rand"
	"strings"
	"sync"
)

// Picker chooses an index in [0, n).
type Picker interface {
	Pick(n int) int
}

type randPicker struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRandPicker returns the production picker, seeded from seed.
func NewRandPicker(seed int64) Picker {
	return &randPicker{r: rand.New(rand.NewSource(seed))}
}

func (p *randPicker) Pick(n int) int {
	if n <= 1 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.r.Intn(n)
}

// Sequential cycles through indexes in order. Test use only.
type Sequential struct {
	next int
}

func (s *Sequential) Pick(n int) int {
	if n <= 0 {
		return 0
	}
	i := s.next % n
	s.next++
	return i
}

// Choose picks one template and substitutes {key} placeholders from params.
func Choose(p Picker, templates []string, params map[string]string) string {
	if len(templates) == 0 {
		return ""
	}
	t := templates[p.Pick(len(templates))]
	for k, v := range params {
		t = strings.ReplaceAll(t, "{"+k+"}", v)
	}
	return t
}
