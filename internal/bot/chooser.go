// Package bot picks replies for the computer seat and paces them.
package bot

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/park285/chess-rooms/internal/rules"
)

type candidate struct {
	spec  rules.MoveSpec
	score int
}

// Chooser selects bot moves. Safe for concurrent use.
type Chooser struct {
	mu       sync.Mutex
	rng      *rand.Rand
	profiles map[Difficulty]Profile
}

type Option func(*Chooser)

// WithRand fixes the random source, mainly for tests.
func WithRand(r *rand.Rand) Option {
	return func(c *Chooser) { c.rng = r }
}

// NewChooser loads profiles (embedded defaults plus overrideDir) and builds a chooser.
func NewChooser(overrideDir string, opts ...Option) (*Chooser, error) {
	profiles, err := LoadProfiles(overrideDir)
	if err != nil {
		return nil, err
	}
	c := &Chooser{
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		profiles: profiles,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Chooser) Profile(d Difficulty) Profile {
	if p, ok := c.profiles[d]; ok {
		return p
	}
	return c.profiles[Medium]
}

// ThinkingDelay returns a random delay inside the difficulty's window.
func (c *Chooser) ThinkingDelay(d Difficulty) time.Duration {
	p := c.Profile(d)
	span := p.DelayMaxMs - p.DelayMinMs
	ms := p.DelayMinMs
	if span > 0 {
		c.mu.Lock()
		ms += c.rng.Intn(span + 1)
		c.mu.Unlock()
	}
	return time.Duration(ms) * time.Millisecond
}

// Choose returns a move for the side to move in g, or false when there is none.
// g is only read; candidates are tried on clones.
func (c *Chooser) Choose(g *rules.Game, d Difficulty) (rules.MoveSpec, bool) {
	if g == nil || g.IsGameOver() {
		return rules.MoveSpec{}, false
	}
	moves := g.LegalSpecs()
	if len(moves) == 0 {
		return rules.MoveSpec{}, false
	}
	p := c.Profile(d)

	// Only the rng draws are serialized; scoring runs in parallel across rooms.
	c.mu.Lock()
	if p.RandomRate > 0 && c.rng.Float64() < p.RandomRate {
		mv := moves[c.rng.Intn(len(moves))]
		c.mu.Unlock()
		return mv, true
	}
	c.mu.Unlock()

	scored := scoreMoves(g, moves, p)
	if len(scored) == 0 {
		return rules.MoveSpec{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pick(scored, p.Weights).spec, true
}

func scoreMoves(g *rules.Game, moves []rules.MoveSpec, p Profile) []candidate {
	color := g.Turn()
	out := make([]candidate, 0, len(moves))
	for _, mv := range moves {
		next := g.Clone()
		if _, err := next.Apply(mv); err != nil {
			continue
		}
		score := evaluate(next, color)
		if p.Depth > 1 {
			score = worstReply(next, color, p.OpponentReplies, score)
		}
		out = append(out, candidate{spec: mv, score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// worstReply returns the lowest score over the first limit replies, or fallback if there are none.
func worstReply(g *rules.Game, color rules.Color, limit int, fallback int) int {
	replies := g.LegalSpecs()
	if limit > 0 && len(replies) > limit {
		replies = replies[:limit]
	}
	worst := math.MaxInt
	for _, r := range replies {
		after := g.Clone()
		if _, err := after.Apply(r); err != nil {
			continue
		}
		if s := evaluate(after, color); s < worst {
			worst = s
		}
	}
	if worst == math.MaxInt {
		return fallback
	}
	return worst
}

// pick draws among the best len(weights) candidates. Caller holds c.mu.
func (c *Chooser) pick(cands []candidate, weights []float64) candidate {
	limit := len(weights)
	if limit > len(cands) {
		limit = len(cands)
	}
	total := 0.0
	for i := 0; i < limit; i++ {
		total += weights[i]
	}
	if total <= 0 {
		return cands[0]
	}
	threshold := c.rng.Float64() * total
	for i := 0; i < limit; i++ {
		threshold -= weights[i]
		if threshold < 0 {
			return cands[i]
		}
	}
	return cands[0]
}
