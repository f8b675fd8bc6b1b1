package engine

import (
	"cmp"
	"log/slog"
	"maps"
	"slices"
	"time"
)

// continuation is deferred work owned by a node: an interpolation, a
// delay or a playing animation. It is advanced once per tick until step
// reports it finished, then done runs.
type continuation struct {
	id   string
	seq  int64
	node int
	key  string
	kind string

	// now is the tick time of the current advance.
	now time.Time

	step func(c *continuation) (bool, error)
	done func() error
}

// schedule registers a continuation. A running continuation with the
// same key is cancelled first, so a new interpolation of a target
// replaces the old one.
func (s *Session) schedule(node int, key, kind string, step func(*continuation) (bool, error), done func() error) *continuation {
	if key != "" {
		s.cancel(key)
	}
	c := &continuation{
		id:   s.ids.Generate(),
		seq:  s.seq.Next(),
		node: node,
		key:  key,
		kind: kind,
		step: step,
		done: done,
	}
	s.conts[c.id] = c
	if key != "" {
		s.byKey[key] = c.id
	}
	slog.Debug("continuation scheduled", "session", s.id, "id", c.id, "node", node, "kind", kind)
	s.trace(TraceContinuationScheduled, node, "", kind)
	return c
}

// cancel drops the continuation registered under key without running
// its done callback.
func (s *Session) cancel(key string) bool {
	id, ok := s.byKey[key]
	if !ok {
		return false
	}
	c := s.conts[id]
	s.remove(c)
	s.trace(TraceContinuationDone, c.node, "", c.kind+" cancelled")
	return true
}

func (s *Session) remove(c *continuation) {
	delete(s.conts, c.id)
	if c.key != "" && s.byKey[c.key] == c.id {
		delete(s.byKey, c.key)
	}
}

// advance steps every continuation present when the tick began, exactly
// once, in scheduling order. Continuations scheduled or cancelled while
// advancing are honored: new ones wait for the next tick, cancelled ones
// are skipped.
func (s *Session) advance(now time.Time) error {
	pending := slices.SortedFunc(maps.Values(s.conts), func(a, b *continuation) int {
		return cmp.Compare(a.seq, b.seq)
	})
	for _, c := range pending {
		if s.conts[c.id] != c {
			continue
		}
		c.now = now
		finished, err := c.step(c)
		if err != nil {
			s.remove(c)
			s.trace(TraceContinuationDone, c.node, "", c.kind+" failed")
			if ferr := s.fail(c.node, err); ferr != nil {
				return ferr
			}
			continue
		}
		if !finished {
			continue
		}
		s.remove(c)
		s.trace(TraceContinuationDone, c.node, "", c.kind)
		if c.done != nil {
			if err := c.done(); err != nil {
				return err
			}
		}
	}
	return nil
}
