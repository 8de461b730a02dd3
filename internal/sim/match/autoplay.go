package match

import (
	"context"
	"time"

	"wumpusworld/internal/sim/board"
)

const DefaultAutoplayIdle = 8 * time.Second

// RunAutoplay moves the agent in a random direction whenever idle passes
// without a turn being requested through ResolveTurn/Play. Each requested
// turn restarts the wait. onTurn, if set, receives every automatic turn.
//
// It returns when ctx is cancelled (ctx.Err()) or when the match ends (nil).
// Run it in its own goroutine; it holds no resources that block shutdown.
func (m *Match) RunAutoplay(ctx context.Context, idle time.Duration, onTurn func(TurnResult)) error {
	if idle <= 0 {
		idle = DefaultAutoplayIdle
	}
	timer := time.NewTimer(idle)
	defer timer.Stop()
	armed := m.manualSeq.Load()

	rearm := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		armed = m.manualSeq.Load()
		timer.Reset(idle)
	}

	for {
		if !m.Active() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.reset:
			rearm()
		case <-timer.C:
			if res, ok := m.autoTurn(armed); ok && onTurn != nil {
				onTurn(res)
			}
			armed = m.manualSeq.Load()
			timer.Reset(idle)
		}
	}
}

// autoTurn plays the automatic move unless a manual turn was requested after
// the timer was armed. The check happens under the turn lock, so an expiry
// racing a manual request either yields to it or runs first, never both
// concurrently.
func (m *Match) autoTurn(armed uint64) (TurnResult, bool) {
	if m.manualSeq.Load() != armed {
		return TurnResult{}, false
	}
	d := board.Directions[m.autoRng.Intn(len(board.Directions))]

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.manualSeq.Load() != armed {
		return TurnResult{}, false
	}
	res := m.resolveLocked(Move, d, true)
	return res, res.Resolved
}
