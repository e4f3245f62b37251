package session

import (
	"context"
	"fmt"
	"time"

	"github.com/openlivox/lidarhost/internal/protoerr"
)

// IdleGate is the sole sequencing primitive between the heartbeat task and
// the command path on one command socket (spec §4.3, §9 redesign note:
// "promote the implicit counter to an explicit lock with try-acquire
// semantics"). The heartbeat holds the gate only while sending its beat and
// reading the ack, then releases it for an idle window before the next beat,
// giving commands a chance to acquire it without racing an in-flight ACK.
type IdleGate struct {
	token chan struct{}
}

// NewIdleGate returns a gate with the token available (idle).
func NewIdleGate() *IdleGate {
	g := &IdleGate{token: make(chan struct{}, 1)}
	g.token <- struct{}{}
	return g
}

// TryAcquire attempts to take the gate without blocking.
func (g *IdleGate) TryAcquire() bool {
	select {
	case <-g.token:
		return true
	default:
		return false
	}
}

// Acquire polls TryAcquire every pollEvery until it succeeds, ctx is
// cancelled, or timeout has elapsed without success. This mirrors _wait_for_idle's
// polling loop (spec §4.3/§5: "10ms yield inside polling loops").
func (g *IdleGate) Acquire(ctx context.Context, timeout time.Duration) error {
	const pollEvery = 10 * time.Millisecond
	deadline := time.Now().Add(timeout)

	for {
		if g.TryAcquire() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("idle gate: timed out waiting for command socket: %w", protoerr.ErrTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollEvery):
		}
	}
}

// Release returns the gate's token.
func (g *IdleGate) Release() {
	select {
	case g.token <- struct{}{}:
	default:
		// Already idle; avoid blocking on a double release.
	}
}
