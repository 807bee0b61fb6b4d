package refresh

import "sync/atomic"

type GuardState int32

const (
	Idle GuardState = iota
	Refreshing
)

func (s GuardState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Guard allows at most one refresh cycle at a time. Callers that find it refreshing are
// turned away instead of queued.
type Guard struct {
	state atomic.Int32
}

func NewGuard() *Guard {
	return &Guard{}
}

// TryAcquire moves Idle -> Refreshing, it returns false without waiting when a cycle is
// already running.
func (g *Guard) TryAcquire() bool {
	return g.state.CompareAndSwap(int32(Idle), int32(Refreshing))
}

// Release moves back to Idle unconditionally.
func (g *Guard) Release() {
	g.state.Store(int32(Idle))
}

func (g *Guard) State() GuardState {
	return GuardState(g.state.Load())
}
