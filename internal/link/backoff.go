package link

import "time"

// DefaultBackoffSchedule is the escalating reconnect spacing: 3, 5, 8, 16,
// 32, 51, then 60 seconds repeating.
var DefaultBackoffSchedule = []time.Duration{
	3 * time.Second,
	5 * time.Second,
	8 * time.Second,
	16 * time.Second,
	32 * time.Second,
	51 * time.Second,
	60 * time.Second,
}

// ReconnectSchedule counts down toward the next reconnect attempt. The stage
// cursor advances on every due attempt and saturates at the last entry.
// Mutated only on the client loop; shares nothing but the step cadence with
// the rest of the state machine.
type ReconnectSchedule struct {
	stages    []time.Duration
	stage     int
	remaining time.Duration
}

func NewReconnectSchedule(stages []time.Duration) *ReconnectSchedule {
	if len(stages) == 0 {
		stages = DefaultBackoffSchedule
	}
	s := &ReconnectSchedule{stages: stages}
	s.Reset()
	return s
}

// Reset rewinds to the first stage and arms its countdown.
func (s *ReconnectSchedule) Reset() {
	s.stage = 0
	s.remaining = s.stages[0]
}

// Tick advances the countdown by step and reports whether a reconnect
// attempt is due. When due, the stage advances (clamped to the last entry)
// and the next countdown is armed, so the countdown keeps running while the
// attempt itself is in flight.
func (s *ReconnectSchedule) Tick(step time.Duration) bool {
	s.remaining -= step
	if s.remaining > 0 {
		return false
	}
	if s.stage < len(s.stages)-1 {
		s.stage++
	}
	s.remaining = s.stages[s.stage]
	return true
}

// Stage reports the current stage index.
func (s *ReconnectSchedule) Stage() int {
	return s.stage
}
