// Package gesture turns raw touch events into long-press notifications.
//
// A Detector is driven from a single event loop: TouchStart, TouchMove,
// TouchEnd and timer expiries must never run concurrently. The real clock
// satisfies this by handing expiries to a post function that enqueues them
// on that loop.
package gesture

import (
	"time"

	"github.com/hyperifyio/pagebridge/internal/geom"
)

const (
	// DefaultDelay is how long a contact must dwell to count as a long press.
	DefaultDelay = 800 * time.Millisecond
	// DefaultThreshold is the movement, in CSS pixels, that voids a press.
	DefaultThreshold = 3.0
)

// Phase is the detector's externally visible state.
type Phase int

const (
	Idle Phase = iota
	Armed
	Fired
)

func (p Phase) String() string {
	switch p {
	case Armed:
		return "armed"
	case Fired:
		return "fired"
	default:
		return "idle"
	}
}

// Timer is a pending one-shot callback.
type Timer interface {
	Stop() bool
}

// Clock schedules one-shot callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// LoopClock is a Clock whose callbacks are handed to Post instead of running
// on the timer goroutine.
type LoopClock struct {
	Post func(func())
}

func (c LoopClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, func() { c.Post(f) })
}

// Config tunes a Detector. Zero fields take the defaults.
type Config struct {
	Delay     time.Duration
	Threshold float64
}

func (c *Config) defaults() {
	if c.Delay <= 0 {
		c.Delay = DefaultDelay
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
}

// State is the tracked touch sequence. It exists only while armed.
type State struct {
	Origin geom.Point
	gen    uint64
	timer  Timer
}

// Detector recognises a long press: a single contact held for Delay without
// moving more than Threshold.
type Detector struct {
	cfg         Config
	clock       Clock
	onLongPress func(geom.Point)

	state *State
	gen   uint64
	phase Phase
}

// New returns an idle Detector. onLongPress receives the contact origin.
func New(cfg Config, clock Clock, onLongPress func(geom.Point)) *Detector {
	cfg.defaults()
	return &Detector{cfg: cfg, clock: clock, onLongPress: onLongPress}
}

// Phase reports the current phase.
func (d *Detector) Phase() Phase { return d.phase }

// State returns the active touch state, or nil when idle.
func (d *Detector) State() *State { return d.state }

// TouchStart begins a new sequence, superseding any previous one. Only a
// single contact arms the detector; multi-touch leaves it idle.
func (d *Detector) TouchStart(touches []geom.Point) {
	d.cancel()
	if len(touches) != 1 {
		return
	}
	d.gen++
	gen := d.gen
	st := &State{Origin: touches[0], gen: gen}
	d.state = st
	d.phase = Armed
	st.timer = d.clock.AfterFunc(d.cfg.Delay, func() { d.expire(gen) })
}

// TouchMove voids the press once the contact strays past the threshold.
func (d *Detector) TouchMove(p geom.Point) {
	if d.state == nil {
		return
	}
	if geom.Distance(p, d.state.Origin) > d.cfg.Threshold {
		d.cancel()
	}
}

// TouchEnd ends the sequence.
func (d *Detector) TouchEnd() {
	d.cancel()
}

// cancel stops the pending timer before dropping the state, so an expiry
// already queued finds a generation mismatch and does nothing.
func (d *Detector) cancel() {
	if d.state != nil && d.state.timer != nil {
		d.state.timer.Stop()
	}
	d.state = nil
	d.phase = Idle
}

func (d *Detector) expire(gen uint64) {
	st := d.state
	if st == nil || st.gen != gen {
		return
	}
	d.state = nil
	d.phase = Fired
	if d.onLongPress != nil {
		d.onLongPress(st.Origin)
	}
	if d.state == nil {
		d.phase = Idle
	}
}
