package gesture

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperifyio/pagebridge/internal/geom"
)

// fakeClock runs callbacks only when advanced, on the caller's goroutine.
type fakeClock struct {
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now += d
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			t.f()
		}
	}
}

// fireAll runs every callback ever scheduled, stopped or not, to simulate
// expiries that were already queued when they were cancelled.
func (c *fakeClock) fireAll() {
	for _, t := range c.timers {
		t.f()
	}
}

type recorder struct {
	points []geom.Point
}

func (r *recorder) onLongPress(p geom.Point) { r.points = append(r.points, p) }

func newDetector() (*Detector, *fakeClock, *recorder) {
	clk := &fakeClock{}
	rec := &recorder{}
	return New(Config{}, clk, rec.onLongPress), clk, rec
}

func TestHeldPastDelay_FiresOnce(t *testing.T) {
	d, clk, rec := newDetector()
	d.TouchStart([]geom.Point{{X: 10, Y: 20}})
	if d.Phase() != Armed {
		t.Fatalf("expected armed, got %v", d.Phase())
	}
	clk.Advance(799 * time.Millisecond)
	if len(rec.points) != 0 {
		t.Fatalf("fired before the delay")
	}
	clk.Advance(time.Millisecond)
	clk.Advance(5 * time.Second)
	if len(rec.points) != 1 {
		t.Fatalf("expected exactly one long press, got %d", len(rec.points))
	}
	if rec.points[0] != (geom.Point{X: 10, Y: 20}) {
		t.Fatalf("wrong origin %+v", rec.points[0])
	}
	if d.Phase() != Idle || d.State() != nil {
		t.Fatalf("expected idle after firing, got %v", d.Phase())
	}
}

func TestEndBeforeDelay_NeverFires(t *testing.T) {
	d, clk, rec := newDetector()
	d.TouchStart([]geom.Point{{X: 1, Y: 1}})
	clk.Advance(500 * time.Millisecond)
	d.TouchEnd()
	clk.Advance(time.Second)
	if len(rec.points) != 0 {
		t.Fatalf("touch end must cancel the press")
	}
	if d.Phase() != Idle {
		t.Fatalf("expected idle, got %v", d.Phase())
	}
}

func TestMovePastThreshold_NeverFires(t *testing.T) {
	d, clk, rec := newDetector()
	d.TouchStart([]geom.Point{{X: 100, Y: 100}})
	d.TouchMove(geom.Point{X: 102, Y: 102})
	if d.Phase() != Armed {
		t.Fatalf("small movement should keep the press armed")
	}
	d.TouchMove(geom.Point{X: 104, Y: 100})
	if d.Phase() != Idle {
		t.Fatalf("movement past the threshold should void the press")
	}
	clk.Advance(time.Second)
	if len(rec.points) != 0 {
		t.Fatalf("voided press fired")
	}
}

func TestSmallMovement_StillFiresAtOrigin(t *testing.T) {
	d, clk, rec := newDetector()
	d.TouchStart([]geom.Point{{X: 100, Y: 100}})
	d.TouchMove(geom.Point{X: 103, Y: 100})
	clk.Advance(DefaultDelay)
	if len(rec.points) != 1 || rec.points[0] != (geom.Point{X: 100, Y: 100}) {
		t.Fatalf("expected one press at the origin, got %+v", rec.points)
	}
}

func TestNewTouchStartSupersedes(t *testing.T) {
	d, clk, rec := newDetector()
	d.TouchStart([]geom.Point{{X: 1, Y: 1}})
	clk.Advance(600 * time.Millisecond)
	d.TouchStart([]geom.Point{{X: 50, Y: 50}})
	clk.Advance(300 * time.Millisecond)
	if len(rec.points) != 0 {
		t.Fatalf("first timer fired after being superseded")
	}
	clk.Advance(500 * time.Millisecond)
	if len(rec.points) != 1 || rec.points[0] != (geom.Point{X: 50, Y: 50}) {
		t.Fatalf("expected the second press only, got %+v", rec.points)
	}
}

func TestStaleExpiryIsIgnored(t *testing.T) {
	d, clk, rec := newDetector()
	d.TouchStart([]geom.Point{{X: 1, Y: 1}})
	d.TouchEnd()
	d.TouchStart([]geom.Point{{X: 2, Y: 2}})
	d.TouchMove(geom.Point{X: 40, Y: 40})
	clk.fireAll()
	if len(rec.points) != 0 {
		t.Fatalf("stale expiries fired %d times", len(rec.points))
	}

	d.TouchStart([]geom.Point{{X: 3, Y: 3}})
	clk.fireAll()
	if len(rec.points) != 1 || rec.points[0] != (geom.Point{X: 3, Y: 3}) {
		t.Fatalf("only the current generation may fire, got %+v", rec.points)
	}
}

func TestMultiTouchDoesNotArm(t *testing.T) {
	d, clk, rec := newDetector()
	d.TouchStart([]geom.Point{{X: 1, Y: 1}})
	d.TouchStart([]geom.Point{{X: 1, Y: 1}, {X: 80, Y: 80}})
	clk.Advance(time.Second)
	if len(rec.points) != 0 || d.Phase() != Idle {
		t.Fatalf("a second contact must cancel the press")
	}
	d.TouchStart(nil)
	if d.Phase() != Idle {
		t.Fatalf("no contacts should stay idle")
	}
}

func TestMoveAndEndWhileIdle(t *testing.T) {
	d, _, _ := newDetector()
	d.TouchMove(geom.Point{X: 1000, Y: 1000})
	d.TouchEnd()
	if d.Phase() != Idle {
		t.Fatalf("expected idle")
	}
}

func TestLoopClockPostsExpiry(t *testing.T) {
	posted := make(chan func(), 1)
	clk := LoopClock{Post: func(f func()) { posted <- f }}
	var fired atomic.Int32
	d := New(Config{Delay: 10 * time.Millisecond}, clk, func(geom.Point) { fired.Add(1) })
	d.TouchStart([]geom.Point{{X: 1, Y: 1}})
	select {
	case f := <-posted:
		if fired.Load() != 0 {
			t.Fatalf("callback ran on the timer goroutine")
		}
		f()
	case <-time.After(2 * time.Second):
		t.Fatalf("timer never posted")
	}
	if fired.Load() != 1 {
		t.Fatalf("expected one long press, got %d", fired.Load())
	}
}
