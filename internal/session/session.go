// Package session binds one loaded page to the host bridge. Everything that
// touches the page or the gesture detector runs on the session's event loop.
package session

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/pagebridge/internal/bridge"
	"github.com/hyperifyio/pagebridge/internal/dom"
	"github.com/hyperifyio/pagebridge/internal/extract"
	"github.com/hyperifyio/pagebridge/internal/geom"
	"github.com/hyperifyio/pagebridge/internal/gesture"
	selecter "github.com/hyperifyio/pagebridge/internal/select"
	"github.com/hyperifyio/pagebridge/internal/uri"
)

// ErrClosed is returned by Post once the loop has stopped.
var ErrClosed = errors.New("session closed")

// Emitter sends fire-and-forget events to the host.
type Emitter interface {
	Emit(v any) error
}

// Options configures a Session.
type Options struct {
	Gesture gesture.Config
	Extract extract.Options
	// Clock overrides the gesture timer source. Nil schedules real timers
	// whose expiries are posted to the loop.
	Clock gesture.Clock
	// QueueSize bounds pending loop tasks. Zero means 64.
	QueueSize int
}

// Session owns the per-page state: detector, resolver, router and loop.
type Session struct {
	ID string

	doc      dom.Document
	resolver *selecter.Resolver
	detector *gesture.Detector
	router   *bridge.Router
	out      Emitter
	log      zerolog.Logger

	tasks chan func()
	done  chan struct{}
}

// New wires a session for doc that emits events through out.
func New(doc dom.Document, out Emitter, opt Options) *Session {
	if opt.QueueSize <= 0 {
		opt.QueueSize = 64
	}
	s := &Session{
		ID:    uuid.NewString(),
		doc:   doc,
		out:   out,
		tasks: make(chan func(), opt.QueueSize),
		done:  make(chan struct{}),
	}
	s.log = log.With().Str("session", s.ID).Logger()
	s.resolver = selecter.New(doc, extract.New(doc.Resolver(), opt.Extract))

	clock := opt.Clock
	if clock == nil {
		clock = gesture.LoopClock{Post: func(f func()) { _ = s.Post(f) }}
	}
	s.detector = gesture.New(opt.Gesture, clock, s.longPress)

	s.router = bridge.NewRouter(s.fallback)
	s.router.Handle(bridge.CmdCreateSelectionAt, s.createSelectionAt)
	s.router.Handle(bridge.CmdAdjustSelection, s.adjustSelection)
	s.router.Handle(bridge.CmdTouchStart, s.touchStart)
	s.router.Handle(bridge.CmdTouchMove, s.touchMove)
	s.router.Handle(bridge.CmdTouchEnd, func(bridge.Request, bridge.ReplyFunc) { s.detector.TouchEnd() })
	s.router.Handle(bridge.CmdScroll, s.scroll)
	s.router.Handle(bridge.CmdClick, s.click)
	s.router.Handle(bridge.CmdEvaluateSelectors, s.evaluateSelectors)
	return s
}

// fallback is the negative answer for req, sent when no real one can be.
func (s *Session) fallback(req bridge.Request) any {
	if req.Command == bridge.CmdEvaluateSelectors {
		return bridge.MatchReply{}
	}
	return bridge.NotFound(s.doc.Viewport())
}

// Run drains the task queue until ctx is done. It must be called exactly
// once.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	s.log.Info().Msg("session started")
	s.detectMetadata()
	for {
		select {
		case <-ctx.Done():
			s.detector.TouchEnd()
			s.log.Info().Msg("session stopped")
			return ctx.Err()
		case f := <-s.tasks:
			f()
		}
	}
}

// Post queues f on the loop. It blocks while the queue is full.
func (s *Session) Post(f func()) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.tasks <- f:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// Deliver queues an inbound request for dispatch on the loop. Its signature
// matches bridge.Conn.Serve. Requests arriving after the loop has stopped are
// answered with the negative reply.
func (s *Session) Deliver(req bridge.Request, reply bridge.ReplyFunc) {
	if err := s.Post(func() { s.Dispatch(req, reply) }); err != nil {
		s.log.Debug().Err(err).Str("command", req.Command.String()).Msg("request after close")
		if req.Command.ExpectsReply() && reply != nil {
			reply(s.fallback(req))
		}
	}
}

// Dispatch routes req synchronously. Callers must be on the loop.
func (s *Session) Dispatch(req bridge.Request, reply bridge.ReplyFunc) {
	s.log.Debug().Str("command", req.Command.String()).Str("id", req.ID).Msg("dispatch")
	s.router.Dispatch(req, reply)
}

// GesturePhase reports the detector phase. Callers must be on the loop.
func (s *Session) GesturePhase() gesture.Phase { return s.detector.Phase() }

func (s *Session) createSelectionAt(req bridge.Request, reply bridge.ReplyFunc) {
	p := req.Args.(*bridge.PointArgs).Point()
	snap, err := s.resolver.SnapshotAt(p)
	s.answer(reply, snap, err)
}

func (s *Session) adjustSelection(req bridge.Request, reply bridge.ReplyFunc) {
	a := req.Args.(*bridge.RectArgs)
	box := selecter.DeviceToDocument(*a.X, *a.Y, *a.Width, *a.Height, s.doc.Viewport())
	snap, err := s.resolver.FromRect(box)
	s.answer(reply, snap, err)
}

func (s *Session) answer(reply bridge.ReplyFunc, snap extract.Snapshot, err error) {
	vp := s.doc.Viewport()
	if err != nil {
		s.log.Debug().Err(err).Msg("no selection")
		reply(bridge.NotFound(vp))
		return
	}
	reply(bridge.Selected(snap, vp))
}

func (s *Session) touchStart(req bridge.Request, _ bridge.ReplyFunc) {
	s.detector.TouchStart(req.Args.(*bridge.TouchArgs).Touches)
}

func (s *Session) touchMove(req bridge.Request, _ bridge.ReplyFunc) {
	s.detector.TouchMove(req.Args.(*bridge.TouchArgs).Touches[0])
}

func (s *Session) longPress(origin geom.Point) {
	snap, err := s.resolver.SnapshotAt(origin)
	if err != nil {
		s.log.Debug().Err(err).Float64("x", origin.X).Float64("y", origin.Y).Msg("long press on nothing")
		return
	}
	s.emit(bridge.LongPress(snap))
}

func (s *Session) scroll(req bridge.Request, _ bridge.ReplyFunc) {
	a := req.Args.(*bridge.ScrollArgs)
	if err := s.doc.ScrollBy(a.DX, a.DY); err != nil {
		s.log.Warn().Err(err).Msg("scroll failed")
	}
	s.emit(bridge.Scroll())
}

// click opens target="_blank" links in a new host tab.
func (s *Session) click(req bridge.Request, _ bridge.ReplyFunc) {
	el := s.doc.ElementFromPoint(req.Args.(*bridge.PointArgs).Point())
	a := dom.ClosestAnchor(el)
	if a == nil {
		return
	}
	target, _ := a.Attr("target")
	target = strings.ToLower(strings.TrimSpace(target))
	if target != "_blank" && target != `"_blank"` {
		return
	}
	href, ok := a.Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" || uri.IsScript(href) {
		return
	}
	s.emit(bridge.NewTab(s.doc.Resolver().Resolve(href)))
}

func (s *Session) evaluateSelectors(req bridge.Request, reply bridge.ReplyFunc) {
	sel := req.Args.(*bridge.SelectorArgs).Selectors
	reply(bridge.MatchReply{Result: s.doc.Query(sel) != nil})
}

// detectMetadata reports the page's theme colour or, failing that, its web
// app manifest. At most one event is sent.
func (s *Session) detectMetadata() {
	res := s.doc.Resolver()
	if meta := s.doc.Query(`head meta[name="theme-color"]`); meta != nil {
		color, _ := meta.Attr("content")
		s.emit(bridge.ThemeColor(res.DocumentURI, color))
		return
	}
	if link := s.doc.Query(`head link[rel="manifest"]`); link != nil {
		if href, _ := link.Attr("href"); strings.TrimSpace(href) != "" {
			s.emit(bridge.Manifest(res.DocumentURI, res.Resolve(strings.TrimSpace(href))))
		}
	}
}

func (s *Session) emit(v any) {
	if err := s.out.Emit(v); err != nil {
		s.log.Warn().Err(err).Msg("emit failed")
	}
}
