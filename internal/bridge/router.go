package bridge

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// ReplyFunc delivers the single reply to a request. Calls after the first
// are ignored.
type ReplyFunc func(v any)

// Handler serves one command. Request handlers should call reply; the router
// answers for them with the fallback when they return without doing so.
type Handler func(req Request, reply ReplyFunc)

// Router dispatches decoded requests to the handler registered for their
// command.
type Router struct {
	handlers map[Command]Handler
	fallback func(Request) any
}

// NewRouter returns an empty router. fallback builds the reply sent when a
// request handler fails to answer or panics; nil sends an empty object.
func NewRouter(fallback func(Request) any) *Router {
	if fallback == nil {
		fallback = func(Request) any { return struct{}{} }
	}
	return &Router{handlers: make(map[Command]Handler), fallback: fallback}
}

// Handle registers h for c, replacing any earlier handler.
func (r *Router) Handle(c Command, h Handler) {
	r.handlers[c] = h
}

// Dispatch runs the handler for req. For requests, reply is invoked exactly
// once; for notifications it is never invoked.
func (r *Router) Dispatch(req Request, reply ReplyFunc) {
	once := onceReply(req, reply)
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("command", req.Command.String()).Str("panic", fmt.Sprint(p)).Msg("handler panicked")
		}
		if req.Command.ExpectsReply() {
			once(r.fallback(req))
		}
	}()
	h, ok := r.handlers[req.Command]
	if !ok {
		log.Debug().Str("command", req.Command.String()).Msg("no handler registered")
		return
	}
	h(req, once)
}

func onceReply(req Request, reply ReplyFunc) ReplyFunc {
	if !req.Command.ExpectsReply() || reply == nil {
		return func(any) {}
	}
	var once sync.Once
	return func(v any) {
		once.Do(func() { reply(v) })
	}
}
