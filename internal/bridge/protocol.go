// Package bridge is the message channel between the page and the embedding
// host: newline-delimited JSON requests, replies and events.
//
// Inbound:  {"id":"7","name":"adjustSelection","args":{"x":1,"y":2,"width":3,"height":4}}
// Reply:    {"id":"7","reply":{...}}
// Outbound: {"event":"longpress",...}
//
// Messages without an id are notifications and never get a reply.
package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/hyperifyio/pagebridge/internal/geom"
)

// ErrMalformedRequest marks inbound messages that are dropped unprocessed.
var ErrMalformedRequest = errors.New("malformed request")

// Command is the closed set of inbound message names.
type Command int

const (
	CmdUnknown Command = iota
	CmdCreateSelectionAt
	CmdAdjustSelection
	CmdTouchStart
	CmdTouchMove
	CmdTouchEnd
	CmdScroll
	CmdClick
	CmdEvaluateSelectors
)

var commandNames = map[Command]string{
	CmdCreateSelectionAt: "createSelectionAt",
	CmdAdjustSelection:   "adjustSelection",
	CmdTouchStart:        "touchstart",
	CmdTouchMove:         "touchmove",
	CmdTouchEnd:          "touchend",
	CmdScroll:            "scroll",
	CmdClick:             "click",
	CmdEvaluateSelectors: "evaluateSelectors",
}

// aliases accepts the lower-case names older shells send.
var aliases = map[string]Command{
	"createselection": CmdCreateSelectionAt,
	"adjustselection": CmdAdjustSelection,
}

func (c Command) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return "unknown"
}

// ExpectsReply reports whether the command is a request rather than a
// notification.
func (c Command) ExpectsReply() bool {
	switch c {
	case CmdCreateSelectionAt, CmdAdjustSelection, CmdEvaluateSelectors:
		return true
	}
	return false
}

// ParseCommand maps a wire name onto a Command.
func ParseCommand(name string) (Command, bool) {
	for c, n := range commandNames {
		if n == name {
			return c, true
		}
	}
	c, ok := aliases[strings.ToLower(name)]
	return c, ok
}

// Envelope is the raw inbound message.
type Envelope struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Request is a decoded, validated inbound message. Args holds one of
// *PointArgs, *RectArgs, *TouchArgs, *ScrollArgs, *SelectorArgs, or nil for
// touchend.
type Request struct {
	ID      string
	Command Command
	Args    any
}

// PointArgs carries createSelectionAt and click.
type PointArgs struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

func (a *PointArgs) Validate() error {
	if a.X == nil || a.Y == nil {
		return errors.New("x and y are required")
	}
	return finite(*a.X, *a.Y)
}

// Point returns the validated coordinates.
func (a *PointArgs) Point() geom.Point { return geom.Point{X: *a.X, Y: *a.Y} }

// RectArgs carries adjustSelection, in device pixels.
type RectArgs struct {
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
}

func (a *RectArgs) Validate() error {
	if a.X == nil || a.Y == nil || a.Width == nil || a.Height == nil {
		return errors.New("x, y, width and height are required")
	}
	if *a.Width < 0 || *a.Height < 0 {
		return errors.New("width and height must not be negative")
	}
	return finite(*a.X, *a.Y, *a.Width, *a.Height)
}

// TouchArgs carries touchstart and touchmove; Touches[0] is the primary
// contact.
type TouchArgs struct {
	Touches []geom.Point `json:"touches"`
}

func (a *TouchArgs) Validate() error {
	if len(a.Touches) == 0 {
		return errors.New("at least one touch is required")
	}
	for _, t := range a.Touches {
		if err := finite(t.X, t.Y); err != nil {
			return err
		}
	}
	return nil
}

// ScrollArgs carries scroll deltas in CSS pixels.
type ScrollArgs struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

func (a *ScrollArgs) Validate() error { return finite(a.DX, a.DY) }

// SelectorArgs carries evaluateSelectors: a CSS selector list tested against
// the whole document.
type SelectorArgs struct {
	Selectors string `json:"selectors"`
}

func (a *SelectorArgs) Validate() error {
	if strings.TrimSpace(a.Selectors) == "" {
		return errors.New("selectors is required")
	}
	return nil
}

type validator interface{ Validate() error }

func finite(vs ...float64) error {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("coordinates must be finite")
		}
	}
	return nil
}

// Decode parses and validates one inbound line. Every failure wraps
// ErrMalformedRequest.
func Decode(line []byte) (Request, error) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	cmd, ok := ParseCommand(env.Name)
	if !ok {
		return Request{}, fmt.Errorf("%w: unknown command %q", ErrMalformedRequest, env.Name)
	}
	if cmd.ExpectsReply() && env.ID == "" {
		return Request{}, fmt.Errorf("%w: %s requires an id", ErrMalformedRequest, cmd)
	}
	req := Request{ID: env.ID, Command: cmd}
	var args validator
	switch cmd {
	case CmdCreateSelectionAt, CmdClick:
		args = &PointArgs{}
	case CmdAdjustSelection:
		args = &RectArgs{}
	case CmdTouchStart, CmdTouchMove:
		args = &TouchArgs{}
	case CmdScroll:
		args = &ScrollArgs{}
	case CmdEvaluateSelectors:
		args = &SelectorArgs{}
	case CmdTouchEnd:
		return req, nil
	}
	raw := bytes.TrimSpace(env.Args)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, args); err != nil {
		return Request{}, fmt.Errorf("%w: %s args: %v", ErrMalformedRequest, cmd, err)
	}
	if err := args.Validate(); err != nil {
		return Request{}, fmt.Errorf("%w: %s args: %v", ErrMalformedRequest, cmd, err)
	}
	req.Args = args
	return req, nil
}
