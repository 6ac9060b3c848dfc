package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"
)

// MaxLineBytes bounds a single inbound message.
const MaxLineBytes = 4 << 20

type replyEnvelope struct {
	ID    string `json:"id"`
	Reply any    `json:"reply"`
}

// Conn speaks the line protocol over a reader/writer pair, typically the
// process's stdin and stdout. Writes are serialised; Serve owns the reader.
type Conn struct {
	r  io.Reader
	mu sync.Mutex
	w  io.Writer
}

// NewConn returns a Conn reading requests from r and writing to w.
func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{r: r, w: w}
}

// Emit writes one outbound event.
func (c *Conn) Emit(v any) error {
	return c.write(v)
}

func (c *Conn) write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	b = append(b, '\n')
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.Write(b); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Serve reads messages until EOF or ctx is done and hands each decoded
// request to deliver together with its reply continuation. Malformed lines
// are dropped. Serve returns nil on EOF.
func (c *Conn) Serve(ctx context.Context, deliver func(Request, ReplyFunc)) error {
	sc := bufio.NewScanner(c.r)
	sc.Buffer(make([]byte, 0, 64<<10), MaxLineBytes)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		req, err := Decode(line)
		if err != nil {
			log.Debug().Err(err).Msg("dropping inbound message")
			continue
		}
		deliver(req, c.replyTo(req.ID))
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read messages: %w", err)
	}
	return nil
}

func (c *Conn) replyTo(id string) ReplyFunc {
	if id == "" {
		return nil
	}
	return func(v any) {
		if err := c.write(replyEnvelope{ID: id, Reply: v}); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("reply failed")
		}
	}
}
