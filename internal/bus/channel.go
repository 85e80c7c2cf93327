package bus

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// Channel delivers a Message and returns its Response. A returned error
// means the channel itself failed; handler failures arrive as a Response
// with Success=false.
type Channel interface {
	Send(ctx context.Context, msg Message) (Response, error)
}

// Call sends payload as a t message over ch and decodes the reply data into
// Resp. A success=false reply is returned as a *RemoteError.
func Call[Resp any](ctx context.Context, ch Channel, t MessageType, payload any) (Resp, error) {
	var out Resp
	msg, err := NewMessage(t, payload)
	if err != nil {
		return out, err
	}
	resp, err := ch.Send(ctx, msg)
	if err != nil {
		return out, err
	}
	if !resp.Success {
		return out, &RemoteError{Type: t, Message: resp.Error}
	}
	if len(resp.Data) == 0 {
		return out, nil
	}
	if err := resp.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// LocalChannel dispatches to an in-process Router. The receiving side can be
// disconnected and the sending side invalidated.
type LocalChannel struct {
	mu          sync.RWMutex
	router      *Router
	invalidated bool
}

// NewLocalChannel connects to router.
func NewLocalChannel(router *Router) *LocalChannel {
	return &LocalChannel{router: router}
}

// Send dispatches msg. A context cancelled before the handler replies yields
// ErrPortClosed.
func (c *LocalChannel) Send(ctx context.Context, msg Message) (Response, error) {
	c.mu.RLock()
	router, invalidated := c.router, c.invalidated
	c.mu.RUnlock()

	if invalidated {
		return Response{}, ErrContextInvalidated
	}
	if router == nil {
		return Response{}, ErrNoReceiver
	}
	if err := ctx.Err(); err != nil {
		return Response{}, eris.Wrap(ErrPortClosed, err.Error())
	}

	done := make(chan Response, 1)
	go func() { done <- router.Dispatch(ctx, msg) }()

	select {
	case resp := <-done:
		return resp, nil
	case <-ctx.Done():
		return Response{}, eris.Wrap(ErrPortClosed, ctx.Err().Error())
	}
}

// Disconnect tears down the receiving side. Later sends fail with
// ErrNoReceiver until Connect is called.
func (c *LocalChannel) Disconnect() {
	c.mu.Lock()
	c.router = nil
	c.mu.Unlock()
}

// Connect attaches router as the receiving side.
func (c *LocalChannel) Connect(router *Router) {
	c.mu.Lock()
	c.router = router
	c.mu.Unlock()
}

// Invalidate makes every later send fail with ErrContextInvalidated, like a
// reloaded extension context. It is permanent.
func (c *LocalChannel) Invalidate() {
	c.mu.Lock()
	c.invalidated = true
	c.mu.Unlock()
}
