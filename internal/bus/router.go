package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/postsignal/internal/metrics"
)

// HandlerFunc serves one message type. The returned value becomes the
// response data; a nil value sends none.
type HandlerFunc func(ctx context.Context, data json.RawMessage) (any, error)

// Router dispatches messages to registered handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[MessageType]HandlerFunc
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{handlers: make(map[MessageType]HandlerFunc)}
}

// Handle registers h for t, replacing any previous handler.
func (r *Router) Handle(t MessageType, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

// Types returns the registered message types.
func (r *Router) Types() []MessageType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MessageType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}

// Dispatch runs the handler for msg and always returns exactly one
// Response. Unknown types, handler errors and panics produce
// success=false.
func (r *Router) Dispatch(ctx context.Context, msg Message) (resp Response) {
	log := zap.L().With(zap.String("type", string(msg.Type)))
	defer func() {
		if p := recover(); p != nil {
			log.Error("bus: handler panic", zap.Any("panic", p))
			resp = Response{Success: false, Error: fmt.Sprintf("handler panic: %v", p)}
		}
		metrics.BusMessages.WithLabelValues(string(msg.Type), strconv.FormatBool(resp.Success)).Inc()
	}()

	r.mu.RLock()
	h, ok := r.handlers[msg.Type]
	r.mu.RUnlock()
	if !ok {
		log.Warn("bus: unknown message type")
		return Response{Success: false, Error: "unknown message type"}
	}

	out, err := h(ctx, msg.Data)
	if err != nil {
		log.Debug("bus: handler failed", zap.Error(err))
		return Response{Success: false, Error: err.Error()}
	}
	if out == nil {
		return Response{Success: true}
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return Response{Success: false, Error: eris.Wrap(err, "bus: marshal response").Error()}
	}
	return Response{Success: true, Data: raw}
}

// Bind adapts a typed handler into a HandlerFunc, decoding the payload into
// Req first. Handlers that take no payload receive the zero Req when data is
// empty.
func Bind[Req any](fn func(ctx context.Context, req Req) (any, error)) HandlerFunc {
	return func(ctx context.Context, data json.RawMessage) (any, error) {
		var req Req
		if len(data) > 0 {
			if err := json.Unmarshal(data, &req); err != nil {
				return nil, eris.Wrap(err, "bus: decode request")
			}
		}
		return fn(ctx, req)
	}
}
