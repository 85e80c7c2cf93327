package bus

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/postsignal/internal/metrics"
)

const maxBodyBytes = 1 << 20

// HTTPChannel sends messages to a remote worker's POST /bus endpoint.
type HTTPChannel struct {
	client *resty.Client
}

// NewHTTPChannel targets the worker at baseURL.
func NewHTTPChannel(baseURL string, timeout time.Duration) *HTTPChannel {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &HTTPChannel{client: c}
}

// Send posts msg and maps transport failures onto the channel errors:
// unreachable or missing workers are ErrNoReceiver, a worker that fails
// mid-request is ErrPortClosed.
func (c *HTTPChannel) Send(ctx context.Context, msg Message) (Response, error) {
	var out Response
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(msg).
		SetResult(&out).
		SetError(&out).
		Post("/bus")
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, eris.Wrap(ErrPortClosed, ctx.Err().Error())
		}
		return Response{}, eris.Wrap(ErrNoReceiver, err.Error())
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusOK, code == http.StatusBadRequest && out.Error != "":
		return out, nil
	case code == http.StatusNotFound, code == http.StatusBadGateway,
		code == http.StatusServiceUnavailable, code == http.StatusGatewayTimeout:
		return Response{}, eris.Wrapf(ErrNoReceiver, "status %d", code)
	case code >= http.StatusInternalServerError:
		return Response{}, eris.Wrapf(ErrPortClosed, "status %d", code)
	default:
		return Response{}, eris.Errorf("bus: unexpected status %d", code)
	}
}

// HandlerOptions configures NewHTTPHandler.
type HandlerOptions struct {
	AllowedOrigins []string
	// Metrics mounts GET /metrics when set.
	Metrics bool
}

// NewHTTPHandler exposes router over HTTP: POST /bus, GET /health and,
// optionally, GET /metrics.
func NewHTTPHandler(router *Router, opts HandlerOptions) http.Handler {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/bus", func(w http.ResponseWriter, req *http.Request) {
		var msg Message
		body := http.MaxBytesReader(w, req.Body, maxBodyBytes)
		if err := json.NewDecoder(body).Decode(&msg); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: "invalid message body"})
			return
		}
		if msg.Type == "" {
			writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: "message type is required"})
			return
		}
		writeJSON(w, http.StatusOK, router.Dispatch(req.Context(), msg))
	})

	if opts.Metrics {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("bus: write response", zap.Error(err))
	}
}
