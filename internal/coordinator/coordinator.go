// Package coordinator sends analysis requests for posts over the message
// bus. A post is in flight at most once, and transient channel failures are
// retried with a flat delay.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/postsignal/internal/bus"
	"github.com/sells-group/postsignal/internal/metrics"
	"github.com/sells-group/postsignal/internal/model"
	"github.com/sells-group/postsignal/internal/resilience"
)

// Renderer receives the outcome of each request.
type Renderer interface {
	// Render draws signal on the post. Failure signals arrive here too.
	Render(postID string, signal model.TradingSignal)
	// Abandon is called when the channel never delivered a response.
	Abandon(postID string)
}

// Config tunes retries.
type Config struct {
	// MaxRetries is the number of retries after the first send.
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	// RequestTimeout bounds each send. Zero means no per-send bound.
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	// HeartbeatInterval is the PING period while scanning.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" mapstructure:"heartbeat_interval"`
	// DLQMaxRetries is how many redrives an abandoned request gets.
	DLQMaxRetries int `yaml:"dlq_max_retries" mapstructure:"dlq_max_retries"`
}

// DefaultConfig returns 3 retries 2s apart.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		RetryDelay:        2 * time.Second,
		RequestTimeout:    60 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		DLQMaxRetries:     3,
	}
}

// DeadLetters stores abandoned requests for a later redrive.
type DeadLetters interface {
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDeadLetters records abandoned requests in q.
func WithDeadLetters(q DeadLetters) Option {
	return func(c *Coordinator) { c.dlq = q }
}

// WithClock overrides the clock used for dead letter scheduling.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Coordinator tracks in-flight and completed post ids.
type Coordinator struct {
	ch       bus.Channel
	renderer Renderer
	cfg      Config
	dlq      DeadLetters
	now      func() time.Time

	mu        sync.Mutex
	seq       uint64
	inflight  map[string]uint64
	completed map[string]struct{}
	wg        sync.WaitGroup
}

// New returns a Coordinator sending over ch. Negative retry settings fall
// back to the defaults. renderer may be nil when only Redrive is used.
func New(ch bus.Channel, renderer Renderer, cfg Config, opts ...Option) *Coordinator {
	def := DefaultConfig()
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.DLQMaxRetries < 0 {
		cfg.DLQMaxRetries = def.DLQMaxRetries
	}
	c := &Coordinator{
		ch:        ch,
		renderer:  renderer,
		cfg:       cfg,
		now:       time.Now,
		inflight:  make(map[string]uint64),
		completed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit starts an asynchronous analysis of content for postID. It returns
// false without doing anything when postID is already in flight or done.
func (c *Coordinator) Submit(ctx context.Context, content model.DetectedContent, postID string) bool {
	c.mu.Lock()
	_, busy := c.inflight[postID]
	_, done := c.completed[postID]
	if busy || done {
		c.mu.Unlock()
		metrics.RequestsRejected.Inc()
		return false
	}
	c.seq++
	gen := c.seq
	c.inflight[postID] = gen
	c.wg.Add(1)
	c.mu.Unlock()

	metrics.RequestsSubmitted.Inc()
	go func() {
		defer c.wg.Done()
		c.run(ctx, content, postID, gen)
	}()
	return true
}

// Analyze sends one ANALYZE_CONTENT request, retrying channel failures.
// Handler failures come back as *bus.RemoteError without a retry.
func (c *Coordinator) Analyze(ctx context.Context, content model.DetectedContent, postID string) (model.TradingSignal, error) {
	retry := resilience.FlatRetry(c.cfg.MaxRetries+1, c.cfg.RetryDelay)
	retry.ShouldRetry = bus.IsTransient
	logRetry := resilience.RetryLogger("coordinator", string(bus.AnalyzeContent))
	retry.OnRetry = func(attempt int, err error) {
		metrics.RequestRetries.Inc()
		logRetry(attempt, err)
	}

	req := bus.AnalyzeRequest{Content: content, PostID: postID}
	res, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (bus.AnalyzeResult, error) {
		if c.cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
			defer cancel()
		}
		return bus.Call[bus.AnalyzeResult](ctx, c.ch, bus.AnalyzeContent, req)
	})
	if err != nil {
		return model.TradingSignal{}, err
	}
	return res.Signal, nil
}

func (c *Coordinator) run(ctx context.Context, content model.DetectedContent, postID string, gen uint64) {
	log := zap.L().With(zap.String("post_id", postID))

	signal, err := c.Analyze(ctx, content, postID)
	var remote *bus.RemoteError
	switch {
	case err == nil:
		c.renderer.Render(postID, signal)
		metrics.RequestsCompleted.WithLabelValues("rendered").Inc()
	case errors.As(err, &remote):
		log.Warn("coordinator: analysis failed", zap.String("reason", remote.Message))
		c.renderer.Render(postID, model.FailureSignal(content, remote.Message))
		metrics.RequestsCompleted.WithLabelValues("failed").Inc()
	default:
		log.Error("coordinator: request abandoned", zap.Error(err))
		c.renderer.Abandon(postID)
		c.deadLetter(ctx, content, postID, err)
		metrics.RequestsCompleted.WithLabelValues("abandoned").Inc()
	}

	c.finish(postID, gen)
}

// deadLetter queues an abandoned request. It outlives ctx so shutdown
// cancellations are kept too.
func (c *Coordinator) deadLetter(ctx context.Context, content model.DetectedContent, postID string, cause error) {
	if c.dlq == nil {
		return
	}
	now := c.now()
	entry := resilience.DLQEntry{
		PostID:       postID,
		Content:      content,
		Error:        cause.Error(),
		ErrorType:    classify(cause),
		MaxRetries:   c.cfg.DLQMaxRetries,
		NextRetryAt:  now.Add(c.cfg.RetryDelay),
		CreatedAt:    now,
		LastFailedAt: now,
	}
	if err := c.dlq.EnqueueDLQ(context.WithoutCancel(ctx), entry); err != nil {
		zap.L().Error("coordinator: dead letter", zap.String("post_id", postID), zap.Error(err))
	}
}

// classify treats channel failures and cancellations as transient.
func classify(err error) string {
	if bus.IsTransient(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "transient"
	}
	return resilience.ClassifyError(err)
}

// RedriveResult counts the outcome of one Redrive pass.
type RedriveResult struct {
	Delivered int `json:"delivered"`
	Retrying  int `json:"retrying"`
	Exhausted int `json:"exhausted"`
}

// Redrive resends due dead letters, up to limit. A delivered request, or one
// the worker rejected, leaves the queue; the worker has already recorded its
// signal. Channel failures push the entry back with a doubling delay.
// Nothing is rendered.
func (c *Coordinator) Redrive(ctx context.Context, limit int) (RedriveResult, error) {
	var res RedriveResult
	if c.dlq == nil {
		return res, nil
	}
	entries, err := c.dlq.DequeueDLQ(ctx, resilience.DLQFilter{Limit: limit})
	if err != nil {
		return res, err
	}

	for _, e := range entries {
		log := zap.L().With(zap.String("post_id", e.PostID), zap.String("dlq_id", e.ID))
		_, err := c.Analyze(ctx, e.Content, e.PostID)
		if err == nil || bus.IsRemote(err) {
			if rmErr := c.dlq.RemoveDLQ(ctx, e.ID); rmErr != nil {
				return res, rmErr
			}
			res.Delivered++
			log.Info("coordinator: dead letter delivered", zap.Bool("rejected", err != nil))
			continue
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		next := c.now().Add(c.cfg.RetryDelay << e.RetryCount)
		if incErr := c.dlq.IncrementDLQRetry(ctx, e.ID, next, err.Error()); incErr != nil {
			return res, incErr
		}
		if e.RetryCount+1 >= e.MaxRetries {
			res.Exhausted++
			log.Warn("coordinator: dead letter exhausted", zap.Error(err))
		} else {
			res.Retrying++
			log.Debug("coordinator: dead letter rescheduled", zap.Time("next_retry_at", next))
		}
	}
	return res, nil
}

// Heartbeat sends PING every interval (the configured HeartbeatInterval when
// zero) until ctx is done. Failed pings are logged and skipped; fn receives
// every reply.
func (c *Coordinator) Heartbeat(ctx context.Context, interval time.Duration, fn func(bus.PingResult)) error {
	if interval <= 0 {
		interval = c.cfg.HeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := c.ping(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				zap.L().Warn("coordinator: heartbeat failed", zap.Error(err))
				continue
			}
			if fn != nil {
				fn(res)
			}
		}
	}
}

func (c *Coordinator) ping(ctx context.Context) (bus.PingResult, error) {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}
	return bus.Call[bus.PingResult](ctx, c.ch, bus.Ping, nil)
}

// finish moves postID from in flight to completed, unless it was forgotten
// (and possibly resubmitted) in the meantime.
func (c *Coordinator) finish(postID string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[postID] != gen {
		return
	}
	delete(c.inflight, postID)
	c.completed[postID] = struct{}{}
}

// Forget drops every trace of postID so it may be submitted again.
func (c *Coordinator) Forget(postID string) {
	c.mu.Lock()
	delete(c.inflight, postID)
	delete(c.completed, postID)
	c.mu.Unlock()
}

// InFlight reports whether postID has an outstanding request.
func (c *Coordinator) InFlight(postID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[postID]
	return ok
}

// Completed reports whether postID's request has finished.
func (c *Coordinator) Completed(postID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.completed[postID]
	return ok
}

// Wait blocks until every submitted request has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
