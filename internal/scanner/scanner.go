// Package scanner watches a live document for post elements, extracts
// trading entities from each logical post once, and hands relevant posts to
// the analysis coordinator.
package scanner

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/postsignal/internal/detect"
	"github.com/sells-group/postsignal/internal/dom"
	"github.com/sells-group/postsignal/internal/identity"
	"github.com/sells-group/postsignal/internal/metrics"
	"github.com/sells-group/postsignal/internal/model"
)

// Submitter accepts relevant posts for analysis.
type Submitter interface {
	Submit(ctx context.Context, content model.DetectedContent, postID string) bool
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, content model.DetectedContent, postID string) bool

// Submit calls f.
func (f SubmitterFunc) Submit(ctx context.Context, content model.DetectedContent, postID string) bool {
	return f(ctx, content, postID)
}

// Config tunes the scan scheduler.
type Config struct {
	PostSelector    string        `yaml:"post_selector" mapstructure:"post_selector"`
	MinTextLength   int           `yaml:"min_text_length" mapstructure:"min_text_length"`
	BatchSize       int           `yaml:"batch_size" mapstructure:"batch_size"`
	ItemDelay       time.Duration `yaml:"item_delay" mapstructure:"item_delay"`
	RearmDelay      time.Duration `yaml:"rearm_delay" mapstructure:"rearm_delay"`
	MinHypePhrases  int           `yaml:"min_hype_phrases" mapstructure:"min_hype_phrases"`
	HandledAttr     string        `yaml:"handled_attr" mapstructure:"handled_attr"`
	OverlayClass    string        `yaml:"overlay_class" mapstructure:"overlay_class"`
	JanitorInterval time.Duration `yaml:"janitor_interval" mapstructure:"janitor_interval"`
}

// DefaultConfig returns the scheduler defaults.
func DefaultConfig() Config {
	return Config{
		PostSelector:    `[data-testid="tweet"]`,
		MinTextLength:   10,
		BatchSize:       5,
		ItemDelay:       50 * time.Millisecond,
		RearmDelay:      100 * time.Millisecond,
		MinHypePhrases:  1,
		HandledAttr:     "data-postsignal",
		OverlayClass:    "postsignal-overlay",
		JanitorInterval: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PostSelector == "" {
		c.PostSelector = def.PostSelector
	}
	if c.MinTextLength <= 0 {
		c.MinTextLength = def.MinTextLength
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.ItemDelay < 0 {
		c.ItemDelay = 0
	}
	if c.RearmDelay < 0 {
		c.RearmDelay = 0
	}
	if c.MinHypePhrases <= 0 {
		c.MinHypePhrases = def.MinHypePhrases
	}
	if c.HandledAttr == "" {
		c.HandledAttr = def.HandledAttr
	}
	if c.OverlayClass == "" {
		c.OverlayClass = def.OverlayClass
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = def.JanitorInterval
	}
	return c
}

// Option customises a Scanner.
type Option func(*Scanner)

// WithDetector replaces the entity extractor.
func WithDetector(fn func(text string) model.DetectedContent) Option {
	return func(s *Scanner) { s.detect = fn }
}

// WithResolver replaces the identity resolver.
func WithResolver(r *identity.Resolver) Option {
	return func(s *Scanner) { s.resolver = r }
}

// WithTracker shares a Tracker, e.g. with a Janitor built first.
func WithTracker(t *Tracker) Option {
	return func(s *Scanner) { s.tracker = t }
}

type drainState int

const (
	stateIdle drainState = iota
	stateRunning
)

// Scanner is the scan scheduler. Mutation callbacks only enqueue and kick;
// one drain loop processes the queue.
type Scanner struct {
	page      *dom.Page
	submitter Submitter
	resolver  *identity.Resolver
	tracker   *Tracker
	detect    func(string) model.DetectedContent
	cfg       Config

	kick  chan struct{}
	ready chan struct{}
	once  sync.Once

	mu      sync.Mutex
	state   drainState
	idle    chan struct{}
	enabled bool
}

// New builds a Scanner over page.
func New(page *dom.Page, submitter Submitter, cfg Config, opts ...Option) *Scanner {
	idle := make(chan struct{})
	close(idle)
	s := &Scanner{
		page:      page,
		submitter: submitter,
		resolver:  identity.NewResolver(),
		tracker:   NewTracker(),
		detect:    detect.Detect,
		cfg:       cfg.withDefaults(),
		kick:      make(chan struct{}, 1),
		ready:     make(chan struct{}),
		idle:      idle,
		enabled:   true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tracker returns the scanner's bookkeeping.
func (s *Scanner) Tracker() *Tracker { return s.tracker }

// Config returns the effective configuration.
func (s *Scanner) Config() Config { return s.cfg }

// Enabled reports whether new posts are being queued.
func (s *Scanner) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetEnabled pauses or resumes queueing. Posts already queued are still
// processed. Resuming sweeps the document for posts missed while paused.
func (s *Scanner) SetEnabled(enabled bool) {
	s.mu.Lock()
	changed := s.enabled != enabled
	s.enabled = enabled
	s.mu.Unlock()
	if !changed {
		return
	}

	zap.L().Info("scanner: enabled changed", zap.Bool("enabled", enabled))
	if enabled {
		s.sweep()
	}
}

// Run sweeps the posts already in the document, subscribes to mutations and
// drains the queue until ctx is done.
func (s *Scanner) Run(ctx context.Context) error {
	zap.L().Info("scanner: initial sweep", zap.Int("queued", s.sweep()))

	unsubscribe := s.page.Observe(s.onMutation)
	defer unsubscribe()
	s.once.Do(func() { close(s.ready) })

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.kick:
			s.drain(ctx)
		}
	}
}

// WaitIdle blocks until Run has subscribed, the queue is empty and the
// drain loop is idle.
func (s *Scanner) WaitIdle(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ready:
	}
	for {
		s.mu.Lock()
		if s.state == stateIdle && s.tracker.Len() == 0 {
			s.mu.Unlock()
			return nil
		}
		idle := s.idle
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
		}
	}
}

func (s *Scanner) sweep() int {
	queued := 0
	for _, el := range s.page.QueryAll(s.cfg.PostSelector) {
		if s.enqueue(el) {
			queued++
		}
	}
	return queued
}

func (s *Scanner) onMutation(records []dom.Mutation) {
	for _, r := range records {
		for _, el := range r.Added {
			if el.Matches(s.cfg.PostSelector) {
				s.enqueue(el)
			}
			for _, post := range el.Find(s.cfg.PostSelector) {
				s.enqueue(post)
			}
		}
	}
}

// enqueue applies the cheap filters and queues el, starting a drain when
// the loop is idle. A new node for an already handled post is rebound
// instead.
func (s *Scanner) enqueue(el *dom.Element) bool {
	id := s.resolver.Resolve(el)
	if s.tracker.IsHandled(id) {
		s.rebind(id, el)
		return false
	}
	if _, marked := el.Attr(s.cfg.HandledAttr); marked {
		return false
	}
	if el.First("."+s.cfg.OverlayClass) != nil {
		return false
	}
	if s.tooShort(s.resolver.Text(el)) {
		return false
	}

	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return false
	}
	ok := s.tracker.Enqueue(el, id)
	start := ok && s.state == stateIdle
	if start {
		s.state = stateRunning
		s.idle = make(chan struct{})
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	metrics.PostsQueued.Inc()
	if start {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
	return true
}

func (s *Scanner) drain(ctx context.Context) {
	for {
		batch := s.tracker.Pop(s.cfg.BatchSize)
		if len(batch) > 0 {
			metrics.Drains.Inc()
		}
		for i, item := range batch {
			if i > 0 && !sleep(ctx, s.cfg.ItemDelay) {
				return
			}
			s.process(ctx, item)
		}

		s.mu.Lock()
		if s.tracker.Len() == 0 {
			s.state = stateIdle
			close(s.idle)
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		if !sleep(ctx, s.cfg.RearmDelay) {
			return
		}
	}
}

func (s *Scanner) process(ctx context.Context, item Item) {
	el := item.Element
	if !el.Attached() {
		metrics.PostsProcessed.WithLabelValues("detached").Inc()
		return
	}

	id := s.resolver.Resolve(el)
	log := zap.L().With(zap.String("post_id", id))
	if s.tracker.IsHandled(id) {
		s.rebind(id, el)
		metrics.PostsProcessed.WithLabelValues("handled").Inc()
		return
	}

	text := s.resolver.Text(el)
	if s.tooShort(text) {
		metrics.PostsProcessed.WithLabelValues("short").Inc()
		return
	}

	content := s.detect(text)
	if !detect.IsRelevant(content, s.cfg.MinHypePhrases) {
		s.tracker.Discard(id, el, text)
		metrics.PostsProcessed.WithLabelValues("irrelevant").Inc()
		return
	}

	if !s.tracker.MarkHandled(id, el, text) {
		metrics.PostsProcessed.WithLabelValues("handled").Inc()
		return
	}
	el.SetAttr(s.cfg.HandledAttr, id)
	metrics.PostsProcessed.WithLabelValues("relevant").Inc()

	log.Debug("scanner: relevant post",
		zap.Strings("tokens", content.Symbols()),
		zap.Int("wallets", len(content.Wallets)),
		zap.Strings("hype", content.HypeLanguage),
	)
	s.submitter.Submit(ctx, content, id)
}

// rebind moves a handled post onto el, marks it and redraws its overlay
// when el is a fresh copy without one.
func (s *Scanner) rebind(id string, el *dom.Element) {
	if !el.Attached() {
		return
	}
	signal, redraw := s.tracker.Rebind(id, el)
	if _, marked := el.Attr(s.cfg.HandledAttr); !marked {
		el.SetAttr(s.cfg.HandledAttr, id)
	}
	if redraw {
		zap.L().Debug("scanner: post re-rendered", zap.String("post_id", id))
		s.Render(id, signal)
	}
}

func (s *Scanner) tooShort(text string) bool {
	return utf8.RuneCountInString(text) < s.cfg.MinTextLength
}

// sleep waits d or until ctx is done, reporting whether it waited the full
// duration.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
