package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/singleflight"

	"bizlens/backend/internal/platform/apierror"
	"bizlens/backend/internal/platform/logger"
	"bizlens/backend/internal/telemetry/metrics"
)

const (
	DefaultBaseDelay   = time.Second
	DefaultMaxJitter   = time.Second
	DefaultCallTimeout = 2 * time.Minute
)

// fallbacks names the single alternate tried after a provider's final failure.
var fallbacks = map[string]string{
	ProviderGemini: ProviderLocal,
	ProviderLocal:  ProviderGemini,
	ProviderEdge:   ProviderGemini,
}

// Options configures an Orchestrator. Zero durations use the defaults above.
type Options struct {
	DefaultProvider string
	CacheCapacity   int
	// MaxRetries is the number of attempts made while a provider answers 429.
	MaxRetries int
	BaseDelay  time.Duration
	MaxJitter  time.Duration
	// CallTimeout bounds a shared upstream call, retries and fallback included.
	CallTimeout time.Duration
}

// Orchestrator routes requests to providers with caching, 429 retries and one fallback.
type Orchestrator struct {
	providers map[string]Provider
	def       string
	cache     *Cache
	group     singleflight.Group
	attempts  uint
	baseDelay time.Duration
	maxJitter time.Duration
	timeout   time.Duration
	metrics   *metrics.Metrics
	lggr      logger.Logger

	mu      sync.Mutex
	flights map[string]*flight
	seq     uint64
}

// flight is one upstream call shared by every caller waiting on the same cache key. Its
// context is detached from the callers and cancelled once the last of them leaves.
type flight struct {
	group   string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewOrchestrator registers providers by Name. Nil providers are skipped.
func NewOrchestrator(providers []Provider, opts Options, m *metrics.Metrics, lggr logger.Logger) *Orchestrator {
	o := &Orchestrator{
		providers: make(map[string]Provider, len(providers)),
		def:       opts.DefaultProvider,
		cache:     NewCache(opts.CacheCapacity),
		attempts:  uint(max(opts.MaxRetries, 1)),
		baseDelay: opts.BaseDelay,
		maxJitter: opts.MaxJitter,
		timeout:   opts.CallTimeout,
		metrics:   m,
		lggr:      lggr,
		flights:   make(map[string]*flight),
	}
	for _, p := range providers {
		if p != nil {
			o.providers[p.Name()] = p
		}
	}
	if o.baseDelay <= 0 {
		o.baseDelay = DefaultBaseDelay
	}
	if o.maxJitter <= 0 {
		o.maxJitter = DefaultMaxJitter
	}
	if o.timeout <= 0 {
		o.timeout = DefaultCallTimeout
	}
	if o.def == "" {
		o.def = ProviderLocal
	}
	return o
}

// Providers lists the configured provider names.
func (o *Orchestrator) Providers() []string {
	names := make([]string, 0, len(o.providers))
	for n := range o.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Complete answers req from the cache or the routed provider.
func (o *Orchestrator) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	name := req.Provider
	if name == "" {
		name = o.def
	}
	p, ok := o.providers[name]
	if !ok {
		return nil, apierror.Invalid(fmt.Sprintf("provider %q is not configured", name))
	}

	key := CacheKey(name, req)
	if resp, ok := o.cache.Get(key); ok {
		o.metrics.CacheEvent("hit")
		return resp, nil
	}
	o.metrics.CacheEvent("miss")

	f := o.join(ctx, key)
	defer o.leave(key, f)
	ch := o.group.DoChan(f.group, func() (any, error) {
		resp, err := o.completeWithFallback(f.ctx, p, req)
		if err != nil {
			return nil, err
		}
		if o.cache.Put(key, resp) {
			o.metrics.CacheEvent("evict")
			o.lggr.Debugw("ai cache full, cleared")
		}
		return resp, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		r := *res.Val.(*Response)
		return &r, nil
	}
}

// join registers a waiter on the flight for key, starting a new one when none is live.
// Each flight has its own singleflight key, so a caller never joins a call whose waiters
// have all gone.
func (o *Orchestrator) join(ctx context.Context, key string) *flight {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, ok := o.flights[key]
	if !ok {
		o.seq++
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
		f = &flight{group: key + "#" + strconv.FormatUint(o.seq, 10), ctx: fctx, cancel: cancel}
		o.flights[key] = f
	}
	f.waiters++
	return f
}

func (o *Orchestrator) leave(key string, f *flight) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if o.flights[key] == f {
		delete(o.flights, key)
	}
}

func (o *Orchestrator) completeWithFallback(ctx context.Context, p Provider, req Request) (*Response, error) {
	resp, err := o.call(ctx, p, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, classify(p.Name(), err)
	}
	fb, ok := o.providers[fallbacks[p.Name()]]
	if !ok || fb.Name() == p.Name() {
		return nil, classify(p.Name(), err)
	}
	o.lggr.Warnw("ai provider failed, trying fallback", "provider", p.Name(), "fallback", fb.Name(), "error", err)
	// The fallback uses its own default model.
	fbReq := req
	fbReq.Model = ""
	resp, fbErr := o.call(ctx, fb, fbReq)
	if fbErr != nil {
		o.lggr.Warnw("ai fallback failed", "provider", fb.Name(), "error", fbErr)
		return nil, classify(p.Name(), err)
	}
	o.metrics.ObserveAI(fb.Name(), "fallback")
	resp.Fallback = true
	return resp, nil
}

// call runs one provider, retrying only HTTP 429 with exponential backoff plus jitter.
func (o *Orchestrator) call(ctx context.Context, p Provider, req Request) (*Response, error) {
	var resp *Response
	err := retry.Do(func() error {
		r, err := p.Complete(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(o.attempts),
		retry.Delay(o.baseDelay),
		retry.MaxJitter(o.maxJitter),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.RetryIf(IsRateLimited),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			o.metrics.ObserveAI(p.Name(), "rate_limited")
			o.lggr.Debugw("ai provider rate limited, retrying", "provider", p.Name(), "attempt", n+1)
		}),
	)
	if err != nil {
		o.metrics.ObserveAI(p.Name(), "error")
		return nil, err
	}
	o.metrics.ObserveAI(p.Name(), "success")
	if resp.Provider == "" {
		resp.Provider = p.Name()
	}
	return resp, nil
}

// classify maps a provider failure to 504 for timeouts and 502 otherwise.
func classify(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%s: %w", provider, apierror.Timeout("upstream timeout"))
	}
	return fmt.Errorf("%s: %w", provider, apierror.Upstream(err.Error()))
}
