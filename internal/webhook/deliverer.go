package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/radiomesh/meshbridge/internal/infrastructure/config"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Task is one pending delivery. Retry state lives here rather than on the
// call stack, so a retried task flows back through the same queue as a
// fresh one and observes the same rate limit.
type Task struct {
	// Body is the request body, marshaled once at enqueue time.
	Body []byte

	// Attempt counts delivery attempts already made for this task.
	Attempt int

	// CreatedAt is when the task was first enqueued. Used for staleness
	// drops; retries keep the original time.
	CreatedAt time.Time
}

// Deliverer posts request bodies to a single webhook endpoint with global
// rate limiting, bounded queueing and retry.
//
// Delivery is at-least-once with no ordering guarantee: a retried task can
// complete after tasks enqueued later. Queue overflow drops the oldest
// pending task in favor of the newest.
//
// Thread Safety:
//   - Enqueue is safe for concurrent use from multiple goroutines.
type Deliverer struct {
	url    string
	cfg    config.WebhookConfig
	client *http.Client

	limiter *rate.Limiter
	queue   chan Task

	// stopping closes first and stops intake; ctx cancels after the
	// shutdown grace expires and aborts in-flight work.
	stopping chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu     sync.RWMutex
	logger Logger
}

// New creates a Deliverer for the given endpoint. Call Start before
// enqueueing.
//
// Parameters:
//   - url: Absolute webhook endpoint URL
//   - cfg: Delivery tuning (rate, retry schedule, queue bound)
//
// Returns:
//   - *Deliverer: Configured deliverer
//   - error: ErrNoURL if url is empty
func New(url string, cfg config.WebhookConfig) (*Deliverer, error) {
	if url == "" {
		return nil, ErrNoURL
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Deliverer{
		url:      url,
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		limiter:  rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		queue:    make(chan Task, cfg.QueueSize),
		stopping: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// SetLogger sets a logger for delivery outcomes.
func (d *Deliverer) SetLogger(logger Logger) {
	d.mu.Lock()
	d.logger = logger
	d.mu.Unlock()
}

func (d *Deliverer) getLogger() Logger {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.logger
}

// Start launches the delivery worker. A single worker serializes all
// requests, which together with the limiter spaces them MinInterval apart.
func (d *Deliverer) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop drains pending deliveries for up to ShutdownGrace, then aborts
// whatever remains. Safe to call more than once.
func (d *Deliverer) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopping)

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(d.cfg.ShutdownGrace):
		}
		d.cancel()
		<-done
	})
}

// Enqueue queues a request body for delivery. Never blocks: when the
// queue is full the oldest pending task is dropped to make room.
//
// Returns:
//   - bool: false if the deliverer is stopped and the task was refused
func (d *Deliverer) Enqueue(body []byte) bool {
	return d.enqueue(Task{Body: body, CreatedAt: time.Now()})
}

func (d *Deliverer) enqueue(task Task) bool {
	select {
	case <-d.stopping:
		return false
	default:
	}

	for {
		select {
		case d.queue <- task:
			return true
		default:
		}
		// Queue full. Evict the oldest and try again.
		select {
		case old := <-d.queue:
			if logger := d.getLogger(); logger != nil {
				logger.Warn("delivery queue full, dropping oldest task",
					"dropped_age", time.Since(old.CreatedAt).String(),
					"queue_size", cap(d.queue))
			}
		default:
		}
	}
}

func (d *Deliverer) run() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopping:
			d.drain()
			return
		case task := <-d.queue:
			d.process(task)
		}
	}
}

// drain processes whatever is already queued until the queue is empty or
// the shutdown grace cancels the context.
func (d *Deliverer) drain() {
	for {
		select {
		case <-d.ctx.Done():
			return
		case task := <-d.queue:
			d.process(task)
		default:
			return
		}
	}
}

func (d *Deliverer) process(task Task) {
	if d.cfg.MaxTaskAge > 0 && time.Since(task.CreatedAt) > d.cfg.MaxTaskAge {
		if logger := d.getLogger(); logger != nil {
			logger.Warn("dropping stale delivery task",
				"age", time.Since(task.CreatedAt).String(),
				"attempts", task.Attempt)
		}
		return
	}

	if err := d.limiter.Wait(d.ctx); err != nil {
		return
	}

	status, retryAfter, err := d.post(task.Body)
	made := task.Attempt + 1

	switch {
	case err == nil && status >= 200 && status < 300:
		if logger := d.getLogger(); logger != nil {
			logger.Debug("webhook delivered", "status", status, "attempt", made)
		}

	case err == nil && status >= 400 && status < 500 && status != http.StatusTooManyRequests:
		// Client errors other than rate limiting will not heal on retry.
		if logger := d.getLogger(); logger != nil {
			logger.Warn("webhook rejected request, not retrying",
				"status", status, "attempt", made)
		}

	default:
		// Network error, timeout, 5xx or 429.
		if made >= d.cfg.MaxAttempts {
			if logger := d.getLogger(); logger != nil {
				logger.Error("webhook delivery failed, giving up",
					"attempts", made, "status", status, "error", err)
			}
			return
		}
		delay := d.backoffDelay(made)
		if status == http.StatusTooManyRequests && retryAfter > 0 {
			delay = retryAfter
		}
		if logger := d.getLogger(); logger != nil {
			logger.Warn("webhook delivery failed, will retry",
				"attempt", made, "status", status, "error", err,
				"retry_in", delay.String())
		}
		retry := Task{Body: task.Body, Attempt: made, CreatedAt: task.CreatedAt}
		time.AfterFunc(delay, func() {
			select {
			case <-d.stopping:
			default:
				d.enqueue(retry)
			}
		})
	}
}

// post performs one HTTP attempt. For 429 responses it extracts the
// server-requested retry delay.
func (d *Deliverer) post(body []byte) (int, time.Duration, error) {
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	var retryAfter time.Duration
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter = parseRetryAfter(resp)
	} else {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	}
	return resp.StatusCode, retryAfter, nil
}

// backoffDelay returns the delay before attempt made+1: doubling from
// InitialBackoff, capped at MaxBackoff, with jitter in [0.5, 1.0) of the
// base so queued retries spread out.
func (d *Deliverer) backoffDelay(made int) time.Duration {
	delay := d.cfg.InitialBackoff
	for i := 1; i < made; i++ {
		delay *= 2
		if delay >= d.cfg.MaxBackoff {
			delay = d.cfg.MaxBackoff
			break
		}
	}
	if delay > d.cfg.MaxBackoff {
		delay = d.cfg.MaxBackoff
	}
	return time.Duration(float64(delay) * (0.5 + rand.Float64()/2))
}

// parseRetryAfter extracts the retry delay from a 429 response, checking
// the Retry-After header, Discord's X-RateLimit-Reset-After header, and
// the JSON body's retry_after field in that order. Returns 0 when the
// response names no delay.
func parseRetryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	if v := resp.Header.Get("X-RateLimit-Reset-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}

	var body struct {
		RetryAfter float64 `json:"retry_after"`
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && json.Unmarshal(data, &body) == nil && body.RetryAfter > 0 {
		return time.Duration(body.RetryAfter * float64(time.Second))
	}
	return 0
}
