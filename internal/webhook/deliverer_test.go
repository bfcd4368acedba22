package webhook

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/radiomesh/meshbridge/internal/infrastructure/config"
)

// testConfig returns delivery settings tuned for fast tests.
func testConfig() config.WebhookConfig {
	return config.WebhookConfig{
		MinInterval:    time.Millisecond,
		RequestTimeout: 2 * time.Second,
		MaxAttempts:    5,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		QueueSize:      16,
		MaxTaskAge:     time.Minute,
		ShutdownGrace:  2 * time.Second,
	}
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNewRequiresURL(t *testing.T) {
	_, err := New("", testConfig())
	if err != ErrNoURL {
		t.Errorf("New() error = %v, want ErrNoURL", err)
	}
}

// =============================================================================
// Delivery Tests
// =============================================================================

func TestDeliverSuccess(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	var contentTypes []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		contentTypes = append(contentTypes, r.Header.Get("Content-Type"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d, err := New(server.URL, testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	d.Start()
	defer d.Stop()

	if !d.Enqueue([]byte(`{"content":"!a1b2c3d4: hello mesh"}`)) {
		t.Fatal("Enqueue() = false, want true")
	}

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bodies) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if bodies[0] != `{"content":"!a1b2c3d4: hello mesh"}` {
		t.Errorf("request body = %s", bodies[0])
	}
	if contentTypes[0] != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", contentTypes[0])
	}
}

func TestDeliverRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d, err := New(server.URL, testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	d.Start()
	defer d.Stop()

	d.Enqueue([]byte(`{}`))

	waitFor(t, 2*time.Second, func() bool { return calls.Load() == 2 })
}

func TestDeliverGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxAttempts = 3

	d, err := New(server.URL, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	d.Start()
	defer d.Stop()

	d.Enqueue([]byte(`{}`))

	waitFor(t, 2*time.Second, func() bool { return calls.Load() == 3 })

	// No further attempts after the budget is spent.
	time.Sleep(100 * time.Millisecond)
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want exactly 3", got)
	}
}

func TestDeliverPermanentFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	d, err := New(server.URL, testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	d.Start()
	defer d.Stop()

	d.Enqueue([]byte(`{"malformed": true}`))

	waitFor(t, 2*time.Second, func() bool { return calls.Load() == 1 })

	time.Sleep(100 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("attempts = %d, want exactly 1 for 400 response", got)
	}
}

// =============================================================================
// Rate Limit Tests
// =============================================================================

func TestDeliverHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	var gap atomic.Int64
	var firstNano atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			firstNano.Store(time.Now().UnixNano())
			w.Header().Set("Retry-After", "0.2")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			gap.Store(time.Now().UnixNano() - firstNano.Load())
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	d, err := New(server.URL, testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	d.Start()
	defer d.Stop()

	d.Enqueue([]byte(`{}`))

	waitFor(t, 3*time.Second, func() bool { return calls.Load() == 2 })

	if got := time.Duration(gap.Load()); got < 180*time.Millisecond {
		t.Errorf("retry gap = %v, want >= ~200ms from Retry-After", got)
	}
}

func TestDeliverSpacing(t *testing.T) {
	var mu sync.Mutex
	var times []time.Time

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MinInterval = 100 * time.Millisecond

	d, err := New(server.URL, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	d.Start()
	defer d.Stop()

	d.Enqueue([]byte(`{"n":1}`))
	d.Enqueue([]byte(`{"n":2}`))
	d.Enqueue([]byte(`{"n":3}`))

	waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(times) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < 80*time.Millisecond {
			t.Errorf("gap %d = %v, want >= ~100ms", i, gap)
		}
	}
}

// =============================================================================
// Queue Tests
// =============================================================================

func TestEnqueueOverflowDropsOldest(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var bodies []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.QueueSize = 1

	d, err := New(server.URL, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	d.Start()
	defer func() {
		close(release)
		d.Stop()
	}()

	// First task occupies the worker (blocked on the server); the next
	// two contend for the single queue slot and the newest must win.
	d.Enqueue([]byte(`{"n":1}`))
	waitFor(t, 2*time.Second, func() bool { return len(d.queue) == 0 })
	d.Enqueue([]byte(`{"n":2}`))
	d.Enqueue([]byte(`{"n":3}`))

	if got := len(d.queue); got != 1 {
		t.Fatalf("queued tasks = %d, want 1", got)
	}
	queued := <-d.queue
	if string(queued.Body) != `{"n":3}` {
		t.Errorf("surviving task = %s, want newest", queued.Body)
	}
}

func TestEnqueueAfterStop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d, err := New(server.URL, testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	d.Start()
	d.Stop()

	if d.Enqueue([]byte(`{}`)) {
		t.Error("Enqueue() = true after Stop(), want false")
	}
}

func TestStopDrainsQueue(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d, err := New(server.URL, testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	d.Start()

	d.Enqueue([]byte(`{"n":1}`))
	d.Enqueue([]byte(`{"n":2}`))
	d.Stop()

	if got := calls.Load(); got != 2 {
		t.Errorf("delivered = %d before Stop returned, want 2", got)
	}
}

// =============================================================================
// Retry-After Parsing Tests
// =============================================================================

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		body   string
		want   time.Duration
	}{
		{
			name:   "Retry-After seconds",
			header: map[string]string{"Retry-After": "2"},
			want:   2 * time.Second,
		},
		{
			name:   "Retry-After fractional",
			header: map[string]string{"Retry-After": "0.5"},
			want:   500 * time.Millisecond,
		},
		{
			name:   "X-RateLimit-Reset-After fallback",
			header: map[string]string{"X-RateLimit-Reset-After": "1.5"},
			want:   1500 * time.Millisecond,
		},
		{
			name: "JSON body fallback",
			body: `{"message":"rate limited","retry_after":3.2}`,
			want: time.Duration(3.2 * float64(time.Second)),
		},
		{
			name: "nothing specified",
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			resp, err := http.Get(server.URL)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			defer resp.Body.Close()

			if got := parseRetryAfter(resp); got != tt.want {
				t.Errorf("parseRetryAfter() = %v, want %v", got, tt.want)
			}
		})
	}
}
