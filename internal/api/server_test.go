package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/framecast/internal/api/models"
	"github.com/smazurov/framecast/internal/capture"
	"github.com/smazurov/framecast/internal/events"
	"github.com/smazurov/framecast/internal/logging"
)

type fakeStatus struct {
	mu sync.Mutex
	st capture.Status
}

func (f *fakeStatus) Status() capture.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

func (f *fakeStatus) set(st capture.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st = st
}

func newTestServer(t *testing.T, opts *Options) (*httptest.Server, *fakeStatus) {
	t.Helper()
	status := &fakeStatus{st: capture.Status{
		Channel:  "cam0",
		Width:    640,
		Height:   480,
		Format:   "RGB24",
		Running:  true,
		Clients:  2,
		OnDemand: true,
	}}
	if opts == nil {
		opts = &Options{}
	}
	opts.Status = status
	if opts.EventBus == nil {
		opts.EventBus = events.New()
	}
	ts := httptest.NewServer(NewServer(opts).Handler())
	t.Cleanup(ts.Close)
	return ts, status
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts, status := newTestServer(t, nil)

	var health models.HealthData
	if code := getJSON(t, ts.URL+"/api/health", &health); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if health.Status != "ok" {
		t.Errorf("Expected ok, got %q", health.Status)
	}

	status.set(capture.Status{Channel: "cam0"})
	if code := getJSON(t, ts.URL+"/api/health", nil); code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 for a stopped channel, got %d", code)
	}
}

func TestStatus(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	var st capture.Status
	if code := getJSON(t, ts.URL+"/api/status", &st); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if st.Channel != "cam0" || st.Width != 640 || st.Clients != 2 || !st.OnDemand {
		t.Errorf("Unexpected status %+v", st)
	}
}

func TestBasicAuth(t *testing.T) {
	ts, _ := newTestServer(t, &Options{AuthUsername: "admin", AuthPassword: "secret"})

	if code := getJSON(t, ts.URL+"/api/status", nil); code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without credentials, got %d", code)
	}
	if code := getJSON(t, ts.URL+"/api/health", nil); code != http.StatusOK {
		t.Errorf("Expected health to skip auth, got %d", code)
	}

	tests := []struct {
		name     string
		user     string
		password string
		want     int
	}{
		{"valid", "admin", "secret", http.StatusOK},
		{"wrong password", "admin", "nope", http.StatusUnauthorized},
		{"wrong user", "root", "secret", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/status", nil)
			req.SetBasicAuth(tt.user, tt.password)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}

	// YWRtaW46c2VjcmV0 is admin:secret.
	if code := getJSON(t, ts.URL+"/api/status?auth=YWRtaW46c2VjcmV0", nil); code != http.StatusOK {
		t.Errorf("Expected query auth to be accepted, got %d", code)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/status", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected allow origin *, got %q", got)
	}
}

func TestLogsEndpoint(t *testing.T) {
	logging.Initialize(logging.Config{Level: "debug"})
	ts, _ := newTestServer(t, nil)

	logger := logging.GetLogger("apitest")
	logger.Debug("quiet detail")
	logger.Warn("disk nearly full", "free_mb", 12)

	var logs models.LogsData
	if code := getJSON(t, ts.URL+"/api/logs?module=apitest", &logs); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if logs.Count != 2 {
		t.Fatalf("Expected 2 entries, got %d: %+v", logs.Count, logs.Entries)
	}

	if code := getJSON(t, ts.URL+"/api/logs?module=apitest&level=warn", &logs); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if logs.Count != 1 || logs.Entries[0].Message != "disk nearly full" {
		t.Errorf("Expected only the warning, got %+v", logs.Entries)
	}

	if code := getJSON(t, ts.URL+"/api/logs?level=loud", nil); code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for an unknown level, got %d", code)
	}
}

func TestLogLevelsEndpoint(t *testing.T) {
	logging.Initialize(logging.Config{Level: "info"})
	t.Cleanup(func() { logging.SetLevels(logging.Config{Level: "info"}) })
	ts, _ := newTestServer(t, nil)
	logging.GetLogger("capture")

	body := strings.NewReader(`{"level":"warn","modules":{"capture":"debug"}}`)
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/logging", body)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var levels models.LogLevelsData
	if err := json.NewDecoder(resp.Body).Decode(&levels); err != nil {
		t.Fatal(err)
	}
	if levels.Levels["default"] != "warn" || levels.Levels["capture"] != "debug" {
		t.Errorf("Unexpected levels %v", levels.Levels)
	}

	bad := strings.NewReader(`{"level":"info","modules":{"capture":"chatty"}}`)
	req, _ = http.NewRequest(http.MethodPut, ts.URL+"/api/logging", bad)
	req.Header.Set("Content-Type", "application/json")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for an invalid module level, got %d", resp2.StatusCode)
	}
}

// readSSE returns the next event name and data payload from r.
func readSSE(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read SSE stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			return name, data
		}
	}
}

func TestEventsStream(t *testing.T) {
	bus := events.New()
	ts, _ := newTestServer(t, &Options{EventBus: bus})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Expected text/event-stream, got %q", ct)
	}
	reader := bufio.NewReader(resp.Body)

	name, data := readSSE(t, reader)
	if name != "status" || !strings.Contains(data, `"channel":"cam0"`) {
		t.Fatalf("Expected initial status event, got %s %s", name, data)
	}

	// The handler subscribes after the status event; publish until it lands.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				bus.Publish(events.ClientCountChangedEvent{Channel: "cam0", Clients: 3, Previous: 2})
			}
		}
	}()

	name, data = readSSE(t, reader)
	if name != "client-count" || !strings.Contains(data, `"clients":3`) {
		t.Errorf("Expected client-count event, got %s %s", name, data)
	}
}

func TestPreviewRequiresAuth(t *testing.T) {
	preview := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	ts, _ := newTestServer(t, &Options{AuthUsername: "admin", AuthPassword: "secret", Preview: preview})

	if code := getJSON(t, ts.URL+"/api/preview", nil); code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without credentials, got %d", code)
	}
	if code := getJSON(t, ts.URL+"/api/preview?auth=YWRtaW46c2VjcmV0", nil); code != http.StatusTeapot {
		t.Errorf("Expected the preview handler to run, got %d", code)
	}
}
