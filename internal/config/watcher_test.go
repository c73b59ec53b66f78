package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type testConfig struct {
	Name  string `toml:"name"`
	Value int    `toml:"value"`
}

func loadTestConfig(path string) (testConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return testConfig{}, err
	}
	var cfg testConfig
	err = toml.Unmarshal(data, &cfg)
	return cfg, err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// startTestWatcher writes the initial file and starts a watcher on it.
func startTestWatcher(t *testing.T, initial string, opts ...WatcherOption[testConfig]) (*Watcher[testConfig], string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "framecast.toml")
	writeTestFile(t, path, initial)

	opts = append([]WatcherOption[testConfig]{WithDebounce[testConfig](50 * time.Millisecond)}, opts...)
	w := NewConfigWatcher(path, loadTestConfig, newTestLogger(), opts...)
	return w, path
}

func mustStart(t *testing.T, w *Watcher[testConfig]) {
	t.Helper()
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("watcher.Stop failed: %v", err)
		}
	})
	time.Sleep(50 * time.Millisecond)
}

func TestConfigWatcher_BasicReload(t *testing.T) {
	w, path := startTestWatcher(t, "name = \"initial\"\nvalue = 1\n")
	received := make(chan testConfig, 1)
	w.OnReload(func(cfg testConfig) { received <- cfg })
	mustStart(t, w)

	writeTestFile(t, path, "name = \"updated\"\nvalue = 42\n")

	select {
	case cfg := <-received:
		if cfg.Name != "updated" || cfg.Value != 42 {
			t.Errorf("got %+v, want name=updated, value=42", cfg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}
}

func TestConfigWatcher_AtomicRename(t *testing.T) {
	w, path := startTestWatcher(t, "value = 1\n")
	received := make(chan testConfig, 1)
	w.OnReload(func(cfg testConfig) { received <- cfg })
	mustStart(t, w)

	// Editors often write a sibling and rename it over the original.
	tmp := path + ".swp"
	writeTestFile(t, tmp, "value = 7\n")
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Value != 7 {
			t.Errorf("expected value=7, got %d", cfg.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload after rename")
	}
}

func TestConfigWatcher_IgnoresSiblings(t *testing.T) {
	w, path := startTestWatcher(t, "value = 1\n")
	var count atomic.Int32
	w.OnReload(func(testConfig) { count.Add(1) })
	mustStart(t, w)

	writeTestFile(t, filepath.Join(filepath.Dir(path), "other.toml"), "value = 2\n")
	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected no reload for another file, got %d", got)
	}
}

func TestConfigWatcher_MultipleHandlers(t *testing.T) {
	w, path := startTestWatcher(t, "name = \"test\"\nvalue = 1\n")

	var (
		mu      sync.Mutex
		configs []testConfig
	)
	for range 3 {
		w.OnReload(func(cfg testConfig) {
			mu.Lock()
			configs = append(configs, cfg)
			mu.Unlock()
		})
	}
	mustStart(t, w)

	writeTestFile(t, path, "name = \"new\"\nvalue = 2\n")
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(configs) != 3 {
		t.Fatalf("expected 3 handlers called, got %d", len(configs))
	}
	for i, cfg := range configs {
		if cfg.Name != "new" || cfg.Value != 2 {
			t.Errorf("handler %d got wrong config: %+v", i, cfg)
		}
	}
}

func TestConfigWatcher_Unsubscribe(t *testing.T) {
	w, path := startTestWatcher(t, "value = 1\n")

	var count1, count2 atomic.Int32
	w.OnReload(func(testConfig) { count1.Add(1) })
	unsub := w.OnReload(func(testConfig) { count2.Add(1) })
	mustStart(t, w)

	writeTestFile(t, path, "value = 10\n")
	time.Sleep(300 * time.Millisecond)
	unsub()

	writeTestFile(t, path, "value = 20\n")
	time.Sleep(300 * time.Millisecond)

	if got := count1.Load(); got != 2 {
		t.Errorf("handler1: expected 2 calls, got %d", got)
	}
	if got := count2.Load(); got != 1 {
		t.Errorf("handler2: expected 1 call, got %d", got)
	}
}

func TestConfigWatcher_ErrorHandler(t *testing.T) {
	errorReceived := make(chan error, 1)
	w, path := startTestWatcher(t, "value = 1\n",
		WithErrorHandler[testConfig](func(err error) { errorReceived <- err }))
	configReceived := make(chan testConfig, 1)
	w.OnReload(func(cfg testConfig) { configReceived <- cfg })
	mustStart(t, w)

	writeTestFile(t, path, "invalid toml [[[")

	select {
	case <-errorReceived:
	case <-configReceived:
		t.Fatal("config handler should not be called on error")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error handler")
	}
}

func TestConfigWatcher_Debounce(t *testing.T) {
	w, path := startTestWatcher(t, "value = 0\n", WithDebounce[testConfig](200*time.Millisecond))

	var count, lastValue atomic.Int32
	w.OnReload(func(cfg testConfig) {
		count.Add(1)
		lastValue.Store(int32(cfg.Value))
	})
	mustStart(t, w)

	for i := 1; i <= 5; i++ {
		writeTestFile(t, path, fmt.Sprintf("value = %d\n", i))
		time.Sleep(50 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 debounced call, got %d", got)
	}
	if got := lastValue.Load(); got != 5 {
		t.Errorf("expected final value 5, got %d", got)
	}
}

func TestConfigWatcher_Stop(t *testing.T) {
	w, path := startTestWatcher(t, "value = 1\n")
	var count atomic.Int32
	w.OnReload(func(testConfig) { count.Add(1) })

	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("expected second Start to fail")
	}
	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}

	writeTestFile(t, path, "value = 99\n")
	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected 0 calls after stop, got %d", got)
	}
}

func TestConfigWatcher_ContextCancel(t *testing.T) {
	w, path := startTestWatcher(t, "value = 1\n")
	var count atomic.Int32
	w.OnReload(func(testConfig) { count.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	cancel()
	time.Sleep(50 * time.Millisecond)

	writeTestFile(t, path, "value = 99\n")
	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected 0 calls after cancel, got %d", got)
	}
}
