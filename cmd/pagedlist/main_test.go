package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/pagedlist/internal/testutil"
	"github.com/Sternrassler/pagedlist/pkg/pager"
	"github.com/Sternrassler/pagedlist/pkg/pagination"
	"github.com/Sternrassler/pagedlist/pkg/source"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers and readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func newSyncBuffer() *syncBuffer {
	return &syncBuffer{}
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if body := w.Body.String(); body != "OK" {
		t.Errorf("Expected body 'OK', got '%s'", body)
	}
}

func TestMetricsServer(t *testing.T) {
	srv := newMetricsServer(":0")

	for _, path := range []string{"/health", "/metrics"} {
		w := httptest.NewRecorder()
		srv.Handler.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("metrics output should include the default Go collectors")
	}
}

func TestRunBrowse(t *testing.T) {
	src := source.Slice(testutil.Items(1, 12))
	out := newSyncBuffer()

	in := strings.NewReader("n\ng 3\n")
	if err := runBrowse(context.Background(), src, pager.DefaultConfig(5), in, out); err != nil {
		t.Fatalf("runBrowse() error = %v", err)
	}

	got := out.String()
	if !strings.Contains(got, browseHelp) {
		t.Error("help line missing")
	}
	last := got[strings.LastIndex(got, "page "):]
	if !strings.HasPrefix(last, "page 3: 2 items") {
		t.Errorf("final render = %q, want page 3 with 2 items\nfull output:\n%s", last, got)
	}
	if !strings.Contains(last, "item 12") {
		t.Errorf("final render missing item 12:\n%s", last)
	}
}

func TestRunBrowse_Commands(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unknown command prints help", "x\n", browseHelp},
		{"go without page", "g\n", "usage: g <page>"},
		{"go with bad page", "g two\n", `invalid page "two"`},
		{"prev clamps to first page", "p\np\n", "page 1: 5 items"},
		{"quit", "q\n", browseHelp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := newSyncBuffer()
			src := source.Slice(testutil.Items(1, 12))

			err := runBrowse(context.Background(), src, pager.DefaultConfig(5), strings.NewReader(tt.input), out)
			if err != nil {
				t.Fatalf("runBrowse() error = %v", err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out.String())
			}
		})
	}
}

func TestRunBrowse_Failure(t *testing.T) {
	src := source.ReadFunc(func(ctx context.Context, offset, limit int) ([]source.Item, error) {
		return nil, source.StatusError(503, "maintenance")
	})
	out := newSyncBuffer()

	if err := runBrowse(context.Background(), src, pager.DefaultConfig(5), strings.NewReader(""), out); err != nil {
		t.Fatalf("runBrowse() error = %v", err)
	}
	if !strings.Contains(out.String(), "page 1: failed: fetch page 1: item source returned status 503: maintenance") {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestRunBrowse_Cancel(t *testing.T) {
	src := testutil.NewControlledSource()
	src.HonorCancel = true
	inR, inW := io.Pipe()
	out := newSyncBuffer()

	done := make(chan error, 1)
	go func() {
		done <- runBrowse(context.Background(), src, pager.DefaultConfig(5), inR, out)
	}()

	src.Next(t) // page 1 in flight
	io.WriteString(inW, "c\n")
	inW.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runBrowse() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runBrowse did not return")
	}
	if !strings.Contains(out.String(), "page 1: failed: fetch page 1: fetch canceled") {
		t.Errorf("output:\n%s", out.String())
	}
}

// endlessReader yields "n\n" forever without blocking.
type endlessReader struct{}

func (endlessReader) Read(p []byte) (int, error) {
	for i := range p {
		if i%2 == 0 {
			p[i] = 'n'
		} else {
			p[i] = '\n'
		}
	}
	return len(p) - len(p)%2, nil
}

func TestReadLines_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lines := readLines(ctx, endlessReader{})

	if line := <-lines; line != "n" {
		t.Fatalf("line = %q, want n", line)
	}
	cancel()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("line reader did not stop after cancel")
		}
	}
}

func TestRunBrowse_QuitWithPendingInput(t *testing.T) {
	src := source.Slice(testutil.Items(1, 12))

	done := make(chan error, 1)
	go func() {
		in := io.MultiReader(strings.NewReader("q\n"), endlessReader{})
		done <- runBrowse(context.Background(), src, pager.DefaultConfig(5), in, io.Discard)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runBrowse() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runBrowse did not return on q")
	}
}

func TestRunExport(t *testing.T) {
	src := source.Slice(testutil.Items(1, 7))
	cfg := pagination.Config{PageSize: 3, MaxConcurrency: 2, Timeout: time.Second, MaxPages: 10}

	tests := []struct {
		name     string
		from, to int
		wantIDs  string
	}{
		{"all pages", 1, 0, "1,2,3,4,5,6,7"},
		{"range", 2, 3, "4,5,6,7"},
		{"range past the end", 3, 5, "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := runExport(context.Background(), src, cfg, tt.from, tt.to, &out); err != nil {
				t.Fatalf("runExport() error = %v", err)
			}
			if got := decodeIDs(t, &out); got != tt.wantIDs {
				t.Errorf("ids = %s, want %s", got, tt.wantIDs)
			}
		})
	}

	if err := runExport(context.Background(), src, cfg, 2, 0, io.Discard); err == nil {
		t.Error("--from without --to should fail")
	}
}

func TestRunExport_PartialFailure(t *testing.T) {
	boom := errors.New("boom")
	items := testutil.Items(1, 9)
	src := source.ReadFunc(func(ctx context.Context, offset, limit int) ([]source.Item, error) {
		if offset >= 6 {
			return nil, boom
		}
		return source.Slice(items).Read(ctx, offset, limit)
	})
	cfg := pagination.Config{PageSize: 3, MaxConcurrency: 1, Timeout: time.Second, MaxPages: 10}

	var out bytes.Buffer
	err := runExport(context.Background(), src, cfg, 1, 0, &out)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
	if got := decodeIDs(t, &out); got != "1,2,3,4,5,6" {
		t.Errorf("ids = %s, want the pages read before the failure", got)
	}
}

func TestExportCommand(t *testing.T) {
	mock := testutil.NewMockItemServer(8)
	defer mock.Close()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{
		"--base-url", mock.URL(),
		"--page-size", "3",
		"--log-level", "disabled",
		"export",
	})

	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := decodeIDs(t, &out); got != "1,2,3,4,5,6,7,8" {
		t.Errorf("ids = %s", got)
	}
	if got := mock.GetLastQuery("limit"); got != "3" {
		t.Errorf("limit = %q, want 3", got)
	}
}

func TestExportCommand_MissingBaseURL(t *testing.T) {
	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--log-level", "disabled", "export"})

	err := root.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "api.base_url is required") {
		t.Errorf("Execute() error = %v, want missing base url", err)
	}
}

func TestRootCommand_HelpSkipsInit(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	// Nothing listens on port 1; connecting would fail.
	root.SetArgs([]string{"--redis-addr", "127.0.0.1:1", "--log-level", "disabled"})

	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "Browse and export paginated item lists") {
		t.Errorf("help output missing:\n%s", out.String())
	}
}

func TestExportCommand_RedisUnavailable(t *testing.T) {
	mock := testutil.NewMockItemServer(3)
	defer mock.Close()

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--base-url", mock.URL(), "--redis-addr", "127.0.0.1:1", "--log-level", "disabled", "export"})

	err := root.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "connect to redis") {
		t.Errorf("Execute() error = %v, want redis connection error", err)
	}
}

func decodeIDs(t *testing.T, r io.Reader) string {
	t.Helper()

	var ids []string
	dec := json.NewDecoder(r)
	for dec.More() {
		var item source.Item
		if err := dec.Decode(&item); err != nil {
			t.Fatalf("decode output: %v", err)
		}
		ids = append(ids, item.ID)
	}
	return strings.Join(ids, ",")
}
