package cli

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iambrandonn/parley/internal/config"
	"github.com/iambrandonn/parley/internal/ledger"
	"github.com/iambrandonn/parley/internal/protocol"
	"github.com/iambrandonn/parley/internal/toolapi"
)

type stubEngine struct {
	result  protocol.Result
	session []ledger.Entry
	history []ledger.Entry
}

func (s *stubEngine) Submit(ctx context.Context, req *protocol.Request) protocol.Result {
	return s.result
}
func (s *stubEngine) SetProcessing(on bool)          {}
func (s *stubEngine) SessionEntries() []ledger.Entry { return s.session }
func (s *stubEngine) HistoryEntries() []ledger.Entry { return s.history }

func startStubServer(t *testing.T, engine toolapi.Engine) *httptest.Server {
	t.Helper()
	handler := toolapi.NewHandler(engine, slog.New(slog.DiscardHandler))
	srv := httptest.NewServer(handler.Router())
	t.Cleanup(srv.Close)
	return srv
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestAskCommandPrintsAnswer(t *testing.T) {
	srv := startStubServer(t, &stubEngine{result: protocol.Result{Value: "ship it"}})

	out, err := runCommand(t, "ask", "Deploy", "now?", "--server", srv.URL)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.Contains(out, "ship it") {
		t.Errorf("expected answer in output, got %q", out)
	}
}

func TestAskCommandQueueProvenance(t *testing.T) {
	srv := startStubServer(t, &stubEngine{result: protocol.Result{Value: "yes", Queue: true}})

	out, err := runCommand(t, "ask", "Proceed?", "--server", srv.URL)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.Contains(out, "(answered from queue)") {
		t.Errorf("expected queue provenance in output, got %q", out)
	}
}

func TestAskCommandCancelled(t *testing.T) {
	srv := startStubServer(t, &stubEngine{result: protocol.Result{
		Cancelled: true,
		Value:     protocol.SentinelOperatorCancelled,
	}})

	out, err := runCommand(t, "ask", "Proceed?", "--server", srv.URL)
	if err != nil {
		t.Fatalf("cancellation is an outcome, not an error: %v", err)
	}
	if !strings.Contains(out, "cancelled: "+protocol.SentinelOperatorCancelled) {
		t.Errorf("expected cancellation notice, got %q", out)
	}
}

func TestAskCommandUnreachableServer(t *testing.T) {
	_, err := runCommand(t, "ask", "Proceed?", "--server", "http://127.0.0.1:1")
	if err == nil {
		t.Fatal("expected error for unreachable engine")
	}
}

func TestHistoryCommand(t *testing.T) {
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	srv := startStubServer(t, &stubEngine{
		history: []ledger.Entry{
			{ID: "h1", Prompt: "Deploy?", Response: "yes", Status: ledger.StatusCompleted, CreatedAt: created, ViaQueue: true},
		},
	})

	out, err := runCommand(t, "history", "--server", srv.URL)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, want := range []string{"[completed]", "q: Deploy?", "a: yes", "(queue)"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got %q", want, out)
		}
	}
}

func TestHistoryCommandSessionFlag(t *testing.T) {
	srv := startStubServer(t, &stubEngine{
		session: []ledger.Entry{
			{ID: "s1", Prompt: "Stop?", Response: protocol.SentinelOperatorCancelled, Status: ledger.StatusCancelled},
		},
	})

	out, err := runCommand(t, "history", "--server", srv.URL, "--session")
	if err != nil {
		t.Fatalf("history --session: %v", err)
	}
	if !strings.Contains(out, "[cancelled]") {
		t.Errorf("expected cancelled entry, got %q", out)
	}
}

func TestHistoryCommandEmpty(t *testing.T) {
	srv := startStubServer(t, &stubEngine{})

	out, err := runCommand(t, "history", "--server", srv.URL, "--session=false")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "no entries") {
		t.Errorf("expected empty notice, got %q", out)
	}
}

func TestLoadOrCreateConfigExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	cfg := config.GenerateDefault()
	cfg.Listen = "127.0.0.1:7777"
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatal(err)
	}

	loaded, loadedPath, err := loadOrCreateConfig(path, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loadedPath != path {
		t.Errorf("expected path %s, got %s", path, loadedPath)
	}
	if loaded.Listen != "127.0.0.1:7777" {
		t.Errorf("listen not loaded: %q", loaded.Listen)
	}
}

func TestLoadOrCreateConfigGeneratesDefault(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, path, err := loadOrCreateConfig("", slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Version == "" {
		t.Error("expected default config")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config not written: %v", err)
	}
}

func TestResolveDataDir(t *testing.T) {
	cfg := config.GenerateDefault()
	cfg.DataDir = ".parley"
	got := resolveDataDir(cfg, "/srv/project/parley.json")
	if got != "/srv/project/.parley" {
		t.Errorf("relative data dir not anchored to config: %s", got)
	}

	cfg.DataDir = "/var/lib/parley"
	if got := resolveDataDir(cfg, "/srv/project/parley.json"); got != "/var/lib/parley" {
		t.Errorf("absolute data dir rewritten: %s", got)
	}
}
