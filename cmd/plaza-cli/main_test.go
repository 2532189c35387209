package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

func TestUsageWithoutCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Usage: plaza-cli") {
		t.Fatalf("usage not printed: %q", stderr.String())
	}
}

func TestSwapRequiresFlags(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--url", "http://127.0.0.1:1", "swap", "--pair", "component1x", "--resource", "BASE"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "--amount is required") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestSwapPostsBucket(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"output":{"amount":"750"}}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := run([]string{"--url", srv.URL, "swap", "--pair", "component1x", "--resource", "BASE", "--amount", "3000"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}
	if gotPath != "/v1/pairs/component1x/swap" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotBody["resource"] != "BASE" || gotBody["amount"] != "3000" {
		t.Fatalf("unexpected body %v", gotBody)
	}
	if !strings.Contains(stdout.String(), `"amount": "750"`) {
		t.Fatalf("response not printed: %q", stdout.String())
	}
}

func TestAddLiquidityCoFlagsTogether(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"add-liquidity", "--pair", "component1x", "--resource", "BASE", "--amount", "1", "--co-amount", "2"}, &stdout, &stderr)
	if code != 1 || !strings.Contains(stderr.String(), "must be set together") {
		t.Fatalf("expected co flag error, got %d %q", code, stderr.String())
	}
}

func TestErrorStatusExitsNonZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found","message":"pair: not found"}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	if code := run([]string{"--url", srv.URL, "pair", "component1x"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "not_found") {
		t.Fatalf("error body not printed: %q", stderr.String())
	}
}

func TestWatchPrintsFrames(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"pair.swapped","pair":"component1x"}`))
		_ = conn.Close(websocket.StatusNormalClosure, "done")
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := &client{endpoint: srv.URL, stdout: &stdout, stderr: &stderr}
	if code := c.watch(ctx, "component1x"); code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}
	if gotPath != "/v1/pairs/component1x/stream" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if !strings.Contains(stdout.String(), `"type":"pair.swapped"`) {
		t.Fatalf("frame not printed: %q", stdout.String())
	}
}

func TestTokenSentAsBearer(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"base":{"amount":"0"},"quote":{"amount":"0"}}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := run([]string{"--token", "abc.def.ghi", "--url", srv.URL, "collect-fees", "component1x"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}
	if gotAuth != "Bearer abc.def.ghi" {
		t.Fatalf("unexpected Authorization header %q", gotAuth)
	}
}

func TestExportTradesWritesFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/pairs/component1x/trades/export" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Row-Count", "2")
		_, _ = w.Write([]byte("PAR1fakePAR1"))
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "trades.parquet")
	var stdout, stderr bytes.Buffer
	code := run([]string{"--url", srv.URL, "export-trades", "--pair", "component1x", "--out", out}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(data) != "PAR1fakePAR1" {
		t.Fatalf("unexpected file contents %q", data)
	}
	if !strings.Contains(stdout.String(), "wrote 2 rows") {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
}
