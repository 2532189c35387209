package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"
	"nhooyr.io/websocket"
)

const defaultEndpoint = "http://localhost:7080"

var httpClient = &http.Client{Timeout: 15 * time.Second}

var globalFlags = map[string]bool{"--url": true, "-url": true, "--token": true, "-token": true}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	endpoint := defaultEndpoint
	if env := strings.TrimSpace(os.Getenv("PLAZA_URL")); env != "" {
		endpoint = env
	}
	token := strings.TrimSpace(os.Getenv("PLAZA_TOKEN"))
	for len(args) >= 2 && globalFlags[args[0]] {
		switch strings.TrimLeft(args[0], "-") {
		case "url":
			endpoint = args[1]
		case "token":
			token = args[1]
		}
		args = args[2:]
	}
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	c := &client{endpoint: strings.TrimRight(endpoint, "/"), token: token, stdout: stdout, stderr: stderr}

	switch args[0] {
	case "pairs":
		return c.get("/v1/pairs")
	case "pair":
		if len(args) < 2 {
			return printError(stderr, "pair address required")
		}
		return c.get("/v1/pairs/" + url.PathEscape(args[1]))
	case "quote", "swap":
		return c.runBucketCommand(args[0], args[1:], "/"+args[0])
	case "add-liquidity":
		return c.runAddLiquidity(args[1:])
	case "remove-liquidity":
		return c.runBucketCommand("remove-liquidity", args[1:], "/liquidity/remove")
	case "collect-fees":
		if len(args) < 2 {
			return printError(stderr, "pair address required")
		}
		return c.post("/v1/pairs/"+url.PathEscape(args[1])+"/fees/collect", nil)
	case "trades":
		return c.runTrades(args[1:])
	case "export-trades":
		return c.runExport(args[1:])
	case "watch":
		if len(args) < 2 {
			return printError(stderr, "pair address required")
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return c.watch(ctx, args[1])
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.Join([]string{
		"Usage: plaza-cli [--url URL] [--token JWT] <command> [flags]",
		"",
		"Commands:",
		"  pairs                                         list instantiated pairs",
		"  pair <pair>                                   show a pair",
		"  quote --pair P --resource R --amount A        price a swap",
		"  swap --pair P --resource R --amount A         execute a swap",
		"  add-liquidity --pair P --resource R --amount A [--co-resource R --co-amount A]",
		"  remove-liquidity --pair P --resource U --amount A",
		"  collect-fees <pair>                           withdraw the fee vault (operator token)",
		"  trades --pair P [--limit N]                   list journalled swaps",
		"  export-trades --pair P --out FILE             save trade history as parquet (operator token)",
		"  watch <pair>                                  stream pair events",
	}, "\n")
}

type client struct {
	endpoint string
	token    string
	stdout   io.Writer
	stderr   io.Writer
}

type bucketFlags struct {
	pair     string
	resource string
	amount   string
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func (b *bucketFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&b.pair, "pair", "", "pair component address")
	fs.StringVar(&b.resource, "resource", "", "resource address or symbol")
	fs.StringVar(&b.amount, "amount", "", "decimal amount")
}

func (b *bucketFlags) validate() error {
	switch {
	case strings.TrimSpace(b.pair) == "":
		return fmt.Errorf("--pair is required")
	case strings.TrimSpace(b.resource) == "":
		return fmt.Errorf("--resource is required")
	case strings.TrimSpace(b.amount) == "":
		return fmt.Errorf("--amount is required")
	}
	return nil
}

func (b *bucketFlags) body() map[string]any {
	return map[string]any{"resource": b.resource, "amount": b.amount}
}

func (c *client) runBucketCommand(name string, args []string, suffix string) int {
	fs := newFlagSet(name, c.stderr)
	var flags bucketFlags
	flags.register(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := flags.validate(); err != nil {
		return printError(c.stderr, err.Error())
	}
	return c.post("/v1/pairs/"+url.PathEscape(flags.pair)+suffix, flags.body())
}

func (c *client) runAddLiquidity(args []string) int {
	fs := newFlagSet("add-liquidity", c.stderr)
	var (
		flags      bucketFlags
		coResource string
		coAmount   string
	)
	flags.register(fs)
	fs.StringVar(&coResource, "co-resource", "", "co-liquidity resource for short pools")
	fs.StringVar(&coAmount, "co-amount", "", "co-liquidity amount")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := flags.validate(); err != nil {
		return printError(c.stderr, err.Error())
	}
	body := flags.body()
	if coResource != "" || coAmount != "" {
		if coResource == "" || coAmount == "" {
			return printError(c.stderr, "--co-resource and --co-amount must be set together")
		}
		body["co"] = map[string]any{"resource": coResource, "amount": coAmount}
	}
	return c.post("/v1/pairs/"+url.PathEscape(flags.pair)+"/liquidity", body)
}

func (c *client) runTrades(args []string) int {
	fs := newFlagSet("trades", c.stderr)
	var (
		pair  string
		limit int
	)
	fs.StringVar(&pair, "pair", "", "pair component address")
	fs.IntVar(&limit, "limit", 20, "maximum number of trades")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(pair) == "" {
		return printError(c.stderr, "--pair is required")
	}
	return c.get(fmt.Sprintf("/v1/pairs/%s/trades?limit=%d", url.PathEscape(pair), limit))
}

func (c *client) runExport(args []string) int {
	fs := newFlagSet("export-trades", c.stderr)
	var pair, out string
	fs.StringVar(&pair, "pair", "", "pair component address")
	fs.StringVar(&out, "out", "", "destination parquet file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(pair) == "" || strings.TrimSpace(out) == "" {
		return printError(c.stderr, "--pair and --out are required")
	}
	req, err := http.NewRequest(http.MethodGet, c.endpoint+"/v1/pairs/"+url.PathEscape(pair)+"/trades/export", nil)
	if err != nil {
		return printError(c.stderr, err.Error())
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return printError(c.stderr, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(c.stderr, "Error: %s\n%s\n", resp.Status, bytes.TrimSpace(data))
		return 1
	}
	f, err := os.Create(out)
	if err != nil {
		return printError(c.stderr, err.Error())
	}
	written, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return printError(c.stderr, err.Error())
	}
	fmt.Fprintf(c.stdout, "wrote %d rows (%d bytes) to %s\n", rowCount(resp.Header), written, out)
	return 0
}

func rowCount(h http.Header) int {
	n, _ := strconv.Atoi(h.Get("X-Row-Count"))
	return n
}

func (c *client) get(path string) int {
	return c.do(http.MethodGet, path, nil)
}

func (c *client) post(path string, body any) int {
	return c.do(http.MethodPost, path, body)
}

func (c *client) do(method, path string, body any) int {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return printError(c.stderr, err.Error())
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.endpoint+path, reader)
	if err != nil {
		return printError(c.stderr, err.Error())
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return printError(c.stderr, err.Error())
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return printError(c.stderr, err.Error())
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(bytes.TrimSpace(data))
	}
	if resp.StatusCode >= 400 {
		fmt.Fprintf(c.stderr, "Error: %s\n%s\n", resp.Status, pretty.String())
		return 1
	}
	fmt.Fprintln(c.stdout, pretty.String())
	return 0
}

// watch prints every event frame pushed for pair until the stream closes or
// ctx is cancelled.
func (c *client) watch(ctx context.Context, pair string) int {
	wsURL := "ws" + strings.TrimPrefix(c.endpoint, "http") + "/v1/pairs/" + url.PathEscape(pair) + "/stream"
	conn, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return printError(c.stderr, fmt.Sprintf("%s: %v", resp.Status, err))
		}
		return printError(c.stderr, err.Error())
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	indent := isTerminal(c.stdout)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				return 0
			}
			return printError(c.stderr, err.Error())
		}
		frame := bytes.TrimSpace(data)
		if indent {
			var pretty bytes.Buffer
			if json.Indent(&pretty, frame, "", "  ") == nil {
				frame = pretty.Bytes()
			}
		}
		fmt.Fprintln(c.stdout, string(frame))
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printError(stderr io.Writer, msg string) int {
	fmt.Fprintf(stderr, "Error: %s\n", msg)
	return 1
}
