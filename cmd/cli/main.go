package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"boxoffice/pkg/logging"
)

const defaultBaseURL = "http://localhost:8080"

type tokenData struct {
	Token string `json:"token"`
}

func main() {
	global := flag.NewFlagSet("boxoffice", flag.ExitOnError)
	baseURL := global.String("api", defaultBaseURL, "API base URL")
	tokenPath := global.String("token", defaultTokenPath(), "token file path")
	if err := global.Parse(os.Args[1:]); err != nil {
		fatal("parse flags", err)
	}
	args := global.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	client := &http.Client{Timeout: 5 * time.Minute}

	switch args[0] {
	case "features":
		handleFeatures(ctx, client, *baseURL, args[1:])
	case "search":
		handleSearch(ctx, client, *baseURL, args[1:])
	case "dict":
		handleDict(ctx, client, *baseURL, args[1:])
	case "reconcile":
		handleReconcile(ctx, client, *baseURL, *tokenPath)
	case "token":
		handleToken(*tokenPath, args[1:])
	case "watch":
		wsURL, err := websocketURL(*baseURL, "/ws")
		if err != nil {
			fatal("ws url", err)
		}
		if err := watch(wsURL); err != nil {
			fatal("watch", err)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func handleFeatures(ctx context.Context, client *http.Client, baseURL string, args []string) {
	fs := flag.NewFlagSet("features", flag.ExitOnError)
	lead := fs.String("lead", "", "lead actor")
	director := fs.String("director", "", "director")
	genre := fs.String("genre", "", "genre")
	budget := fs.Float64("budget", 0, "production budget")
	_ = fs.Parse(args)

	q := url.Values{}
	q.Set("lead", *lead)
	q.Set("director", *director)
	q.Set("genre", *genre)
	q.Set("budget", strconv.FormatFloat(*budget, 'f', -1, 64))

	var out map[string]any
	if err := doJSON(ctx, client, http.MethodGet, baseURL+"/features?"+q.Encode(), "", nil, &out); err != nil {
		fatal("features", err)
	}
	printJSON(out)
}

func handleSearch(ctx context.Context, client *http.Client, baseURL string, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	dim := fs.String("dim", "lead", "lead, director or genre")
	prefix := fs.String("q", "", "prefix")
	limit := fs.Int("limit", 10, "max results")
	_ = fs.Parse(args)

	q := url.Values{}
	q.Set("field_name", *dim)
	q.Set("search_term", *prefix)
	q.Set("limit", strconv.Itoa(*limit))

	var out map[string]any
	if err := doJSON(ctx, client, http.MethodGet, baseURL+"/search?"+q.Encode(), "", nil, &out); err != nil {
		fatal("search", err)
	}
	printJSON(out)
}

func handleDict(ctx context.Context, client *http.Client, baseURL string, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: boxoffice dict <lead|director|genre>")
		os.Exit(1)
	}
	var out map[string]any
	if err := doJSON(ctx, client, http.MethodGet, baseURL+"/dictionaries/"+url.PathEscape(args[0]), "", nil, &out); err != nil {
		fatal("dict", err)
	}
	printJSON(out)
}

func handleReconcile(ctx context.Context, client *http.Client, baseURL, tokenPath string) {
	var out map[string]any
	err := doJSON(ctx, client, http.MethodPost, baseURL+"/admin/reconcile", mustToken(tokenPath), nil, &out)
	if out != nil {
		printJSON(out)
	}
	if err != nil {
		fatal("reconcile", err)
	}
}

func handleToken(tokenPath string, args []string) {
	switch {
	case len(args) == 2 && args[0] == "save":
		if err := saveToken(tokenPath, args[1]); err != nil {
			fatal("save token", err)
		}
		fmt.Println("token saved to", tokenPath)
	case len(args) == 1 && args[0] == "clear":
		if err := clearToken(tokenPath); err != nil {
			fatal("clear token", err)
		}
		fmt.Println("token cleared")
	default:
		fmt.Println("usage: boxoffice token <save JWT|clear>")
		os.Exit(1)
	}
}

func watch(wsURL string) error {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	logging.Component("cli").Info().Str("url", wsURL).Msg("watching events")
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		fmt.Println(string(msg))
	}
}

// doJSON sends payload and decodes the response into out. On a non-2xx
// status it still decodes a JSON body so callers can show it.
func doJSON(ctx context.Context, client *http.Client, method, endpoint, token string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil && resp.StatusCode < 300 {
			return err
		}
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", method, endpoint, resp.Status)
	}
	return nil
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("json", err)
	}
	fmt.Println(string(b))
}

func fatal(msg string, err error) {
	logging.Fatal().Err(err).Msg(msg)
}

func defaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.boxoffice-token.json"
	}
	return filepath.Join(home, ".boxoffice", "token.json")
}

func saveToken(path, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("empty token")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tokenData{Token: token}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var td tokenData
	if err := json.Unmarshal(data, &td); err != nil {
		return "", err
	}
	return strings.TrimSpace(td.Token), nil
}

// mustToken prefers BOXOFFICE_TOKEN over the token file.
func mustToken(path string) string {
	if tok := strings.TrimSpace(os.Getenv("BOXOFFICE_TOKEN")); tok != "" {
		return tok
	}
	token, err := readToken(path)
	if err != nil || token == "" {
		fatal("no token, run issue-token then `boxoffice token save`", err)
	}
	return token
}

func clearToken(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func websocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return (&url.URL{Scheme: scheme, Host: u.Host, Path: path}).String(), nil
}

func printUsage() {
	fmt.Println("boxoffice [-api URL] [-token PATH] <command> [flags]")
	fmt.Println("commands:")
	fmt.Println("  features -lead -director -genre -budget")
	fmt.Println("  search -dim -q -limit")
	fmt.Println("  dict <lead|director|genre>")
	fmt.Println("  reconcile")
	fmt.Println("  token save JWT|clear")
	fmt.Println("  watch")
}
