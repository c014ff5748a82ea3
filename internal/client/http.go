package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dreamware/lectern/internal/coordinator"
)

var httpClient = &http.Client{Timeout: 5 * time.Second}

// PostJSON sends body as JSON to url and decodes the response into out
// unless out is nil. Non-2xx responses are errors carrying the response
// body text.
func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(req, out)
}

// GetJSON fetches url and decodes the JSON response into out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return do(req, out)
}

func do(req *http.Request, out any) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("http %s %s: %d %s", req.Method, req.URL, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusRequest is the body of POST /status. A nil Status clears it.
type StatusRequest struct {
	Status *string `json:"status"`
}

// FetchState returns the session snapshot served at base + "/state".
func FetchState(ctx context.Context, base string) (coordinator.Snapshot, error) {
	var snap coordinator.Snapshot
	if err := GetJSON(ctx, strings.TrimRight(base, "/")+"/state", &snap); err != nil {
		return coordinator.Snapshot{}, err
	}
	return snap, nil
}

// PostStatus sets or clears the backend status through base + "/status".
func PostStatus(ctx context.Context, base string, status *string) error {
	return PostJSON(ctx, strings.TrimRight(base, "/")+"/status", StatusRequest{Status: status}, nil)
}

// HTTPBase derives the operator HTTP base URL from a WebSocket URL:
// ws://host:8080/ws becomes http://host:8080.
func HTTPBase(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/ws")
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), nil
}
