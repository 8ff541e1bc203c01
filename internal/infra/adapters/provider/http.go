package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"uniai-studio/internal/domain"
)

// maxResponseBytes caps what we read from a provider answer.
const maxResponseBytes = 16 << 20

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// doJSON sends body as JSON (nil for no body) and returns the status code and
// the raw response.
func doJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body any) (int, []byte, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func bearer(key string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + key}
}

func isSuccess(code int) bool { return code >= 200 && code < 300 }

// errorPaths are the places providers put a human readable failure.
var errorPaths = []string{"error.message", "error", "message", "msg", "data.msg", "data.error", "detail"}

func upstreamMessage(raw []byte) string {
	if gjson.ValidBytes(raw) {
		for _, p := range errorPaths {
			if v := gjson.GetBytes(raw, p); v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
		}
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}

func httpError(provider string, code int, raw []byte) error {
	msg := upstreamMessage(raw)
	if msg == "" {
		msg = http.StatusText(code)
	}
	return &domain.ProviderError{Provider: provider, StatusCode: code, Message: msg}
}

func transportError(provider string, err error) error {
	return &domain.ProviderError{Provider: provider, Message: err.Error(), Err: err}
}
