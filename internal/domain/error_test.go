package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	wrapped := func(err error) error { return fmt.Errorf("dispatch: %w", err) }

	cases := []struct {
		name     string
		err      error
		kind     string
		client   bool
		provider bool
	}{
		{"configuration", &ConfigurationError{Provider: "zimage", Key: "zimage_api_key"}, "configuration", true, false},
		{"validation", &ValidationError{Field: "prompt", Reason: "required"}, "validation", true, false},
		{"provider", wrapped(&ProviderError{Provider: "nanobanana", StatusCode: 502, Message: "bad gateway"}), "provider", false, true},
		{"normalization is a provider variant", wrapped(&NormalizationError{Provider: "duomi"}), "normalization", false, true},
		{"timeout", wrapped(&TimeoutError{Provider: "duomi", Attempts: 60}), "timeout", false, false},
		{"plain", errors.New("boom"), "internal", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ErrorKind(tc.err); got != tc.kind {
				t.Errorf("kind = %q, want %q", got, tc.kind)
			}
			if got := IsClientError(tc.err); got != tc.client {
				t.Errorf("client = %v, want %v", got, tc.client)
			}
			if got := IsProviderError(tc.err); got != tc.provider {
				t.Errorf("provider = %v, want %v", got, tc.provider)
			}
		})
	}
}

func TestPublicMessage(t *testing.T) {
	if got := PublicMessage(&TimeoutError{Provider: "duomi", Attempts: 60}); got != "generation timed out" {
		t.Errorf("timeout message leaked diagnostics: %q", got)
	}
	if got := PublicMessage(&NormalizationError{Provider: "x"}); got != "provider returned no images" {
		t.Errorf("normalization message = %q", got)
	}
	got := PublicMessage(&ProviderError{Provider: "duomi", Message: "content policy"})
	if !strings.Contains(got, "content policy") {
		t.Errorf("provider message should carry upstream text, got %q", got)
	}
	long := PublicMessage(errors.New(strings.Repeat("x", 2000)))
	if len(long) != maxPublicMessage {
		t.Errorf("message not truncated: %d", len(long))
	}
	if PublicMessage(nil) != "" {
		t.Error("nil error should map to empty message")
	}
}

func TestTimeoutErrorUnwrap(t *testing.T) {
	cause := errors.New("context deadline exceeded")
	err := fmt.Errorf("wrap: %w", &TimeoutError{Provider: "p", Attempts: 3, Err: cause})
	if !errors.Is(err, cause) {
		t.Fatal("TimeoutError must unwrap to its cause")
	}
}
