package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected ErrorClass
	}{
		{400, ErrorClassClient},
		{401, ErrorClassClient},
		{403, ErrorClassClient},
		{404, ErrorClassClient},
		{410, ErrorClassClient},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{502, ErrorClassServer},
		{503, ErrorClassServer},
		{200, ""},
		{304, ""},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			if got := ClassifyStatus(tt.status); got != tt.expected {
				t.Errorf("ClassifyStatus(%d) = %q, want %q", tt.status, got, tt.expected)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected bool
	}{
		{ErrorClassClient, false},
		{ErrorClassDecode, false},
		{ErrorClassServer, true},
		{ErrorClassRateLimit, true},
		{ErrorClassNetwork, true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			if got := shouldRetry(tt.class); got != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.class, got, tt.expected)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{
		StatusCode: 503,
		ErrorClass: ErrorClassServer,
		Message:    "503 Service Unavailable",
	}

	msg := err.Error()
	if msg != "danbooru server error (status 503): 503 Service Unavailable" {
		t.Errorf("Error() = %q", msg)
	}
}

func TestAPIError_ErrorWithWrapped(t *testing.T) {
	inner := errors.New("connection reset")
	err := &APIError{
		ErrorClass: ErrorClassNetwork,
		Message:    "request failed",
		Err:        inner,
	}

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}
}

func TestAPIError_Fatal(t *testing.T) {
	tests := []struct {
		class ErrorClass
		fatal bool
	}{
		{ErrorClassClient, true},
		{ErrorClassDecode, true},
		{ErrorClassServer, false},
		{ErrorClassRateLimit, false},
		{ErrorClassNetwork, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			err := &APIError{ErrorClass: tt.class}
			if got := err.Fatal(); got != tt.fatal {
				t.Errorf("Fatal() = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	apiErr := &APIError{ErrorClass: ErrorClassRateLimit}
	if got := Classify(apiErr); got != ErrorClassRateLimit {
		t.Errorf("Classify(APIError) = %q, want rate_limit", got)
	}

	wrapped := fmt.Errorf("fetch: %w", apiErr)
	if got := Classify(wrapped); got != ErrorClassRateLimit {
		t.Errorf("Classify(wrapped APIError) = %q, want rate_limit", got)
	}

	if got := Classify(errors.New("dial tcp: timeout")); got != ErrorClassNetwork {
		t.Errorf("Classify(plain error) = %q, want network", got)
	}
}
