package llm

import (
	"errors"
	"testing"
	"time"
)

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"unrelated error", errors.New("connection refused"), false},
		{"429 status", errors.New("Error 429: too many requests"), true},
		{"resource exhausted", errors.New("rpc error: RESOURCE_EXHAUSTED"), true},
		{"quota message", errors.New("quota exceeded for generate_content_free_tier"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRateLimitError(tt.err); got != tt.want {
				t.Errorf("IsRateLimitError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractRetryDelay(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want time.Duration
	}{
		{"nil error", nil, 0},
		{"no delay present", errors.New("Error 429: too many requests"), 0},
		{
			"gemini retry message",
			errors.New("Error 429, Message: quota exceeded. Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED"),
			time.Duration(45.387061394 * float64(time.Second)),
		},
		{
			"retryDelay field",
			errors.New("retryDelay: 12s"),
			12 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractRetryDelay(tt.err); got != tt.want {
				t.Errorf("ExtractRetryDelay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	config := NewDefaultRetryConfig()

	tests := []struct {
		name     string
		attempt  int
		apiDelay time.Duration
		want     time.Duration
	}{
		{"first attempt uses initial backoff", 0, 0, 45 * time.Second},
		{"second attempt multiplies", 1, 0, time.Duration(45 * 1.5 * float64(time.Second))},
		{"capped at max backoff", 3, 0, 90 * time.Second},
		{"api delay plus buffer", 0, 30 * time.Second, 35 * time.Second},
		{"api delay still capped", 2, 60 * time.Second, 90 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := config.CalculateBackoff(tt.attempt, tt.apiDelay); got != tt.want {
				t.Errorf("CalculateBackoff(%d, %v) = %v, want %v", tt.attempt, tt.apiDelay, got, tt.want)
			}
		})
	}
}
