package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAdvisorError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AdvisorError
		expected string
	}{
		{
			name:     "message only",
			err:      ErrConfiguration("azure endpoint not set"),
			expected: "azure endpoint not set",
		},
		{
			name:     "message with cause",
			err:      ErrRetrieval("evidence search failed", errors.New("index closed")),
			expected: "evidence search failed: index closed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAdvisorError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		expected int
	}{
		{ErrorKindInvalidInput, http.StatusBadRequest},
		{ErrorKindConfiguration, http.StatusServiceUnavailable},
		{ErrorKindConstruction, http.StatusServiceUnavailable},
		{ErrorKindTimeout, http.StatusGatewayTimeout},
		{ErrorKindRetrieval, http.StatusBadGateway},
		{ErrorKindGeneration, http.StatusBadGateway},
		{ErrorKindLogging, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := NewError(tt.kind, "x", nil)
			if got := err.HTTPStatusCode(); got != tt.expected {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestErrGeneration_DeadlineBecomesTimeout(t *testing.T) {
	err := ErrGeneration("generation failed", fmt.Errorf("post: %w", context.DeadlineExceeded))
	if err.Kind != ErrorKindTimeout {
		t.Errorf("Kind = %q, want %q", err.Kind, ErrorKindTimeout)
	}

	err = ErrGeneration("generation failed", errors.New("quota exceeded"))
	if err.Kind != ErrorKindGeneration {
		t.Errorf("Kind = %q, want %q", err.Kind, ErrorKindGeneration)
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("invoke: %w", ErrRetrieval("search failed", nil))
	if got := KindOf(wrapped); got != ErrorKindRetrieval {
		t.Errorf("KindOf(wrapped) = %q, want %q", got, ErrorKindRetrieval)
	}
	if got := KindOf(context.DeadlineExceeded); got != ErrorKindTimeout {
		t.Errorf("KindOf(deadline) = %q, want %q", got, ErrorKindTimeout)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}
