package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("underlying error")
	err := New(MalformedResponse, "unexpected body", cause)

	if err.Code != MalformedResponse {
		t.Errorf("Code = %v, want %v", err.Code, MalformedResponse)
	}
	if err.Message != "unexpected body" {
		t.Errorf("Message = %q, want %q", err.Message, "unexpected body")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      RemoteError,
			message:   "tracker returned 502",
			cause:     errors.New("bad gateway"),
			wantParts: []string{"REMOTE_ERROR", "tracker returned 502", "bad gateway"},
		},
		{
			name:      "without cause",
			code:      NotFound,
			message:   "issue ABC-1 not found",
			cause:     nil,
			wantParts: []string{"NOT_FOUND", "issue ABC-1 not found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.code, tt.message, tt.cause).Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, missing %q", got, part)
				}
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("fetch ABC-1: %w", New(MalformedResponse, "not an object", nil))

	if got := CodeOf(wrapped); got != MalformedResponse {
		t.Errorf("CodeOf(wrapped) = %v, want %v", got, MalformedResponse)
	}
	if got := CodeOf(errors.New("plain")); got != InternalError {
		t.Errorf("CodeOf(plain) = %v, want %v", got, InternalError)
	}
	if !IsMalformed(wrapped) {
		t.Error("IsMalformed(wrapped) = false, want true")
	}
}

func TestHasCode_NestedCause(t *testing.T) {
	inner := New(NotFound, "issue missing", nil)
	outer := New(RemoteError, "tracker call failed", inner)

	if !HasCode(outer, RemoteError) {
		t.Error("HasCode(outer, RemoteError) = false")
	}
	if !IsNotFound(outer) {
		t.Error("IsNotFound(outer) = false, want true via cause chain")
	}
	if HasCode(outer, TransientService) {
		t.Error("HasCode(outer, TransientService) = true, want false")
	}
}
