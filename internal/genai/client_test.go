package genai

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aisum/internal/errors"
	"aisum/internal/stats"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Options{BaseURL: server.URL, Key: "genai-key"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestNewClient_InvalidURL(t *testing.T) {
	if _, err := NewClient(Options{BaseURL: "/relative"}); !errors.HasCode(err, errors.InvalidInput) {
		t.Errorf("NewClient() error = %v, want INVALID_INPUT", err)
	}
}

func TestGenerate(t *testing.T) {
	var got map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/text/generation" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("version") == "" {
			t.Error("missing version query parameter")
		}
		if r.Header.Get("Authorization") != "Bearer genai-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = io.WriteString(w, `{"results": [{"generated_text": "Work is on track.", "stop_reason": "eos_token"}]}`)
	})

	timers := stats.New()
	ctx := stats.WithTimers(context.Background(), timers)
	out, err := client.Generate(ctx, "Summarize this", []string{EndOfText})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "Work is on track." {
		t.Errorf("Generate() = %q", out)
	}
	if timers.Count(stats.Generation) != 1 {
		t.Errorf("generation timer count = %d, want 1", timers.Count(stats.Generation))
	}

	if got["model_id"] != DefaultModel || got["input"] != "Summarize this" {
		t.Errorf("request = %v", got)
	}
	params, _ := got["parameters"].(map[string]interface{})
	if params["decoding_method"] != "sample" || params["max_new_tokens"] != float64(4000) ||
		params["min_new_tokens"] != float64(10) || params["temperature"] != 0.5 ||
		params["top_k"] != float64(50) || params["top_p"] != float64(1) {
		t.Errorf("parameters = %v", params)
	}
	stop, _ := params["stop_sequences"].([]interface{})
	if len(stop) != 1 || stop[0] != EndOfText {
		t.Errorf("stop_sequences = %v", params["stop_sequences"])
	}
}

func TestGenerate_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
		code      errors.ErrorCode
	}{
		{"throttled", http.StatusTooManyRequests, true, ""},
		{"unavailable", http.StatusServiceUnavailable, true, ""},
		{"server error", http.StatusInternalServerError, true, ""},
		{"bad request", http.StatusBadRequest, false, errors.RemoteError},
		{"forbidden", http.StatusForbidden, false, errors.Unauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"message": "try later"}`)
			})
			_, err := client.Generate(context.Background(), "p", nil)
			var transient *TransientError
			if got := stderrors.As(err, &transient); got != tt.transient {
				t.Fatalf("transient = %v, want %v (err %v)", got, tt.transient, err)
			}
			if tt.transient {
				if transient.StatusCode != tt.status || transient.Message != "try later" {
					t.Errorf("TransientError = %+v", transient)
				}
				return
			}
			if !errors.HasCode(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestGenerate_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>oops</html>`},
		{"no results", `{"results": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			})
			if _, err := client.Generate(context.Background(), "p", nil); !errors.IsMalformed(err) {
				t.Errorf("Generate() error = %v, want MALFORMED_RESPONSE", err)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/text/tokenization" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req tokenizationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(req.Input) != 1 || req.Input[0] != "count me" {
			t.Errorf("input = %v", req.Input)
		}
		_, _ = io.WriteString(w, `{"results": [{"token_count": 3}, {"token_count": 4}]}`)
	})

	n, err := client.Tokenize(context.Background(), "count me")
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	if n != 7 {
		t.Errorf("Tokenize() = %d, want 7", n)
	}
}

func TestRetryingOverClient(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"results": [{"generated_text": "done"}]}`)
	})
	r := NewRetrying(client, DefaultRetryPolicy(), nil).WithSleep(func(context.Context, time.Duration) error { return nil })

	out, err := r.Generate(context.Background(), "p", nil)
	if err != nil || out != "done" {
		t.Fatalf("Generate() = %q, %v", out, err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}
