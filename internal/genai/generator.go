// Package genai talks to the text generation service and wraps it with the
// retry discipline the summarizer relies on.
package genai

import (
	"context"
	"fmt"
)

// EndOfText is the stop sequence used for every summary request.
const EndOfText = "<|endoftext|>"

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, stop []string) (string, error)
}

// Tokenizer counts model tokens.
type Tokenizer interface {
	Tokenize(ctx context.Context, text string) (int, error)
}

// TransientError marks a failure the service may recover from on its own:
// throttling, overload or a 5xx answer. Only these are retried.
type TransientError struct {
	StatusCode int
	Message    string
}

func (e *TransientError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("generation service unavailable (HTTP %d)", e.StatusCode)
	}
	return fmt.Sprintf("generation service unavailable (HTTP %d): %s", e.StatusCode, e.Message)
}

// Params are the decoding parameters sent with each generation request.
type Params struct {
	DecodingMethod string  `json:"decoding_method,omitempty"`
	MaxNewTokens   int     `json:"max_new_tokens,omitempty"`
	MinNewTokens   int     `json:"min_new_tokens,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	TopK           int     `json:"top_k,omitempty"`
	TopP           float64 `json:"top_p,omitempty"`
}

// DefaultParams returns the sampling setup summaries are generated with.
func DefaultParams() Params {
	return Params{
		DecodingMethod: "sample",
		MaxNewTokens:   4000,
		MinNewTokens:   10,
		Temperature:    0.5,
		TopK:           50,
		TopP:           1,
	}
}
