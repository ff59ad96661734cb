package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aisum/internal/errors"
	"aisum/internal/slogutil"
	"aisum/internal/stats"
	"aisum/internal/version"
)

const (
	// DefaultModel is the model summaries are generated with.
	DefaultModel = "mistralai/mixtral-8x7b-instruct-v01"
	// DefaultTimeout bounds one generation call.
	DefaultTimeout = 120 * time.Second

	apiVersion  = "2024-03-19"
	maxBodySize = 8 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	Key        string
	Model      string
	Params     Params
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is a Generator and Tokenizer backed by the text generation HTTP API.
type Client struct {
	base   *url.URL
	key    string
	model  string
	params Params
	http   *http.Client
	logger *slog.Logger
}

var (
	_ Generator = (*Client)(nil)
	_ Tokenizer = (*Client)(nil)
)

// NewClient creates a client. The base URL must be absolute.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf(errors.InvalidInput, "invalid generation API URL %q", opts.BaseURL)
	}
	c := &Client{
		base:   base,
		key:    opts.Key,
		model:  opts.Model,
		params: opts.Params,
		http:   opts.HTTPClient,
		logger: opts.Logger,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.params == (Params{}) {
		c.params = DefaultParams()
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.logger == nil {
		c.logger = slogutil.NewDiscardLogger()
	}
	return c, nil
}

// Model returns the model identifier requests are sent for.
func (c *Client) Model() string {
	return c.model
}

type generationParams struct {
	Params
	StopSequences []string `json:"stop_sequences,omitempty"`
}

type generationRequest struct {
	ModelID    string           `json:"model_id"`
	Input      string           `json:"input"`
	Parameters generationParams `json:"parameters"`
}

type generationResponse struct {
	Results []struct {
		GeneratedText  string `json:"generated_text"`
		StopReason     string `json:"stop_reason"`
		GeneratedCount int    `json:"generated_token_count"`
		InputCount     int    `json:"input_token_count"`
	} `json:"results"`
}

// Generate sends one generation request. Throttling and server errors come
// back as *TransientError; everything else is fatal.
func (c *Client) Generate(ctx context.Context, prompt string, stop []string) (string, error) {
	defer stats.Track(ctx, stats.Generation)()

	req := generationRequest{
		ModelID:    c.model,
		Input:      prompt,
		Parameters: generationParams{Params: c.params, StopSequences: stop},
	}
	var resp generationResponse
	if err := c.post(ctx, "/v2/text/generation", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", errors.Newf(errors.MalformedResponse, "generation response has no results")
	}
	var sb strings.Builder
	for _, r := range resp.Results {
		sb.WriteString(r.GeneratedText)
	}
	c.logger.Debug("Generated text",
		"model", c.model,
		"inputTokens", resp.Results[0].InputCount,
		"generatedTokens", resp.Results[0].GeneratedCount,
		"stopReason", resp.Results[0].StopReason,
	)
	return sb.String(), nil
}

type tokenizationRequest struct {
	ModelID    string   `json:"model_id"`
	Input      []string `json:"input"`
	Parameters struct {
		ReturnOptions struct {
			InputText bool `json:"input_text"`
			Tokens    bool `json:"tokens"`
		} `json:"return_options"`
	} `json:"parameters"`
}

type tokenizationResponse struct {
	Results []struct {
		TokenCount int `json:"token_count"`
	} `json:"results"`
}

// Tokenize returns how many model tokens text occupies.
func (c *Client) Tokenize(ctx context.Context, text string) (int, error) {
	req := tokenizationRequest{ModelID: c.model, Input: []string{text}}
	var resp tokenizationResponse
	if err := c.post(ctx, "/v2/text/tokenization", req, &resp); err != nil {
		return 0, err
	}
	total := 0
	for _, r := range resp.Results {
		total += r.TokenCount
	}
	return total, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = url.Values{"version": {apiVersion}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Connection failures are as recoverable as a 503.
		return &TransientError{Message: err.Error()}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &TransientError{StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode >= 300 {
		msg := errorMessage(data)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return &TransientError{StatusCode: resp.StatusCode, Message: msg}
		}
		code := errors.RemoteError
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			code = errors.Unauthorized
		}
		return errors.Newf(code, "generation request failed with HTTP %d: %s", resp.StatusCode, msg)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.New(errors.MalformedResponse, "undecodable generation response", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var doc struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &doc) == nil {
		if doc.Message != "" {
			return doc.Message
		}
		if doc.Error != "" {
			return doc.Error
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
