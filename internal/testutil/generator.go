package testutil

import (
	"context"
	"strings"
	"sync"
)

// ScriptedGenerator is a fake text generator. It returns the queued errors
// first, then Reply(prompt) for every call.
type ScriptedGenerator struct {
	Reply func(prompt string) string

	mu      sync.Mutex
	errs    []error
	prompts []string
	stops   [][]string
}

// NewScriptedGenerator returns a generator that answers every prompt with reply.
func NewScriptedGenerator(reply string) *ScriptedGenerator {
	return &ScriptedGenerator{Reply: func(string) string { return reply }}
}

// FailNext queues errors to be returned, one per call, before any reply.
func (g *ScriptedGenerator) FailNext(errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs = append(g.errs, errs...)
}

func (g *ScriptedGenerator) Generate(ctx context.Context, prompt string, stop []string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.stops = append(g.stops, stop)
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		g.mu.Unlock()
		return "", err
	}
	g.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return g.Reply(prompt), nil
}

// Prompts returns every prompt received so far, in order.
func (g *ScriptedGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// Calls returns the number of Generate calls.
func (g *ScriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// LastStop returns the stop sequences of the most recent call.
func (g *ScriptedGenerator) LastStop() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.stops) == 0 {
		return nil
	}
	return g.stops[len(g.stops)-1]
}

// Tokenize counts whitespace-separated words, which is close enough for tests.
func (g *ScriptedGenerator) Tokenize(ctx context.Context, text string) (int, error) {
	return len(strings.Fields(text)), nil
}
