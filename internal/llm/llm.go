// Package llm is the chat-completion client used for translation,
// classification and the executive summary.
package llm

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrRateLimited marks a 429 or provider-specific throttle reply.
	ErrRateLimited = errors.New("llm rate limited")
	// ErrEmptyResponse marks a reply with no usable text.
	ErrEmptyResponse = errors.New("llm returned empty response")
)

// Request is one single-turn completion.
type Request struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Client completes a prompt. Implementations return ErrRateLimited (wrapped)
// when throttled so callers can decide to back off.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// StripCodeFence removes a surrounding ```lang ... ``` block.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if i := strings.Index(text, "\n"); i >= 0 {
		text = text[i+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	if i := strings.LastIndex(text, "```"); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

// ExtractJSON returns the outermost {...} object found in text, after fence
// stripping. Reasoning models sometimes prepend prose or <think> blocks.
func ExtractJSON(text string) string {
	text = StripCodeFence(text)
	if i := strings.Index(text, "</think>"); i >= 0 {
		text = strings.TrimSpace(text[i+len("</think>"):])
		text = StripCodeFence(text)
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}
