// Package tokenbudget estimates prompt token counts so the scoping agent
// (C5) can trim conversation history before it blows the model's context
// window, instead of discovering the overflow only after the LLM gateway
// rejects the request.
package tokenbudget

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Message mirrors the minimal shape the estimator needs from a transcript
// turn: a role and its text content.
type Message struct {
	Role    string
	Content string
}

// Estimator counts tokens for a given model family using tiktoken-go.
// Safe for concurrent use; the underlying encoding is initialized once.
type Estimator struct {
	encoding string
	max      int
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

var modelEncodings = map[string]struct {
	encoding string
	max      int
}{
	"gpt-4o":        {"o200k_base", 128000},
	"gpt-4o-mini":    {"o200k_base", 128000},
	"gpt-4-turbo":    {"cl100k_base", 128000},
	"gpt-4":          {"cl100k_base", 8192},
	"gpt-3.5-turbo":  {"cl100k_base", 16385},
}

// New builds an Estimator for the given model, falling back to cl100k_base
// with an 8192 token window for unrecognized model names.
func New(model string) *Estimator {
	info, ok := modelEncodings[model]
	if !ok {
		for prefix, i := range modelEncodings {
			if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
				info, ok = i, true
				break
			}
		}
	}
	if !ok {
		info = struct {
			encoding string
			max      int
		}{"cl100k_base", 8192}
	}
	return &Estimator{encoding: info.encoding, max: info.max}
}

func (e *Estimator) init() error {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(e.encoding)
		if err != nil {
			e.initErr = fmt.Errorf("init tiktoken encoding %s: %w", e.encoding, err)
			return
		}
		e.enc = enc
	})
	return e.initErr
}

// Count returns the token count of a single string.
func (e *Estimator) Count(text string) (int, error) {
	if err := e.init(); err != nil {
		return 0, err
	}
	return len(e.enc.Encode(text, nil, nil)), nil
}

// CountMessages sums per-message overhead plus content/role tokens across a
// transcript, matching OpenAI's chat-message accounting convention.
func (e *Estimator) CountMessages(messages []Message) (int, error) {
	if err := e.init(); err != nil {
		return 0, err
	}
	total := 3 // conversation priming overhead
	for _, m := range messages {
		total += 4
		total += len(e.enc.Encode(m.Content, nil, nil))
		total += len(e.enc.Encode(m.Role, nil, nil))
	}
	return total, nil
}

// MaxTokens returns the model's context window.
func (e *Estimator) MaxTokens() int {
	return e.max
}

// TrimToFit drops the oldest messages (keeping the first, a system/seed
// message, if present) until the transcript plus reserved tokens for the
// response fits within the model's window. Returns the trimmed slice; on
// estimator error it returns the input unmodified.
func (e *Estimator) TrimToFit(messages []Message, reserveForResponse int) []Message {
	budget := e.max - reserveForResponse
	if budget <= 0 {
		return messages
	}
	trimmed := messages
	for len(trimmed) > 1 {
		count, err := e.CountMessages(trimmed)
		if err != nil {
			return messages
		}
		if count <= budget {
			break
		}
		// Drop the oldest turn after index 0, preserving any leading system seed.
		trimmed = append(append([]Message{}, trimmed[:1]...), trimmed[2:]...)
	}
	return trimmed
}
