// Package llm is a small provider-agnostic text completion client used by the
// planner. Providers register themselves from pkg/llm/providers.
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Client is the provider-agnostic LLM interface.
type Client interface {
	// Complete performs a blocking generation and returns the full response.
	Complete(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
	// Stream starts streaming generation; events are sent on the returned channel.
	// The channel is closed after a complete or error event.
	Stream(ctx context.Context, req GenerateRequest) (<-chan StreamEvent, error)
}

// ProviderFactory creates a Client for a given model name within a provider.
type ProviderFactory func(modelName string) (Client, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]ProviderFactory{}
)

// RegisterProvider registers a factory function for a named provider.
// Call this from init() in provider packages.
func RegisterProvider(name string, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Providers lists the registered provider names, sorted.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewClient constructs a Client for a "provider:model-name" model ID.
func NewClient(modelID string) (Client, error) {
	provider, modelName, err := ParseModelID(modelID)
	if err != nil {
		return nil, fmt.Errorf("NewClient: %w", err)
	}
	registryMu.RLock()
	factory, ok := registry[provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no provider registered for %q (model ID %q); is pkg/llm/providers imported?", provider, modelID)
	}
	return factory(modelName)
}

// StreamFromComplete adapts a blocking completion into a single-delta
// stream, for providers whose streaming API is not used.
func StreamFromComplete(ctx context.Context, c Client, req GenerateRequest) <-chan StreamEvent {
	ch := make(chan StreamEvent, 2)
	go func() {
		defer close(ch)
		resp, err := c.Complete(ctx, req)
		if err != nil {
			ch <- StreamEvent{Type: StreamEventError, Err: err}
			return
		}
		if resp.Text != "" {
			ch <- StreamEvent{Type: StreamEventDelta, Text: resp.Text}
		}
		ch <- StreamEvent{Type: StreamEventComplete, Response: &resp}
	}()
	return ch
}
