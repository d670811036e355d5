// Package planner turns a natural-language change request into a patch
// envelope. The LLM planner asks a model for either an envelope or a brief;
// briefs are compiled against the node catalog.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ravi-parthasarathy/bridgezip/pkg/bridgezip"
	"github.com/ravi-parthasarathy/bridgezip/pkg/catalog"
	"github.com/ravi-parthasarathy/bridgezip/pkg/llm"
	"github.com/ravi-parthasarathy/bridgezip/pkg/patch"
)

var (
	// ErrNoJSON is returned when a reply contains no JSON object.
	ErrNoJSON = errors.New("planner: reply contains no json object")
	// ErrTruncated is returned when the model stopped at its token limit.
	ErrTruncated = errors.New("planner: reply truncated at max tokens")
	// ErrNoCatalog is returned for a brief reply when no catalog is configured.
	ErrNoCatalog = errors.New("planner: brief replies need a node catalog")
)

// Planner produces an envelope that applies request to doc.
type Planner interface {
	Plan(ctx context.Context, doc, request string) (*patch.Envelope, error)
}

// LLMPlanner plans with a language model.
type LLMPlanner struct {
	client    llm.Client
	maxTokens int
	catalog   catalog.Source
}

// Option configures an LLMPlanner.
type Option func(*LLMPlanner)

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) Option { return func(p *LLMPlanner) { p.maxTokens = n } }

// WithCatalog lets the model answer with a brief, compiled against the
// catalog source.
func WithCatalog(src catalog.Source) Option { return func(p *LLMPlanner) { p.catalog = src } }

// NewLLMPlanner returns a planner using client.
func NewLLMPlanner(client llm.Client, opts ...Option) *LLMPlanner {
	p := &LLMPlanner{client: client}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Plan asks the model for a change set and parses the first JSON object in
// its reply.
func (p *LLMPlanner) Plan(ctx context.Context, doc, request string) (*patch.Envelope, error) {
	if strings.TrimSpace(doc) == "" {
		return nil, bridgezip.ErrEmptyData
	}
	if strings.TrimSpace(request) == "" {
		return nil, fmt.Errorf("planner: empty request")
	}

	req := llm.GenerateRequest{
		System:    p.systemPrompt(),
		Messages:  []llm.Message{llm.UserMessage(userPrompt(doc, request))},
		MaxTokens: p.maxTokens,
	}
	resp, err := p.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	slog.Debug("planner reply",
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason)

	obj, err := ExtractJSON(resp.Text)
	if err != nil {
		if resp.StopReason == llm.StopReasonMaxTokens {
			return nil, ErrTruncated
		}
		return nil, err
	}

	if gjson.Get(obj, "nodes_to_add").Exists() {
		return p.compileBrief(ctx, doc, obj)
	}
	env, err := patch.ParseEnvelope([]byte(obj))
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	slog.Info("planner produced envelope",
		"summary", env.PlanSummary,
		"deletes", len(env.DeleteIDs),
		"groups", len(env.AddGroups))
	return env, nil
}

func (p *LLMPlanner) compileBrief(ctx context.Context, doc, obj string) (*patch.Envelope, error) {
	if p.catalog == nil {
		return nil, ErrNoCatalog
	}
	defs, err := p.catalog.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	brief, err := ParseBrief([]byte(obj), defs)
	if err != nil {
		return nil, fmt.Errorf("planner: invalid brief: %w", err)
	}
	env, err := brief.Compile(defs, doc)
	if err != nil {
		return nil, fmt.Errorf("planner: compile brief: %w", err)
	}
	slog.Info("planner compiled brief",
		"summary", env.PlanSummary,
		"new_nodes", len(brief.NodesToAdd),
		"updates", len(brief.NodesToUpdate))
	return env, nil
}

// ExtractJSON returns the first JSON object in text: the body of a fenced
// code block when one holds an object, otherwise the first balanced {...}.
func ExtractJSON(text string) (string, error) {
	rest := text
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			break
		}
		body := rest[start+3:]
		end := strings.Index(body, "```")
		if end < 0 {
			break
		}
		block := body[:end]
		// Drop the info string ("json") on the opening fence line.
		if nl := strings.IndexByte(block, '\n'); nl >= 0 && !strings.Contains(block[:nl], "{") {
			block = block[nl+1:]
		}
		if obj, ok := balancedObject(block); ok {
			return obj, nil
		}
		rest = body[end+3:]
	}
	if obj, ok := balancedObject(text); ok {
		return obj, nil
	}
	return "", ErrNoJSON
}

// balancedObject finds the first '{' in s whose matching '}' closes a valid
// JSON object.
func balancedObject(s string) (string, bool) {
	for from := 0; from < len(s); {
		i := strings.IndexByte(s[from:], '{')
		if i < 0 {
			return "", false
		}
		start := from + i
		if end := matchBrace(s, start); end > 0 {
			if obj := s[start : end+1]; gjson.Valid(obj) {
				return obj, true
			}
		}
		from = start + 1
	}
	return "", false
}

func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
