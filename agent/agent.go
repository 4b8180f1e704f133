// agent/agent.go
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/b3yotch/spyder/config"
	"github.com/b3yotch/spyder/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrNoAPIKey means the agent cannot be constructed; the surrounding
// application runs fine without it, just with /api/ask disabled.
var ErrNoAPIKey = errors.New("agent requires an API key")

// DocumentQuerier is the only store capability the agent needs.
type DocumentQuerier interface {
	QueryDocuments(ctx context.Context, p models.QueryParams) ([]models.Document, error)
}

const systemPrompt = `You are a helpful assistant with access to a database of federal registry documents.
Use the search_documents tool to look up documents and answer only from its results; never invent documents.
When the user asks about a specific month, compute both the first and the last day of that month as start_date and end_date (mind leap years).
If the tool reports an error, tell the user a technical difficulty occurred instead of claiming nothing was found.
Format answers in markdown.`

// searchTool mirrors the query interface surface: every parameter the
// documents endpoint accepts is available to the model.
var searchTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        "search_documents",
		Description: "Search for documents in the federal registry database",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"start_date":      map[string]any{"type": "string", "description": "Start of the publication-date range, inclusive (YYYY-MM-DD)"},
				"end_date":        map[string]any{"type": "string", "description": "End of the publication-date range, inclusive (YYYY-MM-DD)"},
				"document_type":   map[string]any{"type": "string", "description": "Document type, e.g. 'RULE', 'NOTICE', 'PRESIDENTIAL_DOCUMENT'"},
				"keyword":         map[string]any{"type": "string", "description": "Keyword matched against title, abstract and full text"},
				"agency":          map[string]any{"type": "string", "description": "Agency name to filter by (substring match)"},
				"document_number": map[string]any{"type": "string", "description": "Exact document number"},
				"limit":           map[string]any{"type": "integer", "description": "Maximum number of results (default 10)"},
			},
			"required": []string{},
		},
	},
}

// Agent is a thin tool-calling client: one chat call decides whether to
// search, the tool result is fed back, a second call produces the answer.
type Agent struct {
	llm   *openai.LLM
	store DocumentQuerier
}

func New(cfg config.AgentConfig, store DocumentQuerier) (*Agent, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	llm, err := openai.New(openai.WithModel(cfg.Model), openai.WithToken(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return &Agent{llm: llm, store: store}, nil
}

// Answer processes one natural-language question over the document store.
func (a *Agent) Answer(ctx context.Context, question string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, question),
	}

	resp, err := a.llm.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{searchTool}))
	if err != nil {
		return "", fmt.Errorf("initial completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}

	choice := resp.Choices[0]
	if len(choice.ToolCalls) == 0 {
		return choice.Content, nil
	}

	call := choice.ToolCalls[0]
	result := a.runTool(ctx, call)

	messages = append(messages,
		llms.MessageContent{
			Role:  llms.ChatMessageTypeAI,
			Parts: []llms.ContentPart{call},
		},
		llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{llms.ToolCallResponse{
				ToolCallID: call.ID,
				Name:       call.FunctionCall.Name,
				Content:    result,
			}},
		},
	)

	final, err := a.llm.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{searchTool}))
	if err != nil {
		return "", fmt.Errorf("final completion failed: %w", err)
	}
	if len(final.Choices) == 0 {
		return "", errors.New("model returned no choices for final answer")
	}
	return final.Choices[0].Content, nil
}

// runTool executes one tool call and returns its JSON result. Errors are
// serialized into the result so the model can explain them to the user.
func (a *Agent) runTool(ctx context.Context, call llms.ToolCall) string {
	if call.FunctionCall == nil {
		return toolError(fmt.Errorf("malformed tool call"))
	}
	if call.FunctionCall.Name != searchTool.Function.Name {
		return toolError(fmt.Errorf("unknown tool %q", call.FunctionCall.Name))
	}

	params, err := ParseSearchArguments(call.FunctionCall.Arguments)
	if err != nil {
		return toolError(err)
	}

	docs, err := a.store.QueryDocuments(ctx, params)
	if err != nil {
		log.Printf("ERROR Agent: search_documents query failed: %v", err)
		return toolError(fmt.Errorf("an internal error occurred while querying the database"))
	}

	hits := make([]searchHit, 0, len(docs))
	for _, d := range docs {
		hits = append(hits, searchHit{Document: d, FullTextSnippet: snippet(d.FullText, 1000)})
	}
	data, err := json.Marshal(hits)
	if err != nil {
		return toolError(err)
	}
	return string(data)
}

// ParseSearchArguments decodes and validates the model's tool arguments.
// Date filters are checked before any I/O, exactly like the HTTP surface.
func ParseSearchArguments(raw string) (models.QueryParams, error) {
	var params models.QueryParams
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return models.QueryParams{}, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if err := params.Validate(); err != nil {
		return models.QueryParams{}, err
	}
	return params, nil
}

// searchHit is a Document plus a bounded full-text excerpt: the stored full
// text can be megabytes and would blow the model's context.
type searchHit struct {
	models.Document
	FullTextSnippet string `json:"full_text_snippet,omitempty"`
}

func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "... [truncated]"
}

func toolError(err error) string {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(data)
}
