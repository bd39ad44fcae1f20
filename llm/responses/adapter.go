package responses

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/lo"

	"github.com/opencortex/modelstream/llm"
)

// encryptedReasoningInclude asks the provider to return opaque reasoning
// content so it can be replayed on the next turn without server-side
// conversation storage.
const encryptedReasoningInclude = "reasoning.encrypted_content"

// wireRequest is the Responses API request payload.
type wireRequest struct {
	Model             string          `json:"model"`
	Instructions      string          `json:"instructions,omitempty"`
	Input             []wireItem      `json:"input"`
	Tools             []wireTool      `json:"tools,omitempty"`
	ToolChoice        string          `json:"tool_choice,omitempty"`
	ParallelToolCalls bool            `json:"parallel_tool_calls"`
	Reasoning         *wireReasoning  `json:"reasoning,omitempty"`
	Store             bool            `json:"store"`
	Stream            bool            `json:"stream"`
	Include           []string        `json:"include,omitempty"`
	Text              *wireTextOption `json:"text,omitempty"`
}

type wireReasoning struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

type wireTextOption struct {
	Verbosity string          `json:"verbosity,omitempty"`
	Format    *wireTextFormat `json:"format,omitempty"`
}

type wireTextFormat struct {
	Type   string          `json:"type"`
	Name   string          `json:"name,omitempty"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema,omitempty"`
}

type wireTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Strict      bool            `json:"strict,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// wireItem is the Responses API conversation item. One struct covers all
// variants; the Type discriminator decides which fields are meaningful.
type wireItem struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// message
	Role    string        `json:"role,omitempty"`
	Content []wireContent `json:"content,omitempty"`

	// reasoning
	Summary          []wireSummary `json:"summary,omitempty"`
	EncryptedContent string        `json:"encrypted_content,omitempty"`

	// function_call / function_call_output
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Output    string `json:"output,omitempty"`

	// web_search_call
	Status string `json:"status,omitempty"`
}

type wireContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireSummary struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// hostQuirk is a table-driven per-host request override. Managed-hosting
// deployments deviate from the reference API in small ways; matching on
// the base URL keeps those deviations out of the main build path.
type hostQuirk struct {
	name  string
	match func(baseURL string) bool
	apply func(request *wireRequest)
}

var hostQuirks = []hostQuirk{
	{
		// Azure-hosted deployments reject store=false and require full
		// item IDs on replayed input.
		name: "azure",
		match: func(baseURL string) bool {
			return strings.Contains(strings.ToLower(baseURL), "azure")
		},
		apply: func(request *wireRequest) {
			request.Store = true
		},
	},
}

// buildRequestPayload converts a prompt plus turn options into the wire
// request JSON. Pure transformation: no I/O, fails only on invalid input.
func buildRequestPayload(provider llm.ModelProviderInfo, model string, prompt *llm.Prompt, opts llm.TurnOptions, stream bool) ([]byte, error) {
	if prompt == nil || len(prompt.Input) == 0 {
		return nil, llm.ErrEmptyPrompt
	}

	keepIDs := false
	for _, quirk := range hostQuirks {
		if quirk.match(provider.BaseURL) {
			keepIDs = true
		}
	}

	request := wireRequest{
		Model:             model,
		Instructions:      prompt.Instructions,
		Input:             lo.Map(prompt.Input, func(item llm.ResponseItem, _ int) wireItem { return toWireItem(item, keepIDs) }),
		Stream:            stream,
		Include:           []string{encryptedReasoningInclude},
		ParallelToolCalls: false,
	}

	if len(prompt.Tools) > 0 {
		request.Tools = lo.Map(prompt.Tools, func(tool llm.ToolSpec, _ int) wireTool {
			return wireTool{
				Type:        "function",
				Name:        tool.Name,
				Description: tool.Description,
				Strict:      tool.Strict,
				Parameters:  tool.Parameters,
			}
		})
		request.ToolChoice = "auto"
	}

	if opts.ReasoningEffort != "" || opts.ReasoningSummary != "" {
		request.Reasoning = &wireReasoning{
			Effort:  string(opts.ReasoningEffort),
			Summary: string(opts.ReasoningSummary),
		}
	}

	if opts.Verbosity != "" || prompt.OutputSchema != nil {
		request.Text = &wireTextOption{Verbosity: string(opts.Verbosity)}
		if prompt.OutputSchema != nil {
			request.Text.Format = &wireTextFormat{
				Type:   "json_schema",
				Name:   prompt.OutputSchema.Name,
				Strict: prompt.OutputSchema.Strict,
				Schema: prompt.OutputSchema.Schema,
			}
		}
	}

	for _, quirk := range hostQuirks {
		if quirk.match(provider.BaseURL) {
			quirk.apply(&request)
		}
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, llm.NewConfigError(fmt.Sprintf("marshaling request: %v", err))
	}
	return payload, nil
}

// buildHeaders assembles the header set for one request: bearer auth,
// the responses feature flag, and the provider's extra headers. The
// extra set carries the caller's correlation headers as well.
func buildHeaders(apiKey string, provider llm.ModelProviderInfo, extra http.Header) http.Header {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)
	header.Set("OpenAI-Beta", "responses=experimental")
	for key, value := range provider.HTTPHeaders {
		header.Set(key, value)
	}
	for key, values := range extra {
		for _, value := range values {
			header.Add(key, value)
		}
	}
	return header
}

// toWireItem converts a neutral item to the wire schema. Item IDs are
// stripped unless the host requires them on replayed input.
func toWireItem(item llm.ResponseItem, keepID bool) wireItem {
	wire := wireItem{Type: string(item.Type)}
	if keepID {
		wire.ID = item.ID
	}

	switch item.Type {
	case llm.ItemTypeMessage:
		if item.Message != nil {
			wire.Role = string(item.Message.Role)
			wire.Content = lo.Map(item.Message.Content, func(block llm.ContentBlock, _ int) wireContent {
				return wireContent{Type: string(block.Type), Text: block.Text}
			})
		}
	case llm.ItemTypeReasoning:
		if item.Reasoning != nil {
			wire.Summary = lo.Map(item.Reasoning.Summary, func(text string, _ int) wireSummary {
				return wireSummary{Type: "summary_text", Text: text}
			})
			wire.EncryptedContent = item.Reasoning.EncryptedContent
		}
	case llm.ItemTypeFunctionCall:
		if item.FunctionCall != nil {
			wire.Name = item.FunctionCall.Name
			wire.Arguments = item.FunctionCall.Arguments
			wire.CallID = item.FunctionCall.CallID
		}
	case llm.ItemTypeFunctionCallOutput:
		if item.FunctionCallOutput != nil {
			wire.CallID = item.FunctionCallOutput.CallID
			wire.Output = item.FunctionCallOutput.Output
		}
	case llm.ItemTypeWebSearchCall:
		if item.WebSearchCall != nil {
			wire.Status = item.WebSearchCall.Status
		}
	}
	return wire
}

// fromWireItem converts a wire item back to the neutral type.
func fromWireItem(wire wireItem) llm.ResponseItem {
	item := llm.ResponseItem{Type: llm.ItemType(wire.Type), ID: wire.ID}

	switch item.Type {
	case llm.ItemTypeMessage:
		item.Message = &llm.MessageItem{
			Role: llm.MessageRole(wire.Role),
			Content: lo.Map(wire.Content, func(block wireContent, _ int) llm.ContentBlock {
				return llm.ContentBlock{Type: llm.ContentBlockType(block.Type), Text: block.Text}
			}),
		}
	case llm.ItemTypeReasoning:
		item.Reasoning = &llm.ReasoningItem{
			Summary: lo.Map(wire.Summary, func(summary wireSummary, _ int) string {
				return summary.Text
			}),
			EncryptedContent: wire.EncryptedContent,
		}
	case llm.ItemTypeFunctionCall:
		item.FunctionCall = &llm.FunctionCallItem{
			Name:      wire.Name,
			Arguments: wire.Arguments,
			CallID:    wire.CallID,
		}
	case llm.ItemTypeFunctionCallOutput:
		item.FunctionCallOutput = &llm.FunctionCallOutputItem{
			CallID: wire.CallID,
			Output: wire.Output,
		}
	case llm.ItemTypeWebSearchCall:
		item.WebSearchCall = &llm.WebSearchCallItem{Status: wire.Status}
	}
	return item
}
