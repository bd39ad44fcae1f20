// Package chat implements the "chat" wire shape: the Chat Completions
// streaming protocol, where deltas accumulate into a final message and
// the stream terminates with a [DONE] sentinel. Any endpoint compatible
// with this format (OpenAI, Azure OpenAI, OpenRouter, vLLM, Ollama,
// llama.cpp) can sit behind it.
package chat

import (
	"encoding/json"
	"net/http"

	"github.com/samber/lo"

	"github.com/opencortex/modelstream/llm"
)

// Chat Completions wire types. The streaming format uses "delta" instead
// of "message" in choices, tool_calls carry an "index" field for
// multiplexing concurrent calls, and finish_reason is null until the
// final chunk.

type wireRequest struct {
	Model           string             `json:"model"`
	Messages        []wireMessage      `json:"messages"`
	Tools           []wireTool         `json:"tools,omitempty"`
	ReasoningEffort string             `json:"reasoning_effort,omitempty"`
	Verbosity       string             `json:"verbosity,omitempty"`
	ResponseFormat  *wireFormatOption  `json:"response_format,omitempty"`
	Stream          bool               `json:"stream,omitempty"`
	StreamOptions   *wireStreamOptions `json:"stream_options,omitempty"`
}

type wireStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string             `json:"type"`
	Function wireToolDefinition `json:"function"`
}

type wireToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
	Strict      bool            `json:"strict,omitempty"`
}

type wireFormatOption struct {
	Type       string          `json:"type"`
	JSONSchema *wireJSONSchema `json:"json_schema,omitempty"`
}

type wireJSONSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   *wireUsage   `json:"usage"`
}

type wireChoice struct {
	Index        int         `json:"index"`
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type wireUsage struct {
	PromptTokens        int64 `json:"prompt_tokens"`
	PromptTokensDetails *struct {
		CachedTokens int64 `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
	CompletionTokens        int64 `json:"completion_tokens"`
	CompletionTokensDetails *struct {
		ReasoningTokens int64 `json:"reasoning_tokens"`
	} `json:"completion_tokens_details"`
	TotalTokens int64 `json:"total_tokens"`
}

func (u *wireUsage) toTokenUsage() *llm.TokenUsage {
	if u == nil {
		return nil
	}
	usage := &llm.TokenUsage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
	if u.PromptTokensDetails != nil {
		usage.CachedInputTokens = u.PromptTokensDetails.CachedTokens
	}
	if u.CompletionTokensDetails != nil {
		usage.ReasoningOutputTokens = u.CompletionTokensDetails.ReasoningTokens
	}
	return usage
}

// buildRequestPayload converts a prompt into the Chat Completions wire
// format. Reasoning and web search items have no chat representation and
// are dropped from the conversation history.
func buildRequestPayload(provider llm.ModelProviderInfo, model string, prompt *llm.Prompt, opts llm.TurnOptions, stream bool) ([]byte, error) {
	if prompt == nil || len(prompt.Input) == 0 {
		return nil, llm.ErrEmptyPrompt
	}

	request := wireRequest{
		Model:           model,
		Messages:        toWireMessages(prompt),
		ReasoningEffort: string(opts.ReasoningEffort),
		Verbosity:       string(opts.Verbosity),
	}

	if len(prompt.Tools) > 0 {
		request.Tools = lo.Map(prompt.Tools, func(tool llm.ToolSpec, _ int) wireTool {
			return wireTool{
				Type: "function",
				Function: wireToolDefinition{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  tool.Parameters,
					Strict:      tool.Strict,
				},
			}
		})
	}

	if prompt.OutputSchema != nil {
		request.ResponseFormat = &wireFormatOption{
			Type: "json_schema",
			JSONSchema: &wireJSONSchema{
				Name:   prompt.OutputSchema.Name,
				Schema: prompt.OutputSchema.Schema,
				Strict: prompt.OutputSchema.Strict,
			},
		}
	}

	if stream {
		request.Stream = true
		request.StreamOptions = &wireStreamOptions{IncludeUsage: true}
	}

	return json.Marshal(request)
}

// toWireMessages flattens conversation items into chat messages. System
// instructions become the first message with role "system".
func toWireMessages(prompt *llm.Prompt) []wireMessage {
	var messages []wireMessage

	if prompt.Instructions != "" {
		messages = append(messages, wireMessage{Role: "system", Content: prompt.Instructions})
	}

	for _, item := range prompt.Input {
		switch item.Type {
		case llm.ItemTypeMessage:
			if item.Message == nil {
				continue
			}
			role := string(item.Message.Role)
			if item.Message.Role == llm.RoleDeveloper {
				role = "system"
			}
			messages = append(messages, wireMessage{Role: role, Content: item.Text()})

		case llm.ItemTypeFunctionCall:
			if item.FunctionCall == nil {
				continue
			}
			messages = append(messages, wireMessage{
				Role: "assistant",
				ToolCalls: []wireToolCall{{
					ID:   item.FunctionCall.CallID,
					Type: "function",
					Function: wireToolFunction{
						Name:      item.FunctionCall.Name,
						Arguments: item.FunctionCall.Arguments,
					},
				}},
			})

		case llm.ItemTypeFunctionCallOutput:
			if item.FunctionCallOutput == nil {
				continue
			}
			messages = append(messages, wireMessage{
				Role:       "tool",
				Content:    item.FunctionCallOutput.Output,
				ToolCallID: item.FunctionCallOutput.CallID,
			})
		}
	}

	return messages
}

// fromWireMessage converts a non-streaming choice message back into
// conversation items: tool calls first, then the text message.
func fromWireMessage(message wireMessage) []llm.ResponseItem {
	var items []llm.ResponseItem
	for _, call := range message.ToolCalls {
		items = append(items, llm.NewFunctionCall(call.Function.Name, call.Function.Arguments, call.ID))
	}
	if message.Content != "" {
		items = append(items, llm.NewAssistantMessage(message.Content))
	}
	return items
}

func buildHeaders(apiKey string, provider llm.ModelProviderInfo, extra http.Header) http.Header {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)
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
