package llm

import (
	"encoding/json"
)

// MessageRole represents the role of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleDeveloper MessageRole = "developer"
)

// ItemType discriminates the variants of a ResponseItem.
type ItemType string

const (
	ItemTypeMessage            ItemType = "message"
	ItemTypeReasoning          ItemType = "reasoning"
	ItemTypeFunctionCall       ItemType = "function_call"
	ItemTypeFunctionCallOutput ItemType = "function_call_output"
	ItemTypeWebSearchCall      ItemType = "web_search_call"
)

// ContentBlockType represents the type of content block within a message.
type ContentBlockType string

const (
	ContentBlockTypeInputText  ContentBlockType = "input_text"
	ContentBlockTypeOutputText ContentBlockType = "output_text"
)

// ContentBlock is a single content block within a message item.
type ContentBlock struct {
	Type ContentBlockType
	Text string
}

// ResponseItem is a single item in a conversation: a message, a reasoning
// block, a tool call, a tool call result, or a web search invocation.
// Exactly one of the variant pointers is set, matching Type.
type ResponseItem struct {
	Type ItemType
	ID   string

	Message            *MessageItem
	Reasoning          *ReasoningItem
	FunctionCall       *FunctionCallItem
	FunctionCallOutput *FunctionCallOutputItem
	WebSearchCall      *WebSearchCallItem
}

// MessageItem is a conversation message with a role and content blocks.
type MessageItem struct {
	Role    MessageRole
	Content []ContentBlock
}

// ReasoningItem carries model reasoning: human-readable summary sections
// plus opaque encrypted content returned by the provider.
type ReasoningItem struct {
	Summary          []string
	EncryptedContent string
}

// FunctionCallItem is a tool invocation requested by the model.
// Arguments is the raw JSON argument string as streamed by the provider.
type FunctionCallItem struct {
	Name      string
	Arguments string
	CallID    string
}

// FunctionCallOutputItem is the result of a tool invocation, sent back to
// the model on the next turn.
type FunctionCallOutputItem struct {
	CallID string
	Output string
}

// WebSearchCallItem is a provider-executed web search invocation.
type WebSearchCallItem struct {
	Status string
}

// ToolSpec is a tool definition provided to the model.
// Parameters holds the JSON schema for the tool's input.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Strict      bool
}

// OutputSchema requests structured output conforming to a JSON schema.
type OutputSchema struct {
	Name   string
	Schema json.RawMessage
	Strict bool
}

// Prompt is a complete model request: conversation history, tool
// declarations, and optional overrides. It is owned by the caller and
// never mutated by the client.
type Prompt struct {
	// Input is the ordered conversation history. Must be non-empty.
	Input []ResponseItem

	// Tools are the tool declarations offered to the model this turn.
	Tools []ToolSpec

	// Instructions overrides the provider's default system instructions
	// when non-empty.
	Instructions string

	// OutputSchema constrains the model's final output to a JSON schema.
	OutputSchema *OutputSchema
}

// ReasoningEffort controls how much reasoning the model performs.
type ReasoningEffort string

const (
	ReasoningEffortMinimal ReasoningEffort = "minimal"
	ReasoningEffortLow     ReasoningEffort = "low"
	ReasoningEffortMedium  ReasoningEffort = "medium"
	ReasoningEffortHigh    ReasoningEffort = "high"
)

// ReasoningSummary controls the verbosity of streamed reasoning summaries.
type ReasoningSummary string

const (
	ReasoningSummaryAuto     ReasoningSummary = "auto"
	ReasoningSummaryConcise  ReasoningSummary = "concise"
	ReasoningSummaryDetailed ReasoningSummary = "detailed"
)

// Verbosity controls the length of the model's final output.
type Verbosity string

const (
	VerbosityLow    Verbosity = "low"
	VerbosityMedium Verbosity = "medium"
	VerbosityHigh   Verbosity = "high"
)

// TurnOptions are per-turn request settings layered on top of the static
// provider configuration.
type TurnOptions struct {
	ReasoningEffort  ReasoningEffort
	ReasoningSummary ReasoningSummary
	Verbosity        Verbosity
}

// TokenUsage reports token counts for a completed response. Counts are
// provider-reported and carried as-is; totals are never re-derived locally.
type TokenUsage struct {
	InputTokens           int64
	CachedInputTokens     int64
	OutputTokens          int64
	ReasoningOutputTokens int64
	TotalTokens           int64
}

// EventType discriminates the variants of a ResponseEvent.
type EventType string

const (
	EventTypeCreated                   EventType = "created"
	EventTypeOutputItemDone            EventType = "output_item_done"
	EventTypeOutputTextDelta           EventType = "output_text_delta"
	EventTypeReasoningContentDelta     EventType = "reasoning_content_delta"
	EventTypeReasoningSummaryDelta     EventType = "reasoning_summary_delta"
	EventTypeReasoningSummaryPartAdded EventType = "reasoning_summary_part_added"
	EventTypeWebSearchCallBegin        EventType = "web_search_call_begin"
	EventTypeRateLimits                EventType = "rate_limits"
	EventTypeCompleted                 EventType = "completed"
)

// ResponseEvent is a single event in a model response stream. A successful
// stream yields an optional RateLimits event first, zero or more
// body-derived events in wire order, and exactly one Completed event last.
type ResponseEvent struct {
	Type EventType

	// Item is set for OutputItemDone.
	Item *ResponseItem

	// Delta is set for the text and reasoning delta variants.
	Delta string

	// CallID is set for WebSearchCallBegin.
	CallID string

	// RateLimits is set for the RateLimits variant.
	RateLimits *RateLimitSnapshot

	// ResponseID and Usage are set for Completed.
	ResponseID string
	Usage      *TokenUsage
}

// Response is a complete non-streaming model response.
type Response struct {
	ID     string
	Output []ResponseItem
	Usage  *TokenUsage
}

// NewUserMessage creates a user message item with a single text block.
func NewUserMessage(text string) ResponseItem {
	return ResponseItem{
		Type: ItemTypeMessage,
		Message: &MessageItem{
			Role:    RoleUser,
			Content: []ContentBlock{{Type: ContentBlockTypeInputText, Text: text}},
		},
	}
}

// NewAssistantMessage creates an assistant message item with a single
// output text block.
func NewAssistantMessage(text string) ResponseItem {
	return ResponseItem{
		Type: ItemTypeMessage,
		Message: &MessageItem{
			Role:    RoleAssistant,
			Content: []ContentBlock{{Type: ContentBlockTypeOutputText, Text: text}},
		},
	}
}

// NewFunctionCall creates a function call item.
func NewFunctionCall(name, arguments, callID string) ResponseItem {
	return ResponseItem{
		Type: ItemTypeFunctionCall,
		FunctionCall: &FunctionCallItem{
			Name:      name,
			Arguments: arguments,
			CallID:    callID,
		},
	}
}

// NewFunctionCallOutput creates a function call output item.
func NewFunctionCallOutput(callID, output string) ResponseItem {
	return ResponseItem{
		Type: ItemTypeFunctionCallOutput,
		FunctionCallOutput: &FunctionCallOutputItem{
			CallID: callID,
			Output: output,
		},
	}
}

// Text returns the concatenated text content of a message item, or the
// empty string for non-message items.
func (item ResponseItem) Text() string {
	if item.Type != ItemTypeMessage || item.Message == nil {
		return ""
	}
	var text string
	for _, block := range item.Message.Content {
		text += block.Text
	}
	return text
}

// ToJSON marshals an item to JSON for debugging/logging purposes.
func (item ResponseItem) ToJSON() ([]byte, error) {
	return json.Marshal(item)
}
