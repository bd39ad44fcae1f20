// Package llm provides the provider-neutral core of the streaming model
// client: conversation and event types, error classification, SSE frame
// parsing, rate limit header extraction, and provider configuration.
//
// This package defines common types and utilities that let the rest of
// the codebase work with multiple wire shapes (the "responses" streaming
// endpoint and the "chat completions" endpoint) without being coupled to
// either schema.
//
// # Core Concepts
//
//  1. Prompt: an ordered list of ResponseItem values (messages, reasoning
//     blocks, tool calls and their outputs) plus tool declarations and
//     optional instruction/schema overrides. Prompts are immutable once
//     constructed and owned by the caller.
//
//  2. ResponseEvent: the tagged union yielded while streaming. Every
//     successful stream yields an optional RateLimits event first, body
//     events in wire order, and exactly one Completed event last.
//
//  3. Stream and Client interfaces: pull-based iteration over events and
//     the provider-neutral entry points implemented by each wire shape.
//
//  4. Errors: the Error type classifies failures as retryable (429, 5xx,
//     transport) or fatal (other 4xx, configuration, protocol), which
//     drives the retry orchestrator in the retry package.
//
//  5. SSEScanner: an incremental Server-Sent-Events parser that tolerates
//     arbitrary read chunking and recognizes the [DONE] sentinel.
//
// Wire-shape implementations live in the llm/responses and llm/chat
// subpackages; the client package wires everything together behind a
// single façade.
package llm
