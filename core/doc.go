// Package core provides the foundational domain types, interfaces and
// execution contexts used by the conversation orchestration engine. It defines
// the core abstractions for:
//
//   - Sessions (the serializable per-conversation record: collected data,
//     current route/step, pending transitions)
//   - Events (immutable conversation history records)
//   - TurnContext / ToolContext (scoped execution & tool sandboxing)
//   - Pluggable stores for session snapshots and message history
//
// The package intentionally keeps implementation concerns (persistence,
// pipeline orchestration, concrete tools) out of scope, exposing small
// interfaces to enable custom backends and extensions.
package core
