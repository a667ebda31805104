package interfaces

import (
	"context"
)

// Message represents a single message in a chat conversation
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}

// TokenFunc receives one generated text chunk during streaming.
type TokenFunc func(token string)

// LLMProvider defines the capability contract over a vendor chat-completion
// API. Implementations normalize two concerns the orchestrator must not see:
// extracting the (at most one) system turn into the vendor's system slot, and
// injecting retrieved grounding context using the vendor's own markup
// convention before the request is sent.
type LLMProvider interface {
	// Generate produces a complete response for the conversation.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - messages: Conversation in chronological order; at most one entry
	//     may carry role "system"
	//   - contextText: Retrieved grounding material, injected by the
	//     provider using its own convention; may be empty
	//   - temperature: Sampling temperature in [0,1]
	//
	// Returns:
	//   - string: Complete generated answer
	//   - error: Error if the backend call fails
	Generate(ctx context.Context, messages []Message, contextText string, temperature float64) (string, error)

	// Stream produces the response incrementally, invoking onToken for each
	// chunk in generation order. Consuming a full stream yields the same
	// text Generate would return for equivalent inputs, modulo sampling.
	// Cancelling ctx abandons the upstream connection without draining it.
	//
	// Returns an error if the backend call fails, including mid-stream.
	Stream(ctx context.Context, messages []Message, contextText string, temperature float64, onToken TokenFunc) error

	// Name returns the provider selection name ("claude" or "gemini").
	Name() string

	// HealthCheck verifies the backend is reachable with a minimal probe.
	HealthCheck(ctx context.Context) error
}
