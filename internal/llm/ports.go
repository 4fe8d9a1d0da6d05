// Package llm defines the ports for the hosted model collaborator. The
// application only builds prompts and consumes text; inference itself is
// external.
package llm

import "context"

// Chunk is one increment of a streamed model response. A non-nil Err
// terminates the stream; text already delivered stands.
type Chunk struct {
	Text string
	Err  error
}

type (
	// Completer produces a full text completion for a prompt.
	Completer interface {
		Complete(ctx context.Context, system, prompt string) (string, error)
	}

	// Streamer produces a completion as a sequence of text increments.
	// The channel is closed when the stream ends, errors, or ctx is
	// cancelled; after cancellation no further chunks are delivered.
	Streamer interface {
		Stream(ctx context.Context, system, prompt string) (<-chan Chunk, error)
	}
)
