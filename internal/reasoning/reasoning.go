// Package reasoning provides the client for the external reasoning capability
// used by clarification and specialist analysis.
package reasoning

import (
	"context"
)

// Invoker is the contract for the external reasoning capability. It is a
// fallible dependency with no guarantee beyond request/response; callers own
// retries and fallback.
type Invoker interface {
	// Invoke sends a prompt and returns the model's text reply.
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Ensure Client implements Invoker.
var _ Invoker = (*Client)(nil)
