package domain

import (
	"context"
)

// Embedder turns text into a vector in the evidence index's space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// EvidenceStore is the pre-built similarity index over literature passages.
type EvidenceStore interface {
	// Search returns up to k passages ordered by descending similarity.
	Search(ctx context.Context, vector []float32, k int) ([]EvidencePassage, error)
	Close() error
}

// Completer sends a single prompt to a generative backend.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Generator is the readiness-gated live generation capability.
// Invoke must only be called when Ready reports true.
type Generator interface {
	Ready() bool
	Invoke(ctx context.Context, q RetrievalQuery) (string, error)
}
