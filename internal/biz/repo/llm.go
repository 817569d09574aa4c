package repo

import "context"

// LLMRepo generates free-form replies
type LLMRepo interface {
	// Complete answers a prompt under a system instruction
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ClassifierRepo classifies media files stored on disk
type ClassifierRepo interface {
	// Classify returns a probability per NSFW category (e.g. porn, sexy, hentai)
	Classify(ctx context.Context, path string) (map[string]float64, error)
}
