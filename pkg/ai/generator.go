package ai

import "context"

// TextGenerator produces a completion from a system prompt and a user prompt.
// The production implementation talks to an OpenAI-compatible endpoint;
// tests substitute a fake that records the prompts it receives.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
