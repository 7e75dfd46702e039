// Package agent defines the text-generation collaborator boundary. The
// actual model invocation lives outside this module; hookhost only decides
// when to call it and how to treat its output.
package agent

import (
	"context"
	"fmt"
	"strings"
)

// TextGenerator is the external text-generation collaborator. Prompt hooks
// and title generation go through it.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt, model string) (string, error)
}

// maxTitleLen bounds accepted session titles.
const maxTitleLen = 100

const titlePromptPrefix = "Write a short title (a few words, no quotes) for the following session:\n\n"

// GenerateTitle asks the collaborator for a session title. The result is
// trimmed and accepted only if non-empty and under 100 characters; anything
// else is a failed generation, not a panic.
func GenerateTitle(ctx context.Context, g TextGenerator, model, summary string) (string, error) {
	raw, err := g.GenerateText(ctx, titlePromptPrefix+summary, model)
	if err != nil {
		return "", fmt.Errorf("generating title: %w", err)
	}

	title := strings.TrimSpace(raw)
	if title == "" {
		return "", fmt.Errorf("generating title: empty result")
	}
	if len(title) >= maxTitleLen {
		return "", fmt.Errorf("generating title: result too long (%d chars)", len(title))
	}
	return title, nil
}
