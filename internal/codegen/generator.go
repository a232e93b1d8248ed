package codegen

import (
	"context"
	"fmt"
	"log/slog"

	"scenesmith/internal/logging"
	"scenesmith/internal/services"
)

// Completer is the slice of the chat client the generator needs.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Result is a validated scene file ready to render.
type Result struct {
	SceneName string
	Source    string
	Events    []Event
}

// Generator produces scene files from prompts, retrying once with the
// rejection reason when the model returns an unusable file.
type Generator struct {
	completer        Completer
	maxRegenerations int
	logger           *slog.Logger
}

// NewGenerator constructs a Generator. maxRegenerations bounds how many extra
// attempts are made after a rejected response.
func NewGenerator(completer Completer, maxRegenerations int, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if maxRegenerations < 0 {
		maxRegenerations = 0
	}
	return &Generator{
		completer:        completer,
		maxRegenerations: maxRegenerations,
		logger:           logger,
	}
}

// Generate asks the model for a scene file implementing the prompt. The
// returned source always declares sceneName and at least one animation event.
func (g *Generator) Generate(ctx context.Context, prompt, sceneName string) (Result, error) {
	sceneName = NormalizeSceneName(sceneName, prompt)
	userPrompt := generationUserPrompt(prompt, sceneName)

	var lastErr error
	attempts := g.maxRegenerations + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		raw, err := g.completer.Complete(ctx, generationSystemPrompt, userPrompt)
		if err != nil {
			return Result{}, services.Wrap(services.ErrCodeGeneration, "codegen", "complete", "code generation request failed", err)
		}
		source := CleanSource(raw)
		if err := ValidateSource(source, sceneName); err != nil {
			lastErr = err
			g.logger.Warn("generated source rejected",
				slog.Int("attempt", attempt),
				logging.Error(err))
			userPrompt = regenerationUserPrompt(prompt, sceneName, source, err)
			continue
		}
		events := ParseEvents(source)
		g.logger.Info("scene source generated",
			slog.String("scene", sceneName),
			slog.Int("events", len(events)),
			slog.Int("attempt", attempt))
		return Result{SceneName: sceneName, Source: source, Events: events}, nil
	}
	return Result{}, services.Wrap(services.ErrCodeGeneration, "codegen", "validate",
		fmt.Sprintf("model returned no usable scene file after %d attempts", attempts), lastErr)
}
