package repair

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"scenesmith/internal/codegen"
	"scenesmith/internal/config"
	"scenesmith/internal/jobstore"
	"scenesmith/internal/logging"
	"scenesmith/internal/services"
)

// Completer is the slice of the chat client the planner needs.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Outcome is a validated repair candidate, or the reason there is none.
type Outcome struct {
	Accepted bool
	Source   string
	Events   []codegen.Event
	Reason   string
}

const (
	defaultMinLengthRatio   = 0.70
	defaultMinPlayRetention = 0.75
)

// Planner asks the code-edit model for a corrected scene file and vets the
// response. Acceptance here is provisional: the orchestrator still re-renders
// and rolls back when the fix does not reduce the issue count.
type Planner struct {
	completer        Completer
	minLengthRatio   float64
	minPlayRetention float64
	logger           *slog.Logger
}

// NewPlanner constructs a Planner from configuration.
func NewPlanner(completer Completer, cfg *config.Config, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = logging.NewNop()
	}
	lengthRatio := cfg.Repair.MinLengthRatio
	if lengthRatio <= 0 || lengthRatio >= 1 {
		lengthRatio = defaultMinLengthRatio
	}
	playRetention := cfg.Repair.MinPlayRetention
	if playRetention <= 0 || playRetention > 1 {
		playRetention = defaultMinPlayRetention
	}
	return &Planner{
		completer:        completer,
		minLengthRatio:   lengthRatio,
		minPlayRetention: playRetention,
		logger:           logger,
	}
}

// Plan requests a corrected source file for the listed issues. A rejected
// candidate returns Accepted=false with a concrete reason; only transport
// failures return an error.
func (p *Planner) Plan(ctx context.Context, source string, issues []jobstore.IssueReport) (Outcome, error) {
	if strings.TrimSpace(source) == "" {
		return Outcome{}, services.Wrap(services.ErrRepair, "repair", "plan", "empty source", nil)
	}
	if len(issues) == 0 {
		return Outcome{Reason: "no issues to repair"}, nil
	}

	brief := buildBrief(issues)
	raw, err := p.completer.Complete(ctx, repairSystemPrompt, repairUserPrompt(source, brief))
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrRepair, "repair", "complete", "code-edit request failed", err)
	}

	candidate := codegen.CleanSource(raw)
	if reason := p.validate(source, candidate); reason != "" {
		p.logger.Warn("repair candidate rejected", slog.String("reason", reason))
		return Outcome{Reason: reason}, nil
	}

	events := codegen.ParseEvents(candidate)
	p.logger.Info("repair candidate accepted",
		slog.Int("issues", len(issues)),
		slog.Int("events", len(events)))
	return Outcome{Accepted: true, Source: candidate, Events: events, Reason: "accepted"}, nil
}

// validate runs the static checklist. Any failure rejects the candidate
// outright; an empty return string means it passed.
func (p *Planner) validate(original, candidate string) string {
	if strings.TrimSpace(candidate) == "" {
		return "candidate is empty"
	}
	sceneName := codegen.SceneClassName(original)
	if err := codegen.ValidateSource(candidate, sceneName); err != nil {
		return fmt.Sprintf("candidate not well-formed: %v", err)
	}
	if strings.TrimSpace(candidate) == strings.TrimSpace(original) {
		return "candidate is identical to the input"
	}
	if float64(len(candidate)) < p.minLengthRatio*float64(len(original)) {
		return fmt.Sprintf("candidate shrank below %.0f%% of the input", p.minLengthRatio*100)
	}
	originalEvents := len(codegen.ParseEvents(original))
	candidateEvents := len(codegen.ParseEvents(candidate))
	if originalEvents > 0 && float64(candidateEvents) < p.minPlayRetention*float64(originalEvents) {
		return fmt.Sprintf("candidate keeps %d of %d animation events, below the retention floor", candidateEvents, originalEvents)
	}
	return ""
}
