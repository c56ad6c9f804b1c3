// Package answer drives grounded completions across an ordered list of
// providers, falling back model by model until one answers.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bull/clinical-rag/internal/provider"
)

const (
	// Unavailable is returned as the answer when every candidate failed.
	Unavailable = "Service temporarily unavailable. All free providers are at capacity."

	// NoProvenance labels an answer no provider produced.
	NoProvenance = "None"

	// DefaultAttemptTimeout bounds a single provider attempt.
	DefaultAttemptTimeout = 25 * time.Second

	// DefaultTopK is the number of chunks retrieved as context.
	DefaultTopK = 5
)

// ErrEmptyQuestion is returned for blank questions.
var ErrEmptyQuestion = errors.New("question is empty")

// Provider is one entry of the fallback list.
type Provider struct {
	Name    string
	Models  []string // Tried in order
	Client  provider.Client
	Style   PromptStyle
	Timeout time.Duration // Per attempt; zero uses DefaultAttemptTimeout
}

// Attempt records one provider/model try. Attempts are never persisted.
type Attempt struct {
	Provider string
	Model    string
	Outcome  provider.Outcome
}

// Answer is the result of Ask.
type Answer struct {
	Text       string
	Provenance string
	Attempts   []Attempt
}

// Succeeded reports whether a provider produced the answer.
func (a Answer) Succeeded() bool {
	return a.Provenance != NoProvenance
}

// Provenance formats the label of a successful candidate.
func Provenance(providerName, model string) string {
	return fmt.Sprintf("%s (%s)", providerName, model)
}

// ContextRetriever supplies the grounding context block for a question.
type ContextRetriever interface {
	GetContext(ctx context.Context, query string, k int) (string, error)
}

// Orchestrator answers questions from retrieved context. It holds no
// per-request state and may serve concurrent requests.
type Orchestrator struct {
	retriever ContextRetriever
	providers []Provider
	plan      []candidate
	topK      int
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTopK sets how many chunks are retrieved per question.
func WithTopK(k int) Option {
	return func(o *Orchestrator) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithLogger sets the logger for attempt and fallback events.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator creates an orchestrator trying providers in the given order.
func NewOrchestrator(retriever ContextRetriever, providers []Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		retriever: retriever,
		providers: providers,
		plan:      planFor(providers),
		topK:      DefaultTopK,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Ask retrieves context for question and completes it with fallback.
// Provider failures never surface as errors; the returned error is non-nil only
// for a blank question, a retrieval failure or a cancelled ctx, and the
// Answer then carries the Unavailable message.
func (o *Orchestrator) Ask(ctx context.Context, question string) (Answer, error) {
	if strings.TrimSpace(question) == "" {
		return unavailable(nil), ErrEmptyQuestion
	}

	contextBlock, err := o.retriever.GetContext(ctx, question, o.topK)
	if err != nil {
		return unavailable(nil), fmt.Errorf("retrieve context: %w", err)
	}
	return o.Complete(ctx, contextBlock, question)
}

// AskSymptoms treats a list of symptoms as a single question.
func (o *Orchestrator) AskSymptoms(ctx context.Context, symptoms []string) (Answer, error) {
	parts := make([]string, 0, len(symptoms))
	for _, s := range symptoms {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return o.Ask(ctx, strings.Join(parts, ", "))
}

// Complete runs the fallback plan against an already retrieved context block.
func (o *Orchestrator) Complete(ctx context.Context, contextBlock, question string) (Answer, error) {
	m := newMachine(o.plan)
	var attempts []Attempt

	for m.state == stateTrying {
		if err := ctx.Err(); err != nil {
			return unavailable(attempts), err
		}

		c := m.current()
		p := o.providers[c.provider]
		o.logger.Info("Trying provider", "provider", p.Name, "model", c.model)

		res := o.attempt(ctx, p, c.model, contextBlock, question)
		attempts = append(attempts, Attempt{Provider: p.Name, Model: c.model, Outcome: res.Outcome})

		if m.advance(res) == stateSucceeded {
			return Answer{
				Text:       res.Text,
				Provenance: Provenance(p.Name, c.model),
				Attempts:   attempts,
			}, nil
		}

		o.logger.Warn("Provider attempt failed",
			"provider", p.Name,
			"model", c.model,
			"outcome", res.Outcome.String(),
			"error", res.Err,
		)
		if m.state == stateTrying && m.current().provider != c.provider {
			o.logger.Info("Falling back", "from", p.Name, "to", o.providers[m.current().provider].Name)
		}
	}

	// Cancellation during the last candidate also ends the plan.
	if err := ctx.Err(); err != nil {
		return unavailable(attempts), err
	}
	o.logger.Error("All providers exhausted", "attempts", len(attempts))
	return unavailable(attempts), nil
}

// attempt runs one bounded completion call.
func (o *Orchestrator) attempt(ctx context.Context, p Provider, model, contextBlock, question string) provider.Result {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if p.Client == nil {
		return provider.TransportError(fmt.Errorf("provider %s has no client", p.Name))
	}
	return p.Client.Complete(ctx, model, BuildMessages(p.Style, contextBlock, question))
}

func unavailable(attempts []Attempt) Answer {
	return Answer{Text: Unavailable, Provenance: NoProvenance, Attempts: attempts}
}
