// Package scoping implements the Gathering/Complete dialog state machine
// that converts user utterances into a validated Requirements record (C5).
package scoping

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/larachado/coordinator/internal/apperr"
	"github.com/larachado/coordinator/internal/domain"
	"github.com/larachado/coordinator/internal/llmgateway"
	"github.com/larachado/coordinator/internal/tokenbudget"
)

// maxResponseTokens mirrors the maxTokens argument passed to Complete below;
// the transcript trim reserves this much of the model's window for the reply.
const maxResponseTokens = 600

const systemPromptTemplate = `You are a real-estate requirements scoping assistant. You converse in the
user's language (Portuguese or English) and extract structured housing
requirements from the conversation.

Known requirements so far:
%s

Reply with ONLY a JSON object matching this schema:
{
  "location": string|null,
  "bedrooms": number|null,
  "bathrooms": number|null,
  "budget_min": number|null,
  "budget_max": number|null,
  "is_rent": boolean|null,
  "additional_info": string|null,
  "is_complete": boolean,
  "needs_more_info": boolean,
  "message_to_user": string
}

Set is_complete=true only when you have at least a location and either
bedrooms or a maximum budget. message_to_user must be a natural reply in the
user's language, safe to show directly in a chat bubble.`

type llmTurn struct {
	Location       *string  `json:"location"`
	Bedrooms       *int     `json:"bedrooms"`
	Bathrooms      *float64 `json:"bathrooms"`
	BudgetMin      *float64 `json:"budget_min"`
	BudgetMax      *float64 `json:"budget_max"`
	IsRent         *bool    `json:"is_rent"`
	AdditionalInfo *string  `json:"additional_info"`
	IsComplete     bool     `json:"is_complete"`
	NeedsMoreInfo  bool     `json:"needs_more_info"`
	MessageToUser  string   `json:"message_to_user"`
}

// Result is what the coordinator gets back from one scoping turn.
type Result struct {
	Requirements   domain.Requirements
	State          domain.ScopingState
	MessageToUser  string
}

// Agent drives the state machine for one turn at a time; the coordinator is
// responsible for persisting Requirements/State into the session between
// calls.
type Agent struct {
	llm       *llmgateway.Gateway
	estimator *tokenbudget.Estimator
	logger    *zap.Logger
}

func New(llm *llmgateway.Gateway, logger *zap.Logger) *Agent {
	return &Agent{
		llm:       llm,
		estimator: tokenbudget.New(llm.Model()),
		logger:    logger.With(zap.String("component", "scoping")),
	}
}

// trimTranscript drops the oldest turns once systemPrompt plus the
// transcript would overflow the model's context window, leaving room for
// the reserved response tokens. Falls back to the untrimmed transcript if
// token counting fails.
func (a *Agent) trimTranscript(transcript []domain.Turn, systemPrompt string) []domain.Turn {
	sysTokens, err := a.estimator.Count(systemPrompt)
	if err != nil {
		return transcript
	}

	msgs := make([]tokenbudget.Message, len(transcript))
	for i, t := range transcript {
		msgs[i] = tokenbudget.Message{Role: string(t.Role), Content: t.Text}
	}

	trimmed := a.estimator.TrimToFit(msgs, sysTokens+maxResponseTokens)
	if len(trimmed) == len(transcript) {
		return transcript
	}

	out := make([]domain.Turn, len(trimmed))
	for i, m := range trimmed {
		out[i] = domain.Turn{Role: domain.Role(m.Role), Text: m.Content}
	}
	return out
}

// Handle processes one user utterance. priorState/priorReqs are the
// session's current state and requirements; transcript is the full prior
// history (the new utterance is appended by the caller before invoking
// this, matching §4.5's "(b) the full prior transcript").
func (a *Agent) Handle(ctx context.Context, priorState domain.ScopingState, priorReqs domain.Requirements, transcript []domain.Turn) Result {
	// A turn arriving while Complete is a refinement: re-enter Gathering
	// with the prior requirements as seed (§4.5).
	seed := priorReqs

	systemPrompt := fmt.Sprintf(systemPromptTemplate, describeRequirements(seed))
	userPrompt := renderTranscript(a.trimTranscript(transcript, systemPrompt))

	raw, aerr := a.llm.Complete(ctx, systemPrompt, userPrompt, true, maxResponseTokens, 0.2)
	if aerr != nil {
		a.logger.Warn("scoping LLM call failed", zap.Error(aerr))
		return Result{
			Requirements:  seed,
			State:         domain.StateGathering,
			MessageToUser: explanatoryMessage(aerr),
		}
	}

	var turn llmTurn
	if err := json.Unmarshal([]byte(raw), &turn); err != nil {
		return Result{
			Requirements:  seed,
			State:         domain.StateGathering,
			MessageToUser: "Desculpe, não consegui processar a sua mensagem. Pode reformular? / Sorry, please rephrase.",
		}
	}

	patch := domain.Requirements{}
	if turn.Location != nil {
		patch.Location = *turn.Location
	}
	patch.Bedrooms = turn.Bedrooms
	patch.Bathrooms = turn.Bathrooms
	patch.BudgetMin = turn.BudgetMin
	patch.BudgetMax = turn.BudgetMax
	if turn.AdditionalInfo != nil {
		patch.AdditionalInfo = *turn.AdditionalInfo
	}

	patchSetIsRent := turn.IsRent != nil
	if patchSetIsRent {
		patch.IsRent = *turn.IsRent
	}

	merged := seed.Merge(patch, patchSetIsRent)

	if verr := merged.Validate(); verr != nil {
		return Result{
			Requirements:  seed,
			State:         domain.StateGathering,
			MessageToUser: verr.Message,
		}
	}

	state := domain.StateGathering
	if merged.IsUsable() && turn.IsComplete {
		state = domain.StateComplete
	}

	return Result{
		Requirements:  merged,
		State:         state,
		MessageToUser: turn.MessageToUser,
	}
}

func describeRequirements(r domain.Requirements) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- location: %q\n", r.Location)
	if r.Bedrooms != nil {
		fmt.Fprintf(&b, "- bedrooms: %d\n", *r.Bedrooms)
	}
	if r.Bathrooms != nil {
		fmt.Fprintf(&b, "- bathrooms: %.1f\n", *r.Bathrooms)
	}
	if r.BudgetMin != nil {
		fmt.Fprintf(&b, "- budget_min: %.0f\n", *r.BudgetMin)
	}
	if r.BudgetMax != nil {
		fmt.Fprintf(&b, "- budget_max: %.0f\n", *r.BudgetMax)
	}
	fmt.Fprintf(&b, "- is_rent: %v\n", r.IsRent)
	return b.String()
}

func renderTranscript(transcript []domain.Turn) string {
	var b strings.Builder
	for _, t := range transcript {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Text)
	}
	return b.String()
}

func explanatoryMessage(aerr *apperr.Error) string {
	switch aerr.Kind {
	case apperr.Configuration:
		return "O assistente não está configurado corretamente (" + aerr.Message + "). Por favor contacte o suporte."
	default:
		return "Desculpe, tive um problema a processar o seu pedido. Pode tentar novamente?"
	}
}
