// Package negotiation runs the synchronous end-to-end negotiate operation
// (C10): a compressed research pass feeds a call-agent brief, a telephony
// call is placed and polled to completion, and the transcript becomes the
// returned NegotiationRecord.
package negotiation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/larachado/coordinator/internal/domain"
	"github.com/larachado/coordinator/internal/llmgateway"
	"github.com/larachado/coordinator/internal/searchprovider"
	"github.com/larachado/coordinator/internal/telephony"
)

const researchSchemaPrompt = `You are a buyer's agent preparing leverage for a price negotiation on a
property. Using the search snippets below about the address and its market,
reply with ONLY a JSON object:
{
  "findings": [string],
  "leverage_score": number
}
findings are short factual statements useful as negotiating leverage (time on
market, comparable prices, reported issues). leverage_score is 0-10, how much
room the buyer likely has to negotiate down.`

type researchJSON struct {
	Findings      []string `json:"findings"`
	LeverageScore float64  `json:"leverage_score"`
}

// Request carries everything a negotiate call needs beyond the agent's own
// collaborators.
type Request struct {
	Address        string
	CallerName     string
	CallerEmail    string
	AdditionalInfo string
	ToNumber       string
}

// Agent implements the negotiation stage.
type Agent struct {
	search    *searchprovider.Provider
	llm       *llmgateway.Gateway
	telephony *telephony.Client
	logger    *zap.Logger
}

func New(search *searchprovider.Provider, llm *llmgateway.Gateway, tel *telephony.Client, logger *zap.Logger) *Agent {
	return &Agent{search: search, llm: llm, telephony: tel, logger: logger.With(zap.String("component", "negotiation"))}
}

// Run executes the full C10 pipeline and returns a NegotiationRecord, or an
// error when call creation or status polling fails. A failed transcript
// fetch only leaves CallSummary empty.
func (a *Agent) Run(ctx context.Context, req Request) (domain.NegotiationRecord, error) {
	findings, leverage := a.researchPass(ctx, req.Address)

	brief := buildBrief(req, findings)

	callID, aerr := a.telephony.CreateCall(ctx, brief, req.ToNumber)
	if aerr != nil {
		return domain.NegotiationRecord{}, aerr
	}

	status, aerr := a.telephony.PollUntilTerminal(ctx, callID)
	if aerr != nil {
		return domain.NegotiationRecord{}, aerr
	}

	var callSummary string
	if transcript, terr := a.telephony.GetTranscript(ctx, callID); terr == nil {
		callSummary = transcript
	} else {
		a.logger.Warn("transcript fetch failed after call terminated", zap.Error(terr))
	}

	return domain.NegotiationRecord{
		Address:       req.Address,
		CallerName:    req.CallerName,
		CallerEmail:   req.CallerEmail,
		Brief:         brief,
		Findings:      findings,
		LeverageScore: leverage,
		CallSummary:   callSummary,
		Success:       status == telephony.StatusEnded,
	}, nil
}

// researchPass runs the compressed search + LLM analysis step. On any
// failure it degrades to an empty findings list rather than failing the
// negotiation, per §4.10's "if step 1 fails, still proceed".
func (a *Agent) researchPass(ctx context.Context, address string) ([]string, float64) {
	query := fmt.Sprintf("%s property price history comparable sales", address)
	hits, aerr := a.search.Search(ctx, query, "google")
	if aerr != nil {
		a.logger.Debug("negotiation research search failed, proceeding without findings", zap.Error(aerr))
		return nil, 0
	}

	var b strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&b, "- %s: %s\n", h.Title, h.Snippet)
	}
	if b.Len() == 0 {
		return nil, 0
	}

	raw, aerr := a.llm.Complete(ctx, researchSchemaPrompt, b.String(), true, 500, 0.3)
	if aerr != nil {
		a.logger.Debug("negotiation research LLM call failed, proceeding without findings", zap.Error(aerr))
		return nil, 0
	}

	var parsed researchJSON
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, 0
	}

	leverage := parsed.LeverageScore
	if leverage < 0 {
		leverage = 0
	}
	if leverage > 10 {
		leverage = 10
	}
	return parsed.Findings, leverage
}

func buildBrief(req Request, findings []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Call the listing agent for %s on behalf of %s (%s).\n", req.Address, req.CallerName, req.CallerEmail)
	if req.AdditionalInfo != "" {
		fmt.Fprintf(&b, "Buyer instructions: %s\n", req.AdditionalInfo)
	}
	if len(findings) > 0 {
		b.WriteString("Negotiating leverage:\n")
		for _, f := range findings {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String()
}
