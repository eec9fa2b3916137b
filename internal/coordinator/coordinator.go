// Package coordinator implements C11: session lifecycle, pipeline dispatch
// across the six agents, per-stage deadlines, partial-failure policy, and
// response assembly for the two HTTP operations (chat, negotiate).
package coordinator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/larachado/coordinator/internal/agents/community"
	"github.com/larachado/coordinator/internal/agents/localdiscovery"
	"github.com/larachado/coordinator/internal/agents/mapping"
	"github.com/larachado/coordinator/internal/agents/negotiation"
	"github.com/larachado/coordinator/internal/agents/research"
	"github.com/larachado/coordinator/internal/agents/scoping"
	"github.com/larachado/coordinator/internal/apperr"
	"github.com/larachado/coordinator/internal/ctxkeys"
	"github.com/larachado/coordinator/internal/domain"
	"github.com/larachado/coordinator/internal/metrics"
	"github.com/larachado/coordinator/internal/session"
)

// Deadlines are the §4.11 per-stage budgets making up the 90s chat total.
const (
	TotalChatDeadline  = 90 * time.Second
	researchDeadline   = 60 * time.Second
	mappingDeadline    = 20 * time.Second
	localDiscoDeadline = 15 * time.Second
	communityDeadline  = 30 * time.Second
)

// ChatRequest is one inbound /api/chat call.
type ChatRequest struct {
	SessionID string
	Message   string
}

// ChatResponse is the full success payload for /api/chat; Coordinator fills
// in only the fields relevant to the current stage (gathering vs complete).
type ChatResponse struct {
	Message               string
	IsComplete            bool
	Requirements           *domain.Requirements
	Properties             []domain.EnrichedCandidate
	SearchSummary          string
	TotalFound             int
	RawSearchResults       []domain.EnrichedCandidate
	TopResultCoordinates   *TopResultCoordinates
	CommunityAnalysis      *domain.CommunityReport
}

// TopResultCoordinates is the coordinate summary embedded in a complete
// chat response, per §6.
type TopResultCoordinates struct {
	Latitude  float64
	Longitude float64
	Address   string
	ImageURL  string
}

// Coordinator wires every agent together and owns the session store.
type Coordinator struct {
	sessions *session.Store

	scoping        *scoping.Agent
	research       *research.Agent
	mapping        *mapping.Agent
	localdiscovery *localdiscovery.Agent
	community      *community.Agent
	negotiation    *negotiation.Agent

	metrics *metrics.Collector
	logger  *zap.Logger
}

// SetMetrics attaches a metrics collector for per-stage execution counters.
func (c *Coordinator) SetMetrics(m *metrics.Collector) {
	c.metrics = m
}

func (c *Coordinator) recordStage(stage string, start time.Time, failed bool) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if failed {
		status = "error"
	}
	c.metrics.RecordStageExecution(stage, status, time.Since(start))
}

func New(
	sessions *session.Store,
	scopingAgent *scoping.Agent,
	researchAgent *research.Agent,
	mappingAgent *mapping.Agent,
	localDiscoveryAgent *localdiscovery.Agent,
	communityAgent *community.Agent,
	negotiationAgent *negotiation.Agent,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		sessions:       sessions,
		scoping:        scopingAgent,
		research:       researchAgent,
		mapping:        mappingAgent,
		localdiscovery: localDiscoveryAgent,
		community:      communityAgent,
		negotiation:    negotiationAgent,
		logger:         logger.With(zap.String("component", "coordinator")),
	}
}

// logEnvelope records one inter-agent message boundary. Agents within a
// single pipeline run still call each other directly; the envelope exists so
// every dispatch and outcome is traceable by session and trace id regardless
// of which agent produced it.
func (c *Coordinator) logEnvelope(ctx context.Context, env domain.Envelope) {
	fields := []zap.Field{
		zap.String("session_id", env.SessionID),
		zap.String("kind", string(env.Kind)),
	}
	if env.TraceID != "" {
		fields = append(fields, zap.String("trace_id", env.TraceID))
	}
	if env.Err != nil {
		fields = append(fields, zap.Error(env.Err))
		c.logger.Warn("pipeline envelope", fields...)
		return
	}
	c.logger.Debug("pipeline envelope", fields...)
}

func (c *Coordinator) envelope(ctx context.Context, sessionID string, kind domain.EnvelopeKind, payload any, err *apperr.Error) domain.Envelope {
	traceID, _ := ctxkeys.TraceID(ctx)
	return domain.Envelope{
		SessionID: sessionID,
		Kind:      kind,
		TraceID:   traceID,
		Payload:   payload,
		Err:       err,
	}
}

// Chat runs the full §4.11 chat pipeline for one HTTP request.
func (c *Coordinator) Chat(ctx context.Context, req ChatRequest) (ChatResponse, *apperr.Error) {
	ctx, cancel := context.WithTimeout(ctx, TotalChatDeadline)
	defer cancel()

	// Serializes this session's whole dispatch, external I/O included, per
	// §5; it is a distinct lock from the shard lock WithLock takes below,
	// so unrelated sessions in the same shard are never blocked by it.
	release := c.sessions.Acquire(req.SessionID)
	defer release()

	c.logEnvelope(ctx, c.envelope(ctx, req.SessionID, domain.EnvelopeRequest, req.Message, nil))

	var (
		transcript []domain.Turn
		priorState domain.ScopingState
		priorReqs  domain.Requirements
	)

	// Snapshot under the shard lock, then release it: scoping.Handle makes
	// an LLM call (up to 30s) and must never run while holding the shard
	// lock, since that would block every other session hashed to the same
	// shard for the call's full latency.
	c.sessions.WithLock(req.SessionID, func(sess *session.Session) {
		sess.Transcript = append(sess.Transcript, domain.Turn{Role: domain.RoleUser, Text: req.Message})
		transcript = append([]domain.Turn(nil), sess.Transcript...)
		priorState = sess.State
		priorReqs = sess.Requirements
	})

	stageStart := time.Now()
	result := c.scoping.Handle(ctx, priorState, priorReqs, transcript)
	c.recordStage("scoping", stageStart, false)
	if c.metrics != nil && result.State != priorState {
		c.metrics.RecordScopingTransition(string(priorState), string(result.State))
	}

	isComplete := result.State == domain.StateComplete

	c.sessions.WithLock(req.SessionID, func(sess *session.Session) {
		sess.State = result.State
		sess.Requirements = result.Requirements
		sess.Transcript = append(sess.Transcript, domain.Turn{Role: domain.RoleAssistant, Text: result.MessageToUser})
	})

	if !isComplete {
		resp := ChatResponse{Message: result.MessageToUser, IsComplete: false}
		c.logEnvelope(ctx, c.envelope(ctx, req.SessionID, domain.EnvelopeResponse, resp.Message, nil))
		return resp, nil
	}

	resp, aerr := c.runSearchPipeline(ctx, req.SessionID, result.Requirements)
	c.logEnvelope(ctx, c.envelope(ctx, req.SessionID, domain.EnvelopeResponse, resp.SearchSummary, aerr))
	return resp, aerr
}

// runSearchPipeline executes C6 -> (C7+C8 parallel with C9) -> assembly, once
// Requirements are Complete. Only a C6 fatal/empty outcome turns this into a
// user-facing failure-with-explanation; everything downstream degrades.
func (c *Coordinator) runSearchPipeline(ctx context.Context, sessionID string, reqs domain.Requirements) (ChatResponse, *apperr.Error) {
	researchCtx, cancel := context.WithTimeout(ctx, researchDeadline)
	researchStart := time.Now()
	researchResult := c.research.Run(researchCtx, reqs)
	c.recordStage("research", researchStart, researchResult.Err != nil)
	cancel()

	if researchResult.Err != nil {
		msg := "Não foi possível pesquisar imóveis neste momento. Por favor tente novamente em breve."
		c.persistEmptyResult(sessionID, reqs, msg)
		return ChatResponse{
			Message:        msg,
			IsComplete:     true,
			Requirements:   &reqs,
			Properties:     []domain.EnrichedCandidate{},
			SearchSummary:  msg,
			TotalFound:     0,
		}, nil
	}

	if len(researchResult.Candidates) == 0 {
		msg := "Não encontrámos imóveis que correspondam aos seus critérios. Pode tentar alargar a pesquisa."
		c.persistEmptyResult(sessionID, reqs, msg)
		return ChatResponse{
			Message:       msg,
			IsComplete:    true,
			Requirements:  &reqs,
			Properties:    []domain.EnrichedCandidate{},
			SearchSummary: msg,
			TotalFound:    0,
		}, nil
	}

	var enriched []domain.EnrichedCandidate
	var communityReport *domain.CommunityReport
	warning := ""

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mapCtx, cancel := context.WithTimeout(gctx, mappingDeadline)
		defer cancel()
		mapStart := time.Now()
		geocoded := c.mapping.Resolve(mapCtx, researchResult.Candidates, reqs.Location)
		c.recordStage("mapping", mapStart, false)

		discoCtx, cancel2 := context.WithTimeout(gctx, localDiscoDeadline)
		defer cancel2()
		discoStart := time.Now()
		enriched = c.localdiscovery.Enrich(discoCtx, geocoded, localDiscoDeadline)
		c.recordStage("local_discovery", discoStart, false)
		return nil
	})
	g.Go(func() error {
		// C9 needs only the eventual top candidate's address/city, which is
		// known before geocoding: the research ranking already determined
		// it. Community runs from the un-geocoded top candidate directly.
		if len(researchResult.Candidates) == 0 {
			return nil
		}
		commCtx, cancel := context.WithTimeout(gctx, communityDeadline)
		defer cancel()
		commStart := time.Now()
		top := domain.EnrichedCandidate{GeoCandidate: domain.GeoCandidate{Candidate: researchResult.Candidates[0]}}
		communityReport = c.community.Report(commCtx, top, reqs.Location)
		c.recordStage("community", commStart, false)
		return nil
	})
	_ = g.Wait() // both branches are self-contained and never return an error

	if len(enriched) < len(researchResult.Candidates) {
		warning = fmt.Sprintf(" (%d de %d imóveis não puderam ser totalmente processados a tempo)", len(researchResult.Candidates)-len(enriched), len(researchResult.Candidates))
	}

	var topCoords *TopResultCoordinates
	if len(enriched) > 0 {
		top := enriched[0]
		topCoords = &TopResultCoordinates{
			Latitude:  top.Latitude,
			Longitude: top.Longitude,
			Address:   top.Address,
			ImageURL:  top.ImageURL,
		}
	}

	searchSummary := researchResult.Summary + warning

	c.sessions.WithLock(sessionID, func(sess *session.Session) {
		sess.LastResult = &session.ChatResult{
			Properties:      enriched,
			SearchSummary:   searchSummary,
			TotalFound:      len(enriched),
			CommunityReport: communityReport,
		}
		sess.Transcript = append(sess.Transcript, domain.Turn{Role: domain.RoleAssistant, Text: searchSummary})
	})

	return ChatResponse{
		Message:              searchSummary,
		IsComplete:           true,
		Requirements:         &reqs,
		Properties:           enriched,
		SearchSummary:        searchSummary,
		TotalFound:           len(enriched),
		RawSearchResults:     enriched,
		TopResultCoordinates: topCoords,
		CommunityAnalysis:    communityReport,
	}, nil
}

func (c *Coordinator) persistEmptyResult(sessionID string, reqs domain.Requirements, message string) {
	c.sessions.WithLock(sessionID, func(sess *session.Session) {
		sess.LastResult = &session.ChatResult{
			Properties:    []domain.EnrichedCandidate{},
			SearchSummary: message,
			TotalFound:    0,
		}
		sess.Transcript = append(sess.Transcript, domain.Turn{Role: domain.RoleAssistant, Text: message})
		// Requirements are retained as-is so the user can refine the search,
		// per §8 scenario 3.
	})
}

// Negotiate runs C10 directly; there is no session interaction.
func (c *Coordinator) Negotiate(ctx context.Context, req negotiation.Request) (domain.NegotiationRecord, error) {
	c.logEnvelope(ctx, c.envelope(ctx, "", domain.EnvelopeRequest, req, nil))

	start := time.Now()
	record, err := c.negotiation.Run(ctx, req)
	c.recordStage("negotiation", start, err != nil)

	c.logEnvelope(ctx, c.envelope(ctx, "", domain.EnvelopeResponse, record.Address, apperr.AsError(err)))
	return record, err
}
