package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/larachado/coordinator/api"
	"github.com/larachado/coordinator/internal/agents/negotiation"
	"github.com/larachado/coordinator/internal/apperr"
	"github.com/larachado/coordinator/internal/coordinator"
)

// NegotiateHandler serves POST /api/negotiate.
type NegotiateHandler struct {
	coord  *coordinator.Coordinator
	logger *zap.Logger
}

func NewNegotiateHandler(coord *coordinator.Coordinator, logger *zap.Logger) *NegotiateHandler {
	return &NegotiateHandler{coord: coord, logger: logger}
}

// @Summary Request a negotiation call
// @Description Place an AI-driven phone call to the listing agent and return the result
// @Tags negotiate
// @Accept json
// @Produce json
// @Param request body api.NegotiateRequest true "negotiation request"
// @Success 200 {object} api.NegotiateResponse
// @Failure 400 {object} api.NegotiateResponse
// @Failure 500 {object} api.NegotiateResponse
// @Router /api/negotiate [post]
func (h *NegotiateHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.NegotiateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if req.Address == "" {
		WriteJSON(w, http.StatusBadRequest, api.NegotiateResponse{
			Success: false,
			Message: "address is required",
		})
		return
	}

	record, err := h.coord.Negotiate(r.Context(), negotiation.Request{
		Address:        req.Address,
		CallerName:     req.Name,
		CallerEmail:    req.Email,
		AdditionalInfo: req.AdditionalInfo,
		ToNumber:       req.ToNumber,
	})
	if err != nil {
		aerr := apperr.AsError(err)
		h.logger.Error("negotiation failed", zap.Error(aerr))
		WriteJSON(w, aerr.HTTPStatus, api.NegotiateResponse{
			Success: false,
			Message: aerr.Message,
		})
		return
	}

	message := "Chamada concluída com sucesso."
	if !record.Success {
		message = "A chamada não foi concluída com sucesso."
	}

	WriteJSON(w, http.StatusOK, api.NegotiateResponse{
		Success:       record.Success,
		Message:       message,
		LeverageScore: record.LeverageScore,
		Findings:      record.Findings,
		CallSummary:   record.CallSummary,
	})
}
