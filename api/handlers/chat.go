package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/larachado/coordinator/api"
	"github.com/larachado/coordinator/internal/apperr"
	"github.com/larachado/coordinator/internal/coordinator"
)

// ChatHandler serves POST /api/chat.
type ChatHandler struct {
	coord  *coordinator.Coordinator
	logger *zap.Logger
}

func NewChatHandler(coord *coordinator.Coordinator, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{coord: coord, logger: logger}
}

// @Summary Chat turn
// @Description Send one message in the real-estate search conversation
// @Tags chat
// @Accept json
// @Produce json
// @Param request body api.ChatRequest true "chat turn"
// @Success 200 {object} api.Envelope
// @Failure 400 {object} api.Envelope
// @Failure 500 {object} api.Envelope
// @Router /api/chat [post]
func (h *ChatHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if req.Message == "" || req.SessionID == "" {
		WriteError(w, apperr.New(apperr.LogicError, "message and session_id are required").WithHTTPStatus(http.StatusBadRequest), h.logger)
		return
	}

	resp, aerr := h.coord.Chat(r.Context(), coordinator.ChatRequest{SessionID: req.SessionID, Message: req.Message})
	if aerr != nil {
		WriteError(w, aerr, h.logger)
		return
	}

	WriteSuccess(w, toChatData(resp))
}

func toChatData(resp coordinator.ChatResponse) api.ChatData {
	data := api.ChatData{
		Message:          resp.Message,
		IsComplete:       resp.IsComplete,
		Requirements:     resp.Requirements,
		Properties:       resp.Properties,
		SearchSummary:    resp.SearchSummary,
		TotalFound:       resp.TotalFound,
		RawSearchResults: resp.RawSearchResults,
		CommunityAnalysis: resp.CommunityAnalysis,
	}
	if resp.TopResultCoordinates != nil {
		data.TopResultCoordinates = &api.TopResultCoordinates{
			Latitude:  resp.TopResultCoordinates.Latitude,
			Longitude: resp.TopResultCoordinates.Longitude,
			Address:   resp.TopResultCoordinates.Address,
			ImageURL:  resp.TopResultCoordinates.ImageURL,
		}
	}
	return data
}
