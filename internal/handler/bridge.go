package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/traychat/internal/llm"
	"github.com/capitalize-ai/traychat/internal/middleware"
	"github.com/capitalize-ai/traychat/internal/model"
	"github.com/capitalize-ai/traychat/internal/service"
	"github.com/capitalize-ai/traychat/internal/settings"
	"github.com/capitalize-ai/traychat/pkg/logger"
)

// maxBodyBytes leaves room for JSON escaping around the largest message.
const maxBodyBytes = 8 * middleware.MaxContentBytes

// BridgeHandler serves the commands the desktop webview invokes.
type BridgeHandler struct {
	broker *service.Broker
	store  *settings.Store
	logger *logger.Logger
}

// NewBridgeHandler creates a new bridge handler.
func NewBridgeHandler(broker *service.Broker, store *settings.Store, log *logger.Logger) *BridgeHandler {
	if log == nil {
		log = logger.Global()
	}
	return &BridgeHandler{
		broker: broker,
		store:  store,
		logger: log,
	}
}

// HandleRequest handles POST /invoke/handle_request
func (h *BridgeHandler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	var req model.HandleRequest
	if !decode(w, r, &req) {
		return
	}

	if err := middleware.ValidateModel(req.Model); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := h.broker.Handle(r.Context(), req.Model, req.Input, req.ClearHistory)
	if err != nil {
		status := completionStatus(err)
		h.logger.ForRequest(middleware.GetCorrelationID(r.Context())).Warn("handle_request failed",
			zap.Int("status", status),
			zap.Error(err),
		)
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, model.HandleResponse{Reply: reply})
}

// LoadSettings handles POST /invoke/load_settings
func (h *BridgeHandler) LoadSettings(w http.ResponseWriter, r *http.Request) {
	var req model.LoadSettingsRequest
	if !decode(w, r, &req) {
		return
	}

	loaded, err := h.store.Load(req.DefaultModel, req.DefaultPreventExit)
	if err != nil {
		h.logger.Error("load_settings failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, loaded)
}

// SaveSettings handles POST /invoke/save_settings
func (h *BridgeHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var req model.SaveSettingsRequest
	if !decode(w, r, &req) {
		return
	}

	if err := middleware.ValidateModel(req.Model); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Save(req.Model, req.PreventExit); err != nil {
		h.logger.Error("save_settings failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetExitPrevention handles POST /invoke/set_exit_prevention
func (h *BridgeHandler) SetExitPrevention(w http.ResponseWriter, r *http.Request) {
	var req model.ExitPreventionRequest
	if !decode(w, r, &req) {
		return
	}

	h.store.SetExitPrevention(req.ExitAllowed)
	w.WriteHeader(http.StatusNoContent)
}

// ExitPrevention handles GET /exit-prevention
func (h *BridgeHandler) ExitPrevention(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.ExitPreventionResponse{PreventExit: h.store.PreventExit()})
}

// completionStatus maps a broker error to an HTTP status.
func completionStatus(err error) int {
	switch {
	case errors.Is(err, llm.ErrMissingAPIKey):
		return http.StatusServiceUnavailable
	case errors.Is(err, llm.ErrSend),
		errors.Is(err, llm.ErrDecode),
		errors.Is(err, llm.ErrStatus),
		errors.Is(err, llm.ErrMissingContent):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
