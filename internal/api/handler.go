// Package api exposes prediction, chat and history endpoints over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/covid-rag/reinfection-advisor/internal/chat"
	"github.com/covid-rag/reinfection-advisor/internal/classifier"
	"github.com/covid-rag/reinfection-advisor/internal/domain"
	"github.com/covid-rag/reinfection-advisor/internal/explain"
	"github.com/covid-rag/reinfection-advisor/internal/server"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Explainer runs one explanation.
type Explainer interface {
	Run(ctx context.Context, patient domain.PatientContext) explain.Result
}

// Chatter is the chat session capability.
type Chatter interface {
	ProcessMessage(ctx context.Context, message string, patient domain.PatientContext, sessionID string) string
	History(sessionID string) ([]domain.ChatMessage, bool)
}

// Deps are the handler's collaborators. Classifier and History may be nil.
type Deps struct {
	Explainer  Explainer
	Chat       Chatter
	Classifier classifier.Classifier
	Ready      func() bool
	History    func() ([]domain.QnARecord, error)
}

type Handler struct {
	deps Deps
}

func NewHandler(deps Deps) *Handler {
	if deps.Ready == nil {
		deps.Ready = func() bool { return false }
	}
	return &Handler{deps: deps}
}

// Mount registers the routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/", h.handleRoot)
	r.Get("/healthz", h.handleHealth)
	r.Post("/predict", h.handlePredict)
	r.Post("/chat", h.handleChat)
	r.Get("/chat/{sessionID}/history", h.handleChatHistory)
	r.Get("/qna", h.handleQnA)
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status       string `json:"status"`
	BackendReady bool   `json:"backend_ready"`
}

// PredictResponse pairs the classifier label with the explanation of the
// first record. ReinfectionPrediction repeats Prediction for older clients.
type PredictResponse struct {
	Prediction            string `json:"prediction"`
	ReinfectionPrediction string `json:"reinfection_prediction"`
	Description           string `json:"description"`
	BackendUsed           string `json:"backend_used"`
	Error                 string `json:"error,omitempty"`
}

type ChatRequest struct {
	Message        string                `json:"message"`
	SessionID      string                `json:"session_id"`
	PatientContext domain.PatientContext `json:"patient_context,omitempty"`
}

type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

type ChatHistoryResponse struct {
	SessionID string               `json:"session_id"`
	Messages  []domain.ChatMessage `json:"messages"`
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "COVID Reinfection Prediction API"})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ready := h.deps.Ready()
	status := "ok"
	if !ready {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: status, BackendReady: ready})
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	var records []domain.PatientContext
	if err := decodeBody(r, &records); err != nil {
		writeError(w, r, domain.ErrInvalidInput("request body must be a JSON array of patient records: "+err.Error()))
		return
	}
	if len(records) == 0 {
		writeError(w, r, domain.ErrInvalidInput("at least one patient record is required"))
		return
	}

	resp := PredictResponse{}
	if h.deps.Classifier == nil {
		resp.Error = "classifier not configured"
	} else if label, err := h.deps.Classifier.Predict(r.Context(), records); err != nil {
		server.AddError(r.Context(), err)
		resp.Error = err.Error()
	} else {
		resp.Prediction = label
		resp.ReinfectionPrediction = label
	}

	res := h.deps.Explainer.Run(r.Context(), records[0])
	resp.Description = res.Answer
	resp.BackendUsed = string(res.Path)
	server.AddLogField(r.Context(), "backend_used", resp.BackendUsed)
	if res.Err != nil && res.Path == explain.PathError {
		server.AddLogField(r.Context(), "explain_error", res.Err.Error())
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, domain.ErrInvalidInput("invalid chat request: "+err.Error()))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, r, domain.ErrInvalidInput("message is required"))
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = chat.DefaultSessionID
	}
	server.AddLogField(r.Context(), "session_id", sessionID)

	reply := h.deps.Chat.ProcessMessage(r.Context(), req.Message, req.PatientContext, sessionID)
	writeJSON(w, http.StatusOK, ChatResponse{Response: reply, SessionID: sessionID})
}

func (h *Handler) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	messages, ok := h.deps.Chat.History(sessionID)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, ChatHistoryResponse{SessionID: sessionID, Messages: messages})
}

func (h *Handler) handleQnA(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		writeJSON(w, http.StatusOK, []domain.QnARecord{})
		return
	}
	records, err := h.deps.History()
	if err != nil {
		writeError(w, r, domain.ErrLogging("failed to read interaction log", err))
		return
	}
	if records == nil {
		records = []domain.QnARecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	server.AddError(r.Context(), err)

	status := http.StatusInternalServerError
	var ae *domain.AdvisorError
	if errors.As(err, &ae) {
		status = ae.HTTPStatusCode()
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", slog.String("error", err.Error()))
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
