package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/snarg/whisper-relay/internal/session"
)

// Relay is the session controller as seen by the transport layer.
type Relay interface {
	Start() error
	Stop()
	RequestSummary() bool
	Status() session.Status
	Fragments() []string
}

type TranscriptionHandler struct {
	relay Relay
}

func NewTranscriptionHandler(relay Relay) *TranscriptionHandler {
	return &TranscriptionHandler{relay: relay}
}

// TranscriptionResponse is the body of GET /transcription.
type TranscriptionResponse struct {
	session.Status
	Fragments  []string `json:"fragments"`
	Transcript string   `json:"transcript"`
}

// Start launches the engine if it is not already running.
func (h *TranscriptionHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.relay.Start(); err != nil {
		WriteErrorDetail(w, http.StatusBadGateway, "transcription engine failed to start", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, h.relay.Status())
}

// Stop ends the running session, if any.
func (h *TranscriptionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.relay.Stop()
	WriteJSON(w, http.StatusOK, h.relay.Status())
}

// Get returns the session state and the buffered transcript.
func (h *TranscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	frags := h.relay.Fragments()
	if frags == nil {
		frags = []string{}
	}
	WriteJSON(w, http.StatusOK, TranscriptionResponse{
		Status:     h.relay.Status(),
		Fragments:  frags,
		Transcript: strings.Join(frags, " "),
	})
}

// Ask dispatches a summary. The answer arrives as ai_* events.
func (h *TranscriptionHandler) Ask(w http.ResponseWriter, r *http.Request) {
	if !h.relay.RequestSummary() {
		WriteError(w, http.StatusServiceUnavailable, session.ErrShuttingDown.Error())
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// Routes registers transcription routes on the given router.
func (h *TranscriptionHandler) Routes(r chi.Router) {
	r.Get("/transcription", h.Get)
	r.Post("/transcription/start", h.Start)
	r.Post("/transcription/stop", h.Stop)
	r.Post("/ai/ask", h.Ask)
}
