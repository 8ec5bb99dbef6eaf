package runtime

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/loqalabs/voicenav/internal/notify"
	"github.com/loqalabs/voicenav/internal/recognition"
	"github.com/loqalabs/voicenav/internal/synthesis"
)

const maxBodyBytes = 64 << 10

func (r *Runtime) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if r.metricHandler != nil {
		mux.Handle("/metrics", r.metricHandler)
	}
	if r.hub != nil {
		mux.Handle("GET /v1/events", r.hub)
	}

	mux.HandleFunc("GET /v1/state", r.handleState)
	mux.HandleFunc("POST /v1/listen/start", r.handleListenStart)
	mux.HandleFunc("POST /v1/listen/stop", r.handleListenStop)
	mux.HandleFunc("POST /v1/listen/toggle", r.handleListenToggle)
	mux.HandleFunc("POST /v1/listen/simulate", r.handleSimulate)

	mux.HandleFunc("GET /v1/commands", r.handleListCommands)
	mux.HandleFunc("POST /v1/commands", r.handleSubmitCommand)
	mux.HandleFunc("POST /v1/speak", r.handleSpeak)

	mux.HandleFunc("GET /v1/notifications", r.handleListNotifications)
	mux.HandleFunc("POST /v1/notifications", r.handleCreateNotification)
	mux.HandleFunc("DELETE /v1/notifications", r.handleDismissAll)
	mux.HandleFunc("DELETE /v1/notifications/{id}", r.handleDismiss)

	mux.HandleFunc("GET /v1/sessions", r.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}/events", r.handleSessionEvents)
	return mux
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && (r.bus == nil || r.bus.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.controller.State())
}

func (r *Runtime) handleListenStart(w http.ResponseWriter, req *http.Request) {
	r.listenResult(w, r.controller.StartListening(req.Context()))
}

func (r *Runtime) handleListenStop(w http.ResponseWriter, _ *http.Request) {
	r.controller.StopListening()
	writeJSON(w, http.StatusOK, r.controller.State())
}

func (r *Runtime) handleListenToggle(w http.ResponseWriter, req *http.Request) {
	r.listenResult(w, r.controller.ToggleListening(req.Context()))
}

func (r *Runtime) listenResult(w http.ResponseWriter, err error) {
	if err != nil {
		var initErr *recognition.InitializationError
		if errors.As(err, &initErr) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, r.controller.State())
}

type simulateRequest struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Final      bool    `json:"final"`
	Error      string  `json:"error"`
}

// handleSimulate feeds a hypothesis into the mock recognizer, standing in
// for a microphone during development.
func (r *Runtime) handleSimulate(w http.ResponseWriter, req *http.Request) {
	if r.simulator == nil {
		writeError(w, http.StatusNotFound, "simulation requires recognition mode mock")
		return
	}
	var body simulateRequest
	if !decodeBody(w, req, &body) {
		return
	}

	var err error
	switch {
	case body.Error != "":
		err = r.simulator.Fail(recognition.Cause(body.Error))
	case body.Final:
		err = r.simulator.Say(body.Transcript, body.Confidence)
	default:
		err = r.simulator.Interim(body.Transcript, body.Confidence)
	}
	if errors.Is(err, recognition.ErrNotActive) {
		writeError(w, http.StatusConflict, "not listening")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (r *Runtime) handleListCommands(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"commands": r.dispatcher.Table().Entries()})
}

type submitRequest struct {
	Text string `json:"text"`
}

func (r *Runtime) handleSubmitCommand(w http.ResponseWriter, req *http.Request) {
	var body submitRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeError(w, http.StatusBadRequest, "text must not be empty")
		return
	}
	writeJSON(w, http.StatusOK, r.controller.SubmitText(req.Context(), body.Text))
}

type speakRequest struct {
	Text string `json:"text"`
	synthesis.Options
}

func (r *Runtime) handleSpeak(w http.ResponseWriter, req *http.Request) {
	var body speakRequest
	if !decodeBody(w, req, &body) {
		return
	}
	err := r.controller.Speak(req.Context(), body.Text, body.Options)
	var unsupported *synthesis.UnsupportedCapabilityError
	var failed *synthesis.SynthesisError
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.As(err, &unsupported):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.As(err, &failed):
		writeError(w, http.StatusBadGateway, err.Error())
	case req.Context().Err() != nil:
		r.logger.Debug("speak request cancelled")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (r *Runtime) handleListNotifications(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"notifications": r.center.List()})
}

type notificationRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Variant     notify.Variant `json:"variant"`
	DurationMS  int            `json:"duration_ms"`
}

func (r *Runtime) handleCreateNotification(w http.ResponseWriter, req *http.Request) {
	var body notificationRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if body.Title == "" && body.Description == "" {
		writeError(w, http.StatusBadRequest, "title or description is required")
		return
	}
	n := r.center.Notify(notify.Notification{
		Title:       body.Title,
		Description: body.Description,
		Variant:     body.Variant,
		Duration:    millis(body.DurationMS),
	})
	writeJSON(w, http.StatusCreated, n)
}

func (r *Runtime) handleDismissAll(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"dismissed": r.center.DismissAll()})
}

func (r *Runtime) handleDismiss(w http.ResponseWriter, req *http.Request) {
	if !r.center.Dismiss(req.PathValue("id")) {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Runtime) handleListSessions(w http.ResponseWriter, req *http.Request) {
	sessions, err := r.store.ListSessions(req.Context(), queryInt(req, "limit"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (r *Runtime) handleSessionEvents(w http.ResponseWriter, req *http.Request) {
	events, err := r.store.ListSessionEvents(req.Context(), req.PathValue("id"), queryInt(req, "limit"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func decodeBody(w http.ResponseWriter, req *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func queryInt(req *http.Request, key string) int {
	n, err := strconv.Atoi(req.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
