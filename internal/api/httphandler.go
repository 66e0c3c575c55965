package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"availsync/internal/queue"
	"availsync/internal/types"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// Availability is the part of the toggle controller the API drives.
type Availability interface {
	State() types.AvailabilityRecord
	Toggle(ctx context.Context) (types.ToggleSession, error)
	SetAvailability(ctx context.Context, target bool) (types.ToggleSession, error)
	CooldownRemaining() time.Duration
	Session() (types.ToggleSession, bool)
	Busy() bool
}

type Queue interface {
	Enqueue(ctx context.Context, action types.PendingAction) (types.PendingAction, error)
	Drain(ctx context.Context) (queue.DrainReport, error)
	List() []types.PendingAction
	Remove(ctx context.Context, id string) error
	Failures() []types.TerminalFailure
}

type Connectivity interface {
	IsOnline() bool
	State() types.ConnectivityState
	Report(online bool)
}

type Handler struct {
	Availability Availability
	Queue        Queue
	Connectivity Connectivity
}

func NewHandler(av Availability, q Queue, c Connectivity) *Handler {
	return &Handler{Availability: av, Queue: q, Connectivity: c}
}

func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.HandleFunc("/availability", h.getAvailability).Methods(http.MethodGet)
	r.HandleFunc("/availability", h.putAvailability).Methods(http.MethodPut)
	r.HandleFunc("/availability/toggle", h.toggle).Methods(http.MethodPost)
	r.HandleFunc("/connectivity", h.getConnectivity).Methods(http.MethodGet)
	r.HandleFunc("/connectivity", h.postConnectivity).Methods(http.MethodPost)
	r.HandleFunc("/actions", h.listActions).Methods(http.MethodGet)
	r.HandleFunc("/actions", h.enqueue).Methods(http.MethodPost)
	r.HandleFunc("/actions/sync", h.sync).Methods(http.MethodPost)
	r.HandleFunc("/actions/failures", h.failures).Methods(http.MethodGet)
	r.HandleFunc("/actions/{id}", h.removeAction).Methods(http.MethodDelete)
	return r
}

type availabilityView struct {
	types.AvailabilityRecord
	Busy                bool         `json:"busy"`
	CooldownRemainingMs int64        `json:"cooldown_remaining_ms"`
	Session             *sessionView `json:"session,omitempty"`
}

type sessionView struct {
	Generation    uint64 `json:"generation"`
	PreviousState bool   `json:"previous_state"`
	TargetState   bool   `json:"target_state"`
	Status        string `json:"status"`
}

func (h *Handler) view() availabilityView {
	v := availabilityView{
		AvailabilityRecord:  h.Availability.State(),
		Busy:                h.Availability.Busy(),
		CooldownRemainingMs: h.Availability.CooldownRemaining().Milliseconds(),
	}
	if s, ok := h.Availability.Session(); ok {
		v.Session = &sessionView{
			Generation:    s.Generation,
			PreviousState: s.PreviousState,
			TargetState:   s.TargetState,
			Status:        s.Status.String(),
		}
	}
	return v
}

func (h *Handler) getAvailability(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.view())
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	_, err := h.Availability.Toggle(r.Context())
	h.availabilityResult(w, err)
}

func (h *Handler) putAvailability(w http.ResponseWriter, r *http.Request) {
	var in struct {
		IsAvailable *bool `json:"is_available"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.IsAvailable == nil {
		http.Error(w, "is_available is required", http.StatusBadRequest)
		return
	}
	_, err := h.Availability.SetAvailability(r.Context(), *in.IsAvailable)
	h.availabilityResult(w, err)
}

func (h *Handler) availabilityResult(w http.ResponseWriter, err error) {
	if err == nil {
		respond(w, http.StatusOK, h.view())
		return
	}
	if errors.Is(err, types.ErrBusy) {
		respond(w, http.StatusConflict, map[string]any{
			"error":          "busy",
			"retry_after_ms": h.Availability.CooldownRemaining().Milliseconds(),
		})
		return
	}
	if rej, ok := types.AsRejection(err); ok {
		respond(w, http.StatusUnprocessableEntity, map[string]any{
			"error":        "rejected",
			"code":         rej.Code,
			"message":      rej.UserMessage(),
			"availability": h.view(),
		})
		return
	}
	log.WithError(err).Error("availability change failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (h *Handler) getConnectivity(w http.ResponseWriter, r *http.Request) {
	st := h.Connectivity.State()
	respond(w, http.StatusOK, map[string]any{
		"state":  st.State.String(),
		"since":  st.Since,
		"online": h.Connectivity.IsOnline(),
	})
}

func (h *Handler) postConnectivity(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Online *bool `json:"online"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.Online == nil {
		http.Error(w, "online is required", http.StatusBadRequest)
		return
	}
	h.Connectivity.Report(*in.Online)
	respond(w, http.StatusAccepted, map[string]any{"online": *in.Online})
}

func (h *Handler) listActions(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.Queue.List())
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request) {
	var in types.PendingAction
	if !decodeBody(w, r, &in) {
		return
	}
	a, err := h.Queue.Enqueue(r.Context(), in)
	switch {
	case err == nil:
		respond(w, http.StatusCreated, a)
	case errors.Is(err, types.ErrUnknownKind), errors.Is(err, types.ErrInvalidConfig):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, types.ErrQueueFull):
		http.Error(w, "queue is full", http.StatusServiceUnavailable)
	default:
		log.WithError(err).Error("enqueue failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	report, err := h.Queue.Drain(r.Context())
	if errors.Is(err, types.ErrBusy) {
		respond(w, http.StatusConflict, map[string]any{"error": "busy"})
		return
	}
	if err != nil {
		log.WithError(err).Error("forced drain failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"attempted": report.Attempted,
		"delivered": report.Delivered,
		"retained":  report.Retained,
		"dropped":   report.Dropped,
	})
}

func (h *Handler) failures(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.Queue.Failures())
}

func (h *Handler) removeAction(w http.ResponseWriter, r *http.Request) {
	err := h.Queue.Remove(r.Context(), mux.Vars(r)["id"])
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, types.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		log.WithError(err).Error("remove action failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	defer func() {
		_ = r.Body.Close()
	}()
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return false
	}
	if len(body) == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

func respond(w http.ResponseWriter, code int, v any) {
	if err := writeJSON(w, code, v); err != nil {
		log.WithError(err).Warn("failed to write response")
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}
