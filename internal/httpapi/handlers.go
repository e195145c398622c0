package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/hub"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/identity"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/notify"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/outbound"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/room"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/scheduler"
	itypes "github.com/DoyleJ11/fantasy-draft-backend/internal/types"
	"github.com/DoyleJ11/fantasy-draft-backend/pkg/types"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(code string) int {
	switch code {
	case itypes.CodeDraftNotFound:
		return http.StatusNotFound
	case itypes.CodeBadRequest:
		return http.StatusBadRequest
	case itypes.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusConflict
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	p := itypes.ErrorPayload("", err)
	if p.Code == itypes.CodeInternal {
		logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, statusFor(p.Code), p)
}

// readJSON returns the request body if it is a single JSON value.
func readJSON(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", itypes.ErrBadRequest, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", itypes.ErrBadRequest)
	}
	return body, nil
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ListDrafts reports the drafts live on this instance.
func ListDrafts(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := h.List(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		slices.Sort(ids)
		writeJSON(w, http.StatusOK, struct {
			Drafts []string `json:"drafts"`
		}{Drafts: ids})
	}
}

func GetDraft(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := h.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		v, err := m.Snapshot(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v.Snapshot())
	}
}

// ScheduleDraft loads the draft from the store. Scheduling a draft that is
// already live returns its current view.
func ScheduleDraft(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := h.Schedule(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		v, err := m.Snapshot(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, v.Snapshot())
	}
}

func StartDraft(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := h.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		res, err := m.Start(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res.View.Snapshot())
	}
}

func PublishScores(b *room.Broker, sched *scheduler.Scheduler, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchupID := chi.URLParam(r, "id")
		scores, err := readJSON(w, r)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		msg, err := outbound.New(types.ScoringUpdate, types.ScorePayload{
			MatchupID: matchupID,
			Scores:    scores,
		}, outbound.Low, sched.Now())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		n := b.Publish(r.Context(), room.MatchupRoom(matchupID), msg.Coalescing("score"))
		writeJSON(w, http.StatusAccepted, struct {
			Delivered int `json:"delivered"`
		}{Delivered: n})
	}
}

func PushNotification(mgr *notify.Manager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readJSON(w, r)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if err := mgr.Send(chi.URLParam(r, "id"), body); err != nil {
			logger.Debug("notification not delivered", zap.String("user_id", chi.URLParam(r, "id")), zap.Error(err))
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// NotificationStream holds the request open as the user's event stream until
// the client leaves or a newer stream replaces it.
func NotificationStream(mgr *notify.Manager, v identity.Verifier, writeTimeout time.Duration, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := v.Verify(r.Context(), identity.TokenFromRequest(r))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		sw, err := notify.NewSSEWriter(w, writeTimeout)
		if err != nil {
			logger.Warn("open event stream", zap.String("user_id", userID), zap.Error(err))
			if errors.Is(err, notify.ErrStreamingUnsupported) {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		s, err := mgr.Open(userID, sw)
		if err != nil {
			return
		}
		defer mgr.Close(s)

		select {
		case <-s.Done():
		case <-r.Context().Done():
		}
	}
}
