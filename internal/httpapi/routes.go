package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/hub"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/identity"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/metrics"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/notify"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/room"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/scheduler"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/ws"
)

type Deps struct {
	Hub       *hub.Hub
	Broker    *room.Broker
	Notify    *notify.Manager
	Verifier  identity.Verifier
	Scheduler *scheduler.Scheduler
	Metrics   *metrics.Collector
	WS        *ws.Server
	Logger    *zap.Logger

	StreamWriteTimeout time.Duration
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	logger := d.Logger.Named("http")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Handle("/metrics", d.Metrics.Handler())

	// Realtime
	r.Get("/ws", d.WS.Handler())
	r.Get("/notifications/stream", NotificationStream(d.Notify, d.Verifier, d.StreamWriteTimeout, logger))

	// Draft admin
	r.Get("/drafts", ListDrafts(d.Hub, logger))
	r.Get("/drafts/{id}", GetDraft(d.Hub, logger))
	r.Post("/drafts/{id}/schedule", ScheduleDraft(d.Hub, logger))
	r.Post("/drafts/{id}/start", StartDraft(d.Hub, logger))

	// Ingest
	r.Post("/matchups/{id}/scores", PublishScores(d.Broker, d.Scheduler, logger))
	r.Post("/users/{id}/notifications", PushNotification(d.Notify, logger))
	return r
}
