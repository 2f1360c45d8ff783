package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/handoffdesk-backend/api/controllers"
	"github.com/angelmondragon/handoffdesk-backend/api/middleware"
	"github.com/angelmondragon/handoffdesk-backend/pkg/config"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
	"github.com/angelmondragon/handoffdesk-backend/pkg/metrics"
)

// Deps are the services and probes the router mounts.
type Deps struct {
	Config           *config.Config
	Logger           *logger.Logger
	Ready            map[string]controllers.Pinger
	Gatherer         prometheus.Gatherer
	HTTPMetrics      *metrics.HTTPMetrics
	IdempotencyStore middleware.ResponseStore
	CORSOrigins      []string

	Conversations controllers.ConversationService
	Queues        controllers.QueueReader
	Assignments   controllers.AssignmentService
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, d.HTTPMetrics),
		middleware.CORS(d.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.Ready))
	})

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		// Intake creates rows and schedules agent runs, so client retries must replay.
		idem := middleware.Idempotency(d.IdempotencyStore, cfg.App.IdempotencyTTL, logg)

		r.Route("/conversations", func(r chi.Router) {
			r.With(idem).Post("/", controllers.CreateConversation(d.Conversations, logg))
			r.Route("/{conversationId}", func(r chi.Router) {
				r.Get("/", controllers.GetConversation(d.Conversations, logg))
				r.With(idem).Post("/messages", controllers.AppendMessage(d.Conversations, logg))
				r.Get("/messages", controllers.ListMessages(d.Conversations, logg))
				r.Get("/audit-events", controllers.ListAuditEvents(d.Conversations, logg))
				r.Get("/handoffs", controllers.ListHandoffs(d.Conversations, logg))
				r.Get("/transitions", controllers.ListTransitions(d.Conversations, logg))
				r.Post("/archive", controllers.ArchiveConversation(d.Conversations, logg))
			})
		})

		r.Route("/queues", func(r chi.Router) {
			r.Get("/", controllers.ListQueues(d.Queues, logg))
			r.Get("/{queueId}/items", controllers.ListQueueItems(d.Queues, logg))
			r.Post("/{queueId}/items/{itemId}/claim", controllers.ClaimQueueItem(d.Assignments, logg))
		})

		r.Route("/assignments", func(r chi.Router) {
			r.Get("/", controllers.ListMyAssignments(d.Assignments, logg))
			r.Get("/{assignmentId}", controllers.GetAssignment(d.Assignments, logg))
			r.Post("/{assignmentId}/accept", controllers.AcceptAssignment(d.Assignments, logg))
			r.Post("/{assignmentId}/release", controllers.ReleaseAssignment(d.Assignments, logg))
			r.Post("/{assignmentId}/resolve", controllers.ResolveAssignment(d.Assignments, logg))
		})
	})

	return r
}
