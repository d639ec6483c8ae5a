package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinidesk/clinic-scheduling/internal/notify"
	"github.com/clinidesk/clinic-scheduling/internal/scheduling"
	"github.com/clinidesk/clinic-scheduling/pkg/logging"
)

type RouterConfig struct {
	Slots         *scheduling.SlotStore
	Coordinator   *scheduling.Coordinator
	Checkin       *scheduling.CheckinGate
	Notifications *notify.Service

	PgPool *pgxpool.Pool
	Redis  *redis.Client

	Logger    *logging.Logger
	JWTSecret string

	CheckinTTL     time.Duration
	BookingCodeTTL time.Duration

	RateLimiter *RateLimiter

	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Middleware)
	}

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	profiles := codeProfiles{Checkin: cfg.CheckinTTL, Booking: cfg.BookingCodeTTL}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		// Slot management is doctor-only; availability reads are open to
		// any authenticated actor.
		r.With(RequireRole(scheduling.RoleDoctor)).Route("/slots", func(r chi.Router) {
			r.Post("/", addSlotHandler(cfg.Slots))
			r.Get("/", listMySlotsHandler(cfg.Slots))
			r.Patch("/{id}", updateSlotHandler(cfg.Slots))
			r.Delete("/{id}", deleteSlotHandler(cfg.Slots))
		})
		r.Get("/doctors/{id}/slots", listDoctorSlotsHandler(cfg.Slots))

		r.Route("/appointments", func(r chi.Router) {
			r.With(RequireRole(scheduling.RolePatient)).Post("/", bookAppointmentHandler(cfg.Coordinator))
			r.Get("/", listAppointmentsHandler(cfg.Coordinator))
			r.Get("/{id}", getAppointmentHandler(cfg.Coordinator))
			r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Coordinator))
			r.With(RequireRole(scheduling.RoleDoctor)).Post("/{id}/emergency-cancel", emergencyCancelHandler(cfg.Coordinator))
			r.With(RequireRole(scheduling.RolePatient)).Post("/{id}/reschedule", rescheduleAppointmentHandler(cfg.Coordinator))
			r.With(RequireRole(scheduling.RoleDoctor, scheduling.RoleAdmin)).Patch("/{id}/status", updateStatusHandler(cfg.Coordinator))

			r.Post("/{id}/checkin/code", issueCodeHandler(cfg.Checkin, profiles))
			r.Post("/{id}/checkin/verify", verifyCodeHandler(cfg.Checkin))
			r.Get("/{id}/checkin", codeStatusHandler(cfg.Checkin))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", listNotificationsHandler(cfg.Notifications))
			r.Get("/unread-count", unreadCountHandler(cfg.Notifications))
			r.Post("/{id}/read", markNotificationReadHandler(cfg.Notifications))
			r.Post("/read-all", markAllNotificationsReadHandler(cfg.Notifications))
		})
	})

	return r
}
