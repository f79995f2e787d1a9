package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Service      SchedulingService
	Logger       *zap.Logger
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Env          string
	Version      string
	RateLimitRPM int
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Actor-ID", "X-Request-ID"},
		MaxAge:         300,
	}))
	if cfg.RateLimitRPM > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitRPM, time.Minute))
	}

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Scheduling endpoints
	r.Get("/doctors/{doctorID}/available-slots", availableSlotsHandler(cfg.Service))
	r.Post("/appointments", createAppointmentHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Patch("/appointments/{id}/status", transitionStatusHandler(cfg.Service))
	r.Get("/appointments/patient/{patientID}", listByPatientHandler(cfg.Service))
	r.Get("/appointments/doctor/{doctorID}", listByDoctorHandler(cfg.Service))

	return r
}
