package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"
)

// Dependencies carries the probes the health endpoints need. The core's
// auth operations are consumed in-process; no request shaping lives here.
type Dependencies struct {
	DB             *gorm.DB
	Redis          *redis.Client
	EnableOTelHTTP bool
}

type readinessCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// healthPayload is the only body this service writes over HTTP. Error is
// empty except for the 503 readiness refusal, which carries
// DEPENDENCY_UNREADY for probe tooling that matches on codes.
type healthPayload struct {
	Status    string           `json:"status"`
	Error     string           `json:"error,omitempty"`
	Checks    []readinessCheck `json:"checks,omitempty"`
	RequestID string           `json:"request_id"`
	CheckedAt time.Time        `json:"checked_at"`
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, r, http.StatusOK, healthPayload{Status: "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := []readinessCheck{
			{Name: "postgres", Status: pingDB(ctx, dep.DB)},
			{Name: "redis", Status: pingRedis(ctx, dep.Redis)},
		}
		for _, c := range checks {
			if c.Status == "down" {
				writeHealth(w, r, http.StatusServiceUnavailable, healthPayload{
					Status: "unready",
					Error:  "DEPENDENCY_UNREADY",
					Checks: checks,
				})
				return
			}
		}
		writeHealth(w, r, http.StatusOK, healthPayload{Status: "ready", Checks: checks})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}

func writeHealth(w http.ResponseWriter, r *http.Request, status int, p healthPayload) {
	p.RequestID = chimiddleware.GetReqID(r.Context())
	p.CheckedAt = time.Now().UTC()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(p)
}

func pingDB(ctx context.Context, db *gorm.DB) string {
	if db == nil {
		return "skipped"
	}
	sqlDB, err := db.DB()
	if err != nil {
		return "down"
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return "down"
	}
	return "up"
}

func pingRedis(ctx context.Context, client *redis.Client) string {
	if client == nil {
		return "skipped"
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return "down"
	}
	return "up"
}
