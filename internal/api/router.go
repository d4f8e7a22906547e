// Package api wires every HTTP handler into one router.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"schedule-management-backend/internal/ai"
	"schedule-management-backend/internal/analysis"
	"schedule-management-backend/internal/analytics"
	"schedule-management-backend/internal/auth"
	"schedule-management-backend/internal/config"
	"schedule-management-backend/internal/db"
	"schedule-management-backend/internal/httpx"
	"schedule-management-backend/internal/imports"
	"schedule-management-backend/internal/logging"
	"schedule-management-backend/internal/schedule"
	"schedule-management-backend/internal/tasks"
	"schedule-management-backend/internal/templates"
)

// Server owns the analysis worker and the HTTP handler tree.
type Server struct {
	Handler http.Handler
	Worker  *analysis.Worker
}

func New(ctx context.Context, cfg *config.Config, database *db.DB, logger *zap.Logger) (*Server, error) {
	loc, err := time.LoadLocation(cfg.Parser.Timezone)
	if err != nil {
		return nil, fmt.Errorf("parser timezone: %w", err)
	}
	parser := schedule.NewParser(schedule.Options{
		Location:        loc,
		DefaultDuration: time.Duration(cfg.Parser.DefaultDurationMinutes) * time.Minute,
	})

	analyzer, err := ai.New(ctx, cfg.AI, parser, logger)
	if err != nil {
		return nil, err
	}

	svc := analysis.NewService(database, parser, analyzer, logger)
	worker := analysis.NewWorker(svc, cfg.Worker, logger)

	secret := []byte(cfg.Auth.JWTSecret)
	authMW := auth.New(secret)

	authH := &auth.Handlers{
		DB:       database,
		Secret:   secret,
		TokenTTL: config.Duration(cfg.Auth.TokenTTL, 720*time.Hour),
		Logger:   logger.Named("auth"),
	}
	analysisH := &analysis.Handlers{Service: svc, DB: database, Logger: logger.Named("analysis")}
	importsH := &imports.Handlers{DB: database, Logger: logger.Named("imports"), MaxUploadBytes: cfg.HTTP.MaxUploadBytes}
	tasksH := &tasks.Handlers{DB: database, Analyses: svc, Logger: logger.Named("tasks"), Location: loc}

	r := mux.NewRouter()

	// Health endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.PingContext(r.Context()); err != nil {
			httpx.Fail(w, httpx.NewError(http.StatusServiceUnavailable, "DB_UNAVAILABLE", "database unavailable"))
			return
		}
		httpx.OK(w, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	// ----- AUTH -----
	api.HandleFunc("/auth/register", authH.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", authH.Login).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", authMW.Wrap(authH.Logout)).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", authMW.Wrap(authH.Me)).Methods(http.MethodGet)
	api.HandleFunc("/auth/profile", authMW.Wrap(authH.UpdateProfile)).Methods(http.MethodPut)
	api.HandleFunc("/auth/account", authMW.Wrap(authH.DeleteAccount)).Methods(http.MethodDelete)

	// ----- IMPORTS -----
	api.HandleFunc("/csv-imports", authMW.Wrap(importsH.List)).Methods(http.MethodGet)
	api.HandleFunc("/csv-imports", authMW.Wrap(importsH.Create)).Methods(http.MethodPost)
	api.HandleFunc("/csv-imports/{id}/entries", authMW.Wrap(importsH.Entries)).Methods(http.MethodGet)
	api.HandleFunc("/csv-imports/{id}", authMW.Wrap(importsH.Delete)).Methods(http.MethodDelete)

	// ----- TEMPLATES -----
	api.HandleFunc("/templates", authMW.Wrap(templates.ListTemplatesHandler(database))).Methods(http.MethodGet)
	api.HandleFunc("/templates", authMW.Wrap(templates.CreateTemplateHandler(database))).Methods(http.MethodPost)
	api.HandleFunc("/templates/{id}", authMW.Wrap(templates.GetTemplateHandler(database))).Methods(http.MethodGet)
	api.HandleFunc("/templates/{id}", authMW.Wrap(templates.DeleteTemplateHandler(database))).Methods(http.MethodDelete)

	// ----- ANALYSIS -----
	api.HandleFunc("/csv-task-analysis/analyze", authMW.Wrap(analysisH.Analyze)).Methods(http.MethodPost)
	api.HandleFunc("/csv-task-analysis/results/{analysis_id}", authMW.Wrap(analysisH.Results)).Methods(http.MethodGet)
	api.HandleFunc("/csv-task-analysis/status/{user_id}", authMW.Wrap(analysisH.Status)).Methods(http.MethodGet)
	api.HandleFunc("/csv-task-analysis/unlock", authMW.Wrap(analysisH.Unlock)).Methods(http.MethodPost)
	api.HandleFunc("/csv-task-analysis/batch-analyze", authMW.Wrap(analysisH.BatchAnalyze)).Methods(http.MethodPost)

	// ----- TASKS -----
	api.HandleFunc("/tasks", authMW.Wrap(tasksH.List)).Methods(http.MethodGet)
	api.HandleFunc("/tasks", authMW.Wrap(tasksH.Create)).Methods(http.MethodPost)
	api.HandleFunc("/tasks/from-analysis", authMW.Wrap(tasksH.FromAnalysis)).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}", authMW.Wrap(tasksH.Update)).Methods(http.MethodPut)
	api.HandleFunc("/tasks/{id}/status", authMW.Wrap(tasksH.SetStatus)).Methods(http.MethodPatch)
	api.HandleFunc("/tasks/{id}", authMW.Wrap(tasksH.Delete)).Methods(http.MethodDelete)
	api.HandleFunc("/dashboard/stats", authMW.Wrap(tasksH.Dashboard)).Methods(http.MethodGet)

	// ----- ANALYTICS -----
	api.HandleFunc("/analytics/events", authMW.Wrap(analytics.ClientEventHandler(database))).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, httpx.NotFound("route not found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, httpx.NewError(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed"))
	})

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Content-Type", "Authorization",
			"X-Platform", "X-App-Version", "X-Device-Locale", "Idempotency-Key", "X-Source-Event-Key",
		},
		AllowCredentials: true,
	})

	return &Server{
		Handler: logging.Middleware(logger)(c.Handler(r)),
		Worker:  worker,
	}, nil
}
