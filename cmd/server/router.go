package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/genqueue/internal/api"
	apiMiddleware "github.com/phrazzld/genqueue/internal/api/middleware"
	"github.com/phrazzld/genqueue/internal/platform/logger"
)

// setupRouter registers the API, metrics and health routes.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(app.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	taskHandler := api.NewTaskHandler(app.manager)

	r.Route("/api", func(r chi.Router) {
		if secret := app.config.Auth.JWTSecret; secret != "" {
			r.Use(apiMiddleware.NewAuthMiddleware(secret).Authenticate)
		}

		r.Get("/stats", taskHandler.GetStats)
		r.Route("/tasks", func(r chi.Router) {
			r.With(app.createLimiter()).Post("/", taskHandler.CreateTask)
			r.Get("/", taskHandler.ListTasks)
			r.Delete("/", taskHandler.ClearAll)
			r.Post("/clear-completed", taskHandler.ClearCompleted)

			r.Get("/{id}", taskHandler.GetTask)
			r.Delete("/{id}", taskHandler.DeleteTask)
			r.Post("/{id}/cancel", taskHandler.CancelTask)
			r.Post("/{id}/retry", taskHandler.RetryTask)
		})
	})

	r.Handle("/metrics", app.collector.Handler())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}

// createLimiter throttles task creation; a zero rate disables it.
func (app *application) createLimiter() func(http.Handler) http.Handler {
	cfg := app.config.Server
	if cfg.CreateRateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	burst := cfg.CreateBurst
	if burst <= 0 {
		burst = 1
	}
	return apiMiddleware.RateLimit(cfg.CreateRateLimit, burst)
}

// requestLogger puts a logger tagged with the chi request ID into the
// request context and logs each completed request.
func (app *application) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithLogger(r.Context(), app.logger)
		ctx = logger.WithRequestID(ctx, chimw.GetReqID(ctx))

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.FromContext(ctx).Debug("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten())
	})
}
