package api

import (
	"net/http"

	"imgdash/internal/catalog"
	"imgdash/internal/event"
	"imgdash/internal/logging"
	"imgdash/internal/metrics"
	"imgdash/internal/notification"
	"imgdash/internal/otel"

	"golang.org/x/time/rate"
)

type Options struct {
	Session        ProjectSession
	Catalog        *catalog.Catalog
	Bus            *event.Bus[notification.Event]
	Logger         *logging.Logger
	Metrics        *metrics.Registry
	AllowedOrigins []string
	// SelectRate limits select-project requests per second; zero disables it.
	SelectRate float64
}

func RegisterRoutes(mux *http.ServeMux, options Options) {
	logger := options.Logger.Category("api")
	rest := &RestHandler{
		Session: options.Session,
		Catalog: options.Catalog,
		Logger:  logger,
		Metrics: options.Metrics,
	}
	if options.SelectRate > 0 {
		burst := int(options.SelectRate * 2)
		if burst < 1 {
			burst = 1
		}
		rest.Selector = rate.NewLimiter(rate.Limit(options.SelectRate), burst)
	}

	mux.Handle("/ws/events", securityHeadersMiddleware(cacheControlNoStore, &EventsHandler{
		Bus:            options.Bus,
		Logger:         logger,
		AllowedOrigins: options.AllowedOrigins,
	}))

	mux.Handle("/api/projects", restHandler(logger, rest.handleProjects))
	mux.Handle("/api/projects/current", restHandler(logger, rest.handleCurrentProject))
	mux.Handle("/api/projects/{project}/select", restHandler(logger, rest.handleSelectProject))
	mux.Handle("/api/set_current_project/{project}", restHandler(logger, rest.handleSelectProject))
	mux.Handle("/api/albums/{project}", restHandler(logger, rest.handleAlbums))
	mux.Handle("/api/files/{project}/{subpath...}", restHandler(logger, rest.handleFiles))
	mux.Handle("/api/logs", restHandler(logger, rest.handleLogs))
	mux.Handle("/api/version", restHandler(logger, rest.handleVersion))
	mux.Handle("/metrics", restHandler(logger, rest.handleMetrics))
	mux.Handle("/static/files/{path...}", otel.HTTPMiddleware(loggingMiddleware(logger, securityHeadersMiddleware("", jsonErrorMiddleware(rest.handleStaticFile)))))
	mux.Handle("/api/", restHandler(logger, func(w http.ResponseWriter, r *http.Request) *apiError {
		return &apiError{Status: http.StatusNotFound, Message: "not found"}
	}))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		setSecurityHeaders(w, cacheControlNoCache)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("imgdash ok\n"))
	})
}
