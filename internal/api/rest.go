package api

import (
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"imgdash/internal/catalog"
	"imgdash/internal/logging"
	"imgdash/internal/metrics"
	"imgdash/internal/version"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const apiTracerName = "imgdash/api"

// ProjectSession is the part of the session the API drives.
type ProjectSession interface {
	SetActive(project string) error
	Active() (string, bool)
}

type RestHandler struct {
	Session  ProjectSession
	Catalog  *catalog.Catalog
	Logger   *logging.Logger
	Metrics  *metrics.Registry
	Selector *rate.Limiter
}

type projectsResponse struct {
	Projects []string `json:"projects"`
}

type currentProjectResponse struct {
	Project *string `json:"project"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type logQuery struct {
	Limit int
	Level logging.Level
	Since *time.Time
}

func (h *RestHandler) handleProjects(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	projects, err := h.Catalog.Projects()
	if err != nil {
		h.logWarn("project listing failed", err)
		return errorForDomain(err, "root unavailable")
	}
	writeJSON(w, http.StatusOK, projectsResponse{Projects: projects})
	return nil
}

func (h *RestHandler) handleCurrentProject(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	response := currentProjectResponse{}
	if project, ok := h.Session.Active(); ok {
		response.Project = &project
	}
	writeJSON(w, http.StatusOK, response)
	return nil
}

func (h *RestHandler) handleSelectProject(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		return methodNotAllowed(w, "GET, POST")
	}
	if h.Selector != nil && !h.Selector.Allow() {
		return &apiError{Status: http.StatusTooManyRequests, Message: "rate limit exceeded"}
	}

	project := r.PathValue("project")
	_, span := otelapi.Tracer(apiTracerName).Start(r.Context(), "project.select",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("imgdash.project", project)),
	)
	defer span.End()

	if err := h.Session.SetActive(project); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errorForDomain(err, "project not found")
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
	return nil
}

func (h *RestHandler) handleAlbums(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	albums, err := h.Catalog.Albums(r.PathValue("project"))
	if err != nil {
		return errorForDomain(err, "project not found")
	}
	writeJSON(w, http.StatusOK, albums)
	return nil
}

func (h *RestHandler) handleFiles(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	files, err := h.Catalog.Files(r.PathValue("project"), r.PathValue("subpath"))
	if err != nil {
		return errorForDomain(err, "directory not found")
	}
	writeJSON(w, http.StatusOK, files)
	return nil
}

func (h *RestHandler) handleStaticFile(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return methodNotAllowed(w, "GET, HEAD")
	}
	rel := r.PathValue("path")
	target, err := h.Catalog.File(rel)
	if err != nil {
		return errorForDomain(err, "file not found")
	}
	file, err := os.Open(target)
	if err != nil {
		return errorForDomain(err, "file not found")
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return errorForDomain(err, "file not found")
	}
	w.Header().Set("Cache-Control", cacheControlNoCache)
	http.ServeContent(w, r, path.Base(rel), info.ModTime(), file)
	return nil
}

func (h *RestHandler) handleLogs(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if h.Logger == nil || h.Logger.Buffer() == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "log buffer unavailable"}
	}
	query, apiErr := parseLogQuery(r)
	if apiErr != nil {
		return apiErr
	}
	writeJSON(w, http.StatusOK, filterLogEntries(h.Logger.Buffer().List(), query))
	return nil
}

func (h *RestHandler) handleMetrics(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := h.Metrics.WritePrometheus(w); err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: "metrics unavailable"}
	}
	return nil
}

func (h *RestHandler) handleVersion(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	writeJSON(w, http.StatusOK, version.GetVersionInfo())
	return nil
}

func parseLogQuery(r *http.Request) (logQuery, *apiError) {
	values := r.URL.Query()
	query := logQuery{Limit: 100}

	if rawLimit := strings.TrimSpace(values.Get("limit")); rawLimit != "" {
		limit, err := strconv.Atoi(rawLimit)
		if err != nil || limit <= 0 {
			return query, &apiError{Status: http.StatusBadRequest, Message: "invalid limit"}
		}
		query.Limit = limit
	}
	if rawSince := strings.TrimSpace(values.Get("since")); rawSince != "" {
		parsed, err := time.Parse(time.RFC3339, rawSince)
		if err != nil {
			return query, &apiError{Status: http.StatusBadRequest, Message: "invalid since timestamp"}
		}
		query.Since = &parsed
	}
	if rawLevel := strings.TrimSpace(values.Get("level")); rawLevel != "" {
		level, ok := logging.ParseLevel(rawLevel)
		if !ok {
			return query, &apiError{Status: http.StatusBadRequest, Message: "invalid log level"}
		}
		query.Level = level
	}
	return query, nil
}

// filterLogEntries keeps the newest query.Limit entries that pass the level
// and since filters, oldest first.
func filterLogEntries(entries []logging.LogEntry, query logQuery) []logging.LogEntry {
	filtered := make([]logging.LogEntry, 0, len(entries))
	for _, entry := range entries {
		if query.Level != "" && !logging.LevelAtLeast(entry.Level, query.Level) {
			continue
		}
		if query.Since != nil && entry.Timestamp.Before(*query.Since) {
			continue
		}
		filtered = append(filtered, entry)
	}
	if query.Limit > 0 && len(filtered) > query.Limit {
		filtered = filtered[len(filtered)-query.Limit:]
	}
	return filtered
}

func (h *RestHandler) logWarn(message string, err error) {
	if h.Logger == nil || err == nil {
		return
	}
	h.Logger.Warn(message, map[string]string{"error": err.Error()})
}
