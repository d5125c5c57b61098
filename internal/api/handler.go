package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/diarisk/diarisk/internal/assessment"
	"github.com/diarisk/diarisk/internal/pipeline"
	"github.com/diarisk/diarisk/internal/storage"
)

const (
	defaultMaxUpload = 25 << 20
	maxHistoryLimit  = 100
	// multipartMemory is how much of a form is held in memory before
	// spilling to temp files.
	multipartMemory = 32 << 20
)

// Analyzer runs the analysis pipeline.
type Analyzer interface {
	Run(ctx context.Context, in pipeline.Input) (*assessment.Analysis, error)
	ParseLabs(ctx context.Context, filename string, data []byte) (assessment.LabParseResult, error)
}

// History is the append-only analysis store.
type History interface {
	AppendAnalysis(rec storage.AnalysisRecord) (int64, error)
	RecentAnalyses(limit int) ([]storage.AnalysisRecord, error)
	GetAnalysis(id int64) (storage.AnalysisRecord, error)
}

type Deps struct {
	Pipeline Analyzer
	Store    History
	// Token enables bearer auth on /api routes when non-empty.
	Token string
	// MaxUploadBytes bounds each uploaded file. Zero means 25 MB.
	MaxUploadBytes int64
	// HistoryLimit is the default page size for GET /api/history.
	HistoryLimit int
	Logger       *slog.Logger
}

// NewHandler returns the HTTP API.
func NewHandler(deps Deps) http.Handler {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultMaxUpload
	}
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = 10
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/labs/parse", handleParseLabs(deps))
		r.Post("/analyze", handleAnalyze(deps))
		r.Get("/history", handleListHistory(deps))
		r.Get("/history/{id}", handleGetHistory(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleParseLabs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !parseUpload(w, r, deps.MaxUploadBytes) {
			return
		}
		name, data, ok := readUpload(w, r, "lab_report", deps.MaxUploadBytes, true)
		if !ok {
			return
		}

		result, err := deps.Pipeline.ParseLabs(r.Context(), name, data)
		if err != nil {
			httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "parsing lab report: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleAnalyze(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !parseUpload(w, r, deps.MaxUploadBytes) {
			return
		}
		labName, labData, ok := readUpload(w, r, "lab_report", deps.MaxUploadBytes, true)
		if !ok {
			return
		}
		_, retinalData, ok := readUpload(w, r, "retinal_image", deps.MaxUploadBytes, false)
		if !ok {
			return
		}

		analysis, err := deps.Pipeline.Run(r.Context(), pipeline.Input{
			LabFilename:    labName,
			LabData:        labData,
			RetinalImage:   retinalData,
			CognitiveNotes: r.FormValue("cognitive_notes"),
		})
		if err != nil {
			writePipelineError(w, err)
			return
		}

		id, err := deps.Store.AppendAnalysis(storage.AnalysisRecord{
			LabFilename: labName,
			Analysis:    *analysis,
		})
		if err != nil {
			deps.Logger.Error("storing analysis", "request_id", analysis.RequestID, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to store analysis: %v", err)
			return
		}
		deps.Logger.Info("analysis stored", "id", id, "request_id", analysis.RequestID)

		w.Header().Set("Location", fmt.Sprintf("/api/history/%d", id))
		writeJSON(w, http.StatusOK, analysis)
	}
}

// historyItem is the wire form of a stored analysis.
type historyItem struct {
	ID          int64     `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	LabFilename string    `json:"lab_filename"`
	assessment.Analysis
}

func toHistoryItem(rec storage.AnalysisRecord) historyItem {
	return historyItem{
		ID:          rec.ID,
		CreatedAt:   rec.CreatedAt,
		LabFilename: rec.LabFilename,
		Analysis:    rec.Analysis,
	}
}

func handleListHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", deps.HistoryLimit, maxHistoryLimit)

		recs, err := deps.Store.RecentAnalyses(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list history: %v", err)
			return
		}

		items := make([]historyItem, len(recs))
		for i, rec := range recs {
			items[i] = toHistoryItem(rec)
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

func handleGetHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid analysis id")
			return
		}

		rec, err := deps.Store.GetAnalysis(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "analysis not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get analysis: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toHistoryItem(rec))
	}
}

// parseUpload parses the multipart body. The whole body may hold two files
// plus form fields, so the reader limit is twice the per-file limit with
// some headroom.
func parseUpload(w http.ResponseWriter, r *http.Request, maxFile int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 2*maxFile+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "File too large.")
			return false
		}
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
		return false
	}
	return true
}

// readUpload reads one uploaded file. A missing optional file returns ok
// with nil data.
func readUpload(w http.ResponseWriter, r *http.Request, field string, maxFile int64, required bool) (string, []byte, bool) {
	f, fh, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		if required {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%s is required", field)
			return "", nil, false
		}
		return "", nil, true
	}
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "reading %s: %v", field, err)
		return "", nil, false
	}
	defer f.Close()

	if fh.Size > maxFile {
		httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "File too large.")
		return "", nil, false
	}
	data, err := readAll(f, maxFile)
	if err != nil {
		httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "File too large.")
		return "", nil, false
	}

	name := fh.Filename
	if name == "" {
		name = field
	}
	return name, data, true
}

var errTooLarge = errors.New("file too large")

func readAll(f multipart.File, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errTooLarge
	}
	return data, nil
}

// writePipelineError reports a fatal pipeline failure together with the
// trace recorded up to the failing stage.
func writePipelineError(w http.ResponseWriter, err error) {
	body := map[string]any{
		"message": fmt.Sprintf("analysis failed: %v", err),
		"type":    "pipeline_error",
	}
	var se *pipeline.StageError
	if errors.As(err, &se) {
		body["stage"] = se.Stage
	}
	if trace := pipeline.TraceOf(err); trace != nil {
		body["agent_trace"] = trace
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": body})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
