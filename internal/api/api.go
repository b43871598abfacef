// Package api exposes the pipeline and record store over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/progwatch/progwatch-cli/internal/model"
	"github.com/progwatch/progwatch-cli/internal/pipeline"
	"github.com/progwatch/progwatch-cli/internal/store"
)

const maxExtractBodySize = 10 << 20 // 10MB

// Deps holds the handler dependencies.
type Deps struct {
	Runner *pipeline.Runner
	Store  store.Store
}

// NewHandler returns the HTTP handler for the extraction API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", handleHealth)
	r.Post("/extract", handleExtract(deps))
	r.Get("/sources", handleListSources(deps))
	r.Get("/sources/{id}/latest", handleLatest(deps))
	r.Get("/sources/{id}/history", handleHistory(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ExtractRequest is the body for POST /extract.
type ExtractRequest struct {
	URL   string `json:"url"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

// ExtractResponse reports the pipeline outcome for one document.
type ExtractResponse struct {
	SourceID string                  `json:"source_id"`
	Outcome  string                  `json:"outcome"`
	Record   *model.ExtractionRecord `json:"record,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

func handleExtract(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxExtractBodySize)
		defer r.Body.Close()

		var req ExtractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.URL == "" {
			httpError(w, http.StatusBadRequest, "url is required")
			return
		}
		if req.Text == "" {
			httpError(w, http.StatusBadRequest, "text is required")
			return
		}

		res := deps.Runner.Process(r.Context(), pipeline.SourceInput{
			URL:   req.URL,
			Label: req.Label,
			Text:  req.Text,
		})

		resp := ExtractResponse{
			SourceID: res.Source.ID,
			Outcome:  string(res.Outcome),
			Record:   res.Record,
		}
		status := http.StatusOK
		if res.Err != nil {
			resp.Error = res.Err.Error()
			if res.Outcome == pipeline.OutcomeFailed {
				status = http.StatusBadGateway
				zap.L().Error("api: extract failed",
					zap.String("url", req.URL),
					zap.Error(res.Err),
				)
			}
		}
		writeJSON(w, status, resp)
	}
}

func handleListSources(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := deps.Store.ListSources(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "list sources: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
	}
}

func handleLatest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rec, err := deps.Store.Latest(r.Context(), id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "read latest: %v", err)
			return
		}
		if rec == nil {
			httpError(w, http.StatusNotFound, "no records for source %s", id)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if asOf := r.URL.Query().Get("as_of"); asOf != "" {
			t, err := time.Parse(time.RFC3339, asOf)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid as_of, want RFC3339: %v", err)
				return
			}
			rec, err := deps.Store.AsOf(r.Context(), id, t)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "read as-of: %v", err)
				return
			}
			if rec == nil {
				httpError(w, http.StatusNotFound, "no record for source %s at %s", id, asOf)
				return
			}
			writeJSON(w, http.StatusOK, rec)
			return
		}

		records, err := deps.Store.History(r.Context(), id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "read history: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": records})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": fmt.Sprintf(format, args...),
	})
}
