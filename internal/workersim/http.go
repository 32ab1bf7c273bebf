package workersim

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ditatrack/internal/progress"
)

// Handler returns the worker's HTTP API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(echoRequestID)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/upload", s.handleUpload)
		r.Post("/process/start/{id}", s.handleStart)
		r.Get("/process/status/{id}", s.handleStatus)
		r.Get("/layer/{id}/{layer}", s.handleLayer)
		r.Get("/download/result/{id}", s.handleDownload)
	})
	return r
}

func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set("X-Request-Id", id)
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"success": false, "error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	n := len(s.sessions)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "sessions": n})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Filename) == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}
	id := s.CreateSession(body.Filename)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session_id": id, "filename": body.Filename})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Start(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session_id": id, "message": "conversion started"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.snapshot(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	body := map[string]any{
		"success":    true,
		"session_id": sess.ID,
		"status":     sess.State,
		"progress":   sess.Progress,
		"message":    sess.Message,
		"filename":   sess.Filename,
		"error":      sess.Error,
	}
	if s.cfg.ReportStages && sess.State != StateUploaded {
		stages := make(map[string]any, progress.StageCount)
		for i := 1; i <= progress.StageCount; i++ {
			idx := progress.StageIndex(i)
			st, p := sess.stageState(idx)
			stages[idx.Key()] = map[string]any{"status": st, "progress": p}
		}
		body["stages"] = stages
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleLayer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.snapshot(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	idx, ok := progress.ParseStageKey(chi.URLParam(r, "layer"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown layer "+chi.URLParam(r, "layer"))
		return
	}
	if st, _ := sess.stageState(idx); st != StateCompleted {
		writeError(w, http.StatusBadRequest, "stage not finished")
		return
	}
	writeJSON(w, http.StatusOK, layerPayload(sess, idx))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.snapshot(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if sess.State != StateCompleted {
		writeError(w, http.StatusBadRequest, "conversion not finished")
		return
	}
	data, err := resultArchive(sess)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="converted_%s.zip"`, sess.Filename))
	_, _ = w.Write(data)
}

// layerPayload synthesises a deterministic stage payload for sess.
func layerPayload(sess session, idx progress.StageIndex) map[string]any {
	n := len(sess.Filename)
	base := map[string]any{"success": true, "layer_name": idx.Layer(), "layer_title": idx.Title()}
	switch idx {
	case 1:
		md := fmt.Sprintf("# %s\n\nConverted body of %s.\n", sess.Filename, sess.Filename)
		base["file_type"] = fileType(sess.Filename)
		base["markdown"] = md
		base["markdown_length"] = len(md)
		base["statistics"] = map[string]any{"pages": 1 + n%9, "images": n % 4}
	case 2:
		total := 12 + n%5
		chunks := make([]map[string]any, 0, 10)
		kinds := []string{"Task", "Concept", "Reference"}
		for i := 0; i < total && i < 10; i++ {
			chunks = append(chunks, map[string]any{
				"id":    fmt.Sprintf("chunk_%d", i+1),
				"title": fmt.Sprintf("Section %d", i+1),
				"level": 1 + i%3,
				"classification": map[string]any{
					"type":       kinds[i%len(kinds)],
					"confidence": 0.7 + float64(i%3)/10,
				},
			})
		}
		base["total_chunks"] = total
		base["chunks"] = chunks
		base["has_more"] = total > 10
		base["statistics"] = map[string]any{"needs_review": 1}
	case 3, 4:
		total := 12 + n%5
		failed := 1
		// The worker reuses the success key for the converted count here.
		base["success"] = total - failed
		base["total"] = total
		base["failed"] = failed
		base["success_rate"] = float64(total-failed) / float64(total)
		if idx == 4 {
			base["avg_quality_score"] = 0.86
			base["summary"] = map[string]any{"total_errors": failed, "total_warnings": 2}
		}
	}
	return base
}

func fileType(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 && i < len(name)-1 {
		return strings.ToLower(name[i+1:])
	}
	return "unknown"
}

func resultArchive(sess session) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := []struct{ name, body string }{
		{"README.txt", "Converted from " + sess.Filename + "\n"},
		{"topics/index.ditamap", `<?xml version="1.0" encoding="UTF-8"?>` + "\n<map><title>" + sess.Filename + "</title></map>\n"},
	}
	for _, file := range files {
		f, err := zw.Create(file.name)
		if err != nil {
			return nil, err
		}
		if _, err := f.Write([]byte(file.body)); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
