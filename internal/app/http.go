package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"craftboard/api/internal/drafts"
	"craftboard/api/internal/search"
	"craftboard/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	ws         http.Handler
	corsOrigin string
}

// NewHTTPServer wires the REST surface. ws handles websocket upgrades for
// the collaboration endpoint; pass nil to disable it.
func NewHTTPServer(service *Service, ws http.Handler, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, ws: ws, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/assets" {
		s.handleUploadAsset(w, r)
		return
	}

	if r.URL.Path == "/api/collab/ws" {
		if s.ws == nil {
			writeError(w, http.StatusServiceUnavailable, "COLLAB_UNAVAILABLE", "Collaboration is not configured", nil)
			return
		}
		s.ws.ServeHTTP(w, r)
		return
	}

	parts := splitPath(r.URL.Path)

	// /api/collab/rooms/{designId}
	if len(parts) == 4 && parts[0] == "api" && parts[1] == "collab" && parts[2] == "rooms" && r.Method == http.MethodGet {
		roster := s.service.Roster(parts[3])
		if roster == nil {
			roster = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"designId": parts[3], "participants": roster})
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "designs" {
		s.handleDesigns(w, r, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}

	if s.service.DraftsEnabled() {
		if err := s.service.PingDrafts(ctx); err != nil {
			checks["redis"] = map[string]any{"status": "error", "error": err.Error()}
		} else {
			checks["redis"] = map[string]any{"status": "ok"}
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleDesigns(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		designs, err := s.service.ListDesigns(r.Context(), limit)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		if designs == nil {
			designs = []DesignView{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"designs": designs})

	case len(rest) == 0 && r.Method == http.MethodPost:
		var body CreateDesignInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		design, err := s.service.CreateDesign(r.Context(), body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, design)

	case len(rest) == 1 && r.Method == http.MethodGet:
		design, err := s.service.GetDesign(r.Context(), rest[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, design)

	case len(rest) == 1 && r.Method == http.MethodPatch:
		var body RenameDesignInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		design, err := s.service.RenameDesign(r.Context(), rest[0], body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, design)

	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteDesign(r.Context(), rest[0]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(rest) == 2 && rest[1] == "canvas" && r.Method == http.MethodPut:
		var body SaveCanvasInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.SaveCanvas(r.Context(), rest[0], body); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(rest) == 2 && rest[1] == "draft" && r.Method == http.MethodPut:
		var body SaveDraftInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.SaveDraft(r.Context(), rest[0], body); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(rest) == 2 && rest[1] == "draft" && r.Method == http.MethodGet:
		draft, err := s.service.LoadDraft(r.Context(), rest[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, draft)

	case len(rest) == 2 && rest[1] == "draft" && r.Method == http.MethodDelete:
		if err := s.service.DiscardDraft(r.Context(), rest[0]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(rest) == 2 && rest[1] == "comments" && r.Method == http.MethodGet:
		comments, err := s.service.ListComments(r.Context(), rest[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		if comments == nil {
			comments = []CommentView{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"comments": comments})

	case len(rest) == 2 && rest[1] == "comments" && r.Method == http.MethodPost:
		var body AddCommentInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		comment, err := s.service.AddComment(r.Context(), rest[0], body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, comment)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "Query parameter q is required", nil)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	resp, err := s.service.SearchDesigns(search.Query{Text: query, Limit: limit, Offset: offset})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

const maxAssetUpload = 10 << 20

func (s *HTTPServer) handleUploadAsset(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > maxAssetUpload {
		writeError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "Upload exceeds the 10MB limit", nil)
		return
	}
	body := http.MaxBytesReader(w, r.Body, maxAssetUpload)
	defer body.Close()

	url, err := s.service.UploadAsset(r.Context(), r.Header.Get("Content-Type"), r.ContentLength, body)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"url": url})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		// Websocket upgrades need the raw ResponseWriter for hijacking and
		// must not get JSON headers.
		if r.URL.Path == "/api/collab/ws" {
			next.ServeHTTP(w, r)
			return
		}

		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, drafts.ErrNoDraft) {
		return http.StatusNotFound, "DRAFT_NOT_FOUND", "No draft for this design", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
