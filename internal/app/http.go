package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/auth"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/geometry"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/rbac"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	auth       *auth.Authenticator
	logger     *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		auth:       auth.NewAuthenticator(service.cfg.APIToken, service.cfg.TokenSecret),
		logger:     logger,
	}
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
		// Check store connectivity
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
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	if !s.authorize(w, r, parts) {
		return
	}

	switch parts[1] {
	case "panel-layout":
		if len(parts) == 3 {
			s.handleStoredLayout(w, r, parts[2])
			return
		}
	case "asbuilt":
		s.handleAsbuilt(w, r, parts[2:])
		return
	case "projects":
		if len(parts) >= 4 {
			s.handleProject(w, r, parts[2], parts[3:])
			return
		}
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleStoredLayout(w http.ResponseWriter, r *http.Request, projectID string) {
	switch r.Method {
	case http.MethodGet:
		layout, err := s.service.StoredLayout(r.Context(), projectID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, layout)

	case http.MethodPut:
		var layout store.Layout
		if err := decodeBody(r, &layout); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		layout.ProjectID = projectID
		updated, err := s.service.SaveStoredLayout(r.Context(), layout)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projectId": projectID, "lastUpdated": updated})

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleAsbuilt(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodPost:
		var rec store.AsbuiltRecord
		if err := decodeBody(r, &rec); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.CreateRecord(r.Context(), rec)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case len(parts) == 3 && parts[1] == "panels" && r.Method == http.MethodGet:
		records, err := s.service.PanelRecords(r.Context(), parts[0], parts[2])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"records": records})

	case len(parts) == 2 && parts[1] == "summary" && r.Method == http.MethodGet:
		summary, err := s.service.ProjectSummary(r.Context(), parts[0])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleProject(w http.ResponseWriter, r *http.Request, projectID string, parts []string) {
	ctx := r.Context()

	switch {
	case parts[0] == "layout" && len(parts) == 1 && r.Method == http.MethodGet:
		model, err := s.service.Layout(ctx, projectID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, model)

	case parts[0] == "layout" && len(parts) == 1 && r.Method == http.MethodPut:
		var body struct {
			Panels []store.Panel `json:"panels"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		model, err := s.service.SetPanels(ctx, projectID, body.Panels)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, model)

	case parts[0] == "reload" && len(parts) == 1 && r.Method == http.MethodPost:
		model, err := s.service.Reload(ctx, projectID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, model)

	case parts[0] == "save" && len(parts) == 1 && r.Method == http.MethodPost:
		model, err := s.service.Save(ctx, projectID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, model)

	case parts[0] == "resolve" && len(parts) == 1 && r.Method == http.MethodPost:
		var body struct {
			Identifier string `json:"identifier"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		res, err := s.service.ResolvePanel(ctx, projectID, body.Identifier)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		var panelID any
		if res.Found() {
			panelID = res.PanelID
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"panelId":        panelID,
			"resolution":     res,
			"requiresReview": !res.Found() || res.Ambiguous(),
		})

	case parts[0] == "import" && len(parts) == 1 && r.Method == http.MethodPost:
		var input ImportInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.ImportRecord(ctx, projectID, input)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)

	case parts[0] == "search" && len(parts) == 1 && r.Method == http.MethodGet:
		query := r.URL.Query()
		limit, _ := strconv.Atoi(query.Get("limit"))
		offset, _ := strconv.Atoi(query.Get("offset"))
		resp, err := s.service.Search(ctx, projectID, query.Get("q"), limit, offset)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)

	case parts[0] == "panels":
		s.handlePanels(w, r, projectID, parts[1:])

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handlePanels(w http.ResponseWriter, r *http.Request, projectID string, parts []string) {
	ctx := r.Context()

	if len(parts) == 0 {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		var panel store.Panel
		if err := decodeBody(r, &panel); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.AddPanel(ctx, projectID, panel)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
		return
	}

	panelID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	if len(parts) > 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodPatch:
		var update PanelUpdate
		if err := decodeBody(r, &update); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		panel, err := s.service.UpdatePanel(ctx, projectID, panelID, update)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, panel)

	case action == "" && r.Method == http.MethodDelete:
		if err := s.service.RemovePanel(ctx, projectID, panelID); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "panelId": panelID})

	case action == "resize" && r.Method == http.MethodPost:
		var body struct {
			Handle      geometry.Handle `json:"handle"`
			DragStart   geometry.Point  `json:"dragStart"`
			DragCurrent geometry.Point  `json:"dragCurrent"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		outcome, err := s.service.ResizePanel(ctx, projectID, panelID, body.Handle, body.DragStart, body.DragCurrent)
		s.writeGeometry(w, r, outcome, err)

	case action == "move" && r.Method == http.MethodPost:
		var body struct {
			DX float64 `json:"dx"`
			DY float64 `json:"dy"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		outcome, err := s.service.MovePanel(ctx, projectID, panelID, geometry.Point{X: body.DX, Y: body.DY})
		s.writeGeometry(w, r, outcome, err)

	case action == "gesture" && r.Method == http.MethodPost:
		if err := s.service.BeginGesture(ctx, projectID, panelID); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "panelId": panelID})

	case action == "gesture" && r.Method == http.MethodDelete:
		if err := s.service.EndGesture(ctx, projectID, panelID); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "panelId": panelID})

	case action == "records" && r.Method == http.MethodGet:
		records, err := s.service.PanelRecords(ctx, projectID, panelID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"records": records})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) writeGeometry(w http.ResponseWriter, r *http.Request, outcome GeometryOutcome, err error) {
	var constraintErr *ConstraintError
	if errors.As(err, &constraintErr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"code":    "CONSTRAINT_VIOLATION",
			"error":   "Panel geometry violates layout limits",
			"details": outcome,
		})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

// authorize writes 401 or 403 and returns false when the caller may not use
// the route.
func (s *HTTPServer) authorize(w http.ResponseWriter, r *http.Request, parts []string) bool {
	if !s.auth.Enabled() {
		return true
	}
	claims, err := s.auth.Authenticate(bearerToken(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return false
	}
	projectID, action := routeAccess(r.Method, parts)
	if !claims.Allows(projectID, action) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return false
	}
	return true
}

// routeAccess names the project a route touches and the action it needs.
func routeAccess(method string, parts []string) (string, rbac.Action) {
	projectID := ""
	switch {
	case len(parts) >= 3 && (parts[1] == "projects" || parts[1] == "panel-layout"):
		projectID = parts[2]
	case len(parts) >= 4 && parts[1] == "asbuilt":
		projectID = parts[2]
	}

	switch {
	case method == http.MethodGet || method == http.MethodHead:
		return projectID, rbac.ActionRead
	case parts[1] == "panel-layout":
		return projectID, rbac.ActionAdmin
	case parts[1] == "asbuilt":
		return projectID, rbac.ActionRecord
	case len(parts) == 4 && parts[3] == "resolve":
		return projectID, rbac.ActionRead
	case len(parts) == 4 && parts[3] == "import":
		return projectID, rbac.ActionRecord
	}
	return projectID, rbac.ActionEdit
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
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

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
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
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

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		details := domainErr.Details
		if domainErr.Retryable {
			details = map[string]any{"retryable": true}
		}
		return domainErr.Status, domainErr.Code, domainErr.Message, details
	}
	var constraintErr *ConstraintError
	if errors.As(err, &constraintErr) {
		return http.StatusUnprocessableEntity, "CONSTRAINT_VIOLATION", "Panel geometry violates layout limits", map[string]any{"violations": constraintErr.Violations}
	}
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, ErrPanelNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrInvalidPanel):
		return http.StatusBadRequest, "INVALID_PANEL", err.Error(), nil
	case errors.Is(err, geometry.ErrUnknownHandle), errors.Is(err, geometry.ErrInvalidBounds), errors.Is(err, geometry.ErrInvalidConstraints):
		return http.StatusBadRequest, "INVALID_GEOMETRY", err.Error(), nil
	case errors.Is(err, ErrDuplicatePanel):
		return http.StatusConflict, "DUPLICATE_PANEL", err.Error(), nil
	case errors.Is(err, ErrUnsavedEdits):
		return http.StatusConflict, "UNSAVED_EDITS", err.Error(), nil
	case errors.Is(err, ErrGestureActive), errors.Is(err, ErrSessionNotReady):
		return http.StatusConflict, "CONFLICT", err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
