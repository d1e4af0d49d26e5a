package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"steward/internal/serviceapi"
)

func (r *Runtime) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/health", r.handleHealth)
	mux.HandleFunc("/api/v1/projects", r.handleProjects)
	mux.HandleFunc("/api/v1/projects/", r.handleProjectByID)
	mux.HandleFunc("/api/v1/reply", r.handleReply)
	mux.HandleFunc("/api/v1/scheduler", r.handleScheduler)
	mux.HandleFunc("/api/v1/scheduler/kick", r.handleSchedulerKick)
}

func (r *Runtime) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is supported")
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		StartedAt: r.startedAt,
		Now:       time.Now().UTC(),
		Worker:    r.worker.Snapshot(),
	})
}

type addProjectRequest struct {
	Name              string `json:"name"`
	RepoPath          string `json:"repo_path"`
	Goal              string `json:"goal"`
	TimeBudgetMinutes int    `json:"time_budget_minutes"`
	MaxIterations     int    `json:"max_iterations"`
}

func (r *Runtime) handleProjects(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		projects, err := r.core.Projects()
		if err != nil {
			writeAPIError(w, http.StatusInternalServerError, "list_projects_failed", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
	case http.MethodPost:
		var payload addProjectRequest
		if err := decodeJSON(req, &payload); err != nil {
			writeAPIError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
		result, err := r.core.AddProject(req.Context(), serviceapi.AddProjectOptions{
			Name:              strings.TrimSpace(payload.Name),
			RepoPath:          strings.TrimSpace(payload.RepoPath),
			Goal:              strings.TrimSpace(payload.Goal),
			TimeBudgetMinutes: payload.TimeBudgetMinutes,
			MaxIterations:     payload.MaxIterations,
		})
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, "add_project_failed", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"project_id": result.ProjectID})
	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET and POST are supported")
	}
}

func (r *Runtime) handleProjectByID(w http.ResponseWriter, req *http.Request) {
	path := strings.Trim(strings.TrimPrefix(req.URL.Path, "/api/v1/projects/"), "/")
	if path == "" {
		writeAPIError(w, http.StatusBadRequest, "invalid_project_path", "project id is required")
		return
	}
	segments := strings.Split(path, "/")
	projectID := strings.TrimSpace(segments[0])
	if projectID == "" {
		writeAPIError(w, http.StatusBadRequest, "invalid_project_id", "project id is required")
		return
	}

	if len(segments) == 1 {
		if req.Method != http.MethodGet {
			writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is supported")
			return
		}
		project, err := r.core.Project(projectID)
		if err != nil {
			writeAPIError(w, http.StatusNotFound, "project_not_found", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"project": project})
		return
	}

	action := strings.TrimSpace(strings.ToLower(segments[1]))
	if action == "events" {
		if req.Method != http.MethodGet {
			writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is supported")
			return
		}
		limit := 0
		if raw := req.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeAPIError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
				return
			}
			limit = parsed
		}
		events, err := r.core.Events(projectID, limit)
		if err != nil {
			writeAPIError(w, http.StatusInternalServerError, "list_events_failed", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events})
		return
	}

	if req.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is supported")
		return
	}
	switch action {
	case "pause":
		if err := r.core.Pause(req.Context(), projectID); err != nil {
			writeAPIError(w, http.StatusBadRequest, "pause_failed", err.Error())
			return
		}
	case "resume":
		if err := r.core.Resume(req.Context(), projectID); err != nil {
			writeAPIError(w, http.StatusBadRequest, "resume_failed", err.Error())
			return
		}
	case "process":
		if err := r.core.ProcessProject(req.Context(), projectID); err != nil {
			writeAPIError(w, http.StatusInternalServerError, "process_failed", err.Error())
			return
		}
	default:
		writeAPIError(w, http.StatusNotFound, "unknown_action", fmt.Sprintf("unknown action %q", action))
		return
	}
	project, err := r.core.Project(projectID)
	if err != nil {
		writeAPIError(w, http.StatusNotFound, "project_not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"project": project})
}

type replyRequest struct {
	Text string `json:"text"`
}

// handleReply publishes a human reply onto the channel so it flows through
// the same dispatch path as replies arriving over Redis.
func (r *Runtime) handleReply(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is supported")
		return
	}
	var payload replyRequest
	if err := decodeJSON(req, &payload); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		writeAPIError(w, http.StatusBadRequest, "empty_reply", "reply text is required")
		return
	}
	if err := r.core.Bus().InjectReply(req.Context(), payload.Text); err != nil {
		writeAPIError(w, http.StatusInternalServerError, "reply_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "accepted"})
}

func (r *Runtime) handleScheduler(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is supported")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scheduler": r.worker.Snapshot()})
}

func (r *Runtime) handleSchedulerKick(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is supported")
		return
	}
	r.worker.Kick()
	writeJSON(w, http.StatusOK, map[string]any{"status": "kicked"})
}

func decodeJSON(req *http.Request, out any) error {
	if req.Body == nil {
		return fmt.Errorf("request body is required")
	}
	defer req.Body.Close()
	decoder := json.NewDecoder(req.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeAPIError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": apiError{
			Code:    strings.TrimSpace(code),
			Message: strings.TrimSpace(message),
		},
	})
}
