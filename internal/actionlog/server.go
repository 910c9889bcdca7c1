package actionlog

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/gantt/internal/task"
	"github.com/kazz187/gantt/pkg/cerr"
)

const defaultLimit = 100

type Server struct {
	repo Repository
}

func NewServer(repo Repository) *Server {
	return &Server{repo: repo}
}

func (s *Server) Register(r chi.Router) {
	r.Get("/projects/{projectID}/logs", s.listProjectLogs)
	r.Get("/tasks/{taskID}/logs", s.listTaskLogs)
}

type entryResponse struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	Action    task.Action    `json:"action"`
	TaskID    string         `json:"task_id"`
	TaskName  string         `json:"task_name"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
	User      string         `json:"user"`
}

func (s *Server) listProjectLogs(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, Filter{ProjectID: chi.URLParam(r, "projectID")})
}

func (s *Server) listTaskLogs(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, Filter{TaskID: chi.URLParam(r, "taskID")})
}

func (s *Server) list(_ http.ResponseWriter, r *http.Request, f Filter) {
	ctx := r.Context()
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid limit", err)
			return
		}
		limit = n
	}
	entries, err := s.repo.List(ctx, f, limit)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	resp := make([]*entryResponse, len(entries))
	for i, e := range entries {
		resp[i] = &entryResponse{
			ID:        e.ID,
			ProjectID: e.ProjectID,
			Action:    e.Action,
			TaskID:    e.TaskID,
			TaskName:  e.TaskName,
			Timestamp: e.Timestamp,
			Details:   e.Details,
			User:      e.User,
		}
	}
	cerr.SetJSONResponse(ctx, resp)
}
