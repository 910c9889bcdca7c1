package project

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/kazz187/gantt/pkg/cerr"
	"github.com/kazz187/gantt/pkg/clog"
)

const dateLayout = "2006-01-02"

// TaskRemover drops every task of a project when the project goes away.
// finalize runs while no task of the project can be created.
type TaskRemover interface {
	DeleteProject(ctx context.Context, projectID string, finalize func(context.Context) error) (int, error)
}

// NoteRemover drops the notes of a deleted project.
type NoteRemover interface {
	DeleteByProject(ctx context.Context, projectID string) (int, error)
}

type Server struct {
	repo  Repository
	tasks TaskRemover
	notes NoteRemover
	now   func() time.Time

	// mu serializes writes that touch is_active, which is exclusive across
	// projects.
	mu sync.Mutex
}

// NewServer builds the project endpoints. notes may be nil.
func NewServer(repo Repository, tasks TaskRemover, notes NoteRemover) *Server {
	return &Server{repo: repo, tasks: tasks, notes: notes, now: time.Now}
}

func (s *Server) Register(r chi.Router) {
	r.Get("/projects", s.listProjects)
	r.Post("/projects", s.createProject)
	r.Get("/projects/active", s.getActiveProject)
	r.Get("/projects/{projectID}", s.getProject)
	r.Patch("/projects/{projectID}", s.updateProject)
	r.Delete("/projects/{projectID}", s.deleteProject)
	r.Post("/projects/{projectID}/activate", s.activateProject)
}

type projectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	StartDate   *string `json:"start_date"`
	EndDate     *string `json:"end_date"`
	Color       *string `json:"color"`
	IsActive    *bool   `json:"is_active"`
}

type projectResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date,omitempty"`
	Color       string    `json:"color"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type listResponse struct {
	Projects []*projectResponse `json:"projects"`
	Total    int                `json:"total"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

type deleteResponse struct {
	DeletedTasks int `json:"deleted_tasks"`
	DeletedNotes int `json:"deleted_notes"`
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset := 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid limit", err)
			return
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid offset", err)
			return
		}
		offset = n
	}
	projects, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	resp := &listResponse{Projects: make([]*projectResponse, len(projects)), Total: total, Limit: limit, Offset: offset}
	for i, p := range projects {
		resp.Projects[i] = toResponse(p)
	}
	cerr.SetJSONResponse(ctx, resp)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// A new project is active by default only while no other one is.
	active, err := ActiveProject(ctx, s.repo)
	if err != nil && !cerr.IsCode(err, cerr.NotFound) {
		cerr.SetJSONError(ctx, err)
		return
	}
	now := s.now()
	y, m, d := now.Date()
	p := &Project{
		ID:        ulid.Make().String(),
		StartDate: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Color:     DefaultColor,
		IsActive:  active == nil,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := apply(p, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.repo.Create(ctx, p); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if p.IsActive {
		if err := deactivateOthers(ctx, s.repo, p.ID, now); err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
	}
	clog.AddAttribute(ctx, clog.ProjectIDAttributeKey, p.ID)
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, toResponse(p))
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := s.repo.Get(ctx, chi.URLParam(r, "projectID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, toResponse(p))
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.repo.Get(ctx, chi.URLParam(r, "projectID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	wasActive := p.IsActive
	if err := apply(p, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	p.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, p); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if p.IsActive && !wasActive {
		if err := deactivateOthers(ctx, s.repo, p.ID, p.UpdatedAt); err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
	}
	cerr.SetJSONResponse(ctx, toResponse(p))
}

func (s *Server) getActiveProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := ActiveProject(ctx, s.repo)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, toResponse(p))
}

func (s *Server) activateProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "projectID")
	clog.AddAttribute(ctx, clog.ProjectIDAttributeKey, id)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := Activate(ctx, s.repo, id, s.now())
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, toResponse(p))
}

// deleteProject removes the tasks first so a failure never leaves tasks
// pointing at a missing project. The notes and the project row go while the
// task side still holds the project, so no task can be added in between.
func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "projectID")
	clog.AddAttribute(ctx, clog.ProjectIDAttributeKey, id)
	if _, err := s.repo.Get(ctx, id); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	resp := &deleteResponse{}
	n, err := s.tasks.DeleteProject(ctx, id, func(ctx context.Context) error {
		if s.notes != nil {
			notes, err := s.notes.DeleteByProject(ctx, id)
			if err != nil {
				return err
			}
			resp.DeletedNotes = notes
		}
		return s.repo.Delete(ctx, id)
	})
	resp.DeletedTasks = n
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, resp)
}

func apply(p *Project, req *projectRequest) error {
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if p.Name == "" {
		return invalidField("name", "project name must not be empty")
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Color != nil && *req.Color != "" {
		p.Color = *req.Color
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if req.StartDate != nil {
		d, err := time.Parse(dateLayout, *req.StartDate)
		if err != nil {
			return invalidField("start_date", fmt.Sprintf("start_date %q is not a YYYY-MM-DD date", *req.StartDate))
		}
		p.StartDate = d
	}
	if req.EndDate != nil {
		if *req.EndDate == "" {
			p.EndDate = time.Time{}
		} else {
			d, err := time.Parse(dateLayout, *req.EndDate)
			if err != nil {
				return invalidField("end_date", fmt.Sprintf("end_date %q is not a YYYY-MM-DD date", *req.EndDate))
			}
			p.EndDate = d
		}
	}
	if !p.EndDate.IsZero() && p.EndDate.Before(p.StartDate) {
		return invalidField("end_date", "end_date is before start_date")
	}
	return nil
}

func invalidField(field, detail string) error {
	return cerr.NewError(cerr.InvalidArgument, "invalid "+field, nil).
		AddDetailMessageWithCode(detail, "project.field.invalid")
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return cerr.NewError(cerr.InvalidArgument, "invalid request body", err).AddDetailMessage(err.Error())
	}
	return nil
}

func toResponse(p *Project) *projectResponse {
	resp := &projectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		StartDate:   p.StartDate.Format(dateLayout),
		Color:       p.Color,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if !p.EndDate.IsZero() {
		resp.EndDate = p.EndDate.Format(dateLayout)
	}
	return resp
}
