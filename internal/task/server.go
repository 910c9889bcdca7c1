package task

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/gantt/internal/project"
	"github.com/kazz187/gantt/pkg/cerr"
	"github.com/kazz187/gantt/pkg/clog"
)

type Server struct {
	service  *Service
	projects project.Repository
}

func NewServer(service *Service, projects project.Repository) *Server {
	return &Server{service: service, projects: projects}
}

// Register mounts the task routes on r, which is expected to sit below /api
// behind the cerr JSON middleware.
func (s *Server) Register(r chi.Router) {
	r.Get("/projects/{projectID}/tasks", s.listTasks)
	r.Post("/projects/{projectID}/tasks", s.createTask)
	r.Get("/projects/{projectID}/critical-path", s.criticalPath)
	r.Post("/projects/{projectID}/dependencies/validate", s.validateDependencies)
	r.Get("/projects/{projectID}/stats", s.stats)

	r.Get("/tasks/{taskID}", s.getTask)
	r.Patch("/tasks/{taskID}", s.updateTask)
	r.Delete("/tasks/{taskID}", s.deleteTask)
	r.Post("/tasks/{taskID}/promote", s.promoteTask)
	r.Get("/tasks/{taskID}/subtasks", s.listSubtasks)
	r.Post("/tasks/{taskID}/subtasks", s.createSubtask)
}

type taskRequest struct {
	Name         *string   `json:"name"`
	Description  *string   `json:"description"`
	StartDate    *string   `json:"start_date"`
	EndDate      *string   `json:"end_date"`
	Progress     *float64  `json:"progress"`
	Color        *string   `json:"color"`
	Dependencies *[]string `json:"dependencies"`
	IsMilestone  *bool     `json:"is_milestone"`
	ParentID     *string   `json:"parent_id"`
	AssignedTo   *string   `json:"assigned_to"`
	Priority     *string   `json:"priority"`
}

type taskResponse struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	StartDate    string    `json:"start_date"`
	EndDate      string    `json:"end_date"`
	Duration     int       `json:"duration"`
	Progress     float64   `json:"progress"`
	Status       Status    `json:"status"`
	Color        string    `json:"color"`
	Dependencies []string  `json:"dependencies"`
	IsMilestone  bool      `json:"is_milestone"`
	ParentID     string    `json:"parent_id,omitempty"`
	AssignedTo   string    `json:"assigned_to,omitempty"`
	Priority     Priority  `json:"priority"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type mutationResponse struct {
	Task                *taskResponse `json:"task"`
	DroppedDependencies []string      `json:"dropped_dependencies"`
}

type validateRequest struct {
	TaskID       string   `json:"task_id"`
	Dependencies []string `json:"dependencies"`
}

type validateResponse struct {
	ValidDependencies   []string `json:"valid_dependencies"`
	DroppedDependencies []string `json:"dropped_dependencies"`
}

type criticalPathResponse struct {
	CriticalPath []string        `json:"critical_path"`
	Tasks        []*taskResponse `json:"tasks"`
	Length       int             `json:"length"`
}

type deleteResponse struct {
	DeletedIDs []string `json:"deleted_ids"`
	UpdatedIDs []string `json:"updated_ids"`
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectID")
	if err := s.requireProject(ctx, projectID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	tasks, err := s.service.List(ctx, projectID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, s.toResponses(tasks))
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectID")
	if err := s.requireProject(ctx, projectID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	in, err := decodeCreate(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	in.ProjectID = projectID
	res, err := s.service.Create(ctx, in)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, s.toMutation(res))
}

func (s *Server) createSubtask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	parentID := chi.URLParam(r, "taskID")
	in, err := decodeCreate(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	res, err := s.service.CreateSubtask(ctx, parentID, in)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, s.toMutation(res))
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.service.Get(ctx, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, s.toResponse(t))
}

func (s *Server) listSubtasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tasks, err := s.service.Subtasks(ctx, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, s.toResponses(tasks))
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	in := UpdateInput{
		Name:         req.Name,
		Description:  req.Description,
		Progress:     req.Progress,
		Color:        req.Color,
		Dependencies: req.Dependencies,
		IsMilestone:  req.IsMilestone,
		ParentID:     req.ParentID,
		AssignedTo:   req.AssignedTo,
	}
	var err error
	if in.StartDate, err = parseDateField("start_date", req.StartDate); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if in.EndDate, err = parseDateField("end_date", req.EndDate); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.Priority != nil {
		p := Priority(*req.Priority)
		in.Priority = &p
	}
	res, err := s.service.Update(ctx, chi.URLParam(r, "taskID"), in)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, s.toMutation(res))
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	plan, err := s.service.Delete(ctx, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	resp := &deleteResponse{DeletedIDs: plan.Removed, UpdatedIDs: make([]string, 0, len(plan.Updated))}
	for _, t := range plan.Updated {
		resp.UpdatedIDs = append(resp.UpdatedIDs, t.ID)
	}
	cerr.SetJSONResponse(ctx, resp)
}

func (s *Server) promoteTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.service.Promote(ctx, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, s.toResponse(t))
}

func (s *Server) criticalPath(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectID")
	if err := s.requireProject(ctx, projectID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	path, err := s.service.CriticalPath(ctx, projectID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	resp := &criticalPathResponse{
		CriticalPath: make([]string, len(path)),
		Tasks:        s.toResponses(path),
		Length:       len(path),
	}
	for i, t := range path {
		resp.CriticalPath[i] = t.ID
	}
	cerr.SetJSONResponse(ctx, resp)
}

func (s *Server) validateDependencies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectID")
	if err := s.requireProject(ctx, projectID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	valid, err := s.service.ValidateDependencies(ctx, projectID, req.TaskID, req.Dependencies)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	dropped := DroppedDependencies(req.Dependencies, valid)
	if dropped == nil {
		dropped = []string{}
	}
	cerr.SetJSONResponse(ctx, &validateResponse{ValidDependencies: valid, DroppedDependencies: dropped})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectID")
	if err := s.requireProject(ctx, projectID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	st, err := s.service.Stats(ctx, projectID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, st)
}

func (s *Server) requireProject(ctx context.Context, projectID string) error {
	clog.AddAttribute(ctx, clog.ProjectIDAttributeKey, projectID)
	_, err := s.projects.Get(ctx, projectID)
	return err
}

func (s *Server) toResponse(t *Task) *taskResponse {
	deps := t.Dependencies
	if deps == nil {
		deps = []string{}
	}
	return &taskResponse{
		ID:           t.ID,
		ProjectID:    t.ProjectID,
		Name:         t.Name,
		Description:  t.Description,
		StartDate:    t.StartDate.Format(DateLayout),
		EndDate:      t.EndDate.Format(DateLayout),
		Duration:     t.Duration(),
		Progress:     t.Progress,
		Status:       t.Status(s.service.now()),
		Color:        t.Color,
		Dependencies: deps,
		IsMilestone:  t.IsMilestone,
		ParentID:     t.ParentID,
		AssignedTo:   t.AssignedTo,
		Priority:     t.Priority,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func (s *Server) toResponses(tasks []*Task) []*taskResponse {
	resp := make([]*taskResponse, len(tasks))
	for i, t := range tasks {
		resp[i] = s.toResponse(t)
	}
	return resp
}

func (s *Server) toMutation(res *Result) *mutationResponse {
	dropped := res.DroppedDependencies
	if dropped == nil {
		dropped = []string{}
	}
	return &mutationResponse{Task: s.toResponse(res.Task), DroppedDependencies: dropped}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return cerr.NewError(cerr.InvalidArgument, "invalid request body", err).AddDetailMessage(err.Error())
	}
	return nil
}

func decodeCreate(r *http.Request) (CreateInput, error) {
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		return CreateInput{}, err
	}
	in := CreateInput{}
	if req.Name != nil {
		in.Name = *req.Name
	}
	if req.Description != nil {
		in.Description = *req.Description
	}
	if req.Progress != nil {
		in.Progress = *req.Progress
	}
	if req.Color != nil {
		in.Color = *req.Color
	}
	if req.Dependencies != nil {
		in.Dependencies = *req.Dependencies
	}
	if req.IsMilestone != nil {
		in.IsMilestone = *req.IsMilestone
	}
	if req.ParentID != nil {
		in.ParentID = *req.ParentID
	}
	if req.AssignedTo != nil {
		in.AssignedTo = *req.AssignedTo
	}
	if req.Priority != nil {
		in.Priority = Priority(*req.Priority)
	}
	start, err := parseDateField("start_date", req.StartDate)
	if err != nil {
		return CreateInput{}, err
	}
	if start != nil {
		in.StartDate = *start
	}
	end, err := parseDateField("end_date", req.EndDate)
	if err != nil {
		return CreateInput{}, err
	}
	if end != nil {
		in.EndDate = *end
	}
	return in, nil
}

func parseDateField(field string, v *string) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	d, err := ParseDate(*v)
	if err != nil {
		return nil, errInvalidField(field, fmt.Sprintf("%s %q is not a YYYY-MM-DD date", field, *v))
	}
	return &d, nil
}
