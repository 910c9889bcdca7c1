package note

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/kazz187/gantt/internal/project"
	"github.com/kazz187/gantt/pkg/cerr"
	"github.com/kazz187/gantt/pkg/clog"
)

type Server struct {
	repo     Repository
	projects project.Repository
	now      func() time.Time

	// mu keeps the read-modify-write of Put from losing a note's id and
	// creation time to a concurrent write of the same day.
	mu sync.Mutex
}

func NewServer(repo Repository, projects project.Repository) *Server {
	return &Server{repo: repo, projects: projects, now: time.Now}
}

func (s *Server) Register(r chi.Router) {
	r.Get("/projects/{projectID}/notes", s.listNotes)
	r.Get("/projects/{projectID}/notes/{date}", s.getNote)
	r.Put("/projects/{projectID}/notes/{date}", s.putNote)
	r.Delete("/projects/{projectID}/notes/{date}", s.deleteNote)
}

type noteRequest struct {
	Content *string `json:"content"`
}

type noteResponse struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Date      string    `json:"date"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type listResponse struct {
	Notes []*noteResponse `json:"notes"`
}

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectID")
	if err := s.requireProject(r, projectID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	notes, err := s.repo.List(ctx, projectID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	resp := &listResponse{Notes: make([]*noteResponse, len(notes))}
	for i, n := range notes {
		resp.Notes[i] = toResponse(n)
	}
	cerr.SetJSONResponse(ctx, resp)
}

func (s *Server) getNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectID")
	date, err := dateParam(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.requireProject(r, projectID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	n, err := s.repo.Get(ctx, projectID, date)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, toResponse(n))
}

// putNote creates the note of the day or replaces its content. The response
// status tells which one happened.
func (s *Server) putNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectID")
	date, err := dateParam(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req noteRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		cerr.SetJSONError(ctx, cerr.NewError(cerr.InvalidArgument, "invalid request body", err).AddDetailMessage(err.Error()))
		return
	}
	if req.Content == nil {
		cerr.SetJSONError(ctx, cerr.NewError(cerr.InvalidArgument, "invalid content", nil).
			AddDetailMessageWithCode("content is required", "note.field.invalid"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireProject(r, projectID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	now := s.now()
	status := http.StatusOK
	n, err := s.repo.Get(ctx, projectID, date)
	switch {
	case cerr.IsCode(err, cerr.NotFound):
		status = http.StatusCreated
		n = &Note{
			ID:        ulid.Make().String(),
			ProjectID: projectID,
			Date:      date,
			CreatedAt: now,
		}
	case err != nil:
		cerr.SetJSONError(ctx, err)
		return
	}
	n.Content = *req.Content
	n.UpdatedAt = now
	if err := s.repo.Put(ctx, n); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, status, toResponse(n))
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectID")
	date, err := dateParam(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.requireProject(r, projectID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.Delete(ctx, projectID, date); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, struct{}{})
}

func (s *Server) requireProject(r *http.Request, projectID string) error {
	ctx := r.Context()
	clog.AddAttribute(ctx, clog.ProjectIDAttributeKey, projectID)
	_, err := s.projects.Get(ctx, projectID)
	return err
}

func dateParam(r *http.Request) (time.Time, error) {
	raw := chi.URLParam(r, "date")
	d, err := ParseDate(raw)
	if err != nil {
		return time.Time{}, cerr.NewError(cerr.InvalidArgument, "invalid date", err).
			AddDetailMessageWithCode(fmt.Sprintf("%q is not a YYYY-MM-DD date", raw), "note.date.invalid")
	}
	return d, nil
}

func toResponse(n *Note) *noteResponse {
	return &noteResponse{
		ID:        n.ID,
		ProjectID: n.ProjectID,
		Date:      n.Date.Format(DateLayout),
		Content:   n.Content,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}
