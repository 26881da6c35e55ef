package task

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/agentforge/internal/identity"
	"github.com/kazz187/agentforge/pkg/cerr"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Server is the REST surface for the owning task CRUD layer.
type Server struct {
	repo Repository
}

func NewServer(repo Repository) *Server {
	return &Server{repo: repo}
}

func (s *Server) Routes(r chi.Router) {
	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", s.createTask)
		r.Get("/", s.listTasks)
		r.Get("/{id}", s.getTask)
		r.Patch("/{id}", s.updateTask)
		r.Delete("/{id}", s.deleteTask)
	})
}

type CreateTaskRequest struct {
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	Priority    string   `json:"priority"`
	Description string   `json:"description"`
	Notes       string   `json:"notes"`
	Tags        []string `json:"tags"`
}

type UpdateTaskRequest struct {
	Title       *string   `json:"title"`
	Category    *string   `json:"category"`
	Priority    *string   `json:"priority"`
	Description *string   `json:"description"`
	Notes       *string   `json:"notes"`
	Tags        *[]string `json:"tags"`
	Status      *Status   `json:"status"`
}

type ListTasksResponse struct {
	Tasks []*Task `json:"tasks"`
	Total int     `json:"total"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := identity.UserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		cerr.SetJSONError(ctx, cerr.NewError(cerr.InvalidArgument, "title is required", nil).AddDetailMessage("title", "must not be empty"))
		return
	}

	now := time.Now()
	t := &Task{
		UserID:      userID,
		Title:       req.Title,
		Category:    req.Category,
		Priority:    req.Priority,
		Description: req.Description,
		Notes:       req.Notes,
		Tags:        req.Tags,
		Status:      StatusTodo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, t)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := identity.UserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	limit, offset := pagination(r)
	tasks, total, err := s.repo.List(ctx, userID, limit, offset)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if tasks == nil {
		tasks = []*Task{}
	}
	cerr.SetJSONResponse(ctx, ListTasksResponse{Tasks: tasks, Total: total})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.ownedTask(r)
	if err != nil {
		cerr.SetJSONError(r.Context(), err)
		return
	}
	cerr.SetJSONResponse(r.Context(), t)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.ownedTask(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "title must not be empty", nil)
			return
		}
		t.Title = *req.Title
	}
	if req.Category != nil {
		t.Category = *req.Category
	}
	if req.Priority != nil {
		t.Priority = *req.Priority
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Notes != nil {
		t.Notes = *req.Notes
	}
	if req.Tags != nil {
		t.Tags = *req.Tags
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "unknown status", nil)
			return
		}
		t.Status = *req.Status
	}
	t.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, t); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, t)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.ownedTask(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.repo.Delete(ctx, t.ID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusNoContent, nil)
}

func (s *Server) ownedTask(r *http.Request) (*Task, error) {
	userID, err := identity.UserID(r.Context())
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return nil, cerr.NewError(cerr.InvalidArgument, "invalid task id", err)
	}
	t, err := s.repo.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		// Someone else's task is reported the same as a missing one.
		return nil, cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return t, nil
}

func pagination(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
