package dto

import (
	"taskService/internal/models/task"
	"time"
)

// CreateTaskRequest: оба поля необязательны, отсутствующее поле сохраняется как null
type CreateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// UpdateTaskRequest различает отсутствующее поле и явный null
type UpdateTaskRequest = task.Patch

type TaskResponse struct {
	ID          string     `json:"id"`
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type ImportResponse struct {
	Message  string `json:"message"`
	Imported int    `json:"imported"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func FromTask(t *task.Task) TaskResponse {
	resp := TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
	}
	if t.CompletedAt != nil {
		completedAt := t.CompletedAt.UTC()
		resp.CompletedAt = &completedAt
	}
	return resp
}

// FromTaskList никогда не возвращает nil, пустой список кодируется как []
func FromTaskList(tasks []*task.Task) []TaskResponse {
	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = FromTask(t)
	}
	return result
}
