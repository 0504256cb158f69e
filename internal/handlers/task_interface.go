package handlers

import (
	"context"
	"taskService/internal/models/task"
	"time"
)

// Service - то, что handlers ждут от бизнес-слоя
type Service interface {
	HealthCheck(ctx context.Context) error
	CreateTask(ctx context.Context, now time.Time, title, description *string) (*task.Task, error)
	ListTasks(ctx context.Context, filter task.Filter) ([]*task.Task, error)
	GetTaskByID(ctx context.Context, id string) (*task.Task, error)
	UpdateTask(ctx context.Context, now time.Time, id string, patch task.Patch) (*task.Task, error)
	DeleteTask(ctx context.Context, id string) error
	CompleteTask(ctx context.Context, now time.Time, id string) (*task.Task, error)
	ImportTasks(ctx context.Context, now time.Time) (int, error)
}
