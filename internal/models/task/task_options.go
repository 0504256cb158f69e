package task

import (
	"time"
)

type TaskOption func(*Task)

func WithTitle(title *string) TaskOption {
	return func(task *Task) {
		task.Title = title
	}
}

func WithDescription(description *string) TaskOption {
	return func(task *Task) {
		task.Description = description
	}
}

func WithUpdatedAt(updatedAt time.Time) TaskOption {
	if updatedAt.IsZero() {
		return nil
	}
	return func(task *Task) {
		task.UpdatedAt = updatedAt
	}
}

// WithCompletedAt проставляет completed_at и updated_at одним значением
func WithCompletedAt(completedAt time.Time) TaskOption {
	if completedAt.IsZero() {
		return nil
	}
	return func(task *Task) {
		at := completedAt
		task.CompletedAt = &at
		task.UpdatedAt = completedAt
	}
}

func (t *Task) Apply(options ...TaskOption) {
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(t)
	}
}
