package service

import (
	"context"
	"errors"
	"fmt"
	"taskService/internal/importer"
	"taskService/internal/logger"
	"taskService/internal/models/task"
	rep "taskService/internal/repository"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// здесь происходит проверка ошибок бизнес-логики.
// now приходит из handlers: одно значение на весь запрос

const resourceTask = "Task"

const MessageUpdateRequiresField = "Title or description is required for update"

type TaskService struct {
	repo   TaskRepository
	source importer.Source
	newID  func() string
}

type Option func(*TaskService)

// WithIDGenerator подменяет генератор идентификаторов (uuid v4 по умолчанию)
func WithIDGenerator(gen func() string) Option {
	return func(s *TaskService) {
		if gen != nil {
			s.newID = gen
		}
	}
}

func NewTaskService(repo TaskRepository, source importer.Source, opts ...Option) *TaskService {
	s := &TaskService{
		repo:   repo,
		source: source,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TaskService) HealthCheck(ctx context.Context) error {
	if err := s.repo.HealthCheck(ctx); err != nil {
		return fmt.Errorf("проверка здоровья сервиса: %w", err)
	}
	return nil
}

func (s *TaskService) CreateTask(ctx context.Context, now time.Time, title, description *string) (*task.Task, error) {
	newTask := task.New(s.newID(), title, description, now)

	if err := s.repo.Create(ctx, newTask); err != nil {
		return nil, NewPersistenceError("create task", err)
	}

	logger.Info("Service: Задача создана", zap.String("task_id", newTask.ID))
	return newTask, nil
}

func (s *TaskService) ListTasks(ctx context.Context, filter task.Filter) ([]*task.Task, error) {
	tasks, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, NewPersistenceError("fetch tasks", err)
	}
	return tasks, nil
}

func (s *TaskService) GetTaskByID(ctx context.Context, id string) (*task.Task, error) {
	return s.lookup(ctx, id, "fetch task")
}

func (s *TaskService) UpdateTask(ctx context.Context, now time.Time, id string, patch task.Patch) (*task.Task, error) {
	if patch.IsEmpty() {
		return nil, NewValidationError("title", MessageUpdateRequiresField)
	}

	taskToUpdate, err := s.lookup(ctx, id, "fetch task")
	if err != nil {
		return nil, err
	}

	taskToUpdate.Apply(patch.Options()...)
	taskToUpdate.Apply(task.WithUpdatedAt(now))

	if err := s.repo.Update(ctx, taskToUpdate); err != nil {
		return nil, s.mutationError(err, id, "update task")
	}

	return taskToUpdate, nil
}

func (s *TaskService) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.lookup(ctx, id, "fetch task"); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return s.mutationError(err, id, "delete task")
	}

	logger.Info("Service: Задача удалена", zap.String("task_id", id))
	return nil
}

// CompleteTask всегда сдвигает completed_at, даже если задача уже завершена
func (s *TaskService) CompleteTask(ctx context.Context, now time.Time, id string) (*task.Task, error) {
	taskToComplete, err := s.lookup(ctx, id, "fetch task")
	if err != nil {
		return nil, err
	}

	if taskToComplete.IsCompleted() {
		logger.Info("Service: Повторное завершение задачи",
			zap.String("task_id", id),
			zap.Time("previous_completed_at", *taskToComplete.CompletedAt))
	}

	taskToComplete.Apply(task.WithCompletedAt(now))

	if err := s.repo.Update(ctx, taskToComplete); err != nil {
		return nil, s.mutationError(err, id, "complete task")
	}

	return taskToComplete, nil
}

// ImportTasks читает все строки источника и вставляет их одной операцией.
// Все задачи получают один и тот же created_at = updated_at = now.
func (s *TaskService) ImportTasks(ctx context.Context, now time.Time) (int, error) {
	if s.source == nil {
		return 0, NewSourceReadError(errors.New("источник импорта не настроен"))
	}

	rows, err := s.source.Rows(ctx)
	if err != nil {
		logger.Warn("Service: Не удалось прочитать источник импорта", zap.Error(err))
		return 0, NewSourceReadError(err)
	}

	tasks := make([]*task.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, task.FromImportRow(s.newID(), row, now))
	}

	if err := s.repo.CreateBatch(ctx, tasks); err != nil {
		return 0, NewPersistenceError("import tasks", err)
	}

	logger.Info("Service: Импорт завершён", zap.Int("imported", len(tasks)))
	return len(tasks), nil
}

func (s *TaskService) lookup(ctx context.Context, id string, operation string) (*task.Task, error) {
	found, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			logger.Info("Service: Задача не найдена", zap.String("target_id", id))
			return nil, NewNotFound(resourceTask, id)
		}
		return nil, NewPersistenceError(operation, err)
	}
	return found, nil
}

// задача могла исчезнуть между чтением и записью
func (s *TaskService) mutationError(err error, id string, operation string) error {
	if errors.Is(err, rep.ErrNotFound) {
		return NewNotFound(resourceTask, id)
	}
	return NewPersistenceError(operation, err)
}
