package inmemory

import (
	"context"
	"sync"
	"taskService/internal/logger"
	"taskService/internal/models/task"
	repo "taskService/internal/repository"
)

// TaskStorage хранит задачи в памяти процесса, порядок выдачи - порядок вставки
type TaskStorage struct {
	storage map[string]*task.Task
	mtx     *sync.RWMutex
	ids     []string
}

func NewTaskStorage() *TaskStorage {
	return &TaskStorage{
		storage: make(map[string]*task.Task),
		mtx:     &sync.RWMutex{},
		ids:     []string{},
	}
}

func (s *TaskStorage) HealthCheck(ctx context.Context) error {
	logger.Info("Repository: Соединение стабильно")
	return nil
}

func (s *TaskStorage) Close() error {
	return nil
}

func (s *TaskStorage) Create(ctx context.Context, taskToCreate *task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, exists := s.storage[taskToCreate.ID]; exists {
		return repo.ErrDuplicateID
	}
	s.insert(taskToCreate)
	return nil
}

func (s *TaskStorage) CreateBatch(ctx context.Context, tasks []*task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	// сначала проверяем все id, чтобы не оставить половину пачки
	seen := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		if _, exists := s.storage[t.ID]; exists {
			return repo.ErrDuplicateID
		}
		if _, dup := seen[t.ID]; dup {
			return repo.ErrDuplicateID
		}
		seen[t.ID] = struct{}{}
	}

	for _, t := range tasks {
		s.insert(t)
	}
	return nil
}

func (s *TaskStorage) insert(t *task.Task) {
	s.ids = append(s.ids, t.ID)
	s.storage[t.ID] = t.Clone()
}

func (s *TaskStorage) Update(ctx context.Context, taskToUpdate *task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.storage[taskToUpdate.ID]; !ok {
		return repo.ErrNotFound
	}
	s.storage[taskToUpdate.ID] = taskToUpdate.Clone()

	return nil
}

func (s *TaskStorage) GetByID(ctx context.Context, id string) (*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	taskToGet, ok := s.storage[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return taskToGet.Clone(), nil
}

func (s *TaskStorage) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.storage[id]; !ok {
		return repo.ErrNotFound
	}

	delete(s.storage, id)
	for ind, val := range s.ids {
		if val == id {
			s.ids = append(s.ids[:ind], s.ids[ind+1:]...)
			break
		}
	}
	return nil
}

func (s *TaskStorage) List(ctx context.Context, filter task.Filter) ([]*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	res := []*task.Task{}
	for _, id := range s.ids {
		t := s.storage[id]
		if !filter.Matches(t) {
			continue
		}
		res = append(res, t.Clone())
	}

	return res, nil
}
