// Package repotest содержит общий набор проверок для всех реализаций хранилища задач.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"taskService/internal/models/task"
	"taskService/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Repository interface {
	HealthCheck(context.Context) error
	Create(context.Context, *task.Task) error
	CreateBatch(context.Context, []*task.Task) error
	List(context.Context, task.Filter) ([]*task.Task, error)
	GetByID(context.Context, string) (*task.Task, error)
	Update(context.Context, *task.Task) error
	Delete(context.Context, string) error
}

// Factory возвращает пустое хранилище для одного подтеста
type Factory func(t *testing.T) Repository

func strPtr(s string) *string { return &s }

// Now - время с точностью до миллисекунды, такое значение переживает любой backend без потерь
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func newTask(title, description *string, now time.Time) *task.Task {
	return task.New(uuid.NewString(), title, description, now)
}

func ids(tasks []*task.Task) []string {
	res := make([]string, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, t.ID)
	}
	return res
}

// AssertTaskEqual сравнивает задачи поле за полем, время - через Equal
func AssertTaskEqual(t *testing.T, expected, actual *task.Task) {
	t.Helper()
	require.NotNil(t, actual)
	assert.Equal(t, expected.ID, actual.ID)
	assert.Equal(t, expected.Title, actual.Title)
	assert.Equal(t, expected.Description, actual.Description)
	assert.True(t, expected.CreatedAt.Equal(actual.CreatedAt), "created_at: %s != %s", expected.CreatedAt, actual.CreatedAt)
	assert.True(t, expected.UpdatedAt.Equal(actual.UpdatedAt), "updated_at: %s != %s", expected.UpdatedAt, actual.UpdatedAt)
	if expected.CompletedAt == nil {
		assert.Nil(t, actual.CompletedAt)
	} else {
		require.NotNil(t, actual.CompletedAt)
		assert.True(t, expected.CompletedAt.Equal(*actual.CompletedAt), "completed_at: %s != %s", *expected.CompletedAt, *actual.CompletedAt)
	}
}

func Run(t *testing.T, factory Factory) {
	t.Run("HealthCheck", func(t *testing.T) {
		storage := factory(t)
		assert.NoError(t, storage.HealthCheck(context.Background()))
	})

	t.Run("CreateAndGet", func(t *testing.T) {
		ctx := context.Background()
		storage := factory(t)

		created := newTask(strPtr("Test Task"), strPtr("Test Description"), Now())
		require.NoError(t, storage.Create(ctx, created))

		got, err := storage.GetByID(ctx, created.ID)
		require.NoError(t, err)
		AssertTaskEqual(t, created, got)
	})

	t.Run("CreateWithNullFields", func(t *testing.T) {
		ctx := context.Background()
		storage := factory(t)

		created := newTask(nil, nil, Now())
		require.NoError(t, storage.Create(ctx, created))

		got, err := storage.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Title)
		assert.Nil(t, got.Description)
		assert.Nil(t, got.CompletedAt)
	})

	t.Run("CreateDuplicateID", func(t *testing.T) {
		ctx := context.Background()
		storage := factory(t)

		created := newTask(strPtr("a"), nil, Now())
		require.NoError(t, storage.Create(ctx, created))

		err := storage.Create(ctx, created)
		assert.True(t, errors.Is(err, repository.ErrDuplicateID), "ожидали ErrDuplicateID, получили %v", err)

		all, err := storage.List(ctx, task.Filter{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("GetByIDNotFound", func(t *testing.T) {
		storage := factory(t)
		_, err := storage.GetByID(context.Background(), uuid.NewString())
		assert.True(t, errors.Is(err, repository.ErrNotFound), "ожидали ErrNotFound, получили %v", err)
	})

	t.Run("Update", func(t *testing.T) {
		ctx := context.Background()
		storage := factory(t)

		now := Now()
		created := newTask(strPtr("title"), strPtr("description"), now)
		require.NoError(t, storage.Create(ctx, created))

		later := now.Add(time.Second)
		created.Apply(task.WithTitle(strPtr("updated")), task.WithDescription(nil), task.WithCompletedAt(later))
		require.NoError(t, storage.Update(ctx, created))

		got, err := storage.GetByID(ctx, created.ID)
		require.NoError(t, err)
		AssertTaskEqual(t, created, got)
		assert.True(t, now.Equal(got.CreatedAt))
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		storage := factory(t)
		err := storage.Update(context.Background(), newTask(strPtr("ghost"), nil, Now()))
		assert.True(t, errors.Is(err, repository.ErrNotFound), "ожидали ErrNotFound, получили %v", err)
	})

	t.Run("Delete", func(t *testing.T) {
		ctx := context.Background()
		storage := factory(t)

		keep := newTask(strPtr("keep"), nil, Now())
		drop := newTask(strPtr("drop"), nil, Now())
		require.NoError(t, storage.Create(ctx, keep))
		require.NoError(t, storage.Create(ctx, drop))

		require.NoError(t, storage.Delete(ctx, drop.ID))

		_, err := storage.GetByID(ctx, drop.ID)
		assert.True(t, errors.Is(err, repository.ErrNotFound))

		all, err := storage.List(ctx, task.Filter{})
		require.NoError(t, err)
		assert.Equal(t, []string{keep.ID}, ids(all))

		err = storage.Delete(ctx, drop.ID)
		assert.True(t, errors.Is(err, repository.ErrNotFound), "повторное удаление: %v", err)
	})

	t.Run("ListEmpty", func(t *testing.T) {
		storage := factory(t)
		all, err := storage.List(context.Background(), task.Filter{})
		require.NoError(t, err)
		assert.NotNil(t, all)
		assert.Empty(t, all)
	})

	t.Run("ListFilters", func(t *testing.T) {
		ctx := context.Background()
		storage := factory(t)
		now := Now()

		milk := newTask(strPtr("buy milk"), strPtr("from the store"), now)
		bread := newTask(strPtr("buy bread"), strPtr("bakery"), now)
		call := newTask(strPtr("call mom"), strPtr("store hours"), now)
		empty := newTask(nil, nil, now)
		percent := newTask(strPtr("100% done"), strPtr("under_score"), now)
		for _, tk := range []*task.Task{milk, bread, call, empty, percent} {
			require.NoError(t, storage.Create(ctx, tk))
		}

		tests := []struct {
			name     string
			filter   task.Filter
			expected []string
		}{
			{"no filters", task.Filter{}, []string{milk.ID, bread.ID, call.ID, empty.ID, percent.ID}},
			{"title", task.Filter{Title: "buy"}, []string{milk.ID, bread.ID}},
			{"description", task.Filter{Description: "store"}, []string{milk.ID, call.ID}},
			{"both", task.Filter{Title: "buy", Description: "store"}, []string{milk.ID}},
			{"no match", task.Filter{Title: "zzz"}, []string{}},
			{"percent is literal", task.Filter{Title: "0%"}, []string{percent.ID}},
			{"underscore is literal", task.Filter{Description: "r_s"}, []string{percent.ID}},
			{"wildcard chars do not expand", task.Filter{Title: "b_y"}, []string{}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := storage.List(ctx, tt.filter)
				require.NoError(t, err)
				// порядок не гарантирован
				assert.ElementsMatch(t, tt.expected, ids(got))
			})
		}
	})

	t.Run("ListRoundTrip", func(t *testing.T) {
		ctx := context.Background()
		storage := factory(t)

		created := newTask(strPtr("unique round trip title"), strPtr("d"), Now())
		require.NoError(t, storage.Create(ctx, created))

		got, err := storage.List(ctx, task.Filter{Title: "unique round trip title"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		AssertTaskEqual(t, created, got[0])
	})

	t.Run("CreateBatch", func(t *testing.T) {
		ctx := context.Background()
		storage := factory(t)
		now := Now()
		completed := now.Add(-time.Hour)

		batch := make([]*task.Task, 0, 25)
		for i := 0; i < 25; i++ {
			tk := newTask(strPtr(fmt.Sprintf("imported %d", i)), strPtr("from file"), now)
			if i%2 == 0 {
				tk.Apply(func(t *task.Task) { t.CompletedAt = &completed })
			}
			batch = append(batch, tk)
		}

		require.NoError(t, storage.CreateBatch(ctx, batch))

		all, err := storage.List(ctx, task.Filter{})
		require.NoError(t, err)
		require.Len(t, all, len(batch))

		byID := make(map[string]*task.Task, len(all))
		for _, tk := range all {
			byID[tk.ID] = tk
		}
		for _, expected := range batch {
			AssertTaskEqual(t, expected, byID[expected.ID])
		}
	})

	t.Run("CreateBatchEmpty", func(t *testing.T) {
		ctx := context.Background()
		storage := factory(t)

		require.NoError(t, storage.CreateBatch(ctx, nil))
		require.NoError(t, storage.CreateBatch(ctx, []*task.Task{}))

		all, err := storage.List(ctx, task.Filter{})
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("CreateBatchIsAtomic", func(t *testing.T) {
		ctx := context.Background()
		storage := factory(t)

		existing := newTask(strPtr("existing"), nil, Now())
		require.NoError(t, storage.Create(ctx, existing))

		fresh := newTask(strPtr("fresh"), nil, Now())
		err := storage.CreateBatch(ctx, []*task.Task{fresh, existing})
		assert.True(t, errors.Is(err, repository.ErrDuplicateID), "ожидали ErrDuplicateID, получили %v", err)

		_, err = storage.GetByID(ctx, fresh.ID)
		assert.True(t, errors.Is(err, repository.ErrNotFound), "частичная вставка: %v", err)

		all, err := storage.List(ctx, task.Filter{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("CreateBatchDuplicateWithinBatch", func(t *testing.T) {
		ctx := context.Background()
		storage := factory(t)

		twice := newTask(strPtr("twice"), nil, Now())
		err := storage.CreateBatch(ctx, []*task.Task{twice, twice})
		assert.True(t, errors.Is(err, repository.ErrDuplicateID), "ожидали ErrDuplicateID, получили %v", err)

		all, err := storage.List(ctx, task.Filter{})
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("ConcurrentCreate", func(t *testing.T) {
		ctx := context.Background()
		storage := factory(t)

		const workers = 10
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- storage.Create(ctx, newTask(strPtr(fmt.Sprintf("concurrent %d", i)), nil, Now()))
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		all, err := storage.List(ctx, task.Filter{Title: "concurrent"})
		require.NoError(t, err)
		assert.Len(t, all, workers)
	})
}
