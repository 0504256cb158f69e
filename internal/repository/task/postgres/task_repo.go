package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"taskService/internal/logger"
	"taskService/internal/models/task"
	repo "taskService/internal/repository"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

var columns = []string{"id", "title", "description", "completed_at", "created_at", "updated_at"}

const selectColumns = `id, title, description, completed_at, created_at, updated_at`

type Storage struct {
	pool *pgxpool.Pool
}

type Options struct {
	MaxConns    int32
	MinConns    int32
	IdleTimeout time.Duration
}

func New(ctx context.Context, connString string, opts Options) (*Storage, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		logger.Error("Repository: Ошибка загрузки конфига", err)
		return nil, fmt.Errorf("загрузка конфига: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnIdleTime = time.Minute * 5
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 && opts.MinConns <= config.MaxConns {
		config.MinConns = opts.MinConns
	}
	if opts.IdleTimeout > 0 {
		config.MaxConnIdleTime = opts.IdleTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		logger.Error("Repository: Ошибка создания пула", err)
		return nil, fmt.Errorf("создание пула: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		logger.Error("Repository: Неудачная проверка ping", err)
		return nil, fmt.Errorf("проверка соединения ping: %w", err)
	}

	s := &Storage{pool: pool}
	if err := s.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("Repository: Успешное создание подключения к PostgreSQL")
	return s, nil
}

// InitSchema создаёт таблицу, если её ещё нет. Миграций нет - схема одна.
func (s *Storage) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		logger.Error("Repository: Не удалось создать схему", err)
		return fmt.Errorf("создание схемы: %w", err)
	}
	return nil
}

func (s *Storage) Close() error {
	s.pool.Close()
	logger.Info("Repository: Закрытие всех соединений PostgreSQL")
	return nil
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	err := s.pool.Ping(ctx)
	if err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	return nil
}

func observe(operation string, start time.Time) {
	if elapsed := time.Since(start); elapsed > time.Millisecond*100 {
		logger.Warn("Repository: Медленная операция",
			zap.String("operation", operation),
			zap.Duration("ms", elapsed))
	}
}

func (s *Storage) Create(ctx context.Context, taskToCreate *task.Task) error {
	start := time.Now()
	defer observe("create", start)

	query := `INSERT INTO tasks
				(id, title, description, completed_at, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		taskToCreate.ID,
		taskToCreate.Title,
		taskToCreate.Description,
		taskToCreate.CompletedAt,
		taskToCreate.CreatedAt,
		taskToCreate.UpdatedAt,
	)
	if err != nil {
		logger.Error("Repository: Не удалось добавить задачу", err,
			zap.String("task_id", taskToCreate.ID),
			zap.String("pg_code", pgCode(err)))
		return fmt.Errorf("добавление задачи: %w", insertError(err))
	}
	return nil
}

// CreateBatch - одна команда COPY, поэтому вставка атомарна
func (s *Storage) CreateBatch(ctx context.Context, tasks []*task.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	start := time.Now()
	defer observe("create_batch", start)

	copied, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"tasks"},
		columns,
		pgx.CopyFromSlice(len(tasks), func(i int) ([]any, error) {
			t := tasks[i]
			return []any{t.ID, t.Title, t.Description, t.CompletedAt, t.CreatedAt, t.UpdatedAt}, nil
		}),
	)
	if err != nil {
		logger.Error("Repository: Не удалось выполнить массовую вставку", err,
			zap.Int("rows", len(tasks)),
			zap.String("pg_code", pgCode(err)))
		return fmt.Errorf("массовая вставка: %w", insertError(err))
	}

	logger.Info("Repository: Массовая вставка завершена", zap.Int64("rows", copied))
	return nil
}

func (s *Storage) Update(ctx context.Context, taskToUpdate *task.Task) error {
	start := time.Now()
	defer observe("update", start)

	query := `UPDATE tasks
			SET title = $1,
				description = $2,
				completed_at = $3,
				updated_at = $4
			WHERE id = $5`

	tag, err := s.pool.Exec(ctx, query,
		taskToUpdate.Title,
		taskToUpdate.Description,
		taskToUpdate.CompletedAt,
		taskToUpdate.UpdatedAt,
		taskToUpdate.ID,
	)
	if err != nil {
		logger.Error("Repository: Не удалось обновить задачу", err, zap.String("task_id", taskToUpdate.ID))
		return fmt.Errorf("обновление задачи: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	start := time.Now()
	defer observe("delete", start)

	query := `DELETE FROM tasks
				WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		logger.Error("Repository: Полное удаление задачи", err, zap.String("task_id", id))
		return fmt.Errorf("удаление задачи: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Storage) GetByID(ctx context.Context, id string) (*task.Task, error) {
	start := time.Now()
	defer observe("get_by_id", start)

	query := `SELECT ` + selectColumns + `
				FROM tasks
				WHERE id = $1`

	t, err := scanTask(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить задачу", err, zap.String("task_id", id))
		return nil, fmt.Errorf("получение задачи: %w", err)
	}

	return t, nil
}

// List возвращает задачи в порядке, который выдаёт PostgreSQL (без ORDER BY)
func (s *Storage) List(ctx context.Context, filter task.Filter) ([]*task.Task, error) {
	start := time.Now()
	defer observe("list", start)

	query := `SELECT ` + selectColumns + ` FROM tasks`
	var (
		conditions []string
		args       []any
	)
	if filter.Title != "" {
		args = append(args, likePattern(filter.Title))
		conditions = append(conditions, fmt.Sprintf(`title LIKE $%d ESCAPE '!'`, len(args)))
	}
	if filter.Description != "" {
		args = append(args, likePattern(filter.Description))
		conditions = append(conditions, fmt.Sprintf(`description LIKE $%d ESCAPE '!'`, len(args)))
	}
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, ` AND `)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		logger.Error("Repository: Не удалось получить задачи", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение задач: %w", err)
	}
	defer rows.Close()

	tasks := []*task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			logger.Error("Repository: Ошибка сканирования задачи", err)
			return nil, fmt.Errorf("сканирование задачи: %w", err)
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		logger.Error("Repository: Ошибка итерации по строкам", err)
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}

	return tasks, nil
}

func scanTask(row pgx.Row) (*task.Task, error) {
	t := &task.Task{}
	err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&t.CompletedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t.UTC(), nil
}

func likePattern(value string) string {
	replacer := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + replacer.Replace(value) + "%"
}

const uniqueViolation = "23505"

// insertError помечает нарушение первичного ключа как repo.ErrDuplicateID
func insertError(err error) error {
	if pgCode(err) == uniqueViolation {
		return fmt.Errorf("%w: %w", repo.ErrDuplicateID, err)
	}
	return err
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
