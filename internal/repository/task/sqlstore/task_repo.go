package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"taskService/internal/logger"
	"taskService/internal/models/task"
	repo "taskService/internal/repository"
	"time"

	"go.uber.org/zap"
)

const (
	slowQuery = 100 * time.Millisecond

	columns = `id, title, description, completed_at, created_at, updated_at`

	likeEscape = '!'
)

// Storage - хранилище задач поверх database/sql (sqlite, mysql)
type Storage struct {
	db      *sql.DB
	dialect Dialect
}

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
}

func Open(ctx context.Context, dialect Dialect, dsn string, opts Options) (*Storage, error) {
	prepared, err := dialect.PrepareDSN(dsn)
	if err != nil {
		logger.Error("Repository: Неверная строка подключения", err, zap.String("dialect", dialect.Name))
		return nil, err
	}

	db, err := sql.Open(dialect.DriverName, prepared)
	if err != nil {
		logger.Error("Repository: Ошибка открытия базы", err, zap.String("dialect", dialect.Name))
		return nil, fmt.Errorf("открытие %s: %w", dialect.Name, err)
	}

	maxOpen := opts.MaxOpenConns
	if dialect.MaxOpenConns > 0 {
		maxOpen = dialect.MaxOpenConns
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	maxIdle := opts.MaxIdleConns
	if maxOpen > 0 && (maxIdle <= 0 || maxIdle > maxOpen) {
		maxIdle = maxOpen
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	// соединение с :memory: нельзя закрывать по таймауту - вместе с ним пропадут данные
	if opts.ConnMaxIdleTime > 0 && dialect.MaxOpenConns != 1 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		logger.Error("Repository: Неудачная проверка ping", err, zap.String("dialect", dialect.Name))
		return nil, fmt.Errorf("проверка соединения ping: %w", err)
	}

	s := &Storage{db: db, dialect: dialect}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("Repository: Успешное подключение", zap.String("dialect", dialect.Name))
	return s, nil
}

func (s *Storage) initSchema(ctx context.Context) error {
	for _, q := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			logger.Error("Repository: Не удалось создать схему", err, zap.String("dialect", s.dialect.Name))
			return fmt.Errorf("создание схемы: %w", err)
		}
	}
	return nil
}

func (s *Storage) DB() *sql.DB {
	return s.db
}

func (s *Storage) Close() error {
	logger.Info("Repository: Закрытие соединений", zap.String("dialect", s.dialect.Name))
	return s.db.Close()
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	return nil
}

func (s *Storage) observe(operation string, start time.Time) {
	if elapsed := time.Since(start); elapsed > slowQuery {
		logger.Warn("Repository: Медленный запрос",
			zap.String("dialect", s.dialect.Name),
			zap.String("operation", operation),
			zap.Duration("ms", elapsed))
	}
}

func (s *Storage) Create(ctx context.Context, taskToCreate *task.Task) error {
	start := time.Now()
	defer s.observe("create", start)

	query := `INSERT INTO tasks (` + columns + `) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query, rowArgs(taskToCreate)...)
	if err != nil {
		logger.Error("Repository: Не удалось добавить задачу", err, zap.String("task_id", taskToCreate.ID))
		return fmt.Errorf("добавление задачи: %w", s.insertError(err))
	}
	return nil
}

// CreateBatch вставляет все задачи в одной транзакции: либо все, либо ни одной
func (s *Storage) CreateBatch(ctx context.Context, tasks []*task.Task) (err error) {
	if len(tasks) == 0 {
		return nil
	}

	start := time.Now()
	defer s.observe("create_batch", start)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("Repository: Не удалось начать транзакцию", err)
		return fmt.Errorf("начало транзакции: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	batchRows := s.dialect.BatchRows
	if batchRows <= 0 {
		batchRows = len(tasks)
	}

	for from := 0; from < len(tasks); from += batchRows {
		to := min(from+batchRows, len(tasks))
		chunk := tasks[from:to]

		query, args := batchInsert(chunk)
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			logger.Error("Repository: Не удалось выполнить массовую вставку", err, zap.Int("rows", len(chunk)))
			return fmt.Errorf("массовая вставка: %w", s.insertError(err))
		}
	}

	if err = tx.Commit(); err != nil {
		logger.Error("Repository: Не удалось зафиксировать транзакцию", err)
		return fmt.Errorf("фиксация транзакции: %w", err)
	}

	logger.Info("Repository: Массовая вставка завершена", zap.Int("rows", len(tasks)))
	return nil
}

func (s *Storage) insertError(err error) error {
	if s.dialect.IsDuplicate != nil && s.dialect.IsDuplicate(err) {
		return fmt.Errorf("%w: %w", repo.ErrDuplicateID, err)
	}
	return err
}

func batchInsert(tasks []*task.Task) (string, []any) {
	var b strings.Builder
	b.WriteString(`INSERT INTO tasks (` + columns + `) VALUES `)

	args := make([]any, 0, len(tasks)*6)
	for i, t := range tasks {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?)")
		args = append(args, rowArgs(t)...)
	}
	return b.String(), args
}

func rowArgs(t *task.Task) []any {
	return []any{t.ID, t.Title, t.Description, t.CompletedAt, t.CreatedAt, t.UpdatedAt}
}

func (s *Storage) GetByID(ctx context.Context, id string) (*task.Task, error) {
	start := time.Now()
	defer s.observe("get_by_id", start)

	query := `SELECT ` + columns + ` FROM tasks WHERE id = ?`

	t, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить задачу", err, zap.String("task_id", id))
		return nil, fmt.Errorf("получение задачи: %w", err)
	}
	return t, nil
}

func (s *Storage) Update(ctx context.Context, taskToUpdate *task.Task) error {
	start := time.Now()
	defer s.observe("update", start)

	query := `UPDATE tasks
			SET title = ?,
				description = ?,
				completed_at = ?,
				updated_at = ?
			WHERE id = ?`

	res, err := s.db.ExecContext(ctx, query,
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

	return affectedOne(res, "обновление задачи")
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	start := time.Now()
	defer s.observe("delete", start)

	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		logger.Error("Repository: Не удалось удалить задачу", err, zap.String("task_id", id))
		return fmt.Errorf("удаление задачи: %w", err)
	}

	return affectedOne(res, "удаление задачи")
}

func affectedOne(res sql.Result, operation string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// List без ORDER BY: порядок определяет движок
func (s *Storage) List(ctx context.Context, filter task.Filter) ([]*task.Task, error) {
	start := time.Now()
	defer s.observe("list", start)

	query := `SELECT ` + columns + ` FROM tasks`
	var (
		conditions []string
		args       []any
	)
	if filter.Title != "" {
		conditions = append(conditions, `title LIKE ? ESCAPE '!'`)
		args = append(args, likePattern(filter.Title))
	}
	if filter.Description != "" {
		conditions = append(conditions, `description LIKE ? ESCAPE '!'`)
		args = append(args, likePattern(filter.Description))
	}
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, ` AND `)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.Error("Repository: Не удалось получить задачи", err)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*task.Task, error) {
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

// likePattern экранирует %, _ и сам escape-символ, чтобы фильтр искал подстроку буквально
func likePattern(value string) string {
	var b strings.Builder
	b.Grow(len(value) + 2)
	b.WriteByte('%')
	for _, r := range value {
		if r == '%' || r == '_' || r == likeEscape {
			b.WriteRune(likeEscape)
		}
		b.WriteRune(r)
	}
	b.WriteByte('%')
	return b.String()
}
