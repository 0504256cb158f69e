package task

import (
	"strings"
	"time"
)

type Task struct {
	ID          string     `json:"id" db:"id"`
	Title       *string    `json:"title" db:"title"`
	Description *string    `json:"description" db:"description"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// New собирает новую задачу: created_at и updated_at совпадают, completed_at пустой
func New(id string, title, description *string, now time.Time) *Task {
	return &Task{
		ID:          id,
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (t *Task) IsCompleted() bool {
	return t.CompletedAt != nil
}

// Clone нужен хранилищам, которые держат задачи в памяти
func (t *Task) Clone() *Task {
	c := *t
	if t.Title != nil {
		title := *t.Title
		c.Title = &title
	}
	if t.Description != nil {
		description := *t.Description
		c.Description = &description
	}
	if t.CompletedAt != nil {
		completedAt := *t.CompletedAt
		c.CompletedAt = &completedAt
	}
	return &c
}

// Filter - поиск по подстроке, пустое значение означает отсутствие фильтра
type Filter struct {
	Title       string
	Description string
}

func (f Filter) IsEmpty() bool {
	return f.Title == "" && f.Description == ""
}

func (f Filter) Matches(t *Task) bool {
	if f.Title != "" && (t.Title == nil || !strings.Contains(*t.Title, f.Title)) {
		return false
	}
	if f.Description != "" && (t.Description == nil || !strings.Contains(*t.Description, f.Description)) {
		return false
	}
	return true
}

// ImportRow - одна запись из внешнего источника для массового импорта
type ImportRow struct {
	Title       *string
	Description *string
	CompletedAt *time.Time
}

func FromImportRow(id string, row ImportRow, now time.Time) *Task {
	t := New(id, row.Title, row.Description, now)
	t.CompletedAt = row.CompletedAt
	return t
}

// UTC приводит все отметки времени к UTC, драйверы возвращают время в разных зонах
func (t *Task) UTC() *Task {
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	if t.CompletedAt != nil {
		completedAt := t.CompletedAt.UTC()
		t.CompletedAt = &completedAt
	}
	return t
}
