// Package importer читает внешние записи задач для массового импорта.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taskService/internal/models/task"

	"gopkg.in/yaml.v3"
)

// ErrSource оборачивает любые ошибки чтения источника
var ErrSource = errors.New("ошибка чтения источника")

type Source interface {
	Rows(ctx context.Context) ([]task.ImportRow, error)
}

// timeLayouts - допустимые форматы completed_at
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.DateOnly,
}

func parseTime(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			utc := t.UTC()
			return &utc, nil
		}
	}
	return nil, fmt.Errorf("неизвестный формат времени %q", value)
}

func sourceError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSource, fmt.Sprintf(format, args...))
}

// FileSource читает файл при каждом вызове Rows, формат выбирается по расширению
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Path() string {
	return s.path
}

func (s *FileSource) Rows(ctx context.Context) ([]task.ImportRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(s.path)
	if err != nil {
		return nil, sourceError("открытие %s: %v", s.path, err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".yml", ".yaml":
		return ReadYAML(file)
	default:
		return ReadCSV(file)
	}
}

// ReadCSV ожидает строку заголовков с колонками title, description и необязательной completed_at.
// Порядок колонок любой, лишние колонки игнорируются.
func ReadCSV(r io.Reader) ([]task.ImportRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []task.ImportRow{}, nil
	}
	if err != nil {
		return nil, sourceError("чтение заголовка: %v", err)
	}

	index := map[string]int{}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		index[name] = i
	}
	if _, ok := index["title"]; !ok {
		return nil, sourceError("в заголовке нет колонки title")
	}

	field := func(record []string, name string) (string, bool) {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return "", false
		}
		return record[i], true
	}

	rows := []task.ImportRow{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, sourceError("строка %d: %v", line, err)
		}

		var row task.ImportRow
		if title, ok := field(record, "title"); ok {
			row.Title = &title
		}
		if description, ok := field(record, "description"); ok {
			row.Description = &description
		}
		if completedAt, ok := field(record, "completed_at"); ok {
			row.CompletedAt, err = parseTime(completedAt)
			if err != nil {
				return nil, sourceError("строка %d: %v", line, err)
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

type yamlRow struct {
	Title       *string `yaml:"title"`
	Description *string `yaml:"description"`
	CompletedAt string  `yaml:"completed_at"`
}

// ReadYAML читает список записей вида {title, description, completed_at}
func ReadYAML(r io.Reader) ([]task.ImportRow, error) {
	var records []yamlRow
	if err := yaml.NewDecoder(r).Decode(&records); err != nil {
		if errors.Is(err, io.EOF) {
			return []task.ImportRow{}, nil
		}
		return nil, sourceError("разбор yaml: %v", err)
	}

	rows := make([]task.ImportRow, 0, len(records))
	for i, record := range records {
		completedAt, err := parseTime(record.CompletedAt)
		if err != nil {
			return nil, sourceError("запись %d: %v", i+1, err)
		}
		rows = append(rows, task.ImportRow{
			Title:       record.Title,
			Description: record.Description,
			CompletedAt: completedAt,
		})
	}
	return rows, nil
}

// StaticSource отдаёт заранее подготовленные строки
type StaticSource []task.ImportRow

func (s StaticSource) Rows(ctx context.Context) ([]task.ImportRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := make([]task.ImportRow, len(s))
	copy(rows, s)
	return rows, nil
}
