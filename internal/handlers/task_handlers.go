package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"taskService/internal/handlers/dto"
	"taskService/internal/logger"
	"taskService/internal/models/task"
	"taskService/internal/service"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const serviceName = "task-service"

// Clock возвращает момент начала запроса
type Clock func() time.Time

// DefaultClock: UTC с точностью до миллисекунд, так время одинаково
// переживает запись в любое из хранилищ
func DefaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

type TaskHandler struct {
	TaskService Service
	now         Clock
}

type HandlerOption func(*TaskHandler)

func WithClock(clock Clock) HandlerOption {
	return func(h *TaskHandler) {
		if clock != nil {
			h.now = clock
		}
	}
}

func NewTaskHandler(taskService Service, opts ...HandlerOption) *TaskHandler {
	h := &TaskHandler{
		TaskService: taskService,
		now:         DefaultClock,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (s *TaskHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP: Health check")

	if err := s.TaskService.HealthCheck(r.Context()); err != nil {
		logger.Error("HTTP: Хранилище недоступно", err)
		responseWithBody(w, http.StatusServiceUnavailable, dto.HealthResponse{
			Status:  "unavailable",
			Service: serviceName,
			Error:   "storage unavailable",
			Code:    CodeUnavailable,
		})
		return
	}

	responseWithBody(w, http.StatusOK, dto.HealthResponse{
		Status:  "ok",
		Service: serviceName,
	})
}

func (s *TaskHandler) PostTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	now := s.now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	var request dto.CreateTaskRequest
	if !s.decodeJSON(w, r, &request) {
		return
	}

	logger.Info("HTTP: Вызов сервиса создания задачи")
	created, err := s.TaskService.CreateTask(r.Context(), now, request.Title, request.Description)
	if err != nil {
		handleServiceError(w, r, err, "create_task")
		return
	}

	logger.Info("HTTP_OUT: Задача создана",
		zap.String("task_id", created.ID),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusCreated))

	responseWithBody(w, http.StatusCreated, dto.FromTask(created))
}

func (s *TaskHandler) GetTasks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	query := r.URL.Query()
	filter := task.Filter{
		Title:       query.Get("title"),
		Description: query.Get("description"),
	}

	logger.Info("HTTP: Вызов сервиса для получения задач",
		zap.Bool("filtered", !filter.IsEmpty()))

	tasks, err := s.TaskService.ListTasks(r.Context(), filter)
	if err != nil {
		handleServiceError(w, r, err, "list_tasks")
		return
	}

	logger.Info("HTTP_OUT: Задачи получены",
		zap.Int("count", len(tasks)),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithBody(w, http.StatusOK, dto.FromTaskList(tasks))
}

func (s *TaskHandler) GetTaskByID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id := chi.URLParam(r, "id")

	found, err := s.TaskService.GetTaskByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err, "get_task")
		return
	}

	logger.Info("HTTP_OUT: Задача получена",
		zap.String("task_id", found.ID),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithBody(w, http.StatusOK, dto.FromTask(found))
}

func (s *TaskHandler) UpdateTaskByID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	now := s.now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id := chi.URLParam(r, "id")

	var request dto.UpdateTaskRequest
	if !s.decodeJSON(w, r, &request) {
		return
	}

	logger.Info("HTTP: запрос к сервису обновления данных", zap.String("task_id", id))

	updated, err := s.TaskService.UpdateTask(r.Context(), now, id, request)
	if err != nil {
		handleServiceError(w, r, err, "update_task")
		return
	}

	logger.Info("HTTP_OUT: Задача обновлена",
		zap.String("task_id", id),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithBody(w, http.StatusOK, dto.FromTask(updated))
}

func (s *TaskHandler) DeleteTaskByID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id := chi.URLParam(r, "id")

	logger.Info("HTTP: Обращение к сервису для удаления задачи", zap.String("task_id", id))

	if err := s.TaskService.DeleteTask(r.Context(), id); err != nil {
		handleServiceError(w, r, err, "delete_task")
		return
	}

	logger.Info("HTTP_OUT: Задача удалена",
		zap.String("task_id", id),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusNoContent))

	responseNoContent(w)
}

func (s *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	now := s.now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id := chi.URLParam(r, "id")

	completed, err := s.TaskService.CompleteTask(r.Context(), now, id)
	if err != nil {
		handleServiceError(w, r, err, "complete_task")
		return
	}

	logger.Info("HTTP_OUT: Задача завершена",
		zap.String("task_id", id),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithBody(w, http.StatusOK, dto.FromTask(completed))
}

func (s *TaskHandler) ImportTasks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	now := s.now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	imported, err := s.TaskService.ImportTasks(r.Context(), now)
	if err != nil {
		handleServiceError(w, r, err, "import_tasks")
		return
	}

	logger.Info("HTTP_OUT: Импорт выполнен",
		zap.Int("imported", imported),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusCreated))

	responseWithBody(w, http.StatusCreated, dto.ImportResponse{
		Message:  "Tasks imported successfully",
		Imported: imported,
	})
}

// decodeJSON пишет ответ об ошибке сам и возвращает false, если тело не подошло.
// Пустое тело читается как пустой объект.
func (s *TaskHandler) decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	if !checkContentType(r, contentTypeJSON) {
		logger.Warn("HTTP: Неверный тип контента",
			zap.String("expected", contentTypeJSON),
			zap.String("received", r.Header.Get("Content-Type")),
			zap.String("client_ip", r.RemoteAddr))

		responseWithError(w, http.StatusUnsupportedMediaType, CodeUnsupportedMediaType,
			"Content-Type must be application/json")
		return false
	}

	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("HTTP: ошибка чтения JSON",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))

		responseWithError(w, http.StatusBadRequest, service.CodeValidation, "Invalid JSON body")
		return false
	}
	return true
}
