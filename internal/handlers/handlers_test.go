package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"taskService/internal/handlers"
	"taskService/internal/handlers/dto"
	"taskService/internal/models/task"
	"taskService/internal/service"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTaskService - мок сервиса
type MockTaskService struct {
	mock.Mock
}

func (m *MockTaskService) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTaskService) CreateTask(ctx context.Context, now time.Time, title, description *string) (*task.Task, error) {
	args := m.Called(ctx, now, title, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockTaskService) ListTasks(ctx context.Context, filter task.Filter) ([]*task.Task, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*task.Task), args.Error(1)
}

func (m *MockTaskService) GetTaskByID(ctx context.Context, id string) (*task.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockTaskService) UpdateTask(ctx context.Context, now time.Time, id string, patch task.Patch) (*task.Task, error) {
	args := m.Called(ctx, now, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockTaskService) DeleteTask(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTaskService) CompleteTask(ctx context.Context, now time.Time, id string) (*task.Task, error) {
	args := m.Called(ctx, now, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockTaskService) ImportTasks(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

var _ handlers.Service = (*MockTaskService)(nil)

var fixedNow = time.Date(2024, 3, 1, 12, 30, 0, 123_000_000, time.UTC)

func strPtr(s string) *string { return &s }

func newRouter(svc handlers.Service) http.Handler {
	h := handlers.NewTaskHandler(svc, handlers.WithClock(func() time.Time { return fixedNow }))
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path, body, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Contains(t, body, "error")
	return body
}

func sampleTask(id string) *task.Task {
	return task.New(id, strPtr("Test Task"), strPtr("Test Description"), fixedNow)
}

// TestTaskHandler_HealthCheck тестирует HealthCheck
func TestTaskHandler_HealthCheck(t *testing.T) {
	tests := []struct {
		name           string
		setupMock      func(*MockTaskService)
		expectedStatus int
		expectedState  string
		expectedCode   string
	}{
		{
			name: "success - healthy",
			setupMock: func(m *MockTaskService) {
				m.On("HealthCheck", mock.Anything).Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedState:  "ok",
		},
		{
			name: "error - unhealthy",
			setupMock: func(m *MockTaskService) {
				m.On("HealthCheck", mock.Anything).Return(errors.New("service unavailable"))
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedState:  "unavailable",
			expectedCode:   handlers.CodeUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockTaskService)
			tt.setupMock(mockService)

			w := doRequest(t, newRouter(mockService), http.MethodGet, "/health", "", "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			var response dto.HealthResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, "task-service", response.Service)
			assert.Equal(t, tt.expectedState, response.Status)
			assert.Equal(t, tt.expectedCode, response.Code)
			assert.NotContains(t, response.Error, "service unavailable")

			mockService.AssertExpectations(t)
		})
	}
}

// TestTaskHandler_PostTask тестирует создание задачи
func TestTaskHandler_PostTask(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    string
		contentType    string
		setupMock      func(*MockTaskService)
		expectedStatus int
	}{
		{
			name:        "success - create task",
			requestBody: `{"title": "Test Task", "description": "Test Description"}`,
			contentType: "application/json",
			setupMock: func(m *MockTaskService) {
				m.On("CreateTask", mock.Anything, fixedNow, strPtr("Test Task"), strPtr("Test Description")).
					Return(sampleTask("id-1"), nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:        "success - charset in content type",
			requestBody: `{"title": "Test Task"}`,
			contentType: "application/json; charset=utf-8",
			setupMock: func(m *MockTaskService) {
				m.On("CreateTask", mock.Anything, fixedNow, strPtr("Test Task"), (*string)(nil)).
					Return(sampleTask("id-1"), nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:        "success - no content type, empty object",
			requestBody: `{}`,
			setupMock: func(m *MockTaskService) {
				m.On("CreateTask", mock.Anything, fixedNow, (*string)(nil), (*string)(nil)).
					Return(task.New("id-1", nil, nil, fixedNow), nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:        "success - empty body, no content type",
			requestBody: "",
			setupMock: func(m *MockTaskService) {
				m.On("CreateTask", mock.Anything, fixedNow, (*string)(nil), (*string)(nil)).
					Return(task.New("id-1", nil, nil, fixedNow), nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:        "success - empty body with json content type",
			requestBody: "",
			contentType: "application/json",
			setupMock: func(m *MockTaskService) {
				m.On("CreateTask", mock.Anything, fixedNow, (*string)(nil), (*string)(nil)).
					Return(task.New("id-1", nil, nil, fixedNow), nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "error - invalid content type",
			requestBody:    `{}`,
			contentType:    "text/plain",
			setupMock:      func(m *MockTaskService) {},
			expectedStatus: http.StatusUnsupportedMediaType,
		},
		{
			name:           "error - invalid JSON",
			requestBody:    `{invalid json}`,
			contentType:    "application/json",
			setupMock:      func(m *MockTaskService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:        "error - persistence error",
			requestBody: `{"title": "Test Task"}`,
			contentType: "application/json",
			setupMock: func(m *MockTaskService) {
				m.On("CreateTask", mock.Anything, fixedNow, strPtr("Test Task"), (*string)(nil)).
					Return(nil, service.NewPersistenceError("create task", errors.New("disk I/O error")))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockTaskService)
			tt.setupMock(mockService)

			w := doRequest(t, newRouter(mockService), http.MethodPost, "/tasks", tt.requestBody, tt.contentType)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusCreated {
				var response dto.TaskResponse
				require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
				assert.Equal(t, "id-1", response.ID)
				assert.Nil(t, response.CompletedAt)
				assert.Equal(t, response.CreatedAt, response.UpdatedAt)
			} else {
				body := decodeError(t, w)
				assert.NotContains(t, body["error"], "disk I/O error")
			}

			mockService.AssertExpectations(t)
		})
	}
}

func TestTaskHandler_PostTask_JSONShape(t *testing.T) {
	mockService := new(MockTaskService)
	mockService.On("CreateTask", mock.Anything, fixedNow, (*string)(nil), strPtr("d")).
		Return(task.New("id-1", nil, strPtr("d"), fixedNow), nil)

	w := doRequest(t, newRouter(mockService), http.MethodPost, "/tasks", `{"description": "d"}`, "application/json")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var raw map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&raw))
	assert.Equal(t, "id-1", raw["id"])
	assert.Nil(t, raw["title"])
	assert.Equal(t, "d", raw["description"])
	assert.Nil(t, raw["completed_at"])
	assert.Contains(t, raw, "completed_at")
	assert.Equal(t, "2024-03-01T12:30:00.123Z", raw["created_at"])
	assert.Equal(t, "2024-03-01T12:30:00.123Z", raw["updated_at"])
}

// TestTaskHandler_GetTasks тестирует список и фильтры
func TestTaskHandler_GetTasks(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		filter         task.Filter
		result         []*task.Task
		err            error
		expectedStatus int
		expectedLen    int
	}{
		{
			name:           "success - no filters",
			query:          "",
			filter:         task.Filter{},
			result:         []*task.Task{sampleTask("a"), sampleTask("b")},
			expectedStatus: http.StatusOK,
			expectedLen:    2,
		},
		{
			name:           "success - title filter",
			query:          "?title=Test",
			filter:         task.Filter{Title: "Test"},
			result:         []*task.Task{sampleTask("a")},
			expectedStatus: http.StatusOK,
			expectedLen:    1,
		},
		{
			name:           "success - both filters",
			query:          "?title=Te%25st&description=De_sc",
			filter:         task.Filter{Title: "Te%st", Description: "De_sc"},
			result:         []*task.Task{},
			expectedStatus: http.StatusOK,
			expectedLen:    0,
		},
		{
			name:           "success - nil result encodes as empty array",
			query:          "?description=none",
			filter:         task.Filter{Description: "none"},
			result:         nil,
			expectedStatus: http.StatusOK,
			expectedLen:    0,
		},
		{
			name:           "error - persistence error",
			filter:         task.Filter{},
			err:            service.NewPersistenceError("fetch tasks", errors.New("db down")),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockTaskService)
			if tt.err != nil {
				mockService.On("ListTasks", mock.Anything, tt.filter).Return(nil, tt.err)
			} else {
				mockService.On("ListTasks", mock.Anything, tt.filter).Return(tt.result, nil)
			}

			w := doRequest(t, newRouter(mockService), http.MethodGet, "/tasks"+tt.query, "", "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				raw := w.Body.String()
				var response []dto.TaskResponse
				require.NoError(t, json.Unmarshal([]byte(raw), &response))
				assert.Len(t, response, tt.expectedLen)
				assert.NotEqual(t, "null\n", raw)
			} else {
				decodeError(t, w)
			}

			mockService.AssertExpectations(t)
		})
	}
}

// TestTaskHandler_GetTaskByID тестирует получение задачи по ID
func TestTaskHandler_GetTaskByID(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mockService := new(MockTaskService)
		mockService.On("GetTaskByID", mock.Anything, "abc").Return(sampleTask("abc"), nil)

		w := doRequest(t, newRouter(mockService), http.MethodGet, "/tasks/abc", "", "")

		assert.Equal(t, http.StatusOK, w.Code)
		var response dto.TaskResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "abc", response.ID)
	})

	t.Run("error - not found", func(t *testing.T) {
		mockService := new(MockTaskService)
		mockService.On("GetTaskByID", mock.Anything, "missing").
			Return(nil, service.NewNotFound("Task", "missing"))

		w := doRequest(t, newRouter(mockService), http.MethodGet, "/tasks/missing", "", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, "Task missing not found", body["error"])
		assert.Equal(t, service.CodeNotFound, body["code"])
	})
}

// TestTaskHandler_UpdateTaskByID тестирует частичное обновление
func TestTaskHandler_UpdateTaskByID(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    string
		contentType    string
		patch          *task.Patch
		result         *task.Task
		err            error
		expectedStatus int
	}{
		{
			name:           "success - title only",
			requestBody:    `{"title": "new"}`,
			contentType:    "application/json",
			patch:          &task.Patch{Title: task.Set(strPtr("new"))},
			result:         sampleTask("id-1"),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "success - explicit null description",
			requestBody:    `{"description": null}`,
			contentType:    "application/json",
			patch:          &task.Patch{Description: task.Set[*string](nil)},
			result:         sampleTask("id-1"),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "error - neither field",
			requestBody:    `{}`,
			contentType:    "application/json",
			patch:          &task.Patch{},
			err:            service.NewValidationError("title", service.MessageUpdateRequiresField),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "error - empty body",
			requestBody:    "",
			contentType:    "application/json",
			patch:          &task.Patch{},
			err:            service.NewValidationError("title", service.MessageUpdateRequiresField),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "error - not found",
			requestBody:    `{"title": "new"}`,
			contentType:    "application/json",
			patch:          &task.Patch{Title: task.Set(strPtr("new"))},
			err:            service.NewNotFound("Task", "id-1"),
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "error - invalid JSON",
			requestBody:    `{"title":`,
			contentType:    "application/json",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "error - wrong content type",
			requestBody:    `{"title": "new"}`,
			contentType:    "text/xml",
			expectedStatus: http.StatusUnsupportedMediaType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockTaskService)
			if tt.patch != nil {
				if tt.err != nil {
					mockService.On("UpdateTask", mock.Anything, fixedNow, "id-1", *tt.patch).Return(nil, tt.err)
				} else {
					mockService.On("UpdateTask", mock.Anything, fixedNow, "id-1", *tt.patch).Return(tt.result, nil)
				}
			}

			w := doRequest(t, newRouter(mockService), http.MethodPut, "/tasks/id-1", tt.requestBody, tt.contentType)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus != http.StatusOK {
				decodeError(t, w)
			}

			mockService.AssertExpectations(t)
		})
	}
}

func TestTaskHandler_UpdateTaskByID_ValidationMessage(t *testing.T) {
	mockService := new(MockTaskService)
	mockService.On("UpdateTask", mock.Anything, fixedNow, "id-1", task.Patch{}).
		Return(nil, service.NewValidationError("title", service.MessageUpdateRequiresField))

	w := doRequest(t, newRouter(mockService), http.MethodPut, "/tasks/id-1", `{"other": 1}`, "application/json")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "Title or description is required for update", body["error"])
}

// TestTaskHandler_DeleteTaskByID тестирует удаление
func TestTaskHandler_DeleteTaskByID(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{
			name:           "success",
			expectedStatus: http.StatusNoContent,
		},
		{
			name:           "error - not found",
			err:            service.NewNotFound("Task", "id-1"),
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "error - persistence",
			err:            service.NewPersistenceError("delete task", errors.New("locked")),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockTaskService)
			mockService.On("DeleteTask", mock.Anything, "id-1").Return(tt.err)

			w := doRequest(t, newRouter(mockService), http.MethodDelete, "/tasks/id-1", "", "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusNoContent {
				assert.Empty(t, w.Body.String())
			} else {
				decodeError(t, w)
			}

			mockService.AssertExpectations(t)
		})
	}
}

// TestTaskHandler_CompleteTask тестирует завершение задачи
func TestTaskHandler_CompleteTask(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		completed := sampleTask("id-1")
		completed.Apply(task.WithCompletedAt(fixedNow))

		mockService := new(MockTaskService)
		mockService.On("CompleteTask", mock.Anything, fixedNow, "id-1").Return(completed, nil)

		w := doRequest(t, newRouter(mockService), http.MethodPatch, "/tasks/id-1/complete", "", "")

		assert.Equal(t, http.StatusOK, w.Code)
		var response dto.TaskResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		require.NotNil(t, response.CompletedAt)
		assert.True(t, response.CompletedAt.Equal(response.UpdatedAt))
		mockService.AssertExpectations(t)
	})

	t.Run("error - not found", func(t *testing.T) {
		mockService := new(MockTaskService)
		mockService.On("CompleteTask", mock.Anything, fixedNow, "id-1").
			Return(nil, service.NewNotFound("Task", "id-1"))

		w := doRequest(t, newRouter(mockService), http.MethodPatch, "/tasks/id-1/complete", "", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		decodeError(t, w)
	})

	t.Run("error - wrong method", func(t *testing.T) {
		mockService := new(MockTaskService)

		w := doRequest(t, newRouter(mockService), http.MethodPost, "/tasks/id-1/complete", "", "")

		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		mockService.AssertNotCalled(t, "CompleteTask", mock.Anything, mock.Anything, mock.Anything)
	})
}

// TestTaskHandler_ImportTasks тестирует импорт
func TestTaskHandler_ImportTasks(t *testing.T) {
	tests := []struct {
		name           string
		imported       int
		err            error
		expectedStatus int
	}{
		{
			name:           "success",
			imported:       3,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "success - nothing to import",
			imported:       0,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "error - source unreadable",
			err:            service.NewSourceReadError(errors.New("open tasks.csv: no such file")),
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "error - bulk insert failed",
			err:            service.NewPersistenceError("import tasks", errors.New("constraint")),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockTaskService)
			mockService.On("ImportTasks", mock.Anything, fixedNow).Return(tt.imported, tt.err)

			w := doRequest(t, newRouter(mockService), http.MethodPost, "/tasks/import", "", "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.err == nil {
				var response dto.ImportResponse
				require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
				assert.NotEmpty(t, response.Message)
				assert.Equal(t, tt.imported, response.Imported)
			} else {
				body := decodeError(t, w)
				assert.NotContains(t, body["error"], "tasks.csv")
			}

			mockService.AssertExpectations(t)
		})
	}
}

// TestTaskHandler_ErrorResponses тестирует формат ошибок
func TestTaskHandler_ErrorResponses(t *testing.T) {
	t.Run("unknown error is hidden", func(t *testing.T) {
		mockService := new(MockTaskService)
		mockService.On("GetTaskByID", mock.Anything, "id-1").
			Return(nil, errors.New("pq: relation tasks does not exist"))

		w := doRequest(t, newRouter(mockService), http.MethodGet, "/tasks/id-1", "", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, handlers.CodeInternal, body["code"])
		assert.NotContains(t, body["error"], "relation")
	})

	t.Run("not found carries details", func(t *testing.T) {
		mockService := new(MockTaskService)
		mockService.On("DeleteTask", mock.Anything, "id-1").
			Return(service.NewNotFound("Task", "id-1"))

		w := doRequest(t, newRouter(mockService), http.MethodDelete, "/tasks/id-1", "", "")

		body := decodeError(t, w)
		details, ok := body["details"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "id-1", details["id"])
	})

	t.Run("malformed body response", func(t *testing.T) {
		w := doRequest(t, newRouter(new(MockTaskService)), http.MethodPost, "/tasks", `[`, "application/json")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, service.CodeValidation, body["code"])
	})
}

func TestTaskHandler_DefaultClock(t *testing.T) {
	now := handlers.DefaultClock()
	assert.Equal(t, time.UTC, now.Location())
	assert.Zero(t, now.Nanosecond()%int(time.Millisecond))
}

// TestTaskHandler_ConcurrentRequests тестирует конкурентные запросы
func TestTaskHandler_ConcurrentRequests(t *testing.T) {
	mockService := new(MockTaskService)
	mockService.On("GetTaskByID", mock.Anything, "id-1").
		Return(sampleTask("id-1"), nil).Times(10)

	router := newRouter(mockService)

	var wg sync.WaitGroup
	codes := make([]int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/tasks/id-1", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	for _, code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}
	mockService.AssertExpectations(t)
}
