package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"taskService/internal/config"
	"taskService/internal/handlers"
	"taskService/internal/importer"
	"taskService/internal/logger"
	"taskService/internal/middleware"
	"taskService/internal/repository/task/inmemory"
	"taskService/internal/repository/task/postgres"
	"taskService/internal/repository/task/sqlstore"
	"taskService/internal/service"
	"taskService/internal/telemetry"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

const defaultShutdownTimeout = 10 * time.Second

// Store - хранилище задач, которое app умеет закрыть
type Store interface {
	service.TaskRepository
	Close() error
}

type App struct {
	config     *config.Config
	server     *http.Server
	router     *chi.Mux
	handler    http.Handler
	repository Store
	service    handlers.Service
	telemetry  *telemetry.Provider
	clock      handlers.Clock
	shutdowns  []func(context.Context) // выполняются в обратном порядке
}

type Option func(*App)

// WithClock подменяет часы обработчиков, нужно в тестах
func WithClock(clock handlers.Clock) Option {
	return func(a *App) {
		a.clock = clock
	}
}

// WithStore использует готовое хранилище вместо создания по конфигу
func WithStore(store Store) Option {
	return func(a *App) {
		a.repository = store
	}
}

func New(cfg *config.Config, opts ...Option) *App {
	a := &App{
		config:    cfg,
		shutdowns: make([]func(context.Context), 0),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *App) Init(ctx context.Context) error {
	if err := logger.Init(a.config.Logging.Development); err != nil {
		return fmt.Errorf("инициализация логгера: %w", err)
	}
	a.onShutdown(func(context.Context) {
		logger.Info("Завершение работы логгирования...")
		logger.Sync()
	})

	provider, err := telemetry.Init(ctx, a.config.Telemetry)
	if err != nil {
		return fmt.Errorf("инициализация телеметрии: %w", err)
	}
	a.telemetry = provider
	a.onShutdown(func(ctx context.Context) {
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("Ошибка остановки телеметрии", err)
		}
	})

	if a.repository == nil {
		store, err := openStore(ctx, a.config)
		if err != nil {
			return fmt.Errorf("инициализация хранилища: %w", err)
		}
		a.repository = store
	}
	a.onShutdown(func(context.Context) {
		logger.Info("Закрытие хранилища...")
		if err := a.repository.Close(); err != nil {
			logger.Error("Ошибка закрытия хранилища", err)
		}
	})

	a.service = service.NewTaskService(a.repository, importer.NewFileSource(a.config.Import.Path))

	a.router = a.newRouter()
	a.handler = a.telemetry.Handler(a.router, "task-service")

	a.server = &http.Server{
		Addr:         a.config.GetServerAddr(),
		Handler:      a.handler,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
	}

	logger.Info("Приложение инициализировано",
		zap.String("repository", a.config.Repository.Type),
		zap.String("import_path", a.config.Import.Path),
		zap.Bool("telemetry", a.config.Telemetry.Enabled))

	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (Store, error) {
	db := cfg.Database

	switch cfg.Repository.Type {
	case config.RepositoryInMemory:
		return inmemory.NewTaskStorage(), nil

	case config.RepositoryPostgres:
		return postgres.New(ctx, db.URL, postgres.Options{
			MaxConns:    int32(db.MaxConnections),
			MinConns:    int32(db.MinConnections),
			IdleTimeout: db.IdleTimeout,
		})

	case config.RepositorySQLite, config.RepositoryMySQL:
		dialect, err := sqlstore.DialectByName(cfg.Repository.Type)
		if err != nil {
			return nil, err
		}
		return sqlstore.Open(ctx, dialect, db.URL, sqlstore.Options{
			MaxOpenConns:    db.MaxConnections,
			MaxIdleConns:    db.MinConnections,
			ConnMaxIdleTime: db.IdleTimeout,
		})

	default:
		return nil, fmt.Errorf("неизвестный тип хранилища %q", cfg.Repository.Type)
	}
}

func (a *App) newRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recover)
	r.Use(middleware.Logging)
	r.Use(middleware.RateLimit(a.config.RateLimit.RequestsPerMinute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.config.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.HeaderRequestID},
		ExposedHeaders: []string{middleware.HeaderRequestID},
		MaxAge:         300,
	}))

	var opts []handlers.HandlerOption
	if a.clock != nil {
		opts = append(opts, handlers.WithClock(a.clock))
	}
	handlers.NewTaskHandler(a.service, opts...).Routes(r)

	return r
}

// Handler - корневой http.Handler приложения, доступен после Init
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run блокируется до отмены ctx или ошибки сервера, затем корректно всё закрывает
func (a *App) Run(ctx context.Context) error {
	if a.server == nil {
		return errors.New("приложение не инициализировано")
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Сервер запущен", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Получен сигнал остановки")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("Сервер остановился с ошибкой", serveErr)
		}
	}

	shutdownErr := a.Shutdown()
	if serveErr != nil {
		return serveErr
	}
	return shutdownErr
}

// Shutdown останавливает сервер и освобождает ресурсы в обратном порядке создания
func (a *App) Shutdown() error {
	timeout := a.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var err error
	if a.server != nil {
		logger.Info("Остановка HTTP сервера...")
		if shutdownErr := a.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("остановка сервера: %w", shutdownErr)
		}
	}

	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		a.shutdowns[i](ctx)
	}
	a.shutdowns = nil

	return err
}

func (a *App) onShutdown(fn func(context.Context)) {
	a.shutdowns = append(a.shutdowns, fn)
}
