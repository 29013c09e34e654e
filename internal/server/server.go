package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vitrine-app/apiserver/config"
	"github.com/vitrine-app/apiserver/internal/auth"
	"github.com/vitrine-app/apiserver/internal/db"
	"github.com/vitrine-app/apiserver/internal/handlers"
	"github.com/vitrine-app/apiserver/internal/logging"
	"github.com/vitrine-app/apiserver/internal/mq"
	"github.com/vitrine-app/apiserver/internal/services"
	"github.com/vitrine-app/apiserver/internal/storage"
	"github.com/vitrine-app/apiserver/internal/store"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *zap.Logger
	closers    []func() error
}

// New wires the configured backends into the account API.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{logger: logger}

	repo, err := s.openUserRepository(ctx, cfg)
	if err != nil {
		s.close()
		return nil, err
	}

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	photos := storage.NewPhotoStore(objects)

	backend, err := mq.New(ctx, cfg.MQ)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("open mq: %w", err)
	}
	s.closers = append(s.closers, backend.Close)
	events := mq.NewAccountEvents(backend, cfg.MQ.Channel)

	userService := services.NewUserService(
		repo,
		auth.NewIssuerFromConfig(cfg.JWT),
		cfg.TagWhitelist,
		services.WithPhotos(photos),
		services.WithEvents(events),
		services.WithLogger(logger.Named("users")),
	)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(logger.Named("http")),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userService)
	})
	router.Route("/photos", func(r chi.Router) {
		handlers.PhotoRouter(r, photos)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) openUserRepository(ctx context.Context, cfg config.Config) (services.UserRepository, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		s.logger.Warn("using in-memory user store; data is lost on restart")
		return store.NewMemoryUserRepository(), nil
	case config.StoreBackendMongo:
		client, database, err := db.OpenMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return client.Disconnect(disconnectCtx)
		})
		repo := store.NewMongoUserRepository(database.Collection(store.MongoUsersCollection))
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		return repo, nil
	case config.StoreBackendPostgres, "":
		conn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, conn.Close)
		return store.NewUserRepository(conn), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.httpServer.Addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown stops accepting requests, waits for active ones and releases
// backend connections.
func (s *Server) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.close()
	return err
}

func (s *Server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("close backend", zap.Error(err))
		}
	}
	s.closers = nil
}
