package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/learnhub/apiserver/config"
	"github.com/learnhub/apiserver/internal/auth"
	"github.com/learnhub/apiserver/internal/cache"
	"github.com/learnhub/apiserver/internal/db"
	"github.com/learnhub/apiserver/internal/events"
	"github.com/learnhub/apiserver/internal/handlers"
	"github.com/learnhub/apiserver/internal/logger"
	"github.com/learnhub/apiserver/internal/mq"
	"github.com/learnhub/apiserver/internal/services"
	"github.com/learnhub/apiserver/internal/storage"
	"github.com/learnhub/apiserver/internal/store"
	"github.com/learnhub/apiserver/internal/store/docstore"
	"github.com/learnhub/apiserver/internal/store/memstore"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	StoreBackendPostgres = "postgres"
	StoreBackendMongo    = "mongo"
	StoreBackendMemory   = "memory"
)

// Server wraps the HTTP server, router and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *logger.Logger

	db     *sql.DB
	mongo  *mongo.Client
	broker *mq.MQ
	cache  *cache.CourseCache
}

type repositories struct {
	users   services.UserRepository
	courses services.CourseRepository
}

// New wires the configured backends and builds the router.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	s := &Server{log: log}
	ok := false
	defer func() {
		if !ok {
			s.closeBackends()
		}
	}()

	repos, err := s.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	objects, err := storage.New(ctx, cfg.ObjectStorage)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %q: %w", objects.Bucket(), err)
	}
	log.Info("object storage ready", "backend", cfg.ObjectStorage.Backend, "bucket", objects.Bucket())

	var publisher events.Publisher = events.Nop{}
	if cfg.MQ.Backend != "" {
		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		s.broker = broker
		publisher = events.NewPublisher(broker, cfg.MQ.EventsChannel)
		log.Info("event publishing enabled", "backend", cfg.MQ.Backend, "channel", cfg.MQ.EventsChannel)
	}

	var courseCache services.CourseCache
	if cfg.Redis.Addr != "" {
		s.cache = cache.NewCourseCache(cache.NewRedisClient(cfg.Redis), cfg.Redis.TTL)
		if err := s.cache.Ping(ctx); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		courseCache = s.cache
		log.Info("course cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	userService := services.NewUserService(repos.users, objects, tokens, publisher, log)
	courseService := services.NewCourseService(repos.courses, objects, courseCache, publisher, log, cfg.DefaultThumbURL)
	if courseCache != nil {
		userService.SetInstructorCache(courseService)
	}

	s.router = NewRouter(cfg, log, tokens, userService, courseService)

	port := cfg.ServerPort
	if port == 0 {
		port = 5000
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ok = true
	return s, nil
}

func (s *Server) openStore(ctx context.Context, cfg config.Config) (repositories, error) {
	switch cfg.StoreBackend {
	case StoreBackendPostgres, "":
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return repositories{}, fmt.Errorf("connect postgres: %w", err)
		}
		s.db = conn
		s.log.Info("store ready", "backend", StoreBackendPostgres, "host", cfg.Database.Host, "database", cfg.Database.DBName)
		return repositories{
			users:   store.NewUserRepository(conn),
			courses: store.NewCourseRepository(conn),
		}, nil
	case StoreBackendMongo:
		client, database, err := docstore.Connect(ctx, cfg.Mongo)
		if err != nil {
			return repositories{}, fmt.Errorf("connect mongo: %w", err)
		}
		s.mongo = client
		if err := docstore.EnsureIndexes(ctx, database); err != nil {
			return repositories{}, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		s.log.Info("store ready", "backend", StoreBackendMongo, "database", cfg.Mongo.Database)
		return repositories{
			users:   docstore.NewUserRepository(database),
			courses: docstore.NewCourseRepository(database),
		}, nil
	case StoreBackendMemory:
		mem := memstore.New()
		s.log.Warn("store ready", "backend", StoreBackendMemory, "note", "data is lost on restart")
		return repositories{users: mem.Users(), courses: mem.Courses()}, nil
	default:
		return repositories{}, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

// NewRouter builds the HTTP routes over the given services.
func NewRouter(
	cfg config.Config,
	log *logger.Logger,
	tokens *auth.TokenManager,
	userService *services.UserService,
	courseService *services.CourseService,
) *chi.Mux {
	authMiddleware := handlers.RequireAuth(tokens)
	limiter := handlers.NewRateLimiter(cfg.RateLimit.AuthRPS, cfg.RateLimit.AuthBurst)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		handlers.RequestLogger(log),
		middleware.Timeout(60*time.Second),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)
	router.Get("/healthz", handlers.Healthz)

	userHandler := handlers.NewUserHandler(userService, log, cfg.MaxUploadBytes)
	courseHandler := handlers.NewCourseHandler(courseService, log, cfg.MaxUploadBytes)

	router.Route(cfg.APIPrefix, func(api chi.Router) {
		handlers.UserRouter(api, userHandler, authMiddleware, limiter.Middleware)
		api.Route("/courses", func(r chi.Router) {
			handlers.CourseRouter(r, courseHandler, authMiddleware)
		})
	})

	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Broker returns the message queue used for events, or nil when events are
// disabled.
func (s *Server) Broker() *mq.MQ {
	return s.broker
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes every backend.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.closeBackends()
	return err
}

func (s *Server) closeBackends() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("close postgres", "error", err)
		}
	}
	if s.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.mongo.Disconnect(ctx); err != nil {
			s.log.Warn("close mongo", "error", err)
		}
	}
	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			s.log.Warn("close message queue", "error", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.log.Warn("close redis", "error", err)
		}
	}
}
