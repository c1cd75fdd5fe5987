package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"mastrogpt/internal/actions"
	"mastrogpt/internal/assistant"
	"mastrogpt/internal/catalog"
	"mastrogpt/internal/config"
	"mastrogpt/internal/db"
	"mastrogpt/internal/gcal"
	"mastrogpt/internal/listing"
	"mastrogpt/internal/store"
	"mastrogpt/internal/types"
)

const maxBodyBytes = 1 << 20

type Server struct {
	router   *chi.Mux
	cfg      config.Config
	actions  *actions.Registry
	registry *prometheus.Registry
	metrics  *Metrics

	database *db.DB
	mongo    *listing.Mongo
}

// NewServer wires the production dependencies from cfg.
func NewServer(ctx context.Context, cfg config.Config) (*Server, error) {
	client := openai.NewClient(cfg.OpenAIAPIKey)
	asst, err := assistant.Load(cfg.PromptsFile, client, cfg.Model)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load assistant prompts")
	}
	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}

	deps := actions.Deps{
		Catalog:   cat,
		Assistant: asst,
		Calendar:  gcal.New(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, cfg.GoogleScopes),
		States:    store.NewMemoryStore(),
	}

	var database *db.DB
	if cfg.DatabaseURL != "" {
		database, err = db.New(cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "failed to initialize database")
		}
		if err := database.RunMigrations(cfg.MigrationsDir); err != nil {
			_ = database.Close()
			return nil, errors.Wrap(err, "failed to run migrations")
		}
		log.Info().Str("component", "server").Msg("database connection established")
		deps.Tokens = store.NewDatabaseStore(database)
	} else {
		log.Warn().Str("component", "server").Str("file", cfg.GoogleTokenFile).Msg("DB_URL not provided, using file-based token storage")
		deps.Tokens = store.NewFileTokenStore(cfg.GoogleTokenFile)
	}

	var mongo *listing.Mongo
	if cfg.MongoURL != "" {
		mongo, err = listing.Connect(ctx, cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			if database != nil {
				_ = database.Close()
			}
			return nil, err
		}
		deps.Users = mongo
	}

	s := New(cfg, deps)
	s.database = database
	s.mongo = mongo
	return s, nil
}

// New builds a server around already constructed dependencies.
func New(cfg config.Config, deps actions.Deps) *Server {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "X-Session-Id"},
		ExposedHeaders:   []string{"X-Session-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	r.Use(RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, metrics))

	registry := actions.NewRegistry()
	actions.Register(registry, deps)

	s := &Server{
		router:   r,
		cfg:      cfg,
		actions:  registry,
		registry: reg,
		metrics:  metrics,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.router.Get("/api/my/{pkg}/{action}", s.handleAction)
	s.router.Post("/api/my/{pkg}/{action}", s.handleAction)
	s.router.Get("/api/my/{action}", s.handleAction)
	s.router.Post("/api/my/{action}", s.handleAction)
}

func (s *Server) Router() http.Handler { return s.router }

// Close releases the database and MongoDB connections.
func (s *Server) Close(ctx context.Context) error {
	var first error
	if s.mongo != nil {
		first = s.mongo.Close(ctx)
	}
	if s.database != nil {
		if err := s.database.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if s.database != nil {
		if err := s.database.HealthCheck(); err != nil {
			status["database"] = "unreachable"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "action")
	if pkg := chi.URLParam(r, "pkg"); pkg != "" {
		name = pkg + "/" + name
	}
	fn, ok := s.actions.Lookup(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "action not found: "+name)
		return
	}

	args, err := parseArgs(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sid := getOrCreateSessionID(r, w)
	w.Header().Set("X-Session-Id", sid)
	ctx := actions.WithSession(r.Context(), sid)

	start := time.Now()
	res, err := fn(ctx, args)
	if err != nil {
		code := http.StatusInternalServerError
		var aerr *actions.Error
		if errors.As(err, &aerr) {
			code = aerr.Status
		}
		s.metrics.observe(name, code, time.Since(start))
		log.Error().Err(err).Str("component", "server").Str("action", name).Int("status", code).Msg("action failed")
		s.writeError(w, code, err.Error())
		return
	}
	code := s.writeResult(w, res)
	s.metrics.observe(name, code, time.Since(start))
	log.Debug().Str("component", "server").Str("action", name).Int("status", code).Dur("took", time.Since(start)).Msg("action served")
}

// parseArgs merges the query parameters with the fields of a JSON object
// body. Body fields win.
func parseArgs(r *http.Request) (actions.Args, error) {
	args := actions.Args{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			args[k] = v[0]
		}
	}
	if r.Body == nil {
		return args, nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "reading body")
	}
	if strings.TrimSpace(string(raw)) == "" {
		return args, nil
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	for k, v := range body {
		args[k] = v
	}
	return args, nil
}

func (s *Server) writeResult(w http.ResponseWriter, res actions.Result) int {
	for k, v := range res.Headers {
		w.Header().Set(k, v)
	}
	code := res.StatusCode
	if text, ok := res.Body.(string); ok {
		if code == 0 {
			code = http.StatusOK
			if text == "" {
				code = http.StatusNoContent
			}
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}
		w.WriteHeader(code)
		if code != http.StatusNoContent {
			_, _ = io.WriteString(w, text)
		}
		return code
	}
	if code == 0 {
		code = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(res.Body)
	return code
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg})
}

func newSessionID() string {
	return "s_" + uuid.NewString()
}

// getSessionID retrieves the session ID from cookie, header or query parameter
func getSessionID(r *http.Request) string {
	if cookie, err := GetSessionCookie(r); err == nil && cookie != "" {
		return cookie
	}
	if sid := r.Header.Get("X-Session-Id"); sid != "" {
		return sid
	}
	return r.URL.Query().Get("sessionId")
}

// getOrCreateSessionID gets existing session ID or creates a new one, setting the cookie
func getOrCreateSessionID(r *http.Request, w http.ResponseWriter) string {
	sid := getSessionID(r)
	if sid == "" {
		sid = newSessionID()
		log.Debug().Str("component", "server").Str("session", sid).Str("path", r.URL.Path).Msg("creating new session")
		SetSessionCookie(w, r, sid)
	}
	return sid
}
