package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DevN0mad/SprintPilot/internal/models"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// APIServerOpts параметры для настройки API сервера.
type APIServerOpts struct {
	Address             string `yaml:"address" mapstructure:"address" validate:"required"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds" mapstructure:"read_timeout_seconds" validate:"min=0"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds" mapstructure:"write_timeout_seconds" validate:"min=0"`
	IdleTimeoutSeconds  int    `yaml:"idle_timeout_seconds" mapstructure:"idle_timeout_seconds" validate:"min=0"`
}

// WorkItemClient операции трекера, используемые маршрутами.
type WorkItemClient interface {
	GetWorkItem(ctx context.Context, token, org, project string, id int) (*models.WorkItem, error)
	GetWorkItemsBatch(ctx context.Context, token, org, project string, ids []int, fields []string) ([]models.WorkItem, error)
	CreateWorkItem(ctx context.Context, token, org, project, itemType string, patch models.PatchDocument) (*models.WorkItem, error)
	UpdateWorkItem(ctx context.Context, token, org, project string, id int, patch models.PatchDocument) (*models.WorkItem, error)
	WorkItemURL(org, project string, id int) string
}

// Generator одна chat completion генеративного сервиса.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CapacityPlanner расчёт capacity трёх спринтов.
type CapacityPlanner interface {
	ComputeCapacity(ctx context.Context, token, org, project, team string, requested []string) (*models.CapacityResult, error)
}

// ReportGenerator xlsx отчет по capacity.
type ReportGenerator interface {
	GenerateCapacityReport(ctx context.Context, token, org, project, team string) ([]byte, error)
}

// History аудит обработанных запросов, может отсутствовать.
type History interface {
	SaveRecord(ctx context.Context, rec models.RequestRecord) error
	Recent(ctx context.Context, limit int) ([]models.RequestRecord, error)
}

// APIServer обрабатывает запросы расширения.
type APIServer struct {
	logger    *slog.Logger
	opts      *APIServerOpts
	srv       *http.Server
	tracker   WorkItemClient
	generator Generator
	planner   CapacityPlanner
	reports   ReportGenerator
	history   History
}

// NewAPIServer создаёт сервер со всеми зависимостями маршрутов.
// history может быть nil, тогда аудит выключен.
func NewAPIServer(
	logger *slog.Logger,
	tracker WorkItemClient,
	generator Generator,
	planner CapacityPlanner,
	reports ReportGenerator,
	history History,
	opts *APIServerOpts,
) *APIServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIServer{
		logger:    logger,
		opts:      opts,
		tracker:   tracker,
		generator: generator,
		planner:   planner,
		reports:   reports,
		history:   history,
	}
}

// Register регистрирует маршруты API сервера.
func (s *APIServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/analyze", s.withAuth(s.handleAnalyze))
	mux.HandleFunc("GET /api/feature-stories/{org}/{project}/{featureId}", s.withAuth(s.handleFeatureStories))
	mux.HandleFunc("POST /api/create-tasks", s.withAuth(s.handleCreateTasks))
	mux.HandleFunc("POST /api/create-testcases", s.withAuth(s.handleCreateTestCases))
	mux.HandleFunc("POST /api/create-stories", s.withAuth(s.handleCreateStories))
	mux.HandleFunc("POST /api/update-stories", s.withAuth(s.handleUpdateStories))
	mux.HandleFunc("POST /api/compute-capacity", s.withAuth(s.handleComputeCapacity))
	mux.HandleFunc("GET /api/capacity-report", s.withAuth(s.handleCapacityReport))

	if s.history != nil {
		mux.HandleFunc("GET /api/history", s.withAuth(s.handleHistory))
	}
}

// Start запускает API сервер.
func (s *APIServer) Start(ctx context.Context) error {
	s.logger.Info("Starting API server", "address", s.opts.Address)
	mux := http.NewServeMux()
	s.Register(mux)
	s.srv = &http.Server{
		Addr:         s.opts.Address,
		ReadTimeout:  time.Duration(s.opts.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(s.opts.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(s.opts.IdleTimeoutSeconds) * time.Second,
		Handler:      mux,
	}

	go func() {
		<-ctx.Done()

		s.logger.Info("Shutting down API server (ctx canceled)")

		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server shutdown error", "error", err)
		}
	}()

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error("API server error", "error", err)
		return err
	}

	s.logger.Info("API server stopped")
	return nil
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withAuth проверяет присутствие bearer токена в запросе.
// Подпись и срок действия проверяет сам трекер, сюда токен только ретранслируется.
func (s *APIServer) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := bearerToken(r); !ok {
			s.logger.Warn("Unauthorized request", "path", r.URL.Path)
			s.writeError(w, http.StatusUnauthorized, "missing or malformed authorization header")
			return
		}
		next(w, r)
	}
}

// bearerToken извлекает bearer токен из заголовка Authorization
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// decodeJSON разбирает тело запроса с ограничением размера
func (s *APIServer) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.Warn("Bad request body", "path", r.URL.Path, "error", err)
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// recordHistory сохраняет запись аудита, ошибки только логируются
func (s *APIServer) recordHistory(ctx context.Context, rec models.RequestRecord) {
	if s.history == nil {
		return
	}
	if err := s.history.SaveRecord(ctx, rec); err != nil {
		s.logger.Error("Failed to save history record", "route", rec.Route, "error", err)
	}
}
