// Package httpapi is the HTTP transport for the depot (spec.md §6.4):
// a thin gin layer translating JSON requests into calls against the
// already-self-contained core packages (repository, download, adapter,
// generation, embedding, chattemplate, reasoning, catalog). Grounded on
// web-console/backend/internal/handlers/huggingface.go's handler shape
// (gin.Context, c.JSON(status, gin.H{...})) and on
// pkg/logging/ginlog.RequestLogger for ambient request logging.
package httpapi

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/modeldepot/depot/pkg/depot/adapter"
	"github.com/modeldepot/depot/pkg/depot/catalog"
	"github.com/modeldepot/depot/pkg/depot/download"
	"github.com/modeldepot/depot/pkg/depot/embedding"
	"github.com/modeldepot/depot/pkg/depot/generation"
	"github.com/modeldepot/depot/pkg/depot/repository"
	"github.com/modeldepot/depot/pkg/logging"
	"github.com/modeldepot/depot/pkg/logging/ginlog"
	"go.uber.org/zap"
)

// Config bundles maxConcurrentOperations and the component dependencies
// a Server wires into routes.
type Config struct {
	Repo    *repository.Repository
	Manager *download.Manager
	Loader  *adapter.Loader
	Catalog *catalog.Catalog

	MaxConcurrentOperations int

	Logger    logging.Interface
	ZapLogger *zap.Logger
	Metrics   *Metrics
}

// Server owns the gin engine and the per-model generation/embedding
// engine cache keyed by canonical model id. adapter.Loader returns the
// abstract adapter.Backend (Close() only); Server is the wiring point
// that type-asserts a concrete backend into generation.Backend or
// embedding.Backend before handing it to a dedicated Engine.
type Server struct {
	cfg    Config
	engine *gin.Engine

	mu        sync.Mutex
	genEngine map[string]*generation.Engine
	embEngine map[string]*embedding.Engine
}

// New builds a Server and registers routes. ZapLogger may be nil, in
// which case request logging is skipped; Metrics may be nil, in which
// case nothing is recorded and no /metrics route is registered.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	if cfg.MaxConcurrentOperations <= 0 {
		cfg.MaxConcurrentOperations = 1
	}
	s := &Server{
		cfg:       cfg,
		engine:    gin.New(),
		genEngine: make(map[string]*generation.Engine),
		embEngine: make(map[string]*embedding.Engine),
	}
	s.engine.Use(gin.Recovery())
	if cfg.ZapLogger != nil {
		s.engine.Use(ginlog.RequestLogger(cfg.ZapLogger))
	}
	if cfg.Loader != nil {
		cfg.Loader.Subscribe(s.onStateChange)
	}
	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin.Engine, e.g. for http.ListenAndServe.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// onStateChange evicts a model's cached generation/embedding Engine
// once the Loader reports it Unloaded or Failed, so a later Load of the
// same id builds a fresh Engine over the fresh Backend rather than
// reusing one pointed at a closed backend.
func (s *Server) onStateChange(change adapter.StateChange) {
	if change.To != adapter.StateUnloaded && change.To != adapter.StateFailed {
		return
	}
	s.mu.Lock()
	delete(s.genEngine, change.CanonicalID)
	delete(s.embEngine, change.CanonicalID)
	s.mu.Unlock()
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealthz)
	if s.cfg.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// Model and collection identifiers are colon/slash-bearing path
	// strings (spec.md §3.1), so identifiers travel as query parameters
	// or JSON body fields rather than gin path params.
	v1 := s.engine.Group("/v1")
	{
		v1.GET("/models", s.handleListModels)
		v1.GET("/models/show", s.handleShowModel)
		v1.POST("/models/alias", s.handleSetAlias)
		v1.GET("/models/downloaded", s.handleCheckDownloaded)
		v1.DELETE("/models", s.handleDeleteModel)

		v1.POST("/models/load", s.handleLoadModel)
		v1.POST("/models/unload", s.handleUnloadModel)
		v1.GET("/models/loaded", s.handleListLoaded)

		v1.POST("/generate", s.handleGenerate)
		v1.POST("/generate/stream", s.handleGenerateStream)
		v1.POST("/embed", s.handleEmbed)

		v1.GET("/collections", s.handleDiscoverCollections)
		v1.GET("/collections/info", s.handleCollectionInfo)
		v1.GET("/collections/models", s.handleCollectionModels)

		v1.POST("/downloads", s.handleStartDownload)
		v1.POST("/downloads/pause", s.handlePauseDownload)
		v1.POST("/downloads/resume", s.handleResumeDownload)
		v1.POST("/downloads/cancel", s.handleCancelDownload)
		v1.GET("/downloads/status", s.handleDownloadStatus)
		v1.GET("/downloads", s.handleListDownloads)
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
