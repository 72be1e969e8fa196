package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/northernlights-labs/ownership-graph/internal/data/graph"
	"github.com/northernlights-labs/ownership-graph/internal/platform/logger"
	"github.com/northernlights-labs/ownership-graph/internal/platform/neo4jdb"
)

type App struct {
	Log      *logger.Logger
	Neo4j    *neo4jdb.Client
	Router   *gin.Engine
	Cfg      Config
	Services Services
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig()

	neo, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init neo4j: %w", err)
	}

	store := graph.NewStore(neo, log)
	analytics := graph.NewAnalytics(neo, log)

	schemaCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store.EnsureSchema(schemaCtx)
	cancel()

	serviceset, err := wireServices(log, cfg, store, analytics)
	if err != nil {
		_ = neo.Close(context.Background())
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, serviceset)
	router := wireRouter(cfg, handlerset)

	return &App{
		Log:      log,
		Neo4j:    neo,
		Router:   router,
		Cfg:      cfg,
		Services: serviceset,
	}, nil
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "addr", a.Cfg.Addr)
	return a.Router.Run(a.Cfg.Addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Neo4j != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.Neo4j.Close(ctx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
