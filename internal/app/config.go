package app

import (
	"strings"

	"github.com/northernlights-labs/ownership-graph/internal/platform/envutil"
	"github.com/northernlights-labs/ownership-graph/internal/services"
)

type Config struct {
	Addr         string
	AllowOrigins []string
	Ingestion    services.IngestionConfig
}

func LoadConfig() Config {
	ingestion := services.DefaultIngestionConfig()
	ingestion.MaxDepth = envutil.Int("INGEST_MAX_DEPTH", ingestion.MaxDepth)
	ingestion.Concurrency = envutil.Int("INGEST_CONCURRENCY", ingestion.Concurrency)
	ingestion.Retry.MaxRetries = envutil.Int("INGEST_MAX_RETRIES", ingestion.Retry.MaxRetries)

	var origins []string
	for _, o := range strings.Split(envutil.Str("CORS_ALLOW_ORIGINS", "http://localhost:3000"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return Config{
		Addr:         envutil.Str("HTTP_ADDR", ":8080"),
		AllowOrigins: origins,
		Ingestion:    ingestion,
	}
}
