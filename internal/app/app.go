package app

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/footybot-roster/external/thesportsdb"
	"github.com/riskibarqy/footybot-roster/internal/config"
	"github.com/riskibarqy/footybot-roster/internal/domain/rawdata"
	"github.com/riskibarqy/footybot-roster/internal/domain/roster"
	"github.com/riskibarqy/footybot-roster/internal/infrastructure/repository/postgres"
	"github.com/riskibarqy/footybot-roster/internal/infrastructure/storage/filesystem"
	"github.com/riskibarqy/footybot-roster/internal/observability"
	idgen "github.com/riskibarqy/footybot-roster/internal/platform/id"
	"github.com/riskibarqy/footybot-roster/internal/platform/logging"
	"github.com/riskibarqy/footybot-roster/internal/platform/resilience"
	"github.com/riskibarqy/footybot-roster/internal/usecase"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RosterJob is the wired roster pipeline for one process.
type RosterJob struct {
	Service *usecase.RosterService
	Metrics *observability.RunMetrics

	db     *sqlx.DB
	logger *logging.Logger
}

func NewRosterJob(ctx context.Context, cfg config.Config, logger *logging.Logger) (*RosterJob, error) {
	if logger == nil {
		logger = logging.Default()
	}

	provider := thesportsdb.NewClient(thesportsdb.ClientConfig{
		HTTPClient: newProviderHTTPClient(cfg.SportsDBTimeout),
		BaseURL:    cfg.SportsDBBaseURL,
		APIKey:     cfg.SportsDBAPIKey,
		Timeout:    cfg.SportsDBTimeout,
		MaxRetries: cfg.SportsDBMaxRetries,
		Logger:     logger,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.SportsDBCircuitEnabled,
			FailureThreshold: cfg.SportsDBCircuitFailureCount,
			OpenTimeout:      cfg.SportsDBCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.SportsDBCircuitHalfOpenMaxReqs,
		},
	})

	job := &RosterJob{
		Metrics: observability.NewRunMetrics(cfg.MetricsPushgatewayURL, cfg.ServiceName),
		logger:  logger,
	}

	var archive rawdata.Repository
	if cfg.RawArchiveEnabled {
		db, err := openArchiveDB(ctx, cfg)
		if err != nil {
			logger.WarnContext(ctx, "raw payload archive unavailable, continuing without it", "error", err)
		} else {
			job.db = db
			archive = postgres.NewRawDataRepository(db)
			logger.InfoContext(ctx, "raw payload archive enabled", "db_name", dbNameFromURL(cfg.DBURL))
		}
	}

	teams := make([]roster.TeamName, 0, len(cfg.RosterTeams))
	for _, team := range cfg.RosterTeams {
		teams = append(teams, roster.TeamName(team))
	}

	images := filesystem.NewImageStore(cfg.RosterImageRoot)
	writer := filesystem.NewRosterWriter(cfg.RosterJSONOutputPath)
	logger.InfoContext(ctx, "roster job configured",
		"teams", len(teams),
		"output_path", writer.Path(),
		"image_root", images.Root(),
		"download_images", cfg.RosterDownloadImages,
		"metrics_push", job.Metrics.PushEnabled(),
	)

	job.Service = usecase.NewRosterService(
		provider,
		images,
		writer,
		archive,
		job.Metrics,
		idgen.NewUUIDGenerator(),
		usecase.RosterConfig{
			Teams:          teams,
			PhotoURLPrefix: cfg.RosterPhotoURLPrefix,
			DownloadImages: cfg.RosterDownloadImages,
			MaxWorkers:     cfg.RosterMaxWorkers,
		},
		logger,
	)

	return job, nil
}

// Close releases the archive connection, if any.
func (j *RosterJob) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("close archive db: %w", err)
	}
	return nil
}

func newProviderHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: otelhttp.NewTransport(
			http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "thesportsdb " + r.Method + " " + path.Base(r.URL.Path)
			}),
		),
	}
}
