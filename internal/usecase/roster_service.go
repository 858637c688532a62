package usecase

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/riskibarqy/footybot-roster/internal/domain/rawdata"
	"github.com/riskibarqy/footybot-roster/internal/domain/roster"
	"github.com/riskibarqy/footybot-roster/internal/platform/id"
	"github.com/riskibarqy/footybot-roster/internal/platform/logging"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const maxRosterWorkers = 16

type RosterProvider interface {
	SearchPlayersByTeam(ctx context.Context, team roster.TeamName) (ExternalTeamRoster, error)
	FetchPlayerImage(ctx context.Context, thumbURL string) (io.ReadCloser, error)
}

type ExternalTeamRoster struct {
	Team       roster.TeamName
	Players    []ExternalPlayer
	RawPayload *rawdata.Payload
}

// ExternalPlayer is the provider player, fields copied verbatim. Empty
// ThumbURL and Number mean the provider had no value.
type ExternalPlayer struct {
	ID          string
	Name        string
	Position    string
	Team        string
	ThumbURL    string
	Nationality string
	Number      string
}

// RunRecorder receives run telemetry. Implementations must be safe for
// concurrent use.
type RunRecorder interface {
	ObserveTeam(status TeamStatus)
	ObserveImage(status ImageStatus)
	ObserveRun(result RunResult, duration time.Duration)
}

type RosterConfig struct {
	Teams          []roster.TeamName
	PhotoURLPrefix string
	DownloadImages bool
	MaxWorkers     int
}

type RosterService struct {
	provider RosterProvider
	images   roster.ImageStore
	writer   roster.Writer
	archive  rawdata.Repository
	recorder RunRecorder
	ids      id.Generator
	cfg      RosterConfig
	logger   *logging.Logger
}

func NewRosterService(
	provider RosterProvider,
	images roster.ImageStore,
	writer roster.Writer,
	archive rawdata.Repository,
	recorder RunRecorder,
	ids id.Generator,
	cfg RosterConfig,
	logger *logging.Logger,
) *RosterService {
	if logger == nil {
		logger = logging.Default()
	}
	if ids == nil {
		ids = id.NewUUIDGenerator()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if strings.TrimSpace(cfg.PhotoURLPrefix) == "" {
		cfg.PhotoURLPrefix = "/images"
	}

	return &RosterService{
		provider: provider,
		images:   images,
		writer:   writer,
		archive:  archive,
		recorder: recorder,
		ids:      ids,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run fetches every configured team and then overwrites the aggregate file.
// Team failures never abort the run. A cancelled context aborts before the
// write so the previous file stays untouched.
func (s *RosterService) Run(ctx context.Context) (RunResult, error) {
	ctx, span := startRunSpan(ctx, "usecase.RosterService.Run")
	defer span.End()

	if s.provider == nil || s.writer == nil {
		return RunResult{}, fmt.Errorf("%w: roster service is not fully configured", ErrDependencyUnavailable)
	}
	if s.cfg.DownloadImages && s.images == nil {
		return RunResult{}, fmt.Errorf("%w: image store is required when image downloads are enabled", ErrDependencyUnavailable)
	}

	runID, err := s.ids.NewID()
	if err != nil {
		return RunResult{}, fmt.Errorf("generate run id: %w", err)
	}

	start := time.Now()
	teams := s.cfg.Teams
	workerCount := normalizeRosterWorkerCount(s.cfg.MaxWorkers, len(teams))
	logger := s.logger.With("run_id", runID)
	span.SetAttributes(
		attribute.String("roster.run_id", runID),
		attribute.Int("roster.team_count", len(teams)),
		attribute.Int("roster.worker_count", workerCount),
	)

	result := RunResult{
		RunID:       runID,
		TeamCount:   len(teams),
		WorkerCount: workerCount,
		Teams:       make([]TeamResult, 0, len(teams)),
		Records:     make([]roster.PlayerRecord, 0, len(teams)*32),
	}

	logger.InfoContext(ctx, "starting roster fetch", "teams", len(teams), "workers", workerCount)

	if s.cfg.DownloadImages {
		if err := s.images.EnsureRoot(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "prepare image root")
			return result, fmt.Errorf("prepare image root: %w", err)
		}
	}

	teamResults, err := s.collectTeams(ctx, logger, runID, teams, workerCount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "collect teams")
		return result, err
	}
	for _, team := range teamResults {
		result.add(team)
	}

	if err := ctx.Err(); err != nil {
		result.DurationMs = time.Since(start).Milliseconds()
		logger.WarnContext(ctx, "roster run cancelled, keeping previous roster file", "error", err)
		return result, fmt.Errorf("roster run cancelled: %w", err)
	}

	logger.InfoContext(ctx, "writing roster file", "players", len(result.Records))
	if err := s.writer.WriteRoster(ctx, result.Records); err != nil {
		result.DurationMs = time.Since(start).Milliseconds()
		span.RecordError(err)
		span.SetStatus(codes.Error, "write roster")
		return result, fmt.Errorf("write roster: %w", err)
	}
	result.OutputWritten = true

	duration := time.Since(start)
	result.DurationMs = duration.Milliseconds()
	s.recorder.ObserveRun(result, duration)

	logger.InfoContext(ctx, "roster run finished",
		"teams", result.TeamCount,
		"teams_success", result.SuccessCount,
		"teams_skipped", result.SkippedCount,
		"teams_failed", result.FailedCount,
		"players", result.PlayerCount,
		"images_downloaded", result.ImageDownloaded,
		"images_failed", result.ImageFailed,
		"duration_ms", result.DurationMs,
	)
	return result, nil
}

func (s *RosterService) collectTeams(
	ctx context.Context,
	logger *logging.Logger,
	runID string,
	teams []roster.TeamName,
	workerCount int,
) ([]TeamResult, error) {
	out := make([]TeamResult, 0, len(teams))
	if len(teams) == 0 {
		return out, nil
	}

	if workerCount <= 1 {
		for index, team := range teams {
			out = append(out, s.safeFetchTeam(ctx, logger, runID, index, team))
		}
		return out, nil
	}

	pool, err := ants.NewPool(workerCount)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	results := make(chan TeamResult, len(teams))
	var workers sync.WaitGroup
	for index, team := range teams {
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()
			results <- s.safeFetchTeam(ctx, logger, runID, index, team)
		}); err != nil {
			workers.Done()
			workers.Wait()
			return nil, fmt.Errorf("submit team %q to worker pool: %w", team, err)
		}
	}

	workers.Wait()
	close(results)

	for row := range results {
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *RosterService) safeFetchTeam(
	ctx context.Context,
	logger *logging.Logger,
	runID string,
	index int,
	team roster.TeamName,
) TeamResult {
	var (
		catcher panics.Catcher
		result  TeamResult
	)
	start := time.Now()
	catcher.Try(func() {
		result = s.fetchTeam(ctx, logger, runID, index, team)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		logger.ErrorContext(ctx, "team fetch panicked, continuing with next team",
			"team", string(team),
			"team_index", index,
			"panic", recovered.String(),
		)
		s.recorder.ObserveTeam(TeamStatusFailed)
		return TeamResult{
			Index:      index,
			Team:       string(team),
			Slug:       roster.TeamSlug(team),
			Status:     TeamStatusFailed,
			DurationMs: time.Since(start).Milliseconds(),
			Message:    fmt.Sprintf("panic: %v", recovered.Value),
		}
	}
	return result
}

func (s *RosterService) fetchTeam(
	ctx context.Context,
	logger *logging.Logger,
	runID string,
	index int,
	team roster.TeamName,
) TeamResult {
	ctx, span := startUsecaseSpan(ctx, "usecase.RosterService.FetchTeam")
	defer span.End()
	span.SetAttributes(attribute.String("roster.team", string(team)))

	start := time.Now()
	teamSlug := roster.TeamSlug(team)
	result := TeamResult{
		Index: index,
		Team:  string(team),
		Slug:  teamSlug,
	}
	finish := func(status TeamStatus, message string) TeamResult {
		result.Status = status
		result.Message = message
		result.DurationMs = time.Since(start).Milliseconds()
		s.recorder.ObserveTeam(status)
		return result
	}

	logger.InfoContext(ctx, "fetching team players", "team", string(team), "team_index", index)

	payload, err := s.provider.SearchPlayersByTeam(ctx, team)
	if err != nil {
		span.RecordError(err)
		logger.ErrorContext(ctx, "fetch team players failed, skipping team",
			"team", string(team),
			"team_index", index,
			"error", err,
		)
		return finish(TeamStatusFailed, err.Error())
	}
	if len(payload.Players) == 0 {
		logger.WarnContext(ctx, "no players found for team, skipping", "team", string(team), "team_index", index)
		return finish(TeamStatusSkipped, ErrNoPlayers.Error())
	}

	if s.cfg.DownloadImages {
		if err := s.images.EnsureTeamDir(ctx, teamSlug); err != nil {
			span.RecordError(err)
			logger.ErrorContext(ctx, "prepare team image folder failed, skipping team",
				"team", string(team),
				"team_index", index,
				"error", err,
			)
			return finish(TeamStatusFailed, fmt.Sprintf("prepare image folder: %v", err))
		}
	}

	s.archivePayload(ctx, logger, runID, team, payload.RawPayload)

	result.Records = make([]roster.PlayerRecord, 0, len(payload.Players))
	result.PlayerResults = make([]PlayerResult, 0, len(payload.Players))
	for _, player := range payload.Players {
		record, playerResult := s.buildPlayer(ctx, logger, team, teamSlug, player)
		result.Records = append(result.Records, record)
		result.PlayerResults = append(result.PlayerResults, playerResult)
	}
	result.Players = len(result.Records)

	logger.InfoContext(ctx, "processed team players",
		"team", string(team),
		"team_index", index,
		"entries", len(payload.Players),
	)
	return finish(TeamStatusSuccess, "")
}

func (s *RosterService) buildPlayer(
	ctx context.Context,
	logger *logging.Logger,
	team roster.TeamName,
	teamSlug string,
	player ExternalPlayer,
) (roster.PlayerRecord, PlayerResult) {
	fileName := roster.PlayerFileName(player.Name, player.ID)
	photoURL := roster.PhotoURL(s.cfg.PhotoURLPrefix, teamSlug, fileName)

	out := PlayerResult{
		PlayerID: player.ID,
		Name:     player.Name,
		PhotoURL: photoURL,
	}
	out.ImageStatus, out.ImagePath, out.Message = s.downloadImage(ctx, logger, team, teamSlug, fileName, player)
	s.recorder.ObserveImage(out.ImageStatus)

	record := roster.PlayerRecord{
		ID:          player.ID,
		Name:        player.Name,
		Position:    player.Position,
		Team:        player.Team,
		PhotoURL:    photoURL,
		Nationality: player.Nationality,
		Number:      roster.ShirtNumber(player.Number),
	}
	return record, out
}

// downloadImage never fails the player: the record keeps its photo url
// whether or not the file made it to disk.
func (s *RosterService) downloadImage(
	ctx context.Context,
	logger *logging.Logger,
	team roster.TeamName,
	teamSlug string,
	fileName string,
	player ExternalPlayer,
) (ImageStatus, string, string) {
	if !s.cfg.DownloadImages {
		return ImageStatusSkipped, "", "image downloads disabled"
	}
	thumb := strings.TrimSpace(player.ThumbURL)
	if thumb == "" {
		return ImageStatusSkipped, "", "no thumbnail"
	}

	body, err := s.provider.FetchPlayerImage(ctx, thumb)
	if err != nil {
		logger.ErrorContext(ctx, "failed to download player image",
			"team", string(team),
			"player", player.Name,
			"url", thumb,
			"error", err,
		)
		return ImageStatusFailed, "", err.Error()
	}
	defer func() {
		_ = body.Close()
	}()

	path, err := s.images.SaveImage(ctx, teamSlug, fileName, body)
	if err != nil {
		logger.ErrorContext(ctx, "failed to save player image",
			"team", string(team),
			"player", player.Name,
			"url", thumb,
			"error", err,
		)
		return ImageStatusFailed, "", err.Error()
	}
	return ImageStatusDownloaded, path, ""
}

func (s *RosterService) archivePayload(
	ctx context.Context,
	logger *logging.Logger,
	runID string,
	team roster.TeamName,
	payload *rawdata.Payload,
) {
	if s.archive == nil || payload == nil {
		return
	}
	item := *payload
	item.RunID = runID
	if err := s.archive.UpsertMany(ctx, []rawdata.Payload{item}); err != nil {
		logger.WarnContext(ctx, "archive raw team payload failed", "team", string(team), "error", err)
	}
}

func normalizeRosterWorkerCount(value int, teamCount int) int {
	if teamCount <= 0 {
		return 1
	}
	if value <= 0 {
		value = 1
	}
	if value > maxRosterWorkers {
		value = maxRosterWorkers
	}
	if value > teamCount {
		value = teamCount
	}
	return value
}

type nopRecorder struct{}

func (nopRecorder) ObserveTeam(TeamStatus) {}

func (nopRecorder) ObserveImage(ImageStatus) {}

func (nopRecorder) ObserveRun(RunResult, time.Duration) {}
