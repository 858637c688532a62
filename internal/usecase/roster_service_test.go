package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/riskibarqy/footybot-roster/internal/domain/rawdata"
	"github.com/riskibarqy/footybot-roster/internal/domain/roster"
	rawdatamock "github.com/riskibarqy/footybot-roster/internal/mocks/domain/rawdata"
	rostermock "github.com/riskibarqy/footybot-roster/internal/mocks/domain/roster"
	"github.com/riskibarqy/footybot-roster/internal/platform/id"
	"github.com/riskibarqy/footybot-roster/internal/platform/logging"
	"github.com/stretchr/testify/mock"
)

const sakaThumb = "https://r2.thesportsdb.com/images/media/player/thumb/saka.jpg"

func TestRosterService_Run_WritesArsenalRosterWithImage(t *testing.T) {
	t.Parallel()

	provider := &stubRosterProvider{
		rosters: map[roster.TeamName]ExternalTeamRoster{
			"Arsenal": {
				Team: "Arsenal",
				Players: []ExternalPlayer{
					{
						ID:          "34145937",
						Name:        "Bukayo Saka",
						Position:    "Right Winger",
						Team:        "Arsenal",
						ThumbURL:    sakaThumb,
						Nationality: "England",
						Number:      "7",
					},
				},
			},
		},
		images: map[string]string{sakaThumb: "jpeg-bytes"},
	}
	images := rostermock.NewImageStore(t)
	writer := rostermock.NewWriter(t)

	images.On("EnsureRoot", mock.Anything).Return(nil).Once()
	images.On("EnsureTeamDir", mock.Anything, "arsenal").Return(nil).Once()
	images.
		On("SaveImage", mock.Anything, "arsenal", "bukayo-saka.jpg", mock.MatchedBy(func(body io.Reader) bool { return body != nil })).
		Return("/data/images/arsenal/bukayo-saka.jpg", nil).
		Once()

	expected := []roster.PlayerRecord{
		{
			ID:          "34145937",
			Name:        "Bukayo Saka",
			Position:    "Right Winger",
			Team:        "Arsenal",
			PhotoURL:    "/images/arsenal/bukayo-saka.jpg",
			Nationality: "England",
			Number:      "7",
		},
	}
	writer.
		On("WriteRoster", mock.Anything, mock.MatchedBy(func(records []roster.PlayerRecord) bool {
			return reflect.DeepEqual(records, expected)
		})).
		Return(nil).
		Once()

	svc := newTestRosterService(provider, images, writer, nil, nil, RosterConfig{
		Teams:          []roster.TeamName{"Arsenal"},
		DownloadImages: true,
		MaxWorkers:     1,
	})

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run roster: %v", err)
	}
	if result.RunID != "run-1" {
		t.Fatalf("unexpected run id: %s", result.RunID)
	}
	if !result.OutputWritten {
		t.Fatalf("expected output to be written")
	}
	if result.SuccessCount != 1 || result.PlayerCount != 1 || result.ImageDownloaded != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if result.Partial() {
		t.Fatalf("expected a complete run")
	}
	player := result.Teams[0].PlayerResults[0]
	if player.ImageStatus != ImageStatusDownloaded || player.ImagePath != "/data/images/arsenal/bukayo-saka.jpg" {
		t.Fatalf("unexpected player result: %+v", player)
	}
	if got := provider.closedBodies.Load(); got != 1 {
		t.Fatalf("expected image body to be closed once, got %d", got)
	}
}

func TestRosterService_Run_FailedTeamDoesNotAbortRun(t *testing.T) {
	t.Parallel()

	provider := &stubRosterProvider{
		rosters: map[roster.TeamName]ExternalTeamRoster{
			"Arsenal":     singlePlayerRoster("Arsenal", "1", "Bukayo Saka"),
			"Aston Villa": singlePlayerRoster("Aston Villa", "3", "Ollie Watkins"),
		},
		errs: map[roster.TeamName]error{
			"Bournemouth": errors.New("dial tcp: connection refused"),
		},
	}
	writer := rostermock.NewWriter(t)
	var written []roster.PlayerRecord
	writer.
		On("WriteRoster", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { written = args.Get(1).([]roster.PlayerRecord) }).
		Return(nil).
		Once()

	svc := newTestRosterService(provider, nil, writer, nil, nil, RosterConfig{
		Teams: []roster.TeamName{"Arsenal", "Bournemouth", "Aston Villa"},
	})

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run roster: %v", err)
	}
	if result.SuccessCount != 2 || result.FailedCount != 1 {
		t.Fatalf("unexpected team counts: success=%d failed=%d", result.SuccessCount, result.FailedCount)
	}
	if !result.Partial() {
		t.Fatalf("expected partial run")
	}
	if result.Teams[1].Status != TeamStatusFailed || !strings.Contains(result.Teams[1].Message, "connection refused") {
		t.Fatalf("unexpected failed team result: %+v", result.Teams[1])
	}
	if len(written) != 2 || written[0].Name != "Bukayo Saka" || written[1].Name != "Ollie Watkins" {
		t.Fatalf("unexpected written records: %+v", written)
	}
}

func TestRosterService_Run_KeepsTeamOrderWithWorkers(t *testing.T) {
	t.Parallel()

	teams := []roster.TeamName{"Arsenal", "Aston Villa", "Bournemouth", "Brentford", "Brighton", "Burnley"}
	provider := &stubRosterProvider{
		rosters: map[roster.TeamName]ExternalTeamRoster{},
		delays:  map[roster.TeamName]time.Duration{},
	}
	for i, team := range teams {
		provider.rosters[team] = singlePlayerRoster(team, fmt.Sprintf("%d", i), "Player "+string(team))
		// Earlier teams finish last.
		provider.delays[team] = time.Duration(len(teams)-i) * 5 * time.Millisecond
	}
	writer := rostermock.NewWriter(t)
	var written []roster.PlayerRecord
	writer.
		On("WriteRoster", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { written = args.Get(1).([]roster.PlayerRecord) }).
		Return(nil).
		Once()

	svc := newTestRosterService(provider, nil, writer, nil, nil, RosterConfig{
		Teams:      teams,
		MaxWorkers: 4,
	})

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run roster: %v", err)
	}
	if result.WorkerCount != 4 {
		t.Fatalf("unexpected worker count: %d", result.WorkerCount)
	}
	if len(written) != len(teams) {
		t.Fatalf("unexpected record count: got=%d want=%d", len(written), len(teams))
	}
	for i, team := range teams {
		if written[i].Team != string(team) {
			t.Fatalf("record %d out of order: got=%s want=%s", i, written[i].Team, team)
		}
		if result.Teams[i].Index != i {
			t.Fatalf("team result %d has index %d", i, result.Teams[i].Index)
		}
	}
}

func TestRosterService_Run_SkipsDownloadWithoutThumbnail(t *testing.T) {
	t.Parallel()

	provider := &stubRosterProvider{
		rosters: map[roster.TeamName]ExternalTeamRoster{
			"Chelsea": singlePlayerRoster("Chelsea", "9", "Cole Palmer"),
		},
	}
	images := rostermock.NewImageStore(t)
	writer := rostermock.NewWriter(t)
	images.On("EnsureRoot", mock.Anything).Return(nil).Once()
	images.On("EnsureTeamDir", mock.Anything, "chelsea").Return(nil).Once()
	writer.
		On("WriteRoster", mock.Anything, mock.MatchedBy(func(records []roster.PlayerRecord) bool {
			return len(records) == 1 && records[0].PhotoURL == "/images/chelsea/cole-palmer.jpg"
		})).
		Return(nil).
		Once()

	svc := newTestRosterService(provider, images, writer, nil, nil, RosterConfig{
		Teams:          []roster.TeamName{"Chelsea"},
		DownloadImages: true,
	})

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run roster: %v", err)
	}
	if got := provider.imageCalls.Load(); got != 0 {
		t.Fatalf("expected no image requests, got %d", got)
	}
	if result.ImageSkipped != 1 || result.ImageDownloaded != 0 {
		t.Fatalf("unexpected image counts: %+v", result)
	}
}

func TestRosterService_Run_ImageFailureKeepsRecord(t *testing.T) {
	t.Parallel()

	team := singlePlayerRoster("Everton", "11", "Jordan Pickford")
	team.Players[0].ThumbURL = "https://r2.thesportsdb.com/images/media/player/thumb/pickford.jpg"
	provider := &stubRosterProvider{
		rosters: map[roster.TeamName]ExternalTeamRoster{"Everton": team},
		imageErrs: map[string]error{
			team.Players[0].ThumbURL: errors.New("unexpected image status 404"),
		},
	}
	images := rostermock.NewImageStore(t)
	writer := rostermock.NewWriter(t)
	images.On("EnsureRoot", mock.Anything).Return(nil).Once()
	images.On("EnsureTeamDir", mock.Anything, "everton").Return(nil).Once()
	writer.
		On("WriteRoster", mock.Anything, mock.MatchedBy(func(records []roster.PlayerRecord) bool {
			return len(records) == 1 && records[0].PhotoURL == "/images/everton/jordan-pickford.jpg"
		})).
		Return(nil).
		Once()

	svc := newTestRosterService(provider, images, writer, nil, nil, RosterConfig{
		Teams:          []roster.TeamName{"Everton"},
		DownloadImages: true,
	})

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run roster: %v", err)
	}
	if result.ImageFailed != 1 || result.PlayerCount != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if result.Teams[0].Status != TeamStatusSuccess {
		t.Fatalf("image failure must not fail the team: %+v", result.Teams[0])
	}
}

func TestRosterService_Run_PassesSquadNumberThrough(t *testing.T) {
	t.Parallel()

	provider := &stubRosterProvider{
		rosters: map[roster.TeamName]ExternalTeamRoster{
			"Arsenal": {
				Team: "Arsenal",
				Players: []ExternalPlayer{
					{ID: "1", Name: "Blank Number", Team: "Arsenal", Number: " "},
					{ID: "2", Name: "Padded Number", Team: "Arsenal", Number: "7 "},
					{ID: "3", Name: "No Number", Team: "Arsenal"},
				},
			},
		},
	}
	writer := rostermock.NewWriter(t)
	var written []roster.PlayerRecord
	writer.
		On("WriteRoster", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { written = args.Get(1).([]roster.PlayerRecord) }).
		Return(nil).
		Once()

	svc := newTestRosterService(provider, nil, writer, nil, nil, RosterConfig{
		Teams: []roster.TeamName{"Arsenal"},
	})

	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("run roster: %v", err)
	}
	want := []roster.ShirtNumber{" ", "7 ", ""}
	if len(written) != len(want) {
		t.Fatalf("unexpected record count: %d", len(written))
	}
	for i, record := range written {
		if record.Number != want[i] {
			t.Fatalf("record %s: number=%q want %q", record.Name, record.Number, want[i])
		}
	}
}

func TestRosterService_Run_EmptyTeamIsSkipped(t *testing.T) {
	t.Parallel()

	provider := &stubRosterProvider{
		rosters: map[roster.TeamName]ExternalTeamRoster{
			"Fulham": {Team: "Fulham"},
		},
	}
	writer := rostermock.NewWriter(t)
	writer.
		On("WriteRoster", mock.Anything, mock.MatchedBy(func(records []roster.PlayerRecord) bool {
			return records != nil && len(records) == 0
		})).
		Return(nil).
		Once()

	svc := newTestRosterService(provider, nil, writer, nil, nil, RosterConfig{
		Teams: []roster.TeamName{"Fulham"},
	})

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run roster: %v", err)
	}
	if result.SkippedCount != 1 || result.Teams[0].Status != TeamStatusSkipped {
		t.Fatalf("expected skipped team: %+v", result.Teams)
	}
	if !result.OutputWritten {
		t.Fatalf("expected empty roster to be written")
	}
}

func TestRosterService_Run_CancelledContextKeepsPreviousFile(t *testing.T) {
	t.Parallel()

	provider := &stubRosterProvider{
		rosters: map[roster.TeamName]ExternalTeamRoster{
			"Liverpool": singlePlayerRoster("Liverpool", "11", "Mohamed Salah"),
		},
	}
	writer := rostermock.NewWriter(t)

	svc := newTestRosterService(provider, nil, writer, nil, nil, RosterConfig{
		Teams: []roster.TeamName{"Liverpool"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if result.OutputWritten {
		t.Fatalf("cancelled run must not write output")
	}
	writer.AssertNotCalled(t, "WriteRoster", mock.Anything, mock.Anything)
}

func TestRosterService_Run_RecoversFromTeamPanic(t *testing.T) {
	t.Parallel()

	provider := &stubRosterProvider{
		rosters: map[roster.TeamName]ExternalTeamRoster{
			"Arsenal":   singlePlayerRoster("Arsenal", "1", "Bukayo Saka"),
			"Newcastle": singlePlayerRoster("Newcastle", "2", "Alexander Isak"),
		},
		panics: map[roster.TeamName]bool{"Brentford": true},
	}
	writer := rostermock.NewWriter(t)
	writer.
		On("WriteRoster", mock.Anything, mock.MatchedBy(func(records []roster.PlayerRecord) bool {
			return len(records) == 2
		})).
		Return(nil).
		Once()

	svc := newTestRosterService(provider, nil, writer, nil, nil, RosterConfig{
		Teams:      []roster.TeamName{"Arsenal", "Brentford", "Newcastle"},
		MaxWorkers: 3,
	})

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run roster: %v", err)
	}
	panicked := result.Teams[1]
	if panicked.Status != TeamStatusFailed || !strings.HasPrefix(panicked.Message, "panic:") {
		t.Fatalf("unexpected panicked team result: %+v", panicked)
	}
	if panicked.Slug != "brentford" {
		t.Fatalf("unexpected slug: %s", panicked.Slug)
	}
}

func TestRosterService_Run_RecordCountMatchesSuccessfulTeams(t *testing.T) {
	t.Parallel()

	provider := &stubRosterProvider{
		rosters: map[roster.TeamName]ExternalTeamRoster{
			"Arsenal": {
				Team: "Arsenal",
				Players: []ExternalPlayer{
					{ID: "1", Name: "David Raya", Team: "Arsenal", Number: "22"},
					{ID: "2", Name: "William Saliba", Team: "Arsenal", Number: "2"},
				},
			},
			"Wolves": singlePlayerRoster("Wolves", "3", "Jose Sa"),
		},
		errs: map[roster.TeamName]error{"Leeds": errors.New("timeout")},
	}
	writer := rostermock.NewWriter(t)
	writer.On("WriteRoster", mock.Anything, mock.Anything).Return(nil).Once()
	recorder := &countingRecorder{}

	svc := newTestRosterService(provider, nil, writer, nil, recorder, RosterConfig{
		Teams:      []roster.TeamName{"Arsenal", "Leeds", "Sunderland", "Wolves"},
		MaxWorkers: 2,
	})

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run roster: %v", err)
	}
	sum := 0
	for _, team := range result.Teams {
		if team.Status == TeamStatusSuccess {
			sum += team.Players
		}
	}
	if result.PlayerCount != sum || len(result.Records) != sum || sum != 3 {
		t.Fatalf("record count mismatch: player_count=%d records=%d sum=%d", result.PlayerCount, len(result.Records), sum)
	}
	if result.SuccessCount+result.SkippedCount+result.FailedCount != result.TeamCount {
		t.Fatalf("team statuses do not add up: %+v", result)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if recorder.teams[TeamStatusSuccess] != 2 || recorder.teams[TeamStatusFailed] != 1 || recorder.teams[TeamStatusSkipped] != 1 {
		t.Fatalf("unexpected recorded team statuses: %+v", recorder.teams)
	}
	if recorder.runs != 1 {
		t.Fatalf("expected one recorded run, got %d", recorder.runs)
	}
}

func TestRosterService_Run_ArchivesPayloadWithRunID(t *testing.T) {
	t.Parallel()

	team := singlePlayerRoster("Arsenal", "1", "Bukayo Saka")
	team.RawPayload = &rawdata.Payload{
		Source:      "thesportsdb",
		EntityType:  "team_players",
		EntityKey:   "Arsenal",
		PayloadJSON: `{"player":[]}`,
		PayloadHash: "abc",
	}
	provider := &stubRosterProvider{
		rosters: map[roster.TeamName]ExternalTeamRoster{"Arsenal": team},
	}
	archive := rawdatamock.NewRepository(t)
	writer := rostermock.NewWriter(t)
	archive.
		On("UpsertMany", mock.Anything, mock.MatchedBy(func(items []rawdata.Payload) bool {
			return len(items) == 1 && items[0].RunID == "run-1" && items[0].EntityKey == "Arsenal"
		})).
		Return(errors.New("connection reset")).
		Once()
	writer.On("WriteRoster", mock.Anything, mock.Anything).Return(nil).Once()

	svc := newTestRosterService(provider, nil, writer, archive, nil, RosterConfig{
		Teams: []roster.TeamName{"Arsenal"},
	})

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("archive failure must not fail the run: %v", err)
	}
	if team.RawPayload.RunID != "" {
		t.Fatalf("provider payload must not be mutated")
	}
	if result.SuccessCount != 1 {
		t.Fatalf("unexpected success count: %d", result.SuccessCount)
	}
}

func TestRosterService_Run_WriteFailure(t *testing.T) {
	t.Parallel()

	provider := &stubRosterProvider{
		rosters: map[roster.TeamName]ExternalTeamRoster{
			"Arsenal": singlePlayerRoster("Arsenal", "1", "Bukayo Saka"),
		},
	}
	writer := rostermock.NewWriter(t)
	writer.On("WriteRoster", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()

	svc := newTestRosterService(provider, nil, writer, nil, nil, RosterConfig{
		Teams: []roster.TeamName{"Arsenal"},
	})

	result, err := svc.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected write error, got %v", err)
	}
	if result.OutputWritten {
		t.Fatalf("output must not be marked written")
	}
}

func TestRosterService_Run_ImageRootFailureAbortsRun(t *testing.T) {
	t.Parallel()

	provider := &stubRosterProvider{}
	images := rostermock.NewImageStore(t)
	writer := rostermock.NewWriter(t)
	images.On("EnsureRoot", mock.Anything).Return(errors.New("permission denied")).Once()

	svc := newTestRosterService(provider, images, writer, nil, nil, RosterConfig{
		Teams:          []roster.TeamName{"Arsenal"},
		DownloadImages: true,
	})

	_, err := svc.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "prepare image root") {
		t.Fatalf("expected image root error, got %v", err)
	}
	if got := provider.searchCalls.Load(); got != 0 {
		t.Fatalf("expected no provider calls, got %d", got)
	}
}

func TestRosterService_Run_RequiresDependencies(t *testing.T) {
	t.Parallel()

	svc := newTestRosterService(nil, nil, nil, nil, nil, RosterConfig{})
	if _, err := svc.Run(context.Background()); !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected dependency error, got %v", err)
	}

	svc = newTestRosterService(&stubRosterProvider{}, nil, rostermock.NewWriter(t), nil, nil, RosterConfig{DownloadImages: true})
	if _, err := svc.Run(context.Background()); !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected dependency error for missing image store, got %v", err)
	}
}

func TestNormalizeRosterWorkerCount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		value int
		teams int
		want  int
	}{
		{name: "no teams", value: 4, teams: 0, want: 1},
		{name: "zero workers", value: 0, teams: 20, want: 1},
		{name: "negative workers", value: -3, teams: 20, want: 1},
		{name: "within bounds", value: 4, teams: 20, want: 4},
		{name: "capped by team count", value: 8, teams: 3, want: 3},
		{name: "capped by max", value: 64, teams: 20, want: maxRosterWorkers},
	}
	for _, tc := range cases {
		if got := normalizeRosterWorkerCount(tc.value, tc.teams); got != tc.want {
			t.Fatalf("%s: got=%d want=%d", tc.name, got, tc.want)
		}
	}
}

func newTestRosterService(
	provider RosterProvider,
	images roster.ImageStore,
	writer roster.Writer,
	archive rawdata.Repository,
	recorder RunRecorder,
	cfg RosterConfig,
) *RosterService {
	return NewRosterService(provider, images, writer, archive, recorder, id.Static("run-1"), cfg, logging.NewNop())
}

func singlePlayerRoster(team roster.TeamName, playerID, name string) ExternalTeamRoster {
	return ExternalTeamRoster{
		Team: team,
		Players: []ExternalPlayer{
			{ID: playerID, Name: name, Team: string(team)},
		},
	}
}

type stubRosterProvider struct {
	rosters   map[roster.TeamName]ExternalTeamRoster
	errs      map[roster.TeamName]error
	panics    map[roster.TeamName]bool
	delays    map[roster.TeamName]time.Duration
	images    map[string]string
	imageErrs map[string]error

	searchCalls  atomic.Int32
	imageCalls   atomic.Int32
	closedBodies atomic.Int32
}

func (p *stubRosterProvider) SearchPlayersByTeam(ctx context.Context, team roster.TeamName) (ExternalTeamRoster, error) {
	p.searchCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return ExternalTeamRoster{}, err
	}
	if delay := p.delays[team]; delay > 0 {
		time.Sleep(delay)
	}
	if p.panics[team] {
		panic("unexpected provider state for " + string(team))
	}
	if err := p.errs[team]; err != nil {
		return ExternalTeamRoster{}, err
	}
	return p.rosters[team], nil
}

func (p *stubRosterProvider) FetchPlayerImage(_ context.Context, thumbURL string) (io.ReadCloser, error) {
	p.imageCalls.Add(1)
	if err := p.imageErrs[thumbURL]; err != nil {
		return nil, err
	}
	return &trackedBody{Reader: strings.NewReader(p.images[thumbURL]), closed: &p.closedBodies}, nil
}

type trackedBody struct {
	io.Reader
	closed *atomic.Int32
}

func (b *trackedBody) Close() error {
	b.closed.Add(1)
	return nil
}

type countingRecorder struct {
	mu     sync.Mutex
	teams  map[TeamStatus]int
	images map[ImageStatus]int
	runs   int
}

func (r *countingRecorder) ObserveTeam(status TeamStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.teams == nil {
		r.teams = map[TeamStatus]int{}
	}
	r.teams[status]++
}

func (r *countingRecorder) ObserveImage(status ImageStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.images == nil {
		r.images = map[ImageStatus]int{}
	}
	r.images[status]++
}

func (r *countingRecorder) ObserveRun(RunResult, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
}
