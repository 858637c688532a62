package usecase

import "github.com/riskibarqy/footybot-roster/internal/domain/roster"

type TeamStatus string

const (
	TeamStatusSuccess TeamStatus = "success"
	TeamStatusSkipped TeamStatus = "skipped"
	TeamStatusFailed  TeamStatus = "failed"
)

type ImageStatus string

const (
	ImageStatusDownloaded ImageStatus = "downloaded"
	ImageStatusSkipped    ImageStatus = "skipped"
	ImageStatusFailed     ImageStatus = "failed"
)

// RunResult summarizes one roster run. Records holds the aggregate written to
// disk, in configured team order.
type RunResult struct {
	RunID           string                `json:"run_id"`
	TeamCount       int                   `json:"team_count"`
	SuccessCount    int                   `json:"success_count"`
	SkippedCount    int                   `json:"skipped_count"`
	FailedCount     int                   `json:"failed_count"`
	PlayerCount     int                   `json:"player_count"`
	ImageDownloaded int                   `json:"image_downloaded"`
	ImageSkipped    int                   `json:"image_skipped"`
	ImageFailed     int                   `json:"image_failed"`
	WorkerCount     int                   `json:"worker_count"`
	DurationMs      int64                 `json:"duration_ms"`
	OutputWritten   bool                  `json:"output_written"`
	Teams           []TeamResult          `json:"teams"`
	Records         []roster.PlayerRecord `json:"-"`
}

// Partial reports whether at least one team contributed no records.
func (r RunResult) Partial() bool {
	return r.SkippedCount > 0 || r.FailedCount > 0
}

type TeamResult struct {
	Index         int                   `json:"index"`
	Team          string                `json:"team"`
	Slug          string                `json:"slug"`
	Status        TeamStatus            `json:"status"`
	Players       int                   `json:"players"`
	DurationMs    int64                 `json:"duration_ms"`
	Message       string                `json:"message,omitempty"`
	PlayerResults []PlayerResult        `json:"player_results,omitempty"`
	Records       []roster.PlayerRecord `json:"-"`
}

type PlayerResult struct {
	PlayerID    string      `json:"player_id"`
	Name        string      `json:"name"`
	PhotoURL    string      `json:"photo_url"`
	ImageStatus ImageStatus `json:"image_status"`
	ImagePath   string      `json:"image_path,omitempty"`
	Message     string      `json:"message,omitempty"`
}

func (r *RunResult) add(team TeamResult) {
	r.Teams = append(r.Teams, team)
	switch team.Status {
	case TeamStatusSuccess:
		r.SuccessCount++
	case TeamStatusSkipped:
		r.SkippedCount++
	default:
		r.FailedCount++
	}
	r.Records = append(r.Records, team.Records...)
	r.PlayerCount += len(team.Records)
	for _, player := range team.PlayerResults {
		switch player.ImageStatus {
		case ImageStatusDownloaded:
			r.ImageDownloaded++
		case ImageStatusFailed:
			r.ImageFailed++
		default:
			r.ImageSkipped++
		}
	}
}
