package roster

import (
	"context"
	"io"
)

// ImageStore persists player images below a root folder.
type ImageStore interface {
	EnsureRoot(ctx context.Context) error
	EnsureTeamDir(ctx context.Context, teamSlug string) error
	SaveImage(ctx context.Context, teamSlug, fileName string, body io.Reader) (string, error)
}

// Writer replaces the aggregate roster file with the given records.
type Writer interface {
	WriteRoster(ctx context.Context, records []PlayerRecord) error
}
