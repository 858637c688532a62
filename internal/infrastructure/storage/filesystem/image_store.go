package filesystem

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/riskibarqy/footybot-roster/internal/domain/roster"
)

const dirPerm = 0o755

// ImageStore writes player images to <root>/<team-slug>/<file>.
type ImageStore struct {
	root string
}

func NewImageStore(root string) *ImageStore {
	return &ImageStore{root: filepath.Clean(strings.TrimSpace(root))}
}

func (s *ImageStore) Root() string {
	return s.root
}

func (s *ImageStore) EnsureRoot(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.root, dirPerm); err != nil {
		return fmt.Errorf("create image root %s: %w", s.root, err)
	}
	return nil
}

func (s *ImageStore) EnsureTeamDir(ctx context.Context, teamSlug string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validatePathSegment("team slug", teamSlug); err != nil {
		return err
	}
	dir := filepath.Join(s.root, teamSlug)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create team image folder %s: %w", dir, err)
	}
	return nil
}

// SaveImage streams body to disk, replacing any previous file of the same
// name. A failed copy removes the partial file.
func (s *ImageStore) SaveImage(ctx context.Context, teamSlug, fileName string, body io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validatePathSegment("team slug", teamSlug); err != nil {
		return "", err
	}
	if err := validatePathSegment("file name", fileName); err != nil {
		return "", err
	}

	target := roster.ImagePath(s.root, teamSlug, fileName)
	file, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create image file %s: %w", target, err)
	}

	_, copyErr := io.Copy(file, contextReader{ctx: ctx, r: body})
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(target)
		if copyErr != nil {
			return "", fmt.Errorf("write image file %s: %w", target, copyErr)
		}
		return "", fmt.Errorf("close image file %s: %w", target, closeErr)
	}

	return target, nil
}

func validatePathSegment(label, value string) error {
	switch {
	case value == "", value == ".", value == "..":
		return fmt.Errorf("invalid %s %q", label, value)
	case strings.ContainsAny(value, `/\`):
		return fmt.Errorf("%s %q must not contain path separators", label, value)
	}
	return nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (r contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
