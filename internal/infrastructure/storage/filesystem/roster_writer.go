package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/riskibarqy/footybot-roster/internal/domain/roster"
	"github.com/valyala/bytebufferpool"
)

const filePerm = 0o644

// rosterJSON matches JSON.stringify(records, null, 2): two-space indent and
// no HTML escaping.
var rosterJSON = jsoniter.Config{
	EscapeHTML:             false,
	IndentionStep:          2,
	ValidateJsonRawMessage: true,
}.Froze()

// RosterWriter overwrites a single JSON file with the full roster.
type RosterWriter struct {
	path string
}

func NewRosterWriter(path string) *RosterWriter {
	return &RosterWriter{path: filepath.Clean(strings.TrimSpace(path))}
}

func (w *RosterWriter) Path() string {
	return w.path
}

func (w *RosterWriter) WriteRoster(ctx context.Context, records []roster.PlayerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if records == nil {
		records = []roster.PlayerRecord{}
	}
	for i, record := range records {
		if err := record.Validate(); err != nil {
			return fmt.Errorf("invalid roster record %d (id=%s): %w", i, record.ID, err)
		}
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := encodeRoster(buf, records); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(w.path), dirPerm); err != nil {
		return fmt.Errorf("create roster output folder: %w", err)
	}
	if err := os.WriteFile(w.path, buf.B, filePerm); err != nil {
		return fmt.Errorf("write roster file %s: %w", w.path, err)
	}
	return nil
}

func encodeRoster(buf *bytebufferpool.ByteBuffer, records []roster.PlayerRecord) error {
	stream := rosterJSON.BorrowStream(buf)
	defer rosterJSON.ReturnStream(stream)

	stream.WriteVal(records)
	if stream.Error != nil {
		return fmt.Errorf("encode roster: %w", stream.Error)
	}
	if err := stream.Flush(); err != nil {
		return fmt.Errorf("flush roster encoder: %w", err)
	}
	return nil
}
