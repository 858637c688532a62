package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/footybot-roster/internal/domain/rawdata"
	qb "github.com/riskibarqy/footybot-roster/internal/platform/querybuilder"
)

const rawPayloadTable = "roster_raw_payloads"

const upsertRawPayloadSuffix = `ON CONFLICT (source, entity_type, entity_key)
DO UPDATE SET
    run_id = EXCLUDED.run_id,
    payload = EXCLUDED.payload,
    payload_hash = EXCLUDED.payload_hash,
    fetched_at = EXCLUDED.fetched_at,
    ingested_at = NOW()`

type RawDataRepository struct {
	db *sqlx.DB
}

func NewRawDataRepository(db *sqlx.DB) *RawDataRepository {
	return &RawDataRepository{db: db}
}

func (r *RawDataRepository) UpsertMany(ctx context.Context, items []rawdata.Payload) error {
	if len(items) == 0 {
		return nil
	}

	query, args, err := buildUpsertRawPayloads(items)
	if err != nil {
		return fmt.Errorf("build upsert raw payload query: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx upsert raw payloads: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert raw payloads count=%d: %w", len(items), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert raw payloads tx: %w", err)
	}

	return nil
}

// buildUpsertRawPayloads keeps the last payload per conflict key; Postgres
// refuses to update one row twice in a single statement.
func buildUpsertRawPayloads(items []rawdata.Payload) (string, []any, error) {
	positions := make(map[string]int, len(items))
	models := make([]rawPayloadInsertModel, 0, len(items))
	for _, item := range items {
		key := item.Source + "\x00" + item.EntityType + "\x00" + item.EntityKey
		model := rawPayloadInsertModel{
			Source:      item.Source,
			EntityType:  item.EntityType,
			EntityKey:   item.EntityKey,
			RunID:       item.RunID,
			Payload:     item.PayloadJSON,
			PayloadHash: item.PayloadHash,
			FetchedAt:   fetchedAtOrNow(item.FetchedAt),
		}
		if pos, ok := positions[key]; ok {
			models[pos] = model
			continue
		}
		positions[key] = len(models)
		models = append(models, model)
	}

	return qb.InsertModels(rawPayloadTable, models, upsertRawPayloadSuffix)
}

func fetchedAtOrNow(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC()
	}
	return value.UTC()
}

type rawPayloadInsertModel struct {
	Source      string    `db:"source"`
	EntityType  string    `db:"entity_type"`
	EntityKey   string    `db:"entity_key"`
	RunID       string    `db:"run_id"`
	Payload     string    `db:"payload"`
	PayloadHash string    `db:"payload_hash"`
	FetchedAt   time.Time `db:"fetched_at"`
}
