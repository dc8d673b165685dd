package store

import (
	"database/sql"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"

	"github.com/xiy/memory-assistant/internal/errs"
	"github.com/xiy/memory-assistant/pkg/types"
)

const selectMemoryCols = `SELECT id, kind, content, embedding, created_at,
       COALESCE(source, ''), COALESCE(confidence, 0), COALESCE(topic, ''), COALESCE(metadata, '')
FROM memories`

type scanner interface {
	Scan(dest ...any) error
}

func collectMemories(rows *sql.Rows) ([]types.MemoryRecord, error) {
	defer rows.Close()
	var items []types.MemoryRecord
	for rows.Next() {
		rec, err := scanMemoryRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(errs.ErrStorageUnavailable, "iterate memories", goerr.V("cause", err.Error()))
	}
	return items, nil
}

func scanMemoryRow(sc scanner) (types.MemoryRecord, error) {
	var (
		rec      types.MemoryRecord
		kind     string
		embBlob  []byte
		ts       float64
		metaJSON string
	)
	if err := sc.Scan(
		&rec.ID,
		&kind,
		&rec.Content,
		&embBlob,
		&ts,
		&rec.Source,
		&rec.Confidence,
		&rec.Topic,
		&metaJSON,
	); err != nil {
		return rec, goerr.Wrap(errs.ErrStorageUnavailable, "scan memory", goerr.V("cause", err.Error()))
	}

	k, err := types.ParseKind(kind)
	if err != nil {
		return rec, goerr.Wrap(errs.ErrInvalidConfig, "stored memory has unknown kind", goerr.V("id", rec.ID), goerr.V("kind", kind))
	}
	rec.Kind = k
	rec.CreatedAt = fromEpoch(ts)

	vec, err := decodeEmbedding(embBlob)
	if err != nil {
		return rec, goerr.Wrap(err, "decode memory", goerr.V("id", rec.ID))
	}
	rec.Embedding = vec

	meta, err := decodeMetadata(metaJSON)
	if err != nil {
		return rec, goerr.Wrap(err, "decode memory", goerr.V("id", rec.ID))
	}
	rec.Metadata = meta
	return rec, nil
}

func decodeEmbedding(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	var vec []float32
	if err := json.Unmarshal(blob, &vec); err != nil {
		return nil, goerr.Wrap(errs.ErrStorageUnavailable, "corrupt embedding blob", goerr.V("cause", err.Error()))
	}
	return vec, nil
}

// decodeMetadata accepts the structured form and tolerates extra keys
// written by older versions.
func decodeMetadata(raw string) (types.TruthMeta, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return types.TruthMeta{}, nil
	}
	var meta types.TruthMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return types.TruthMeta{}, goerr.Wrap(errs.ErrStorageUnavailable, "corrupt metadata", goerr.V("cause", err.Error()))
	}
	return meta, nil
}

func kindFilter(kinds []types.Kind) (string, []any, error) {
	seen := make(map[types.Kind]struct{}, len(kinds))
	args := make([]any, 0, len(kinds))
	for _, k := range kinds {
		if !k.Persisted() {
			return "", nil, goerr.Wrap(errs.ErrInvalidConfig, "unknown memory kind", goerr.V("kind", string(k)))
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		args = append(args, string(k))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	return "kind IN (" + placeholders + ")", args, nil
}

func nullableText(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func toEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromEpoch(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}
