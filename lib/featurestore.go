package lib

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// FeatureStore persists an extracted feature set under a name such as
// raw_instrument_features_VID92_layer10.
type FeatureStore interface {
	Save(ctx context.Context, name string, set *FeatureSet) error
	Load(ctx context.Context, name string) (*FeatureSet, error)
}

// FeatureSetName is the artifact name for a video and backbone layer.
func FeatureSetName(prefix string, video string, layer int) string {
	return fmt.Sprintf("%s_%s_layer%d", prefix, video, layer)
}

// JSONFeatureStore writes one {Dir}/{name}.json file per set.
type JSONFeatureStore struct {
	Dir string
}

func (s JSONFeatureStore) Path(name string) string {
	return filepath.Join(s.Dir, name+".json")
}

func (s JSONFeatureStore) Save(_ context.Context, name string, set *FeatureSet) error {
	return WriteJsonFile(s.Path(name), set)
}

func (s JSONFeatureStore) Load(_ context.Context, name string) (*FeatureSet, error) {
	var set FeatureSet
	if err := ReadJsonFile(s.Path(name), &set); err != nil {
		return nil, err
	}
	return &set, nil
}

const featureSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS instrument_features (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	video TEXT NOT NULL,
	layer INTEGER NOT NULL,
	row_index INTEGER NOT NULL,
	frame_index INTEGER NOT NULL,
	label TEXT NOT NULL,
	embedding vector NOT NULL
);
CREATE INDEX IF NOT EXISTS instrument_features_name ON instrument_features (name);
`

// PostgresFeatureStore keeps feature rows in a pgvector table.
type PostgresFeatureStore struct {
	pool *pgxpool.Pool
}

func NewPostgresFeatureStore(ctx context.Context, dsn string) (*PostgresFeatureStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, featureSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create feature schema: %w", err)
	}
	return &PostgresFeatureStore{pool: pool}, nil
}

func (s *PostgresFeatureStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Save replaces every row stored under name.
func (s *PostgresFeatureStore) Save(ctx context.Context, name string, set *FeatureSet) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM instrument_features WHERE name = $1", name); err != nil {
			return fmt.Errorf("failed to clear feature set %s: %w", name, err)
		}
		batch := &pgx.Batch{}
		for i, features := range set.Features {
			batch.Queue(
				`INSERT INTO instrument_features
				(name, video, layer, row_index, frame_index, label, embedding)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				name, set.Video, set.Layer, i, set.FrameIndices[i], set.Labels[i], pgvector.NewVector(features))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to store feature set %s: %w", name, err)
		}
		return nil
	})
}

func (s *PostgresFeatureStore) Load(ctx context.Context, name string) (*FeatureSet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT video, layer, frame_index, label, embedding
		FROM instrument_features WHERE name = $1 ORDER BY row_index`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load feature set %s: %w", name, err)
	}
	defer rows.Close()

	set := &FeatureSet{}
	for rows.Next() {
		var frameIndex int
		var label string
		var embedding pgvector.Vector
		if err := rows.Scan(&set.Video, &set.Layer, &frameIndex, &label, &embedding); err != nil {
			return nil, fmt.Errorf("failed to scan feature row: %w", err)
		}
		set.Features = append(set.Features, embedding.Slice())
		set.Labels = append(set.Labels, label)
		set.FrameIndices = append(set.FrameIndices, frameIndex)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if set.Len() == 0 {
		return nil, fmt.Errorf("%w: no rows stored under %s", ErrNoFeatures, name)
	}
	return set, nil
}
