package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/tanpawarit/bizai-insight/forecast/model"
)

var _ Store = (*PostgresStore)(nil)

type PostgresConfig struct {
	DSN         string        `envconfig:"DSN" split_words:"true"`
	DialTimeout time.Duration `envconfig:"DIAL_TIMEOUT" split_words:"true" default:"5s"`
}

func (c PostgresConfig) Enabled() bool {
	return strings.TrimSpace(c.DSN) != ""
}

type artifactRow struct {
	bun.BaseModel `bun:"table:forecast_artifacts,alias:fa"`

	ID           string             `bun:"id,pk"`
	BusinessID   string             `bun:"business_id,notnull"`
	Seq          int64              `bun:"seq,notnull"`
	Version      string             `bun:"version,notnull"`
	ModelType    string             `bun:"model_type,notnull"`
	Metrics      model.Metrics      `bun:"metrics,type:jsonb"`
	TrainingInfo model.TrainingInfo `bun:"training_info,type:jsonb"`
	Snapshot     model.Snapshot     `bun:"snapshot,type:jsonb"`
	CreatedAt    time.Time          `bun:"created_at,notnull"`
}

func (r *artifactRow) artifact() Artifact {
	return Artifact{
		ID:           r.ID,
		BusinessID:   r.BusinessID,
		Seq:          r.Seq,
		Version:      r.Version,
		ModelType:    r.ModelType,
		Metrics:      r.Metrics,
		TrainingInfo: r.TrainingInfo,
		Snapshot:     r.Snapshot,
		CreatedAt:    r.CreatedAt,
	}
}

func rowFrom(a Artifact) *artifactRow {
	return &artifactRow{
		ID:           a.ID,
		BusinessID:   a.BusinessID,
		Seq:          a.Seq,
		Version:      a.Version,
		ModelType:    a.ModelType,
		Metrics:      a.Metrics,
		TrainingInfo: a.TrainingInfo,
		Snapshot:     a.Snapshot,
		CreatedAt:    a.CreatedAt.UTC(),
	}
}

// PostgresStore keeps artifacts in one table. Commits take a transaction
// scoped advisory lock on the tenant so concurrent retrains queue up.
type PostgresStore struct {
	db *bun.DB
}

func OpenPostgres(cfg PostgresConfig) (*PostgresStore, error) {
	if !cfg.Enabled() {
		return nil, errors.New("postgres dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN),
		pgdriver.WithDialTimeout(cfg.DialTimeout),
	))
	return NewPostgresStore(bun.NewDB(sqldb, pgdialect.New())), nil
}

func NewPostgresStore(db *bun.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the artifact table and its tenant index.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*artifactRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create forecast_artifacts: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*artifactRow)(nil)).
		Index("forecast_artifacts_business_seq_idx").
		Column("business_id", "seq").
		Unique().
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create forecast_artifacts index: %w", err)
	}
	return nil
}

func (s *PostgresStore) Commit(ctx context.Context, a Artifact) (Artifact, error) {
	if err := a.validate(); err != nil {
		return Artifact{}, err
	}
	row := rowFrom(a)

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", a.BusinessID); err != nil {
			return fmt.Errorf("lock tenant: %w", err)
		}

		var last int64
		if err := tx.NewSelect().
			Model((*artifactRow)(nil)).
			ColumnExpr("COALESCE(MAX(seq), 0)").
			Where("business_id = ?", a.BusinessID).
			Scan(ctx, &last); err != nil {
			return fmt.Errorf("read last seq: %w", err)
		}
		row.Seq = last + 1

		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("insert artifact: %w", err)
		}
		return nil
	})
	if err != nil {
		return Artifact{}, err
	}
	return row.artifact(), nil
}

func (s *PostgresStore) Latest(ctx context.Context, businessID string) (Artifact, error) {
	return s.selectOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("business_id = ?", businessID)
	})
}

func (s *PostgresStore) Get(ctx context.Context, businessID, version string) (Artifact, error) {
	return s.selectOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("business_id = ?", businessID).Where("version = ?", version)
	})
}

func (s *PostgresStore) selectOne(ctx context.Context, filter func(*bun.SelectQuery) *bun.SelectQuery) (Artifact, error) {
	var row artifactRow
	q := s.db.NewSelect().Model(&row)
	err := filter(q).OrderExpr("seq DESC").Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Artifact{}, ErrArtifactNotFound
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("select artifact: %w", err)
	}
	return row.artifact(), nil
}
