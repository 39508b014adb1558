package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"gopkg.in/yaml.v3"

	"github.com/opsxjacky/walkforward-backtest/pkg/types"
)

var (
	// ErrRunNotFound 运行记录不存在
	ErrRunNotFound = errors.New("run not found")
	// ErrDuplicateRun 运行ID已存在
	ErrDuplicateRun = errors.New("duplicate run")
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	name        TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	params      TEXT NOT NULL,
	final_value DOUBLE PRECISION,
	aborted     BOOLEAN NOT NULL
);
CREATE TABLE IF NOT EXISTS run_metrics (
	run_id TEXT NOT NULL REFERENCES runs(id),
	name   TEXT NOT NULL,
	value  DOUBLE PRECISION,
	reason TEXT NOT NULL,
	PRIMARY KEY (run_id, name)
);
CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind, created_at);
`

// Run 一次回测运行的记录
type Run struct {
	ID         string          `db:"id"`
	Kind       string          `db:"kind"` // portfolio|pairs|scan
	Name       string          `db:"name"`
	CreatedAt  time.Time       `db:"created_at"`
	Params     string          `db:"params"` // YAML
	FinalValue sql.NullFloat64 `db:"final_value"`
	Aborted    bool            `db:"aborted"`
}

// metricRow 单个指标
type metricRow struct {
	RunID  string          `db:"run_id"`
	Name   string          `db:"name"`
	Value  sql.NullFloat64 `db:"value"`
	Reason string          `db:"reason"`
}

// Store 回测结果库
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open 连接结果库, driver 为 sqlite3 或 postgres
func Open(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", driver, err)
	}
	if driver == "sqlite3" {
		// 内存库每个连接各自独立
		db.SetMaxOpenConns(1)
	}
	return &Store{db: db, timeout: 10 * time.Second}, nil
}

// Close 关闭连接
func (s *Store) Close() error {
	return s.db.Close()
}

// InitSchema 建表
func (s *Store) InitSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

// EncodeParams 把运行参数编码为YAML
func EncodeParams(v any) (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode params: %w", err)
	}
	return string(out), nil
}

// SaveRun 在一个事务里写入运行记录和全部指标, 返回运行ID
// ID 为空时生成 uuid; 未定义的指标写为 NULL 并保留原因
func (s *Store) SaveRun(ctx context.Context, run Run, kpis types.KPIReport) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO runs (id, kind, name, created_at, params, final_value, aborted)
		VALUES (:id, :kind, :name, :created_at, :params, :final_value, :aborted)`, run)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: %s", ErrDuplicateRun, run.ID)
		}
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	insertMetric := tx.Rebind(`INSERT INTO run_metrics (run_id, name, value, reason) VALUES (?, ?, ?, ?)`)
	for _, name := range kpis.Names() {
		v := kpis.Values[name]
		value := sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v) && !math.IsInf(v, 0)}
		if _, err := tx.ExecContext(ctx, insertMetric, run.ID, name, value, kpis.Undefined[name]); err != nil {
			return "", fmt.Errorf("failed to insert metric %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return run.ID, nil
}

// GetRun 读取运行记录
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var run Run
	err := s.db.GetContext(ctx, &run, s.db.Rebind(`
		SELECT id, kind, name, created_at, params, final_value, aborted
		FROM runs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return run, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return run, fmt.Errorf("failed to query run: %w", err)
	}
	return run, nil
}

// GetKPIs 读取运行的指标报告, NULL 还原为未定义
func (s *Store) GetKPIs(ctx context.Context, id string) (types.KPIReport, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return types.KPIReport{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []metricRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT run_id, name, value, reason
		FROM run_metrics WHERE run_id = ? ORDER BY name`), id)
	if err != nil {
		return types.KPIReport{}, fmt.Errorf("failed to query metrics: %w", err)
	}

	kpis := types.NewKPIReport()
	for _, row := range rows {
		if row.Value.Valid {
			kpis.Set(row.Name, row.Value.Float64)
		} else {
			kpis.SetUndefined(row.Name, row.Reason)
		}
	}
	return kpis, nil
}

// ListRuns 按创建时间倒序列出运行记录, kind 为空表示全部
func (s *Store) ListRuns(ctx context.Context, kind string) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT id, kind, name, created_at, params, final_value, aborted FROM runs`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at DESC, id`

	var runs []Run
	if err := s.db.SelectContext(ctx, &runs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// isUniqueViolation 主键冲突 (postgres 23505 / sqlite 约束错误)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
