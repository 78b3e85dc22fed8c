package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/db"
	"github.com/sells-group/leadgen-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	queries       JSONB NOT NULL,
	target_count  INTEGER NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	is_paused     BOOLEAN NOT NULL DEFAULT false,
	grade_a_count INTEGER NOT NULL DEFAULT 0,
	grade_b_count INTEGER NOT NULL DEFAULT 0,
	grade_c_count INTEGER NOT NULL DEFAULT 0,
	grade_d_count INTEGER NOT NULL DEFAULT 0,
	grade_f_count INTEGER NOT NULL DEFAULT 0,
	progress      INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	paused_at     TIMESTAMPTZ,
	resumed_at    TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS leads (
	id                   TEXT PRIMARY KEY,
	run_id               TEXT NOT NULL REFERENCES runs(id),
	name                 TEXT NOT NULL,
	address              TEXT NOT NULL DEFAULT '',
	phone                TEXT NOT NULL DEFAULT '',
	website              TEXT NOT NULL DEFAULT '',
	latitude             DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude            DOUBLE PRECISION NOT NULL DEFAULT 0,
	research_status      TEXT NOT NULL DEFAULT 'pending',
	prescreened          BOOLEAN NOT NULL DEFAULT false,
	prescreen_result     TEXT NOT NULL DEFAULT '',
	prescreen_reason     TEXT NOT NULL DEFAULT '',
	is_franchise         BOOLEAN NOT NULL DEFAULT false,
	is_national_brand    BOOLEAN NOT NULL DEFAULT false,
	prescreen_confidence TEXT NOT NULL DEFAULT '',
	prescreened_at       TIMESTAMPTZ,
	compatibility_grade  TEXT NOT NULL DEFAULT '',
	grade_reasoning      TEXT NOT NULL DEFAULT '',
	report               TEXT NOT NULL DEFAULT '',
	deep_report          TEXT NOT NULL DEFAULT '',
	error_message        TEXT NOT NULL DEFAULT '',
	email_domain         TEXT NOT NULL DEFAULT '',
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	researched_at        TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_leads_run_id ON leads(run_id);
CREATE INDEX IF NOT EXISTS idx_leads_run_status ON leads(run_id, research_status);
CREATE INDEX IF NOT EXISTS idx_leads_run_grade ON leads(run_id, compatibility_grade);

CREATE TABLE IF NOT EXISTS email_records (
	id         TEXT PRIMARY KEY,
	lead_id    TEXT NOT NULL REFERENCES leads(id),
	provider   TEXT NOT NULL,
	email      TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT 'generic',
	first_name TEXT NOT NULL DEFAULT '',
	last_name  TEXT NOT NULL DEFAULT '',
	position   TEXT NOT NULL DEFAULT '',
	confidence INTEGER NOT NULL DEFAULT 0,
	verified   BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_email_records_lead ON email_records(lead_id);
CREATE INDEX IF NOT EXISTS idx_email_records_lead_provider ON email_records(lead_id, provider);

CREATE TABLE IF NOT EXISTS suppression_entries (
	id         TEXT PRIMARY KEY,
	value      TEXT NOT NULL UNIQUE,
	source     TEXT NOT NULL,
	group_id   INTEGER NOT NULL DEFAULT 0,
	group_name TEXT NOT NULL DEFAULT '',
	reason     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_suppression_value ON suppression_entries(value);

CREATE TABLE IF NOT EXISTS contact_tracking (
	domain            TEXT PRIMARY KEY,
	last_contacted_at TIMESTAMPTZ NOT NULL,
	can_contact_after TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS progress_log (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL,
	event_type TEXT NOT NULL,
	message    TEXT NOT NULL,
	details    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_progress_log_run ON progress_log(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const runColumns = `id, user_id, queries, target_count, status, is_paused,
	grade_a_count, grade_b_count, grade_c_count, grade_d_count, grade_f_count,
	progress, error_message, created_at, paused_at, resumed_at, completed_at`

func scanRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var queriesJSON []byte
	if err := row.Scan(&r.ID, &r.UserID, &queriesJSON, &r.TargetCount, &r.Status, &r.IsPaused,
		&r.GradeACount, &r.GradeBCount, &r.GradeCCount, &r.GradeDCount, &r.GradeFCount,
		&r.Progress, &r.ErrorMessage, &r.CreatedAt, &r.PausedAt, &r.ResumedAt, &r.CompletedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(queriesJSON, &r.Queries); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal queries")
	}
	return &r, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, userID string, queries []model.SearchQuery, targetCount int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	queriesJSON, err := json.Marshal(queries)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal queries")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, user_id, queries, target_count, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, userID, queriesJSON, targetCount, string(model.RunStatusPending), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:          id,
		UserID:      userID,
		Queries:     queries,
		TargetCount: targetCount,
		Status:      model.RunStatusPending,
		CreatedAt:   now,
	}, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = $1`, runID)
	r, err := scanRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1 WHERE id = $2`,
		string(status), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompareAndSetRunStatus(ctx context.Context, runID string, from, to model.RunStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1 WHERE id = $2 AND status = $3`,
		string(to), runID, string(from),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: cas run status %s", runID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) PauseRun(ctx context.Context, runID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET is_paused = true, paused_at = $1
		 WHERE id = $2 AND status = $3 AND is_paused = false`,
		time.Now().UTC(), runID, string(model.RunStatusResearching),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: pause run %s", runID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ResumeRun(ctx context.Context, runID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET is_paused = false, resumed_at = $1
		 WHERE id = $2 AND is_paused = true`,
		time.Now().UTC(), runID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: resume run %s", runID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, completed_at = $2
		 WHERE id = $3 AND status = $4`,
		string(model.RunStatusCompleted), time.Now().UTC(), runID, string(model.RunStatusResearching),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error_message = $2 WHERE id = $3`,
		string(model.RunStatusFailed), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) MarkRunCompleted(ctx context.Context, runID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, progress = 100, completed_at = $2 WHERE id = $3`,
		string(model.RunStatusCompleted), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark run completed %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunAggregates(ctx context.Context, runID string, counts model.GradeCounts, progress int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET grade_a_count = $1, grade_b_count = $2, grade_c_count = $3,
		 grade_d_count = $4, grade_f_count = $5, progress = $6 WHERE id = $7`,
		counts.A, counts.B, counts.C, counts.D, counts.F, progress, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run aggregates %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ResetRunForRedo(ctx context.Context, runID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, is_paused = false,
		 grade_a_count = 0, grade_b_count = 0, grade_c_count = 0,
		 grade_d_count = 0, grade_f_count = 0, progress = 0,
		 error_message = '', completed_at = NULL WHERE id = $2`,
		string(model.RunStatusReady), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: reset run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

var leadInsertColumns = []string{
	"id", "run_id", "name", "address", "phone", "website",
	"latitude", "longitude", "research_status", "email_domain",
	"created_at", "updated_at",
}

func (s *PostgresStore) BulkInsertLeads(ctx context.Context, leads []model.Lead) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(leads))
	for _, l := range leads {
		id := l.ID
		if id == "" {
			id = uuid.New().String()
		}
		status := l.ResearchStatus
		if status == "" {
			status = model.ResearchStatusPending
		}
		domain := l.EmailDomain
		if domain == "" {
			domain = model.DomainFromWebsite(l.Website)
		}
		rows = append(rows, []any{
			id, l.RunID, l.Name, l.Address, l.Phone, l.Website,
			l.Latitude, l.Longitude, string(status), domain,
			now, now,
		})
	}
	n, err := db.CopyFrom(ctx, s.pool, "leads", leadInsertColumns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: bulk insert leads")
	}
	return n, nil
}

const leadColumns = `id, run_id, name, address, phone, website, latitude, longitude,
	research_status, prescreened, prescreen_result, prescreen_reason,
	is_franchise, is_national_brand, prescreen_confidence, prescreened_at,
	compatibility_grade, grade_reasoning, report, deep_report, error_message,
	email_domain, created_at, researched_at`

func scanLead(row pgx.Row) (*model.Lead, error) {
	var l model.Lead
	if err := row.Scan(&l.ID, &l.RunID, &l.Name, &l.Address, &l.Phone, &l.Website,
		&l.Latitude, &l.Longitude, &l.ResearchStatus, &l.Prescreened,
		&l.PrescreenResult, &l.PrescreenReason, &l.IsFranchise, &l.IsNationalBrand,
		&l.PrescreenConfidence, &l.PrescreenedAt, &l.CompatibilityGrade,
		&l.GradeReasoning, &l.Report, &l.DeepReport, &l.ErrorMessage,
		&l.EmailDomain, &l.CreatedAt, &l.ResearchedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1`, leadID)
	l, err := scanLead(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %s", leadID)
	}
	return l, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, runID string) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE run_id = $1 ORDER BY created_at`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) ListLeadIDsByResearchStatus(ctx context.Context, runID string, status model.ResearchStatus) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM leads WHERE run_id = $1 AND research_status = $2 ORDER BY created_at`,
		runID, string(status),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list lead ids by status")
	}
	defer rows.Close()
	return collectIDs(rows, "postgres: list lead ids by status")
}

func (s *PostgresStore) ListLeadIDsByGrade(ctx context.Context, runID string, grade model.Grade) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM leads WHERE run_id = $1 AND compatibility_grade = $2 ORDER BY created_at`,
		runID, string(grade),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list lead ids by grade")
	}
	defer rows.Close()
	return collectIDs(rows, "postgres: list lead ids by grade")
}

func collectIDs(rows pgx.Rows, wrapMsg string) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, wrapMsg)
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), wrapMsg)
}

func (s *PostgresStore) ListUnprescreenedLeads(ctx context.Context, runID string) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE run_id = $1 AND prescreened = false ORDER BY created_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unprescreened leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan unprescreened lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list unprescreened iterate")
}

func (s *PostgresStore) CountLeads(ctx context.Context, runID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM leads WHERE run_id = $1`, runID).Scan(&count)
	return count, eris.Wrap(err, "postgres: count leads")
}

func (s *PostgresStore) CountLeadsByGrade(ctx context.Context, runID string) (model.GradeCounts, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT compatibility_grade, COUNT(*) FROM leads
		 WHERE run_id = $1 AND compatibility_grade <> ''
		 GROUP BY compatibility_grade`,
		runID,
	)
	if err != nil {
		return model.GradeCounts{}, eris.Wrap(err, "postgres: count leads by grade")
	}
	defer rows.Close()

	var counts model.GradeCounts
	for rows.Next() {
		var grade string
		var n int
		if err := rows.Scan(&grade, &n); err != nil {
			return model.GradeCounts{}, eris.Wrap(err, "postgres: scan grade count")
		}
		switch model.Grade(grade) {
		case model.GradeA:
			counts.A = n
		case model.GradeB:
			counts.B = n
		case model.GradeC:
			counts.C = n
		case model.GradeD:
			counts.D = n
		case model.GradeF:
			counts.F = n
		}
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count by grade iterate")
}

func (s *PostgresStore) CountTerminalLeads(ctx context.Context, runID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM leads WHERE run_id = $1 AND research_status IN ($2, $3, $4)`,
		runID, string(model.ResearchStatusCompleted), string(model.ResearchStatusFailed), string(model.ResearchStatusSkipped),
	).Scan(&count)
	return count, eris.Wrap(err, "postgres: count terminal leads")
}

func (s *PostgresStore) CountUnprescreened(ctx context.Context, runID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM leads WHERE run_id = $1 AND prescreened = false`,
		runID,
	).Scan(&count)
	return count, eris.Wrap(err, "postgres: count unprescreened")
}

func (s *PostgresStore) ClaimLeadResearch(ctx context.Context, leadID string, from, to model.ResearchStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET research_status = $1, updated_at = $2
		 WHERE id = $3 AND research_status = $4`,
		string(to), time.Now().UTC(), leadID, string(from),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: claim lead %s", leadID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) CompleteLeadResearch(ctx context.Context, c ResearchCompletion) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET research_status = $1, compatibility_grade = $2,
		 grade_reasoning = $3, report = $4, error_message = '',
		 researched_at = $5, updated_at = $5 WHERE id = $6`,
		string(model.ResearchStatusCompleted), string(c.Grade), c.Reasoning, c.Report, now, c.LeadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete lead research %s", c.LeadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", c.LeadID)
	}
	return nil
}

func (s *PostgresStore) FailLeadResearch(ctx context.Context, leadID string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET research_status = $1, error_message = $2, updated_at = $3 WHERE id = $4`,
		string(model.ResearchStatusFailed), errMsg, time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail lead research %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", leadID)
	}
	return nil
}

func (s *PostgresStore) SavePrescreen(ctx context.Context, u PrescreenUpdate) error {
	now := time.Now().UTC()

	// skip-classified leads become terminal in the same write
	query := `UPDATE leads SET prescreened = true, prescreen_result = $1,
		prescreen_reason = $2, is_franchise = $3, is_national_brand = $4,
		prescreen_confidence = $5, prescreened_at = $6, updated_at = $6`
	args := []any{string(u.Result), u.Reason, u.IsFranchise, u.IsNationalBrand, string(u.Confidence), now}
	if u.Result == model.PrescreenSkip {
		query += `, research_status = $7 WHERE id = $8`
		args = append(args, string(model.ResearchStatusSkipped), u.LeadID)
	} else {
		query += ` WHERE id = $7`
		args = append(args, u.LeadID)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: save prescreen %s", u.LeadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", u.LeadID)
	}
	return nil
}

func (s *PostgresStore) SetLeadGradeOverride(ctx context.Context, leadID string, grade model.Grade, reasoning string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET compatibility_grade = $1, grade_reasoning = $2, updated_at = $3 WHERE id = $4`,
		string(grade), reasoning, time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set grade override %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", leadID)
	}
	return nil
}

func (s *PostgresStore) SaveDeepReport(ctx context.Context, leadID string, report string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET deep_report = $1, updated_at = $2 WHERE id = $3`,
		report, time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save deep report %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", leadID)
	}
	return nil
}

func (s *PostgresStore) ResetLeadResearch(ctx context.Context, runID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET research_status = $1, compatibility_grade = '',
		 grade_reasoning = '', report = '', deep_report = '', error_message = '',
		 researched_at = NULL, updated_at = $2
		 WHERE run_id = $3 AND research_status <> $4`,
		string(model.ResearchStatusPending), time.Now().UTC(), runID, string(model.ResearchStatusSkipped),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: reset lead research for run %s", runID)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ResetLeadPrescreen(ctx context.Context, runID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET research_status = $1, prescreened = false,
		 prescreen_result = '', prescreen_reason = '', is_franchise = false,
		 is_national_brand = false, prescreen_confidence = '', prescreened_at = NULL,
		 compatibility_grade = '', grade_reasoning = '', report = '', deep_report = '',
		 error_message = '', researched_at = NULL,
		 updated_at = $2 WHERE run_id = $3`,
		string(model.ResearchStatusPending), time.Now().UTC(), runID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: reset lead prescreen for run %s", runID)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ResetStaleLeads(ctx context.Context, runID string, cutoff time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE leads SET research_status = $1, updated_at = $2
		 WHERE run_id = $3 AND research_status IN ($4, $5) AND updated_at < $6
		 RETURNING id`,
		string(model.ResearchStatusPending), time.Now().UTC(), runID,
		string(model.ResearchStatusScraping), string(model.ResearchStatusAnalyzing), cutoff,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: reset stale leads for run %s", runID)
	}
	defer rows.Close()
	return collectIDs(rows, "postgres: reset stale leads")
}

func (s *PostgresStore) ReplaceProviderEmails(ctx context.Context, leadID string, provider model.EmailProvider, records []model.EmailRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace emails")
	}
	defer tx.Rollback(ctx)

	// Provider-scoped delete: a Tomba re-search never touches Hunter rows.
	if _, err := tx.Exec(ctx,
		`DELETE FROM email_records WHERE lead_id = $1 AND provider = $2`,
		leadID, string(provider),
	); err != nil {
		return eris.Wrapf(err, "postgres: delete provider emails %s/%s", leadID, provider)
	}

	now := time.Now().UTC()
	for _, rec := range records {
		id := rec.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO email_records (id, lead_id, provider, email, type, first_name, last_name, position, confidence, verified, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			id, leadID, string(provider), rec.Email, string(rec.Type),
			rec.FirstName, rec.LastName, rec.Position, rec.Confidence, rec.Verified, now,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert email record for %s", leadID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace emails")
}

func (s *PostgresStore) ListEmailRecords(ctx context.Context, leadID string) ([]model.EmailRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, lead_id, provider, email, type, first_name, last_name, position, confidence, verified, created_at
		 FROM email_records WHERE lead_id = $1 ORDER BY provider, confidence DESC`,
		leadID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list email records")
	}
	defer rows.Close()

	var records []model.EmailRecord
	for rows.Next() {
		var rec model.EmailRecord
		if err := rows.Scan(&rec.ID, &rec.LeadID, &rec.Provider, &rec.Email, &rec.Type,
			&rec.FirstName, &rec.LastName, &rec.Position, &rec.Confidence, &rec.Verified, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan email record")
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list email records iterate")
}

func (s *PostgresStore) UpsertSuppressionEntries(ctx context.Context, entries []model.SuppressionEntry) (int64, error) {
	var n int64
	now := time.Now().UTC()
	for _, e := range entries {
		id := e.ID
		if id == "" {
			id = uuid.New().String()
		}
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO suppression_entries (id, value, source, group_id, group_name, reason, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (value) DO UPDATE SET source = $3, group_id = $4, group_name = $5, reason = $6`,
			id, e.Value, string(e.Source), e.GroupID, e.GroupName, e.Reason, now,
		)
		if err != nil {
			return n, eris.Wrapf(err, "postgres: upsert suppression %s", e.Value)
		}
		n += tag.RowsAffected()
	}
	return n, nil
}

func (s *PostgresStore) LookupSuppression(ctx context.Context, email, domain string) (*model.SuppressionEntry, error) {
	var e model.SuppressionEntry
	err := s.pool.QueryRow(ctx,
		`SELECT id, value, source, group_id, group_name, reason, created_at
		 FROM suppression_entries WHERE value = $1 OR value = $2 LIMIT 1`,
		email, domain,
	).Scan(&e.ID, &e.Value, &e.Source, &e.GroupID, &e.GroupName, &e.Reason, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: lookup suppression")
	}
	return &e, nil
}

func (s *PostgresStore) GetContactTracking(ctx context.Context, domain string) (*model.ContactTracking, error) {
	var ct model.ContactTracking
	err := s.pool.QueryRow(ctx,
		`SELECT domain, last_contacted_at, can_contact_after FROM contact_tracking WHERE domain = $1`,
		domain,
	).Scan(&ct.Domain, &ct.LastContactedAt, &ct.CanContactAfter)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get contact tracking")
	}
	return &ct, nil
}

func (s *PostgresStore) AppendProgressLog(ctx context.Context, entry model.ProgressLogEntry) error {
	id := entry.ID
	if id == "" {
		id = uuid.New().String()
	}
	var detailsJSON []byte
	if entry.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(entry.Details)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal log details")
		}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO progress_log (id, run_id, event_type, message, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, entry.RunID, entry.EventType, entry.Message, detailsJSON, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: append progress log")
}
