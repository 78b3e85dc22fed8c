package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite, for laptop-local
// runs without a Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sdb}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	queries       TEXT NOT NULL,
	target_count  INTEGER NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	is_paused     INTEGER NOT NULL DEFAULT 0,
	grade_a_count INTEGER NOT NULL DEFAULT 0,
	grade_b_count INTEGER NOT NULL DEFAULT 0,
	grade_c_count INTEGER NOT NULL DEFAULT 0,
	grade_d_count INTEGER NOT NULL DEFAULT 0,
	grade_f_count INTEGER NOT NULL DEFAULT 0,
	progress      INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL,
	paused_at     DATETIME,
	resumed_at    DATETIME,
	completed_at  DATETIME
);

CREATE TABLE IF NOT EXISTS leads (
	id                   TEXT PRIMARY KEY,
	run_id               TEXT NOT NULL REFERENCES runs(id),
	name                 TEXT NOT NULL,
	address              TEXT NOT NULL DEFAULT '',
	phone                TEXT NOT NULL DEFAULT '',
	website              TEXT NOT NULL DEFAULT '',
	latitude             REAL NOT NULL DEFAULT 0,
	longitude            REAL NOT NULL DEFAULT 0,
	research_status      TEXT NOT NULL DEFAULT 'pending',
	prescreened          INTEGER NOT NULL DEFAULT 0,
	prescreen_result     TEXT NOT NULL DEFAULT '',
	prescreen_reason     TEXT NOT NULL DEFAULT '',
	is_franchise         INTEGER NOT NULL DEFAULT 0,
	is_national_brand    INTEGER NOT NULL DEFAULT 0,
	prescreen_confidence TEXT NOT NULL DEFAULT '',
	prescreened_at       DATETIME,
	compatibility_grade  TEXT NOT NULL DEFAULT '',
	grade_reasoning      TEXT NOT NULL DEFAULT '',
	report               TEXT NOT NULL DEFAULT '',
	deep_report          TEXT NOT NULL DEFAULT '',
	error_message        TEXT NOT NULL DEFAULT '',
	email_domain         TEXT NOT NULL DEFAULT '',
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL,
	researched_at        DATETIME
);

CREATE INDEX IF NOT EXISTS idx_leads_run_id ON leads(run_id);
CREATE INDEX IF NOT EXISTS idx_leads_run_status ON leads(run_id, research_status);

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
	verified   INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_email_records_lead_provider ON email_records(lead_id, provider);

CREATE TABLE IF NOT EXISTS suppression_entries (
	id         TEXT PRIMARY KEY,
	value      TEXT NOT NULL UNIQUE,
	source     TEXT NOT NULL,
	group_id   INTEGER NOT NULL DEFAULT 0,
	group_name TEXT NOT NULL DEFAULT '',
	reason     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contact_tracking (
	domain            TEXT PRIMARY KEY,
	last_contacted_at DATETIME NOT NULL,
	can_contact_after DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS progress_log (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL,
	event_type TEXT NOT NULL,
	message    TEXT NOT NULL,
	details    TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_progress_log_run ON progress_log(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (s *SQLiteStore) CreateRun(ctx context.Context, userID string, queries []model.SearchQuery, targetCount int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	queriesJSON, err := json.Marshal(queries)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal queries")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, user_id, queries, target_count, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, string(queriesJSON), targetCount, string(model.RunStatusPending), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

const sqliteRunColumns = `id, user_id, queries, target_count, status, is_paused,
	grade_a_count, grade_b_count, grade_c_count, grade_d_count, grade_f_count,
	progress, error_message, created_at, paused_at, resumed_at, completed_at`

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row sqlScanner) (*model.Run, error) {
	var r model.Run
	var queriesJSON string
	var pausedAt, resumedAt, completedAt sql.NullTime
	if err := row.Scan(&r.ID, &r.UserID, &queriesJSON, &r.TargetCount, &r.Status, &r.IsPaused,
		&r.GradeACount, &r.GradeBCount, &r.GradeCCount, &r.GradeDCount, &r.GradeFCount,
		&r.Progress, &r.ErrorMessage, &r.CreatedAt, &pausedAt, &resumedAt, &completedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(queriesJSON), &r.Queries); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal queries")
	}
	r.PausedAt = nullableTime(pausedAt)
	r.ResumedAt = nullableTime(resumedAt)
	r.CompletedAt = nullableTime(completedAt)
	return &r, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanSQLiteRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) execExpectingRow(ctx context.Context, notFound string, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return eris.New(notFound)
	}
	return nil
}

func (s *SQLiteStore) execReportingRow(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	err := s.execExpectingRow(ctx, fmt.Sprintf("run not found: %s", runID),
		`UPDATE runs SET status = ? WHERE id = ?`, string(status), runID)
	return eris.Wrapf(err, "sqlite: update run status %s", runID)
}

func (s *SQLiteStore) CompareAndSetRunStatus(ctx context.Context, runID string, from, to model.RunStatus) (bool, error) {
	ok, err := s.execReportingRow(ctx,
		`UPDATE runs SET status = ? WHERE id = ? AND status = ?`,
		string(to), runID, string(from))
	return ok, eris.Wrapf(err, "sqlite: cas run status %s", runID)
}

func (s *SQLiteStore) PauseRun(ctx context.Context, runID string) (bool, error) {
	ok, err := s.execReportingRow(ctx,
		`UPDATE runs SET is_paused = 1, paused_at = ? WHERE id = ? AND status = ? AND is_paused = 0`,
		time.Now().UTC(), runID, string(model.RunStatusResearching))
	return ok, eris.Wrapf(err, "sqlite: pause run %s", runID)
}

func (s *SQLiteStore) ResumeRun(ctx context.Context, runID string) (bool, error) {
	ok, err := s.execReportingRow(ctx,
		`UPDATE runs SET is_paused = 0, resumed_at = ? WHERE id = ? AND is_paused = 1`,
		time.Now().UTC(), runID)
	return ok, eris.Wrapf(err, "sqlite: resume run %s", runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string) (bool, error) {
	ok, err := s.execReportingRow(ctx,
		`UPDATE runs SET status = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(model.RunStatusCompleted), time.Now().UTC(), runID, string(model.RunStatusResearching))
	return ok, eris.Wrapf(err, "sqlite: complete run %s", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	err := s.execExpectingRow(ctx, fmt.Sprintf("run not found: %s", runID),
		`UPDATE runs SET status = ?, error_message = ? WHERE id = ?`,
		string(model.RunStatusFailed), errMsg, runID)
	return eris.Wrapf(err, "sqlite: fail run %s", runID)
}

func (s *SQLiteStore) MarkRunCompleted(ctx context.Context, runID string) error {
	err := s.execExpectingRow(ctx, fmt.Sprintf("run not found: %s", runID),
		`UPDATE runs SET status = ?, progress = 100, completed_at = ? WHERE id = ?`,
		string(model.RunStatusCompleted), time.Now().UTC(), runID)
	return eris.Wrapf(err, "sqlite: mark run completed %s", runID)
}

func (s *SQLiteStore) UpdateRunAggregates(ctx context.Context, runID string, counts model.GradeCounts, progress int) error {
	err := s.execExpectingRow(ctx, fmt.Sprintf("run not found: %s", runID),
		`UPDATE runs SET grade_a_count = ?, grade_b_count = ?, grade_c_count = ?,
		 grade_d_count = ?, grade_f_count = ?, progress = ? WHERE id = ?`,
		counts.A, counts.B, counts.C, counts.D, counts.F, progress, runID)
	return eris.Wrapf(err, "sqlite: update run aggregates %s", runID)
}

func (s *SQLiteStore) ResetRunForRedo(ctx context.Context, runID string) error {
	err := s.execExpectingRow(ctx, fmt.Sprintf("run not found: %s", runID),
		`UPDATE runs SET status = ?, is_paused = 0,
		 grade_a_count = 0, grade_b_count = 0, grade_c_count = 0,
		 grade_d_count = 0, grade_f_count = 0, progress = 0,
		 error_message = '', completed_at = NULL WHERE id = ?`,
		string(model.RunStatusReady), runID)
	return eris.Wrapf(err, "sqlite: reset run %s", runID)
}

func (s *SQLiteStore) BulkInsertLeads(ctx context.Context, leads []model.Lead) (int64, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin bulk insert")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO leads (id, run_id, name, address, phone, website, latitude, longitude, research_status, email_domain, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare bulk insert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var n int64
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
		if _, err := stmt.ExecContext(ctx,
			id, l.RunID, l.Name, l.Address, l.Phone, l.Website,
			l.Latitude, l.Longitude, string(status), domain, now, now,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert lead %s", l.Name)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit bulk insert")
	}
	return n, nil
}

const sqliteLeadColumns = `id, run_id, name, address, phone, website, latitude, longitude,
	research_status, prescreened, prescreen_result, prescreen_reason,
	is_franchise, is_national_brand, prescreen_confidence, prescreened_at,
	compatibility_grade, grade_reasoning, report, deep_report, error_message,
	email_domain, created_at, researched_at`

func scanSQLiteLead(row sqlScanner) (*model.Lead, error) {
	var l model.Lead
	var prescreenedAt, researchedAt sql.NullTime
	if err := row.Scan(&l.ID, &l.RunID, &l.Name, &l.Address, &l.Phone, &l.Website,
		&l.Latitude, &l.Longitude, &l.ResearchStatus, &l.Prescreened,
		&l.PrescreenResult, &l.PrescreenReason, &l.IsFranchise, &l.IsNationalBrand,
		&l.PrescreenConfidence, &prescreenedAt, &l.CompatibilityGrade,
		&l.GradeReasoning, &l.Report, &l.DeepReport, &l.ErrorMessage,
		&l.EmailDomain, &l.CreatedAt, &researchedAt); err != nil {
		return nil, err
	}
	l.PrescreenedAt = nullableTime(prescreenedAt)
	l.ResearchedAt = nullableTime(researchedAt)
	return &l, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteLeadColumns+` FROM leads WHERE id = ?`, leadID)
	l, err := scanSQLiteLead(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %s", leadID)
	}
	return l, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, runID string) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteLeadColumns+` FROM leads WHERE run_id = ? ORDER BY created_at`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanSQLiteLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) ListLeadIDsByResearchStatus(ctx context.Context, runID string, status model.ResearchStatus) ([]string, error) {
	ids, err := s.listIDs(ctx,
		`SELECT id FROM leads WHERE run_id = ? AND research_status = ? ORDER BY created_at`,
		runID, string(status))
	return ids, eris.Wrap(err, "sqlite: list lead ids by status")
}

func (s *SQLiteStore) ListLeadIDsByGrade(ctx context.Context, runID string, grade model.Grade) ([]string, error) {
	ids, err := s.listIDs(ctx,
		`SELECT id FROM leads WHERE run_id = ? AND compatibility_grade = ? ORDER BY created_at`,
		runID, string(grade))
	return ids, eris.Wrap(err, "sqlite: list lead ids by grade")
}

func (s *SQLiteStore) ListUnprescreenedLeads(ctx context.Context, runID string) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteLeadColumns+` FROM leads WHERE run_id = ? AND prescreened = 0 ORDER BY created_at`,
		runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unprescreened leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanSQLiteLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan unprescreened lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list unprescreened iterate")
}

func (s *SQLiteStore) countQuery(ctx context.Context, query string, args ...any) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func (s *SQLiteStore) CountLeads(ctx context.Context, runID string) (int, error) {
	n, err := s.countQuery(ctx, `SELECT COUNT(*) FROM leads WHERE run_id = ?`, runID)
	return n, eris.Wrap(err, "sqlite: count leads")
}

func (s *SQLiteStore) CountLeadsByGrade(ctx context.Context, runID string) (model.GradeCounts, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT compatibility_grade, COUNT(*) FROM leads
		 WHERE run_id = ? AND compatibility_grade <> ''
		 GROUP BY compatibility_grade`,
		runID)
	if err != nil {
		return model.GradeCounts{}, eris.Wrap(err, "sqlite: count leads by grade")
	}
	defer rows.Close()

	var counts model.GradeCounts
	for rows.Next() {
		var grade string
		var n int
		if err := rows.Scan(&grade, &n); err != nil {
			return model.GradeCounts{}, eris.Wrap(err, "sqlite: scan grade count")
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
	return counts, eris.Wrap(rows.Err(), "sqlite: count by grade iterate")
}

func (s *SQLiteStore) CountTerminalLeads(ctx context.Context, runID string) (int, error) {
	n, err := s.countQuery(ctx,
		`SELECT COUNT(*) FROM leads WHERE run_id = ? AND research_status IN (?, ?, ?)`,
		runID, string(model.ResearchStatusCompleted), string(model.ResearchStatusFailed), string(model.ResearchStatusSkipped))
	return n, eris.Wrap(err, "sqlite: count terminal leads")
}

func (s *SQLiteStore) CountUnprescreened(ctx context.Context, runID string) (int, error) {
	n, err := s.countQuery(ctx,
		`SELECT COUNT(*) FROM leads WHERE run_id = ? AND prescreened = 0`, runID)
	return n, eris.Wrap(err, "sqlite: count unprescreened")
}

func (s *SQLiteStore) ClaimLeadResearch(ctx context.Context, leadID string, from, to model.ResearchStatus) (bool, error) {
	ok, err := s.execReportingRow(ctx,
		`UPDATE leads SET research_status = ?, updated_at = ? WHERE id = ? AND research_status = ?`,
		string(to), time.Now().UTC(), leadID, string(from))
	return ok, eris.Wrapf(err, "sqlite: claim lead %s", leadID)
}

func (s *SQLiteStore) CompleteLeadResearch(ctx context.Context, c ResearchCompletion) error {
	now := time.Now().UTC()
	err := s.execExpectingRow(ctx, fmt.Sprintf("lead not found: %s", c.LeadID),
		`UPDATE leads SET research_status = ?, compatibility_grade = ?,
		 grade_reasoning = ?, report = ?, error_message = '',
		 researched_at = ?, updated_at = ? WHERE id = ?`,
		string(model.ResearchStatusCompleted), string(c.Grade), c.Reasoning, c.Report, now, now, c.LeadID)
	return eris.Wrapf(err, "sqlite: complete lead research %s", c.LeadID)
}

func (s *SQLiteStore) FailLeadResearch(ctx context.Context, leadID string, errMsg string) error {
	err := s.execExpectingRow(ctx, fmt.Sprintf("lead not found: %s", leadID),
		`UPDATE leads SET research_status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(model.ResearchStatusFailed), errMsg, time.Now().UTC(), leadID)
	return eris.Wrapf(err, "sqlite: fail lead research %s", leadID)
}

func (s *SQLiteStore) SavePrescreen(ctx context.Context, u PrescreenUpdate) error {
	now := time.Now().UTC()

	query := `UPDATE leads SET prescreened = 1, prescreen_result = ?,
		prescreen_reason = ?, is_franchise = ?, is_national_brand = ?,
		prescreen_confidence = ?, prescreened_at = ?, updated_at = ?`
	args := []any{string(u.Result), u.Reason, u.IsFranchise, u.IsNationalBrand, string(u.Confidence), now, now}
	if u.Result == model.PrescreenSkip {
		query += `, research_status = ?`
		args = append(args, string(model.ResearchStatusSkipped))
	}
	query += ` WHERE id = ?`
	args = append(args, u.LeadID)

	err := s.execExpectingRow(ctx, fmt.Sprintf("lead not found: %s", u.LeadID), query, args...)
	return eris.Wrapf(err, "sqlite: save prescreen %s", u.LeadID)
}

func (s *SQLiteStore) SetLeadGradeOverride(ctx context.Context, leadID string, grade model.Grade, reasoning string) error {
	err := s.execExpectingRow(ctx, fmt.Sprintf("lead not found: %s", leadID),
		`UPDATE leads SET compatibility_grade = ?, grade_reasoning = ?, updated_at = ? WHERE id = ?`,
		string(grade), reasoning, time.Now().UTC(), leadID)
	return eris.Wrapf(err, "sqlite: set grade override %s", leadID)
}

func (s *SQLiteStore) SaveDeepReport(ctx context.Context, leadID string, report string) error {
	err := s.execExpectingRow(ctx, fmt.Sprintf("lead not found: %s", leadID),
		`UPDATE leads SET deep_report = ?, updated_at = ? WHERE id = ?`,
		report, time.Now().UTC(), leadID)
	return eris.Wrapf(err, "sqlite: save deep report %s", leadID)
}

func (s *SQLiteStore) ResetLeadResearch(ctx context.Context, runID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET research_status = ?, compatibility_grade = '',
		 grade_reasoning = '', report = '', deep_report = '', error_message = '',
		 researched_at = NULL, updated_at = ?
		 WHERE run_id = ? AND research_status <> ?`,
		string(model.ResearchStatusPending), time.Now().UTC(), runID, string(model.ResearchStatusSkipped))
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: reset lead research for run %s", runID)
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: reset lead research rows affected")
}

func (s *SQLiteStore) ResetLeadPrescreen(ctx context.Context, runID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET research_status = ?, prescreened = 0,
		 prescreen_result = '', prescreen_reason = '', is_franchise = 0,
		 is_national_brand = 0, prescreen_confidence = '', prescreened_at = NULL,
		 compatibility_grade = '', grade_reasoning = '', report = '', deep_report = '',
		 error_message = '', researched_at = NULL,
		 updated_at = ? WHERE run_id = ?`,
		string(model.ResearchStatusPending), time.Now().UTC(), runID)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: reset lead prescreen for run %s", runID)
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: reset lead prescreen rows affected")
}

func (s *SQLiteStore) ResetStaleLeads(ctx context.Context, runID string, cutoff time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin stale reset")
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM leads WHERE run_id = ? AND research_status IN (?, ?) AND updated_at < ?`,
		runID, string(model.ResearchStatusScraping), string(model.ResearchStatusAnalyzing), cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select stale leads")
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan stale lead")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: stale leads iterate")
	}

	now := time.Now().UTC()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE leads SET research_status = ?, updated_at = ? WHERE id = ?`,
			string(model.ResearchStatusPending), now, id); err != nil {
			return nil, eris.Wrapf(err, "sqlite: reset stale lead %s", id)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit stale reset")
	}
	return ids, nil
}

func (s *SQLiteStore) ReplaceProviderEmails(ctx context.Context, leadID string, provider model.EmailProvider, records []model.EmailRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace emails")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM email_records WHERE lead_id = ? AND provider = ?`,
		leadID, string(provider)); err != nil {
		return eris.Wrapf(err, "sqlite: delete provider emails %s/%s", leadID, provider)
	}

	now := time.Now().UTC()
	for _, rec := range records {
		id := rec.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO email_records (id, lead_id, provider, email, type, first_name, last_name, position, confidence, verified, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, leadID, string(provider), rec.Email, string(rec.Type),
			rec.FirstName, rec.LastName, rec.Position, rec.Confidence, rec.Verified, now); err != nil {
			return eris.Wrapf(err, "sqlite: insert email record for %s", leadID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace emails")
}

func (s *SQLiteStore) ListEmailRecords(ctx context.Context, leadID string) ([]model.EmailRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lead_id, provider, email, type, first_name, last_name, position, confidence, verified, created_at
		 FROM email_records WHERE lead_id = ? ORDER BY provider, confidence DESC`,
		leadID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list email records")
	}
	defer rows.Close()

	var records []model.EmailRecord
	for rows.Next() {
		var rec model.EmailRecord
		if err := rows.Scan(&rec.ID, &rec.LeadID, &rec.Provider, &rec.Email, &rec.Type,
			&rec.FirstName, &rec.LastName, &rec.Position, &rec.Confidence, &rec.Verified, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan email record")
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list email records iterate")
}

func (s *SQLiteStore) UpsertSuppressionEntries(ctx context.Context, entries []model.SuppressionEntry) (int64, error) {
	var n int64
	now := time.Now().UTC()
	for _, e := range entries {
		id := e.ID
		if id == "" {
			id = uuid.New().String()
		}
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO suppression_entries (id, value, source, group_id, group_name, reason, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (value) DO UPDATE SET source = excluded.source,
			   group_id = excluded.group_id, group_name = excluded.group_name, reason = excluded.reason`,
			id, e.Value, string(e.Source), e.GroupID, e.GroupName, e.Reason, now)
		if err != nil {
			return n, eris.Wrapf(err, "sqlite: upsert suppression %s", e.Value)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return n, eris.Wrap(err, "sqlite: upsert suppression rows affected")
		}
		n += affected
	}
	return n, nil
}

func (s *SQLiteStore) LookupSuppression(ctx context.Context, email, domain string) (*model.SuppressionEntry, error) {
	var e model.SuppressionEntry
	err := s.db.QueryRowContext(ctx,
		`SELECT id, value, source, group_id, group_name, reason, created_at
		 FROM suppression_entries WHERE value = ? OR value = ? LIMIT 1`,
		email, domain,
	).Scan(&e.ID, &e.Value, &e.Source, &e.GroupID, &e.GroupName, &e.Reason, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: lookup suppression")
	}
	return &e, nil
}

func (s *SQLiteStore) GetContactTracking(ctx context.Context, domain string) (*model.ContactTracking, error) {
	var ct model.ContactTracking
	err := s.db.QueryRowContext(ctx,
		`SELECT domain, last_contacted_at, can_contact_after FROM contact_tracking WHERE domain = ?`,
		domain,
	).Scan(&ct.Domain, &ct.LastContactedAt, &ct.CanContactAfter)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get contact tracking")
	}
	return &ct, nil
}

func (s *SQLiteStore) AppendProgressLog(ctx context.Context, entry model.ProgressLogEntry) error {
	id := entry.ID
	if id == "" {
		id = uuid.New().String()
	}
	var detailsJSON []byte
	if entry.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(entry.Details)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal log details")
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO progress_log (id, run_id, event_type, message, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, entry.RunID, entry.EventType, entry.Message, string(detailsJSON), time.Now().UTC())
	return eris.Wrap(err, "sqlite: append progress log")
}
