package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/jward/understory/internal/finding"
)

const runColumns = `id, started_at, duration_ms, COALESCE(config_hash, ''), COALESCE(root, ''),
	files, findings, new_findings, suppressed, baselined, tooling`

// RecordRun inserts run and its findings in a single transaction and
// returns the run ID. run.ID is set on success.
func (s *Store) RecordRun(run *Run, findings []finding.Finding) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("record run: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO runs (started_at, duration_ms, config_hash, root, files, findings,
			new_findings, suppressed, baselined, tooling)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt.UTC(), run.Duration.Milliseconds(), run.ConfigHash, run.Root,
		run.Files, run.Findings, run.New, run.Suppressed, run.Baselined, run.Tooling,
	)
	if err != nil {
		return 0, fmt.Errorf("record run: insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record run: last insert id: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO findings (run_id, rule_id, severity, kind, path, start_byte, end_byte,
			line, col, message, signature, suppressed, baselined)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("record run: prepare: %w", err)
	}
	defer stmt.Close()

	for i := range findings {
		f := &findings[i]
		if _, err := stmt.Exec(
			runID, f.RuleID, string(f.Severity), string(f.Kind), f.Path, f.Start, f.End,
			f.Line, f.Col, f.Message, f.Signature, f.Suppressed, f.Baselined,
		); err != nil {
			return 0, fmt.Errorf("record run: finding %s at %s: %w", f.RuleID, f.Path, err)
		}
	}

	if _, err := tx.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		MetaLastRun, strconv.FormatInt(runID, 10),
	); err != nil {
		return 0, fmt.Errorf("record run: metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("record run: commit: %w", err)
	}
	run.ID = runID
	return runID, nil
}

// Runs returns up to limit runs, most recent first. limit <= 0 returns all.
func (s *Store) Runs(limit int) ([]*Run, error) {
	q := "SELECT " + runColumns + " FROM runs ORDER BY id DESC"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LastRun returns the most recent run, or nil if none has been recorded.
func (s *Store) LastRun() (*Run, error) {
	r, err := scanRun(s.db.QueryRow("SELECT " + runColumns + " FROM runs ORDER BY id DESC LIMIT 1"))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// RunByID returns the run with the given ID, or nil if it does not exist.
func (s *Store) RunByID(id int64) (*Run, error) {
	r, err := scanRun(s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// FindingsForRun returns the findings recorded for runID in deterministic
// order.
func (s *Store) FindingsForRun(runID int64) ([]finding.Finding, error) {
	rows, err := s.db.Query(
		`SELECT rule_id, severity, kind, path, start_byte, end_byte, line, col,
			COALESCE(message, ''), signature, suppressed, baselined
		 FROM findings WHERE run_id = ?`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("findings for run: %w", err)
	}
	defer rows.Close()

	var out []finding.Finding
	for rows.Next() {
		var (
			f             finding.Finding
			sev, kind     string
			suppr, baseln bool
		)
		if err := rows.Scan(&f.RuleID, &sev, &kind, &f.Path, &f.Start, &f.End, &f.Line, &f.Col,
			&f.Message, &f.Signature, &suppr, &baseln); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.Severity = finding.Severity(sev)
		f.Kind = finding.Kind(kind)
		f.Suppressed = suppr
		f.Baselined = baseln
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	finding.Sort(out)
	return out, nil
}

// PruneRuns deletes all but the keep most recent runs and their findings.
// It returns the number of runs removed.
func (s *Store) PruneRuns(keep int) (int, error) {
	rows, err := s.db.Query("SELECT id FROM runs ORDER BY id DESC LIMIT -1 OFFSET ?", keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("prune runs: begin: %w", err)
	}
	defer tx.Rollback()

	placeholders := placeholderList(len(ids))
	args := int64sToArgs(ids)
	for _, q := range []string{
		"DELETE FROM findings WHERE run_id IN (" + placeholders + ")",
		"DELETE FROM runs WHERE id IN (" + placeholders + ")",
	} {
		if _, err := tx.Exec(q, args...); err != nil {
			return 0, fmt.Errorf("prune runs: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("prune runs: commit: %w", err)
	}
	return len(ids), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	r := &Run{}
	var ms int64
	err := row.Scan(&r.ID, &r.StartedAt, &ms, &r.ConfigHash, &r.Root,
		&r.Files, &r.Findings, &r.New, &r.Suppressed, &r.Baselined, &r.Tooling)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	r.Duration = time.Duration(ms) * time.Millisecond
	return r, nil
}
