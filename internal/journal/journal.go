package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/HerbHall/cellwatch/internal/report"
)

func migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "create runs and steps tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE runs (
						id          TEXT PRIMARY KEY,
						kind        TEXT     NOT NULL,
						outcome     TEXT     NOT NULL,
						exit_code   INTEGER  NOT NULL,
						started_at  TEXT     NOT NULL,
						finished_at TEXT     NOT NULL,
						detail      TEXT     NOT NULL DEFAULT ''
					)`,
					`CREATE INDEX idx_runs_kind_started ON runs(kind, started_at)`,
					`CREATE TABLE steps (
						run_id      TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
						seq         INTEGER NOT NULL,
						name        TEXT    NOT NULL,
						ok          INTEGER NOT NULL,
						detail      TEXT    NOT NULL DEFAULT '',
						duration_ms INTEGER NOT NULL,
						PRIMARY KEY (run_id, seq)
					)`,
				}
				for _, s := range stmts {
					if _, err := tx.Exec(s); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Version:     2,
			Description: "create run_totals tally",
			Up: func(tx *sql.Tx) error {
				if _, err := tx.Exec(`CREATE TABLE run_totals (
						kind    TEXT    NOT NULL,
						outcome TEXT    NOT NULL,
						count   INTEGER NOT NULL,
						PRIMARY KEY (kind, outcome)
					)`); err != nil {
					return err
				}
				_, err := tx.Exec(`INSERT INTO run_totals (kind, outcome, count)
					SELECT kind, outcome, COUNT(*) FROM runs GROUP BY kind, outcome`)
				return err
			},
		},
	}
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

// Journal records finished reports.
type Journal struct {
	store *Store
}

// New migrates store and returns a Journal over it.
func New(ctx context.Context, store *Store) (*Journal, error) {
	if err := store.Migrate(ctx, "journal", migrations()); err != nil {
		return nil, err
	}
	return &Journal{store: store}, nil
}

// Record stores a report and its steps atomically and bumps the run tally
// for its kind and outcome.
func (j *Journal) Record(ctx context.Context, rep *report.Report) error {
	return j.store.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, kind, outcome, exit_code, started_at, finished_at, detail)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rep.ID, string(rep.Kind), string(rep.Outcome), rep.ExitCode,
			formatTime(rep.StartedAt), formatTime(rep.FinishedAt), rep.Detail,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_totals (kind, outcome, count) VALUES (?, ?, 1)
			 ON CONFLICT(kind, outcome) DO UPDATE SET count = count + 1`,
			string(rep.Kind), string(rep.Outcome),
		)
		if err != nil {
			return fmt.Errorf("bump run total: %w", err)
		}
		for i, s := range rep.Steps {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO steps (run_id, seq, name, ok, detail, duration_ms) VALUES (?, ?, ?, ?, ?, ?)`,
				rep.ID, i, s.Name, s.OK, s.Detail, s.Duration.Milliseconds(),
			)
			if err != nil {
				return fmt.Errorf("insert step %d: %w", i, err)
			}
		}
		return nil
	})
}

// Recent returns up to limit reports, newest first. An empty kind matches
// every kind. A zero limit means 20; a negative limit returns everything.
func (j *Journal) Recent(ctx context.Context, kind report.Kind, limit int) ([]report.Report, error) {
	if limit == 0 {
		limit = 20
	}
	if limit < 0 {
		limit = -1
	}
	rows, err := j.store.DB().QueryContext(ctx,
		`SELECT id, kind, outcome, exit_code, started_at, finished_at, detail
		 FROM runs WHERE (? = '' OR kind = ?)
		 ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		string(kind), string(kind), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []report.Report
	for rows.Next() {
		var r report.Report
		var k, o, started, finished string
		if err := rows.Scan(&r.ID, &k, &o, &r.ExitCode, &started, &finished, &r.Detail); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		r.Kind = report.Kind(k)
		r.Outcome = report.Outcome(o)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		steps, err := j.steps(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Steps = steps
	}
	return out, nil
}

func (j *Journal) steps(ctx context.Context, runID string) ([]report.Step, error) {
	rows, err := j.store.DB().QueryContext(ctx,
		`SELECT name, ok, detail, duration_ms FROM steps WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var out []report.Step
	for rows.Next() {
		var s report.Step
		var ms int64
		if err := rows.Scan(&s.Name, &s.OK, &s.Detail, &ms); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		s.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountSince counts runs of kind with outcome started at or after since.
func (j *Journal) CountSince(ctx context.Context, kind report.Kind, outcome report.Outcome, since time.Time) (int, error) {
	var n int
	err := j.store.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE kind = ? AND outcome = ? AND started_at >= ?`,
		string(kind), string(outcome), formatTime(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

// Prune deletes runs that started before cutoff, with their steps. The run
// tally read by Totals is left untouched.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.store.DB().ExecContext(ctx,
		`DELETE FROM runs WHERE started_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

// Total is the number of runs ever recorded with one kind and outcome.
type Total struct {
	Kind    report.Kind
	Outcome report.Outcome
	Count   int
}

// Totals returns the run tally by kind and outcome. Pruning never lowers it,
// so it is safe to seed monotonic counters from.
func (j *Journal) Totals(ctx context.Context) ([]Total, error) {
	rows, err := j.store.DB().QueryContext(ctx,
		`SELECT kind, outcome, count FROM run_totals ORDER BY kind, outcome`)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}
	defer rows.Close()

	var out []Total
	for rows.Next() {
		var t Total
		var k, o string
		if err := rows.Scan(&k, &o, &t.Count); err != nil {
			return nil, fmt.Errorf("scan total: %w", err)
		}
		t.Kind, t.Outcome = report.Kind(k), report.Outcome(o)
		out = append(out, t)
	}
	return out, rows.Err()
}
