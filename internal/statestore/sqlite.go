package statestore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"lwaobs/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("statestore: state.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("statestore: migrate: %w", err)
	}
	log.Debug("statestore.opened", logx.String("driver", "sqlite"), logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// fixed width so text order matches time order
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const recordColumns = `session_id, session_mode, session_drx_beam, pi_id, pi_name, project_id, config_file, cal_dir, status, time_loaded, updated_at`

func (s *sqliteStore) RegisterSession(ctx context.Context, rec SessionRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(`+recordColumns+`)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(session_id) DO NOTHING`,
		rec.SessionID, rec.Mode, nullInt(rec.Beam), nullStr(rec.PIID), nullStr(rec.PIName), nullStr(rec.ProjectID),
		nullStr(rec.ConfigFile), nullStr(rec.CalDir), rec.Status.String(),
		rec.LoadedAt.UTC().Format(timeLayout), rec.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) UpdateSessionStatus(ctx context.Context, id string, st Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE session_id = ?`,
		st.String(), time.Now().UTC().Format(timeLayout), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Session(ctx context.Context, id string) (SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM sessions WHERE session_id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, ErrNotFound
	}
	return rec, err
}

func (s *sqliteStore) List(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM sessions ORDER BY time_loaded, session_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (SessionRecord, error) {
	var (
		rec                                       SessionRecord
		beam                                      sql.NullInt64
		piID, piName, project, configFile, calDir sql.NullString
		status, loaded, updated                   string
	)
	if err := sc.Scan(&rec.SessionID, &rec.Mode, &beam, &piID, &piName, &project, &configFile, &calDir, &status, &loaded, &updated); err != nil {
		return SessionRecord{}, err
	}
	st, err := ParseStatus(status)
	if err != nil {
		return SessionRecord{}, err
	}
	rec.Status = st
	rec.Beam = int(beam.Int64)
	rec.PIID, rec.PIName, rec.ProjectID = piID.String, piName.String, project.String
	rec.ConfigFile, rec.CalDir = configFile.String, calDir.String
	rec.LoadedAt, _ = time.Parse(timeLayout, loaded)
	rec.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return rec, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}
