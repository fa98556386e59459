package mapstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/boundarymap/internal/boundarymap"
	"github.com/banshee-data/boundarymap/internal/monitoring"
)

// Array kinds stored per run.
const (
	KindLabels            = "labels"
	KindConfidence        = "confidence"
	KindProjection        = "projection"
	KindInverseProjection = "inverse_projection"
)

// ErrRunNotFound is returned when a run ID has no stored record.
var ErrRunNotFound = errors.New("mapstore: run not found")

// Run describes one stored boundary map.
type Run struct {
	RunID      string          `json:"run_id"`
	Resolution int             `json:"resolution"`
	ParamsJSON json.RawMessage `json:"params_json,omitempty"`
	Kinds      []string        `json:"kinds"`
	CreatedAt  int64           `json:"created_at"`
}

// Store provides persistence for boundary maps.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and migrates it to the
// latest schema.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveMap persists every non-nil image of m under a new run ID and returns
// that ID. params is stored verbatim and may be nil.
func (s *Store) SaveMap(ctx context.Context, m *boundarymap.Map, params json.RawMessage) (string, error) {
	if m == nil {
		return "", fmt.Errorf("nil map")
	}

	arrays := map[string]*mat.Dense{
		KindLabels:            m.Labels,
		KindConfidence:        m.Confidence,
		KindProjection:        m.ProjectionErrors,
		KindInverseProjection: m.InverseProjectionErrors,
	}
	blobs := make(map[string][]byte, len(arrays))
	for kind, a := range arrays {
		if a == nil {
			continue
		}
		blob, err := encodeArray(a)
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", kind, err)
		}
		blobs[kind] = blob
	}

	trainJSON, err := json.Marshal(m.TrainPixels)
	if err != nil {
		return "", fmt.Errorf("marshal train pixels: %w", err)
	}
	testJSON, err := json.Marshal(m.TestPixels)
	if err != nil {
		return "", fmt.Errorf("marshal test pixels: %w", err)
	}

	var paramsStr interface{}
	if len(params) > 0 {
		paramsStr = string(params)
	}

	runID := uuid.New().String()
	createdAt := s.now().UnixNano()

	err = retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO boundary_map_runs (
				run_id, resolution, params_json, train_pixels_json, test_pixels_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?)`,
			runID, m.Resolution, paramsStr, string(trainJSON), string(testJSON), createdAt,
		); err != nil {
			return err
		}

		for kind, blob := range blobs {
			r, c := arrays[kind].Dims()
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO boundary_map_arrays (run_id, kind, rows, cols, array_blob)
				VALUES (?, ?, ?, ?, ?)`,
				runID, kind, r, c, blob,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	monitoring.Logf("[mapstore] saved run %s: resolution=%d arrays=%d", runID, m.Resolution, len(blobs))
	return runID, nil
}

// LoadMap returns the stored map and its run record.
func (s *Store) LoadMap(ctx context.Context, runID string) (*boundarymap.Map, *Run, error) {
	var (
		run                 Run
		paramsStr           sql.NullString
		trainJSON, testJSON sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, resolution, params_json, train_pixels_json, test_pixels_json, created_at
		FROM boundary_map_runs
		WHERE run_id = ?`, runID,
	).Scan(&run.RunID, &run.Resolution, &paramsStr, &trainJSON, &testJSON, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("scan run: %w", err)
	}
	if paramsStr.Valid {
		run.ParamsJSON = json.RawMessage(paramsStr.String)
	}

	m := &boundarymap.Map{Resolution: run.Resolution}
	if trainJSON.Valid {
		if err := json.Unmarshal([]byte(trainJSON.String), &m.TrainPixels); err != nil {
			return nil, nil, fmt.Errorf("unmarshal train pixels: %w", err)
		}
	}
	if testJSON.Valid {
		if err := json.Unmarshal([]byte(testJSON.String), &m.TestPixels); err != nil {
			return nil, nil, fmt.Errorf("unmarshal test pixels: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, rows, cols, array_blob
		FROM boundary_map_arrays
		WHERE run_id = ?
		ORDER BY kind`, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("query arrays: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind string
			r, c int
			blob []byte
		)
		if err := rows.Scan(&kind, &r, &c, &blob); err != nil {
			return nil, nil, fmt.Errorf("scan array: %w", err)
		}
		a, err := decodeArray(blob, r, c)
		if err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		switch kind {
		case KindLabels:
			m.Labels = a
		case KindConfidence:
			m.Confidence = a
		case KindProjection:
			m.ProjectionErrors = a
		case KindInverseProjection:
			m.InverseProjectionErrors = a
		default:
			monitoring.Logf("[mapstore] run %s: ignoring unknown array kind %q", runID, kind)
			continue
		}
		run.Kinds = append(run.Kinds, kind)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return m, &run, nil
}

// ListRuns returns all runs, newest first. Kinds is populated per run.
func (s *Store) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.resolution, r.params_json, r.created_at,
		       COALESCE(GROUP_CONCAT(a.kind), '')
		FROM boundary_map_runs r
		LEFT JOIN boundary_map_arrays a ON a.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var (
			run       Run
			paramsStr sql.NullString
			kinds     string
		)
		if err := rows.Scan(&run.RunID, &run.Resolution, &paramsStr, &run.CreatedAt, &kinds); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if paramsStr.Valid {
			run.ParamsJSON = json.RawMessage(paramsStr.String)
		}
		if kinds != "" {
			run.Kinds = strings.Split(kinds, ",")
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its arrays.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM boundary_map_arrays WHERE run_id = ?`, runID); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM boundary_map_runs WHERE run_id = ?`, runID)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return tx.Commit()
	})
}

const (
	busyRetries   = 5
	busyBaseDelay = 10 * time.Millisecond
)

// retryOnBusy retries fn while SQLite reports the database as busy or locked.
func retryOnBusy(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < busyRetries; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(busyBaseDelay * time.Duration(attempt+1)):
		}
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
