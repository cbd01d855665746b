package db

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"eegstream/pipeline"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// Session statuses.
const (
	SessionRunning  = "running"
	SessionFinished = "finished"
	SessionFailed   = "failed"
)

// Session is one acquisition run.
type Session struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	SampleRate float64   `json:"sample_rate"`
	Stages     []string  `json:"stages"`
	Status     string    `json:"status"`
	Produced   int64     `json:"produced"`
	Dropped    int64     `json:"dropped"`
	Consumed   int64     `json:"consumed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// StageSnapshotRecord is one row of stage_snapshots.
type StageSnapshotRecord struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	Stage        string    `json:"stage"`
	Capacity     int       `json:"capacity"`
	Length       int64     `json:"length"`
	HighWater    int64     `json:"high_water"`
	Writes       int64     `json:"writes"`
	Rejected     int64     `json:"rejected"`
	Overwritten  int64     `json:"overwritten"`
	Reads        int64     `json:"reads"`
	EmptyReads   int64     `json:"empty_reads"`
	LockTimeouts int64     `json:"lock_timeouts"`
	CreatedAt    time.Time `json:"created_at"`
}

// SampleBlock is a run of consecutive consumed samples.
type SampleBlock struct {
	SessionID  string
	Seq        int64
	FirstIndex int64
	Samples    []float32
	CreatedAt  time.Time
}

// Repository reads and writes recording tables. Snapshot and sample writes
// go through the AsyncWriter when one is running and fall back to
// synchronous writes when its queue is full.
type Repository struct {
	db    *Database
	async *AsyncWriter
}

// NewRepository creates a repository. async may be nil.
func NewRepository(db *Database, async *AsyncWriter) *Repository {
	return &Repository{db: db, async: async}
}

// CreateSession inserts a running session.
func (r *Repository) CreateSession(ctx context.Context, s Session) error {
	stages, err := json.Marshal(s.Stages)
	if err != nil {
		return fmt.Errorf("failed to encode stages: %w", err)
	}
	if s.Status == "" {
		s.Status = SessionRunning
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, source, sample_rate, stages, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.Source, s.SampleRate, string(stages), s.Status, formatTime(s.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// FinishSession records the final counters and status of a session.
func (r *Repository) FinishSession(ctx context.Context, id, status string, snap pipeline.Snapshot) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = ?, produced = ?, dropped = ?, consumed = ?, finished_at = ?
		WHERE id = ?`,
		status, snap.Producer.Produced, snap.Producer.Dropped, snap.Consumer.Consumed,
		formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// InsertSnapshot stores one row per stage of snap.
func (r *Repository) InsertSnapshot(ctx context.Context, snap pipeline.Snapshot) error {
	if r.queue(snapshotOp{snap: snap}) {
		return nil
	}
	return r.insertSnapshot(ctx, snap)
}

func (r *Repository) insertSnapshot(ctx context.Context, snap pipeline.Snapshot) error {
	at := formatTime(snap.Time)
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO stage_snapshots (
				session_id, stage, capacity, length, high_water, writes, rejected,
				overwritten, reads, empty_reads, lock_timeouts, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare snapshot insert: %w", err)
		}
		defer stmt.Close()

		for _, st := range snap.Stages {
			if _, err := stmt.ExecContext(ctx,
				snap.SessionID, st.Name, st.Capacity, st.Length, st.HighWater, st.Writes,
				st.Rejected, st.Overwritten, st.Reads, st.EmptyReads, st.LockTimeouts, at,
			); err != nil {
				return fmt.Errorf("failed to insert snapshot of %s: %w", st.Name, err)
			}
		}
		return nil
	})
}

// InsertSampleBlock stores a block of samples.
func (r *Repository) InsertSampleBlock(ctx context.Context, b SampleBlock) error {
	if r.queue(sampleBlockOp{block: b}) {
		return nil
	}
	return r.insertSampleBlock(ctx, b)
}

func (r *Repository) insertSampleBlock(ctx context.Context, b SampleBlock) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sample_blocks (session_id, seq, first_index, count, samples, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.SessionID, b.Seq, b.FirstIndex, len(b.Samples), EncodeSamples(b.Samples), formatTime(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert sample block %d: %w", b.Seq, err)
	}
	return nil
}

// ListSessions returns the most recent sessions, newest first.
func (r *Repository) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source, sample_rate, stages, status, produced, dropped, consumed,
		       started_at, finished_at
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// GetSession returns one session or ErrNotFound.
func (r *Repository) GetSession(ctx context.Context, id string) (Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source, sample_rate, stages, status, produced, dropped, consumed,
		       started_at, finished_at
		FROM sessions
		WHERE id = ?`, id)
	if err != nil {
		return Session{}, fmt.Errorf("failed to query session: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Session{}, fmt.Errorf("failed to query session: %w", err)
		}
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return scanSession(rows)
}

func scanSession(rows *sql.Rows) (Session, error) {
	var (
		s                 Session
		stages            string
		started, finished any
	)
	err := rows.Scan(&s.ID, &s.Source, &s.SampleRate, &stages, &s.Status,
		&s.Produced, &s.Dropped, &s.Consumed, &started, &finished)
	if err != nil {
		return Session{}, fmt.Errorf("failed to scan session: %w", err)
	}
	if err := json.Unmarshal([]byte(stages), &s.Stages); err != nil {
		return Session{}, fmt.Errorf("session %s has malformed stages: %w", s.ID, err)
	}
	s.StartedAt = parseTime(started)
	s.FinishedAt = parseTime(finished)
	return s, nil
}

// SessionSnapshots returns up to limit stage snapshots of a session, oldest
// first. limit <= 0 returns all of them.
func (r *Repository) SessionSnapshots(ctx context.Context, sessionID string, limit int) ([]StageSnapshotRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, stage, capacity, length, high_water, writes, rejected,
		       overwritten, reads, empty_reads, lock_timeouts, created_at
		FROM stage_snapshots
		WHERE session_id = ?
		ORDER BY id
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	out := []StageSnapshotRecord{}
	for rows.Next() {
		var (
			rec StageSnapshotRecord
			at  any
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Stage, &rec.Capacity, &rec.Length,
			&rec.HighWater, &rec.Writes, &rec.Rejected, &rec.Overwritten, &rec.Reads,
			&rec.EmptyReads, &rec.LockTimeouts, &at); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		rec.CreatedAt = parseTime(at)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return out, nil
}

// LoadSamples returns the recorded samples of a session in order.
func (r *Repository) LoadSamples(ctx context.Context, sessionID string) ([]float32, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT samples FROM sample_blocks
		WHERE session_id = ?
		ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	out := []float32{}
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("failed to scan sample block: %w", err)
		}
		samples, err := DecodeSamples(blob)
		if err != nil {
			return nil, err
		}
		out = append(out, samples...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sample blocks: %w", err)
	}
	return out, nil
}

// CountSamples returns the number of recorded samples of a session.
func (r *Repository) CountSamples(ctx context.Context, sessionID string) (int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT COALESCE(SUM(count), 0) FROM sample_blocks WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}
	defer rows.Close()

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to count samples: %w", err)
		}
	}
	return n, rows.Err()
}

// EncodeSamples packs samples as little-endian float32, the same layout the
// acquisition board sends.
func EncodeSamples(samples []float32) []byte {
	out := make([]byte, 0, 4*len(samples))
	for _, v := range samples {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

// DecodeSamples reverses EncodeSamples.
func DecodeSamples(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("sample block length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out, nil
}

type snapshotOp struct{ snap pipeline.Snapshot }

type sampleBlockOp struct{ block SampleBlock }

func (r *Repository) queue(op any) bool {
	return r.async != nil && r.async.IsStarted() && r.async.Write(op)
}

// AsyncWriteHandler applies operations queued by the repository.
func (r *Repository) AsyncWriteHandler() WriteHandler {
	return func(ctx context.Context, op WriteOperation) error {
		switch data := op.Data.(type) {
		case snapshotOp:
			return r.insertSnapshot(ctx, data.snap)
		case sampleBlockOp:
			return r.insertSampleBlock(ctx, data.block)
		default:
			return fmt.Errorf("unexpected async operation %T", op.Data)
		}
	}
}
