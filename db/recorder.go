package db

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"eegstream/pipeline"
)

// DefaultBlockSize is the number of samples stored per sample_blocks row.
const DefaultBlockSize = 250

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	SessionID  string
	Source     string
	SampleRate float64
	Stages     []string
	BlockSize  int
	Logger     *zap.Logger
}

// Recorder is a pipeline sink that persists consumed samples in blocks and
// pipeline snapshots as stage_snapshots rows.
type Recorder struct {
	repo      *Repository
	sessionID string
	blockSize int
	logger    *zap.Logger

	mu     sync.Mutex
	buf    []float32
	seq    int64
	index  int64
	closed bool
	errs   int
}

// NewRecorder creates the session row and returns a recorder for it.
func NewRecorder(ctx context.Context, repo *Repository, config RecorderConfig) (*Recorder, error) {
	if config.SessionID == "" {
		return nil, errors.New("recorder requires a session id")
	}
	if config.BlockSize <= 0 {
		config.BlockSize = DefaultBlockSize
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Stages == nil {
		config.Stages = []string{}
	}

	err := repo.CreateSession(ctx, Session{
		ID:         config.SessionID,
		Source:     config.Source,
		SampleRate: config.SampleRate,
		Stages:     config.Stages,
		StartedAt:  time.Now(),
	})
	if err != nil {
		return nil, err
	}

	return &Recorder{
		repo:      repo,
		sessionID: config.SessionID,
		blockSize: config.BlockSize,
		logger:    config.Logger.With(zap.String("session_id", config.SessionID)),
		buf:       make([]float32, 0, config.BlockSize),
	}, nil
}

// SessionID returns the recorded session.
func (r *Recorder) SessionID() string { return r.sessionID }

// Consume buffers v and stores a block once BlockSize samples are buffered.
func (r *Recorder) Consume(v float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.buf = append(r.buf, v)
	if len(r.buf) >= r.blockSize {
		r.flushLocked(context.Background())
	}
}

// Flush stores any buffered samples as a short block.
func (r *Recorder) Flush(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked(ctx)
}

func (r *Recorder) flushLocked(ctx context.Context) {
	if len(r.buf) == 0 {
		return
	}
	samples := make([]float32, len(r.buf))
	copy(samples, r.buf)

	block := SampleBlock{
		SessionID:  r.sessionID,
		Seq:        r.seq,
		FirstIndex: r.index,
		Samples:    samples,
		CreatedAt:  time.Now(),
	}
	r.seq++
	r.index += int64(len(samples))
	r.buf = r.buf[:0]

	if err := r.repo.InsertSampleBlock(ctx, block); err != nil {
		r.errs++
		if r.errs == 1 || r.errs%100 == 0 {
			r.logger.Warn("failed to store sample block",
				zap.Int64("seq", block.Seq), zap.Int("errors", r.errs), zap.Error(err))
		}
	}
}

// RecordSnapshot stores snap. It matches the metrics collector callback
// signature.
func (r *Recorder) RecordSnapshot(snap pipeline.Snapshot) {
	if snap.SessionID != r.sessionID {
		return
	}
	if err := r.repo.InsertSnapshot(context.Background(), snap); err != nil {
		r.logger.Warn("failed to store snapshot", zap.Error(err))
	}
}

// Close flushes buffered samples and marks the session finished with the
// counters of final. Further samples are ignored.
func (r *Recorder) Close(ctx context.Context, final pipeline.Snapshot, runErr error) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.flushLocked(ctx)
	r.closed = true
	r.mu.Unlock()

	status := SessionFinished
	if runErr != nil {
		status = SessionFailed
	}
	if err := r.repo.FinishSession(ctx, r.sessionID, status, final); err != nil {
		return err
	}
	r.logger.Info("recording finished",
		zap.String("status", status),
		zap.Int64("blocks", r.seq),
		zap.Int64("samples", r.index))
	return nil
}
