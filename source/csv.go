package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Expected raw range of the recorded EEG dataset. Values outside it are
// still emitted but reported.
const (
	RawMin = 8000.0
	RawMax = 10000.0
)

// Normalize maps a raw dataset value onto roughly [-1, 1].
func Normalize(raw float64) float32 {
	return float32((raw-RawMin)/1000 - 1)
}

// ErrEmptyDataset is returned by a looping CSVSource when a full pass over
// the dataset yielded no value.
var ErrEmptyDataset = errors.New("dataset has no numeric values")

// CSVSource replays one column of a recorded CSV dataset.
type CSVSource struct {
	r      io.Reader
	seeker io.Seeker
	closer io.Closer

	column int
	loop   bool
	logger *zap.Logger

	reader     *csv.Reader
	row        int
	emitted    bool
	skipped    int
	outOfRange int
	warned     bool
}

// CSVOption configures a CSVSource.
type CSVOption func(*CSVSource)

// WithColumn selects the zero-based column to replay.
func WithColumn(col int) CSVOption {
	return func(s *CSVSource) { s.column = col }
}

// WithLoop restarts from the top of the file at EOF. The reader must
// implement io.Seeker.
func WithLoop(loop bool) CSVOption {
	return func(s *CSVSource) { s.loop = loop }
}

// WithCSVLogger sets the logger used for range warnings.
func WithCSVLogger(l *zap.Logger) CSVOption {
	return func(s *CSVSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewCSV reads samples from r. The default column is 1, the second field.
func NewCSV(r io.Reader, opts ...CSVOption) *CSVSource {
	s := &CSVSource{r: r, column: 1, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if sk, ok := r.(io.Seeker); ok {
		s.seeker = sk
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	s.reset()
	return s
}

// OpenCSV opens the dataset at path.
func OpenCSV(path string, opts ...CSVOption) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	return NewCSV(f, opts...), nil
}

func (s *CSVSource) reset() {
	s.reader = csv.NewReader(s.r)
	s.reader.FieldsPerRecord = -1
	s.reader.ReuseRecord = true
	s.reader.TrimLeadingSpace = true
}

// Next returns the next normalized value. Rows that are too short or whose
// column is not numeric are skipped. A looping source fails with
// ErrEmptyDataset instead of rewinding after a pass that emitted nothing.
func (s *CSVSource) Next(ctx context.Context) (float32, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		record, err := s.reader.Read()
		if errors.Is(err, io.EOF) {
			if !s.loop || s.seeker == nil {
				s.finish()
				return 0, io.EOF
			}
			if !s.emitted {
				s.finish()
				return 0, fmt.Errorf("%w in column %d", ErrEmptyDataset, s.column)
			}
			if _, err := s.seeker.Seek(0, io.SeekStart); err != nil {
				return 0, fmt.Errorf("rewind dataset: %w", err)
			}
			s.reset()
			s.logger.Debug("dataset rewound", zap.Int("rows", s.row))
			s.row = 0
			s.emitted = false
			continue
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			s.row++
			s.skipped++
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("read dataset: %w", err)
		}

		s.row++
		if s.column >= len(record) {
			s.skipped++
			continue
		}
		raw, err := strconv.ParseFloat(strings.TrimSpace(record[s.column]), 64)
		if err != nil {
			s.skipped++
			continue
		}

		s.emitted = true
		v := Normalize(raw)
		if raw < RawMin || raw > RawMax {
			s.outOfRange++
			if !s.warned {
				s.warned = true
				s.logger.Warn("dataset value outside expected range",
					zap.Float64("raw", raw),
					zap.Float32("scaled", v),
					zap.Int("row", s.row))
			}
		}
		return v, nil
	}
}

func (s *CSVSource) finish() {
	if s.outOfRange > 0 || s.skipped > 0 {
		s.logger.Info("dataset replay finished",
			zap.Int("out_of_range", s.outOfRange),
			zap.Int("skipped_rows", s.skipped))
	}
}

// Skipped returns the number of rows ignored so far.
func (s *CSVSource) Skipped() int { return s.skipped }

// OutOfRange returns how many emitted values fell outside [RawMin, RawMax].
func (s *CSVSource) OutOfRange() int { return s.outOfRange }

// Close closes the underlying file, if any.
func (s *CSVSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
