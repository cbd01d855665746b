package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eegstream/core"
)

func TestOpen_Sources(t *testing.T) {
	dir := t.TempDir()
	dataset := filepath.Join(dir, "rec.csv")
	require.NoError(t, os.WriteFile(dataset, []byte(recording), 0o644))

	t.Run("sine", func(t *testing.T) {
		src, err := Open(&core.Config{Source: core.SourceSine}, nil)
		require.NoError(t, err)
		assert.IsType(t, &SineSource{}, src)
	})

	t.Run("csv", func(t *testing.T) {
		src, err := Open(&core.Config{Source: core.SourceCSV, DatasetPath: dataset, DatasetColumn: 1}, nil)
		require.NoError(t, err)
		csv, ok := src.(*CSVSource)
		require.True(t, ok)
		assert.NoError(t, csv.Close())
	})

	t.Run("missing dataset", func(t *testing.T) {
		_, err := Open(&core.Config{Source: core.SourceCSV, DatasetPath: filepath.Join(dir, "nope.csv")}, nil)
		require.Error(t, err)
		assert.Equal(t, core.ErrCodeDatasetMissing, core.GetErrorCode(err))
	})

	t.Run("missing serial device", func(t *testing.T) {
		_, err := Open(&core.Config{Source: core.SourceSerial, SerialDevice: filepath.Join(dir, "ttyNONE"), SerialBaud: 115200}, nil)
		require.Error(t, err)
		assert.Equal(t, core.ErrCodeSerialDeviceMissing, core.GetErrorCode(err))
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := Open(&core.Config{Source: "bluetooth"}, nil)
		require.Error(t, err)
		assert.Equal(t, core.ErrCodeInvalidSource, core.GetErrorCode(err))
	})
}

func TestProducerConfigFrom(t *testing.T) {
	tests := []struct {
		policy core.WritePolicy
		want   Policy
	}{
		{core.WriteRetry, PolicyRetry},
		{core.WriteDrop, PolicyDrop},
		{core.WriteOverwrite, PolicyOverwrite},
		{"", PolicyRetry},
	}
	for _, tt := range tests {
		cfg := &core.Config{SampleRate: 250, WritePolicy: tt.policy, RetryDelay: time.Millisecond}
		pc := ProducerConfigFrom(cfg, nil)
		assert.Equal(t, tt.want, pc.Policy, "policy %q", tt.policy)
		assert.Equal(t, 250.0, pc.Rate)
		assert.Equal(t, time.Millisecond, pc.RetryDelay)
	}
}
