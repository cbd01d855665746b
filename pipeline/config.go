package pipeline

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"eegstream/core"
	"eegstream/ringbuffer"
)

// SpecsFromConfig resolves the configured stages into StageSpecs.
func SpecsFromConfig(stages []core.StageConfig) ([]StageSpec, error) {
	specs := make([]StageSpec, 0, len(stages))
	for _, sc := range stages {
		t, err := ParseTransform(sc.Transform, sc.Factor)
		if err != nil {
			return nil, core.ErrInvalidValue(
				fmt.Sprintf("transform of stage %s", sc.Name), sc.Transform, fmt.Sprint(TransformNames()))
		}
		if sc.Transform == "" || sc.Transform == "identity" {
			t = nil
		}
		specs = append(specs, StageSpec{Name: sc.Name, Capacity: sc.Capacity, Transform: t})
	}
	return specs, nil
}

// StreamOptionsFromConfig maps lock and overwrite settings onto stream
// options. reg may be nil to disable per-stream collectors.
func StreamOptionsFromConfig(cfg *core.Config, reg prometheus.Registerer) []ringbuffer.Option {
	overwrite, _ := ringbuffer.ParseOverwritePolicy(cfg.Overwrite)
	opts := []ringbuffer.Option{
		ringbuffer.WithOverwritePolicy(overwrite),
		ringbuffer.WithAcquirePolicy(ringbuffer.AcquirePolicy{
			RetryInterval:   cfg.LockRetryInterval,
			DiagnosticEvery: cfg.LockDiagnosticEvery,
			MaxRetries:      cfg.LockMaxRetries,
		}),
	}
	if reg != nil {
		opts = append(opts, ringbuffer.WithMetrics(reg, "eegstream"))
	}
	return opts
}

// FromConfig builds the configured pipeline.
func FromConfig(cfg *core.Config, reg prometheus.Registerer, logger *zap.Logger) (*Pipeline, error) {
	specs, err := SpecsFromConfig(cfg.Stages)
	if err != nil {
		return nil, err
	}
	return New(specs, Options{
		StreamOptions: StreamOptionsFromConfig(cfg, reg),
		Logger:        logger,
		RelayIdle:     cfg.LockRetryInterval,
		ConsumerTick:  cfg.ConsumerTick,
		ConsumerBatch: cfg.ConsumerBatch,
		Drain:         cfg.Source == core.SourceCSV && !cfg.DatasetLoop,
	})
}
