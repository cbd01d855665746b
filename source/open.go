package source

import (
	"errors"
	"io/fs"

	"go.uber.org/zap"

	"eegstream/core"
)

// Open builds the source selected by cfg.Source. Missing datasets and
// devices are reported as *core.ConfigError.
func Open(cfg *core.Config, logger *zap.Logger) (Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Source {
	case core.SourceSine:
		return NewSine(), nil
	case core.SourceCSV:
		src, err := OpenCSV(cfg.DatasetPath,
			WithColumn(cfg.DatasetColumn),
			WithLoop(cfg.DatasetLoop),
			WithCSVLogger(logger))
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, core.ErrDatasetMissing(cfg.DatasetPath)
		}
		if err != nil {
			return nil, err
		}
		return src, nil
	case core.SourceSerial:
		src, err := OpenSerial(cfg.SerialDevice, cfg.SerialBaud, WithSerialLogger(logger))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, core.ErrSerialDeviceMissing(cfg.SerialDevice)
		}
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return nil, core.ErrInvalidSource(string(cfg.Source))
}

// ProducerConfigFrom maps the runtime configuration onto a ProducerConfig.
func ProducerConfigFrom(cfg *core.Config, logger *zap.Logger) ProducerConfig {
	policy := PolicyRetry
	switch cfg.WritePolicy {
	case core.WriteDrop:
		policy = PolicyDrop
	case core.WriteOverwrite:
		policy = PolicyOverwrite
	}
	return ProducerConfig{
		Rate:       cfg.SampleRate,
		Policy:     policy,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	}
}
