package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/datafilter/internal/config"
	"codeberg.org/mutker/datafilter/internal/errors"
	"codeberg.org/mutker/datafilter/internal/filter"
	"codeberg.org/mutker/datafilter/internal/logger"
	"codeberg.org/mutker/datafilter/internal/metrics"
	"codeberg.org/mutker/datafilter/internal/pid"
	"codeberg.org/mutker/datafilter/internal/pipeline"
	"codeberg.org/mutker/datafilter/internal/quarantine"
	"codeberg.org/mutker/datafilter/internal/transport"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(execute())
}

func execute() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	level, err := logger.ParseLevel(cfg.LogLevel.String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set log level: %v\n", err)
		return 1
	}
	logger.Init(level, logger.IsService())
	logger.Debug().Str("config_file", cfg.ConfigFile).Msg("Config loaded")

	if cfg.PIDFile != "" {
		if err := pid.Write(cfg.PIDFile); err != nil {
			logger.Error().Err(err).Str("path", cfg.PIDFile).Msg("Failed to write PID file")
			return 1
		}
		defer func() {
			if err := pid.Remove(cfg.PIDFile); err != nil {
				logger.Error().Err(err).Msg("Failed to remove PID file")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)
	go watchConfig(ctx, cfg)

	code := 0
	if err := run(ctx, cfg); err != nil {
		logger.Error().Err(err).Msg("Error in main loop")
		code = 1
	}
	logger.Info().Msg("Exiting...")

	return code
}

func watchConfig(ctx context.Context, cfg *config.Config) {
	err := config.Watch(ctx, cfg, func(l config.LogLevel) {
		if level, err := logger.ParseLevel(l.String()); err == nil {
			logger.SetLogLevel(level)
		}
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Configuration watcher stopped")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logStartup(cfg)

	var opts []pipeline.Option
	if cfg.PerSensor {
		opts = append(opts, pipeline.WithPerSensorFilters())
	}
	p, err := pipeline.New(cfg.Filter, opts...)
	if err != nil {
		return errors.New().Wrap(errors.ErrInvalidFilter, err)
	}

	log := logger.Default()

	collector, err := metrics.NewService(cfg.Metrics, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := collector.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close metrics")
		}
	}()

	runnerOpts := []pipeline.RunnerOption{
		pipeline.WithLogger(log),
		pipeline.WithMetrics(collector, cfg.Metrics.Interval),
	}

	if cfg.Quarantine.Enabled {
		store, err := quarantine.NewStore(cfg.Quarantine, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close quarantine store")
			}
		}()
		runnerOpts = append(runnerOpts, pipeline.WithQuarantine(store))
	}

	source, sink, rejects, closeTransport, err := openTransport(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTransport()
	if rejects != nil {
		runnerOpts = append(runnerOpts, pipeline.WithRejectSink(rejects))
	}

	summary, err := pipeline.NewRunner(p, source, sink, runnerOpts...).Run(ctx)

	logger.Info().
		Uint64("total", summary.Total).
		Uint64("accepted", summary.Accepted).
		Uint64("rejected", summary.Rejected).
		Uint64("out_of_range", summary.OutOfRange).
		Uint64("spikes", summary.Spikes).
		Uint64("decode_failures", summary.DecodeFailures).
		Int("sensors", summary.Sensors).
		Msgf("Stats: %s", summary)

	return err
}

func openTransport(ctx context.Context, cfg *config.Config) (
	source transport.Source, sink, rejects transport.Sink, closeFn func(), err error,
) {
	if cfg.Transport == transport.ModeStdio {
		source = transport.NewStdioSource(os.Stdin)
		sink = transport.NewStdioSink(os.Stdout)
		closeFn = func() {
			source.Close()
			sink.Close()
		}
		return source, sink, nil, closeFn, nil
	}

	session, err := transport.DialMQTT(ctx, cfg.MQTT, logger.Default())
	if err != nil {
		return nil, nil, nil, nil, err
	}

	source, err = session.Source(ctx, cfg.MQTT.InputTopic)
	if err != nil {
		session.Close()
		return nil, nil, nil, nil, err
	}

	sink = session.Sink(cfg.MQTT.OutputTopic, map[string]string{"source": "dataFilter", "filterPassed": "true"})
	if cfg.MQTT.RejectTopic != "" {
		rejects = session.Sink(cfg.MQTT.RejectTopic, map[string]string{"source": "dataFilter", "filterPassed": "false"})
	}

	closeFn = func() {
		if err := source.Close(); err != nil {
			logger.Debug().Err(err).Msg("Failed to close MQTT source")
		}
		if err := session.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to disconnect from MQTT broker")
		}
	}

	return source, sink, rejects, closeFn, nil
}

func logStartup(cfg *config.Config) {
	logger.Info().
		Str("transport", cfg.Transport).
		Float64("temp_min_valid", cfg.Filter.TempMinValid).
		Float64("temp_max_valid", cfg.Filter.TempMaxValid).
		Float64("noise_threshold", cfg.Filter.NoiseThreshold).
		Int("spike_window", cfg.Filter.SpikeWindow).
		Bool("per_sensor", cfg.PerSensor).
		Msgf("Valid range: [%.2f, %.2f] °C, noise threshold %.2f",
			cfg.Filter.TempMinValid, cfg.Filter.TempMaxValid, cfg.Filter.NoiseThreshold)

	if !cfg.Filter.SpikeDetectionEnabled() {
		logger.Warn().
			Int("spike_window", cfg.Filter.SpikeWindow).
			Int("required", filter.MinSpikeHistory).
			Msg("Spike window too small; spike detection is disabled")
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
