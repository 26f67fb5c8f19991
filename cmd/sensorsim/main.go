package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/datafilter/internal/codec"
	"codeberg.org/mutker/datafilter/internal/config"
	"codeberg.org/mutker/datafilter/internal/errors"
	"codeberg.org/mutker/datafilter/internal/logger"
	"codeberg.org/mutker/datafilter/internal/simulator"
	"codeberg.org/mutker/datafilter/internal/transport"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(execute())
}

func execute() int {
	cfg, err := config.LoadSensor(os.Args[1:])
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	sink, closeSink, err := openSink(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open output")
		return 1
	}
	defer closeSink()

	logger.Info().
		Str("sensor_id", cfg.SensorID).
		Dur("interval", cfg.Interval).
		Str("transport", cfg.Transport).
		Msg("Starting sensor simulator")

	var rng *rand.Rand
	if cfg.Seed != 0 {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}
	sensor := simulator.NewTemperatureSensor(cfg.SensorID, cfg.BaseTemp, cfg.Noise, rng)

	if err := emit(ctx, sensor, sink, cfg); err != nil {
		logger.Error().Err(err).Msg("Error in main loop")
		return 1
	}

	logger.Info().Msg("Stopped.")
	return 0
}

// emit writes one reading immediately and then one per interval.
func emit(ctx context.Context, sensor *simulator.TemperatureSensor, sink transport.Sink, cfg *config.SensorConfig) error {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for sent := 1; ; sent++ {
		reading := sensor.Read(time.Now())
		if err := sink.Send(ctx, codec.EncodeReading(reading)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		logger.Debug().
			Uint64("seq", reading.SequenceNumber).
			Float64("temperature", reading.Temperature).
			Msg("Reading sent")

		if cfg.Count > 0 && sent >= cfg.Count {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func openSink(ctx context.Context, cfg *config.SensorConfig) (transport.Sink, func(), error) {
	if cfg.Transport == transport.ModeStdio {
		sink := transport.NewStdioSink(os.Stdout)
		return sink, func() { sink.Close() }, nil
	}

	session, err := transport.DialMQTT(ctx, cfg.MQTT, logger.Default())
	if err != nil {
		return nil, nil, err
	}

	sink := session.Sink(cfg.MQTT.OutputTopic, map[string]string{"source": "sensorSimulator"})
	return sink, func() {
		if err := session.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to disconnect from MQTT broker")
		}
	}, nil
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Shutting down...")
	cancel()
}
