package config

import (
	"strconv"
	"time"

	"codeberg.org/mutker/datafilter/internal/errors"
	"codeberg.org/mutker/datafilter/internal/simulator"
	"codeberg.org/mutker/datafilter/internal/transport"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SensorConfig configures the sensor simulator.
type SensorConfig struct {
	LogLevel  LogLevel             `mapstructure:"log_level"`
	SensorID  string               `mapstructure:"sensor_id"`
	Interval  time.Duration        `mapstructure:"interval"`
	BaseTemp  float64              `mapstructure:"base_temp"`
	Noise     float64              `mapstructure:"noise"`
	Count     int                  `mapstructure:"count"`
	Seed      int64                `mapstructure:"seed"`
	Transport string               `mapstructure:"transport"`
	MQTT      transport.MQTTConfig `mapstructure:"mqtt"`
}

// LoadSensor reads the simulator configuration from flags and the
// SENSOR_ID and TELEMETRY_INTERVAL_MS environment variables.
func LoadSensor(args []string) (*SensorConfig, error) {
	errFactory := errors.New()
	mc := transport.DefaultMQTTConfig()

	fs := pflag.NewFlagSet("sensorsim", pflag.ContinueOnError)
	fs.String("log-level", string(DefaultLogLevel), "Log level (debug, info, warning, error)")
	fs.String("sensor-id", simulator.DefaultSensorID, "Sensor id written into every reading")
	fs.Duration("interval", simulator.DefaultInterval, "Time between readings")
	fs.Float64("base-temp", simulator.DefaultBaseTemp, "Temperature the simulation wanders around")
	fs.Float64("noise", simulator.DefaultNoise, "Standard deviation of per-reading noise")
	fs.Int("count", 0, "Stop after this many readings (0 runs until interrupted)")
	fs.Int64("seed", 0, "Random seed (0 seeds from the clock)")
	fs.String("transport", transport.ModeStdio, "Where readings go (stdio, mqtt)")
	fs.String("mqtt-broker", mc.Broker, "MQTT broker address (host:port)")
	fs.String("mqtt-topic", mc.InputTopic, "Topic to publish readings to")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	if err := v.BindEnv("sensor_id", "SENSOR_ID"); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	if err := v.BindEnv("interval_ms", "TELEMETRY_INTERVAL_MS"); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	for name, key := range map[string]string{
		"log-level":   "log_level",
		"sensor-id":   "sensor_id",
		"interval":    "interval",
		"base-temp":   "base_temp",
		"noise":       "noise",
		"count":       "count",
		"seed":        "seed",
		"transport":   "transport",
		"mqtt-broker": "mqtt.broker",
		"mqtt-topic":  "mqtt.output_topic",
	} {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	cfg := &SensorConfig{MQTT: mc}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if !fs.Changed("interval") && v.IsSet("interval_ms") {
		ms, err := strconv.Atoi(v.GetString("interval_ms"))
		if err != nil || ms <= 0 {
			return nil, errFactory.WithData(errors.ErrInvalidConfig, struct {
				Variable string
				Value    string
			}{"TELEMETRY_INTERVAL_MS", v.GetString("interval_ms")})
		}
		cfg.Interval = time.Duration(ms) * time.Millisecond
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *SensorConfig) Validate() error {
	errFactory := errors.New()

	if !c.LogLevel.IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.SensorID == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "sensor id must not be empty")
	}
	if c.Interval <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "interval must be positive")
	}
	if c.Count < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "count must not be negative")
	}
	if !transport.ValidMode(c.Transport) {
		return errFactory.WithData(errors.ErrInvalidTransport, c.Transport)
	}
	if c.Transport == transport.ModeMQTT {
		return c.MQTT.Validate()
	}

	return nil
}
