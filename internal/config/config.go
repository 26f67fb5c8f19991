package config

import (
	"os"
	"strings"

	"codeberg.org/mutker/datafilter/internal/errors"
	"codeberg.org/mutker/datafilter/internal/filter"
	"codeberg.org/mutker/datafilter/internal/metrics"
	"codeberg.org/mutker/datafilter/internal/quarantine"
	"codeberg.org/mutker/datafilter/internal/transport"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix  = "DATAFILTER"
	DefaultConfigFile = "/etc/datafilter.toml"
	DefaultLogLevel   = LogLevelInfo
)

type Config struct {
	LogLevel   LogLevel             `mapstructure:"log_level"`
	Transport  string               `mapstructure:"transport"`
	PIDFile    string               `mapstructure:"pidfile"`
	PerSensor  bool                 `mapstructure:"per_sensor"`
	Filter     filter.Config        `mapstructure:"filter"`
	MQTT       transport.MQTTConfig `mapstructure:"mqtt"`
	Metrics    metrics.Config       `mapstructure:"metrics"`
	Quarantine quarantine.Config    `mapstructure:"quarantine"`

	// ConfigFile is the file that was read, if any.
	ConfigFile string `mapstructure:"-"`

	envPrefix      string
	logLevelPinned bool
}

// flag name -> config key
var flagKeys = map[string]string{
	"log-level":         "log_level",
	"transport":         "transport",
	"pidfile":           "pidfile",
	"per-sensor":        "per_sensor",
	"temp-min-valid":    "filter.temp_min_valid",
	"temp-max-valid":    "filter.temp_max_valid",
	"noise-threshold":   "filter.noise_threshold",
	"spike-window":      "filter.spike_window",
	"mqtt-broker":       "mqtt.broker",
	"mqtt-client-id":    "mqtt.client_id",
	"mqtt-input-topic":  "mqtt.input_topic",
	"mqtt-output-topic": "mqtt.output_topic",
	"mqtt-reject-topic": "mqtt.reject_topic",
	"metrics":           "metrics.enabled",
	"metrics-db":        "metrics.db_path",
	"metrics-interval":  "metrics.interval",
	"metrics-textfile":  "metrics.textfile_path",
	"quarantine":        "quarantine.enabled",
	"quarantine-db":     "quarantine.db_path",
}

// Environment names understood without the prefix, kept for deployments
// configured before the prefixed names existed.
var legacyEnv = map[string]string{
	"filter.temp_min_valid":  "TEMP_MIN_VALID",
	"filter.temp_max_valid":  "TEMP_MAX_VALID",
	"filter.noise_threshold": "NOISE_THRESHOLD",
}

func setDefaults(v *viper.Viper) {
	fc := filter.DefaultConfig()
	mc := transport.DefaultMQTTConfig()
	mt := metrics.DefaultConfig()
	qc := quarantine.DefaultConfig()

	v.SetDefault("log_level", string(DefaultLogLevel))
	v.SetDefault("transport", transport.ModeStdio)
	v.SetDefault("pidfile", "")
	v.SetDefault("per_sensor", false)

	v.SetDefault("filter.temp_min_valid", fc.TempMinValid)
	v.SetDefault("filter.temp_max_valid", fc.TempMaxValid)
	v.SetDefault("filter.noise_threshold", fc.NoiseThreshold)
	v.SetDefault("filter.spike_window", fc.SpikeWindow)

	v.SetDefault("mqtt.broker", mc.Broker)
	v.SetDefault("mqtt.client_id", mc.ClientID)
	v.SetDefault("mqtt.username", mc.Username)
	v.SetDefault("mqtt.password", mc.Password)
	v.SetDefault("mqtt.keep_alive", mc.KeepAlive)
	v.SetDefault("mqtt.connect_timeout", mc.ConnectTimeout)
	v.SetDefault("mqtt.input_topic", mc.InputTopic)
	v.SetDefault("mqtt.output_topic", mc.OutputTopic)
	v.SetDefault("mqtt.reject_topic", mc.RejectTopic)

	v.SetDefault("metrics.enabled", mt.Enabled)
	v.SetDefault("metrics.db_path", mt.DBPath)
	v.SetDefault("metrics.batch_size", mt.BatchSize)
	v.SetDefault("metrics.batch_timeout", mt.BatchTimeout)
	v.SetDefault("metrics.interval", mt.Interval)
	v.SetDefault("metrics.textfile_path", mt.TextfilePath)

	v.SetDefault("quarantine.enabled", qc.Enabled)
	v.SetDefault("quarantine.db_path", qc.DBPath)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("datafilter", pflag.ContinueOnError)
	fc := filter.DefaultConfig()

	fs.String("config", "", "Path to a TOML configuration file")
	fs.String("log-level", string(DefaultLogLevel), "Log level (debug, info, warning, error)")
	fs.String("transport", transport.ModeStdio, "Record transport (stdio, mqtt)")
	fs.String("pidfile", "", "Write the process ID to this file")
	fs.Bool("per-sensor", false, "Keep a separate filter for each sensorId")
	fs.Float64("temp-min-valid", fc.TempMinValid, "Lowest plausible temperature")
	fs.Float64("temp-max-valid", fc.TempMaxValid, "Highest plausible temperature")
	fs.Float64("noise-threshold", fc.NoiseThreshold, "Spike sensitivity multiplier")
	fs.Int("spike-window", fc.SpikeWindow, "Number of recent readings used for spike detection")
	fs.String("mqtt-broker", "", "MQTT broker address (host:port)")
	fs.String("mqtt-client-id", "", "MQTT client id (random when empty)")
	fs.String("mqtt-input-topic", "", "Topic to read raw readings from")
	fs.String("mqtt-output-topic", "", "Topic to publish accepted readings to")
	fs.String("mqtt-reject-topic", "", "Topic to publish rejected readings to")
	fs.Bool("metrics", false, "Record filter metrics to the metrics database")
	fs.String("metrics-db", "", "Metrics database path")
	fs.Duration("metrics-interval", 0, "Interval between metrics snapshots")
	fs.String("metrics-textfile", "", "Write Prometheus metrics to this file")
	fs.Bool("quarantine", false, "Store rejected readings")
	fs.String("quarantine-db", "", "Quarantine database path")

	return fs
}

// Load builds the configuration from, in order of precedence, command line
// flags, environment variables, the configuration file and defaults.
// args excludes the program name.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, envName(o.envPrefix, key), legacy); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	path, explicit := configPath(fs, o)
	if path != "" {
		if err := readConfigFile(v, path, explicit); err != nil {
			return nil, err
		}
	}

	cfg := &Config{envPrefix: o.envPrefix}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()
	cfg.logLevelPinned = fs.Changed("log-level") || os.Getenv(envName(o.envPrefix, "log_level")) != ""

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// configPath picks the configuration file. Only a path given explicitly
// must exist.
func configPath(fs *pflag.FlagSet, o options) (path string, explicit bool) {
	if o.configPath != "" {
		return o.configPath, true
	}
	if p, _ := fs.GetString("config"); p != "" {
		return p, true
	}
	if p := os.Getenv(envName(o.envPrefix, "config")); p != "" {
		return p, true
	}

	return DefaultConfigFile, false
}

func readConfigFile(v *viper.Viper, path string, explicit bool) error {
	if !explicit && !fileExists(path) {
		return nil
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return errors.New().Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

func envName(prefix, key string) string {
	return strings.ToUpper(prefix + "_" + strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if !c.LogLevel.IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if !transport.ValidMode(c.Transport) {
		return errFactory.WithData(errors.ErrInvalidTransport, c.Transport)
	}
	if err := c.Filter.Validate(); err != nil {
		return errFactory.Wrap(errors.ErrInvalidFilter, err)
	}
	if c.Transport == transport.ModeMQTT {
		if err := c.MQTT.Validate(); err != nil {
			return err
		}
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	if err := c.Quarantine.Validate(); err != nil {
		return err
	}

	return nil
}

// LogLevelFromFile reports whether the log level may follow the
// configuration file, i.e. it was not set by flag or environment.
func (c *Config) LogLevelFromFile() bool {
	return c.ConfigFile != "" && !c.logLevelPinned
}
