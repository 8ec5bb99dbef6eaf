package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"` // json, text
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName   string              `yaml:"runtime_name"`
	Environment   string              `yaml:"environment"`
	HTTP          HTTPConfig          `yaml:"http"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Bus           BusConfig           `yaml:"bus"`
	EventStore    EventStoreConfig    `yaml:"event_store"`
	Recognition   RecognitionConfig   `yaml:"recognition"`
	Synthesis     SynthesisConfig     `yaml:"synthesis"`
	Commands      CommandsConfig      `yaml:"commands"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Shell         ShellConfig         `yaml:"shell"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type RecognitionConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Mode            string `yaml:"mode"` // mock, exec, bus
	Command         string `yaml:"command"`
	Language        string `yaml:"language"`
	InterimResults  bool   `yaml:"interim_results"`
	TimeoutMS       int    `yaml:"timeout_ms"`
	DispatchDelayMS int    `yaml:"dispatch_delay_ms"`
	Source          string `yaml:"source"` // bus mode: transcript session id to follow, empty for any
}

type SynthesisConfig struct {
	Enabled          bool    `yaml:"enabled"`
	Mode             string  `yaml:"mode"` // mock, exec
	Command          string  `yaml:"command"`
	Language         string  `yaml:"language"`
	Rate             float64 `yaml:"rate"`
	Pitch            float64 `yaml:"pitch"`
	Volume           float64 `yaml:"volume"`
	SampleRate       int     `yaml:"sample_rate"`
	Channels         int     `yaml:"channels"`
	BreakerFailures  int     `yaml:"breaker_failures"`
	BreakerTimeoutMS int     `yaml:"breaker_timeout_ms"`
}

type CommandsConfig struct {
	File string `yaml:"file"`
}

type NotificationsConfig struct {
	DefaultDurationMS int `yaml:"default_duration_ms"`
	MaxRetained       int `yaml:"max_retained"`
}

type ShellConfig struct {
	WebSocket  bool `yaml:"websocket"`
	PublishBus bool `yaml:"publish_bus"`
}

func Default() Config {
	return Config{
		RuntimeName: "voicenav",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			LogFormat:    "json",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/voicenav-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Recognition: RecognitionConfig{
			Enabled:         true,
			Mode:            "mock",
			Language:        "pt-BR",
			InterimResults:  true,
			TimeoutMS:       30000,
			DispatchDelayMS: 500,
		},
		Synthesis: SynthesisConfig{
			Enabled:          true,
			Mode:             "mock",
			Language:         "pt-BR",
			Rate:             0.9,
			Pitch:            1.0,
			Volume:           0.8,
			SampleRate:       22050,
			Channels:         1,
			BreakerFailures:  3,
			BreakerTimeoutMS: 30000,
		},
		Notifications: NotificationsConfig{
			DefaultDurationMS: 5000,
			MaxRetained:       50,
		},
		Shell: ShellConfig{
			WebSocket:  true,
			PublishBus: true,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "VOICENAV_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOICENAV_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOICENAV_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOICENAV_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOICENAV_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFormat, "VOICENAV_TELEMETRY_LOG_FORMAT")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOICENAV_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOICENAV_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "VOICENAV_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "VOICENAV_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "VOICENAV_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOICENAV_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "VOICENAV_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "VOICENAV_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOICENAV_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOICENAV_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOICENAV_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOICENAV_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOICENAV_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "VOICENAV_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "VOICENAV_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "VOICENAV_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "VOICENAV_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "VOICENAV_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Recognition.Enabled, "VOICENAV_RECOGNITION_ENABLED")
	overrideString(&cfg.Recognition.Mode, "VOICENAV_RECOGNITION_MODE")
	overrideString(&cfg.Recognition.Command, "VOICENAV_RECOGNITION_COMMAND")
	overrideString(&cfg.Recognition.Language, "VOICENAV_RECOGNITION_LANGUAGE")
	overrideBool(&cfg.Recognition.InterimResults, "VOICENAV_RECOGNITION_INTERIM_RESULTS")
	overrideInt(&cfg.Recognition.TimeoutMS, "VOICENAV_RECOGNITION_TIMEOUT_MS")
	overrideInt(&cfg.Recognition.DispatchDelayMS, "VOICENAV_RECOGNITION_DISPATCH_DELAY_MS")
	overrideString(&cfg.Recognition.Source, "VOICENAV_RECOGNITION_SOURCE")
	overrideBool(&cfg.Synthesis.Enabled, "VOICENAV_SYNTHESIS_ENABLED")
	overrideString(&cfg.Synthesis.Mode, "VOICENAV_SYNTHESIS_MODE")
	overrideString(&cfg.Synthesis.Command, "VOICENAV_SYNTHESIS_COMMAND")
	overrideString(&cfg.Synthesis.Language, "VOICENAV_SYNTHESIS_LANGUAGE")
	overrideFloat(&cfg.Synthesis.Rate, "VOICENAV_SYNTHESIS_RATE")
	overrideFloat(&cfg.Synthesis.Pitch, "VOICENAV_SYNTHESIS_PITCH")
	overrideFloat(&cfg.Synthesis.Volume, "VOICENAV_SYNTHESIS_VOLUME")
	overrideInt(&cfg.Synthesis.SampleRate, "VOICENAV_SYNTHESIS_SAMPLE_RATE")
	overrideInt(&cfg.Synthesis.Channels, "VOICENAV_SYNTHESIS_CHANNELS")
	overrideInt(&cfg.Synthesis.BreakerFailures, "VOICENAV_SYNTHESIS_BREAKER_FAILURES")
	overrideInt(&cfg.Synthesis.BreakerTimeoutMS, "VOICENAV_SYNTHESIS_BREAKER_TIMEOUT_MS")
	overrideString(&cfg.Commands.File, "VOICENAV_COMMANDS_FILE")
	overrideInt(&cfg.Notifications.DefaultDurationMS, "VOICENAV_NOTIFICATIONS_DEFAULT_DURATION_MS")
	overrideInt(&cfg.Notifications.MaxRetained, "VOICENAV_NOTIFICATIONS_MAX_RETAINED")
	overrideBool(&cfg.Shell.WebSocket, "VOICENAV_SHELL_WEBSOCKET")
	overrideBool(&cfg.Shell.PublishBus, "VOICENAV_SHELL_PUBLISH_BUS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch cfg.Telemetry.LogFormat {
	case "json", "text":
	default:
		return errors.New("telemetry.log_format must be one of json|text")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" && cfg.EventStore.RetentionMode != "ephemeral" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Recognition.Enabled {
		switch cfg.Recognition.Mode {
		case "mock", "exec", "bus":
		default:
			return errors.New("recognition.mode must be one of mock|exec|bus")
		}
		if cfg.Recognition.Mode == "exec" && cfg.Recognition.Command == "" {
			return errors.New("recognition.command must be set when mode=exec")
		}
		if cfg.Recognition.Mode == "bus" && !cfg.Bus.Enabled {
			return errors.New("recognition.mode=bus requires bus.enabled")
		}
		if cfg.Recognition.TimeoutMS <= 0 {
			return errors.New("recognition.timeout_ms must be positive")
		}
		if cfg.Recognition.DispatchDelayMS < 0 {
			return errors.New("recognition.dispatch_delay_ms must be >= 0")
		}
	}
	if cfg.Synthesis.Enabled {
		switch cfg.Synthesis.Mode {
		case "mock", "exec":
		default:
			return errors.New("synthesis.mode must be one of mock|exec")
		}
		if cfg.Synthesis.Mode == "exec" && cfg.Synthesis.Command == "" {
			return errors.New("synthesis.command must be set when mode=exec")
		}
		if cfg.Synthesis.Rate < 0 || cfg.Synthesis.Pitch < 0 {
			return errors.New("synthesis.rate and synthesis.pitch must be >= 0")
		}
		if cfg.Synthesis.Volume < 0 || cfg.Synthesis.Volume > 1 {
			return errors.New("synthesis.volume must be between 0 and 1")
		}
		if cfg.Synthesis.SampleRate <= 0 {
			return errors.New("synthesis.sample_rate must be positive")
		}
		if cfg.Synthesis.Channels <= 0 {
			return errors.New("synthesis.channels must be positive")
		}
	}
	if cfg.Notifications.DefaultDurationMS < 0 {
		return errors.New("notifications.default_duration_ms must be >= 0")
	}
	return nil
}
