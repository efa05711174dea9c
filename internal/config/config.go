package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the optional YAML config path.
const EnvConfigPath = "BIRD_CONFIG"

type TelemetryConfig struct {
	LogLevel         string  `yaml:"log_level"`
	TraceExporter    string  `yaml:"trace_exporter"` // none, stdout, otlp
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
	OTLPEndpoint     string  `yaml:"otlp_endpoint"`
	OTLPInsecure     bool    `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	EventStore  EventStoreConfig  `yaml:"event_store"`
	LLM         LLMConfig         `yaml:"llm"`
	TTS         TTSConfig         `yaml:"tts"`
	Audio       AudioConfig       `yaml:"audio"`
	Button      ButtonConfig      `yaml:"button"`
	Printer     PrinterConfig     `yaml:"printer"`
	Actuator    ActuatorConfig    `yaml:"actuator"`
	Interaction InteractionConfig `yaml:"interaction"`
	Phrases     PhrasesConfig     `yaml:"phrases"`
}

type BusConfig struct {
	Enabled             bool     `yaml:"enabled"`
	Embedded            bool     `yaml:"embedded"`
	Port                int      `yaml:"port"`
	StoreDir            string   `yaml:"store_dir"`
	Servers             []string `yaml:"servers"`
	Username            string   `yaml:"username"`
	Password            string   `yaml:"password"`
	Token               string   `yaml:"token"`
	TLSInsecure         bool     `yaml:"tls_insecure"`
	ConnectTimeout      int      `yaml:"connect_timeout_ms"`
	HeartbeatIntervalMS int      `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeoutMS  int      `yaml:"heartbeat_timeout_ms"`
}

type EventStoreConfig struct {
	Path            string `yaml:"path"`
	RetentionMode   string `yaml:"retention_mode"`
	RetentionDays   int    `yaml:"retention_days"`
	MaxInteractions int    `yaml:"max_interactions"`
	VacuumOnStart   bool   `yaml:"vacuum_on_start"`
}

type LLMConfig struct {
	Mode        string  `yaml:"mode"` // mock, ollama, openai, exec
	Endpoint    string  `yaml:"endpoint"`
	APIKey      string  `yaml:"api_key"`
	Command     string  `yaml:"command"`
	Model       string  `yaml:"model"`
	ContextSize int     `yaml:"context_size"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TimeoutMS   int     `yaml:"timeout_ms"`
}

type TTSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	SpeakerWAV string `yaml:"speaker_wav"`
	Language   string `yaml:"language"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

type AudioConfig struct {
	PlayerCommand  string `yaml:"player_command"`
	AmbientDir     string `yaml:"ambient_dir"`
	PrerecordedDir string `yaml:"prerecorded_dir"`
	GeneratedDir   string `yaml:"generated_dir"`
	BeforeDir      string `yaml:"before_dir"`
	AfterDir       string `yaml:"after_dir"`
	AmbientDwellMS int    `yaml:"ambient_dwell_ms"`
	PhraseDwellMS  int    `yaml:"phrase_dwell_ms"`
	QueueWaitMS    int    `yaml:"queue_wait_ms"`
}

type ButtonConfig struct {
	Source        string `yaml:"source"` // serial, bus
	SerialPort    string `yaml:"serial_port"`
	BaudRate      int    `yaml:"baud_rate"`
	PressedValue  string `yaml:"pressed_value"`
	PollTimeoutMS int    `yaml:"poll_timeout_ms"`
}

type PrinterConfig struct {
	Enabled         bool   `yaml:"enabled"`
	DeviceName      string `yaml:"device_name"`
	WritePrefix     string `yaml:"write_prefix"`
	ReadPrefix      string `yaml:"read_prefix"`
	ScanTimeoutMS   int    `yaml:"scan_timeout_ms"`
	ScanIntervalMS  int    `yaml:"scan_interval_ms"`
	MaxScanAttempts int    `yaml:"max_scan_attempts"`
}

type ActuatorConfig struct {
	Mode            string `yaml:"mode"` // noop, scs
	SerialPort      string `yaml:"serial_port"`
	BaudRate        int    `yaml:"baud_rate"`
	ServoID         int    `yaml:"servo_id"`
	NeutralPosition int    `yaml:"neutral_position"`
	MinPosition     int    `yaml:"min_position"`
	MaxPosition     int    `yaml:"max_position"`
	Speed           int    `yaml:"speed"`
	Acceleration    int    `yaml:"acceleration"`
	MovingThreshold int    `yaml:"moving_threshold"`
	MoveTimeoutMS   int    `yaml:"move_timeout_ms"`
}

// PhrasesConfig lists the fixed lines bird-phrases speaks into the audio pools.
type PhrasesConfig struct {
	Prerecorded []string `yaml:"prerecorded"`
	Before      []string `yaml:"before"`
	After       []string `yaml:"after"`
}

type InteractionConfig struct {
	Topics       []string `yaml:"topics"`
	PromptPrefix string   `yaml:"prompt_prefix"`
	PromptSuffix string   `yaml:"prompt_suffix"`
	OutputDir    string   `yaml:"output_dir"`
	FontSize     float64  `yaml:"font_size"`
}

func Default() Config {
	return Config{
		RuntimeName: "fortune-bird",
		Environment: "development",
		HTTP: HTTPConfig{
			Enabled: true,
			Bind:    "127.0.0.1",
			Port:    8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:         "info",
			TraceExporter:    "none",
			TraceSampleRatio: 1,
			OTLPInsecure:     true,
		},
		Bus: BusConfig{
			Enabled:             false,
			Embedded:            true,
			Port:                4222,
			StoreDir:            "./data/nats",
			Servers:             []string{"nats://localhost:4222"},
			ConnectTimeout:      2000,
			HeartbeatIntervalMS: 5000,
			HeartbeatTimeoutMS:  15000,
		},
		EventStore: EventStoreConfig{
			Path:            "./data/bird-events.db",
			RetentionMode:   "persistent",
			RetentionDays:   90,
			MaxInteractions: 10000,
		},
		LLM: LLMConfig{
			Mode:        "ollama",
			Endpoint:    "http://localhost:11434",
			Model:       "llama3",
			ContextSize: 4096,
			Temperature: 0.8,
			TimeoutMS:   60000,
		},
		TTS: TTSConfig{
			Enabled:    true,
			Mode:       "mock",
			SpeakerWAV: "tts/voice-cloning/ref.wav",
			Language:   "en",
			SampleRate: 24000,
			Channels:   1,
			TimeoutMS:  120000,
		},
		Audio: AudioConfig{
			PlayerCommand:  "aplay -q",
			AmbientDir:     "audio/ambient",
			PrerecordedDir: "tts/pre-recorded",
			GeneratedDir:   "tts/generated",
			BeforeDir:      "tts/pre-recorded/before",
			AfterDir:       "tts/pre-recorded/after",
			AmbientDwellMS: 5000,
			PhraseDwellMS:  10000,
			QueueWaitMS:    500,
		},
		Button: ButtonConfig{
			Source:        "serial",
			SerialPort:    "/dev/ttyACM0",
			BaudRate:      9600,
			PressedValue:  "1",
			PollTimeoutMS: 200,
		},
		Printer: PrinterConfig{
			Enabled:        true,
			DeviceName:     "M02",
			WritePrefix:    "0000ff02",
			ReadPrefix:     "0000ff03",
			ScanTimeoutMS:  5000,
			ScanIntervalMS: 2000,
		},
		Actuator: ActuatorConfig{
			Mode:            "noop",
			SerialPort:      "/dev/ttyUSB0",
			BaudRate:        1000000,
			ServoID:         1,
			NeutralPosition: 520,
			MinPosition:     500,
			MaxPosition:     680,
			Speed:           300,
			Acceleration:    0,
			MovingThreshold: 20,
			MoveTimeoutMS:   3000,
		},
		Phrases: PhrasesConfig{
			Prerecorded: []string{
				"Discover your future with a joyful poem! Step right up!",
				"Let a happy verse reveal what lies ahead for you!",
				"Brighten your day with a joyful glimpse into your future!",
				"A poem for your future, filled with joy and wonder!",
				"Curious about your future? Get a cheerful poem right here!",
				"Unlock the joy of your future with a delightful poem!",
				"Step closer and let a happy rhyme reveal your destiny!",
				"Embrace the future with a joyful verse! Come and see!",
				"Find out what joy the future holds with a personalized poem!",
				"A joyful future awaits! Let a poem show you the way!",
			},
			Before: []string{
				"You face the chaos, seeking wisdom's glow, the omens will guide, let's see where you'll go.",
			},
			After: []string{
				"May the wisdom of the reading guide you and the light of the future inspire you.",
			},
		},
		Interaction: InteractionConfig{
			Topics: []string{
				"a toaster that does not work",
				"a one eyed cat looking through an eyewear shop window",
				"stomach ache after an incredible meal",
				"the line at the Döner Kebab shop",
				"a washed-up and unreadable note in the pocket of some jeans",
				"a second hand pullover in summer, standing in the sun",
				"someone's first day at a sauna",
				"a yellowed-leaf monstera plant in a butcher shop",
				"a silly origami bird left in a S-Bahn",
				"a weird TikTok trend",
			},
			PromptPrefix: "Write a short, joyful 5 line poem about ",
			PromptSuffix: ". Do not give me any comments from your side. Just write the poem.",
			OutputDir:    "output",
			FontSize:     22,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file and BIRD_* overrides.
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

// LoadFromEnv loads the file named by BIRD_CONFIG, if any.
func LoadFromEnv() (Config, error) {
	return Load(strings.TrimSpace(os.Getenv(EnvConfigPath)))
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "BIRD_RUNTIME_NAME")
	overrideString(&cfg.Environment, "BIRD_RUNTIME_ENVIRONMENT")
	overrideBool(&cfg.HTTP.Enabled, "BIRD_HTTP_ENABLED")
	overrideString(&cfg.HTTP.Bind, "BIRD_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "BIRD_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "BIRD_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.TraceExporter, "BIRD_TELEMETRY_TRACE_EXPORTER")
	overrideFloat(&cfg.Telemetry.TraceSampleRatio, "BIRD_TELEMETRY_TRACE_SAMPLE_RATIO")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "BIRD_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "BIRD_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "BIRD_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "BIRD_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "BIRD_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "BIRD_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "BIRD_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "BIRD_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "BIRD_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "BIRD_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "BIRD_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "BIRD_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Bus.HeartbeatIntervalMS, "BIRD_BUS_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Bus.HeartbeatTimeoutMS, "BIRD_BUS_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "BIRD_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "BIRD_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "BIRD_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxInteractions, "BIRD_EVENT_STORE_MAX_INTERACTIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "BIRD_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.LLM.Mode, "BIRD_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "BIRD_LLM_ENDPOINT")
	overrideString(&cfg.LLM.APIKey, "BIRD_LLM_API_KEY")
	overrideString(&cfg.LLM.Command, "BIRD_LLM_COMMAND")
	overrideString(&cfg.LLM.Model, "BIRD_LLM_MODEL")
	overrideInt(&cfg.LLM.ContextSize, "BIRD_LLM_CONTEXT_SIZE")
	overrideInt(&cfg.LLM.MaxTokens, "BIRD_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "BIRD_LLM_TEMPERATURE")
	overrideInt(&cfg.LLM.TimeoutMS, "BIRD_LLM_TIMEOUT_MS")
	overrideBool(&cfg.TTS.Enabled, "BIRD_TTS_ENABLED")
	overrideString(&cfg.TTS.Mode, "BIRD_TTS_MODE")
	overrideString(&cfg.TTS.Command, "BIRD_TTS_COMMAND")
	overrideString(&cfg.TTS.SpeakerWAV, "BIRD_TTS_SPEAKER_WAV")
	overrideString(&cfg.TTS.Language, "BIRD_TTS_LANGUAGE")
	overrideInt(&cfg.TTS.SampleRate, "BIRD_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "BIRD_TTS_CHANNELS")
	overrideInt(&cfg.TTS.TimeoutMS, "BIRD_TTS_TIMEOUT_MS")
	overrideString(&cfg.Audio.PlayerCommand, "BIRD_AUDIO_PLAYER_COMMAND")
	overrideString(&cfg.Audio.AmbientDir, "BIRD_AUDIO_AMBIENT_DIR")
	overrideString(&cfg.Audio.PrerecordedDir, "BIRD_AUDIO_PRERECORDED_DIR")
	overrideString(&cfg.Audio.GeneratedDir, "BIRD_AUDIO_GENERATED_DIR")
	overrideString(&cfg.Audio.BeforeDir, "BIRD_AUDIO_BEFORE_DIR")
	overrideString(&cfg.Audio.AfterDir, "BIRD_AUDIO_AFTER_DIR")
	overrideInt(&cfg.Audio.AmbientDwellMS, "BIRD_AUDIO_AMBIENT_DWELL_MS")
	overrideInt(&cfg.Audio.PhraseDwellMS, "BIRD_AUDIO_PHRASE_DWELL_MS")
	overrideInt(&cfg.Audio.QueueWaitMS, "BIRD_AUDIO_QUEUE_WAIT_MS")
	overrideString(&cfg.Button.Source, "BIRD_BUTTON_SOURCE")
	overrideString(&cfg.Button.SerialPort, "BIRD_BUTTON_SERIAL_PORT")
	overrideInt(&cfg.Button.BaudRate, "BIRD_BUTTON_BAUD_RATE")
	overrideString(&cfg.Button.PressedValue, "BIRD_BUTTON_PRESSED_VALUE")
	overrideInt(&cfg.Button.PollTimeoutMS, "BIRD_BUTTON_POLL_TIMEOUT_MS")
	overrideBool(&cfg.Printer.Enabled, "BIRD_PRINTER_ENABLED")
	overrideString(&cfg.Printer.DeviceName, "BIRD_PRINTER_DEVICE_NAME")
	overrideString(&cfg.Printer.WritePrefix, "BIRD_PRINTER_WRITE_PREFIX")
	overrideString(&cfg.Printer.ReadPrefix, "BIRD_PRINTER_READ_PREFIX")
	overrideInt(&cfg.Printer.ScanTimeoutMS, "BIRD_PRINTER_SCAN_TIMEOUT_MS")
	overrideInt(&cfg.Printer.ScanIntervalMS, "BIRD_PRINTER_SCAN_INTERVAL_MS")
	overrideInt(&cfg.Printer.MaxScanAttempts, "BIRD_PRINTER_MAX_SCAN_ATTEMPTS")
	overrideString(&cfg.Actuator.Mode, "BIRD_ACTUATOR_MODE")
	overrideString(&cfg.Actuator.SerialPort, "BIRD_ACTUATOR_SERIAL_PORT")
	overrideInt(&cfg.Actuator.BaudRate, "BIRD_ACTUATOR_BAUD_RATE")
	overrideInt(&cfg.Actuator.ServoID, "BIRD_ACTUATOR_SERVO_ID")
	overrideStringSlice(&cfg.Interaction.Topics, "BIRD_INTERACTION_TOPICS")
	overrideStringSlice(&cfg.Phrases.Prerecorded, "BIRD_PHRASES_PRERECORDED")
	overrideStringSlice(&cfg.Phrases.Before, "BIRD_PHRASES_BEFORE")
	overrideStringSlice(&cfg.Phrases.After, "BIRD_PHRASES_AFTER")
	overrideString(&cfg.Interaction.PromptPrefix, "BIRD_INTERACTION_PROMPT_PREFIX")
	overrideString(&cfg.Interaction.PromptSuffix, "BIRD_INTERACTION_PROMPT_SUFFIX")
	overrideString(&cfg.Interaction.OutputDir, "BIRD_INTERACTION_OUTPUT_DIR")
	overrideFloat(&cfg.Interaction.FontSize, "BIRD_INTERACTION_FONT_SIZE")
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

// Topics are separated by "|" since they routinely contain commas.
func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		sep := ","
		if strings.Contains(value, "|") {
			sep = "|"
		}
		parts := strings.Split(value, sep)
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

// Millis converts a millisecond config field into a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Enabled && (cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535) {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	switch cfg.Telemetry.TraceExporter {
	case "none", "stdout":
	case "otlp":
		if strings.TrimSpace(cfg.Telemetry.OTLPEndpoint) == "" {
			return errors.New("telemetry.otlp_endpoint is required for the otlp trace exporter")
		}
	default:
		return errors.New("telemetry.trace_exporter must be one of none|stdout|otlp")
	}
	if cfg.Telemetry.TraceSampleRatio < 0 || cfg.Telemetry.TraceSampleRatio > 1 {
		return errors.New("telemetry.trace_sample_ratio must be between 0 and 1")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Bus.HeartbeatIntervalMS <= 0 || cfg.Bus.HeartbeatTimeoutMS < cfg.Bus.HeartbeatIntervalMS {
			return errors.New("bus.heartbeat_timeout_ms must be >= bus.heartbeat_interval_ms > 0")
		}
	}
	if cfg.EventStore.Path == "" && cfg.EventStore.RetentionMode != "ephemeral" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "persistent":
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	switch cfg.LLM.Mode {
	case "mock", "ollama", "openai", "exec":
	default:
		return errors.New("llm.mode must be one of mock|ollama|openai|exec")
	}
	if (cfg.LLM.Mode == "ollama" || cfg.LLM.Mode == "openai") && cfg.LLM.Endpoint == "" {
		return fmt.Errorf("llm.endpoint must be set when mode=%s", cfg.LLM.Mode)
	}
	if cfg.LLM.Mode == "exec" && cfg.LLM.Command == "" {
		return errors.New("llm.command must be set when mode=exec")
	}
	if cfg.LLM.MaxTokens < 0 {
		return errors.New("llm.max_tokens must be >= 0")
	}
	if cfg.TTS.Enabled {
		switch cfg.TTS.Mode {
		case "mock", "exec":
		default:
			return errors.New("tts.mode must be one of mock|exec")
		}
		if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
		if cfg.TTS.SampleRate <= 0 {
			return errors.New("tts.sample_rate must be positive")
		}
		if cfg.TTS.Channels <= 0 {
			return errors.New("tts.channels must be positive")
		}
	}
	if strings.TrimSpace(cfg.Audio.PlayerCommand) == "" {
		return errors.New("audio.player_command must not be empty")
	}
	if cfg.Audio.QueueWaitMS <= 0 {
		return errors.New("audio.queue_wait_ms must be positive")
	}
	if cfg.Audio.AmbientDwellMS < 0 || cfg.Audio.PhraseDwellMS < 0 {
		return errors.New("audio dwell times must be >= 0")
	}
	switch cfg.Button.Source {
	case "serial":
		if cfg.Button.SerialPort == "" {
			return errors.New("button.serial_port must be set when source=serial")
		}
		if cfg.Button.BaudRate <= 0 {
			return errors.New("button.baud_rate must be positive")
		}
	case "bus":
		if !cfg.Bus.Enabled {
			return errors.New("button.source=bus requires bus.enabled")
		}
	default:
		return errors.New("button.source must be one of serial|bus")
	}
	if cfg.Button.PressedValue == "" {
		return errors.New("button.pressed_value must not be empty")
	}
	if cfg.Button.PollTimeoutMS <= 0 {
		return errors.New("button.poll_timeout_ms must be positive")
	}
	if cfg.Printer.Enabled {
		if cfg.Printer.DeviceName == "" {
			return errors.New("printer.device_name must not be empty")
		}
		if cfg.Printer.WritePrefix == "" || cfg.Printer.ReadPrefix == "" {
			return errors.New("printer.write_prefix and printer.read_prefix must not be empty")
		}
		if cfg.Printer.ScanTimeoutMS <= 0 {
			return errors.New("printer.scan_timeout_ms must be positive")
		}
		if cfg.Printer.ScanIntervalMS < 0 || cfg.Printer.MaxScanAttempts < 0 {
			return errors.New("printer.scan_interval_ms and printer.max_scan_attempts must be >= 0")
		}
	}
	switch cfg.Actuator.Mode {
	case "noop":
	case "scs":
		if cfg.Actuator.SerialPort == "" {
			return errors.New("actuator.serial_port must be set when mode=scs")
		}
		if cfg.Actuator.ServoID < 0 || cfg.Actuator.ServoID > 253 {
			return errors.New("actuator.servo_id must be between 0 and 253")
		}
	default:
		return errors.New("actuator.mode must be one of noop|scs")
	}
	if len(cfg.Interaction.Topics) == 0 {
		return errors.New("interaction.topics must not be empty")
	}
	if cfg.Interaction.OutputDir == "" {
		return errors.New("interaction.output_dir must not be empty")
	}
	if cfg.Interaction.FontSize <= 0 {
		return errors.New("interaction.font_size must be positive")
	}
	return nil
}
