package config

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultConfigPath = "config.ini"
	configPathEnv     = "POSTER_CONFIG"
	dotenvPathEnv     = "POSTER_DOTENV"
)

type Config struct {
	Hostname          string
	OutputFolder      string
	VideoOutputFolder string
	TimeoutSeconds    int

	XBearerToken string
	XAPIBase     string

	XAIAPIKey  string
	XAIAPIBase string

	ChatModel        string
	Temperature      float64
	StructuredOutput bool
	ImageModel       string
	VideoModel       string

	LedgerDriver string
	LedgerPath   string

	DBURL      string
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	RabbitMQHost           string
	RabbitMQPort           int
	RabbitMQUser           string
	RabbitMQPassword       string
	RabbitMQVHost          string
	RabbitMQPublishResults bool

	SlackBotToken string
	SlackChannel  string
}

// Load reads .env (if present), then the INI file (if present), then falls back
// to environment variables for anything the INI file leaves empty.
func Load() (Config, error) {
	dotenvPath := os.Getenv(dotenvPathEnv)
	if dotenvPath == "" {
		dotenvPath = ".env"
	}
	// The scripts this replaces let .env win over the inherited environment.
	if err := godotenv.Overload(dotenvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", dotenvPath, err)
	}

	configPath := os.Getenv(configPathEnv)
	if configPath == "" {
		configPath = defaultConfigPath
	}
	ini, err := readINI(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load config %s: %w", configPath, err)
		}
		ini = iniData{sections: map[string]map[string]string{}}
	}
	return fromINI(ini), nil
}

func fromINI(ini iniData) Config {
	cfg := Config{}
	cfg.Hostname = ini.get("app", "hostname")
	if cfg.Hostname == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Hostname = host
		}
	}
	cfg.OutputFolder = firstNonEmpty(ini.get("app", "output_folder"), os.Getenv("POSTER_OUTPUT_FOLDER"), "job_posters")
	cfg.VideoOutputFolder = firstNonEmpty(ini.get("app", "video_output_folder"), filepath.Join(cfg.OutputFolder, "videos"))
	cfg.TimeoutSeconds = ini.getIntDefault("app", "timeout_seconds", 60)

	cfg.XBearerToken = decodeToken(firstNonEmpty(ini.get("x", "bearer_token"), os.Getenv("X_BEARER_TOKEN")))
	cfg.XAPIBase = strings.TrimRight(firstNonEmpty(ini.get("x", "api_base"), os.Getenv("X_API_BASE"), "https://api.x.com"), "/")

	cfg.XAIAPIKey = firstNonEmpty(ini.get("xai", "api_key"), os.Getenv("XAI_API_KEY"))
	cfg.XAIAPIBase = strings.TrimRight(firstNonEmpty(ini.get("xai", "api_base"), os.Getenv("XAI_API_BASE"), "https://api.x.ai/v1"), "/")

	cfg.ChatModel = ini.getDefault("grok", "chat_model", "grok-2-latest")
	cfg.Temperature = ini.getFloatDefault("grok", "temperature", 0.7)
	cfg.StructuredOutput = ini.getBoolDefault("grok", "structured_output", false)
	cfg.ImageModel = ini.getDefault("grok", "image_model", "grok-imagine-image-a1")
	cfg.VideoModel = ini.getDefault("grok", "video_model", "grok-imagine-video-beta")

	cfg.LedgerDriver = strings.ToLower(ini.getDefault("ledger", "driver", "sqlite"))
	cfg.LedgerPath = firstNonEmpty(ini.get("ledger", "path"), filepath.Join(cfg.OutputFolder, "posters.db"))

	cfg.DBURL = firstNonEmpty(ini.get("db", "url"), ini.get("db", "database_url"), os.Getenv("DATABASE_URL"))
	cfg.DBHost = ini.getDefault("db", "host", "127.0.0.1")
	cfg.DBPort = ini.getIntDefault("db", "port", 5432)
	cfg.DBName = ini.getDefault("db", "name", "posters")
	cfg.DBUser = ini.getDefault("db", "user", "postgres")
	cfg.DBPassword = ini.get("db", "password")
	cfg.DBSSLMode = ini.getDefault("db", "sslmode", "prefer")

	cfg.RabbitMQHost = ini.getDefault("rabbitmq", "host", "127.0.0.1")
	cfg.RabbitMQPort = ini.getIntDefault("rabbitmq", "port", 5672)
	cfg.RabbitMQUser = ini.getDefault("rabbitmq", "user", "guest")
	cfg.RabbitMQPassword = ini.getDefault("rabbitmq", "password", "guest")
	cfg.RabbitMQVHost = ini.getDefault("rabbitmq", "vhost", "/")
	cfg.RabbitMQPublishResults = ini.getBoolDefault("rabbitmq", "publish_results", false)

	cfg.SlackBotToken = firstNonEmpty(ini.get("slack", "bot_token"), os.Getenv("SLACK_BOT_TOKEN"))
	cfg.SlackChannel = firstNonEmpty(ini.get("slack", "channel"), os.Getenv("SLACK_CHANNEL"))

	return cfg
}

// RequireXAI reports a configuration error when the generation provider
// credentials are missing.
func (c Config) RequireXAI() error {
	if c.XAIAPIKey == "" {
		return errors.New("xai.api_key (or XAI_API_KEY) must be set")
	}
	return nil
}

func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c Config) DBConnString() string {
	if c.DBURL != "" {
		return c.DBURL
	}
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBUser,
		c.DBPassword,
		c.DBSSLMode,
	)
}

func (c Config) RabbitMQURL() string {
	vhost := strings.TrimPrefix(c.RabbitMQVHost, "/")
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d/%s",
		url.QueryEscape(c.RabbitMQUser),
		url.QueryEscape(c.RabbitMQPassword),
		c.RabbitMQHost,
		c.RabbitMQPort,
		vhost,
	)
}

// decodeToken undoes percent-encoding; bearer tokens copied from the developer
// portal often arrive as "AAAA%3D...". '+' is left alone.
func decodeToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

type iniData struct {
	sections map[string]map[string]string
}

func readINI(path string) (iniData, error) {
	file, err := os.Open(path)
	if err != nil {
		return iniData{}, err
	}
	defer file.Close()
	return parseINI(bufio.NewScanner(file))
}

func parseINI(scanner *bufio.Scanner) (iniData, error) {
	data := iniData{sections: map[string]map[string]string{}}
	section := "default"
	data.sections[section] = map[string]string{}

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			if section == "" {
				return iniData{}, fmt.Errorf("invalid section header at line %d", lineNo)
			}
			if _, ok := data.sections[section]; !ok {
				data.sections[section] = map[string]string{}
			}
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return iniData{}, fmt.Errorf("invalid line %d: %q", lineNo, line)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return iniData{}, fmt.Errorf("empty key at line %d", lineNo)
		}
		data.sections[section][key] = trimQuotes(strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return iniData{}, err
	}
	return data, nil
}

func trimQuotes(value string) string {
	if len(value) < 2 {
		return value
	}
	if value[0] == '"' && value[len(value)-1] == '"' {
		return value[1 : len(value)-1]
	}
	if value[0] == '\'' && value[len(value)-1] == '\'' {
		return value[1 : len(value)-1]
	}
	return value
}

func (ini iniData) get(section, key string) string {
	if len(ini.sections) == 0 {
		return ""
	}
	section = strings.ToLower(section)
	key = strings.ToLower(key)
	if section == "" {
		section = "default"
	}
	if values, ok := ini.sections[section]; ok {
		return values[key]
	}
	return ""
}

func (ini iniData) getDefault(section, key, fallback string) string {
	value := ini.get(section, key)
	if value == "" {
		return fallback
	}
	return value
}

func (ini iniData) getIntDefault(section, key string, fallback int) int {
	value := ini.get(section, key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (ini iniData) getFloatDefault(section, key string, fallback float64) float64 {
	value := ini.get(section, key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func (ini iniData) getBoolDefault(section, key string, fallback bool) bool {
	value := ini.get(section, key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
