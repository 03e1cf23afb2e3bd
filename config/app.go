package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	appOnce   sync.Once
	appConfig *AppConfig
)

// AppConfig holds the server and worker settings. Values come from the
// environment (and .env); the file named by DOCVIEW_CONFIG_FILE, when set,
// overrides them.
type AppConfig struct {
	ServerAddr string `yaml:"server_addr"`

	CollaboratorURL     string        `yaml:"collaborator_url"`
	CollaboratorAPIKey  string        `yaml:"collaborator_api_key"`
	CollaboratorTimeout time.Duration `yaml:"collaborator_timeout"`

	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollDuration time.Duration `yaml:"max_poll_duration"`
	CacheBackend    string        `yaml:"cache_backend"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`

	StorageType       string        `yaml:"storage_type"`
	ExportRetention   time.Duration `yaml:"export_retention"`
	WorkerConcurrency int           `yaml:"worker_concurrency"`
	ResizeDebounce    time.Duration `yaml:"resize_debounce"`

	ChromePath      string `yaml:"chrome_path"`
	ChromeNoSandbox bool   `yaml:"chrome_no_sandbox"`

	AllowedOrigins []string `yaml:"allowed_origins"`

	LogLevel    string `yaml:"log_level"`
	LogEncoding string `yaml:"log_encoding"`
	LogFile     string `yaml:"log_file"`

	overlay *FileConfig
}

// FileConfig is the layout of the optional YAML file.
type FileConfig struct {
	App   *AppConfig   `yaml:"app"`
	Minio *MinioConfig `yaml:"minio"`
	S3    *S3Config    `yaml:"s3"`
	Redis *RedisConfig `yaml:"redis"`
}

func GetAppConfig() *AppConfig {
	appOnce.Do(func() {
		loadEnv()

		appConfig = &AppConfig{
			ServerAddr:          getEnv("SERVER_ADDR", ":8080"),
			CollaboratorURL:     getEnv("COLLABORATOR_URL", "http://localhost:8000"),
			CollaboratorAPIKey:  getEnv("COLLABORATOR_API_KEY", ""),
			CollaboratorTimeout: getDuration("COLLABORATOR_TIMEOUT", 30*time.Second),
			PollInterval:        getDuration("POLL_INTERVAL", 5*time.Second),
			MaxPollDuration:     getDuration("MAX_POLL_DURATION", 15*time.Minute),
			CacheBackend:        getEnv("CACHE_BACKEND", "memory"),
			CacheTTL:            getDuration("CACHE_TTL", 24*time.Hour),
			StorageType:         getEnv("STORAGE_TYPE", "minio"),
			ExportRetention:     getDuration("EXPORT_RETENTION", 72*time.Hour),
			WorkerConcurrency:   getInt("WORKER_CONCURRENCY", 2),
			ResizeDebounce:      getDuration("RESIZE_DEBOUNCE", 150*time.Millisecond),
			ChromePath:          getEnv("CHROME_PATH", ""),
			ChromeNoSandbox:     getBool("CHROME_NO_SANDBOX", false),
			AllowedOrigins:      splitList(getEnv("ALLOWED_ORIGINS", "*")),
			LogLevel:            getEnv("LOG_LEVEL", "info"),
			LogEncoding:         getEnv("LOG_ENCODING", "json"),
			LogFile:             getEnv("LOG_FILE", ""),
		}

		if path := os.Getenv("DOCVIEW_CONFIG_FILE"); path != "" {
			overlay, err := LoadFile(path, appConfig)
			if err != nil {
				log.Printf("Warning: %v", err)
			}
			appConfig.overlay = overlay
		}
	})
	return appConfig
}

// LoadFile decodes the YAML file at path on top of base. Keys missing from
// the file keep their base values.
func LoadFile(path string, base *AppConfig) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	fc := &FileConfig{App: base}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return fc, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
