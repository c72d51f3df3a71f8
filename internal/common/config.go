package common

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Broker   BrokerConfig   `yaml:"broker"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	OCR      OCRConfig      `yaml:"ocr"`
	NLP      NLPConfig      `yaml:"nlp"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `yaml:"driver"` // postgres | sqlite
	DSN              string        `yaml:"dsn"`
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	Name             string        `yaml:"name"`
	SSLMode          string        `yaml:"sslmode"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
	AutoMigrate      bool          `yaml:"auto_migrate"`
}

// RedisConfig holds result cache configuration
type RedisConfig struct {
	URL        string        `yaml:"url"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
	Timeout    time.Duration `yaml:"timeout"`
}

// BrokerConfig holds message broker configuration
type BrokerConfig struct {
	RedisURL         string        `yaml:"redis_url"`
	QueueName        string        `yaml:"queue_name"`
	MaxRetry         int           `yaml:"max_retry"`
	Concurrency      int           `yaml:"concurrency"`
	TaskTimeout      time.Duration `yaml:"task_timeout"`
	EmbeddedConsumer bool          `yaml:"embedded_consumer"`
}

// StorageConfig selects where uploaded documents are kept
type StorageConfig struct {
	Backend string      `yaml:"backend"` // fs | minio
	Dir     string      `yaml:"dir"`
	Minio   MinioConfig `yaml:"minio"`
}

// MinioConfig holds S3-compatible storage settings
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string        `yaml:"http_addr"`
	GRPCAddr       string        `yaml:"grpc_addr"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	RateLimit      int           `yaml:"rate_limit"`
	RateWindow     time.Duration `yaml:"rate_window"`
	APIKeys        []string      `yaml:"api_keys"` // client_id:bcrypt-hash
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Pdftotext     string `yaml:"pdftotext"`
	Pdftoppm      string `yaml:"pdftoppm"`
	Tesseract     string `yaml:"tesseract"`
	TesseractLang string `yaml:"tesseract_lang"`
	TessdataDir   string `yaml:"tessdata_dir"`
	DPI           int    `yaml:"dpi"`
	MaxPages      int    `yaml:"max_pages"`
}

// NLPConfig points at the entity recognition service
type NLPConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// PipelineConfig tunes background execution
type PipelineConfig struct {
	Workers          int           `yaml:"workers"`
	QueueSize        int           `yaml:"queue_size"`
	ProcessTimeout   time.Duration `yaml:"process_timeout"`
	LeaseTTL         time.Duration `yaml:"lease_ttl"`
	RecoveryInterval time.Duration `yaml:"recovery_interval"`
	RecoveryGrace    time.Duration `yaml:"recovery_grace"`
	OCRThreshold     float64       `yaml:"ocr_threshold"`
}

// defaultConfig is the base layer under the YAML file and environment.
func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:          "postgres",
			Port:            5432,
			SSLMode:         "disable",
			MaxConns:        20,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
			AutoMigrate:     true,
		},
		Redis: RedisConfig{
			URL:        "redis://localhost:6379/0",
			DefaultTTL: 3600 * time.Second,
			Timeout:    time.Second,
		},
		Broker: BrokerConfig{
			QueueName:   "document_processing",
			MaxRetry:    5,
			Concurrency: 1,
		},
		Storage: StorageConfig{
			Backend: "fs",
			Dir:     "./data/documents",
			Minio:   MinioConfig{Bucket: "documents"},
		},
		Server: ServerConfig{
			HTTPAddr:       ":8000",
			GRPCAddr:       ":8081",
			CORSOrigins:    []string{"*"},
			MaxUploadBytes: 20 << 20,
			RateLimit:      100,
			RateWindow:     time.Minute,
		},
		OCR: OCRConfig{
			TesseractLang: "eng",
			DPI:           300,
		},
		NLP: NLPConfig{Timeout: 30 * time.Second},
		Pipeline: PipelineConfig{
			Workers:          4,
			QueueSize:        256,
			LeaseTTL:         10 * time.Minute,
			RecoveryInterval: time.Minute,
			RecoveryGrace:    2 * time.Minute,
			OCRThreshold:     0.8,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig loads configuration from dotenv files, an optional YAML file
// (CONFIG_FILE) and environment variables, in increasing precedence.
func LoadConfig() (*Config, error) {
	for _, f := range []string{".env.local", ".env"} {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}

	cfg := defaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return nil, NewAppError("CONFIG_ERROR", "read "+path, err)
		}
	}
	applyEnv(&cfg)
	return &cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(c *Config) {
	d := &c.Database
	d.Driver = getEnv("DB_DRIVER", d.Driver)
	d.DSN = getEnv("DB_URL", d.DSN)
	d.Host = getEnv("DB_HOST", d.Host)
	d.Port = getEnvAsInt("DB_PORT", d.Port)
	d.User = getEnv("DB_USER", d.User)
	d.Password = getEnv("DB_PASSWORD", d.Password)
	d.Name = getEnv("DB_NAME", d.Name)
	d.SSLMode = getEnv("DB_SSLMODE", d.SSLMode)
	d.MaxConns = getEnvAsInt32("DB_MAX_CONNS", d.MaxConns)
	d.MinConns = getEnvAsInt32("DB_MIN_CONNS", d.MinConns)
	d.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", d.MaxConnLifetime)
	d.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", d.MaxConnIdleTime)
	d.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", d.DialTimeout)
	d.StatementTimeout = getEnvAsDuration("DB_STATEMENT_TIMEOUT", d.StatementTimeout)
	d.AutoMigrate = getEnvAsBool("DB_AUTO_MIGRATE", d.AutoMigrate)

	r := &c.Redis
	r.URL = getEnv("REDIS_URL", r.URL)
	r.DefaultTTL = getEnvAsSeconds("REDIS_DEFAULT_TTL", r.DefaultTTL)
	r.Timeout = getEnvAsDuration("REDIS_TIMEOUT", r.Timeout)

	b := &c.Broker
	b.RedisURL = getEnv("BROKER_REDIS_URL", b.RedisURL)
	if b.RedisURL == "" {
		b.RedisURL = r.URL
	}
	b.QueueName = getEnv("QUEUE_NAME", b.QueueName)
	b.MaxRetry = getEnvAsInt("QUEUE_MAX_RETRY", b.MaxRetry)
	b.Concurrency = getEnvAsInt("QUEUE_CONCURRENCY", b.Concurrency)
	b.TaskTimeout = getEnvAsDuration("QUEUE_TASK_TIMEOUT", b.TaskTimeout)
	b.EmbeddedConsumer = getEnvAsBool("EMBEDDED_CONSUMER", b.EmbeddedConsumer)

	s := &c.Storage
	s.Backend = getEnv("STORAGE_BACKEND", s.Backend)
	s.Dir = getEnv("STORAGE_DIR", s.Dir)
	s.Minio.Endpoint = getEnv("MINIO_ENDPOINT", s.Minio.Endpoint)
	s.Minio.AccessKey = getEnv("MINIO_ACCESS_KEY", s.Minio.AccessKey)
	s.Minio.SecretKey = getEnv("MINIO_SECRET_KEY", s.Minio.SecretKey)
	s.Minio.Bucket = getEnv("MINIO_BUCKET", s.Minio.Bucket)
	s.Minio.UseSSL = getEnvAsBool("MINIO_USE_SSL", s.Minio.UseSSL)

	sv := &c.Server
	sv.HTTPAddr = getEnv("HTTP_ADDR", sv.HTTPAddr)
	sv.GRPCAddr = getEnv("GRPC_ADDR", sv.GRPCAddr)
	sv.CORSOrigins = getEnvAsList("CORS_ORIGINS", sv.CORSOrigins)
	sv.MaxUploadBytes = int64(getEnvAsInt("MAX_UPLOAD_BYTES", int(sv.MaxUploadBytes)))
	sv.RateLimit = getEnvAsInt("RATE_LIMIT", sv.RateLimit)
	sv.RateWindow = getEnvAsDuration("RATE_WINDOW", sv.RateWindow)
	sv.APIKeys = getEnvAsList("API_KEYS", sv.APIKeys)

	o := &c.OCR
	o.Pdftotext = getEnv("PDFTOTEXT_BIN", o.Pdftotext)
	o.Pdftoppm = getEnv("PDFTOPPM_BIN", o.Pdftoppm)
	o.Tesseract = getEnv("TESSERACT_BIN", o.Tesseract)
	o.TesseractLang = getEnv("TESSERACT_LANG", o.TesseractLang)
	o.TessdataDir = getEnv("TESSDATA_PREFIX", o.TessdataDir)
	o.DPI = getEnvAsInt("OCR_DPI", o.DPI)
	o.MaxPages = getEnvAsInt("OCR_MAX_PAGES", o.MaxPages)

	n := &c.NLP
	n.URL = getEnv("NLP_URL", n.URL)
	n.APIKey = getEnv("NLP_API_KEY", n.APIKey)
	n.Timeout = getEnvAsDuration("NLP_TIMEOUT", n.Timeout)

	p := &c.Pipeline
	p.Workers = getEnvAsInt("WORKERS", p.Workers)
	p.QueueSize = getEnvAsInt("WORKER_QUEUE_SIZE", p.QueueSize)
	p.ProcessTimeout = getEnvAsDuration("PROCESS_TIMEOUT", p.ProcessTimeout)
	p.LeaseTTL = getEnvAsDuration("LEASE_TTL", p.LeaseTTL)
	p.RecoveryInterval = getEnvAsDuration("RECOVERY_INTERVAL", p.RecoveryInterval)
	p.RecoveryGrace = getEnvAsDuration("RECOVERY_GRACE", p.RecoveryGrace)
	p.OCRThreshold = getEnvAsFloat64("OCR_THRESHOLD", p.OCRThreshold)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// DatabaseDSN returns DB_URL, or a DSN assembled from the discrete settings.
func (d DatabaseConfig) DatabaseDSN() string {
	if d.DSN != "" || d.Driver == "sqlite" {
		return d.DSN
	}
	if d.Host == "" || d.Name == "" {
		return ""
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	if d.User != "" {
		u.User = url.UserPassword(d.User, d.Password)
	}
	return u.String()
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvAsSeconds accepts either a bare number of seconds or a Go duration.
func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DatabaseDSN() == "" {
			return NewAppError("CONFIG_ERROR", "DB_URL or DB_HOST/DB_NAME is required", ErrInvalidInput)
		}
	case "sqlite":
		if c.Database.DSN == "" {
			return NewAppError("CONFIG_ERROR", "DB_URL is required for sqlite", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", "DB_DRIVER must be postgres or sqlite", ErrInvalidInput)
	}
	switch c.Storage.Backend {
	case "fs":
		if c.Storage.Dir == "" {
			return NewAppError("CONFIG_ERROR", "STORAGE_DIR is required", ErrInvalidInput)
		}
	case "minio":
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return NewAppError("CONFIG_ERROR", "MINIO_ENDPOINT and MINIO_BUCKET are required", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", "STORAGE_BACKEND must be fs or minio", ErrInvalidInput)
	}
	if c.Redis.URL == "" {
		return NewAppError("CONFIG_ERROR", "REDIS_URL is required", ErrInvalidInput)
	}
	if c.Broker.QueueName == "" {
		return NewAppError("CONFIG_ERROR", "QUEUE_NAME is required", ErrInvalidInput)
	}
	if t := c.Pipeline.OCRThreshold; t < 0 || t > 1 {
		return NewAppError("CONFIG_ERROR", "OCR_THRESHOLD must be within [0,1]", ErrInvalidInput)
	}
	for _, k := range c.Server.APIKeys {
		if !strings.Contains(k, ":") {
			return NewAppError("CONFIG_ERROR", "API_KEYS entries must be client_id:hash", ErrInvalidInput)
		}
	}
	return nil
}
