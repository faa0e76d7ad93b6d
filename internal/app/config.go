package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Драйверы хранилища датасета.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
	StorageDriverMySQL    = "mysql"
)

// EnvPrefix: префикс переменных окружения: ODA_HTTP_ADDR, ODA_STORAGE_DRIVER и т.д.
const EnvPrefix = "ODA"

// Config описывает настройки запуска дашборда.
type Config struct {
	HTTPAddr    string `mapstructure:"http_addr"`
	GRPCAddr    string `mapstructure:"grpc_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	DatasetPath string `mapstructure:"dataset_path"`
	LoadOnStart bool   `mapstructure:"load_on_start"`

	StorageDriver        string `mapstructure:"storage_driver"`
	PostgresDSN          string `mapstructure:"postgres_dsn"`
	PostgresAutoMigrate  bool   `mapstructure:"postgres_auto_migrate"`
	// PostgresMaxOpenConns: размер пула; 0 оставляет значение по умолчанию.
	PostgresMaxOpenConns int    `mapstructure:"postgres_max_open_conns"`
	MySQLDSN             string `mapstructure:"mysql_dsn"`
	MySQLAutoMigrate     bool   `mapstructure:"mysql_auto_migrate"`

	// KafkaBrokers: список брокеров через запятую; пустая строка отключает Kafka.
	KafkaBrokers       string        `mapstructure:"kafka_brokers"`
	KafkaConsumerGroup string        `mapstructure:"kafka_consumer_group"`
	KafkaMaxRetries    int           `mapstructure:"kafka_max_retries"`
	SnapshotInterval   time.Duration `mapstructure:"snapshot_interval"`

	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
	PageSize  int     `mapstructure:"page_size"`

	TopN             int `mapstructure:"top_n"`
	MaxScatterPoints int `mapstructure:"max_scatter_points"`

	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultConfig возвращает настройки для локального запуска: веб на :8501, датасет из ./data.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8501",
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		DatasetPath:         "./data/all_data.csv",
		LoadOnStart:         true,
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		MySQLAutoMigrate:    true,
		KafkaConsumerGroup:  "oda-dashboard",
		KafkaMaxRetries:     3,
		SnapshotInterval:    5 * time.Minute,
		RateLimit:           20,
		RateBurst:           40,
		PageSize:            50,
		TopN:                5,
		MaxScatterPoints:    5000,
		LogLevel:            "info",
		ShutdownTimeout:     5 * time.Second,
	}
}

// LoadConfig собирает конфигурацию: значения по умолчанию, затем файл (если есть), затем ODA_* из окружения.
// Пустой path ищет oda.yaml в текущей директории и ./config.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("oda")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// KAFKA_BROKERS без префикса оставлен для совместимости с docker-compose.
	if err := v.BindEnv("kafka_brokers", EnvPrefix+"_KAFKA_BROKERS", "KAFKA_BROKERS"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.StorageDriver = normalizeStorageDriver(cfg.StorageDriver)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, def Config) {
	v.SetDefault("http_addr", def.HTTPAddr)
	v.SetDefault("grpc_addr", def.GRPCAddr)
	v.SetDefault("metrics_addr", def.MetricsAddr)

	v.SetDefault("dataset_path", def.DatasetPath)
	v.SetDefault("load_on_start", def.LoadOnStart)

	v.SetDefault("storage_driver", def.StorageDriver)
	v.SetDefault("postgres_dsn", def.PostgresDSN)
	v.SetDefault("postgres_auto_migrate", def.PostgresAutoMigrate)
	v.SetDefault("postgres_max_open_conns", def.PostgresMaxOpenConns)
	v.SetDefault("mysql_dsn", def.MySQLDSN)
	v.SetDefault("mysql_auto_migrate", def.MySQLAutoMigrate)

	v.SetDefault("kafka_brokers", def.KafkaBrokers)
	v.SetDefault("kafka_consumer_group", def.KafkaConsumerGroup)
	v.SetDefault("kafka_max_retries", def.KafkaMaxRetries)
	v.SetDefault("snapshot_interval", def.SnapshotInterval)

	v.SetDefault("rate_limit", def.RateLimit)
	v.SetDefault("rate_burst", def.RateBurst)
	v.SetDefault("page_size", def.PageSize)

	v.SetDefault("top_n", def.TopN)
	v.SetDefault("max_scatter_points", def.MaxScatterPoints)

	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("shutdown_timeout", def.ShutdownTimeout)
}

// Validate проверяет согласованность настроек до старта серверов.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("http address is required")
	}
	if strings.TrimSpace(c.GRPCAddr) == "" {
		return errors.New("grpc address is required")
	}
	if strings.TrimSpace(c.MetricsAddr) == "" {
		return errors.New("metrics address is required")
	}
	if c.LoadOnStart && strings.TrimSpace(c.DatasetPath) == "" {
		return errors.New("dataset path is required when load_on_start is enabled")
	}

	switch normalizeStorageDriver(c.StorageDriver) {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return errors.New("postgres dsn is required for postgres storage driver")
		}
	case StorageDriverMySQL:
		if strings.TrimSpace(c.MySQLDSN) == "" {
			return errors.New("mysql dsn is required for mysql storage driver")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}

	if c.PageSize < 0 || c.TopN < 0 || c.MaxScatterPoints < 0 {
		return errors.New("page_size, top_n and max_scatter_points must not be negative")
	}
	if c.PostgresMaxOpenConns < 0 {
		return errors.New("postgres_max_open_conns must not be negative")
	}
	if c.KafkaMaxRetries < 0 {
		return errors.New("kafka_max_retries must not be negative")
	}
	return nil
}

// Brokers разбирает KafkaBrokers в список без пустых элементов.
func (c Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func normalizeStorageDriver(driver string) string {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		return StorageDriverMemory
	}
	return driver
}
