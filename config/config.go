package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv      = "PUBLISHER_CONFIG"
	portEnv            = "PORT"
	ginModeEnv         = "GIN_MODE"
	databaseDriverEnv  = "DATABASE_DRIVER"
	databaseDSNEnv     = "DATABASE_DSN"
	jwtSecretEnv       = "JWT_SECRET"
	credentialsKeyEnv  = "CREDENTIALS_KEY"
	kafkaBrokersEnv    = "KAFKA_BROKERS"
	kafkaTopicEnv      = "KAFKA_TOPIC"
	logLevelEnv        = "LOG_LEVEL"
	queueWorkerEnv     = "QUEUE_WORKER_ENABLED"
	wordpressIDEnv     = "WORDPRESS_CLIENT_ID"
	wordpressSecretEnv = "WORDPRESS_CLIENT_SECRET"
	wixIDEnv           = "WIX_CLIENT_ID"
	wixSecretEnv       = "WIX_CLIENT_SECRET"
)

// Config holds every setting the publisher needs at boot.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Security   SecurityConfig   `yaml:"security"`
	Publishing PublishingConfig `yaml:"publishing"`
	Queue      QueueConfig      `yaml:"queue"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Platforms  PlatformsConfig  `yaml:"platforms"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Port    string `yaml:"port"`
	GinMode string `yaml:"ginMode"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Silent bool   `yaml:"silent"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
}

// SecurityConfig carries the passphrase credentials are sealed with.
type SecurityConfig struct {
	CredentialsKey string `yaml:"credentialsKey"`
}

// PublishingConfig tunes the fan-out and the retry policy.
type PublishingConfig struct {
	PlatformTimeout time.Duration `yaml:"platformTimeout"`
	BulkConcurrency int           `yaml:"bulkConcurrency"`
	MaxRetries      int           `yaml:"maxRetries"`
	MaxRetryAge     time.Duration `yaml:"maxRetryAge"`
	RetryBaseDelay  time.Duration `yaml:"retryBaseDelay"`
	RetryMaxDelay   time.Duration `yaml:"retryMaxDelay"`
}

// QueueConfig controls the optional in-process worker.
type QueueConfig struct {
	WorkerEnabled bool          `yaml:"workerEnabled"`
	PollInterval  time.Duration `yaml:"pollInterval"`
	RetryInterval time.Duration `yaml:"retryInterval"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type PlatformsConfig struct {
	DevTo     EndpointConfig `yaml:"devto"`
	Hashnode  EndpointConfig `yaml:"hashnode"`
	WordPress OAuthAppConfig `yaml:"wordpress"`
	Wix       OAuthAppConfig `yaml:"wix"`
}

type EndpointConfig struct {
	BaseURL string `yaml:"baseUrl"`
}

// OAuthAppConfig is the client registration used to refresh user tokens.
type OAuthAppConfig struct {
	BaseURL      string `yaml:"baseUrl"`
	TokenURL     string `yaml:"tokenUrl"`
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads .env, then the YAML file named by PUBLISHER_CONFIG (if any),
// then applies environment overrides on top of the defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file found")
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			cfg = defaultConfig()
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:    "8080",
			GinMode: "debug",
		},
		Database: DatabaseConfig{
			Driver: DriverPostgres,
			DSN:    "host=localhost port=5432 user=publisher password=publisher dbname=publisher sslmode=disable",
		},
		Auth: AuthConfig{
			JWTSecret: "your-secret-key-change-this-in-production",
		},
		Security: SecurityConfig{
			CredentialsKey: "dev-credentials-key-change-this-in-production",
		},
		Publishing: PublishingConfig{
			PlatformTimeout: 30 * time.Second,
			BulkConcurrency: 4,
			MaxRetries:      3,
			MaxRetryAge:     24 * time.Hour,
			RetryBaseDelay:  time.Minute,
			RetryMaxDelay:   time.Hour,
		},
		Queue: QueueConfig{
			WorkerEnabled: false,
			PollInterval:  time.Minute,
			RetryInterval: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Topic: "publish-outcomes",
		},
		Platforms: PlatformsConfig{
			DevTo:    EndpointConfig{BaseURL: "https://dev.to/api"},
			Hashnode: EndpointConfig{BaseURL: "https://gql.hashnode.com"},
			WordPress: OAuthAppConfig{
				BaseURL:  "https://public-api.wordpress.com/rest/v1.1",
				TokenURL: "https://public-api.wordpress.com/oauth2/token",
			},
			Wix: OAuthAppConfig{
				BaseURL:  "https://www.wixapis.com",
				TokenURL: "https://www.wixapis.com/oauth/access",
			},
		},
		Log: LogConfig{Level: "info"},
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(portEnv); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv(ginModeEnv); v != "" {
		c.Server.GinMode = v
	}
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(jwtSecretEnv); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv(credentialsKeyEnv); v != "" {
		c.Security.CredentialsKey = v
	}
	if v := os.Getenv(kafkaBrokersEnv); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv(kafkaTopicEnv); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(queueWorkerEnv); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Queue.WorkerEnabled = enabled
		} else {
			log.Printf("config: invalid %s=%q, keeping %v", queueWorkerEnv, v, c.Queue.WorkerEnabled)
		}
	}
	if v := os.Getenv(wordpressIDEnv); v != "" {
		c.Platforms.WordPress.ClientID = v
	}
	if v := os.Getenv(wordpressSecretEnv); v != "" {
		c.Platforms.WordPress.ClientSecret = v
	}
	if v := os.Getenv(wixIDEnv); v != "" {
		c.Platforms.Wix.ClientID = v
	}
	if v := os.Getenv(wixSecretEnv); v != "" {
		c.Platforms.Wix.ClientSecret = v
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}
