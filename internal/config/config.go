package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Keycloak    KeycloakConfig `mapstructure:"keycloak"`
	JWT         JWTConfig      `mapstructure:"jwt"`
	CORS        CORSConfig     `mapstructure:"cors"`
}

type ServerConfig struct {
	Port         string `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	DBName     string `mapstructure:"dbname"`
	SSLMode    string `mapstructure:"sslmode"`
	MaxConns   int    `mapstructure:"max_connections"`
	MaxIdle    int    `mapstructure:"max_idle"`
	LogQueries bool   `mapstructure:"log_queries"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KeycloakConfig struct {
	URL           string `mapstructure:"url"`
	AdminRealm    string `mapstructure:"admin_realm"`
	Realm         string `mapstructure:"realm"`
	AdminClientID string `mapstructure:"admin_client_id"`
	AdminUser     string `mapstructure:"admin_user"`
	AdminPass     string `mapstructure:"admin_password"`
}

type JWTConfig struct {
	ResourceID     string `mapstructure:"resource_id"`
	PrincipalClaim string `mapstructure:"principal_claim"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func Load() (*Config, error) {
	return LoadWithConfigFile("")
}

func LoadWithConfigFile(configFile string) (*Config, error) {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/gestock/")

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	viper.SetEnvPrefix("GESTOCK")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// The claims translator resolves the display name from a closed claim
	// set; anything else would silently fall back, so reject it up front.
	switch config.JWT.PrincipalClaim {
	case "preferred_username", "email", "sub":
	default:
		return nil, fmt.Errorf("unsupported jwt.principal_claim %q (supported: preferred_username, email, sub)", config.JWT.PrincipalClaim)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "production")

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)

	viper.SetDefault("database.host", "")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "gestock")
	viper.SetDefault("database.sslmode", "require")
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle", 5)
	viper.SetDefault("database.log_queries", false)

	viper.SetDefault("redis.host", "")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.prefix", "gestock")

	viper.SetDefault("keycloak.url", "")
	viper.SetDefault("keycloak.admin_realm", "master")
	viper.SetDefault("keycloak.realm", "gestock")
	viper.SetDefault("keycloak.admin_client_id", "admin-cli")
	viper.SetDefault("keycloak.admin_user", "")
	viper.SetDefault("keycloak.admin_password", "")

	viper.SetDefault("jwt.resource_id", "gestock-api")
	viper.SetDefault("jwt.principal_claim", "preferred_username")

	viper.SetDefault("cors.allowed_origins", []string{"http://localhost:4200"})
}

func NewLogger(environment string) (*zap.Logger, error) {
	var config zap.Config

	if environment == "development" {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		if environment == "test" {
			config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		} else {
			config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		}
	}

	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}
