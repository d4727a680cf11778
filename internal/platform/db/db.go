package db

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

const driverName = "mysql"

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type AuthConfig struct {
	JWTSecret      string `yaml:"jwt_secret"`
	AccessTTLMin   int    `yaml:"access_ttl_minutes"`
	RefreshTTLDays int    `yaml:"refresh_ttl_days"`
}

type CacheConfig struct {
	RedisAddr         string `yaml:"redis_addr"`
	ListTTLSeconds    int    `yaml:"list_ttl_seconds"`
	RankingTTLSeconds int    `yaml:"ranking_ttl_seconds"`
}

type UploadsConfig struct {
	Dir           string `yaml:"dir"`
	PublicBaseURL string `yaml:"public_base_url"`
}

type Config struct {
	Version string         `yaml:"version"`
	Mode    string         `yaml:"mode"`
	Server  ServerConfig   `yaml:"server"`
	DB      DatabaseConfig `yaml:"database"`
	Auth    AuthConfig     `yaml:"auth"`
	Cache   CacheConfig    `yaml:"cache"`
	Uploads UploadsConfig  `yaml:"uploads"`
}

func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Auth.AccessTTLMin <= 0 {
		cfg.Auth.AccessTTLMin = 15
	}
	if cfg.Auth.RefreshTTLDays <= 0 {
		cfg.Auth.RefreshTTLDays = 7
	}
	if cfg.Cache.ListTTLSeconds <= 0 {
		cfg.Cache.ListTTLSeconds = 60
	}
	if cfg.Cache.RankingTTLSeconds <= 0 {
		cfg.Cache.RankingTTLSeconds = 120
	}
	if cfg.Uploads.Dir == "" {
		cfg.Uploads.Dir = "uploads"
	}
	return &cfg, nil
}

func Connect(c DatabaseConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=false&timeout=3s&readTimeout=5s&writeTimeout=5s&loc=UTC",
		c.Username, c.Password, c.Host, c.Port, c.DBName)

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}

	// Pool sizing: keep the sum across instances below MySQL max_connections.
	db.SetMaxOpenConns(80)
	db.SetMaxIdleConns(20)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}
