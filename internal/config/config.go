package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"vendorrisk/internal/model"
)

type Config struct {
	LogLevel   string           `json:"log_level" yaml:"log_level"`
	LogFormat  string           `json:"log_format" yaml:"log_format"`
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	Feed       FeedConfig       `json:"feed" yaml:"feed"`
	API        APIConfig        `json:"api" yaml:"api"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Timeline   TimelineConfig   `json:"timeline" yaml:"timeline"`
	Ratings    RatingsConfig    `json:"ratings" yaml:"ratings"`
	Publish    PublishConfig    `json:"publish" yaml:"publish"`
}

type SimulationConfig struct {
	TickInterval        time.Duration  `json:"tick_interval" yaml:"tick_interval"`
	AutoStart           bool           `json:"autostart" yaml:"autostart"`
	Seed                uint64         `json:"seed" yaml:"seed"`
	IncidentProbability float64        `json:"incident_probability" yaml:"incident_probability"`
	ResolveProbability  float64        `json:"resolve_probability" yaml:"resolve_probability"`
	HistoryLimit        int            `json:"history_limit" yaml:"history_limit"`
	PenaltyScale        float64        `json:"penalty_scale" yaml:"penalty_scale"`
	Fluctuation         float64        `json:"fluctuation" yaml:"fluctuation"`
	TriggerPenalty      float64        `json:"trigger_penalty" yaml:"trigger_penalty"`
	SeedFromStorage     bool           `json:"seed_from_storage" yaml:"seed_from_storage"`
	Vendors             []model.Vendor `json:"vendors,omitempty" yaml:"vendors,omitempty"`
}

type FeedConfig struct {
	ChannelBuffer int            `json:"channel_buffer" yaml:"channel_buffer"`
	DedupeWindow  time.Duration  `json:"dedupe_window" yaml:"dedupe_window"`
	Webhook       WebhookConfig  `json:"webhook" yaml:"webhook"`
	Kafka         KafkaConfig    `json:"kafka" yaml:"kafka"`
	Postgres      PGNotifyConfig `json:"postgres" yaml:"postgres"`
}

type WebhookConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type PGNotifyConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DSN     string `json:"dsn" yaml:"dsn"`
	Channel string `json:"channel" yaml:"channel"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type TimelineConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

type RatingsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
	Points     int `json:"points" yaml:"points"`
}

type PublishConfig struct {
	Redis RedisConfig `json:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Key      string `json:"key" yaml:"key"`
	Channel  string `json:"channel" yaml:"channel"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Simulation: SimulationConfig{
			TickInterval:        3 * time.Second,
			IncidentProbability: 0.2,
			ResolveProbability:  0.05,
			HistoryLimit:        50,
			PenaltyScale:        0.1,
			Fluctuation:         2,
			TriggerPenalty:      15,
		},
		Feed: FeedConfig{
			ChannelBuffer: 1000,
			DedupeWindow:  2 * time.Second,
			Webhook:       WebhookConfig{Enabled: false, Addr: ":8082"},
			Kafka:         KafkaConfig{Enabled: false},
			Postgres:      PGNotifyConfig{Enabled: false, Channel: "record_changes"},
		},
		API:      APIConfig{Enabled: true, Addr: ":8081"},
		Storage:  StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:vendorrisk.db?_pragma=busy_timeout(5000)"},
		Timeline: TimelineConfig{StoreLimit: 1000},
		Ratings:  RatingsConfig{StoreLimit: 500, Points: 120},
		Publish: PublishConfig{
			Redis: RedisConfig{Enabled: false, Addr: "127.0.0.1:6379", Key: "vendorrisk:simulation:state", Channel: "vendorrisk:simulation"},
		},
	}
}

func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(content)
}

// Parse decodes YAML or JSON on top of DefaultConfig and validates the result.
func Parse(content []byte) (*Config, error) {
	cfg := DefaultConfig()
	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode config: %w", decodeErr)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	// write beside the target and rename so a concurrent Load never sees a
	// partial file
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.Simulation.TickInterval <= 0 {
		cfg.Simulation.TickInterval = 3 * time.Second
	}
	if cfg.Simulation.HistoryLimit <= 0 {
		cfg.Simulation.HistoryLimit = 50
	}
	if cfg.Simulation.PenaltyScale <= 0 {
		cfg.Simulation.PenaltyScale = 0.1
	}
	if cfg.Simulation.Fluctuation < 0 {
		cfg.Simulation.Fluctuation = 0
	}
	if cfg.Simulation.TriggerPenalty <= 0 {
		cfg.Simulation.TriggerPenalty = 15
	}
	// out-of-range probabilities are clamped rather than rejected
	cfg.Simulation.IncidentProbability = clampUnit(cfg.Simulation.IncidentProbability)
	cfg.Simulation.ResolveProbability = clampUnit(cfg.Simulation.ResolveProbability)
	if cfg.Feed.ChannelBuffer <= 0 {
		cfg.Feed.ChannelBuffer = 1000
	}
	if cfg.Feed.Postgres.Channel == "" {
		cfg.Feed.Postgres.Channel = "record_changes"
	}
	if cfg.Timeline.StoreLimit <= 0 {
		cfg.Timeline.StoreLimit = 1000
	}
	if cfg.Ratings.StoreLimit <= 0 {
		cfg.Ratings.StoreLimit = 500
	}
	if cfg.Ratings.Points <= 0 {
		cfg.Ratings.Points = 120
	}
	if cfg.Publish.Redis.Key == "" {
		cfg.Publish.Redis.Key = "vendorrisk:simulation:state"
	}
}

func clampUnit(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Feed.Webhook.Enabled && cfg.Feed.Webhook.Addr == "" {
		return errors.New("feed.webhook.addr required when feed.webhook.enabled is true")
	}
	if cfg.Feed.Kafka.Enabled {
		if len(cfg.Feed.Kafka.Brokers) == 0 || cfg.Feed.Kafka.Topic == "" || cfg.Feed.Kafka.GroupID == "" {
			return errors.New("feed.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Feed.Postgres.Enabled && cfg.Feed.Postgres.DSN == "" {
		return errors.New("feed.postgres.dsn required when feed.postgres.enabled is true")
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "postgresql":
		default:
			return fmt.Errorf("storage.driver %q unsupported", cfg.Storage.Driver)
		}
	}
	if cfg.Simulation.SeedFromStorage && !cfg.Storage.Enabled {
		return errors.New("simulation.seed_from_storage requires storage.enabled")
	}
	if cfg.Publish.Redis.Enabled && cfg.Publish.Redis.Addr == "" {
		return errors.New("publish.redis.addr required when publish.redis.enabled is true")
	}
	seen := make(map[string]struct{}, len(cfg.Simulation.Vendors))
	for i, v := range cfg.Simulation.Vendors {
		if strings.TrimSpace(v.ID) == "" {
			return fmt.Errorf("simulation.vendors[%d].id is empty", i)
		}
		if _, dup := seen[v.ID]; dup {
			return fmt.Errorf("simulation.vendors contains duplicate id %q", v.ID)
		}
		seen[v.ID] = struct{}{}
		if v.SecurityRating < 0 || v.SecurityRating > 100 {
			return fmt.Errorf("simulation.vendors[%d].security_rating must be within [0,100]", i)
		}
	}
	return nil
}
