package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sightline/server/internal/engine"
	"sightline/server/internal/hub"
	"sightline/server/logging"
)

const defaultListenAddr = ":8080"

// appConfig is the on-disk configuration. Every field has a working default
// so an absent file or empty document yields a runnable server.
type appConfig struct {
	ListenAddr         string        `yaml:"listen_addr"`
	SightDistance      float64       `yaml:"sight_distance"`
	FadeDistance       float64       `yaml:"fade_distance"`
	TickIntervalMs     int           `yaml:"tick_interval_ms"`
	DistanceMode       string        `yaml:"distance_mode"`
	WorldScale         float64       `yaml:"world_scale"`
	DistanceMultiplier float64       `yaml:"distance_multiplier"`
	ScaleWithWorld     bool          `yaml:"scale_with_world"`
	StaleAfterMs       int           `yaml:"stale_after_ms"`
	SubscriberBuffer   int           `yaml:"subscriber_buffer"`
	Logging            loggingConfig `yaml:"logging"`
}

type loggingConfig struct {
	Sinks           []string `yaml:"sinks"`
	MinimumSeverity string   `yaml:"minimum_severity"`
	JSONPath        string   `yaml:"json_path"`
}

func defaultAppConfig() appConfig {
	eng := engine.DefaultConfig()
	return appConfig{
		ListenAddr:         defaultListenAddr,
		SightDistance:      eng.SightDistance,
		FadeDistance:       eng.FadeDistance,
		TickIntervalMs:     int(eng.TickInterval.Milliseconds()),
		DistanceMode:       string(eng.DistanceMode),
		WorldScale:         eng.WorldScale,
		DistanceMultiplier: eng.DistanceMultiplier,
		SubscriberBuffer:   hub.DefaultBufferSize,
		Logging: loggingConfig{
			Sinks:           []string{"console"},
			MinimumSeverity: "info",
		},
	}
}

// loadAppConfig reads a YAML file over the defaults. An empty path returns
// the defaults untouched.
func loadAppConfig(path string) (appConfig, error) {
	cfg := defaultAppConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg.normalized(), nil
}

// normalized fills defaults back in for fields the file zeroed out.
func (c appConfig) normalized() appConfig {
	normalized := c
	normalized.ListenAddr = strings.TrimSpace(normalized.ListenAddr)
	if normalized.ListenAddr == "" {
		normalized.ListenAddr = defaultListenAddr
	}
	if normalized.SubscriberBuffer <= 0 {
		normalized.SubscriberBuffer = hub.DefaultBufferSize
	}
	if len(normalized.Logging.Sinks) == 0 {
		normalized.Logging.Sinks = []string{"console"}
	}
	if normalized.Logging.MinimumSeverity == "" {
		normalized.Logging.MinimumSeverity = "info"
	}
	return normalized
}

func (c appConfig) engineConfig() engine.Config {
	return engine.Config{
		SightDistance:      c.SightDistance,
		FadeDistance:       c.FadeDistance,
		TickInterval:       time.Duration(c.TickIntervalMs) * time.Millisecond,
		DistanceMode:       engine.DistanceMode(c.DistanceMode),
		WorldScale:         c.WorldScale,
		DistanceMultiplier: c.DistanceMultiplier,
		ScaleWithWorld:     c.ScaleWithWorld,
		StaleAfter:         time.Duration(c.StaleAfterMs) * time.Millisecond,
	}
}

func (c appConfig) loggingRouterConfig() logging.Config {
	routerCfg := logging.DefaultConfig()
	routerCfg.EnabledSinks = c.Logging.Sinks
	routerCfg.MinimumSeverity = parseSeverity(c.Logging.MinimumSeverity)
	routerCfg.JSON.FilePath = c.Logging.JSONPath
	return routerCfg
}

func parseSeverity(name string) logging.Severity {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return logging.SeverityDebug
	case "warn", "warning":
		return logging.SeverityWarn
	case "error":
		return logging.SeverityError
	default:
		return logging.SeverityInfo
	}
}
