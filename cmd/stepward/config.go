package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/stepward/stepward/pkg/schema"
)

// PolicyRule declares one rule-driven protocol policy.
type PolicyRule struct {
	Name   string `json:"name"`
	Engine string `json:"engine"` // "expr", "cel" or "jq"
	Rule   string `json:"rule"`
}

// Config holds all stepward configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr string `json:"listen_addr"`
	BaseURL    string `json:"base_url"`
	LogLevel   string `json:"log_level"`

	DecisionTimeoutSec  int    `json:"decision_timeout_sec"`
	DecisionPollMS      int    `json:"decision_poll_ms"`
	JanitorSchedule     string `json:"janitor_schedule"`
	MaxNodeExecutions   int    `json:"max_node_executions"`
	InterventionEnabled bool   `json:"intervention_enabled"`
	RiskThreshold       string `json:"risk_threshold"`

	PolicyRules []PolicyRule `json:"policy_rules"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:          ":8422",
		LogLevel:            "info",
		DecisionTimeoutSec:  300,
		DecisionPollMS:      1000,
		JanitorSchedule:     "* * * * *",
		MaxNodeExecutions:   50,
		InterventionEnabled: true,
		RiskThreshold:       "high",
	}
}

func stepwardDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stepward"
	}
	return filepath.Join(home, ".stepward")
}

func settingsPath() string {
	return filepath.Join(stepwardDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("STEPWARD_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("STEPWARD_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("STEPWARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STEPWARD_DECISION_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DecisionTimeoutSec = n
		}
	}
	if v := os.Getenv("STEPWARD_DECISION_POLL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DecisionPollMS = n
		}
	}
	if v := os.Getenv("STEPWARD_JANITOR_SCHEDULE"); v != "" {
		cfg.JanitorSchedule = v
	}
	if v := os.Getenv("STEPWARD_MAX_NODE_EXECUTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxNodeExecutions = n
		}
	}
	if v := os.Getenv("STEPWARD_INTERVENTION_ENABLED"); v != "" {
		cfg.InterventionEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("STEPWARD_RISK_THRESHOLD"); v != "" {
		cfg.RiskThreshold = v
	}

	// Derive base_url from listen_addr if empty.
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}

	return cfg
}

// riskThreshold parses the configured threshold, falling back to High.
func (c Config) riskThreshold() schema.RiskLevel {
	level, err := schema.ParseRiskLevel(c.RiskThreshold)
	if err != nil {
		return schema.RiskHigh
	}
	return level
}
