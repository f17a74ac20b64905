package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Config struct {
	Agent      AgentConfig      `json:"agent"`
	Completion CompletionConfig `json:"completion"`
	Server     ServerConfig     `json:"server"`
	Telegram   TelegramConfig   `json:"telegram"`
	Session    SessionConfig    `json:"session"`
}

type AgentConfig struct {
	Name      string `json:"name"`
	Greeting  string `json:"greeting"`
	CLIUserID string `json:"cli_user_id"`
}

// CompletionConfig tunes the chat-completions endpoint. The bearer key is
// supplied out-of-band via GROQ_API_KEY, never stored in the config file.
type CompletionConfig struct {
	BaseURL     string  `json:"base_url"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	JSONMode    bool    `json:"json_mode"`
	TimeoutSec  int     `json:"timeout_sec"`
}

type ServerConfig struct {
	Port int `json:"port"`
}

// TelegramConfig enables the long-polling channel. The bot token comes from
// TELEGRAM_BOT_TOKEN.
type TelegramConfig struct {
	Enabled         bool `json:"enabled"`
	PollIntervalSec int  `json:"poll_interval_sec"`
}

type SessionConfig struct {
	IdleTTLMin       int `json:"idle_ttl_min"`
	SweepIntervalMin int `json:"sweep_interval_min"`
}

type Manager struct {
	path string
	mu   sync.RWMutex
	cfg  Config
}

func DefaultPath() string {
	return filepath.Join("config", "config.json")
}

func NewManager(path string) (*Manager, error) {
	cfg := defaultConfig()
	mgr := &Manager{
		path: path,
		cfg:  cfg,
	}
	if err := mgr.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	if err := mgr.save(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Update(apply func(*Config)) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(&m.cfg)
	applyDefaults(&m.cfg)
	if err := m.saveLocked(); err != nil {
		return Config{}, err
	}
	return m.cfg, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return err
	}
	m.cfg = fileCfg
	applyDefaults(&m.cfg)
	return nil
}

func (m *Manager) save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

func defaultConfig() Config {
	return Config{
		Agent: AgentConfig{
			Name:      "Aura",
			Greeting:  "Hello! How can I help you schedule your day?",
			CLIUserID: "local_user",
		},
		Completion: CompletionConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "llama-3.1-8b-instant",
			Temperature: 0.3,
			MaxTokens:   1024,
			JSONMode:    false,
			TimeoutSec:  30,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Telegram: TelegramConfig{
			Enabled:         false,
			PollIntervalSec: 2,
		},
		Session: SessionConfig{
			IdleTTLMin:       30,
			SweepIntervalMin: 10,
		},
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Agent.Name) == "" {
		cfg.Agent.Name = "Aura"
	}
	if strings.TrimSpace(cfg.Agent.Greeting) == "" {
		cfg.Agent.Greeting = "Hello! How can I help you schedule your day?"
	}
	if strings.TrimSpace(cfg.Agent.CLIUserID) == "" {
		cfg.Agent.CLIUserID = "local_user"
	}
	if strings.TrimSpace(cfg.Completion.BaseURL) == "" {
		cfg.Completion.BaseURL = "https://api.groq.com/openai/v1"
	}
	if strings.TrimSpace(cfg.Completion.Model) == "" {
		cfg.Completion.Model = "llama-3.1-8b-instant"
	}
	if cfg.Completion.Temperature < 0 || cfg.Completion.Temperature > 1 {
		cfg.Completion.Temperature = 0.3
	}
	if cfg.Completion.MaxTokens <= 0 {
		cfg.Completion.MaxTokens = 1024
	}
	if cfg.Completion.TimeoutSec <= 0 {
		cfg.Completion.TimeoutSec = 30
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Telegram.PollIntervalSec <= 0 {
		cfg.Telegram.PollIntervalSec = 2
	}
	if cfg.Session.IdleTTLMin <= 0 {
		cfg.Session.IdleTTLMin = 30
	}
	if cfg.Session.SweepIntervalMin <= 0 {
		cfg.Session.SweepIntervalMin = 10
	}
}
