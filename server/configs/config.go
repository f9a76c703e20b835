package configs

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/phuhao00/scriptbridge/server/internal/utils"
)

// Config holds the application configuration. Values come from the JSON file
// first; any SCRIPTBRIDGE_* environment variable that is set overrides them.
type Config struct {
	Server struct {
		Host        string `json:"host" env:"SCRIPTBRIDGE_HOST"`
		TCPPort     int    `json:"tcpPort" env:"SCRIPTBRIDGE_TCP_PORT"`
		MetricsAddr string `json:"metricsAddr" env:"SCRIPTBRIDGE_METRICS_ADDR"` // empty disables /metrics
		LogLevel    string `json:"logLevel" env:"SCRIPTBRIDGE_LOG_LEVEL"`
	} `json:"server"`
	Scripts struct {
		Directory    string `json:"directory" env:"SCRIPTBRIDGE_SCRIPTS_DIR"`
		TickRate     int    `json:"tickRate" env:"SCRIPTBRIDGE_TICK_RATE"`
		AskTimeoutMs int    `json:"askTimeoutMs" env:"SCRIPTBRIDGE_ASK_TIMEOUT_MS"`
	} `json:"scripts"`
	Chat struct {
		CommandPrefix     string  `json:"commandPrefix" env:"SCRIPTBRIDGE_COMMAND_PREFIX"`
		CommandsPerSecond float64 `json:"commandsPerSecond" env:"SCRIPTBRIDGE_COMMANDS_PER_SECOND"`
		CommandBurst      int     `json:"commandBurst" env:"SCRIPTBRIDGE_COMMAND_BURST"`
	} `json:"chat"`
}

var (
	once   sync.Once
	config *Config
	err    error
)

// LoadConfig loads the configuration once and caches it for GetConfig.
func LoadConfig(filePath string) (*Config, error) {
	once.Do(func() {
		utils.LogInfof("Loading configuration from %s", filePath)
		config, err = Load(filePath)
		if err != nil {
			utils.LogErrorf("Error loading config file %s: %v", filePath, err)
			return
		}
		utils.LogInfo("Configuration loaded successfully.")
	})
	return config, err
}

// Load reads, overrides and validates a configuration file without caching it.
func Load(filePath string) (*Config, error) {
	file, readErr := os.ReadFile(filePath)
	if readErr != nil {
		return nil, readErr
	}

	cfg := &Config{}
	setDefaultValues(cfg)
	if jsonErr := json.Unmarshal(file, cfg); jsonErr != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, jsonErr)
	}
	if envErr := env.Parse(cfg); envErr != nil {
		return nil, fmt.Errorf("parse env: %w", envErr)
	}
	if validErr := cfg.Validate(); validErr != nil {
		return nil, validErr
	}
	return cfg, nil
}

// GetConfig returns the loaded configuration.
// It exits the process if LoadConfig has not been called successfully.
func GetConfig() *Config {
	if config == nil || err != nil {
		utils.LogFatalf("Configuration not loaded or loaded with error. Call LoadConfig first. Error: %v", err)
	}
	return config
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.TCPPort <= 0 || c.Server.TCPPort > 65535 {
		return fmt.Errorf("server.tcpPort %d out of range", c.Server.TCPPort)
	}
	if c.Scripts.TickRate <= 0 {
		return fmt.Errorf("scripts.tickRate must be positive, got %d", c.Scripts.TickRate)
	}
	if c.Scripts.AskTimeoutMs <= 0 {
		return fmt.Errorf("scripts.askTimeoutMs must be positive, got %d", c.Scripts.AskTimeoutMs)
	}
	if c.Chat.CommandBurst < 0 {
		return fmt.Errorf("chat.commandBurst must not be negative, got %d", c.Chat.CommandBurst)
	}
	return nil
}

// Address is the TCP listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.TCPPort))
}

func (c *Config) AskTimeout() time.Duration {
	return utils.Milliseconds(c.Scripts.AskTimeoutMs)
}

// setDefaultValues sets default configuration values.
func setDefaultValues(cfg *Config) {
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.TCPPort = 8080
	cfg.Server.MetricsAddr = ":8081"
	cfg.Server.LogLevel = "INFO"
	cfg.Scripts.Directory = "resources"
	cfg.Scripts.TickRate = 60
	cfg.Scripts.AskTimeoutMs = 5000
	cfg.Chat.CommandPrefix = "/"
	cfg.Chat.CommandsPerSecond = 2
	cfg.Chat.CommandBurst = 5
}

// CreateExampleConfigFile creates an example config.json if it doesn't exist.
func CreateExampleConfigFile(filePath string) {
	if _, statErr := os.Stat(filePath); !os.IsNotExist(statErr) {
		utils.LogDebugf("Config file %s already exists. Skipping creation of example.", filePath)
		return
	}
	utils.LogInfof("Creating example config file at %s", filePath)
	exampleCfg := &Config{}
	setDefaultValues(exampleCfg)

	data, marshalErr := json.MarshalIndent(exampleCfg, "", "  ")
	if marshalErr != nil {
		utils.LogErrorf("Error marshalling example config: %v", marshalErr)
		return
	}
	if writeErr := os.WriteFile(filePath, data, 0644); writeErr != nil {
		utils.LogErrorf("Error writing example config file %s: %v", filePath, writeErr)
		return
	}
	utils.LogInfof("Example config file created: %s. Please review and update it.", filePath)
}
