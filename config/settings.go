package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Settings holds all configuration for the stage relay
type Settings struct {
	// Chain
	RPCURL          string
	ChainID         int64 // 0 means ask the node
	ContractAddress string
	Contract        common.Address
	PrivateKey      string
	ABIDir          string
	ContractABIFile string // empty uses the built-in tracker ABI

	// Submission
	GasBufferPercent    uint64
	WaitForConfirmation bool
	ConfirmationTimeout time.Duration
	SubmitTimeout       time.Duration
	SubmitQueueSize     int

	// Reads
	ReadTimeout             time.Duration
	HistoryFetchConcurrency int

	// Media
	IPFSAPIURL     string
	MaxMediaBytes  int64
	MaxMediaFiles  int
	MediaCacheSize int
	MediaCacheTTL  time.Duration

	// Redis (optional; empty host disables it)
	RedisHost           string
	RedisPort           string
	RedisDB             int
	RedisPassword       string
	EventsChannelPrefix string

	// API
	APIHost string
	APIPort int

	// Logging
	LogLevel  string
	LogFormat string
	DebugMode bool
}

var (
	// SettingsObj is the global settings instance
	SettingsObj *Settings
)

var defaults = map[string]interface{}{
	"RPC_URL":                   "http://127.0.0.1:8545",
	"CHAIN_ID":                  0,
	"CONTRACT_ADDRESS":          "",
	"PRIVATE_KEY":               "",
	"ABI_DIR":                   "",
	"CONTRACT_ABI_FILE":         "",
	"GAS_BUFFER_PERCENT":        20,
	"WAIT_FOR_CONFIRMATION":     true,
	"CONFIRMATION_TIMEOUT":      120,
	"SUBMIT_TIMEOUT":            60,
	"SUBMIT_QUEUE_SIZE":         64,
	"READ_TIMEOUT":              30,
	"HISTORY_FETCH_CONCURRENCY": 8,
	"IPFS_API_URL":              "",
	"MAX_MEDIA_BYTES":           10 << 20,
	"MAX_MEDIA_FILES":           10,
	"MEDIA_CACHE_SIZE":          1024,
	"MEDIA_CACHE_TTL":           86400,
	"REDIS_HOST":                "",
	"REDIS_PORT":                "6379",
	"REDIS_DB":                  0,
	"REDIS_PASSWORD":            "",
	"EVENTS_CHANNEL_PREFIX":     "relay",
	"API_HOST":                  "0.0.0.0",
	"API_PORT":                  8080,
	"LOG_LEVEL":                 "info",
	"LOG_FORMAT":                "text",
	"DEBUG_MODE":                false,
}

// LoadConfig loads configuration from the environment and, when CONFIG_FILE
// is set, a YAML file. Environment variables win over the file.
func LoadConfig() error {
	settings, err := Load(viper.New())
	if err != nil {
		return err
	}
	SettingsObj = settings

	configureLogging()

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	logConfigSummary()
	return nil
}

// Load reads settings through v without touching global state
func Load(v *viper.Viper) (*Settings, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	s := &Settings{
		RPCURL:          strings.TrimSpace(v.GetString("RPC_URL")),
		ChainID:         v.GetInt64("CHAIN_ID"),
		ContractAddress: strings.TrimSpace(v.GetString("CONTRACT_ADDRESS")),
		PrivateKey:      v.GetString("PRIVATE_KEY"),
		ABIDir:          v.GetString("ABI_DIR"),
		ContractABIFile: v.GetString("CONTRACT_ABI_FILE"),

		GasBufferPercent:    uint64(v.GetInt("GAS_BUFFER_PERCENT")),
		WaitForConfirmation: v.GetBool("WAIT_FOR_CONFIRMATION"),
		ConfirmationTimeout: time.Duration(v.GetInt("CONFIRMATION_TIMEOUT")) * time.Second,
		SubmitTimeout:       time.Duration(v.GetInt("SUBMIT_TIMEOUT")) * time.Second,
		SubmitQueueSize:     v.GetInt("SUBMIT_QUEUE_SIZE"),

		ReadTimeout:             time.Duration(v.GetInt("READ_TIMEOUT")) * time.Second,
		HistoryFetchConcurrency: v.GetInt("HISTORY_FETCH_CONCURRENCY"),

		IPFSAPIURL:     v.GetString("IPFS_API_URL"),
		MaxMediaBytes:  v.GetInt64("MAX_MEDIA_BYTES"),
		MaxMediaFiles:  v.GetInt("MAX_MEDIA_FILES"),
		MediaCacheSize: v.GetInt("MEDIA_CACHE_SIZE"),
		MediaCacheTTL:  time.Duration(v.GetInt("MEDIA_CACHE_TTL")) * time.Second,

		RedisHost:           v.GetString("REDIS_HOST"),
		RedisPort:           v.GetString("REDIS_PORT"),
		RedisDB:             v.GetInt("REDIS_DB"),
		RedisPassword:       v.GetString("REDIS_PASSWORD"),
		EventsChannelPrefix: v.GetString("EVENTS_CHANNEL_PREFIX"),

		APIHost: v.GetString("API_HOST"),
		APIPort: v.GetInt("API_PORT"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
		DebugMode: v.GetBool("DEBUG_MODE"),
	}

	if s.ContractAddress != "" && common.IsHexAddress(s.ContractAddress) {
		s.Contract = common.HexToAddress(s.ContractAddress)
	}

	// The ABI loader reads ABI_DIR from the environment
	if s.ABIDir != "" && os.Getenv("ABI_DIR") == "" {
		os.Setenv("ABI_DIR", s.ABIDir)
	}

	return s, nil
}

// configureLogging sets up the logger based on configuration
func configureLogging() {
	switch strings.ToLower(SettingsObj.LogLevel) {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn", "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}

	if SettingsObj.DebugMode {
		log.SetLevel(log.DebugLevel)
	}

	if strings.EqualFold(SettingsObj.LogFormat, "json") {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
		ForceColors:   true,
	})
}

// validateConfig validates the loaded configuration
func validateConfig() error {
	return SettingsObj.Validate()
}

// Validate checks required settings and value ranges
func (s *Settings) Validate() error {
	if s.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if s.ContractAddress == "" {
		return fmt.Errorf("CONTRACT_ADDRESS is required")
	}
	if !common.IsHexAddress(s.ContractAddress) {
		return fmt.Errorf("CONTRACT_ADDRESS is not a valid address: %s", s.ContractAddress)
	}
	if strings.TrimSpace(s.PrivateKey) == "" {
		return fmt.Errorf("PRIVATE_KEY is required")
	}
	if s.ChainID < 0 {
		return fmt.Errorf("CHAIN_ID must not be negative")
	}
	if s.GasBufferPercent > 500 {
		return fmt.Errorf("GAS_BUFFER_PERCENT %d is out of range (0-500)", s.GasBufferPercent)
	}
	if s.MaxMediaBytes <= 0 || s.MaxMediaFiles < 0 {
		return fmt.Errorf("MAX_MEDIA_BYTES must be positive and MAX_MEDIA_FILES non-negative")
	}
	if s.APIPort <= 0 || s.APIPort > 65535 {
		return fmt.Errorf("API_PORT %d is out of range", s.APIPort)
	}

	if s.IPFSAPIURL == "" {
		log.Warn("No IPFS_API_URL configured - media references will be content digests only")
	}
	if s.RedisHost == "" {
		log.Warn("No REDIS_HOST configured - lifecycle events and shared media cache disabled")
	}
	return nil
}

// RedisAddr returns host:port for the Redis client
func (s *Settings) RedisAddr() string {
	return fmt.Sprintf("%s:%s", s.RedisHost, s.RedisPort)
}

// logConfigSummary logs a summary of the configuration
func logConfigSummary() {
	log.Info("=== Configuration Loaded ===")
	log.Infof("RPC: %s (chain id %s)", SettingsObj.RPCURL, chainIDLabel(SettingsObj.ChainID))
	log.Infof("Tracker Contract: %s", SettingsObj.Contract.Hex())
	if SettingsObj.ContractABIFile != "" {
		log.Infof("Contract ABI: %s", SettingsObj.ContractABIFile)
	}
	log.Infof("Submission: gas buffer %d%%, wait for confirmation=%v (timeout %v), queue %d",
		SettingsObj.GasBufferPercent, SettingsObj.WaitForConfirmation,
		SettingsObj.ConfirmationTimeout, SettingsObj.SubmitQueueSize)
	log.Infof("History: fetch concurrency %d, read timeout %v",
		SettingsObj.HistoryFetchConcurrency, SettingsObj.ReadTimeout)

	if SettingsObj.IPFSAPIURL != "" {
		log.Infof("IPFS: %s", SettingsObj.IPFSAPIURL)
	}
	log.Infof("Media: max %d files of %d bytes, cache %d entries (TTL %v)",
		SettingsObj.MaxMediaFiles, SettingsObj.MaxMediaBytes, SettingsObj.MediaCacheSize, SettingsObj.MediaCacheTTL)

	if SettingsObj.RedisHost != "" {
		log.Infof("Redis: %s (DB %d)", SettingsObj.RedisAddr(), SettingsObj.RedisDB)
	}
	log.Infof("API: %s:%d", SettingsObj.APIHost, SettingsObj.APIPort)
	log.Info("============================")
}

func chainIDLabel(id int64) string {
	if id == 0 {
		return "from node"
	}
	return fmt.Sprintf("%d", id)
}
