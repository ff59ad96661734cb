package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete aisum configuration
type Config struct {
	Jira       JiraConfig       `json:"jira" mapstructure:"jira"`
	GenAI      GenAIConfig      `json:"genai" mapstructure:"genai"`
	Summarizer SummarizerConfig `json:"summarizer" mapstructure:"summarizer"`
	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	Server     ServerConfig     `json:"server" mapstructure:"server"`
	Bot        BotConfig        `json:"bot" mapstructure:"bot"`
	Storage    StorageConfig    `json:"storage" mapstructure:"storage"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`
}

// JiraConfig contains the tracker connection settings
type JiraConfig struct {
	URL            string           `json:"url" mapstructure:"url"`
	Token          string           `json:"token" mapstructure:"token"`
	MinCallDelayMs int              `json:"minCallDelayMs" mapstructure:"minCallDelayMs"`
	MaxRetries     int              `json:"maxRetries" mapstructure:"maxRetries"`
	TimeoutSeconds int              `json:"timeoutSeconds" mapstructure:"timeoutSeconds"`
	Fields         JiraFieldsConfig `json:"fields" mapstructure:"fields"`
}

// JiraFieldsConfig maps logical fields to the instance's custom field IDs
type JiraFieldsConfig struct {
	EpicLink      string `json:"epicLink" mapstructure:"epicLink"`
	FeatureLink   string `json:"featureLink" mapstructure:"featureLink"`
	ParentLink    string `json:"parentLink" mapstructure:"parentLink"`
	StatusSummary string `json:"statusSummary" mapstructure:"statusSummary"`
	Blocked       string `json:"blocked" mapstructure:"blocked"`
	BlockedReason string `json:"blockedReason" mapstructure:"blockedReason"`
}

// GenAIConfig contains the text generation service settings
type GenAIConfig struct {
	URL              string  `json:"url" mapstructure:"url"`
	Key              string  `json:"key" mapstructure:"key"`
	Model            string  `json:"model" mapstructure:"model"`
	DecodingMethod   string  `json:"decodingMethod" mapstructure:"decodingMethod"`
	MaxNewTokens     int     `json:"maxNewTokens" mapstructure:"maxNewTokens"`
	MinNewTokens     int     `json:"minNewTokens" mapstructure:"minNewTokens"`
	Temperature      float64 `json:"temperature" mapstructure:"temperature"`
	TopK             int     `json:"topK" mapstructure:"topK"`
	TopP             float64 `json:"topP" mapstructure:"topP"`
	TimeoutSeconds   int     `json:"timeoutSeconds" mapstructure:"timeoutSeconds"`
	MaxAttempts      int     `json:"maxAttempts" mapstructure:"maxAttempts"`
	InitialBackoffMs int     `json:"initialBackoffMs" mapstructure:"initialBackoffMs"`
	MaxBackoffMs     int     `json:"maxBackoffMs" mapstructure:"maxBackoffMs"`
}

// SummarizerConfig controls which issues may carry a summary and how prompts are built
type SummarizerConfig struct {
	Label            string   `json:"label" mapstructure:"label"`
	ActiveLabel      string   `json:"activeLabel" mapstructure:"activeLabel"`
	AllowedProjects  []string `json:"allowedProjects" mapstructure:"allowedProjects"`
	LegacyIdentities []string `json:"legacyIdentities" mapstructure:"legacyIdentities"`
	WrapColumn       int      `json:"wrapColumn" mapstructure:"wrapColumn"`
	TemplatesFile    string   `json:"templatesFile" mapstructure:"templatesFile"`
}

// CacheConfig contains issue cache settings
type CacheConfig struct {
	Capacity      int `json:"capacity" mapstructure:"capacity"`
	MaxAgeMinutes int `json:"maxAgeMinutes" mapstructure:"maxAgeMinutes"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	Host         string   `json:"host" mapstructure:"host"`
	Port         int      `json:"port" mapstructure:"port"`
	DefaultDepth int      `json:"defaultDepth" mapstructure:"defaultDepth"`
	CorsOrigins  []string `json:"corsOrigins" mapstructure:"corsOrigins"`
	RateLimit    int      `json:"rateLimit" mapstructure:"rateLimit"`
	AuthEnabled  bool     `json:"authEnabled" mapstructure:"authEnabled"`
	StaticToken  string   `json:"staticToken" mapstructure:"staticToken"`
}

// BotConfig contains settings for the periodic summarization loop
type BotConfig struct {
	Schedule   string `json:"schedule" mapstructure:"schedule"`
	BatchLimit int    `json:"batchLimit" mapstructure:"batchLimit"`
	MaxDepth   int    `json:"maxDepth" mapstructure:"maxDepth"`
	Since      string `json:"since" mapstructure:"since"`
}

// StorageConfig contains the state database location
type StorageConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	File       string `json:"file" mapstructure:"file"`
	MaxSize    string `json:"maxSize" mapstructure:"maxSize"`
	MaxBackups int    `json:"maxBackups" mapstructure:"maxBackups"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Jira: JiraConfig{
			MinCallDelayMs: 400,
			MaxRetries:     3,
			TimeoutSeconds: 30,
			Fields: JiraFieldsConfig{
				EpicLink:      "customfield_12311140",
				FeatureLink:   "customfield_12318341",
				ParentLink:    "customfield_12313140",
				StatusSummary: "customfield_12320841",
			},
		},
		GenAI: GenAIConfig{
			Model:            "mistralai/mixtral-8x7b-instruct-v01",
			DecodingMethod:   "sample",
			MaxNewTokens:     4000,
			MinNewTokens:     10,
			Temperature:      0.5,
			TopK:             50,
			TopP:             1,
			TimeoutSeconds:   120,
			MaxAttempts:      100,
			InitialBackoffMs: 1000,
			MaxBackoffMs:     60000,
		},
		Summarizer: SummarizerConfig{
			Label:            "AISummary",
			ActiveLabel:      "active",
			AllowedProjects:  []string{},
			LegacyIdentities: []string{},
			WrapColumn:       78,
		},
		Cache: CacheConfig{
			Capacity:      10000,
			MaxAgeMinutes: 60,
		},
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8000,
			DefaultDepth: 0,
			CorsOrigins:  []string{},
			RateLimit:    60,
			AuthEnabled:  true,
		},
		Bot: BotConfig{
			Schedule:   "every 5m",
			BatchLimit: 25,
			MaxDepth:   1,
			Since:      "2020-01-01T00:00:00Z",
		},
		Storage: StorageConfig{
			Path: defaultStoragePath(),
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxBackups: 3,
		},
	}
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "aisum.db"
	}
	return filepath.Join(home, ".aisum", "aisum.db")
}

// envAliases are the environment names the service has always been deployed with.
var envAliases = map[string]string{
	"jira.url":                   "JIRA_URL",
	"jira.token":                 "JIRA_TOKEN",
	"genai.key":                  "GENAI_KEY",
	"genai.url":                  "GENAI_API",
	"summarizer.allowedProjects": "ALLOWED_PROJECTS",
	"server.staticToken":         "API_TOKEN",
}

// EnvAliases returns the config keys that also read a legacy environment
// variable, keyed by config key.
func EnvAliases() map[string]string {
	out := make(map[string]string, len(envAliases))
	for k, v := range envAliases {
		out[k] = v
	}
	return out
}

// LoadConfig loads configuration from path, or from aisum.{json,yaml,toml} in
// the working directory and ~/.aisum when path is empty. Environment
// variables (AISUM_JIRA_URL, JIRA_TOKEN, ...) override file values.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("aisum")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".aisum"))
		}
	}

	v.SetEnvPrefix("AISUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, "AISUM_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so that env-only values reach Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	data, _ := json.Marshal(cfg)
	var tree map[string]interface{}
	_ = json.Unmarshal(data, &tree)
	var walk func(prefix string, m map[string]interface{})
	walk = func(prefix string, m map[string]interface{}) {
		for k, val := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if sub, ok := val.(map[string]interface{}); ok {
				walk(key, sub)
				continue
			}
			v.SetDefault(key, val)
		}
	}
	walk("", tree)
}

// Save writes the configuration as indented JSON
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	if c.Jira.URL == "" {
		return &ConfigError{Field: "jira.url", Message: "tracker URL is required"}
	}
	if c.Jira.Token == "" {
		return &ConfigError{Field: "jira.token", Message: "tracker token is required"}
	}
	if c.Jira.MinCallDelayMs < 0 {
		return &ConfigError{Field: "jira.minCallDelayMs", Message: "must not be negative"}
	}
	if c.Summarizer.Label == "" {
		return &ConfigError{Field: "summarizer.label", Message: "must not be empty"}
	}
	if c.Summarizer.WrapColumn < 20 {
		return &ConfigError{Field: "summarizer.wrapColumn", Message: "must be at least 20"}
	}
	if c.GenAI.MaxAttempts < 1 {
		return &ConfigError{Field: "genai.maxAttempts", Message: "must be at least 1"}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: "out of range"}
	}
	return nil
}

// ValidateGenAI checks the settings needed to call the generation service
func (c *Config) ValidateGenAI() error {
	if c.GenAI.URL == "" {
		return &ConfigError{Field: "genai.url", Message: "generation service URL is required"}
	}
	if c.GenAI.Key == "" {
		return &ConfigError{Field: "genai.key", Message: "generation service key is required"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
