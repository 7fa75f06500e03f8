// Package config loads service configuration from YAML with
// environment overrides. Every knob has a default so the service
// starts with no config file at all.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the research service.
type Config struct {
	AppName string `yaml:"app_name" mapstructure:"app_name"`
	Version string `yaml:"version" mapstructure:"version"`

	API        APIConfig        `yaml:"api" mapstructure:"api"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Crawl      CrawlConfig      `yaml:"crawl" mapstructure:"crawl"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Processing ProcessingConfig `yaml:"processing" mapstructure:"processing"`
	Agent      AgentConfig      `yaml:"agent" mapstructure:"agent"`
	Session    SessionConfig    `yaml:"session" mapstructure:"session"`
	Memory     MemoryConfig     `yaml:"memory" mapstructure:"memory"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	Host                  string        `yaml:"host" mapstructure:"host"`
	Port                  int           `yaml:"port" mapstructure:"port"`
	CORSOrigins           []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequireAPIKey         bool          `yaml:"require_api_key" mapstructure:"require_api_key"`
	APIKey                string        `yaml:"api_key" mapstructure:"api_key"`
	MaxConcurrentResearch int           `yaml:"max_concurrent_research" mapstructure:"max_concurrent_research"`
	ReadTimeout           time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout          time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	GracefulTimeout       time.Duration `yaml:"graceful_timeout" mapstructure:"graceful_timeout"`
}

// SearchConfig configures the SearXNG client.
type SearchConfig struct {
	BaseURL    string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxResults int           `yaml:"max_results" mapstructure:"max_results"`
	Categories []string      `yaml:"categories" mapstructure:"categories"`
	Language   string        `yaml:"language" mapstructure:"language"`
	VerifySSL  bool          `yaml:"verify_ssl" mapstructure:"verify_ssl"`
}

// CrawlConfig configures the page crawler.
type CrawlConfig struct {
	MaxConcurrent      int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	Timeout            time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxContentLength   int           `yaml:"max_content_length" mapstructure:"max_content_length"`
	RateLimitPerDomain time.Duration `yaml:"rate_limit_per_domain" mapstructure:"rate_limit_per_domain"`
	UserAgent          string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxURLsPerRequest  int           `yaml:"max_urls_per_request" mapstructure:"max_urls_per_request"`
	UseBrowser         bool          `yaml:"use_browser" mapstructure:"use_browser"`
}

// LLMModels names the model per pipeline role.
type LLMModels struct {
	Planner     string `yaml:"planner" mapstructure:"planner"`
	Extractor   string `yaml:"extractor" mapstructure:"extractor"`
	Synthesizer string `yaml:"synthesizer" mapstructure:"synthesizer"`
	Reflector   string `yaml:"reflector" mapstructure:"reflector"`
}

// LLMConfig configures the Ollama client.
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Models      LLMModels     `yaml:"models" mapstructure:"models"`
}

// ProcessingConfig configures chunking and context assembly.
type ProcessingConfig struct {
	ChunkSize          int `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkOverlap       int `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
	MinChunkSize       int `yaml:"min_chunk_size" mapstructure:"min_chunk_size"`
	MaxChunksPerSource int `yaml:"max_chunks_per_source" mapstructure:"max_chunks_per_source"`
	MaxTotalContext    int `yaml:"max_total_context" mapstructure:"max_total_context"`
	Workers            int `yaml:"workers" mapstructure:"workers"`
}

// AgentConfig configures the agent runtime.
type AgentConfig struct {
	MaxIterations       int     `yaml:"max_iterations" mapstructure:"max_iterations"`
	MinSources          int     `yaml:"min_sources" mapstructure:"min_sources"`
	MaxSources          int     `yaml:"max_sources" mapstructure:"max_sources"`
	CoverageThreshold   float64 `yaml:"coverage_threshold" mapstructure:"coverage_threshold"`
	EnableMemoryContext bool    `yaml:"enable_memory_context" mapstructure:"enable_memory_context"`
}

// SessionConfig configures the Redis session store.
type SessionConfig struct {
	RedisAddr     string        `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int           `yaml:"redis_db" mapstructure:"redis_db"`
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// MemoryConfig configures the SQLite memory store.
type MemoryConfig struct {
	Database   string `yaml:"database" mapstructure:"database"`
	MaxContext int    `yaml:"max_context" mapstructure:"max_context"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	JSONFormat bool   `yaml:"json_format" mapstructure:"json_format"`
}

// Load reads configuration from path (optional) and the environment.
// Env vars use the DIOGENES_ prefix with sections joined by
// underscores, e.g. DIOGENES_SEARCH_BASE_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DIOGENES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port out of range: %d", c.API.Port)
	}
	if c.API.MaxConcurrentResearch <= 0 {
		return fmt.Errorf("api.max_concurrent_research must be positive: %d", c.API.MaxConcurrentResearch)
	}
	if c.Processing.ChunkOverlap >= c.Processing.ChunkSize {
		return fmt.Errorf("processing.chunk_overlap %d must be smaller than chunk_size %d",
			c.Processing.ChunkOverlap, c.Processing.ChunkSize)
	}
	if c.Crawl.MaxConcurrent <= 0 {
		return fmt.Errorf("crawl.max_concurrent must be positive: %d", c.Crawl.MaxConcurrent)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "Diogenes")
	v.SetDefault("version", "2.0.0")

	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8000)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("api.require_api_key", false)
	v.SetDefault("api.max_concurrent_research", 2)
	v.SetDefault("api.read_timeout", 30*time.Second)
	v.SetDefault("api.write_timeout", 10*time.Minute)
	v.SetDefault("api.graceful_timeout", 15*time.Second)

	v.SetDefault("search.base_url", "http://localhost:8080")
	v.SetDefault("search.timeout", 20*time.Second)
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.categories", []string{"general", "science", "it"})
	v.SetDefault("search.language", "en-US")
	v.SetDefault("search.verify_ssl", true)

	v.SetDefault("crawl.max_concurrent", 5)
	v.SetDefault("crawl.timeout", 30*time.Second)
	v.SetDefault("crawl.max_content_length", 500000)
	v.SetDefault("crawl.rate_limit_per_domain", time.Second)
	v.SetDefault("crawl.user_agent", "DiogenesResearchBot/2.0")
	v.SetDefault("crawl.max_urls_per_request", 50)
	v.SetDefault("crawl.use_browser", false)

	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("llm.models.planner", "qwen2.5:3b")
	v.SetDefault("llm.models.extractor", "qwen2.5:3b")
	v.SetDefault("llm.models.synthesizer", "llama3.1:8b")
	v.SetDefault("llm.models.reflector", "llama3.1:8b")

	v.SetDefault("processing.chunk_size", 512)
	v.SetDefault("processing.chunk_overlap", 64)
	v.SetDefault("processing.min_chunk_size", 100)
	v.SetDefault("processing.max_chunks_per_source", 20)
	v.SetDefault("processing.max_total_context", 32000)
	v.SetDefault("processing.workers", 0)

	v.SetDefault("agent.max_iterations", 3)
	v.SetDefault("agent.min_sources", 3)
	v.SetDefault("agent.max_sources", 8)
	v.SetDefault("agent.coverage_threshold", 0.7)
	v.SetDefault("agent.enable_memory_context", true)

	v.SetDefault("session.redis_addr", "localhost:6379")
	v.SetDefault("session.redis_db", 0)
	v.SetDefault("session.ttl", 24*time.Hour)

	v.SetDefault("memory.database", "data/memories.db")
	v.SetDefault("memory.max_context", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json_format", false)
}
