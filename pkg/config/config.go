// Package config loads service configuration with koanf: built-in defaults,
// then an optional YAML file, then environment variables.
//
// Environment variables use the ROUTEWISE_ prefix and split section from
// field on the first underscore:
//
//	ROUTEWISE_LLM_GROQ_API_KEY -> llm.groq_api_key
//	ROUTEWISE_SERVER_PORT      -> server.port
//
// A handful of unprefixed names used by existing deployments (GROQ_API_KEY,
// OPENWEATHER_API_KEY, ...) are honoured as aliases; prefixed variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "ROUTEWISE_"

// FileEnv names the variable holding the optional YAML config path.
const FileEnv = "ROUTEWISE_CONFIG"

const maxFileSize = 1 << 20

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full service configuration.
type Config struct {
	Server    Server    `koanf:"server"`
	Embedding Embedding `koanf:"embedding"`
	Retrieval Retrieval `koanf:"retrieval"`
	LLM       LLM       `koanf:"llm"`
	Tools     Tools     `koanf:"tools"`
	Ingest    Ingest    `koanf:"ingest"`
	Neo4j     Neo4j     `koanf:"neo4j"`
	Qdrant    Qdrant    `koanf:"qdrant"`
	NATS      NATS      `koanf:"nats"`
	Redis     Redis     `koanf:"redis"`
	Catalog   Catalog   `koanf:"catalog"`
}

type Server struct {
	Port            string        `koanf:"port"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       float64       `koanf:"rate_limit"`
	RateBurst       int           `koanf:"rate_burst"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Embedding selects and configures the embedding strategy.
type Embedding struct {
	// Strategy is one of hash, ollama or openai.
	Strategy  string `koanf:"strategy"`
	Dimension int    `koanf:"dimension"`
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	APIKey    string `koanf:"api_key"`
}

type Retrieval struct {
	TopK int `koanf:"top_k"`
}

// LLM configures the completion provider. Provider "auto" picks the first
// provider with credentials in the order gemini, groq, openai, ollama.
type LLM struct {
	Provider     string        `koanf:"provider"`
	Model        string        `koanf:"model"`
	BaseURL      string        `koanf:"base_url"`
	GeminiAPIKey string        `koanf:"gemini_api_key"`
	GroqAPIKey   string        `koanf:"groq_api_key"`
	OpenAIAPIKey string        `koanf:"openai_api_key"`
	OllamaURL    string        `koanf:"ollama_url"`
	Temperature  float64       `koanf:"temperature"`
	MaxTokens    int           `koanf:"max_tokens"`
	Timeout      time.Duration `koanf:"timeout"`
}

type Tools struct {
	Timeout           time.Duration `koanf:"timeout"`
	OpenWeatherAPIKey string        `koanf:"openweather_api_key"`
	// SearchProvider is empty (disabled), brave or wikipedia.
	SearchProvider string        `koanf:"search_provider"`
	BraveAPIKey    string        `koanf:"brave_api_key"`
	CacheTTL       time.Duration `koanf:"cache_ttl"`
	OutboundRPS    float64       `koanf:"outbound_rps"`
}

// Ingest configures document chunking and the watched source directory.
type Ingest struct {
	Dir       string `koanf:"dir"`
	ChunkSize int    `koanf:"chunk_size"`
	Overlap   int    `koanf:"overlap"`
}

// Neo4j configures run history and chunk persistence. An empty URL keeps
// both in memory.
type Neo4j struct {
	URL      string `koanf:"url"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`
}

type Qdrant struct {
	Addr       string `koanf:"addr"`
	Collection string `koanf:"collection"`
}

type NATS struct {
	URL string `koanf:"url"`
}

type Redis struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// Catalog points at an optional YAML file replacing the built-in catalog.
type Catalog struct {
	File string `koanf:"file"`
}

const defaults = `
server:
  port: "8080"
  cors_origins: ["*"]
  rate_limit: 5
  rate_burst: 20
  shutdown_timeout: 10s
embedding:
  strategy: hash
  dimension: 256
  model: nomic-embed-text
retrieval:
  top_k: 3
llm:
  provider: auto
  temperature: 0.3
  max_tokens: 1024
  timeout: 30s
tools:
  timeout: 5s
  cache_ttl: 10m
  outbound_rps: 5
ingest:
  dir: data
  chunk_size: 500
  overlap: 50
qdrant:
  collection: routewise_chunks
neo4j:
  user: neo4j
`

var aliases = map[string]string{
	"PORT":                "server.port",
	"GEMINI_API_KEY":      "llm.gemini_api_key",
	"GROQ_API_KEY":        "llm.groq_api_key",
	"OPENAI_API_KEY":      "llm.openai_api_key",
	"OLLAMA_URL":          "llm.ollama_url",
	"OPENWEATHER_API_KEY": "tools.openweather_api_key",
	"BRAVE_API_KEY":       "tools.brave_api_key",
	"NEO4J_URL":           "neo4j.url",
	"NEO4J_USER":          "neo4j.user",
	"NEO4J_PASS":          "neo4j.password",
	"QDRANT_URL":          "qdrant.addr",
	"NATS_URL":            "nats.url",
	"REDIS_ADDR":          "redis.addr",
}

// Load builds the configuration. path overrides FileEnv; both empty skips
// the file layer.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider([]byte(defaults)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		data, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return aliases[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("config: env aliases: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf(&cfg)); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// unmarshalConf extends koanf's default decoding so comma-separated
// environment values fill slice fields such as server.cors_origins.
func unmarshalConf(out *Config) koanf.UnmarshalConf {
	return koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Result:           out,
			WeaklyTypedInput: true,
		},
	}
}

// envKey maps ROUTEWISE_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	if s == "CONFIG" {
		return ""
	}
	parts := strings.SplitN(strings.ToLower(s), "_", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[0] + "." + parts[1]
}

func readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config: %s is larger than %d bytes", path, maxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return data, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Embedding.Strategy {
	case "hash", "ollama", "openai":
	default:
		return fmt.Errorf("%w: embedding.strategy %q", ErrInvalid, c.Embedding.Strategy)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("%w: embedding.dimension must be positive", ErrInvalid)
	}
	if c.Embedding.Strategy == "openai" && c.Embedding.BaseURL == "" {
		return fmt.Errorf("%w: embedding.base_url is required for openai", ErrInvalid)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: retrieval.top_k must be positive", ErrInvalid)
	}
	switch c.LLM.Provider {
	case "auto", "none", "gemini", "groq", "openai", "ollama":
	default:
		return fmt.Errorf("%w: llm.provider %q", ErrInvalid, c.LLM.Provider)
	}
	switch c.Tools.SearchProvider {
	case "", "brave", "wikipedia":
	default:
		return fmt.Errorf("%w: tools.search_provider %q", ErrInvalid, c.Tools.SearchProvider)
	}
	if c.Tools.SearchProvider == "brave" && c.Tools.BraveAPIKey == "" {
		return fmt.Errorf("%w: tools.brave_api_key is required for brave search", ErrInvalid)
	}
	if c.Tools.Timeout <= 0 {
		return fmt.Errorf("%w: tools.timeout must be positive", ErrInvalid)
	}
	if c.Ingest.ChunkSize <= 0 || c.Ingest.Overlap < 0 || c.Ingest.Overlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("%w: ingest.overlap must be below a positive ingest.chunk_size", ErrInvalid)
	}
	return nil
}
