package chronograph

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the pipeline. It is constructed once
// at process entry and passed into the pipeline and stage constructors;
// no stage reads ambient environment state.
type Config struct {
	// Graph store connection.
	Neo4j Neo4jConfig `json:"neo4j" yaml:"neo4j"`

	// Agent is the completion backend used for entity/relation extraction.
	Agent LLMConfig `json:"agent" yaml:"agent"`

	// AdvancedAgent optionally backs the "advanced" extraction strategy.
	// When UseAdvancedAgent is set and AdvancedAgent is configured, graph
	// construction uses it instead of Agent. The contract and output shape
	// are identical either way.
	AdvancedAgent    LLMConfig `json:"advanced_agent" yaml:"advanced_agent"`
	UseAdvancedAgent bool      `json:"use_advanced_agent" yaml:"use_advanced_agent"`

	// Verifier is the completion backend used for hypothesis verification.
	Verifier LLMConfig `json:"verifier" yaml:"verifier"`

	// OCR configures the external OCR collaborator for image documents.
	OCR OCRConfig `json:"ocr" yaml:"ocr"`

	// Extraction defaults (overridable per run).
	UsePreprocessing   bool   `json:"use_preprocessing" yaml:"use_preprocessing"`
	EnhancementLevel   string `json:"enhancement_level" yaml:"enhancement_level"` // "light" or "aggressive"
	DomainHint         string `json:"domain_hint" yaml:"domain_hint"`
	SaveDebugArtifacts bool   `json:"save_debug_artifacts" yaml:"save_debug_artifacts"`

	// MaxElementChars bounds the size of a single extracted Element.
	MaxElementChars int `json:"max_element_chars" yaml:"max_element_chars"`

	// Graph construction chunking.
	EnableChunking bool `json:"enable_chunking" yaml:"enable_chunking"`
	ChunkSize      int  `json:"chunk_size" yaml:"chunk_size"`

	// AgentConcurrency bounds parallel agent calls during graph construction.
	AgentConcurrency int `json:"agent_concurrency" yaml:"agent_concurrency"`

	// Pattern discovery.
	MaxPatternLength     int `json:"max_pattern_length" yaml:"max_pattern_length"`
	MaxPatternsPerLength int `json:"max_patterns_per_length" yaml:"max_patterns_per_length"`

	// Verification.
	VerifyConcurrency int `json:"verify_concurrency" yaml:"verify_concurrency"`

	// Per-collaborator timeouts, in seconds. A timeout is treated as the
	// corresponding stage's ordinary failure.
	OCRTimeoutSeconds    int `json:"ocr_timeout_seconds" yaml:"ocr_timeout_seconds"`
	AgentTimeoutSeconds  int `json:"agent_timeout_seconds" yaml:"agent_timeout_seconds"`
	StoreTimeoutSeconds  int `json:"store_timeout_seconds" yaml:"store_timeout_seconds"`
	VerifyTimeoutSeconds int `json:"verify_timeout_seconds" yaml:"verify_timeout_seconds"`

	// Output locations.
	DebugDir  string `json:"debug_dir" yaml:"debug_dir"`   // extraction debug artifacts
	OutputDir string `json:"output_dir" yaml:"output_dir"` // verification result artifacts

	// AuditDBPath is the SQLite file for the run audit log.
	// Empty disables auditing.
	AuditDBPath string `json:"audit_db_path" yaml:"audit_db_path"`
}

// Neo4jConfig holds graph store connection parameters.
type Neo4jConfig struct {
	URI      string `json:"uri" yaml:"uri"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`
}

// LLMConfig configures a single completion backend.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // openai, groq, ollama, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// OCRConfig configures the external OCR collaborator.
type OCRConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	APIKey  string `json:"api_key" yaml:"api_key"`
}

// DefaultConfig returns a Config with working defaults so the pipeline is
// callable with only a document path.
func DefaultConfig() Config {
	return Config{
		Neo4j: Neo4jConfig{
			URI:      "neo4j://127.0.0.1:7687",
			Username: "neo4j",
			Database: "neo4j",
		},
		Agent: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Verifier: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		EnhancementLevel:     "light",
		MaxElementChars:      24000,
		EnableChunking:       true,
		ChunkSize:            10000,
		AgentConcurrency:     4,
		MaxPatternLength:     3,
		MaxPatternsPerLength: 5,
		VerifyConcurrency:    4,
		OCRTimeoutSeconds:    120,
		AgentTimeoutSeconds:  90,
		StoreTimeoutSeconds:  30,
		VerifyTimeoutSeconds: 120,
		DebugDir:             "chronograph_output",
		OutputDir:            "hypothesis_results",
	}
}

// LoadConfig reads a YAML config file and overlays it on DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.EnhancementLevel {
	case "", "light", "aggressive":
	default:
		return fmt.Errorf("%w: enhancement_level %q (want light or aggressive)", ErrInvalidConfig, c.EnhancementLevel)
	}
	if c.MaxPatternLength < 1 {
		return fmt.Errorf("%w: max_pattern_length must be >= 1", ErrInvalidConfig)
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("%w: chunk_size must be >= 0", ErrInvalidConfig)
	}
	return nil
}
