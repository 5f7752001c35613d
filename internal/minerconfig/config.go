// Package minerconfig builds the pipeline's Config once at program entry
// and passes it down explicitly to every component: env is consulted
// here, and only here, at startup, rather than read ad hoc from deep
// inside each package.
package minerconfig

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable the pipeline's stages need, each with a
// sensible default so the binary runs out of the box against a local
// Ollama instance.
type Config struct {
	OllamaBaseURL string `env:"OLLAMA_BASE_URL" envDefault:"http://127.0.0.1:11434"`
	ReasonerModel string `env:"REASONER_MODEL" envDefault:"llama3.1:8b"`
	EmbedModel    string `env:"EMBED_MODEL" envDefault:"nomic-embed-text"`

	// ChromemPath is the on-disk path for the embedded chromem-go vector
	// store (philippgille/chromem-go persists to a directory, not a server).
	ChromemPath string `env:"CHROMEM_PATH" envDefault:"./chromem-data"`

	ChunkCollection      string `env:"CHUNK_COLLECTION" envDefault:"trope-miner-v1-cos"`
	TropeCollection      string `env:"TROPE_COLLECTION" envDefault:"trope-defs-v1-cos"`
	PerWorkCollections   bool   `env:"PER_WORK_COLLECTIONS" envDefault:"false"`

	RerankTopK        int     `env:"RERANK_TOP_K" envDefault:"8"`
	RerankKeepM       int     `env:"RERANK_KEEP_M" envDefault:"3"`
	RerankDocCharMax  int     `env:"RERANK_DOC_CHAR_MAX" envDefault:"480"`
	DownweightNoMention float64 `env:"DOWNWEIGHT_NO_MENTION" envDefault:"0.55"`
	SemSimThreshold   float64 `env:"SEM_SIM_THRESHOLD" envDefault:"0.36"`

	SemTau         float64 `env:"SEM_TAU" envDefault:"0.70"`
	SemTopN        int     `env:"SEM_TOP_N" envDefault:"8"`
	SemPerSceneCap int     `env:"SEM_PER_SCENE_CAP" envDefault:"3"`

	AntiWindow int     `env:"ANTI_WINDOW" envDefault:"60"`
	Threshold  float64 `env:"THRESHOLD" envDefault:"0.25"`

	// Gazetteer tuning.
	GazetteerMinAliasLen int `env:"GAZETTEER_MIN_ALIAS_LEN" envDefault:"5"`
	GazetteerMaxPerTrope int `env:"GAZETTEER_MAX_PER_TROPE" envDefault:"500"`

	// Span verifier tuning.
	VerifyThreshold    float64 `env:"VERIFY_THRESHOLD" envDefault:"0.32"`
	VerifyAlpha        float64 `env:"VERIFY_ALPHA" envDefault:"0.7"`
	VerifyMinGain      float64 `env:"VERIFY_MIN_GAIN" envDefault:"0.05"`
	VerifyMaxSentences int     `env:"VERIFY_MAX_SENTENCES" envDefault:"2"`
	VerifyMaxChars     int     `env:"VERIFY_MAX_CHARS" envDefault:"280"`
	VerifyWindow       int     `env:"VERIFY_WINDOW" envDefault:"40"`
	NegDownweight      float64 `env:"NEG_DOWNWEIGHT" envDefault:"0.6"`
	MetaDownweight     float64 `env:"META_DOWNWEIGHT" envDefault:"0.75"`
	AntiAliasDownweight float64 `env:"ANTIALIAS_DOWNWEIGHT" envDefault:"0.5"`

	// Timeouts, in seconds.
	EmbedTimeoutSeconds    int `env:"EMBED_TIMEOUT_SECONDS" envDefault:"90"`
	ReasonerTimeoutSeconds int `env:"REASONER_TIMEOUT_SECONDS" envDefault:"180"`

	DBPath string `env:"TROPE_MINER_DB" envDefault:"tropes.db"`
}

// Load parses Config from the process environment. CLI flags layered via
// cobra/viper in internal/cli are applied to the returned struct before
// any component constructor sees it; nothing downstream reads the
// environment again.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}
	return cfg, nil
}
