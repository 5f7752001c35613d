// Package tropeschema defines the entities of the trope-mining data model.
// All character offsets are half-open [start, end) byte offsets into the
// UTF-8 encoding of the owning Work's NormText, stable for the lifetime of
// that Work. For non-ASCII text they are not code-point indices.
package tropeschema

import "time"

// Work is a single long-form text. Immutable once created; deleting one
// cascades to every Chapter, Scene, Chunk, Candidate, and Finding beneath it.
type Work struct {
	ID        string
	Title     string
	Author    string
	RawText   string
	NormText  string
	CharCount int
	CreatedAt time.Time
}

// Chapter is a contiguous partition of a Work.
type Chapter struct {
	ID        string
	WorkID    string
	Idx       int
	Title     string
	CharStart int
	CharEnd   int
}

// Scene is a contiguous partition of a Chapter (or, absent chapter
// detection, of the whole Work).
type Scene struct {
	ID        string
	WorkID    string
	ChapterID string // Ingest always sets it; a work without headings gets one whole-work chapter
	Idx       int
	CharStart int
	CharEnd   int
	Heading   string
}

// Chunk is an overlapping token window inside a Scene.
type Chunk struct {
	ID         string
	WorkID     string
	SceneID    string
	Idx        int
	CharStart  int
	CharEnd    int
	TokenStart int
	TokenEnd   int
	Text       string
	SHA256     string
}

// CandidateSource identifies how a TropeCandidate was discovered.
type CandidateSource string

const (
	SourceGazetteer CandidateSource = "gazetteer"
	SourceSemantic  CandidateSource = "semantic"
)

// Trope is a catalog entry: a named pattern with surface aliases and
// suppressing anti-aliases.
type Trope struct {
	ID           string
	Name         string
	Summary      string
	Aliases      []string
	AntiAliases  []string
}

// QueryText returns the text embedded to represent this trope in the
// vector index: "name. summary", falling back to the first few aliases
// when no summary is recorded.
func (t Trope) QueryText() string {
	name := t.Name
	if t.Summary != "" {
		return name + ". " + t.Summary
	}
	if len(t.Aliases) > 0 {
		n := len(t.Aliases)
		if n > 3 {
			n = 3
		}
		joined := t.Aliases[0]
		for _, a := range t.Aliases[1:n] {
			joined += "; " + a
		}
		return name + ". " + joined
	}
	return name
}

// EmbeddingRef back-references a Chunk's vector-index entry. PK (ChunkID, Collection).
type EmbeddingRef struct {
	ChunkID    string
	Collection string
	Model      string
	Dim        int
	VectorID   string
}

// TropeCandidate is a pre-finding signal that a trope may be present.
// Unique on (WorkID, TropeID, Start, End).
type TropeCandidate struct {
	ID      string
	WorkID  string
	SceneID string
	ChunkID string
	TropeID string
	Surface string
	Alias   string
	Start   int
	End     int
	Source  CandidateSource
	Score   float64
}

// SceneSupport summarizes the support chunks chosen for a scene.
type SceneSupport struct {
	SceneID   string
	SupportIDs []string
	Notes     string
	Model     string
	K         int
	M         int
	CreatedAt time.Time
}

// SupportSelection records the rank and stage scores of one chosen chunk
// for one scene. PK (SceneID, ChunkID).
type SupportSelection struct {
	SceneID      string
	ChunkID      string
	Rank         int
	Stage1Score  float64
	Stage2Score  float64
	Picked       bool
	CreatedAt    time.Time
}

// TropeSanity holds the lexical/semantic prior for one (scene, trope) pair.
// PK (SceneID, TropeID).
type TropeSanity struct {
	SceneID   string
	TropeID   string
	LexOK     bool
	SemSim    float64
	Weight    float64
	CreatedAt time.Time
}

// FindingLevel is an optional enumeration some stores carry and others
// omit; when present it is preserved as-is, never invented.
type FindingLevel string

const (
	LevelScene FindingLevel = "scene"
	LevelSpan  FindingLevel = "span"
)

// TropeFinding is a scored trope attribution anchored to a character span.
// Unique on (WorkID, TropeID, EvidenceStart, EvidenceEnd).
type TropeFinding struct {
	ID             string
	WorkID         string
	SceneID        string
	TropeID        string
	Level          FindingLevel // "" when the store has no level column
	Confidence     float64
	EvidenceStart  int
	EvidenceEnd    int
	Rationale      string
	Model          string
	VerifierScore  *float64
	VerifierFlag   string
	CreatedAt      time.Time
}

// HumanDecision is the consumed-only human-review contract: produced by
// an external reviewer tool, never written by this pipeline.
type HumanDecision struct {
	ID               string
	FindingID        string
	Decision         string // accept | reject | edit
	CorrectedStart   *int
	CorrectedEnd     *int
	CorrectedTropeID string
	Note             string
	Reviewer         string
	CreatedAt        time.Time
}
