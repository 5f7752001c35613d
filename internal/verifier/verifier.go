// Package verifier tightens a finding's evidence span to the
// best-scoring nearby sentence window and flags low-confidence or
// suspect findings: low similarity, a negation cue, an anti-alias cue,
// meta-commentary, or negation paired with an anti-alias. A flagged
// finding can then be left alone, downweighted, or deleted, depending on
// policy.
package verifier

import (
	"context"
	"math"
	"regexp"
	"strings"
)

// Embedder is the subset of embedclient.Embedder the verifier needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Params controls the span-tightening thresholds and the per-flag
// downweight factors.
type Params struct {
	Threshold         float64
	Alpha             float64
	MinGain           float64
	MaxSentences      int
	MaxChars          int
	AntiAliasWindow   int
	NegDownweight     float64
	MetaDownweight    float64
	AntiAliasDownweight float64
}

func DefaultParams() Params {
	return Params{
		Threshold: 0.32, Alpha: 0.7, MinGain: 0.05, MaxSentences: 2, MaxChars: 280,
		AntiAliasWindow: 60, NegDownweight: 0.6, MetaDownweight: 0.75, AntiAliasDownweight: 0.5,
	}
}

// Flag is the verifier's verdict for one finding.
type Flag string

const (
	FlagOK            Flag = "ok"
	FlagLowSim        Flag = "low_sim"
	FlagNegationCue   Flag = "negation_cue"
	FlagAntiAlias     Flag = "anti_alias"
	FlagMetaCue       Flag = "meta_cue"
	FlagNegationAnti  Flag = "negation_anti"
)

// Policy selects how a flagged finding is handled.
type Policy string

const (
	PolicyFlagOnly  Policy = "flag-only"
	PolicyDownweight Policy = "downweight"
	PolicyDelete    Policy = "delete"
)

// Outcome describes what to do with one finding after verification.
type Outcome struct {
	EvidenceStart int
	EvidenceEnd   int
	Score         float64
	Flag          Flag
	// Confidence and Delete are left unset by VerifySpan; Apply returns
	// the policy's new confidence and delete decision instead.
	Confidence *float64
	Delete     bool
}

// sentEndRe matches sentence-terminal punctuation (with trailing
// whitespace) or a blank-line run. A regex splitter is adequate here
// since the verifier only ever operates on already-short scene text,
// avoiding a second tokenizer dependency for a one-off use.
var sentEndRe = regexp.MustCompile(`[.!?]+(?:\s+|$)|\n{2,}`)

type span struct{ start, end int }

// sentSpans splits text into trimmed (start,end) sentence spans with
// absolute offsets into text.
func sentSpans(text string) []span {
	var spans []span
	start := 0
	for _, loc := range sentEndRe.FindAllStringIndex(text, -1) {
		end := loc[1]
		seg := text[start:end]
		ls := len(seg) - len(strings.TrimLeft(seg, " \t\n\r"))
		rs := len(strings.TrimRight(seg, " \t\n\r"))
		if rs > ls {
			spans = append(spans, span{start: start + ls, end: start + rs})
		}
		start = end
	}
	if start < len(text) {
		tail := text[start:]
		ls := len(tail) - len(strings.TrimLeft(tail, " \t\n\r"))
		rs := len(strings.TrimRight(tail, " \t\n\r"))
		if rs > ls {
			spans = append(spans, span{start: start + ls, end: start + rs})
		}
	}
	if len(spans) == 0 {
		spans = []span{{0, len(text)}}
	}
	return spans
}

func clip(a, b, n int) (int, int) {
	return clampInt(a, 0, n), clampInt(b, 0, n)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// --- flag detection ---

const dashClass = `[-\x{2010}-\x{2015}]`

var (
	negStrongRe = regexp.MustCompile(`(?i)\b(?:no|never|without|lack(?:ing)?(?:\s+of)?|absence(?:\s+of)?|free\s+of)\b`)
	notRe       = regexp.MustCompile(`(?i)\bnot\b`)
	metaRe      = regexp.MustCompile(`(?i)\b(?:parody|satire|meta|lampshade(?:d|s|ing)?|deconstruct(?:ion|ing)?|clich[ée]s?)\b`)
)

func hasMeta(text string) bool {
	return metaRe.MatchString(text)
}

func hasNegation(text string, aliasMatchIdx int) bool {
	if negStrongRe.MatchString(text) {
		return true
	}
	if aliasMatchIdx < 0 {
		return false
	}
	loc := notRe.FindStringIndex(text)
	if loc == nil {
		return false
	}
	return abs(loc[0]-aliasMatchIdx) <= 16
}

func hasAntiAlias(text string, aliasPattern *regexp.Regexp, window int) bool {
	if !strings.Contains(strings.ToLower(text), "anti") {
		return false
	}
	antiRe := regexp.MustCompile(`(?i)\banti(?:` + dashClass + `\s*|\s+)`)
	loc := aliasPattern.FindStringIndex(text)
	if loc == nil {
		return false
	}
	leftStart := loc[0] - window
	if leftStart < 0 {
		leftStart = 0
	}
	return antiRe.MatchString(text[leftStart:loc[0]])
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// Verifier scores and flags one finding's evidence span.
type Verifier struct {
	embedder Embedder
	params   Params
}

func New(embedder Embedder, params Params) *Verifier {
	return &Verifier{embedder: embedder, params: params}
}

// Input is everything VerifySpan needs for one finding.
type Input struct {
	WorkText      string // full work.norm_text
	SceneStart    int
	SceneEnd      int
	EvidenceStart int
	EvidenceEnd   int
	TropeName     string
	TropeSummary  string
	AliasPattern  *regexp.Regexp // nil disables anti-alias/negation-near-alias checks
}

// VerifySpan snaps the finding's span to the best-scoring nearby sentence
// window, scores it against the trope definition and the scene, and
// assigns a flag. It does not apply policy (downweight/delete) — call
// Apply for that.
func (v *Verifier) VerifySpan(ctx context.Context, in Input) (Outcome, error) {
	sceneText := ""
	if in.SceneEnd <= len(in.WorkText) && in.SceneStart < in.SceneEnd {
		sceneText = in.WorkText[in.SceneStart:in.SceneEnd]
	}
	if sceneText == "" {
		return Outcome{EvidenceStart: in.EvidenceStart, EvidenceEnd: in.EvidenceEnd, Flag: FlagLowSim}, nil
	}

	e0, e1 := clip(in.EvidenceStart, in.EvidenceEnd, len(in.WorkText))
	e0s, e1s := clampInt(e0-in.SceneStart, 0, len(sceneText)), clampInt(e1-in.SceneStart, 0, len(sceneText))
	if e1s <= e0s {
		e0s, e1s = 0, minInt(len(sceneText), v.params.MaxChars)
	}

	spans := sentSpans(sceneText)
	idx := 0
	for i, sp := range spans {
		if !(e1s <= sp.start || e0s >= sp.end) {
			idx = i
			break
		}
	}

	lo := idx - v.params.MaxSentences
	if lo < 0 {
		lo = 0
	}
	hi := idx + v.params.MaxSentences
	if hi > len(spans)-1 {
		hi = len(spans) - 1
	}
	candSpans := []span{{e0s, e1s}, {spans[lo].start, spans[hi].end}}

	mid := (e0s + e1s) / 2
	capped := make([]span, 0, len(candSpans))
	for _, sp := range candSpans {
		a, b := sp.start, sp.end
		if b-a > v.params.MaxChars {
			half := v.params.MaxChars / 2
			na := clampInt(mid-half, 0, maxInt(0, len(sceneText)-v.params.MaxChars))
			a, b = na, na+v.params.MaxChars
		}
		a, b = clip(a, b, len(sceneText))
		capped = append(capped, span{a, b})
	}
	candSpans = dedupSpans(capped)

	tropeText := strings.TrimSpace(in.TropeName + ". " + in.TropeSummary)
	tropeEmb, err := v.embedder.Embed(ctx, truncate(tropeText, 1024))
	if err != nil {
		return Outcome{}, err
	}
	sceneEmb, err := v.embedder.Embed(ctx, truncate(sceneText, 4096))
	if err != nil {
		return Outcome{}, err
	}

	score := func(text string) (float64, error) {
		emb, err := v.embedder.Embed(ctx, text)
		if err != nil {
			return 0, err
		}
		sTD := cosine(emb, tropeEmb)
		sSC := cosine(emb, sceneEmb)
		return v.params.Alpha*sTD + (1-v.params.Alpha)*sSC, nil
	}

	origText := truncate(sceneText[e0s:e1s], v.params.MaxChars)
	origScore, err := score(origText)
	if err != nil {
		return Outcome{}, err
	}

	bestSpan := span{e0s, e1s}
	bestScore := origScore
	bestText := origText
	for _, sp := range candSpans {
		if sp == (span{e0s, e1s}) {
			continue
		}
		text := truncate(sceneText[sp.start:sp.end], v.params.MaxChars)
		if text == "" {
			continue
		}
		sc, err := score(text)
		if err != nil {
			continue
		}
		if sc > bestScore {
			bestScore, bestSpan, bestText = sc, sp, text
		}
	}

	flag := v.classify(bestText, bestScore, in.AliasPattern)

	adopt := bestSpan != span{e0s, e1s} && (bestScore >= origScore+v.params.MinGain ||
		(origScore < v.params.Threshold && v.params.Threshold <= bestScore))

	newS, newE := e0, e1
	if adopt {
		newS, newE = in.SceneStart+bestSpan.start, in.SceneStart+bestSpan.end
	}

	return Outcome{EvidenceStart: newS, EvidenceEnd: newE, Score: bestScore, Flag: flag}, nil
}

// classify assigns a flag: low similarity first, then negation together
// with an anti-alias (negation_anti), then negation, anti_alias and
// meta_cue alone, in that order.
func (v *Verifier) classify(text string, score float64, aliasPattern *regexp.Regexp) Flag {
	if score < v.params.Threshold {
		return FlagLowSim
	}

	aliasIdx := -1
	if aliasPattern != nil {
		if loc := aliasPattern.FindStringIndex(text); loc != nil {
			aliasIdx = loc[0]
		}
	}
	neg := hasNegation(text, aliasIdx)
	anti := aliasPattern != nil && hasAntiAlias(text, aliasPattern, v.params.AntiAliasWindow)
	meta := hasMeta(text)

	switch {
	case neg && anti:
		return FlagNegationAnti
	case neg:
		return FlagNegationCue
	case anti:
		return FlagAntiAlias
	case meta:
		return FlagMetaCue
	default:
		return FlagOK
	}
}

// Apply turns a flagged Outcome plus a policy into the final disposition:
// flag-only leaves confidence untouched, downweight multiplies confidence
// by the flag's factor (clamped to [0,1]), delete marks the finding for
// removal.
func (v *Verifier) Apply(policy Policy, flag Flag, confidence float64) (newConfidence float64, delete bool) {
	if flag == FlagOK {
		return confidence, false
	}
	switch policy {
	case PolicyDelete:
		return confidence, true
	case PolicyDownweight:
		factor := 1.0
		switch flag {
		case FlagNegationCue, FlagNegationAnti:
			factor = v.params.NegDownweight
		case FlagMetaCue:
			factor = v.params.MetaDownweight
		case FlagAntiAlias:
			factor = v.params.AntiAliasDownweight
		case FlagLowSim:
			factor = 1.0
		}
		if flag == FlagNegationAnti {
			factor = math.Min(v.params.NegDownweight, v.params.AntiAliasDownweight)
		}
		return clampFloat(confidence*factor, 0, 1), false
	default: // flag-only
		return confidence, false
	}
}

func dedupSpans(spans []span) []span {
	seen := make(map[span]bool)
	var out []span
	for _, s := range spans {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampFloat(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}
