// Package gazetteer seeds trope_candidate rows by matching trope names and
// aliases against chunk text with word-boundary regexes. The canonical
// trope name is always kept; non-canonical aliases pass through a
// stoplist and minimum-length filter, and matches are converted from
// chunk-local to work-absolute offsets.
//
// Anti-alias phrases suppress false positives in two tiers: a chunk-level
// hard block (any anti-alias phrase present anywhere in the chunk drops
// every match for that trope from it) and a near-window soft block around
// an individual match (an anti-alias phrase, an "anti-<alias>" pattern, or
// a bare "anti-" prefix within a configurable character radius).
package gazetteer

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/ljramones/trope-miner/internal/tropeschema"
)

// Stoplist holds overly-generic single words and short phrases that
// produced noisy non-canonical matches; it never suppresses a trope's
// canonical name.
var Stoplist = map[string]bool{
	"hero": true, "villain": true, "power": true, "fight": true, "battle": true,
	"magic": true, "love": true, "war": true, "secret": true, "plan": true,
	"agent": true, "mystery": true, "weapon": true, "girl": true, "boy": true,
	"night": true, "day": true, "city": true, "king": true, "queen": true,
	"man": true, "woman": true, "monster": true, "beast": true, "darkness": true,
	"light": true, "death": true, "life": true, "friend": true, "enemy": true,
	"revenge": true, "curse": true,
	"buddy": true, "backup": true, "job": true, "serious": true, "calm": true,
	"opposite": true, "haunted": true, "first glance": true,
}

var (
	wsRe     = regexp.MustCompile(`\s+`)
	trimCuts = ",.;:!?\"'()[]{}"
)

// NormAlias lowercases, collapses internal whitespace, and trims
// punctuation from both ends of alias.
func NormAlias(alias string) string {
	a := strings.ToLower(strings.TrimSpace(alias))
	a = wsRe.ReplaceAllString(a, " ")
	return strings.Trim(a, trimCuts)
}

// AliasOK reports whether a non-canonical alias should be seeded: long
// enough and not in the stoplist.
func AliasOK(alias string, minLen int) bool {
	if alias == "" || len(alias) < minLen {
		return false
	}
	return !Stoplist[alias]
}

const dashClass = `[-\x{2010}-\x{2015}]`

func escapeToken(token string) string {
	esc := regexp.QuoteMeta(token)
	esc = strings.ReplaceAll(esc, "-", dashClass)
	for _, dash := range []string{"–", "—"} {
		esc = strings.ReplaceAll(esc, dash, dashClass)
	}
	esc = strings.ReplaceAll(esc, "'", `['\x{2019}]`)
	esc = strings.ReplaceAll(esc, "’", `['\x{2019}]`)
	return esc
}

var simpleWordRe = regexp.MustCompile(`^[A-Za-z]+$`)

// BuildPattern compiles a case-insensitive, word-boundary-bounded regex
// for alias: internal whitespace becomes \s+, internal hyphens/dashes
// become dashClass, and a trailing optional plural is allowed on a
// single-word alias or on the final word of a multi-word alias.
func BuildPattern(alias string) (*regexp.Regexp, error) {
	parts := wsRe.Split(strings.TrimSpace(alias), -1)
	var esc []string
	for _, p := range parts {
		if p != "" {
			esc = append(esc, escapeToken(p))
		}
	}
	if len(esc) == 0 {
		return regexp.Compile(`[^\x00-\x{10FFFF}]`) // never matches
	}

	var core string
	if len(esc) == 1 && simpleWordRe.MatchString(parts[0]) {
		core = esc[0] + `(?:s|es)?`
	} else {
		joiner := `(?:` + dashClass + `+\s*|\s+)`
		last := parts[len(parts)-1]
		if simpleWordRe.MatchString(last) {
			tail := make([]string, len(esc))
			copy(tail, esc)
			tail[len(tail)-1] = `(?:` + esc[len(esc)-1] + `(?:s|es)?)`
			core = strings.Join(tail, joiner)
		} else {
			core = strings.Join(esc, joiner)
		}
	}
	// Go's RE2 engine has no lookaround, but \b (ASCII word boundary) gives
	// the same edge behavior as (?<!\w)...(?!\w) without consuming the
	// boundary character. It does treat a hyphen as a non-word character,
	// so "anti-whodunit" still exposes a word boundary before "whodunit" -
	// anti-alias suppression exists precisely to catch that case.
	return regexp.Compile(`(?i)\b(?:` + core + `)\b`)
}

// antiPrefixRe matches a bare "anti-" / "anti " prefix anywhere in text,
// the generic tier of near-window suppression.
var antiPrefixRe = regexp.MustCompile(`(?i)anti(?:` + dashClass + `\s*|\s+)`)

// antiAliasPattern compiles a regex matching "anti" immediately followed
// by alias (allowing a dash or whitespace joiner), used for the
// near-window "anti-<alias>" suppression tier.
func antiAliasPattern(alias string) (*regexp.Regexp, error) {
	parts := wsRe.Split(strings.TrimSpace(alias), -1)
	var esc []string
	for _, p := range parts {
		if p != "" {
			esc = append(esc, escapeToken(p))
		}
	}
	if len(esc) == 0 {
		return regexp.Compile(`[^\x00-\x{10FFFF}]`) // never matches
	}
	core := strings.Join(esc, `(?:`+dashClass+`+\s*|\s+)`)
	return regexp.Compile(`(?i)anti(?:` + dashClass + `\s*|\s+)(?:` + core + `)`)
}

// hasAnyPhrase reports whether any of phrases appears in text as a
// case-insensitive substring.
func hasAnyPhrase(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// suppressedNearMatch implements the near-window soft block: within
// ±window characters of [start,end) in text, suppress if any anti-alias
// phrase is present, if an "anti-<matchedAlias>" pattern matches, or if
// the generic "anti-" prefix appears.
func suppressedNearMatch(text string, start, end, window int, antiAliases []string, matchedAlias string) bool {
	if window <= 0 {
		window = 0
	}
	lo := start - window
	if lo < 0 {
		lo = 0
	}
	hi := end + window
	if hi > len(text) {
		hi = len(text)
	}
	win := text[lo:hi]

	if hasAnyPhrase(win, antiAliases) {
		return true
	}
	if pat, err := antiAliasPattern(matchedAlias); err == nil && pat.MatchString(win) {
		return true
	}
	return antiPrefixRe.MatchString(win)
}

// Match is one gazetteer hit, in chunk-local character offsets.
type Match struct {
	Alias string
	Start int
	End   int
}

// FindAliasMatches finds every occurrence of pattern in text, returning
// chunk-local offsets.
func FindAliasMatches(pattern *regexp.Regexp, alias, text string) []Match {
	locs := pattern.FindAllStringIndex(text, -1)
	out := make([]Match, 0, len(locs))
	for _, loc := range locs {
		out = append(out, Match{Alias: alias, Start: loc[0], End: loc[1]})
	}
	return out
}

// compiledAlias pairs an alias's display text with its compiled pattern.
type compiledAlias struct {
	alias   string
	pattern *regexp.Regexp
}

// aliasesFor returns the canonical-name-plus-filtered-aliases list for a
// trope, stably de-duplicated, canonical name always included regardless
// of the stoplist.
func aliasesFor(t tropeschema.Trope, minLen int) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(a string) {
		if a == "" || seen[a] {
			return
		}
		seen[a] = true
		out = append(out, a)
	}
	add(NormAlias(t.Name))
	for _, a := range t.Aliases {
		na := NormAlias(a)
		if AliasOK(na, minLen) {
			add(na)
		}
	}
	return out
}

// Seeder seeds gazetteer candidates for one work against the full trope
// catalog.
type Seeder struct {
	MinAliasLen int
	MaxPerTrope int
	AntiWindow  int
}

func NewSeeder(minAliasLen, maxPerTrope, antiWindow int) *Seeder {
	return &Seeder{MinAliasLen: minAliasLen, MaxPerTrope: maxPerTrope, AntiWindow: antiWindow}
}

// CandidateStore is the persistence surface the seeder needs; satisfied
// by *internal/store.Store.
type CandidateStore interface {
	InsertCandidate(ctx context.Context, c tropeschema.TropeCandidate) (bool, error)
}

// SeedWork scans every chunk of a work against every trope's alias set,
// inserting one trope_candidate row per distinct (trope, span), relying
// on the store's uq_candidate_span unique index for idempotence across
// reruns. A chunk carrying any of a trope's anti-alias phrases yields no
// candidates for that trope; an individual match still close to an
// anti-alias cue is suppressed on its own.
func (g *Seeder) SeedWork(ctx context.Context, st CandidateStore, workID string, tropes []tropeschema.Trope, chunks []tropeschema.Chunk) (int, error) {
	total := 0
	for _, t := range tropes {
		aliases := aliasesFor(t, g.MinAliasLen)
		if len(aliases) == 0 {
			continue
		}
		compiled := make([]compiledAlias, 0, len(aliases))
		for _, a := range aliases {
			pat, err := BuildPattern(a)
			if err != nil {
				continue
			}
			compiled = append(compiled, compiledAlias{alias: a, pattern: pat})
		}

		perTrope := 0
		seenSpans := make(map[[2]int]bool)

	chunkLoop:
		for _, c := range chunks {
			if c.Text == "" {
				continue
			}
			if len(t.AntiAliases) > 0 && hasAnyPhrase(c.Text, t.AntiAliases) {
				continue
			}
			for _, ca := range compiled {
				for _, m := range FindAliasMatches(ca.pattern, ca.alias, c.Text) {
					if len(t.AntiAliases) > 0 && suppressedNearMatch(c.Text, m.Start, m.End, g.AntiWindow, t.AntiAliases, ca.alias) {
						continue
					}

					start := c.CharStart + m.Start
					end := c.CharStart + m.End
					key := [2]int{start, end}
					if seenSpans[key] {
						continue
					}
					if start < c.CharStart || end > c.CharEnd {
						continue
					}

					cand := tropeschema.TropeCandidate{
						ID:      uuid.NewString(),
						WorkID:  workID,
						SceneID: c.SceneID,
						ChunkID: c.ID,
						TropeID: t.ID,
						Surface: c.Text[m.Start:m.End],
						Alias:   m.Alias,
						Start:   start,
						End:     end,
						Source:  tropeschema.SourceGazetteer,
						Score:   0.0,
					}
					inserted, err := st.InsertCandidate(ctx, cand)
					if err != nil {
						return total, err
					}
					if inserted {
						total++
						perTrope++
						seenSpans[key] = true
					}
					if perTrope >= g.MaxPerTrope {
						break chunkLoop
					}
				}
			}
		}
	}
	return total, nil
}
