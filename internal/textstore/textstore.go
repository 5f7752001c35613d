// Package textstore turns a raw manuscript into normalized text, chapter
// and scene spans, and overlapping token-window chunks. Chunking merges
// windows with overlap, tracking exact character offsets alongside token
// offsets and extending each chunk boundary to the nearest sentence
// terminal.
package textstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"

	"github.com/ljramones/trope-miner/internal/minererrors"
)

// Decode extracts plain text from raw bytes. filename's extension selects
// the codec: ".pdf" runs the ledongthuc/pdf extractor, everything else is
// treated as UTF-8 plain text.
func Decode(raw []byte, filename string) (string, error) {
	if strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return decodePDF(raw)
	}
	if !utf8.Valid(raw) {
		return "", minererrors.NewConfigError("codec", "input is not valid UTF-8 text", nil)
	}
	return string(raw), nil
}

func decodePDF(raw []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", minererrors.NewConfigError("codec", "failed to open PDF", err)
	}
	var buf bytes.Buffer
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n\n")
	}
	return buf.String(), nil
}

var (
	crlfRe       = regexp.MustCompile(`\r\n?`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
	trailingWSRe = regexp.MustCompile(`[ \t]+\n`)
)

// Normalize unifies line endings, collapses runs of blank lines to a
// single paragraph break, and strips trailing whitespace per line.
func Normalize(raw string) string {
	s := crlfRe.ReplaceAllString(raw, "\n")
	s = trailingWSRe.ReplaceAllString(s, "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// ChapterSpan is a detected chapter boundary, in character offsets into
// the normalized text.
type ChapterSpan struct {
	Idx       int
	Title     string
	CharStart int
	CharEnd   int
}

var chapterHeadingRe = regexp.MustCompile(`(?m)^\s*(chapter|part|book)\s+([0-9]+|[ivxlcdm]+)\b[^\n]*$`)

// DetectChapters finds chapter headings like "Chapter 12" or "Part III" at
// the start of a line. A work with no recognizable headings yields a
// single chapter spanning the whole text.
func DetectChapters(text string) []ChapterSpan {
	locs := chapterHeadingRe.FindAllStringIndex(strings.ToLower(text), -1)
	if len(locs) == 0 {
		return []ChapterSpan{{Idx: 0, Title: "", CharStart: 0, CharEnd: len(text)}}
	}
	out := make([]ChapterSpan, 0, len(locs))
	for i, loc := range locs {
		start := loc[0]
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		title := strings.TrimSpace(firstLine(text[start:end]))
		out = append(out, ChapterSpan{Idx: i, Title: title, CharStart: start, CharEnd: end})
	}
	return out
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// SceneSpan is a detected scene boundary within a chapter, in character
// offsets into the normalized text.
type SceneSpan struct {
	Idx       int
	CharStart int
	CharEnd   int
	Heading   string
}

var sceneBreakRe = regexp.MustCompile(`\n\s*(\*\s*\*\s*\*|#+|---+)\s*\n`)

// DetectScenes splits a chapter's text on conventional scene-break
// markers (asterisms, rules). Absent any markers, the chapter is a single
// scene.
func DetectScenes(chapterText string, chapterStart int) []SceneSpan {
	locs := sceneBreakRe.FindAllStringIndex(chapterText, -1)
	if len(locs) == 0 {
		return []SceneSpan{{Idx: 0, CharStart: chapterStart, CharEnd: chapterStart + len(chapterText)}}
	}
	out := make([]SceneSpan, 0, len(locs)+1)
	prev := 0
	idx := 0
	for _, loc := range locs {
		seg := chapterText[prev:loc[0]]
		if strings.TrimSpace(seg) != "" {
			out = append(out, SceneSpan{Idx: idx, CharStart: chapterStart + prev, CharEnd: chapterStart + loc[0]})
			idx++
		}
		prev = loc[1]
	}
	if rest := chapterText[prev:]; strings.TrimSpace(rest) != "" {
		out = append(out, SceneSpan{Idx: idx, CharStart: chapterStart + prev, CharEnd: chapterStart + len(chapterText)})
	}
	if len(out) == 0 {
		out = append(out, SceneSpan{Idx: 0, CharStart: chapterStart, CharEnd: chapterStart + len(chapterText)})
	}
	return out
}

// Token is a single token's text and its half-open character offset into
// the source text.
type Token struct {
	Text  string
	Start int
	End   int
}

var tokenRe = regexp.MustCompile(`\w+|[^\w\s]`)

// Tokenize splits text into word and punctuation tokens with exact
// character offsets, the offset-tracking tokenizer the chunker needs and
// tiktoken-go's Encode (used only for budget estimates, see TokenCount)
// does not provide.
func Tokenize(text string) []Token {
	idxs := tokenRe.FindAllStringIndex(text, -1)
	out := make([]Token, len(idxs))
	for i, loc := range idxs {
		out[i] = Token{Text: text[loc[0]:loc[1]], Start: loc[0], End: loc[1]}
	}
	return out
}

// sentenceTokenizer is shared across calls; english.NewSentenceTokenizer
// loads a small fixed training model, safe to reuse.
var sentenceTokenizer = mustSentenceTokenizer()

func mustSentenceTokenizer() *sentences.DefaultSentenceTokenizer {
	t, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		panic(err)
	}
	return t
}

// SentenceEnds returns the character offsets (into text) immediately
// after each sentence-terminal punctuation mark.
func SentenceEnds(text string) []int {
	sents := sentenceTokenizer.Tokenize(text)
	ends := make([]int, 0, len(sents))
	for _, sent := range sents {
		ends = append(ends, sent.End)
	}
	return ends
}

// ChunkParams controls window size, in tokens, and sentence-terminal
// extension. Defaults target 450 tokens, bounded to [300, 600], with
// 80-token overlap and extension up to 30 tokens to the next sentence end.
type ChunkParams struct {
	TargetTokens    int
	MinTokens       int
	MaxTokens       int
	OverlapTokens   int
	MaxExtendTokens int
}

func DefaultChunkParams() ChunkParams {
	return ChunkParams{TargetTokens: 450, MinTokens: 300, MaxTokens: 600, OverlapTokens: 80, MaxExtendTokens: 30}
}

// ChunkSpan is one chunk's position, in both token and character offsets,
// before the caller assigns it an ID and scene.
type ChunkSpan struct {
	Idx        int
	TokenStart int
	TokenEnd   int
	CharStart  int
	CharEnd    int
	Text       string
}

// ChunkScene splits one scene's text into overlapping token windows. Each
// window boundary is extended forward to the nearest sentence terminal
// (up to MaxExtendTokens further tokens) so chunks rarely end mid-sentence.
func ChunkScene(sceneText string, sceneCharStart int, params ChunkParams) []ChunkSpan {
	toks := Tokenize(sceneText)
	if len(toks) == 0 {
		return nil
	}
	sentEnds := SentenceEnds(sceneText)

	var out []ChunkSpan
	idx := 0
	start := 0
	for start < len(toks) {
		end := start + params.TargetTokens
		if end > len(toks) {
			end = len(toks)
		}
		end = extendToSentence(toks, start, end, sentEnds, params.MaxExtendTokens, params.MaxTokens)

		charStart := toks[start].Start
		charEnd := toks[end-1].End

		out = append(out, ChunkSpan{
			Idx:        idx,
			TokenStart: start,
			TokenEnd:   end,
			CharStart:  sceneCharStart + charStart,
			CharEnd:    sceneCharStart + charEnd,
			Text:       sceneText[charStart:charEnd],
		})
		idx++

		if end >= len(toks) {
			break
		}
		next := end - params.OverlapTokens
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out
}

// extendToSentence pushes end forward, token by token, up to maxExtend
// additional tokens (and never past maxTokens total chunk length), as
// long as doing so lands on a recorded sentence boundary.
func extendToSentence(toks []Token, start, end int, sentEnds []int, maxExtend, maxTokens int) int {
	if end >= len(toks) {
		return len(toks)
	}
	limit := end + maxExtend
	if limit > start+maxTokens {
		limit = start + maxTokens
	}
	if limit > len(toks) {
		limit = len(toks)
	}
	for i := end; i < limit; i++ {
		if isSentenceEnd(toks[i].End, sentEnds) {
			return i + 1
		}
	}
	return end
}

func isSentenceEnd(charOffset int, sentEnds []int) bool {
	for _, e := range sentEnds {
		if e == charOffset {
			return true
		}
		if e > charOffset {
			break
		}
	}
	return false
}

// SHA256Hex returns the hex-encoded sha256 of text, used for chunk
// de-duplication across ingest reruns.
func SHA256Hex(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
