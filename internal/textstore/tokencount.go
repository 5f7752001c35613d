package textstore

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tiktoken-go's BPE encoder is used only to estimate reasoner prompt
// budgets; the regex tokenizer in Tokenize remains the source of truth
// for chunk offsets, since BPE token boundaries don't align with the
// word/punctuation spans chunks are built from.
var (
	bpeOnce sync.Once
	bpeEnc  *tiktoken.Tiktoken
	bpeErr  error
)

func bpe() (*tiktoken.Tiktoken, error) {
	bpeOnce.Do(func() {
		bpeEnc, bpeErr = tiktoken.GetEncoding("cl100k_base")
	})
	return bpeEnc, bpeErr
}

// TokenCount estimates the BPE token count of text for prompt-budget
// checks. Returns 0, err if the encoder failed to load.
func TokenCount(text string) (int, error) {
	enc, err := bpe()
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}
