package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

const (
	clsTokenID = 101
	sepTokenID = 102
	// hashed word ids fall in [vocabOffset, vocabOffset+vocabBuckets)
	vocabOffset  = 1000
	vocabBuckets = 29000
)

// Tokenizer produces the three BERT inputs for a single sequence, padded to maxTokens.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// HashTokenizer lowercases text, splits it into words and punctuation marks,
// and hashes each token into a fixed id range. It needs no vocabulary file.
type HashTokenizer struct{}

func (HashTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens < 2 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	n := 0
	put := func(id int64) {
		inputIDs[n] = id
		attentionMask[n] = 1
		n++
	}
	put(clsTokenID)
	for _, tok := range basicTokens(text) {
		if n == maxTokens-1 {
			break
		}
		put(tokenID(tok))
	}
	put(sepTokenID)
	return inputIDs, attentionMask, tokenTypeIDs
}

// basicTokens splits lowercased text on whitespace and emits each punctuation
// or symbol rune as its own token.
func basicTokens(text string) []string {
	var (
		tokens []string
		word   strings.Builder
	)
	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			word.WriteRune(r)
		}
	}
	flush()
	return tokens
}

func tokenID(token string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return int64(h.Sum32()%vocabBuckets) + vocabOffset
}
