// Package tokenizer counts tokens in tool output. The counting backend is
// selected by encoding name; every backend satisfies [Counter], so BPE
// encodings and the offline heuristic are interchangeable.
package tokenizer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// DefaultEncoding is the encoding used when none is configured.
const DefaultEncoding = "o200k_base"

// Heuristic names the offline estimator that needs no vocabulary.
const Heuristic = "heuristic"

// Counter returns the number of tokens in text. Implementations never
// return a negative count.
type Counter interface {
	Count(text string) int
}

// CountBytes decodes b as UTF-8, dropping invalid sequences, and counts
// the result with c.
func CountBytes(c Counter, b []byte) int {
	return c.Count(strings.ToValidUTF8(string(b), ""))
}

var bpeEncodings = map[string]tokenizer.Encoding{
	"o200k_base":  tokenizer.O200kBase,
	"cl100k_base": tokenizer.Cl100kBase,
	"p50k_base":   tokenizer.P50kBase,
	"r50k_base":   tokenizer.R50kBase,
}

// Encodings lists every name accepted by New.
func Encodings() []string {
	names := make([]string, 0, len(bpeEncodings)+1)
	for name := range bpeEncodings {
		names = append(names, name)
	}
	sort.Strings(names)
	return append(names, Heuristic)
}

// New returns the Counter for the named encoding. An empty name selects
// DefaultEncoding. Names are case-insensitive.
func New(name string) (Counter, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultEncoding
	}
	if name == Heuristic {
		return CharEstimator{}, nil
	}

	enc, ok := bpeEncodings[name]
	if !ok {
		return nil, fmt.Errorf("unknown encoding %q (valid: %s)", name, strings.Join(Encodings(), ", "))
	}
	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", name, err)
	}
	return &BPE{name: name, codec: codec}, nil
}

// BPE counts tokens with a byte-pair encoding vocabulary.
type BPE struct {
	name  string
	codec tokenizer.Codec
}

// Name returns the encoding name.
func (b *BPE) Name() string { return b.name }

// Count returns the number of BPE tokens in text. Text the codec cannot
// encode counts as zero tokens.
func (b *BPE) Count(text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := b.codec.Encode(text)
	if err != nil {
		return 0
	}
	return len(ids)
}

// CharEstimator approximates token counts at a fixed number of bytes per
// token, rounding up. It is close enough for English prose and JSON with
// GPT-family vocabularies and needs no data files.
type CharEstimator struct {
	// BytesPerToken defaults to 4 when zero.
	BytesPerToken int
}

// Count returns ceil(len(text) / BytesPerToken).
func (e CharEstimator) Count(text string) int {
	n := e.BytesPerToken
	if n <= 0 {
		n = 4
	}
	return (len(text) + n - 1) / n
}
