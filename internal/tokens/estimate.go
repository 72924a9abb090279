// Package tokens estimates prompt token counts for provenance entries when
// a provider adapter reports no usage.
package tokens

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Estimator counts tokens with tiktoken, caching codecs by encoding.
type Estimator struct {
	mu    sync.RWMutex
	cache map[tokenizer.Encoding]tokenizer.Codec
}

// NewEstimator creates an estimator.
func NewEstimator() *Estimator {
	return &Estimator{cache: make(map[tokenizer.Encoding]tokenizer.Codec)}
}

// Estimate returns the token count of text for the given model. When no
// codec is available it falls back to the usual ~4 chars/token heuristic so
// log entries always carry a count.
func (e *Estimator) Estimate(model, text string) int {
	codec, err := e.codecFor(model)
	if err != nil {
		return heuristic(text)
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return heuristic(text)
	}
	return len(ids)
}

func (e *Estimator) codecFor(model string) (tokenizer.Codec, error) {
	if codec, err := tokenizer.ForModel(tokenizer.Model(model)); err == nil {
		return codec, nil
	}

	encoding := encodingFor(model)

	e.mu.RLock()
	if cached, ok := e.cache[encoding]; ok {
		e.mu.RUnlock()
		return cached, nil
	}
	e.mu.RUnlock()

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[encoding] = codec
	e.mu.Unlock()
	return codec, nil
}

func encodingFor(model string) tokenizer.Encoding {
	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase
	default:
		// Newer and unknown models most likely use o200k_base.
		return tokenizer.O200kBase
	}
}

func heuristic(text string) int {
	n := (len(text) + 3) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}
