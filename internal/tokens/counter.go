// Package tokens counts prompt tokens so retrieved evidence can be kept
// within the generation model's context budget.
package tokens

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/covid-rag/reinfection-advisor/internal/domain"
)

// Counter counts tokens for one model family using tiktoken. When the
// encoding cannot be loaded it falls back to a characters-per-token estimate.
type Counter struct {
	encoding tokenizer.Encoding

	once  sync.Once
	codec tokenizer.Codec
}

// CharsPerToken is the estimate used when no codec is available.
const CharsPerToken = 4.0

// NewCounter returns a counter for the given model or deployment name.
func NewCounter(model string) *Counter {
	return &Counter{encoding: modelToEncoding(model)}
}

func (c *Counter) load() tokenizer.Codec {
	c.once.Do(func() {
		codec, err := tokenizer.Get(c.encoding)
		if err == nil {
			c.codec = codec
		}
	})
	return c.codec
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if codec := c.load(); codec != nil {
		ids, _, err := codec.Encode(text)
		if err == nil {
			return len(ids)
		}
	}
	return int(float64(len(text))/CharsPerToken) + 1
}

// Fit keeps passages, in order, while their combined token count stays within
// budget. The first passage is always kept so a tight budget never leaves the
// prompt without evidence. A budget of zero or less disables trimming.
func (c *Counter) Fit(evidence []domain.EvidencePassage, budget int) []domain.EvidencePassage {
	if budget <= 0 || len(evidence) == 0 {
		return evidence
	}

	kept := make([]domain.EvidencePassage, 0, len(evidence))
	used := 0
	for i, p := range evidence {
		n := c.Count(p.Text)
		if i > 0 && used+n > budget {
			break
		}
		used += n
		kept = append(kept, p)
	}
	return kept
}

// modelToEncoding maps deployment or model names to a tiktoken encoding.
// Azure deployment names are free-form, so unknown names get o200k_base.
//
// Encoding reference:
// - O200kBase: GPT-4o, GPT-4.1, GPT-5, o-series
// - Cl100kBase: GPT-4, GPT-3.5-turbo, text-embedding-ada-002
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"), strings.HasPrefix(model, "gpt-41"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-5"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-35"), strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase
	case strings.HasPrefix(model, "text-embedding"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}
