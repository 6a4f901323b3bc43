// Package tokenizer counts message tokens with a BPE encoding, falling back
// to a character estimate when the encoding cannot be loaded.
package tokenizer

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"council-ai/internal/domain"
)

const (
	// DefaultEncoding is shared by the GPT-4 family and close enough for
	// budget math on the other vendors.
	DefaultEncoding = "cl100k_base"
	// imageTokens is charged per attached image.
	imageTokens = 1000
	// messageOverhead covers role markers and separators.
	messageOverhead = 4
)

// getEncoding is replaced in tests to avoid the BPE download.
var getEncoding = tiktoken.GetEncoding

// Counter implements domain.TokenCounter with tiktoken. The encoding is
// loaded on first use; if that fails every call goes to the fallback.
type Counter struct {
	encoding string
	fallback domain.TokenCounter
	logger   *slog.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// New returns a counter for the named encoding. fallback is required.
func New(encoding string, fallback domain.TokenCounter, logger *slog.Logger) *Counter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Counter{encoding: encoding, fallback: fallback, logger: logger}
}

func (c *Counter) init() {
	c.once.Do(func() {
		enc, err := getEncoding(c.encoding)
		if err != nil {
			c.logger.Warn("tokenizer: encoding unavailable, using estimate", "encoding", c.encoding, "error", err)
			return
		}
		c.enc = enc
	})
}

// Ready reports whether the BPE encoding is loaded.
func (c *Counter) Ready() bool {
	c.init()
	return c.enc != nil
}

// CountText implements domain.TokenCounter.
func (c *Counter) CountText(text string) int {
	c.init()
	if c.enc == nil {
		return c.fallback.CountText(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// CountMessage implements domain.TokenCounter.
func (c *Counter) CountMessage(m domain.Message) int {
	c.init()
	if c.enc == nil {
		return c.fallback.CountMessage(m)
	}
	return c.CountText(m.Content) + len(m.Images)*imageTokens + messageOverhead
}

var _ domain.TokenCounter = (*Counter)(nil)
