package tokencount

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens with a tiktoken encoding. The encoding data loads
// lazily on first use; if it cannot be loaded the counter degrades to a
// bytes/4 estimate instead of failing the query path.
type Counter struct {
	encoding string
	logger   *slog.Logger

	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
	warnOnce sync.Once
}

func New(encoding string, logger *slog.Logger) *Counter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &Counter{encoding: encoding, logger: logger}
}

func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(c.encoding)
		if err != nil {
			c.initErr = err
			return
		}
		c.enc = enc
	})
	if c.initErr != nil {
		c.warnOnce.Do(func() {
			c.logger.Warn("tiktoken encoding unavailable, estimating tokens",
				"encoding", c.encoding, "error", c.initErr)
		})
		return estimate(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

func estimate(text string) int {
	n := len(text) / 4
	if n == 0 {
		return 1
	}
	return n
}
