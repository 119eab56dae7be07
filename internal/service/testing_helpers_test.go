package service

import (
	"io"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func (t *typingLimiter) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
