package util

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLeveledSlog(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	l := LeveledSlog{inner: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))}

	l.Debug("performing request", "method", "POST")
	assert.Empty(buf.String())

	l.Error("request failed", "err", "connection reset")
	assert.Contains(buf.String(), "level=WARN")
	assert.Contains(buf.String(), "request failed")
}

func TestRetryingHTTPClient(t *testing.T) {
	c := RetryingHTTPClient(1, 5*time.Second)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.Equal(t, 20*time.Second, RobustHTTPClient().Timeout)
}
