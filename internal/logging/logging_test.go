package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithWriterLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn")

	l.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	cl := Component(l, "taillog")
	cl.Warn().Msg("shown")
	assert.Contains(t, buf.String(), `"component":"taillog"`)
	assert.Contains(t, buf.String(), `"message":"shown"`)
}

func TestNewWithWriterUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "loud")

	l.Debug().Msg("debug")
	l.Info().Msg("info")
	assert.NotContains(t, buf.String(), "debug")
	assert.Contains(t, buf.String(), "info")
}
