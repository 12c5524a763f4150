package logger_test

import (
	"bytes"
	"testing"

	"codeberg.org/mutker/pmtablemon/internal/errors"
	"codeberg.org/mutker/pmtablemon/internal/logger"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logger.DebugLevel, logger.ParseLevel("debug"))
	assert.Equal(t, logger.InfoLevel, logger.ParseLevel("INFO"))
	assert.Equal(t, logger.ErrorLevel, logger.ParseLevel("error"))
	assert.Equal(t, logger.WarnLevel, logger.ParseLevel("warning"))
	assert.Equal(t, logger.WarnLevel, logger.ParseLevel(""))
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "debug", true)
	defer logger.SetLogLevel(logger.WarnLevel)

	log := logger.Get().With("sampler")
	log.Info().Int("cycles", 3).Msg("Sampling")
	log.ErrorWithCode(errors.New().New(errors.ErrInternal)).Send()

	out := buf.String()
	assert.Contains(t, out, "Sampling")
	assert.Contains(t, out, "component=sampler")
	assert.Contains(t, out, "cycles=3")
	assert.Contains(t, out, "error_code=internal_error")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "warning", true)

	logger.Debug().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
