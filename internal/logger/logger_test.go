package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestFromContext_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	ctx := WithContext(context.Background(), l)
	got := FromContext(ctx)
	got.Info().Str("source", "march.csv").Msg("import started")

	assert.Contains(t, buf.String(), `"source":"march.csv"`)
	assert.Contains(t, buf.String(), `"message":"import started"`)
}

func TestNewWithWriter_RecordsCaller(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)
	l.Warn().Msg("rate feed unavailable")

	assert.Contains(t, buf.String(), `"caller":`)
	assert.Contains(t, buf.String(), "logger_test.go:")
}

func TestFromContext_DefaultIsDisabled(t *testing.T) {
	l := FromContext(context.Background())
	assert.Equal(t, zerolog.Disabled, l.GetLevel())
}

func TestNew_Level(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, New(false).GetLevel())
	assert.Equal(t, zerolog.DebugLevel, New(true).GetLevel())
}
