package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("chatty"))
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Console: &buf, NoColor: true, Level: "debug"})

	cl := Component(l, "segment")
	cl.Debug().Int("objects", 96).Msg("segmented")

	out := buf.String()
	assert.Contains(t, out, "component=segment")
	assert.Contains(t, out, "objects=96")
	assert.Contains(t, out, "segmented")
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Console: &buf, NoColor: true, Level: "warn"})

	l.Info().Msg("hidden")
	l.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibrate.log")
	var buf bytes.Buffer
	l := New(Options{Console: &buf, NoColor: true, File: path})

	l.Info().Str("template", "plate01.tif").Msg("loaded")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"template":"plate01.tif"`)
}
