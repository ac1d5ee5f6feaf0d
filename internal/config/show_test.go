package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective_Defaults(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, RenderEffective(DefaultConfig(), &buf))

	out := buf.String()
	assert.Contains(t, out, "# Effective configuration (defaults)")
	assert.Contains(t, out, `log_level       = "info"`)
	assert.Contains(t, out, "[emit]\n  stdout      = true")
	assert.NotContains(t, out, "[source.")
}

func TestRenderEffective_SourcesAndMasking(t *testing.T) {
	cfg, err := Load(writeTestConfig(t, fullConfig))
	require.NoError(t, err)

	var buf bytes.Buffer

	require.NoError(t, RenderEffective(cfg, &buf))

	out := buf.String()
	assert.Contains(t, out, "# Effective configuration from "+cfg.Path)
	assert.Contains(t, out, `client_secret = "********"`)
	assert.NotContains(t, out, "shh")
	assert.Contains(t, out, "[source.golang]")
	assert.Contains(t, out, `subreddit             = "golang"`)
	assert.Contains(t, out, "[source.invoices]")
	assert.Contains(t, out, `traversal             = "walk"`)
	assert.Contains(t, out, `type_filter           = ["application/pdf", ".xlsx"]`)
	assert.Contains(t, out, "recursive             = false")

	// Sorted output: golang before invoices.
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("[source.golang]")),
		bytes.Index(buf.Bytes(), []byte("[source.invoices]")))
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestRenderEffective_WriteError(t *testing.T) {
	err := RenderEffective(DefaultConfig(), failWriter{})
	require.EqualError(t, err, "disk full")
}

func TestRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reddit.ClientSecret = "s3cret"

	shown := cfg.Redacted()
	assert.Equal(t, "********", shown.Reddit.ClientSecret)
	assert.Equal(t, "s3cret", cfg.Reddit.ClientSecret)

	assert.Empty(t, DefaultConfig().Redacted().Reddit.ClientSecret, "empty secret stays empty")
}
