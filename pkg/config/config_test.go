package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("full_config", func(t *testing.T) {
		path := writeTempConfig(t, `
http:
  timeout_sec: 15
  max_retries: 2
download:
  url_column: image_url
  name_column: scientific_name
  output_dir: images
  max_downloads: 100
filter:
  max_count_per_base_name: 3
  filter_column: scientific_name
  excluded_values_file: bad_species.txt
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 15, cfg.HTTP.TimeoutSec)
		assert.Equal(t, 2, cfg.HTTP.MaxRetries)
		assert.Equal(t, "image_url", cfg.Download.URLColumn)
		assert.Equal(t, "scientific_name", cfg.Download.NameColumn)
		assert.Equal(t, "images", cfg.Download.OutputDir)
		assert.Equal(t, 100, cfg.Download.MaxDownloads)
		assert.Equal(t, 3, cfg.Filter.MaxCountPerBaseName)
		assert.Equal(t, "bad_species.txt", cfg.Filter.ExcludedValuesFile)
	})

	t.Run("environment_variables_expanded", func(t *testing.T) {
		t.Setenv("CSV_FETCH_OUTPUT", "/data/images")
		path := writeTempConfig(t, "download:\n  output_dir: ${CSV_FETCH_OUTPUT}\n")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/data/images", cfg.Download.OutputDir)
	})

	t.Run("missing_file", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "no-such.yaml"))
		assert.Error(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("invalid_yaml", func(t *testing.T) {
		path := writeTempConfig(t, "http: [broken")
		cfg, err := Load(path)
		assert.Error(t, err)
		assert.Nil(t, cfg)
	})
}
