package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-csv-fetch/pkg/csvfile"
)

// touchFiles は、元ディレクトリにテスト用の出力ファイルを作成します。
func touchFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
}

// writeExclusionFile は、行区切りの除外値ファイルを作成します。
func writeExclusionFile(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "excluded_values.txt")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0644))
	return path
}

func TestNewFilter(t *testing.T) {
	t.Run("filter_column_requires_values_file", func(t *testing.T) {
		_, err := NewFilter(t.TempDir(), t.TempDir(), 0, "scientific_name", "")
		assert.Error(t, err)
	})

	t.Run("values_file_requires_filter_column", func(t *testing.T) {
		_, err := NewFilter(t.TempDir(), t.TempDir(), 0, "", writeExclusionFile(t, "BadSpecies\n"))
		assert.Error(t, err)
	})

	t.Run("missing_values_file", func(t *testing.T) {
		_, err := NewFilter(t.TempDir(), t.TempDir(), 0, "scientific_name", filepath.Join(t.TempDir(), "no-such.txt"))
		assert.Error(t, err)
	})
}

func TestFilterCountCap(t *testing.T) {
	originalDir := t.TempDir()
	excludedDir := filepath.Join(t.TempDir(), "excluded")
	touchFiles(t, originalDir,
		"pizza_001.jpg", "pizza_002.jpg", "pizza_003.jpg", "pizza_004.jpg", "pizza_005.jpg",
		"notes.txt") // 命名規則に一致しないファイルは無視される

	filter, err := NewFilter(originalDir, excludedDir, 3, "", "")
	require.NoError(t, err)

	summary, err := filter.Run()
	require.NoError(t, err)

	assert.Equal(t, 2, summary.NumMoved)
	assert.Equal(t, 2, summary.NumMovedForCount)
	assert.Equal(t, 3, summary.NumKept)

	assert.ElementsMatch(t,
		[]string{"pizza_001.jpg", "pizza_002.jpg", "pizza_003.jpg", "notes.txt"},
		listFiles(t, originalDir))
	assert.ElementsMatch(t,
		[]string{"pizza_004.jpg", "pizza_005.jpg"},
		listFiles(t, excludedDir))
}

// TestFilterCountCapWithGaps は、欠番があっても連番そのものの比較で判断されることを検証します。
func TestFilterCountCapWithGaps(t *testing.T) {
	originalDir := t.TempDir()
	excludedDir := filepath.Join(t.TempDir(), "excluded")
	touchFiles(t, originalDir, "pizza_001.jpg", "pizza_004.jpg")

	filter, err := NewFilter(originalDir, excludedDir, 3, "", "")
	require.NoError(t, err)

	summary, err := filter.Run()
	require.NoError(t, err)

	assert.Equal(t, 1, summary.NumMoved)
	assert.ElementsMatch(t, []string{"pizza_001.jpg"}, listFiles(t, originalDir))
	assert.ElementsMatch(t, []string{"pizza_004.jpg"}, listFiles(t, excludedDir))
}

func TestFilterIdempotence(t *testing.T) {
	originalDir := t.TempDir()
	excludedDir := filepath.Join(t.TempDir(), "excluded")
	touchFiles(t, originalDir, "pizza_001.jpg", "pizza_002.jpg", "pizza_003.jpg", "pizza_004.jpg")

	filter, err := NewFilter(originalDir, excludedDir, 3, "", "")
	require.NoError(t, err)

	first, err := filter.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, first.NumMoved)

	// 同じ入力での二度目の実行では、追加の移動は発生しない
	second, err := filter.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, second.NumMoved)
	assert.ElementsMatch(t, []string{"pizza_004.jpg"}, listFiles(t, excludedDir))
}

func TestFilterValueExclusionWithManifest(t *testing.T) {
	originalDir := t.TempDir()
	excludedDir := filepath.Join(t.TempDir(), "excluded")
	touchFiles(t, originalDir, "ailurus_fulgens_001.jpg", "bad_species_001.jpg")

	manifest := &csvfile.Table{
		Columns: []string{"scientific_name", "url", OutputFilenameColumn},
		Rows: []csvfile.Row{
			{"scientific_name": "Ailurus fulgens", "url": "https://example.com/a.jpg", OutputFilenameColumn: "ailurus_fulgens_001.jpg"},
			{"scientific_name": "BadSpecies", "url": "https://example.com/b.jpg", OutputFilenameColumn: "bad_species_001.jpg"},
		},
	}
	require.NoError(t, csvfile.WriteTable(filepath.Join(originalDir, ManifestFilename), manifest))

	exclusionFile := writeExclusionFile(t, "BadSpecies\n\n  \n")
	filter, err := NewFilter(originalDir, excludedDir, 0, "scientific_name", exclusionFile)
	require.NoError(t, err)

	summary, err := filter.Run()
	require.NoError(t, err)

	assert.Equal(t, 1, summary.NumMoved)
	assert.Equal(t, 1, summary.NumMovedForValue)
	assert.Equal(t, 0, summary.NumMissing)

	// 除外値に一致した行のファイルだけが移動する
	assert.Contains(t, listFiles(t, originalDir), "ailurus_fulgens_001.jpg")
	assert.Contains(t, listFiles(t, excludedDir), "bad_species_001.jpg")

	// 残す行と除外した行の一覧がそれぞれ書き出される
	included, err := csvfile.ReadTable(filepath.Join(originalDir, IncludedManifestFilename))
	require.NoError(t, err)
	require.Len(t, included.Rows, 1)
	assert.Equal(t, "Ailurus fulgens", included.Rows[0]["scientific_name"])

	excluded, err := csvfile.ReadTable(filepath.Join(excludedDir, ExcludedManifestFilename))
	require.NoError(t, err)
	require.Len(t, excluded.Rows, 1)
	assert.Equal(t, "BadSpecies", excluded.Rows[0]["scientific_name"])
}

// TestFilterValueExclusionFallback は、マニフェストがない場合の
// ベース名からの再導出による値除外を検証します。
func TestFilterValueExclusionFallback(t *testing.T) {
	originalDir := t.TempDir()
	excludedDir := filepath.Join(t.TempDir(), "excluded")
	touchFiles(t, originalDir, "bad_species_001.jpg", "good_species_001.jpg")

	exclusionFile := writeExclusionFile(t, "Bad Species\n")
	filter, err := NewFilter(originalDir, excludedDir, 0, "name", exclusionFile)
	require.NoError(t, err)

	summary, err := filter.Run()
	require.NoError(t, err)

	// 除外値 "Bad Species" はサニタイズ後のベース名 "bad_species" と照合される
	assert.Equal(t, 1, summary.NumMoved)
	assert.ElementsMatch(t, []string{"good_species_001.jpg"}, listFiles(t, originalDir))
	assert.ElementsMatch(t, []string{"bad_species_001.jpg"}, listFiles(t, excludedDir))
}

// TestFilterMissingManifestEntry は、マニフェストが参照するファイルが
// 既に存在しない場合（前回の実行で移動済みなど）の report を検証します。
func TestFilterMissingManifestEntry(t *testing.T) {
	originalDir := t.TempDir()
	excludedDir := filepath.Join(t.TempDir(), "excluded")
	// pizza_004.jpg はマニフェストにあるがディスク上に存在しない
	touchFiles(t, originalDir, "pizza_001.jpg")

	manifest := &csvfile.Table{
		Columns: []string{"name", OutputFilenameColumn},
		Rows: []csvfile.Row{
			{"name": "Pizza", OutputFilenameColumn: "pizza_001.jpg"},
			{"name": "Pizza", OutputFilenameColumn: "pizza_004.jpg"},
		},
	}
	require.NoError(t, csvfile.WriteTable(filepath.Join(originalDir, ManifestFilename), manifest))

	filter, err := NewFilter(originalDir, excludedDir, 3, "", "")
	require.NoError(t, err)

	summary, err := filter.Run()
	require.NoError(t, err)

	assert.Equal(t, 0, summary.NumMoved)
	assert.Equal(t, 1, summary.NumMissing)
	assert.Contains(t, listFiles(t, originalDir), "pizza_001.jpg")
}

func TestFilterBothPoliciesMoveOnce(t *testing.T) {
	originalDir := t.TempDir()
	excludedDir := filepath.Join(t.TempDir(), "excluded")
	touchFiles(t, originalDir, "bad_species_004.jpg")

	exclusionFile := writeExclusionFile(t, "Bad Species\n")
	// 件数上限 (004 > 3) と除外値の両方に該当するが、移動は一度だけ行われる
	filter, err := NewFilter(originalDir, excludedDir, 3, "name", exclusionFile)
	require.NoError(t, err)

	summary, err := filter.Run()
	require.NoError(t, err)

	assert.Equal(t, 1, summary.NumMoved)
	assert.ElementsMatch(t, []string{"bad_species_004.jpg"}, listFiles(t, excludedDir))
}
