package pipeline

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shouni/go-csv-fetch/pkg/csvfile"
	"github.com/shouni/go-csv-fetch/pkg/naming"
)

const (
	// IncludedManifestFilename は、Filterが元ディレクトリに残した行の一覧を書き込むファイル名です。
	IncludedManifestFilename = "output-included.csv"

	// ExcludedManifestFilename は、Filterが除外ディレクトリへ移動した行の一覧を書き込むファイル名です。
	ExcludedManifestFilename = "output-excluded.csv"
)

// fileDecision は、1ファイルに対するFilterの判断です。
// ファイルごとに独立に一度だけ計算され、両方のポリシーに該当しても移動は一度だけ行われます。
type fileDecision int

const (
	decisionKeep fileDecision = iota
	decisionExcludeForCount
	decisionExcludeForValue
)

// Filter は、Downloaderの出力ディレクトリを走査し、ベース名ごとの件数上限を超えた
// ファイルと、指定列の値が除外リストに含まれる行のファイルを除外ディレクトリへ移動します。
type Filter struct {
	originalDir  string
	excludedDir  string
	maxCount     int    // ベース名ごとの連番上限 (0 = 無効)
	filterColumn string // 値による除外で参照する列名 (空 = 無効)
	excluded     map[string]struct{}
	// sanitizedExcluded は、除外値をベース名の規則でサニタイズしたものです。
	// マニフェストが存在しない場合のフォールバック（ベース名からの再導出）に使用します。
	sanitizedExcluded map[string]struct{}
}

// NewFilter は Filter を初期化します。
// filterColumn と excludedValuesFile は両方指定するか、両方省略する必要があります。
func NewFilter(originalDir, excludedDir string, maxCount int, filterColumn, excludedValuesFile string) (*Filter, error) {
	if originalDir == "" || excludedDir == "" {
		return nil, fmt.Errorf("元ディレクトリと除外ディレクトリは必須です")
	}
	if (filterColumn == "") != (excludedValuesFile == "") {
		return nil, fmt.Errorf("値による除外を使うには --filter_column と --excluded_values_file の両方を指定してください")
	}

	f := &Filter{
		originalDir:       originalDir,
		excludedDir:       excludedDir,
		maxCount:          maxCount,
		filterColumn:      filterColumn,
		excluded:          make(map[string]struct{}),
		sanitizedExcluded: make(map[string]struct{}),
	}

	if excludedValuesFile != "" {
		values, err := readExcludedValues(excludedValuesFile)
		if err != nil {
			return nil, err
		}
		for _, value := range values {
			f.excluded[value] = struct{}{}
			f.sanitizedExcluded[naming.Sanitize(value)] = struct{}{}
		}
	}

	return f, nil
}

// readExcludedValues は、行区切りの除外値ファイルを読み込みます。
// 各行はトリムされ、空行は無視されます。
func readExcludedValues(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("除外値ファイルのオープンに失敗しました: %w", err)
	}
	defer f.Close()

	var values []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			values = append(values, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("除外値ファイルの読み取りエラー (%s): %w", path, err)
	}
	return values, nil
}

// FilterSummary は、1回のフィルタ実行の集計結果です。
type FilterSummary struct {
	NumKept          int
	NumMoved         int
	NumMovedForCount int
	NumMovedForValue int
	NumMissing       int // マニフェストが参照しているが元ディレクトリに存在しなかったファイル数
}

// Print は、実行結果のサマリーを標準出力へ表示します。
func (s *FilterSummary) Print() {
	fmt.Printf("残したファイル: %d 件\n", s.NumKept)
	fmt.Printf("移動したファイル: %d 件\n", s.NumMoved)
	fmt.Printf("件数上限による移動: %d 件\n", s.NumMovedForCount)
	fmt.Printf("除外値による移動: %d 件\n", s.NumMovedForValue)
	fmt.Printf("移動対象が見つからなかった件数: %d 件\n", s.NumMissing)
}

// Run は、1回のフィルタ実行を行います。
//
// 元ディレクトリの一覧から命名規則 <base>_<NNN><ext> に一致するファイルを対象とし、
// 一致しないファイルは無視します（エラーにはなりません）。値による除外は、
// 元ディレクトリにマニフェスト (output.csv) があればそれで行と対応付け、
// なければベース名そのものと照合します（フィルタ列が名前列の場合のみ有効な近似）。
//
// 移動できない回復不能なエラーが発生した場合は、そこまでの移動件数を報告して中断します。
// 同じ入力で二度実行しても、二度目は移動が発生しません。
func (f *Filter) Run() (*FilterSummary, error) {
	summary := &FilterSummary{}

	// 1. 元ディレクトリの走査
	entries, err := os.ReadDir(f.originalDir)
	if err != nil {
		return summary, fmt.Errorf("元ディレクトリの走査に失敗しました (%s): %w", f.originalDir, err)
	}

	// 2. マニフェストがあれば読み込み、出力ファイル名から行への対応を作る
	manifest, rowsByFilename, err := f.loadManifest()
	if err != nil {
		return summary, err
	}

	// 3. ファイルごとの判断（命名規則に一致しないファイルは残す対象にも数えない）
	decisions := make(map[string]fileDecision)
	for _, dirEntry := range entries {
		if dirEntry.IsDir() {
			continue
		}
		name := dirEntry.Name()
		parsed, ok := naming.Parse(name)
		if !ok {
			continue
		}
		decisions[name] = f.decide(parsed, rowsByFilename[name])
	}

	// 4. マニフェストがある場合は、残す行と除外する行の一覧を書き出す
	if manifest != nil {
		if err := f.writeFilterManifests(manifest, decisions, summary); err != nil {
			return summary, err
		}
	}

	// 5. 除外対象のファイルを名前順に移動する
	var toMove []string
	for name, decision := range decisions {
		switch decision {
		case decisionKeep:
			summary.NumKept++
		case decisionExcludeForCount:
			summary.NumMovedForCount++
			toMove = append(toMove, name)
		case decisionExcludeForValue:
			summary.NumMovedForValue++
			toMove = append(toMove, name)
		}
	}
	sort.Strings(toMove)

	if len(toMove) > 0 {
		if err := os.MkdirAll(f.excludedDir, 0755); err != nil {
			return summary, fmt.Errorf("除外ディレクトリの作成に失敗しました (%s): %w", f.excludedDir, err)
		}
	}

	for _, name := range toMove {
		oldPath := filepath.Join(f.originalDir, name)
		newPath := filepath.Join(f.excludedDir, name)
		if err := os.Rename(oldPath, newPath); err != nil {
			return summary, fmt.Errorf("ファイルの移動に失敗しました (%s)。ここまでに %d 件移動済み: %w", name, summary.NumMoved, err)
		}
		log.Printf("%s を %s へ移動しました", name, newPath)
		summary.NumMoved++
	}

	return summary, nil
}

// decide は、1ファイルに対する判断を計算します。row はマニフェストに対応する行
// （存在しない場合は nil）です。
func (f *Filter) decide(entry naming.Entry, row csvfile.Row) fileDecision {
	// 件数上限ポリシー: 連番が上限を超えたファイルは、欠番の有無にかかわらず除外する
	if f.maxCount > 0 && entry.Seq > f.maxCount {
		return decisionExcludeForCount
	}

	// 値による除外ポリシー
	if f.filterColumn != "" {
		if row != nil {
			if _, bad := f.excluded[strings.TrimSpace(row[f.filterColumn])]; bad {
				return decisionExcludeForValue
			}
		} else if _, bad := f.sanitizedExcluded[entry.BaseName]; bad {
			// マニフェストなしのフォールバック: ベース名をサニタイズ済み除外値と照合する
			return decisionExcludeForValue
		}
	}

	return decisionKeep
}

// loadManifest は、元ディレクトリのマニフェストを読み込みます。
// マニフェストが存在しない場合は (nil, 空のマップ, nil) を返します。
func (f *Filter) loadManifest() (*csvfile.Table, map[string]csvfile.Row, error) {
	path := filepath.Join(f.originalDir, ManifestFilename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, map[string]csvfile.Row{}, nil
		}
		return nil, nil, fmt.Errorf("マニフェストの確認に失敗しました (%s): %w", path, err)
	}

	manifest, err := csvfile.ReadTable(path)
	if err != nil {
		return nil, nil, err
	}
	if f.filterColumn != "" {
		if err := manifest.RequireColumns(f.filterColumn); err != nil {
			return nil, nil, err
		}
	}

	rowsByFilename := make(map[string]csvfile.Row, len(manifest.Rows))
	for _, row := range manifest.Rows {
		if filename := row[OutputFilenameColumn]; filename != "" {
			rowsByFilename[filename] = row
		}
	}
	return manifest, rowsByFilename, nil
}

// writeFilterManifests は、マニフェストの各行を残す行と除外する行に分割し、
// それぞれ output-included.csv（元ディレクトリ）と output-excluded.csv（除外ディレクトリ）
// へ書き出します。除外対象の行でファイルが既に存在しないものは欠落として数えます。
func (f *Filter) writeFilterManifests(manifest *csvfile.Table, decisions map[string]fileDecision, summary *FilterSummary) error {
	var includedRows, excludedRows []csvfile.Row

	for _, row := range manifest.Rows {
		filename := row[OutputFilenameColumn]
		excluded := false

		if filename != "" {
			if decision, onDisk := decisions[filename]; onDisk {
				excluded = decision != decisionKeep
			} else if parsed, ok := naming.Parse(filename); ok {
				// ディスク上に存在しない行も行内容からは判断できる。除外対象なら欠落として報告する。
				if f.decide(parsed, row) != decisionKeep {
					excluded = true
					summary.NumMissing++
					log.Printf("移動対象のファイルが見つかりませんでした: %s", filepath.Join(f.originalDir, filename))
				}
			}
		}

		if excluded {
			excludedRows = append(excludedRows, row)
		} else {
			includedRows = append(includedRows, row)
		}
	}

	includedPath := filepath.Join(f.originalDir, IncludedManifestFilename)
	if err := csvfile.WriteTable(includedPath, &csvfile.Table{Columns: manifest.Columns, Rows: includedRows}); err != nil {
		return err
	}

	if err := os.MkdirAll(f.excludedDir, 0755); err != nil {
		return fmt.Errorf("除外ディレクトリの作成に失敗しました (%s): %w", f.excludedDir, err)
	}
	excludedPath := filepath.Join(f.excludedDir, ExcludedManifestFilename)
	return csvfile.WriteTable(excludedPath, &csvfile.Table{Columns: manifest.Columns, Rows: excludedRows})
}
