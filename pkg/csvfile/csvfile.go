package csvfile

import (
	"encoding/csv"
	"fmt"
	"os"
	"slices"
)

// Row は、1レコード分の列名から値へのマッピングです。
type Row map[string]string

// Table は、ヘッダー付きCSVの内容を保持します。
// Columns がヘッダーの列順を保持し、Rows の各要素が1レコードに対応します。
type Table struct {
	Columns []string
	Rows    []Row
}

// MissingColumnError は、必須列がCSVヘッダーに存在しないことを示すエラーです。
// 設定エラーとして実行全体を中断させるために使用します（行単位のスキップ対象ではありません）。
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("必須列 %q がCSVヘッダーに存在しません", e.Column)
}

// ReadTable は、CSVファイルを読み込み、ヘッダー付きのTableを返します。
// 先頭行をヘッダーとして扱います。フィールド数がヘッダーと一致しないレコードはエラーです。
func ReadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("CSVファイルのオープンに失敗しました: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("CSVの解析に失敗しました (%s): %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("CSVファイルが空です (ヘッダー行がありません): %s", path)
	}

	columns := records[0]
	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(Row, len(columns))
		for i, column := range columns {
			row[column] = record[i]
		}
		rows = append(rows, row)
	}
	return &Table{Columns: columns, Rows: rows}, nil
}

// RequireColumns は、指定された列がすべてヘッダーに存在することを検証します。
// 最初に見つからなかった列について *MissingColumnError を返します。
func (t *Table) RequireColumns(columns ...string) error {
	for _, want := range columns {
		if !slices.Contains(t.Columns, want) {
			return &MissingColumnError{Column: want}
		}
	}
	return nil
}

// HasColumn は、指定された列がヘッダーに存在するかを返します。
func (t *Table) HasColumn(column string) bool {
	return slices.Contains(t.Columns, column)
}

// WriteTable は、Tableの内容をヘッダー付きCSVとしてファイルに書き込みます。
// 各行は Columns の列順で出力され、行に存在しない列は空文字列になります。
func WriteTable(path string, table *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("CSVファイルの作成に失敗しました (%s): %w", path, err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(table.Columns); err != nil {
		return fmt.Errorf("CSVヘッダーの書き込みに失敗しました (%s): %w", path, err)
	}

	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, column := range table.Columns {
			record[i] = row[column]
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("CSVレコードの書き込みに失敗しました (%s): %w", path, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSVのフラッシュに失敗しました (%s): %w", path, err)
	}
	return nil
}
