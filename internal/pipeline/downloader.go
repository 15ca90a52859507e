package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/shouni/go-csv-fetch/pkg/csvfile"
	"github.com/shouni/go-csv-fetch/pkg/httpclient"
	"github.com/shouni/go-csv-fetch/pkg/naming"
	"github.com/shouni/go-csv-fetch/pkg/types"
)

const (
	// ManifestFilename は、Downloaderが出力ディレクトリに書き込むマニフェストのファイル名です。
	// 入力CSVの全行に出力ファイル名の列を加えたもので、Filterが行と出力ファイルの対応付けに使用します。
	ManifestFilename = "output.csv"

	// OutputFilenameColumn は、マニフェストに追記される出力ファイル名の列名です。
	OutputFilenameColumn = "output_filename"

	// maxFailedURLsInSummary は、サマリーに列挙する失敗URLの最大件数です。
	maxFailedURLsInSummary = 100
)

// Fetcher は、DownloaderがHTTP取得に利用するインターフェースです。
// httpclient.Client がこれを満たします。
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*httpclient.Resource, error)
}

// Downloader は、CSVの各行についてURL列の値を取得し、名前列の値から導出した
// 衝突安全なファイル名で出力ディレクトリへ書き込みます。
type Downloader struct {
	fetcher      Fetcher
	urlColumn    string
	nameColumn   string
	outputDir    string
	maxDownloads int // 成功したダウンロード数の上限 (0 = 無制限)
}

// NewDownloader は Downloader を初期化します。
func NewDownloader(fetcher Fetcher, urlColumn, nameColumn, outputDir string, maxDownloads int) (*Downloader, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("Fetcher cannot be nil")
	}
	if urlColumn == "" || nameColumn == "" {
		return nil, fmt.Errorf("URL列と名前列の列名は必須です")
	}
	if outputDir == "" {
		return nil, fmt.Errorf("出力ディレクトリは必須です")
	}
	return &Downloader{
		fetcher:      fetcher,
		urlColumn:    urlColumn,
		nameColumn:   nameColumn,
		outputDir:    outputDir,
		maxDownloads: maxDownloads,
	}, nil
}

// DownloadSummary は、1回のダウンロード実行の集計結果です。
type DownloadSummary struct {
	NumSucceeded int
	NumFailed    int
	FailedURLs   []string
	Elapsed      time.Duration
}

// Print は、実行結果のサマリーを標準出力へ表示します。
func (s *DownloadSummary) Print() {
	fmt.Printf("ダウンロード所要時間: %0.2f 分\n", s.Elapsed.Minutes())
	fmt.Printf("成功: %d 件\n", s.NumSucceeded)
	fmt.Printf("失敗: %d 件\n", s.NumFailed)
	if len(s.FailedURLs) > 0 {
		failed := slices.Clone(s.FailedURLs)
		sort.Strings(failed)
		if len(failed) > maxFailedURLsInSummary {
			failed = failed[:maxFailedURLsInSummary]
		}
		fmt.Printf("失敗したURLの例: %s\n", strings.Join(failed, ", "))
	}
}

// Run は、テーブルの全行を入力として1回のダウンロード実行を行います。
//
// 行は名前列の値で安定ソートしてから処理するため、同じベース名の連番は
// 1回の実行内では連続して割り当てられます。連番の初期値は出力ディレクトリの
// 既存ファイルの走査結果から引き継がれるため、再実行は上書きではなく追記になります。
//
// フェッチの失敗は警告ログを出して行をスキップし（連番は消費しない）、
// ファイル書き込みの失敗は致命的エラーとして残りの実行を中断します。
func (d *Downloader) Run(ctx context.Context, table *csvfile.Table) (*DownloadSummary, error) {
	summary := &DownloadSummary{}

	// 1. 設定エラーの検証: 必須列の存在チェック（I/Oの副作用が発生する前に中断する）
	if err := table.RequireColumns(d.urlColumn, d.nameColumn); err != nil {
		return summary, err
	}

	// 2. 出力ディレクトリの準備と、既存出力の走査による連番状態の復元
	if err := os.MkdirAll(d.outputDir, 0755); err != nil {
		return summary, fmt.Errorf("出力ディレクトリの作成に失敗しました (%s): %w", d.outputDir, err)
	}
	counter, err := naming.ScanDir(d.outputDir)
	if err != nil {
		return summary, err
	}

	// 3. 名前列の値で安定ソートした処理順を作る（入力テーブルの行順は変更しない）
	rows := slices.Clone(table.Rows)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i][d.nameColumn] < rows[j][d.nameColumn]
	})

	// 4. 1行ずつ順番にフェッチして書き込む
	start := time.Now()
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			summary.Elapsed = time.Since(start)
			return summary, fmt.Errorf("ダウンロード処理が中断されました: %w", err)
		}
		if d.maxDownloads > 0 && summary.NumSucceeded >= d.maxDownloads {
			break
		}

		result, fatalErr := d.downloadRow(ctx, counter, row)
		if fatalErr != nil {
			// 書き込み系のエラーは致命的として残りの実行を中断する（完了済みの成果はそのまま残す）
			summary.Elapsed = time.Since(start)
			return summary, fatalErr
		}
		if result.Error != nil {
			log.Printf("警告: ダウンロードに失敗したためスキップします (URL: %s): %v", result.Task.URL, result.Error)
			summary.NumFailed++
			if result.Task.URL != "" {
				summary.FailedURLs = append(summary.FailedURLs, result.Task.URL)
			}
			continue
		}
		row[OutputFilenameColumn] = result.OutputFilename
		summary.NumSucceeded++
	}
	summary.Elapsed = time.Since(start)

	// 5. マニフェストの書き込み（処理順の全行 + output_filename列）
	if err := d.writeManifest(table.Columns, rows); err != nil {
		return summary, err
	}

	return summary, nil
}

// downloadRow は、1行分のフェッチとファイル書き込みを実行します。
// フェッチ失敗は DownloadResult.Error に格納して返します（行単位のスキップ対象、連番は消費しない）。
// ファイル書き込みの失敗は回復不能として第2戻り値で返し、実行全体を中断させます。
func (d *Downloader) downloadRow(ctx context.Context, counter *naming.Counter, row csvfile.Row) (types.DownloadResult, error) {
	task, err := d.makeTask(row)
	if err != nil {
		return types.DownloadResult{Task: task, Error: err}, nil
	}

	res, err := d.fetcher.Fetch(ctx, task.URL)
	if err != nil {
		return types.DownloadResult{Task: task, Error: err}, nil
	}

	// 拡張子はURLのパス末尾を優先し、なければContent-Typeから推定する
	ext := naming.ExtensionFromURL(task.URL)
	if ext == "" {
		ext = naming.ExtensionFromContentType(res.ContentType)
	}

	// 連番はフェッチ成功後に割り当てる（失敗した行は連番を消費しない）
	seq := counter.Next(task.BaseName)
	filename := naming.Format(task.BaseName, seq, ext)
	outputPath := filepath.Join(d.outputDir, filename)

	if err := os.WriteFile(outputPath, res.Body, 0644); err != nil {
		return types.DownloadResult{Task: task}, fmt.Errorf("ファイルの書き込みに失敗しました (%s): %w", outputPath, err)
	}

	return types.DownloadResult{Task: task, OutputFilename: filename}, nil
}

// makeTask は、1行からダウンロードタスクを導出します。
func (d *Downloader) makeTask(row csvfile.Row) (types.DownloadTask, error) {
	base := naming.Sanitize(row[d.nameColumn])

	rawURL := strings.TrimSpace(row[d.urlColumn])
	if rawURL == "" {
		return types.DownloadTask{BaseName: base}, fmt.Errorf("URL列 %q の値が空です", d.urlColumn)
	}

	processedURL, err := ensureScheme(rawURL)
	if err != nil {
		return types.DownloadTask{BaseName: base}, fmt.Errorf("URLスキームの処理エラー: %w", err)
	}

	return types.DownloadTask{URL: processedURL, BaseName: base}, nil
}

// writeManifest は、処理順の全行をマニフェストとして出力ディレクトリへ書き込みます。
func (d *Downloader) writeManifest(columns []string, rows []csvfile.Row) error {
	manifestColumns := slices.Clone(columns)
	if !slices.Contains(manifestColumns, OutputFilenameColumn) {
		manifestColumns = append(manifestColumns, OutputFilenameColumn)
	}

	manifest := &csvfile.Table{Columns: manifestColumns, Rows: rows}
	path := filepath.Join(d.outputDir, ManifestFilename)
	if err := csvfile.WriteTable(path, manifest); err != nil {
		return fmt.Errorf("マニフェストの書き込みに失敗しました: %w", err)
	}
	return nil
}
