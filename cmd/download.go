package cmd

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shouni/go-csv-fetch/internal/pipeline"
	"github.com/shouni/go-csv-fetch/pkg/csvfile"
)

// downloadサブコマンドのフラグ変数
var (
	inputPath    string // --input 入力CSVのパス
	urlColumn    string // --url_column URLを保持する列名
	nameColumn   string // --name_column 出力名の元になる列名
	outputDir    string // --output_dir 出力ディレクトリ
	maxDownloads int    // --max_downloads 成功数の上限 (0 = 無制限)
)

// applyDownloadConfig は、--config で与えられた設定値で未指定のフラグを補完します。
func applyDownloadConfig(cmd *cobra.Command) {
	cfg := GetAppConfig()
	if cfg == nil {
		return
	}
	if !cmd.Flags().Changed("url_column") && cfg.Download.URLColumn != "" {
		urlColumn = cfg.Download.URLColumn
	}
	if !cmd.Flags().Changed("name_column") && cfg.Download.NameColumn != "" {
		nameColumn = cfg.Download.NameColumn
	}
	if !cmd.Flags().Changed("output_dir") && cfg.Download.OutputDir != "" {
		outputDir = cfg.Download.OutputDir
	}
	if !cmd.Flags().Changed("max_downloads") && cfg.Download.MaxDownloads > 0 {
		maxDownloads = cfg.Download.MaxDownloads
	}
}

// validateDownloadFlags は、設定ファイル併用のためフラグの必須チェックをここで行います。
func validateDownloadFlags() error {
	if inputPath == "" {
		return fmt.Errorf("--input フラグは必須です")
	}
	if urlColumn == "" {
		return fmt.Errorf("--url_column フラグは必須です")
	}
	if nameColumn == "" {
		return fmt.Errorf("--name_column フラグは必須です")
	}
	if outputDir == "" {
		return fmt.Errorf("--output_dir フラグは必須です")
	}
	return nil
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "CSVの列で指定されたURLを一括ダウンロードします",
	Long: `入力CSVの各行について、URL列の値をHTTP GETで取得し、名前列の値から導出した
<ベース名>_<連番><拡張子> 形式のファイル名で出力ディレクトリへ書き込みます。
連番は出力ディレクトリの既存ファイルから引き継がれるため、再実行は上書きではなく追記になります。`,
	Args: cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {

		// 1. 設定ファイルによるデフォルトの補完と必須フラグの検証
		applyDownloadConfig(cmd)
		if err := validateDownloadFlags(); err != nil {
			return err
		}

		// 2. 入力CSVの読み込み
		table, err := csvfile.ReadTable(inputPath)
		if err != nil {
			return fmt.Errorf("入力CSVの読み込みエラー: %w", err)
		}
		log.Printf("入力CSVを読み込みました (行数: %d, 入力: %s)", len(table.Rows), inputPath)

		// 3. 依存性の初期化
		// cmd/root.go で初期化された共有HTTPクライアントを使用。
		// ユーザー指定の --timeout と --max-retries が反映されます。
		client := GetGlobalClient()
		if client == nil {
			return fmt.Errorf("HTTPクライアントが初期化されていません。rootコマンドのPreRunを確認してください")
		}

		downloader, err := pipeline.NewDownloader(client, urlColumn, nameColumn, outputDir, maxDownloads)
		if err != nil {
			return fmt.Errorf("Downloaderの初期化エラー: %w", err)
		}

		// 4. メインロジックの実行 (Ctrl+Cで中断可能なコンテキストを設定)
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		summary, err := downloader.Run(ctx, table)

		// 5. 結果の出力（中断やエラー時も、そこまでの集計は表示する）
		if summary != nil {
			summary.Print()
		}
		if err != nil {
			return fmt.Errorf("ダウンロード処理の実行エラー: %w", err)
		}

		return nil
	},
}

func init() {
	downloadCmd.Flags().StringVar(&inputPath, "input", "", "URLを含むCSVファイルのパス")
	downloadCmd.Flags().StringVar(&urlColumn, "url_column", "", "ダウンロード対象のURLを保持する列名")
	downloadCmd.Flags().StringVar(&nameColumn, "name_column", "", "出力ファイル名の元になる列名")
	downloadCmd.Flags().StringVar(&outputDir, "output_dir", "", "出力ディレクトリ（存在しない場合は作成されます）")
	downloadCmd.Flags().IntVar(&maxDownloads, "max_downloads", 0, "成功したダウンロード数の上限 (0 = 無制限)")
}
