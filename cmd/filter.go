package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/shouni/go-csv-fetch/internal/pipeline"
)

// filterサブコマンドのフラグ変数
var (
	originalOutputDir   string // --original_output_dir 評価対象のディレクトリ
	excludedOutputDir   string // --excluded_output_dir 移動先のディレクトリ
	maxCountPerBaseName int    // --max_count_per_base_name ベース名ごとの連番上限 (0 = 無効)
	filterColumn        string // --filter_column 値による除外で参照する列名
	excludedValuesFile  string // --excluded_values_file 行区切りの除外値ファイル
)

// applyFilterConfig は、--config で与えられた設定値で未指定のフラグを補完します。
func applyFilterConfig(cmd *cobra.Command) {
	cfg := GetAppConfig()
	if cfg == nil {
		return
	}
	if !cmd.Flags().Changed("max_count_per_base_name") && cfg.Filter.MaxCountPerBaseName > 0 {
		maxCountPerBaseName = cfg.Filter.MaxCountPerBaseName
	}
	if !cmd.Flags().Changed("filter_column") && cfg.Filter.FilterColumn != "" {
		filterColumn = cfg.Filter.FilterColumn
	}
	if !cmd.Flags().Changed("excluded_values_file") && cfg.Filter.ExcludedValuesFile != "" {
		excludedValuesFile = cfg.Filter.ExcludedValuesFile
	}
}

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "ダウンロード済みディレクトリを件数上限と除外リストで整理します",
	Long: `downloadサブコマンドの出力ディレクトリを走査し、ベース名ごとの連番が上限を超えた
ファイルと、指定列の値が除外リストに含まれる行のファイルを除外ディレクトリへ移動します。
値による除外は、元ディレクトリのマニフェスト (output.csv) があれば行との対応付けに使用し、
なければベース名そのものと照合します。`,
	Args: cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {

		// 1. 設定ファイルによるデフォルトの補完と必須フラグの検証
		applyFilterConfig(cmd)
		if originalOutputDir == "" {
			return fmt.Errorf("--original_output_dir フラグは必須です")
		}
		if excludedOutputDir == "" {
			return fmt.Errorf("--excluded_output_dir フラグは必須です")
		}

		// 2. Filterの初期化（フラグの組み合わせ検証と除外値ファイルの読み込みを含む）
		filter, err := pipeline.NewFilter(
			originalOutputDir,
			excludedOutputDir,
			maxCountPerBaseName,
			filterColumn,
			excludedValuesFile,
		)
		if err != nil {
			return fmt.Errorf("Filterの初期化エラー: %w", err)
		}

		log.Printf("フィルタ処理を開始します (対象: %s, 移動先: %s)", originalOutputDir, excludedOutputDir)

		// 3. メインロジックの実行
		summary, err := filter.Run()

		// 4. 結果の出力（エラー時も、そこまでの移動件数は表示する）
		if summary != nil {
			summary.Print()
		}
		if err != nil {
			return fmt.Errorf("フィルタ処理の実行エラー: %w", err)
		}

		return nil
	},
}

func init() {
	filterCmd.Flags().StringVar(&originalOutputDir, "original_output_dir", "", "評価対象のファイルがあるディレクトリ")
	filterCmd.Flags().StringVar(&excludedOutputDir, "excluded_output_dir", "", "除外したファイルの移動先ディレクトリ")
	filterCmd.Flags().IntVar(&maxCountPerBaseName, "max_count_per_base_name", 0, "ベース名ごとの連番上限 (0 = 無効)")
	filterCmd.Flags().StringVar(&filterColumn, "filter_column", "", "値による除外で参照する列名 (--excluded_values_file と併用)")
	filterCmd.Flags().StringVar(&excludedValuesFile, "excluded_values_file", "", "行区切りの除外値ファイルのパス (--filter_column と併用)")
}
