package cmd

import (
	"fmt"
	"log"
	"time"

	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"

	"github.com/shouni/go-csv-fetch/pkg/config"
	"github.com/shouni/go-csv-fetch/pkg/httpclient"
)

// --- グローバル定数 ---

const (
	appName           = "csv-fetch"
	defaultTimeoutSec = 30 // 秒
	defaultMaxRetries = 0  // デフォルトはリトライなし（一度失敗したフェッチはその実行ではスキップ）
)

// --- グローバル変数とフラグ構造体 ---

// AppFlags はこのアプリケーション固有の永続フラグを保持
type AppFlags struct {
	TimeoutSec int    // --timeout タイムアウト
	MaxRetries int    // --max-retries リトライ回数
	ConfigPath string // --config 設定ファイル（YAML）のパス
}

var Flags AppFlags                  // アプリケーション固有フラグにアクセスするためのグローバル変数
var appConfig *config.Config        // --config で読み込まれた設定（未指定の場合は nil）
var globalClient *httpclient.Client // 全サブコマンドで共有するHTTPクライアント

// --- 初期化とロジック (clibaseへのコールバックとして利用) ---

// addAppPersistentFlags は、アプリケーション固有の永続フラグをルートコマンドに追加します。
func addAppPersistentFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().IntVar(
		&Flags.TimeoutSec,
		"timeout",
		defaultTimeoutSec,
		"HTTPリクエストのタイムアウト時間（秒）",
	)
	rootCmd.PersistentFlags().IntVar(
		&Flags.MaxRetries,
		"max-retries",
		defaultMaxRetries,
		"HTTPリクエストのリトライ最大回数（デフォルト0 = リトライなし）",
	)
	rootCmd.PersistentFlags().StringVar(
		&Flags.ConfigPath,
		"config",
		"",
		"フラグのデフォルト値を与えるYAML設定ファイルのパス",
	)
}

// initAppPreRunE は、clibase共通処理の後に実行される、アプリケーション固有のPersistentPreRunEです。
// NOTE: clibaseの PersistentPreRunE チェーンにより、clibase.Flags.Verbose はこの関数実行前に設定済み
func initAppPreRunE(cmd *cobra.Command, args []string) error {

	// 設定ファイルが指定されていれば読み込み、ユーザーが明示していないフラグのデフォルトを補完する
	if Flags.ConfigPath != "" {
		cfg, err := config.Load(Flags.ConfigPath)
		if err != nil {
			return fmt.Errorf("設定ファイルの読み込みエラー: %w", err)
		}
		appConfig = cfg

		if !cmd.Flags().Changed("timeout") && cfg.HTTP.TimeoutSec > 0 {
			Flags.TimeoutSec = cfg.HTTP.TimeoutSec
		}
		if !cmd.Flags().Changed("max-retries") && cfg.HTTP.MaxRetries > 0 {
			Flags.MaxRetries = cfg.HTTP.MaxRetries
		}
	}

	timeout := time.Duration(Flags.TimeoutSec) * time.Second

	// clibase.Flags の利用
	if clibase.Flags.Verbose {
		log.Printf("HTTPクライアントのタイムアウトを設定しました (Timeout: %s)。", timeout)
		log.Printf("HTTPクライアントのリトライ回数を設定しました (MaxRetries: %d)。", Flags.MaxRetries)
	}

	// 共有HTTPクライアントの初期化
	globalClient = httpclient.New(
		timeout,
		httpclient.WithMaxRetries(uint64(Flags.MaxRetries)),
	)

	return nil
}

// GetGlobalClient は、初期化された共有HTTPクライアントを返す関数 (DIの代わり)
func GetGlobalClient() *httpclient.Client {
	return globalClient
}

// GetAppConfig は、--config で読み込まれた設定を返します。未指定の場合は nil です。
func GetAppConfig() *config.Config {
	return appConfig
}

// --- エントリポイント ---

// Execute は、アプリケーションを実行するメイン関数です。clibaseのExecuteを使用する。
func Execute() {
	// clibase.Execute を使用して、アプリケーションの初期化、フラグ設定、サブコマンドの登録を一括で行う
	clibase.Execute(
		appName,
		addAppPersistentFlags, // カスタムフラグの追加コールバック
		initAppPreRunE,        // カスタムPersistentPreRunEコールバック
		// サブコマンドのリスト
		downloadCmd,
		filterCmd,
	)
	// clibase.Execute() の中で os.Exit(1) が処理されるため、ここでは不要
}
