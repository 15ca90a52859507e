package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config は、設定ファイル（YAML）のルート構造です。
// コマンドラインフラグのデフォルト値を与えるためのもので、
// ユーザーが明示的に指定したフラグが常に優先されます。
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Download DownloadConfig `yaml:"download"`
	Filter   FilterConfig   `yaml:"filter"`
}

// HTTPConfig は、HTTPクライアントの設定です。
type HTTPConfig struct {
	TimeoutSec int `yaml:"timeout_sec"` // HTTPリクエストのタイムアウト時間（秒）
	MaxRetries int `yaml:"max_retries"` // リトライ最大回数（デフォルト0 = リトライなし）
}

// DownloadConfig は、downloadサブコマンドのデフォルト値です。
type DownloadConfig struct {
	URLColumn    string `yaml:"url_column"`
	NameColumn   string `yaml:"name_column"`
	OutputDir    string `yaml:"output_dir"`
	MaxDownloads int    `yaml:"max_downloads"`
}

// FilterConfig は、filterサブコマンドのデフォルト値です。
type FilterConfig struct {
	MaxCountPerBaseName int    `yaml:"max_count_per_base_name"`
	FilterColumn        string `yaml:"filter_column"`
	ExcludedValuesFile  string `yaml:"excluded_values_file"`
}

// Load は、指定されたパスからYAML設定ファイルを読み込みます。
// ファイル内の ${VAR} 形式の参照は環境変数の値で展開されます。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込みに失敗しました (%s): %w", path, err)
	}

	// ${VAR} を環境変数で展開
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルの解析に失敗しました (%s): %w", path, err)
	}
	return &cfg, nil
}
