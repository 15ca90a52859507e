package main

import (
	"github.com/shouni/go-csv-fetch/cmd"
)

// main は、CLIのエントリポイントです。
// コマンドの定義と実行はすべて cmd パッケージに委譲します。
func main() {
	cmd.Execute()
}
