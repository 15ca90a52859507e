package types

// DownloadTask は、CSVの1行から導出されたダウンロード対象を表します。
// 行ごとに生成され、フェッチ処理によって即座に消費されます。永続化はされません。
type DownloadTask struct {
	URL      string // ダウンロード対象のURL
	BaseName string // 名前列の値をサニタイズしたベース名
}

// DownloadResult は、特定のタスクのダウンロード結果、またはその処理中に発生したエラーを保持します。
// これは、Downloaderの出力、マニフェスト書き込みの入力として利用されます。
type DownloadResult struct {
	Task           DownloadTask
	OutputFilename string // 書き込まれたファイル名 (失敗時は空文字列)
	Error          error  // 処理中に発生したエラー
}
