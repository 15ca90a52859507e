package naming

import (
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	textUtils "github.com/shouni/go-utils/text"
)

const (
	// SequenceWidth は、連番部分のゼロ詰め桁数です。1000件を超えた場合は自然に桁が増えます。
	SequenceWidth = 3

	// FallbackBaseName は、サニタイズの結果が空文字列になった場合に使用する代替名です。
	FallbackBaseName = "unnamed"
)

// nonAlnumPattern は、ベース名として許可しない文字の連続（英小文字と数字以外）にマッチします。
var nonAlnumPattern = regexp.MustCompile(`[^a-z0-9]+`)

// filenamePattern は、<base>_<NNN><ext> 形式の出力ファイル名にマッチします。
// 連番は3桁以上、拡張子はドットを含む末尾部分で、省略されている場合もあります。
var filenamePattern = regexp.MustCompile(`^(.+)_([0-9]{3,})(\.[^.]+)?$`)

// Sanitize は、名前列の生の値をファイルシステム上で安全なベース名へ変換します。
// 空白の正規化後に小文字化し、英小文字と数字以外の連続をアンダースコア1つに置換します。
// 結果が空になった場合は FallbackBaseName を返します。
func Sanitize(raw string) string {
	normalized := textUtils.NormalizeText(raw)
	base := nonAlnumPattern.ReplaceAllString(strings.ToLower(normalized), "_")
	base = strings.Trim(base, "_")
	if base == "" {
		return FallbackBaseName
	}
	return base
}

// Format は、ベース名・連番・拡張子から出力ファイル名 <base>_<NNN><ext> を組み立てます。
// ext はドットを含む形式（例: ".jpg"）で、空文字列の場合は拡張子なしとなります。
func Format(base string, seq int, ext string) string {
	return fmt.Sprintf("%s_%0*d%s", base, SequenceWidth, seq, ext)
}

// Entry は、出力ファイル名から復元された (ベース名, 連番, 拡張子) の組です。
type Entry struct {
	BaseName string
	Seq      int
	Ext      string // ドットを含む拡張子。拡張子なしの場合は空文字列
}

// Parse は、ファイル名を出力ファイルの命名規則として解析します。
// 規則に一致しないファイル名の場合は ok=false を返します（エラーではありません）。
func Parse(filename string) (entry Entry, ok bool) {
	matches := filenamePattern.FindStringSubmatch(filename)
	if matches == nil {
		return Entry{}, false
	}
	seq, err := strconv.Atoi(matches[2])
	if err != nil {
		return Entry{}, false
	}
	return Entry{BaseName: matches[1], Seq: seq, Ext: matches[3]}, true
}

// Counter は、ベース名ごとの連番の割り当て状態を保持します。
// 連番はベース名ごとに1から始まり、割り当てのたびに1ずつ増加します。
type Counter struct {
	max map[string]int
}

// NewCounter は、空のCounterを生成します。
func NewCounter() *Counter {
	return &Counter{max: make(map[string]int)}
}

// Next は、指定されたベース名の次の連番を割り当てて返します。
func (c *Counter) Next(base string) int {
	c.max[base]++
	return c.max[base]
}

// Current は、指定されたベース名に割り当て済みの最大連番を返します。未割り当ての場合は0です。
func (c *Counter) Current(base string) int {
	return c.max[base]
}

// record は、観測された連番が既知の最大値より大きい場合にそれを記録します。
func (c *Counter) record(base string, seq int) {
	if seq > c.max[base] {
		c.max[base] = seq
	}
}

// ScanDir は、出力ディレクトリの一覧から既存の出力ファイルを走査し、
// ベース名ごとの最大連番を引き継いだCounterを返します。
// これにより再実行時は既存ファイルを上書きせず、連番が続きから割り当てられます。
// ディレクトリが存在しない場合は空のCounterを返します。
func ScanDir(dir string) (*Counter, error) {
	counter := NewCounter()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return counter, nil
		}
		return nil, fmt.Errorf("出力ディレクトリの走査に失敗しました (%s): %w", dir, err)
	}

	for _, dirEntry := range entries {
		if dirEntry.IsDir() {
			continue
		}
		if parsed, ok := Parse(dirEntry.Name()); ok {
			counter.record(parsed.BaseName, parsed.Seq)
		}
	}
	return counter, nil
}

// ExtensionFromURL は、URLのパス末尾から拡張子（ドットを含む小文字）を抽出します。
// パスに拡張子がない場合は空文字列を返します。
func ExtensionFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(filepath.Ext(parsed.Path))
}

// preferredExtensions は、よく使われるメディアタイプに対する拡張子の対応表です。
// mime.ExtensionsByType は候補を辞書順で返すため（例: image/jpeg → ".jpe"）、
// 一般的なタイプは決定的な拡張子をここで固定します。
var preferredExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/svg+xml":   ".svg",
	"text/html":       ".html",
	"text/plain":      ".txt",
	"text/csv":        ".csv",
	"application/pdf": ".pdf",
}

// ExtensionFromContentType は、Content-Typeヘッダーの値から拡張子を推定します。
// URLに拡張子がない場合のフォールバックとして使用します。推定できない場合は空文字列を返します。
func ExtensionFromContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType == "" {
		return ""
	}
	if ext, ok := preferredExtensions[mediaType]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
