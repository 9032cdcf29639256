// Package blanks は穴埋め問題用に本文から単語を取り除き、復元に必要な位置情報を記録します。
//
// 単語の照合は小文字化と固定の句読点除去のみで行います。
// 短縮形やハイフン語を特別扱いしないため、厳密なトークナイザーではありません。
package blanks

import (
	"regexp"
	"sort"
	"strings"
)

// Placeholder は取り除いた単語の代わりに挿入する記号です。
const Placeholder = "_____"

// punctuation は照合前に取り除く文字の集合です。
const punctuation = `.,!?;:"'()`

// 空白を保持したまま分割するため、空白の連続と非空白の連続を交互に拾います。
// 空白は unicode.IsSpace と同じ範囲（ノーブレークスペースや垂直タブを含む）です。
var tokenPattern = regexp.MustCompile(`[\p{Z}\s\v\x{85}]+|[^\p{Z}\s\v\x{85}]+`)

// Position は取り除いた単語 1 つ分の記録です。
// Position は元の本文におけるバイトオフセットです。
type Position struct {
	Position     int    `json:"position"`
	Word         string `json:"word"`
	OriginalWord string `json:"originalWord"`
	Index        int    `json:"index"`
}

// Normalize は照合用に句読点を取り除き小文字化します。
func Normalize(token string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return -1
		}
		return r
	}, token)
	return strings.ToLower(cleaned)
}

// Blank は text 中の targets に一致する単語をすべて Placeholder に置き換えます。
// 同じ単語が複数回現れた場合はそれぞれ別の Position として記録します。
func Blank(text string, targets []string) (string, []Position) {
	wanted := make(map[string]struct{}, len(targets))
	for _, w := range targets {
		if n := strings.ToLower(strings.TrimSpace(w)); n != "" {
			wanted[n] = struct{}{}
		}
	}

	positions := []Position{}
	if len(wanted) == 0 {
		return text, positions
	}

	modified := text
	position := 0
	offset := 0
	for _, token := range tokenPattern.FindAllString(text, -1) {
		if strings.TrimSpace(token) != "" {
			cleaned := Normalize(token)
			if _, ok := wanted[cleaned]; ok {
				positions = append(positions, Position{
					Position:     position,
					Word:         cleaned,
					OriginalWord: token,
					Index:        len(positions),
				})
				at := position + offset
				modified = modified[:at] + Placeholder + modified[at+len(token):]
				offset += len(Placeholder) - len(token)
			}
		}
		position += len(token)
	}

	return modified, positions
}

// Reconstruct は Blank の結果から元の本文を組み立て直します。
// 位置が Placeholder を指していない記録は無視します。
func Reconstruct(modified string, positions []Position) string {
	ordered := make([]Position, len(positions))
	copy(ordered, positions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	// 先頭から順に戻すと、次の空欄より前は元の本文と一致するため
	// 元の位置をそのまま使える。
	out := modified
	for _, p := range ordered {
		at := p.Position
		if at < 0 || at+len(Placeholder) > len(out) || out[at:at+len(Placeholder)] != Placeholder {
			continue
		}
		out = out[:at] + p.OriginalWord + out[at+len(Placeholder):]
	}
	return out
}
