package barcode

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// groupSeparator は可変長AIの終端 (FNC1) として送られてくる制御文字です。
const groupSeparator = '\x1d'

var ErrEmpty = errors.New("empty barcode")

// Result はGS1要素文字列の解析結果です。
type Result struct {
	GTIN   string // (01) 14桁
	Lot    string // (10) ロット
	Expiry string // (17) YYMMDD をそのまま保持
}

// Normalize はスキャナーの入力を比較可能な形にそろえます。
// キーボードウェッジ端末が送る全角文字を半角にし、前後の空白と
// 区切り以外の制御文字を取り除きます。
func Normalize(code string) string {
	folded := width.Fold.String(code)
	folded = strings.TrimSpace(folded)
	return strings.Map(func(r rune) rune {
		if r == groupSeparator {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, folded)
}

// Parse はGS1要素文字列 "(01)...(10)..." または括弧なしの "01..." を解析します。
// 13桁以下はJAN/EANとして14桁に0埋めします。
func Parse(code string) (*Result, error) {
	code = Normalize(code)
	if code == "" {
		return nil, ErrEmpty
	}
	if strings.HasPrefix(code, "(") {
		code = flattenParens(code)
	}
	if isDigits(code) && len(code) <= 14 {
		return &Result{GTIN: strings.Repeat("0", 14-len(code)) + code}, nil
	}
	if !strings.HasPrefix(code, "01") {
		return nil, fmt.Errorf("barcode %q is not a GS1 element string", code)
	}
	return parseElements(code)
}

// "(01)0123(10)AB" を "010123\x1d10AB" に変換します。
func flattenParens(code string) string {
	var b strings.Builder
	first := true
	for len(code) > 0 {
		if code[0] != '(' {
			b.WriteString(code)
			break
		}
		end := strings.IndexByte(code, ')')
		if end < 0 {
			b.WriteString(code)
			break
		}
		if !first {
			b.WriteRune(groupSeparator)
		}
		first = false
		b.WriteString(code[1:end])
		code = code[end+1:]
		next := strings.IndexByte(code, '(')
		if next < 0 {
			b.WriteString(code)
			break
		}
		b.WriteString(code[:next])
		code = code[next:]
	}
	return b.String()
}

func parseElements(code string) (*Result, error) {
	res := &Result{}
	i := 0
	for i < len(code) {
		if code[i] == groupSeparator {
			i++
			continue
		}
		if i+2 > len(code) {
			break
		}
		switch code[i : i+2] {
		case "01":
			if i+16 > len(code) {
				return nil, fmt.Errorf("AI(01) data too short in %q", code)
			}
			res.GTIN = code[i+2 : i+16]
			i += 16
		case "17":
			if i+8 > len(code) {
				return nil, fmt.Errorf("AI(17) data too short in %q", code)
			}
			res.Expiry = code[i+2 : i+8]
			i += 8
		case "10":
			start := i + 2
			end := strings.IndexRune(code[start:], groupSeparator)
			if end < 0 {
				end = len(code)
			} else {
				end += start
			}
			if end-start > 20 {
				end = start + 20
			}
			res.Lot = code[start:end]
			i = end
		default:
			// 未対応のAIは次の区切りまで読み飛ばします
			next := strings.IndexRune(code[i:], groupSeparator)
			if next < 0 {
				i = len(code)
			} else {
				i += next
			}
		}
	}
	if res.GTIN == "" {
		return nil, fmt.Errorf("no AI(01) GTIN in %q", code)
	}
	return res, nil
}

// Candidates は明細のバーコードと照合する候補を返します。
// 正規化した入力そのもの、GTIN、GTINの先頭0を落としたEAN-13の順です。
func Candidates(code string) []string {
	norm := Normalize(code)
	if norm == "" {
		return nil
	}
	out := []string{norm}
	add := func(s string) {
		for _, c := range out {
			if c == s {
				return
			}
		}
		out = append(out, s)
	}
	if res, err := Parse(norm); err == nil {
		add(res.GTIN)
		if strings.HasPrefix(res.GTIN, "0") {
			add(res.GTIN[1:])
		}
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
