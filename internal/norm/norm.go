// Package norm 提供缩写键与扫描文本的统一归一化。
// NFC 使组合记号序列与预组合等价字形比较相等；AppearanceKey 做更宽松的
// “看起来相同”折叠，用于学习对的去重与保护键匹配。
package norm

import (
	"strings"
	"unicode"

	xnorm "golang.org/x/text/unicode/norm"
)

// NFC 做规范组合归一。纯函数、幂等、永不失败；
// 不支持的码点原样通过。
func NFC(s string) string {
	if xnorm.NFC.IsNormalString(s) {
		return s
	}
	return xnorm.NFC.String(s)
}

// 外观折叠表：破折号族、弯引号族折叠为 ASCII 对应，窄/不断行空格折叠为普通空格。
var appearanceFold = map[rune]rune{
	'‐': '-', '‑': '-', '‒': '-',
	'–': '-', '—': '-', '−': '-',
	'‘': '\'', '’': '\'', '‛': '\'', '′': '\'',
	'“': '"', '”': '"', '‟': '"', '″': '"',
	'\u00a0': ' ', '\u202f': ' ', '\u2009': ' ',
}

// 零宽字符（含 BOM）：比较键中一律剔除。
func isZeroWidth(r rune) bool {
	switch r {
	case '\u200b', '\u200c', '\u200d', '\ufeff':
		return true
	}
	return false
}

// AppearanceKey 归一化到“外观相同”的比较键（非严格 Unicode 相等）：
// NFKC、剔除零宽字符、折叠破折号/引号/空格变体、压缩空白并修剪。
func AppearanceKey(s string) string {
	if s == "" {
		return ""
	}
	folded := xnorm.NFKC.String(s)
	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		if isZeroWidth(r) {
			continue
		}
		if f, ok := appearanceFold[r]; ok {
			r = f
		}
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
