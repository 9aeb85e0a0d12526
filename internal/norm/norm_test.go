package norm

import "testing"

// 组合记号序列与预组合字形归一后必须相等
func TestNFCEquivalence(t *testing.T) {
	precomposed := "grã" // U+00E3
	combining := "grã"  // a + 组合波浪号
	if NFC(precomposed) != NFC(combining) {
		t.Fatalf("NFC 等价失败: %q vs %q", NFC(precomposed), NFC(combining))
	}
}

// 幂等性：二次应用结果不变
func TestNFCIdempotent(t *testing.T) {
	in := "⁊c̃ dns xp̄s"
	once := NFC(in)
	if NFC(once) != once {
		t.Fatalf("NFC 非幂等")
	}
}

func TestAppearanceKeyFolding(t *testing.T) {
	cases := []struct {
		a, b string
	}{
		{"foo–bar", "foo-bar"},     // en dash vs hyphen
		{"foo\u200bbar", "foobar"}, // 零宽空格剔除
		{"\ufeffdns", "dns"},       // BOM 剔除
		{"‘dns’", "'dns'"},         // 弯引号折叠
		{"a  b\tc", "a b c"},       // 空白压缩
		{"  padded  ", "padded"},   // 修剪
	}
	for _, c := range cases {
		if AppearanceKey(c.a) != AppearanceKey(c.b) {
			t.Fatalf("外观键不相等: %q=%q vs %q=%q", c.a, AppearanceKey(c.a), c.b, AppearanceKey(c.b))
		}
	}
}

// 不同字形不得折叠相等
func TestAppearanceKeyDistinct(t *testing.T) {
	if AppearanceKey("dns") == AppearanceKey("dms") {
		t.Fatalf("不同文本折叠为同键")
	}
}
