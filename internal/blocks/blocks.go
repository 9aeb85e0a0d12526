// Package blocks 在标记树中定位可扩写的最内层文本容器。
// 仅计算字节区间与内文，绝不改写输入；拼接由编排器在原始字节流上完成，
// 因此区间之外的每个字节（属性、命名空间、注释、处理指令）原样保留。
package blocks

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"dipex/pkg/contract"
)

// Schema 选择结构族。
type Schema string

const (
	// SchemaAuto: 两族标签并集（默认，与原始数据混排兼容）。
	SchemaAuto Schema = "auto"
	// SchemaTEI: TEI 式块元素（段、行、片段、表格单元等，本地名匹配，任意命名空间）。
	SchemaTEI Schema = "tei"
	// SchemaPAGE: PAGE 式，仅行/区域容器下的 Unicode 文本内容元素。
	SchemaPAGE Schema = "page"
)

var teiTags = map[string]bool{
	"p": true, "ab": true, "l": true, "seg": true, "item": true,
	"td": true, "th": true, "figDesc": true, "head": true,
}

var pageTags = map[string]bool{"Unicode": true}

// Tags 返回结构族对应的本地名集合（只读使用）。
func Tags(s Schema) map[string]bool {
	switch s {
	case SchemaTEI:
		return teiTags
	case SchemaPAGE:
		return pageTags
	default:
		u := make(map[string]bool, len(teiTags)+len(pageTags))
		for k := range teiTags {
			u[k] = true
		}
		for k := range pageTags {
			u[k] = true
		}
		return u
	}
}

type frame struct {
	local      string
	eligible   bool
	innerStart int64
	text       []byte
	hasDesc    bool // 存在可扩写后代
}

// Find 走查文档并按文档序返回 Block。可重入、不修改输入。
// 嵌套的可扩写元素仅产出最内层；空白内文仍产出空 Block。
// 解析失败（根本不是良构标记）返回 ErrDocumentParse。
func Find(doc []byte, schema Schema) ([]contract.Block, error) {
	tags := Tags(schema)
	dec := xml.NewDecoder(bytes.NewReader(doc))
	dec.Entity = xml.HTMLEntity

	var stack []*frame
	var out []contract.Block
	seenRoot := false
	for {
		tokStart := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", contract.ErrDocumentParse, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			seenRoot = true
			stack = append(stack, &frame{
				local:      t.Name.Local,
				eligible:   tags[t.Name.Local],
				innerStart: dec.InputOffset(),
			})
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: unbalanced end element", contract.ErrDocumentParse)
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !f.eligible {
				continue
			}
			// 任何可扩写元素闭合时，其全部可扩写祖先都被降级为容器
			for _, a := range stack {
				if a.eligible {
					a.hasDesc = true
				}
			}
			if f.hasDesc {
				continue
			}
			out = append(out, contract.Block{
				Index:   len(out),
				Element: f.local,
				Start:   f.innerStart,
				End:     tokStart,
				Text:    string(f.text),
			})
		case xml.CharData:
			// 扁平内文包含非可扩写后代的文本（与拼接语义一致）
			for _, fr := range stack {
				fr.text = append(fr.text, t...)
			}
		}
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("%w: unclosed element", contract.ErrDocumentParse)
	}
	if !seenRoot {
		return nil, fmt.Errorf("%w: no root element", contract.ErrDocumentParse)
	}
	return out, nil
}

// RootName 返回文档根元素的本地名；无根或非良构时返回 ErrDocumentParse。
// 用于整文档模式下校验后端响应与输入同根。
func RootName(doc []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	dec.Entity = xml.HTMLEntity
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("%w: %v", contract.ErrDocumentParse, err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}

// WellFormed 完整走查一遍以确认良构。
func WellFormed(doc []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	dec.Entity = xml.HTMLEntity
	depth := 0
	seenRoot := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %v", contract.ErrDocumentParse, err)
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
			seenRoot = true
		case xml.EndElement:
			depth--
		}
	}
	if depth != 0 || !seenRoot {
		return fmt.Errorf("%w: no well-formed root", contract.ErrDocumentParse)
	}
	return nil
}
