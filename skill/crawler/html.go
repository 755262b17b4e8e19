package crawler

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Page HTML 提取结果
type Page struct {
	Title string
	Text  string
}

// 不含可见文本的元素
var skipAtoms = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Title:    true, // 单独提取
	atom.Iframe:   true,
}

// 块级元素，前后换行
var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Pre: true, atom.Blockquote: true, atom.Table: true,
}

// ExtractHTML 解析 HTML，返回标题与可见文本（丢弃 script/style 等）。
// 解析失败时退化为原始文本。
func ExtractHTML(body []byte) Page {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return Page{Text: strings.TrimSpace(string(body))}
	}

	var page Page
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.DataAtom == atom.Title && page.Title == "" && n.FirstChild != nil {
				page.Title = strings.TrimSpace(n.FirstChild.Data)
			}
			if skipAtoms[n.DataAtom] {
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
				b.WriteString(text)
				b.WriteByte(' ')
			}
		}
		block := n.Type == html.ElementNode && blockAtoms[n.DataAtom]
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	walk(root)

	page.Text = normalizeWhitespace(b.String())
	return page
}

// normalizeWhitespace 折叠行内空白并去掉空行
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
