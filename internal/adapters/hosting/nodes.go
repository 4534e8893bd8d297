package hosting

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Node — элемент формата Telegraph: строка либо тег с атрибутами и потомками.
type Node any

// Element — тег Telegraph.
type Element struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []Node            `json:"children,omitempty"`
}

// telegraphTags — теги, которые понимает Telegraph, и их замены.
var telegraphTags = map[string]string{
	"a": "a", "aside": "aside", "b": "b", "blockquote": "blockquote", "br": "br",
	"code": "code", "em": "em", "figcaption": "figcaption", "figure": "figure",
	"h3": "h3", "h4": "h4", "hr": "hr", "i": "i", "img": "img", "li": "li",
	"ol": "ol", "p": "p", "pre": "pre", "s": "s", "strong": "strong", "u": "u",
	"ul": "ul", "iframe": "iframe", "video": "video",
	"h1": "h3", "h2": "h3", "h5": "h4", "h6": "h4", "q": "blockquote",
}

// HTMLToNodes разбирает HTML-фрагмент в узлы Telegraph. Неизвестные теги
// разворачиваются в своих потомков, script и style отбрасываются.
func HTMLToNodes(fragment string) ([]Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	parsed, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return nil, err
	}
	var out []Node
	for _, n := range parsed {
		out = append(out, convert(n)...)
	}
	return trimEmpty(out), nil
}

func convert(n *html.Node) []Node {
	switch n.Type {
	case html.TextNode:
		if n.Data == "" {
			return nil
		}
		return []Node{n.Data}
	case html.ElementNode:
	default:
		return nil
	}
	if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
		return nil
	}
	var children []Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		children = append(children, convert(c)...)
	}
	tag, ok := telegraphTags[n.Data]
	if !ok {
		return children
	}
	el := Element{Tag: tag, Children: children}
	for _, a := range n.Attr {
		if a.Key == "href" || a.Key == "src" {
			if el.Attrs == nil {
				el.Attrs = map[string]string{}
			}
			el.Attrs[a.Key] = a.Val
		}
	}
	if tag == "img" && el.Attrs["src"] == "" {
		return nil
	}
	return []Node{el}
}

// trimEmpty убирает пробельные строки верхнего уровня между блоками.
func trimEmpty(nodes []Node) []Node {
	out := nodes[:0]
	for _, n := range nodes {
		if s, ok := n.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, n)
	}
	return out
}
