package platforms

import (
	"fmt"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
)

// Ricos is Wix's rich-content document format: a tree of typed nodes whose
// leaves are TEXT runs carrying decorations.
type ricosDocument struct {
	Nodes []ricosNode `json:"nodes"`
}

type ricosNode struct {
	Type        string        `json:"type"`
	ID          string        `json:"id"`
	Nodes       []ricosNode   `json:"nodes"`
	TextData    *ricosText    `json:"textData,omitempty"`
	HeadingData *ricosHeading `json:"headingData,omitempty"`
	ImageData   *ricosImage   `json:"imageData,omitempty"`
}

type ricosText struct {
	Text        string            `json:"text"`
	Decorations []ricosDecoration `json:"decorations"`
}

type ricosDecoration struct {
	Type     string     `json:"type"`
	LinkData *ricosLink `json:"linkData,omitempty"`
}

type ricosLink struct {
	Link struct {
		URL string `json:"url"`
	} `json:"link"`
}

type ricosHeading struct {
	Level int `json:"level"`
}

type ricosImage struct {
	Image struct {
		Src struct {
			URL string `json:"url"`
		} `json:"src"`
	} `json:"image"`
	AltText string `json:"altText,omitempty"`
}

// htmlToRicos converts article HTML into Ricos block nodes. Formatting the
// format cannot express is reduced to plain text.
func htmlToRicos(html string) (ricosDocument, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ricosDocument{}, fmt.Errorf("parse html: %w", err)
	}
	return ricosDocument{Nodes: ricosBlocks(doc.Find("body"))}, nil
}

func ricosBlocks(s *goquery.Selection) []ricosNode {
	var (
		nodes   []ricosNode
		pending []ricosNode
	)
	flush := func() {
		if runs := trimRuns(pending); len(runs) > 0 {
			nodes = append(nodes, newRicosNode("PARAGRAPH", runs))
		}
		pending = nil
	}

	s.Contents().Each(func(_ int, n *goquery.Selection) {
		name := goquery.NodeName(n)
		switch name {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			flush()
			node := newRicosNode("HEADING", trimRuns(ricosInline(n, nil)))
			node.HeadingData = &ricosHeading{Level: int(name[1] - '0')}
			nodes = append(nodes, node)
		case "p":
			flush()
			if runs := trimRuns(ricosInline(n, nil)); len(runs) > 0 {
				nodes = append(nodes, newRicosNode("PARAGRAPH", runs))
			}
		case "div", "section", "article", "figure", "header", "footer":
			flush()
			nodes = append(nodes, ricosBlocks(n)...)
		case "ul", "ol":
			flush()
			listType := "BULLETED_LIST"
			if name == "ol" {
				listType = "ORDERED_LIST"
			}
			var items []ricosNode
			n.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
				items = append(items, newRicosNode("LIST_ITEM", ricosBlocks(li)))
			})
			if len(items) > 0 {
				nodes = append(nodes, newRicosNode(listType, items))
			}
		case "blockquote":
			flush()
			if inner := ricosBlocks(n); len(inner) > 0 {
				nodes = append(nodes, newRicosNode("BLOCKQUOTE", inner))
			}
		case "pre":
			flush()
			code := strings.TrimRight(n.Text(), "\n")
			nodes = append(nodes, newRicosNode("CODE_BLOCK", []ricosNode{ricosTextNode(code, nil)}))
		case "img":
			flush()
			if src, _ := n.Attr("src"); src != "" {
				node := newRicosNode("IMAGE", nil)
				node.ImageData = &ricosImage{}
				node.ImageData.Image.Src.URL = src
				node.ImageData.AltText, _ = n.Attr("alt")
				nodes = append(nodes, node)
			}
		case "hr":
			flush()
			nodes = append(nodes, newRicosNode("DIVIDER", nil))
		case "#comment", "script", "style":
		default:
			pending = append(pending, ricosInline(n, nil)...)
		}
	})
	flush()
	return nodes
}

// ricosInline flattens inline markup into TEXT runs, accumulating the
// decorations of every enclosing element.
func ricosInline(n *goquery.Selection, decorations []ricosDecoration) []ricosNode {
	switch goquery.NodeName(n) {
	case "#text":
		text := collapseSpace(n.Text())
		if text == "" {
			return nil
		}
		return []ricosNode{ricosTextNode(text, decorations)}
	case "#comment", "script", "style":
		return nil
	case "br":
		return []ricosNode{ricosTextNode("\n", decorations)}
	case "strong", "b":
		return ricosChildren(n, withDecoration(decorations, ricosDecoration{Type: "BOLD"}))
	case "em", "i":
		return ricosChildren(n, withDecoration(decorations, ricosDecoration{Type: "ITALIC"}))
	case "u":
		return ricosChildren(n, withDecoration(decorations, ricosDecoration{Type: "UNDERLINE"}))
	case "a":
		href, _ := n.Attr("href")
		if href == "" {
			return ricosChildren(n, decorations)
		}
		link := &ricosLink{}
		link.Link.URL = href
		return ricosChildren(n, withDecoration(decorations, ricosDecoration{Type: "LINK", LinkData: link}))
	default:
		return ricosChildren(n, decorations)
	}
}

func ricosChildren(n *goquery.Selection, decorations []ricosDecoration) []ricosNode {
	var runs []ricosNode
	n.Contents().Each(func(_ int, child *goquery.Selection) {
		runs = append(runs, ricosInline(child, decorations)...)
	})
	return runs
}

func withDecoration(decorations []ricosDecoration, d ricosDecoration) []ricosDecoration {
	return append(slices.Clone(decorations), d)
}

// trimRuns strips whitespace at the edges of a paragraph and drops it
// entirely when nothing visible remains.
func trimRuns(runs []ricosNode) []ricosNode {
	visible := false
	for _, r := range runs {
		if r.TextData != nil && strings.TrimSpace(r.TextData.Text) != "" {
			visible = true
			break
		}
	}
	if !visible {
		return nil
	}
	runs = slices.Clone(runs)
	for len(runs) > 0 && strings.TrimSpace(runs[0].TextData.Text) == "" {
		runs = runs[1:]
	}
	for len(runs) > 0 && strings.TrimSpace(runs[len(runs)-1].TextData.Text) == "" {
		runs = runs[:len(runs)-1]
	}
	first := *runs[0].TextData
	first.Text = strings.TrimLeft(first.Text, " ")
	runs[0].TextData = &first
	last := *runs[len(runs)-1].TextData
	last.Text = strings.TrimRight(last.Text, " ")
	runs[len(runs)-1].TextData = &last
	return runs
}

func newRicosNode(nodeType string, children []ricosNode) ricosNode {
	if children == nil {
		children = []ricosNode{}
	}
	return ricosNode{Type: nodeType, ID: uuid.NewString(), Nodes: children}
}

func ricosTextNode(text string, decorations []ricosDecoration) ricosNode {
	if decorations == nil {
		decorations = []ricosDecoration{}
	}
	node := newRicosNode("TEXT", nil)
	node.TextData = &ricosText{Text: text, Decorations: decorations}
	return node
}
