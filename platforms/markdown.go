package platforms

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLToMarkdown converts article HTML for platforms that only take
// Markdown. Headings, emphasis, links, images, lists, quotes and code are
// translated; anything else contributes its text only.
func HTMLToMarkdown(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return normalizeMarkdown(renderChildren(doc.Find("body"))), nil
}

func renderChildren(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, n *goquery.Selection) {
		b.WriteString(renderNode(n))
	})
	return b.String()
}

func renderNode(n *goquery.Selection) string {
	name := goquery.NodeName(n)
	switch name {
	case "#text":
		return collapseSpace(n.Text())
	case "#comment", "script", "style", "head":
		return ""
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(name[1] - '0')
		return block(strings.Repeat("#", level) + " " + strings.TrimSpace(renderChildren(n)))
	case "p", "div", "section", "article", "figure", "header", "footer":
		return block(strings.TrimSpace(renderChildren(n)))
	case "strong", "b":
		return wrapInline(renderChildren(n), "**")
	case "em", "i":
		return wrapInline(renderChildren(n), "_")
	case "del", "s", "strike":
		return wrapInline(renderChildren(n), "~~")
	case "code":
		return "`" + n.Text() + "`"
	case "pre":
		return renderCodeBlock(n)
	case "a":
		text := strings.TrimSpace(renderChildren(n))
		href, ok := n.Attr("href")
		if !ok || href == "" {
			return text
		}
		if text == "" {
			text = href
		}
		return "[" + text + "](" + href + ")"
	case "img":
		src, _ := n.Attr("src")
		if src == "" {
			return ""
		}
		alt, _ := n.Attr("alt")
		return "![" + alt + "](" + src + ")"
	case "ul", "ol":
		return renderList(n, name == "ol")
	case "blockquote":
		inner := normalizeMarkdown(renderChildren(n))
		lines := strings.Split(inner, "\n")
		for i, line := range lines {
			lines[i] = strings.TrimRight("> "+line, " ")
		}
		return block(strings.Join(lines, "\n"))
	case "br":
		return "  \n"
	case "hr":
		return block("---")
	default:
		return renderChildren(n)
	}
}

func renderCodeBlock(n *goquery.Selection) string {
	lang := languageOf(n)
	if code := n.ChildrenFiltered("code").First(); code.Length() > 0 && lang == "" {
		lang = languageOf(code)
	}
	body := strings.TrimRight(n.Text(), "\n")
	return "\n\n```" + lang + "\n" + body + "\n```\n\n"
}

func languageOf(n *goquery.Selection) string {
	class, _ := n.Attr("class")
	for _, c := range strings.Fields(class) {
		if lang, ok := strings.CutPrefix(c, "language-"); ok {
			return lang
		}
		if lang, ok := strings.CutPrefix(c, "lang-"); ok {
			return lang
		}
	}
	return ""
}

func renderList(n *goquery.Selection, ordered bool) string {
	var items []string
	n.ChildrenFiltered("li").Each(func(i int, li *goquery.Selection) {
		marker := "- "
		if ordered {
			marker = fmt.Sprintf("%d. ", i+1)
		}
		indent := strings.Repeat(" ", len(marker))

		var lines []string
		for _, line := range strings.Split(normalizeMarkdown(renderChildren(li)), "\n") {
			if strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			return
		}
		lines[0] = marker + lines[0]
		for j := 1; j < len(lines); j++ {
			lines[j] = indent + lines[j]
		}
		items = append(items, strings.Join(lines, "\n"))
	})
	if len(items) == 0 {
		return ""
	}
	return block(strings.Join(items, "\n"))
}

func block(content string) string {
	if content == "" {
		return ""
	}
	return "\n\n" + content + "\n\n"
}

func wrapInline(content, marker string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return content
	}
	return marker + trimmed + marker
}

func collapseSpace(text string) string {
	if strings.TrimSpace(text) == "" {
		if text == "" {
			return ""
		}
		return " "
	}
	fields := strings.Fields(text)
	result := strings.Join(fields, " ")
	if startsWithSpace(text) {
		result = " " + result
	}
	if endsWithSpace(text) {
		result += " "
	}
	return result
}

func startsWithSpace(s string) bool { return s != "" && strings.ContainsRune(" \t\n\r", rune(s[0])) }

func endsWithSpace(s string) bool {
	return s != "" && strings.ContainsRune(" \t\n\r", rune(s[len(s)-1]))
}

// normalizeMarkdown drops whitespace-only lines and collapses runs of blank
// lines so that block separators never stack up.
func normalizeMarkdown(md string) string {
	lines := strings.Split(md, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
