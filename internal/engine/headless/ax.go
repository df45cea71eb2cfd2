package headless

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// axNode is one node of the accessibility tree
type axNode struct {
	Role     string      `json:"role"`
	Name     string      `json:"name"`
	Value    interface{} `json:"value,omitempty"`
	Focused  bool        `json:"focused,omitempty"`
	Checked  string      `json:"checked,omitempty"`
	Level    int         `json:"level,omitempty"`
	Children []*axNode   `json:"children,omitempty"`
}

var tagRoles = map[string]string{
	"a":        "link",
	"button":   "pushbutton",
	"h1":       "heading",
	"h2":       "heading",
	"h3":       "heading",
	"h4":       "heading",
	"h5":       "heading",
	"h6":       "heading",
	"img":      "graphic",
	"ul":       "list",
	"ol":       "list",
	"li":       "listitem",
	"p":        "paragraph",
	"table":    "table",
	"tr":       "row",
	"td":       "cell",
	"th":       "columnheader",
	"textarea": "entry",
	"select":   "combobox",
	"option":   "option",
	"form":     "form",
	"nav":      "navigation",
	"main":     "main",
	"label":    "label",
	"iframe":   "internal frame",
}

var inputRoles = map[string]string{
	"checkbox": "checkbutton",
	"radio":    "radiobutton",
	"button":   "pushbutton",
	"submit":   "pushbutton",
	"reset":    "pushbutton",
	"range":    "slider",
}

var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"head":     true,
	"noscript": true,
	"template": true,
}

// accessibilityTree builds the tree rooted at the document. focused is
// the element that currently has focus, if any.
func accessibilityTree(doc *document, focused *html.Node) *axNode {
	root := &axNode{Role: "document", Name: doc.title()}
	body := doc.dom.Find("body")
	for _, n := range body.Nodes {
		root.Children = append(root.Children, axChildren(doc, n, focused)...)
	}
	return root
}

func axChildren(doc *document, parent *html.Node, focused *html.Node) []*axNode {
	var out []*axNode
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, axNodesFor(doc, c, focused)...)
	}
	return out
}

// axNodesFor returns the nodes n contributes. Elements without a role
// are flattened into their children.
func axNodesFor(doc *document, n *html.Node, focused *html.Node) []*axNode {
	switch n.Type {
	case html.TextNode:
		text := strings.Join(strings.Fields(n.Data), " ")
		if text == "" {
			return nil
		}
		return []*axNode{{Role: "text leaf", Name: text}}
	case html.ElementNode:
	default:
		return nil
	}
	if skippedTags[n.Data] {
		return nil
	}
	sel := doc.dom.FindNodes(n)
	if hidden(sel) {
		return nil
	}

	role := roleOf(sel, n)
	if role == "" {
		return axChildren(doc, n, focused)
	}

	node := &axNode{Role: role, Name: accessibleName(sel, n), Focused: n == focused}
	switch role {
	case "heading":
		node.Level = int(n.Data[1] - '0')
	case "checkbutton", "radiobutton":
		node.Checked = "false"
		if _, ok := sel.Attr("checked"); ok {
			node.Checked = "true"
		}
	case "entry", "slider":
		if value, ok := sel.Attr("value"); ok {
			node.Value = value
		} else if n.Data == "textarea" {
			node.Value = sel.Text()
		}
	}

	// Leaf controls take their name from content
	switch role {
	case "link", "pushbutton", "heading", "option", "entry", "graphic":
		return []*axNode{node}
	}
	node.Children = axChildren(doc, n, focused)
	return []*axNode{node}
}

func hidden(sel *goquery.Selection) bool {
	if _, ok := sel.Attr("hidden"); ok {
		return true
	}
	if v, _ := sel.Attr("aria-hidden"); v == "true" {
		return true
	}
	style, _ := sel.Attr("style")
	return strings.Contains(strings.ReplaceAll(style, " ", ""), "display:none")
}

func roleOf(sel *goquery.Selection, n *html.Node) string {
	if role, ok := sel.Attr("role"); ok && role != "" {
		return role
	}
	if n.Data == "input" {
		typ, _ := sel.Attr("type")
		typ = strings.ToLower(typ)
		if typ == "hidden" {
			return ""
		}
		if role, ok := inputRoles[typ]; ok {
			return role
		}
		return "entry"
	}
	return tagRoles[n.Data]
}

func accessibleName(sel *goquery.Selection, n *html.Node) string {
	for _, attr := range []string{"aria-label", "alt", "title", "placeholder"} {
		if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	switch n.Data {
	case "input", "textarea", "select", "ul", "ol", "table", "form", "iframe":
		return ""
	}
	return strings.Join(strings.Fields(sel.Text()), " ")
}
