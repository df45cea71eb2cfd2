package headless

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"mime"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/google/uuid"
	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

const blankURL = "about:blank"

// document is a parsed page
type document struct {
	url    string
	dom    *goquery.Document
	frames []*frame // Child frames in document order
}

// frame is a browsing context inside the tab
type frame struct {
	id     string
	parent string
	name   string
	url    string
}

func newFrameID() string {
	return uuid.NewString()
}

func blankDocument() *document {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader("<html><head></head><body></body></html>"))
	return &document{url: blankURL, dom: doc}
}

// parseDocument decodes body to UTF-8 and builds the DOM. Non-HTML
// responses are shown as preformatted text.
func parseDocument(body []byte, contentType, location string) (*document, error) {
	mediaType, params, _ := mime.ParseMediaType(contentType)
	text, err := decodeCharset(body, params["charset"], mediaType)
	if err != nil {
		return nil, err
	}

	if mediaType != "" && mediaType != "text/html" && mediaType != "application/xhtml+xml" {
		text = "<html><head></head><body><pre>" + html.EscapeString(text) + "</pre></body></html>"
	}

	dom, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	if base, err := url.Parse(location); err == nil {
		dom.Url = base
	}
	return &document{url: location, dom: dom}, nil
}

// decodeCharset converts body to UTF-8 using the declared charset, or a
// detected one when none is declared
func decodeCharset(body []byte, declared, mediaType string) (string, error) {
	charset := strings.ToLower(strings.TrimSpace(declared))
	if charset == "" {
		detector := chardet.NewTextDetector()
		if mediaType == "" || mediaType == "text/html" {
			detector = chardet.NewHtmlDetector()
		}
		if best, err := detector.DetectBest(body); err == nil && best.Confidence >= 50 {
			charset = strings.ToLower(best.Charset)
		}
	}
	if charset == "" || charset == "utf-8" || charset == "us-ascii" {
		return string(body), nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(body), nil
	}
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(body), enc.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("failed to decode %s body: %w", charset, err)
	}
	return string(decoded), nil
}

// discoverFrames finds iframe and frame elements and assigns them ids
func (d *document) discoverFrames(parentID string) {
	d.frames = nil
	if len(d.dom.Nodes) == 0 {
		return
	}
	nodes, err := htmlquery.QueryAll(d.dom.Nodes[0], "//iframe | //frame")
	if err != nil {
		return
	}
	base, _ := url.Parse(d.url)
	for _, n := range nodes {
		src := htmlquery.SelectAttr(n, "src")
		resolved := blankURL
		if src != "" && base != nil {
			if u, err := base.Parse(src); err == nil {
				resolved = u.String()
			}
		}
		d.frames = append(d.frames, &frame{
			id:     newFrameID(),
			parent: parentID,
			name:   htmlquery.SelectAttr(n, "name"),
			url:    resolved,
		})
	}
}

// title returns the document title
func (d *document) title() string {
	return strings.TrimSpace(d.dom.Find("title").First().Text())
}

// inlineScripts returns the classic inline scripts in document order
func (d *document) inlineScripts() []string {
	var scripts []string
	d.dom.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		typ, _ := s.Attr("type")
		switch strings.ToLower(strings.TrimSpace(typ)) {
		case "", "text/javascript", "application/javascript":
			scripts = append(scripts, s.Text())
		}
	})
	return scripts
}

// xpath evaluates expr against the document and returns matching
// elements as selections
func (d *document) xpath(expr string) ([]*goquery.Selection, error) {
	if len(d.dom.Nodes) == 0 {
		return nil, nil
	}
	nodes, err := htmlquery.QueryAll(d.dom.Nodes[0], expr)
	if err != nil {
		return nil, err
	}
	out := make([]*goquery.Selection, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, d.dom.FindNodes(n))
	}
	return out, nil
}
