package htmlutil

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

// ClipTag returns the fragment of body starting at the first
// occurrence of openPrefix (a partial opening tag, e.g.
// `<form id="challenge"`) up to but not including the next closeTag
// (e.g. `</form>`). When openPrefix is absent it returns "". When
// closeTag is absent the rest of body is returned, third-party
// markup is frequently missing closing tags.
func ClipTag(body, openPrefix, closeTag string) string {
	start := strings.Index(body, openPrefix)
	if start < 0 {
		return ""
	}
	end := strings.Index(body[start:], closeTag)
	if end < 0 {
		return body[start:]
	}
	return body[start : start+end]
}

// InputValue returns the value attribute of the input element with
// the given id inside fragment, or "" when the element is absent or
// the fragment cannot be parsed.
func InputValue(fragment, id string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	return doc.Find("input#" + id).AttrOr("value", "")
}

// SingleQuoted returns the text between the next two single quotes
// following the first occurrence of anchor, or "" when either the
// anchor or the quotes are missing.
func SingleQuoted(body, anchor string) string {
	at := strings.Index(body, anchor)
	if at < 0 {
		return ""
	}
	rest := body[at+len(anchor):]
	open := strings.Index(rest, "'")
	if open < 0 {
		return ""
	}
	rest = rest[open+1:]
	end := strings.Index(rest, "'")
	if end < 0 {
		return ""
	}
	return rest[:end]
}
