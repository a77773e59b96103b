package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ResponseHandler pulls a JSON document out of a model response
type ResponseHandler interface {
	CanHandle(response string) bool
	Handle(response string) (string, error)
}

// FencedJSONHandler handles responses that wrap JSON in a markdown code block
type FencedJSONHandler struct {
	markdown goldmark.Markdown
}

func (h *FencedJSONHandler) CanHandle(response string) bool {
	return strings.Contains(response, "```")
}

func (h *FencedJSONHandler) Handle(response string) (string, error) {
	src := []byte(response)
	doc := h.markdown.Parser().Parse(text.NewReader(src))

	var found string
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		lang := strings.ToLower(string(block.Language(src)))
		if lang != "" && lang != "json" && lang != "json5" {
			return ast.WalkSkipChildren, nil
		}
		var buf bytes.Buffer
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		body := strings.TrimSpace(buf.String())
		if strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[") {
			found = body
			return ast.WalkStop, nil
		}
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return "", fmt.Errorf("walking response markdown: %w", err)
	}
	if found == "" {
		return "", fmt.Errorf("no json code block in response")
	}
	return found, nil
}

// BareJSONHandler handles responses that are, or contain, a raw JSON object
type BareJSONHandler struct{}

func (h *BareJSONHandler) CanHandle(response string) bool {
	return strings.Contains(response, "{")
}

func (h *BareJSONHandler) Handle(response string) (string, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no json object in response")
	}
	return response[start : end+1], nil
}

// ResponseExtractor turns free-form model output into structured values
type ResponseExtractor struct {
	handlers  []ResponseHandler
	converter *md.Converter
}

// NewResponseExtractor creates an extractor with the default handler chain
func NewResponseExtractor() *ResponseExtractor {
	e := &ResponseExtractor{converter: md.NewConverter("", true, nil)}

	// most specific first
	e.AddHandler(&FencedJSONHandler{markdown: goldmark.New()})
	e.AddHandler(&BareJSONHandler{})

	return e
}

// AddHandler adds a response handler to the chain
func (e *ResponseExtractor) AddHandler(handler ResponseHandler) {
	e.handlers = append(e.handlers, handler)
}

// JSON returns the first JSON document a handler can extract from response
func (e *ResponseExtractor) JSON(response string) (string, error) {
	var lastErr error
	for _, handler := range e.handlers {
		if !handler.CanHandle(response) {
			continue
		}
		doc, err := handler.Handle(response)
		if err == nil {
			return doc, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no json in response")
	}
	return "", lastErr
}

var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// DecodeJSON extracts JSON from response and decodes it into v. Trailing
// commas, which models often emit, are tolerated.
func (e *ResponseExtractor) DecodeJSON(op, response string, v any) error {
	doc, err := e.JSON(response)
	if err != nil {
		return parseError(op, "%v", err)
	}
	if err := json.Unmarshal([]byte(doc), v); err != nil {
		cleaned := trailingComma.ReplaceAllString(doc, "$1")
		if err2 := json.Unmarshal([]byte(cleaned), v); err2 != nil {
			return parseError(op, "decoding json: %v", err)
		}
	}
	return nil
}

var (
	numberedLine = regexp.MustCompile(`^\d+[.．]\s*(.*)$`)
	lineBreakTag = regexp.MustCompile(`(?i)<br\s*/?>`)
	htmlTag      = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
)

// NumberedLines returns the text of every "N. text" line, skipping headings.
// Inline HTML in a line is converted to markdown.
func (e *ResponseExtractor) NumberedLines(response string) []string {
	response = lineBreakTag.ReplaceAllString(response, "\n")

	var lines []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "##") {
			continue
		}
		m := numberedLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		content := strings.TrimSpace(m[1])
		if htmlTag.MatchString(content) {
			if converted, err := e.converter.ConvertString(content); err == nil {
				content = strings.TrimSpace(converted)
			}
		}
		if content != "" {
			lines = append(lines, content)
		}
	}
	return lines
}
