// Package markdown holds the small subset of markdown the record files use:
// YAML frontmatter, headings and bullet lists.
package markdown

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	fence = []byte("---\n")

	ErrMalformedFrontmatter = errors.New("malformed frontmatter")
)

// Split decodes the frontmatter of content into meta (when meta is not nil) and
// returns the body. Content without frontmatter is returned unchanged with found=false.
func Split(content []byte, meta interface{}) (body []byte, found bool, err error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, fence) {
		return normalized, false, nil
	}
	rest := normalized[len(fence):]

	var metaBytes []byte
	if bytes.HasPrefix(rest, fence) { // empty frontmatter
		body = rest[len(fence):]
	} else {
		parts := bytes.SplitN(rest, []byte("\n---\n"), 2)
		if len(parts) < 2 {
			if !bytes.HasSuffix(rest, []byte("\n---")) {
				return nil, true, ErrMalformedFrontmatter
			}
			parts = [][]byte{bytes.TrimSuffix(rest, []byte("\n---")), nil}
		}
		metaBytes, body = parts[0], parts[1]
	}

	if meta != nil && len(bytes.TrimSpace(metaBytes)) > 0 {
		if err = yaml.Unmarshal(metaBytes, meta); err != nil {
			return nil, true, errors.Wrap(err, "parsing frontmatter")
		}
	}
	return bytes.TrimLeft(body, "\n"), true, nil
}

// Join renders meta as YAML frontmatter followed by body.
func Join(meta interface{}, body []byte) ([]byte, error) {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return nil, errors.Wrap(err, "encoding frontmatter")
	}
	var buf bytes.Buffer
	buf.Write(fence)
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

// Section is a heading and the lines up to the next heading of the same or higher level.
type Section struct {
	Level       int
	Title       string
	Lines       []string
	Subsections []Section
}

// Document is a parsed markdown body: an optional "# Title", the lines before the
// first "##" heading, and the "##" sections (each holding its "###" subsections).
type Document struct {
	Title    string
	Preamble []string
	Sections []Section
}

// Section returns the first level-2 section whose title matches one of names (case-insensitive).
func (d Document) Section(names ...string) (Section, bool) {
	for _, s := range d.Sections {
		for _, n := range names {
			if strings.EqualFold(s.Title, n) {
				return s, true
			}
		}
	}
	return Section{}, false
}

func headingLevel(line string) (int, string) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level >= len(line) || line[level] != ' ' {
		return 0, ""
	}
	return level, strings.TrimSpace(line[level+1:])
}

// Parse splits body into a Document. Lines inside fenced code blocks are never headings.
func Parse(body []byte) Document {
	var (
		doc    Document
		inCode bool
		cur    *Section // current level-2 section
		sub    *Section // current level-3 subsection
	)
	appendLine := func(line string) {
		switch {
		case sub != nil:
			sub.Lines = append(sub.Lines, line)
		case cur != nil:
			cur.Lines = append(cur.Lines, line)
		default:
			doc.Preamble = append(doc.Preamble, line)
		}
	}
	flushSub := func() {
		if sub != nil && cur != nil {
			cur.Subsections = append(cur.Subsections, *sub)
		}
		sub = nil
	}
	flushCur := func() {
		flushSub()
		if cur != nil {
			doc.Sections = append(doc.Sections, *cur)
		}
		cur = nil
	}

	text := strings.ReplaceAll(string(body), "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCode = !inCode
			appendLine(line)
			continue
		}
		level, title := 0, ""
		if !inCode {
			level, title = headingLevel(line)
		}
		switch {
		case level == 1 && doc.Title == "" && cur == nil:
			doc.Title = title
		case level == 2:
			flushCur()
			cur = &Section{Level: 2, Title: title}
		case level == 3 && cur != nil:
			flushSub()
			sub = &Section{Level: 3, Title: title}
		default:
			appendLine(line)
		}
	}
	flushCur()

	doc.Preamble = trimBlank(doc.Preamble)
	for i := range doc.Sections {
		doc.Sections[i].Lines = trimBlank(doc.Sections[i].Lines)
		for j := range doc.Sections[i].Subsections {
			doc.Sections[i].Subsections[j].Lines = trimBlank(doc.Sections[i].Subsections[j].Lines)
		}
	}
	return doc
}

// Items returns the bullet items ("- x", "* x" or "1. x") of lines, without markers.
// Continuation lines (indented, non-bullet) are appended to the previous item.
func Items(lines []string) []string {
	var items []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if item, ok := bullet(trimmed); ok {
			items = append(items, item)
			continue
		}
		if len(items) > 0 && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
			items[len(items)-1] += " " + trimmed
		}
	}
	return items
}

func bullet(line string) (string, bool) {
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		return strings.TrimSpace(line[2:]), true
	}
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i+1 < len(line) && line[i] == '.' && line[i+1] == ' ' {
		return strings.TrimSpace(line[i+2:]), true
	}
	return "", false
}

// Text joins lines, trimmed, undoing the escapes of Writer.Text.
func Text(lines []string) string {
	lines = trimBlank(lines)
	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.HasPrefix(line, `\`) && needsEscape(line[1:]) {
			line = line[1:]
		}
		out[i] = line
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// needsEscape reports whether line would be read as a heading or a code fence,
// or starts with the escape character itself.
func needsEscape(line string) bool {
	return strings.HasPrefix(line, "#") ||
		strings.HasPrefix(line, `\`) ||
		strings.HasPrefix(strings.TrimSpace(line), "```")
}

func trimBlank(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	if start == end {
		return nil
	}
	return lines[start:end]
}

// Writer builds markdown bodies.
type Writer struct {
	buf bytes.Buffer
}

func (w *Writer) Heading(level int, title string) {
	if w.buf.Len() > 0 && !bytes.HasSuffix(w.buf.Bytes(), []byte("\n\n")) {
		w.buf.WriteString("\n")
	}
	w.buf.WriteString(strings.Repeat("#", level) + " " + title + "\n\n")
}

func (w *Writer) Item(text string) {
	w.buf.WriteString("- " + text + "\n")
}

func (w *Writer) Items(items []string) {
	for _, it := range items {
		w.Item(it)
	}
}

// Text writes free text. Lines that would parse as headings or code fences
// are prefixed with a backslash.
func (w *Writer) Text(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		if needsEscape(line) {
			line = `\` + line
		}
		w.buf.WriteString(line + "\n")
	}
}

func (w *Writer) Bytes() []byte { return w.buf.Bytes() }
