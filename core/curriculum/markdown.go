package curriculum

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core/markdown"
)

const (
	sectionSessions = "Sessions"
	sectionNotes    = "Notes"
)

// "Session 3: Comparing fractions", "Session 3 - Comparing fractions"
var sessionTitleRegex = regexp.MustCompile(`(?i)^session\s+(\d+)\s*(?:[:.\-–]\s*(.*))?$`)

// Parse reads a curriculum: frontmatter, a "# Title", a "## Sessions" section of
// "### Session <n>: <title>" blocks holding "- skills: a, b" and "- lesson: <id>"
// items, and "## Notes".
func Parse(content []byte) (Curriculum, error) {
	var c Curriculum
	body, _, err := markdown.Split(content, &c)
	if err != nil {
		return Curriculum{}, err
	}
	doc := markdown.Parse(body)
	if c.Title == "" {
		c.Title = doc.Title
	}

	if s, ok := doc.Section(sectionSessions); ok {
		for i, sub := range s.Subsections {
			sess := Session{Number: i + 1, Title: sub.Title}
			if m := sessionTitleRegex.FindStringSubmatch(sub.Title); m != nil {
				sess.Number, _ = strconv.Atoi(m[1])
				sess.Title = strings.TrimSpace(m[2])
			}
			for _, item := range markdown.Items(sub.Lines) {
				key, val, ok := field(item)
				if !ok {
					continue
				}
				switch key {
				case "skills":
					sess.Skills = splitList(val)
				case "lesson":
					sess.LessonID = val
				}
			}
			c.Sessions = append(c.Sessions, sess)
		}
	}
	if s, ok := doc.Section(sectionNotes); ok {
		c.Notes = markdown.Text(s.Lines)
	}

	for i, s := range c.Sessions {
		if s.Number != i+1 {
			return Curriculum{}, errors.Errorf("session %d is numbered %d", i+1, s.Number)
		}
	}
	return c, nil
}

func field(item string) (key, val string, ok bool) {
	i := strings.Index(item, ":")
	if i < 0 {
		return "", "", false
	}
	return strings.ToLower(strings.TrimSpace(item[:i])), strings.TrimSpace(item[i+1:]), true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Render writes c as markdown; Parse(Render(c)) returns c.
func Render(c Curriculum) ([]byte, error) {
	var w markdown.Writer
	w.Heading(1, c.Title)
	w.Heading(2, sectionSessions)
	for _, s := range c.Sessions {
		title := fmt.Sprintf("Session %d", s.Number)
		if s.Title != "" {
			title += ": " + s.Title
		}
		w.Heading(3, title)
		w.Item("skills: " + strings.Join(s.Skills, ", "))
		if s.LessonID != "" {
			w.Item("lesson: " + s.LessonID)
		}
	}
	if c.Notes != "" {
		w.Heading(2, sectionNotes)
		w.Text(c.Notes)
	}
	return markdown.Join(c, w.Bytes())
}
