package learner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core/markdown"
)

const (
	sectionAssessed = "Assessed Skills"
	sectionInferred = "Inferred Skills"
	sectionNotes    = "Notes"

	dateLayout = "2006-01-02"
)

// - <skill-id>: <confidence> (<demonstrated|gap>[, from <source>][, <date>])[ - note]
var skillLineRegex = regexp.MustCompile(
	`^([\w.-]+):\s*([0-9]*\.?[0-9]+)\s*\((demonstrated|gap)(?:,\s*from\s+([\w.-]+))?(?:,\s*(\d{4}-\d{2}-\d{2}))?\)(?:\s+-\s+(.*))?$`)

// FormatSkillLine renders r as a bullet item (without the "- " marker).
func FormatSkillLine(r SkillRecord) string {
	state := "gap"
	if r.Demonstrated {
		state = "demonstrated"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s (%s", r.SkillID, strconv.FormatFloat(r.Confidence, 'f', -1, 64), state)
	if r.Source != "" {
		b.WriteString(", from " + r.Source)
	}
	if !r.AssessedAt.IsZero() {
		b.WriteString(", " + r.AssessedAt.UTC().Format(dateLayout))
	}
	b.WriteString(")")
	if note := strings.TrimSpace(r.Note); note != "" {
		b.WriteString(" - " + strings.ReplaceAll(note, "\n", " "))
	}
	return b.String()
}

// ParseSkillLine parses a bullet item written by FormatSkillLine.
func ParseSkillLine(item string) (SkillRecord, error) {
	m := skillLineRegex.FindStringSubmatch(strings.TrimSpace(item))
	if m == nil {
		return SkillRecord{}, errors.Errorf("invalid skill line %q", item)
	}
	conf, err := strconv.ParseFloat(m[2], 64)
	if err != nil || conf < 0 || conf > 1 {
		return SkillRecord{}, errors.Errorf("invalid confidence in skill line %q", item)
	}
	r := SkillRecord{
		SkillID:      m[1],
		Confidence:   conf,
		Demonstrated: m[3] == "demonstrated",
		Source:       m[4],
		Note:         m[6],
	}
	if m[5] != "" {
		if r.AssessedAt, err = time.Parse(dateLayout, m[5]); err != nil {
			return SkillRecord{}, errors.Errorf("invalid date in skill line %q", item)
		}
	}
	return r, nil
}

// MarshalBody renders the markdown body of p.
func MarshalBody(p Profile) []byte {
	var w markdown.Writer
	w.Heading(1, p.Name)

	w.Heading(2, sectionAssessed)
	for _, id := range sortedKeys(p.Assessed) {
		w.Item(FormatSkillLine(p.Assessed[id]))
	}
	w.Heading(2, sectionInferred)
	for _, id := range sortedKeys(p.Inferred) {
		w.Item(FormatSkillLine(p.Inferred[id]))
	}
	w.Heading(2, sectionNotes)
	w.Text(p.Notes)
	return w.Bytes()
}

// UnmarshalBody fills the skills and notes of p from a markdown body.
// The name comes from the "# " title when the frontmatter has none.
func UnmarshalBody(body []byte, p *Profile) error {
	doc := markdown.Parse(body)
	if p.Name == "" {
		p.Name = doc.Title
	}

	var err error
	if p.Assessed, err = parseSkills(doc, sectionAssessed); err != nil {
		return err
	}
	if p.Inferred, err = parseSkills(doc, sectionInferred); err != nil {
		return err
	}
	if s, ok := doc.Section(sectionNotes); ok {
		p.Notes = markdown.Text(s.Lines)
	}
	return nil
}

func parseSkills(doc markdown.Document, title string) (map[string]SkillRecord, error) {
	records := make(map[string]SkillRecord)
	s, ok := doc.Section(title)
	if !ok {
		return records, nil
	}
	for _, item := range markdown.Items(s.Lines) {
		r, err := ParseSkillLine(item)
		if err != nil {
			return nil, errors.Wrap(err, title)
		}
		records[r.SkillID] = r
	}
	return records, nil
}
