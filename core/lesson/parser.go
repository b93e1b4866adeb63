package lesson

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core/markdown"
)

var (
	ErrEmpty = errors.New("empty lesson plan")

	// "Warm up (5 min)", "Practice (20 minutes)"
	minutesTitleRegex = regexp.MustCompile(`^(.*?)\s*\((\d+)\s*(?:min|mins|minutes?)\)$`)
	// "0:10 - 0:25 Practice"
	rangeTitleRegex = regexp.MustCompile(`^(\d+):([0-5]\d)\s*[-–]\s*(\d+):([0-5]\d)\s+(.+)$`)
	// "Duration: 60 minutes" in the preamble
	durationRegex = regexp.MustCompile(`(?i)^\**duration:?\**:?\s*(\d+)\s*(?:min|mins|minutes?)\b`)
)

// ParseSectionTitle extracts the minutes of a section heading, 0 when untimed.
func ParseSectionTitle(heading string) (title string, minutes int) {
	heading = strings.TrimSpace(heading)
	if m := minutesTitleRegex.FindStringSubmatch(heading); m != nil {
		n, _ := strconv.Atoi(m[2])
		return strings.TrimSpace(m[1]), n
	}
	if m := rangeTitleRegex.FindStringSubmatch(heading); m != nil {
		start := clock(m[1], m[2])
		end := clock(m[3], m[4])
		if end > start {
			return strings.TrimSpace(m[5]), end - start
		}
		return strings.TrimSpace(m[5]), 0
	}
	return heading, 0
}

// sectionHeading renders the heading of s so that ParseSectionTitle returns its
// title and minutes. Untimed titles that look timed get an explicit "(0 min)".
func sectionHeading(s Section) string {
	if s.Minutes > 0 {
		return fmt.Sprintf("%s (%d min)", s.Title, s.Minutes)
	}
	if title, minutes := ParseSectionTitle(s.Title); minutes != 0 || title != s.Title {
		return s.Title + " (0 min)"
	}
	return s.Title
}

func clock(h, m string) int {
	hours, _ := strconv.Atoi(h)
	mins, _ := strconv.Atoi(m)
	return hours*60 + mins
}

// Parse reads a markdown lesson plan: optional frontmatter, a "# Title" and the
// Objectives, Prerequisites, Sections (or Plan), Assessment and Notes sections.
// Section headings are "### <title> (<n> min)" or "### 0:10 - 0:25 <title>".
func Parse(content []byte) (Plan, []Warning, error) {
	if len(strings.TrimSpace(string(content))) == 0 {
		return Plan{}, nil, ErrEmpty
	}
	var p Plan
	body, _, err := markdown.Split(content, &p)
	if err != nil {
		return Plan{}, nil, err
	}

	doc := markdown.Parse(body)
	if p.Title == "" {
		p.Title = doc.Title
	}
	if p.Title == "" {
		return Plan{}, nil, errors.New("lesson plan has no title")
	}
	if p.DurationMinutes == 0 {
		for _, line := range doc.Preamble {
			if m := durationRegex.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
				p.DurationMinutes, _ = strconv.Atoi(m[1])
				break
			}
		}
	}

	if s, ok := doc.Section("Objectives", "Learning Objectives"); ok {
		p.Objectives = markdown.Items(s.Lines)
	}
	if s, ok := doc.Section("Prerequisites"); ok {
		p.Prerequisites = markdown.Items(s.Lines)
	}
	if s, ok := doc.Section("Assessment"); ok {
		p.Assessment = markdown.Items(s.Lines)
	}
	if s, ok := doc.Section("Notes"); ok {
		p.Notes = markdown.Text(s.Lines)
	}
	if s, ok := doc.Section("Sections", "Plan", "Agenda"); ok {
		for _, sub := range s.Subsections {
			title, minutes := ParseSectionTitle(sub.Title)
			p.Sections = append(p.Sections, Section{
				Title:      title,
				Minutes:    minutes,
				Activities: markdown.Items(sub.Lines),
			})
		}
	}
	return p, Check(p), nil
}

// Check returns the warnings of p.
func Check(p Plan) []Warning {
	var warnings []Warning
	warn := func(code, format string, args ...interface{}) {
		warnings = append(warnings, Warning{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if len(p.Objectives) == 0 {
		warn(WarnNoObjectives, "no objectives")
	}
	if len(p.Sections) == 0 {
		warn(WarnNoSections, "no sections")
	}
	for i, s := range p.Sections {
		if s.Minutes == 0 {
			warn(WarnUntimedSection, "section %d (%s) has no timing", i+1, s.Title)
		}
	}
	if p.DurationMinutes == 0 {
		warn(WarnMissingDuration, "missing duration")
	} else if total := p.SectionMinutes(); len(p.Sections) > 0 && total != p.DurationMinutes {
		warn(WarnDurationMismatch, "sections total %d min, duration is %d min", total, p.DurationMinutes)
	}
	return warnings
}

// Render writes p as canonical markdown; Parse(Render(p)) returns p.
func Render(p Plan) ([]byte, error) {
	var w markdown.Writer
	w.Heading(1, p.Title)
	if len(p.Objectives) > 0 {
		w.Heading(2, "Objectives")
		w.Items(p.Objectives)
	}
	if len(p.Prerequisites) > 0 {
		w.Heading(2, "Prerequisites")
		w.Items(p.Prerequisites)
	}
	if len(p.Sections) > 0 {
		w.Heading(2, "Sections")
		for _, s := range p.Sections {
			w.Heading(3, sectionHeading(s))
			w.Items(s.Activities)
		}
	}
	if len(p.Assessment) > 0 {
		w.Heading(2, "Assessment")
		w.Items(p.Assessment)
	}
	if p.Notes != "" {
		w.Heading(2, "Notes")
		w.Text(p.Notes)
	}
	return markdown.Join(p, w.Bytes())
}
