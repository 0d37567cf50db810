package timetable

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/trezcool/invigil/core"
)

var ErrNoLecturer = errors.New("no lecturer name found in timetable")

var (
	anchorRe   = regexp.MustCompile(`(?i)\b(MON|MONDAY)\s*[-–]\s*(SUN|SUNDAY|SAT|SATURDAY|FRI|FRIDAY)\b`)
	lecturerRe = regexp.MustCompile(`(?i)timetable\s+for\s*:?\s*(.+?)(?:\s*\(|$)`)
	dayRe      = regexp.MustCompile(`(?i)^(MONDAY|TUESDAY|WEDNESDAY|THURSDAY|FRIDAY|SATURDAY|SUNDAY|MON|TUE|TUES|WED|THU|THUR|THURS|FRI|SAT|SUN)\b\.?\s*(.*)$`)
	classRe    = regexp.MustCompile(`(?i)\b(LECTURE|TUTORIAL|PRACTICAL|LAB)\b`)
	timeRe     = regexp.MustCompile(`(\d{1,2})[:.](\d{2})\s*[-–]\s*(\d{1,2})[:.](\d{2})`)
	roomRe     = regexp.MustCompile(`(?i)\broom\s*:?\s*([A-Z0-9-]+)`)
	groupRe    = regexp.MustCompile(`\b(\d{6})\s+([A-Z]{2,4}\d{4})\s+([A-Z0-9]{1,5})\b`)
)

var dayNames = map[string]string{
	"MON": "MONDAY", "TUE": "TUESDAY", "TUES": "TUESDAY", "WED": "WEDNESDAY", "THU": "THURSDAY",
	"THUR": "THURSDAY", "THURS": "THURSDAY", "FRI": "FRIDAY", "SAT": "SATURDAY", "SUN": "SUNDAY",
}

var DayOrder = []string{"MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY", "SUNDAY"}

func normalizeDay(d string) string {
	d = strings.ToUpper(d)
	if full, ok := dayNames[d]; ok {
		return full
	}
	return d
}

// Parse turns the extracted text of a lecturer timetable into a Document.
// Lines that cannot be understood are skipped; only a missing lecturer name is fatal.
func Parse(text string) (Document, error) {
	lines := cleanLines(text)

	header, body := splitHeader(lines)
	doc := Document{Days: make(map[string][]Activity)}
	if len(header) > 0 {
		doc.Title = header[0]
	}
	for _, l := range header {
		if m := lecturerRe.FindStringSubmatch(l); m != nil {
			doc.Lecturer = NormalizeLecturer(m[1])
			break
		}
	}
	if doc.Lecturer == "" {
		return Document{}, core.NewValidationError(ErrNoLecturer, core.FieldError{Field: "text", Error: ErrNoLecturer.Error()})
	}

	for day, block := range splitDays(body) {
		for _, chunk := range splitActivities(block) {
			if act, ok := parseActivity(chunk); ok {
				doc.Days[day] = append(doc.Days[day], act)
			}
		}
		if len(doc.Days[day]) == 0 {
			delete(doc.Days, day)
		}
	}
	return doc, nil
}

func cleanLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = core.SquashSpaces(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// splitHeader cuts lines at the day-span anchor, or at the first day line when there is none.
func splitHeader(lines []string) (header, body []string) {
	for i, l := range lines {
		if anchorRe.MatchString(l) {
			return lines[:i], lines[i+1:]
		}
	}
	for i, l := range lines {
		if dayRe.MatchString(l) {
			return lines[:i], lines[i:]
		}
	}
	return lines, nil
}

// splitDays groups body lines under the day line preceding them.
func splitDays(body []string) map[string][]string {
	days := make(map[string][]string)
	var current string
	for _, l := range body {
		if m := dayRe.FindStringSubmatch(l); m != nil {
			current = normalizeDay(m[1])
			if rest := strings.TrimSpace(m[2]); rest != "" {
				days[current] = append(days[current], rest)
			}
			continue
		}
		if current == "" {
			continue
		}
		days[current] = append(days[current], l)
	}
	return days
}

// splitActivities joins a day block and cuts it before every class-type keyword.
func splitActivities(block []string) []string {
	text := strings.Join(block, " ")
	locs := classRe.FindAllStringIndex(text, -1)
	chunks := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		chunks = append(chunks, strings.TrimSpace(text[loc[0]:end]))
	}
	return chunks
}

func parseActivity(chunk string) (Activity, bool) {
	kw := classRe.FindString(chunk)
	tm := timeRe.FindStringSubmatchIndex(chunk)
	groups := groupRe.FindAllStringSubmatchIndex(chunk, -1)
	if kw == "" || tm == nil || len(groups) == 0 {
		return Activity{}, false
	}

	start, ok1 := clock(chunk[tm[2]:tm[3]], chunk[tm[4]:tm[5]])
	end, ok2 := clock(chunk[tm[6]:tm[7]], chunk[tm[8]:tm[9]])
	if !ok1 || !ok2 || start >= end {
		return Activity{}, false
	}

	act := Activity{ClassType: ClassType(strings.ToUpper(kw)), Start: start, End: end}
	nameFrom := tm[1]
	if rm := roomRe.FindStringSubmatchIndex(chunk); rm != nil {
		act.Room = strings.ToUpper(chunk[rm[2]:rm[3]])
		if rm[1] > nameFrom && rm[1] <= groups[0][0] {
			nameFrom = rm[1]
		}
	}
	if nameFrom < groups[0][0] {
		act.CourseName = strings.Trim(strings.TrimSpace(chunk[nameFrom:groups[0][0]]), "-:,")
		act.CourseName = strings.TrimSpace(act.CourseName)
	}

	seen := make(map[Group]bool, len(groups))
	for _, g := range groups {
		grp := Group{Intake: chunk[g[2]:g[3]], CourseCode: chunk[g[4]:g[5]], Section: chunk[g[6]:g[7]]}
		if !seen[grp] {
			seen[grp] = true
			act.Groups = append(act.Groups, grp)
		}
	}
	return act, true
}

func clock(h, m string) (string, bool) {
	hh, err1 := strconv.Atoi(h)
	mm, err2 := strconv.Atoi(m)
	if err1 != nil || err2 != nil || hh > 23 || mm > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hh, mm), true
}

var honorificForms = map[string]string{
	"dr": "Dr.", "prof": "Prof.", "professor": "Prof.", "assoc": "Assoc.", "associate": "Assoc.",
	"ir": "Ir.", "ts": "Ts.", "mr": "Mr.", "mrs": "Mrs.", "ms": "Ms.",
}

var nameParticles = map[string]bool{"bin": true, "binti": true, "a/l": true, "a/p": true, "van": true, "de": true}

// NormalizeLecturer collapses spacing, title-cases the name and spells honorifics uniformly.
func NormalizeLecturer(name string) string {
	if i := strings.Index(name, "("); i >= 0 {
		name = name[:i]
	}
	words := strings.Fields(strings.Trim(strings.TrimSpace(name), ":-,"))
	out := make([]string, 0, len(words))
	for _, w := range words {
		lw := strings.ToLower(w)
		if form, ok := honorificForms[strings.TrimRight(lw, ".")]; ok {
			out = append(out, form)
			continue
		}
		if nameParticles[lw] {
			out = append(out, lw)
			continue
		}
		r := []rune(lw)
		r[0] = unicode.ToUpper(r[0])
		out = append(out, string(r))
	}
	return strings.Join(out, " ")
}

// Rows flattens doc into one row per (day, activity, group), without duplicates.
func (doc Document) Rows() []Row {
	days := make([]string, 0, len(doc.Days))
	for d := range doc.Days {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return dayIndex(days[i]) < dayIndex(days[j]) })

	var rows []Row
	seen := make(map[Row]bool)
	for _, day := range days {
		for _, act := range doc.Days[day] {
			for _, g := range act.Groups {
				r := Row{
					Lecturer:   doc.Lecturer,
					Day:        day,
					ClassType:  act.ClassType,
					Start:      act.Start,
					End:        act.End,
					Room:       act.Room,
					CourseName: act.CourseName,
					Intake:     g.Intake,
					CourseCode: g.CourseCode,
					Section:    g.Section,
				}
				if !seen[r] {
					seen[r] = true
					rows = append(rows, r)
				}
			}
		}
	}
	return rows
}

func dayIndex(day string) int {
	for i, d := range DayOrder {
		if d == day {
			return i
		}
	}
	return len(DayOrder)
}
