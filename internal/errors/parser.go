package errors

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// TraceKind classifies a location found in an error trace.
type TraceKind int

const (
	TraceKindUnknown TraceKind = iota
	TraceKindTemplateParse
	TraceKindTemplateExec
	TraceKindGoCompile
	TraceKindGoFrame
)

// String returns the string representation of the TraceKind
func (k TraceKind) String() string {
	switch k {
	case TraceKindTemplateParse:
		return "template parse"
	case TraceKindTemplateExec:
		return "template exec"
	case TraceKindGoCompile:
		return "go compile"
	case TraceKindGoFrame:
		return "go frame"
	default:
		return "unknown"
	}
}

// Location is a source position extracted from one trace line.
type Location struct {
	Kind    TraceKind `json:"kind"`
	File    string    `json:"file"`
	Line    int       `json:"line"`
	Column  int       `json:"column"`
	Message string    `json:"message"`
	Raw     string    `json:"raw"`
	// Index is the line number of Raw within the parsed trace.
	Index int `json:"index"`
}

// TraceParser extracts source locations from template, compiler and panic
// traces.
type TraceParser struct {
	patterns []tracePattern
}

type tracePattern struct {
	regex       *regexp.Regexp
	kind        TraceKind
	parseFields func(matches []string) (file string, line int, column int, message string)
}

// NewTraceParser creates a new trace parser
func NewTraceParser() *TraceParser {
	return &TraceParser{patterns: buildTracePatterns()}
}

// Parse returns every location found in trace, in order of appearance.
func (tp *TraceParser) Parse(trace string) []*Location {
	var locations []*Location

	for i, line := range strings.Split(trace, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		for _, pattern := range tp.patterns {
			matches := pattern.regex.FindStringSubmatch(trimmed)
			if matches == nil {
				continue
			}
			file, lineNum, column, message := pattern.parseFields(matches)
			locations = append(locations, &Location{
				Kind:    pattern.kind,
				File:    file,
				Line:    lineNum,
				Column:  column,
				Message: message,
				Raw:     line,
				Index:   i,
			})
			break
		}
	}

	return locations
}

func buildTracePatterns() []tracePattern {
	return []tracePattern{
		{
			// template: page.gohtml:3:14: executing "page.gohtml" at <.Foo>: ...
			regex: regexp.MustCompile(`template: (.+?):(\d+):(\d+): (.+)$`),
			kind:  TraceKindTemplateExec,
			parseFields: func(matches []string) (string, int, int, string) {
				line, _ := strconv.Atoi(matches[2])
				column, _ := strconv.Atoi(matches[3])
				return matches[1], line, column, matches[4]
			},
		},
		{
			// template: page.gohtml:3: unexpected "}" in operand
			regex: regexp.MustCompile(`template: (.+?):(\d+): (.+)$`),
			kind:  TraceKindTemplateParse,
			parseFields: func(matches []string) (string, int, int, string) {
				line, _ := strconv.Atoi(matches[2])
				return matches[1], line, 0, matches[3]
			},
		},
		{
			// main.go:12:3: undefined: x
			regex: regexp.MustCompile(`^(.+?\.go):(\d+):(\d+): (.+)$`),
			kind:  TraceKindGoCompile,
			parseFields: func(matches []string) (string, int, int, string) {
				line, _ := strconv.Atoi(matches[2])
				column, _ := strconv.Atoi(matches[3])
				return matches[1], line, column, matches[4]
			},
		},
		{
			// /abs/path/main.go:42 +0x1d
			regex: regexp.MustCompile(`^(.+?\.go):(\d+)(?: \+0x[0-9a-f]+)?$`),
			kind:  TraceKindGoFrame,
			parseFields: func(matches []string) (string, int, int, string) {
				line, _ := strconv.Atoi(matches[2])
				return matches[1], line, 0, ""
			},
		},
	}
}

// Remap rewrites every location in trace through resolve and appends a
// source excerpt for the first location that resolves to a readable file.
// resolve returns the path to show in the trace, the path to read the
// excerpt from, and whether the file is known. The returned Location is the
// first resolved location, or nil.
func (tp *TraceParser) Remap(trace string, resolve func(file string) (display, source string, ok bool)) (string, *Location) {
	lines := strings.Split(trace, "\n")
	var first *Location
	var firstSource string

	for _, loc := range tp.Parse(trace) {
		display, source, ok := resolve(loc.File)
		if !ok {
			continue
		}
		lines[loc.Index] = strings.Replace(lines[loc.Index], loc.File, display, 1)
		loc.File = display
		if first == nil {
			first = loc
			firstSource = source
		}
	}

	remapped := strings.Join(lines, "\n")
	if first == nil || first.Line <= 0 {
		return remapped, first
	}

	excerpt, err := SourceExcerpt(firstSource, first.Line, 2)
	if err != nil || len(excerpt) == 0 {
		return remapped, first
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(remapped, "\n"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Source %s:\n", FormatLocation(first)))
	for _, l := range excerpt {
		b.WriteString("    ")
		b.WriteString(l)
		b.WriteString("\n")
	}
	return b.String(), first
}

// FormatLocation formats file:line:col, omitting unknown parts.
func FormatLocation(loc *Location) string {
	if loc == nil {
		return ""
	}
	out := loc.File
	if loc.Line > 0 {
		out += fmt.Sprintf(":%d", loc.Line)
		if loc.Column > 0 {
			out += fmt.Sprintf(":%d", loc.Column)
		}
	}
	return out
}

// SourceExcerpt returns the lines around line (1-based) in path, marking
// the target line with "→ ".
func SourceExcerpt(path string, line, radius int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	start := max(1, line-radius)
	end := line + radius

	var context []string
	scanner := bufio.NewScanner(file)
	for n := 1; scanner.Scan(); n++ {
		if n < start {
			continue
		}
		if n > end {
			break
		}
		prefix := "  "
		if n == line {
			prefix = "→ "
		}
		context = append(context, fmt.Sprintf("%s%4d | %s", prefix, n, scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return context, nil
}
