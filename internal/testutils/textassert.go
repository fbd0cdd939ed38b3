package testutils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

// TestingT is the subset of testing.T the asserter reports through.
type TestingT interface {
	Helper()
	Errorf(format string, args ...interface{})
}

// TextAssertOptions controls how output is normalized before comparison.
type TextAssertOptions struct {
	TrimSpace                bool   `default:"true"`
	IgnoreTrailingWhitespace bool   `default:"true"`
	IgnoreEmptyLines         bool   `default:"false"`
	EnableColors             bool   `default:"false"`
	MaskPlaceholder          string `default:"<*>"`
}

type TextOption func(*TextAssertOptions)

// TextAsserter compares command output with golden text and reports a
// unified diff on mismatch. Volatile fragments such as timestamps and
// durations can be masked with WithMask.
type TextAsserter struct {
	t       TestingT
	options TextAssertOptions
	masks   []*regexp.Regexp
}

// NewTextAsserter creates an asserter with default options.
func NewTextAsserter(t TestingT) *TextAsserter {
	opts := TextAssertOptions{}
	defaults.SetDefaults(&opts)
	return &TextAsserter{t: t, options: opts}
}

func (ta *TextAsserter) WithOptions(opts ...TextOption) *TextAsserter {
	for _, opt := range opts {
		opt(&ta.options)
	}
	return ta
}

// WithMask replaces every match of pattern, in both texts, with the mask
// placeholder.
func (ta *TextAsserter) WithMask(pattern string) *TextAsserter {
	ta.masks = append(ta.masks, regexp.MustCompile(pattern))
	return ta
}

func (ta *TextAsserter) Options() TextAssertOptions {
	return ta.options
}

// Assert fails the test when actual differs from expected after
// normalization. It reports whether the texts matched.
func (ta *TextAsserter) Assert(actual, expected string) bool {
	ta.t.Helper()
	if d := ta.Diff(actual, expected); d != "" {
		ta.t.Errorf("output mismatch:\n%s", d)
		return false
	}
	return true
}

// AssertContainsLines checks that every expected line appears in actual,
// in order, with other lines allowed in between.
func (ta *TextAsserter) AssertContainsLines(actual string, expected ...string) bool {
	ta.t.Helper()
	lines := ta.lines(actual)
	i := 0
	for _, want := range expected {
		want = ta.normalizeLine(want)
		for i < len(lines) && lines[i] != want {
			i++
		}
		if i == len(lines) {
			ta.t.Errorf("line %q not found in order in output:\n%s", want, strings.Join(lines, "\n"))
			return false
		}
		i++
	}
	return true
}

// Diff returns the unified diff of expected against actual, or "" when
// they match.
func (ta *TextAsserter) Diff(actual, expected string) string {
	a := strings.Join(ta.lines(actual), "\n")
	e := strings.Join(ta.lines(expected), "\n")
	if a == e {
		return ""
	}
	edits := myers.ComputeEdits("", e+"\n", a+"\n")
	unified := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", e+"\n", edits))
	if !ta.options.EnableColors {
		return unified
	}
	return ta.colorize(unified)
}

func (ta *TextAsserter) lines(text string) []string {
	if ta.options.TrimSpace {
		text = strings.TrimSpace(text)
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = ta.normalizeLine(line)
		if ta.options.IgnoreEmptyLines && strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

func (ta *TextAsserter) normalizeLine(line string) string {
	line = strings.TrimSuffix(line, "\r")
	for _, re := range ta.masks {
		line = re.ReplaceAllString(line, ta.options.MaskPlaceholder)
	}
	if ta.options.IgnoreTrailingWhitespace {
		line = strings.TrimRight(line, " \t")
	}
	return line
}

func (ta *TextAsserter) colorize(diff string) string {
	removed := color.New(color.FgRed)
	added := color.New(color.FgGreen)
	hunk := color.New(color.FgCyan)
	for _, c := range []*color.Color{removed, added, hunk} {
		c.EnableColor()
	}

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
		case strings.HasPrefix(line, "@@"):
			lines[i] = hunk.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = removed.Sprint(visibleWhitespace(line))
		case strings.HasPrefix(line, "+"):
			lines[i] = added.Sprint(visibleWhitespace(line))
		}
	}
	return strings.Join(lines, "\n")
}

func visibleWhitespace(line string) string {
	return strings.NewReplacer(" ", "·", "\t", "→").Replace(line)
}

func WithTrimSpace(trim bool) TextOption {
	return func(o *TextAssertOptions) { o.TrimSpace = trim }
}

func WithIgnoreTrailingWhitespace(ignore bool) TextOption {
	return func(o *TextAssertOptions) { o.IgnoreTrailingWhitespace = ignore }
}

func WithIgnoreEmptyLines(ignore bool) TextOption {
	return func(o *TextAssertOptions) { o.IgnoreEmptyLines = ignore }
}

func WithEnableColors(enable bool) TextOption {
	return func(o *TextAssertOptions) { o.EnableColors = enable }
}

func WithMaskPlaceholder(placeholder string) TextOption {
	return func(o *TextAssertOptions) { o.MaskPlaceholder = placeholder }
}
