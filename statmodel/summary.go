package statmodel

import (
	"fmt"
	"strings"
)

// SummaryTable holds the summary values for a fitted model.
type SummaryTable struct {

	// Title
	Title string

	// Column names
	ColNames []string

	// Formatters for the column values
	ColFmt []Fmter

	// Cols[j] is the j^th column.  It's concrete type should
	// be an array, e.g. of numbers or strings.
	Cols []interface{}

	// Values at the top of the summary
	Top []string

	// Messages displayed below the table
	Msg []string

	// Total width of the table
	tw int
}

// Fmter formats the elements of an array of values.
type Fmter func(interface{}, string) []string

// StringFmter left-justifies an array of strings to a common width that is at
// least as wide as the column heading.
func StringFmter(x interface{}, h string) []string {
	y := x.([]string)
	m := len(h)
	for _, v := range y {
		if len(v) > m {
			m = len(v)
		}
	}
	z := make([]string, len(y))
	for i, v := range y {
		z[i] = fmt.Sprintf("%-*s", m, v)
	}
	return z
}

// FloatFmter formats an array of numbers with four decimals.
func FloatFmter(x interface{}, h string) []string {
	y := x.([]float64)
	s := make([]string, len(y))
	for i, v := range y {
		s[i] = fmt.Sprintf("%10.4f", v)
	}
	return s
}

// IntFmter formats an array of integers.
func IntFmter(x interface{}, h string) []string {
	y := x.([]int)
	s := make([]string, len(y))
	for i, v := range y {
		s[i] = fmt.Sprintf("%8d", v)
	}
	return s
}

// Draw a line constructed of the given character filling the width of
// the table.
func (s *SummaryTable) line(c string) string {
	return strings.Repeat(c, s.tw) + "\n"
}

// cleanTop ensures that all fields in the top part of the table have
// the same width.
func (s *SummaryTable) cleanTop() {

	w := 0
	for _, x := range s.Top {
		if len(x) > w {
			w = len(x)
		}
	}

	for i, x := range s.Top {
		s.Top[i] = fmt.Sprintf("%-*s", w, x)
	}
}

// Construct the upper part of the table, which contains summary
// values for the model, two per line.
func (s *SummaryTable) top(gap int) string {

	var b strings.Builder
	for j, x := range s.Top {
		b.WriteString(x)
		if j%2 == 1 {
			b.WriteString("\n")
		} else {
			b.WriteString(strings.Repeat(" ", gap))
		}
	}

	if len(s.Top)%2 == 1 {
		b.WriteString("\n")
	}

	return b.String()
}

// String returns the table as a string.
func (s *SummaryTable) String() string {

	s.cleanTop()

	var tab [][]string
	var wx []int
	for j, c := range s.Cols {
		u := s.ColFmt[j](c, s.ColNames[j])
		tab = append(tab, u)
		w := len(s.ColNames[j])
		if len(u) > 0 && len(u[0]) > w {
			w = len(u[0])
		}
		wx = append(wx, w+2)
	}

	gap := 10

	// Get the total width of the table
	s.tw = 0
	for _, w := range wx {
		s.tw += w
	}
	if s.tw < len(s.Title) {
		s.tw = len(s.Title)
	}
	if len(s.Top) > 0 && s.tw < gap+2*len(s.Top[0]) {
		s.tw = gap + 2*len(s.Top[0])
	}

	var buf strings.Builder

	// Center the title
	kr := (s.tw - len(s.Title)) / 2
	if kr < 0 {
		kr = 0
	}
	buf.WriteString(strings.Repeat(" ", kr) + s.Title + "\n")

	buf.WriteString(s.line("="))
	if len(s.Top) > 0 {
		buf.WriteString(s.top(gap))
		buf.WriteString(s.line("-"))
	}

	for j, c := range s.ColNames {
		fmt.Fprintf(&buf, "%*s", wx[j], c)
	}
	buf.WriteString("\n")
	buf.WriteString(s.line("-"))

	nrow := 0
	if len(tab) > 0 {
		nrow = len(tab[0])
	}
	for i := 0; i < nrow; i++ {
		for j := range tab {
			fmt.Fprintf(&buf, "%*s", wx[j], tab[j][i])
		}
		buf.WriteString("\n")
	}
	buf.WriteString(s.line("-"))

	for _, msg := range s.Msg {
		buf.WriteString(msg + "\n")
	}

	return buf.String()
}
