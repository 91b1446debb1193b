package render

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// A small reStructuredText writer covering the constructs people actually
// paste: section titles, paragraphs, lists, literal blocks, block quotes,
// transitions, comments and the common inline markup.

var (
	rstLiteral = regexp.MustCompile("``(.+?)``")
	rstLink    = regexp.MustCompile("`([^`]+?)\\s+&lt;([^`]+?)&gt;`__?")
	rstStrong  = regexp.MustCompile(`\*\*([^*\s](?:[^*]*[^*\s])?)\*\*`)
	rstEmph    = regexp.MustCompile(`\*([^*\s](?:[^*]*[^*\s])?)\*`)
	rstInterp  = regexp.MustCompile("`([^`]+)`")
	rstEnum    = regexp.MustCompile(`^(\d+|#|[a-zA-Z])[.)]\s+`)
)

const rstAdornments = "=-`:'\"~^_*+#<>.!$%&,/;?@[\\]{|}"

type rstWriter struct {
	out    strings.Builder
	levels map[string]int
}

func renderRST(src string) string {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	src = strings.ReplaceAll(src, "\t", "        ")
	w := &rstWriter{levels: map[string]int{}}
	w.out.WriteString(`<div class="document">`)
	w.blocks(strings.Split(src, "\n"))
	w.out.WriteString("</div>")
	return w.out.String()
}

func (w *rstWriter) blocks(lines []string) {
	i := 0
	for i < len(lines) {
		line := lines[i]
		switch {
		case blank(line):
			i++
		case indentOf(line) > 0:
			var block []string
			block, i = indented(lines, i)
			w.out.WriteString("<blockquote>")
			w.blocks(block)
			w.out.WriteString("</blockquote>")
		case line == ".." || strings.HasPrefix(line, ".. "):
			i++
			_, i = indented(lines, i)
		case isAdornment(line) && i+2 < len(lines) && !blank(lines[i+1]) && lines[i+2] == line:
			w.heading(strings.TrimSpace(lines[i+1]), "over"+line[:1])
			i += 3
		case isAdornment(line) && utf8.RuneCountInString(line) >= 4 && (i+1 == len(lines) || blank(lines[i+1])):
			w.out.WriteString("<hr/>")
			i++
		case listMarker(line) != "":
			i = w.list(lines, i)
		default:
			i = w.paragraph(lines, i)
		}
	}
}

func (w *rstWriter) heading(title, style string) {
	level, ok := w.levels[style]
	if !ok {
		level = len(w.levels) + 1
		w.levels[style] = level
	}
	if level > 6 {
		level = 6
	}
	tag := "h" + strconv.Itoa(level)
	w.out.WriteString("<" + tag + ">" + rstInline(title) + "</" + tag + ">")
}

func (w *rstWriter) paragraph(lines []string, i int) int {
	if i+1 < len(lines) && isAdornment(lines[i+1]) &&
		utf8.RuneCountInString(lines[i+1]) >= utf8.RuneCountInString(strings.TrimSpace(lines[i])) {
		w.heading(strings.TrimSpace(lines[i]), "under"+lines[i+1][:1])
		return i + 2
	}
	var para []string
	for i < len(lines) && !blank(lines[i]) && (len(para) == 0 || indentOf(lines[i]) == 0) {
		para = append(para, strings.TrimSpace(lines[i]))
		i++
	}
	text := strings.Join(para, " ")
	literal := strings.HasSuffix(text, "::")
	if literal {
		switch {
		case text == "::":
			text = ""
		case strings.HasSuffix(text, " ::"):
			text = strings.TrimSuffix(text, " ::")
		default:
			text = strings.TrimSuffix(text, ":")
		}
	}
	if text != "" {
		w.out.WriteString("<p>" + rstInline(text) + "</p>")
	}
	if !literal {
		return i
	}
	for i < len(lines) && blank(lines[i]) {
		i++
	}
	if i < len(lines) && indentOf(lines[i]) > 0 {
		var block []string
		block, i = indented(lines, i)
		w.out.WriteString("<pre>" + html.EscapeString(strings.Join(block, "\n")) + "</pre>")
	}
	return i
}

func (w *rstWriter) list(lines []string, i int) int {
	ordered := rstEnum.MatchString(lines[i])
	if ordered {
		w.out.WriteString("<ol>")
	} else {
		w.out.WriteString("<ul>")
	}
	for i < len(lines) {
		marker := listMarker(lines[i])
		if marker == "" || rstEnum.MatchString(lines[i]) != ordered {
			break
		}
		item := []string{strings.TrimSpace(lines[i][len(marker):])}
		i++
		var rest []string
		rest, i = indented(lines, i)
		item = append(item, rest...)
		w.out.WriteString("<li>")
		w.blocks(item)
		w.out.WriteString("</li>")
		for i < len(lines) && blank(lines[i]) {
			i++
		}
	}
	if ordered {
		w.out.WriteString("</ol>")
	} else {
		w.out.WriteString("</ul>")
	}
	return i
}

func listMarker(line string) string {
	for _, b := range []string{"- ", "* ", "+ "} {
		if strings.HasPrefix(line, b) {
			return b
		}
	}
	if m := rstEnum.FindString(line); m != "" {
		return m
	}
	return ""
}

// indented collects the indented block starting at i, dedented, and the
// index of the first line after it.
func indented(lines []string, i int) ([]string, int) {
	j := i
	for j < len(lines) && (blank(lines[j]) || indentOf(lines[j]) > 0) {
		j++
	}
	end := j
	for end > i && blank(lines[end-1]) {
		end--
	}
	block := lines[i:end]
	min := -1
	for _, l := range block {
		if blank(l) {
			continue
		}
		if n := indentOf(l); min < 0 || n < min {
			min = n
		}
	}
	out := make([]string, len(block))
	for k, l := range block {
		if len(l) >= min && min > 0 {
			out[k] = l[min:]
		} else {
			out[k] = strings.TrimLeft(l, " ")
		}
	}
	return out, end
}

func rstInline(s string) string {
	var b strings.Builder
	last := 0
	for _, m := range rstLiteral.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(rstMarkup(s[last:m[0]]))
		b.WriteString("<code>" + html.EscapeString(s[m[2]:m[3]]) + "</code>")
		last = m[1]
	}
	b.WriteString(rstMarkup(s[last:]))
	return b.String()
}

func rstMarkup(s string) string {
	s = html.EscapeString(s)
	s = rstLink.ReplaceAllStringFunc(s, func(m string) string {
		sub := rstLink.FindStringSubmatch(m)
		if !safeHref(html.UnescapeString(sub[2])) {
			return sub[1]
		}
		return `<a href="` + sub[2] + `">` + sub[1] + "</a>"
	})
	s = rstStrong.ReplaceAllString(s, "<strong>$1</strong>")
	s = rstEmph.ReplaceAllString(s, "<em>$1</em>")
	s = rstInterp.ReplaceAllString(s, "<cite>$1</cite>")
	return s
}

func safeHref(u string) bool {
	for _, p := range []string{"http://", "https://", "mailto:", "/", "#"} {
		if strings.HasPrefix(u, p) {
			return true
		}
	}
	return false
}

func isAdornment(line string) bool {
	line = strings.TrimRight(line, " ")
	if len(line) < 2 || !strings.ContainsRune(rstAdornments, rune(line[0])) {
		return false
	}
	return strings.Count(line, line[:1]) == len(line)
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " "))
}

func blank(line string) bool {
	return strings.TrimSpace(line) == ""
}
