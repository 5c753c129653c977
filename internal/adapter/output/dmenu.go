package output

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/jmylchreest/nisfere/internal/model"
)

// DmenuFormatter formats records for dmenu/rofi/fuzzel pickers.
type DmenuFormatter struct {
	opts     FormatterOptions
	template *template.Template
}

// NewDmenuFormatter returns a formatter for launcher menus. An invalid
// template falls back to the built-in line layout.
func NewDmenuFormatter(opts FormatterOptions) *DmenuFormatter {
	f := &DmenuFormatter{opts: opts}

	if opts.Template != "" {
		tmpl, err := template.New("dmenu").Funcs(templateFuncs()).Parse(opts.Template)
		if err == nil {
			f.template = tmpl
		}
	}

	return f
}

// Format writes records in dmenu format (one per line).
func (f *DmenuFormatter) Format(w io.Writer, records []model.Record) error {
	for i := range records {
		line := f.formatLine(i+1, &records[i])
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// formatLine formats a single record line. The first field is the cache
// id so a picked line can be fed back to "nisfere remove".
func (f *DmenuFormatter) formatLine(index int, r *model.Record) string {
	if f.template != nil {
		var buf strings.Builder
		if err := f.template.Execute(&buf, templateData{Index: index, Record: r}); err == nil {
			return buf.String()
		}
	}

	var parts []string
	sep := f.opts.Separator
	if sep == "" {
		sep = " | "
	}

	if f.opts.ShowIndex {
		parts = append(parts, fmt.Sprintf("%d", index))
	} else {
		parts = append(parts, fmt.Sprintf("%d", r.CacheID))
	}

	if f.opts.ShowUrgency {
		parts = append(parts, urgencyMarker(r.Urgency))
	}

	if f.opts.ShowApp && r.AppName != "" {
		parts = append(parts, r.AppName)
	}

	content := r.Summary
	if r.Body != "" {
		body := sanitizeBody(r.Body, f.opts.BodyMaxLen, f.opts.IncludeNewline)
		if body != "" {
			content += ": " + body
		}
	}
	parts = append(parts, content)

	return strings.Join(parts, sep)
}

// templateData is what custom templates see as dot.
type templateData struct {
	Index  int
	Record *model.Record
}

// templateFuncs are the helpers available to custom templates.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"truncate": func(s string, maxLen int) string {
			return model.BodyTruncated(s, maxLen)
		},
		"urgencyIcon": urgencyMarker,
		"image": func(r *model.Record) string {
			return imageSummary(r)
		},
	}
}

// sanitizeBody collapses whitespace and truncates to maxLen runes.
func sanitizeBody(body string, maxLen int, includeNewline bool) string {
	if !includeNewline {
		body = strings.ReplaceAll(body, "\n", " ")
		body = strings.ReplaceAll(body, "\r", "")
	}

	for strings.Contains(body, "  ") {
		body = strings.ReplaceAll(body, "  ", " ")
	}

	body = strings.TrimSpace(body)

	if maxLen > 0 {
		runes := []rune(body)
		if len(runes) > maxLen {
			if maxLen <= 3 {
				return string(runes[:maxLen])
			}
			return string(runes[:maxLen-3]) + "..."
		}
	}

	return body
}
