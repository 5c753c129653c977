package output

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/nisfere/internal/model"
)

// PlainFormatter formats records as plain text.
type PlainFormatter struct {
	opts     FormatterOptions
	template *template.Template
}

// NewPlainFormatter creates a new plain text formatter.
func NewPlainFormatter(opts FormatterOptions) *PlainFormatter {
	f := &PlainFormatter{opts: opts}

	if opts.Template != "" {
		tmpl, err := template.New("plain").Funcs(templateFuncs()).Parse(opts.Template)
		if err == nil {
			f.template = tmpl
		}
	}

	return f
}

// Format writes records as plain text.
func (f *PlainFormatter) Format(w io.Writer, records []model.Record) error {
	for i := range records {
		if err := f.formatRecord(w, i+1, &records[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *PlainFormatter) formatRecord(w io.Writer, index int, r *model.Record) error {
	if f.template != nil {
		if err := f.template.Execute(w, templateData{Index: index, Record: r}); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\n")
		return err
	}

	var sb strings.Builder

	if f.opts.ShowIndex {
		fmt.Fprintf(&sb, "[%d] ", index)
	} else {
		fmt.Fprintf(&sb, "%4d  ", r.CacheID)
	}

	if f.opts.ShowUrgency {
		sb.WriteString(urgencyMarker(r.Urgency) + " ")
	}

	if f.opts.ShowApp && r.AppName != "" {
		fmt.Fprintf(&sb, "<%s> ", r.AppName)
	}

	sb.WriteString(r.Summary)
	if img := imageSummary(r); img != "" {
		sb.WriteString(" " + img)
	}
	sb.WriteString("\n")

	if f.opts.BodyMaxLen > 0 && r.Body != "" {
		var body string
		if f.opts.IncludeNewline {
			body = r.Body
		} else {
			body = model.BodyTruncated(r.Body, f.opts.BodyMaxLen)
		}
		sb.WriteString("      " + body + "\n")
	}

	if len(r.Actions) > 0 {
		labels := make([]string, 0, len(r.Actions))
		for _, a := range r.Actions {
			labels = append(labels, a.Identifier+"="+a.Label)
		}
		sb.WriteString("      actions: " + strings.Join(labels, ", ") + "\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// imageSummary describes a record's image in a few words.
func imageSummary(r *model.Record) string {
	switch {
	case r.ImagePixmap != nil:
		return fmt.Sprintf("[image %dx%d, %s]",
			r.ImagePixmap.Width, r.ImagePixmap.Height, humanize.Bytes(uint64(len(r.ImagePixmap.Data))))
	case r.ImageFile != "":
		return "[image " + r.ImageFile + "]"
	default:
		return ""
	}
}

// urgencyMarker returns a one-character urgency indicator.
func urgencyMarker(u model.Urgency) string {
	switch u {
	case model.UrgencyLow:
		return "L"
	case model.UrgencyCritical:
		return "!"
	default:
		return "-"
	}
}

// FormatField outputs a specific field from a record.
func FormatField(r *model.Record, field string) string {
	switch strings.ToLower(field) {
	case "id", "cached_id", "cached-id":
		return fmt.Sprint(r.CacheID)
	case "source", "source_id":
		return fmt.Sprint(r.SourceID)
	case "app", "app_name", "appname":
		return r.AppName
	case "icon", "app_icon":
		return r.AppIcon
	case "summary":
		return r.Summary
	case "body":
		return r.Body
	case "urgency":
		return r.Urgency.String()
	case "image", "image_file":
		return r.ImageFile
	case "all", "full":
		return fmt.Sprintf("%s\n%s", r.Summary, r.Body)
	default:
		return r.Summary
	}
}
