package output

import (
	"encoding/json"
	"fmt"
	"io"

	nisbus "github.com/jmylchreest/nisfere/internal/dbus"
)

// EventFormatter writes cache events as they arrive, one per line.
type EventFormatter struct {
	format FormatType
	opts   FormatterOptions
}

// NewEventFormatter creates an event formatter. JSON emits one compact
// object per line; anything else is plain text.
func NewEventFormatter(format FormatType, opts FormatterOptions) *EventFormatter {
	return &EventFormatter{format: format, opts: opts}
}

// FormatEvent writes a single event.
func (f *EventFormatter) FormatEvent(w io.Writer, ev nisbus.CacheEvent) error {
	if f.format == FormatJSON {
		return json.NewEncoder(w).Encode(ev)
	}

	var line string
	switch ev.Kind {
	case nisbus.EventAdded:
		line = fmt.Sprintf("added %d", ev.CacheID)
		if ev.Record != nil {
			if ev.Record.AppName != "" {
				line += " <" + ev.Record.AppName + ">"
			}
			line += " " + ev.Record.Summary
		}
	case nisbus.EventRemoved:
		line = fmt.Sprintf("removed %d", ev.CacheID)
	case nisbus.EventCleared:
		line = "cleared"
	case nisbus.EventCountChanged:
		if ev.Count != nil {
			line = fmt.Sprintf("count %d", *ev.Count)
		}
	case nisbus.EventDoNotDisturbChanged:
		if ev.DoNotDisturb != nil {
			line = "dnd " + onOff(*ev.DoNotDisturb)
		}
	}
	if line == "" {
		line = string(ev.Kind)
	}

	_, err := fmt.Fprintln(w, line)
	return err
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
