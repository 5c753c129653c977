// Package model defines the core data structures for nisfere.
package model

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Urgency is the freedesktop urgency level, carried as its ordinal.
type Urgency int

// Urgency levels matching freedesktop spec.
const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// UrgencyNames maps urgency levels to human-readable names.
var UrgencyNames = map[Urgency]string{
	UrgencyLow:      "low",
	UrgencyNormal:   "normal",
	UrgencyCritical: "critical",
}

// String returns the urgency name, or "unknown" for out-of-range values.
func (u Urgency) String() string {
	if name, ok := UrgencyNames[u]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether u is one of the three defined levels.
func (u Urgency) Valid() bool {
	return u >= UrgencyLow && u <= UrgencyCritical
}

// ParseUrgency parses an urgency name or ordinal ("low", "1", "critical").
func ParseUrgency(s string) (Urgency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "0":
		return UrgencyLow, nil
	case "normal", "1", "":
		return UrgencyNormal, nil
	case "critical", "2":
		return UrgencyCritical, nil
	default:
		return UrgencyNormal, fmt.Errorf("invalid urgency %q: must be low, normal or critical", s)
	}
}

// Action is a notification action: an identifier and a human-readable label.
// It is serialized as the two-element array [identifier, label].
type Action struct {
	Identifier string
	Label      string
}

// MarshalJSON implements json.Marshaler.
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{a.Identifier, a.Label})
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Action) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("action: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("action: expected [identifier, label], got %d elements", len(pair))
	}
	a.Identifier = pair[0]
	a.Label = pair[1]
	return nil
}

// ParseActions converts the flat D-Bus action list (alternating key/label)
// into pairs. A trailing key without a label is dropped.
func ParseActions(flat []string) []Action {
	actions := make([]Action, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		actions = append(actions, Action{Identifier: flat[i], Label: flat[i+1]})
	}
	return actions
}

// Pixmap is an inline pixel buffer as delivered in the image-data hint
// (D-Bus signature (iiibiiay)).
type Pixmap struct {
	Width         int32
	Height        int32
	Rowstride     int32
	HasAlpha      bool
	BitsPerSample int32
	Channels      int32
	Data          []byte
}

// ErrInvalidPixmap is returned when a pixmap's geometry does not match its data.
var ErrInvalidPixmap = errors.New("invalid pixmap")

// Validate checks that the buffer is large enough for the declared geometry.
func (p *Pixmap) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("%w: non-positive size %dx%d", ErrInvalidPixmap, p.Width, p.Height)
	}
	if p.Channels < 3 || p.Channels > 4 {
		return fmt.Errorf("%w: unsupported channel count %d", ErrInvalidPixmap, p.Channels)
	}
	if p.Rowstride < p.Width*p.Channels*p.BitsPerSample/8 {
		return fmt.Errorf("%w: rowstride %d too small", ErrInvalidPixmap, p.Rowstride)
	}
	// The last row is allowed to be unpadded.
	minLen := int(p.Rowstride)*int(p.Height-1) + int(p.Width*p.Channels*p.BitsPerSample/8)
	if len(p.Data) < minLen {
		return fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidPixmap, len(p.Data), minLen)
	}
	return nil
}

// MarshalJSON encodes the pixmap as
// [width, height, rowstride, has_alpha, bits_per_sample, channels, base64-data].
func (p Pixmap) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{
		p.Width,
		p.Height,
		p.Rowstride,
		p.HasAlpha,
		p.BitsPerSample,
		p.Channels,
		base64.StdEncoding.EncodeToString(p.Data),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Pixmap) UnmarshalJSON(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("pixmap: %w", err)
	}
	if len(fields) != 7 {
		return fmt.Errorf("pixmap: expected 7 fields, got %d", len(fields))
	}

	var encoded string
	targets := []any{&p.Width, &p.Height, &p.Rowstride, &p.HasAlpha, &p.BitsPerSample, &p.Channels, &encoded}
	for i, target := range targets {
		if err := json.Unmarshal(fields[i], target); err != nil {
			return fmt.Errorf("pixmap field %d: %w", i, err)
		}
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("pixmap data: %w", err)
	}
	p.Data = raw
	return nil
}

// Notification is a live protocol-level notification as held by the
// Notification Source. Its ID is only unique among currently-live
// notifications and is reused after they close.
type Notification struct {
	ID            uint32
	ReplacesID    uint32
	AppName       string
	AppIcon       string
	Summary       string
	Body          string
	Urgency       Urgency
	Actions       []Action
	ImagePixmap   *Pixmap
	ImageFile     string
	ExpireTimeout int32 // -1 = server default, 0 = never expire, >0 = milliseconds

	Category     string
	DesktopEntry string
	Resident     bool
	Transient    bool
	ReceivedAt   time.Time
}

// HasImage reports whether the notification carries an image of either kind.
func (n *Notification) HasImage() bool {
	return n.ImagePixmap != nil || n.ImageFile != ""
}

// BodyTruncated returns the body collapsed to one line and truncated to maxLen characters.
// If the body is longer, it is truncated and "..." is appended.
func BodyTruncated(body string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}

	body = strings.Join(strings.Fields(body), " ")
	runes := []rune(body)
	if len(runes) <= maxLen {
		return body
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
