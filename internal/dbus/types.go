package dbus

import (
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/nisfere/internal/model"
)

// CloseReason represents the reason for closing a notification.
// These values are defined by the freedesktop.org notification specification.
type CloseReason uint32

const (
	// CloseReasonExpired indicates the notification expired (timeout reached).
	CloseReasonExpired CloseReason = 1
	// CloseReasonDismissed indicates the user dismissed the notification.
	CloseReasonDismissed CloseReason = 2
	// CloseReasonClosed indicates the notification was closed via CloseNotification.
	CloseReasonClosed CloseReason = 3
	// CloseReasonUndefined is reserved/undefined per the protocol.
	CloseReasonUndefined CloseReason = 4
)

// String returns the string representation of the close reason.
func (r CloseReason) String() string {
	switch r {
	case CloseReasonExpired:
		return "expired"
	case CloseReasonDismissed:
		return "dismissed"
	case CloseReasonClosed:
		return "closed"
	case CloseReasonUndefined:
		return "undefined"
	default:
		return "unknown"
	}
}

// DBusNotification represents an incoming D-Bus Notify call.
// It contains the raw parameters from the org.freedesktop.Notifications.Notify method.
type DBusNotification struct {
	AppName       string
	ReplacesID    uint32
	AppIcon       string
	Summary       string
	Body          string
	Actions       []string // Alternating key, label pairs
	Hints         map[string]dbus.Variant
	ExpireTimeout int32 // -1 = server default, 0 = never expire
}

// ImageData is the (iiibiiay) pixel buffer carried by the image-data hint.
// The field order matches the wire struct.
type ImageData struct {
	Width         int32
	Height        int32
	Rowstride     int32
	HasAlpha      bool
	BitsPerSample int32
	Channels      int32
	Data          []byte
}

// Image hint names, newest first. Older clients use the underscore forms.
var (
	imageDataHints = []string{"image-data", "image_data", "icon_data"}
	imagePathHints = []string{"image-path", "image_path"}
)

func (n *DBusNotification) hintString(name string) string {
	if v, ok := n.Hints[name]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

func (n *DBusNotification) hintBool(name string) bool {
	if v, ok := n.Hints[name]; ok {
		if b, ok := v.Value().(bool); ok {
			return b
		}
	}
	return false
}

// Urgency extracts the urgency hint from the notification.
// Returns model.UrgencyNormal if missing or out of range.
func (n *DBusNotification) Urgency() model.Urgency {
	v, ok := n.Hints["urgency"]
	if !ok {
		return model.UrgencyNormal
	}

	var u model.Urgency
	switch val := v.Value().(type) {
	case byte:
		u = model.Urgency(val)
	case int32:
		u = model.Urgency(val)
	case uint32:
		u = model.Urgency(val)
	case int:
		u = model.Urgency(val)
	default:
		return model.UrgencyNormal
	}
	if !u.Valid() {
		return model.UrgencyNormal
	}
	return u
}

// Category extracts the category hint from the notification.
func (n *DBusNotification) Category() string {
	return n.hintString("category")
}

// DesktopEntry extracts the desktop-entry hint.
func (n *DBusNotification) DesktopEntry() string {
	return n.hintString("desktop-entry")
}

// Transient returns true if the transient hint is set.
func (n *DBusNotification) Transient() bool {
	return n.hintBool("transient")
}

// Resident returns true if the resident hint is set.
// Resident notifications should not be auto-removed after an action is invoked.
func (n *DBusNotification) Resident() bool {
	return n.hintBool("resident")
}

// ImagePath extracts the image-path hint, stripping a file:// prefix.
func (n *DBusNotification) ImagePath() string {
	for _, name := range imagePathHints {
		if s := n.hintString(name); s != "" {
			return strings.TrimPrefix(s, "file://")
		}
	}
	return ""
}

// ImagePixmap decodes the first valid pixel buffer hint.
// Returns nil if none is present or every candidate is malformed.
func (n *DBusNotification) ImagePixmap() *model.Pixmap {
	for _, name := range imageDataHints {
		v, ok := n.Hints[name]
		if !ok {
			continue
		}
		px, err := decodePixmap(v.Value())
		if err != nil {
			continue
		}
		return px
	}
	return nil
}

// decodePixmap accepts the (iiibiiay) struct as godbus delivers it
// ([]interface{}) or as an ImageData value built in-process.
func decodePixmap(value any) (*model.Pixmap, error) {
	var px model.Pixmap

	switch v := value.(type) {
	case ImageData:
		px = model.Pixmap(v)
	case *ImageData:
		if v == nil {
			return nil, fmt.Errorf("%w: nil image data", model.ErrInvalidPixmap)
		}
		px = model.Pixmap(*v)
	case []any:
		if len(v) != 7 {
			return nil, fmt.Errorf("%w: expected 7 fields, got %d", model.ErrInvalidPixmap, len(v))
		}
		ints := make([]int32, 0, 5)
		for _, i := range []int{0, 1, 2, 4, 5} {
			x, ok := v[i].(int32)
			if !ok {
				return nil, fmt.Errorf("%w: field %d is %T, want int32", model.ErrInvalidPixmap, i, v[i])
			}
			ints = append(ints, x)
		}
		alpha, ok := v[3].(bool)
		if !ok {
			return nil, fmt.Errorf("%w: field 3 is %T, want bool", model.ErrInvalidPixmap, v[3])
		}
		data, ok := v[6].([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: field 6 is %T, want []byte", model.ErrInvalidPixmap, v[6])
		}
		px = model.Pixmap{
			Width:         ints[0],
			Height:        ints[1],
			Rowstride:     ints[2],
			HasAlpha:      alpha,
			BitsPerSample: ints[3],
			Channels:      ints[4],
			Data:          append([]byte(nil), data...),
		}
	default:
		return nil, fmt.Errorf("%w: unsupported hint type %T", model.ErrInvalidPixmap, value)
	}

	if err := px.Validate(); err != nil {
		return nil, err
	}
	return &px, nil
}

// ToModel converts the raw Notify call into a live notification with id.
func (n *DBusNotification) ToModel(id uint32, receivedAt time.Time) model.Notification {
	m := model.Notification{
		ID:            id,
		ReplacesID:    n.ReplacesID,
		AppName:       n.AppName,
		AppIcon:       n.AppIcon,
		Summary:       n.Summary,
		Body:          n.Body,
		Urgency:       n.Urgency(),
		Actions:       model.ParseActions(n.Actions),
		ExpireTimeout: n.ExpireTimeout,
		Category:      n.Category(),
		DesktopEntry:  n.DesktopEntry(),
		Resident:      n.Resident(),
		Transient:     n.Transient(),
		ReceivedAt:    receivedAt,
	}
	if px := n.ImagePixmap(); px != nil {
		m.ImagePixmap = px
	} else {
		m.ImageFile = n.ImagePath()
	}
	return m
}

// ServerCapabilities lists the capabilities advertised by nisfered.
var ServerCapabilities = []string{
	"actions",     // Support notification actions
	"body",        // Support body text
	"body-markup", // Support Pango markup in body
	"icon-static", // Support static icons
	"persistence", // Persist notifications to history
}

// ServerInfo contains information about the notification server.
type ServerInfo struct {
	Name        string // "nisfered"
	Vendor      string // "nisfere"
	Version     string // Build version
	SpecVersion string // "1.2"
}

// DefaultServerInfo returns the default server information.
func DefaultServerInfo() ServerInfo {
	return ServerInfo{
		Name:        "nisfered",
		Vendor:      "nisfere",
		Version:     "0.0.1", // Will be replaced by build-time version
		SpecVersion: "1.2",
	}
}
