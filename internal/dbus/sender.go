package dbus

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/nisfere/internal/model"
)

// Message is a notification to send to whichever daemon owns
// org.freedesktop.Notifications.
type Message struct {
	AppName       string
	AppIcon       string
	Summary       string
	Body          string
	Urgency       model.Urgency
	Actions       []model.Action
	ReplacesID    uint32
	ExpireTimeout int32 // -1 = server default, 0 = never expire
	Category      string
	ImagePath     string
	Image         *ImageData
	Transient     bool
}

// Sender sends desktop notifications via D-Bus.
type Sender struct {
	obj dbus.BusObject
}

// NewSender connects to the session bus.
func NewSender() (*Sender, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &Sender{obj: conn.Object(NotificationsName, NotificationsPath)}, nil
}

// Send delivers m and returns the id assigned by the daemon.
func (s *Sender) Send(ctx context.Context, m Message) (uint32, error) {
	// Notify(app_name, replaces_id, icon, summary, body, actions, hints, timeout) -> id
	call := s.obj.CallWithContext(ctx, NotificationsInterface+".Notify", 0,
		m.AppName,
		m.ReplacesID,
		m.AppIcon,
		m.Summary,
		m.Body,
		flattenActions(m.Actions),
		m.hints(),
		m.ExpireTimeout,
	)
	if call.Err != nil {
		return 0, call.Err
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Close closes a notification by ID.
func (s *Sender) Close(ctx context.Context, id uint32) error {
	return s.obj.CallWithContext(ctx, NotificationsInterface+".CloseNotification", 0, id).Err
}

func (m Message) hints() map[string]dbus.Variant {
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(m.Urgency)),
	}
	if m.Category != "" {
		hints["category"] = dbus.MakeVariant(m.Category)
	}
	if m.ImagePath != "" {
		hints["image-path"] = dbus.MakeVariant(m.ImagePath)
	}
	if m.Image != nil {
		hints["image-data"] = dbus.MakeVariant(*m.Image)
	}
	if m.Transient {
		hints["transient"] = dbus.MakeVariant(true)
	}
	return hints
}

// flattenActions converts action pairs to the alternating key/label list.
func flattenActions(actions []model.Action) []string {
	flat := make([]string, 0, len(actions)*2)
	for _, a := range actions {
		flat = append(flat, a.Identifier, a.Label)
	}
	return flat
}
