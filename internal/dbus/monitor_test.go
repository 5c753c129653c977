package dbus

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/nisfere/internal/model"
	"github.com/jmylchreest/nisfere/internal/store"
)

func notifyCall(sender, summary string) *dbus.Message {
	return &dbus.Message{
		Type: dbus.TypeMethodCall,
		Headers: map[dbus.HeaderField]dbus.Variant{
			dbus.FieldInterface: dbus.MakeVariant(NotificationsInterface),
			dbus.FieldMember:    dbus.MakeVariant("Notify"),
			dbus.FieldSender:    dbus.MakeVariant(sender),
		},
		Body: []any{
			"chat", uint32(0), "chat-icon", summary, "body",
			[]string{"reply", "Reply"},
			map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(0))},
			int32(5000),
		},
	}
}

// notifyReply answers the call built by notifyCall. Messages built in
// tests all have serial 0.
func notifyReply(destination string, id uint32) *dbus.Message {
	return &dbus.Message{
		Type: dbus.TypeMethodReply,
		Headers: map[dbus.HeaderField]dbus.Variant{
			dbus.FieldReplySerial: dbus.MakeVariant(uint32(0)),
			dbus.FieldDestination: dbus.MakeVariant(destination),
		},
		Body: []any{id},
	}
}

func closedSignal(id uint32, reason CloseReason) *dbus.Message {
	return &dbus.Message{
		Type: dbus.TypeSignal,
		Headers: map[dbus.HeaderField]dbus.Variant{
			dbus.FieldInterface: dbus.MakeVariant(NotificationsInterface),
			dbus.FieldMember:    dbus.MakeVariant("NotificationClosed"),
		},
		Body: []any{id, uint32(reason)},
	}
}

func TestMonitor_PairsCallWithReply(t *testing.T) {
	m := NewMonitor(0, nil)

	var got []model.Notification
	m.SetNotifyHandler(func(n model.Notification) { got = append(got, n) })

	m.handleMessage(notifyCall(":1.10", "hi"))
	assert.Empty(t, got, "nothing is live until the daemon replies")

	m.handleMessage(notifyReply(":1.10", 77))
	require.Len(t, got, 1)
	assert.Equal(t, uint32(77), got[0].ID)
	assert.Equal(t, "hi", got[0].Summary)
	assert.Equal(t, model.UrgencyLow, got[0].Urgency)
	assert.Equal(t, []model.Action{{Identifier: "reply", Label: "Reply"}}, got[0].Actions)

	n, err := m.Fetch(77)
	require.NoError(t, err)
	assert.Equal(t, "chat", n.AppName)

	// A duplicate reply is ignored.
	m.handleMessage(notifyReply(":1.10", 77))
	assert.Len(t, got, 1)
}

func TestMonitor_IgnoresUnrelatedReplies(t *testing.T) {
	m := NewMonitor(0, nil)
	fired := false
	m.SetNotifyHandler(func(model.Notification) { fired = true })

	m.handleMessage(notifyCall(":1.10", "hi"))
	m.handleMessage(notifyReply(":1.99", 5))
	assert.False(t, fired)

	_, err := m.Fetch(5)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMonitor_NotificationClosed(t *testing.T) {
	m := NewMonitor(0, nil)

	var reasons []CloseReason
	m.SetCloseHandler(func(id uint32, reason CloseReason) { reasons = append(reasons, reason) })

	m.handleMessage(notifyCall(":1.10", "hi"))
	m.handleMessage(notifyReply(":1.10", 3))
	m.handleMessage(closedSignal(3, CloseReasonDismissed))

	_, err := m.Fetch(3)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, []CloseReason{CloseReasonDismissed}, reasons)

	// Signals for ids never seen do not reach the handler.
	m.handleMessage(closedSignal(999, CloseReasonExpired))
	assert.Len(t, reasons, 1)
}

func TestMonitor_BoundedLiveTable(t *testing.T) {
	m := NewMonitor(2, nil)

	for i, sender := range []string{":1.1", ":1.2", ":1.3"} {
		m.handleMessage(notifyCall(sender, "n"))
		m.handleMessage(notifyReply(sender, uint32(i+1)))
	}

	_, err := m.Fetch(1)
	assert.ErrorIs(t, err, store.ErrNotFound, "oldest is evicted")
	_, err = m.Fetch(2)
	assert.NoError(t, err)
	_, err = m.Fetch(3)
	assert.NoError(t, err)
}

func TestMonitor_MalformedCall(t *testing.T) {
	m := NewMonitor(0, nil)
	msg := notifyCall(":1.10", "hi")
	msg.Body = msg.Body[:3]
	m.handleMessage(msg)
	m.handleMessage(notifyReply(":1.10", 1))

	_, err := m.Fetch(1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestParseNotifyBody(t *testing.T) {
	n, err := parseNotifyBody(notifyCall(":1.1", "sum").Body)
	require.NoError(t, err)
	assert.Equal(t, "chat", n.AppName)
	assert.Equal(t, "chat-icon", n.AppIcon)
	assert.Equal(t, "sum", n.Summary)
	assert.Equal(t, int32(5000), n.ExpireTimeout)

	body := notifyCall(":1.1", "sum").Body
	body[1] = "not a uint32"
	_, err = parseNotifyBody(body)
	assert.Error(t, err)

	_, err = parseNotifyBody(nil)
	assert.Error(t, err)
}
