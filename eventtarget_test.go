package sage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventTargetDispatchesInRegistrationOrder(t *testing.T) {
	et := NewEventTarget()
	var order []int
	et.AddEventListener(NotifyExecutiveStarted, func(*Notification) { order = append(order, 1) })
	et.AddEventListener(NotifyExecutiveStarted, func(*Notification) { order = append(order, 2) })

	et.DispatchEvent(&Notification{Type: NotifyExecutiveStarted})
	require.Equal(t, []int{1, 2}, order)
}

func TestEventTargetOnceListenerFiresOnlyOnce(t *testing.T) {
	et := NewEventTarget()
	count := 0
	et.AddEventListenerOnce(NotifyExecutiveStarted, func(*Notification) { count++ })

	et.DispatchEvent(&Notification{Type: NotifyExecutiveStarted})
	et.DispatchEvent(&Notification{Type: NotifyExecutiveStarted})
	require.Equal(t, 1, count)
}

func TestEventTargetRemoveEventListener(t *testing.T) {
	et := NewEventTarget()
	fired := false
	id := et.AddEventListener(NotifyExecutiveStarted, func(*Notification) { fired = true })
	require.True(t, et.RemoveEventListener(NotifyExecutiveStarted, id))
	require.False(t, et.RemoveEventListener(NotifyExecutiveStarted, id))

	et.DispatchEvent(&Notification{Type: NotifyExecutiveStarted})
	require.False(t, fired)
}

func TestNotificationPreventDefaultRequiresCancelable(t *testing.T) {
	n := &Notification{Cancelable: false}
	n.PreventDefault()
	require.False(t, n.DefaultPrevented)

	n = &Notification{Cancelable: true}
	n.PreventDefault()
	require.True(t, n.DefaultPrevented)
}
