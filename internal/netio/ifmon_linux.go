//go:build linux

package netio

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/vishvananda/netlink"
)

// -------------------------------------------------------------------------
// NetlinkInterfaceMonitor — RTM_NEWLINK/RTM_DELLINK backed InterfaceMonitor
// -------------------------------------------------------------------------

// NetlinkInterfaceMonitor watches link state changes via NETLINK_ROUTE
// using github.com/vishvananda/netlink's subscription API. Unlike
// StubInterfaceMonitor, it reports real IFF_UP|IFF_RUNNING transitions
// for the TUN device and any interface nat64d is told to watch.
type NetlinkInterfaceMonitor struct {
	events chan InterfaceEvent
	done   chan struct{}
	logger *slog.Logger
}

// NewNetlinkInterfaceMonitor creates an InterfaceMonitor backed by a
// rtnetlink link-update subscription.
func NewNetlinkInterfaceMonitor(logger *slog.Logger) *NetlinkInterfaceMonitor {
	return &NetlinkInterfaceMonitor{
		events: make(chan InterfaceEvent, 16),
		done:   make(chan struct{}),
		logger: logger.With(slog.String("component", "ifmon.netlink")),
	}
}

// Run subscribes to rtnetlink link updates and translates them into
// InterfaceEvents until ctx is cancelled. Run must be called at most
// once.
func (m *NetlinkInterfaceMonitor) Run(ctx context.Context) error {
	updates := make(chan netlink.LinkUpdate)
	if err := netlink.LinkSubscribe(updates, m.done); err != nil {
		close(m.events)
		return fmt.Errorf("subscribe to link updates: %w", err)
	}

	m.logger.Info("netlink interface monitor started")
	defer m.logger.Info("netlink interface monitor stopped")
	defer close(m.events)

	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			m.dispatch(upd)
		}
	}
}

// dispatch converts a netlink.LinkUpdate into an InterfaceEvent and
// sends it, dropping the event if the channel is full rather than
// blocking the rtnetlink read loop.
func (m *NetlinkInterfaceMonitor) dispatch(upd netlink.LinkUpdate) {
	attrs := upd.Link.Attrs()
	ev := InterfaceEvent{
		IfName:  attrs.Name,
		IfIndex: attrs.Index,
		Up:      attrs.Flags&net.FlagUp != 0 && attrs.OperState == netlink.OperUp,
	}

	select {
	case m.events <- ev:
	default:
		m.logger.Warn("interface event dropped, channel full",
			slog.String("interface", ev.IfName))
	}
}

// Events returns the channel of detected interface state changes.
func (m *NetlinkInterfaceMonitor) Events() <-chan InterfaceEvent {
	return m.events
}

// Close stops the rtnetlink subscription, causing Run to return.
func (m *NetlinkInterfaceMonitor) Close() error {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
	return nil
}
