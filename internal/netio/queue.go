package netio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/apalrd/gonat64/internal/xlat64"
)

// -------------------------------------------------------------------------
// Translator — the interface queue.Dispatcher drives
// -------------------------------------------------------------------------

// Translator is satisfied by *xlat64.Translator. Declaring it as an
// interface here, rather than importing the concrete type directly into
// the hot read loop, keeps Dispatcher trivially testable with a stub.
type Translator interface {
	TranslateFromV4(buf []byte) ([]byte, xlat64.Outcome, error)
	TranslateFromV6(buf []byte) ([]byte, xlat64.Outcome, error)
}

// -------------------------------------------------------------------------
// Dispatcher — TUN read loop
// -------------------------------------------------------------------------

// Dispatcher reads IP packets from a Device, routes each one through a
// Translator, and writes the resulting bytes back to the same Device.
//
// A single dual-stack TUN interface carries both legs of the
// translation, so "writing the v4 reply" and "writing the translated v6
// packet" are both just a Write on the same fd: the kernel's own routing
// table delivers the bytes to wherever their destination address says,
// whether that is the local host (an ICMP error or echo reply) or back
// out toward a real peer (a forwarded or hairpinned packet).
type Dispatcher struct {
	dev    Device
	xlat   Translator
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher bound to dev and xlat.
func NewDispatcher(dev Device, xlat Translator, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		dev:  dev,
		xlat: xlat,
		logger: logger.With(
			slog.String("component", "netio.dispatcher"),
			slog.String("device", dev.Name()),
		),
	}
}

// Run reads packets from the device in a loop until ctx is cancelled.
// Each packet is routed to TranslateFromV4 or TranslateFromV6 by its IP
// version and, on a non-nil result, written back to the device.
//
// Per-packet errors (malformed input, a translation drop) are logged at
// Debug and do not stop the loop; only context cancellation or a fatal
// device read error terminates it.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("dispatcher run: %w", err)
		}

		if err := d.recvOne(ctx); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("dispatcher run: %w", ctx.Err())
			}
			return err
		}
	}
}

// recvOne performs a single read-translate-write cycle using a pooled
// buffer. The buffer is returned to PacketPool before recvOne returns.
func (d *Dispatcher) recvOne(ctx context.Context) error {
	bufp, ok := PacketPool.Get().(*[]byte)
	if !ok {
		return fmt.Errorf("dispatcher recv: %w", ErrPoolType)
	}
	defer PacketPool.Put(bufp)

	n, err := d.dev.ReadPacket(*bufp)
	if err != nil {
		return fmt.Errorf("dispatcher read: %w", err)
	}
	buf := (*bufp)[:n]

	out, outcome, xerr := d.translate(buf)
	if xerr != nil {
		d.logger.Debug("translate error",
			slog.String("outcome", outcome.String()),
			slog.String("error", xerr.Error()),
		)
	}
	if outcome == xlat64.OutcomeDrop || len(out) == 0 {
		return nil
	}

	if werr := d.dev.WritePacket(out); werr != nil {
		d.logger.Warn("write error",
			slog.String("outcome", outcome.String()),
			slog.String("error", werr.Error()),
		)
	}

	_ = ctx // reserved for future per-packet deadline plumbing
	return nil
}

// translate dispatches buf to the matching translation direction by its
// leading IP version nibble. An unrecognized version (including an empty
// read) is reported as OutcomeDrop with ErrShortPacket; the read loop
// logs it and carries on, so a corrupt read is not fatal to the loop.
func (d *Dispatcher) translate(buf []byte) ([]byte, xlat64.Outcome, error) {
	switch IPVersion(buf) {
	case 4:
		return d.xlat.TranslateFromV4(buf)
	case 6:
		return d.xlat.TranslateFromV6(buf)
	default:
		return nil, xlat64.OutcomeDrop, ErrShortPacket
	}
}
