//go:build linux

package netio

import (
	"net"
	"net/netip"
	"os"
	"strings"
	"sync"
	"syscall"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// -------------------------------------------------------------------------
// LinuxTUNDevice — /dev/net/tun backed Device
// -------------------------------------------------------------------------

// LinuxTUNDevice implements Device using the Linux universal TUN/TAP
// driver. The device is opened in IFF_TUN|IFF_NO_PI mode: no Ethernet
// framing (pure IP) and no 4-byte packet-information header prepended
// to each read, since the translator only ever needs to distinguish
// IPv4 from IPv6, which IPVersion already does from the IP header
// itself.
type LinuxTUNDevice struct {
	file   *os.File
	name   string
	closed bool
	mu     sync.Mutex
}

const tunDevicePath = "/dev/net/tun"

// ifReq mirrors struct ifreq's IFNAMSIZ-byte name followed by the
// 2-byte flags field the TUNSETIFF ioctl reads; the trailing padding
// rounds the struct out to the kernel's expected size.
type ifReq struct {
	Name  [unix.IFNAMSIZ]byte
	Flags uint16
	pad   [22]byte // rounds the struct out to sizeof(struct ifreq) == 40 on Linux
}

// NewTUNDevice opens (creating if necessary) the named TUN interface in
// IFF_TUN|IFF_NO_PI mode. If name is empty, the kernel assigns the next
// available "tunN" name; the assigned name is reported by Name().
//
// Requires CAP_NET_ADMIN. Typical deployment runs nat64d with
// CAP_NET_ADMIN granted via systemd AmbientCapabilities rather than as
// root.
//
// The fd is opened blocking, configured via TUNSETIFF, then switched to
// non-blocking mode before being wrapped in *os.File: /dev/net/tun does
// not support epoll registration until after TUNSETIFF has run, so
// wrapping it in os.NewFile too early would leave Go's runtime poller
// unable to multiplex it.
func NewTUNDevice(name string) (*LinuxTUNDevice, error) {
	fd, err := unix.Open(tunDevicePath, os.O_RDWR|syscall.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", tunDevicePath)
	}

	var req ifReq
	copy(req.Name[:], name)
	req.Flags = unix.IFF_TUN | unix.IFF_NO_PI

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(unix.TUNSETIFF), uintptr(unsafe.Pointer(&req))); errno != 0 {
		_ = unix.Close(fd)
		return nil, errors.Wrapf(errno, "TUNSETIFF %q", name)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrap(err, "set tun fd nonblocking")
	}

	assigned := nullTerminatedString(req.Name[:])

	return &LinuxTUNDevice{
		file: os.NewFile(uintptr(fd), tunDevicePath),
		name: assigned,
	}, nil
}

// ReadPacket reads a single IP packet from the TUN device into buf.
func (d *LinuxTUNDevice) ReadPacket(buf []byte) (int, error) {
	n, err := d.file.Read(buf)
	if err != nil {
		return 0, errors.Wrap(err, "read tun packet")
	}
	return n, nil
}

// WritePacket writes a single IP packet to the TUN device.
func (d *LinuxTUNDevice) WritePacket(buf []byte) error {
	if _, err := d.file.Write(buf); err != nil {
		return errors.Wrap(err, "write tun packet")
	}
	return nil
}

// Close releases the underlying file descriptor.
func (d *LinuxTUNDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if err := d.file.Close(); err != nil {
		return errors.Wrapf(err, "close tun device %s", d.name)
	}
	return nil
}

// Name returns the kernel-assigned interface name.
func (d *LinuxTUNDevice) Name() string {
	return d.name
}

// Configure brings the TUN interface up and assigns it the given
// addresses and MTU via rtnetlink, equivalent to running
// `ip link set $dev up mtu $mtu` and `ip addr add $addr dev $dev`.
//
// Called once at startup after NewTUNDevice; the interface carries no
// route of its own beyond the directly-connected prefixes addr4/addr6
// fall within; forwarding the translated traffic onward is the host's
// routing table's job, not this device's.
func (d *LinuxTUNDevice) Configure(addr4, addr6 netip.Prefix, mtu int) error {
	link, err := netlink.LinkByName(d.name)
	if err != nil {
		return errors.Wrapf(err, "link lookup %s", d.name)
	}

	if mtu > 0 {
		if err := netlink.LinkSetMTU(link, mtu); err != nil {
			return errors.Wrapf(err, "set mtu on %s", d.name)
		}
	}

	for _, p := range []netip.Prefix{addr4, addr6} {
		if !p.IsValid() {
			continue
		}
		nlAddr := &netlink.Addr{IPNet: prefixToIPNet(p)}
		if err := netlink.AddrAdd(link, nlAddr); err != nil {
			return errors.Wrapf(err, "add address %s to %s", p, d.name)
		}
	}

	if err := netlink.LinkSetUp(link); err != nil {
		return errors.Wrapf(err, "set %s up", d.name)
	}

	return nil
}

// prefixToIPNet converts a netip.Prefix to the *net.IPNet shape
// netlink.Addr expects.
func prefixToIPNet(p netip.Prefix) *net.IPNet {
	addr := p.Addr()
	return &net.IPNet{
		IP:   net.IP(addr.AsSlice()),
		Mask: net.CIDRMask(p.Bits(), addr.BitLen()),
	}
}

// nullTerminatedString trims a fixed-size byte array at its first NUL.
func nullTerminatedString(b []byte) string {
	if idx := strings.IndexByte(string(b), 0); idx >= 0 {
		return string(b[:idx])
	}
	return string(b)
}
