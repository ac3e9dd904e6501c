// Package netio provides the TUN-device transport the translator reads
// IPv4/IPv6 packets from and writes translated packets back to.
//
// Linux-specific implementation uses golang.org/x/sys/unix to open
// /dev/net/tun and configure an IFF_TUN|IFF_NO_PI interface for the
// dual-stack device that carries both the IPv4 and IPv6 legs of the
// translation.
package netio
