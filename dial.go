// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/decred/go-socks/socks"

	"github.com/meshwire/meshd/hub"
	"github.com/meshwire/meshd/msaddr"
)

// multiserverDialer turns parsed multiserver addresses into transport
// connections.  Plain and LAN addresses dial TCP directly (or through the
// configured proxy), onion addresses require a SOCKS proxy, and transports
// this daemon has no radio or tunnel for are rejected.
//
// The cryptographic handshake that authenticates the remote key happens in
// the secret-handshake layer above the raw connection; the hub only needs
// the transport established.
type multiserverDialer struct {
	// proxy is the general SOCKS proxy, or nil to dial directly.
	proxy *socks.Proxy

	// onionProxy is the SOCKS proxy used for onion addresses.  Onion
	// dialing is refused when it is nil.
	onionProxy *socks.Proxy

	// dialer performs direct TCP dials.
	dialer net.Dialer
}

// newMultiserverDialer builds the daemon dialer from the proxy
// configuration.
func newMultiserverDialer(cfg *config) *multiserverDialer {
	d := &multiserverDialer{}
	if cfg.Proxy != "" {
		d.proxy = &socks.Proxy{
			Addr:     cfg.Proxy,
			Username: cfg.ProxyUser,
			Password: cfg.ProxyPass,
		}
	}
	if cfg.Onion != "" {
		d.onionProxy = &socks.Proxy{
			Addr:     cfg.Onion,
			Username: cfg.ProxyUser,
			Password: cfg.ProxyPass,
		}
	}
	return d
}

// Dial implements the hub.Dialer interface.
func (d *multiserverDialer) Dial(ctx context.Context, addr msaddr.Address) (hub.Conn, error) {
	switch addr.Transport {
	case msaddr.TransportNet, msaddr.TransportLAN:
		target := net.JoinHostPort(addr.Host,
			strconv.FormatUint(uint64(addr.Port), 10))
		if d.proxy != nil && addr.Transport == msaddr.TransportNet {
			return d.proxy.DialContext(ctx, "tcp", target)
		}
		return d.dialer.DialContext(ctx, "tcp", target)

	case msaddr.TransportOnion:
		if d.onionProxy == nil {
			return nil, fmt.Errorf("onion dialing requires --onion or " +
				"--proxy")
		}
		target := net.JoinHostPort(addr.Host,
			strconv.FormatUint(uint64(addr.Port), 10))
		return d.onionProxy.DialContext(ctx, "tcp", target)

	default:
		return nil, fmt.Errorf("transport %q is not dialable by this daemon",
			addr.Transport)
	}
}
