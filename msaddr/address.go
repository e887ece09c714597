// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package msaddr

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Transport identifies the dialable transport of a multiserver address.
type Transport string

// The transports recognized by the overlay.
const (
	// TransportNet is plain TCP over the internet.
	TransportNet = Transport("net")

	// TransportOnion is TCP tunnelled through a Tor onion service.
	TransportOnion = Transport("onion")

	// TransportBT is a Bluetooth rendezvous.  Its address form carries the
	// remote MAC with the colons stripped and no port.
	TransportBT = Transport("bt")

	// TransportDHT is a connection tunnelled through a distributed hash
	// table.  Its address form is dht:<seed>:<remoteId>~noauth.
	TransportDHT = Transport("dht")

	// TransportLAN is plain TCP on the local network.
	TransportLAN = Transport("lan")
)

// IsValid returns whether the transport is one of the recognized transports.
func (t Transport) IsValid() bool {
	switch t {
	case TransportNet, TransportOnion, TransportBT, TransportDHT, TransportLAN:
		return true
	}
	return false
}

// AuthMethod identifies the authentication method segment of a multiserver
// address.
type AuthMethod string

// The authentication methods recognized by the overlay.
const (
	// AuthSHS is the secret-handshake method.  Addresses using it carry the
	// remote peer's base64 ed25519 public key.
	AuthSHS = AuthMethod("shs")

	// AuthNone carries no key and performs no authentication.  It is only
	// produced by DHT tunnel addresses.
	AuthNone = AuthMethod("noauth")
)

// Address is a parsed multiserver address.  The canonical wire form is
// "transport:host:port~auth:base64key" with the transport-specific variations
// described on the Transport constants.
type Address struct {
	// Transport is the dialable transport.
	Transport Transport

	// Host is the hostname, IP, onion hostname, Bluetooth MAC hex, or DHT
	// seed depending on the transport.
	Host string

	// Port is the TCP port.  It is zero for transports without one.
	Port uint16

	// Remote is the remote identifier of a DHT tunnel address.  It is empty
	// for every other transport.
	Remote string

	// Auth is the authentication method.
	Auth AuthMethod

	// Key is the remote peer's identity.  It is the zero FeedID when Auth
	// is AuthNone.
	Key FeedID
}

// Parse parses the canonical wire form of a multiserver address.
func Parse(s string) (Address, error) {
	var addr Address

	netPart, authPart, found := cutLast(s, "~")
	if !found || netPart == "" || authPart == "" {
		str := fmt.Sprintf("address %q lacks a ~auth segment", s)
		return addr, makeError(ErrInvalidAddress, str)
	}

	// Transport segment.
	transportName, rest, found := strings.Cut(netPart, ":")
	if !found {
		str := fmt.Sprintf("address %q lacks transport coordinates", s)
		return addr, makeError(ErrInvalidAddress, str)
	}
	transport := Transport(transportName)
	if !transport.IsValid() {
		str := fmt.Sprintf("address %q uses unknown transport %q", s,
			transportName)
		return addr, makeError(ErrUnknownTransport, str)
	}
	addr.Transport = transport

	switch transport {
	case TransportBT:
		// bt:<mac-no-colons>
		if rest == "" || strings.Contains(rest, ":") {
			str := fmt.Sprintf("bluetooth address %q is not bt:<machex>", s)
			return addr, makeError(ErrInvalidAddress, str)
		}
		addr.Host = rest

	case TransportDHT:
		// dht:<seed>:<remoteId>
		seed, remote, found := cutLast(rest, ":")
		if !found || seed == "" || remote == "" {
			str := fmt.Sprintf("dht address %q is not dht:<seed>:<remoteId>", s)
			return addr, makeError(ErrInvalidAddress, str)
		}
		addr.Host = seed
		addr.Remote = remote

	default:
		// transport:host:port
		host, portStr, found := cutLast(rest, ":")
		if !found || host == "" {
			str := fmt.Sprintf("address %q lacks a host:port pair", s)
			return addr, makeError(ErrInvalidAddress, str)
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			str := fmt.Sprintf("address %q has malformed port %q", s, portStr)
			return addr, makeError(ErrInvalidAddress, str)
		}
		if transport == TransportOnion && !strings.HasSuffix(host, ".onion") {
			str := fmt.Sprintf("onion address %q host is not a .onion name", s)
			return addr, makeError(ErrInvalidAddress, str)
		}
		addr.Host = host
		addr.Port = uint16(port)
	}

	// Auth segment.
	switch {
	case authPart == string(AuthNone):
		if transport != TransportDHT {
			str := fmt.Sprintf("address %q uses noauth on a keyed transport", s)
			return addr, makeError(ErrMissingKey, str)
		}
		addr.Auth = AuthNone

	case strings.HasPrefix(authPart, string(AuthSHS)+":"):
		key, err := parseBase64Key(strings.TrimPrefix(authPart,
			string(AuthSHS)+":"))
		if err != nil {
			return addr, err
		}
		addr.Auth = AuthSHS
		addr.Key = key

	default:
		str := fmt.Sprintf("address %q has unrecognized auth segment %q", s,
			authPart)
		return addr, makeError(ErrMissingKey, str)
	}

	return addr, nil
}

// String returns the canonical wire form of the address.
func (a Address) String() string {
	var b strings.Builder
	b.WriteString(string(a.Transport))
	b.WriteString(":")
	b.WriteString(a.Host)
	switch a.Transport {
	case TransportBT:
	case TransportDHT:
		b.WriteString(":")
		b.WriteString(a.Remote)
	default:
		b.WriteString(":")
		b.WriteString(strconv.FormatUint(uint64(a.Port), 10))
	}
	b.WriteString("~")
	if a.Auth == AuthNone {
		b.WriteString(string(AuthNone))
	} else {
		b.WriteString(string(AuthSHS))
		b.WriteString(":")
		b.WriteString(a.Key.Base64())
	}
	return b.String()
}

// KeyOf parses the address string and returns the identity it carries.  It is
// a convenience for callers that only need the key.
func KeyOf(s string) (FeedID, error) {
	addr, err := Parse(s)
	if err != nil {
		return FeedID{}, err
	}
	if addr.Key.IsZero() {
		str := fmt.Sprintf("address %q carries no identity", s)
		return FeedID{}, makeError(ErrMissingKey, str)
	}
	return addr.Key, nil
}

// IsLoopbackHost returns whether the host names the local machine.
func IsLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// IsPrivateHost returns whether the host is privately routable, meaning an
// RFC 1918/4193 or link-local address.
func IsPrivateHost(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// cutLast slices s around the last instance of sep.
func cutLast(s, sep string) (before, after string, found bool) {
	idx := strings.LastIndex(s, sep)
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], s[idx+len(sep):], true
}
