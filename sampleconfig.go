// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

// sampleConfig is the contents of the sample configuration file that
// loadConfig writes to the configuration file path when no file exists there.
const sampleConfig = `[Application Options]

; ------------------------------------------------------------------------------
; Data settings
; ------------------------------------------------------------------------------

; The directory to store data such as the address book.  The config file,
; and logs reside in the application home directory unless overridden.
; datadir=~/.meshd/data

; ------------------------------------------------------------------------------
; Network settings
; ------------------------------------------------------------------------------

; Seed peers remembered at startup so a fresh node has somewhere to begin.
; May be given multiple times.
; seed=net:seed.example.com:8008~shs:base64key=

; Connect through a SOCKS5 proxy.  Onion addresses use the onion proxy, which
; falls back to the general one.
; proxy=127.0.0.1:9050
; onion=127.0.0.1:9050

; Do not start the connection scheduler automatically.
; noautostart=1

; Disable the dedicated dial class for seed peers.
; noseedclass=1

; Disable staging of pub announcements from the message log.
; nopubdiscovery=1

; ------------------------------------------------------------------------------
; RPC settings
; ------------------------------------------------------------------------------

; The RPC server requires credentials (or norpc=1 to disable it).
; rpcuser=whoever
; rpcpass=
; rpclisten=127.0.0.1:8422

; Heartbeat timeout for RPC clients, clamped to [10s, 30m].
; pingtimeout=5m

; ------------------------------------------------------------------------------
; Debug
; ------------------------------------------------------------------------------

; Logging level for all subsystems {trace, debug, info, warn, error, critical}.
; You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the
; log level for individual subsystems.
; debuglevel=info
`
