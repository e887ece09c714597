// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// NOTE: This file is intended to house the JSON-RPC commands that are
// supported by the connection server.

package types

import (
	"github.com/decred/dcrd/dcrjson/v4"
)

// RecordOverlay is the optional record data callers may attach to mutating
// commands.  Only the set fields are applied.
type RecordOverlay struct {
	Source      *string `json:"source,omitempty"`
	Type        *string `json:"type,omitempty"`
	Autoconnect *bool   `json:"autoconnect,omitempty"`
	Verified    *bool   `json:"verified,omitempty"`
	Note        *string `json:"note,omitempty"`
}

// RememberCmd defines the remember JSON-RPC command.
type RememberCmd struct {
	Address string
	Data    *RecordOverlay
}

// NewRememberCmd returns a new instance which can be used to issue a remember
// JSON-RPC command.
func NewRememberCmd(address string, data *RecordOverlay) *RememberCmd {
	return &RememberCmd{Address: address, Data: data}
}

// ForgetCmd defines the forget JSON-RPC command.
type ForgetCmd struct {
	Address string
}

// NewForgetCmd returns a new instance which can be used to issue a forget
// JSON-RPC command.
func NewForgetCmd(address string) *ForgetCmd {
	return &ForgetCmd{Address: address}
}

// DbPeersCmd defines the dbpeers JSON-RPC command.
type DbPeersCmd struct{}

// NewDbPeersCmd returns a new instance which can be used to issue a dbpeers
// JSON-RPC command.
func NewDbPeersCmd() *DbPeersCmd {
	return &DbPeersCmd{}
}

// ConnectCmd defines the connect JSON-RPC command.
type ConnectCmd struct {
	Address string
	Data    *RecordOverlay
}

// NewConnectCmd returns a new instance which can be used to issue a connect
// JSON-RPC command.
func NewConnectCmd(address string, data *RecordOverlay) *ConnectCmd {
	return &ConnectCmd{Address: address, Data: data}
}

// DisconnectCmd defines the disconnect JSON-RPC command.
type DisconnectCmd struct {
	Address string
}

// NewDisconnectCmd returns a new instance which can be used to issue a
// disconnect JSON-RPC command.
func NewDisconnectCmd(address string) *DisconnectCmd {
	return &DisconnectCmd{Address: address}
}

// PeersCmd defines the peers JSON-RPC command.
type PeersCmd struct{}

// NewPeersCmd returns a new instance which can be used to issue a peers
// JSON-RPC command.
func NewPeersCmd() *PeersCmd {
	return &PeersCmd{}
}

// StageCmd defines the stage JSON-RPC command.
type StageCmd struct {
	Address string
	Data    *RecordOverlay
}

// NewStageCmd returns a new instance which can be used to issue a stage
// JSON-RPC command.
func NewStageCmd(address string, data *RecordOverlay) *StageCmd {
	return &StageCmd{Address: address, Data: data}
}

// UnstageCmd defines the unstage JSON-RPC command.
type UnstageCmd struct {
	Address string
}

// NewUnstageCmd returns a new instance which can be used to issue an unstage
// JSON-RPC command.
func NewUnstageCmd(address string) *UnstageCmd {
	return &UnstageCmd{Address: address}
}

// StagedPeersCmd defines the stagedpeers JSON-RPC command.
type StagedPeersCmd struct{}

// NewStagedPeersCmd returns a new instance which can be used to issue a
// stagedpeers JSON-RPC command.
func NewStagedPeersCmd() *StagedPeersCmd {
	return &StagedPeersCmd{}
}

// QueryOrigin defines the type used in the querypeers JSON-RPC command for
// the origin field.
type QueryOrigin string

const (
	// QODb draws candidates from the durable address book.
	QODb QueryOrigin = "db"

	// QOStaging draws candidates from the ephemeral staging pool.
	QOStaging QueryOrigin = "staging"
)

// QueryPeersCmd defines the querypeers JSON-RPC command.
type QueryPeersCmd struct {
	Origin QueryOrigin `jsonrpcusage:"\"db|staging\""`
	Take   *int
}

// NewQueryPeersCmd returns a new instance which can be used to issue a
// querypeers JSON-RPC command.
func NewQueryPeersCmd(origin QueryOrigin, take *int) *QueryPeersCmd {
	return &QueryPeersCmd{Origin: origin, Take: take}
}

// StartCmd defines the start JSON-RPC command.
type StartCmd struct{}

// NewStartCmd returns a new instance which can be used to issue a start
// JSON-RPC command.
func NewStartCmd() *StartCmd {
	return &StartCmd{}
}

// StopCmd defines the stop JSON-RPC command.
type StopCmd struct{}

// NewStopCmd returns a new instance which can be used to issue a stop
// JSON-RPC command.
func NewStopCmd() *StopCmd {
	return &StopCmd{}
}

// PingCmd defines the ping JSON-RPC command.
type PingCmd struct{}

// NewPingCmd returns a new instance which can be used to issue a ping
// JSON-RPC command.
func NewPingCmd() *PingCmd {
	return &PingCmd{}
}

// VersionCmd defines the version JSON-RPC command.
type VersionCmd struct{}

// NewVersionCmd returns a new instance which can be used to issue a version
// JSON-RPC command.
func NewVersionCmd() *VersionCmd {
	return &VersionCmd{}
}

// The commands below are the deprecated legacy surface.  They delegate to the
// modern pools and exist only so old clients keep working.

// GetCmd defines the deprecated get JSON-RPC command.
type GetCmd struct {
	Address string
}

// NewGetCmd returns a new instance which can be used to issue a get JSON-RPC
// command.
func NewGetCmd(address string) *GetCmd {
	return &GetCmd{Address: address}
}

// AddCmd defines the deprecated add JSON-RPC command.
type AddCmd struct {
	Address string
	Source  *string
}

// NewAddCmd returns a new instance which can be used to issue an add JSON-RPC
// command.
func NewAddCmd(address string, source *string) *AddCmd {
	return &AddCmd{Address: address, Source: source}
}

// RemoveCmd defines the deprecated remove JSON-RPC command.
type RemoveCmd struct {
	Address string
}

// NewRemoveCmd returns a new instance which can be used to issue a remove
// JSON-RPC command.
func NewRemoveCmd(address string) *RemoveCmd {
	return &RemoveCmd{Address: address}
}

// ReconnectCmd defines the deprecated reconnect JSON-RPC command.
type ReconnectCmd struct {
	Address string
}

// NewReconnectCmd returns a new instance which can be used to issue a
// reconnect JSON-RPC command.
func NewReconnectCmd(address string) *ReconnectCmd {
	return &ReconnectCmd{Address: address}
}

// ChangesCmd defines the deprecated changes JSON-RPC command, which
// subscribes a websocket client to hub lifecycle notifications.
type ChangesCmd struct{}

// NewChangesCmd returns a new instance which can be used to issue a changes
// JSON-RPC command.
func NewChangesCmd() *ChangesCmd {
	return &ChangesCmd{}
}

// EnableCmd defines the deprecated enable JSON-RPC command.  It is a no-op.
type EnableCmd struct{}

// NewEnableCmd returns a new instance which can be used to issue an enable
// JSON-RPC command.
func NewEnableCmd() *EnableCmd {
	return &EnableCmd{}
}

// DisableCmd defines the deprecated disable JSON-RPC command.  It is a no-op.
type DisableCmd struct{}

// NewDisableCmd returns a new instance which can be used to issue a disable
// JSON-RPC command.
func NewDisableCmd() *DisableCmd {
	return &DisableCmd{}
}

func init() {
	// No special flags for these commands.
	flags := dcrjson.UsageFlag(0)

	dcrjson.MustRegister(Method("add"), (*AddCmd)(nil), flags)
	dcrjson.MustRegister(Method("connect"), (*ConnectCmd)(nil), flags)
	dcrjson.MustRegister(Method("dbpeers"), (*DbPeersCmd)(nil), flags)
	dcrjson.MustRegister(Method("disable"), (*DisableCmd)(nil), flags)
	dcrjson.MustRegister(Method("disconnect"), (*DisconnectCmd)(nil), flags)
	dcrjson.MustRegister(Method("enable"), (*EnableCmd)(nil), flags)
	dcrjson.MustRegister(Method("forget"), (*ForgetCmd)(nil), flags)
	dcrjson.MustRegister(Method("get"), (*GetCmd)(nil), flags)
	dcrjson.MustRegister(Method("peers"), (*PeersCmd)(nil), flags)
	dcrjson.MustRegister(Method("ping"), (*PingCmd)(nil), flags)
	dcrjson.MustRegister(Method("querypeers"), (*QueryPeersCmd)(nil), flags)
	dcrjson.MustRegister(Method("reconnect"), (*ReconnectCmd)(nil), flags)
	dcrjson.MustRegister(Method("remember"), (*RememberCmd)(nil), flags)
	dcrjson.MustRegister(Method("remove"), (*RemoveCmd)(nil), flags)
	dcrjson.MustRegister(Method("stage"), (*StageCmd)(nil), flags)
	dcrjson.MustRegister(Method("stagedpeers"), (*StagedPeersCmd)(nil), flags)
	dcrjson.MustRegister(Method("start"), (*StartCmd)(nil), flags)
	dcrjson.MustRegister(Method("stop"), (*StopCmd)(nil), flags)
	dcrjson.MustRegister(Method("unstage"), (*UnstageCmd)(nil), flags)
	dcrjson.MustRegister(Method("version"), (*VersionCmd)(nil), flags)

	dcrjson.MustRegister(Method("changes"), (*ChangesCmd)(nil),
		dcrjson.UFWebsocketOnly)
}
