// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/dcrd/dcrjson/v4"
	"github.com/gorilla/websocket"

	"github.com/meshwire/meshd/addrbook"
	"github.com/meshwire/meshd/hub"
	"github.com/meshwire/meshd/msaddr"
	"github.com/meshwire/meshd/query"
	"github.com/meshwire/meshd/rpc/jsonrpc/types"
	"github.com/meshwire/meshd/sched"
	"github.com/meshwire/meshd/staging"
)

const (
	// rpcAuthTimeoutSeconds is the number of seconds a connection to the
	// RPC server is allowed to stay open without authenticating before it
	// is closed.
	rpcAuthTimeoutSeconds = 10

	// deprecationWarnInterval rate-limits the deprecation warning logged
	// for the legacy peers method.
	deprecationWarnInterval = 10 * time.Second

	// wsWriteWait bounds a single websocket write.
	wsWriteWait = 5 * time.Second

	// wsOutboxSize is the number of queued messages per websocket client
	// before the client is considered too slow and dropped.
	wsOutboxSize = 128
)

// rpcserverConfig is a descriptor containing the RPC server configuration.
type rpcserverConfig struct {
	// Listeners defines a slice of listeners for which the RPC server will
	// take ownership of and accept connections.
	Listeners []net.Listener

	// RPCUser and RPCPass are the basic-auth credentials.
	RPCUser string
	RPCPass string

	// PingTimeout is the clamped heartbeat timeout for websocket clients.
	PingTimeout time.Duration

	// The subsystems the RPC methods operate on.
	Book      *addrbook.Book
	Hub       *hub.Hub
	Staging   *staging.Pool
	Query     *query.Query
	Scheduler *sched.Scheduler
}

// rpcServer provides the JSON-RPC surface over HTTP POST and websockets.
type rpcServer struct {
	cfg     rpcserverConfig
	authsha [sha256.Size]byte

	wg sync.WaitGroup

	// mu protects the websocket client set and the deprecation warning
	// stamp.
	mu            sync.Mutex
	wsClients     map[*wsClient]struct{}
	lastPeersWarn time.Time

	shutdown int32
}

// newRPCServer returns a new instance of the rpcServer struct.
func newRPCServer(cfg *rpcserverConfig) *rpcServer {
	s := rpcServer{
		cfg:       *cfg,
		wsClients: make(map[*wsClient]struct{}),
	}
	login := cfg.RPCUser + ":" + cfg.RPCPass
	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(login))
	s.authsha = sha256.Sum256([]byte(auth))
	return &s
}

// wsClient is one connected websocket client.
type wsClient struct {
	conn   *websocket.Conn
	outbox chan []byte
	quit   chan struct{}

	// The notification subscriptions, toggled by the peers and changes
	// methods.  Only read and written while holding the server mutex.
	notifyPeers   bool
	notifyChanges bool
}

// commandHandler describes a callback function used to handle a specific
// command.
type commandHandler func(ctx context.Context, s *rpcServer, cmd interface{}) (interface{}, error)

// rpcHandlers maps RPC command methods to their appropriate handler
// functions.
var rpcHandlers = map[types.Method]commandHandler{
	"connect":     handleConnect,
	"dbpeers":     handleDbPeers,
	"disconnect":  handleDisconnect,
	"forget":      handleForget,
	"peers":       handlePeers,
	"ping":        handlePing,
	"querypeers":  handleQueryPeers,
	"remember":    handleRemember,
	"stage":       handleStage,
	"stagedpeers": handleStagedPeers,
	"start":       handleStart,
	"stop":        handleStop,
	"unstage":     handleUnstage,
	"version":     handleVersion,

	// Deprecated legacy surface.  These delegate to the modern pools.
	"add":       handleAdd,
	"changes":   handleChanges,
	"disable":   handleDisable,
	"enable":    handleEnable,
	"get":       handleGet,
	"reconnect": handleReconnect,
	"remove":    handleForget,
}

// rpcInvalidError is a convenience function to convert an invalid parameter
// to a well-formed RPC error with the appropriate code.
func rpcInvalidError(fmtStr string, args ...interface{}) *dcrjson.RPCError {
	return dcrjson.NewRPCError(dcrjson.ErrRPCInvalidParameter,
		fmt.Sprintf(fmtStr, args...))
}

// rpcInternalError is a convenience function to convert an internal error to
// a well-formed RPC error with the appropriate code.
func rpcInternalError(errStr, context string) *dcrjson.RPCError {
	logStr := errStr + ": " + context
	rpcsLog.Error(logStr)
	return dcrjson.NewRPCError(dcrjson.ErrRPCInternal.Code, errStr)
}

// unixMillis renders a time for the RPC surface; the zero time renders as 0.
func unixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// peerInfo converts a record and optional hub state into the RPC row shape.
func peerInfo(addr string, state string, rec *msaddr.PeerRecord) types.PeerInfo {
	info := types.PeerInfo{
		Address:     addr,
		Source:      string(rec.Source),
		Type:        string(rec.Type),
		State:       state,
		Autoconnect: rec.AutoconnectEnabled(),
		Failure:     rec.Failure,
		StateChange: unixMillis(rec.StateChange),
		LastAttempt: unixMillis(rec.LastAttempt),
		LastSuccess: unixMillis(rec.LastSuccess),
		Verified:    rec.Verified,
		Note:        rec.Note,
	}
	if !rec.Key.IsZero() {
		info.Key = rec.Key.String()
	}
	if rec.Ping != nil && rec.Ping.RTT.Count > 0 {
		info.PingMean = rec.Ping.RTT.Mean
	}
	return info
}

// overlayRecord converts the RPC record overlay into a peer record, rejecting
// unknown enumeration values.
func overlayRecord(data *types.RecordOverlay) (*msaddr.PeerRecord, error) {
	rec := new(msaddr.PeerRecord)
	if data == nil {
		return rec, nil
	}
	if data.Source != nil {
		source := msaddr.Source(*data.Source)
		if !source.IsValid() {
			return nil, rpcInvalidError("unknown source %q", *data.Source)
		}
		rec.Source = source
	}
	if data.Type != nil {
		peerType := msaddr.PeerType(*data.Type)
		if !peerType.IsValid() {
			return nil, rpcInvalidError("unknown type %q", *data.Type)
		}
		rec.Type = peerType
	}
	if data.Autoconnect != nil {
		rec.SetAutoconnect(*data.Autoconnect)
	}
	if data.Verified != nil {
		rec.Verified = *data.Verified
	}
	if data.Note != nil {
		rec.Note = *data.Note
	}
	return rec, nil
}

// recordFromAddress builds the base record implied by an address string.
func recordFromAddress(addr msaddr.Address) *msaddr.PeerRecord {
	return &msaddr.PeerRecord{
		Key:  addr.Key,
		Host: addr.Host,
		Port: addr.Port,
	}
}

// warnDeprecated logs a deprecation warning for a legacy method.  Warnings
// for the legacy peers method are rate-limited since some clients poll it.
func (s *rpcServer) warnDeprecated(method, replacement string) {
	if method == "peers" {
		s.mu.Lock()
		tooSoon := time.Since(s.lastPeersWarn) < deprecationWarnInterval
		if !tooSoon {
			s.lastPeersWarn = time.Now()
		}
		s.mu.Unlock()
		if tooSoon {
			return
		}
	}
	rpcsLog.Warnf("RPC method %q is deprecated; use %q instead", method,
		replacement)
}

// handleRemember implements the remember command.
func handleRemember(_ context.Context, s *rpcServer, cmd interface{}) (interface{}, error) {
	c := cmd.(*types.RememberCmd)
	parsed, err := msaddr.Parse(c.Address)
	if err != nil {
		return nil, rpcInvalidError("%v", err)
	}
	rec, err := overlayRecord(c.Data)
	if err != nil {
		return nil, err
	}
	base := recordFromAddress(parsed)
	base.Merge(rec)
	if base.Source == "" {
		base.Source = msaddr.SourceManual
	}
	if err := s.cfg.Book.Set(parsed.String(), base); err != nil {
		return nil, rpcInternalError(err.Error(), "remember")
	}
	return nil, nil
}

// handleForget implements the forget command and the deprecated remove
// command.
func handleForget(_ context.Context, s *rpcServer, cmd interface{}) (interface{}, error) {
	var address string
	switch c := cmd.(type) {
	case *types.ForgetCmd:
		address = c.Address
	case *types.RemoveCmd:
		s.warnDeprecated("remove", "forget")
		address = c.Address
	}
	if err := s.cfg.Book.Delete(address); err != nil {
		return nil, rpcInternalError(err.Error(), "forget")
	}
	return nil, nil
}

// handleDbPeers implements the dbpeers command.
func handleDbPeers(_ context.Context, s *rpcServer, _ interface{}) (interface{}, error) {
	entries := s.cfg.Book.Entries()
	infos := make([]types.PeerInfo, 0, len(entries))
	for addr, rec := range entries {
		state := ""
		if st, live := s.cfg.Hub.GetState(addr); live {
			state = st.String()
		}
		infos = append(infos, peerInfo(addr, state, rec))
	}
	return infos, nil
}

// handleConnect implements the connect command.
func handleConnect(ctx context.Context, s *rpcServer, cmd interface{}) (interface{}, error) {
	c := cmd.(*types.ConnectCmd)
	overlay, err := overlayRecord(c.Data)
	if err != nil {
		return nil, err
	}
	rec, ok := s.cfg.Book.Get(c.Address)
	if !ok {
		parsed, perr := msaddr.Parse(c.Address)
		if perr != nil {
			return nil, rpcInvalidError("%v", perr)
		}
		rec = recordFromAddress(parsed)
	}
	rec.Merge(overlay)

	err = s.cfg.Hub.Connect(ctx, c.Address, rec)
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, hub.ErrAlreadyConnected):
		return nil, rpcInvalidError("already connected to %s", c.Address)
	case errors.Is(err, msaddr.ErrInvalidAddress),
		errors.Is(err, msaddr.ErrUnknownTransport),
		errors.Is(err, msaddr.ErrMissingKey):
		return nil, rpcInvalidError("%v", err)
	default:
		// Transport failure: surfaced to the caller, never fatal.
		return nil, dcrjson.NewRPCError(dcrjson.ErrRPCMisc,
			fmt.Sprintf("dial failed: %v", err))
	}
}

// handleDisconnect implements the disconnect command.
func handleDisconnect(_ context.Context, s *rpcServer, cmd interface{}) (interface{}, error) {
	c := cmd.(*types.DisconnectCmd)
	if err := s.cfg.Hub.Disconnect(c.Address); err != nil {
		return nil, rpcInternalError(err.Error(), "disconnect")
	}
	return nil, nil
}

// handlePeers implements the peers command.  It returns the live entry set;
// websocket clients are additionally subscribed to peerstate notifications by
// the websocket layer.
func handlePeers(_ context.Context, s *rpcServer, _ interface{}) (interface{}, error) {
	return s.hubPeerInfos(), nil
}

// hubPeerInfos snapshots the hub entries in the RPC row shape.
func (s *rpcServer) hubPeerInfos() []types.PeerInfo {
	entries := s.cfg.Hub.Entries()
	infos := make([]types.PeerInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, peerInfo(e.Addr, e.State.String(), e.Record))
	}
	return infos
}

// handleStage implements the stage command.
func handleStage(_ context.Context, s *rpcServer, cmd interface{}) (interface{}, error) {
	c := cmd.(*types.StageCmd)
	parsed, err := msaddr.Parse(c.Address)
	if err != nil {
		return nil, rpcInvalidError("%v", err)
	}
	rec, err := overlayRecord(c.Data)
	if err != nil {
		return nil, err
	}
	base := recordFromAddress(parsed)
	base.Merge(rec)
	return s.cfg.Staging.Stage(parsed.String(), base), nil
}

// handleUnstage implements the unstage command.
func handleUnstage(_ context.Context, s *rpcServer, cmd interface{}) (interface{}, error) {
	c := cmd.(*types.UnstageCmd)
	s.cfg.Staging.Unstage(c.Address)
	return nil, nil
}

// handleStagedPeers implements the stagedpeers command.
func handleStagedPeers(_ context.Context, s *rpcServer, _ interface{}) (interface{}, error) {
	entries := s.cfg.Staging.Entries()
	infos := make([]types.PeerInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, peerInfo(e.Addr, "", e.Record))
	}
	return infos, nil
}

// handleQueryPeers implements the querypeers command.
func handleQueryPeers(_ context.Context, s *rpcServer, cmd interface{}) (interface{}, error) {
	c := cmd.(*types.QueryPeersCmd)
	var origin query.Origin
	switch c.Origin {
	case types.QODb:
		origin = query.OriginDB
	case types.QOStaging:
		origin = query.OriginStaging
	default:
		return nil, rpcInvalidError("unknown origin %q", c.Origin)
	}

	v := s.cfg.Query.PeersConnectable(origin)
	if c.Take != nil {
		v = v.Take(*c.Take)
	}
	infos := make([]types.PeerInfo, 0, len(v))
	for _, p := range v {
		infos = append(infos, peerInfo(p.Addr, "", p.Record))
	}
	return infos, nil
}

// handleStart implements the start command.
func handleStart(_ context.Context, s *rpcServer, _ interface{}) (interface{}, error) {
	if err := s.cfg.Scheduler.Start(); err != nil {
		return nil, rpcInternalError(err.Error(), "start")
	}
	return nil, nil
}

// handleStop implements the stop command.
func handleStop(_ context.Context, s *rpcServer, _ interface{}) (interface{}, error) {
	s.cfg.Scheduler.Stop()
	return nil, nil
}

// handlePing implements the ping command.
func handlePing(_ context.Context, _ *rpcServer, _ interface{}) (interface{}, error) {
	return nil, nil
}

// handleVersion implements the version command.
func handleVersion(_ context.Context, _ *rpcServer, _ interface{}) (interface{}, error) {
	return types.VersionResult{
		VersionString: version(),
		Major:         appMajor,
		Minor:         appMinor,
		Patch:         appPatch,
	}, nil
}

// handleGet implements the deprecated get command.
func handleGet(_ context.Context, s *rpcServer, cmd interface{}) (interface{}, error) {
	c := cmd.(*types.GetCmd)
	s.warnDeprecated("get", "dbpeers")
	rec, ok := s.cfg.Book.Get(c.Address)
	if !ok {
		return nil, rpcInvalidError("no stored peer for %s", c.Address)
	}
	state := ""
	if st, live := s.cfg.Hub.GetState(c.Address); live {
		state = st.String()
	}
	return peerInfo(c.Address, state, rec), nil
}

// handleAdd implements the deprecated add command.  Adding with the local
// source is rejected: local records come only from discovery.
func handleAdd(_ context.Context, s *rpcServer, cmd interface{}) (interface{}, error) {
	c := cmd.(*types.AddCmd)
	s.warnDeprecated("add", "remember")
	if c.Source != nil && msaddr.Source(*c.Source) == msaddr.SourceLocal {
		return nil, rpcInvalidError("source %q is not acceptable here",
			*c.Source)
	}
	data := &types.RecordOverlay{Source: c.Source}
	return handleRemember(context.Background(), s,
		types.NewRememberCmd(c.Address, data))
}

// handleReconnect implements the deprecated reconnect command.
func handleReconnect(ctx context.Context, s *rpcServer, cmd interface{}) (interface{}, error) {
	c := cmd.(*types.ReconnectCmd)
	s.warnDeprecated("reconnect", "disconnect and connect")
	if err := s.cfg.Hub.Disconnect(c.Address); err != nil {
		return nil, rpcInternalError(err.Error(), "reconnect")
	}
	return handleConnect(ctx, s, types.NewConnectCmd(c.Address, nil))
}

// handleChanges implements the deprecated changes command.  Subscription
// state is handled by the websocket layer; over HTTP there is no stream to
// attach to.
func handleChanges(_ context.Context, s *rpcServer, _ interface{}) (interface{}, error) {
	s.warnDeprecated("changes", "peers")
	return nil, nil
}

// handleEnable implements the deprecated enable command, which intentionally
// does nothing.
func handleEnable(_ context.Context, s *rpcServer, _ interface{}) (interface{}, error) {
	s.warnDeprecated("enable", "start")
	return nil, nil
}

// handleDisable implements the deprecated disable command, which
// intentionally does nothing.
func handleDisable(_ context.Context, s *rpcServer, _ interface{}) (interface{}, error) {
	s.warnDeprecated("disable", "stop")
	return nil, nil
}

// checkAuth checks the HTTP Basic authentication supplied by a client against
// the configured credentials.  A comparison in constant time avoids leaking
// timing information.
func (s *rpcServer) checkAuth(r *http.Request) error {
	authhdr := r.Header["Authorization"]
	if len(authhdr) == 0 {
		return errors.New("no authorization header")
	}
	authsha := sha256.Sum256([]byte(authhdr[0]))
	if subtle.ConstantTimeCompare(authsha[:], s.authsha[:]) != 1 {
		return errors.New("bad auth")
	}
	return nil
}

// jsonAuthFail sends a message back to the client if the http auth is
// rejected.
func jsonAuthFail(w http.ResponseWriter) {
	w.Header().Add("WWW-Authenticate", `Basic realm="meshd RPC"`)
	http.Error(w, "401 Unauthorized.", http.StatusUnauthorized)
}

// createMarshalledReply returns a new marshalled JSON-RPC response given the
// passed parameters.
func createMarshalledReply(id interface{}, result interface{}, replyErr error) ([]byte, error) {
	var jsonErr *dcrjson.RPCError
	if replyErr != nil {
		if !errors.As(replyErr, &jsonErr) {
			jsonErr = rpcInternalError(replyErr.Error(), "reply")
		}
	}
	return dcrjson.MarshalResponse("1.0", id, result, jsonErr)
}

// processRequest parses and dispatches one JSON-RPC request and returns the
// marshalled response.
func (s *rpcServer) processRequest(ctx context.Context, request *dcrjson.Request) []byte {
	method := types.Method(request.Method)
	handler, ok := rpcHandlers[method]
	if !ok {
		reply, err := createMarshalledReply(request.ID, nil,
			dcrjson.NewRPCError(dcrjson.ErrRPCMethodNotFound.Code,
				fmt.Sprintf("method %q not found", request.Method)))
		if err != nil {
			rpcsLog.Errorf("Failed to marshal reply: %v", err)
			return nil
		}
		return reply
	}

	cmd, err := dcrjson.ParseParams(method, request.Params)
	if err != nil {
		reply, merr := createMarshalledReply(request.ID, nil,
			rpcInvalidError("%v", err))
		if merr != nil {
			rpcsLog.Errorf("Failed to marshal reply: %v", merr)
			return nil
		}
		return reply
	}

	result, err := handler(ctx, s, cmd)
	reply, merr := createMarshalledReply(request.ID, result, err)
	if merr != nil {
		rpcsLog.Errorf("Failed to marshal reply: %v", merr)
		return nil
	}
	return reply
}

// jsonRPCRead handles reading and responding to RPC messages over HTTP POST.
func (s *rpcServer) jsonRPCRead(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if atomic.LoadInt32(&s.shutdown) != 0 {
		return
	}
	body, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		errCode := http.StatusBadRequest
		http.Error(w, fmt.Sprintf("%d error reading JSON message: %v",
			errCode, err), errCode)
		return
	}

	var req dcrjson.Request
	var reply []byte
	if err := json.Unmarshal(body, &req); err != nil {
		jsonErr := &dcrjson.RPCError{
			Code:    dcrjson.ErrRPCParse.Code,
			Message: fmt.Sprintf("Failed to parse request: %v", err),
		}
		reply, err = dcrjson.MarshalResponse("1.0", nil, nil, jsonErr)
		if err != nil {
			rpcsLog.Errorf("Failed to create reply: %v", err)
			return
		}
	} else {
		// Polling peers over HTTP is the legacy access pattern; the
		// modern stream is the websocket peerstate subscription.
		if types.Method(req.Method) == "peers" {
			s.warnDeprecated("peers", "the websocket peerstate stream")
		}
		reply = s.processRequest(ctx, &req)
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(reply); err != nil {
		rpcsLog.Errorf("Failed to write marshalled reply: %v", err)
	}
}

// notificationLoop watches the hub and fans notifications out to subscribed
// websocket clients.  It must be run as a goroutine.
func (s *rpcServer) notificationLoop(ctx context.Context) {
	defer s.wg.Done()

	entriesCh, cancelEntries := s.cfg.Hub.LiveEntries()
	defer cancelEntries()
	events, cancelEvents := s.cfg.Hub.Listen()
	defer cancelEvents()

	for {
		select {
		case entries, ok := <-entriesCh:
			if !ok {
				return
			}
			infos := make([]types.PeerInfo, 0, len(entries))
			for _, e := range entries {
				infos = append(infos, peerInfo(e.Addr, e.State.String(),
					e.Record))
			}
			marshalled, err := dcrjson.MarshalCmd("1.0", nil,
				types.NewPeersNtfn(infos))
			if err != nil {
				rpcsLog.Errorf("Failed to marshal peers notification: %v",
					err)
				continue
			}
			s.broadcast(marshalled, func(c *wsClient) bool {
				return c.notifyPeers
			})

		case ev, ok := <-events:
			if !ok {
				return
			}
			details := ""
			if ev.Details != nil {
				details = ev.Details.Error()
			}
			key := ""
			if !ev.Key.IsZero() {
				key = ev.Key.String()
			}
			marshalled, err := dcrjson.MarshalCmd("1.0", nil,
				types.NewChangeNtfn(ev.Type.String(), ev.Addr, key, details))
			if err != nil {
				rpcsLog.Errorf("Failed to marshal change notification: %v",
					err)
				continue
			}
			s.broadcast(marshalled, func(c *wsClient) bool {
				return c.notifyChanges
			})

		case <-ctx.Done():
			return
		}
	}
}

// broadcast queues a marshalled notification on every websocket client the
// filter admits.  Clients whose outbox is full are dropped rather than
// allowed to stall the hub streams.
func (s *rpcServer) broadcast(marshalled []byte, filter func(*wsClient) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.wsClients {
		if !filter(c) {
			continue
		}
		select {
		case c.outbox <- marshalled:
		default:
			rpcsLog.Warnf("Dropping slow websocket client")
			close(c.quit)
			delete(s.wsClients, c)
		}
	}
}

// websocketHandler runs one websocket client: a write pump for replies and
// notifications, a keepalive based on the configured heartbeat timeout, and
// a read loop dispatching commands.
func (s *rpcServer) websocketHandler(ctx context.Context, ws *websocket.Conn) {
	client := &wsClient{
		conn:   ws,
		outbox: make(chan []byte, wsOutboxSize),
		quit:   make(chan struct{}),
	}
	s.mu.Lock()
	s.wsClients[client] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if _, ok := s.wsClients[client]; ok {
			close(client.quit)
			delete(s.wsClients, client)
		}
		s.mu.Unlock()
		ws.Close()
	}()

	// The heartbeat: the read deadline is pushed out on every pong, and
	// pings go out at half the timeout.
	pingTimeout := s.cfg.PingTimeout
	ws.SetReadDeadline(time.Now().Add(pingTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pingTimeout))
		return nil
	})

	// Write pump.
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		pinger := time.NewTicker(pingTimeout / 2)
		defer pinger.Stop()
		for {
			select {
			case msg := <-client.outbox:
				ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-pinger.C:
				ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
				err := ws.WriteControl(websocket.PingMessage, nil,
					time.Now().Add(wsWriteWait))
				if err != nil {
					return
				}
			case <-client.quit:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	// Read loop.
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) &&
				!websocket.IsCloseError(err, websocket.CloseNormalClosure,
					websocket.CloseGoingAway) {

				rpcsLog.Debugf("Websocket receive error: %v", err)
			}
			break
		}

		var req dcrjson.Request
		var reply []byte
		if err := json.Unmarshal(msg, &req); err != nil {
			jsonErr := &dcrjson.RPCError{
				Code:    dcrjson.ErrRPCParse.Code,
				Message: fmt.Sprintf("Failed to parse request: %v", err),
			}
			reply, err = dcrjson.MarshalResponse("1.0", nil, nil, jsonErr)
			if err != nil {
				rpcsLog.Errorf("Failed to create reply: %v", err)
				continue
			}
		} else {
			// The subscription methods flip per-client notification
			// state on the way through.
			switch types.Method(req.Method) {
			case "peers":
				s.mu.Lock()
				client.notifyPeers = true
				s.mu.Unlock()
			case "changes":
				s.mu.Lock()
				client.notifyChanges = true
				s.mu.Unlock()
			}
			reply = s.processRequest(ctx, &req)
		}

		if reply == nil {
			continue
		}
		select {
		case client.outbox <- reply:
		case <-client.quit:
			return
		case <-ctx.Done():
			return
		}
	}

	<-writeDone
}

// route sets up the endpoints of the RPC server.
func (s *rpcServer) route(ctx context.Context) *http.Server {
	rpcServeMux := http.NewServeMux()
	httpServer := &http.Server{
		Handler: rpcServeMux,

		// Timeout connections which don't complete the initial handshake
		// within the allowed timeframe.
		ReadTimeout: time.Second * rpcAuthTimeoutSeconds,
	}

	rpcServeMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "close")
		r.Close = true

		if err := s.checkAuth(r); err != nil {
			jsonAuthFail(w)
			return
		}
		s.jsonRPCRead(ctx, w, r)
	})

	rpcServeMux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if err := s.checkAuth(r); err != nil {
			jsonAuthFail(w)
			return
		}

		// Attempt to upgrade the connection to a websocket connection
		// using the default size for read/write buffers.
		ws, err := websocket.Upgrade(w, r, nil, 0, 0)
		if err != nil {
			var herr websocket.HandshakeError
			if !errors.As(err, &herr) {
				rpcsLog.Errorf("Unexpected websocket error: %v", err)
			}
			http.Error(w, "400 Bad Request.", http.StatusBadRequest)
			return
		}
		s.websocketHandler(ctx, ws)
	})
	return httpServer
}

// Run starts the RPC server and its listeners.  It blocks until the provided
// context is cancelled.
func (s *rpcServer) Run(ctx context.Context) {
	rpcsLog.Trace("Starting RPC server")
	server := s.route(ctx)
	for _, listener := range s.cfg.Listeners {
		s.wg.Add(1)
		go func(listener net.Listener) {
			rpcsLog.Infof("RPC server listening on %s", listener.Addr())
			server.Serve(listener)
			rpcsLog.Tracef("RPC listener done for %s", listener.Addr())
			s.wg.Done()
		}(listener)
	}

	s.wg.Add(1)
	go s.notificationLoop(ctx)

	<-ctx.Done()
	atomic.StoreInt32(&s.shutdown, 1)
	server.Close()
	s.wg.Wait()
	rpcsLog.Trace("RPC server stopped")
}
