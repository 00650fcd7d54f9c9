// Package ipcbus exposes the control loop over an embedded, in-process
// NATS server, turning the loop's in-memory command/event channels into an
// addressable transport that separate client processes (cmd/fanctl, the
// status TUI) can reach without sharing the daemon's address space. An
// embedded *server.Server is wired to a nats.go client via
// nats.InProcessServer.
package ipcbus

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/ectherm/fancontrold/internal/control"
	"github.com/ectherm/fancontrold/internal/loader"
)

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, port, nil
}

const (
	subjectSetConfig  = "fancontrold.cmd.setconfig"
	subjectSetAuto    = "fancontrold.cmd.setauto"
	subjectSetTarget  = "fancontrold.cmd.settarget"
	subjectSetTargets = "fancontrold.cmd.settargets"
	subjectQuerySpeed  = "fancontrold.cmd.queryspeed"
	subjectListConfigs = "fancontrold.cmd.listconfigs"
	subjectEvents      = "fancontrold.events"

	requestTimeout = 5 * time.Second
)

// Bus hosts the embedded NATS server the daemon and its clients share.
type Bus struct {
	srv *server.Server
	nc  *nats.Conn
	log zerolog.Logger
}

// DefaultAddr is where the daemon listens for client connections
// (cmd/fanctl, the status TUI) when no override is configured.
const DefaultAddr = "127.0.0.1:14222"

// New starts an embedded NATS server listening on addr — so cmd/fanctl and
// the TUI can connect from a separate process — and opens the daemon-side
// in-process client connection to it. An empty addr starts a
// connection-less (DontListen) server usable only via InProcessServer,
// which is all tests and an all-in-one binary need.
func New(log zerolog.Logger, addr string) (*Bus, error) {
	opts := &server.Options{DontListen: addr == ""}
	if addr != "" {
		host, port, err := splitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("ipcbus: parse listen address %q: %w", addr, err)
		}
		opts.Host = host
		opts.Port = port
	}

	srv, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("ipcbus: create embedded nats server: %w", err)
	}
	srv.Start()
	if !srv.ReadyForConnections(10 * time.Second) {
		return nil, fmt.Errorf("ipcbus: embedded nats server did not become ready")
	}

	nc, err := nats.Connect("", nats.InProcessServer(srv))
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("ipcbus: connect in-process: %w", err)
	}

	return &Bus{srv: srv, nc: nc, log: log}, nil
}

// Close drains the daemon-side connection and shuts the embedded server
// down. It does not stop client connections made via Dial — callers own
// those.
func (b *Bus) Close() {
	b.nc.Drain() //nolint:errcheck
	b.srv.Shutdown()
}

// InProcessServer exposes the underlying *server.Server so a same-process
// Client (e.g. the TUI running inside the daemon's own process during
// development) can connect without a network hop.
func (b *Bus) InProcessServer() *server.Server { return b.srv }

// ServeLoop registers request handlers that translate bus messages into
// control.Command values sent to loop, and republishes loop's change
// events onto subjectEvents. It runs until ctx is cancelled.
func ServeLoop(ctx context.Context, b *Bus, loop *control.Loop, cfgLoader *loader.Loader) error {
	subs := []*nats.Subscription{}
	defer func() {
		for _, s := range subs {
			s.Unsubscribe() //nolint:errcheck
		}
	}()

	sub := func(subject string, handler nats.MsgHandler) error {
		s, err := b.nc.Subscribe(subject, handler)
		if err != nil {
			return fmt.Errorf("ipcbus: subscribe %s: %w", subject, err)
		}
		subs = append(subs, s)
		return nil
	}

	if err := sub(subjectSetConfig, b.handleSetConfig(loop)); err != nil {
		return err
	}
	if err := sub(subjectSetAuto, b.handleSetAuto(loop)); err != nil {
		return err
	}
	if err := sub(subjectSetTarget, b.handleSetTarget(loop)); err != nil {
		return err
	}
	if err := sub(subjectSetTargets, b.handleSetTargets(loop)); err != nil {
		return err
	}
	if err := sub(subjectQuerySpeed, b.handleQuerySpeed(loop)); err != nil {
		return err
	}
	if err := sub(subjectListConfigs, b.handleListConfigs(cfgLoader)); err != nil {
		return err
	}

	go b.forwardEvents(ctx, loop)

	<-ctx.Done()
	return nil
}

func (b *Bus) forwardEvents(ctx context.Context, loop *control.Loop) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-loop.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(wireEvent{Kind: string(ev.Kind), Value: ev.Value, CorrelationID: ev.CorrelationID})
			if err != nil {
				b.log.Warn().Err(err).Str("event", string(ev.Kind)).Msg("failed to marshal event")
				continue
			}
			if err := b.nc.Publish(subjectEvents, data); err != nil {
				b.log.Warn().Err(err).Msg("failed to publish event")
			}
		}
	}
}

type wireEvent struct {
	Kind          string      `json:"kind"`
	Value         interface{} `json:"value"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

type wireError struct {
	Error string `json:"error,omitempty"`
}

func (b *Bus) respondJSON(msg *nats.Msg, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		b.log.Error().Err(err).Msg("failed to marshal ipc reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		b.log.Warn().Err(err).Msg("failed to send ipc reply")
	}
}

func (b *Bus) handleSetConfig(loop *control.Loop) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var req struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			b.respondJSON(msg, wireError{Error: err.Error()})
			return
		}
		reply := make(chan error, 1)
		loop.Send(control.SetConfig{Name: req.Name, Reply: reply})
		b.respondJSON(msg, wireError{Error: errString(<-reply)})
	}
}

func (b *Bus) handleSetAuto(loop *control.Loop) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var req struct {
			Auto bool `json:"auto"`
		}
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			b.respondJSON(msg, wireError{Error: err.Error()})
			return
		}
		loop.Send(control.SetAuto{Auto: req.Auto})
		b.respondJSON(msg, wireError{})
	}
}

func (b *Bus) handleSetTarget(loop *control.Loop) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var req struct {
			Index   int     `json:"index"`
			Percent float64 `json:"percent"`
		}
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			b.respondJSON(msg, wireError{Error: err.Error()})
			return
		}
		reply := make(chan error, 1)
		loop.Send(control.SetTarget{Index: req.Index, Percent: req.Percent, Reply: reply})
		b.respondJSON(msg, wireError{Error: errString(<-reply)})
	}
}

func (b *Bus) handleSetTargets(loop *control.Loop) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var req struct {
			Percents []float64 `json:"percents"`
		}
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			b.respondJSON(msg, wireError{Error: err.Error()})
			return
		}
		reply := make(chan error, 1)
		loop.Send(control.SetTargets{Percents: req.Percents, Reply: reply})
		b.respondJSON(msg, wireError{Error: errString(<-reply)})
	}
}

func (b *Bus) handleQuerySpeed(loop *control.Loop) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var req struct {
			Index int `json:"index"`
		}
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			b.respondJSON(msg, wireError{Error: err.Error()})
			return
		}
		reply := make(chan float64, 1)
		loop.Send(control.QuerySpeed{Index: req.Index, Reply: reply})
		b.respondJSON(msg, struct {
			Speed float64 `json:"speed"`
		}{Speed: <-reply})
	}
}

func (b *Bus) handleListConfigs(cfgLoader *loader.Loader) nats.MsgHandler {
	return func(msg *nats.Msg) {
		names, err := cfgLoader.Names()
		if err != nil {
			b.respondJSON(msg, struct {
				Error string `json:"error"`
			}{Error: err.Error()})
			return
		}
		b.respondJSON(msg, struct {
			Names []string `json:"names"`
		}{Names: names})
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
