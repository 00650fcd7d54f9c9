package ipcbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Client is the daemon-facing handle used by cmd/fanctl and the status
// TUI; it never touches control.Loop directly, only NATS request/reply
// and subscription, so it can run in a separate process from the daemon.
type Client struct {
	nc *nats.Conn
}

// Dial connects to the daemon's embedded bus. When srv is non-nil (the
// caller is running in the same process, e.g. a test or an all-in-one
// binary) the connection is made in-process; otherwise url is used for a
// normal TCP/Unix-socket NATS connection.
func Dial(srv *server.Server, url string) (*Client, error) {
	var (
		nc  *nats.Conn
		err error
	)
	if srv != nil {
		nc, err = nats.Connect("", nats.InProcessServer(srv))
	} else {
		nc, err = nats.Connect(url)
	}
	if err != nil {
		return nil, fmt.Errorf("ipcbus: dial: %w", err)
	}
	return &Client{nc: nc}, nil
}

// Close closes the client connection.
func (c *Client) Close() { c.nc.Close() }

func (c *Client) request(ctx context.Context, subject string, req, resp interface{}) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("ipcbus: marshal request: %w", err)
	}
	msg, err := c.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("ipcbus: request %s: %w", subject, err)
	}
	if resp == nil {
		return nil
	}
	return json.Unmarshal(msg.Data, resp)
}

// SetConfig requests the daemon hot-swap to the named fan config.
func (c *Client) SetConfig(ctx context.Context, name string) error {
	var resp wireError
	if err := c.request(ctx, subjectSetConfig, struct {
		Name string `json:"name"`
	}{Name: name}, &resp); err != nil {
		return err
	}
	return asError(resp)
}

// SetAuto switches the daemon between automatic and manual control.
func (c *Client) SetAuto(ctx context.Context, auto bool) error {
	return c.request(ctx, subjectSetAuto, struct {
		Auto bool `json:"auto"`
	}{Auto: auto}, nil)
}

// SetTarget sets one fan's manual target percentage.
func (c *Client) SetTarget(ctx context.Context, index int, percent float64) error {
	var resp wireError
	if err := c.request(ctx, subjectSetTarget, struct {
		Index   int     `json:"index"`
		Percent float64 `json:"percent"`
	}{Index: index, Percent: percent}, &resp); err != nil {
		return err
	}
	return asError(resp)
}

// SetTargets replaces every fan's manual target percentage at once.
func (c *Client) SetTargets(ctx context.Context, percents []float64) error {
	var resp wireError
	if err := c.request(ctx, subjectSetTargets, struct {
		Percents []float64 `json:"percents"`
	}{Percents: percents}, &resp); err != nil {
		return err
	}
	return asError(resp)
}

// QuerySpeed asks for fan index's last-read speed percentage.
func (c *Client) QuerySpeed(ctx context.Context, index int) (float64, error) {
	var resp struct {
		Speed float64 `json:"speed"`
	}
	if err := c.request(ctx, subjectQuerySpeed, struct {
		Index int `json:"index"`
	}{Index: index}, &resp); err != nil {
		return 0, err
	}
	return resp.Speed, nil
}

// ListConfigs returns the names of every fan config the daemon can see.
func (c *Client) ListConfigs(ctx context.Context) ([]string, error) {
	var resp struct {
		Names []string `json:"names"`
		Error string   `json:"error"`
	}
	if err := c.request(ctx, subjectListConfigs, struct{}{}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s", resp.Error)
	}
	return resp.Names, nil
}

// Event is a decoded change-notification received from the daemon.
type Event struct {
	Kind          string
	Value         json.RawMessage
	CorrelationID string
}

// Subscribe streams change-notifications published by the daemon until
// ctx is cancelled. The returned channel is closed when ctx is done.
func (c *Client) Subscribe(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event, 32)
	sub, err := c.nc.Subscribe(subjectEvents, func(msg *nats.Msg) {
		var w wireEvent
		if err := json.Unmarshal(msg.Data, &w); err != nil {
			return
		}
		raw, _ := json.Marshal(w.Value)
		select {
		case out <- Event{Kind: w.Kind, Value: raw, CorrelationID: w.CorrelationID}:
		default:
		}
	})
	if err != nil {
		close(out)
		return nil, fmt.Errorf("ipcbus: subscribe events: %w", err)
	}
	go func() {
		<-ctx.Done()
		sub.Unsubscribe() //nolint:errcheck
		close(out)
	}()
	return out, nil
}

func asError(w wireError) error {
	if w.Error == "" {
		return nil
	}
	return fmt.Errorf("%s", w.Error)
}
