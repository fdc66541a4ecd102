// Package watch is an observer client for the event channel.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"lanebot/internal/event"
	"lanebot/internal/progress"
)

// Client is one observer connection. Receive and Send may be used from
// different goroutines.
type Client struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	events atomic.Int64
	relays atomic.Int64
	last   atomic.Value
}

// Dial connects to the event channel at url (ws:// or wss://).
func Dial(ctx context.Context, url string) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return &Client{ws: ws}, nil
}

// Receive reads messages until the connection closes or ctx is done, passing
// a readable line for each to handle. A normal close returns nil.
func (c *Client) Receive(ctx context.Context, handle func(line string)) error {
	stop := context.AfterFunc(ctx, func() { c.ws.Close() })
	defer stop()

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading: %w", err)
		}
		line, isEvent := Describe(msg)
		if isEvent {
			c.events.Add(1)
			c.last.Store(gjson.GetBytes(msg, "type").String())
		} else {
			c.relays.Add(1)
		}
		handle(line)
	}
}

// Send relays msg to every other observer.
func (c *Client) Send(msg string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	err := c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	if cerr := c.ws.Close(); err == nil || errors.Is(err, websocket.ErrCloseSent) {
		err = cerr
	}
	return err
}

func (c *Client) Snapshot() progress.Snapshot {
	last, _ := c.last.Load().(string)
	return progress.Snapshot{
		Last:   last,
		Events: c.events.Load(),
		Relays: c.relays.Load(),
	}
}

// Describe renders a received message. Only JSON objects tagged with one of
// the run's event types count as events; everything else is a relay from
// another observer and is shown verbatim. Relays are opaque, so a peer that
// relays a well-formed event is indistinguishable from the run itself.
func Describe(msg []byte) (line string, isEvent bool) {
	relay := "relay: " + string(msg)
	if !gjson.ValidBytes(msg) {
		return relay, false
	}
	typ := gjson.GetBytes(msg, "type")
	if typ.Type != gjson.String {
		return relay, false
	}

	switch event.Type(typ.String()) {
	case event.Waiting:
		next := gjson.GetBytes(msg, "next").String()
		if pos := gjson.GetBytes(msg, "strafePos"); pos.Exists() {
			return fmt.Sprintf("waiting for %s (strafe position %.3f)", next, pos.Float()), true
		}
		return "waiting for " + next, true
	case event.Drive:
		res := gjson.GetManyBytes(msg, "heading", "predictedGutter")
		return fmt.Sprintf("drive heading=%.2f° gutter=%t", res[0].Float(), res[1].Bool()), true
	case event.Ready, event.Strafe, event.Angle, event.End, event.Cancelled:
		return typ.String(), true
	default:
		return relay, false
	}
}
