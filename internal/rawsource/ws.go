package rawsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxDialRetries = 3
	baseRetryDelay = 500 * time.Millisecond
)

// wsHeader is the fixed column layout emitted by WSSource. It mirrors a
// common exchange trade feed so the converter can normalize captured rows
// with the same schema matcher used for downloaded files.
var wsHeader = []string{"symbol", "timestamp", "local_timestamp", "id", "side", "price", "amount"}

// wsTradeMessage is one trade message on the feed.
type wsTradeMessage struct {
	Symbol    string `json:"symbol"`
	Timestamp int64  `json:"timestamp"` // microseconds
	TradeID   string `json:"id"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Amount    string `json:"amount"`
}

// WSSource captures a live trade feed over WebSocket and exposes it as a
// raw row stream. MaxRows bounds the capture; the stream ends with io.EOF
// once the bound is reached or the connection closes normally.
type WSSource struct {
	url     string
	conn    *websocket.Conn
	maxRows int
	seen    int
	nowUs   func() int64
}

// DialWS connects to a trade feed with bounded retry and exponential backoff.
// maxRows <= 0 means capture until the peer closes the connection.
func DialWS(ctx context.Context, url string, maxRows int) (*WSSource, error) {
	var conn *websocket.Conn
	var lastErr error

	for attempt := 0; attempt < maxDialRetries; attempt++ {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err == nil {
			conn = c
			break
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		select {
		case <-time.After(baseRetryDelay * time.Duration(1<<attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if conn == nil {
		return nil, fmt.Errorf("dial trade feed %s: %w", url, lastErr)
	}

	return &WSSource{
		url:     url,
		conn:    conn,
		maxRows: maxRows,
		nowUs:   func() int64 { return time.Now().UnixMicro() },
	}, nil
}

// Compile-time interface check.
var _ Source = (*WSSource)(nil)

// Name identifies the source for error context.
func (s *WSSource) Name() string { return s.url }

// Header returns the fixed capture column layout.
func (s *WSSource) Header() []string { return wsHeader }

// Next reads one trade message and converts it to a row. The capture
// timestamp is recorded as local_timestamp.
func (s *WSSource) Next(ctx context.Context) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.maxRows > 0 && s.seen >= s.maxRows {
		return nil, io.EOF
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := s.conn.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
	}

	_, payload, err := s.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read trade feed %s: %w", s.url, err)
	}

	var msg wsTradeMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("decode trade message from %s: %w", s.url, err)
	}

	s.seen++
	return Row{
		msg.Symbol,
		strconv.FormatInt(msg.Timestamp, 10),
		strconv.FormatInt(s.nowUs(), 10),
		msg.TradeID,
		msg.Side,
		msg.Price,
		msg.Amount,
	}, nil
}

// Close sends a close frame and releases the connection.
func (s *WSSource) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return s.conn.Close()
}
