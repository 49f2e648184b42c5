// Package feed maintains the live orderbook stream: one persistent websocket
// connection to the CLOB market feed, chunked subscription management, a
// keepalive loop, periodic universe refresh, and the application of snapshot
// and delta events to the level store with durable persistence.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cwyatt/polywatch/internal/book"
	"github.com/cwyatt/polywatch/internal/domain"
)

const (
	handshakeTimeout = 15 * time.Second
	writeWait        = 10 * time.Second
)

// Universe supplies the current set of token ids to track. The set is
// recomputed externally; the client only consumes the flat list.
type Universe interface {
	TokenIDs(ctx context.Context) ([]string, error)
}

// Config holds the stream client's tunables.
type Config struct {
	// URLs is the ordered candidate endpoint list.
	URLs []string
	// SubscribeChunkSize caps assets per subscribe message.
	SubscribeChunkSize int
	// KeepaliveInterval is how often a liveness frame is sent regardless of
	// inbound traffic.
	KeepaliveInterval time.Duration
	// RefreshInterval is how often the tracked universe is re-diffed.
	RefreshInterval time.Duration
	// ReadTimeout bounds a single blocking read so the receive loop observes
	// a stop promptly.
	ReadTimeout time.Duration
	// BackoffBase/BackoffMax shape the reconnect backoff.
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

func (c *Config) applyDefaults() {
	if c.SubscribeChunkSize <= 0 {
		c.SubscribeChunkSize = 100
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 10 * time.Second
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 5 * time.Minute
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
}

// Client is the book stream client. It owns the level store; all other
// components read book state from the durable store.
type Client struct {
	cfg      Config
	universe Universe
	store    domain.BookStore
	logger   *slog.Logger

	// mu guards books and subscribed, which are touched from the receive
	// loop and the refresh loop of the active connection.
	mu         sync.Mutex
	books      *book.Store
	subscribed map[string]struct{}

	// writeMu serializes writes on the active connection.
	writeMu sync.Mutex
}

// NewClient creates a stream client.
func NewClient(cfg Config, universe Universe, store domain.BookStore, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:        cfg,
		universe:   universe,
		store:      store,
		logger:     logger.With(slog.String("component", "feed")),
		books:      book.NewStore(),
		subscribed: make(map[string]struct{}),
	}
}

// Run maintains the stream until ctx is cancelled. Each pass walks the
// candidate URL list in order; when the whole list fails it sleeps with
// exponential backoff before retrying, and any successful connection resets
// the backoff to its base.
func (c *Client) Run(ctx context.Context) error {
	delay := c.cfg.BackoffBase

	for {
		established := false
		for _, url := range c.cfg.URLs {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ok, err := c.stream(ctx, url)
			if ok {
				established = true
				delay = c.cfg.BackoffBase
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				c.logger.Warn("stream ended",
					slog.String("url", url),
					slog.Bool("was_connected", ok),
					slog.String("error", err.Error()),
				)
			}
			if ok {
				// A dropped live connection retries the list from the top
				// without waiting.
				break
			}
		}

		if !established {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.cfg.BackoffMax {
				delay = c.cfg.BackoffMax
			}
		}
	}
}

// stream dials one endpoint and services it until the connection drops or
// ctx is cancelled. ok reports whether a connection was established at all.
func (c *Client) stream(ctx context.Context, url string) (ok bool, err error) {
	tokens, err := c.universe.TokenIDs(ctx)
	if err != nil {
		return false, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, err
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Closing the connection unblocks a pending read when the stop signal or
	// a loop failure cancels connCtx.
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()

	if err := c.subscribeInitial(conn, tokens); err != nil {
		return true, err
	}

	c.mu.Lock()
	c.subscribed = make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		c.subscribed[t] = struct{}{}
	}
	c.mu.Unlock()

	c.logger.Info("connected",
		slog.String("url", url),
		slog.Int("tokens", len(tokens)),
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.keepaliveLoop(connCtx, conn)
	}()
	go func() {
		defer wg.Done()
		c.refreshLoop(connCtx, conn)
	}()

	err = c.receiveLoop(connCtx, conn)
	cancel()
	wg.Wait()
	return true, err
}

// subscribeInitial sends the first chunk as the initial market subscription
// and the remaining chunks as incremental subscribe operations.
func (c *Client) subscribeInitial(conn *websocket.Conn, tokens []string) error {
	chunks := chunk(tokens, c.cfg.SubscribeChunkSize)
	for i, part := range chunks {
		cmd := subscribeCommand{AssetIDs: part}
		if i == 0 {
			cmd.Type = "market"
		} else {
			cmd.Operation = "subscribe"
		}
		if err := c.writeJSON(conn, cmd); err != nil {
			return err
		}
	}
	return nil
}

// receiveLoop reads frames until the connection fails. Each blocking read is
// bounded by ReadTimeout; a deadline expiry is treated as a dead connection
// (the keepalive loop guarantees traffic on a healthy one).
func (c *Client) receiveLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		c.handleFrame(ctx, data)
	}
}

// keepaliveLoop sends the liveness frame on a fixed interval regardless of
// inbound traffic.
func (c *Client) keepaliveLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeText(conn, keepaliveFrame); err != nil {
				return
			}
		}
	}
}

// refreshLoop periodically re-reads the tracked universe, subscribes to
// additions, unsubscribes removals, and evicts removed tokens from the level
// store so no stale book lingers.
func (c *Client) refreshLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.refreshUniverse(ctx, conn); err != nil {
				c.logger.Warn("universe refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (c *Client) refreshUniverse(ctx context.Context, conn *websocket.Conn) error {
	tokens, err := c.universe.TokenIDs(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		next[t] = struct{}{}
	}

	c.mu.Lock()
	var added, removed []string
	for t := range next {
		if _, ok := c.subscribed[t]; !ok {
			added = append(added, t)
		}
	}
	for t := range c.subscribed {
		if _, ok := next[t]; !ok {
			removed = append(removed, t)
		}
	}
	c.subscribed = next
	c.books.Evict(removed)
	c.mu.Unlock()

	for _, part := range chunk(added, c.cfg.SubscribeChunkSize) {
		if err := c.writeJSON(conn, subscribeCommand{AssetIDs: part, Operation: "subscribe"}); err != nil {
			return err
		}
	}
	for _, part := range chunk(removed, c.cfg.SubscribeChunkSize) {
		if err := c.writeJSON(conn, subscribeCommand{AssetIDs: part, Operation: "unsubscribe"}); err != nil {
			return err
		}
	}

	if len(added) > 0 || len(removed) > 0 {
		c.logger.Info("universe refreshed",
			slog.Int("tracked", len(tokens)),
			slog.Int("added", len(added)),
			slog.Int("removed", len(removed)),
		)
	}
	return nil
}

// handleFrame applies every recognizable event in a frame. Malformed
// payloads are expected noise on a public feed and are dropped without
// logging; message-level problems never abort the connection.
func (c *Client) handleFrame(ctx context.Context, data []byte) {
	for _, raw := range parseEvents(data) {
		switch eventType(raw) {
		case eventTypeBook:
			var msg bookMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			c.applyBook(ctx, &msg)
		case eventTypePriceChange:
			var msg priceChangeMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			c.applyPriceChange(ctx, &msg)
		}
	}
}

// applyBook replaces the cached book wholesale and persists both sides.
func (c *Client) applyBook(ctx context.Context, msg *bookMessage) {
	if msg.AssetID == "" {
		return
	}

	c.mu.Lock()
	b := c.books.ApplySnapshot(msg.toBook())
	rows := b.Rows()
	c.mu.Unlock()

	c.persist(ctx, rows)
}

// applyPriceChange patches cached books per token; deltas for tokens without
// a cached snapshot are dropped.
func (c *Client) applyPriceChange(ctx context.Context, msg *priceChangeMessage) {
	ts := parseFeedTime(msg.Timestamp)

	var rows []domain.OrderBook
	c.mu.Lock()
	for tokenID, changes := range msg.changesByToken() {
		if b, ok := c.books.ApplyChanges(tokenID, changes, ts); ok {
			rows = append(rows, b.Rows()...)
		}
	}
	c.mu.Unlock()

	c.persist(ctx, rows)
}

// persist upserts book rows. Rows missing their market or token linkage are
// never written. Store errors are logged and swallowed; persistence problems
// must not take down the stream.
func (c *Client) persist(ctx context.Context, rows []domain.OrderBook) {
	for _, row := range rows {
		if row.TokenID == "" || row.ConditionID == "" {
			continue
		}
		if err := c.store.Upsert(ctx, row); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("book upsert failed",
				slog.String("token_id", row.TokenID),
				slog.String("side", string(row.Side)),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (c *Client) writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.writeText(conn, string(data))
}

func (c *Client) writeText(conn *websocket.Conn, payload string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, []byte(payload))
}

func chunk(items []string, size int) [][]string {
	if len(items) == 0 {
		return nil
	}
	var out [][]string
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
