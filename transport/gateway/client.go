// Package gateway connects to a chat bridge over a websocket and exposes it
// as a transport.Transport.
//
// The bridge speaks a small JSON frame protocol (see Frame). The client
// identifies with a token, keeps the connection alive with pings, and
// reconnects with exponential backoff, rotating through the configured
// endpoints. Events() is the same channel across reconnects.
package gateway

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/autoboat/errors"
	"github.com/teranos/autoboat/logger"
	"github.com/teranos/autoboat/transport"
)

// WebSocket timeout constants following Gorilla's chat example
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Chat messages are small
	maxMessageSize = 64 * 1024

	maxReconnectDelay = 300 * time.Second
)

// Config configures a Client
type Config struct {
	Endpoints            []string // tried in order, rotated on reconnect
	Token                string
	ChannelID            string // inbound messages from other channels are ignored
	Silent               bool
	SlashMode            bool              // "/cmd args" invocations go out as invoke frames
	SlashIDs             map[string]string // command word -> platform command ID
	MaxSendsPerMinute    int               // 0 = unlimited
	MaxReconnectAttempts int               // consecutive failures before Run gives up; 0 = unlimited
	Verbosity            int
}

// Client is a reconnecting websocket transport
type Client struct {
	cfg     Config
	clock   clockwork.Clock
	log     *zap.SugaredLogger
	limiter *rate.Limiter
	dialer  *websocket.Dialer
	backoff func(attempt int) time.Duration

	events chan transport.InboundEvent

	mu   sync.Mutex
	conn *websocket.Conn
	self string // our account as named by the ready frame

	writeMu sync.Mutex // gorilla allows one concurrent writer
}

// Option configures a Client
type Option func(*Client)

// WithClock replaces the real clock
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithBackoff replaces the reconnect delay policy
func WithBackoff(f func(attempt int) time.Duration) Option {
	return func(c *Client) { c.backoff = f }
}

// WithDialer replaces the websocket dialer
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// New creates a client. Call Run to connect.
func New(cfg Config, opts ...Option) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.WithHint(errors.New("gateway: no endpoints configured"), "set gateway.url in am.toml")
	}
	if cfg.Token == "" {
		return nil, errors.WithHint(errors.New("gateway: no token configured"),
			"set AUTOBOAT_GATEWAY_TOKEN or gateway.token_file")
	}

	c := &Client{
		cfg:     cfg,
		clock:   clockwork.NewRealClock(),
		log:     logger.AddGatewaySymbol(logger.ComponentLogger("gateway")),
		dialer:  websocket.DefaultDialer,
		backoff: ReconnectDelay,
		events:  make(chan transport.InboundEvent, 64),
	}
	if cfg.MaxSendsPerMinute > 0 {
		burst := cfg.MaxSendsPerMinute
		if burst > 3 {
			burst = 3
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.MaxSendsPerMinute)), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Events returns the inbound stream. It is closed when Run returns.
func (c *Client) Events() <-chan transport.InboundEvent {
	return c.events
}

// Connected reports whether a session is currently open
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Run connects and keeps reconnecting until ctx is cancelled or the
// reconnect budget is spent.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)

	failures := 0
	for endpoint := 0; ; endpoint++ {
		url := c.cfg.Endpoints[endpoint%len(c.cfg.Endpoints)]

		connected, err := c.session(ctx, url)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			failures = 0
		}
		failures++

		if c.cfg.MaxReconnectAttempts > 0 && failures > c.cfg.MaxReconnectAttempts {
			return errors.WrapTransport(err, "gateway: reconnect attempts exhausted")
		}

		delay := c.backoff(failures)
		c.log.Warnw("Gateway disconnected, reconnecting",
			logger.FieldEndpoint, url,
			logger.FieldAttempt, failures,
			logger.FieldBackoffMS, delay.Milliseconds(),
			logger.FieldError, err)

		select {
		case <-ctx.Done():
			return nil
		case <-c.clock.After(delay):
		}
	}
}

// session dials url and pumps frames until the connection drops.
// connected reports whether identify succeeded.
func (c *Client) session(ctx context.Context, url string) (connected bool, err error) {
	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, errors.WrapTransport(err, "dial "+url)
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)

	if err := c.identify(conn); err != nil {
		return false, err
	}

	c.setConn(conn)
	defer c.setConn(nil)
	c.log.Infow("Gateway connected", logger.FieldEndpoint, url)

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.pingLoop(sessionCtx, conn)
	}()

	err = c.readPump(sessionCtx, conn)
	cancel()
	wg.Wait()
	return true, err
}

// identify sends the token and waits for the bridge to accept it
func (c *Client) identify(conn *websocket.Conn) error {
	if err := c.write(conn, Frame{Op: OpIdentify, Token: c.cfg.Token, ChannelID: c.cfg.ChannelID}); err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(writeWait))
	var ready Frame
	if err := conn.ReadJSON(&ready); err != nil {
		return errors.WrapTransport(err, "read ready frame")
	}
	switch ready.Op {
	case OpReady:
		c.mu.Lock()
		c.self = ready.Author
		c.mu.Unlock()
		return nil
	case OpError:
		// A rejected token will not get better by retrying, but the bridge
		// may also reject while restarting; leave that to the reconnect budget.
		return errors.NewTransportError("gateway rejected identify: %s", ready.Error)
	default:
		return errors.NewTransportError("expected ready frame, got %q", ready.Op)
	}
}

func (c *Client) readPump(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Unblock ReadJSON on shutdown
	stop := context.AfterFunc(ctx, func() {
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		conn.Close()
	})
	defer stop()

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.WrapTransport(err, "read frame")
		}

		if logger.ShouldOutput(c.cfg.Verbosity, logger.OutputFrames) {
			c.log.Debugw("Frame received", "op", frame.Op, "id", frame.ID)
		}

		switch frame.Op {
		case OpMessage:
			if c.cfg.ChannelID != "" && frame.ChannelID != c.cfg.ChannelID {
				continue
			}
			if c.isSelf(frame.Author) {
				// The bridge echoes our own sends unless silent
				continue
			}
			ev := transport.InboundEvent{
				ID:        frame.ID,
				ArrivedAt: c.clock.Now(),
				Content:   frame.Content,
				Author:    frame.Author,
				ChannelID: frame.ChannelID,
			}
			select {
			case c.events <- ev:
			case <-ctx.Done():
				return nil
			}
		case OpError:
			c.log.Warnw("Gateway reported error", logger.FieldError, frame.Error)
		}
	}
}

func (c *Client) isSelf(author string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self != "" && strings.EqualFold(author, c.self)
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := c.clock.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Send posts text to the configured channel, waiting for the send-rate
// limiter first. Fails fast with a transport error while disconnected.
func (c *Client) Send(ctx context.Context, text string) error {
	if c.limiter != nil {
		if logger.ShouldOutput(c.cfg.Verbosity, logger.OutputRateLimit) && c.limiter.Tokens() < 1 {
			c.log.Debugw("Send throttled by rate limiter")
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	frame, err := c.frameFor(text)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.NewTransportError("gateway not connected")
	}
	return c.write(conn, frame)
}

// frameFor builds a send frame, or an invoke frame in slash mode
func (c *Client) frameFor(text string) (Frame, error) {
	if !c.cfg.SlashMode || !strings.HasPrefix(text, "/") {
		return Frame{Op: OpSend, ChannelID: c.cfg.ChannelID, Content: text, Silent: c.cfg.Silent}, nil
	}

	words, err := shellquote.Split(strings.TrimPrefix(text, "/"))
	if err != nil {
		return Frame{}, errors.Wrapf(err, "parse slash invocation %q", text)
	}
	if len(words) == 0 {
		return Frame{}, errors.Newf("empty slash invocation %q", text)
	}
	return Frame{
		Op:        OpInvoke,
		ChannelID: c.cfg.ChannelID,
		Command:   words[0],
		CommandID: c.cfg.SlashIDs[words[0]],
		Options:   words[1:],
		Silent:    c.cfg.Silent,
	}, nil
}

func (c *Client) write(conn *websocket.Conn, frame Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame); err != nil {
		return errors.WrapTransport(err, "write "+frame.Op+" frame")
	}
	if logger.ShouldOutput(c.cfg.Verbosity, logger.OutputFrames) {
		c.log.Debugw("Frame sent", "op", frame.Op)
	}
	return nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

// ReconnectDelay is min(2^attempt s, 300s) with +-5% jitter
func ReconnectDelay(attempt int) time.Duration {
	base := time.Duration(math.Min(math.Pow(2, float64(attempt)), maxReconnectDelay.Seconds()) * float64(time.Second))
	jitter := 1 + (rand.Float64()*0.1 - 0.05)
	return time.Duration(float64(base) * jitter)
}
