package link

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/tetherctl/internal/observability"
	"github.com/danmuck/tetherctl/internal/protocol/wire"
)

var (
	ErrAddressRequired = errors.New("link: hub address required")
	ErrHandlerRequired = errors.New("link: packet handler required")
	ErrClientClosed    = errors.New("link: client closed")
)

// Config defines the hub-link client surface.
type Config struct {
	// Addr is the hub host:port.
	Addr string
	// TrustRootFile is the PEM trust root for the encrypted transport.
	// Empty selects plain TCP (development mode).
	TrustRootFile string
	// ServerName overrides the TLS server name; defaults to the Addr host.
	ServerName string

	TickInterval     time.Duration // business tick: drain inbound, route queues
	FlushInterval    time.Duration // write-flush sub-task cadence
	BackoffStep      time.Duration // backoff countdown granularity
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration

	// BackoffSchedule is the escalating reconnect spacing; defaults to
	// DefaultBackoffSchedule.
	BackoffSchedule []time.Duration
	// MaxFrameBytes bounds the declared length of inbound frames.
	MaxFrameBytes int
	// IsKeepAlive marks frames to drop while the link is open but not yet
	// settled. Nil disables the filter.
	IsKeepAlive func(frame []byte) bool
	// OnStateChange, when set, observes every lifecycle transition. It runs
	// on the loop goroutine and must not block.
	OnStateChange func(State)
}

func (c Config) WithDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 250 * time.Millisecond
	}
	if c.BackoffStep <= 0 {
		c.BackoffStep = time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if len(c.BackoffSchedule) == 0 {
		c.BackoffSchedule = DefaultBackoffSchedule
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = wire.DefaultMaxFrameBytes
	}
	return c
}

// dialResult, readChunk, and connClosed are loop events tagged with the
// connection generation that produced them; the loop discards stale ones.
type dialResult struct {
	gen  uint64
	conn net.Conn
	err  error
}

type readChunk struct {
	gen   uint64
	chunk []byte
}

type connClosed struct {
	gen uint64
	err error
}

// Client keeps one logical connection to the hub alive and buffers frames in
// both directions across disconnects.
type Client struct {
	cfg     Config
	handler PacketHandler
	log     zerolog.Logger

	state atomic.Int32 // published copy of the loop-owned state

	sendCh  chan []byte
	dialCh  chan dialResult
	readCh  chan readChunk
	closeCh chan connClosed

	stop     chan struct{}
	stopOnce sync.Once

	// Loop-owned; never touched off the Run goroutine.
	q           queues
	dec         *wire.Decoder
	schedule    *ReconnectSchedule
	conn        net.Conn
	gen         uint64
	established bool // socket open and first flush completed
	backoffOn   bool
}

func NewClient(cfg Config, handler PacketHandler) (*Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, ErrAddressRequired
	}
	if handler == nil {
		return nil, ErrHandlerRequired
	}
	cfg = cfg.WithDefaults()
	c := &Client{
		cfg:      cfg,
		handler:  handler,
		log:      log.With().Str("component", "link").Str("addr", cfg.Addr).Logger(),
		sendCh:   make(chan []byte, 64),
		dialCh:   make(chan dialResult, 1),
		readCh:   make(chan readChunk, 64),
		closeCh:  make(chan connClosed, 4),
		stop:     make(chan struct{}),
		dec:      wire.NewDecoder(cfg.MaxFrameBytes),
		schedule: NewReconnectSchedule(cfg.BackoffSchedule),
	}
	c.state.Store(int32(StateDisconnected))
	return c, nil
}

// State reports the last published lifecycle state. Safe from any goroutine.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Send queues one frame for delivery. Accepted in every connection state;
// frames queued while the link is down are written once it comes back.
func (c *Client) Send(frame []byte) error {
	select {
	case <-c.stop:
		return ErrClientClosed
	default:
	}
	select {
	case c.sendCh <- frame:
		return nil
	case <-c.stop:
		return ErrClientClosed
	}
}

// Close requests shutdown. Idempotent; the Run loop tears down its timers and
// socket and returns.
func (c *Client) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Run drives the link until ctx is cancelled, Close is called, or a
// non-transient connect failure surfaces. Transport-level failures never
// cross this boundary; the reconnect path absorbs them.
func (c *Client) Run(ctx context.Context) error {
	tick := time.NewTicker(c.cfg.TickInterval)
	defer tick.Stop()
	flush := time.NewTicker(c.cfg.FlushInterval)
	defer flush.Stop()
	retry := time.NewTicker(c.cfg.BackoffStep)
	defer retry.Stop()

	c.startConnect(ctx)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-c.stop:
			c.shutdown()
			return nil
		case frame := <-c.sendCh:
			c.q.enqueue(frame, c.State() == StateConnected)
		case res := <-c.dialCh:
			if err := c.onDialResult(res); err != nil {
				c.shutdown()
				return err
			}
		case rc := <-c.readCh:
			c.onRead(rc)
		case cc := <-c.closeCh:
			c.onConnClosed(cc)
		case <-tick.C:
			c.q.runTick(c.State() == StateConnected, c.handler)
		case <-flush.C:
			c.flushOutbound()
		case <-retry.C:
			c.onBackoffTick(ctx)
		}
	}
}

// startConnect launches an asynchronous dial attempt. A duplicate attempt is
// suppressed while one is in flight or the link is already up.
func (c *Client) startConnect(ctx context.Context) {
	if s := c.State(); s == StateConnecting || s == StateConnected {
		return
	}
	c.setState(StateConnecting)
	c.gen++
	gen := c.gen
	t := Transport{
		Addr:             c.cfg.Addr,
		TrustRootFile:    c.cfg.TrustRootFile,
		ServerName:       c.cfg.ServerName,
		ConnectTimeout:   c.cfg.ConnectTimeout,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	go func() {
		conn, err := t.Dial(ctx)
		select {
		case c.dialCh <- dialResult{gen: gen, conn: conn, err: err}:
		case <-c.stop:
			if conn != nil {
				_ = conn.Close()
			}
		}
	}()
}

func (c *Client) onDialResult(res dialResult) error {
	if res.gen != c.gen || c.State() != StateConnecting {
		// Resolved after shutdown, or a newer attempt superseded it.
		if res.conn != nil {
			_ = res.conn.Close()
		}
		return nil
	}

	if res.err != nil {
		if isTransientDialError(res.err) {
			observability.RecordConnect("refused")
			c.log.Warn().Err(res.err).Msg("connect refused; scheduling reconnect")
			c.enterReconnect(false)
			return nil
		}
		observability.RecordConnect("error")
		c.log.Error().Err(res.err).Msg("connect failed")
		c.setState(StateDisconnected)
		return res.err
	}

	observability.RecordConnect("success")
	c.conn = res.conn
	c.established = false
	c.backoffOn = false
	c.schedule.Reset()
	c.setState(StateConnected)
	c.log.Info().Msg("connected")
	go c.readLoop(res.conn, c.gen)
	return nil
}

// enterReconnect marks the link down and arms the backoff countdown. A
// failed attempt inside a running backoff cycle keeps the cycle's stage so
// the spacing keeps escalating.
func (c *Client) enterReconnect(fromConnected bool) {
	c.setState(StateAwaitingReconnect)
	if fromConnected || !c.backoffOn {
		c.schedule.Reset()
		c.backoffOn = true
	}
}

func (c *Client) onBackoffTick(ctx context.Context) {
	if !c.backoffOn {
		return
	}
	if !c.schedule.Tick(c.cfg.BackoffStep) {
		return
	}
	if c.State() != StateAwaitingReconnect {
		// An attempt is still in flight, or the link came back.
		return
	}
	c.log.Info().Int("stage", c.schedule.Stage()).Msg("reconnect attempt")
	c.startConnect(ctx)
}

// readLoop is the only per-connection goroutine: it copies raw socket bytes
// into loop events and reports the close. All decoding happens on the loop.
func (c *Client) readLoop(conn net.Conn, gen uint64) {
	buf := make([]byte, 32*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case c.readCh <- readChunk{gen: gen, chunk: chunk}:
			case <-c.stop:
				return
			}
		}
		if err != nil {
			select {
			case c.closeCh <- connClosed{gen: gen, err: err}:
			case <-c.stop:
			}
			return
		}
	}
}

func (c *Client) onRead(rc readChunk) {
	if rc.gen != c.gen || c.conn == nil {
		return
	}
	observability.RecordBytesRead(len(rc.chunk))
	frames, err := c.dec.Feed(rc.chunk)
	for _, f := range frames {
		c.q.pushInbound(f)
	}
	observability.RecordFramesDecoded(len(frames))
	if err != nil {
		// Protocol violation: stop trusting the stream and reconnect.
		c.log.Warn().Err(err).Msg("malformed frame length; dropping connection")
		c.dropConn(err)
	}
}

func (c *Client) onConnClosed(cc connClosed) {
	if cc.gen != c.gen || c.conn == nil {
		return
	}
	c.dropConn(cc.err)
}

// dropConn closes the active socket and funnels into the reconnect path.
func (c *Client) dropConn(cause error) {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	c.gen++ // invalidate in-flight events from the dead connection
	c.dec.Reset()
	c.established = false
	observability.RecordDisconnect()
	c.log.Warn().Err(cause).Msg("link down; entering backoff")
	c.enterReconnect(true)
}

// flushOutbound is the write-flush sub-task: it writes the union of pending
// and waiting, in that order, dropping keep-alive frames until the link has
// settled, then marks the connection fully established.
func (c *Client) flushOutbound() {
	if c.State() != StateConnected || c.conn == nil {
		return
	}
	frames := c.q.takeOutbound()
	written := 0
	for i, f := range frames {
		if !c.established && c.cfg.IsKeepAlive != nil && c.cfg.IsKeepAlive(f) {
			observability.RecordKeepaliveDropped()
			continue
		}
		if _, err := c.conn.Write(wire.Encode(f)); err != nil {
			// Write failure is a close event; keep the unwritten tail so
			// nothing is lost across the reconnect.
			c.q.requeueWaiting(frames[i:])
			observability.RecordFramesWritten(written)
			c.dropConn(err)
			return
		}
		written++
	}
	observability.RecordFramesWritten(written)
	c.established = true
}

// shutdown is the terminal transition; reaching it twice has no further
// effect.
func (c *Client) shutdown() {
	c.Close()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.gen++
	c.backoffOn = false
	c.established = false
	c.setState(StateDisconnected)
}

func (c *Client) setState(s State) {
	if State(c.state.Load()) == s {
		return
	}
	c.state.Store(int32(s))
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
}
