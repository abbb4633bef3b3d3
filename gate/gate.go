// Package gate is the runtime's network event source. It accepts TCP
// connections, splits their streams into length-prefixed packets and pushes
// each event into the watchdog actor's mailbox as a Socket envelope.
package gate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/najoast/skyrt/core"
	"github.com/najoast/skyrt/log"
	"go.uber.org/atomic"
)

var (
	// ErrConnNotFound is returned for unknown or closed connection ids.
	ErrConnNotFound = errors.New("gate: connection not found")
	// ErrAlreadyRunning is returned by Start on a running gate.
	ErrAlreadyRunning = errors.New("gate: already running")
)

// Waker wakes sleeping workers after events are pushed.
type Waker interface {
	Wakeup(busy int)
}

// Config contains gate settings.
type Config struct {
	// Address to listen on, host:port
	Address string
	// Name of the actor receiving socket events
	Watchdog string
	// Maximum concurrent connections, 0 for unlimited
	MaxConnections int
	// Idle read timeout, 0 for none
	ReadTimeout time.Duration
	// Write timeout per packet, 0 for none
	WriteTimeout time.Duration
}

// Gate accepts connections and forwards their events to the watchdog.
type Gate struct {
	config   Config
	registry *core.Registry
	waker    Waker
	logger   log.Logger

	listener net.Listener
	running  atomic.Bool

	conns   map[uint32]*conn
	connsMu sync.RWMutex
	nextID  atomic.Uint32

	totalConnections atomic.Int64
	totalPackets     atomic.Int64

	wg sync.WaitGroup
}

type conn struct {
	id      uint32
	netConn net.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
}

// New creates a gate that resolves cfg.Watchdog through registry. waker may
// be nil.
func New(cfg Config, registry *core.Registry, waker Waker, logger log.Logger) *Gate {
	if logger == nil {
		logger = log.DiscardLogger
	}
	return &Gate{
		config:   cfg,
		registry: registry,
		waker:    waker,
		logger:   logger,
		conns:    make(map[uint32]*conn),
	}
}

// Name returns the lifecycle name of the gate.
func (g *Gate) Name() string {
	return "gate"
}

// Start listens and begins accepting connections.
func (g *Gate) Start(context.Context) error {
	if !g.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	listener, err := net.Listen("tcp", g.config.Address)
	if err != nil {
		g.running.Store(false)
		return fmt.Errorf("failed to listen on %s: %w", g.config.Address, err)
	}
	g.listener = listener

	g.wg.Add(1)
	go g.acceptLoop()

	g.logger.Infof("gate listening on %s, watchdog %q", listener.Addr(), g.config.Watchdog)
	return nil
}

// Stop closes the listener and every connection, then waits for the
// reader goroutines.
func (g *Gate) Stop(context.Context) error {
	if !g.running.CompareAndSwap(true, false) {
		return nil
	}

	err := g.listener.Close()

	g.connsMu.Lock()
	for _, c := range g.conns {
		c.close()
	}
	g.connsMu.Unlock()

	g.wg.Wait()
	g.logger.Info("gate stopped")
	return err
}

// Addr returns the listening address, or nil before Start.
func (g *Gate) Addr() net.Addr {
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// Write sends one packet to the connection.
func (g *Gate) Write(id uint32, body []byte) error {
	c, ok := g.lookup(id)
	if !ok {
		return fmt.Errorf("write %d: %w", id, ErrConnNotFound)
	}
	packet, err := Pack(body)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if g.config.WriteTimeout > 0 {
		if err := c.netConn.SetWriteDeadline(time.Now().Add(g.config.WriteTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	if _, err := c.netConn.Write(packet); err != nil {
		return fmt.Errorf("write %d: %w", id, err)
	}
	return nil
}

// Close closes a connection. The watchdog still receives its close event.
func (g *Gate) Close(id uint32) error {
	c, ok := g.lookup(id)
	if !ok {
		return fmt.Errorf("close %d: %w", id, ErrConnNotFound)
	}
	c.close()
	return nil
}

// ConnectionCount returns the number of open connections.
func (g *Gate) ConnectionCount() int {
	g.connsMu.RLock()
	defer g.connsMu.RUnlock()
	return len(g.conns)
}

// TotalConnections returns how many connections were accepted.
func (g *Gate) TotalConnections() int64 {
	return g.totalConnections.Load()
}

// TotalPackets returns how many packets were forwarded.
func (g *Gate) TotalPackets() int64 {
	return g.totalPackets.Load()
}

func (g *Gate) acceptLoop() {
	defer g.wg.Done()

	for {
		netConn, err := g.listener.Accept()
		if err != nil {
			if !g.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			g.logger.Warnf("failed to accept connection: %v", err)
			continue
		}

		if limit := g.config.MaxConnections; limit > 0 && g.ConnectionCount() >= limit {
			g.logger.Warnf("connection limit reached (%d), rejecting %s", limit, netConn.RemoteAddr())
			_ = netConn.Close()
			continue
		}

		c := &conn{id: g.nextID.Inc(), netConn: netConn}
		g.connsMu.Lock()
		g.conns[c.id] = c
		g.connsMu.Unlock()
		g.totalConnections.Inc()

		g.emit(Event{Type: EventAccept, ConnID: c.id, Data: []byte(netConn.RemoteAddr().String())})

		g.wg.Add(1)
		go g.readLoop(c)
	}
}

func (g *Gate) readLoop(c *conn) {
	defer g.wg.Done()
	defer func() {
		g.connsMu.Lock()
		delete(g.conns, c.id)
		g.connsMu.Unlock()
		c.close()
		g.emit(Event{Type: EventClose, ConnID: c.id})
	}()

	for {
		if g.config.ReadTimeout > 0 {
			if err := c.netConn.SetReadDeadline(time.Now().Add(g.config.ReadTimeout)); err != nil {
				return
			}
		}

		body, err := ReadPacket(c.netConn)
		if err != nil {
			if !c.closed.Load() && !isEOF(err) {
				g.emit(Event{Type: EventError, ConnID: c.id, Data: []byte(err.Error())})
			}
			return
		}

		g.totalPackets.Inc()
		g.emit(Event{Type: EventData, ConnID: c.id, Data: body})
	}
}

// emit pushes ev to the watchdog and wakes a worker if all of them sleep.
func (g *Gate) emit(ev Event) {
	env := core.NewEnvelope(0, 0, core.MessageTypeSocket, ev.Marshal())
	if err := g.registry.SendName(g.config.Watchdog, env); err != nil {
		g.logger.Debugf("drop %s event for connection %d: %v", ev.Type, ev.ConnID, err)
		return
	}
	if g.waker != nil {
		g.waker.Wakeup(0)
	}
}

func (g *Gate) lookup(id uint32) (*conn, bool) {
	g.connsMu.RLock()
	defer g.connsMu.RUnlock()
	c, ok := g.conns[id]
	return c, ok
}

func (c *conn) close() {
	if c.closed.CompareAndSwap(false, true) {
		_ = c.netConn.Close()
	}
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
