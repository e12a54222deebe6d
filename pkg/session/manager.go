// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/picolink/picolink/internal/log"
	"github.com/picolink/picolink/pkg/wire"
)

// Defaults for Config fields left zero.
const (
	DefaultRateHz           = 30
	DefaultAckTimeout       = 2 * time.Second
	DefaultRediscoverAfter  = 5 * time.Second
	DefaultReconnectBackoff = 1 * time.Second

	maxReconnectBackoff = 16 * time.Second
)

// ErrNoAddr is returned by one-shot sends before an address is known.
var ErrNoAddr = errors.New("no robot address")

// Input is the operator's current stick state. Values are clamped to
// [-1, 1] on the way in.
type Input struct {
	Throttle float64
	Steer    float64
}

// LinkState is a snapshot of link health, built from the robot's acks.
type LinkState struct {
	Connected    bool
	RobotState   string
	LastAck      time.Time
	SeqSent      uint32
	SeqAcked     uint32
	RSSI         int
	HasRSSI      bool
	DrivesSent   uint64
	AcksReceived uint64
}

// Config configures a Manager.
type Config struct {
	// Addr is the robot to drive. May be nil if Rediscover can find one.
	Addr *net.UDPAddr

	// RateHz is the drive send rate.
	RateHz int

	// AckTimeout is how long without an ack before the link counts as
	// down.
	AckTimeout time.Duration

	// RediscoverAfter is how long a down link is given to come back on
	// its own before Rediscover is tried.
	RediscoverAfter time.Duration

	// ReconnectBackoff is the initial wait between rediscovery attempts.
	// It doubles per failure, capped at 16 seconds, and resets when an
	// ack arrives.
	ReconnectBackoff time.Duration

	// Rediscover finds a replacement address for a lost robot. Optional.
	Rediscover func(ctx context.Context) (*net.UDPAddr, error)
}

// Manager streams drive commands to one robot at a fixed rate and follows
// its acks. The stream keeps flowing while the link is down; datagrams are
// cheap and the robot picks the session back up from whatever arrives
// first. SetInput never blocks on the network.
type Manager struct {
	cfg  Config
	conn *net.UDPConn

	mu          sync.Mutex
	input       Input
	addr        *net.UDPAddr
	seq         uint32
	link        LinkState
	backoff     time.Duration
	lastAttempt time.Time

	rediscovering atomic.Bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewManager opens the client socket. Start must be called before any
// commands flow.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.RateHz <= 0 {
		cfg.RateHz = DefaultRateHz
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = DefaultAckTimeout
	}
	if cfg.RediscoverAfter <= 0 {
		cfg.RediscoverAfter = DefaultRediscoverAfter
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = DefaultReconnectBackoff
	}
	if cfg.Addr == nil && cfg.Rediscover == nil {
		return nil, ErrNoAddr
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:     cfg,
		conn:    conn,
		addr:    cfg.Addr,
		backoff: cfg.ReconnectBackoff,
	}, nil
}

// Start launches the send and receive goroutines.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(2)
	go m.sendLoop(ctx)
	go m.recvLoop(ctx)
}

// Close stops the stream, sends a best-effort stop command and releases
// the socket.
func (m *Manager) Close() error {
	if m.cancel != nil {
		m.cancel()
	}
	_ = m.sendNow(wire.Stop{})
	err := m.conn.Close()
	m.wg.Wait()
	return err
}

// SetInput updates the streamed throttle and steer.
func (m *Manager) SetInput(throttle, steer float64) {
	m.mu.Lock()
	m.input = Input{Throttle: clampUnit(throttle), Steer: clampUnit(steer)}
	m.mu.Unlock()
}

// Input returns the current stick state.
func (m *Manager) Input() Input {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.input
}

// Link returns a snapshot of link health.
func (m *Manager) Link() LinkState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.link
}

// Addr returns the robot address currently in use, or nil.
func (m *Manager) Addr() *net.UDPAddr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

// SetAddr switches the stream to a different robot.
func (m *Manager) SetAddr(addr *net.UDPAddr) {
	m.mu.Lock()
	m.addr = addr
	m.mu.Unlock()
}

// Stop zeroes the input and tells the robot to stop now rather than on the
// next tick.
func (m *Manager) Stop() error {
	m.SetInput(0, 0)
	return m.sendNow(wire.Stop{})
}

// EStop zeroes the input and latches the robot's emergency stop.
func (m *Manager) EStop() error {
	m.SetInput(0, 0)
	return m.sendNow(wire.EStop{})
}

// Reset clears a latched emergency stop.
func (m *Manager) Reset() error {
	return m.sendNow(wire.Reset{})
}

func (m *Manager) sendNow(cmd wire.Command) error {
	m.mu.Lock()
	addr := m.addr
	m.mu.Unlock()
	if addr == nil {
		return ErrNoAddr
	}
	_, err := m.conn.WriteToUDP(wire.Encode(cmd), addr)
	return err
}

func (m *Manager) sendLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(m.cfg.RateHz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tickSend(ctx)
		}
	}
}

func (m *Manager) tickSend(ctx context.Context) {
	m.mu.Lock()
	in := m.input
	addr := m.addr
	var seq uint32
	if addr != nil {
		m.seq++
		seq = m.seq
		m.link.SeqSent = seq
		m.link.DrivesSent++
	}

	silence := time.Since(m.link.LastAck)
	if m.link.Connected && silence > m.cfg.AckTimeout {
		m.link.Connected = false
		log.Warn("link down", "silence", silence.Round(time.Millisecond))
	}
	tryRediscover := m.cfg.Rediscover != nil &&
		!m.link.Connected &&
		silence > m.cfg.RediscoverAfter &&
		time.Since(m.lastAttempt) > m.backoff &&
		!m.rediscovering.Load()
	if tryRediscover {
		m.lastAttempt = time.Now()
	}
	m.mu.Unlock()

	if addr != nil {
		data := wire.Encode(wire.Drive{
			Throttle: in.Throttle,
			Steer:    in.Steer,
			Seq:      seq,
			SentAtMs: time.Now().UnixMilli(),
		})
		if _, err := m.conn.WriteToUDP(data, addr); err != nil {
			log.Debug("drive send failed", "err", err)
		}
	}
	if tryRediscover {
		go m.attemptRediscover(ctx)
	}
}

func (m *Manager) attemptRediscover(ctx context.Context) {
	if !m.rediscovering.CompareAndSwap(false, true) {
		return
	}
	defer m.rediscovering.Store(false)

	addr, err := m.cfg.Rediscover(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil || addr == nil {
		m.backoff *= 2
		if m.backoff > maxReconnectBackoff {
			m.backoff = maxReconnectBackoff
		}
		log.Debug("rediscovery failed", "err", err, "retry_in", m.backoff)
		return
	}
	m.addr = addr
	m.backoff = m.cfg.ReconnectBackoff
	log.Info("robot rediscovered", "addr", addr)
}

func (m *Manager) recvLoop(ctx context.Context) {
	defer m.wg.Done()

	buf := make([]byte, wire.MaxDatagramSize)
	for ctx.Err() == nil {
		_ = m.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Debug("recv failed", "err", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		ack, ok := wire.ParseAck(buf[:n])
		if !ok {
			continue
		}

		m.mu.Lock()
		wasDown := !m.link.Connected
		m.link.Connected = true
		m.link.LastAck = time.Now()
		m.link.RobotState = ack.State
		m.link.SeqAcked = ack.SeqAck
		m.link.AcksReceived++
		if ack.RSSI != nil {
			m.link.RSSI = *ack.RSSI
			m.link.HasRSSI = true
		} else {
			m.link.HasRSSI = false
		}
		m.backoff = m.cfg.ReconnectBackoff
		m.mu.Unlock()

		if wasDown {
			log.Info("link up", "state", ack.State)
		}
	}
}

func clampUnit(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
