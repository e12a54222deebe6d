// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package robot

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/picolink/picolink/internal/log"
	"github.com/picolink/picolink/pkg/drive"
	"github.com/picolink/picolink/pkg/watchdog"
	"github.com/picolink/picolink/pkg/wire"
)

// maxDatagramsPerTick bounds receive work per tick so a flooding peer
// cannot starve the watchdog evaluation or the output stage.
const maxDatagramsPerTick = 32

// Telemetry is the once-per-second status snapshot.
type Telemetry struct {
	At            time.Time
	Mode          Mode
	Output        drive.Output
	WatchdogFeeds uint64
	Datagrams     uint64
	EstimatedLost uint64
	BatteryMV     int64
	HasBattery    bool
	RSSI          int
	HasRSSI       bool
}

// TelemetrySink receives telemetry snapshots on the loop goroutine.
type TelemetrySink func(Telemetry)

// LoopConfig carries everything the control loop needs beyond its
// collaborators. Port is what discovery responses advertise; it is not
// used for binding.
type LoopConfig struct {
	Identity        Identity
	Port            int
	ControlRateHz   int
	DeadZone        float64
	WatchdogTimeout time.Duration
	RSSI            RSSIFunc
	OnTransition    TransitionSink
	OnTelemetry     TelemetrySink
}

// Loop is the robot's control loop. One goroutine owns all of its state:
// commands are drained and dispatched, the watchdog is evaluated, and
// motor output is applied once per tick, in that order. Nothing here
// blocks on the network.
type Loop struct {
	cfg     LoopConfig
	conn    net.PacketConn
	machine *Machine
	wd      *watchdog.Watchdog
	store   *drive.Store
	act     Actuator
	stats   *wire.RxStats

	buf         []byte
	lastDrive   wire.Drive
	haveDrive   bool
	lastPeer    net.Addr
	ackPending  bool
	lastOutput  drive.Output
	telemetryAt time.Time
}

// NewLoop wires a control loop around an already-bound socket. The store
// must be open; act must not be nil.
func NewLoop(cfg LoopConfig, conn net.PacketConn, store *drive.Store, act Actuator) (*Loop, error) {
	if cfg.ControlRateHz <= 0 {
		return nil, fmt.Errorf("control rate must be positive, got %d", cfg.ControlRateHz)
	}
	wd, err := watchdog.New(cfg.WatchdogTimeout, time.Now())
	if err != nil {
		return nil, err
	}
	return &Loop{
		cfg:     cfg,
		conn:    conn,
		machine: NewMachine(cfg.OnTransition),
		wd:      wd,
		store:   store,
		act:     act,
		stats:   wire.NewRxStats(time.Now()),
		buf:     make([]byte, wire.MaxDatagramSize),
	}, nil
}

// Mode returns the current lifecycle state.
func (l *Loop) Mode() Mode {
	return l.machine.Mode()
}

// LastOutput returns the most recently applied motor output.
func (l *Loop) LastOutput() drive.Output {
	return l.lastOutput
}

// Stats exposes the receive counters.
func (l *Loop) Stats() *wire.RxStats {
	return l.stats
}

// Run ticks the loop at the configured rate until ctx is cancelled. Motors
// are stopped on the way out.
func (l *Loop) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(l.cfg.ControlRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("control loop running",
		"robot", l.cfg.Identity.Name,
		"rate_hz", l.cfg.ControlRateHz,
		"watchdog", l.cfg.WatchdogTimeout)

	for {
		select {
		case <-ctx.Done():
			l.applyOutput(drive.Zero())
			return ctx.Err()
		case now := <-ticker.C:
			l.Tick(now)
		}
	}
}

// Tick runs one control period: bring-up, drain, watchdog, output, ack,
// telemetry. A panic anywhere in the tick is contained; the recovery path
// still evaluates the watchdog and forces zero output, so a poisoned
// datagram cannot take the safety chain down with it.
func (l *Loop) Tick(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("tick panicked", "panic", r)
			if l.machine.Mode() == ModeDriving && l.wd.Expired(now) {
				l.machine.WatchdogExpired(now)
			}
			l.applyOutput(drive.Zero())
		}
	}()

	if l.machine.Mode() == ModeBoot {
		l.machine.NetUp(now)
	}

	l.drain(now)

	if l.machine.Mode() == ModeDriving && l.wd.Expired(now) {
		l.machine.WatchdogExpired(now)
		log.Warn("command flow stopped, motors zeroed",
			"elapsed", l.wd.Elapsed(now),
			"timeout", l.wd.Timeout())
	}

	out := drive.Zero()
	if l.machine.Mode() == ModeDriving && l.haveDrive {
		throttle := drive.ApplyDeadZone(l.lastDrive.Throttle, l.cfg.DeadZone)
		steer := drive.ApplyDeadZone(l.lastDrive.Steer, l.cfg.DeadZone)
		out = drive.Mix(throttle, steer, l.store.Get())
	}
	l.applyOutput(out)

	if l.ackPending && l.lastPeer != nil {
		ack := wire.Ack{State: l.machine.Mode().String()}
		if seq, ok := l.stats.LastSeq(); ok {
			ack.SeqAck = seq
		}
		if l.cfg.RSSI != nil {
			if v, ok := l.cfg.RSSI(); ok {
				ack.RSSI = &v
			}
		}
		if _, err := l.conn.WriteTo(ack.Encode(), l.lastPeer); err != nil {
			log.Debug("ack send failed", "err", err)
		}
		l.ackPending = false
	}

	if now.Sub(l.telemetryAt) >= time.Second {
		l.telemetryAt = now
		l.publishTelemetry(now)
	}
}

// drain polls the socket without blocking and dispatches whatever has
// arrived, in arrival order, up to the per-tick cap. Datagrams larger
// than the read buffer truncate and fail decode.
func (l *Loop) drain(now time.Time) {
	for i := 0; i < maxDatagramsPerTick; i++ {
		_ = l.conn.SetReadDeadline(time.Now())
		n, from, err := l.conn.ReadFrom(l.buf)
		if err != nil {
			return
		}
		l.dispatch(l.buf[:n], from, now)
	}
}

func (l *Loop) dispatch(data []byte, from net.Addr, now time.Time) {
	cmd, err := wire.Decode(data)
	l.stats.Update(cmd, err)
	if err != nil {
		log.Debug("datagram dropped", "err", err, "from", from)
		return
	}

	if _, ok := cmd.(wire.DiscoverRequest); ok {
		l.respondDiscover(from)
		return
	}

	l.machine.CommandSeen(now)
	l.lastPeer = from
	l.ackPending = true

	switch c := cmd.(type) {
	case wire.Drive:
		l.wd.Reset(now)
		l.lastDrive = c
		l.haveDrive = true
		l.machine.DriveProcessed(now)

	case wire.Stop:
		l.haveDrive = false

	case wire.EStop:
		l.haveDrive = false
		if l.machine.EStopped(now) {
			log.Warn("emergency stop latched", "from", from)
		}

	case wire.Reset:
		if l.machine.ResetRequested(now) {
			l.haveDrive = false
			l.wd.Reset(now)
			log.Info("emergency stop cleared", "from", from)
		}

	case wire.GetCalibration:
		reply := wire.CalibrationReply{Calibration: calToWire(l.store.Get())}
		if _, err := l.conn.WriteTo(reply.Encode(), from); err != nil {
			log.Warn("calibration reply failed", "err", err)
		}

	case wire.SetCalibration:
		applied, err := l.store.Set(calFromWire(c.Calibration))
		if err != nil {
			log.Warn("calibration persist failed", "err", err, "path", l.store.Path())
		}
		log.Info("calibration updated",
			"trim", applied.SteeringTrim,
			"left_scale", applied.LeftScale,
			"right_scale", applied.RightScale)
	}
}

func (l *Loop) respondDiscover(from net.Addr) {
	info := wire.RobotInfo{
		RobotID:     l.cfg.Identity.ID,
		Name:        l.cfg.Identity.Name,
		Hostname:    l.cfg.Identity.Hostname,
		Version:     Version,
		Color:       l.cfg.Identity.Color,
		Port:        l.cfg.Port,
		Calibration: calToWire(l.store.Get()),
	}
	if _, err := l.conn.WriteTo(info.Encode(), from); err != nil {
		log.Warn("discovery response failed", "err", err)
	}
}

func (l *Loop) applyOutput(out drive.Output) {
	l.lastOutput = out
	var err error
	if out.IsZero() {
		err = l.act.Stop()
	} else {
		err = l.act.Drive(out.Left, out.Right)
	}
	if err != nil {
		log.Warn("actuator apply failed", "err", err)
	}
}

func (l *Loop) publishTelemetry(now time.Time) {
	l.stats.CalculateRates(now)

	t := Telemetry{
		At:            now,
		Mode:          l.machine.Mode(),
		Output:        l.lastOutput,
		WatchdogFeeds: l.wd.Feeds(),
		Datagrams:     l.stats.Datagrams,
		EstimatedLost: l.stats.EstimatedLost,
	}
	if br, ok := l.act.(BatteryReporter); ok {
		if mv, valid := br.BatteryMV(); valid {
			t.BatteryMV = mv
			t.HasBattery = true
		}
	}
	if l.cfg.RSSI != nil {
		if v, ok := l.cfg.RSSI(); ok {
			t.RSSI = v
			t.HasRSSI = true
		}
	}

	if l.cfg.OnTelemetry != nil {
		l.cfg.OnTelemetry(t)
	}
	log.Debug("telemetry",
		"mode", t.Mode,
		"left", t.Output.Left,
		"right", t.Output.Right,
		"datagrams", t.Datagrams,
		"lost", t.EstimatedLost)
}

func calToWire(c drive.Calibration) wire.Calibration {
	return wire.Calibration{
		SteeringTrim:    c.SteeringTrim,
		MotorLeftScale:  c.LeftScale,
		MotorRightScale: c.RightScale,
	}
}

func calFromWire(c wire.Calibration) drive.Calibration {
	return drive.Calibration{
		SteeringTrim: c.SteeringTrim,
		LeftScale:    c.MotorLeftScale,
		RightScale:   c.MotorRightScale,
	}
}
