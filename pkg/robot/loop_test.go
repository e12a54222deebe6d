// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package robot

import (
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/picolink/picolink/pkg/drive"
	"github.com/picolink/picolink/pkg/wire"
)

// ============================================================================
// Test doubles
// ============================================================================

var errNoData = errors.New("no data queued")

var testPeer = &net.UDPAddr{IP: net.IPv4(192, 168, 1, 50), Port: 49152}

type inboundDatagram struct {
	data []byte
	from net.Addr
}

type sentDatagram struct {
	data []byte
	to   net.Addr
}

// fakeConn is an in-memory net.PacketConn. Reads pop from a queue; an
// empty queue reads like a poll timeout.
type fakeConn struct {
	inbound []inboundDatagram
	sent    []sentDatagram
}

func (c *fakeConn) queue(data []byte, from net.Addr) {
	c.inbound = append(c.inbound, inboundDatagram{data: data, from: from})
}

func (c *fakeConn) ReadFrom(b []byte) (int, net.Addr, error) {
	if len(c.inbound) == 0 {
		return 0, nil, errNoData
	}
	d := c.inbound[0]
	c.inbound = c.inbound[1:]
	return copy(b, d.data), d.from, nil
}

func (c *fakeConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	c.sent = append(c.sent, sentDatagram{data: append([]byte(nil), b...), to: addr})
	return len(b), nil
}

func (c *fakeConn) Close() error                       { return nil }
func (c *fakeConn) LocalAddr() net.Addr                { return &net.UDPAddr{Port: 8765} }
func (c *fakeConn) SetDeadline(t time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

type fakeActuator struct {
	drives []drive.Output
	stops  int
}

func (a *fakeActuator) Drive(left, right float64) error {
	a.drives = append(a.drives, drive.Output{Left: left, Right: right})
	return nil
}

func (a *fakeActuator) Stop() error {
	a.stops++
	return nil
}

type batteryActuator struct {
	fakeActuator
}

func (a *batteryActuator) BatteryMV() (int64, bool) { return 7400, true }

// ============================================================================
// Harness
// ============================================================================

const testTimeout = 200 * time.Millisecond

func testLoopConfig() LoopConfig {
	return LoopConfig{
		Identity:        IdentityFor(1),
		Port:            8765,
		ControlRateHz:   30,
		DeadZone:        0,
		WatchdogTimeout: testTimeout,
	}
}

func newTestLoop(t *testing.T, cfg LoopConfig) (*Loop, *fakeConn, *fakeActuator) {
	t.Helper()
	conn := &fakeConn{}
	act := &fakeActuator{}
	store, err := drive.OpenStore(filepath.Join(t.TempDir(), "calibration.json"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	loop, err := NewLoop(cfg, conn, store, act)
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	return loop, conn, act
}

func driveDatagram(throttle, steer float64, seq uint32) []byte {
	return wire.Encode(wire.Drive{Throttle: throttle, Steer: steer, Seq: seq})
}

func approxOutput(got drive.Output, left, right float64) bool {
	const eps = 1e-9
	return got.Left > left-eps && got.Left < left+eps &&
		got.Right > right-eps && got.Right < right+eps
}

// ============================================================================
// Construction
// ============================================================================

func TestNewLoopRejectsBadConfig(t *testing.T) {
	store, err := drive.OpenStore(filepath.Join(t.TempDir(), "calibration.json"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}

	cfg := testLoopConfig()
	cfg.ControlRateHz = 0
	if _, err := NewLoop(cfg, &fakeConn{}, store, &fakeActuator{}); err == nil {
		t.Error("Expected error for zero control rate")
	}

	cfg = testLoopConfig()
	cfg.WatchdogTimeout = 0
	if _, err := NewLoop(cfg, &fakeConn{}, store, &fakeActuator{}); err == nil {
		t.Error("Expected error for zero watchdog timeout")
	}
}

func TestFirstTickBringsNetworkUp(t *testing.T) {
	loop, _, act := newTestLoop(t, testLoopConfig())

	loop.Tick(time.Now())

	if loop.Mode() != ModeNetUp {
		t.Errorf("Expected NET_UP after first tick, got %v", loop.Mode())
	}
	if act.stops != 1 {
		t.Errorf("Expected idle tick to apply zero output, got %d stops", act.stops)
	}
}

// ============================================================================
// Drive flow and liveness
// ============================================================================

func TestSteadyDrivesKeepMotorsRunning(t *testing.T) {
	loop, conn, act := newTestLoop(t, testLoopConfig())
	base := time.Now()

	// 30 Hz drives for half a second, ticked at the same cadence.
	seq := uint32(1)
	for off := time.Duration(0); off <= 500*time.Millisecond; off += 33 * time.Millisecond {
		conn.queue(driveDatagram(0.5, 0, seq), testPeer)
		seq++
		loop.Tick(base.Add(off))
	}

	if loop.Mode() != ModeDriving {
		t.Fatalf("Expected DRIVING, got %v", loop.Mode())
	}
	if len(act.drives) == 0 {
		t.Fatal("Expected drive output to reach the actuator")
	}
	for i, out := range act.drives {
		if !approxOutput(out, 0.5, 0.5) {
			t.Fatalf("Drive %d: expected 0.5/0.5, got %+v", i, out)
		}
	}
	if act.stops != 0 {
		t.Errorf("Expected no stops during steady driving, got %d", act.stops)
	}
}

func TestWatchdogExpiryZeroesMotors(t *testing.T) {
	var transitions []Transition
	cfg := testLoopConfig()
	cfg.OnTransition = func(tr Transition) { transitions = append(transitions, tr) }
	loop, conn, act := newTestLoop(t, cfg)
	base := time.Now()

	conn.queue(driveDatagram(0.5, 0, 1), testPeer)
	loop.Tick(base)
	if loop.Mode() != ModeDriving {
		t.Fatalf("Expected DRIVING, got %v", loop.Mode())
	}

	// Exactly at the timeout the link is still considered alive.
	loop.Tick(base.Add(testTimeout))
	if loop.Mode() != ModeDriving {
		t.Errorf("Expected DRIVING at the timeout boundary, got %v", loop.Mode())
	}

	stopsBefore := act.stops
	loop.Tick(base.Add(testTimeout + 50*time.Millisecond))
	if loop.Mode() != ModeLinkLost {
		t.Errorf("Expected LINK_LOST past the timeout, got %v", loop.Mode())
	}
	if act.stops != stopsBefore+1 {
		t.Errorf("Expected the expiry tick to stop the motors, got %d stops", act.stops-stopsBefore)
	}
	if !loop.LastOutput().IsZero() {
		t.Errorf("Expected zero output, got %+v", loop.LastOutput())
	}

	last := transitions[len(transitions)-1]
	if last.From != ModeDriving || last.To != ModeLinkLost || last.Reason != "watchdog expired" {
		t.Errorf("Expected DRIVING->LINK_LOST watchdog transition, got %+v", last)
	}
}

func TestDriveResumeRecoversFromLinkLost(t *testing.T) {
	loop, conn, act := newTestLoop(t, testLoopConfig())
	base := time.Now()

	conn.queue(driveDatagram(0.5, 0, 1), testPeer)
	loop.Tick(base)
	loop.Tick(base.Add(testTimeout + 50*time.Millisecond))
	if loop.Mode() != ModeLinkLost {
		t.Fatalf("Expected LINK_LOST, got %v", loop.Mode())
	}

	conn.queue(driveDatagram(0.3, 0, 2), testPeer)
	loop.Tick(base.Add(testTimeout + 100*time.Millisecond))

	if loop.Mode() != ModeDriving {
		t.Errorf("Expected DRIVING after resume, got %v", loop.Mode())
	}
	last := act.drives[len(act.drives)-1]
	if !approxOutput(last, 0.3, 0.3) {
		t.Errorf("Expected 0.3/0.3 after resume, got %+v", last)
	}
}

func TestOutOfOrderDriveStillFeedsWatchdog(t *testing.T) {
	loop, conn, _ := newTestLoop(t, testLoopConfig())
	base := time.Now()

	conn.queue(driveDatagram(0.5, 0, 10), testPeer)
	loop.Tick(base)

	// An older sequence arrives late. It still counts as liveness and its
	// values are applied in arrival order.
	conn.queue(driveDatagram(0.2, 0, 7), testPeer)
	loop.Tick(base.Add(150 * time.Millisecond))

	// Past the first drive's deadline, but within the second's.
	loop.Tick(base.Add(300 * time.Millisecond))
	if loop.Mode() != ModeDriving {
		t.Errorf("Expected DRIVING, got %v", loop.Mode())
	}
	if !approxOutput(loop.LastOutput(), 0.2, 0.2) {
		t.Errorf("Expected late drive's output, got %+v", loop.LastOutput())
	}
}

func TestStopZeroesWithoutModeChange(t *testing.T) {
	loop, conn, act := newTestLoop(t, testLoopConfig())
	base := time.Now()

	conn.queue(driveDatagram(0.5, 0, 1), testPeer)
	loop.Tick(base)

	conn.queue(wire.Encode(wire.Stop{}), testPeer)
	loop.Tick(base.Add(50 * time.Millisecond))

	if loop.Mode() != ModeDriving {
		t.Errorf("Expected stop to keep DRIVING, got %v", loop.Mode())
	}
	if !loop.LastOutput().IsZero() {
		t.Errorf("Expected zero output after stop, got %+v", loop.LastOutput())
	}
	if act.stops == 0 {
		t.Error("Expected an actuator stop")
	}

	// Stop is not a liveness signal; the watchdog still runs out.
	loop.Tick(base.Add(testTimeout + 50*time.Millisecond))
	if loop.Mode() != ModeLinkLost {
		t.Errorf("Expected LINK_LOST after stop-only traffic, got %v", loop.Mode())
	}
}

// ============================================================================
// Malformed traffic
// ============================================================================

func TestMalformedDriveIgnored(t *testing.T) {
	loop, conn, _ := newTestLoop(t, testLoopConfig())
	base := time.Now()

	conn.queue(driveDatagram(0.5, 0, 1), testPeer)
	loop.Tick(base)

	// Missing throttle: dropped, no liveness credit.
	conn.queue([]byte(`{"cmd":"drive","steer":0.0,"seq":2,"t_ms":1}`), testPeer)
	loop.Tick(base.Add(100 * time.Millisecond))

	if loop.Mode() != ModeDriving {
		t.Errorf("Expected DRIVING while the last good drive is fresh, got %v", loop.Mode())
	}
	if !approxOutput(loop.LastOutput(), 0.5, 0.5) {
		t.Errorf("Expected previous drive to stay in effect, got %+v", loop.LastOutput())
	}
	if loop.Stats().Malformed != 1 {
		t.Errorf("Expected 1 malformed datagram, got %d", loop.Stats().Malformed)
	}

	// The malformed datagram did not feed the watchdog.
	loop.Tick(base.Add(testTimeout + 50*time.Millisecond))
	if loop.Mode() != ModeLinkLost {
		t.Errorf("Expected LINK_LOST, got %v", loop.Mode())
	}
}

func TestUnknownCommandCounted(t *testing.T) {
	loop, conn, _ := newTestLoop(t, testLoopConfig())

	conn.queue([]byte(`{"cmd":"warp","factor":9}`), testPeer)
	loop.Tick(time.Now())

	if loop.Stats().Unknown != 1 {
		t.Errorf("Expected 1 unknown command, got %d", loop.Stats().Unknown)
	}
	if loop.Mode() != ModeNetUp {
		t.Errorf("Expected unknown command to leave mode alone, got %v", loop.Mode())
	}
}

// ============================================================================
// Emergency stop
// ============================================================================

func TestEStopLatchesUntilReset(t *testing.T) {
	loop, conn, _ := newTestLoop(t, testLoopConfig())
	base := time.Now()

	conn.queue(driveDatagram(0.8, 0, 1), testPeer)
	loop.Tick(base)

	conn.queue(wire.Encode(wire.EStop{}), testPeer)
	loop.Tick(base.Add(30 * time.Millisecond))
	if loop.Mode() != ModeEStop {
		t.Fatalf("Expected E_STOP, got %v", loop.Mode())
	}
	if !loop.LastOutput().IsZero() {
		t.Errorf("Expected zero output under e-stop, got %+v", loop.LastOutput())
	}

	// Drives keep arriving; the latch holds and output stays zero.
	for i := 0; i < 5; i++ {
		conn.queue(driveDatagram(1.0, 0, uint32(10+i)), testPeer)
		loop.Tick(base.Add(time.Duration(60+i*30) * time.Millisecond))
		if loop.Mode() != ModeEStop {
			t.Fatalf("Expected E_STOP to hold, got %v", loop.Mode())
		}
		if !loop.LastOutput().IsZero() {
			t.Fatalf("Expected zero output under e-stop, got %+v", loop.LastOutput())
		}
	}

	conn.queue(wire.Encode(wire.Reset{}), testPeer)
	loop.Tick(base.Add(300 * time.Millisecond))
	if loop.Mode() != ModeBoot {
		t.Fatalf("Expected BOOT right after reset, got %v", loop.Mode())
	}

	// Bring-up re-runs on the next tick and full command flow works again.
	conn.queue(driveDatagram(0.4, 0, 20), testPeer)
	loop.Tick(base.Add(330 * time.Millisecond))
	if loop.Mode() != ModeDriving {
		t.Errorf("Expected DRIVING after recovery, got %v", loop.Mode())
	}
	if !approxOutput(loop.LastOutput(), 0.4, 0.4) {
		t.Errorf("Expected 0.4/0.4, got %+v", loop.LastOutput())
	}
}

// ============================================================================
// Calibration over the wire
// ============================================================================

func TestSetCalibrationAffectsMixing(t *testing.T) {
	loop, conn, _ := newTestLoop(t, testLoopConfig())
	base := time.Now()

	conn.queue(wire.Encode(wire.SetCalibration{
		Calibration: wire.Calibration{SteeringTrim: 0.1, MotorLeftScale: 1.0, MotorRightScale: 1.0},
	}), testPeer)
	loop.Tick(base)

	conn.queue(driveDatagram(0.5, 0, 1), testPeer)
	loop.Tick(base.Add(30 * time.Millisecond))

	if !approxOutput(loop.LastOutput(), 0.6, 0.4) {
		t.Errorf("Expected trim-compensated 0.6/0.4, got %+v", loop.LastOutput())
	}
}

func TestGetCalibrationReply(t *testing.T) {
	loop, conn, _ := newTestLoop(t, testLoopConfig())

	conn.queue(wire.Encode(wire.GetCalibration{}), testPeer)
	loop.Tick(time.Now())

	if len(conn.sent) == 0 {
		t.Fatal("Expected a calibration reply")
	}
	reply, ok := wire.ParseCalibrationReply(conn.sent[0].data)
	if !ok {
		t.Fatalf("Expected a parseable calibration reply, got %s", conn.sent[0].data)
	}
	if reply.Calibration.MotorLeftScale != 1.0 || reply.Calibration.MotorRightScale != 1.0 {
		t.Errorf("Expected default scales, got %+v", reply.Calibration)
	}
	if conn.sent[0].to != testPeer {
		t.Errorf("Expected reply to the requesting peer, got %v", conn.sent[0].to)
	}
}

// ============================================================================
// Discovery
// ============================================================================

func TestDiscoverResponse(t *testing.T) {
	loop, conn, _ := newTestLoop(t, testLoopConfig())

	conn.queue([]byte(`{"cmd":"discover","seq":0}`), testPeer)
	loop.Tick(time.Now())

	if len(conn.sent) == 0 {
		t.Fatal("Expected a discovery response")
	}
	info, ok := wire.ParseRobotInfo(conn.sent[0].data)
	if !ok {
		t.Fatalf("Expected a parseable robot info, got %s", conn.sent[0].data)
	}
	if info.RobotID != 1 || info.Name != "THUNDER" || info.Hostname != "picogo1" {
		t.Errorf("Unexpected identity in response: %+v", info)
	}
	if info.Port != 8765 {
		t.Errorf("Expected advertised port 8765, got %d", info.Port)
	}
	if info.Color != [3]uint8{255, 140, 0} {
		t.Errorf("Expected THUNDER color, got %v", info.Color)
	}

	// Discovery is not session traffic.
	if loop.Mode() != ModeNetUp {
		t.Errorf("Expected discovery to leave mode at NET_UP, got %v", loop.Mode())
	}
}

// ============================================================================
// Acks
// ============================================================================

func TestAckEchoesSequenceAndState(t *testing.T) {
	cfg := testLoopConfig()
	cfg.RSSI = func() (int, bool) { return -56, true }
	loop, conn, _ := newTestLoop(t, cfg)

	conn.queue(driveDatagram(0.5, 0, 42), testPeer)
	loop.Tick(time.Now())

	var ack wire.Ack
	found := false
	for _, s := range conn.sent {
		if a, ok := wire.ParseAck(s.data); ok {
			ack, found = a, true
			if s.to != testPeer {
				t.Errorf("Expected ack to the commanding peer, got %v", s.to)
			}
		}
	}
	if !found {
		t.Fatal("Expected an ack after a processed command")
	}
	if ack.SeqAck != 42 {
		t.Errorf("Expected seq_ack 42, got %d", ack.SeqAck)
	}
	if ack.State != "DRIVING" {
		t.Errorf("Expected state DRIVING, got %q", ack.State)
	}
	if ack.RSSI == nil || *ack.RSSI != -56 {
		t.Errorf("Expected rssi -56, got %v", ack.RSSI)
	}
}

func TestNoAckWithoutTraffic(t *testing.T) {
	loop, conn, _ := newTestLoop(t, testLoopConfig())

	loop.Tick(time.Now())
	loop.Tick(time.Now().Add(33 * time.Millisecond))

	for _, s := range conn.sent {
		if _, ok := wire.ParseAck(s.data); ok {
			t.Fatal("Expected no acks on an idle loop")
		}
	}
}

// ============================================================================
// Flood protection
// ============================================================================

func TestDrainCapBoundsPerTickWork(t *testing.T) {
	loop, conn, _ := newTestLoop(t, testLoopConfig())
	base := time.Now()

	for i := 0; i < 40; i++ {
		conn.queue(driveDatagram(0.5, 0, uint32(i+1)), testPeer)
	}

	loop.Tick(base)
	if loop.Stats().Datagrams != maxDatagramsPerTick {
		t.Errorf("Expected %d datagrams processed in one tick, got %d",
			maxDatagramsPerTick, loop.Stats().Datagrams)
	}

	loop.Tick(base.Add(33 * time.Millisecond))
	if loop.Stats().Datagrams != 40 {
		t.Errorf("Expected remaining datagrams on the next tick, got %d", loop.Stats().Datagrams)
	}
}

// ============================================================================
// Dead zone
// ============================================================================

func TestDeadZoneSuppressesStickNoise(t *testing.T) {
	cfg := testLoopConfig()
	cfg.DeadZone = 0.1
	loop, conn, _ := newTestLoop(t, cfg)
	base := time.Now()

	conn.queue(driveDatagram(0.05, 0.05, 1), testPeer)
	loop.Tick(base)
	if !loop.LastOutput().IsZero() {
		t.Errorf("Expected noise below the dead zone to produce zero, got %+v", loop.LastOutput())
	}

	conn.queue(driveDatagram(0.5, 0, 2), testPeer)
	loop.Tick(base.Add(33 * time.Millisecond))
	if !approxOutput(loop.LastOutput(), 0.5, 0.5) {
		t.Errorf("Expected deliberate input to pass, got %+v", loop.LastOutput())
	}
}

// ============================================================================
// Fault containment
// ============================================================================

func TestTickRecoversFromPanic(t *testing.T) {
	armed := true
	cfg := testLoopConfig()
	cfg.OnTransition = func(Transition) {
		if armed {
			armed = false
			panic("sink exploded")
		}
	}
	loop, conn, act := newTestLoop(t, cfg)
	base := time.Now()

	// First tick panics in the transition sink during bring-up.
	loop.Tick(base)
	if act.stops == 0 {
		t.Error("Expected the recovery path to force zero output")
	}

	// The loop keeps working afterwards.
	conn.queue(driveDatagram(0.5, 0, 1), testPeer)
	loop.Tick(base.Add(33 * time.Millisecond))
	if loop.Mode() != ModeDriving {
		t.Errorf("Expected DRIVING after recovery, got %v", loop.Mode())
	}
	if !approxOutput(loop.LastOutput(), 0.5, 0.5) {
		t.Errorf("Expected 0.5/0.5, got %+v", loop.LastOutput())
	}
}

// ============================================================================
// Telemetry
// ============================================================================

func TestTelemetryPublishedOncePerSecond(t *testing.T) {
	var snaps []Telemetry
	cfg := testLoopConfig()
	cfg.OnTelemetry = func(tm Telemetry) { snaps = append(snaps, tm) }

	conn := &fakeConn{}
	act := &batteryActuator{}
	store, err := drive.OpenStore(filepath.Join(t.TempDir(), "calibration.json"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	loop, err := NewLoop(cfg, conn, store, act)
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}

	base := time.Now()
	loop.Tick(base)
	if len(snaps) != 1 {
		t.Fatalf("Expected a snapshot on the first tick, got %d", len(snaps))
	}
	if !snaps[0].HasBattery || snaps[0].BatteryMV != 7400 {
		t.Errorf("Expected battery 7400 mV, got %+v", snaps[0])
	}

	loop.Tick(base.Add(500 * time.Millisecond))
	if len(snaps) != 1 {
		t.Errorf("Expected no snapshot before a second has passed, got %d", len(snaps))
	}

	loop.Tick(base.Add(1100 * time.Millisecond))
	if len(snaps) != 2 {
		t.Errorf("Expected a second snapshot after a second, got %d", len(snaps))
	}
	if snaps[len(snaps)-1].Mode != ModeNetUp {
		t.Errorf("Expected NET_UP in telemetry, got %v", snaps[len(snaps)-1].Mode)
	}
}
