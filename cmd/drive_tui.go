// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package cmd

import (
	"context"
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/picolink/picolink/pkg/drive"
	"github.com/picolink/picolink/pkg/session"
	"github.com/picolink/picolink/pkg/wire"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	drivePollInterval = 100 * time.Millisecond
	driveScanWait     = 2 * time.Second

	throttleStep = 0.1
	steerStep    = 0.1
	trimStep     = 0.01

	maxEventEntries = 50
)

// UI phases
const (
	phaseScanning = iota
	phasePicking
	phaseManual
	phaseDriving
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// robotItem adapts a discovery result to the list widget.
type robotItem struct {
	found session.Found
}

func (r robotItem) Title() string {
	return fmt.Sprintf("%d  %s", r.found.Info.RobotID, r.found.Info.Name)
}
func (r robotItem) Description() string {
	return fmt.Sprintf("%s  v%s", r.found.Addr, r.found.Info.Version)
}
func (r robotItem) FilterValue() string { return r.found.Info.Name }

type eventEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// driveModel is the Bubble Tea model for the driving console.
type driveModel struct {
	// Fixed options from the command line
	port     int
	rate     int
	explicit string
	cached   string

	// Phase state
	phase     int
	scanIdle  bool // a scan finished with nothing usable
	robotList list.Model
	addrInput textinput.Model

	// Session
	mgr    *session.Manager
	target session.Found
	link   session.LinkState
	input  session.Input

	// Calibration mirror; trim nudges stay local until saved
	cal      wire.Calibration
	haveCal  bool
	calDirty bool

	// UI state
	events   []eventEntry
	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type driveTickMsg time.Time

type scanDoneMsg struct {
	found []session.Found
	err   error
}

type calReadMsg struct {
	cal wire.Calibration
	err error
}

type calSavedMsg struct {
	applied wire.Calibration
	err     error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func newDriveModel(port, rate int, explicit, cached string) driveModel {
	ti := textinput.New()
	ti.Placeholder = "192.168.1.50:8765"
	ti.CharLimit = 64
	ti.Width = 28

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	robotList := list.New([]list.Item{}, delegate, 40, 12)
	robotList.Title = "Robots"
	robotList.SetShowStatusBar(false)
	robotList.SetShowHelp(false)
	robotList.SetFilteringEnabled(false)

	return driveModel{
		port:      port,
		rate:      rate,
		explicit:  explicit,
		cached:    cached,
		phase:     phaseScanning,
		robotList: robotList,
		addrInput: ti,
		events:    make([]eventEntry, 0),
		width:     80,
		height:    24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m driveModel) Init() tea.Cmd {
	if m.explicit != "" {
		return tea.Batch(m.resolveCmd(m.explicit), driveTickCmd())
	}
	return tea.Batch(m.scanCmd(), driveTickCmd())
}

func driveTickCmd() tea.Cmd {
	return tea.Tick(drivePollInterval, func(t time.Time) tea.Msg {
		return driveTickMsg(t)
	})
}

func (m driveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.robotList.SetSize(msg.Width-6, msg.Height-10)

	case driveTickMsg:
		if m.mgr != nil {
			m.link = m.mgr.Link()
		}
		return m, driveTickCmd()

	case scanDoneMsg:
		if m.phase != phaseScanning {
			break
		}
		if msg.err != nil {
			m.addEvent(fmt.Sprintf("Scan failed: %v", msg.err), true)
			m.scanIdle = true
			break
		}
		switch len(msg.found) {
		case 0:
			m.addEvent("No robots answered", true)
			m.scanIdle = true
		case 1:
			cmd := m.connect(msg.found[0])
			return m, cmd
		default:
			items := make([]list.Item, len(msg.found))
			for i, f := range msg.found {
				items[i] = robotItem{found: f}
			}
			m.robotList.SetItems(items)
			m.phase = phasePicking
			m.addEvent(fmt.Sprintf("%d robots found", len(msg.found)), false)
		}

	case calReadMsg:
		if msg.err != nil {
			m.addEvent(fmt.Sprintf("Calibration read failed: %v", msg.err), true)
			break
		}
		m.cal = msg.cal
		m.haveCal = true
		m.calDirty = false

	case calSavedMsg:
		if msg.err != nil {
			m.addEvent(fmt.Sprintf("Calibration save failed: %v", msg.err), true)
			break
		}
		m.cal = msg.applied
		m.haveCal = true
		m.calDirty = false
		m.addEvent(fmt.Sprintf("Calibration saved, trim %+.3f", msg.applied.SteeringTrim), false)
	}

	return m, nil
}

//////////////////////////////////////////////////////////////
// Key Handling
//////////////////////////////////////////////////////////////

func (m *driveModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// The address field owns the keyboard while it is open.
	if m.phase == phaseManual {
		switch key {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "esc":
			m.phase = phaseScanning
			m.scanIdle = true
			return m, nil
		case "enter":
			target := strings.TrimSpace(m.addrInput.Value())
			if target == "" {
				return m, nil
			}
			m.phase = phaseScanning
			m.scanIdle = false
			m.addEvent(fmt.Sprintf("Connecting to %s...", target), false)
			return m, m.resolveCmd(target)
		}
		var cmd tea.Cmd
		m.addrInput, cmd = m.addrInput.Update(msg)
		return m, cmd
	}

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	}

	switch m.phase {
	case phaseScanning:
		switch key {
		case "r":
			if m.scanIdle {
				m.scanIdle = false
				m.addEvent("Rescanning...", false)
				return m, m.scanCmd()
			}
		case "m":
			m.phase = phaseManual
			m.addrInput.Focus()
			return m, textinput.Blink
		}

	case phasePicking:
		switch key {
		case "enter":
			if item, ok := m.robotList.SelectedItem().(robotItem); ok {
				return m, m.connect(item.found)
			}
		case "r":
			m.phase = phaseScanning
			m.scanIdle = false
			m.addEvent("Rescanning...", false)
			return m, m.scanCmd()
		case "m":
			m.phase = phaseManual
			m.addrInput.Focus()
			return m, textinput.Blink
		default:
			var cmd tea.Cmd
			m.robotList, cmd = m.robotList.Update(msg)
			return m, cmd
		}

	case phaseDriving:
		return m.handleDrivingKey(key)
	}

	return m, nil
}

func (m *driveModel) handleDrivingKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "up":
		m.setInput(m.input.Throttle+throttleStep, m.input.Steer)

	case "down":
		m.setInput(m.input.Throttle-throttleStep, m.input.Steer)

	case "left":
		m.setInput(m.input.Throttle, m.input.Steer-steerStep)

	case "right":
		m.setInput(m.input.Throttle, m.input.Steer+steerStep)

	case " ", "space":
		m.setInput(0, 0)
		if err := m.mgr.Stop(); err != nil {
			m.addEvent(fmt.Sprintf("Stop failed: %v", err), true)
		} else {
			m.addEvent("Stop", false)
		}

	case "e":
		m.setInput(0, 0)
		if err := m.mgr.EStop(); err != nil {
			m.addEvent(fmt.Sprintf("E-stop failed: %v", err), true)
		} else {
			m.addEvent("EMERGENCY STOP", true)
		}

	case "r":
		if err := m.mgr.Reset(); err != nil {
			m.addEvent(fmt.Sprintf("Reset failed: %v", err), true)
		} else {
			m.addEvent("E-stop cleared", false)
		}

	case "t":
		m.nudgeTrim(-trimStep)

	case "T":
		m.nudgeTrim(+trimStep)

	case "s":
		if m.haveCal {
			return m, m.saveCalCmd()
		}

	case "g":
		return m, m.readCalCmd()
	}

	return m, nil
}

func (m *driveModel) setInput(throttle, steer float64) {
	m.input = session.Input{Throttle: clampAxis(throttle), Steer: clampAxis(steer)}
	m.mgr.SetInput(m.input.Throttle, m.input.Steer)
}

func (m *driveModel) nudgeTrim(delta float64) {
	if !m.haveCal {
		return
	}
	t := m.cal.SteeringTrim + delta
	if t > drive.TrimMax {
		t = drive.TrimMax
	}
	if t < drive.TrimMin {
		t = drive.TrimMin
	}
	m.cal.SteeringTrim = t
	m.calDirty = true
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

// scanCmd broadcasts for robots, trying the robot from the previous run
// before giving up on an empty scan.
func (m driveModel) scanCmd() tea.Cmd {
	port, cached := m.port, m.cached
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		found, err := session.Discover(ctx, port, driveScanWait)
		if err != nil {
			return scanDoneMsg{err: err}
		}
		if len(found) == 0 && cached != "" {
			addr, info, err := session.Resolve(ctx, session.ResolveOptions{Cached: cached, Port: port})
			if err == nil && info != nil {
				found = []session.Found{{Info: *info, Addr: addr}}
			}
		}
		return scanDoneMsg{found: found}
	}
}

// resolveCmd turns an operator-supplied address into a scan result.
func (m driveModel) resolveCmd(target string) tea.Cmd {
	port := m.port
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		addr, info, err := session.Resolve(ctx, session.ResolveOptions{Explicit: target, Port: port})
		if err != nil {
			return scanDoneMsg{err: err}
		}
		f := session.Found{Addr: addr}
		if info != nil {
			f.Info = *info
		}
		return scanDoneMsg{found: []session.Found{f}}
	}
}

// connect starts the drive session against the chosen robot.
func (m *driveModel) connect(f session.Found) tea.Cmd {
	cfg := session.Config{Addr: f.Addr, RateHz: m.rate}
	if id := f.Info.RobotID; id != 0 {
		port := m.port
		cfg.Rediscover = func(ctx context.Context) (*net.UDPAddr, error) {
			found, err := session.Discover(ctx, port, driveScanWait)
			if err != nil {
				return nil, err
			}
			for _, g := range found {
				if g.Info.RobotID == id {
					return g.Addr, nil
				}
			}
			return nil, fmt.Errorf("robot %d did not answer", id)
		}
	}

	mgr, err := session.NewManager(cfg)
	if err != nil {
		m.addEvent(fmt.Sprintf("Connect failed: %v", err), true)
		m.phase = phaseScanning
		m.scanIdle = true
		return nil
	}
	mgr.Start(context.Background())

	m.mgr = mgr
	m.target = f
	m.phase = phaseDriving
	m.input = session.Input{}

	name := f.Info.Name
	if name == "" {
		name = f.Addr.String()
	}
	m.addEvent(fmt.Sprintf("Connected to %s at %s", name, f.Addr), false)
	return m.readCalCmd()
}

func (m driveModel) readCalCmd() tea.Cmd {
	addr := m.target.Addr
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		cal, err := session.GetCalibration(ctx, addr, time.Second)
		return calReadMsg{cal: cal, err: err}
	}
}

func (m driveModel) saveCalCmd() tea.Cmd {
	addr := m.target.Addr
	cal := m.cal
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		applied, err := session.SetCalibration(ctx, addr, cal, time.Second)
		return calSavedMsg{applied: applied, err: err}
	}
}

func (m *driveModel) addEvent(message string, isError bool) {
	m.events = append(m.events, eventEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.events) > maxEventEntries {
		m.events = m.events[len(m.events)-maxEventEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m driveModel) View() string {
	if m.quitting {
		return "Stopping robot and shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	s.WriteString(titleStyle.Render("PICOLINK DRIVE"))
	if m.phase == phaseDriving {
		s.WriteString(" ")
		s.WriteString(m.renderNameBadge())
		s.WriteString(" ")
		if m.link.Connected {
			s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | ack #%d", m.link.RobotState, m.link.SeqAcked)))
		} else {
			s.WriteString(warningStyle.Render("| LINK DOWN"))
		}
	}
	s.WriteString("\n\n")

	switch m.phase {
	case phaseScanning:
		s.WriteString(m.renderScanView(headerStyle, warningStyle))
	case phasePicking:
		s.WriteString(m.renderPickView(headerStyle, boxStyle))
	case phaseManual:
		s.WriteString(m.renderManualView(labelStyle, headerStyle))
	case phaseDriving:
		s.WriteString(m.renderDriveView(labelStyle, valueStyle, warningStyle, headerStyle, boxStyle))
	}

	s.WriteString("\n")
	s.WriteString(m.renderEventLog(labelStyle, warningStyle, errorStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m driveModel) renderNameBadge() string {
	name := m.target.Info.Name
	if name == "" && m.target.Addr != nil {
		name = m.target.Addr.String()
	}
	c := m.target.Info.Color
	badgeStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))).
		Padding(0, 1)
	return badgeStyle.Render(name)
}

func (m driveModel) renderScanView(headerStyle, warningStyle lipgloss.Style) string {
	var s strings.Builder
	if m.scanIdle {
		s.WriteString(warningStyle.Render("No robots found."))
		s.WriteString("\n")
		s.WriteString(headerStyle.Render("r=rescan m=enter address q=quit"))
	} else {
		s.WriteString(warningStyle.Render("Scanning for robots..."))
	}
	s.WriteString("\n")
	return s.String()
}

func (m driveModel) renderPickView(headerStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(boxStyle.Render(m.robotList.View()))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render("enter=drive r=rescan m=enter address q=quit"))
	s.WriteString("\n")
	return s.String()
}

func (m driveModel) renderManualView(labelStyle, headerStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("Robot address: "))
	s.WriteString(m.addrInput.View())
	s.WriteString("\n")
	s.WriteString(headerStyle.Render("enter=connect esc=back"))
	s.WriteString("\n")
	return s.String()
}

func (m driveModel) renderDriveView(labelStyle, valueStyle, warningStyle, headerStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder

	// Input panel
	var in strings.Builder
	in.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Throttle:"),
		valueStyle.Render(fmt.Sprintf("%+.2f", m.input.Throttle))))
	in.WriteString(renderGauge(m.input.Throttle, 21))
	in.WriteString("\n")
	in.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Steering:"),
		valueStyle.Render(fmt.Sprintf("%+.2f", m.input.Steer))))
	in.WriteString(renderGauge(m.input.Steer, 21))
	inputPanel := boxStyle.Width(28).Render(in.String())

	// Link panel
	var lk strings.Builder
	if m.link.Connected {
		lk.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("State:"), valueStyle.Render(m.link.RobotState)))
	} else {
		lk.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("State:"), warningStyle.Render("LINK DOWN")))
	}
	lk.WriteString(fmt.Sprintf("%s %d/%d\n", labelStyle.Render("Acked:"), m.link.SeqAcked, m.link.SeqSent))
	if m.link.HasRSSI {
		lk.WriteString(fmt.Sprintf("%s %d dBm\n", labelStyle.Render("RSSI:"), m.link.RSSI))
	}
	if m.link.LastAck.IsZero() {
		lk.WriteString(fmt.Sprintf("%s never", labelStyle.Render("Last ack:")))
	} else {
		lk.WriteString(fmt.Sprintf("%s %.1fs ago", labelStyle.Render("Last ack:"), time.Since(m.link.LastAck).Seconds()))
	}
	linkPanel := boxStyle.Width(30).Render(lk.String())

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, inputPanel, " ", linkPanel))
	s.WriteString("\n\n")

	// Calibration line
	if m.haveCal {
		dirty := ""
		if m.calDirty {
			dirty = warningStyle.Render("  (unsaved, press s)")
		}
		s.WriteString(fmt.Sprintf(" %s %s   %s %.3f   %s %.3f%s\n",
			labelStyle.Render("Trim:"), valueStyle.Render(fmt.Sprintf("%+.3f", m.cal.SteeringTrim)),
			labelStyle.Render("Left:"), m.cal.MotorLeftScale,
			labelStyle.Render("Right:"), m.cal.MotorRightScale,
			dirty))
	} else {
		s.WriteString(headerStyle.Render(" Calibration not loaded (press g)"))
		s.WriteString("\n")
	}

	s.WriteString(headerStyle.Render(" arrows=drive space=stop e=ESTOP r=reset t/T=trim s=save g=reload q=quit"))
	s.WriteString("\n")

	return s.String()
}

func (m driveModel) renderEventLog(labelStyle, warningStyle, errorStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	logHeight := 6
	if len(m.events) < logHeight {
		logHeight = len(m.events)
	}
	startIdx := len(m.events) - logHeight

	if len(m.events) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.events); i++ {
			entry := m.events[i]
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyle
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05")),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

// renderGauge draws v in [-1, 1] as a marker on a fixed-width track.
func renderGauge(v float64, width int) string {
	idx := int(math.Round((v + 1) / 2 * float64(width-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= width {
		idx = width - 1
	}
	var b strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i == idx:
			b.WriteString("#")
		case i == width/2:
			b.WriteString("|")
		default:
			b.WriteString(".")
		}
	}
	return " [" + b.String() + "]"
}

func clampAxis(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
