// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/picolink/picolink/internal/config"
	"github.com/picolink/picolink/internal/log"
	"github.com/picolink/picolink/pkg/session"
	"github.com/picolink/picolink/pkg/wire"
)

var (
	monitorListen string
	monitorPort   int
	monitorSweep  time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Serve a fleet status page over HTTP",
	Long: `Run a small HTTP server that keeps a live inventory of robots.

The monitor sweeps the local network with discovery broadcasts and
serves the result three ways: a status page at /, a JSON snapshot at
/api/robots, and a WebSocket feed at /ws that pushes the snapshot once
per second. Robots that stop answering are marked offline after three
missed sweeps.

The monitor is an observer only; it never sends drive commands.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().StringVar(&monitorListen, "listen", ":8080", "HTTP listen address")
	monitorCmd.Flags().IntVar(&monitorPort, "port", config.DefaultPort, "UDP command port to probe")
	monitorCmd.Flags().DurationVar(&monitorSweep, "sweep", 5*time.Second, "Interval between discovery sweeps")
}

// fleetRobot is one row of the fleet snapshot, shaped for JSON clients.
type fleetRobot struct {
	RobotID     int              `json:"robot_id"`
	Name        string           `json:"name"`
	Hostname    string           `json:"hostname"`
	Addr        string           `json:"addr"`
	Version     string           `json:"version"`
	Color       [3]uint8         `json:"color"`
	Calibration wire.Calibration `json:"calibration"`
	LastSeen    time.Time        `json:"last_seen"`
	Online      bool             `json:"online"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type fleetMonitor struct {
	mu      sync.Mutex
	robots  map[int]*fleetRobot
	clients map[string]*websocket.Conn
}

func newFleetMonitor() *fleetMonitor {
	return &fleetMonitor{
		robots:  make(map[int]*fleetRobot),
		clients: make(map[string]*websocket.Conn),
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fm := newFleetMonitor()
	go fm.sweepLoop(ctx)
	go fm.pushLoop(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/", fm.handleIndex)
	mux.HandleFunc("/api/robots", fm.handleSnapshot)
	mux.HandleFunc("/ws", fm.handleWS)

	srv := &http.Server{Addr: monitorListen, Handler: mux}
	errc := make(chan error, 1)
	go func() {
		log.Info("fleet monitor listening", "addr", monitorListen, "sweep", monitorSweep)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("fleet monitor stopped")
	return nil
}

// sweepLoop refreshes the inventory with periodic discovery broadcasts.
func (fm *fleetMonitor) sweepLoop(ctx context.Context) {
	// First sweep immediately so the page is not empty for a full interval.
	for {
		found, err := session.Discover(ctx, monitorPort, 2*time.Second)
		if err != nil && ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Warn("discovery sweep failed", "err", err)
		}
		fm.update(found, time.Now())

		select {
		case <-ctx.Done():
			return
		case <-time.After(monitorSweep):
		}
	}
}

func (fm *fleetMonitor) update(found []session.Found, now time.Time) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	for _, f := range found {
		fm.robots[f.Info.RobotID] = &fleetRobot{
			RobotID:     f.Info.RobotID,
			Name:        f.Info.Name,
			Hostname:    f.Info.Hostname,
			Addr:        f.Addr.String(),
			Version:     f.Info.Version,
			Color:       f.Info.Color,
			Calibration: f.Info.Calibration,
			LastSeen:    now,
			Online:      true,
		}
	}
	cutoff := now.Add(-3 * monitorSweep)
	for _, r := range fm.robots {
		if r.LastSeen.Before(cutoff) {
			r.Online = false
		}
	}
}

func (fm *fleetMonitor) snapshot() []fleetRobot {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	out := make([]fleetRobot, 0, len(fm.robots))
	for _, r := range fm.robots {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RobotID < out[j].RobotID })
	return out
}

// pushLoop sends the snapshot to every WebSocket client once per second.
func (fm *fleetMonitor) pushLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap := fm.snapshot()

		fm.mu.Lock()
		for id, conn := range fm.clients {
			if err := conn.WriteJSON(snap); err != nil {
				log.Debug("ws client dropped", "client", id, "err", err)
				conn.Close()
				delete(fm.clients, id)
			}
		}
		fm.mu.Unlock()
	}
}

func (fm *fleetMonitor) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("ws upgrade failed", "err", err)
		return
	}

	id := uuid.New().String()
	fm.mu.Lock()
	fm.clients[id] = conn
	fm.mu.Unlock()
	log.Info("ws client connected", "client", id, "remote", r.RemoteAddr)

	// Drain incoming messages until the client goes away; pushLoop owns
	// the write side.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	fm.mu.Lock()
	delete(fm.clients, id)
	fm.mu.Unlock()
	conn.Close()
	log.Info("ws client disconnected", "client", id)
}

func (fm *fleetMonitor) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(fm.snapshot()); err != nil {
		log.Debug("snapshot encode failed", "err", err)
	}
}

func (fm *fleetMonitor) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, monitorPage)
}

const monitorPage = `<!DOCTYPE html>
<html>
<head>
<title>Picolink Fleet</title>
<style>
  body { font-family: monospace; background: #111; color: #ddd; margin: 2em; }
  table { border-collapse: collapse; }
  td, th { padding: 4px 12px; border-bottom: 1px solid #333; text-align: left; }
  .off { color: #666; }
  .dot { display: inline-block; width: 10px; height: 10px; border-radius: 5px; margin-right: 6px; }
</style>
</head>
<body>
<h2>Picolink Fleet</h2>
<table id="fleet">
<tr><th></th><th>ID</th><th>Name</th><th>Address</th><th>Host</th><th>Version</th><th>Trim</th><th>Last seen</th></tr>
</table>
<script>
const table = document.getElementById("fleet");
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (ev) => {
  const robots = JSON.parse(ev.data) || [];
  while (table.rows.length > 1) table.deleteRow(1);
  for (const r of robots) {
    const row = table.insertRow();
    if (!r.online) row.className = "off";
    const c = r.color;
    row.insertCell().innerHTML = '<span class="dot" style="background: rgb(' + c[0] + ',' + c[1] + ',' + c[2] + ')"></span>';
    row.insertCell().textContent = r.robot_id;
    row.insertCell().textContent = r.name;
    row.insertCell().textContent = r.addr;
    row.insertCell().textContent = r.hostname;
    row.insertCell().textContent = r.version;
    row.insertCell().textContent = r.calibration.steering_trim.toFixed(3);
    row.insertCell().textContent = new Date(r.last_seen).toLocaleTimeString();
  }
};
</script>
</body>
</html>
`
