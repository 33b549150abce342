// Package diag exposes a read-only HTTP view over a transport.Listener's
// tracked connections, for operators — never part of the reliability
// core's own control flow (SPEC_FULL.md §10.2; grounded on
// dtn7-dtn7-gold's convergence-layer HTTP servers, which route with
// gorilla/mux and log access with gorilla/handlers).
package diag

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/SonicFreak94/rudp"
)

// Registry is the slice of transport.Listener this package depends on,
// kept narrow so diag never needs to import the transport package (and
// can be pointed at any future Listener-shaped type).
type Registry interface {
	Peers() []string
	Connection(remote net.Addr) (*rudp.Connection, bool)
}

// Server is a read-only diagnostics HTTP endpoint over a Registry.
type Server struct {
	registry Registry
	http     *http.Server
	log      *logrus.Entry
}

// NewServer builds (but does not start) a diagnostics server bound to
// addr, routing through registry.
func NewServer(addr string, registry Registry, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &Server{registry: registry, log: log}

	router := mux.NewRouter()
	router.HandleFunc("/connections", s.listConnections).Methods(http.MethodGet)
	router.HandleFunc("/connections/{addr}", s.getConnection).Methods(http.MethodGet)
	router.HandleFunc("/connections/{addr}/rtt", s.getRTT).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:    addr,
		Handler: handlers.CombinedLoggingHandler(log.Logger.Out, router),
	}

	return s
}

// ListenAndServe blocks serving diagnostics until the server is shut
// down or it fails to bind.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Close shuts the diagnostics server down immediately.
func (s *Server) Close() error {
	return s.http.Close()
}

type connectionSummary struct {
	Remote        string `json:"remote"`
	Connected     bool   `json:"connected"`
	RTTMillis     int64  `json:"rtt_ms"`
	PendingUIDs   int    `json:"pending_uids"`
	PendingOrder  int    `json:"pending_ordered"`
	PendingAckNew bool   `json:"pending_acknew"`
	InboundDepth  int    `json:"inbound_depth"`
}

func summarize(remote string, conn *rudp.Connection) connectionSummary {
	uids, ordered, acknew, inbound := conn.PendingCounts()
	return connectionSummary{
		Remote:        remote,
		Connected:     conn.Connected(),
		RTTMillis:     conn.RoundTripTime().Milliseconds(),
		PendingUIDs:   uids,
		PendingOrder:  ordered,
		PendingAckNew: acknew,
		InboundDepth:  inbound,
	}
}

func (s *Server) listConnections(w http.ResponseWriter, r *http.Request) {
	peers := s.registry.Peers()
	out := make([]connectionSummary, 0, len(peers))

	for _, addr := range peers {
		conn, ok := s.registry.Connection(diagAddr(addr))
		if !ok {
			continue
		}
		out = append(out, summarize(addr, conn))
	}

	writeJSON(w, out)
}

func (s *Server) getConnection(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	conn, ok := s.registry.Connection(diagAddr(addr))
	if !ok {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, summarize(addr, conn))
}

func (s *Server) getRTT(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	conn, ok := s.registry.Connection(diagAddr(addr))
	if !ok {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, struct {
		Remote string        `json:"remote"`
		RTT    time.Duration `json:"rtt_ns"`
	}{Remote: addr, RTT: conn.RoundTripTime()})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// diagAddr adapts a string address (as reported by Registry.Peers) back
// into a net.Addr for the Registry.Connection lookup, without caring
// whether the underlying transport is UDP or in-memory.
type diagAddr string

func (a diagAddr) Network() string { return "diag" }
func (a diagAddr) String() string  { return string(a) }
