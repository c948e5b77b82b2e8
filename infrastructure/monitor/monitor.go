package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"autotrader/infrastructure/logger"
	"autotrader/internal/engine"
)

// StatusSource supplies the snapshot served on /status and pushed to
// websocket subscribers.
type StatusSource interface {
	Status() engine.Status
}

// Config configures the monitor HTTP server.
type Config struct {
	Addr         string
	PushInterval time.Duration
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":9090",
		PushInterval: 2 * time.Second,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes health, status, metrics and a websocket status feed. It is
// read-only: no endpoint mutates engine state.
type Server struct {
	cfg     Config
	source  StatusSource
	metrics http.Handler
	log     *logger.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]bool

	httpSrv  *http.Server
	stopPush chan struct{}
	pushDone chan struct{}
}

// New builds the server. metricsHandler may be nil, in which case /metrics
// returns 404.
func New(cfg Config, source StatusSource, metricsHandler http.Handler, log *logger.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = DefaultConfig().PushInterval
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		cfg:      cfg,
		source:   source,
		metrics:  metricsHandler,
		log:      log,
		clients:  make(map[*websocket.Conn]bool),
		stopPush: make(chan struct{}),
		pushDone: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWS)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening and the websocket push loop. It returns once the
// listener goroutine is launched; listen errors are logged.
func (s *Server) Start() {
	go func() {
		s.log.Info("monitor server listening", zap.String("addr", s.cfg.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("monitor server failed", zap.Error(err))
		}
	}()
	go s.pushLoop()
}

// Stop shuts the server down and disconnects all websocket clients.
func (s *Server) Stop(ctx context.Context) error {
	close(s.stopPush)
	<-s.pushDone

	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)
	s.mu.Unlock()

	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(statusPayload(s.source.Status())); err != nil {
		s.log.Error("status encode failed", zap.Error(err))
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	n := len(s.clients)
	s.mu.Unlock()
	s.log.Info("websocket client connected", zap.Int("clients", n))
}

// pushLoop broadcasts the status snapshot to all subscribers on a fixed
// interval. Writing to a dead client evicts it.
func (s *Server) pushLoop() {
	defer close(s.pushDone)
	ticker := time.NewTicker(s.cfg.PushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopPush:
			return
		case <-ticker.C:
			payload, err := json.Marshal(statusPayload(s.source.Status()))
			if err != nil {
				continue
			}
			s.broadcast(payload)
		}
	}
}

func (s *Server) broadcast(msg []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

// wireStatus is the JSON shape served over /status and /ws.
type wireStatus struct {
	State        string  `json:"state"`
	Mode         string  `json:"mode"`
	StartTime    string  `json:"start_time,omitempty"`
	UptimeSecs   float64 `json:"uptime_seconds"`
	ActiveOrders int     `json:"active_orders"`
	TotalTrades  int64   `json:"total_trades"`
	Balance      float64 `json:"balance"`
	DailyPnL     float64 `json:"daily_pnl"`
	LastFault    string  `json:"last_fault,omitempty"`
}

func statusPayload(st engine.Status) wireStatus {
	w := wireStatus{
		State:        st.State.String(),
		Mode:         string(st.Mode),
		UptimeSecs:   st.Uptime.Seconds(),
		ActiveOrders: st.ActiveOrders,
		TotalTrades:  st.TotalTrades,
		Balance:      st.Balance,
		DailyPnL:     st.DailyPnL,
		LastFault:    st.LastFault,
	}
	if !st.StartTime.IsZero() {
		w.StartTime = st.StartTime.UTC().Format(time.RFC3339)
	}
	return w
}
