// Command myo-ws connects to a Myo armband and rebroadcasts its decoded
// events to websocket clients as JSON.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	myo "github.com/iomz/dl-myo"
	"github.com/iomz/dl-myo/internal/config"
	"github.com/iomz/dl-myo/wire"
)

// wsEvent is the envelope sent to websocket clients.
type wsEvent struct {
	Type string     `json:"type"`
	Data wire.Event `json:"data"`
}

// hub tracks connected websocket clients and fans events out to them.
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]bool)}
}

func (h *hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

// broadcast sends the event to every client; clients that fail to accept the
// write within the deadline are dropped.
func (h *hub) broadcast(event wsEvent) {
	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.Unlock()

	var failed []*websocket.Conn
	for _, conn := range clients {
		conn.SetWriteDeadline(time.Now().Add(100 * time.Millisecond))
		if err := conn.WriteJSON(event); err != nil {
			failed = append(failed, conn)
		}
	}

	for _, conn := range failed {
		h.remove(conn)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/dl-myo/config.yaml)")
	listen := flag.String("listen", "", "websocket listen address (overrides config)")
	mac := flag.String("mac", "", "device address to connect to (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}
	if *listen != "" {
		cfg.WS.Listen = *listen
	}
	if *mac != "" {
		cfg.Address = *mac
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	adapter := myo.NewBluetoothAdapter()
	if err := adapter.Enable(); err != nil {
		log.Fatalf("enabling bluetooth adapter: %v", err)
	}

	opts := myo.DefaultOptions()
	opts.Address = cfg.Address
	opts.Scales = cfg.WireScales()
	opts.Logger = logger

	session := myo.NewSession(adapter, opts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("Scanning for Myo...")
	if err := session.Connect(ctx); err != nil {
		log.Fatalf("connect: %v", err)
	}
	dev := session.Device()
	log.Printf("Connected to %s (%s)", dev.Name, dev.Address)

	if err := session.Warmup(); err != nil {
		log.Printf("WARNING: warmup failed: %v", err)
	}
	mode, err := cfg.SetModeCommand()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := session.SetMode(mode); err != nil {
		log.Fatalf("set mode: %v", err)
	}

	h := newHub()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Failed to upgrade connection: %v", err)
			return
		}
		h.add(conn)
		log.Printf("Client connected: %s", conn.RemoteAddr())

		// Drain inbound frames so pings and close frames are processed.
		go func() {
			defer h.remove(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})

	srv := &http.Server{Addr: cfg.WS.Listen, Handler: mux}
	go func() {
		log.Printf("Serving websocket on %s/ws", cfg.WS.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	events := session.Events()
loop:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			h.broadcast(wsEvent{Type: ev.Kind(), Data: ev})
		case <-ctx.Done():
			break loop
		}
	}

	log.Println("Shutting down...")
	_ = session.SetMode(wire.SetMode{})
	_ = session.SetSleepMode(wire.SleepModeNormal)
	_ = session.Disconnect()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	h.closeAll()

	if err := session.Err(); err != nil {
		log.Printf("Session ended: %v", err)
		os.Exit(1)
	}
	log.Println("Goodbye!")
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		return config.Load(defaultPath)
	}
	return config.Default(), nil
}
