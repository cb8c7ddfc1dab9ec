package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/websocket"

	"photowall/internal/auth"
	"photowall/internal/config"
	"photowall/internal/journal"
	"photowall/internal/pipeline"
	"photowall/internal/store"
	"photowall/internal/upload"
	"photowall/internal/ws"
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // wall clients come from anywhere
	},
}

// App wires the wall's components together.
type App struct {
	cfg     *config.Config
	store   *store.Store
	journal *journal.Journal
	hub     *ws.Hub
	log     *slog.Logger
}

func NewApp(cfg *config.Config, log *slog.Logger) (*App, error) {
	st, err := store.New(cfg.DataDir, cfg.DefaultCaption(), log)
	if err != nil {
		return nil, err
	}

	jn, err := journal.Open(cfg.JournalPath, log)
	if err != nil {
		return nil, err
	}

	authority := auth.NewAuthority(cfg.UserToken, cfg.AdminToken)
	pl := pipeline.New(cfg.JPEGQuality, cfg.MaxWidth, log)
	um := upload.NewManager(st.IncomingDir(), cfg.MaxUploadBytes, authority, log)

	hub := ws.NewHub(st, jn, pl, um, authority, log)
	go hub.Run()

	return &App{cfg: cfg, store: st, journal: jn, hub: hub, log: log}, nil
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg := config.Load()

	if cfg.UserToken == "" || cfg.AdminToken == "" {
		log.Error("PHOTOWALL_USER_TOKEN and PHOTOWALL_ADMIN_TOKEN must be set")
		os.Exit(1)
	}

	app, err := NewApp(cfg, log)
	if err != nil {
		log.Error("could not initialize", "error", err)
		os.Exit(1)
	}
	defer app.journal.Close()

	setupRoutes(app)

	log.Info("photo wall server starting", "addr", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, nil); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func setupRoutes(app *App) {
	// event channel
	http.HandleFunc("/ws", app.handleWebSocket)

	// processed area, read-only, for clients that load images by URL
	http.Handle("/images/", http.StripPrefix("/images/", http.FileServer(http.Dir(app.store.ProcessedDir()))))

	// operational history
	http.HandleFunc("/api/history", app.handleHistory)
}

func (app *App) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := ws.NewClient(app.hub, conn)
	app.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

func (app *App) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := app.journal.Recent(limit)
	if err != nil {
		app.log.Error("could not read journal", "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
