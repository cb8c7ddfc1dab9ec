// Package ws is the wall's broadcast coordinator: it owns the
// authoritative image list, serializes add/delete mutations, and fans
// events out to every connected client over gorilla websockets.
package ws

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"photowall/internal/auth"
	"photowall/internal/common"
	"photowall/internal/journal"
	"photowall/internal/models"
	"photowall/internal/pipeline"
	"photowall/internal/store"
	"photowall/internal/upload"
)

// Client represents a WebSocket connection
type Client struct {
	Hub   *Hub
	Conn  *websocket.Conn
	Send  chan []byte
	Level auth.Level

	// at most one in-flight upload per connection
	session *upload.Session
}

// Hub maintains active clients and broadcasts messages
type Hub struct {
	Broadcast  chan *Message
	Register   chan *Client
	Unregister chan *Client

	// snapshot requests run through the same loop as broadcasts, so a
	// snapshot can never contain an image whose delete event the
	// client already received, and always contains an image whose add
	// event it already received.
	snapshots chan *Client

	clients map[*Client]bool
	mu      sync.RWMutex

	store     *store.Store
	journal   *journal.Journal
	pipeline  *pipeline.Pipeline
	uploads   *upload.Manager
	authority *auth.Authority
	log       *slog.Logger
}

// Message represents a WebSocket message
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message types
const (
	MSG_LOGIN           = "login"
	MSG_LOGIN_CALLBACK  = "loginCallback"
	MSG_IMAGES          = "images"
	MSG_IMAGE           = "image"
	MSG_IMAGE_DELETED   = "imageDeleted"
	MSG_DELETE          = "delete"
	MSG_UPLOAD_START    = "uploadStart"
	MSG_UPLOAD_READY    = "uploadReady"
	MSG_UPLOAD_CHUNK    = "uploadChunk"
	MSG_UPLOAD_ABORT    = "uploadAbort"
	MSG_UPLOAD_COMPLETE = "uploadComplete"
	MSG_UPLOAD_ERROR    = "uploadError"
	MSG_ERROR           = "error"
)

// Payloads carried in Message.Data.
type (
	LoginPayload struct {
		Token string `json:"token"`
	}
	LoginCallbackPayload struct {
		Level int `json:"level"`
	}
	DeletePayload struct {
		Image string `json:"image"`
		Token string `json:"token"`
	}
	DeletedPayload struct {
		Name string `json:"name"`
	}
	UploadStartPayload struct {
		Size        int64  `json:"size"`
		MimeType    string `json:"mimeType"`
		Description string `json:"description,omitempty"`
		Token       string `json:"token"`
	}
	UploadReadyPayload struct {
		ID string `json:"id"`
	}
	UploadChunkPayload struct {
		ID   string `json:"id"`
		Data []byte `json:"data"`
		Last bool   `json:"last,omitempty"`
	}
	UploadAbortPayload struct {
		ID string `json:"id"`
	}
	UploadCompletePayload struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	UploadErrorPayload struct {
		ID     string `json:"id,omitempty"`
		Reason string `json:"reason"`
	}
	ErrorPayload struct {
		Op     string `json:"op"`
		Reason string `json:"reason"`
	}
)

// NewMessage wraps a payload in a typed message.
func NewMessage(msgType string, payload any) *Message {
	data, err := json.Marshal(payload)
	if err != nil {
		return &Message{Type: msgType}
	}
	return &Message{Type: msgType, Data: data}
}

// NewHub creates a new WebSocket hub
func NewHub(st *store.Store, jn *journal.Journal, pl *pipeline.Pipeline, um *upload.Manager, authority *auth.Authority, log *slog.Logger) *Hub {
	return &Hub{
		Broadcast:  make(chan *Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		snapshots:  make(chan *Client),
		clients:    make(map[*Client]bool),
		store:      st,
		journal:    jn,
		pipeline:   pl,
		uploads:    um,
		authority:  authority,
		log:        log,
	}
}

// snapshot asks the run loop to send the full current image list to
// one client. The list is read at delivery time, so a client
// connecting after N uploads sees all N of them.
func (h *Hub) snapshot(c *Client) {
	h.snapshots <- c
}

// sendSnapshot runs inside the hub loop.
func (h *Hub) sendSnapshot(c *Client) {
	records, err := h.store.List()
	if err != nil {
		h.log.Error("could not list images for snapshot", "error", err)
		return
	}
	if records == nil {
		records = []models.ImageRecord{}
	}

	data := mustMarshal(NewMessage(MSG_IMAGES, records))
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	select {
	case c.Send <- data:
	default:
		delete(h.clients, c)
		close(c.Send)
	}
}

// commit runs the completion sequence for an assembled upload:
// normalize, persist, journal, announce. Any failure short-circuits
// and nothing is broadcast.
func (h *Hub) commit(s *upload.Session, data []byte) (models.ImageRecord, error) {
	normalized := h.pipeline.Normalize(data)

	rec, err := h.store.Add(s.Name, normalized, s.Description)
	if err != nil {
		return models.ImageRecord{}, err
	}

	h.journal.RecordUpload(rec.Name, rec.Description, int64(len(normalized)))
	h.Broadcast <- NewMessage(MSG_IMAGE, rec)
	h.log.Info("image added", "name", rec.Name, "bytes", len(normalized))
	return rec, nil
}

// Delete authorizes and performs a soft delete, then announces it.
// Unauthorized and not-found requests never produce a broadcast.
func (h *Hub) Delete(name, token string) error {
	if h.authority.Authorize(token) != auth.LevelAdmin {
		h.log.Warn("delete with insufficient privileges", "image", name)
		return fmt.Errorf("%w: delete requires admin", common.ErrUnauthorized)
	}

	if err := h.store.SoftDelete(name); err != nil {
		return err
	}

	h.journal.RecordDelete(name)
	h.Broadcast <- NewMessage(MSG_IMAGE_DELETED, DeletedPayload{Name: name})
	h.log.Info("image deleted", "name", name)
	return nil
}

// enqueue hands a message to the client's write pump, dropping the
// client if its buffer is full.
func (c *Client) enqueue(msg *Message) {
	select {
	case c.Send <- mustMarshal(msg):
	default:
		c.Hub.Unregister <- c
	}
}
