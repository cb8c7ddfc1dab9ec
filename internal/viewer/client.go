package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"photowall/internal/models"
	"photowall/internal/ws"
)

// DefaultChunkSize splits uploads into transport frames.
const DefaultChunkSize = 100240

const responseTimeout = 10 * time.Second

// Events are optional callbacks fired from the receive loop.
type Events struct {
	OnImage   func(models.ImageRecord)
	OnDeleted func(name string)
}

// Client is a wall participant: it logs in, mirrors the broadcast
// stream into a Projection, and can upload and delete images.
type Client struct {
	conn       *websocket.Conn
	projection *Projection
	events     Events
	log        *slog.Logger

	writeMu sync.Mutex

	loginCh    chan int
	readyCh    chan ws.UploadReadyPayload
	completeCh chan ws.UploadCompletePayload
	uploadErr  chan ws.UploadErrorPayload
}

// Dial connects to the wall's /ws endpoint.
func Dial(url string, events Events, log *slog.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return &Client{
		conn:       conn,
		projection: NewProjection(),
		events:     events,
		log:        log,
		loginCh:    make(chan int, 1),
		readyCh:    make(chan ws.UploadReadyPayload, 1),
		completeCh: make(chan ws.UploadCompletePayload, 1),
		uploadErr:  make(chan ws.UploadErrorPayload, 1),
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Projection exposes the mirrored image list and slideshow state.
func (c *Client) Projection() *Projection { return c.projection }

func (c *Client) send(msg *ws.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// Run reads server events until the context ends or the connection
// drops. It must be running for Login, Upload and Delete to complete.
func (c *Client) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	for {
		var msg ws.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *ws.Message) {
	switch msg.Type {
	case ws.MSG_LOGIN_CALLBACK:
		var payload ws.LoginCallbackPayload
		if json.Unmarshal(msg.Data, &payload) == nil {
			select {
			case c.loginCh <- payload.Level:
			default:
			}
		}

	case ws.MSG_IMAGES:
		var records []models.ImageRecord
		if json.Unmarshal(msg.Data, &records) == nil {
			c.projection.ApplySnapshot(records)
		}

	case ws.MSG_IMAGE:
		var rec models.ImageRecord
		if json.Unmarshal(msg.Data, &rec) == nil {
			if c.projection.ApplyAdded(rec) && c.events.OnImage != nil {
				c.events.OnImage(rec)
			}
		}

	case ws.MSG_IMAGE_DELETED:
		var payload ws.DeletedPayload
		if json.Unmarshal(msg.Data, &payload) == nil {
			if c.projection.ApplyDeleted(payload.Name) && c.events.OnDeleted != nil {
				c.events.OnDeleted(payload.Name)
			}
		}

	case ws.MSG_UPLOAD_READY:
		var payload ws.UploadReadyPayload
		if json.Unmarshal(msg.Data, &payload) == nil {
			select {
			case c.readyCh <- payload:
			default:
			}
		}

	case ws.MSG_UPLOAD_COMPLETE:
		var payload ws.UploadCompletePayload
		if json.Unmarshal(msg.Data, &payload) == nil {
			select {
			case c.completeCh <- payload:
			default:
			}
		}

	case ws.MSG_UPLOAD_ERROR:
		var payload ws.UploadErrorPayload
		if json.Unmarshal(msg.Data, &payload) == nil {
			select {
			case c.uploadErr <- payload:
			default:
			}
		}

	case ws.MSG_ERROR:
		var payload ws.ErrorPayload
		if json.Unmarshal(msg.Data, &payload) == nil {
			c.log.Warn("server rejected request", "op", payload.Op, "reason", payload.Reason)
		}

	default:
		c.log.Warn("unknown message type", "type", msg.Type)
	}
}

// Login presents a token and returns the granted privilege level.
// Recognized tokens also trigger the snapshot that seeds the
// projection.
func (c *Client) Login(token string) (int, error) {
	if err := c.send(ws.NewMessage(ws.MSG_LOGIN, ws.LoginPayload{Token: token})); err != nil {
		return 0, err
	}
	select {
	case level := <-c.loginCh:
		return level, nil
	case <-time.After(responseTimeout):
		return 0, fmt.Errorf("login: no response from server")
	}
}

// Upload streams an image in chunks and waits for the commit
// acknowledgment. The returned name is the stored artifact name.
func (c *Client) Upload(data []byte, mimeType, description, token string) (string, error) {
	start := ws.UploadStartPayload{
		Size:        int64(len(data)),
		MimeType:    mimeType,
		Description: description,
		Token:       token,
	}
	if err := c.send(ws.NewMessage(ws.MSG_UPLOAD_START, start)); err != nil {
		return "", err
	}

	var ready ws.UploadReadyPayload
	select {
	case ready = <-c.readyCh:
	case errPayload := <-c.uploadErr:
		return "", fmt.Errorf("upload rejected: %s", errPayload.Reason)
	case <-time.After(responseTimeout):
		return "", fmt.Errorf("upload: no response from server")
	}

	for offset := 0; offset < len(data); offset += DefaultChunkSize {
		end := offset + DefaultChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := ws.UploadChunkPayload{
			ID:   ready.ID,
			Data: data[offset:end],
			Last: end == len(data),
		}
		if err := c.send(ws.NewMessage(ws.MSG_UPLOAD_CHUNK, chunk)); err != nil {
			return "", err
		}
	}

	select {
	case complete := <-c.completeCh:
		return complete.Name, nil
	case errPayload := <-c.uploadErr:
		return "", fmt.Errorf("upload failed: %s", errPayload.Reason)
	case <-time.After(responseTimeout):
		return "", fmt.Errorf("upload: no completion from server")
	}
}

// Delete asks the server to soft-delete an image. Success arrives as
// an imageDeleted broadcast; failures come back as an error ack and
// are logged by the receive loop.
func (c *Client) Delete(name, token string) error {
	return c.send(ws.NewMessage(ws.MSG_DELETE, ws.DeletePayload{Image: name, Token: token}))
}
