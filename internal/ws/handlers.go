package ws

import (
	"encoding/json"
	"errors"

	"photowall/internal/auth"
	"photowall/internal/common"
	"photowall/internal/upload"
)

// handleMessage dispatches one inbound message. Returning false tears
// the connection down (upload attempts with a bad token are treated
// as abuse, not as a recoverable error).
func (c *Client) handleMessage(msg *Message) bool {
	switch msg.Type {
	case MSG_LOGIN:
		c.handleLogin(msg.Data)
	case MSG_UPLOAD_START:
		return c.handleUploadStart(msg.Data)
	case MSG_UPLOAD_CHUNK:
		c.handleUploadChunk(msg.Data)
	case MSG_UPLOAD_ABORT:
		c.handleUploadAbort(msg.Data)
	case MSG_DELETE:
		c.handleDelete(msg.Data)
	default:
		c.Hub.log.Warn("unknown message type", "type", msg.Type)
	}
	return true
}

// handleLogin replies with the privilege level and, for recognized
// tokens, the full snapshot of current images.
func (c *Client) handleLogin(data json.RawMessage) {
	var payload LoginPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.enqueue(NewMessage(MSG_ERROR, ErrorPayload{Op: MSG_LOGIN, Reason: "malformed payload"}))
		return
	}

	c.Level = c.Hub.authority.Authorize(payload.Token)
	c.Hub.log.Info("login", "level", c.Level.String())
	c.enqueue(NewMessage(MSG_LOGIN_CALLBACK, LoginCallbackPayload{Level: int(c.Level)}))

	if c.Level > auth.LevelNone {
		c.Hub.snapshot(c)
	}
}

func (c *Client) handleUploadStart(data json.RawMessage) bool {
	var payload UploadStartPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.enqueue(NewMessage(MSG_UPLOAD_ERROR, UploadErrorPayload{Reason: "malformed payload"}))
		return true
	}

	if c.session != nil && c.session.State() == upload.StateReceiving {
		c.enqueue(NewMessage(MSG_UPLOAD_ERROR, UploadErrorPayload{Reason: "upload already in progress"}))
		return true
	}

	session, err := c.Hub.uploads.Start(upload.StartRequest{
		Size:        payload.Size,
		MimeType:    payload.MimeType,
		Description: payload.Description,
		Token:       payload.Token,
	})
	if err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			c.Hub.log.Warn("upload with invalid token, closing connection")
			return false
		}
		c.enqueue(NewMessage(MSG_UPLOAD_ERROR, UploadErrorPayload{Reason: err.Error()}))
		return true
	}

	c.session = session
	c.enqueue(NewMessage(MSG_UPLOAD_READY, UploadReadyPayload{ID: session.ID}))
	return true
}

func (c *Client) handleUploadChunk(data json.RawMessage) {
	var payload UploadChunkPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.enqueue(NewMessage(MSG_UPLOAD_ERROR, UploadErrorPayload{Reason: "malformed payload"}))
		return
	}

	if c.session == nil || c.session.ID != payload.ID {
		c.enqueue(NewMessage(MSG_UPLOAD_ERROR, UploadErrorPayload{ID: payload.ID, Reason: "no such upload session"}))
		return
	}

	if err := c.session.Append(payload.Data); err != nil {
		c.enqueue(NewMessage(MSG_UPLOAD_ERROR, UploadErrorPayload{ID: payload.ID, Reason: err.Error()}))
		c.session = nil
		return
	}

	if !payload.Last {
		return
	}

	session := c.session
	c.session = nil

	assembled, err := session.Complete()
	if err != nil {
		c.enqueue(NewMessage(MSG_UPLOAD_ERROR, UploadErrorPayload{ID: session.ID, Reason: err.Error()}))
		return
	}

	rec, err := c.Hub.commit(session, assembled)
	if err != nil {
		// failure stays between server and uploader; nothing was broadcast
		c.Hub.log.Error("could not commit upload", "name", session.Name, "error", err)
		c.enqueue(NewMessage(MSG_UPLOAD_ERROR, UploadErrorPayload{ID: session.ID, Reason: "could not store image"}))
		return
	}

	c.enqueue(NewMessage(MSG_UPLOAD_COMPLETE, UploadCompletePayload{ID: session.ID, Name: rec.Name}))
}

func (c *Client) handleUploadAbort(data json.RawMessage) {
	var payload UploadAbortPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	if c.session == nil || c.session.ID != payload.ID {
		return
	}
	c.session.Abort()
	c.session = nil
	c.Hub.log.Info("upload aborted", "id", payload.ID)
}

func (c *Client) handleDelete(data json.RawMessage) {
	var payload DeletePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.enqueue(NewMessage(MSG_ERROR, ErrorPayload{Op: MSG_DELETE, Reason: "malformed payload"}))
		return
	}

	if err := c.Hub.Delete(payload.Image, payload.Token); err != nil {
		reason := "could not delete image"
		switch {
		case errors.Is(err, common.ErrUnauthorized):
			reason = "unauthorized"
		case errors.Is(err, common.ErrNotFound):
			reason = "no such image"
		}
		c.enqueue(NewMessage(MSG_ERROR, ErrorPayload{Op: MSG_DELETE, Reason: reason}))
	}
}
