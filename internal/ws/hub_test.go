package ws_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photowall/internal/auth"
	"photowall/internal/journal"
	"photowall/internal/models"
	"photowall/internal/pipeline"
	"photowall/internal/store"
	"photowall/internal/upload"
	"photowall/internal/viewer"
	"photowall/internal/ws"
)

type wall struct {
	url     string
	store   *store.Store
	journal *journal.Journal
	hub     *ws.Hub
}

func newWall(t *testing.T) *wall {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.New(t.TempDir(), "default caption", log)
	require.NoError(t, err)
	jn, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { jn.Close() })

	authority := auth.NewAuthority("user1", "admin1")
	pl := pipeline.New(65, 1920, log)
	um := upload.NewManager(st.IncomingDir(), 1<<20, authority, log)

	hub := ws.NewHub(st, jn, pl, um, authority, log)
	go hub.Run()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := ws.NewClient(hub, conn)
		hub.Register <- client
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)

	return &wall{
		url:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		store:   st,
		journal: jn,
		hub:     hub,
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func connect(t *testing.T, w *wall, events viewer.Events) *viewer.Client {
	t.Helper()
	client, err := viewer.Dial(w.url, events, discard())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go client.Run(ctx)
	return client
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil))
	return buf.Bytes()
}

func TestLoginLevelsAndSnapshot(t *testing.T) {
	w := newWall(t)
	_, err := w.store.Add("a.jpeg", []byte("x"), "one")
	require.NoError(t, err)

	c := connect(t, w, viewer.Events{})
	level, err := c.Login("user1")
	require.NoError(t, err)
	assert.Equal(t, int(auth.LevelViewer), level)

	require.Eventually(t, func() bool {
		return c.Projection().Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLoginBadTokenGetsNoSnapshot(t *testing.T) {
	w := newWall(t)
	_, err := w.store.Add("a.jpeg", []byte("x"), "one")
	require.NoError(t, err)

	c := connect(t, w, viewer.Events{})
	level, err := c.Login("nope")
	require.NoError(t, err)
	assert.Equal(t, int(auth.LevelNone), level)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, c.Projection().Len())
}

func TestUploadIsBroadcastToEveryone(t *testing.T) {
	w := newWall(t)

	received := make(chan models.ImageRecord, 2)
	onImage := func(rec models.ImageRecord) { received <- rec }

	uploader := connect(t, w, viewer.Events{OnImage: onImage})
	watcher := connect(t, w, viewer.Events{OnImage: onImage})

	_, err := uploader.Login("user1")
	require.NoError(t, err)
	_, err = watcher.Login("user1")
	require.NoError(t, err)

	name, err := uploader.Upload(testJPEG(t), "image/jpeg", "Nice view", "user1")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, ".jpeg"))

	// both clients, the uploader included, learn about it only through
	// the broadcast
	for i := 0; i < 2; i++ {
		select {
		case rec := <-received:
			assert.Equal(t, name, rec.Name)
			assert.Equal(t, "Nice view", rec.Description)
		case <-time.After(2 * time.Second):
			t.Fatal("missing image broadcast")
		}
	}

	records, err := w.store.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, name, records[0].Name)
}

func TestSnapshotAfterUploadsIsComplete(t *testing.T) {
	w := newWall(t)

	uploader := connect(t, w, viewer.Events{})
	_, err := uploader.Login("user1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := uploader.Upload(testJPEG(t), "image/jpeg", "", "user1")
		require.NoError(t, err)
	}

	late := connect(t, w, viewer.Events{})
	_, err = late.Login("user1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return late.Projection().Len() == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDeleteBroadcastAfterAdd(t *testing.T) {
	w := newWall(t)

	var order []string
	events := make(chan string, 4)
	record := func(kind string) { events <- kind }

	watcher := connect(t, w, viewer.Events{
		OnImage:   func(models.ImageRecord) { record("added") },
		OnDeleted: func(string) { record("deleted") },
	})
	_, err := watcher.Login("user1")
	require.NoError(t, err)

	admin := connect(t, w, viewer.Events{})
	_, err = admin.Login("admin1")
	require.NoError(t, err)

	name, err := admin.Upload(testJPEG(t), "image/jpeg", "", "admin1")
	require.NoError(t, err)
	require.NoError(t, admin.Delete(name, "admin1"))

	for i := 0; i < 2; i++ {
		select {
		case kind := <-events:
			order = append(order, kind)
		case <-time.After(2 * time.Second):
			t.Fatal("missing broadcast")
		}
	}
	assert.Equal(t, []string{"added", "deleted"}, order)

	records, err := w.store.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestUnauthorizedDeleteIsIgnored(t *testing.T) {
	w := newWall(t)
	_, err := w.store.Add("a.jpeg", []byte("x"), "one")
	require.NoError(t, err)

	deleted := make(chan string, 1)
	watcher := connect(t, w, viewer.Events{OnDeleted: func(name string) { deleted <- name }})
	_, err = watcher.Login("user1")
	require.NoError(t, err)

	require.NoError(t, watcher.Delete("a.jpeg", "user1"))

	select {
	case <-deleted:
		t.Fatal("unauthorized delete must not broadcast")
	case <-time.After(200 * time.Millisecond):
	}

	records, err := w.store.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestDeleteUnknownNameEmitsNoEvent(t *testing.T) {
	w := newWall(t)

	deleted := make(chan string, 1)
	admin := connect(t, w, viewer.Events{OnDeleted: func(name string) { deleted <- name }})
	_, err := admin.Login("admin1")
	require.NoError(t, err)

	require.NoError(t, admin.Delete("ghost.jpeg", "admin1"))

	select {
	case <-deleted:
		t.Fatal("delete of unknown name must not broadcast")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestUploadWithBadTokenClosesConnection(t *testing.T) {
	w := newWall(t)

	conn, _, err := websocket.DefaultDialer.Dial(w.url, nil)
	require.NoError(t, err)
	defer conn.Close()

	start := ws.NewMessage(ws.MSG_UPLOAD_START, ws.UploadStartPayload{
		Size: 10, MimeType: "image/jpeg", Token: "intruder",
	})
	require.NoError(t, conn.WriteJSON(start))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return // server hung up, as it should
		}
	}
}

func TestUploadWithBadTypeIsRejected(t *testing.T) {
	w := newWall(t)

	c := connect(t, w, viewer.Events{})
	_, err := c.Login("user1")
	require.NoError(t, err)

	_, err = c.Upload([]byte("gif bytes"), "image/gif", "", "user1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")

	records, listErr := w.store.List()
	require.NoError(t, listErr)
	assert.Empty(t, records)
}

func TestUndecodableUploadStillAnnounced(t *testing.T) {
	w := newWall(t)

	received := make(chan models.ImageRecord, 1)
	c := connect(t, w, viewer.Events{OnImage: func(rec models.ImageRecord) { received <- rec }})
	_, err := c.Login("user1")
	require.NoError(t, err)

	raw := []byte("claims to be a jpeg but is not")
	name, err := c.Upload(raw, "image/jpeg", "", "user1")
	require.NoError(t, err)

	select {
	case rec := <-received:
		assert.Equal(t, name, rec.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("fallback upload was not announced")
	}
}

func TestInterleavedUploadsStayIntact(t *testing.T) {
	w := newWall(t)

	type rawClient struct {
		conn *websocket.Conn
		id   string
		body []byte
	}

	dial := func(marker byte) *rawClient {
		conn, _, err := websocket.DefaultDialer.Dial(w.url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })

		body := bytes.Repeat([]byte{marker}, 300)
		require.NoError(t, conn.WriteJSON(ws.NewMessage(ws.MSG_UPLOAD_START, ws.UploadStartPayload{
			Size: int64(len(body)), MimeType: "image/jpeg", Token: "user1",
		})))

		var msg ws.Message
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, ws.MSG_UPLOAD_READY, msg.Type)
		var ready ws.UploadReadyPayload
		require.NoError(t, json.Unmarshal(msg.Data, &ready))
		return &rawClient{conn: conn, id: ready.ID, body: body}
	}

	a := dial('a')
	b := dial('b')

	// round-robin chunks across the two connections
	for i := 0; i < 3; i++ {
		for _, rc := range []*rawClient{a, b} {
			chunk := ws.UploadChunkPayload{
				ID:   rc.id,
				Data: rc.body[i*100 : (i+1)*100],
				Last: i == 2,
			}
			require.NoError(t, rc.conn.WriteJSON(ws.NewMessage(ws.MSG_UPLOAD_CHUNK, chunk)))
		}
	}

	names := make(map[byte]string)
	for _, rc := range []*rawClient{a, b} {
		rc.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			var msg ws.Message
			require.NoError(t, rc.conn.ReadJSON(&msg))
			if msg.Type != ws.MSG_UPLOAD_COMPLETE {
				continue
			}
			var complete ws.UploadCompletePayload
			require.NoError(t, json.Unmarshal(msg.Data, &complete))
			names[rc.body[0]] = complete.Name
			break
		}
	}

	require.NotEqual(t, names['a'], names['b'])

	// both artifacts stored intact (undecodable, so bytes kept verbatim)
	for marker, name := range names {
		data := readProcessed(t, w, name)
		assert.Equal(t, bytes.Repeat([]byte{marker}, 300), data)
	}
}

func TestJournalRecordsMutations(t *testing.T) {
	w := newWall(t)

	admin := connect(t, w, viewer.Events{})
	_, err := admin.Login("admin1")
	require.NoError(t, err)

	name, err := admin.Upload(testJPEG(t), "image/jpeg", "journaled", "admin1")
	require.NoError(t, err)
	require.NoError(t, admin.Delete(name, "admin1"))

	require.Eventually(t, func() bool {
		entries, err := w.journal.Recent(10)
		return err == nil && len(entries) == 2
	}, 2*time.Second, 10*time.Millisecond)

	entries, err := w.journal.Recent(10)
	require.NoError(t, err)
	assert.Equal(t, journal.OpDelete, entries[0].Op)
	assert.Equal(t, journal.OpUpload, entries[1].Op)
	assert.Equal(t, name, entries[0].Image)
}

func readProcessed(t *testing.T, w *wall, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(w.store.ProcessedDir(), name))
	require.NoError(t, err)
	return data
}
