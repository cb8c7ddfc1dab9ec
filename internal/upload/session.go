// Package upload receives chunked image transfers. Each connection
// runs at most one session at a time; sessions stage bytes in the
// incoming directory and hand the assembled artifact back on
// completion.
package upload

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"photowall/internal/auth"
	"photowall/internal/common"
)

// State is the lifecycle position of a session. A session only exists
// once Start has validated the transfer, so Receiving is the first
// state.
type State int

const (
	StateReceiving State = iota + 1
	StateCompleted
	StateAborted
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateReceiving:
		return "receiving"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

var acceptedTypes = []string{"image/jpeg", "image/png"}

// StartRequest is the metadata a client declares before sending bytes.
type StartRequest struct {
	Size        int64
	MimeType    string
	Description string
	Token       string
}

// Session is one in-flight transfer.
type Session struct {
	ID          string
	Name        string
	Size        int64
	Description string
	Level       auth.Level
	StartedAt   time.Time

	path     string
	file     *os.File
	received int64
	state    State
	log      *slog.Logger
}

// Manager validates and creates sessions. Destination names combine a
// millisecond timestamp with an atomic counter, so concurrent uploads
// never collide even under clock coincidence.
type Manager struct {
	incomingDir string
	maxBytes    int64
	authority   *auth.Authority
	log         *slog.Logger
	counter     atomic.Uint64
}

func NewManager(incomingDir string, maxBytes int64, authority *auth.Authority, log *slog.Logger) *Manager {
	return &Manager{
		incomingDir: incomingDir,
		maxBytes:    maxBytes,
		authority:   authority,
		log:         log,
	}
}

func (m *Manager) nextName() string {
	return fmt.Sprintf("%d_%d.jpeg", time.Now().UnixMilli(), m.counter.Add(1))
}

// Start validates the declared transfer and opens a staging file.
// A bad token is an ErrUnauthorized so the transport can treat the
// attempt as abuse and close the connection outright.
func (m *Manager) Start(req StartRequest) (*Session, error) {
	if m.authority.Authorize(req.Token) == auth.LevelNone {
		return nil, fmt.Errorf("%w: upload with invalid token", common.ErrUnauthorized)
	}

	accepted := false
	for _, t := range acceptedTypes {
		if req.MimeType == t {
			accepted = true
			break
		}
	}
	if !accepted {
		return nil, fmt.Errorf("%w: unsupported type %q", common.ErrValidation, req.MimeType)
	}

	if req.Size <= 0 || req.Size > m.maxBytes {
		return nil, fmt.Errorf("%w: declared size %d outside (0, %d]", common.ErrValidation, req.Size, m.maxBytes)
	}

	name := m.nextName()
	path := filepath.Join(m.incomingDir, name)
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: creating staging file: %v", common.ErrStoreIO, err)
	}

	return &Session{
		ID:          uuid.NewString(),
		Name:        name,
		Size:        req.Size,
		Description: req.Description,
		Level:       m.authority.Authorize(req.Token),
		StartedAt:   time.Now(),
		path:        path,
		file:        file,
		state:       StateReceiving,
		log:         m.log,
	}, nil
}

func (s *Session) State() State    { return s.state }
func (s *Session) Received() int64 { return s.received }

// Append writes one chunk to the staging file. Exceeding the declared
// size fails the whole session; the sender declared the budget and is
// not trusted past it.
func (s *Session) Append(chunk []byte) error {
	if s.state != StateReceiving {
		return fmt.Errorf("%w: append in state %s", common.ErrSessionState, s.state)
	}

	if s.received+int64(len(chunk)) > s.Size {
		s.discard(StateErrored)
		return fmt.Errorf("%w: chunk overruns declared size %d", common.ErrValidation, s.Size)
	}

	if _, err := s.file.Write(chunk); err != nil {
		s.discard(StateErrored)
		return fmt.Errorf("%w: writing chunk: %v", common.ErrStoreIO, err)
	}
	s.received += int64(len(chunk))
	return nil
}

// Complete closes staging and returns the assembled bytes. The staging
// file is removed; from here the artifact lives wherever the caller
// persists it.
func (s *Session) Complete() ([]byte, error) {
	if s.state != StateReceiving {
		return nil, fmt.Errorf("%w: complete in state %s", common.ErrSessionState, s.state)
	}

	if err := s.file.Close(); err != nil {
		s.discard(StateErrored)
		return nil, fmt.Errorf("%w: closing staging file: %v", common.ErrStoreIO, err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.discard(StateErrored)
		return nil, fmt.Errorf("%w: reading staging file: %v", common.ErrStoreIO, err)
	}

	s.state = StateCompleted
	if err := os.Remove(s.path); err != nil {
		s.log.Warn("could not remove staging file", "path", s.path, "error", err)
	}
	return data, nil
}

// Abort discards the partial transfer. Safe to call in any state.
func (s *Session) Abort() {
	if s.state != StateReceiving {
		return
	}
	s.discard(StateAborted)
}

func (s *Session) discard(terminal State) {
	s.file.Close()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.log.Warn("could not remove staging file", "path", s.path, "error", err)
	}
	s.state = terminal
}
