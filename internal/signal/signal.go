package signal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Kind identifies one command of the signal-file protocol.
type Kind string

const (
	Stop    Kind = "stop"
	Restart Kind = "restart"
	Move    Kind = "move"
	Delete  Kind = "delete"
)

// Kinds in the order the control loop evaluates them.
var Kinds = []Kind{Move, Delete, Stop, Restart}

// FileName returns the sentinel file name for k inside the records root.
func (k Kind) FileName() string {
	switch k {
	case Stop:
		return "stop.flag"
	case Restart:
		return "restart.flag"
	case Move:
		return "mv.flag"
	case Delete:
		return "rm.flag"
	default:
		return string(k) + ".flag"
	}
}

// Channel is the command channel shared with the administrative process.
// Presence of a signal means a pending command; Consume removes it.
// Delivery is at most once per Raise.
type Channel interface {
	Peek(k Kind) bool
	Payload(k Kind) (string, error)
	Consume(k Kind) error
	Raise(k Kind, payload string) error
}

// Files implements Channel with sentinel files in a records root.
type Files struct {
	mu   sync.Mutex
	root string
}

func NewFiles(root string) *Files { return &Files{root: root} }

// SetRoot re-points the channel after the records root changed.
func (f *Files) SetRoot(root string) {
	f.mu.Lock()
	f.root = root
	f.mu.Unlock()
}

func (f *Files) Root() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.root
}

// Path returns the absolute sentinel path for k.
func (f *Files) Path(k Kind) string { return filepath.Join(f.Root(), k.FileName()) }

func (f *Files) Peek(k Kind) bool {
	_, err := os.Stat(f.Path(k))
	return err == nil
}

func (f *Files) Payload(k Kind) (string, error) {
	b, err := os.ReadFile(f.Path(k))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", k.FileName(), err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (f *Files) Consume(k Kind) error {
	if err := os.Remove(f.Path(k)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("consume %s: %w", k.FileName(), err)
	}
	return nil
}

func (f *Files) Raise(k Kind, payload string) error {
	root := f.Root()
	if err := os.MkdirAll(root, 0o750); err != nil {
		return err
	}
	tmp := f.Path(k) + ".tmp"
	if err := os.WriteFile(tmp, []byte(payload), 0o600); err != nil {
		return fmt.Errorf("raise %s: %w", k.FileName(), err)
	}
	return os.Rename(tmp, f.Path(k))
}

// Memory is an in-process Channel, mainly for tests.
type Memory struct {
	mu      sync.Mutex
	pending map[Kind]string
}

func NewMemory() *Memory { return &Memory{pending: make(map[Kind]string)} }

func (m *Memory) Peek(k Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[k]
	return ok
}

func (m *Memory) Payload(k Kind) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[k]
	if !ok {
		return "", fmt.Errorf("read %s: %w", k.FileName(), fs.ErrNotExist)
	}
	return strings.TrimSpace(p), nil
}

func (m *Memory) Consume(k Kind) error {
	m.mu.Lock()
	delete(m.pending, k)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Raise(k Kind, payload string) error {
	m.mu.Lock()
	m.pending[k] = payload
	m.mu.Unlock()
	return nil
}
