// Package blob stores attachment bodies outside the database.
package blob

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
)

// Storage uploads attachment bodies and resolves their public URLs.
type Storage interface {
	Upload(ctx context.Context, objectPath, contentType string, body []byte) error
	PublicURL(objectPath string) string
}

// ObjectPath derives a stable object key for the idx-th file of a submission, so a
// retried upload overwrites instead of duplicating.
func ObjectPath(ticketID, submissionKey string, idx int, name string) string {
	return fmt.Sprintf("tickets/%s/%s/%d-%s", ticketID, submissionKey, idx, sanitize(name))
}

func sanitize(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "file"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
}

// Memory keeps objects in a map.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	baseURL string
	failErr error
}

// NewMemory builds an in-memory store serving URLs under baseURL.
func NewMemory(baseURL string) *Memory {
	return &Memory{objects: make(map[string][]byte), baseURL: strings.TrimRight(baseURL, "/")}
}

// FailWith makes later uploads return err; nil restores normal behavior.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func (m *Memory) Upload(_ context.Context, objectPath, _ string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.objects[objectPath] = append([]byte(nil), body...)
	return nil
}

func (m *Memory) PublicURL(objectPath string) string {
	return m.baseURL + "/" + objectPath
}

// Object returns a stored body.
func (m *Memory) Object(objectPath string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[objectPath]
	return body, ok
}

// Len reports how many objects are stored.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
