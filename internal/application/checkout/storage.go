package checkout

import (
	"errors"
	"net/url"
	"sync"
)

// ErrNoSession is returned by SessionStore.Load when nothing is stored.
var ErrNoSession = errors.New("no stored session")

// SessionStore is durable client storage for the pending reservation. It holds one encoded snapshot.
type SessionStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// URLState is the client's addressable state, the query string of the page or its equivalent.
type URLState interface {
	Query() (url.Values, error)
	Replace(q url.Values) error
}

type MemoryStore struct {
	mu    sync.Mutex
	token string
	set   bool
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return "", ErrNoSession
	}
	return m.token, nil
}

func (m *MemoryStore) Save(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.set = token, true
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.set = "", false
	return nil
}

type MemoryURL struct {
	mu sync.Mutex
	q  url.Values
}

func NewMemoryURL(q url.Values) *MemoryURL {
	if q == nil {
		q = url.Values{}
	}
	return &MemoryURL{q: cloneQuery(q)}
}

func (m *MemoryURL) Query() (url.Values, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneQuery(m.q), nil
}

func (m *MemoryURL) Replace(q url.Values) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.q = cloneQuery(q)
	return nil
}
