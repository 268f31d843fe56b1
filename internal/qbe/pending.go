package qbe

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"

	"qbeAdmin/internal/models"
)

// SessionName is the gorilla session that carries pending queries.
const SessionName = "qbe"

// MaxPending is how many pending queries a session keeps. Storing one more
// evicts the oldest.
const MaxPending = 50

// orderKey holds the comma separated hashes of the pending queries, oldest
// first.
const orderKey = "qbe_pending_order"

// NewSessionStore returns the server-side store for the qbe session. Only the
// session id travels in the cookie, so the number and size of pending
// queries is not bound by cookie limits.
func NewSessionStore(dir string, secret []byte, options *sessions.Options) *sessions.FilesystemStore {
	store := sessions.NewFilesystemStore(dir, secret)
	store.MaxLength(0)
	if options != nil {
		opts := *options
		store.Options = &opts
		store.MaxAge(opts.MaxAge)
	}
	return store
}

// ErrPendingNotFound is returned when no pending query exists for a hash.
var ErrPendingNotFound = errors.New("pending query not found in session")

// PendingStore exposes the qbe_query_<hash> entries of one request's session.
type PendingStore struct {
	session *sessions.Session
}

// LoadPending fetches the qbe session for the request. A session that cannot
// be decoded (rotated keys, tampered cookie) is replaced by a fresh one.
func LoadPending(store sessions.Store, r *http.Request) (*PendingStore, error) {
	session, err := store.Get(r, SessionName)
	if err != nil {
		session, err = store.New(r, SessionName)
		if session == nil {
			return nil, err
		}
	}
	return &PendingStore{session: session}, nil
}

// NewPendingStore wraps an already loaded session.
func NewPendingStore(session *sessions.Session) *PendingStore {
	return &PendingStore{session: session}
}

// Has reports whether a pending query exists for hash.
func (p *PendingStore) Has(hash string) bool {
	_, ok := p.session.Values[SessionKey(hash)].(string)
	return ok
}

// Get returns the pending query stored under hash.
func (p *PendingStore) Get(hash string) (models.QueryDefinition, error) {
	raw, ok := p.session.Values[SessionKey(hash)].(string)
	if !ok {
		return models.QueryDefinition{}, ErrPendingNotFound
	}
	return Decode([]byte(raw))
}

// Put stores def and returns its hash. An existing entry is replaced.
func (p *PendingStore) Put(def models.QueryDefinition) (string, error) {
	data, err := Encode(def)
	if err != nil {
		return "", err
	}
	hash := Hash(data)
	p.store(hash, data)
	return hash, nil
}

// PutIfAbsent stores def under hash unless an entry already exists. It
// reports whether the session changed.
func (p *PendingStore) PutIfAbsent(hash string, def models.QueryDefinition) (bool, error) {
	if p.Has(hash) {
		return false, nil
	}
	data, err := Encode(def)
	if err != nil {
		return false, err
	}
	p.store(hash, data)
	return true, nil
}

// Len returns the number of pending queries in the session.
func (p *PendingStore) Len() int {
	return len(p.order())
}

func (p *PendingStore) store(hash string, data []byte) {
	p.session.Values[SessionKey(hash)] = string(data)

	order := p.order()
	kept := order[:0]
	for _, h := range order {
		if h != hash {
			kept = append(kept, h)
		}
	}
	kept = append(kept, hash)

	for len(kept) > MaxPending {
		delete(p.session.Values, SessionKey(kept[0]))
		kept = kept[1:]
	}
	p.session.Values[orderKey] = strings.Join(kept, ",")
}

func (p *PendingStore) order() []string {
	raw, _ := p.session.Values[orderKey].(string)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// Save writes the session back to the response.
func (p *PendingStore) Save(r *http.Request, w http.ResponseWriter) error {
	return p.session.Save(r, w)
}
