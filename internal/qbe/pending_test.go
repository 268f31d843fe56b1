package qbe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPending() *PendingStore {
	store := sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef"))
	return NewPendingStore(sessions.NewSession(store, SessionName))
}

func TestPendingStore_PutAndGet(t *testing.T) {
	p := newTestPending()

	hash, err := p.Put(sampleDefinition())
	require.NoError(t, err)

	expected, err := QueryHash(sampleDefinition())
	require.NoError(t, err)
	assert.Equal(t, expected, hash)
	assert.True(t, p.Has(hash))

	def, err := p.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, sampleDefinition(), def)
}

func TestPendingStore_GetMissing(t *testing.T) {
	p := newTestPending()
	assert.False(t, p.Has("nope"))

	_, err := p.Get("nope")
	assert.ErrorIs(t, err, ErrPendingNotFound)
}

func TestPendingStore_PutIfAbsentKeepsExisting(t *testing.T) {
	p := newTestPending()
	hash, err := p.Put(sampleDefinition())
	require.NoError(t, err)

	other := sampleDefinition()
	other.Offset = 20
	changed, err := p.PutIfAbsent(hash, other)
	require.NoError(t, err)
	assert.False(t, changed)

	def, err := p.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, sampleDefinition(), def)
}

func TestLoadPending_RoundTripThroughCookie(t *testing.T) {
	store := sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	p, err := LoadPending(store, req)
	require.NoError(t, err)
	hash, err := p.Put(sampleDefinition())
	require.NoError(t, err)
	require.NoError(t, p.Save(req, rec))

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		next.AddCookie(c)
	}
	loaded, err := LoadPending(store, next)
	require.NoError(t, err)
	assert.True(t, loaded.Has(hash))
}

func TestPendingStore_EvictsOldestBeyondLimit(t *testing.T) {
	p := newTestPending()

	var hashes []string
	for i := 0; i < MaxPending+5; i++ {
		def := sampleDefinition()
		def.Offset = i
		hash, err := p.Put(def)
		require.NoError(t, err)
		hashes = append(hashes, hash)
	}

	assert.Equal(t, MaxPending, p.Len())
	for _, hash := range hashes[:5] {
		assert.False(t, p.Has(hash))
	}
	for _, hash := range hashes[5:] {
		assert.True(t, p.Has(hash))
	}
}

func TestPendingStore_PutMovesExistingToNewest(t *testing.T) {
	p := newTestPending()

	first, err := p.Put(sampleDefinition())
	require.NoError(t, err)
	for i := 1; i < MaxPending; i++ {
		def := sampleDefinition()
		def.Offset = i
		_, err := p.Put(def)
		require.NoError(t, err)
	}

	_, err = p.Put(sampleDefinition())
	require.NoError(t, err)

	def := sampleDefinition()
	def.Offset = MaxPending
	_, err = p.Put(def)
	require.NoError(t, err)

	assert.True(t, p.Has(first))
	assert.Equal(t, MaxPending, p.Len())
}

func TestNewSessionStore_KeepsManyQueriesServerSide(t *testing.T) {
	store := NewSessionStore(t.TempDir(), []byte("0123456789abcdef0123456789abcdef"), &sessions.Options{Path: "/", MaxAge: 3600})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	p, err := LoadPending(store, req)
	require.NoError(t, err)

	var hashes []string
	for i := 0; i < 40; i++ {
		def := sampleDefinition()
		def.Offset = i
		hash, err := p.Put(def)
		require.NoError(t, err)
		hashes = append(hashes, hash)
	}
	require.NoError(t, p.Save(req, rec))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Less(t, len(cookies[0].Value), 512)

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(cookies[0])
	loaded, err := LoadPending(store, next)
	require.NoError(t, err)
	for _, hash := range hashes {
		assert.True(t, loaded.Has(hash))
	}
}
