package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qbeAdmin/internal/models"
	"qbeAdmin/internal/qbe"
)

func jsonDecode(r io.Reader, v interface{}) error {
	return json.NewDecoder(r).Decode(v)
}

func TestPendingAPIStoreAndGet(t *testing.T) {
	e := newEnv(t)
	c := e.client(e.user("a@example.com", false))

	resp := c.storePending(t, ordersJSON)

	want, err := qbe.QueryHash(ordersDefinition())
	require.NoError(t, err)
	assert.Equal(t, want, resp.Hash)
	assert.Equal(t, "/admin/qbe/savedquery/add/?hash="+want, resp.SaveURL)
	assert.Equal(t, "/qbe/results/"+want+"/", resp.ResultsURL)

	rec := c.get("/api/qbe/pending/" + want)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.QueryDefinition
	require.NoError(t, jsonDecode(rec.Body, &got))
	assert.Equal(t, ordersDefinition(), got)
}

func TestPendingAPIIsPerSession(t *testing.T) {
	e := newEnv(t)
	a := e.client(e.user("a@example.com", false))
	b := e.client(e.user("b@example.com", false))

	resp := a.storePending(t, ordersJSON)
	assert.Equal(t, http.StatusNotFound, b.get("/api/qbe/pending/"+resp.Hash).Code)
}

func TestPendingAPIRejects(t *testing.T) {
	e := newEnv(t)
	staff := e.client(e.user("a@example.com", false))

	tests := []struct {
		name   string
		client *client
		body   string
		want   int
	}{
		{"anonymous", e.client(nil), ordersJSON, http.StatusUnauthorized},
		{"not staff", e.client(&models.User{ID: 99, Email: "x@example.com"}), ordersJSON, http.StatusForbidden},
		{"malformed", staff, `{"rows":`, http.StatusBadRequest},
		{"unknown field", staff, `{"rows":[],"sql":"drop table"}`, http.StatusBadRequest},
		{"no rows", staff, `{"rows":[]}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.client.postJSON("/api/qbe/pending", tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	assert.Equal(t, http.StatusBadRequest, staff.get("/api/qbe/pending/not-a-hash").Code)
}
