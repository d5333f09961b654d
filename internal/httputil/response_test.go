package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]int{"count": 42})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, map[string]any{"count": 42.0}, decodeBody(t, rec))
}

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		msg    string
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "bad input") }, http.StatusBadRequest, "bad input"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "no such snapshot") }, http.StatusNotFound, "no such snapshot"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, http.StatusInternalServerError, "boom"},
		{"method", func(w http.ResponseWriter) { MethodNotAllowed(w) }, http.StatusMethodNotAllowed, "method not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, map[string]any{"error": tt.msg}, decodeBody(t, rec))
		})
	}
}

func TestMethodNotAllowed_Allow(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	MethodNotAllowed(rec, http.MethodGet, http.MethodPut)
	assert.Equal(t, []string{"GET", "PUT"}, rec.Header().Values("Allow"))
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	var v struct {
		Type int `json:"type"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"type":10}`))
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &v))
	assert.Equal(t, 10, v.Type)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"type":10,"extra":1}`))
	assert.ErrorContains(t, DecodeJSON(httptest.NewRecorder(), req, &v), "unknown field")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"type":"`+strings.Repeat("x", MaxBodySize)+`"}`))
	assert.Error(t, DecodeJSON(httptest.NewRecorder(), req, &v))
}

func TestReadBody(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader("payload"))
	data, err := ReadBody(httptest.NewRecorder(), req)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(strings.Repeat("x", MaxBodySize+1)))
	_, err = ReadBody(httptest.NewRecorder(), req)
	assert.Error(t, err)
}
