package users

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/certkv/core/certification"
	"go.dedis.ch/certkv/core/store/certified"
	"go.dedis.ch/certkv/internal/testing/fake"
)

func TestUsersHandler_Post(t *testing.T) {
	srvc, _ := makeService(t)
	handler := NewUsersHandler(srvc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, UsersPath, strings.NewReader(`{"name":"Alice","age":30}`))

	handler(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp SetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, uint64(1), resp.Index)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, UsersPath, strings.NewReader(`{"name":"Alice","height":3}`))

	handler(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, errorOf(t, rec), "invalid user")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, UsersPath, strings.NewReader(`{"age":3}`))

	handler(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid user: empty name", errorOf(t, rec))
}

func TestUsersHandler_Get(t *testing.T) {
	srvc, _ := makeService(t)
	handler := NewUsersHandler(srvc)

	_, err := srvc.SetUser(NewUser("Alice", 30))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, UsersPath+"/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp GetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, uint64(1), resp.Index)
	require.Equal(t, UserMessage{Name: "Alice", Age: 30}, resp.User)

	expected, err := srvc.GetUser(1)
	require.NoError(t, err)
	require.Equal(t, expected.Value, resp.Value)
	require.Equal(t, expected.Witness, resp.Witness)
	require.Equal(t, expected.Certificate, resp.Certificate)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, UsersPath+"/2", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, UsersPath+"/abc", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid index 'abc'", errorOf(t, rec))

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodDelete, UsersPath+"/1", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestUsersHandler_Failures(t *testing.T) {
	srvc, err := NewService(certified.NewStore(), badAuthority{}, subject)
	require.NoError(t, err)

	_, err = srvc.SetUser(NewUser("Alice", 30))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	NewUsersHandler(srvc)(rec, httptest.NewRequest(http.MethodGet, UsersPath+"/1", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRootKeyHandler(t *testing.T) {
	srvc, authority := makeService(t)
	handler := NewRootKeyHandler(srvc)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, RootKeyPath, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RootKeyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	key, err := authority.GetRootKey()
	require.NoError(t, err)
	require.Equal(t, key, resp.RootKey)
	require.Equal(t, subject, resp.Subject)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, RootKeyPath, nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	srvc.authority = badRootKeyAuthority{}

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, RootKeyPath, nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

// -----------------------------------------------------------------------------
// Utility functions

func TestUsersHandler_WriteFailure(t *testing.T) {
	logger, check := fake.CheckLog("couldn't write response")

	srvc, _ := makeService(t, WithLogger(logger))
	handler := NewUsersHandler(srvc)

	handler(badResponseWriter{ResponseRecorder: httptest.NewRecorder()},
		httptest.NewRequest(http.MethodGet, UsersPath+"/1", nil))

	check(t)
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	return resp.Error
}

type badResponseWriter struct {
	*httptest.ResponseRecorder
}

func (badResponseWriter) Write([]byte) (int, error) {
	return 0, fake.GetError()
}

type badRootKeyAuthority struct {
	certification.Authority
}

func (badRootKeyAuthority) GetRootKey() ([]byte, error) {
	return nil, fake.GetError()
}
