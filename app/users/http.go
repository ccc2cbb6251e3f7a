package users

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.dedis.ch/certkv/core/store/certified"
	"golang.org/x/xerrors"
)

const (
	// UsersPath is the path of the users endpoint of the REST API.
	UsersPath = "/api/users"
	// RootKeyPath is the path of the root key endpoint of the REST API.
	RootKeyPath = "/api/rootkey"
)

// SetResponse is the response of an insertion.
type SetResponse struct {
	Index uint64 `json:"index"`
}

// GetResponse is the response of a read. The byte fields are encoded in
// base64.
type GetResponse struct {
	Index       uint64      `json:"index"`
	User        UserMessage `json:"user"`
	Value       []byte      `json:"value"`
	Certificate []byte      `json:"certificate"`
	Witness     []byte      `json:"witness"`
}

// RootKeyResponse is the response of the root key endpoint.
type RootKeyResponse struct {
	RootKey []byte `json:"root_key"`
	Subject []byte `json:"subject"`
}

// ErrorResponse is the response of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewUsersHandler returns the handler of the users endpoint. A POST inserts the
// user of the body, and a GET on UsersPath/{index} returns the certified user.
func NewUsersHandler(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			setUser(s, w, r)
		case http.MethodGet:
			getUser(s, w, r)
		default:
			s.writeError(w, http.StatusMethodNotAllowed,
				xerrors.Errorf("unsupported method '%s'", r.Method))
		}
	}
}

// NewRootKeyHandler returns the handler of the root key endpoint.
func NewRootKeyHandler(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed,
				xerrors.Errorf("unsupported method '%s'", r.Method))
			return
		}

		key, err := s.GetRootKey()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}

		s.writeJSON(w, http.StatusOK, RootKeyResponse{RootKey: key, Subject: s.GetSubject()})
	}
}

func setUser(s *Service, w http.ResponseWriter, r *http.Request) {
	var m UserMessage

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(&m)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, xerrors.Errorf("invalid user: %v", err))
		return
	}

	if m.Name == "" {
		s.writeError(w, http.StatusBadRequest, xerrors.New("invalid user: empty name"))
		return
	}

	index, err := s.SetUser(NewUser(m.Name, m.Age))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, SetResponse{Index: index})
}

func getUser(s *Service, w http.ResponseWriter, r *http.Request) {
	param := strings.TrimPrefix(r.URL.Path, UsersPath+"/")

	index, err := strconv.ParseUint(param, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, xerrors.Errorf("invalid index '%s'", param))
		return
	}

	res, err := s.GetUser(index)
	if xerrors.Is(err, certified.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := GetResponse{
		Index:       res.Index,
		User:        UserMessage{Name: res.User.Name, Age: res.User.Age},
		Value:       res.Value,
		Certificate: res.Certificate,
		Witness:     res.Witness,
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		s.logger.Warn().Err(err).Int("status", status).Msg("couldn't write response")
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
