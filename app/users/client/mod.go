// Package client implements an HTTP client of the users REST API that verifies
// every user it reads.
//
// The client trusts a root key given at creation. When none is given, the key
// is fetched once from the server the first time it is needed, which is only
// acceptable in a test environment.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/rs/zerolog"
	"go.dedis.ch/certkv"
	"go.dedis.ch/certkv/app/users"
	"go.dedis.ch/certkv/core/verify"
	"go.dedis.ch/certkv/internal/tracing"
	"go.dedis.ch/certkv/serde/cbor"
	"golang.org/x/xerrors"
)

const defaultTimeout = 10 * time.Second

// Option is the type of the options to create a client.
type Option func(*Client)

// WithRootKey sets the trusted root key, serialized with the name of its
// algorithm.
func WithRootKey(key []byte) Option {
	return func(c *Client) {
		c.rootKey = key
	}
}

// WithSubject sets the subject of the store. It is required with a root key.
// Without both, the root key and the subject announced by the server are
// trusted.
func WithSubject(subject []byte) Option {
	return func(c *Client) {
		c.subject = subject
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithClock sets the source of the current time of the verifications.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithVerifierOptions sets the options of the verifier.
func WithVerifierOptions(opts ...verify.Option) Option {
	return func(c *Client) {
		c.verifierOpts = opts
	}
}

// WithTracer sets the tracer of the requests. The context of the span of a
// request is sent in its headers.
func WithTracer(tracer opentracing.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// Client is a client of the users REST API.
type Client struct {
	sync.Mutex

	addr         string
	http         *http.Client
	clock        func() time.Time
	rootKey      []byte
	subject      []byte
	verifierOpts []verify.Option
	verifier     *verify.Verifier
	tracer       opentracing.Tracer
	logger       zerolog.Logger
}

// NewClient returns a client of the server at the address, for instance
// http://127.0.0.1:8080.
func NewClient(addr string, opts ...Option) *Client {
	c := &Client{
		addr:   strings.TrimSuffix(addr, "/"),
		http:   &http.Client{Timeout: defaultTimeout},
		clock:  time.Now,
		tracer: opentracing.NoopTracer{},
		logger: certkv.Logger.With().Str("component", "users-client").Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchRootKey returns the root key and the subject announced by the server.
// The answer is not authenticated.
func (c *Client) FetchRootKey() (users.RootKeyResponse, error) {
	var resp users.RootKeyResponse

	err := c.do(http.MethodGet, users.RootKeyPath, nil, http.StatusOK, &resp)
	if err != nil {
		return resp, xerrors.Errorf("couldn't fetch root key: %v", err)
	}

	return resp, nil
}

// SetUser inserts the user and returns its index.
func (c *Client) SetUser(user users.User) (uint64, error) {
	body, err := json.Marshal(users.UserMessage{Name: user.Name, Age: user.Age})
	if err != nil {
		return 0, xerrors.Errorf("couldn't marshal user: %v", err)
	}

	var resp users.SetResponse

	err = c.do(http.MethodPost, users.UsersPath, body, http.StatusCreated, &resp)
	if err != nil {
		return 0, xerrors.Errorf("couldn't set user: %v", err)
	}

	return resp.Index, nil
}

// GetUser reads the user at the index and verifies it against the root key. A
// verification failure is returned as a *verify.Error.
func (c *Client) GetUser(index uint64) (users.User, verify.Verified, error) {
	verifier, subject, err := c.getVerifier()
	if err != nil {
		return users.User{}, verify.Verified{}, err
	}

	var resp users.GetResponse

	err = c.do(http.MethodGet, fmt.Sprintf("%s/%d", users.UsersPath, index), nil, http.StatusOK, &resp)
	if err != nil {
		return users.User{}, verify.Verified{}, xerrors.Errorf("couldn't get user: %v", err)
	}

	req := verify.Request{
		Value:       resp.Value,
		Certificate: resp.Certificate,
		Witness:     resp.Witness,
		Subject:     subject,
		Path:        users.Path(index),
		Now:         c.clock(),
	}

	verified, err := verifier.Verify(req)
	if err != nil {
		return users.User{}, verify.Verified{}, xerrors.Errorf("user %d rejected: %w", index, err)
	}

	// The user is decoded from the verified value, never from the unverified
	// fields of the response.
	user, err := users.NewUserFactory().UserOf(cbor.NewContext(), verified.Value)
	if err != nil {
		return users.User{}, verify.Verified{}, xerrors.Errorf("couldn't decode user: %v", err)
	}

	return user, verified, nil
}

func (c *Client) getVerifier() (*verify.Verifier, []byte, error) {
	c.Lock()
	defer c.Unlock()

	if c.verifier != nil {
		return c.verifier, c.subject, nil
	}

	if c.rootKey != nil && c.subject == nil {
		return nil, nil, xerrors.New("the subject must be set with the root key")
	}

	if c.rootKey == nil {
		resp, err := c.FetchRootKey()
		if err != nil {
			return nil, nil, err
		}

		// Demo bootstrap: the server is trusted for both the key and the
		// subject, and neither is ever refreshed.
		c.logger.Warn().Msg("root key fetched from the server is trusted")
		c.rootKey = resp.RootKey

		if c.subject == nil {
			c.subject = resp.Subject
		}
	}

	verifier, err := verify.NewVerifierFromBytes(c.rootKey, c.verifierOpts...)
	if err != nil {
		return nil, nil, xerrors.Errorf("couldn't create verifier: %v", err)
	}

	c.verifier = &verifier

	return c.verifier, c.subject, nil
}

func (c *Client) do(method, path string, body []byte, status int, v interface{}) error {
	req, err := http.NewRequest(method, c.addr+path, bytes.NewReader(body))
	if err != nil {
		return xerrors.Errorf("couldn't create request: %v", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	span := tracing.StartHTTPClientSpan(c.tracer, req)
	defer span.Finish()

	resp, err := c.http.Do(req)
	if err != nil {
		ext.LogError(span, err)
		return xerrors.Errorf("request failed: %v", err)
	}

	defer resp.Body.Close()

	ext.HTTPStatusCode.Set(span, uint16(resp.StatusCode))

	if resp.StatusCode != status {
		var e users.ErrorResponse

		err = json.NewDecoder(resp.Body).Decode(&e)
		if err != nil {
			c.logger.Warn().Err(err).Int("status", resp.StatusCode).Msg("unreadable error response")
		}

		return xerrors.Errorf("unexpected status %d: %s", resp.StatusCode, e.Error)
	}

	err = json.NewDecoder(resp.Body).Decode(v)
	if err != nil {
		return xerrors.Errorf("couldn't decode response: %v", err)
	}

	return nil
}
