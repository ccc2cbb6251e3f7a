// Package users implements the service of the certified user records.
//
// A user is stored in the "user" collection of the certified store under the
// index assigned at insertion. A read returns the record with the certificate
// of the authority and a witness of the path ["user", index], so that a client
// can verify the record without trusting the service.
//
// When a journal is provided, every insertion is appended to it and the
// journal is replayed on creation so that the indexes and the root digest
// survive a restart.
package users

import (
	"sync"

	"github.com/rs/zerolog"
	"go.dedis.ch/certkv"
	"go.dedis.ch/certkv/core/certification"
	"go.dedis.ch/certkv/core/store/certified"
	"go.dedis.ch/certkv/core/store/kv"
	"go.dedis.ch/certkv/serde"
	"go.dedis.ch/certkv/serde/cbor"
	"golang.org/x/xerrors"

	// Witnesses are served in CBOR.
	_ "go.dedis.ch/certkv/core/hashtree/cbor"
)

// Collection is the name of the collection of the users in the store.
var Collection = []byte("user")

// Path returns the path of the user in the store.
func Path(index uint64) [][]byte {
	return [][]byte{Collection, certified.EncodeIndex(index)}
}

// CertifiedUser is a user with the proofs of its presence in the store.
type CertifiedUser struct {
	Index uint64
	User  User

	// Value is the encoded record as stored.
	Value []byte
	// Certificate is the CBOR certificate of the authority.
	Certificate []byte
	// Witness is the CBOR witness of the path of the user.
	Witness []byte
}

// Option is the type of the options to create a service.
type Option func(*Service)

// WithJournal makes the service persist the insertions in the journal.
func WithJournal(j *kv.Journal) Option {
	return func(s *Service) {
		s.journal = j
	}
}

// WithLogger sets the logger of the service.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// Service inserts and reads the users of a certified store.
type Service struct {
	sync.RWMutex

	store     *certified.Store
	authority certification.Authority
	subject   []byte
	journal   *kv.Journal
	context   serde.Context
	userFac   UserFactory
	logger    zerolog.Logger
}

// NewService creates a service on top of the store. The store must publish its
// root to the authority as the certified data of the subject.
func NewService(store *certified.Store, authority certification.Authority,
	subject []byte, opts ...Option) (*Service, error) {

	s := &Service{
		store:     store,
		authority: authority,
		subject:   subject,
		context:   cbor.NewContext(),
		userFac:   NewUserFactory(),
		logger:    certkv.Logger.With().Str("component", "users").Logger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.journal != nil {
		err := s.journal.Replay(func(e kv.Entry) error {
			return s.store.Set(e.Top, e.Key, e.Value)
		})
		if err != nil {
			return nil, xerrors.Errorf("couldn't replay journal: %v", err)
		}

		s.logger.Info().
			Uint64("entries", s.journal.Len()).
			Str("root", s.store.RootDigest().String()).
			Msg("journal replayed")
	}

	return s, nil
}

// GetSubject returns the subject of the store.
func (s *Service) GetSubject() []byte {
	return append([]byte{}, s.subject...)
}

// GetRootKey returns the serialized root key of the authority.
func (s *Service) GetRootKey() ([]byte, error) {
	return s.authority.GetRootKey()
}

// Len returns the number of users.
func (s *Service) Len() int {
	return s.store.Snapshot().Len()
}

// SetUser inserts the user and returns its index.
func (s *Service) SetUser(user User) (uint64, error) {
	data, err := user.Serialize(s.context)
	if err != nil {
		return 0, xerrors.Errorf("couldn't encode user: %v", err)
	}

	s.Lock()
	defer s.Unlock()

	var commit certified.Commit
	if s.journal != nil {
		commit = func(key, value []byte) error {
			return s.journal.Append(kv.Entry{Top: Collection, Key: key, Value: value})
		}
	}

	// The record is journaled before it becomes visible so that its index is
	// never given to another user after a restart.
	index, err := s.store.InsertAndCommit(Collection, data, commit)
	if err != nil {
		return 0, xerrors.Errorf("couldn't insert user: %v", err)
	}

	s.logger.Info().
		Uint64("index", index).
		Str("root", s.store.RootDigest().String()).
		Msg("user inserted")

	return index, nil
}

// GetUser returns the user at the index with its certificate and witness. It
// returns an error wrapping certified.ErrNotFound when the index is unknown.
func (s *Service) GetUser(index uint64) (CertifiedUser, error) {
	// The certificate must be fetched before a writer publishes a new root.
	s.RLock()
	defer s.RUnlock()

	snap := s.store.Snapshot()
	path := Path(index)

	value, err := snap.Get(path[0], path[1])
	if err != nil {
		return CertifiedUser{}, xerrors.Errorf("couldn't get user %d: %w", index, err)
	}

	user, err := s.userFac.UserOf(s.context, value)
	if err != nil {
		return CertifiedUser{}, xerrors.Errorf("couldn't decode user %d: %v", index, err)
	}

	witness, err := snap.Witness(path)
	if err != nil {
		return CertifiedUser{}, xerrors.Errorf("couldn't build witness: %v", err)
	}

	wdata, err := witness.Serialize(s.context)
	if err != nil {
		return CertifiedUser{}, xerrors.Errorf("couldn't serialize witness: %v", err)
	}

	cert, err := s.authority.FetchCertificate(s.subject)
	if err != nil {
		return CertifiedUser{}, xerrors.Errorf("couldn't fetch certificate: %v", err)
	}

	res := CertifiedUser{
		Index:       index,
		User:        user,
		Value:       value,
		Certificate: cert,
		Witness:     wdata,
	}

	return res, nil
}
