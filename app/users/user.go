package users

import (
	"go.dedis.ch/certkv/serde"
	"go.dedis.ch/certkv/serde/registry"
	"golang.org/x/xerrors"
)

var userFormats = registry.NewSimpleRegistry()

func init() {
	for _, format := range []serde.Format{serde.FormatJSON, serde.FormatCBOR} {
		RegisterUserFormat(format, userFormat{})
	}
}

// RegisterUserFormat registers the engine for the provided format.
func RegisterUserFormat(f serde.Format, e serde.FormatEngine) {
	userFormats.Register(f, e)
}

// User is the record of a user.
//
// - implements serde.Message
type User struct {
	Name string
	Age  uint64
}

// NewUser returns a new user.
func NewUser(name string, age uint64) User {
	return User{
		Name: name,
		Age:  age,
	}
}

// Serialize implements serde.Message. The record stored in the certified store
// is the CBOR serialization.
func (u User) Serialize(ctx serde.Context) ([]byte, error) {
	format := userFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, u)
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode user: %v", err)
	}

	return data, nil
}

// UserFactory deserializes users.
//
// - implements serde.Factory
type UserFactory struct{}

// NewUserFactory returns a new user factory.
func NewUserFactory() UserFactory {
	return UserFactory{}
}

// Deserialize implements serde.Factory.
func (f UserFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.UserOf(ctx, data)
}

// UserOf returns the user of the data.
func (f UserFactory) UserOf(ctx serde.Context, data []byte) (User, error) {
	format := userFormats.Get(ctx.GetFormat())

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return User{}, xerrors.Errorf("couldn't decode user: %v", err)
	}

	user, ok := msg.(User)
	if !ok {
		return User{}, xerrors.Errorf("invalid user of type '%T'", msg)
	}

	return user, nil
}

// UserMessage is the message of a user in both formats.
type UserMessage struct {
	Name string `json:"name" cbor:"name"`
	Age  uint64 `json:"age" cbor:"age"`
}

// userFormat is the engine of the users, shared by the JSON and the CBOR
// formats.
//
// - implements serde.FormatEngine
type userFormat struct{}

// Encode implements serde.FormatEngine.
func (userFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	user, ok := msg.(User)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	data, err := ctx.Marshal(UserMessage{Name: user.Name, Age: user.Age})
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine.
func (userFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	var m UserMessage

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't unmarshal user: %v", err)
	}

	return NewUser(m.Name, m.Age), nil
}
