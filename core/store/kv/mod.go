// Package kv persists the mutations of the certified store in an embedded
// key/value database.
//
// The database is abstracted by a few interfaces implemented on top of bbolt
// (https://github.com/etcd-io/bbolt). A Journal stores the entries of the
// store in a bucket so that a restarted node rebuilds the same tree.
package kv

// Bucket is a namespace of keys of the database, sorted in byte order.
type Bucket interface {
	// Get returns the value of the key, or nil if it is not set.
	Get(key []byte) []byte

	// Set writes the value of the key.
	Set(key, value []byte) error

	// Scan calls the function for every key with the prefix, in byte order.
	// It stops and returns the first error of the function.
	Scan(prefix []byte, fn func(k, v []byte) error) error
}

// ReadableTx is a read-only transaction. It sees a consistent snapshot of
// the database.
type ReadableTx interface {
	// GetBucket returns the bucket of the name, or nil if it does not exist.
	GetBucket(name []byte) Bucket
}

// WritableTx is a transaction that can write. Its writes are visible to the
// others once it commits.
type WritableTx interface {
	ReadableTx

	// GetBucketOrCreate returns the bucket of the name and creates it if
	// necessary.
	GetBucketOrCreate(name []byte) (Bucket, error)
}

// DB is a key/value database.
type DB interface {
	// View runs the function in a read-only transaction.
	View(fn func(ReadableTx) error) error

	// Update runs the function in a transaction that commits only if the
	// function returns no error.
	Update(fn func(WritableTx) error) error

	// Close releases the database. Any later transaction fails.
	Close() error
}
