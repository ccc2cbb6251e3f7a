package kv

import (
	"encoding/binary"
	"sync"

	"go.dedis.ch/certkv/serde/cbor"
	"golang.org/x/xerrors"
)

var (
	lengthKey   = []byte("length")
	entryPrefix = []byte("entry/")
)

// Entry is a mutation of the certified store: the value of the key in the
// collection.
type Entry struct {
	_     struct{} `cbor:",toarray"`
	Top   []byte
	Key   []byte
	Value []byte
}

// Journal is an append-only log of entries in a bucket of the database. Each
// entry is stored under its big-endian sequence number, next to the length of
// the journal which is updated in the same transaction.
type Journal struct {
	sync.Mutex

	db     DB
	bucket []byte
	next   uint64
}

// NewJournal opens the journal stored in the bucket of the database.
func NewJournal(db DB, bucket string) (*Journal, error) {
	j := &Journal{
		db:     db,
		bucket: []byte(bucket),
	}

	err := db.View(func(tx ReadableTx) error {
		b := tx.GetBucket(j.bucket)
		if b == nil {
			return nil
		}

		raw := b.Get(lengthKey)
		if raw == nil {
			return nil
		}

		if len(raw) != 8 {
			return xerrors.Errorf("invalid length of %d bytes", len(raw))
		}

		j.next = binary.BigEndian.Uint64(raw)

		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("couldn't read journal: %v", err)
	}

	return j, nil
}

// Len returns the number of entries of the journal.
func (j *Journal) Len() uint64 {
	j.Lock()
	defer j.Unlock()

	return j.next
}

// Append writes the entry at the end of the journal.
func (j *Journal) Append(e Entry) error {
	j.Lock()
	defer j.Unlock()

	data, err := cbor.Marshal(e)
	if err != nil {
		return xerrors.Errorf("couldn't marshal entry: %v", err)
	}

	length := make([]byte, 8)
	binary.BigEndian.PutUint64(length, j.next+1)

	err = j.db.Update(func(tx WritableTx) error {
		b, err := tx.GetBucketOrCreate(j.bucket)
		if err != nil {
			return err
		}

		err = b.Set(entryKey(j.next), data)
		if err != nil {
			return err
		}

		return b.Set(lengthKey, length)
	})
	if err != nil {
		return xerrors.Errorf("couldn't write entry: %v", err)
	}

	j.next++

	return nil
}

// Replay calls the function for every entry in the order they were appended.
// It stops at the first error.
func (j *Journal) Replay(fn func(Entry) error) error {
	return j.db.View(func(tx ReadableTx) error {
		b := tx.GetBucket(j.bucket)
		if b == nil {
			return nil
		}

		return b.Scan(entryPrefix, func(k, v []byte) error {
			if len(k) != len(entryPrefix)+8 {
				return xerrors.Errorf("invalid entry key %#x", k)
			}

			var e Entry

			err := cbor.Unmarshal(v, &e)
			if err != nil {
				seq := binary.BigEndian.Uint64(k[len(entryPrefix):])
				return xerrors.Errorf("entry %d is corrupted: %v", seq, err)
			}

			return fn(e)
		})
	})
}

func entryKey(seq uint64) []byte {
	key := make([]byte, len(entryPrefix)+8)
	copy(key, entryPrefix)
	binary.BigEndian.PutUint64(key[len(entryPrefix):], seq)

	return key
}
