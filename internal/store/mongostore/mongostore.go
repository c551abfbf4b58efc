// Package mongostore is an alternative Store backend for operators who
// want tosses and wallets in a shared database rather than flat files.
// Every record is persisted as an opaque JSON blob keyed by id, exactly
// like jsonstore, so it reuses the same encoding the engine already
// produces.
package mongostore

import (
	"encoding/json"
	"strings"

	"github.com/decred/slog"
	"github.com/tossd/tossd/internal/store"
	"github.com/tossd/tossd/internal/tosserr"
	mgo "gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"
)

var log = slog.Disabled

// UseLogger directs package logging to logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

type doc struct {
	ID      string `bson:"_id"`
	Value   []byte `bson:"value"`
	Address string `bson:"address,omitempty"`
}

type walletRecord struct {
	Address string `json:"address"`
}

// Store is a Store backend persisting each collection to its own MongoDB
// collection in database dbName.
type Store struct {
	session *mgo.Session
	dbName  string
}

// Dial connects to the MongoDB replica set at uri and returns a Store
// operating on database dbName.
func Dial(uri, dbName string) (*Store, error) {
	session, err := mgo.Dial(uri)
	if err != nil {
		return nil, err
	}
	session.SetMode(mgo.Monotonic, true)

	s := &Store{session: session, dbName: dbName}
	if err := s.coll(store.Wallets).EnsureIndex(mgo.Index{
		Key:    []string{"address"},
		Sparse: true,
	}); err != nil {
		session.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) coll(c store.Collection) *mgo.Collection {
	return s.session.DB(s.dbName).C(string(c))
}

// addressOf extracts the "address" field from a wallet JSON blob, keeping
// Put symmetric with jsonstore's behavior of indexing on write.
func addressOf(value []byte) string {
	var w walletRecord
	if err := json.Unmarshal(value, &w); err != nil {
		return ""
	}
	return w.Address
}

// Put implements store.Store.
func (s *Store) Put(collection store.Collection, id string, value []byte) error {
	d := doc{ID: id, Value: value}
	if collection == store.Wallets {
		d.Address = strings.ToLower(addressOf(value))
	}
	_, err := s.coll(collection).UpsertId(id, d)
	return err
}

// Get implements store.Store.
func (s *Store) Get(collection store.Collection, id string) ([]byte, error) {
	var d doc
	err := s.coll(collection).FindId(id).One(&d)
	if err == mgo.ErrNotFound {
		return nil, tosserr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d.Value, nil
}

// Delete implements store.Store.
func (s *Store) Delete(collection store.Collection, id string) error {
	err := s.coll(collection).RemoveId(id)
	if err != nil && err != mgo.ErrNotFound {
		return err
	}
	return nil
}

// List implements store.Store.
func (s *Store) List(collection store.Collection) ([][]byte, error) {
	var docs []doc
	if err := s.coll(collection).Find(nil).All(&docs); err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Value)
	}
	return out, nil
}

// FindWalletByAddress implements store.Store.
func (s *Store) FindWalletByAddress(address string) (string, []byte, error) {
	var d doc
	err := s.coll(store.Wallets).Find(bson.M{"address": strings.ToLower(address)}).One(&d)
	if err == mgo.ErrNotFound {
		return "", nil, tosserr.ErrNotFound
	}
	if err != nil {
		return "", nil, err
	}
	return d.ID, d.Value, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.session.Close()
	return nil
}
