// Package jsonstore is the reference Store backend: one JSON file per
// record under .data/<collection>/<id>-<network>.json, written atomically
// via a temp-file-plus-rename so a crash mid-write never corrupts the
// previous value — the same durability idiom channeldb relies on for its
// bbolt commits, adapted here to flat files since no embedded KV library in
// the pack offers a plain JSON-friendly API.
package jsonstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/decred/slog"
	"github.com/tossd/tossd/internal/store"
	"github.com/tossd/tossd/internal/tosserr"
	"golang.org/x/sys/unix"
)

var log = slog.Disabled

// UseLogger directs package logging to logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

type walletRecord struct {
	Address string `json:"address"`
}

// Store is a jsonstore.Store: flat JSON files on local disk, guarded by an
// advisory flock for cross-process safety and an in-process RWMutex for the
// address index.
type Store struct {
	baseDir string
	network string

	mu           sync.RWMutex
	addressIndex map[string]string // lower(address) -> wallet id
}

// New opens (creating if necessary) a jsonstore rooted at baseDir, tagging
// every path with network (e.g. "dev"), and rebuilds the in-memory
// address index by scanning existing wallet records.
func New(baseDir, network string) (*Store, error) {
	s := &Store{
		baseDir:      baseDir,
		network:      network,
		addressIndex: make(map[string]string),
	}
	for _, c := range []store.Collection{store.Tosses, store.Wallets} {
		if err := os.MkdirAll(s.dir(c), 0o750); err != nil {
			return nil, err
		}
	}
	if err := s.rebuildAddressIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) dir(c store.Collection) string {
	return filepath.Join(s.baseDir, string(c))
}

func (s *Store) path(c store.Collection, id string) string {
	return filepath.Join(s.dir(c), id+"-"+s.network+".json")
}

func (s *Store) rebuildAddressIndex() error {
	entries, err := os.ReadDir(s.dir(store.Wallets))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir(store.Wallets), e.Name()))
		if err != nil {
			log.Warnf("jsonstore: skipping unreadable wallet file %s: %v", e.Name(), err)
			continue
		}
		var w walletRecord
		if err := json.Unmarshal(raw, &w); err != nil {
			log.Warnf("jsonstore: skipping malformed wallet file %s: %v", e.Name(), err)
			continue
		}
		id := strings.TrimSuffix(strings.TrimSuffix(e.Name(), ".json"), "-"+s.network)
		if w.Address != "" {
			s.addressIndex[strings.ToLower(w.Address)] = id
		}
	}
	return nil
}

// Put implements store.Store.
func (s *Store) Put(collection store.Collection, id string, value []byte) error {
	path := s.path(collection, id)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(value); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	unix.Flock(int(f.Fd()), unix.LOCK_UN)
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}

	if collection == store.Wallets {
		var w walletRecord
		if err := json.Unmarshal(value, &w); err == nil && w.Address != "" {
			s.mu.Lock()
			s.addressIndex[strings.ToLower(w.Address)] = id
			s.mu.Unlock()
		}
	}
	return nil
}

// Get implements store.Store.
func (s *Store) Get(collection store.Collection, id string) ([]byte, error) {
	raw, err := os.ReadFile(s.path(collection, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tosserr.ErrNotFound
		}
		return nil, err
	}
	return raw, nil
}

// Delete implements store.Store.
func (s *Store) Delete(collection store.Collection, id string) error {
	err := os.Remove(s.path(collection, id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	if collection == store.Wallets {
		s.mu.Lock()
		for addr, wid := range s.addressIndex {
			if wid == id {
				delete(s.addressIndex, addr)
			}
		}
		s.mu.Unlock()
	}
	return nil
}

// List implements store.Store.
func (s *Store) List(collection store.Collection) ([][]byte, error) {
	entries, err := os.ReadDir(s.dir(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out [][]byte
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir(collection), e.Name()))
		if err != nil {
			log.Warnf("jsonstore: skipping unreadable file %s: %v", e.Name(), err)
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}

// FindWalletByAddress implements store.Store.
func (s *Store) FindWalletByAddress(address string) (string, []byte, error) {
	s.mu.RLock()
	id, ok := s.addressIndex[strings.ToLower(address)]
	s.mu.RUnlock()
	if !ok {
		return "", nil, tosserr.ErrNotFound
	}

	raw, err := s.Get(store.Wallets, id)
	if err != nil {
		return "", nil, err
	}
	return id, raw, nil
}

// Close implements store.Store; jsonstore holds no long-lived handles.
func (s *Store) Close() error {
	return nil
}
