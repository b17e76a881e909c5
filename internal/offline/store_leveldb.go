package offline

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// levelStorage keeps every named store in a single leveldb database.
// Key layout:
//
//	s:<name>        store marker, value is the creation time
//	e:<name>\x00<key>  gob-encoded CacheEntry
//
// Store names never contain NUL, so the separator cannot collide with a
// store whose name prefixes another.
type levelStorage struct {
	db *leveldb.DB
}

func openLevelStorage(dir string) (*levelStorage, error) {
	db, err := leveldb.OpenFile(filepath.Join(dir, "cache"), nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &levelStorage{db: db}, nil
}

func (l *levelStorage) Close() error { return l.db.Close() }

func (l *levelStorage) Store(name string) Store {
	// Materialize the name so activation and introspection can see stores
	// that exist but have no entries yet.
	_ = l.db.Put(markerKey(name), []byte(strconv.FormatInt(time.Now().Unix(), 10)), nil)
	return &levelStore{db: l.db, name: name}
}

func (l *levelStorage) Names() ([]string, error) {
	it := l.db.NewIterator(util.BytesPrefix([]byte("s:")), nil)
	defer it.Release()

	var names []string
	for it.Next() {
		names = append(names, strings.TrimPrefix(string(it.Key()), "s:"))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("scan store names: %w", err)
	}
	return names, nil
}

func (l *levelStorage) Delete(name string) error {
	batch := new(leveldb.Batch)

	it := l.db.NewIterator(util.BytesPrefix(entryPrefix(name)), nil)
	for it.Next() {
		key := make([]byte, len(it.Key()))
		copy(key, it.Key())
		batch.Delete(key)
	}
	err := it.Error()
	it.Release()
	if err != nil {
		return fmt.Errorf("scan store %s: %w", name, err)
	}

	batch.Delete(markerKey(name))
	if err := l.db.Write(batch, nil); err != nil {
		return fmt.Errorf("delete store %s: %w", name, err)
	}
	return nil
}

func markerKey(name string) []byte { return []byte("s:" + name) }

func entryPrefix(name string) []byte { return []byte("e:" + name + "\x00") }

type levelStore struct {
	db   *leveldb.DB
	name string
}

func (s *levelStore) entryKey(key string) []byte {
	return append(entryPrefix(s.name), key...)
}

func (s *levelStore) Get(key string) (CacheEntry, error) {
	b, err := s.db.Get(s.entryKey(key), nil)
	if err != nil {
		return CacheEntry{}, mapLevelErr(err)
	}
	var ent CacheEntry
	if err := decodeGob(b, &ent); err != nil {
		return CacheEntry{}, fmt.Errorf("decode entry: %w", err)
	}
	return ent, nil
}

func (s *levelStore) Put(key string, ent CacheEntry) error {
	b, err := encodeGob(ent)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := s.db.Put(s.entryKey(key), b, nil); err != nil {
		return mapLevelErr(err)
	}
	return nil
}

func (s *levelStore) Info() (StoreInfo, error) {
	info := StoreInfo{Name: s.name}
	it := s.db.NewIterator(util.BytesPrefix(entryPrefix(s.name)), nil)
	defer it.Release()
	for it.Next() {
		info.Entries++
		info.Bytes += int64(len(it.Value()))
	}
	if err := it.Error(); err != nil {
		return StoreInfo{}, fmt.Errorf("scan store %s: %w", s.name, err)
	}
	return info, nil
}

func mapLevelErr(err error) error {
	switch err {
	case leveldb.ErrNotFound:
		return ErrNotFound
	case leveldb.ErrClosed:
		return ErrStoreClosed
	default:
		return err
	}
}
