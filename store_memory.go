package memo

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	memdb "github.com/hashicorp/go-memdb"
	"go.mongodb.org/mongo-driver/bson"
)

const memoryTable = "entries"

type memoryEntry struct {
	ID         string
	Collection string
	Digest     string
	Doc        bson.Raw
}

var memorySchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		memoryTable: {
			Name: memoryTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"collection": {
					Name:    "collection",
					Indexer: &memdb.StringFieldIndex{Field: "Collection"},
				},
				"key": {
					Name: "key",
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "Collection"},
							&memdb.StringFieldIndex{Field: "Digest"},
						},
					},
				},
			},
		},
	},
}

type memoryStore struct {
	db       *memdb.MemDB
	database string

	mu      sync.Mutex
	indexes map[string][][]string
}

func newMemoryStore(cfg StoreConfig) (Store, error) {
	db, err := memdb.NewMemDB(memorySchema)
	if err != nil {
		return nil, err
	}
	return &memoryStore{
		db:       db,
		database: cfg.Database,
		indexes:  make(map[string][][]string),
	}, nil
}

func (s *memoryStore) Driver() Driver { return DriverMemory }

func (s *memoryStore) Ready(context.Context) error { return nil }

// EnsureIndex records the index spec; lookups always go through the digest index.
func (s *memoryStore) EnsureIndex(_ context.Context, collection string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.indexes[collection] {
		if equalKeys(existing, keys) {
			return nil
		}
	}
	s.indexes[collection] = append(s.indexes[collection], append([]string(nil), keys...))
	return nil
}

// IndexSpecs returns the distinct index key lists ensured on collection.
func (s *memoryStore) IndexSpecs(collection string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, 0, len(s.indexes[collection]))
	for _, keys := range s.indexes[collection] {
		out = append(out, append([]string(nil), keys...))
	}
	return out
}

func (s *memoryStore) FindOne(_ context.Context, collection string, filter Doc) (bson.Raw, bool, error) {
	digest, err := keyDigest(filter)
	if err != nil {
		return nil, false, err
	}
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(memoryTable, "key", s.scope(collection), digest)
	if err != nil {
		return nil, false, err
	}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		entry := obj.(*memoryEntry)
		ok, err := matchDoc(filter, entry.Doc)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return cloneRaw(entry.Doc), true, nil
		}
	}
	return nil, false, nil
}

func (s *memoryStore) Insert(_ context.Context, collection string, doc Doc) error {
	body, err := bson.Marshal(storeDoc(doc))
	if err != nil {
		return err
	}
	digest, err := keyDigest(doc)
	if err != nil {
		return err
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(memoryTable, &memoryEntry{
		ID:         uuid.NewString(),
		Collection: s.scope(collection),
		Digest:     digest,
		Doc:        body,
	}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *memoryStore) Count(_ context.Context, collection string, filter Doc) (int64, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(memoryTable, "collection", s.scope(collection))
	if err != nil {
		return 0, err
	}
	var n int64
	for obj := it.Next(); obj != nil; obj = it.Next() {
		if len(filter) == 0 {
			n++
			continue
		}
		ok, err := matchDoc(filter, obj.(*memoryEntry).Doc)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) Namespace(collection string) string {
	return fmt.Sprintf("memory/%s.%s", s.database, collection)
}

func (s *memoryStore) Close(context.Context) error { return nil }

func (s *memoryStore) scope(collection string) string {
	return s.database + "." + collection
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
