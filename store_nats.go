package memo

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.mongodb.org/mongo-driver/bson"
)

const natsAppendMaxAttempts = 16

// NATSKeyValue captures the subset of nats.KeyValue used by the store.
type NATSKeyValue interface {
	Get(key string) (nats.KeyValueEntry, error)
	Create(key string, value []byte) (uint64, error)
	Update(key string, value []byte, last uint64) (uint64, error)
	ListKeys(opts ...nats.WatchOpt) (nats.KeyLister, error)
}

// natsBucket is the value stored under one key digest.
type natsBucket struct {
	Docs []bson.Raw `bson:"docs"`
}

type natsStore struct {
	kv       NATSKeyValue
	prefix   string
	database string
}

var errNATSUnavailable = errors.New("nats memo key-value unavailable")

func newNATSStore(kv NATSKeyValue, cfg StoreConfig) Store {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &natsStore{kv: kv, prefix: prefix, database: cfg.Database}
}

func (s *natsStore) Driver() Driver { return DriverNATS }

func (s *natsStore) Ready(context.Context) error {
	if s.kv == nil {
		return errNATSUnavailable
	}
	return nil
}

// EnsureIndex is a no-op: keys are already addressed by digest.
func (s *natsStore) EnsureIndex(context.Context, string, []string) error { return nil }

func (s *natsStore) FindOne(_ context.Context, collection string, filter Doc) (bson.Raw, bool, error) {
	if s.kv == nil {
		return nil, false, errNATSUnavailable
	}
	digest, err := keyDigest(filter)
	if err != nil {
		return nil, false, err
	}
	bucket, _, err := s.load(s.bucketKey(collection, digest))
	if err != nil {
		return nil, false, err
	}
	for _, doc := range bucket.Docs {
		ok, err := matchDoc(filter, doc)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return cloneRaw(doc), true, nil
		}
	}
	return nil, false, nil
}

// Insert appends doc to its digest bucket with a revision-checked write,
// retrying when a concurrent writer wins the race.
func (s *natsStore) Insert(_ context.Context, collection string, doc Doc) error {
	if s.kv == nil {
		return errNATSUnavailable
	}
	body, err := bson.Marshal(storeDoc(doc))
	if err != nil {
		return err
	}
	digest, err := keyDigest(doc)
	if err != nil {
		return err
	}
	key := s.bucketKey(collection, digest)
	for attempt := 0; attempt < natsAppendMaxAttempts; attempt++ {
		bucket, revision, err := s.load(key)
		if err != nil {
			return err
		}
		bucket.Docs = append(bucket.Docs, body)
		encoded, err := bson.Marshal(bucket)
		if err != nil {
			return fmt.Errorf("encode nats bucket: %w", err)
		}
		if revision == 0 {
			_, err = s.kv.Create(key, encoded)
		} else {
			_, err = s.kv.Update(key, encoded, revision)
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, nats.ErrKeyExists) || isNATSMiss(err) {
			continue
		}
		return err
	}
	return errors.New("nats insert exceeded retry limit")
}

func (s *natsStore) Count(_ context.Context, collection string, filter Doc) (int64, error) {
	if s.kv == nil {
		return 0, errNATSUnavailable
	}
	lister, err := s.kv.ListKeys(nats.IgnoreDeletes())
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return 0, nil
		}
		return 0, err
	}
	defer func() { _ = lister.Stop() }()

	scopePrefix := s.scopePrefix(collection)
	var n int64
	for key := range lister.Keys() {
		if !strings.HasPrefix(key, scopePrefix) {
			continue
		}
		bucket, _, err := s.load(key)
		if err != nil {
			return 0, err
		}
		for _, doc := range bucket.Docs {
			if len(filter) == 0 {
				n++
				continue
			}
			ok, err := matchDoc(filter, doc)
			if err != nil {
				return 0, err
			}
			if ok {
				n++
			}
		}
	}
	for err := range lister.Error() {
		if err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (s *natsStore) Namespace(collection string) string {
	return fmt.Sprintf("nats/%s/%s.%s", s.prefix, s.database, collection)
}

func (s *natsStore) Close(context.Context) error { return nil }

// load returns the bucket at key and its revision; a missing key yields revision 0.
func (s *natsStore) load(key string) (natsBucket, uint64, error) {
	entry, err := s.kv.Get(key)
	if isNATSMiss(err) {
		return natsBucket{}, 0, nil
	}
	if err != nil {
		return natsBucket{}, 0, err
	}
	if entry.Operation() == nats.KeyValueDelete || entry.Operation() == nats.KeyValuePurge {
		return natsBucket{}, entry.Revision(), nil
	}
	var bucket natsBucket
	if err := bson.Unmarshal(entry.Value(), &bucket); err != nil {
		return natsBucket{}, 0, fmt.Errorf("decode nats bucket: %w", err)
	}
	return bucket, entry.Revision(), nil
}

func (s *natsStore) bucketKey(collection, digest string) string {
	return s.scopePrefix(collection) + digest
}

func (s *natsStore) scopePrefix(collection string) string {
	return encodeNATSKeyPart(s.prefix) + "." + encodeNATSKeyPart(s.database) + "." + encodeNATSKeyPart(collection) + "."
}

func isNATSMiss(err error) bool {
	return errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted)
}

func encodeNATSKeyPart(part string) string {
	if part == "" {
		return "_"
	}
	return base64.RawURLEncoding.EncodeToString([]byte(part))
}
