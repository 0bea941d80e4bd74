package memo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type mongoStore struct {
	client   *mongo.Client
	db       *mongo.Database
	endpoint string
	database string
	release  func(context.Context) error
}

func newMongoStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	uri, endpoint, err := mongoURI(cfg)
	if err != nil {
		return nil, err
	}
	client, release, err := acquireMongoClient(ctx, uri, cfg.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	return &mongoStore{
		client:   client,
		db:       client.Database(cfg.Database),
		endpoint: endpoint,
		database: cfg.Database,
		release:  release,
	}, nil
}

func mongoURI(cfg StoreConfig) (string, string, error) {
	if cfg.URI == "" {
		endpoint := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		return "mongodb://" + endpoint, endpoint, nil
	}
	parsed, err := url.Parse(cfg.URI)
	if err != nil {
		return "", "", fmt.Errorf("parse mongo uri: %w", err)
	}
	return cfg.URI, parsed.Host, nil
}

func (s *mongoStore) Driver() Driver { return DriverMongo }

func (s *mongoStore) Ready(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *mongoStore) EnsureIndex(ctx context.Context, collection string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	spec := make(bson.D, 0, len(keys))
	for _, k := range keys {
		spec = append(spec, bson.E{Key: k, Value: 1})
	}
	_, err := s.db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: spec})
	return err
}

func (s *mongoStore) FindOne(ctx context.Context, collection string, filter Doc) (bson.Raw, bool, error) {
	raw, err := s.db.Collection(collection).FindOne(ctx, storeDoc(filter)).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cloneRaw(raw), true, nil
}

func (s *mongoStore) Insert(ctx context.Context, collection string, doc Doc) error {
	_, err := s.db.Collection(collection).InsertOne(ctx, storeDoc(doc))
	return err
}

func (s *mongoStore) Count(ctx context.Context, collection string, filter Doc) (int64, error) {
	return s.db.Collection(collection).CountDocuments(ctx, storeDoc(filter))
}

func (s *mongoStore) Namespace(collection string) string {
	return fmt.Sprintf("%s/%s.%s", s.endpoint, s.database, collection)
}

func (s *mongoStore) Close(ctx context.Context) error {
	return s.release(ctx)
}

type pooledMongoClient struct {
	client *mongo.Client
	refs   int
}

// mongoClients shares one client per connection string across stores.
var mongoClients = struct {
	mu      sync.Mutex
	clients map[string]*pooledMongoClient
}{clients: make(map[string]*pooledMongoClient)}

// acquireMongoClient returns the pooled client for uri and a release func that
// disconnects it once the last holder lets go.
func acquireMongoClient(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, func(context.Context) error, error) {
	mongoClients.mu.Lock()
	defer mongoClients.mu.Unlock()

	pooled, ok := mongoClients.clients[uri]
	if !ok {
		opts := options.Client().
			ApplyURI(uri).
			SetConnectTimeout(timeout).
			SetServerSelectionTimeout(timeout)
		client, err := mongo.Connect(ctx, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		pooled = &pooledMongoClient{client: client}
		mongoClients.clients[uri] = pooled
	}
	pooled.refs++

	var once sync.Once
	release := func(ctx context.Context) error {
		var err error
		once.Do(func() {
			mongoClients.mu.Lock()
			defer mongoClients.mu.Unlock()
			pooled.refs--
			if pooled.refs > 0 {
				return
			}
			delete(mongoClients.clients, uri)
			err = pooled.client.Disconnect(ctx)
		})
		return err
	}
	return pooled.client, release, nil
}
