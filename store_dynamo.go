package memo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// DynamoAPI captures the subset of DynamoDB client methods used by the store.
type DynamoAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// dynamoStore partitions items by collection ("c") and sorts them by
// "<digest>#<uuid>" ("id") so a key lookup is a begins_with range query.
type dynamoStore struct {
	client   DynamoAPI
	table    string
	database string
}

const (
	dynamoEnsureTableMaxAttempts = 20
	dynamoEnsureTableRetryDelay  = 150 * time.Millisecond
)

func newDynamoStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	if cfg.DynamoClient == nil {
		client, err := newDynamoClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		cfg.DynamoClient = client
	}
	if err := ensureDynamoTable(ctx, cfg.DynamoClient, cfg.DynamoTable); err != nil {
		return nil, err
	}
	return &dynamoStore{
		client:   cfg.DynamoClient,
		table:    cfg.DynamoTable,
		database: cfg.Database,
	}, nil
}

func newDynamoClient(ctx context.Context, cfg StoreConfig) (*dynamodb.Client, error) {
	awsCfg, err := dynamoAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(awsCfg), nil
}

// dynamoAWSConfig uses the default credential chain. A custom endpoint is
// assumed to be DynamoDB Local, which accepts any static credentials.
func dynamoAWSConfig(ctx context.Context, cfg StoreConfig) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.DynamoRegion)}
	if cfg.DynamoEndpoint != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	if cfg.DynamoEndpoint != "" {
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: cfg.DynamoEndpoint, HostnameImmutable: true}, nil
		})
	}
	return awsCfg, nil
}

func (s *dynamoStore) Driver() Driver { return DriverDynamo }

func (s *dynamoStore) Ready(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	return err
}

// EnsureIndex is a no-op: the table's sort key already addresses key digests.
func (s *dynamoStore) EnsureIndex(context.Context, string, []string) error { return nil }

func (s *dynamoStore) FindOne(ctx context.Context, collection string, filter Doc) (bson.Raw, bool, error) {
	digest, err := keyDigest(filter)
	if err != nil {
		return nil, false, err
	}
	var found bson.Raw
	err = s.query(ctx, collection, digest+"#", func(doc bson.Raw) (bool, error) {
		ok, err := matchDoc(filter, doc)
		if err != nil || !ok {
			return true, err
		}
		found = cloneRaw(doc)
		return false, nil
	})
	if err != nil {
		return nil, false, err
	}
	return found, found != nil, nil
}

func (s *dynamoStore) Insert(ctx context.Context, collection string, doc Doc) error {
	body, err := bson.Marshal(storeDoc(doc))
	if err != nil {
		return err
	}
	digest, err := keyDigest(doc)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"c":   &types.AttributeValueMemberS{Value: s.scope(collection)},
			"id":  &types.AttributeValueMemberS{Value: digest + "#" + uuid.NewString()},
			"doc": &types.AttributeValueMemberB{Value: body},
		},
	})
	return err
}

func (s *dynamoStore) Count(ctx context.Context, collection string, filter Doc) (int64, error) {
	var n int64
	err := s.query(ctx, collection, "", func(doc bson.Raw) (bool, error) {
		if len(filter) == 0 {
			n++
			return true, nil
		}
		ok, err := matchDoc(filter, doc)
		if err != nil {
			return false, err
		}
		if ok {
			n++
		}
		return true, nil
	})
	return n, err
}

func (s *dynamoStore) Namespace(collection string) string {
	return fmt.Sprintf("dynamodb/%s/%s", s.table, s.scope(collection))
}

func (s *dynamoStore) Close(context.Context) error { return nil }

func (s *dynamoStore) scope(collection string) string {
	return s.database + "." + collection
}

// query pages through the items of collection whose sort key starts with
// idPrefix, calling visit until it returns false.
func (s *dynamoStore) query(ctx context.Context, collection, idPrefix string, visit func(bson.Raw) (bool, error)) error {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    aws.String("c = :c"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":c": &types.AttributeValueMemberS{Value: s.scope(collection)}},
	}
	if idPrefix != "" {
		input.KeyConditionExpression = aws.String("c = :c AND begins_with(id, :p)")
		input.ExpressionAttributeValues[":p"] = &types.AttributeValueMemberS{Value: idPrefix}
	}
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return err
		}
		for _, item := range out.Items {
			body, ok := item["doc"].(*types.AttributeValueMemberB)
			if !ok {
				return errors.New("dynamodb item missing binary document")
			}
			more, err := visit(bson.Raw(body.Value))
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func ensureDynamoTable(ctx context.Context, client DynamoAPI, table string) error {
	var lastErr error
	for attempt := 1; attempt <= dynamoEnsureTableMaxAttempts; attempt++ {
		_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
		if err == nil {
			return nil
		}

		var rnfe *types.ResourceNotFoundException
		if errors.As(err, &rnfe) {
			_, createErr := client.CreateTable(ctx, &dynamodb.CreateTableInput{
				TableName: aws.String(table),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("c"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("id"), KeyType: types.KeyTypeRange},
				},
				AttributeDefinitions: []types.AttributeDefinition{
					{AttributeName: aws.String("c"), AttributeType: types.ScalarAttributeTypeS},
					{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
				},
				BillingMode: types.BillingModePayPerRequest,
			})
			if createErr == nil {
				return nil
			}
			var inUse *types.ResourceInUseException
			if errors.As(createErr, &inUse) {
				return nil
			}
			if !isDynamoStartupRetryable(createErr) {
				return createErr
			}
			lastErr = createErr
		} else {
			if !isDynamoStartupRetryable(err) {
				return err
			}
			lastErr = err
		}

		if attempt == dynamoEnsureTableMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dynamoEnsureTableRetryDelay):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("dynamo table ensure failed")
	}
	return fmt.Errorf("ensure dynamo table %q: %w", table, lastErr)
}

func isDynamoStartupRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "request send failed") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "eof")
}
