// Package dynamodb implements the document store over DynamoDB BatchGetItem.
// Each item holds the record key and the full document body as JSON.
package dynamodb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"bibdata/domain/core/entities"
	pkgerrors "bibdata/pkg/errors"
)

// attrKey is the item partition key attribute
const attrKey = "key"

// batchGetLimit is the BatchGetItem service limit
const batchGetLimit = 100

// BatchConfig contains retry settings for batch operations
type BatchConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor int
	TableName     string
}

// DefaultBatchConfig returns sensible defaults for batch operations
func DefaultBatchConfig(tableName string) BatchConfig {
	return BatchConfig{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		BackoffFactor: 2,
		TableName:     tableName,
	}
}

// DocumentStore fetches record bodies by key via BatchGetItem
type DocumentStore struct {
	client *dynamodb.Client
	config BatchConfig
	logger *zap.Logger
}

// NewDocumentStore creates a document store over the given client
func NewDocumentStore(client *dynamodb.Client, config BatchConfig, logger *zap.Logger) *DocumentStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentStore{
		client: client,
		config: config,
		logger: logger,
	}
}

// FetchMany returns whichever of the requested keys exist. Unprocessed keys
// are retried with backoff up to the configured limit; keys still
// unprocessed after that are reported as a failure rather than silently
// dropped, since the caller would otherwise cache their absence.
func (s *DocumentStore) FetchMany(ctx context.Context, keys []string) ([]*entities.Record, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	records := make([]*entities.Record, 0, len(keys))
	for start := 0; start < len(keys); start += batchGetLimit {
		end := start + batchGetLimit
		if end > len(keys) {
			end = len(keys)
		}
		chunk, err := s.fetchChunkWithRetry(ctx, keys[start:end])
		if err != nil {
			return nil, err
		}
		records = append(records, chunk...)
	}

	s.logger.Debug("Fetched documents",
		zap.Int("requested", len(keys)),
		zap.Int("returned", len(records)))
	return records, nil
}

// fetchChunkWithRetry issues one BatchGetItem and retries unprocessed keys
func (s *DocumentStore) fetchChunkWithRetry(ctx context.Context, keys []string) ([]*entities.Record, error) {
	records := make([]*entities.Record, 0, len(keys))
	pending := s.keysAndAttributes(keys)
	retryDelay := s.config.InitialDelay

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Debug("Retrying unprocessed keys",
				zap.Int("attempt", attempt),
				zap.Int("remaining", len(pending.Keys)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
			retryDelay *= time.Duration(s.config.BackoffFactor)
		}

		out, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: map[string]types.KeysAndAttributes{
				s.config.TableName: *pending,
			},
		})
		if err != nil {
			return nil, pkgerrors.NewUnavailable("batch get documents", err)
		}

		for _, item := range out.Responses[s.config.TableName] {
			record, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			records = append(records, record)
		}

		unprocessed, ok := out.UnprocessedKeys[s.config.TableName]
		if !ok || len(unprocessed.Keys) == 0 {
			return records, nil
		}
		pending = &unprocessed
	}

	return nil, pkgerrors.NewUnavailable("batch get documents: unprocessed keys remain after retries", nil)
}

// keysAndAttributes builds the request key list for a chunk
func (s *DocumentStore) keysAndAttributes(keys []string) *types.KeysAndAttributes {
	requestKeys := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, key := range keys {
		requestKeys = append(requestKeys, map[string]types.AttributeValue{
			attrKey: &types.AttributeValueMemberS{Value: key},
		})
	}
	return &types.KeysAndAttributes{Keys: requestKeys}
}

// documentItem is the stored item shape
type documentItem struct {
	Key string `dynamodbav:"key"`
	Doc string `dynamodbav:"doc"`
}

// decodeItem parses the JSON document body out of one item
func decodeItem(item map[string]types.AttributeValue) (*entities.Record, error) {
	var stored documentItem
	if err := attributevalue.UnmarshalMap(item, &stored); err != nil {
		return nil, pkgerrors.NewInternal("unmarshal document item", err)
	}
	if stored.Doc == "" {
		return nil, pkgerrors.NewInternal("document item has no body attribute", nil)
	}

	var record entities.Record
	if err := json.Unmarshal([]byte(stored.Doc), &record); err != nil {
		return nil, pkgerrors.NewInternal("decode document body", err)
	}
	return &record, nil
}
