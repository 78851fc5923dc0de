package catalog

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// maxBatchGet is the DynamoDB BatchGetItem limit per call.
const maxBatchGet = 100

// markerAttr is the marker table's partition key attribute.
const markerAttr = "FileKey"

// DynamoAPI is the subset of the DynamoDB client used by DynamoMarkerSet.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
}

// markerRecord is one row of the marker table, written by the downstream
// pipeline when it finishes an asset.
type markerRecord struct {
	FileKey     string `dynamodbav:"FileKey"`
	ProcessedAt string `dynamodbav:"ProcessedAt,omitempty"`
	Source      string `dynamodbav:"Source,omitempty"`
}

// DynamoMarkerSet reads processed markers from a DynamoDB table keyed by
// asset key. Read-only on this side.
type DynamoMarkerSet struct {
	client    DynamoAPI
	tableName string
}

// Compile-time interface checks.
var (
	_ MarkerSet     = (*DynamoMarkerSet)(nil)
	_ BulkMarkerSet = (*DynamoMarkerSet)(nil)
)

// NewDynamoMarkerSet creates a DynamoMarkerSet for the given table.
func NewDynamoMarkerSet(client DynamoAPI, tableName string) *DynamoMarkerSet {
	return &DynamoMarkerSet{
		client:    client,
		tableName: tableName,
	}
}

// IsProcessed reports whether a marker row exists for key.
func (d *DynamoMarkerSet) IsProcessed(ctx context.Context, key string) (bool, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &d.tableName,
		Key: map[string]types.AttributeValue{
			markerAttr: &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return false, fmt.Errorf("GetItem %s=%s: %w", markerAttr, key, err)
	}
	return result.Item != nil, nil
}

// ProcessedSubset returns the subset of keys that have marker rows, batching
// lookups in chunks of maxBatchGet and retrying unprocessed keys until
// DynamoDB has answered for every one.
func (d *DynamoMarkerSet) ProcessedSubset(ctx context.Context, keys []string) (map[string]struct{}, error) {
	processed := make(map[string]struct{})

	for start := 0; start < len(keys); start += maxBatchGet {
		end := start + maxBatchGet
		if end > len(keys) {
			end = len(keys)
		}

		request := make([]map[string]types.AttributeValue, 0, end-start)
		for _, key := range keys[start:end] {
			request = append(request, map[string]types.AttributeValue{
				markerAttr: &types.AttributeValueMemberS{Value: key},
			})
		}

		for len(request) > 0 {
			result, err := d.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: map[string]types.KeysAndAttributes{
					d.tableName: {Keys: request},
				},
			})
			if err != nil {
				return nil, fmt.Errorf("BatchGetItem (%d keys): %w", len(request), err)
			}

			for _, item := range result.Responses[d.tableName] {
				var rec markerRecord
				if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
					return nil, fmt.Errorf("unmarshal marker record: %w", err)
				}
				processed[rec.FileKey] = struct{}{}
			}

			// DynamoDB may return a partial batch under throttling; the
			// leftovers come back as UnprocessedKeys.
			request = nil
			if leftover, ok := result.UnprocessedKeys[d.tableName]; ok {
				request = leftover.Keys
			}
		}
	}

	log.Debug().
		Int("checked", len(keys)).
		Int("processed", len(processed)).
		Str("table", d.tableName).
		Msg("Marker table lookup complete")

	return processed, nil
}
