package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo answers marker lookups from an in-memory set and can simulate
// one round of UnprocessedKeys throttling.
type fakeDynamo struct {
	processed      map[string]struct{}
	err            error
	batchCalls     int
	deferFirstCall bool // first BatchGetItem returns everything as unprocessed
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	key := in.Key[markerAttr].(*types.AttributeValueMemberS).Value
	if _, found := f.processed[key]; found {
		return &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
			markerAttr: &types.AttributeValueMemberS{Value: key},
		}}, nil
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeDynamo) BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	f.batchCalls++
	if f.err != nil {
		return nil, f.err
	}

	var table string
	var keys []map[string]types.AttributeValue
	for name, ka := range in.RequestItems {
		table = name
		keys = ka.Keys
	}

	if f.deferFirstCall && f.batchCalls == 1 {
		return &dynamodb.BatchGetItemOutput{
			UnprocessedKeys: map[string]types.KeysAndAttributes{table: {Keys: keys}},
		}, nil
	}

	var responses []map[string]types.AttributeValue
	for _, k := range keys {
		key := k[markerAttr].(*types.AttributeValueMemberS).Value
		if _, found := f.processed[key]; found {
			responses = append(responses, map[string]types.AttributeValue{
				markerAttr: &types.AttributeValueMemberS{Value: key},
			})
		}
	}
	return &dynamodb.BatchGetItemOutput{
		Responses: map[string][]map[string]types.AttributeValue{table: responses},
	}, nil
}

func TestDynamoMarkerSet_IsProcessed(t *testing.T) {
	fake := &fakeDynamo{processed: processedSet("uploads/a.mp4")}
	m := NewDynamoMarkerSet(fake, "markers")

	got, err := m.IsProcessed(context.Background(), "uploads/a.mp4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error("marked key reported unprocessed")
	}

	got, err = m.IsProcessed(context.Background(), "uploads/z.mp4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Error("unmarked key reported processed")
	}
}

func TestDynamoMarkerSet_ProcessedSubset(t *testing.T) {
	fake := &fakeDynamo{processed: processedSet("uploads/a.mp4", "uploads/c.mp4")}
	m := NewDynamoMarkerSet(fake, "markers")

	got, err := m.ProcessedSubset(context.Background(),
		[]string{"uploads/a.mp4", "uploads/b.mp4", "uploads/c.mp4"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d processed keys, want 2", len(got))
	}
	if _, found := got["uploads/b.mp4"]; found {
		t.Error("unmarked key appeared in processed subset")
	}
}

func TestDynamoMarkerSet_ChunksLargeKeySets(t *testing.T) {
	processed := make(map[string]struct{})
	keys := make([]string, 0, 250)
	for i := 0; i < 250; i++ {
		key := fmt.Sprintf("uploads/clip-%03d.mp4", i)
		keys = append(keys, key)
		if i%2 == 0 {
			processed[key] = struct{}{}
		}
	}
	fake := &fakeDynamo{processed: processed}
	m := NewDynamoMarkerSet(fake, "markers")

	got, err := m.ProcessedSubset(context.Background(), keys)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fake.batchCalls != 3 {
		t.Errorf("got %d BatchGetItem calls for 250 keys, want 3", fake.batchCalls)
	}
	if len(got) != 125 {
		t.Errorf("got %d processed keys, want 125", len(got))
	}
}

func TestDynamoMarkerSet_RetriesUnprocessedKeys(t *testing.T) {
	fake := &fakeDynamo{
		processed:      processedSet("uploads/a.mp4"),
		deferFirstCall: true,
	}
	m := NewDynamoMarkerSet(fake, "markers")

	got, err := m.ProcessedSubset(context.Background(), []string{"uploads/a.mp4", "uploads/b.mp4"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fake.batchCalls != 2 {
		t.Errorf("got %d BatchGetItem calls, want 2 (initial + retry)", fake.batchCalls)
	}
	if _, found := got["uploads/a.mp4"]; !found {
		t.Error("key lost across the UnprocessedKeys retry")
	}
}

func TestDynamoMarkerSet_ErrorSurfaced(t *testing.T) {
	fake := &fakeDynamo{err: errors.New("throughput exceeded")}
	m := NewDynamoMarkerSet(fake, "markers")

	if _, err := m.ProcessedSubset(context.Background(), []string{"uploads/a.mp4"}); err == nil {
		t.Fatal("expected error, got nil")
	}
	if _, err := m.IsProcessed(context.Background(), "uploads/a.mp4"); err == nil {
		t.Fatal("expected error, got nil")
	}
}
