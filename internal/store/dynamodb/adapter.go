// Copyright (c) The ScatterGather Authors
// SPDX-License-Identifier: MPL-2.0

// Package dynamodb adapts the coordination protocol onto two pre-created
// DynamoDB tables, following the conditional-write and consistent-read
// idioms the teacher uses for its own DynamoDB state lock
// (internal/backend/remote-state/s3/client.go): PutItem/UpdateItem with a
// ConditionExpression for the atomic claim, and ConsistentRead: true for
// every read the protocol depends on for correctness.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	hclog "github.com/hashicorp/go-hclog"

	"github.com/salvois/ScatterGather/internal/coordination"
	"github.com/salvois/ScatterGather/internal/logging"
)

// batchLimit is DynamoDB's BatchWriteItem item-per-call limit. The protocol
// assumes unbounded logical batches (spec §4.1); this adapter chunks
// transparently at this boundary.
const batchLimit = 25

const (
	attrRequestID        = "RequestId"
	attrPartID           = "PartId"
	attrCreationTime     = "CreationTime"
	attrContext          = "Context"
	attrScatterCompleted = "ScatterCompleted"
	attrLockerID         = "LockerId"
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger overrides the adapter's logger.
func WithLogger(logger hclog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// Adapter implements coordination.Port against two DynamoDB tables: a
// Request table keyed on RequestId, and a Part table keyed on
// (RequestId, PartId). Both tables are assumed pre-created with that key
// schema (spec §6); this package does no schema management.
type Adapter struct {
	client       *dynamodb.Client
	requestTable string
	partTable    string
	logger       hclog.Logger
}

// New returns an Adapter that drives the given tables through client.
func New(client *dynamodb.Client, requestTable, partTable string, opts ...Option) *Adapter {
	a := &Adapter{
		client:       client,
		requestTable: requestTable,
		partTable:    partTable,
		logger:       logging.HCLogger().Named("store-dynamodb"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) PutRequest(ctx context.Context, req coordination.RequestID, requestContext string, createdAt time.Time) error {
	_, err := a.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.requestTable),
		Item: map[string]dtypes.AttributeValue{
			attrRequestID:        &dtypes.AttributeValueMemberS{Value: string(req)},
			attrCreationTime:     &dtypes.AttributeValueMemberS{Value: createdAt.UTC().Format(time.RFC3339)},
			attrContext:          &dtypes.AttributeValueMemberS{Value: requestContext},
			attrScatterCompleted: &dtypes.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		return fmt.Errorf("dynamodb: put request %q: %w", req, err)
	}
	return nil
}

func (a *Adapter) MarkScatterCompleted(ctx context.Context, req coordination.RequestID) error {
	_, err := a.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(a.requestTable),
		Key: map[string]dtypes.AttributeValue{
			attrRequestID: &dtypes.AttributeValueMemberS{Value: string(req)},
		},
		UpdateExpression: aws.String("SET " + attrScatterCompleted + " = :true"),
		ExpressionAttributeValues: map[string]dtypes.AttributeValue{
			":true": &dtypes.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		return fmt.Errorf("dynamodb: mark scatter completed for %q: %w", req, err)
	}
	return nil
}

// TryClaim sets LockerId on the Request row if and only if
// ScatterCompleted=true and LockerId is absent or equal to lockerID. The
// condition is the UpdateItem call's ConditionExpression, so the check and
// the write are atomic in a single round-trip.
func (a *Adapter) TryClaim(ctx context.Context, req coordination.RequestID, lockerID string) (string, bool, error) {
	out, err := a.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(a.requestTable),
		Key: map[string]dtypes.AttributeValue{
			attrRequestID: &dtypes.AttributeValueMemberS{Value: string(req)},
		},
		UpdateExpression:    aws.String("SET " + attrLockerID + " = :lockerID"),
		ConditionExpression: aws.String(attrScatterCompleted + " = :true AND (attribute_not_exists(" + attrLockerID + ") OR " + attrLockerID + " = :lockerID)"),
		ExpressionAttributeValues: map[string]dtypes.AttributeValue{
			":lockerID": &dtypes.AttributeValueMemberS{Value: lockerID},
			":true":     &dtypes.AttributeValueMemberBOOL{Value: true},
		},
		ReturnValues: dtypes.ReturnValueAllNew,
	})
	if err != nil {
		var condFailed *dtypes.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("dynamodb: claim completion for %q: %w", req, err)
	}

	var requestContext string
	if v, ok := out.Attributes[attrContext]; ok {
		if s, ok := v.(*dtypes.AttributeValueMemberS); ok {
			requestContext = s.Value
		}
	}
	return requestContext, true, nil
}

func (a *Adapter) DeleteRequest(ctx context.Context, req coordination.RequestID) error {
	_, err := a.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(a.requestTable),
		Key: map[string]dtypes.AttributeValue{
			attrRequestID: &dtypes.AttributeValueMemberS{Value: string(req)},
		},
	})
	if err != nil {
		return fmt.Errorf("dynamodb: delete request %q: %w", req, err)
	}
	return nil
}

func (a *Adapter) PutParts(ctx context.Context, req coordination.RequestID, parts []coordination.PartID) error {
	for _, chunk := range chunkParts(parts, batchLimit) {
		reqs := make([]dtypes.WriteRequest, 0, len(chunk))
		for _, p := range chunk {
			reqs = append(reqs, dtypes.WriteRequest{
				PutRequest: &dtypes.PutRequest{
					Item: map[string]dtypes.AttributeValue{
						attrRequestID: &dtypes.AttributeValueMemberS{Value: string(req)},
						attrPartID:    &dtypes.AttributeValueMemberS{Value: string(p)},
					},
				},
			})
		}
		if err := a.batchWrite(ctx, reqs); err != nil {
			return fmt.Errorf("dynamodb: put %d part(s) for %q: %w", len(chunk), req, err)
		}
	}
	return nil
}

func (a *Adapter) DeleteParts(ctx context.Context, req coordination.RequestID, parts []coordination.PartID) error {
	for _, chunk := range chunkParts(parts, batchLimit) {
		reqs := make([]dtypes.WriteRequest, 0, len(chunk))
		for _, p := range chunk {
			reqs = append(reqs, dtypes.WriteRequest{
				DeleteRequest: &dtypes.DeleteRequest{
					Key: map[string]dtypes.AttributeValue{
						attrRequestID: &dtypes.AttributeValueMemberS{Value: string(req)},
						attrPartID:    &dtypes.AttributeValueMemberS{Value: string(p)},
					},
				},
			})
		}
		if err := a.batchWrite(ctx, reqs); err != nil {
			return fmt.Errorf("dynamodb: delete %d part(s) for %q: %w", len(chunk), req, err)
		}
	}
	return nil
}

// batchWrite issues BatchWriteItem and retries any UnprocessedItems the
// service hands back, since a batch write is not guaranteed to apply every
// item in one call.
func (a *Adapter) batchWrite(ctx context.Context, reqs []dtypes.WriteRequest) error {
	pending := reqs
	for len(pending) > 0 {
		out, err := a.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]dtypes.WriteRequest{a.partTable: pending},
		})
		if err != nil {
			return err
		}
		pending = out.UnprocessedItems[a.partTable]
		if len(pending) > 0 {
			a.logger.Trace("retrying unprocessed batch write items", "count", len(pending))
		}
	}
	return nil
}

func (a *Adapter) AnyPartsExist(ctx context.Context, req coordination.RequestID) (bool, error) {
	out, err := a.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(a.partTable),
		KeyConditionExpression: aws.String(attrRequestID + " = :requestID"),
		ExpressionAttributeValues: map[string]dtypes.AttributeValue{
			":requestID": &dtypes.AttributeValueMemberS{Value: string(req)},
		},
		ConsistentRead: aws.Bool(true),
		Limit:          aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("dynamodb: probe parts for %q: %w", req, err)
	}
	return out.Count > 0, nil
}

func (a *Adapter) ListParts(ctx context.Context, req coordination.RequestID) ([]coordination.PartID, error) {
	var out []coordination.PartID
	var startKey map[string]dtypes.AttributeValue
	for {
		page, err := a.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(a.partTable),
			KeyConditionExpression: aws.String(attrRequestID + " = :requestID"),
			ExpressionAttributeValues: map[string]dtypes.AttributeValue{
				":requestID": &dtypes.AttributeValueMemberS{Value: string(req)},
			},
			ConsistentRead:    aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb: list parts for %q: %w", req, err)
		}
		for _, item := range page.Items {
			if v, ok := item[attrPartID].(*dtypes.AttributeValueMemberS); ok {
				out = append(out, coordination.PartID(v.Value))
			}
		}
		if page.LastEvaluatedKey == nil {
			break
		}
		startKey = page.LastEvaluatedKey
	}
	return out, nil
}

func chunkParts(parts []coordination.PartID, size int) [][]coordination.PartID {
	if len(parts) == 0 {
		return nil
	}
	chunks := make([][]coordination.PartID, 0, (len(parts)+size-1)/size)
	for size < len(parts) {
		parts, chunks = parts[size:], append(chunks, parts[0:size:size])
	}
	return append(chunks, parts)
}

var _ coordination.Port = (*Adapter)(nil)
