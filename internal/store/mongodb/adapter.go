// Copyright (c) The ScatterGather Authors
// SPDX-License-Identifier: MPL-2.0

// Package mongodb adapts the coordination protocol onto two MongoDB
// collections, <prefix>.Requests and <prefix>.Parts (spec §6). The atomic
// claim is a single FindOneAndUpdate whose filter encodes all three
// conditions from spec §4.1; a filter miss surfaces as mongo.ErrNoDocuments,
// which is the only error this adapter maps to "claim failed" rather than
// surfacing unchanged.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/salvois/ScatterGather/internal/coordination"
	"github.com/salvois/ScatterGather/internal/logging"
)

// batchLimit mirrors the reference adapter's chunk size (spec §4.2); the
// driver itself has no hard per-call item limit, but chunking keeps each
// bulk write's payload and the protocol's assumptions consistent across
// backends.
const batchLimit = 25

type requestDoc struct {
	ID               string    `bson:"_id"`
	CreationTime     time.Time `bson:"CreationTime"`
	Context          string    `bson:"Context"`
	ScatterCompleted bool      `bson:"ScatterCompleted"`
	LockerID         string    `bson:"LockerId,omitempty"`
}

type partDocID struct {
	PartID    string `bson:"PartId"`
	RequestID string `bson:"RequestId"`
}

type partDoc struct {
	ID partDocID `bson:"_id"`
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger overrides the adapter's logger.
func WithLogger(logger hclog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// Adapter implements coordination.Port against a pair of MongoDB
// collections named "<prefix>.Requests" and "<prefix>.Parts".
type Adapter struct {
	requests *mongo.Collection
	parts    *mongo.Collection
	logger   hclog.Logger
}

// New returns an Adapter backed by database, using collectionPrefix to name
// the Requests and Parts collections. It creates the ascending index on
// _id.RequestId required by spec §6 if it does not already exist.
func New(ctx context.Context, database *mongo.Database, collectionPrefix string, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		requests: database.Collection(collectionPrefix + ".Requests"),
		parts:    database.Collection(collectionPrefix + ".Parts"),
		logger:   logging.HCLogger().Named("store-mongodb"),
	}
	for _, opt := range opts {
		opt(a)
	}

	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "_id.RequestId", Value: 1}},
	}
	if _, err := a.parts.Indexes().CreateOne(ctx, indexModel); err != nil {
		return nil, fmt.Errorf("mongodb: creating request id index: %w", err)
	}
	return a, nil
}

func (a *Adapter) PutRequest(ctx context.Context, req coordination.RequestID, requestContext string, createdAt time.Time) error {
	doc := requestDoc{
		ID:               string(req),
		CreationTime:     createdAt.UTC(),
		Context:          requestContext,
		ScatterCompleted: false,
	}
	_, err := a.requests.ReplaceOne(ctx, bson.M{"_id": string(req)}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongodb: put request %q: %w", req, err)
	}
	return nil
}

func (a *Adapter) MarkScatterCompleted(ctx context.Context, req coordination.RequestID) error {
	_, err := a.requests.UpdateOne(ctx,
		bson.M{"_id": string(req)},
		bson.M{"$set": bson.M{"ScatterCompleted": true}},
	)
	if err != nil {
		return fmt.Errorf("mongodb: mark scatter completed for %q: %w", req, err)
	}
	return nil
}

func (a *Adapter) TryClaim(ctx context.Context, req coordination.RequestID, lockerID string) (string, bool, error) {
	filter := bson.M{
		"_id":              string(req),
		"ScatterCompleted": true,
		"$or": []bson.M{
			{"LockerId": bson.M{"$exists": false}},
			{"LockerId": lockerID},
		},
	}
	update := bson.M{"$set": bson.M{"LockerId": lockerID}}

	var result requestDoc
	err := a.requests.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("mongodb: claim completion for %q: %w", req, err)
	}
	return result.Context, true, nil
}

func (a *Adapter) DeleteRequest(ctx context.Context, req coordination.RequestID) error {
	_, err := a.requests.DeleteOne(ctx, bson.M{"_id": string(req)})
	if err != nil {
		return fmt.Errorf("mongodb: delete request %q: %w", req, err)
	}
	return nil
}

func (a *Adapter) PutParts(ctx context.Context, req coordination.RequestID, parts []coordination.PartID) error {
	for _, chunk := range chunkParts(parts, batchLimit) {
		models := make([]mongo.WriteModel, 0, len(chunk))
		for _, p := range chunk {
			id := partDocID{PartID: string(p), RequestID: string(req)}
			models = append(models, mongo.NewReplaceOneModel().
				SetFilter(bson.M{"_id": id}).
				SetReplacement(partDoc{ID: id}).
				SetUpsert(true))
		}
		if _, err := a.parts.BulkWrite(ctx, models); err != nil {
			return fmt.Errorf("mongodb: put %d part(s) for %q: %w", len(chunk), req, err)
		}
	}
	return nil
}

func (a *Adapter) DeleteParts(ctx context.Context, req coordination.RequestID, parts []coordination.PartID) error {
	for _, chunk := range chunkParts(parts, batchLimit) {
		ids := make([]partDocID, 0, len(chunk))
		for _, p := range chunk {
			ids = append(ids, partDocID{PartID: string(p), RequestID: string(req)})
		}
		if _, err := a.parts.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
			return fmt.Errorf("mongodb: delete %d part(s) for %q: %w", len(chunk), req, err)
		}
	}
	return nil
}

func (a *Adapter) AnyPartsExist(ctx context.Context, req coordination.RequestID) (bool, error) {
	opts := options.FindOne().SetProjection(bson.M{"_id": 1})
	err := a.parts.FindOne(ctx, bson.M{"_id.RequestId": string(req)}, opts).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("mongodb: probe parts for %q: %w", req, err)
	}
	return true, nil
}

func (a *Adapter) ListParts(ctx context.Context, req coordination.RequestID) ([]coordination.PartID, error) {
	cur, err := a.parts.Find(ctx, bson.M{"_id.RequestId": string(req)})
	if err != nil {
		return nil, fmt.Errorf("mongodb: list parts for %q: %w", req, err)
	}
	defer cur.Close(ctx)

	var out []coordination.PartID
	for cur.Next(ctx) {
		var doc partDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongodb: decoding part document for %q: %w", req, err)
		}
		out = append(out, coordination.PartID(doc.ID.PartID))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongodb: listing parts for %q: %w", req, err)
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
