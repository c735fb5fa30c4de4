package index

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoIndex implements ChunkIndex on MongoDB Atlas. Vector retrieval uses
// the $vectorSearch aggregation stage against a "vector_index" search index
// on the embedding field.
type MongoIndex struct {
	client     *mongo.Client
	collection *mongo.Collection
}

const mongoCloseTimeout = 5 * time.Second

func NewMongoIndex(ctx context.Context, uri, database, collection string) (*MongoIndex, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if collection == "" {
		collection = "material_chunks"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoIndex{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

func (mi *MongoIndex) Put(ctx context.Context, materialID string, chunks []Chunk) error {
	if mi == nil || mi.collection == nil {
		return nil
	}
	if _, err := mi.collection.DeleteMany(ctx, bson.M{"material_id": materialID}); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]any, 0, len(chunks))
	now := time.Now().UTC()
	for _, ch := range chunks {
		docs = append(docs, bson.M{
			"material_id": materialID,
			"ordinal":     ch.Ordinal,
			"content":     ch.Text,
			"metadata":    ch.Meta,
			"embedding":   float64Embedding(ch.Vector),
			"created_at":  now,
		})
	}
	_, err := mi.collection.InsertMany(ctx, docs)
	return err
}

func (mi *MongoIndex) Search(ctx context.Context, materialID string, query []float32, topK int) ([]Snippet, error) {
	if mi == nil || mi.collection == nil || topK <= 0 {
		return nil, nil
	}

	pipeline := mongo.Pipeline{
		{
			{Key: "$vectorSearch", Value: bson.D{
				{Key: "index", Value: "vector_index"},
				{Key: "path", Value: "embedding"},
				{Key: "queryVector", Value: float64Embedding(query)},
				{Key: "numCandidates", Value: int64(topK * 10)}, // oversample for better recall
				{Key: "limit", Value: int64(topK)},
				{Key: "filter", Value: bson.D{{Key: "material_id", Value: materialID}}},
			}},
		},
		{
			{Key: "$project", Value: bson.D{
				{Key: "content", Value: 1},
				{Key: "metadata", Value: 1},
				{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
			}},
		},
	}

	cur, err := mi.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []Snippet
	for cur.Next(ctx) {
		var doc struct {
			Content  string            `bson:"content"`
			Metadata map[string]string `bson:"metadata"`
			Score    float64           `bson:"score"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, Snippet{Text: doc.Content, Score: doc.Score, Meta: doc.Metadata})
	}
	return out, cur.Err()
}

func (mi *MongoIndex) Drop(ctx context.Context, materialID string) error {
	if mi == nil || mi.collection == nil {
		return nil
	}
	_, err := mi.collection.DeleteMany(ctx, bson.M{"material_id": materialID})
	return err
}

func (mi *MongoIndex) Count(ctx context.Context, materialID string) (int, error) {
	if mi == nil || mi.collection == nil {
		return 0, nil
	}
	n, err := mi.collection.CountDocuments(ctx, bson.M{"material_id": materialID})
	return int(n), err
}

// Close disconnects from Mongo with a short grace period.
func (mi *MongoIndex) Close() error {
	if mi == nil || mi.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return mi.client.Disconnect(ctx)
}

func float64Embedding(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
