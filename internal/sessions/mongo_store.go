package sessions

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoRecord is the stored document; one per namespace.
type mongoRecord struct {
	Namespace    string    `bson:"_id"`
	AuthToken    string    `bson:"auth_token"`
	RefreshToken string    `bson:"refresh_token"`
	TokenPayload string    `bson:"token_payload,omitempty"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

// MongoStore implements Store using a Mongo collection
type MongoStore struct {
	col       *mongo.Collection
	namespace string
}

func NewMongoStore(col *mongo.Collection, namespace string) *MongoStore {
	if namespace == "" {
		namespace = "default"
	}
	return &MongoStore{col: col, namespace: namespace}
}

func (s *MongoStore) Load(ctx context.Context) (*Record, error) {
	var doc mongoRecord
	if err := s.col.FindOne(ctx, bson.M{"_id": s.namespace}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	m := map[string]string{
		KeyAuthToken:    doc.AuthToken,
		KeyRefreshToken: doc.RefreshToken,
	}
	if doc.TokenPayload != "" {
		m[KeyTokenPayload] = doc.TokenPayload
	}
	return RecordFromEntries(m), nil
}

// Save replaces the namespace document in a single write.
func (s *MongoStore) Save(ctx context.Context, r Record) error {
	e, err := r.Entries()
	if err != nil {
		return err
	}
	doc := mongoRecord{
		Namespace:    s.namespace,
		AuthToken:    e[KeyAuthToken],
		RefreshToken: e[KeyRefreshToken],
		TokenPayload: e[KeyTokenPayload],
		UpdatedAt:    time.Now().UTC(),
	}
	_, err = s.col.ReplaceOne(ctx, bson.M{"_id": s.namespace}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) Clear(ctx context.Context) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"_id": s.namespace})
	return err
}
