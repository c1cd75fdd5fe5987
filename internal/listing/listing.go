// Package listing reads the documents served by the users listing action.
package listing

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const UsersCollection = "users"

// Lister returns every document of the users collection.
type Lister interface {
	Users(ctx context.Context) ([]bson.M, error)
}

type Mongo struct {
	client *mongo.Client
	db     string
}

// Connect opens a client against url. The connection is verified lazily by
// the first query.
func Connect(ctx context.Context, url, database string) (*Mongo, error) {
	if url == "" {
		return nil, errors.New("mongodb url is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url).SetServerSelectionTimeout(10*time.Second))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongodb")
	}
	log.Info().Str("component", "listing").Str("database", database).Msg("mongodb client ready")
	return &Mongo{client: client, db: database}, nil
}

func (m *Mongo) Users(ctx context.Context) ([]bson.M, error) {
	cur, err := m.client.Database(m.db).Collection(UsersCollection).Find(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	out := []bson.M{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "reading users")
	}
	return out, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
