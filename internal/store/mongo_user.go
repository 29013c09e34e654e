package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vitrine-app/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoUsersCollection is the collection name used for user documents.
const MongoUsersCollection = "users"

// MongoUserRepository persists users as documents keyed by their UUID.
type MongoUserRepository struct {
	coll *mongo.Collection
}

func NewMongoUserRepository(coll *mongo.Collection) *MongoUserRepository {
	return &MongoUserRepository{coll: coll}
}

// EnsureIndexes creates the unique and lookup indexes the repository relies on.
func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "refresh_token", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "is_public", Value: 1}, {Key: "location", Value: 1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func (r *MongoUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, user); err != nil {
		return types.User{}, mapMongoError(err)
	}
	return user, nil
}

func (r *MongoUserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoUserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *MongoUserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoUserRepository) GetByRefreshToken(ctx context.Context, token string) (types.User, error) {
	if token == "" {
		return types.User{}, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"refresh_token": token})
}

func (r *MongoUserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	result, err := r.coll.ReplaceOne(ctx, bson.M{"_id": user.ID}, user)
	if err != nil {
		return types.User{}, mapMongoError(err)
	}
	if result.MatchedCount == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

// SetRefreshToken stores token on the user; an empty token unsets the field.
func (r *MongoUserRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{"refresh_token": token, "updated_at": now}}
	if token == "" {
		update = bson.M{
			"$set":   bson.M{"updated_at": now},
			"$unset": bson.M{"refresh_token": ""},
		}
	}

	result, err := r.coll.UpdateByID(ctx, id, update)
	if err != nil {
		return mapMongoError(err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoUserRepository) ListPublic(ctx context.Context, offset, limit int) ([]types.User, error) {
	opts := publicFindOptions()
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.findMany(ctx, bson.M{"is_public": true}, opts)
}

func (r *MongoUserRepository) FindPublicByLocation(ctx context.Context, location string, limit int) ([]types.User, error) {
	if limit < 1 {
		limit = defaultLocationResults
	}
	opts := publicFindOptions().SetLimit(int64(limit))
	return r.findMany(ctx, bson.M{"is_public": true, "location": location}, opts)
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (types.User, error) {
	var user types.User
	if err := r.coll.FindOne(ctx, filter).Decode(&user); err != nil {
		return types.User{}, mapMongoError(err)
	}
	return user, nil
}

func (r *MongoUserRepository) findMany(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]types.User, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	users := make([]types.User, 0)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// publicFindOptions orders by creation and never loads credentials.
func publicFindOptions() *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetProjection(bson.M{"password": 0, "refresh_token": 0})
}

func mapMongoError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return err
}
