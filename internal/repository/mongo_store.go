package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/iliyamo/igotyouboo-api/internal/model"
)

// userDoc mirrors a document in the users collection.  Field names match the
// documents already stored there.
type userDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Email          string             `bson:"email"`
	Password       string             `bson:"password"`
	Username       string             `bson:"username"`
	Pronouns       string             `bson:"pronouns,omitempty"`
	ProfilePicture string             `bson:"profilePicture"`
	Role           primitive.ObjectID `bson:"role,omitempty"`
}

func (d userDoc) toModel() model.User {
	u := model.User{
		ID:             d.ID.Hex(),
		Username:       d.Username,
		Email:          d.Email,
		PasswordHash:   d.Password,
		Pronouns:       d.Pronouns,
		ProfilePicture: d.ProfilePicture,
	}
	if !d.Role.IsZero() {
		u.RoleID = d.Role.Hex()
	}
	return u
}

type roleDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Name        string             `bson:"name"`
	Description string             `bson:"description"`
}

// MongoStore persists users and roles in MongoDB.
type MongoStore struct {
	db    *mongo.Database
	users *mongo.Collection
	roles *mongo.Collection
}

// NewMongoStore wraps db and creates the unique indexes that enforce
// username, email and role name uniqueness.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	s := &MongoStore{
		db:    db,
		users: db.Collection("users"),
		roles: db.Collection("roles"),
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	unique := options.Index().SetUnique(true)
	if _, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
	}); err != nil {
		return nil, fmt.Errorf("create user indexes: %w", err)
	}
	if _, err := s.roles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "name", Value: 1}}, Options: unique,
	}); err != nil {
		return nil, fmt.Errorf("create role index: %w", err)
	}
	return s, nil
}

func (s *MongoStore) Driver() string { return "mongo" }

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

func (s *MongoStore) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.findUser(ctx, bson.M{"username": username})
}

func (s *MongoStore) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return s.findUser(ctx, bson.M{"_id": oid})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*model.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	u := doc.toModel()
	return &u, nil
}

func (s *MongoStore) ListUsers(ctx context.Context) ([]model.User, error) {
	cur, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer cur.Close(ctx)

	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	out := make([]model.User, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (s *MongoStore) CreateUser(ctx context.Context, u model.User) (*model.User, error) {
	doc := userDoc{
		ID:             primitive.NewObjectID(),
		Email:          u.Email,
		Password:       u.PasswordHash,
		Username:       u.Username,
		Pronouns:       u.Pronouns,
		ProfilePicture: u.ProfilePicture,
	}
	if u.RoleID != "" {
		oid, err := primitive.ObjectIDFromHex(u.RoleID)
		if err != nil {
			return nil, NewValidationError("User", "role", fmt.Sprintf("Cast to ObjectId failed for value %q", u.RoleID))
		}
		doc.Role = oid
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, mongoDuplicate(err, u.Username, u.Email)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	log.Ctx(ctx).Debug().Str("user_id", doc.ID.Hex()).Msg("user created")
	created := doc.toModel()
	return &created, nil
}

func (s *MongoStore) UpdateUserByID(ctx context.Context, id string, patch model.UserPatch) (*model.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrUserNotFound
	}
	set, err := mongoSet(patch)
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return s.findUser(ctx, bson.M{"_id": oid})
	}

	var doc userDoc
	err = s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, mongoDuplicate(err, deref(patch.Username), deref(patch.Email))
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	u := doc.toModel()
	return &u, nil
}

func (s *MongoStore) DeleteUserByID(ctx context.Context, id string) (*model.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrUserNotFound
	}
	var doc userDoc
	if err := s.users.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("delete user: %w", err)
	}
	u := doc.toModel()
	return &u, nil
}

func (s *MongoStore) FindRoleIDByName(ctx context.Context, name string) (string, error) {
	var doc roleDoc
	if err := s.roles.FindOne(ctx, bson.M{"name": name}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrRoleNotFound
		}
		return "", fmt.Errorf("find role: %w", err)
	}
	return doc.ID.Hex(), nil
}

func (s *MongoStore) FindRoleNameByID(ctx context.Context, id string) (string, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return "", ErrRoleNotFound
	}
	var doc roleDoc
	if err := s.roles.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrRoleNotFound
		}
		return "", fmt.Errorf("find role: %w", err)
	}
	return doc.Name, nil
}

// EnsureRoles upserts by name so concurrent start-ups do not duplicate roles.
func (s *MongoStore) EnsureRoles(ctx context.Context, roles []model.Role) error {
	for _, r := range roles {
		_, err := s.roles.UpdateOne(ctx,
			bson.M{"name": r.Name},
			bson.M{"$setOnInsert": bson.M{"name": r.Name, "description": r.Description}},
			options.Update().SetUpsert(true),
		)
		if err != nil && !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("ensure role %s: %w", r.Name, err)
		}
	}
	return nil
}

// mongoSet translates a patch into a $set document.
func mongoSet(p model.UserPatch) (bson.M, error) {
	set := bson.M{}
	if p.Username != nil {
		set["username"] = *p.Username
	}
	if p.Email != nil {
		set["email"] = *p.Email
	}
	if p.PasswordHash != nil {
		set["password"] = *p.PasswordHash
	}
	if p.Pronouns != nil {
		set["pronouns"] = *p.Pronouns
	}
	if p.ProfilePicture != nil {
		set["profilePicture"] = *p.ProfilePicture
	}
	if p.RoleID != nil {
		oid, err := primitive.ObjectIDFromHex(*p.RoleID)
		if err != nil {
			return nil, NewValidationError("User", "role", fmt.Sprintf("Cast to ObjectId failed for value %q", *p.RoleID))
		}
		set["role"] = oid
	}
	return set, nil
}

// mongoDuplicate names the field whose unique index rejected the write.  The
// server reports the index name (username_1 / email_1) in the message.
func mongoDuplicate(err error, username, email string) *ValidationError {
	if strings.Contains(err.Error(), "email_1") {
		return duplicateError("email", email)
	}
	return duplicateError("username", username)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
