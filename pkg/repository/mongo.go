package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	credentialsDocID = "razorpay"
	catalogDocID     = "catalog"

	userUpdateAttempts = 5
)

type MongoRepository struct {
	client   *mongo.Client
	database *mongo.Database
	config   *config.MongoDBConfig
}

// catalogDoc holds the whole catalog so a replace is a single-document write
// that readers in any process see either entirely or not at all.
type catalogDoc struct {
	ID       string           `bson:"_id"`
	Products []models.Product `bson:"products"`
}

// userDoc carries a revision bumped on every write. Updates replace the
// document only if the revision they read is still current.
type userDoc struct {
	models.User `bson:",inline"`

	Rev int64 `bson:"rev"`
}

type credentialsDoc struct {
	models.Credentials `bson:",inline"`

	ID string `bson:"_id"`
}

func NewMongoRepository(cfg *config.MongoDBConfig) (*MongoRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}

	return newMongoRepository(client, cfg), nil
}

func newMongoRepository(client *mongo.Client, cfg *config.MongoDBConfig) *MongoRepository {
	return &MongoRepository{
		client:   client,
		database: client.Database(cfg.Database),
		config:   cfg,
	}
}

// EnsureIndexes creates the unique indexes the store relies on.
func (m *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := m.orders().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("unique_order_id"),
	})
	if err != nil {
		return fmt.Errorf("create orders index: %w", err)
	}

	_, err = m.users().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("unique_email"),
	})
	if err != nil {
		return fmt.Errorf("create users index: %w", err)
	}

	_, err = m.activity().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create activity index: %w", err)
	}
	return nil
}

func (m *MongoRepository) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoRepository) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoRepository) products() *mongo.Collection { return m.database.Collection("products") }
func (m *MongoRepository) users() *mongo.Collection    { return m.database.Collection("users") }
func (m *MongoRepository) orders() *mongo.Collection   { return m.database.Collection("orders") }
func (m *MongoRepository) settings() *mongo.Collection { return m.database.Collection("config") }
func (m *MongoRepository) activity() *mongo.Collection { return m.database.Collection("activity") }

func (m *MongoRepository) ListProducts(ctx context.Context) ([]models.Product, error) {
	var doc catalogDoc
	err := m.products().FindOne(ctx, bson.M{"_id": catalogDocID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []models.Product{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find catalog: %w", err)
	}
	if doc.Products == nil {
		doc.Products = []models.Product{}
	}
	return doc.Products, nil
}

func (m *MongoRepository) SaveProducts(ctx context.Context, products []models.Product) error {
	if products == nil {
		products = []models.Product{}
	}
	doc := catalogDoc{ID: catalogDocID, Products: products}
	opts := options.Replace().SetUpsert(true)
	if _, err := m.products().ReplaceOne(ctx, bson.M{"_id": catalogDocID}, doc, opts); err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	return nil
}

func (m *MongoRepository) FindUser(ctx context.Context, id string) (*models.User, error) {
	return m.findUser(ctx, bson.M{"_id": id})
}

func (m *MongoRepository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.findUser(ctx, bson.M{"email": strings.ToLower(email)})
}

func (m *MongoRepository) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	doc, err := m.findUserDoc(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &doc.User, nil
}

func (m *MongoRepository) findUserDoc(ctx context.Context, filter bson.M) (*userDoc, error) {
	var doc userDoc
	err := m.users().FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &doc, nil
}

func (m *MongoRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	cursor, err := m.users().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "joined", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cursor.Close(ctx)

	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

func (m *MongoRepository) CreateUser(ctx context.Context, user models.User) error {
	user.Email = strings.ToLower(user.Email)
	_, err := m.users().InsertOne(ctx, userDoc{User: user})
	if mongo.IsDuplicateKeyError(err) {
		return ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (m *MongoRepository) SaveUser(ctx context.Context, user models.User) error {
	return m.UpdateUser(ctx, user.ID, func(u *models.User) error {
		*u = user
		return nil
	})
}

// UpdateUser is a compare-and-swap on the user's revision, so concurrent
// writers in different processes cannot overwrite each other's changes.
func (m *MongoRepository) UpdateUser(ctx context.Context, id string, fn func(*models.User) error) error {
	for attempt := 0; attempt < userUpdateAttempts; attempt++ {
		doc, err := m.findUserDoc(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if err := fn(&doc.User); err != nil {
			return err
		}
		doc.User.ID = id
		filter := bson.M{"_id": id, "rev": doc.Rev}
		if doc.Rev == 0 {
			// Records written before revisions existed have no rev field.
			filter["rev"] = bson.M{"$in": bson.A{0, nil}}
		}
		doc.Rev++

		res, err := m.users().ReplaceOne(ctx, filter, doc)
		if err != nil {
			return fmt.Errorf("replace user: %w", err)
		}
		if res.MatchedCount == 1 {
			return nil
		}
	}
	return fmt.Errorf("update user %s: %w", id, ErrUserContended)
}

func (m *MongoRepository) AppendOrder(ctx context.Context, order models.Order) error {
	_, err := m.orders().InsertOne(ctx, order)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateOrder
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (m *MongoRepository) ListOrders(ctx context.Context) ([]models.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	cursor, err := m.orders().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := []models.Order{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return orders, nil
}

func (m *MongoRepository) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error {
	res, err := m.orders().UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (m *MongoRepository) GetCredentials(ctx context.Context) (models.Credentials, bool, error) {
	var doc credentialsDoc
	err := m.settings().FindOne(ctx, bson.M{"_id": credentialsDocID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Credentials{}, false, nil
	}
	if err != nil {
		return models.Credentials{}, false, fmt.Errorf("find credentials: %w", err)
	}
	return doc.Credentials, doc.Configured(), nil
}

func (m *MongoRepository) SaveCredentials(ctx context.Context, creds models.Credentials) error {
	doc := credentialsDoc{ID: credentialsDocID, Credentials: creds}
	opts := options.Replace().SetUpsert(true)
	if _, err := m.settings().ReplaceOne(ctx, bson.M{"_id": credentialsDocID}, doc, opts); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func (m *MongoRepository) AppendActivity(ctx context.Context, entry models.Activity) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if _, err := m.activity().InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (m *MongoRepository) ListActivity(ctx context.Context, limit int) ([]models.Activity, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.activity().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find activity: %w", err)
	}
	defer cursor.Close(ctx)

	entries := []models.Activity{}
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode activity: %w", err)
	}

	return entries, nil
}
