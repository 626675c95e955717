package mongo

import (
	"context"
	"errors"

	"quiz-api/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ResultRepository relies on the unique (user_id, quiz_type) index for
// insert-if-absent.
type ResultRepository struct {
	Col *mongo.Collection
}

func NewResultRepository(db *mongo.Database) *ResultRepository {
	return &ResultRepository{Col: db.Collection(resultsCollection)}
}

func (r *ResultRepository) Insert(ctx context.Context, res domain.Result) (domain.Result, error) {
	doc := newResultDoc(res)
	inserted, err := r.Col.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Result{}, domain.ErrAlreadyAttempted
		}
		return domain.Result{}, err
	}
	doc.ID = inserted.InsertedID.(primitive.ObjectID)
	return doc.toDomain(), nil
}

func (r *ResultRepository) Upsert(ctx context.Context, res domain.Result) (domain.Result, error) {
	doc := newResultDoc(res)
	filter := bson.M{"user_id": res.UserID, "quiz_type": string(res.QuizType)}
	opts := options.FindOneAndReplace().SetUpsert(true).SetReturnDocument(options.After)

	var stored resultDoc
	err := r.Col.FindOneAndReplace(ctx, filter, doc, opts).Decode(&stored)
	if mongo.IsDuplicateKeyError(err) {
		// A concurrent upsert created the document first; replace it now.
		err = r.Col.FindOneAndReplace(ctx, filter, doc, opts).Decode(&stored)
	}
	if err != nil {
		return domain.Result{}, err
	}
	return stored.toDomain(), nil
}

func (r *ResultRepository) Find(ctx context.Context, userID string, quizType domain.QuizType) (domain.Result, error) {
	var doc resultDoc
	err := r.Col.FindOne(ctx, bson.M{"user_id": userID, "quiz_type": string(quizType)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Result{}, domain.ErrResultsNotFound
		}
		return domain.Result{}, err
	}
	return doc.toDomain(), nil
}

func (r *ResultRepository) FindByUser(ctx context.Context, userID string) ([]domain.Result, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := r.Col.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	docs, err := decodeAll[resultDoc](ctx, cur)
	if err != nil {
		return nil, err
	}
	return toResults(docs), nil
}

func (r *ResultRepository) List(ctx context.Context, page domain.Page) ([]domain.Result, int64, error) {
	page = page.Normalize()
	total, err := r.Col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Limit))
	cur, err := r.Col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	docs, err := decodeAll[resultDoc](ctx, cur)
	if err != nil {
		return nil, 0, err
	}
	return toResults(docs), total, nil
}

func (r *ResultRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.Col.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func toResults(docs []resultDoc) []domain.Result {
	out := make([]domain.Result, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out
}
