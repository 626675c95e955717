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

// maxAppendRetries bounds the compare-and-swap loop of Append.
const maxAppendRetries = 5

// AttemptLogRepository keeps one log document per user and guards appends
// with a version counter.
type AttemptLogRepository struct {
	Col *mongo.Collection
}

func NewAttemptLogRepository(db *mongo.Database) *AttemptLogRepository {
	return &AttemptLogRepository{Col: db.Collection(attemptLogsCollection)}
}

func (r *AttemptLogRepository) Append(ctx context.Context, userID string, a domain.Attempt, window domain.Window, limit int) (domain.AttemptLog, error) {
	attempt := newAttemptDoc(a)
	for i := 0; i < maxAppendRetries; i++ {
		var doc attemptLogDoc
		err := r.Col.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			if limit < 1 {
				return domain.AttemptLog{}, domain.ErrDailyLimitReached
			}
			doc = attemptLogDoc{
				UserID:    userID,
				Attempts:  []attemptDoc{attempt},
				Version:   1,
				CreatedAt: a.CreatedAt,
				UpdatedAt: a.CreatedAt,
			}
			res, err := r.Col.InsertOne(ctx, doc)
			if mongo.IsDuplicateKeyError(err) {
				continue // lost the race to create the log
			}
			if err != nil {
				return domain.AttemptLog{}, err
			}
			doc.ID, _ = res.InsertedID.(primitive.ObjectID)
			return doc.toDomain(), nil
		}
		if err != nil {
			return domain.AttemptLog{}, err
		}

		current := doc.toDomain()
		if current.CountIn(window) >= limit {
			return domain.AttemptLog{}, domain.ErrDailyLimitReached
		}

		update := bson.M{
			"$push": bson.M{"attempts": attempt},
			"$inc":  bson.M{"version": 1},
			"$set":  bson.M{"updated_at": a.CreatedAt},
		}
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		var updated attemptLogDoc
		err = r.Col.FindOneAndUpdate(ctx, bson.M{"_id": doc.ID, "version": doc.Version}, update, opts).Decode(&updated)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue // version moved underneath us
		}
		if err != nil {
			return domain.AttemptLog{}, err
		}
		return updated.toDomain(), nil
	}
	return domain.AttemptLog{}, domain.ErrConcurrentUpdate
}

func (r *AttemptLogRepository) FindByUser(ctx context.Context, userID string) (domain.AttemptLog, error) {
	var doc attemptLogDoc
	if err := r.Col.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.AttemptLog{}, domain.ErrResultsNotFound
		}
		return domain.AttemptLog{}, err
	}
	return doc.toDomain(), nil
}

func (r *AttemptLogRepository) List(ctx context.Context, page domain.Page) ([]domain.AttemptLog, int64, error) {
	page = page.Normalize()
	total, err := r.Col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Limit))
	cur, err := r.Col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	docs, err := decodeAll[attemptLogDoc](ctx, cur)
	if err != nil {
		return nil, 0, err
	}
	out := make([]domain.AttemptLog, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, total, nil
}

func (r *AttemptLogRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.Col.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
