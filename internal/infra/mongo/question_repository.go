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

type QuestionRepository struct {
	Col *mongo.Collection
}

func NewQuestionRepository(db *mongo.Database) *QuestionRepository {
	return &QuestionRepository{Col: db.Collection(questionsCollection)}
}

func (r *QuestionRepository) Create(ctx context.Context, q domain.Question) (domain.Question, error) {
	doc := newQuestionDoc(q)
	res, err := r.Col.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Question{}, domain.ErrQuestionExists
		}
		return domain.Question{}, err
	}
	doc.ID = res.InsertedID.(primitive.ObjectID)
	return doc.toDomain(), nil
}

func (r *QuestionRepository) Update(ctx context.Context, q domain.Question) (domain.Question, error) {
	oid, err := primitive.ObjectIDFromHex(q.ID)
	if err != nil {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	update := bson.M{"$set": bson.M{
		"question":             q.Text,
		"answers":              q.Options,
		"correct_answer_index": q.CorrectIndex,
		"course":               q.Course,
		"topic":                q.Topic,
		"updated_at":           q.UpdatedAt,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc questionDoc
	err = r.Col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&doc)
	switch {
	case err == nil:
		return doc.toDomain(), nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.Question{}, domain.ErrQuestionNotFound
	case mongo.IsDuplicateKeyError(err):
		return domain.Question{}, domain.ErrQuestionExists
	default:
		return domain.Question{}, err
	}
}

func (r *QuestionRepository) FindByID(ctx context.Context, id string) (domain.Question, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	var doc questionDoc
	if err := r.Col.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Question{}, domain.ErrQuestionNotFound
		}
		return domain.Question{}, err
	}
	return doc.toDomain(), nil
}

func (r *QuestionRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.Question, error) {
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return nil, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": oids}})
}

func (r *QuestionRepository) List(ctx context.Context, topics []string) ([]domain.Question, error) {
	filter := bson.M{}
	if len(topics) > 0 {
		filter["topic"] = bson.M{"$in": topics}
	}
	return r.find(ctx, filter)
}

func (r *QuestionRepository) Count(ctx context.Context, filter domain.QuestionFilter) (int, error) {
	n, err := r.Col.CountDocuments(ctx, filterDoc(filter))
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *QuestionRepository) Search(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	return r.find(ctx, filterDoc(filter))
}

// Sample draws up to n distinct documents with $sample. A leading $sample may
// repeat documents on large collections, so repeats are dropped and the gap
// is refilled from the documents not yet drawn.
func (r *QuestionRepository) Sample(ctx context.Context, n int) ([]domain.Question, error) {
	if n <= 0 {
		return nil, nil
	}
	seen := make(map[primitive.ObjectID]struct{}, n)
	picked := make([]questionDoc, 0, n)
	for round := 0; round < maxSampleRounds && len(picked) < n; round++ {
		pipeline := mongo.Pipeline{}
		if len(seen) > 0 {
			drawn := make([]primitive.ObjectID, 0, len(seen))
			for id := range seen {
				drawn = append(drawn, id)
			}
			pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{"_id": bson.M{"$nin": drawn}}}})
		}
		pipeline = append(pipeline, bson.D{{Key: "$sample", Value: bson.D{{Key: "size", Value: n - len(picked)}}}})

		cur, err := r.Col.Aggregate(ctx, pipeline)
		if err != nil {
			return nil, err
		}
		docs, err := decodeAll[questionDoc](ctx, cur)
		if err != nil {
			return nil, err
		}
		if len(docs) == 0 {
			break
		}
		picked = appendDistinct(picked, seen, docs, n)
	}
	return toQuestions(picked), nil
}

const maxSampleRounds = 5

// appendDistinct adds docs whose ids are not in seen, stopping at limit.
func appendDistinct(picked []questionDoc, seen map[primitive.ObjectID]struct{}, docs []questionDoc, limit int) []questionDoc {
	for _, d := range docs {
		if len(picked) >= limit {
			break
		}
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}
		picked = append(picked, d)
	}
	return picked
}

func (r *QuestionRepository) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrQuestionNotFound
	}
	res, err := r.Col.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func (r *QuestionRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.Col.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *QuestionRepository) find(ctx context.Context, filter bson.M) ([]domain.Question, error) {
	cur, err := r.Col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	docs, err := decodeAll[questionDoc](ctx, cur)
	if err != nil {
		return nil, err
	}
	return toQuestions(docs), nil
}

func toQuestions(docs []questionDoc) []domain.Question {
	out := make([]domain.Question, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out
}
