package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/veracitylab/analysis-backend/logger"
	"github.com/veracitylab/analysis-backend/store"
)

// collectionName holds persisted analysis results.
const collectionName = "analyses"

// Analysis is a persisted scoring result for one submission.
type Analysis struct {
	ID        string    `bson:"_id"`
	Kind      string    `bson:"kind"` // "url" or "text"
	Content   string    `bson:"content"`
	Verdict   string    `bson:"verdict"`
	Score     float64   `bson:"score"`
	CreatedAt time.Time `bson:"created_at"`
}

// Conn is the document-store surface the repository needs. Implemented by
// *mongodb.Manager.
type Conn interface {
	IsConnected() bool
	Database() (*mongo.Database, error)
}

// collection narrows the driver surface to what the repository uses, so
// tests can substitute a fake without a live server.
type collection interface {
	InsertOne(ctx context.Context, doc any) error
	FindOne(ctx context.Context, filter any, out any) error
	FindRecent(ctx context.Context, limit int64, out any) error
	DeleteByID(ctx context.Context, id string) (int64, error)
}

// AnalysisRepository reads and writes analyses, translating store
// unavailability into a typed error before any driver call is attempted.
type AnalysisRepository struct {
	conn Conn
	log  logger.Logger

	// coll overrides collection resolution in tests.
	coll collection
}

// New creates a repository over the given connection manager.
func New(conn Conn, log logger.Logger) *AnalysisRepository {
	return &AnalysisRepository{conn: conn, log: log}
}

// Save persists an analysis, assigning an ID and timestamp when absent.
func (r *AnalysisRepository) Save(ctx context.Context, analysis *Analysis) error {
	coll, err := r.collection()
	if err != nil {
		return err
	}

	if analysis.ID == "" {
		analysis.ID = uuid.NewString()
	}
	if analysis.CreatedAt.IsZero() {
		analysis.CreatedAt = time.Now().UTC()
	}

	if err := coll.InsertOne(ctx, analysis); err != nil {
		return r.classify(err)
	}
	return nil
}

// FindByID fetches one analysis. Returns ErrNotFound when no document exists.
func (r *AnalysisRepository) FindByID(ctx context.Context, id string) (*Analysis, error) {
	coll, err := r.collection()
	if err != nil {
		return nil, err
	}

	var analysis Analysis
	if err := coll.FindOne(ctx, bson.M{"_id": id}, &analysis); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, r.classify(err)
	}
	return &analysis, nil
}

// FindRecent returns up to limit analyses, newest first.
func (r *AnalysisRepository) FindRecent(ctx context.Context, limit int64) ([]Analysis, error) {
	coll, err := r.collection()
	if err != nil {
		return nil, err
	}

	var analyses []Analysis
	if err := coll.FindRecent(ctx, limit, &analyses); err != nil {
		return nil, r.classify(err)
	}
	return analyses, nil
}

// DeleteByID removes one analysis. Returns ErrNotFound when nothing matched.
func (r *AnalysisRepository) DeleteByID(ctx context.Context, id string) error {
	coll, err := r.collection()
	if err != nil {
		return err
	}

	deleted, err := coll.DeleteByID(ctx, id)
	if err != nil {
		return r.classify(err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

// collection resolves the live collection, failing fast with a typed
// unavailability error when the manager reports disconnected.
func (r *AnalysisRepository) collection() (collection, error) {
	if !r.conn.IsConnected() {
		return nil, NewUnavailable(store.ErrNotConnected)
	}
	if r.coll != nil {
		return r.coll, nil
	}

	db, err := r.conn.Database()
	if err != nil {
		return nil, NewUnavailable(err)
	}
	return &mongoCollection{coll: db.Collection(collectionName)}, nil
}

// classify maps a driver failure onto the StoreError family. Structured
// error kinds are checked first; message matching is the last resort and is
// logged when it decides, so the gap stays visible.
func (r *AnalysisRepository) classify(err error) *StoreError {
	switch {
	case errors.Is(err, store.ErrNotConnected):
		return NewUnavailable(err)
	case errors.Is(err, context.DeadlineExceeded), mongo.IsTimeout(err):
		return NewTimeout(err)
	case mongo.IsNetworkError(err):
		return NewUnavailable(err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		r.log.Warn().Err(err).Msg("Classified store failure as timeout by message match")
		return NewTimeout(err)
	case strings.Contains(msg, "connection"), strings.Contains(msg, "server selection"):
		r.log.Warn().Err(err).Msg("Classified store failure as unavailable by message match")
		return NewUnavailable(err)
	}

	return NewInternal(err)
}

// mongoCollection is the production collection implementation.
type mongoCollection struct {
	coll *mongo.Collection
}

func (c *mongoCollection) InsertOne(ctx context.Context, doc any) error {
	_, err := c.coll.InsertOne(ctx, doc)
	return err
}

func (c *mongoCollection) FindOne(ctx context.Context, filter any, out any) error {
	return c.coll.FindOne(ctx, filter).Decode(out)
}

func (c *mongoCollection) FindRecent(ctx context.Context, limit int64, out any) error {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := c.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}

func (c *mongoCollection) DeleteByID(ctx context.Context, id string) (int64, error) {
	result, err := c.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
