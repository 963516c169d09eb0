package state

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store provides MongoDB storage for job parameters.
type Store struct {
	client *mongo.Client
	jobs   *mongo.Collection
}

// NewStore creates a new MongoDB store.
func NewStore(uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := &Store{
		client: client,
		jobs:   client.Database(dbName).Collection("job_parameters"),
	}
	if err := store.createIndexes(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.jobs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "batch_id", Value: 1}}},
		{Keys: bson.D{{Key: "tool_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create job_parameters indexes: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// SaveJobParameters inserts or replaces a job.
func (s *Store) SaveJobParameters(ctx context.Context, job *JobParameters) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.Status == "" {
		job.Status = JobNew
	}
	opts := options.Replace().SetUpsert(true)
	_, err := s.jobs.ReplaceOne(ctx, bson.M{"_id": job.ID}, job, opts)
	return err
}

// SaveBatch stores all jobs of an expansion.
func (s *Store) SaveBatch(ctx context.Context, jobs []*JobParameters) error {
	for _, job := range jobs {
		if err := s.SaveJobParameters(ctx, job); err != nil {
			return fmt.Errorf("failed to save job %s: %w", job.ID, err)
		}
	}
	return nil
}

// GetJobParameters retrieves a job by id. A missing job is (nil, nil).
func (s *Store) GetJobParameters(ctx context.Context, id string) (*JobParameters, error) {
	var job JobParameters
	err := s.jobs.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJobStatus sets the status of a job and its error message.
func (s *Store) UpdateJobStatus(ctx context.Context, id string, status JobStatus, errMsg string) error {
	set := bson.M{"status": status, "updated_at": time.Now()}
	if errMsg != "" {
		set["error_message"] = errMsg
	}
	res, err := s.jobs.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("job %s not found", id)
	}
	return nil
}

// ListJobParameters lists jobs, newest first.
func (s *Store) ListJobParameters(ctx context.Context, filter JobFilter) ([]JobParameters, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	cursor, err := s.jobs.Find(ctx, filterQuery(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var jobs []JobParameters
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetBatchProgress counts the jobs of a batch by status.
func (s *Store) GetBatchProgress(ctx context.Context, batchID string) (*BatchProgress, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"batch_id": batchID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := s.jobs.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	progress := &BatchProgress{}
	for cursor.Next(ctx) {
		var result struct {
			Status string `bson:"_id"`
			Count  int    `bson:"count"`
		}
		if err := cursor.Decode(&result); err != nil {
			return nil, err
		}
		progress.add(JobStatus(result.Status), result.Count)
	}
	return progress, cursor.Err()
}

func filterQuery(filter JobFilter) bson.M {
	query := bson.M{}
	if filter.BatchID != "" {
		query["batch_id"] = filter.BatchID
	}
	if filter.ToolID != "" {
		query["tool_id"] = filter.ToolID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	return query
}
