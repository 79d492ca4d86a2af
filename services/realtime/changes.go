package realtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"xquests/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// TableOptions scopes a row-change subscription.
type TableOptions struct {
	Table string
	// Event filters by change kind; empty means EventAll.
	Event ChangeEvent
	// Schema is the database name; empty means the feed's default.
	Schema string
	// Filter is a single "column=op.value" predicate, e.g. "userId=eq.42".
	// Supported ops are eq, neq and in (in.(a,b,c)).
	Filter string
}

// ChangeFeed streams row-level changes of one table.
type ChangeFeed interface {
	Watch(ctx context.Context, opts TableOptions, onChange func(RowChangeMessage)) (stop func(), err error)
}

var operationTypes = map[ChangeEvent][]string{
	EventInsert: {"insert"},
	EventUpdate: {"update", "replace"},
	EventDelete: {"delete"},
}

func eventFor(operationType string) ChangeEvent {
	switch operationType {
	case "insert":
		return EventInsert
	case "update", "replace":
		return EventUpdate
	case "delete":
		return EventDelete
	}
	return ChangeEvent(strings.ToUpper(operationType))
}

// parseFilter turns "column=op.value" into a change-stream match clause on
// the full document.
func parseFilter(filter string) (bson.M, error) {
	if filter == "" {
		return bson.M{}, nil
	}
	column, rest, ok := strings.Cut(filter, "=")
	if !ok || column == "" {
		return nil, fmt.Errorf("invalid filter %q: want column=op.value", filter)
	}
	op, value, ok := strings.Cut(rest, ".")
	if !ok {
		return nil, fmt.Errorf("invalid filter %q: missing operator", filter)
	}
	field := "fullDocument." + column
	switch op {
	case "eq":
		return bson.M{field: value}, nil
	case "neq":
		return bson.M{field: bson.M{"$ne": value}}, nil
	case "in":
		value = strings.TrimSuffix(strings.TrimPrefix(value, "("), ")")
		var vals bson.A
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				vals = append(vals, v)
			}
		}
		return bson.M{field: bson.M{"$in": vals}}, nil
	default:
		return nil, fmt.Errorf("invalid filter %q: unsupported operator %q", filter, op)
	}
}

// buildChangePipeline returns the aggregation pipeline for a change stream.
func buildChangePipeline(opts TableOptions) (mongo.Pipeline, error) {
	match, err := parseFilter(opts.Filter)
	if err != nil {
		return nil, err
	}
	if ops, ok := operationTypes[opts.Event]; ok {
		in := bson.A{}
		for _, op := range ops {
			in = append(in, op)
		}
		match["operationType"] = bson.M{"$in": in}
	}
	return mongo.Pipeline{{{Key: "$match", Value: match}}}, nil
}

type changeDoc struct {
	OperationType string              `bson:"operationType"`
	FullDocument  models.Notification `bson:"fullDocument"`
}

// MongoChangeFeed implements ChangeFeed with MongoDB change streams. It
// needs a replica set or sharded cluster.
type MongoChangeFeed struct {
	client        *mongo.Client
	defaultSchema string
	logger        *zap.Logger
}

func NewMongoChangeFeed(client *mongo.Client, defaultSchema string, logger *zap.Logger) *MongoChangeFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoChangeFeed{client: client, defaultSchema: defaultSchema, logger: logger.Named("change-feed")}
}

// Watch opens a change stream and calls onChange for each event until stop
// is called or ctx ends.
func (f *MongoChangeFeed) Watch(ctx context.Context, opts TableOptions, onChange func(RowChangeMessage)) (func(), error) {
	schema := opts.Schema
	if schema == "" {
		schema = f.defaultSchema
	}
	pipeline, err := buildChangePipeline(opts)
	if err != nil {
		return nil, err
	}

	wctx, cancel := context.WithCancel(ctx)
	coll := f.client.Database(schema).Collection(opts.Table)
	stream, err := coll.Watch(wctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch %s.%s: %w", schema, opts.Table, err)
	}

	logger := f.logger.With(zap.String("table", opts.Table), zap.String("filter", opts.Filter))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stream.Close(context.Background())
		for stream.Next(wctx) {
			var doc changeDoc
			if err := stream.Decode(&doc); err != nil {
				logger.Warn("undecodable change event", zap.Error(err))
				continue
			}
			onChange(RowChangeMessage{
				Event:     eventFor(doc.OperationType),
				Schema:    schema,
				Table:     opts.Table,
				Record:    models.Normalize(doc.FullDocument, time.Now()),
				Timestamp: time.Now().UTC(),
			})
		}
		if err := stream.Err(); err != nil && wctx.Err() == nil {
			logger.Warn("change stream ended", zap.Error(err))
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}, nil
}
