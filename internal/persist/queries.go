package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ndrandal/simbroker/internal/ledger"
)

// AuditRecord represents a persisted audit log row.
type AuditRecord struct {
	AcctID     ledger.AcctID   `json:"acctId"`
	Seq        uint64          `json:"seq"`
	Kind       string          `json:"kind"`
	Body       json.RawMessage `json:"body"`
	RecordedAt time.Time       `json:"recordedAt"`
}

// AuditFilter controls which audit rows to return.
type AuditFilter struct {
	AcctID ledger.AcctID
	Limit  int
	Offset int
	From   *time.Time
	To     *time.Time
}

// AuditReader abstracts read-only audit log queries.
type AuditReader interface {
	QueryAudit(ctx context.Context, f AuditFilter) ([]AuditRecord, error)
}

// MongoAuditReader implements AuditReader using a mongo.Database.
type MongoAuditReader struct {
	db *mongo.Database
}

// NewMongoAuditReader creates a new MongoAuditReader.
func NewMongoAuditReader(db *mongo.Database) *MongoAuditReader {
	return &MongoAuditReader{db: db}
}

// QueryAudit returns an account's audit rows, newest first, with
// optional time-range filtering and pagination.
func (r *MongoAuditReader) QueryAudit(ctx context.Context, f AuditFilter) ([]AuditRecord, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}

	filter := bson.M{"acct_id": bson.Binary{Subtype: bson.TypeBinaryUUID, Data: f.AcctID[:]}}
	if f.From != nil || f.To != nil {
		timeFilter := bson.M{}
		if f.From != nil {
			timeFilter["$gte"] = *f.From
		}
		if f.To != nil {
			timeFilter["$lte"] = *f.To
		}
		filter["recorded_at"] = timeFilter
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "recorded_at", Value: -1}}).
		SetLimit(int64(f.Limit)).
		SetSkip(int64(f.Offset))

	cursor, err := r.db.Collection("audit_log").Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []auditDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode audit log: %w", err)
	}

	records := make([]AuditRecord, len(docs))
	for i, d := range docs {
		var id ledger.AcctID
		copy(id[:], d.AcctID.Data)
		records[i] = AuditRecord{
			AcctID: id, Seq: d.Seq, Kind: d.Kind, Body: d.Body, RecordedAt: d.RecordedAt,
		}
	}
	return records, nil
}
