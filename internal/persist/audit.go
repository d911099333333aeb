package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/ndrandal/simbroker/internal/ledger"
)

// AuditLog appends one document per Append call (§6.2); in this
// repository the transport gateway calls it with the result of each
// action it executes, and loop notifications are not recorded. Rows are
// keyed by account and a per-account sequence number under a unique
// index: inserting an (acct, seq) pair that already exists is a no-op
// rather than a duplicate row. Each Append call takes the next sequence
// number, so appending the same message twice records it twice.
type AuditLog struct {
	db *mongo.Database

	mu  sync.Mutex
	seq map[ledger.AcctID]uint64
}

// NewAuditLog creates an audit log writer over store's database.
func NewAuditLog(store *Store) *AuditLog {
	return &AuditLog{db: store.db, seq: make(map[ledger.AcctID]uint64)}
}

// auditDoc is the persisted form of one audit row.
type auditDoc struct {
	AcctID     bson.Binary     `bson:"acct_id"`
	Seq        uint64          `bson:"seq"`
	Kind       string          `bson:"kind"`
	Body       json.RawMessage `bson:"body"`
	RecordedAt time.Time       `bson:"recorded_at"`
}

// Append records msg under acctID, stamping it with that account's next
// sequence number. acctID may be the zero UUID for account-less
// broadcasts (Pong, AccountListing).
func (a *AuditLog) Append(ctx context.Context, acctID ledger.AcctID, msg ledger.BrokerMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal audit body: %w", err)
	}

	a.mu.Lock()
	seq := a.seq[acctID]
	a.seq[acctID] = seq + 1
	a.mu.Unlock()

	doc := auditDoc{
		AcctID:     bson.Binary{Subtype: bson.TypeBinaryUUID, Data: acctID[:]},
		Seq:        seq,
		Kind:       messageKind(msg),
		Body:       body,
		RecordedAt: time.Now(),
	}
	_, err = a.db.Collection("audit_log").InsertOne(ctx, doc)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

// messageKind names the concrete BrokerMessage variant, for both the
// audit log's "kind" field and the API's JSON rendering of audit rows.
func messageKind(msg ledger.BrokerMessage) string {
	switch msg.(type) {
	case ledger.Success:
		return "Success"
	case ledger.Notice:
		return "Notice"
	case ledger.Failure:
		return "Failure"
	case ledger.Pong:
		return "Pong"
	case ledger.AccountListing:
		return "AccountListing"
	case ledger.LedgerSnapshot:
		return "Ledger"
	case ledger.LedgerBalanceChange:
		return "LedgerBalanceChange"
	case ledger.OrderPlaced:
		return "OrderPlaced"
	case ledger.OrderModified:
		return "OrderModified"
	case ledger.OrderCancelled:
		return "OrderCancelled"
	case ledger.PositionOpened:
		return "PositionOpened"
	case ledger.PositionClosed:
		return "PositionClosed"
	case ledger.PositionModified:
		return "PositionModified"
	default:
		return "Unknown"
	}
}
