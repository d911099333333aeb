package persist

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ndrandal/simbroker/internal/ledger"
	"github.com/ndrandal/simbroker/internal/simbroker"
)

// Snapshotter manages periodic persistence of simulator state: registry
// prices, every account's ledger, and the RNG's PCG state, so a restarted
// run keeps its accounts and identifier stream (§6.2, §9). The queue's
// insertion-sequence counter and the tick sources' positions are not
// saved; a restored run restarts both.
type Snapshotter struct {
	store  *Store
	broker *simbroker.Client
}

// NewSnapshotter creates a new snapshotter.
func NewSnapshotter(store *Store, broker *simbroker.Client) *Snapshotter {
	return &Snapshotter{store: store, broker: broker}
}

// Run starts the periodic snapshot loop. Blocks until ctx is cancelled.
func (s *Snapshotter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.store.log.Info().Msg("performing final snapshot")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.Save(shutdownCtx); err != nil {
				s.store.log.Error().Err(err).Msg("final snapshot failed")
			}
			cancel()
			return
		case <-ticker.C:
			if err := s.Save(ctx); err != nil {
				s.store.log.Error().Err(err).Msg("snapshot failed")
			}
		}
	}
}

// symbolDoc is the persisted form of one registry entry's current quote.
type symbolDoc struct {
	SymbolIx int    `bson:"symbol_ix"`
	Name     string `bson:"name"`
	IsFX     bool   `bson:"is_fx"`
	Decimals uint8  `bson:"decimals"`
	Bid      int64  `bson:"bid"`
	Ask      int64  `bson:"ask"`
}

// positionDoc is the persisted form of one ledger.Position.
type positionDoc struct {
	PosID          bson.Binary `bson:"pos_id"`
	CreationTime   uint64      `bson:"creation_time"`
	SymbolIx       int         `bson:"symbol_ix"`
	Size           uint64      `bson:"size"`
	Price          *int64      `bson:"price,omitempty"`
	Long           bool        `bson:"long"`
	Stop           *int64      `bson:"stop,omitempty"`
	TakeProfit     *int64      `bson:"take_profit,omitempty"`
	ExecutionTime  *uint64     `bson:"execution_time,omitempty"`
	ExecutionPrice *int64      `bson:"execution_price,omitempty"`
	ExitTime       *uint64     `bson:"exit_time,omitempty"`
	ExitPrice      *int64      `bson:"exit_price,omitempty"`
}

// accountDoc is the persisted form of one account's full ledger.
type accountDoc struct {
	AcctID      bson.Binary   `bson:"acct_id"`
	BuyingPower uint64        `bson:"buying_power"`
	Pending     []positionDoc `bson:"pending"`
	Open        []positionDoc `bson:"open"`
	Closed      []positionDoc `bson:"closed"`
}

func toPositionDoc(posID ledger.PosID, p *ledger.Position) positionDoc {
	return positionDoc{
		PosID:          bson.Binary{Subtype: bson.TypeBinaryUUID, Data: posID[:]},
		CreationTime:   p.CreationTime,
		SymbolIx:       p.SymbolIx,
		Size:           p.Size,
		Price:          p.Price,
		Long:           p.Long,
		Stop:           p.Stop,
		TakeProfit:     p.TakeProfit,
		ExecutionTime:  p.ExecutionTime,
		ExecutionPrice: p.ExecutionPrice,
		ExitTime:       p.ExitTime,
		ExitPrice:      p.ExitPrice,
	}
}

func fromPositionDoc(d positionDoc) (ledger.PosID, *ledger.Position) {
	var id ledger.PosID
	copy(id[:], d.PosID.Data)
	return id, &ledger.Position{
		CreationTime:   d.CreationTime,
		SymbolIx:       d.SymbolIx,
		Size:           d.Size,
		Price:          d.Price,
		Long:           d.Long,
		Stop:           d.Stop,
		TakeProfit:     d.TakeProfit,
		ExecutionTime:  d.ExecutionTime,
		ExecutionPrice: d.ExecutionPrice,
		ExitTime:       d.ExitTime,
		ExitPrice:      d.ExitPrice,
	}
}

// Save persists registry prices, every account's ledger, and the RNG
// state to MongoDB in a single transaction.
func (s *Snapshotter) Save(ctx context.Context) error {
	start := time.Now()

	session, err := s.store.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc context.Context) (any, error) {
		db := s.store.db

		for _, sym := range s.broker.SymbolPrices() {
			filter := bson.M{"symbol_ix": sym.Ix}
			update := bson.M{"$set": symbolDoc{
				SymbolIx: sym.Ix, Name: sym.Name, IsFX: sym.IsFX,
				Decimals: sym.Decimals, Bid: sym.Bid, Ask: sym.Ask,
			}}
			if _, err := db.Collection("symbols").UpdateOne(sc, filter, update, options.UpdateOne().SetUpsert(true)); err != nil {
				return nil, fmt.Errorf("upsert symbol %s: %w", sym.Name, err)
			}
		}

		for acctID, led := range s.broker.AccountsSnapshot() {
			doc := accountDoc{
				AcctID:      bson.Binary{Subtype: bson.TypeBinaryUUID, Data: acctID[:]},
				BuyingPower: led.BuyingPower,
			}
			for id, p := range led.Pending {
				doc.Pending = append(doc.Pending, toPositionDoc(id, p))
			}
			for id, p := range led.Open {
				doc.Open = append(doc.Open, toPositionDoc(id, p))
			}
			for id, p := range led.Closed {
				doc.Closed = append(doc.Closed, toPositionDoc(id, p))
			}
			filter := bson.M{"acct_id": doc.AcctID}
			if _, err := db.Collection("accounts").UpdateOne(sc, filter, bson.M{"$set": doc}, options.UpdateOne().SetUpsert(true)); err != nil {
				return nil, fmt.Errorf("upsert account %s: %w", acctID, err)
			}
		}

		if _, err := db.Collection("sim_state").UpdateOne(sc,
			bson.M{"key": "rng_state"},
			bson.M{"$set": bson.M{"key": "rng_state", "value_bytes": s.broker.RNGStateBytes(), "updated_at": time.Now()}},
			options.UpdateOne().SetUpsert(true),
		); err != nil {
			return nil, fmt.Errorf("save rng state: %w", err)
		}

		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("snapshot transaction: %w", err)
	}

	s.store.log.Debug().Dur("elapsed", time.Since(start)).Msg("snapshot saved")
	return nil
}

// Load restores simulator state from MongoDB. Returns false, doing
// nothing, if no prior snapshot exists (fresh start). Must be called
// before InitSimLoop — restoring into an armed loop is undefined.
func (s *Snapshotter) Load(ctx context.Context) (bool, error) {
	db := s.store.db

	count, err := db.Collection("accounts").CountDocuments(ctx, bson.M{})
	if err != nil {
		return false, fmt.Errorf("check accounts: %w", err)
	}
	if count == 0 {
		s.store.log.Info().Msg("no persisted state found, starting fresh")
		return false, nil
	}

	symCursor, err := db.Collection("symbols").Find(ctx, bson.M{})
	if err != nil {
		return false, fmt.Errorf("load symbols: %w", err)
	}
	defer symCursor.Close(ctx)
	for symCursor.Next(ctx) {
		var doc symbolDoc
		if err := symCursor.Decode(&doc); err != nil {
			return false, fmt.Errorf("decode symbol: %w", err)
		}
		s.broker.RestorePrice(doc.SymbolIx, doc.Bid, doc.Ask)
	}
	if err := symCursor.Err(); err != nil {
		return false, fmt.Errorf("iterate symbols: %w", err)
	}

	acctCursor, err := db.Collection("accounts").Find(ctx, bson.M{})
	if err != nil {
		return false, fmt.Errorf("load accounts: %w", err)
	}
	defer acctCursor.Close(ctx)
	for acctCursor.Next(ctx) {
		var doc accountDoc
		if err := acctCursor.Decode(&doc); err != nil {
			return false, fmt.Errorf("decode account: %w", err)
		}
		var acctID ledger.AcctID
		copy(acctID[:], doc.AcctID.Data)

		led := ledger.New(doc.BuyingPower)
		for _, pd := range doc.Pending {
			id, p := fromPositionDoc(pd)
			led.Pending[id] = p
		}
		for _, pd := range doc.Open {
			id, p := fromPositionDoc(pd)
			led.Open[id] = p
		}
		for _, pd := range doc.Closed {
			id, p := fromPositionDoc(pd)
			led.Closed[id] = p
		}
		s.broker.RestoreAccount(acctID, led)
	}
	if err := acctCursor.Err(); err != nil {
		return false, fmt.Errorf("iterate accounts: %w", err)
	}

	var stateDoc struct {
		ValueBytes []byte `bson:"value_bytes"`
	}
	if err := db.Collection("sim_state").FindOne(ctx, bson.M{"key": "rng_state"}).Decode(&stateDoc); err == nil {
		s.broker.RestoreRNGState(stateDoc.ValueBytes)
	}

	s.store.log.Info().Int64("accounts", count).Msg("restored persisted state")
	return true, nil
}
