package allocator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the persistable view of the ledger. Decimals travel as
// strings so the codec never sees binary-float money.
type Snapshot struct {
	TotalEquity   string            `msgpack:"total_equity"`
	Drawdown      string            `msgpack:"drawdown"`
	Buckets       []BucketSnapshot  `msgpack:"buckets"`
	HighWater     map[string]string `msgpack:"high_water"`
	Records       []RecordSnapshot  `msgpack:"records"`
	CapturedAtUTC int64             `msgpack:"captured_at"`
}

type BucketSnapshot struct {
	Bucket    string `msgpack:"bucket"`
	Fraction  string `msgpack:"fraction"`
	Allocated string `msgpack:"allocated"`
	Deployed  string `msgpack:"deployed"`
	Locked    bool   `msgpack:"locked"`
}

type RecordSnapshot struct {
	Bucket   string `msgpack:"bucket"`
	Asset    string `msgpack:"asset"`
	Amount   string `msgpack:"amount"`
	OpenedAt int64  `msgpack:"opened_at"`
	ClosedAt int64  `msgpack:"closed_at"`
	Closed   bool   `msgpack:"closed"`
}

func (a *Allocator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	snap := Snapshot{
		TotalEquity:   a.equity.String(),
		Drawdown:      a.drawdown.String(),
		HighWater:     make(map[string]string, len(a.hwm)),
		CapturedAtUTC: a.now().UTC().Unix(),
	}
	for bucket, mark := range a.hwm {
		snap.HighWater[string(bucket)] = mark.String()
	}
	for _, bucket := range []Bucket{BucketCore, BucketReserve, BucketExperiments} {
		state, ok := a.buckets[bucket]
		if !ok {
			continue
		}
		snap.Buckets = append(snap.Buckets, BucketSnapshot{
			Bucket:    string(bucket),
			Fraction:  state.fraction.String(),
			Allocated: state.allocated.String(),
			Deployed:  state.deployed.String(),
			Locked:    state.locked,
		})
	}
	for _, rec := range a.records {
		rs := RecordSnapshot{
			Bucket:   string(rec.Bucket),
			Asset:    rec.Asset,
			Amount:   rec.Amount.String(),
			OpenedAt: rec.OpenedAt.Unix(),
			Closed:   rec.Closed,
		}
		if rec.Closed {
			rs.ClosedAt = rec.ClosedAt.Unix()
		}
		snap.Records = append(snap.Records, rs)
	}
	return snap
}

// RestoreSnapshot replaces the ledger state wholesale. It validates every
// decimal and the ledger invariants before mutating, so a corrupt snapshot
// leaves the allocator as it was.
func (a *Allocator) RestoreSnapshot(snap Snapshot) error {
	equity, err := decimal.NewFromString(snap.TotalEquity)
	if err != nil {
		return fmt.Errorf("restore total equity: %w", err)
	}
	drawdown, err := decimal.NewFromString(snap.Drawdown)
	if err != nil {
		return fmt.Errorf("restore drawdown: %w", err)
	}
	buckets := make(map[Bucket]*bucketState, len(snap.Buckets))
	for _, bs := range snap.Buckets {
		fraction, err := decimal.NewFromString(bs.Fraction)
		if err != nil {
			return fmt.Errorf("restore %s fraction: %w", bs.Bucket, err)
		}
		allocated, err := decimal.NewFromString(bs.Allocated)
		if err != nil {
			return fmt.Errorf("restore %s allocated: %w", bs.Bucket, err)
		}
		deployed, err := decimal.NewFromString(bs.Deployed)
		if err != nil {
			return fmt.Errorf("restore %s deployed: %w", bs.Bucket, err)
		}
		if fraction.IsNegative() {
			return fmt.Errorf("restore %s: fraction %s is negative", bs.Bucket, fraction)
		}
		if allocated.IsNegative() {
			return fmt.Errorf("restore %s: allocated %s is negative", bs.Bucket, allocated)
		}
		if deployed.IsNegative() {
			return fmt.Errorf("restore %s: deployed %s is negative", bs.Bucket, deployed)
		}
		if deployed.GreaterThan(allocated) {
			return fmt.Errorf("restore %s: deployed %s exceeds allocated %s", bs.Bucket, deployed, allocated)
		}
		buckets[Bucket(bs.Bucket)] = &bucketState{
			fraction:  fraction,
			allocated: allocated,
			deployed:  deployed,
			locked:    bs.Locked,
		}
	}
	hwm := make(map[Bucket]decimal.Decimal, len(snap.HighWater))
	for bucket, raw := range snap.HighWater {
		mark, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("restore %s high water: %w", bucket, err)
		}
		hwm[Bucket(bucket)] = mark
	}
	records := make([]DeploymentRecord, 0, len(snap.Records))
	for _, rs := range snap.Records {
		amount, err := decimal.NewFromString(rs.Amount)
		if err != nil {
			return fmt.Errorf("restore record amount: %w", err)
		}
		if !amount.IsPositive() {
			return fmt.Errorf("restore record %s/%s: amount %s must be > 0", rs.Bucket, rs.Asset, amount)
		}
		rec := DeploymentRecord{
			Bucket:   Bucket(rs.Bucket),
			Asset:    rs.Asset,
			Amount:   amount,
			OpenedAt: time.Unix(rs.OpenedAt, 0).UTC(),
			Closed:   rs.Closed,
		}
		if rs.Closed {
			rec.ClosedAt = time.Unix(rs.ClosedAt, 0).UTC()
		}
		records = append(records, rec)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.equity = equity
	a.drawdown = drawdown
	a.buckets = buckets
	a.hwm = hwm
	a.records = records
	return nil
}
