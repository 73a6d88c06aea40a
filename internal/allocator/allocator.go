package allocator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type Bucket string

const (
	BucketCore        Bucket = "CORE"
	BucketReserve     Bucket = "RESERVE"
	BucketExperiments Bucket = "EXPERIMENTS"
)

var (
	ErrInvalidFractions       = errors.New("bucket fractions must be non-negative and sum to 1.0")
	ErrInvalidEquity          = errors.New("total equity must be >= 0")
	ErrUnknownBucket          = errors.New("unknown bucket")
	ErrInvalidAmount          = errors.New("amount must be > 0")
	ErrBucketLocked           = errors.New("bucket is locked")
	ErrInsufficientHeadroom   = errors.New("amount exceeds bucket headroom")
	ErrReleaseExceedsDeployed = errors.New("release exceeds deployed amount")
)

var fractionTolerance = decimal.RequireFromString("0.001")

type Params struct {
	TotalEquity       decimal.Decimal
	Fractions         map[Bucket]decimal.Decimal
	DrawdownThreshold decimal.Decimal
	MinGridNotional   decimal.Decimal
}

type bucketState struct {
	fraction  decimal.Decimal
	allocated decimal.Decimal
	deployed  decimal.Decimal
	locked    bool
}

type DeploymentRecord struct {
	Bucket   Bucket
	Asset    string
	Amount   decimal.Decimal
	OpenedAt time.Time
	ClosedAt time.Time
	Closed   bool
}

type BucketStatus struct {
	Bucket    Bucket
	Allocated decimal.Decimal
	Deployed  decimal.Decimal
	Headroom  decimal.Decimal
	Locked    bool
}

type DeployResult struct {
	Headroom decimal.Decimal
	ThinGrid bool
}

type EquityStatus struct {
	Bucket        Bucket
	HighWaterMark decimal.Decimal
	Drawdown      decimal.Decimal
	ReserveLocked bool
}

// Allocator is the single mutable ledger of the engine. Every mutation runs
// under the write lock and validates before touching state, so a rejected
// call leaves the ledger unchanged.
type Allocator struct {
	mu        sync.RWMutex
	buckets   map[Bucket]*bucketState
	hwm       map[Bucket]decimal.Decimal
	drawdown  decimal.Decimal
	threshold decimal.Decimal
	minGrid   decimal.Decimal
	equity    decimal.Decimal
	records   []DeploymentRecord
	now       func() time.Time
}

func New(p Params) (*Allocator, error) {
	if p.TotalEquity.IsNegative() {
		return nil, ErrInvalidEquity
	}
	if len(p.Fractions) == 0 {
		return nil, ErrInvalidFractions
	}
	sum := decimal.Zero
	for bucket, fraction := range p.Fractions {
		if fraction.IsNegative() {
			return nil, fmt.Errorf("%w: %s is negative", ErrInvalidFractions, bucket)
		}
		sum = sum.Add(fraction)
	}
	if sum.Sub(decimal.New(1, 0)).Abs().GreaterThan(fractionTolerance) {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidFractions, sum)
	}
	a := &Allocator{
		buckets:   make(map[Bucket]*bucketState, len(p.Fractions)),
		hwm:       make(map[Bucket]decimal.Decimal),
		threshold: p.DrawdownThreshold,
		minGrid:   p.MinGridNotional,
		equity:    p.TotalEquity,
		now:       time.Now,
	}
	for bucket, fraction := range p.Fractions {
		allocated := p.TotalEquity.Mul(fraction).RoundDown(2)
		a.buckets[bucket] = &bucketState{
			fraction:  fraction,
			allocated: allocated,
			deployed:  decimal.Zero,
			locked:    bucket == BucketReserve,
		}
		// high-water marks start at zero and are seeded by the first
		// RecordEquity call
		a.hwm[bucket] = decimal.Zero
	}
	return a, nil
}

func (a *Allocator) Fraction(bucket Bucket) (decimal.Decimal, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	state, ok := a.buckets[bucket]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	return state.fraction, nil
}

// RecordEquity updates the bucket's high-water mark and recomputes its
// drawdown. For CORE it also re-evaluates the RESERVE lock: RESERVE is
// unlocked iff the latest CORE drawdown is at or beyond the threshold.
// The lock is derived from equity against the high-water mark, never from
// deployed amounts.
func (a *Allocator) RecordEquity(bucket Bucket, currentEquity decimal.Decimal) (EquityStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.buckets[bucket]; !ok {
		return EquityStatus{}, fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	mark := a.hwm[bucket]
	if currentEquity.GreaterThan(mark) {
		mark = currentEquity
		a.hwm[bucket] = mark
	}
	drawdown := decimal.Zero
	if currentEquity.LessThan(mark) && mark.IsPositive() {
		drawdown = mark.Sub(currentEquity).Div(mark)
	}
	if bucket == BucketCore {
		a.drawdown = drawdown
		if reserve, ok := a.buckets[BucketReserve]; ok {
			reserve.locked = drawdown.LessThan(a.threshold)
		}
	}
	status := EquityStatus{Bucket: bucket, HighWaterMark: mark, Drawdown: drawdown}
	if reserve, ok := a.buckets[BucketReserve]; ok {
		status.ReserveLocked = reserve.locked
	}
	return status, nil
}

func (a *Allocator) Deploy(bucket Bucket, asset string, amount decimal.Decimal) (DeployResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	state, ok := a.buckets[bucket]
	if !ok {
		return DeployResult{}, fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	if !amount.IsPositive() {
		return DeployResult{}, ErrInvalidAmount
	}
	if state.locked {
		return DeployResult{}, fmt.Errorf("%w: %s", ErrBucketLocked, bucket)
	}
	headroom := state.allocated.Sub(state.deployed)
	if amount.GreaterThan(headroom) {
		return DeployResult{}, fmt.Errorf("%w: requested %s, headroom %s", ErrInsufficientHeadroom, amount, headroom)
	}
	state.deployed = state.deployed.Add(amount)
	remaining := state.allocated.Sub(state.deployed)
	a.records = append(a.records, DeploymentRecord{
		Bucket:   bucket,
		Asset:    asset,
		Amount:   amount,
		OpenedAt: a.now().UTC(),
	})
	return DeployResult{
		Headroom: remaining,
		ThinGrid: remaining.IsPositive() && remaining.LessThan(a.minGrid),
	}, nil
}

func (a *Allocator) Release(bucket Bucket, amount decimal.Decimal) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	state, ok := a.buckets[bucket]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(state.deployed) {
		return fmt.Errorf("%w: requested %s, deployed %s", ErrReleaseExceedsDeployed, amount, state.deployed)
	}
	state.deployed = state.deployed.Sub(amount)
	a.closeRecords(bucket, amount)
	return nil
}

// closeRecords reconciles the audit trail FIFO so that the sum of open
// records always equals the bucket's deployed amount.
func (a *Allocator) closeRecords(bucket Bucket, amount decimal.Decimal) {
	remaining := amount
	for i := range a.records {
		if !remaining.IsPositive() {
			return
		}
		rec := &a.records[i]
		if rec.Bucket != bucket || rec.Closed {
			continue
		}
		if rec.Amount.GreaterThan(remaining) {
			rec.Amount = rec.Amount.Sub(remaining)
			return
		}
		remaining = remaining.Sub(rec.Amount)
		rec.Closed = true
		rec.ClosedAt = a.now().UTC()
	}
}

func (a *Allocator) Status(bucket Bucket) (BucketStatus, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	state, ok := a.buckets[bucket]
	if !ok {
		return BucketStatus{}, fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	return statusOf(bucket, state), nil
}

func (a *Allocator) Statuses() []BucketStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]BucketStatus, 0, len(a.buckets))
	for _, bucket := range []Bucket{BucketCore, BucketReserve, BucketExperiments} {
		if state, ok := a.buckets[bucket]; ok {
			out = append(out, statusOf(bucket, state))
		}
	}
	return out
}

func (a *Allocator) Drawdown() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.drawdown
}

func (a *Allocator) TotalEquity() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.equity
}

// OpenRecords returns copies of the open deployment records, oldest first.
func (a *Allocator) OpenRecords() []DeploymentRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []DeploymentRecord
	for _, rec := range a.records {
		if !rec.Closed {
			out = append(out, rec)
		}
	}
	return out
}

func statusOf(bucket Bucket, state *bucketState) BucketStatus {
	return BucketStatus{
		Bucket:    bucket,
		Allocated: state.allocated,
		Deployed:  state.deployed,
		Headroom:  state.allocated.Sub(state.deployed),
		Locked:    state.locked,
	}
}
