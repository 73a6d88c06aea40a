package state

import (
	"context"
	"testing"

	"gridgate/internal/allocator"
)

type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte) error {
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *memStore) Close() error { return nil }

func TestAllocatorSnapshotRoundTrip(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	snap := allocator.Snapshot{
		TotalEquity: "10000",
		Drawdown:    "0.16",
		Buckets: []allocator.BucketSnapshot{
			{Bucket: "CORE", Fraction: "0.61", Allocated: "6100", Deployed: "500"},
			{Bucket: "RESERVE", Fraction: "0.24", Allocated: "2400", Deployed: "0", Locked: true},
		},
		HighWater: map[string]string{"CORE": "2500"},
		Records: []allocator.RecordSnapshot{
			{Bucket: "CORE", Asset: "XBT/USD", Amount: "500", OpenedAt: 1700000000},
		},
	}
	if err := SaveAllocatorSnapshot(ctx, store, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := LoadAllocatorSnapshot(ctx, store)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.TotalEquity != "10000" || got.Drawdown != "0.16" {
		t.Fatalf("scalar mismatch: %+v", got)
	}
	if len(got.Buckets) != 2 || got.Buckets[1].Locked != true {
		t.Fatalf("buckets mismatch: %+v", got.Buckets)
	}
	if got.HighWater["CORE"] != "2500" {
		t.Fatalf("high water mismatch: %+v", got.HighWater)
	}
	if len(got.Records) != 1 || got.Records[0].Asset != "XBT/USD" {
		t.Fatalf("records mismatch: %+v", got.Records)
	}
}

func TestLoadAllocatorSnapshotAbsent(t *testing.T) {
	_, ok, err := LoadAllocatorSnapshot(context.Background(), newMemStore())
	if err != nil || ok {
		t.Fatalf("absent snapshot: ok=%v err=%v", ok, err)
	}
}

func TestSnapshotHelpersTolerateNilStore(t *testing.T) {
	if err := SaveAllocatorSnapshot(context.Background(), nil, allocator.Snapshot{}); err != nil {
		t.Fatalf("save with nil store: %v", err)
	}
	if _, ok, err := LoadAllocatorSnapshot(context.Background(), nil); err != nil || ok {
		t.Fatalf("load with nil store: ok=%v err=%v", ok, err)
	}
}
