package state

import (
	"context"

	"gridgate/internal/allocator"

	"github.com/vmihailenco/msgpack/v5"
)

const AllocatorSnapshotKey = "allocator:last_snapshot"

func LoadAllocatorSnapshot(ctx context.Context, store Store) (allocator.Snapshot, bool, error) {
	if store == nil {
		return allocator.Snapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, AllocatorSnapshotKey)
	if err != nil {
		return allocator.Snapshot{}, false, err
	}
	if !ok || len(raw) == 0 {
		return allocator.Snapshot{}, false, nil
	}
	var snapshot allocator.Snapshot
	if err := msgpack.Unmarshal(raw, &snapshot); err != nil {
		return allocator.Snapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveAllocatorSnapshot(ctx context.Context, store Store, snapshot allocator.Snapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := msgpack.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, AllocatorSnapshotKey, payload)
}
