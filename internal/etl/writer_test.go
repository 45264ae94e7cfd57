package etl

import (
	"context"
	"testing"

	"github.com/aryanagg/si206-final/pkg/models"
	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyCapsEachRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, testSchema())
	writer := NewWriter(store, models.SlicingKeyExclusion, 0)
	records := makeRecords(70)

	for i, want := range []int{25, 25, 20, 0} {
		before, err := store.ReadWatermark(ctx)
		require.NoError(t, err)

		added, err := writer.Apply(ctx, records, 25)
		require.NoError(t, err)
		assert.Equal(t, want, added, "run %d", i+1)

		after, err := store.ReadWatermark(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, after, before)
		assert.Equal(t, before+want, after)
	}

	count, err := store.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 70, count)
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, testSchema())
	writer := NewWriter(store, "", 0)
	records := makeRecords(10)

	added, err := writer.Apply(ctx, records, 25)
	require.NoError(t, err)
	require.Equal(t, 10, added)

	before, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	wmBefore, err := store.ReadWatermark(ctx)
	require.NoError(t, err)

	added, err = writer.Apply(ctx, records, 25)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	after, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("persisted set changed on second apply (-before +after):\n%s", diff)
	}
	wmAfter, err := store.ReadWatermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, wmBefore, wmAfter)
}

func TestKeyExclusionSurvivesReorderAndDuplicates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, testSchema())
	writer := NewWriter(store, models.SlicingKeyExclusion, 0)

	first := makeRecords(6)
	added, err := writer.Apply(ctx, first[:3], 10)
	require.NoError(t, err)
	require.Equal(t, 3, added)

	// Provider reorders, repeats a key and grows.
	reordered := []models.Record{
		first[5], first[1], first[4], first[5], first[0], first[3], first[2],
	}
	plan, err := writer.Plan(ctx, reordered, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"region-005", "region-004", "region-003"}, keysOf(plan.Candidate))

	added, err = writer.Apply(ctx, reordered, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	stored, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	seen := map[string]int{}
	for _, r := range stored {
		seen[r.Key]++
	}
	assert.Len(t, seen, 6)
	for k, n := range seen {
		assert.Equal(t, 1, n, "key %s stored %d times", k, n)
	}

	wm, err := store.ReadWatermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, wm)
}

func TestKeyExclusionSpansLookupChunks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, testSchema())
	writer := NewWriter(store, models.SlicingKeyExclusion, 0)
	records := makeRecords(keyLookupChunk + 30)

	added, err := writer.Apply(ctx, records[:keyLookupChunk+10], keyLookupChunk+10)
	require.NoError(t, err)
	require.Equal(t, keyLookupChunk+10, added)

	plan, err := writer.Plan(ctx, records, 50)
	require.NoError(t, err)
	require.Len(t, plan.Candidate, 20)
	assert.Equal(t, records[keyLookupChunk+10].Key, plan.Candidate[0].Key)
}

func TestPositionalSlicing(t *testing.T) {
	ctx := context.Background()
	schema := testSchema()
	schema.Slicing = models.SlicingPositional
	store := newTestStore(t, schema)
	writer := NewWriter(store, models.SlicingPositional, 0)
	records := makeRecords(30)

	for _, want := range []int{12, 12, 6, 0} {
		added, err := writer.Apply(ctx, records, 12)
		require.NoError(t, err)
		assert.Equal(t, want, added)
	}

	wm, err := store.ReadWatermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, wm)

	// Positions past the end of a shrunken snapshot yield nothing.
	added, err := writer.Apply(ctx, records[:10], 12)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}

func TestPositionalIgnoresStoredKeys(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, testSchema())
	records := []models.Record{makeRecord("a", 1), makeRecord("a", 2), makeRecord("b", 3)}

	added, err := NewWriter(store, models.SlicingPositional, 0).Apply(ctx, records, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	wm, err := store.ReadWatermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, wm)

	count, err := store.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	stored, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, int64(1), stored[0].Values["deaths"])
}

func TestFullLoadAfterLiftsCap(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, testSchema())
	writer := NewWriter(store, models.SlicingKeyExclusion, 50)
	records := makeRecords(130)

	var got []int
	for i := 0; i < 4; i++ {
		added, err := writer.Apply(ctx, records, 25)
		require.NoError(t, err)
		got = append(got, added)
	}
	assert.Equal(t, []int{25, 25, 80, 0}, got)
}

func TestApplyRejectsNonPositiveCap(t *testing.T) {
	store := newTestStore(t, testSchema())
	_, err := NewWriter(store, "", 0).Apply(context.Background(), makeRecords(3), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestApplyIsAllOrNothing(t *testing.T) {
	for _, step := range []string{"insert", "watermark", "commit"} {
		t.Run(step, func(t *testing.T) {
			ctx := context.Background()
			store := newTestStore(t, testSchema())
			records := makeRecords(40)

			added, err := NewWriter(store, "", 0).Apply(ctx, records, 10)
			require.NoError(t, err)
			require.Equal(t, 10, added)

			before, err := store.List(ctx, ListOptions{})
			require.NoError(t, err)

			broken := &failingStore{RecordStore: store, failAt: step}
			added, err = NewWriter(broken, "", 0).Apply(ctx, records, 10)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrPersistence), "got %v", err)
			assert.Equal(t, 0, added)

			after, err := store.List(ctx, ListOptions{})
			require.NoError(t, err)
			if diff := cmp.Diff(before, after); diff != "" {
				t.Errorf("records changed after failed commit (-before +after):\n%s", diff)
			}
			wm, err := store.ReadWatermark(ctx)
			require.NoError(t, err)
			assert.Equal(t, 10, wm)
		})
	}
}

func TestEmptySnapshotIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, testSchema())

	added, err := NewWriter(store, "", 0).Apply(ctx, nil, 25)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	wm, err := store.ReadWatermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, wm)
}
