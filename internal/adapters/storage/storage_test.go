package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_PutGetDelete(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put("run:state:r1", []byte(`{"status":"running"}`)))

	value, exists, err := store.Get("run:state:r1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, []byte(`{"status":"running"}`), value)

	require.NoError(t, store.Delete("run:state:r1"))

	_, exists, err = store.Get("run:state:r1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_GetMissingKey(t *testing.T) {
	store := newTestStore(t)

	value, exists, err := store.Get("nope")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Nil(t, value)
}

func TestStore_ListByPrefix(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("run:step:r1:n%d", i)
		require.NoError(t, store.Put(key, []byte("x")))
	}
	require.NoError(t, store.Put("run:step:r2:n0", []byte("y")))

	results, err := store.ListByPrefix("run:step:r1:")
	require.NoError(t, err)
	assert.Len(t, results, 5)

	count, err := store.CountPrefix("run:step:r1:")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestStore_GetNextOrdering(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put("q:p0:0000000002", []byte("second")))
	require.NoError(t, store.Put("q:p0:0000000001", []byte("first")))

	key, value, exists, err := store.GetNext("q:p0:")
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, "q:p0:0000000001", key)
	assert.Equal(t, []byte("first"), value)

	require.NoError(t, store.Delete(key))

	key2, value2, exists, err := store.GetNext("q:p0:")
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, "q:p0:0000000002", key2)
	assert.Equal(t, []byte("second"), value2)

	require.NoError(t, store.Delete(key2))

	_, _, exists, err = store.GetNext("q:p0:")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_AtomicIncrement(t *testing.T) {
	store := newTestStore(t)

	for want := int64(1); want <= 3; want++ {
		got, err := store.AtomicIncrement("seq:a")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestStore_BatchWrite(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put("old", []byte("v")))

	err := store.BatchWrite([]ports.WriteOp{
		{Type: ports.OpPut, Key: "a", Value: []byte("1")},
		{Type: ports.OpPut, Key: "b", Value: []byte("2")},
		{Type: ports.OpDelete, Key: "old"},
	})
	require.NoError(t, err)

	exists, err := store.Exists("a")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists("old")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_TransactionRollsBackOnError(t *testing.T) {
	store := newTestStore(t)

	sentinel := errors.New("boom")
	err := store.RunInTransaction(func(tx ports.Transaction) error {
		if err := tx.Put("partial", []byte("v")); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	exists, err := store.Exists("partial")
	require.NoError(t, err)
	assert.False(t, exists, "write inside a failed transaction must not survive")
}

func TestStore_TransactionCommits(t *testing.T) {
	store := newTestStore(t)

	err := store.RunInTransaction(func(tx ports.Transaction) error {
		if err := tx.Put("step", []byte("done")); err != nil {
			return err
		}
		return tx.Put("run", []byte("completed"))
	})
	require.NoError(t, err)

	value, exists, err := store.Get("run")
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, []byte("completed"), value)
}

func TestStore_TransactionPutWithTTL(t *testing.T) {
	store := newTestStore(t)

	err := store.RunInTransaction(func(tx ports.Transaction) error {
		return tx.PutWithTTL("claim", []byte("v"), time.Hour)
	})
	require.NoError(t, err)

	exists, err := store.Exists("claim")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStore_ClosedReturnsError(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Close())

	err := store.Put("k", []byte("v"))
	assert.ErrorIs(t, err, domain.ErrClosed)
}
