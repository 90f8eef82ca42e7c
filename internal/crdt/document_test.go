package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndText(t *testing.T) {
	d := New()
	d.Insert(0, "hello", "local")
	assert.Equal(t, "hello", d.Text())
}

func TestDeleteRange(t *testing.T) {
	d := New()
	d.Insert(0, "hello world", "local")
	d.Delete(5, 6, "local")
	assert.Equal(t, "hello", d.Text())
}

func TestApplyUpdateIdempotent(t *testing.T) {
	src := New()
	src.Insert(0, "abc", "local")
	update := src.EncodeStateAsUpdate()

	dst := New()
	require.NoError(t, dst.ApplyUpdate(update, "network"))
	require.NoError(t, dst.ApplyUpdate(update, "network"))
	assert.Equal(t, "abc", dst.Text())
}

func TestStateVectorDiffConverges(t *testing.T) {
	a := New()
	a.Insert(0, "hello ", "local")

	b := New()
	sv := b.StateVector()
	update, err := a.UpdateFromStateVector(sv)
	require.NoError(t, err)
	require.NotNil(t, update)
	require.NoError(t, b.ApplyUpdate(update, "network"))
	assert.Equal(t, "hello ", b.Text())

	a.Insert(6, "world", "local")
	sv2 := b.StateVector()
	update2, err := a.UpdateFromStateVector(sv2)
	require.NoError(t, err)
	require.NoError(t, b.ApplyUpdate(update2, "network"))
	assert.Equal(t, a.Text(), b.Text())
}

func TestUpdateFromStateVectorNilWhenCaughtUp(t *testing.T) {
	a := New()
	a.Insert(0, "abc", "local")
	sv := a.StateVector()
	update, err := a.UpdateFromStateVector(sv)
	require.NoError(t, err)
	assert.Nil(t, update)
}

func TestConcurrentInsertsConverge(t *testing.T) {
	c1 := New()
	c2 := New()

	c1.Insert(0, "hello ", "local")
	c2.Insert(0, "world", "local")

	sv1 := c1.StateVector()
	sv2 := c2.StateVector()

	u2for1, err := c2.UpdateFromStateVector(sv1)
	require.NoError(t, err)
	u1for2, err := c1.UpdateFromStateVector(sv2)
	require.NoError(t, err)

	require.NoError(t, c1.ApplyUpdate(u2for1, "network"))
	require.NoError(t, c2.ApplyUpdate(u1for2, "network"))

	assert.Equal(t, c1.Text(), c2.Text())
	assert.Len(t, c1.Text(), 11)
}

// TestConcurrentSiblingVsDescendantChainConverges exercises spec §8
// scenario 1 generalized to a causal chain: client A builds a 3-deep
// chain X -> Y -> W while client B, having only seen X, concurrently
// inserts Z as a true sibling of Y. Feeding the same four ops to two
// documents in different (both causally valid, both network-plausible)
// orders must still produce byte-identical text — Z's sibling conflict
// with Y must not let it splice into the middle of Y's own descendant
// chain depending on arrival order.
func TestConcurrentSiblingVsDescendantChainConverges(t *testing.T) {
	a := New()
	var aOps []opRecord
	a.OnUpdate(func(u []byte, _ string) {
		ops, err := decodeOps(u)
		require.NoError(t, err)
		aOps = append(aOps, ops...)
	})
	a.Insert(0, "X", "local")
	a.Insert(1, "Y", "local")
	a.Insert(2, "W", "local")
	require.Len(t, aOps, 3)
	xOp, yOp, wOp := aOps[0], aOps[1], aOps[2]

	b := New()
	require.NoError(t, b.ApplyUpdate(encodeOps([]opRecord{xOp}), "network"))
	var bOps []opRecord
	b.OnUpdate(func(u []byte, _ string) {
		ops, err := decodeOps(u)
		require.NoError(t, err)
		bOps = append(bOps, ops...)
	})
	b.Insert(1, "Z", "local")
	require.Len(t, bOps, 1)
	zOp := bOps[0]

	orderA := []opRecord{xOp, yOp, wOp, zOp}
	orderB := []opRecord{xOp, yOp, zOp, wOp}

	d1 := New()
	require.NoError(t, d1.ApplyUpdate(encodeOps(orderA), "network"))
	d2 := New()
	require.NoError(t, d2.ApplyUpdate(encodeOps(orderB), "network"))

	assert.Equal(t, d1.Text(), d2.Text())
	assert.Equal(t, "XYWZ", d1.Text())
}

func TestReplaceAllIsDeleteThenInsert(t *testing.T) {
	d := New()
	d.Insert(0, "x = 1\n", "local")
	prior := d.EncodeStateAsUpdate()

	var gotUpdate []byte
	var gotOrigin string
	d.OnUpdate(func(u []byte, origin string) {
		gotUpdate = u
		gotOrigin = origin
	})

	d.ReplaceAll("x = 2\n", "external-sync")
	assert.Equal(t, "x = 2\n", d.Text())
	assert.Equal(t, "external-sync", gotOrigin)
	require.NotEmpty(t, gotUpdate)

	// A replica that already holds the prior history converges on the
	// replacement by applying just the (delete, insert) update.
	other := New()
	require.NoError(t, other.ApplyUpdate(prior, "network"))
	require.Equal(t, "x = 1\n", other.Text())
	require.NoError(t, other.ApplyUpdate(gotUpdate, "network"))
	assert.Equal(t, "x = 2\n", other.Text())
}

func TestOnUpdateNotCalledForEmptyMutation(t *testing.T) {
	d := New()
	calls := 0
	d.OnUpdate(func([]byte, string) { calls++ })
	d.Insert(0, "", "local")
	d.Delete(0, 0, "local")
	assert.Equal(t, 0, calls)
}

func TestClientIDUniquePerDocument(t *testing.T) {
	seen := map[uint32]bool{}
	for i := 0; i < 20; i++ {
		d := New()
		seen[d.ClientID()] = true
	}
	assert.Greater(t, len(seen), 1)
}
