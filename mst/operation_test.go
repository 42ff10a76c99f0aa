package mst

import (
	"context"
	"math/rand"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	"github.com/stretchr/testify/assert"
)

func TestBasicOperation(t *testing.T) {
	assert := assert.New(t)

	c2, _ := cid.Decode("bafkreieqq463374bbcbeq7gpmet5rvrpeqow6t4rtjzrkhnlu222222222")
	c3, _ := cid.Decode("bafkreieqq463374bbcbeq7gpmet5rvrpeqow6t4rtjzrkhnlu333333333")
	tree := NewEmptyTree()
	var op *Operation
	var err error

	op, err = tree.ApplyOp("color/green", &c2)
	assert.NoError(err)
	assert.True(op.IsCreate())
	assert.NoError(tree.CheckOp(op))

	op, err = tree.ApplyOp("color/brown", &c2)
	assert.NoError(err)
	assert.True(op.IsCreate())
	assert.NoError(tree.CheckOp(op))

	op, err = tree.ApplyOp("color/brown", &c3)
	assert.NoError(err)
	assert.True(op.IsUpdate())
	assert.Equal(c3, *op.Value)
	assert.Equal(c2, *op.Prev)
	assert.NoError(tree.CheckOp(op))

	op, err = tree.ApplyOp("color/brown", nil)
	assert.NoError(err)
	assert.True(op.IsDelete())
	assert.NoError(tree.CheckOp(op))
	assert.NoError(tree.InvertOp(op))
	assert.Error(tree.CheckOp(op))

	op, err = tree.ApplyOp("color/orange", &c3)
	assert.NoError(err)
	assert.True(op.IsCreate())
	assert.NoError(tree.CheckOp(op))
	assert.NoError(tree.InvertOp(op))
	assert.Error(tree.CheckOp(op))

	op, err = tree.ApplyOp("color/pink", &c3)
	assert.NoError(err)
	op, err = tree.ApplyOp("color/pink", &c2)
	assert.NoError(err)
	assert.NoError(tree.CheckOp(op))
	assert.True(op.IsUpdate())
	assert.NoError(tree.InvertOp(op))
	assert.Error(tree.CheckOp(op))
}

func TestRandomOperations(t *testing.T) {
	// single-op commits, near-empty tree
	randomOperations(t, 10, 1, 20)
	// single-op commits, large tree
	randomOperations(t, 5000, 1, 20)
	// multi-op batches
	randomOperations(t, 1000, 8, 20)
}

func randomOperations(t *testing.T, size, opCount, iterations int) {
	assert := assert.New(t)
	ctx := context.Background()

	// generate a random starting tree
	startMap := make(map[string]cid.Cid, size)
	for len(startMap) < size {
		startMap[randomStr()] = randomCid()
	}
	mapKeys := make([]string, 0, len(startMap))
	for k := range startMap {
		mapKeys = append(mapKeys, k)
	}
	rand.Shuffle(len(mapKeys), func(i, j int) {
		mapKeys[i], mapKeys[j] = mapKeys[j], mapKeys[i]
	})
	tree, err := NewTreeFromMap(startMap)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(size, debugCountEntries(tree.Root))
	assert.NoError(tree.Verify())

	for range iterations {
		startCID, err := tree.RootCID()
		if err != nil {
			t.Fatal(err)
		}

		// do some random ops
		opSet := []Operation{}
		var op *Operation
		c := randomCid()
		for range opCount {
			// creations
			op, err = tree.ApplyOp(randomStr(), &c)
			assert.NoError(err)
			opSet = append(opSet, *op)
		}

		for range opCount {
			// deletions
			op, err = tree.ApplyOp(mapKeys[rand.Intn(len(mapKeys))], nil)
			assert.NoError(err)
			if op.Prev != nil {
				opSet = append(opSet, *op)
			}
		}

		for range opCount {
			// updates (must happen after deletions!)
			k := mapKeys[rand.Intn(len(mapKeys))]
			v, err := tree.Get([]byte(k))
			assert.NoError(err)
			if v != nil && *v != c {
				op, err = tree.ApplyOp(k, &c)
				assert.NoError(err)
				assert.Equal(*v, *op.Prev)
				assert.Equal(c, *op.Value)
				opSet = append(opSet, *op)
			}
		}

		// dedupe ops when the same key was hit more than once
		seen := map[string]bool{}
		uniq := opSet[:0]
		for _, op := range opSet {
			if !seen[op.Path] {
				seen[op.Path] = true
				uniq = append(uniq, op)
			}
		}
		opSet = uniq

		// extract the diff as a separate (partial) tree, and validate it
		diffBlocks := blockstore.NewBlockstore(datastore.NewMapDatastore())
		diffRoot, err := tree.WriteDiffBlocks(ctx, diffBlocks)
		if err != nil {
			t.Fatal(err)
		}
		diffTree, err := LoadTreeFromStore(ctx, diffBlocks, *diffRoot)
		if err != nil {
			t.Fatal(err)
		}
		assert.NoError(tree.Verify())

		// diff tree root must re-encode to the same CID
		diffCID, err := tree.RootCID()
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(*diffRoot, *diffCID)

		// check all ops against the full tree (redundant check)
		for i := range opSet {
			assert.NoError(tree.CheckOp(&opSet[i]))
		}

		opSet, err = NormalizeOps(opSet)
		if err != nil {
			t.Fatal(err)
		}

		// invert operations against the partial tree
		for i := range opSet {
			if err := diffTree.CheckOp(&opSet[i]); err != nil {
				t.Fatal(err)
			}
			if err := diffTree.InvertOp(&opSet[i]); err != nil {
				t.Fatal(err)
			}
		}

		finalCID, err := diffTree.RootCID()
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(*startCID, *finalCID)
	}
}

func TestNormalizeOps(t *testing.T) {
	assert := assert.New(t)

	c2, _ := cid.Decode("bafkreieqq463374bbcbeq7gpmet5rvrpeqow6t4rtjzrkhnlu222222222")
	c3, _ := cid.Decode("bafkreieqq463374bbcbeq7gpmet5rvrpeqow6t4rtjzrkhnlu333333333")

	simple := []Operation{
		{
			Path:  "create-BBB",
			Value: &c2,
			Prev:  nil,
		},
		{
			Path:  "create-AAA",
			Value: &c2,
			Prev:  nil,
		},
		{
			Path:  "delete-me",
			Value: nil,
			Prev:  &c2,
		},
	}
	out, err := NormalizeOps(simple)
	assert.NoError(err)
	assert.Equal(3, len(out))
	assert.Equal("delete-me", out[0].Path)
	assert.Equal("create-BBB", out[2].Path)

	dupes := []Operation{
		{
			Path:  "create-BBB",
			Value: nil,
			Prev:  &c2,
		},
		{
			Path:  "create-BBB",
			Value: nil,
			Prev:  &c3,
		},
	}
	_, err = NormalizeOps(dupes)
	assert.Error(err)
}
