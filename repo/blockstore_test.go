package repo

import (
	"context"
	"testing"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	ipld "github.com/ipfs/go-ipld-format"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
)

func testBlock(t *testing.T, body string) blocks.Block {
	c, err := cid.NewPrefixV1(cid.Raw, multihash.SHA2_256).Sum([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	blk, err := blocks.NewBlockWithCid([]byte(body), c)
	if err != nil {
		t.Fatal(err)
	}
	return blk
}

func TestMapBlockstore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	bs := NewMapBlockstore()
	blk := testBlock(t, "hello")

	_, err := bs.Get(ctx, blk.Cid())
	assert.True(ipld.IsNotFound(err))

	assert.NoError(bs.Put(ctx, blk))
	got, err := bs.Get(ctx, blk.Cid())
	assert.NoError(err)
	assert.Equal(blk.RawData(), got.RawData())

	ok, err := bs.Has(ctx, blk.Cid())
	assert.NoError(err)
	assert.True(ok)
	size, err := bs.GetSize(ctx, blk.Cid())
	assert.NoError(err)
	assert.Equal(5, size)

	ch, err := bs.AllKeysChan(ctx)
	assert.NoError(err)
	count := 0
	for range ch {
		count++
	}
	assert.Equal(1, count)

	assert.NoError(bs.DeleteBlock(ctx, blk.Cid()))
	ok, err = bs.Has(ctx, blk.Cid())
	assert.NoError(err)
	assert.False(ok)
}

type mapFetcher struct {
	blobs map[string][]byte
	calls int
}

func (f *mapFetcher) FetchBlock(ctx context.Context, c cid.Cid) ([]byte, error) {
	f.calls++
	b, ok := f.blobs[c.KeyString()]
	if !ok {
		return nil, &ipld.ErrNotFound{Cid: c}
	}
	return b, nil
}

func TestFallbackBlockstore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	remote := testBlock(t, "remote block")
	local := testBlock(t, "local block")
	poisoned := testBlock(t, "poisoned")

	fetcher := &mapFetcher{blobs: map[string][]byte{
		remote.Cid().KeyString():   remote.RawData(),
		poisoned.Cid().KeyString(): []byte("wrong bytes"),
	}}
	bs := NewFallbackBlockstore(NewMapBlockstore(), fetcher)
	assert.NoError(bs.Put(ctx, local))

	// local hit does not touch the fetcher
	got, err := bs.Get(ctx, local.Cid())
	assert.NoError(err)
	assert.Equal(local.RawData(), got.RawData())
	assert.Equal(0, fetcher.calls)

	// miss falls back, verifies, and writes through
	got, err = bs.Get(ctx, remote.Cid())
	assert.NoError(err)
	assert.Equal(remote.RawData(), got.RawData())
	assert.Equal(1, fetcher.calls)
	ok, err := bs.Local.Has(ctx, remote.Cid())
	assert.NoError(err)
	assert.True(ok)

	// cached now; no second fetch
	_, err = bs.Get(ctx, remote.Cid())
	assert.NoError(err)
	assert.Equal(1, fetcher.calls)

	// fetched bytes which do not hash to the CID look like a miss
	_, err = bs.Get(ctx, poisoned.Cid())
	assert.True(ipld.IsNotFound(err))

	// a fetcher error looks like a miss
	missing := testBlock(t, "nowhere")
	_, err = bs.Get(ctx, missing.Cid())
	assert.True(ipld.IsNotFound(err))
}
