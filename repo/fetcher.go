package repo

import (
	"context"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	ipld "github.com/ipfs/go-ipld-format"
)

// BlockFetcher retrieves a single block payload by CID from somewhere
// outside the local store. Implementations typically wrap a remote
// sync endpoint or an archive.
type BlockFetcher interface {
	FetchBlock(ctx context.Context, c cid.Cid) ([]byte, error)
}

// FallbackBlockstore reads from a local store first and falls back to
// a [BlockFetcher] on miss. Fetched blocks are re-hashed against the
// requested CID and written through to the local store. Any fetch
// failure is reported as a plain not-found, so partial-tree handling
// upstream stays uniform.
type FallbackBlockstore struct {
	Local   blockstore.Blockstore
	Fetcher BlockFetcher
}

var _ blockstore.Blockstore = (*FallbackBlockstore)(nil)

func NewFallbackBlockstore(local blockstore.Blockstore, fetcher BlockFetcher) *FallbackBlockstore {
	return &FallbackBlockstore{
		Local:   local,
		Fetcher: fetcher,
	}
}

func (bs *FallbackBlockstore) Get(ctx context.Context, c cid.Cid) (blocks.Block, error) {
	blk, err := bs.Local.Get(ctx, c)
	if err == nil {
		return blk, nil
	}
	if !ipld.IsNotFound(err) || bs.Fetcher == nil {
		return nil, err
	}

	b, ferr := bs.Fetcher.FetchBlock(ctx, c)
	if ferr != nil {
		return nil, &ipld.ErrNotFound{Cid: c}
	}
	computed, ferr := c.Prefix().Sum(b)
	if ferr != nil || !computed.Equals(c) {
		return nil, &ipld.ErrNotFound{Cid: c}
	}
	blk, ferr = blocks.NewBlockWithCid(b, c)
	if ferr != nil {
		return nil, &ipld.ErrNotFound{Cid: c}
	}
	if err := bs.Local.Put(ctx, blk); err != nil {
		return nil, err
	}
	return blk, nil
}

func (bs *FallbackBlockstore) Has(ctx context.Context, c cid.Cid) (bool, error) {
	return bs.Local.Has(ctx, c)
}

func (bs *FallbackBlockstore) GetSize(ctx context.Context, c cid.Cid) (int, error) {
	blk, err := bs.Get(ctx, c)
	if err != nil {
		return 0, err
	}
	return len(blk.RawData()), nil
}

func (bs *FallbackBlockstore) Put(ctx context.Context, blk blocks.Block) error {
	return bs.Local.Put(ctx, blk)
}

func (bs *FallbackBlockstore) PutMany(ctx context.Context, blks []blocks.Block) error {
	return bs.Local.PutMany(ctx, blks)
}

func (bs *FallbackBlockstore) DeleteBlock(ctx context.Context, c cid.Cid) error {
	return bs.Local.DeleteBlock(ctx, c)
}

func (bs *FallbackBlockstore) AllKeysChan(ctx context.Context) (<-chan cid.Cid, error) {
	return bs.Local.AllKeysChan(ctx)
}

func (bs *FallbackBlockstore) HashOnRead(enabled bool) {
	bs.Local.HashOnRead(enabled)
}
