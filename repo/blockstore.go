package repo

import (
	"context"
	"sync"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	ipld "github.com/ipfs/go-ipld-format"
)

// MapBlockstore is a minimal in-memory [blockstore.Blockstore] backed
// by a plain map. Used for staging the blocks of a single commit or
// CAR file, where a full datastore stack would be overkill.
type MapBlockstore struct {
	mu   sync.Mutex
	blks map[string]blocks.Block
}

var _ blockstore.Blockstore = (*MapBlockstore)(nil)

func NewMapBlockstore() *MapBlockstore {
	return &MapBlockstore{
		blks: make(map[string]blocks.Block),
	}
}

func (bs *MapBlockstore) Get(ctx context.Context, c cid.Cid) (blocks.Block, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	blk, ok := bs.blks[c.KeyString()]
	if !ok {
		return nil, &ipld.ErrNotFound{Cid: c}
	}
	return blk, nil
}

func (bs *MapBlockstore) Has(ctx context.Context, c cid.Cid) (bool, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	_, ok := bs.blks[c.KeyString()]
	return ok, nil
}

func (bs *MapBlockstore) GetSize(ctx context.Context, c cid.Cid) (int, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	blk, ok := bs.blks[c.KeyString()]
	if !ok {
		return 0, &ipld.ErrNotFound{Cid: c}
	}
	return len(blk.RawData()), nil
}

func (bs *MapBlockstore) Put(ctx context.Context, blk blocks.Block) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.blks[blk.Cid().KeyString()] = blk
	return nil
}

func (bs *MapBlockstore) PutMany(ctx context.Context, blkList []blocks.Block) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	for _, blk := range blkList {
		bs.blks[blk.Cid().KeyString()] = blk
	}
	return nil
}

func (bs *MapBlockstore) DeleteBlock(ctx context.Context, c cid.Cid) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	delete(bs.blks, c.KeyString())
	return nil
}

func (bs *MapBlockstore) AllKeysChan(ctx context.Context) (<-chan cid.Cid, error) {
	bs.mu.Lock()
	keys := make([]cid.Cid, 0, len(bs.blks))
	for _, blk := range bs.blks {
		keys = append(keys, blk.Cid())
	}
	bs.mu.Unlock()

	out := make(chan cid.Cid)
	go func() {
		defer close(out)
		for _, c := range keys {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// HashOnRead is a no-op: blocks are verified against their CID when
// read in from the wire, not on every store access.
func (bs *MapBlockstore) HashOnRead(enabled bool) {}

// CopyInto writes every block held by this store in to another store.
func (bs *MapBlockstore) CopyInto(ctx context.Context, dst blockstore.Blockstore) error {
	bs.mu.Lock()
	blkList := make([]blocks.Block, 0, len(bs.blks))
	for _, blk := range bs.blks {
		blkList = append(blkList, blk)
	}
	bs.mu.Unlock()
	return dst.PutMany(ctx, blkList)
}
