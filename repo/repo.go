package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"

	"github.com/cobalt-social/cobalt/mst"
	"github.com/cobalt-social/cobalt/syntax"
)

// RepoVersion is the commit object version this package reads and
// writes.
const RepoVersion = 3

var ErrNotFound = errors.New("record not found in repository")
var ErrBadBlock = errors.New("block bytes do not match CID")
var ErrBadCommit = errors.New("invalid commit")

// Repo is a working copy of a single account's repository: the current
// record tree, the head commit (if any), and a block store holding the
// record data.
type Repo struct {
	DID         syntax.DID
	Clock       *syntax.TIDClock
	Commit      *Commit
	CommitCID   *cid.Cid
	RecordStore blockstore.Blockstore
	MST         *mst.Tree

	// serializes commit creation
	mu sync.Mutex
}

// NewRepo constructs an empty repository for the indicated account.
// The repository has no commit until the first call to [Repo.ApplyWrites].
func NewRepo(did syntax.DID) *Repo {
	clk := syntax.NewRandomTIDClock()
	return &Repo{
		DID:         did,
		Clock:       clk,
		RecordStore: NewMapBlockstore(),
		MST:         mst.NewEmptyTree(),
	}
}

// RecordEntry is a single record reference, as returned by
// [Repo.ListRecords].
type RecordEntry struct {
	Path string
	CID  cid.Cid
}

// GetRecordCID looks up the CID for a record, by collection and record
// key. Returns [ErrNotFound] if the record is not in the tree.
func (repo *Repo) GetRecordCID(ctx context.Context, collection syntax.NSID, rkey syntax.RecordKey) (*cid.Cid, error) {
	path := collection.String() + "/" + rkey.String()
	c, err := repo.MST.Get([]byte(path))
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

// GetRecordBytes looks up a record by collection and record key, and
// returns the raw record block. The block bytes are re-hashed and
// verified against the CID in the tree before being returned.
func (repo *Repo) GetRecordBytes(ctx context.Context, collection syntax.NSID, rkey syntax.RecordKey) ([]byte, *cid.Cid, error) {
	c, err := repo.GetRecordCID(ctx, collection, rkey)
	if err != nil {
		return nil, nil, err
	}
	blk, err := repo.RecordStore.Get(ctx, *c)
	if err != nil {
		return nil, nil, err
	}
	computed, err := c.Prefix().Sum(blk.RawData())
	if err != nil {
		return nil, nil, err
	}
	if !computed.Equals(*c) {
		return nil, nil, fmt.Errorf("%w: record %s/%s", ErrBadBlock, collection, rkey)
	}
	return blk.RawData(), c, nil
}

// ListRecords returns all records in the repository, ordered by path.
// If collection is non-empty, only records in that collection are
// returned.
func (repo *Repo) ListRecords(collection syntax.NSID) ([]RecordEntry, error) {
	full := make(map[string]cid.Cid)
	if err := repo.MST.ReadToMap(full); err != nil {
		return nil, err
	}
	prefix := ""
	if collection != "" {
		prefix = collection.String() + "/"
	}
	out := make([]RecordEntry, 0, len(full))
	for path, c := range full {
		if prefix != "" && !strings.HasPrefix(path, prefix) {
			continue
		}
		out = append(out, RecordEntry{Path: path, CID: c})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Path < out[j].Path
	})
	return out, nil
}

// verifies that two nullable CIDs are equal
func cidPtrEqual(a, b *cid.Cid) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equals(*b)
}
