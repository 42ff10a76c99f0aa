package repo

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	car "github.com/ipld/go-car"
	carv2 "github.com/ipld/go-car/v2"

	"github.com/cobalt-social/cobalt/mst"
	"github.com/cobalt-social/cobalt/syntax"
)

var ErrNoRoot = errors.New("CAR file missing root CID")
var ErrNoCommit = errors.New("CAR file missing commit object")

// ldWrite writes a single length-delimited CAR section: a uvarint of
// the total length, followed by the concatenated byte slices.
func ldWrite(w io.Writer, d ...[]byte) error {
	var sum uint64
	for _, s := range d {
		sum += uint64(len(s))
	}

	buf := make([]byte, 8)
	n := binary.PutUvarint(buf, sum)
	if _, err := w.Write(buf[:n]); err != nil {
		return err
	}
	for _, s := range d {
		if _, err := w.Write(s); err != nil {
			return err
		}
	}
	return nil
}

// writeCarHeader writes a CARv1 header with a single root.
func writeCarHeader(w io.Writer, root cid.Cid) error {
	h := &car.CarHeader{
		Roots:   []cid.Cid{root},
		Version: 1,
	}
	hb, err := cbor.DumpObject(h)
	if err != nil {
		return err
	}
	return ldWrite(w, hb)
}

// blocksAsCAR serializes the contents of a block store as a CARv1
// byte slice with the indicated root. Blocks are written in sorted CID
// order, which keeps output deterministic.
func blocksAsCAR(root cid.Cid, bs *MapBlockstore) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := writeCarHeader(buf, root); err != nil {
		return nil, err
	}

	bs.mu.Lock()
	keys := make([]string, 0, len(bs.blks))
	for k := range bs.blks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	blkList := make([]blocks.Block, 0, len(keys))
	for _, k := range keys {
		blkList = append(blkList, bs.blks[k])
	}
	bs.mu.Unlock()

	for _, blk := range blkList {
		if err := ldWrite(buf, blk.Cid().Bytes(), blk.RawData()); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// loadCARIntoStore reads every block of a CAR file into the store,
// re-hashing each block and verifying it against the claimed CID, and
// returns the single root.
func loadCARIntoStore(ctx context.Context, bs *MapBlockstore, r io.Reader) (*cid.Cid, error) {
	br, err := carv2.NewBlockReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading CAR file: %w", err)
	}
	if br.Version != 1 {
		return nil, fmt.Errorf("unsupported CAR file version: %d", br.Version)
	}
	if len(br.Roots) < 1 {
		return nil, ErrNoRoot
	}
	// by convention a repo CAR has exactly one root (the commit), but
	// tolerate trailing roots
	root := br.Roots[0]

	for {
		blk, err := br.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CAR file: %w", err)
		}
		// the CAR reader does not check that block bytes match the CID
		computed, err := blk.Cid().Prefix().Sum(blk.RawData())
		if err != nil {
			return nil, err
		}
		if !computed.Equals(blk.Cid()) {
			return nil, fmt.Errorf("%w: %s", ErrBadBlock, blk.Cid())
		}
		if err := bs.Put(ctx, blk); err != nil {
			return nil, err
		}
	}
	return &root, nil
}

// LoadCommitFromCAR reads a CAR file and parses and structurally
// verifies the commit object at its root. The returned block store
// holds all blocks from the file.
func LoadCommitFromCAR(ctx context.Context, r io.Reader) (*Commit, *cid.Cid, *MapBlockstore, error) {
	bs := NewMapBlockstore()
	root, err := loadCARIntoStore(ctx, bs, r)
	if err != nil {
		return nil, nil, nil, err
	}
	blk, err := bs.Get(ctx, *root)
	if err != nil {
		return nil, nil, nil, ErrNoCommit
	}
	commit, err := CommitFromCBOR(blk.RawData())
	if err != nil {
		return nil, nil, nil, err
	}
	if err := commit.VerifyStructure(); err != nil {
		return nil, nil, nil, err
	}
	return commit, root, bs, nil
}

// LoadRepoFromCAR reads a complete repository out of a CAR snapshot.
// Verifies the commit structure and that every block matches its CID,
// but does not check the commit signature (which requires resolving
// the account's signing key).
func LoadRepoFromCAR(ctx context.Context, r io.Reader) (*Repo, error) {
	commit, commitCID, bs, err := LoadCommitFromCAR(ctx, r)
	if err != nil {
		return nil, err
	}

	did, err := syntax.ParseDID(commit.DID)
	if err != nil {
		return nil, err
	}
	rev, err := syntax.ParseTID(commit.Rev)
	if err != nil {
		return nil, err
	}

	tree, err := mst.LoadTreeFromStore(ctx, bs, commit.Data)
	if err != nil {
		return nil, fmt.Errorf("reading tree from CAR file: %w", err)
	}

	return &Repo{
		DID:         did,
		Clock:       syntax.ClockFromTID(rev),
		Commit:      commit,
		CommitCID:   commitCID,
		RecordStore: bs,
		MST:         tree,
	}, nil
}

// ExportCAR writes the complete repository as a CARv1 snapshot: the
// signed commit as root, followed by all tree nodes and all record
// blocks.
func (repo *Repo) ExportCAR(ctx context.Context, w io.Writer) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if repo.Commit == nil || repo.CommitCID == nil {
		return fmt.Errorf("can not export repository with no commits")
	}

	out := NewMapBlockstore()

	commitBytes, commitCID, err := repo.Commit.Bytes()
	if err != nil {
		return err
	}
	if !commitCID.Equals(*repo.CommitCID) {
		return fmt.Errorf("commit does not round-trip to head CID")
	}
	commitBlk, err := blocks.NewBlockWithCid(commitBytes, *commitCID)
	if err != nil {
		return err
	}
	if err := out.Put(ctx, commitBlk); err != nil {
		return err
	}

	root, err := repo.MST.WriteBlocks(ctx, out)
	if err != nil {
		return err
	}
	if !root.Equals(repo.Commit.Data) {
		return fmt.Errorf("tree does not round-trip to commit data CID")
	}

	entries, err := repo.ListRecords("")
	if err != nil {
		return err
	}
	for _, ent := range entries {
		if ok, _ := out.Has(ctx, ent.CID); ok {
			continue
		}
		blk, err := repo.RecordStore.Get(ctx, ent.CID)
		if err != nil {
			return fmt.Errorf("record block missing from store: %s: %w", ent.Path, err)
		}
		if err := out.Put(ctx, blk); err != nil {
			return err
		}
	}

	b, err := blocksAsCAR(*commitCID, out)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
