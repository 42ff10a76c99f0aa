package repo

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/ipfs/go-cid"
	ipld "github.com/ipfs/go-ipld-format"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"

	"github.com/cobalt-social/cobalt/crypto"
	"github.com/cobalt-social/cobalt/data"
	"github.com/cobalt-social/cobalt/mst"
	"github.com/cobalt-social/cobalt/syntax"
)

func randomTestCid() cid.Cid {
	buf := make([]byte, 32)
	rand.Read(buf)
	c, err := cid.NewPrefixV1(cid.Raw, multihash.SHA2_256).Sum(buf)
	if err != nil {
		panic(err)
	}
	return c
}

func testRepo(t *testing.T) (*Repo, *crypto.PrivateKeyK256) {
	priv, err := crypto.GeneratePrivateKeyK256()
	if err != nil {
		t.Fatal(err)
	}
	did, err := syntax.ParseDID("did:web:example.com")
	if err != nil {
		t.Fatal(err)
	}
	return NewRepo(did), priv
}

func testWrite(collection, rkey, text string) WriteOp {
	return WriteOp{
		Collection: syntax.NSID(collection),
		RecordKey:  syntax.RecordKey(rkey),
		Value: map[string]any{
			"$type": collection,
			"text":  text,
		},
	}
}

func TestApplyWritesBasic(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	repo, priv := testRepo(t)
	assert.Nil(repo.Commit)

	diff, err := repo.ApplyWrites(ctx, []WriteOp{
		testWrite("com.example.post", "3jzfcijpj2z2a", "first"),
		testWrite("com.example.post", "3jzfcijpj2z2b", "second"),
		testWrite("com.example.like", "3jzfcijpj2z2c", "like"),
	}, priv)
	assert.NoError(err)
	assert.NotNil(repo.Commit)
	assert.Nil(repo.Commit.Prev)
	assert.Nil(diff.PrevData)
	assert.Equal(3, len(diff.Ops))

	// read a record back, verifying block bytes against the tree CID
	recBytes, rc, err := repo.GetRecordBytes(ctx, "com.example.post", "3jzfcijpj2z2a")
	assert.NoError(err)
	assert.NotNil(rc)
	rec, err := data.UnmarshalCBOR(recBytes)
	assert.NoError(err)
	assert.Equal("first", rec["text"])

	// missing records
	_, err = repo.GetRecordCID(ctx, "com.example.post", "3jzfcijpj2z2z")
	assert.ErrorIs(err, ErrNotFound)

	// update and delete in one batch
	firstCommit := repo.Commit
	diff, err = repo.ApplyWrites(ctx, []WriteOp{
		testWrite("com.example.post", "3jzfcijpj2z2a", "first, edited"),
		{Collection: "com.example.like", RecordKey: "3jzfcijpj2z2c"},
	}, priv)
	assert.NoError(err)
	assert.Equal(2, len(diff.Ops))
	assert.NotNil(repo.Commit.Prev)
	assert.Equal(firstCommit.Data, *diff.PrevData)
	assert.True(repo.Commit.Rev > firstCommit.Rev)

	recBytes, _, err = repo.GetRecordBytes(ctx, "com.example.post", "3jzfcijpj2z2a")
	assert.NoError(err)
	rec, err = data.UnmarshalCBOR(recBytes)
	assert.NoError(err)
	assert.Equal("first, edited", rec["text"])

	_, err = repo.GetRecordCID(ctx, "com.example.like", "3jzfcijpj2z2c")
	assert.ErrorIs(err, ErrNotFound)

	// listing, with and without a collection filter
	all, err := repo.ListRecords("")
	assert.NoError(err)
	assert.Equal(2, len(all))
	assert.Equal("com.example.post/3jzfcijpj2z2a", all[0].Path)
	assert.Equal("com.example.post/3jzfcijpj2z2b", all[1].Path)

	posts, err := repo.ListRecords("com.example.post")
	assert.NoError(err)
	assert.Equal(2, len(posts))
	likes, err := repo.ListRecords("com.example.like")
	assert.NoError(err)
	assert.Empty(likes)
}

func TestApplyWritesAtomic(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	repo, priv := testRepo(t)
	_, err := repo.ApplyWrites(ctx, []WriteOp{
		testWrite("com.example.post", "3jzfcijpj2z2a", "keep me"),
	}, priv)
	assert.NoError(err)
	headCID := *repo.CommitCID

	// second write in the batch fails; the first must not stick
	_, err = repo.ApplyWrites(ctx, []WriteOp{
		testWrite("com.example.post", "3jzfcijpj2z2b", "never lands"),
		{Collection: "com.example.post", RecordKey: "3jzfcijpj2z2z"},
	}, priv)
	assert.ErrorIs(err, ErrNotFound)

	assert.True(headCID.Equals(*repo.CommitCID))
	_, err = repo.GetRecordCID(ctx, "com.example.post", "3jzfcijpj2z2b")
	assert.ErrorIs(err, ErrNotFound)

	// duplicate paths in one batch are rejected
	_, err = repo.ApplyWrites(ctx, []WriteOp{
		testWrite("com.example.post", "3jzfcijpj2z2c", "one"),
		testWrite("com.example.post", "3jzfcijpj2z2c", "two"),
	}, priv)
	assert.Error(err)
	assert.True(headCID.Equals(*repo.CommitCID))

	// record values must pass data model validation
	_, err = repo.ApplyWrites(ctx, []WriteOp{
		{
			Collection: "com.example.post",
			RecordKey:  "3jzfcijpj2z2d",
			Value:      map[string]any{"ratio": 3.14},
		},
	}, priv)
	assert.Error(err)
	assert.True(headCID.Equals(*repo.CommitCID))
}

func TestCommitChain(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	repo, priv := testRepo(t)
	pub, err := priv.PublicKey()
	assert.NoError(err)

	var chain []*Commit
	for i := 0; i < 5; i++ {
		diff, err := repo.ApplyWrites(ctx, []WriteOp{
			testWrite("com.example.post", fmt.Sprintf("3jzfcijpj2z%02d", i), "post"),
		}, priv)
		assert.NoError(err)
		commit := diff.Commit
		chain = append(chain, &commit)
	}

	// one more commit whose tree spans more than a single node (the two
	// record keys sit at different tree levels)
	diff, err := repo.ApplyWrites(ctx, []WriteOp{
		testWrite("app.bsky.feed.post", "3jzfcijpj2z2a", "level zero"),
		testWrite("app.bsky.feed.post", "3jzfcijpj2z2b", "level one"),
	}, priv)
	assert.NoError(err)
	last := diff.Commit
	chain = append(chain, &last)

	assert.NoError(VerifyCommitChain(ctx, repo.RecordStore, chain, pub))
	assert.NoError(VerifyCommitChain(ctx, nil, chain, nil))
	assert.NoError(VerifyCommitChain(ctx, repo.RecordStore, chain[2:], pub))

	// out of order
	reversed := []*Commit{chain[1], chain[0]}
	assert.Error(VerifyCommitChain(ctx, repo.RecordStore, reversed, pub))

	// gap in the chain
	assert.Error(VerifyCommitChain(ctx, repo.RecordStore, []*Commit{chain[0], chain[2]}, pub))

	// forged commit: re-signed with a different key
	forgedPriv, err := crypto.GeneratePrivateKeyK256()
	assert.NoError(err)
	forged := *chain[2]
	assert.NoError(forged.Sign(forgedPriv))
	assert.Error(VerifyCommitChain(ctx, repo.RecordStore, []*Commit{chain[0], chain[1], &forged}, pub))

	// tampered revision breaks both the link and the signature
	tampered := *chain[1]
	tampered.Rev = syntax.NewTIDNow(0).String()
	assert.Error(VerifyCommitChain(ctx, nil, []*Commit{chain[0], &tampered, chain[2]}, nil))

	// every commit's tree root must resolve in the block store
	err = VerifyCommitChain(ctx, NewMapBlockstore(), chain, pub)
	assert.True(ipld.IsNotFound(err))

	// a store holding only the tree root nodes is not good enough either
	partialStore := NewMapBlockstore()
	for _, c := range chain {
		blk, err := repo.RecordStore.Get(ctx, c.Data)
		assert.NoError(err)
		assert.NoError(partialStore.Put(ctx, blk))
	}
	err = VerifyCommitChain(ctx, partialStore, chain, pub)
	assert.ErrorIs(err, mst.ErrPartialTree)
}
