// Known-answer tests shared across language implementations. The
// expected root CIDs here must not change.
package mst

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ipfs/go-cid"
)

func mapToCidMapDecode(t *testing.T, a map[string]string) map[string]cid.Cid {
	out := make(map[string]cid.Cid)
	for k, v := range a {
		c, err := cid.Decode(v)
		if err != nil {
			t.Fatal(err)
		}
		out[k] = c
	}
	return out
}

func mapToTreeRootCidString(t *testing.T, m map[string]string) string {

	tree, err := NewTreeFromMap(mapToCidMapDecode(t, m))
	if err != nil {
		t.Fatal(err)
	}

	c, err := tree.RootCID()
	if err != nil {
		t.Fatal(err)
	}

	return c.String()
}

func TestManualNode(t *testing.T) {

	cid1, err := cid.Decode("bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454")
	if err != nil {
		t.Fatal(err)
	}

	simpleNodeData := NodeData{
		Left: nil,
		Entries: []EntryData{
			{
				PrefixLen: 0,
				KeySuffix: []byte("com.example.record/3jqfcqzm3fo2j"),
				Value:     cid1,
				Right:     nil,
			},
		},
	}
	n, err := simpleNodeData.Node(nil)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, simpleNodeData, n.NodeData())

	b, mcid, err := simpleNodeData.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "bafyreibj4lsc3aqnrvphp5xmrnfoorvru4wynt6lwidqbm2623a6tatzdu", mcid.String())

	// decode back from the canonical bytes
	decoded, err := NodeDataFromCBOR(b)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, &simpleNodeData, decoded)
}

func TestInteropKnownMaps(t *testing.T) {

	cid1str := "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454"

	// empty map
	emptyMap := map[string]string{}
	assert.Equal(t, "bafyreie5737gdxlw5i64vzichcalba3z2v5n6icifvx5xytvske7mr3hpm", mapToTreeRootCidString(t, emptyMap))

	// no depth, single entry
	trivialMap := map[string]string{
		"com.example.record/3jqfcqzm3fo2j": cid1str,
	}
	assert.Equal(t, "bafyreibj4lsc3aqnrvphp5xmrnfoorvru4wynt6lwidqbm2623a6tatzdu", mapToTreeRootCidString(t, trivialMap))

	// single layer=2 entry
	singlelayer2Map := map[string]string{
		"com.example.record/3jqfcqzm3fx2j": cid1str,
	}
	assert.Equal(t, "bafyreih7wfei65pxzhauoibu3ls7jgmkju4bspy4t2ha2qdjnzqvoy33ai", mapToTreeRootCidString(t, singlelayer2Map))

	// pretty simple, but with some depth
	simpleMap := map[string]string{
		"com.example.record/3jqfcqzm3fp2j": cid1str,
		"com.example.record/3jqfcqzm3fr2j": cid1str,
		"com.example.record/3jqfcqzm3fs2j": cid1str,
		"com.example.record/3jqfcqzm3ft2j": cid1str,
		"com.example.record/3jqfcqzm4fc2j": cid1str,
	}
	assert.Equal(t, "bafyreicmahysq4n6wfuxo522m6dpiy7z7qzym3dzs756t5n7nfdgccwq7m", mapToTreeRootCidString(t, simpleMap))
}

// "trims top of tree on delete"
func TestInteropEdgeCasesTrimTop(t *testing.T) {

	cid1str := "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454"
	l1root := "bafyreifnqrwbk6ffmyaz5qtujqrzf5qmxf7cbxvgzktl4e3gabuxbtatv4"
	l0root := "bafyreie4kjuxbwkhzg2i5dljaswcroeih4dgiqq6pazcmunwt2byd725vi"

	trimMap := map[string]string{
		"com.example.record/3jqfcqzm3fn2j": cid1str, // level 0
		"com.example.record/3jqfcqzm3fo2j": cid1str, // level 0
		"com.example.record/3jqfcqzm3fp2j": cid1str, // level 0
		"com.example.record/3jqfcqzm3fs2j": cid1str, // level 0
		"com.example.record/3jqfcqzm3ft2j": cid1str, // level 0
		"com.example.record/3jqfcqzm3fu2j": cid1str, // level 1
	}
	trimTree, err := NewTreeFromMap(mapToCidMapDecode(t, trimMap))
	if err != nil {
		t.Fatal(err)
	}
	trimBefore, err := trimTree.RootCID()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, trimTree.Root.Height)
	assert.Equal(t, l1root, trimBefore.String())

	_, err = trimTree.Remove([]byte("com.example.record/3jqfcqzm3fs2j")) // level 1
	if err != nil {
		t.Fatal(err)
	}
	trimAfter, err := trimTree.RootCID()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, trimTree.Root.Height)
	assert.Equal(t, l0root, trimAfter.String())
}

func TestInteropEdgeCasesInsertion(t *testing.T) {

	cid1str := "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454"
	cid1, err := cid.Decode(cid1str)
	if err != nil {
		t.Fatal(err)
	}

	// "handles insertion that splits two layers down"
	l1root := "bafyreiettyludka6fpgp33stwxfuwhkzlur6chs4d2v4nkmq2j3ogpdjem"
	l2root := "bafyreid2x5eqs4w4qxvc5jiwda4cien3gw2q6cshofxwnvv7iucrmfohpm"
	insertionMap := map[string]string{
		"com.example.record/3jqfcqzm3fo2j": cid1str, // A; level 0
		"com.example.record/3jqfcqzm3fp2j": cid1str, // B; level 0
		"com.example.record/3jqfcqzm3fr2j": cid1str, // C; level 0
		"com.example.record/3jqfcqzm3fs2j": cid1str, // D; level 1
		"com.example.record/3jqfcqzm3ft2j": cid1str, // E; level 0
		"com.example.record/3jqfcqzm3fz2j": cid1str, // G; level 0
		"com.example.record/3jqfcqzm4fc2j": cid1str, // H; level 0
		"com.example.record/3jqfcqzm4fd2j": cid1str, // I; level 1
		"com.example.record/3jqfcqzm4ff2j": cid1str, // J; level 0
		"com.example.record/3jqfcqzm4fg2j": cid1str, // K; level 0
		"com.example.record/3jqfcqzm4fh2j": cid1str, // L; level 0
	}
	insertionTree, err := NewTreeFromMap(mapToCidMapDecode(t, insertionMap))
	if err != nil {
		t.Fatal(err)
	}
	insertionBefore, err := insertionTree.RootCID()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, insertionTree.Root.Height)
	assert.Equal(t, l1root, insertionBefore.String())

	// insert F, which will push E out of the node with G+H to a new node under D
	_, err = insertionTree.Insert([]byte("com.example.record/3jqfcqzm3fx2j"), cid1) // F; level 2
	if err != nil {
		t.Fatal(err)
	}
	insertionAfter, err := insertionTree.RootCID()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, insertionTree.Root.Height)
	assert.Equal(t, l2root, insertionAfter.String())

	// remove F, which should push E back over with G+H
	_, err = insertionTree.Remove([]byte("com.example.record/3jqfcqzm3fx2j")) // F; level 2
	if err != nil {
		t.Fatal(err)
	}
	insertionFinal, err := insertionTree.RootCID()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, insertionTree.Root.Height)
	assert.Equal(t, l1root, insertionFinal.String())
}

// "handles new layers that are two higher than existing"
func TestInteropEdgeCasesHigher(t *testing.T) {

	cid1str := "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454"
	cid1, err := cid.Decode(cid1str)
	if err != nil {
		t.Fatal(err)
	}

	l0root := "bafyreidfcktqnfmykz2ps3dbul35pepleq7kvv526g47xahuz3rqtptmky"
	l2root := "bafyreiavxaxdz7o7rbvr3zg2liox2yww46t7g6hkehx4i4h3lwudly7dhy"
	l2root2 := "bafyreig4jv3vuajbsybhyvb7gggvpwh2zszwfyttjrj6qwvcsp24h6popu"
	higherMap := map[string]string{
		"com.example.record/3jqfcqzm3ft2j": cid1str, // A; level 0
		"com.example.record/3jqfcqzm3fz2j": cid1str, // C; level 0
	}
	higherTree, err := NewTreeFromMap(mapToCidMapDecode(t, higherMap))
	if err != nil {
		t.Fatal(err)
	}
	higherBefore, err := higherTree.RootCID()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, higherTree.Root.Height)
	assert.Equal(t, l0root, higherBefore.String())

	// insert B, which is two levels above
	_, err = higherTree.Insert([]byte("com.example.record/3jqfcqzm3fx2j"), cid1) // B; level 2
	if err != nil {
		t.Fatal(err)
	}
	higherAfter, err := higherTree.RootCID()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, l2root, higherAfter.String())

	// remove B
	_, err = higherTree.Remove([]byte("com.example.record/3jqfcqzm3fx2j")) // B; level 2
	if err != nil {
		t.Fatal(err)
	}
	higherAgain, err := higherTree.RootCID()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, higherTree.Root.Height)
	assert.Equal(t, l0root, higherAgain.String())

	// insert B (level=2) and D (level=1)
	_, err = higherTree.Insert([]byte("com.example.record/3jqfcqzm3fx2j"), cid1) // B; level 2
	if err != nil {
		t.Fatal(err)
	}
	_, err = higherTree.Insert([]byte("com.example.record/3jqfcqzm4fd2j"), cid1) // D; level 1
	if err != nil {
		t.Fatal(err)
	}
	higherYetAgain, err := higherTree.RootCID()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, higherTree.Root.Height)
	assert.Equal(t, l2root2, higherYetAgain.String())

	// remove D
	_, err = higherTree.Remove([]byte("com.example.record/3jqfcqzm4fd2j")) // D; level 1
	if err != nil {
		t.Fatal(err)
	}
	higherFinal, err := higherTree.RootCID()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, higherTree.Root.Height)
	assert.Equal(t, l2root, higherFinal.String())
}

// two-layer deterministic tree from the record-key pair used in
// cross-implementation examples
func TestInteropTwoLayerPair(t *testing.T) {
	assert := assert.New(t)

	cid1, err := cid.Decode("bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454")
	if err != nil {
		t.Fatal(err)
	}

	keyA := []byte("app.bsky.feed.post/3jzfcijpj2z2a") // level 0
	keyB := []byte("app.bsky.feed.post/3jzfcijpj2z2b") // higher level
	assert.Equal(0, HeightForKey(keyA))
	assert.Greater(HeightForKey(keyB), 0)

	tree := NewEmptyTree()
	_, err = tree.Insert(keyA, cid1)
	assert.NoError(err)
	_, err = tree.Insert(keyB, cid1)
	assert.NoError(err)
	assert.Equal(HeightForKey(keyB), tree.Root.Height)
	assert.NoError(tree.Verify())
	pairCID, err := tree.RootCID()
	assert.NoError(err)

	// same pair in the other insertion order
	tree2 := NewEmptyTree()
	_, err = tree2.Insert(keyB, cid1)
	assert.NoError(err)
	_, err = tree2.Insert(keyA, cid1)
	assert.NoError(err)
	pairCID2, err := tree2.RootCID()
	assert.NoError(err)
	assert.Equal(*pairCID, *pairCID2)

	// deleting the higher key trims back down to a single-leaf tree
	soloTree := NewEmptyTree()
	_, err = soloTree.Insert(keyA, cid1)
	assert.NoError(err)
	soloCID, err := soloTree.RootCID()
	assert.NoError(err)

	_, err = tree.Remove(keyB)
	assert.NoError(err)
	trimmedCID, err := tree.RootCID()
	assert.NoError(err)
	assert.Equal(*soloCID, *trimmedCID)
}
