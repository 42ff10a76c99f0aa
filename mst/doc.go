/*
Package mst implements the Merkle Search Tree (MST) which stores the
record keys and values of a repository.

The tree is deterministic: the structure depends only on the set of
key/value pairs, not on the order of insertions and deletions. Each key
is assigned a "height" derived from its hash, which decides the layer of
the tree the key lives at. Layers are counted from the bottom, starting
at zero.

Nodes hold a sorted list of entries: key/value pairs, and pointers to
child nodes one layer down. A child pointer covers the lexical gap
between the values around it, and two child pointers are never adjacent
(they would be merged). Inserting a key at a higher layer than the
current root pushes new parent nodes on top, and may "split" a child
node whose key range straddles the new key. Removing a key may merge the
two children left adjacent by the removal, and removing the only value
at the top of the tree trims the root down until it has more than a bare
child pointer.

Trees may be "partial": entries can reference children by CID without
holding the node itself. Lookups and mutations that would need to
descend into a missing node fail with ErrPartialTree. Partial trees come
up when hydrating from an incomplete blockstore (for example the blocks
of a single commit), and when inverting operations against proof blocks.

Mutations track dirty state on nodes and entries, so that the blocks
changed by a batch of operations can be extracted without re-encoding
the whole tree.
*/
package mst
