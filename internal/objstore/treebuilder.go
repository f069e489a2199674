package objstore

import (
	"context"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/kart-vcs/kart/internal/hash"
	"github.com/kart-vcs/kart/internal/kerr"
)

// leafKind tags what a TreeBuilder leaf value holds.
type leafKind int

const (
	leafSubtree leafKind = iota
	leafBlob
	leafBytes
)

type leaf struct {
	kind  leafKind
	hash  hash.Hash // for leafSubtree, leafBlob
	bytes []byte    // for leafBytes
}

// node is one level of the buffered dict-of-dicts. A node is either an
// unexpanded leaf (a blob, or a whole subtree grafted unchanged) or a
// directory with buffered children; a directory optionally remembers the
// hash of the existing subtree it was descended from (base), so that
// Flush can fill in any sibling entries the caller never touched.
type node struct {
	leaf     *leaf
	base     hash.Hash
	hasBase  bool
	children map[string]*node
}

func newDirNode() *node {
	return &node{children: map[string]*node{}}
}

// TreeBuilder accepts nested path edits and buffers them in memory; Flush
// converts the buffered dict-of-dicts into a chain of new tree objects
// bottom-up and returns the new root hash. It starts from an
// existing base tree (or the empty tree) so unedited subtrees are grafted
// in unchanged without being re-read or re-written.
//
// Conflicts are not detected: the last Insert/Remove for a given path
// wins.
type TreeBuilder struct {
	repo *Repository
	root *node
}

// NewTreeBuilder starts a builder seeded with the entries of base (the
// empty hash.Hash means "start from an empty tree").
func NewTreeBuilder(ctx context.Context, repo *Repository, base hash.Hash) (*TreeBuilder, error) {
	root := newDirNode()
	if !base.IsEmpty() {
		root.base, root.hasBase = base, true
	}
	return &TreeBuilder{repo: repo, root: root}, nil
}

// Insert buffers a write of raw new blob content at path.
func (tb *TreeBuilder) Insert(ctx context.Context, path string, data []byte) error {
	return tb.set(ctx, path, &leaf{kind: leafBytes, bytes: data})
}

// InsertBlob buffers a write of an existing blob handle at path, without
// re-reading or re-writing its content.
func (tb *TreeBuilder) InsertBlob(ctx context.Context, path string, blobHash hash.Hash) error {
	return tb.set(ctx, path, &leaf{kind: leafBlob, hash: blobHash})
}

// InsertSubtree grafts an existing subtree handle at path unchanged.
func (tb *TreeBuilder) InsertSubtree(ctx context.Context, path string, treeHash hash.Hash) error {
	return tb.set(ctx, path, &leaf{kind: leafSubtree, hash: treeHash})
}

// Remove buffers a delete of path. Deleting a path that doesn't exist is a
// no-op: the buffered node simply never resolves to anything at Flush time.
func (tb *TreeBuilder) Remove(ctx context.Context, path string) error {
	parts := splitPath(path)
	n := tb.root
	for _, part := range parts[:len(parts)-1] {
		child, err := tb.descend(ctx, n, part)
		if err != nil {
			return err
		}
		n = child
	}
	last := parts[len(parts)-1]
	delete(n.children, last)
	n.children[last] = &node{leaf: nil, children: map[string]*node{}} // tombstone: no base, no children
	return nil
}

func (tb *TreeBuilder) set(ctx context.Context, path string, l *leaf) error {
	parts := splitPath(path)
	n := tb.root
	for _, part := range parts[:len(parts)-1] {
		child, err := tb.descend(ctx, n, part)
		if err != nil {
			return err
		}
		if child == nil {
			child = newDirNode()
			n.children[part] = child
		}
		n = child
	}
	n.children[parts[len(parts)-1]] = &node{leaf: l, children: map[string]*node{}}
	return nil
}

// descend returns the existing buffered child node for part under n,
// creating it (seeded from n's base tree, if any) on first visit. A part
// with no buffered child and no base directory entry gets a new empty
// directory node; it never returns a nil node without an error.
func (tb *TreeBuilder) descend(ctx context.Context, n *node, part string) (*node, error) {
	if child, ok := n.children[part]; ok {
		return child, nil
	}
	if !n.hasBase {
		child := newDirNode()
		n.children[part] = child
		return child, nil
	}
	baseTree, err := tb.repo.ReadTree(ctx, n.base)
	if err != nil {
		return nil, err
	}
	entry, found := findEntry(baseTree, part)
	child := newDirNode()
	if found && entry.Mode == filemode.Dir {
		child.base, child.hasBase = fromPlumbing(entry.Hash), true
	}
	n.children[part] = child
	return child, nil
}

func findEntry(t *object.Tree, name string) (object.TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return object.TreeEntry{}, false
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

// Flush converts the buffered tree into a chain of real tree objects,
// bottom-up, and returns the new root hash. The builder is left usable for
// further edits seeded from the just-flushed root, matching the working
// copy's "insert more edits, flush again" usage in the merge engine.
func (tb *TreeBuilder) Flush(ctx context.Context) (hash.Hash, error) {
	h, err := tb.flushNode(ctx, tb.root)
	if err != nil {
		return hash.Hash{}, err
	}
	tb.root = newDirNode()
	tb.root.base, tb.root.hasBase = h, true
	return h, nil
}

func (tb *TreeBuilder) flushNode(ctx context.Context, n *node) (hash.Hash, error) {
	merged := map[string]entryInfo{}

	if n.hasBase {
		baseTree, err := tb.repo.ReadTree(ctx, n.base)
		if err != nil {
			return hash.Hash{}, err
		}
		for _, e := range baseTree.Entries {
			merged[e.Name] = entryInfo{hash: fromPlumbing(e.Hash), isDir: e.Mode == filemode.Dir}
		}
	}

	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		child := n.children[name]
		if child.leaf != nil {
			switch child.leaf.kind {
			case leafSubtree:
				merged[name] = entryInfo{hash: child.leaf.hash, isDir: true}
			case leafBlob:
				merged[name] = entryInfo{hash: child.leaf.hash, isDir: false}
			case leafBytes:
				h, err := tb.repo.WriteBlob(ctx, child.leaf.bytes)
				if err != nil {
					return hash.Hash{}, err
				}
				merged[name] = entryInfo{hash: h, isDir: false}
			}
			continue
		}
		if len(child.children) == 0 && !child.hasBase {
			// A tombstone left by Remove, or a new directory with nothing
			// buffered in it: drop it rather than writing an empty tree.
			delete(merged, name)
			continue
		}
		h, err := tb.flushNode(ctx, child)
		if err != nil {
			return hash.Hash{}, err
		}
		sub, err := tb.repo.ReadTree(ctx, h)
		if err != nil {
			return hash.Hash{}, err
		}
		if len(sub.Entries) == 0 {
			// Every entry of this directory was removed: drop it too.
			delete(merged, name)
			continue
		}
		merged[name] = entryInfo{hash: h, isDir: true}
	}

	allNames := make([]string, 0, len(merged))
	for name := range merged {
		allNames = append(allNames, name)
	}
	sort.Strings(allNames)

	entries := make([]object.TreeEntry, 0, len(allNames))
	for _, name := range allNames {
		info := merged[name]
		mode := filemode.Regular
		if info.isDir {
			mode = filemode.Dir
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: mode, Hash: toPlumbing(info.hash)})
	}

	tree := &object.Tree{Entries: entries}
	obj := tb.repo.fs.NewEncodedObject()
	obj.SetType(plumbing.TreeObject)
	if err := tree.Encode(obj); err != nil {
		return hash.Hash{}, kerr.Wrap(kerr.IntegrityError, err, "encoding tree")
	}
	h, err := tb.repo.fs.SetEncodedObject(obj)
	if err != nil {
		return hash.Hash{}, kerr.Wrap(kerr.IntegrityError, err, "storing tree")
	}
	return fromPlumbing(h), nil
}

type entryInfo struct {
	hash  hash.Hash
	isDir bool
}
