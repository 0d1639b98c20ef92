package ingest

import (
	"fmt"
	"slices"

	"github.com/j4cko/hdf5-metadataindex/internal/index"
)

// TreeNode is a node of an in-memory source. A node with Rows is a table,
// a node with Nodes (even an empty, non-nil slice) a container, anything else
// a leaf.
type TreeNode struct {
	Name  string
	Attrs []RawAttribute
	Nodes []*TreeNode
	Rows  [][]RawAttribute
}

// Tree is a Source held entirely in memory.
type Tree struct {
	Source   index.File
	RootNode *TreeNode
}

func (t *Tree) File() index.File { return t.Source }

func (t *Tree) Root() (Node, error) {
	if t.RootNode == nil {
		return nil, fmt.Errorf("%w: %s has no root", ErrSourceUnavailable, t.Source.Filename)
	}
	return treeNode{t.RootNode}, nil
}

func (t *Tree) Close() error { return nil }

type treeNode struct{ n *TreeNode }

func (t treeNode) Name() string { return t.n.Name }

func (t treeNode) Kind() Kind {
	switch {
	case t.n.Rows != nil:
		return Table
	case t.n.Nodes != nil:
		return Container
	default:
		return Leaf
	}
}

func (t treeNode) Attributes() ([]RawAttribute, error) { return t.n.Attrs, nil }

func (t treeNode) Children() ([]string, error) {
	names := make([]string, 0, len(t.n.Nodes))
	for _, c := range t.n.Nodes {
		names = append(names, c.Name)
	}
	slices.Sort(names)
	return names, nil
}

func (t treeNode) Child(name string) (Node, error) {
	for _, c := range t.n.Nodes {
		if c.Name == name {
			return treeNode{c}, nil
		}
	}
	return nil, fmt.Errorf("%w: no child %q in %q", ErrSourceUnavailable, name, t.n.Name)
}

func (t treeNode) Rows() ([][]RawAttribute, error) { return t.n.Rows, nil }

func (t treeNode) Close() error { return nil }
