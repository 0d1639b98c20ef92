package ingest

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/j4cko/hdf5-metadataindex/internal/index"
	"github.com/klauspost/compress/zstd"
	"github.com/ohler55/ojg/oj"
)

// Container file layout. Every node is a JSON object:
//
//	{"attributes": {"name": value, ...}, "children": {"name": node, ...}}
//
// A node with "children" is a container, a node with "rows" (a list of
// objects) is a table, and any other node is a plain dataset whose payload
// sits in "data". Files ending in ".zst" are zstd compressed.
const (
	keyAttributes = "attributes"
	keyChildren   = "children"
	keyRows       = "rows"
	keyData       = "data"
)

// ContainerFile is a parsed container file.
type ContainerFile struct {
	file index.File
	root map[string]any
}

// OpenContainer reads and parses the container file name from fsys.
func OpenContainer(fsys billy.Filesystem, name string) (*ContainerFile, error) {
	info, err := fsys.Stat(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(name, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, name, err)
		}
		defer dec.Close()
		r = dec
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrSourceUnavailable, name, err)
	}
	doc, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedContainer, name, err)
	}
	root, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s: root is not an object", ErrMalformedContainer, name)
	}
	return &ContainerFile{
		file: index.File{Filename: name, Mtime: info.ModTime().Unix()},
		root: root,
	}, nil
}

func (c *ContainerFile) File() index.File { return c.file }

func (c *ContainerFile) Root() (Node, error) { return containerNode{obj: c.root}, nil }

func (c *ContainerFile) Close() error { return nil }

// Data returns the payload of the dataset at path, as decoded JSON.
func (c *ContainerFile) Data(path string) (any, error) {
	obj := c.root
	for _, name := range strings.Split(strings.Trim(path, "/"), "/") {
		if name == "" {
			continue
		}
		children, ok := obj[keyChildren].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s: no dataset %s", ErrSourceUnavailable, c.file.Filename, path)
		}
		if obj, ok = children[name].(map[string]any); !ok {
			return nil, fmt.Errorf("%w: %s: no dataset %s", ErrSourceUnavailable, c.file.Filename, path)
		}
	}
	data, ok := obj[keyData]
	if !ok {
		return nil, fmt.Errorf("%w: %s: dataset %s has no data", ErrSourceUnavailable, c.file.Filename, path)
	}
	return data, nil
}

type containerNode struct {
	name string
	obj  map[string]any
}

func (n containerNode) Name() string { return n.name }

func (n containerNode) Kind() Kind {
	if _, ok := n.obj[keyChildren]; ok {
		return Container
	}
	if _, ok := n.obj[keyRows]; ok {
		return Table
	}
	return Leaf
}

func (n containerNode) Attributes() ([]RawAttribute, error) {
	raw, ok := n.obj[keyAttributes]
	if !ok {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: attributes of %q are not an object", ErrMalformedContainer, n.name)
	}
	return rawAttributes(m), nil
}

func rawAttributes(m map[string]any) []RawAttribute {
	out := make([]RawAttribute, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, RawAttribute{Name: k, Value: m[k]})
	}
	return out
}

func (n containerNode) children() (map[string]any, error) {
	m, ok := n.obj[keyChildren].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: children of %q are not an object", ErrMalformedContainer, n.name)
	}
	return m, nil
}

func (n containerNode) Children() ([]string, error) {
	m, err := n.children()
	if err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(m)), nil
}

func (n containerNode) Child(name string) (Node, error) {
	m, err := n.children()
	if err != nil {
		return nil, err
	}
	obj, ok := m[name].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: child %q of %q is not an object", ErrMalformedContainer, name, n.name)
	}
	return containerNode{name: name, obj: obj}, nil
}

func (n containerNode) Rows() ([][]RawAttribute, error) {
	list, ok := n.obj[keyRows].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: rows of %q are not a list", ErrMalformedContainer, n.name)
	}
	rows := make([][]RawAttribute, 0, len(list))
	for i, r := range list {
		m, ok := r.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: row %d of %q is not an object", ErrMalformedContainer, i, n.name)
		}
		rows = append(rows, rawAttributes(m))
	}
	return rows, nil
}

func (n containerNode) Close() error { return nil }
