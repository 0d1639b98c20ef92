// Package ingesttest provides source fixtures for tests of packages that
// index or read container files.
package ingesttest

import (
	"fmt"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/j4cko/hdf5-metadataindex/internal/ingest"
	"github.com/klauspost/compress/zstd"
	"github.com/ohler55/ojg/oj"
)

// RQCDGroup is the group holding the correlator table of the RQCD fixture.
const RQCDGroup = "/rqcd/stoch_discon/stochsolve0/solve_0"

// RQCDData is the dataset whose rows the table describes.
const RQCDData = RQCDGroup + "/data"

// RQCDRows is the number of table rows in the RQCD fixture.
const RQCDRows = 2025

// RQCD builds a source tree shaped like a disconnected-loop solve file: a
// 2025-row parameter table next to a data set in
// /rqcd/stoch_discon/stochsolve0/solve_0. The root group carries a creator
// attribute, which is not indexed.
//
// The first 54 rows have interpolator 7 and cover hpe 4 and 5 with every
// momentum in {-1,0,1}^3. All other rows have interpolators 0 to 6.
func RQCD() *ingest.TreeNode {
	rows := make([][]ingest.RawAttribute, 0, RQCDRows)
	for i := range RQCDRows {
		var interpolator, hpe int64
		m := i % 27
		if i < 54 {
			interpolator = 7
			hpe = 4 + int64(i/27)
		} else {
			j := i - 54
			interpolator = int64(j/27) % 7
			hpe = 2 + int64(j%3)
		}
		mom := []int64{int64(m/9) - 1, int64(m/3%3) - 1, int64(m%3) - 1}
		rows = append(rows, []ingest.RawAttribute{
			{Name: "hpe", Value: hpe},
			{Name: "interpolator", Value: interpolator},
			{Name: "mom", Value: mom},
		})
	}

	return &ingest.TreeNode{
		Attrs: []ingest.RawAttribute{{Name: "creator", Value: "chroma"}},
		Nodes: []*ingest.TreeNode{{
			Name: "rqcd",
			Attrs: []ingest.RawAttribute{
				{Name: "ensemble", Value: "rqcd021"},
				{Name: "kappa", Value: []float64{0.13675}},
			},
			Nodes: []*ingest.TreeNode{{
				Name:  "stoch_discon",
				Attrs: []ingest.RawAttribute{{Name: "smeared", Value: true}},
				Nodes: []*ingest.TreeNode{{
					Name:  "stochsolve0",
					Attrs: []ingest.RawAttribute{{Name: "nsrc", Value: int64(4)}},
					Nodes: []*ingest.TreeNode{{
						Name:  "solve_0",
						Attrs: []ingest.RawAttribute{{Name: "smeariter", Value: int64(250)}},
						Nodes: []*ingest.TreeNode{
							{Name: "data"},
							{Name: "params", Rows: rows},
						},
					}},
				}},
			}},
		}},
	}
}

// RQCDPayload supplies the payload of RQCDData. Row i holds the two complex
// numbers complex(i, -i) and complex(0.5, 0).
func RQCDPayload(path string) any {
	if path != RQCDData {
		return nil
	}
	out := make([][]float64, RQCDRows)
	for i := range out {
		out[i] = []float64{float64(i), -float64(i), 0.5, 0}
	}
	return out
}

// Document renders a tree in the container file layout. payload supplies the
// data of each leaf by path and may return nil for leaves without data.
func Document(n *ingest.TreeNode, payload func(path string) any) map[string]any {
	return document(n, "", payload)
}

func document(n *ingest.TreeNode, path string, payload func(string) any) map[string]any {
	obj := map[string]any{}
	if len(n.Attrs) > 0 {
		obj["attributes"] = fields(n.Attrs)
	}
	switch {
	case n.Rows != nil:
		rows := make([]any, len(n.Rows))
		for i, r := range n.Rows {
			rows[i] = fields(r)
		}
		obj["rows"] = rows
	case n.Nodes != nil:
		children := map[string]any{}
		for _, c := range n.Nodes {
			children[c.Name] = document(c, path+"/"+c.Name, payload)
		}
		obj["children"] = children
	default:
		if payload != nil {
			if data := payload(path); data != nil {
				obj["data"] = data
			}
		}
	}
	return obj
}

func fields(raws []ingest.RawAttribute) map[string]any {
	m := make(map[string]any, len(raws))
	for _, r := range raws {
		m[r.Name] = r.Value
	}
	return m
}

// WriteContainer writes doc as a container file, zstd compressed when name
// ends in ".zst".
func WriteContainer(fsys billy.Filesystem, name string, doc map[string]any) error {
	data, err := oj.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal container: %w", err)
	}
	f, err := fsys.Create(name)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if !strings.HasSuffix(name, ".zst") {
		_, err = f.Write(data)
		return err
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}
