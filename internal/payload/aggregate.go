package payload

import (
	"fmt"

	"github.com/j4cko/hdf5-metadataindex/internal/index"
	"github.com/j4cko/hdf5-metadataindex/internal/query"
	"gonum.org/v1/gonum/cmplxs"
)

// DatasetReader reads the payload of one dataset entry.
type DatasetReader interface {
	Read(d index.DatasetSpec) ([]complex128, error)
}

// Aggregate combines the payloads of idx according to mode.
//
// First reads only the first entry. Concatenate and All append the payloads
// file by file, files in order of first appearance and entries in index
// order within a file. Average returns the elementwise mean and requires all
// payloads to have the same length. An empty idx yields an empty result.
func Aggregate(idx index.Index, mode query.SearchMode, r DatasetReader) ([]complex128, error) {
	if len(idx) == 0 {
		return nil, nil
	}
	switch mode {
	case query.First:
		return r.Read(idx[0])
	case query.Concatenate, query.All:
		var out []complex128
		for _, group := range byFile(idx) {
			for _, d := range group {
				data, err := r.Read(d)
				if err != nil {
					return nil, err
				}
				out = append(out, data...)
			}
		}
		return out, nil
	case query.Average:
		return average(idx, r)
	default:
		return nil, fmt.Errorf("unsupported search mode %s", mode)
	}
}

func average(idx index.Index, r DatasetReader) ([]complex128, error) {
	var sum []complex128
	for _, group := range byFile(idx) {
		for _, d := range group {
			data, err := r.Read(d)
			if err != nil {
				return nil, err
			}
			if sum == nil {
				sum = append([]complex128{}, data...)
				continue
			}
			if len(data) != len(sum) {
				return nil, fmt.Errorf("%w: %s row %d has %d values, expected %d",
					ErrAggregationLengthMismatch, d.Datasetname, d.Location.Row, len(data), len(sum))
			}
			cmplxs.Add(sum, data)
		}
	}
	cmplxs.Scale(complex(1/float64(len(idx)), 0), sum)
	return sum, nil
}

// byFile groups idx by source file, files in name order. Entries keep their
// relative order within a group.
func byFile(idx index.Index) [][]index.DatasetSpec {
	files := index.UniqueFiles(idx)
	pos := make(map[index.File]int, len(files))
	for i, f := range files {
		pos[f] = i
	}
	groups := make([][]index.DatasetSpec, len(files))
	for _, d := range idx {
		i := pos[d.File]
		groups[i] = append(groups[i], d)
	}
	return groups
}
