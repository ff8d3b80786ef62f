// Package source turns local files and bucket objects into submitted items.
package source

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/FrenchMajesty/doc-classifier/pkg/types"
)

// Files reads every path into a SubmittedItem, preserving order
func Files(paths []string) ([]types.SubmittedItem, error) {
	items := make([]types.SubmittedItem, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		items = append(items, item(filepath.Base(p), content))
	}
	return items, nil
}

func item(name string, content []byte) types.SubmittedItem {
	return types.SubmittedItem{
		Filename:  name,
		Extension: filepath.Ext(name),
		Content:   content,
	}
}

// Chunk splits items into consecutive slices of at most size
func Chunk(items []types.SubmittedItem, size int) [][]types.SubmittedItem {
	if size <= 0 || len(items) == 0 {
		return [][]types.SubmittedItem{items}
	}
	var out [][]types.SubmittedItem
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:min(start+size, len(items))])
	}
	return out
}
