package btree

import (
	"github.com/embeddkv/embeddkv/duptable"
	"github.com/embeddkv/embeddkv/page"
)

// ResolveValue returns the full record bytes a descriptor refers to.
// Callers with a duplicate table descriptor get the table's first
// entry resolved — full duplicate iteration goes through the cursor
// package's duplicate cache (spec.md §5 Cursor).
func (t *Tree) ResolveValue(d page.Descriptor) ([]byte, error) {
	switch d.Kind {
	case page.DescEmpty:
		return nil, nil
	case page.DescTiny:
		return append([]byte(nil), d.Tiny()...), nil
	case page.DescBlob:
		return t.blobs.Read(d.Ref)
	case page.DescDuplicateTable:
		table, err := duptable.Load(t.blobs, d.Ref)
		if err != nil {
			return nil, err
		}
		if table.Count() == 0 {
			return nil, nil
		}
		return t.ResolveValue(table.At(0))
	}
	return nil, nil
}

// LoadDuplicates returns every descriptor in d's duplicate table, in
// insertion order, for the cursor package's duplicate-cache
// construction (spec.md §4.8 Duplicates). d must be a
// page.DescDuplicateTable descriptor.
func (t *Tree) LoadDuplicates(d page.Descriptor) ([]page.Descriptor, error) {
	table, err := duptable.Load(t.blobs, d.Ref)
	if err != nil {
		return nil, err
	}
	out := make([]page.Descriptor, table.Count())
	for i := range out {
		out[i] = table.At(i)
	}
	return out, nil
}
