package archive

import "github.com/tidwall/btree"

type member struct {
	name string
	data []byte
}

func newIndex() *btree.BTreeG[*member] {
	return btree.NewBTreeG(func(a, b *member) bool {
		return a.name < b.name
	})
}
