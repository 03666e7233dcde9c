// Package resolver turns the content reference of a file into the ordered
// list of blocks to read.
package resolver

import (
	"github.com/dupres/dupres/internal/backup"
	"github.com/dupres/dupres/internal/index"
)

// Index is the part of the block index needed to resolve references.
type Index interface {
	Lookup(id backup.ID) (index.Location, bool)
	Blocklist(id backup.ID) (backup.IDs, bool)
	IsBlocklist(id backup.ID) bool
}

// Block is one block of a file.
type Block struct {
	ID     backup.ID
	Offset int64
	Length int64
}

// BlockSet is the ordered list of blocks making up a file.
type BlockSet []Block

// Size returns the number of bytes covered by the blocks.
func (bs BlockSet) Size() int64 {
	if len(bs) == 0 {
		return 0
	}
	last := bs[len(bs)-1]
	return last.Offset + last.Length
}

// Volumes returns the volumes holding the blocks, in order of first use.
func (bs BlockSet) Volumes(idx Index) []backup.VolumeID {
	var list []backup.VolumeID
	seen := make(map[backup.VolumeID]struct{})
	for _, b := range bs {
		loc, ok := idx.Lookup(b.ID)
		if !ok {
			continue
		}
		if _, ok := seen[loc.Volume]; ok {
			continue
		}
		seen[loc.Volume] = struct{}{}
		list = append(list, loc.Volume)
	}
	return list
}

// Resolve returns the blocks referenced by ref. Every block length is taken
// from its own index entry.
func Resolve(ref backup.BlockRef, idx Index) (BlockSet, error) {
	switch ref.Kind {
	case backup.RefEmpty:
		return BlockSet{}, nil

	case backup.RefDirect:
		if len(ref.Hashes) != 1 {
			return nil, backup.NewFormatError("", "direct reference with %d hashes", len(ref.Hashes))
		}
		id := ref.Hashes[0]
		loc, ok := idx.Lookup(id)
		if !ok {
			return nil, &backup.MissingBlockError{ID: id}
		}
		return BlockSet{{ID: id, Length: loc.Length}}, nil

	case backup.RefBlockList:
		var bs BlockSet
		var offset int64
		for _, listID := range ref.Hashes {
			ids, ok := idx.Blocklist(listID)
			if !ok {
				return nil, &backup.UnresolvedReferenceError{ID: listID, Blocklist: listID}
			}

			for _, id := range ids {
				if idx.IsBlocklist(id) {
					return nil, backup.NewFormatError("blocklist "+listID.Str(), "entry %v is a blocklist, nested blocklists are not supported", id.Str())
				}
				loc, ok := idx.Lookup(id)
				if !ok {
					return nil, &backup.UnresolvedReferenceError{ID: id, Blocklist: listID}
				}
				bs = append(bs, Block{ID: id, Offset: offset, Length: loc.Length})
				offset += loc.Length
			}
		}
		return bs, nil

	default:
		return nil, backup.NewFormatError("", "unknown reference kind %v", ref.Kind)
	}
}
