package backup

import "fmt"

// RefKind distinguishes the variants of a BlockRef.
type RefKind uint8

const (
	// RefEmpty is the reference of a zero length file.
	RefEmpty RefKind = iota
	// RefDirect points to the single block holding the whole file.
	RefDirect
	// RefBlockList points to blocklists whose payloads are the ordered block
	// hashes of the file.
	RefBlockList
)

func (k RefKind) String() string {
	switch k {
	case RefEmpty:
		return "empty"
	case RefDirect:
		return "direct"
	case RefBlockList:
		return "blocklist"
	default:
		return fmt.Sprintf("RefKind(%d)", uint8(k))
	}
}

// BlockRef is the content reference of a regular file.
type BlockRef struct {
	Kind RefKind
	// Hashes holds the block hash for RefDirect and the blocklist hashes, in
	// file order, for RefBlockList. Files larger than one blocklist can
	// describe carry more than one.
	Hashes IDs
}

// Empty returns the reference of a zero length file.
func Empty() BlockRef { return BlockRef{Kind: RefEmpty} }

// Direct returns a reference to a single block.
func Direct(id ID) BlockRef { return BlockRef{Kind: RefDirect, Hashes: IDs{id}} }

// BlockList returns a reference to one or more blocklists.
func BlockList(ids ...ID) BlockRef { return BlockRef{Kind: RefBlockList, Hashes: ids} }

func (r BlockRef) String() string {
	if r.Kind == RefEmpty {
		return "empty"
	}
	return fmt.Sprintf("%v%v", r.Kind, r.Hashes)
}
