package polar

import (
	"github.com/willf/bitset"
)

// Heightmap kinds, in mask bit order.
const (
	HeightmapMotionBlocking = iota
	HeightmapMotionBlockingNoLeaves
	HeightmapOceanFloor
	HeightmapOceanFloorWG
	HeightmapWorldSurface
	HeightmapWorldSurfaceWG

	HeightmapCount
)

type (
	LightData [LightDataSize]byte
	Heightmap [HeightmapSize]byte
	BlockData [SectionBlockCount]uint32
	BiomeData [SectionBiomeCount]uint32
)

// Chunk is a column of sections with the block entities and user data
// attached to it.
type Chunk struct {
	X, Z int32

	Sections      []Section
	BlockEntities []BlockEntity
	// A nil entry means the heightmap of that kind is absent.
	Heightmaps [HeightmapCount]*Heightmap
	UserData   []byte
}

// NewChunk returns a chunk whose sections are all empty.
func NewChunk(x, z int32, sectionCount int) *Chunk {
	sections := make([]Section, sectionCount)
	for i := range sections {
		sections[i] = EmptySection()
	}
	return &Chunk{X: x, Z: z, Sections: sections}
}

// PopulatedSections has a bit set for every section that is not empty.
func (c *Chunk) PopulatedSections() *bitset.BitSet {
	populated := bitset.New(uint(len(c.Sections)))
	for i, section := range c.Sections {
		if !section.Empty {
			populated.Set(uint(i))
		}
	}
	return populated
}

// HeightmapMask has bit k set when the heightmap of kind k is present.
func (c *Chunk) HeightmapMask() uint32 {
	var mask uint32
	for kind, heightmap := range c.Heightmaps {
		if heightmap != nil {
			mask |= 1 << kind
		}
	}
	return mask
}

// Section is one 16x16x16 slab of a chunk.
//
// A palette with a single entry has no index array: every cell holds that
// entry. Otherwise the index array is required and each index points into
// the palette. A nil light array means the light is not stored.
type Section struct {
	Empty bool

	BlockPalette []string
	BlockData    *BlockData
	BiomePalette []string
	BiomeData    *BiomeData

	BlockLight *LightData
	SkyLight   *LightData
}

func EmptySection() Section {
	return Section{Empty: true}
}

// BlockAt returns the palette entry of block i, where
// i = y<<8 | z<<4 | x. Empty sections report "".
func (s *Section) BlockAt(i int) string {
	if s.BlockData == nil {
		return paletteEntry(s.BlockPalette, nil, i)
	}
	return paletteEntry(s.BlockPalette, s.BlockData[:], i)
}

// BiomeAt returns the palette entry of biome cell i, where
// i = y<<4 | z<<2 | x.
func (s *Section) BiomeAt(i int) string {
	if s.BiomeData == nil {
		return paletteEntry(s.BiomePalette, nil, i)
	}
	return paletteEntry(s.BiomePalette, s.BiomeData[:], i)
}

func paletteEntry(palette []string, data []uint32, i int) string {
	switch {
	case len(palette) == 0:
		return ""
	case data == nil:
		return palette[0]
	}
	return palette[data[i]]
}

// BlockEntity is extra data attached to a single block. X and Z are local to
// the chunk; Y is absolute.
type BlockEntity struct {
	X, Y, Z int32
	ID      *string
	Tag     *Tag
}

// maxBlockY bounds |y| in a block index.
const maxBlockY = 1 << 23

// BlockIndex packs a chunk-local position. Bits 0-3 hold x, bits 28-31 hold
// z, bits 4-26 hold |y| and bit 27 is set when y is not positive.
func BlockIndex(x, y, z int32) int32 {
	index := x & 0xF
	if y > 0 {
		index |= (y << 4) & 0x07FFFFF0
	} else {
		index |= ((-y) << 4) & 0x07FFFFF0
		index |= 1 << 27
	}
	index |= (z << 28) & -0x10000000
	return index
}

func BlockIndexX(index int32) int32 {
	return index & 0xF
}

func BlockIndexY(index int32) int32 {
	y := (index & 0x07FFFFF0) >> 4
	if (index>>27)&1 == 1 {
		y = -y
	}
	return y
}

func BlockIndexZ(index int32) int32 {
	return (index >> 28) & 0xF
}
