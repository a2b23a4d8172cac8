// Package polar reads and writes polar world archives: a snapshot of chunk
// sections (palette-compressed block and biome grids plus light), block
// entities and per-chunk user data, wrapped in a small envelope that can be
// zstd compressed.
//
// Read accepts every revision from 1 to LatestVersion. Write always produces
// LatestVersion.
package polar

import (
	"fmt"
	"strings"
)

// MagicNumber is "Polr".
const MagicNumber = 0x506F6C72

// Format revisions. Each constant names the revision that introduced the
// change, and archives at or below it keep the older behaviour.
const (
	// Up to here both light arrays share one presence flag.
	VersionUnifiedLight int16 = 1
	// Up to here block entity tags are always present and chunks carry no user data.
	VersionUserDataOptionalBlockEntityTag int16 = 2
	// Up to here block entity tags use a named root.
	VersionTagReaderBreak int16 = 3
	VersionWorldUserData  int16 = 4
	// Archives older than this name short grass "grass".
	VersionShortGrass int16 = 5

	LatestVersion = VersionShortGrass
)

const (
	SectionBlockCount  = 16 * 16 * 16
	SectionBiomeCount  = 4 * 4 * 4
	LightDataSize      = 2048
	MaxBlockPalette    = SectionBlockCount
	MaxBiomePalette    = 8 * 8 * 8
	HeightmapSize      = 32
	DefaultMinSection  = -4
	DefaultMaxSection  = 19
	DefaultCompression = CompressionZstd
)

// Compression selects how the archive content is stored after the header.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
)

func (c Compression) valid() bool {
	return c <= CompressionZstd
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	}
	return fmt.Sprintf("Compression(%d)", uint8(c))
}

// ParseCompression accepts the names returned by Compression.String.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(name) {
	case "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidCompression, name)
}
