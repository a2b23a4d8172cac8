package anvil

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	mcnbt "github.com/Tnze/go-mc/nbt"

	"github.com/astei/polar"
	"github.com/astei/polar/palette"
)

// MinDataVersion is the first data version (1.18) that stores sections with
// paletted block states and 3D biomes at the chunk root.
const MinDataVersion = 2860

var ErrUnsupportedChunk = errors.New("anvil: chunk predates 1.18")

// ChunkRoot is the part of an Anvil chunk that survives conversion. Entities,
// ticks and structure references are dropped.
type ChunkRoot struct {
	DataVersion   int32              `nbt:"DataVersion"`
	X             int32              `nbt:"xPos"`
	Z             int32              `nbt:"zPos"`
	Sections      []ChunkSection     `nbt:"sections"`
	BlockEntities []mcnbt.RawMessage `nbt:"block_entities"`
}

type ChunkSection struct {
	Y           int8        `nbt:"Y"`
	BlockStates BlockStates `nbt:"block_states"`
	Biomes      BiomeStates `nbt:"biomes"`
	BlockLight  []byte      `nbt:"BlockLight"`
	SkyLight    []byte      `nbt:"SkyLight"`
}

type BlockStates struct {
	Palette []BlockState `nbt:"palette"`
	Data    []int64      `nbt:"data"`
}

type BlockState struct {
	Name       string            `nbt:"Name"`
	Properties map[string]string `nbt:"Properties"`
}

// String renders the state as name[key=value,...] with keys sorted.
func (s BlockState) String() string {
	if len(s.Properties) == 0 {
		return s.Name
	}
	keys := make([]string, 0, len(s.Properties))
	for key := range s.Properties {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteByte('[')
	for i, key := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(s.Properties[key])
	}
	b.WriteByte(']')
	return b.String()
}

type BiomeStates struct {
	Palette []string `nbt:"palette"`
	Data    []int64  `nbt:"data"`
}

// minBlockBits is the smallest width Anvil packs block states with.
const minBlockBits = 4

// ConvertChunk builds a polar chunk from a decoded Anvil chunk. Sections
// outside [minSection, maxSection] are dropped, and sections the chunk does
// not store stay empty.
func ConvertChunk(root *ChunkRoot, minSection, maxSection int8) (chunk *polar.Chunk, err error) {
	if root.DataVersion < MinDataVersion {
		return nil, fmt.Errorf("%w: data version %d", ErrUnsupportedChunk, root.DataVersion)
	}

	chunk = polar.NewChunk(root.X, root.Z, int(maxSection)-int(minSection)+1)
	for _, section := range root.Sections {
		if section.Y < minSection || section.Y > maxSection {
			continue
		}
		converted, err := convertSection(&section)
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", section.Y, err)
		}
		chunk.Sections[int(section.Y)-int(minSection)] = converted
	}

	for i, raw := range root.BlockEntities {
		entity, err := convertBlockEntity(raw)
		if err != nil {
			return nil, fmt.Errorf("block entity %d: %w", i, err)
		}
		chunk.BlockEntities = append(chunk.BlockEntities, entity)
	}
	return chunk, nil
}

func convertSection(section *ChunkSection) (polar.Section, error) {
	// Light-only sections carry no palettes.
	if len(section.BlockStates.Palette) == 0 {
		return polar.EmptySection(), nil
	}

	var converted polar.Section
	converted.BlockPalette = make([]string, len(section.BlockStates.Palette))
	for i, state := range section.BlockStates.Palette {
		converted.BlockPalette[i] = state.String()
	}
	if len(converted.BlockPalette) > 1 {
		converted.BlockData = new(polar.BlockData)
		bits := packedBits(len(converted.BlockPalette), minBlockBits, len(section.BlockStates.Data), polar.SectionBlockCount)
		if err := unpackIndices(converted.BlockData[:], section.BlockStates.Data, bits, len(converted.BlockPalette)); err != nil {
			return polar.Section{}, fmt.Errorf("block states: %w", err)
		}
	}

	converted.BiomePalette = append([]string(nil), section.Biomes.Palette...)
	if len(converted.BiomePalette) == 0 {
		converted.BiomePalette = []string{DefaultBiome}
	}
	if len(converted.BiomePalette) > 1 {
		converted.BiomeData = new(polar.BiomeData)
		bits := packedBits(len(converted.BiomePalette), 1, len(section.Biomes.Data), polar.SectionBiomeCount)
		if err := unpackIndices(converted.BiomeData[:], section.Biomes.Data, bits, len(converted.BiomePalette)); err != nil {
			return polar.Section{}, fmt.Errorf("biomes: %w", err)
		}
	}

	converted.BlockLight = convertLight(section.BlockLight)
	converted.SkyLight = convertLight(section.SkyLight)
	return converted, nil
}

// DefaultBiome fills sections whose biome palette is missing.
const DefaultBiome = "minecraft:plains"

// packedBits returns the width Anvil packed an array of n entries with. The
// width implied by the palette is preferred; files from other tools are
// handled by recovering the width from the stored word count.
func packedBits(paletteSize, minBits, wordCount, n int) int {
	bits := palette.BitsFor(paletteSize)
	if bits < minBits {
		bits = minBits
	}
	if palette.WordCount(n, bits) == wordCount {
		return bits
	}
	return palette.BitsFromWords(wordCount, n)
}

func unpackIndices(out []uint32, data []int64, bits, paletteSize int) error {
	words := make([]uint64, len(data))
	for i, v := range data {
		words[i] = uint64(v)
	}
	if err := palette.Unpack(out, words, bits); err != nil {
		return err
	}
	for i, index := range out {
		if int(index) >= paletteSize {
			return fmt.Errorf("%w: index %d at %d, palette has %d entries", polar.ErrInvalidPalette, index, i, paletteSize)
		}
	}
	return nil
}

func convertLight(light []byte) *polar.LightData {
	if len(light) != polar.LightDataSize {
		return nil
	}
	converted := new(polar.LightData)
	copy(converted[:], light)
	return converted
}

// convertBlockEntity splits the position and id out of an Anvil block
// entity compound. Everything else is kept as the polar tag, with its
// entries sorted by name.
func convertBlockEntity(raw mcnbt.RawMessage) (entity polar.BlockEntity, err error) {
	var entries map[string]mcnbt.RawMessage
	if err = raw.Unmarshal(&entries); err != nil {
		return
	}

	for name, dst := range map[string]*int32{"x": &entity.X, "y": &entity.Y, "z": &entity.Z} {
		value, ok := entries[name]
		if !ok {
			continue
		}
		if err = value.Unmarshal(dst); err != nil {
			return entity, fmt.Errorf("anvil: block entity %s: %w", name, err)
		}
	}
	entity.X &= 15
	entity.Z &= 15

	var id string
	if value, ok := entries["id"]; ok && value.Unmarshal(&id) == nil {
		entity.ID = &id
	}

	for _, name := range []string{"x", "y", "z", "id", "keepPacked"} {
		delete(entries, name)
	}
	if len(entries) > 0 {
		entity.Tag, err = sortedCompound(entries)
	}
	return
}

func sortedCompound(entries map[string]mcnbt.RawMessage) (*polar.Tag, error) {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	encoder := mcnbt.NewEncoder(&buf)
	for _, name := range names {
		if err := encoder.Encode(entries[name], name); err != nil {
			return nil, err
		}
	}
	buf.WriteByte(mcnbt.TagEnd)
	return &polar.Tag{Type: mcnbt.TagCompound, Data: buf.Bytes()}, nil
}
