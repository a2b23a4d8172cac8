package polar

import (
	"fmt"

	"github.com/astei/polar/palette"
)

// Write encodes the world at LatestVersion using w.Compression. Chunks are
// written in ChunkIndex order, so equal worlds encode to equal bytes.
//
// Heightmaps are not written yet: every chunk is stored with an empty
// heightmap mask, whatever its Heightmaps hold.
func Write(w *World, opts ...WriteOption) ([]byte, error) {
	cfg := writeConfig{tags: DefaultTagCodec}
	for _, opt := range opts {
		opt(&cfg)
	}
	if w.MinSection >= w.MaxSection {
		return nil, fmt.Errorf("%w: min %d, max %d", ErrInvalidSectionRange, w.MinSection, w.MaxSection)
	}

	e := &encoder{tags: cfg.tags, sectionCount: w.SectionCount()}
	if err := e.writeWorld(w); err != nil {
		return nil, err
	}
	return writeEnvelope(e.out.buf.Bytes(), w.Compression)
}

type encoder struct {
	out          writer
	tags         TagCodec
	sectionCount int
}

func (e *encoder) writeWorld(w *World) (err error) {
	e.out.writeByte(byte(w.MinSection))
	e.out.writeByte(byte(w.MaxSection))

	keys, chunks := w.snapshot()
	e.out.writeUvarint(uint64(len(chunks)))
	for i, chunk := range chunks {
		x, z := int32(keys[i]>>32), int32(keys[i])
		if err = e.writeChunk(x, z, chunk); err != nil {
			return fmt.Errorf("chunk %d,%d: %w", x, z, err)
		}
	}
	return
}

func (e *encoder) writeChunk(x, z int32, chunk *Chunk) (err error) {
	if chunk == nil {
		return fmt.Errorf("%w: no chunk stored", ErrInvalidChunk)
	}
	if chunk.X != x || chunk.Z != z {
		return fmt.Errorf("%w: stored under %d,%d but positioned at %d,%d", ErrInvalidChunk, x, z, chunk.X, chunk.Z)
	}
	if len(chunk.Sections) != e.sectionCount {
		return fmt.Errorf("%w: %d sections, world has %d", ErrInvalidChunk, len(chunk.Sections), e.sectionCount)
	}

	e.out.writeVarint(chunk.X)
	e.out.writeVarint(chunk.Z)

	for i := range chunk.Sections {
		if err = e.writeSection(&chunk.Sections[i]); err != nil {
			return fmt.Errorf("section %d: %w", i, err)
		}
	}

	e.out.writeUvarint(uint64(len(chunk.BlockEntities)))
	for i := range chunk.BlockEntities {
		if err = e.writeBlockEntity(&chunk.BlockEntities[i]); err != nil {
			return fmt.Errorf("block entity %d: %w", i, err)
		}
	}

	// TODO: write chunk.Heightmaps once the slice layout is settled; readers already accept them.
	e.out.writeUint32(0)

	e.out.writeBytes(chunk.UserData)
	return
}

func (e *encoder) writeSection(section *Section) error {
	e.out.writeBool(section.Empty)
	if section.Empty {
		return nil
	}

	if err := checkPalette(section.BlockPalette, MaxBlockPalette); err != nil {
		return fmt.Errorf("block palette: %w", err)
	}
	e.out.writeStrings(section.BlockPalette)
	if len(section.BlockPalette) > 1 {
		if section.BlockData == nil {
			return fmt.Errorf("%w: %d block palette entries without block data", ErrInvalidChunk, len(section.BlockPalette))
		}
		if err := e.writeIndices(section.BlockData[:], len(section.BlockPalette)); err != nil {
			return fmt.Errorf("block data: %w", err)
		}
	}

	if err := checkPalette(section.BiomePalette, MaxBiomePalette); err != nil {
		return fmt.Errorf("biome palette: %w", err)
	}
	e.out.writeStrings(section.BiomePalette)
	if len(section.BiomePalette) > 1 {
		if section.BiomeData == nil {
			return fmt.Errorf("%w: %d biome palette entries without biome data", ErrInvalidChunk, len(section.BiomePalette))
		}
		if err := e.writeIndices(section.BiomeData[:], len(section.BiomePalette)); err != nil {
			return fmt.Errorf("biome data: %w", err)
		}
	}

	e.writeOptionalLight(section.BlockLight)
	e.writeOptionalLight(section.SkyLight)
	return nil
}

func checkPalette(entries []string, max int) error {
	if len(entries) > max {
		return fmt.Errorf("%w: %d entries, at most %d allowed", ErrInvalidPalette, len(entries), max)
	}
	return nil
}

func (e *encoder) writeIndices(indices []uint32, paletteSize int) error {
	for i, index := range indices {
		if int(index) >= paletteSize {
			return fmt.Errorf("%w: index %d at %d, palette has %d entries", ErrInvalidPalette, index, i, paletteSize)
		}
	}
	words, err := palette.Pack(indices, palette.BitsFor(paletteSize))
	if err != nil {
		return err
	}
	e.out.writeLongs(words)
	return nil
}

func (e *encoder) writeOptionalLight(light *LightData) {
	e.out.writeBool(light != nil)
	if light != nil {
		e.out.Write(light[:])
	}
}

func (e *encoder) writeBlockEntity(entity *BlockEntity) error {
	if entity.X < 0 || entity.X > 15 || entity.Z < 0 || entity.Z > 15 {
		return fmt.Errorf("%w: block entity at %d,%d,%d is outside the chunk", ErrInvalidChunk, entity.X, entity.Y, entity.Z)
	}
	if entity.Y <= -maxBlockY || entity.Y >= maxBlockY {
		return fmt.Errorf("%w: block entity y %d does not fit the block index", ErrInvalidChunk, entity.Y)
	}
	e.out.writeUint32(uint32(BlockIndex(entity.X, entity.Y, entity.Z)))
	e.out.writeOptionalString(entity.ID)

	e.out.writeBool(entity.Tag != nil)
	if entity.Tag == nil {
		return nil
	}
	if err := e.tags.WriteTag(&e.out, *entity.Tag); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTag, err)
	}
	return nil
}
