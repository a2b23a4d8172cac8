package polar

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/astei/polar/palette"
)

// Read decodes a complete archive of any supported revision. On error no
// world is returned.
func Read(data []byte, opts ...ReadOption) (*World, error) {
	cfg := readConfig{tags: DefaultTagCodec}
	for _, opt := range opts {
		opt(&cfg)
	}

	env, content, err := readEnvelope(data)
	if err != nil {
		return nil, err
	}

	d := &decoder{
		r:        newReader(content),
		tags:     cfg.tags,
		features: featuresFor(env.Version, cfg.forceLegacyTags),
	}
	return d.readWorld(env)
}

type decoder struct {
	r    *reader
	tags TagCodec
	features
}

func (d *decoder) readWorld(env envelope) (*World, error) {
	minSection, err := d.r.readInt8()
	if err != nil {
		return nil, err
	}
	maxSection, err := d.r.readInt8()
	if err != nil {
		return nil, err
	}
	if minSection >= maxSection {
		return nil, fmt.Errorf("%w: min %d, max %d", ErrInvalidSectionRange, minSection, maxSection)
	}

	world := &World{
		Version:     env.Version,
		Compression: env.Compression,
		MinSection:  minSection,
		MaxSection:  maxSection,
		chunks:      make(map[int64]*Chunk),
	}
	sectionCount := world.SectionCount()

	// Smallest chunk: two coordinates, empty sections, no block entities,
	// the heightmap mask and the user data length.
	chunkCount, err := d.r.readCount(sectionCount + 7)
	if err != nil {
		return nil, err
	}
	for i := 0; i < chunkCount; i++ {
		chunk, err := d.readChunk(sectionCount)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		world.UpdateChunkAt(chunk.X, chunk.Z, chunk)
	}
	return world, nil
}

func (d *decoder) readChunk(sectionCount int) (chunk *Chunk, err error) {
	chunk = &Chunk{Sections: make([]Section, sectionCount)}
	if chunk.X, err = d.r.readVarint(); err != nil {
		return nil, err
	}
	if chunk.Z, err = d.r.readVarint(); err != nil {
		return nil, err
	}

	for i := range chunk.Sections {
		if chunk.Sections[i], err = d.readSection(); err != nil {
			return nil, fmt.Errorf("section %d: %w", i, err)
		}
	}

	blockEntityCount, err := d.r.readCount(5)
	if err != nil {
		return nil, err
	}
	if blockEntityCount > 0 {
		chunk.BlockEntities = make([]BlockEntity, blockEntityCount)
	}
	for i := range chunk.BlockEntities {
		if chunk.BlockEntities[i], err = d.readBlockEntity(); err != nil {
			return nil, fmt.Errorf("block entity %d: %w", i, err)
		}
	}

	mask, err := d.r.readUint32()
	if err != nil {
		return nil, err
	}
	for kind := range chunk.Heightmaps {
		if mask&(1<<kind) == 0 {
			continue
		}
		slice, err := d.r.next(HeightmapSize)
		if err != nil {
			return nil, err
		}
		heightmap := new(Heightmap)
		copy(heightmap[:], slice)
		chunk.Heightmaps[kind] = heightmap
	}

	if d.chunkUserData {
		if chunk.UserData, err = d.r.readBytes(); err != nil {
			return nil, err
		}
		if len(chunk.UserData) == 0 {
			chunk.UserData = nil
		}
	}
	return chunk, nil
}

func (d *decoder) readSection() (Section, error) {
	empty, err := d.r.readBool()
	if err != nil {
		return Section{}, err
	}
	if empty {
		return EmptySection(), nil
	}

	var section Section
	if section.BlockPalette, err = d.r.readStrings(MaxBlockPalette); err != nil {
		return Section{}, err
	}
	if d.remapGrass {
		remapLegacyGrass(section.BlockPalette)
	}
	if len(section.BlockPalette) > 1 {
		section.BlockData = new(BlockData)
		if err = d.readIndices(section.BlockData[:], len(section.BlockPalette)); err != nil {
			return Section{}, fmt.Errorf("block data: %w", err)
		}
	}

	if section.BiomePalette, err = d.r.readStrings(MaxBiomePalette); err != nil {
		return Section{}, err
	}
	if len(section.BiomePalette) > 1 {
		section.BiomeData = new(BiomeData)
		if err = d.readIndices(section.BiomeData[:], len(section.BiomePalette)); err != nil {
			return Section{}, fmt.Errorf("biome data: %w", err)
		}
	}

	if d.splitLightFlags {
		if section.BlockLight, err = d.readOptionalLight(); err != nil {
			return Section{}, err
		}
		if section.SkyLight, err = d.readOptionalLight(); err != nil {
			return Section{}, err
		}
		return section, nil
	}

	present, err := d.r.readBool()
	if err != nil || !present {
		return section, err
	}
	if section.BlockLight, err = d.readLight(); err != nil {
		return Section{}, err
	}
	if section.SkyLight, err = d.readLight(); err != nil {
		return Section{}, err
	}
	return section, nil
}

// readIndices unpacks a stored index array into out and checks every index
// against the palette.
func (d *decoder) readIndices(out []uint32, paletteSize int) error {
	words, err := d.r.readLongs()
	if err != nil {
		return err
	}
	bits := palette.ResolveBits(paletteSize, len(words), len(out))
	if err = palette.Unpack(out, words, bits); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPalette, err)
	}
	for i, index := range out {
		if int(index) >= paletteSize {
			return fmt.Errorf("%w: index %d at %d, palette has %d entries", ErrInvalidPalette, index, i, paletteSize)
		}
	}
	return nil
}

func (d *decoder) readOptionalLight() (*LightData, error) {
	present, err := d.r.readBool()
	if err != nil || !present {
		return nil, err
	}
	return d.readLight()
}

func (d *decoder) readLight() (*LightData, error) {
	b, err := d.r.next(LightDataSize)
	if err != nil {
		return nil, err
	}
	light := new(LightData)
	copy(light[:], b)
	return light, nil
}

func (d *decoder) readBlockEntity() (entity BlockEntity, err error) {
	index, err := d.r.readInt32()
	if err != nil {
		return
	}
	entity.X, entity.Y, entity.Z = BlockIndexX(index), BlockIndexY(index), BlockIndexZ(index)

	if entity.ID, err = d.r.readOptionalString(); err != nil {
		return
	}

	hasTag := true
	if d.optionalTags {
		if hasTag, err = d.r.readBool(); err != nil {
			return
		}
	}
	if hasTag {
		entity.Tag, err = d.readTag()
	}
	return
}

func (d *decoder) readTag() (*Tag, error) {
	var tag Tag
	var err error
	if d.legacyTags {
		tag, err = d.tags.ReadLegacyTag(d.r)
	} else {
		tag, err = d.tags.ReadTag(d.r)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrTruncatedInput) {
		return nil, ErrTruncatedInput
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTag, err)
	}
	return &tag, nil
}

// remapLegacyGrass renames "grass" to "short_grass", keeping any namespace
// and block state properties.
func remapLegacyGrass(blockPalette []string) {
	for i, entry := range blockPalette {
		id := entry
		if end := strings.IndexByte(entry, '['); end >= 0 {
			id = entry[:end]
		}
		namespace, path := "", id
		if sep := strings.IndexByte(id, ':'); sep >= 0 {
			namespace, path = id[:sep+1], id[sep+1:]
		}
		if path == "grass" {
			blockPalette[i] = namespace + "short_grass" + entry[len(id):]
		}
	}
}
