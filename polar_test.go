package polar

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRoundTrip(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionZstd} {
		t.Run(compression.String(), func(t *testing.T) {
			world := sampleWorld(t)
			world.Compression = compression

			data, err := Write(world)
			if err != nil {
				t.Fatalf("write: %v", err)
			}
			got, err := Read(data)
			if err != nil {
				t.Fatalf("read: %v", err)
			}

			if got.Version != LatestVersion || got.Compression != compression {
				t.Errorf("got version %d compression %s", got.Version, got.Compression)
			}
			if got.MinSection != world.MinSection || got.MaxSection != world.MaxSection {
				t.Errorf("section range %d..%d, want %d..%d", got.MinSection, got.MaxSection, world.MinSection, world.MaxSection)
			}
			if diff := cmp.Diff(world.Chunks(), got.Chunks()); diff != "" {
				t.Fatalf("chunks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompressionTransparency(t *testing.T) {
	world := sampleWorld(t)

	world.Compression = CompressionNone
	raw, err := Write(world)
	if err != nil {
		t.Fatalf("write none: %v", err)
	}
	world.Compression = CompressionZstd
	compressed, err := Write(world)
	if err != nil {
		t.Fatalf("write zstd: %v", err)
	}
	if bytes.Equal(raw, compressed) {
		t.Fatal("zstd archive is identical to the uncompressed one")
	}

	fromRaw, err := Read(raw)
	if err != nil {
		t.Fatalf("read none: %v", err)
	}
	fromCompressed, err := Read(compressed)
	if err != nil {
		t.Fatalf("read zstd: %v", err)
	}
	if diff := cmp.Diff(fromRaw.Chunks(), fromCompressed.Chunks()); diff != "" {
		t.Fatalf("decoded chunks differ (-none +zstd):\n%s", diff)
	}
}

func TestWriteIsDeterministic(t *testing.T) {
	first, err := Write(sampleWorld(t))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	second, err := Write(sampleWorld(t))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("equal worlds encoded differently")
	}
}

func TestWriteMatchesLatestRevisionLayout(t *testing.T) {
	world := sampleWorld(t)
	world.Compression = CompressionNone
	got, err := Write(world)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if want := archiveAt(t, LatestVersion, CompressionNone, world); !bytes.Equal(want, got) {
		t.Fatalf("writer layout differs from revision %d fixture", LatestVersion)
	}
}

func TestWriteGolden(t *testing.T) {
	world := mustWorld(t, 0, 1)
	world.Compression = CompressionNone
	chunk := NewChunk(0, -1, world.SectionCount())
	chunk.Sections[0] = Section{BlockPalette: []string{"stone"}, BiomePalette: []string{"plains"}}
	world.UpdateChunkAt(chunk.X, chunk.Z, chunk)

	got, err := Write(world)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	want := []byte{
		0x50, 0x6F, 0x6C, 0x72, // magic
		0x00, 0x05, // version
		0x00, // compression
		30,   // content length
		0x00, 0x01, // section range
		0x01,       // chunk count
		0x00, 0x01, // x=0, z=-1
		0x00, 0x01, 5, 's', 't', 'o', 'n', 'e', // single entry palette, no index array
		0x01, 6, 'p', 'l', 'a', 'i', 'n', 's',
		0x00, 0x00, // no light
		0x01,                   // empty section
		0x00,                   // block entities
		0x00, 0x00, 0x00, 0x00, // heightmaps
		0x00, // user data
	}
	if !bytes.Equal(want, got) {
		t.Fatalf("got  % x\nwant % x", got, want)
	}
}

func TestSingleEntryPaletteFill(t *testing.T) {
	world := mustWorld(t, 0, 1)
	chunk := NewChunk(2, 2, world.SectionCount())
	chunk.Sections[1] = Section{BlockPalette: []string{"minecraft:stone"}, BiomePalette: []string{"minecraft:plains"}}
	world.UpdateChunkAt(2, 2, chunk)

	data, err := Write(world)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Read(data)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	decoded, ok := got.ChunkAt(2, 2)
	if !ok {
		t.Fatal("chunk 2,2 missing")
	}
	section := decoded.Sections[1]
	if section.BlockData != nil || section.BiomeData != nil {
		t.Fatal("single entry palettes decoded with index arrays")
	}
	for i := 0; i < SectionBlockCount; i++ {
		if block := section.BlockAt(i); block != "minecraft:stone" {
			t.Fatalf("block %d = %q", i, block)
		}
	}
	for i := 0; i < SectionBiomeCount; i++ {
		if biome := section.BiomeAt(i); biome != "minecraft:plains" {
			t.Fatalf("biome %d = %q", i, biome)
		}
	}
	if empty := decoded.Sections[0]; !empty.Empty || empty.BlockAt(0) != "" {
		t.Fatalf("section 0 = %+v, want empty", empty)
	}
}

func TestReadEveryRevision(t *testing.T) {
	for version := int16(1); version <= LatestVersion; version++ {
		world := sampleWorld(t)
		// Revisions before optional tags cannot express a missing tag.
		for _, chunk := range world.Chunks() {
			for i := range chunk.BlockEntities {
				if chunk.BlockEntities[i].Tag == nil {
					chunk.BlockEntities[i].Tag = mustTag(t, map[string]interface{}{})
				}
			}
		}
		// Revision 1 stores both light arrays or neither.
		if version <= VersionUnifiedLight {
			for _, chunk := range world.Chunks() {
				for i := range chunk.Sections {
					section := &chunk.Sections[i]
					if section.BlockLight == nil || section.SkyLight == nil {
						section.BlockLight, section.SkyLight = nil, nil
					}
				}
			}
		}
		// Revisions before chunk user data drop it.
		if version <= VersionUserDataOptionalBlockEntityTag {
			for _, chunk := range world.Chunks() {
				chunk.UserData = nil
			}
		}

		for _, compression := range []Compression{CompressionNone, CompressionZstd} {
			got, err := Read(archiveAt(t, version, compression, world))
			if err != nil {
				t.Fatalf("revision %d %s: read: %v", version, compression, err)
			}
			if got.Version != version {
				t.Errorf("revision %d: world reports %d", version, got.Version)
			}
			if diff := cmp.Diff(world.Chunks(), got.Chunks()); diff != "" {
				t.Fatalf("revision %d %s: chunks mismatch (-want +got):\n%s", version, compression, diff)
			}
		}
	}
}

func TestLegacyLightIsCoupled(t *testing.T) {
	world := mustWorld(t, 0, 2)
	chunk := NewChunk(0, 0, world.SectionCount())
	chunk.Sections[0] = Section{BlockPalette: []string{"a"}, BiomePalette: []string{"b"}, BlockLight: filledLight(1), SkyLight: filledLight(2)}
	chunk.Sections[1] = Section{BlockPalette: []string{"a"}, BiomePalette: []string{"b"}}
	world.UpdateChunkAt(0, 0, chunk)

	got, err := Read(archiveAt(t, VersionUnifiedLight, CompressionNone, world))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	decoded, _ := got.ChunkAt(0, 0)
	for i, section := range decoded.Sections {
		if (section.BlockLight == nil) != (section.SkyLight == nil) {
			t.Fatalf("section %d has only one light array", i)
		}
	}
	if decoded.Sections[0].BlockLight == nil || *decoded.Sections[0].SkyLight != *filledLight(2) {
		t.Fatal("section 0 lost its light")
	}
	if decoded.Sections[1].BlockLight != nil {
		t.Fatal("section 1 gained light")
	}
}

func TestLegacyGrassRemap(t *testing.T) {
	palette := []string{"grass", "minecraft:grass[snowy=false]", "tall_grass", "minecraft:grass_block", "custom:grass"}
	remapped := []string{"short_grass", "minecraft:short_grass[snowy=false]", "tall_grass", "minecraft:grass_block", "custom:short_grass"}

	for version := int16(1); version <= LatestVersion; version++ {
		world := mustWorld(t, 0, 1)
		chunk := NewChunk(0, 0, world.SectionCount())
		data := new(BlockData)
		for i := range data {
			data[i] = uint32(i % len(palette))
		}
		chunk.Sections[0] = Section{
			BlockPalette: append([]string(nil), palette...),
			BlockData:    data,
			BiomePalette: []string{"plains"},
		}
		world.UpdateChunkAt(0, 0, chunk)

		got, err := Read(archiveAt(t, version, CompressionNone, world))
		if err != nil {
			t.Fatalf("revision %d: read: %v", version, err)
		}
		decoded, _ := got.ChunkAt(0, 0)

		want := remapped
		if version >= VersionShortGrass {
			want = palette
		}
		if diff := cmp.Diff(want, decoded.Sections[0].BlockPalette); diff != "" {
			t.Fatalf("revision %d palette (-want +got):\n%s", version, diff)
		}
	}
}

func TestReadInvalidMagic(t *testing.T) {
	_, err := Read([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00})
	if !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("got %v, want ErrMalformedEnvelope", err)
	}
	if err.Error() != "polar: invalid magic number" {
		t.Fatalf("message = %q", err.Error())
	}

	for _, short := range [][]byte{nil, {0x50}, {0x50, 0x6F, 0x6C}} {
		if _, err = Read(short); !errors.Is(err, ErrTruncatedInput) {
			t.Fatalf("% x: got %v, want ErrTruncatedInput", short, err)
		}
	}
}

func TestReadNewerVersion(t *testing.T) {
	_, err := Read([]byte{
		0x50, 0x6F, 0x6C, 0x72, // magic number
		0x50, 0x50, // version
	})
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("got %v, want ErrUnsupportedVersion", err)
	}
	var versionErr *VersionError
	if !errors.As(err, &versionErr) || versionErr.Max != LatestVersion || versionErr.Found != 20560 {
		t.Fatalf("got %#v", err)
	}
	if want := "up to 5 is supported, found 20560"; !strings.Contains(err.Error(), want) {
		t.Fatalf("message %q does not contain %q", err.Error(), want)
	}
}

func TestReadEnvelopeErrors(t *testing.T) {
	valid := envelopeAt(LatestVersion, CompressionNone, []byte{0, 1, 0})

	badCompression := append([]byte(nil), valid...)
	badCompression[6] = 7

	garbled := envelopeAt(LatestVersion, CompressionZstd, []byte{0, 1, 0})
	garbled = append(garbled[:8], []byte("not a zstd frame")...)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"version zero", envelopeAt(0, CompressionNone, []byte{0, 1, 0}), ErrUnsupportedVersion},
		{"unknown compression", badCompression, ErrInvalidCompression},
		{"missing length", valid[:7], ErrTruncatedInput},
		{"short content", valid[:len(valid)-1], ErrTruncatedInput},
		{"corrupt zstd", garbled, ErrDecompressionFailure},
		{"equal section bounds", envelopeAt(LatestVersion, CompressionNone, []byte{3, 3, 0}), ErrInvalidSectionRange},
		{"inverted section bounds", envelopeAt(LatestVersion, CompressionNone, []byte{4, 0xfc, 0}), ErrInvalidSectionRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			world, err := Read(tt.data)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if world != nil {
				t.Fatal("partial world returned with an error")
			}
		})
	}
}

func TestReadZstdLengthMismatch(t *testing.T) {
	data := envelopeAt(LatestVersion, CompressionZstd, []byte{0, 1, 0})
	// The content is three bytes; claim four.
	data[7] = 4
	if _, err := Read(data); !errors.Is(err, ErrDecompressionFailure) {
		t.Fatalf("got %v, want ErrDecompressionFailure", err)
	}
}

func TestReadTruncatedContent(t *testing.T) {
	content := contentAt(t, LatestVersion, sampleWorld(t))
	for cut := 0; cut < len(content); cut++ {
		_, err := Read(envelopeAt(LatestVersion, CompressionNone, content[:cut]))
		if !errors.Is(err, ErrTruncatedInput) {
			t.Fatalf("cut at %d of %d: got %v, want ErrTruncatedInput", cut, len(content), err)
		}
	}
}

func TestReadIndexOutOfPalette(t *testing.T) {
	world := mustWorld(t, 0, 1)
	chunk := NewChunk(0, 0, world.SectionCount())
	data := new(BlockData)
	data[100] = 2 // the palette only has two entries
	chunk.Sections[0] = Section{BlockPalette: []string{"a", "b"}, BlockData: data, BiomePalette: []string{"c"}}
	world.UpdateChunkAt(0, 0, chunk)

	// Two bits per entry are needed to store index 2; pack with that width.
	var content writer
	content.writeByte(0)
	content.writeByte(1)
	content.writeUvarint(1)
	content.writeVarint(0)
	content.writeVarint(0)
	content.writeBool(false)
	content.writeStrings(chunk.Sections[0].BlockPalette)
	words := make([]uint64, 128)
	words[100/32] = 2 << ((100 % 32) * 2)
	content.writeLongs(words)
	content.writeStrings([]string{"c"})
	content.writeBool(false)
	content.writeBool(false)
	content.writeBool(true)
	content.writeUvarint(0)
	content.writeUint32(0)
	content.writeBytes(nil)

	_, err := Read(envelopeAt(LatestVersion, CompressionNone, content.buf.Bytes()))
	if !errors.Is(err, ErrInvalidPalette) {
		t.Fatalf("got %v, want ErrInvalidPalette", err)
	}

	if _, err = Write(world); !errors.Is(err, ErrInvalidPalette) {
		t.Fatalf("write: got %v, want ErrInvalidPalette", err)
	}
}

func TestReadOversizedPalette(t *testing.T) {
	var content writer
	content.writeByte(0)
	content.writeByte(1)
	content.writeUvarint(1)
	content.writeVarint(0)
	content.writeVarint(0)
	content.writeBool(false)
	content.writeUvarint(MaxBlockPalette + 1)
	for i := 0; i <= MaxBlockPalette; i++ {
		content.writeString("x")
	}
	_, err := Read(envelopeAt(LatestVersion, CompressionNone, content.buf.Bytes()))
	if !errors.Is(err, ErrInvalidPalette) {
		t.Fatalf("got %v, want ErrInvalidPalette", err)
	}
}

func TestReadHeightmaps(t *testing.T) {
	world := mustWorld(t, 0, 1)
	chunk := NewChunk(5, 5, world.SectionCount())
	motion, floor := new(Heightmap), new(Heightmap)
	motion[0], floor[31] = 7, 9
	chunk.Heightmaps[HeightmapMotionBlocking] = motion
	chunk.Heightmaps[HeightmapOceanFloor] = floor
	chunk.UserData = []byte("after heightmaps")
	world.UpdateChunkAt(5, 5, chunk)

	got, err := Read(archiveAt(t, LatestVersion, CompressionNone, world))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	decoded, _ := got.ChunkAt(5, 5)
	if diff := cmp.Diff(chunk, decoded); diff != "" {
		t.Fatalf("chunk mismatch (-want +got):\n%s", diff)
	}
	if mask := decoded.HeightmapMask(); mask != 0b101 {
		t.Fatalf("mask = %b", mask)
	}

	// Heightmaps are read but not written.
	data, err := Write(got)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	rewritten, err := Read(data)
	if err != nil {
		t.Fatalf("read rewritten: %v", err)
	}
	again, _ := rewritten.ChunkAt(5, 5)
	if again.HeightmapMask() != 0 {
		t.Fatal("heightmaps survived a write")
	}
	if string(again.UserData) != "after heightmaps" {
		t.Fatalf("user data = %q", again.UserData)
	}
}

func TestReadDuplicateChunkOverwrites(t *testing.T) {
	world := mustWorld(t, 0, 1)
	first := NewChunk(1, 1, world.SectionCount())
	first.UserData = []byte("first")
	second := NewChunk(1, 1, world.SectionCount())
	second.UserData = []byte("second")

	var content writer
	content.writeByte(0)
	content.writeByte(1)
	content.writeUvarint(2)
	writeChunkAt(t, &content, LatestVersion, first)
	writeChunkAt(t, &content, LatestVersion, second)

	got, err := Read(envelopeAt(LatestVersion, CompressionNone, content.buf.Bytes()))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.ChunkCount() != 1 {
		t.Fatalf("chunk count = %d, want 1", got.ChunkCount())
	}
	chunk, _ := got.ChunkAt(1, 1)
	if string(chunk.UserData) != "second" {
		t.Fatalf("user data = %q, want the later chunk", chunk.UserData)
	}
}

func TestWriteInvalidModel(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(w *World, c *Chunk)
		want   error
	}{
		{"section count", func(w *World, c *Chunk) { c.Sections = c.Sections[:1] }, ErrInvalidChunk},
		{"missing block data", func(w *World, c *Chunk) {
			c.Sections[0] = Section{BlockPalette: []string{"a", "b"}, BiomePalette: []string{"c"}}
		}, ErrInvalidChunk},
		{"missing biome data", func(w *World, c *Chunk) {
			c.Sections[0] = Section{BlockPalette: []string{"a"}, BiomePalette: []string{"c", "d"}}
		}, ErrInvalidChunk},
		{"oversized biome palette", func(w *World, c *Chunk) {
			c.Sections[0] = Section{BlockPalette: []string{"a"}, BiomePalette: make([]string, MaxBiomePalette+1), BiomeData: new(BiomeData)}
		}, ErrInvalidPalette},
		{"block entity outside chunk", func(w *World, c *Chunk) {
			c.BlockEntities = []BlockEntity{{X: 16}}
		}, ErrInvalidChunk},
		{"block entity too high", func(w *World, c *Chunk) {
			c.BlockEntities = []BlockEntity{{Y: 1 << 23}}
		}, ErrInvalidChunk},
		{"nil chunk", func(w *World, c *Chunk) { w.UpdateChunkAt(1, 1, nil) }, ErrInvalidChunk},
		{"chunk stored under other coordinates", func(w *World, c *Chunk) { c.X = 4 }, ErrInvalidChunk},
		{"section range", func(w *World, c *Chunk) { w.MaxSection = w.MinSection }, ErrInvalidSectionRange},
		{"compression", func(w *World, c *Chunk) { w.Compression = 9 }, ErrInvalidCompression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			world := mustWorld(t, 0, 2)
			chunk := NewChunk(0, 0, world.SectionCount())
			tt.mutate(world, chunk)
			world.UpdateChunkAt(0, 0, chunk)
			if _, err := Write(world); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewWorldRange(t *testing.T) {
	if _, err := NewWorld(2, 2); !errors.Is(err, ErrInvalidSectionRange) {
		t.Fatalf("got %v, want ErrInvalidSectionRange", err)
	}
	world, err := NewWorld(DefaultMinSection, DefaultMaxSection)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	if world.SectionCount() != 24 {
		t.Fatalf("section count = %d, want 24", world.SectionCount())
	}
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZstd} {
		got, err := ParseCompression(strings.ToUpper(c.String()))
		if err != nil || got != c {
			t.Fatalf("ParseCompression(%q) = %v, %v", c, got, err)
		}
	}
	if _, err := ParseCompression("lz4"); !errors.Is(err, ErrInvalidCompression) {
		t.Fatalf("got %v, want ErrInvalidCompression", err)
	}
}
