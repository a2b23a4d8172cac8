package anvil

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

const regionMaxOffsets = 1024
const regionSectorSize = 4096

// RegionWidth is the number of chunks along each side of a region.
const RegionWidth = 32

var ErrNoChunk = errors.New("anvil: chunk not found")
var ErrInvalidChunkLength = errors.New("anvil: invalid chunk length")
var ErrInvalidCompression = errors.New("anvil: invalid compression format")
var ErrOutOfRegion = errors.New("anvil: chunk coordinates outside the region")

type CompressionScheme byte

const (
	CompressionGzip CompressionScheme = 1
	CompressionZlib CompressionScheme = 2
	CompressionNone CompressionScheme = 3
)

// Region reads chunks out of an Anvil region file. It is not safe for
// concurrent access; guard it with a mutex if several goroutines share one.
type Region struct {
	source      io.ReadSeeker
	sectorTable []int32
	Name        string
}

// NewRegion reads the sector table of source. The region takes ownership of
// source and closes it in Close when it is an io.Closer.
func NewRegion(source io.ReadSeeker) (region *Region, err error) {
	region = &Region{
		source:      source,
		sectorTable: make([]int32, regionMaxOffsets),
	}

	if file, ok := source.(*os.File); ok {
		region.Name = file.Name()
	}
	if err = region.readSectorTable(); err != nil {
		return nil, err
	}
	return
}

func (region *Region) readSectorTable() (err error) {
	if _, err = region.source.Seek(0, io.SeekStart); err != nil {
		return err
	}

	rawSectorData := make([]byte, regionSectorSize)
	if _, err = io.ReadFull(region.source, rawSectorData); err != nil {
		return err
	}

	err = binary.Read(bytes.NewReader(rawSectorData), binary.BigEndian, region.sectorTable)
	return
}

// ReadChunk returns the decompressed NBT stream of the chunk at x, z. The
// coordinates are local to the region, 0 to 31 on each axis.
func (region *Region) ReadChunk(x, z int) (chunk io.Reader, err error) {
	if x < 0 || x >= RegionWidth || z < 0 || z >= RegionWidth {
		return nil, ErrOutOfRegion
	}
	offset := region.sectorTable[x+z*RegionWidth]

	sectorNumber := offset >> 8
	occupiedSectors := offset & 0xff
	if sectorNumber == 0 {
		err = ErrNoChunk
		return
	}

	if _, err = region.source.Seek(int64(sectorNumber)*regionSectorSize, io.SeekStart); err != nil {
		return
	}

	sectorData := make([]byte, int(occupiedSectors)*regionSectorSize)
	if _, err = io.ReadFull(region.source, sectorData); err != nil {
		return
	}

	sectorReader := bytes.NewReader(sectorData)
	var sectorHeader struct {
		Length      int32
		Compression CompressionScheme
	}
	if err = binary.Read(sectorReader, binary.BigEndian, &sectorHeader); err != nil {
		return
	}

	// The length counts the compression byte.
	if sectorHeader.Length < 1 || sectorHeader.Length > int32(len(sectorData)-4) {
		return nil, ErrInvalidChunkLength
	}

	chunkStream := io.LimitReader(sectorReader, int64(sectorHeader.Length-1))
	switch sectorHeader.Compression {
	case CompressionGzip:
		return gzip.NewReader(chunkStream)
	case CompressionZlib:
		return zlib.NewReader(chunkStream)
	case CompressionNone:
		return chunkStream, nil
	default:
		return nil, ErrInvalidCompression
	}
}

func (region *Region) ChunkExists(x, z int) bool {
	if x < 0 || x >= RegionWidth || z < 0 || z >= RegionWidth {
		return false
	}
	return region.sectorTable[x+z*RegionWidth] != 0
}

func (region *Region) Close() error {
	if closer, ok := region.source.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
