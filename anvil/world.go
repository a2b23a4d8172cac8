// Package anvil reads Minecraft Anvil region files and converts worlds saved
// by 1.18 and later into polar worlds.
package anvil

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	mcnbt "github.com/Tnze/go-mc/nbt"

	"github.com/astei/polar"
)

type Options struct {
	// MinSection and MaxSection bound the converted world. Both zero means
	// polar.DefaultMinSection to polar.DefaultMaxSection.
	MinSection, MaxSection int8
	Compression            polar.Compression
	Logger                 *slog.Logger
}

func (o *Options) withDefaults() {
	if o.MinSection == 0 && o.MaxSection == 0 {
		o.MinSection, o.MaxSection = polar.DefaultMinSection, polar.DefaultMaxSection
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Convert reads every region file in regionDir and returns the chunks as a
// polar world. Regions are read concurrently. A region that cannot be read
// is logged and skipped, as are chunks saved before 1.18.
func Convert(regionDir string, opts Options) (*polar.World, error) {
	opts.withDefaults()
	world, err := polar.NewWorld(opts.MinSection, opts.MaxSection)
	if err != nil {
		return nil, err
	}
	world.Compression = opts.Compression

	regions, err := openRegions(regionDir, opts.Logger)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(len(regions))
	for _, region := range regions {
		go func(region *Region) {
			defer wg.Done()
			defer region.Close()
			if err := readRegion(region, world, opts); err != nil {
				opts.Logger.Error("unable to read region", "region", region.Name, "err", err)
			}
		}(region)
	}
	wg.Wait()

	opts.Logger.Info("converted world", "regions", len(regions), "chunks", world.ChunkCount())
	return world, nil
}

func openRegions(root string, logger *slog.Logger) (regions []*Region, err error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".mca") {
			continue
		}
		logger.Debug("discovered region", "name", entry.Name())

		file, err := os.Open(filepath.Join(root, entry.Name()))
		if err != nil {
			closeRegions(regions)
			return nil, err
		}
		region, err := NewRegion(file)
		if err != nil {
			_ = file.Close()
			// Freshly created regions can be shorter than the sector table.
			logger.Warn("skipping region", "name", entry.Name(), "err", err)
			continue
		}
		regions = append(regions, region)
	}
	return regions, nil
}

func closeRegions(regions []*Region) {
	for _, region := range regions {
		_ = region.Close()
	}
}

// readRegion stores every chunk of region in world. The world's chunk store
// is safe for concurrent updates.
func readRegion(region *Region, world *polar.World, opts Options) error {
	for x := 0; x < RegionWidth; x++ {
		for z := 0; z < RegionWidth; z++ {
			if !region.ChunkExists(x, z) {
				continue
			}
			chunk, err := readChunk(region, x, z, opts)
			if errors.Is(err, ErrUnsupportedChunk) {
				opts.Logger.Warn("skipping chunk", "region", region.Name, "x", x, "z", z, "err", err)
				continue
			}
			if err != nil {
				return fmt.Errorf("chunk %d,%d: %w", x, z, err)
			}
			world.UpdateChunkAt(chunk.X, chunk.Z, chunk)
		}
	}
	return nil
}

func readChunk(region *Region, x, z int, opts Options) (*polar.Chunk, error) {
	chunkReader, err := region.ReadChunk(x, z)
	if err != nil {
		return nil, err
	}

	var root ChunkRoot
	if _, err = mcnbt.NewDecoder(chunkReader).Decode(&root); err != nil {
		return nil, fmt.Errorf("could not deserialize chunk: %w", err)
	}
	return ConvertChunk(&root, opts.MinSection, opts.MaxSection)
}
