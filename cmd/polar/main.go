package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/astei/polar"
	"github.com/astei/polar/anvil"
)

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	compressionFlag := &cli.StringFlag{
		Name:    "compression",
		Value:   polar.DefaultCompression.String(),
		Usage:   "content compression of the written archive (none or zstd)",
		EnvVars: []string{"POLAR_COMPRESSION"},
	}

	return &cli.App{
		Name:  "polar",
		Usage: "converts Anvil worlds to polar archives and inspects them",
		Commands: []*cli.Command{
			{
				Name:      "convert",
				Usage:     "convert an Anvil region directory",
				ArgsUsage: "<region-dir> <out.polar>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "min-section", Value: polar.DefaultMinSection, Usage: "lowest section kept"},
					&cli.IntFlag{Name: "max-section", Value: polar.DefaultMaxSection, Usage: "highest section kept"},
					&cli.BoolFlag{Name: "verbose", Usage: "log every region file"},
					compressionFlag,
				},
				Action: convert,
			},
			{
				Name:      "inspect",
				Usage:     "print a summary of an archive",
				ArgsUsage: "<file.polar>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force-legacy-nbt",
						Usage:   "read block entity tags with the named root layout",
						EnvVars: []string{"POLAR_FORCE_LEGACY_NBT"},
					},
					&cli.BoolFlag{Name: "chunks", Usage: "list every chunk"},
				},
				Action: inspect,
			},
			{
				Name:      "upgrade",
				Usage:     "rewrite an archive at the latest revision",
				ArgsUsage: "<in.polar> <out.polar>",
				Flags:     []cli.Flag{compressionFlag},
				Action:    upgrade,
			},
		},
	}
}

func convert(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("need a region directory and an output file")
	}
	compression, err := polar.ParseCompression(c.String("compression"))
	if err != nil {
		return err
	}
	minSection, maxSection, err := sectionRange(c.Int("min-section"), c.Int("max-section"))
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	errOut := c.App.ErrWriter
	if errOut == nil {
		errOut = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

	world, err := anvil.Convert(c.Args().Get(0), anvil.Options{
		MinSection:  minSection,
		MaxSection:  maxSection,
		Compression: compression,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	return writeWorld(c.Args().Get(1), world)
}

func sectionRange(lowest, highest int) (int8, int8, error) {
	if lowest < math.MinInt8 || highest > math.MaxInt8 || lowest >= highest {
		return 0, 0, fmt.Errorf("%w: min %d, max %d", polar.ErrInvalidSectionRange, lowest, highest)
	}
	return int8(lowest), int8(highest), nil
}

func inspect(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("need an archive to inspect")
	}
	world, err := readWorld(c.Args().Get(0), polar.WithForceLegacyTags(c.Bool("force-legacy-nbt")))
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "version:     %d\n", world.Version)
	fmt.Fprintf(out, "compression: %s\n", world.Compression)
	fmt.Fprintf(out, "sections:    %d to %d\n", world.MinSection, world.MaxSection)
	fmt.Fprintf(out, "chunks:      %d\n", world.ChunkCount())
	if c.Bool("chunks") {
		for _, chunk := range world.Chunks() {
			printChunk(out, chunk)
		}
	}
	return nil
}

func printChunk(out io.Writer, chunk *polar.Chunk) {
	populated := chunk.PopulatedSections()
	fmt.Fprintf(out, "%d,%d: %d/%d sections %s, %d block entities, heightmaps %06b, %d bytes of user data\n",
		chunk.X, chunk.Z, populated.Count(), len(chunk.Sections), populated.String(),
		len(chunk.BlockEntities), chunk.HeightmapMask(), len(chunk.UserData))
}

func upgrade(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("need an input and an output archive")
	}
	compression, err := polar.ParseCompression(c.String("compression"))
	if err != nil {
		return err
	}
	world, err := readWorld(c.Args().Get(0))
	if err != nil {
		return err
	}
	world.Compression = compression
	return writeWorld(c.Args().Get(1), world)
}

func readWorld(path string, opts ...polar.ReadOption) (*polar.World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	world, err := polar.Read(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return world, nil
}

func writeWorld(path string, world *polar.World) (err error) {
	data, err := polar.Write(world)
	if err != nil {
		return
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return
	}
	if _, err = file.Write(data); err != nil {
		_ = file.Close()
		return
	}
	return file.Close()
}
