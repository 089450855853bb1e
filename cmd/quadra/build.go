package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/chazu/quadra/compiler"
	"github.com/chazu/quadra/image"
	"github.com/chazu/quadra/imagestore"
	"github.com/chazu/quadra/optimizer"
	"github.com/chazu/quadra/quad"
)

// ImageExt is the file extension of program images.
const ImageExt = ".qimg"

// compile handles `quadra compile`.
//
//	quadra compile prog.toml            # ./prog.qimg
//	quadra compile -O -o out.qimg prog.toml
func (c *cli) compile(args []string) error {
	fs := c.flags("compile", "[options] [transcript.toml]")
	out := fs.String("o", "", "Output image (default: [image] output, else <transcript>"+ImageExt+")")
	opt := fs.Bool("O", c.project.Optimizer.Enabled, "Optimize the program")
	noCache := fs.Bool("no-cache", false, "Bypass the image cache")
	src, err := c.source(fs, args)
	if err != nil {
		return err
	}

	prog, cached, err := c.build(src, *opt, !*noCache)
	if err != nil {
		return err
	}

	dst := *out
	if dst == "" && c.project.Image.Output != "" {
		dst = c.project.Path(c.project.Image.Output)
	}
	if dst == "" {
		dst = strings.TrimSuffix(src, filepath.Ext(src)) + ImageExt
	}
	if dir := filepath.Dir(dst); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	if err := image.Save(dst, prog); err != nil {
		return err
	}
	return c.describe(dst, prog, cached)
}

// optimize handles `quadra opt`: re-optimizes an image in place or into -o.
func (c *cli) optimize(args []string) error {
	fs := c.flags("opt", "[options] <image>")
	out := fs.String("o", "", "Output image (default: overwrite the input)")
	src, err := oneArg(fs, args)
	if err != nil {
		return err
	}

	prog, err := image.Load(src)
	if err != nil {
		return err
	}
	quads, stats, err := optimizer.Optimize(prog.Quads, c.project.OptimizerOptions())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stderr, "%s\n", stats)

	optimized := image.New(prog.Name, quads, true)
	dst := *out
	if dst == "" {
		dst = src
	}
	if err := image.Save(dst, optimized); err != nil {
		return err
	}
	return c.describe(dst, optimized, false)
}

// dump handles `quadra dump`.
func (c *cli) dump(args []string) error {
	fs := c.flags("dump", "[options] <transcript.toml|image>")
	opt := fs.Bool("O", false, "Optimize transcripts before printing")
	src, err := oneArg(fs, args)
	if err != nil {
		return err
	}
	prog, err := c.load(src, *opt)
	if err != nil {
		return err
	}
	return quad.Dump(c.stdout, prog.Quads)
}

// describe prints a one-line summary of a written image.
func (c *cli) describe(path string, prog *image.Program, cached bool) error {
	data, err := image.Marshal(prog)
	if err != nil {
		return err
	}
	h, err := image.Hash(prog)
	if err != nil {
		return err
	}
	note := ""
	if cached {
		note = " (cached)"
	}
	fmt.Fprintf(c.stdout, "%s: %d instructions, %s, %s%s\n",
		path, len(prog.Quads), humanize.Bytes(uint64(len(data))), image.HashString(h)[:12], note)
	return nil
}

// load returns the program in path: transcripts (.toml) are compiled,
// anything else is read as an image.
func (c *cli) load(path string, optimize bool) (*image.Program, error) {
	if filepath.Ext(path) == ".toml" {
		prog, _, err := c.build(path, optimize, false)
		return prog, err
	}
	return image.Load(path)
}

// build compiles a transcript, consulting the image cache when useCache is
// set. The cache key covers the transcript bytes and every setting that
// changes the output.
func (c *cli) build(path string, optimize, useCache bool) (*image.Program, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}

	var store *imagestore.Store
	key := imagestore.SourceKey(data,
		fmt.Sprintf("optimize=%t", optimize),
		fmt.Sprintf("%+v", c.project.OptimizerOptions()),
		fmt.Sprintf("%+v", c.project.MemoryOptions()),
	)
	if useCache {
		store, err = imagestore.Open(c.project.CachePath())
		if err != nil {
			return nil, false, err
		}
		defer store.Close()
		if prog, ok, err := store.Lookup(key); err != nil {
			return nil, false, err
		} else if ok {
			return prog, true, nil
		}
	}

	t, err := compiler.ReadTranscript(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", path, err)
	}
	quads, err := compiler.Compile(t, compiler.Options{Memory: c.project.MemoryOptions()})
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", path, err)
	}
	if optimize {
		var stats optimizer.Stats
		quads, stats, err = optimizer.Optimize(quads, c.project.OptimizerOptions())
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", path, err)
		}
		if c.verbose {
			fmt.Fprintf(c.stderr, "%s\n", stats)
		}
	}

	name := t.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	prog := image.New(name, quads, optimize)

	if store != nil {
		h, err := store.Put(prog)
		if err != nil {
			return nil, false, err
		}
		if err := store.Remember(key, h); err != nil {
			return nil, false, err
		}
	}
	return prog, false, nil
}
