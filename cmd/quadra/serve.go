package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/chazu/quadra/image"
	"github.com/chazu/quadra/imagestore"
	"github.com/chazu/quadra/server"
)

// serve handles `quadra serve`.
func (c *cli) serve(args []string) error {
	fs := c.flags("serve", "[options]")
	addr := fs.String("addr", c.project.Server.Listen, "Listen address")
	maxSteps := fs.Uint64("max-steps", c.project.Server.MaxSteps, "Per-run instruction cap (0 = no limit)")
	noStore := fs.Bool("no-store", false, "Do not open the image store")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := []server.Option{
		server.WithMaxSteps(*maxSteps),
		server.WithPolicy(c.policy()),
	}
	if !*noStore {
		store, err := imagestore.Open(c.project.CachePath())
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, server.WithStore(store))
	}

	srv := server.New(opts...)
	defer srv.Stop()
	return srv.ListenAndServe(*addr)
}

// images handles `quadra images`: lists the image cache.
func (c *cli) images(args []string) error {
	fs := c.flags("images", "")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := imagestore.Open(c.project.CachePath())
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "HASH\tNAME\tQUADS\tSIZE\tCREATED\n")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			image.HashString(e.Hash)[:12], e.Name, e.Quads, humanize.Bytes(uint64(e.Size)), humanize.Time(e.CreatedAt))
	}
	return tw.Flush()
}
