package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/chazu/quadra/image"
	"github.com/chazu/quadra/server"
	"github.com/chazu/quadra/vm"
)

// run handles `quadra run`.
func (c *cli) run(args []string) error {
	fs := c.flags("run", "[options] [transcript.toml|image]")
	opt := fs.Bool("O", c.project.Optimizer.Enabled, "Optimize transcripts before running")
	profile := fs.Bool("profile", c.project.VM.Profile, "Print an opcode profile after the run")
	maxSteps := fs.Uint64("max-steps", c.project.VM.MaxSteps, "Abort after this many instructions (0 = no limit)")
	src, err := c.source(fs, args)
	if err != nil {
		return err
	}

	prog, err := c.load(src, *opt)
	if err != nil {
		return err
	}
	if err := c.policy().Check(prog); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	machine := vm.New(prog.Quads, vm.Options{
		Memory:   c.project.MemoryOptions(),
		Stdout:   c.stdout,
		Stdin:    c.stdin,
		MaxSteps: *maxSteps,
		Profile:  *profile,
	})
	runErr := machine.Run(ctx)

	if *profile {
		c.printProfile(machine.Profile())
	}
	return runErr
}

func (c *cli) printProfile(p *vm.Profiler) {
	stats := p.Stats()
	fmt.Fprintf(c.stderr, "%s instructions, %s calls, %d functions (%d hot)\n",
		humanize.Comma(int64(stats.Instructions)), humanize.Comma(int64(stats.Calls)),
		stats.Functions, stats.HotFunctions)
	for _, oc := range p.Ops() {
		fmt.Fprintf(c.stderr, "  %-8s %12s\n", oc.Op, humanize.Comma(int64(oc.Count)))
	}
}

// policy builds the native policy from [vm] natives.
func (c *cli) policy() *image.NativePolicy {
	if len(c.project.VM.Natives) == 0 {
		return image.NewPermissivePolicy()
	}
	return image.NewRestrictedPolicy(c.project.VM.Natives)
}

// remote handles `quadra remote`: ships the image to a server and prints
// its output.
func (c *cli) remote(args []string) error {
	fs := c.flags("remote", "[options] <transcript.toml|image>")
	addr := fs.String("addr", c.project.Server.Listen, "Server address")
	opt := fs.Bool("O", c.project.Optimizer.Enabled, "Optimize transcripts before sending")
	stdin := fs.String("stdin", "", "Text fed to the program's read calls")
	keep := fs.Bool("keep", false, "Keep the image in the server's store")
	maxSteps := fs.Uint64("max-steps", 0, "Requested instruction limit (capped by the server)")
	src, err := oneArg(fs, args)
	if err != nil {
		return err
	}

	prog, err := c.load(src, *opt)
	if err != nil {
		return err
	}
	data, err := image.Marshal(prog)
	if err != nil {
		return err
	}

	client := server.NewClient(http.DefaultClient, baseURL(*addr))
	res, err := client.Run(context.Background(), &server.RunRequest{
		Image:    data,
		Stdin:    *stdin,
		MaxSteps: *maxSteps,
		Keep:     *keep,
	})
	if err != nil {
		return err
	}
	fmt.Fprint(c.stdout, res.Stdout)
	if c.verbose {
		fmt.Fprintf(c.stderr, "run %s: %s steps\n", res.RunID, humanize.Comma(int64(res.Steps)))
	}
	if !res.Success {
		return fmt.Errorf("remote run %s: %s", res.RunID, res.Error)
	}
	return nil
}

// baseURL turns "host:port" or ":port" into an http URL.
func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}
