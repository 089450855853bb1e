// quadra CLI - compile semantic-event transcripts to quadruple images and
// run them
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/quadra/manifest"
)

// cli carries the streams and project configuration shared by subcommands.
type cli struct {
	stdout  io.Writer
	stderr  io.Writer
	stdin   io.Reader
	project *manifest.Manifest
	verbose bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("quadra", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbosity := fs.Int("v", 0, "Log verbosity (0 = errors only, 2 = info, 4 = debug)")
	logFile := fs.String("log", "", "Write logs to this file instead of stderr")
	dir := fs.String("C", ".", "Look for quadra.toml starting in this directory")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: quadra [options] <command> [arguments]\n\n")
		fmt.Fprintf(stderr, "Commands:\n")
		fmt.Fprintf(stderr, "  compile <transcript.toml>   Compile a transcript to an image\n")
		fmt.Fprintf(stderr, "  opt <image>                 Optimize an image\n")
		fmt.Fprintf(stderr, "  dump <transcript|image>     Print the quadruple listing\n")
		fmt.Fprintf(stderr, "  run <transcript|image>      Execute a program\n")
		fmt.Fprintf(stderr, "  remote <transcript|image>   Execute a program on a quadra server\n")
		fmt.Fprintf(stderr, "  serve                       Start the exec server\n")
		fmt.Fprintf(stderr, "  images                      List cached images\n")
		fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  quadra compile -O prog.toml      # writes prog.qimg\n")
		fmt.Fprintf(stderr, "  quadra run -profile prog.qimg\n")
		fmt.Fprintf(stderr, "  quadra serve -addr :7411\n")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	var path *string
	if *logFile != "" {
		path = logFile
	}
	commonlog.Configure(*verbosity, path)

	project, err := manifest.FindAndLoad(*dir)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading manifest: %v\n", err)
		return 1
	}
	if project == nil {
		project = manifest.Default()
	}

	c := &cli{
		stdout:  stdout,
		stderr:  stderr,
		stdin:   stdin,
		project: project,
		verbose: *verbosity > 0,
	}

	commands := map[string]func([]string) error{
		"compile": c.compile,
		"opt":     c.optimize,
		"dump":    c.dump,
		"run":     c.run,
		"remote":  c.remote,
		"serve":   c.serve,
		"images":  c.images,
	}
	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fmt.Fprintf(stderr, "Error: unknown command %q\n", fs.Arg(0))
		fs.Usage()
		return 2
	}
	if err := cmd(fs.Args()[1:]); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// flags creates a subcommand flag set that reports errors instead of
// exiting.
func (c *cli) flags(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "Usage: quadra %s %s\n\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

// oneArg parses fs and requires exactly one positional argument.
func oneArg(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return "", fmt.Errorf("%s takes exactly one argument", fs.Name())
	}
	return fs.Arg(0), nil
}

// source is oneArg with the manifest's entry transcript as the default.
func (c *cli) source(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() == 0 {
		if entry := c.project.EntryPath(); entry != "" {
			return entry, nil
		}
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return "", fmt.Errorf("%s takes exactly one argument", fs.Name())
	}
	return fs.Arg(0), nil
}
