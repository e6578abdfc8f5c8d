// Package cli provides the command-line interface with injectable io.Writer for testing.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/mcdonaldj/archiver/internal/adapters/billyfs"
	"github.com/mcdonaldj/archiver/internal/archiver"
	"github.com/mcdonaldj/archiver/internal/config"
	"github.com/mcdonaldj/archiver/internal/formats"
)

// ConfigService provides configuration operations for the CLI.
type ConfigService interface {
	Load() (*config.Config, error)
	Save(cfg *config.Config) error
	ConfigPath() (string, error)
	DefaultConfig() (*config.Config, error)
}

// ArchiverFactory builds the facade a command works with.
type ArchiverFactory func(cfg *config.Config, logger *slog.Logger) *archiver.Archiver

// CLI represents the command-line interface with injectable dependencies.
type CLI struct {
	Out     io.Writer // Standard output
	Err     io.Writer // Standard error
	Version string    // Application version
	Args    []string  // Command arguments (like os.Args)

	// Exit function for testability (defaults to os.Exit)
	Exit func(code int)

	// Injectable dependencies (nil means use defaults)
	ConfigSvc   ConfigService
	NewArchiver ArchiverFactory

	// Color functions (can be disabled for testing)
	green  func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
	gray   func(a ...interface{}) string
	red    func(a ...interface{}) string
}

// New creates a new CLI with default settings.
func New(version string) *CLI {
	return &CLI{
		Out:     os.Stdout,
		Err:     os.Stderr,
		Version: version,
		Args:    os.Args,
		Exit:    os.Exit,
		green:   color.New(color.FgGreen, color.Bold).SprintFunc(),
		yellow:  color.New(color.FgYellow).SprintFunc(),
		cyan:    color.New(color.FgCyan).SprintFunc(),
		gray:    color.New(color.FgHiBlack).SprintFunc(),
		red:     color.New(color.FgRed).SprintFunc(),
	}
}

// NewForTesting creates a CLI configured for testing (no colors, captured output).
func NewForTesting(out, errOut io.Writer, args []string) *CLI {
	noColor := func(a ...interface{}) string { return fmt.Sprint(a...) }
	return &CLI{
		Out:     out,
		Err:     errOut,
		Version: "test",
		Args:    args,
		Exit:    func(int) {},
		green:   noColor,
		yellow:  noColor,
		cyan:    noColor,
		gray:    noColor,
		red:     noColor,
	}
}

// defaultConfigService wraps the config package functions.
type defaultConfigService struct{}

func (d *defaultConfigService) Load() (*config.Config, error)          { return config.Load() }
func (d *defaultConfigService) Save(cfg *config.Config) error          { return cfg.Save() }
func (d *defaultConfigService) ConfigPath() (string, error)            { return config.ConfigPath() }
func (d *defaultConfigService) DefaultConfig() (*config.Config, error) { return config.DefaultConfig() }

// defaultArchiver works on the local disk with the configured modes.
func defaultArchiver(cfg *config.Config, logger *slog.Logger) *archiver.Archiver {
	fs := billyfs.NewLocal().WithDirMode(cfg.DefaultDirMode.FileMode())
	return archiver.New(
		archiver.WithStorage(fs.Unwrap()),
		archiver.WithFileSystem(fs),
		archiver.WithArchiveDirMode(cfg.ArchiveDirMode.FileMode()),
		archiver.WithExtractDirMode(cfg.ExtractDirMode.FileMode()),
		archiver.WithLogger(logger),
	)
}

// Helper methods to get the service or default
func (c *CLI) configSvc() ConfigService {
	if c.ConfigSvc != nil {
		return c.ConfigSvc
	}
	return &defaultConfigService{}
}

func (c *CLI) archiverFactory() ArchiverFactory {
	if c.NewArchiver != nil {
		return c.NewArchiver
	}
	return defaultArchiver
}

// Run executes the CLI with the configured arguments.
func (c *CLI) Run() {
	if len(c.Args) < 2 {
		c.PrintUsage()
		c.Exit(1)
		return
	}

	switch c.Args[1] {
	case "add":
		c.RunAdd()
	case "extract":
		c.RunExtract()
	case "list", "ls":
		c.RunList()
	case "cat":
		c.RunCat()
	case "rm":
		c.RunRemove()
	case "info":
		c.RunInfo()
	case "init":
		c.InitConfig()
	case "version", "-v", "--version":
		fmt.Fprintf(c.Out, "archiver v%s\n", c.Version)
	case "help", "-h", "--help":
		c.PrintUsage()
	default:
		fmt.Fprintf(c.Err, "Unknown command: %s\n", c.Args[1])
		c.PrintUsage()
		c.Exit(1)
	}
}

// PrintUsage prints the help message.
func (c *CLI) PrintUsage() {
	fmt.Fprintln(c.Out, `archiver - Zip and Phar archive tool

Usage:
  archiver add <archive> <path>... [--format=zip|phar] [--folder=dir]
                                           Add files or directories
  archiver extract <archive> <dest> [--only=p1,p2 | --exclude=p1,p2] [--folder=dir]
                                           Extract entries into dest
  archiver list <archive> [--folder=dir]   List entries
  archiver cat <archive> <entry>           Print an entry to stdout
  archiver rm <archive> <entry>... [--prefix]
                                           Remove entries (--prefix: every entry under them)
  archiver info <archive>                  Show archive summary
  archiver init                            Create default config file
  archiver version, -v                     Show version
  archiver help, -h                        Show this help

Any command accepts --verbose to log each step to stderr.

Config: ~/.archiver/config.yaml`)
}

// InitConfig creates the default config file.
func (c *CLI) InitConfig() {
	svc := c.configSvc()
	cfg, err := svc.DefaultConfig()
	if err != nil {
		fmt.Fprintf(c.Err, "Error: %v\n", err)
		c.Exit(1)
		return
	}
	if err := svc.Save(cfg); err != nil {
		fmt.Fprintf(c.Err, "Error saving config: %v\n", err)
		c.Exit(1)
		return
	}
	path, err := svc.ConfigPath()
	if err != nil {
		fmt.Fprintf(c.Err, "Error: %v\n", err)
		c.Exit(1)
		return
	}
	fmt.Fprintf(c.Out, "Created config at %s\n", path)
}

// invocation holds the parsed arguments of one command.
type invocation struct {
	positional []string
	flags      map[string]string
}

func (inv invocation) flag(name string) (string, bool) {
	v, ok := inv.flags[name]
	return v, ok
}

// list splits a comma separated flag value, dropping empty items.
func (inv invocation) list(name string) []string {
	var out []string
	for _, item := range strings.Split(inv.flags[name], ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseArgs(args []string) invocation {
	inv := invocation{flags: map[string]string{}}
	for _, arg := range args {
		if !strings.HasPrefix(arg, "--") {
			inv.positional = append(inv.positional, arg)
			continue
		}
		name, value, _ := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		inv.flags[name] = value
	}
	return inv
}

// session is a loaded config plus an archiver opened on one archive.
type session struct {
	cfg *config.Config
	a   *archiver.Archiver
}

// open loads the config and opens archivePath. With mustExist set a missing
// archive is reported instead of created.
func (c *CLI) open(inv invocation, archivePath string, mustExist bool) (*session, bool) {
	cfg, err := c.configSvc().Load()
	if err != nil {
		fmt.Fprintf(c.Err, "Error loading config: %v\n", err)
		c.Exit(1)
		return nil, false
	}

	var logger *slog.Logger
	if _, ok := inv.flag("verbose"); ok || cfg.Verbose {
		logger = slog.New(slog.NewTextHandler(c.Err, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	a := c.archiverFactory()(cfg, logger)

	path, err := filepath.Abs(config.ExpandPath(archivePath))
	if err != nil {
		fmt.Fprintf(c.Err, "Error: %v\n", err)
		c.Exit(1)
		return nil, false
	}
	if mustExist && !a.FileSystem().IsFile(path) {
		fmt.Fprintf(c.Err, "Error: archive not found: %s\n", path)
		c.Exit(1)
		return nil, false
	}

	format, ok := inv.flag("format")
	if !ok {
		format = string(formats.NewRegistry().Detect(path, formats.Format(cfg.Format)))
	}
	if err := a.Make(path, format); err != nil {
		fmt.Fprintf(c.Err, "Error opening %s: %v\n", path, err)
		c.Exit(1)
		return nil, false
	}
	if folder, ok := inv.flag("folder"); ok {
		a.Folder(folder)
	}
	return &session{cfg: cfg, a: a}, true
}

// finish closes the session, reporting a failed flush.
func (c *CLI) finish(s *session) bool {
	if err := s.a.Close(); err != nil {
		fmt.Fprintf(c.Err, "Error writing archive: %v\n", err)
		c.Exit(1)
		return false
	}
	return true
}

// fail reports err, releases the archive without reporting a second error,
// and exits.
func (c *CLI) fail(s *session, msg string, err error) {
	fmt.Fprintf(c.Err, "%s: %v\n", msg, err)
	_ = s.a.Close()
	c.Exit(1)
}

// RunAdd adds files and directories to an archive, creating it if needed.
func (c *CLI) RunAdd() {
	inv := parseArgs(c.Args[2:])
	if len(inv.positional) < 2 {
		fmt.Fprintln(c.Out, "Usage: archiver add <archive> <path>... [--format=zip|phar] [--folder=dir]")
		c.Exit(1)
		return
	}

	s, ok := c.open(inv, inv.positional[0], false)
	if !ok {
		return
	}
	archivePath := s.a.FilePath()

	sources := inv.positional[1:]
	for i, src := range sources {
		sources[i] = config.ExpandPath(src)
	}
	if err := s.a.Add(sources...); err != nil {
		c.fail(s, "Error adding files", err)
		return
	}
	if !c.finish(s) {
		return
	}

	fmt.Fprintf(c.Out, "%s Added %d path(s) to %s\n", c.green("*"), len(sources), archivePath)
}

// RunExtract extracts entries to a destination directory.
func (c *CLI) RunExtract() {
	inv := parseArgs(c.Args[2:])
	if len(inv.positional) < 2 {
		fmt.Fprintln(c.Out, "Usage: archiver extract <archive> <dest> [--only=p1,p2 | --exclude=p1,p2] [--folder=dir]")
		c.Exit(1)
		return
	}

	_, only := inv.flag("only")
	_, exclude := inv.flag("exclude")
	if only && exclude {
		fmt.Fprintln(c.Out, "Cannot use both --only and --exclude")
		c.Exit(1)
		return
	}

	s, ok := c.open(inv, inv.positional[0], true)
	if !ok {
		return
	}

	mode := archiver.Blacklist
	var filters []string
	switch {
	case only:
		mode = archiver.Whitelist
		filters = inv.list("only")
	case exclude:
		filters = inv.list("exclude")
	case s.cfg.FilterMode == config.FilterWhitelist:
		mode = archiver.Whitelist
	}

	dest := config.ExpandPath(inv.positional[1])
	if err := s.a.ExtractTo(dest, filters, mode); err != nil {
		c.fail(s, "Extraction failed", err)
		return
	}
	if !c.finish(s) {
		return
	}

	fmt.Fprintf(c.Out, "%s Extracted %s to %s\n", c.green("*"), filepath.Base(inv.positional[0]), dest)
}

// RunList lists the entries of an archive with their sizes.
func (c *CLI) RunList() {
	inv := parseArgs(c.Args[2:])
	if len(inv.positional) < 1 {
		fmt.Fprintln(c.Out, "Usage: archiver list <archive> [--folder=dir]")
		c.Exit(1)
		return
	}

	s, ok := c.open(inv, inv.positional[0], true)
	if !ok {
		return
	}

	names, err := s.a.Entries()
	if err != nil {
		c.fail(s, "Error", err)
		return
	}
	if len(names) == 0 {
		fmt.Fprintf(c.Out, "No entries in %s\n", filepath.Base(s.a.FilePath()))
		c.finish(s)
		return
	}

	fmt.Fprintf(c.Out, "Entries in %s:\n\n", c.cyan(filepath.Base(s.a.FilePath())))
	fmt.Fprintf(c.Out, "  %10s  %s\n", "SIZE", "NAME")
	fmt.Fprintf(c.Out, "  %10s  %s\n", "----", "----")

	var total uint64
	for _, name := range names {
		if strings.HasSuffix(name, "/") {
			fmt.Fprintf(c.Out, "  %10s  %s\n", c.gray("-"), name)
			continue
		}
		size, err := s.a.EntrySize(name)
		if err != nil {
			c.fail(s, "Error reading "+name, err)
			return
		}
		total += uint64(size)
		fmt.Fprintf(c.Out, "  %10s  %s\n", humanize.Bytes(uint64(size)), name)
	}
	fmt.Fprintf(c.Out, "\n%s entries, %s\n", humanize.Comma(int64(len(names))), c.yellow(humanize.Bytes(total)))
	c.finish(s)
}

// RunCat writes one entry's bytes to stdout.
func (c *CLI) RunCat() {
	inv := parseArgs(c.Args[2:])
	if len(inv.positional) < 2 {
		fmt.Fprintln(c.Out, "Usage: archiver cat <archive> <entry>")
		c.Exit(1)
		return
	}

	s, ok := c.open(inv, inv.positional[0], true)
	if !ok {
		return
	}

	data, err := s.a.FileContent(inv.positional[1])
	if err != nil {
		c.fail(s, "Error", err)
		return
	}
	_, _ = c.Out.Write(data)
	c.finish(s)
}

// RunRemove removes entries, or with --prefix every entry under the given prefixes.
func (c *CLI) RunRemove() {
	inv := parseArgs(c.Args[2:])
	if len(inv.positional) < 2 {
		fmt.Fprintln(c.Out, "Usage: archiver rm <archive> <entry>... [--prefix]")
		c.Exit(1)
		return
	}

	s, ok := c.open(inv, inv.positional[0], true)
	if !ok {
		return
	}

	before, err := entryCount(s.a)
	if err != nil {
		c.fail(s, "Error", err)
		return
	}
	targets := inv.positional[1:]
	if _, prefix := inv.flag("prefix"); prefix {
		if err := s.a.RemoveMatching(targets); err != nil {
			c.fail(s, "Error removing entries", err)
			return
		}
	} else {
		for _, name := range targets {
			if err := s.a.Remove(name); err != nil {
				c.fail(s, "Error removing "+name, err)
				return
			}
		}
	}
	after, err := entryCount(s.a)
	if err != nil {
		c.fail(s, "Error", err)
		return
	}

	if !c.finish(s) {
		return
	}
	fmt.Fprintf(c.Out, "%s Removed %d entries\n", c.yellow("-"), before-after)
}

// RunInfo shows a summary of an archive.
func (c *CLI) RunInfo() {
	inv := parseArgs(c.Args[2:])
	if len(inv.positional) < 1 {
		fmt.Fprintln(c.Out, "Usage: archiver info <archive>")
		c.Exit(1)
		return
	}

	s, ok := c.open(inv, inv.positional[0], true)
	if !ok {
		return
	}

	names, err := s.a.Entries()
	if err != nil {
		c.fail(s, "Error", err)
		return
	}
	var total uint64
	for _, name := range names {
		size, err := s.a.EntrySize(name)
		if err != nil {
			c.fail(s, "Error reading "+name, err)
			return
		}
		total += uint64(size)
	}

	fmt.Fprintln(c.Out, "archive info:")
	fmt.Fprintf(c.Out, "  Path:    %s\n", s.a.FilePath())
	fmt.Fprintf(c.Out, "  Format:  %s\n", s.a.ArchiveType())
	fmt.Fprintf(c.Out, "  Status:  %s\n", s.a.Status())
	fmt.Fprintf(c.Out, "  Entries: %s\n", humanize.Comma(int64(len(names))))
	fmt.Fprintf(c.Out, "  Content: %s\n", humanize.Bytes(total))
	c.finish(s)
}

// entryCount counts every entry in the archive, ignoring --folder.
func entryCount(a *archiver.Archiver) (int, error) {
	n := 0
	err := a.Repository().Each(func(string) error {
		n++
		return nil
	})
	return n, err
}
