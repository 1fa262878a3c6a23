package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/songbook/internal"
	"github.com/starford/songbook/internal/catalog"
	"github.com/starford/songbook/internal/library"
	"github.com/starford/songbook/internal/mcpserver"
	pkgconfig "github.com/starford/songbook/pkg/config"
)

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:   "songbook",
		Usage:  "Songbook data service: resilient book documents, imported books and bookmarks",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Upgrade persisted preferences to the configured version",
				Action: runMigrate,
			},
			{
				Name:   "books",
				Usage:  "List prepackaged, public and imported books",
				Flags:  []cli.Flag{jsonFlag()},
				Action: runBooks,
			},
			documentCommand("summary", "Show the summary of a book", printSummary),
			documentCommand("songs", "Show the song list of a book", printSongs),
			documentCommand("index", "Show the topical index of a book", printIndex),
			{
				Name:      "import",
				Usage:     "Import a known book into the library",
				ArgsUsage: "<book>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Import without asking"},
				},
				Action: runImport,
			},
			{
				Name:      "remove",
				Usage:     "Remove an imported book",
				ArgsUsage: "<book>",
				Action:    runRemove,
			},
			{
				Name:   "bookmarks",
				Usage:  "List bookmarked songs",
				Flags:  []cli.Flag{jsonFlag()},
				Action: runBookmarks,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the songbook tools over MCP stdio",
				Action: runMCP,
			},
		},
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Print JSON instead of a table"}
}

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// openRuntime opens the shared components for a one-shot command. Without a
// configured base URL the bundled books are read straight from disk.
func openRuntime(ctx context.Context, cmd *cli.Command) (*internal.Runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Books.BaseURL == "" {
		if base, ok := fileBase(cfg.Books.Dir); ok {
			cfg.Books.BaseURL = base
		}
	}
	logger := internal.NewLogger(cfg.App, cmd.Root().ErrWriter)
	return internal.Open(ctx, cfg, logger, internal.Hooks{})
}

// fileBase returns the file URL whose "books/" child is dir.
func fileBase(dir string) (string, bool) {
	abs, err := filepath.Abs(dir)
	if err != nil || filepath.Base(abs) != "books" {
		return "", false
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Dir(abs)) + "/"}
	return u.String(), true
}

func bookArg(cmd *cli.Command) (catalog.Ref, error) {
	if cmd.Args().Len() != 1 {
		return "", fmt.Errorf("%s: expected exactly one book reference", cmd.Name)
	}
	return catalog.Parse(cmd.Args().First())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runMigrate(ctx context.Context, cmd *cli.Command) error {
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	_, err = fmt.Fprintf(cmd.Root().Writer, "preferences at version %s\n", rt.Config.App.Version)
	return err
}

func runBooks(ctx context.Context, cmd *cli.Command) error {
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	entries, err := rt.Service.Catalog(ctx)
	if err != nil {
		return err
	}
	w := cmd.Root().Writer
	if cmd.Bool("json") {
		return writeJSON(w, entries)
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		name, songs := "", ""
		if e.Summary != nil {
			name = e.Summary.Name.Long
			songs = strconv.Itoa(e.Summary.NumOfSongs)
		}
		rows = append(rows, []string{string(e.Ref), string(e.Class), yesNo(e.Imported), name, songs})
	}
	_, err = fmt.Fprintln(w, renderTable(
		[]string{"Book", "Class", "Imported", "Name", "Songs"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	))
	return err
}

type documentPrinter func(ctx context.Context, cmd *cli.Command, rt *internal.Runtime, ref catalog.Ref, fallback bool) error

func documentCommand(name, usage string, show documentPrinter) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<book>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "fallback", Usage: "Read the bundled copy instead of the remote mirror"},
			jsonFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ref, err := bookArg(cmd)
			if err != nil {
				return err
			}
			rt, err := openRuntime(ctx, cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			return show(ctx, cmd, rt, ref, cmd.Bool("fallback"))
		},
	}
}

func printSummary(ctx context.Context, cmd *cli.Command, rt *internal.Runtime, ref catalog.Ref, fallback bool) error {
	s, err := rt.Service.Summary(ctx, ref, fallback)
	if err != nil {
		return err
	}
	w := cmd.Root().Writer
	if cmd.Bool("json") {
		return writeJSON(w, s)
	}
	rows := [][]string{
		{"Short", s.Name.Short},
		{"Medium", s.Name.Medium},
		{"Long", s.Name.Long},
		{"Songs", strconv.Itoa(s.NumOfSongs)},
		{"Index", yesNo(s.IndexAvailable)},
		{"Add-on", yesNo(s.AddOn)},
		{"Colors", s.PrimaryColor + " / " + s.SecondaryColor},
	}
	_, err = fmt.Fprintln(w, renderTable([]string{"Field", "Value"}, rows, nil))
	return err
}

func printSongs(ctx context.Context, cmd *cli.Command, rt *internal.Runtime, ref catalog.Ref, fallback bool) error {
	songs, err := rt.Service.Songs(ctx, ref, fallback)
	if err != nil {
		return err
	}
	w := cmd.Root().Writer
	if cmd.Bool("json") {
		return writeJSON(w, songs)
	}
	numbers := songs.Numbers()
	rows := make([][]string, 0, len(numbers))
	for _, n := range numbers {
		rows = append(rows, []string{n, songs[n].Title})
	}
	_, err = fmt.Fprintln(w, renderTable([]string{"No.", "Title"}, rows, []columnAlignment{alignRight, alignLeft}))
	return err
}

func printIndex(ctx context.Context, cmd *cli.Command, rt *internal.Runtime, ref catalog.Ref, fallback bool) error {
	index, err := rt.Service.Index(ctx, ref, fallback)
	if err != nil {
		return err
	}
	w := cmd.Root().Writer
	if cmd.Bool("json") {
		return writeJSON(w, index)
	}
	sections := index.Sections()
	rows := make([][]string, 0, len(sections))
	for _, s := range sections {
		rows = append(rows, []string{s, strings.Join(index[s], ", ")})
	}
	_, err = fmt.Fprintln(w, renderTable([]string{"Section", "Songs"}, rows, nil))
	return err
}

func runImport(ctx context.Context, cmd *cli.Command) error {
	ref, err := bookArg(cmd)
	if err != nil {
		return err
	}
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	w := cmd.Root().Writer
	if cmd.Bool("yes") {
		if err := rt.Library.Import(ctx, ref); err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "imported %s\n", ref)
		return err
	}

	accepted, err := rt.Library.OfferImport(ctx, ref, rt.Service, promptConfirm(cmd.Root().Reader, w))
	if err != nil {
		return err
	}
	if accepted {
		_, err = fmt.Fprintf(w, "imported %s\n", ref)
	}
	return err
}

// promptConfirm asks on w and reads a y/n answer from r.
func promptConfirm(r io.Reader, w io.Writer) library.ConfirmFunc {
	return func(_ context.Context, title, message string) (bool, error) {
		if _, err := fmt.Fprintf(w, "%s\n%s [y/N]: ", title, message); err != nil {
			return false, err
		}
		line, err := bufio.NewReader(r).ReadString('\n')
		if err != nil && err != io.EOF {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}

func runRemove(ctx context.Context, cmd *cli.Command) error {
	ref, err := bookArg(cmd)
	if err != nil {
		return err
	}
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.Library.Remove(ctx, ref); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.Root().Writer, "removed %s\n", ref)
	return err
}

func runBookmarks(ctx context.Context, cmd *cli.Command) error {
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	marks, err := rt.Library.Bookmarks(ctx)
	if err != nil {
		return err
	}
	w := cmd.Root().Writer
	if cmd.Bool("json") {
		return writeJSON(w, marks)
	}
	rows := make([][]string, 0, len(marks))
	for _, m := range marks {
		rows = append(rows, []string{m.Book, m.Number})
	}
	_, err = fmt.Fprintln(w, renderTable([]string{"Book", "No."}, rows, []columnAlignment{alignLeft, alignRight}))
	return err
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	return mcpserver.New(rt.Service, rt.Library, rt.Config.App.Version).ServeStdio()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
