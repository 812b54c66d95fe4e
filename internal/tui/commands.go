package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/brainless/csvexplorer/internal/importer"
	"github.com/brainless/csvexplorer/internal/reference"
)

const defaultRowLimit = 20

// datasetCommand is embedded by commands whose first argument is a
// dataset URL.
type datasetCommand struct {
	spec  CommandSpec
	shell *Shell
	// manyURLs keeps completing URLs after the first one.
	manyURLs bool
}

func (dc *datasetCommand) Spec() CommandSpec { return dc.spec }

// Complete offers flags after "-" and cached dataset URLs otherwise.
func (dc *datasetCommand) Complete(partial string, args []string) []string {
	if strings.HasPrefix(partial, "-") {
		return completeFlags(dc.spec, partial)
	}
	positional, _ := splitFlags(args)
	if len(positional) > 0 && !dc.manyURLs {
		return []string{}
	}
	return dc.shell.cachedURLs(partial)
}

func (dc *datasetCommand) requireURL(ctx *ShellContext) (string, error) {
	if len(ctx.Args) < 2 {
		return "", usageError(dc.spec)
	}
	return ctx.Args[1], nil
}

// loadCached returns the cached dataset or an error naming the import to run.
func (dc *datasetCommand) loadCached(ctx *ShellContext, url string) (*importer.Cached, error) {
	cached, err := dc.shell.importer.LoadFromCache(ctx.Context, url)
	if err != nil {
		return nil, err
	}
	if cached == nil {
		return nil, fmt.Errorf("not cached: %s (run 'import %s' first)", url, url)
	}
	return cached, nil
}

// ImportCommand fetches one or more CSV URLs into the cache
type ImportCommand struct {
	datasetCommand
}

func NewImportCommand(s *Shell) *ImportCommand {
	return &ImportCommand{datasetCommand{
		spec: CommandSpec{
			Name:    "import",
			Aliases: []string{"fetch"},
			Usage:   "import <url>... [--force]",
			Summary: "Fetch CSV URLs and cache them; cached copies are reused unless --force",
			Group:   groupDatasets,
			Flags:   []string{"force"},
		},
		shell:    s,
		manyURLs: true,
	}}
}

func (c *ImportCommand) Execute(ctx *ShellContext) error {
	urls, flags := splitFlags(ctx.Args[1:])
	if len(urls) == 0 {
		return usageError(c.spec)
	}
	opts := importer.Options{ChunkSize: c.shell.config.ChunkSize, Force: flags["force"]}

	if len(urls) == 1 {
		res, err := c.shell.importer.ImportFromURL(ctx.Context, urls[0], opts)
		if err != nil {
			return err
		}
		printImport(ctx, urls[0], res)
		return nil
	}

	batch := c.shell.importer.ImportBatch(ctx.Context, urls, opts, c.shell.config.Workers)
	for _, out := range batch.Outcomes {
		if out.Err != nil {
			fmt.Fprintf(ctx.Out, "Failed %s: %v\n", out.URL, out.Err)
			continue
		}
		printImport(ctx, out.URL, out.Result)
	}
	if n := batch.Failed(); n > 0 {
		return fmt.Errorf("%d of %d imports failed", n, len(batch.Outcomes))
	}
	return nil
}

func printImport(ctx *ShellContext, url string, res *importer.Result) {
	if res.FromCache {
		fmt.Fprintf(ctx.Out, "Loaded %s from cache (%d rows)\n", url, res.Meta.RowCount)
		return
	}
	fmt.Fprintf(ctx.Out, "Imported %s: %d rows in %d chunks\n", url, res.Meta.RowCount, res.Meta.ChunkCount)
}

// ListCommand prints every cached dataset
type ListCommand struct {
	shell *Shell
}

func NewListCommand(s *Shell) *ListCommand {
	return &ListCommand{shell: s}
}

func (c *ListCommand) Spec() CommandSpec {
	return CommandSpec{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "list",
		Summary: "List cached datasets",
		Group:   groupDatasets,
	}
}

func (c *ListCommand) Complete(partial string, args []string) []string { return []string{} }

func (c *ListCommand) Execute(ctx *ShellContext) error {
	metas, err := c.shell.importer.ListCached(ctx.Context)
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Fprintln(ctx.Out, "No cached datasets")
		return nil
	}

	rows := make([][]string, 0, len(metas))
	for _, m := range metas {
		rows = append(rows, []string{
			m.URL,
			strconv.Itoa(m.RowCount),
			strconv.Itoa(m.ChunkCount),
			m.FetchedAt.Local().Format(time.DateTime),
		})
	}
	renderTable(ctx.Out, []string{"URL", "Rows", "Chunks", "Fetched"}, rows, c.shell.width())
	return nil
}

// ShowCommand prints the metadata and schema of a cached dataset
type ShowCommand struct {
	datasetCommand
}

func NewShowCommand(s *Shell) *ShowCommand {
	return &ShowCommand{datasetCommand{
		spec: CommandSpec{
			Name:    "show",
			Usage:   "show <url>",
			Summary: "Show metadata and inferred schema of a cached dataset",
			Group:   groupDatasets,
		},
		shell: s,
	}}
}

func (c *ShowCommand) Execute(ctx *ShellContext) error {
	url, err := c.requireURL(ctx)
	if err != nil {
		return err
	}
	cached, err := c.loadCached(ctx, url)
	if err != nil {
		return err
	}

	m := cached.Meta
	fmt.Fprintf(ctx.Out, "URL:          %s\n", m.URL)
	fmt.Fprintf(ctx.Out, "Fetched:      %s\n", m.FetchedAt.Local().Format(time.RFC1123))
	fmt.Fprintf(ctx.Out, "Rows:         %d (%d chunks of %d)\n", m.RowCount, m.ChunkCount, m.ChunkSize)
	if m.ContentType != "" {
		fmt.Fprintf(ctx.Out, "Content-Type: %s\n", m.ContentType)
	}
	if m.ETag != "" {
		fmt.Fprintf(ctx.Out, "ETag:         %s\n", m.ETag)
	}
	if m.LastModified != "" {
		fmt.Fprintf(ctx.Out, "Modified:     %s\n", m.LastModified)
	}
	fmt.Fprintln(ctx.Out)

	rows := make([][]string, 0, len(m.Schema))
	for _, col := range m.Schema {
		rows = append(rows, []string{col.Name, string(col.Type), strings.Join(col.Examples, ", ")})
	}
	renderTable(ctx.Out, []string{"Column", "Type", "Examples"}, rows, c.shell.width())
	return nil
}

// RowsCommand prints a page of data rows
type RowsCommand struct {
	datasetCommand
}

func NewRowsCommand(s *Shell) *RowsCommand {
	return &RowsCommand{datasetCommand{
		spec: CommandSpec{
			Name:    "rows",
			Usage:   "rows <url> [offset] [limit]",
			Summary: "Print data rows of a cached dataset",
			Group:   groupDatasets,
		},
		shell: s,
	}}
}

func (c *RowsCommand) Execute(ctx *ShellContext) error {
	url, err := c.requireURL(ctx)
	if err != nil {
		return err
	}
	offset, limit := 0, defaultRowLimit
	if len(ctx.Args) > 2 {
		if offset, err = strconv.Atoi(ctx.Args[2]); err != nil || offset < 0 {
			return fmt.Errorf("invalid offset: %s", ctx.Args[2])
		}
	}
	if len(ctx.Args) > 3 {
		if limit, err = strconv.Atoi(ctx.Args[3]); err != nil || limit < 0 {
			return fmt.Errorf("invalid limit: %s", ctx.Args[3])
		}
	}

	cached, err := c.loadCached(ctx, url)
	if err != nil {
		return err
	}
	rows, err := c.shell.importer.ReadRows(ctx.Context, url, offset, limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintf(ctx.Out, "No rows at offset %d (dataset has %d)\n", offset, cached.Meta.RowCount)
		return nil
	}

	table := make([][]string, len(rows))
	for i, r := range rows {
		table[i] = r
	}
	renderTable(ctx.Out, cached.Headers, table, c.shell.width())
	fmt.Fprintf(ctx.Out, "Rows %d-%d of %d\n", offset+1, offset+len(rows), cached.Meta.RowCount)
	return nil
}

// ClearCommand removes a dataset from the cache
type ClearCommand struct {
	datasetCommand
}

func NewClearCommand(s *Shell) *ClearCommand {
	return &ClearCommand{datasetCommand{
		spec: CommandSpec{
			Name:    "clear",
			Usage:   "clear <url>",
			Summary: "Remove a dataset from the cache",
			Group:   groupDatasets,
		},
		shell: s,
	}}
}

func (c *ClearCommand) Execute(ctx *ShellContext) error {
	url, err := c.requireURL(ctx)
	if err != nil {
		return err
	}
	if err := c.shell.importer.Clear(ctx.Context, url); err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "Cleared %s\n", url)
	return nil
}

// ReferenceCommand prints the reference page of a cached dataset
type ReferenceCommand struct {
	datasetCommand
}

func NewReferenceCommand(s *Shell) *ReferenceCommand {
	return &ReferenceCommand{datasetCommand{
		spec: CommandSpec{
			Name:    "reference",
			Usage:   "reference <url> [--json]",
			Summary: "Print the data dictionary, sample queries and prompt; --json prints the export document",
			Group:   groupDatasets,
			Flags:   []string{"json"},
		},
		shell: s,
	}}
}

func (c *ReferenceCommand) Execute(ctx *ShellContext) error {
	args, flags := splitFlags(ctx.Args[1:])
	if len(args) == 0 {
		return usageError(c.spec)
	}
	url := args[0]

	cached, err := c.loadCached(ctx, url)
	if err != nil {
		return err
	}

	if flags["json"] {
		doc, err := reference.ExportJSON(url, cached.Meta)
		if err != nil {
			return err
		}
		fmt.Fprintln(ctx.Out, string(doc))
		return nil
	}
	fmt.Fprint(ctx.Out, reference.Build(url, cached.Meta, "").Markdown())
	return nil
}
