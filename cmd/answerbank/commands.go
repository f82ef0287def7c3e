package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/poiesic/answerbank"
	"github.com/poiesic/answerbank/builder"
	"github.com/poiesic/answerbank/config"
	"github.com/poiesic/answerbank/core"
	"github.com/poiesic/answerbank/search"
	"github.com/urfave/cli/v2"
)

func categoryFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "category",
		Aliases: []string{"C"},
		Usage:   "Restrict to a category path, major/middle/minor (any prefix)",
	}
}

func buildCommand() *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "Build and publish a new store version from a CSV export",
		ArgsUsage: "<corpus.csv>",
		Action:    buildAction,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Texts per embedding call (overrides builder.batch_size)",
			},
			&cli.IntFlag{
				Name:  "pool-size",
				Usage: "Concurrent embedding calls (overrides builder.pool_size)",
			},
			&cli.IntFlag{
				Name:  "max-text-length",
				Usage: "Reject questions or answers longer than this many characters; 0 is unbounded",
			},
			&cli.BoolFlag{
				Name:  "no-reuse",
				Usage: "Re-embed every row instead of reusing vectors of unchanged rows",
			},
			&cli.IntFlag{
				Name:  "keep-versions",
				Usage: "Published versions kept after a successful build (overrides store.keep_versions)",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Do not print progress",
			},
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Find the answers most similar to an inquiry",
		ArgsUsage: "<inquiry text>",
		Action:    searchAction,
		Flags: []cli.Flag{
			categoryFlag(),
			&cli.IntFlag{
				Name:    "top-k",
				Aliases: []string{"k"},
				Usage:   "Maximum number of results (overrides search.top_k)",
			},
			&cli.Float64Flag{
				Name:  "min-score",
				Usage: "Drop results scoring below this similarity (overrides search.min_score)",
			},
			&cli.StringFlag{
				Name:  "dedup",
				Usage: "Collapse duplicates: none, answer, code or metadata:<field> (overrides search.dedup)",
			},
		},
	}
}

func keywordCommand() *cli.Command {
	return &cli.Command{
		Name:      "keyword",
		Usage:     "List answers whose question or answer contains a keyword",
		ArgsUsage: "<keyword>",
		Action:    keywordAction,
		Flags:     []cli.Flag{categoryFlag()},
	}
}

func categoriesCommand() *cli.Command {
	return &cli.Command{
		Name:   "categories",
		Usage:  "Print the category tree of the live version",
		Action: categoriesAction,
		Flags:  []cli.Flag{categoryFlag()},
	}
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:   "info",
		Usage:  "Describe the live store version",
		Action: infoAction,
	}
}

func initConfigCommand() *cli.Command {
	return &cli.Command{
		Name:   "init-config",
		Usage:  "Write the default configuration to the config path",
		Action: initConfigAction,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing file",
			},
		},
	}
}

// openBank opens the configured store. extra options are applied last.
func openBank(c *cli.Context, cfg *config.AppConfig, extra ...answerbank.Option) (*answerbank.Bank, error) {
	aiConfig := cfg.AIConfig()
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}
	provider, err := newProvider(aiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	opts := []answerbank.Option{
		answerbank.WithProvider(provider),
		answerbank.WithIndexOptions(cfg.IndexOptions()...),
		answerbank.WithQueryDefaults(cfg.SearchOptions()...),
	}
	bank, err := answerbank.Open(c.Context, cfg.Store.Root, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", cfg.Store.Root, err)
	}
	return bank, nil
}

func buildAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one corpus file, got %d arguments", c.NArg())
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("batch-size") {
		cfg.Builder.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("pool-size") {
		cfg.Builder.PoolSize = c.Int("pool-size")
	}
	if c.IsSet("max-text-length") {
		cfg.Builder.MaxTextLength = c.Int("max-text-length")
	}
	if c.Bool("no-reuse") {
		cfg.Builder.ReuseVectors = false
	}
	if c.IsSet("keep-versions") {
		cfg.Store.KeepVersions = c.Int("keep-versions")
	}
	builderCfg := cfg.BuilderConfig()
	if err := builderCfg.Validate(); err != nil {
		return fmt.Errorf("invalid builder configuration: %w", err)
	}

	builderOpts := []builder.Option{builder.WithConfig(builderCfg)}
	if !c.Bool("quiet") {
		builderOpts = append(builderOpts, builder.WithProgress(builder.TextProgress(c.App.ErrWriter)))
	}
	bank, err := openBank(c, cfg, answerbank.WithBuilderOptions(builderOpts...))
	if err != nil {
		return err
	}
	defer bank.Close()

	input := c.Args().First()
	report, err := bank.BuildFile(c.Context, input)
	if report != nil {
		printReport(c.App.Writer, report)
	}
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	return nil
}

func printReport(w io.Writer, report *builder.BuildReport) {
	fmt.Fprintf(w, "Run:       %s\n", report.RunID)
	fmt.Fprintf(w, "State:     %s\n", report.State)
	fmt.Fprintf(w, "Rows:      %d (%d stored, %d indexed)\n", report.Rows, report.Stored, report.Accepted)
	fmt.Fprintf(w, "Embedded:  %d (%d reused)\n", report.Embedded, report.Reused)
	if report.StoreVersion > 0 {
		fmt.Fprintf(w, "Version:   %d at %s\n", report.StoreVersion, report.Path)
	}
	if len(report.Pruned) > 0 {
		fmt.Fprintf(w, "Pruned:    %v\n", report.Pruned)
	}
	fmt.Fprintf(w, "Duration:  %s\n", report.Duration.Round(time.Millisecond))
	if len(report.Skipped) > 0 {
		fmt.Fprintf(w, "Skipped %d rows:\n", len(report.Skipped))
		for _, s := range report.Skipped {
			fmt.Fprintf(w, "  line %d: %s\n", s.Line, s.Reason)
		}
	}
}

func searchAction(c *cli.Context) error {
	text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if text == "" {
		return fmt.Errorf("inquiry text is required")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	var opts []search.QueryOption
	if c.IsSet("top-k") {
		opts = append(opts, search.WithTopK(c.Int("top-k")))
	}
	if c.IsSet("min-score") {
		opts = append(opts, search.WithMinScore(float32(c.Float64("min-score"))))
	}
	if c.IsSet("dedup") {
		key, err := config.ParseDedup(c.String("dedup"))
		if err != nil {
			return err
		}
		opts = append(opts, search.WithDedup(key))
	}

	bank, err := openBank(c, cfg)
	if err != nil {
		return err
	}
	defer bank.Close()

	results, err := bank.Search(c.Context, text, parseCategory(c.String("category")), opts...)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	tree, err := bank.Categories()
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(c.App.Writer, "No matching answers.")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(c.App.Writer, "%2d. %.4f  %s\n", i+1, r.Score, describe(tree, r.Record))
		printRecord(c.App.Writer, r.Record)
	}
	return nil
}

func keywordAction(c *cli.Context) error {
	keyword := strings.Join(c.Args().Slice(), " ")
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	bank, err := openBank(c, cfg)
	if err != nil {
		return err
	}
	defer bank.Close()

	records, err := bank.Keyword(c.Context, keyword, parseCategory(c.String("category")))
	if err != nil {
		return fmt.Errorf("keyword search failed: %w", err)
	}
	tree, err := bank.Categories()
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Fprintf(c.App.Writer, "%s\n", describe(tree, r))
		printRecord(c.App.Writer, r)
	}
	fmt.Fprintf(c.App.Writer, "%d answers\n", len(records))
	return nil
}

func categoriesAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	bank, err := openBank(c, cfg)
	if err != nil {
		return err
	}
	defer bank.Close()

	tree, err := bank.Categories()
	if err != nil {
		return err
	}
	snapshot, err := bank.Snapshot()
	if err != nil {
		return err
	}

	start, ok := tree.Resolve(parseCategory(c.String("category")).Path...)
	if !ok {
		return fmt.Errorf("%w: category %q", core.ErrNotFound, c.String("category"))
	}
	var walk func(id core.ID, depth int)
	walk = func(id core.ID, depth int) {
		for _, child := range tree.Children(id) {
			if tree.IsLeaf(child.Id) {
				fmt.Fprintf(c.App.Writer, "%s%s (%d)\n", strings.Repeat("  ", depth), child.Label, len(snapshot.RecordsInLeaf(child.Id)))
				continue
			}
			fmt.Fprintf(c.App.Writer, "%s%s\n", strings.Repeat("  ", depth), child.Label)
			walk(child.Id, depth+1)
		}
	}
	walk(start, 0)
	return nil
}

func infoAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	bank, err := openBank(c, cfg)
	if err != nil {
		return err
	}
	defer bank.Close()

	w := c.App.Writer
	fmt.Fprintf(w, "Root:        %s\n", bank.Layout().Root)
	fmt.Fprintf(w, "Model:       %s\n", bank.Signature())
	if mi := bank.ModelInfo(); mi != nil {
		fmt.Fprintf(w, "Max length:  %d tokens\n", mi.MaxLength)
	}
	m, err := bank.Info()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Version:     %d\n", m.Build)
	fmt.Fprintf(w, "Format:      %d\n", m.FormatVersion)
	fmt.Fprintf(w, "Built:       %s (run %s)\n", m.BuiltAt.Format("2006-01-02 15:04:05 MST"), m.RunID)
	fmt.Fprintf(w, "Records:     %d (%d indexed)\n", m.RecordCount, m.ValidCount)
	fmt.Fprintf(w, "Categories:  %d\n", m.CategoryCount)
	if versions, err := bank.Layout().Versions(); err == nil {
		fmt.Fprintf(w, "On disk:     %v\n", versions)
	}
	return nil
}

func initConfigAction(c *cli.Context) error {
	path := c.String("config")
	if !c.Bool("force") {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
	return nil
}

// parseCategory turns "major/middle/minor" into a filter. Blank segments
// are dropped, so "" selects everything.
func parseCategory(s string) core.CategoryFilter {
	var path []string
	for _, label := range strings.Split(s, "/") {
		if label = strings.TrimSpace(label); label != "" {
			path = append(path, label)
		}
	}
	return core.FilterPath(path...)
}

func describe(tree *core.CategoryTree, r *core.AnswerRecord) string {
	path := strings.Join(tree.Path(r.CategoryId), " > ")
	if r.Code != "" {
		return fmt.Sprintf("[%s] %s", r.Code, path)
	}
	return path
}

func printRecord(w io.Writer, r *core.AnswerRecord) {
	fmt.Fprintf(w, "    Q: %s\n", r.Question)
	fmt.Fprintf(w, "    A: %s\n", r.Answer)
	if r.VectorState != core.VectorOK {
		fmt.Fprintf(w, "    (not searchable: %s)\n", r.VectorState)
	}
}
