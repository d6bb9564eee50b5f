package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/chat"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// filterFlags binds the structured filter flags shared by the query commands.
type filterFlags struct {
	category string
	brand    string
	minPrice float64
	maxPrice float64
	inStock  bool
	specs    []string
}

func (ff *filterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ff.category, "category", "", "category name or slug")
	cmd.Flags().StringVar(&ff.brand, "brand", "", "brand name or slug")
	cmd.Flags().Float64Var(&ff.minPrice, "min-price", 0, "minimum price")
	cmd.Flags().Float64Var(&ff.maxPrice, "max-price", 0, "maximum price")
	cmd.Flags().BoolVar(&ff.inStock, "in-stock", false, "only products in stock (--in-stock=false for out of stock)")
	cmd.Flags().StringSliceVar(&ff.specs, "spec", nil, "specification filter key=value (repeatable)")
}

func (ff *filterFlags) filters(cmd *cobra.Command) (retrieval.Filters, error) {
	f := retrieval.Filters{Category: ff.category, Brand: ff.brand}
	if cmd.Flags().Changed("min-price") {
		v := ff.minPrice
		f.MinPrice = &v
	}
	if cmd.Flags().Changed("max-price") {
		v := ff.maxPrice
		f.MaxPrice = &v
	}
	if cmd.Flags().Changed("in-stock") {
		v := ff.inStock
		f.InStock = &v
	}
	for _, kv := range ff.specs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return f, fmt.Errorf("invalid --spec %q: want key=value", kv)
		}
		if f.Specifications == nil {
			f.Specifications = map[string]string{}
		}
		f.Specifications[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return f, nil
}

// newSearchCmd creates the search subcommand.
func newSearchCmd() *cobra.Command {
	var (
		ff    filterFlags
		limit int
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the catalog with filters, a text query, or both",
		Long: `Search runs the retrieval engine. Filters alone run a structured search,
a query alone runs a semantic search, and both together run a hybrid search.
With a category or brand filter the hybrid result only contains products that
match the filters.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			f, err := ff.filters(cmd)
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")

			a, err := openApp(ctx, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			start := time.Now()
			results, err := a.Router.Retrieve(ctx, query, f, limit)
			if err != nil {
				return err
			}
			mode := retrieval.SelectMode(query, f)

			if outputJSON {
				return printJSON(map[string]interface{}{"mode": mode, "results": results})
			}

			ui.Info("%d results (%s) in %s", len(results), mode, FormatDuration(time.Since(start)))
			rows := make([][]string, len(results))
			for i, r := range results {
				p := r.Product
				rows[i] = []string{
					strconv.Itoa(i + 1), p.Name, orDash(p.BrandName()), orDash(p.CategoryName()),
					orDash(p.FormattedPrice()), stockMark(p.InStock),
					strconv.FormatFloat(r.Score, 'f', 4, 64), string(r.Provenance),
				}
			}
			ui.Table([]string{"#", "Name", "Brand", "Category", "Price", "Stock", "Score", "Source"}, rows)
			return nil
		},
	}

	ff.bind(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum results (default from config)")
	return cmd
}

// newClassifyCmd creates the classify subcommand.
func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <message>",
		Short: "Show how a message would be classified",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			a, err := openApp(ctx, app.Options{SkipIndexLoad: true})
			if err != nil {
				return err
			}
			defer a.Close()

			sp := ui.Spinner("Classifying...")
			c := a.Classifier.Classify(ctx, strings.Join(args, " "), chat.ClassifyContext{})
			sp.Stop()

			if outputJSON {
				return printJSON(c)
			}
			ui.KeyValue("Type", c.Type)
			ui.KeyValue("Search query", orDash(c.SearchQuery))
			ui.KeyValue("Filters", describeFilters(c.Filters))
			if c.Fallback {
				ui.Warning("Model unavailable or unparseable, keyword classifier used")
			}
			return nil
		},
	}
}

// newCountCmd creates the count subcommand.
func newCountCmd() *cobra.Command {
	var ff filterFlags

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count products matching the filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			f, err := ff.filters(cmd)
			if err != nil {
				return err
			}

			a, err := openApp(ctx, app.Options{SkipIndexLoad: true})
			if err != nil {
				return err
			}
			defer a.Close()

			counts, err := a.Structured.Count(ctx, f)
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(counts)
			}

			ui.KeyValue("Total", counts.Total)
			ui.KeyValue("In stock", counts.InStock)
			ui.KeyValue("With price", counts.WithPrice)
			printNamedCounts("By category", counts.ByCategory)
			printNamedCounts("By brand", counts.ByBrand)
			return nil
		},
	}

	ff.bind(cmd)
	return cmd
}

// newStatsCmd creates the stats subcommand.
func newStatsCmd() *cobra.Command {
	var ff filterFlags

	cmd := &cobra.Command{
		Use:   "stats [query]",
		Short: "Summarise the catalog for the filters and an optional query",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			f, err := ff.filters(cmd)
			if err != nil {
				return err
			}

			a, err := openApp(ctx, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			cc, err := a.Context.Build(ctx, strings.Join(args, " "), f)
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cc)
			}
			ui.Text(cc.Markdown)
			return nil
		},
	}

	ff.bind(cmd)
	return cmd
}

// newAskCmd creates the ask subcommand.
func newAskCmd() *cobra.Command {
	var conversation string

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Ask the shopping assistant one question",
		Long: `Ask classifies the message, runs the matching strategy and prints the
assistant's answer. Pass --conversation to continue an earlier conversation so
that follow-ups like "which of these is cheapest" refer to the products it
showed last.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			var id uuid.UUID
			if conversation != "" {
				var err error
				if id, err = uuid.Parse(conversation); err != nil {
					return fmt.Errorf("invalid conversation id: %w", err)
				}
			}

			a, err := openApp(ctx, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := askOnce(ctx, a, id, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(result)
			}
			printTurn(result)
			ui.Info("Conversation %s", result.ConversationID)
			return nil
		},
	}

	cmd.Flags().StringVar(&conversation, "conversation", "", "conversation id to continue")
	return cmd
}

// newChatCmd creates the interactive chat subcommand.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the shopping assistant",
		Long: `Chat starts an interactive conversation. Type /new to start over and
/quit to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			return chatLoop(ctx, a, bufio.NewReader(os.Stdin))
		},
	}
}

func chatLoop(ctx context.Context, a *app.App, in *bufio.Reader) error {
	var id uuid.UUID
	ui.Info("Ask about the catalog. /new starts over, /quit exits.")

	for {
		line, err := Prompt(in, "you> ")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "/quit", "/exit", "quit", "exit":
			return nil
		case "/new":
			id = uuid.Nil
			ui.Success("New conversation")
			continue
		}

		turnCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		result, err := askOnce(turnCtx, a, id, line)
		cancel()
		if err != nil {
			ui.Error("%v", err)
			continue
		}
		id = result.ConversationID

		if outputJSON {
			if err := printJSON(result); err != nil {
				return err
			}
			continue
		}
		printTurn(result)
	}
}

func askOnce(ctx context.Context, a *app.App, id uuid.UUID, message string) (*chat.TurnResult, error) {
	sp := ui.Spinner("Thinking...")
	defer sp.Stop()
	return a.Orchestrator.Handle(ctx, chat.TurnRequest{ConversationID: id, Message: message})
}

func printTurn(r *chat.TurnResult) {
	ui.Newline()
	ui.Text(r.Content)
	ui.Newline()
	if verbose {
		ui.KeyValue("Strategy", r.ResponseType)
		ui.KeyValue("Filters", describeFilters(r.Filters))
		ui.KeyValue("Products shown", len(r.ProductIDs))
		ui.KeyValue("Took", FormatDuration(time.Duration(r.DurationMs)*time.Millisecond))
		if r.Fallback {
			ui.Warning("Keyword classifier used")
		}
	}
}

func printNamedCounts(title string, counts []storage.NamedCount) {
	if len(counts) == 0 {
		return
	}
	ui.Section(title)
	rows := make([][]string, len(counts))
	for i, c := range counts {
		rows[i] = []string{c.Name, strconv.Itoa(c.Count)}
	}
	ui.Table([]string{"Name", "Count"}, rows)
}

func describeFilters(f retrieval.Filters) string {
	var parts []string
	if f.Category != "" {
		parts = append(parts, "category="+f.Category)
	}
	if f.Brand != "" {
		parts = append(parts, "brand="+f.Brand)
	}
	if f.MinPrice != nil {
		parts = append(parts, "min_price="+strconv.FormatFloat(*f.MinPrice, 'f', -1, 64))
	}
	if f.MaxPrice != nil {
		parts = append(parts, "max_price="+strconv.FormatFloat(*f.MaxPrice, 'f', -1, 64))
	}
	if f.InStock != nil {
		parts = append(parts, "in_stock="+strconv.FormatBool(*f.InStock))
	}
	keys := make([]string, 0, len(f.Specifications))
	for k := range f.Specifications {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+f.Specifications[k])
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func stockMark(inStock bool) string {
	if inStock {
		return "✓"
	}
	return "✗"
}
