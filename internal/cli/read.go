package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/crate/internal/entity"
	"github.com/roach88/crate/internal/librarian"
	"github.com/roach88/crate/internal/query"
)

// entityDoc renders one entity: its JSON document, indented in text mode.
type entityDoc struct {
	e entity.Entity
}

func (d entityDoc) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.e)
}

func (d entityDoc) RenderText(w io.Writer) error {
	raw, err := json.MarshalIndent(d.e, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n", raw)
	return nil
}

// entityList renders entities as a table in text mode.
type entityList []entity.Entity

func (l entityList) RenderText(w io.Writer) error {
	if len(l) == 0 {
		fmt.Fprintln(w, "No entities found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range l {
		name := entity.Name(e)
		if d := entity.Disambiguation(e); d != "" {
			name += " (" + d + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Kind(), entity.KeyOf(e), name)
	}
	return tw.Flush()
}

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	Expand bool
	Lookup bool
	Save   bool
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <kind:key>",
		Short: "Show one stored entity",
		Long: `Show one stored entity.

With --lookup the entity is completed from the configured catalogs; add
--save to store what they returned.

Examples:
  crate get artist:0190f7c4-...
  crate get release:0190f7c4-... --expand --format yaml
  crate get artist:0190f7c4-... --lookup --save`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVarP(&opts.Expand, "expand", "e", false, "replace references with the entities they name")
	cmd.Flags().BoolVar(&opts.Lookup, "lookup", false, "complete the entity from configured catalogs")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "save the lookup result (requires --lookup)")
	cmd.MarkFlagsRequiredTogether("save", "lookup")

	return cmd
}

func runGet(opts *GetOptions, cmd *cobra.Command, refArg string) error {
	ctx := context.Background()
	out := newFormatter(opts.RootOptions, cmd)

	a, err := openApp(ctx, opts.RootOptions, out.GetErrWriter())
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := a.load(ctx, refArg)
	if err != nil {
		return err
	}

	if opts.Lookup {
		lo, err := a.lookupOptions(opts.Save)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open providers", err)
		}
		out.VerboseLog("looking up %s in %d catalogs", refArg, len(lo.Providers))
		if e, err = librarian.New(a.lib, a.logger).Get(ctx, lo, e); err != nil {
			return WrapExitError(ExitCommandError, "lookup failed", err)
		}
	}
	if opts.Expand {
		if e, err = a.lib.Expand(ctx, e); err != nil {
			return WrapExitError(ExitCommandError, "failed to expand references", err)
		}
	}
	return out.Success(entityDoc{e})
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Related string
	Lookup  bool
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <kind>",
		Short: "List stored entities of a kind",
		Long: `List stored entities of a kind, optionally only those linked to another
entity.

Examples:
  crate list artist
  crate list release --related artist:0190f7c4-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Related, "related", "r", "", "only entities linked to kind:key")
	cmd.Flags().BoolVar(&opts.Lookup, "lookup", false, "include results from configured catalogs")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command, kindArg string) error {
	ctx := context.Background()
	out := newFormatter(opts.RootOptions, cmd)

	kind, err := entity.ParseKind(kindArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid kind", err)
	}

	a, err := openApp(ctx, opts.RootOptions, out.GetErrWriter())
	if err != nil {
		return err
	}
	defer a.Close()

	var related entity.Entity
	if opts.Related != "" {
		if related, err = a.load(ctx, opts.Related); err != nil {
			return err
		}
	}

	var list []entity.Entity
	if opts.Lookup {
		lo, err := a.lookupOptions(false)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open providers", err)
		}
		list, err = librarian.New(a.lib, a.logger).List(ctx, lo, kind, related)
		if err != nil {
			return WrapExitError(ExitCommandError, "lookup failed", err)
		}
	} else {
		list, err = a.lib.List(ctx, kind, related)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read library", err)
		}
	}
	return out.Success(entityList(list))
}

// FindOptions holds flags for the find command.
type FindOptions struct {
	*RootOptions
	Where   []string
	ID      string
	Related string
	Limit   int
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FindOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "find <kind>",
		Short: "Query stored entities by field values",
		Long: `Query stored entities by field values. Every --where condition must hold.

Conditions are path OP value, where path is a dotted field path and OP is
one of = != > >= < <=. Values that parse as integers or booleans are
compared as such.

Examples:
  crate find release --where date>=1995-01-01 --where country=IS
  crate find artist --id musicbrainz=87c5dedd-371d-4a53-9f7f-80522fb7f3cb
  crate find track --related release:0190f7c4-... --where length>300000`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Where, "where", "w", nil, "condition path OP value (repeatable)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "external identifier scheme=value")
	cmd.Flags().StringVarP(&opts.Related, "related", "r", "", "only entities linked to kind:key")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "maximum number of results (0 = all)")

	return cmd
}

func runFind(opts *FindOptions, cmd *cobra.Command, kindArg string) error {
	ctx := context.Background()
	out := newFormatter(opts.RootOptions, cmd)

	q, err := buildQuery(kindArg, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid query", err)
	}
	if err := query.Validate(q); err != nil {
		return WrapExitError(ExitCommandError, "invalid query", err)
	}

	a, err := openApp(ctx, opts.RootOptions, out.GetErrWriter())
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.Related != "" {
		if _, err := a.load(ctx, opts.Related); err != nil {
			return err
		}
	}

	list, err := a.lib.Find(ctx, q)
	if err != nil {
		return WrapExitError(ExitCommandError, "query failed", err)
	}
	return out.Success(entityList(list))
}

func buildQuery(kindArg string, opts *FindOptions) (query.Query, error) {
	kind, err := entity.ParseKind(kindArg)
	if err != nil {
		return query.Query{}, err
	}
	q := query.Query{Kind: kind, Limit: opts.Limit}
	if opts.Related != "" {
		ref, err := parseRef(opts.Related)
		if err != nil {
			return query.Query{}, err
		}
		q.RelatedTo = &ref
	}

	var preds []query.Predicate
	if opts.ID != "" {
		scheme, value, ok := strings.Cut(opts.ID, "=")
		if !ok || value == "" {
			return query.Query{}, fmt.Errorf("--id %q: want scheme=value", opts.ID)
		}
		preds = append(preds, query.HasID{Scheme: entity.Scheme(scheme), Value: value})
	}
	for _, w := range opts.Where {
		p, err := parseCondition(w)
		if err != nil {
			return query.Query{}, err
		}
		preds = append(preds, p)
	}

	switch len(preds) {
	case 0:
	case 1:
		q.Where = preds[0]
	default:
		q.Where = query.And{Predicates: preds}
	}
	return q, nil
}

// Two-character operators come first so ">=" is not read as ">".
var conditionOps = []string{">=", "<=", "!=", ">", "<", "="}

// parseCondition parses "path OP value".
func parseCondition(s string) (query.Predicate, error) {
	for _, op := range conditionOps {
		i := strings.Index(s, op)
		if i <= 0 {
			continue
		}
		path := strings.TrimSpace(s[:i])
		value := parseValue(strings.TrimSpace(s[i+len(op):]))
		if op == "=" {
			return query.Equals{Path: path, Value: value}, nil
		}
		return query.Compare{Path: path, Op: query.Op(op), Value: value}, nil
	}
	return nil, fmt.Errorf("condition %q: want path OP value", s)
}

func parseValue(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

// SearchOptions holds flags for the search command.
type SearchOptions struct {
	*RootOptions
	Limit int
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SearchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "search <kind> <text>",
		Short: "Search the library and configured catalogs by name",
		Long: `Search the library and every configured catalog for entities whose name
or title contains the text. Matches describing the same entity are merged.

Examples:
  crate search artist bjork
  crate search release "homo" --limit 5`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(opts, cmd, args[0], strings.Join(args[1:], " "))
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "maximum number of results (0 = all)")

	return cmd
}

func runSearch(opts *SearchOptions, cmd *cobra.Command, kindArg, text string) error {
	ctx := context.Background()
	out := newFormatter(opts.RootOptions, cmd)

	kind, err := entity.ParseKind(kindArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid kind", err)
	}

	a, err := openApp(ctx, opts.RootOptions, out.GetErrWriter())
	if err != nil {
		return err
	}
	defer a.Close()

	lo, err := a.lookupOptions(false)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open providers", err)
	}
	list, err := librarian.New(a.lib, a.logger).Search(ctx, lo, librarian.SearchQuery{Kind: kind, Text: text, Limit: opts.Limit})
	if err != nil {
		return WrapExitError(ExitCommandError, "search failed", err)
	}
	return out.Success(entityList(list))
}
