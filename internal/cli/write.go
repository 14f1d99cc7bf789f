package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/crate/internal/entity"
	"github.com/roach88/crate/internal/oplog"
)

// NewLinkCommand creates the link command.
func NewLinkCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link <kind:key> <kind:key>",
		Short: "Record a relationship between two stored entities",
		Long: `Record a relationship between two stored entities. Linking twice is a
no-op.

Examples:
  crate link artist:0190f7c4-... release:0190f7c5-...`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLink(rootOpts, cmd, args[0], args[1])
		},
	}
	return cmd
}

func runLink(opts *RootOptions, cmd *cobra.Command, from, to string) error {
	ctx := context.Background()
	out := newFormatter(opts, cmd)

	a, err := openApp(ctx, opts, out.GetErrWriter())
	if err != nil {
		return err
	}
	defer a.Close()

	ea, err := a.load(ctx, from)
	if err != nil {
		return err
	}
	eb, err := a.load(ctx, to)
	if err != nil {
		return err
	}
	if err := a.lib.Link(ctx, ea, eb); err != nil {
		return WrapExitError(ExitCommandError, "link failed", err)
	}
	return out.Success(linkResult{From: entity.RefOf(ea), To: entity.RefOf(eb)})
}

type linkResult struct {
	From entity.Ref `json:"from"`
	To   entity.Ref `json:"to"`
}

func (r linkResult) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "✓ Linked %s:%s -> %s:%s\n", r.From.Kind, r.From.Key, r.To.Kind, r.To.Key)
	return nil
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <kind:key> <field> <json>",
		Short: "Overwrite one field of a stored entity",
		Long: `Overwrite one field of a stored entity with a JSON value. The value
replaces what is stored instead of merging with it, and the change
replicates to peers. Use null to clear a field.

Examples:
  crate set artist:0190f7c4-... country '"IS"'
  crate set release:0190f7c4-... disambiguation null`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(rootOpts, cmd, args[0], args[1], args[2])
		},
	}
	return cmd
}

func runSet(opts *RootOptions, cmd *cobra.Command, refArg, field, value string) error {
	ctx := context.Background()
	out := newFormatter(opts, cmd)

	ref, err := parseRef(refArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid reference", err)
	}
	if !json.Valid([]byte(value)) {
		return NewExitError(ExitCommandError, fmt.Sprintf("value %q is not JSON", value))
	}

	a, err := openApp(ctx, opts, out.GetErrWriter())
	if err != nil {
		return err
	}
	defer a.Close()

	saved, err := a.lib.Edit(ctx, ref, field, json.RawMessage(value))
	if err != nil {
		return WrapExitError(ExitFailure, "edit failed", err)
	}
	return out.Success(entityDoc{saved})
}

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Limit int
}

// eventList renders operation log entries.
type eventList []oplog.Event

func (l eventList) RenderText(w io.Writer) error {
	if len(l) == 0 {
		fmt.Fprintln(w, "No events.")
		return nil
	}
	for _, ev := range l {
		switch ev.Op {
		case oplog.OpLink:
			target, err := ev.LinkTarget()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s %s link %s:%s -> %s:%s\n", ev.Timestamp, ev.Actor, ev.Kind, ev.Key, target.Kind, target.Key)
		default:
			value := string(ev.Value)
			if value == "" {
				value = "(cleared)"
			}
			fmt.Fprintf(w, "%s %s set %s:%s %s = %s\n", ev.Timestamp, ev.Actor, ev.Kind, ev.Key, ev.Field, value)
		}
	}
	return nil
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log [kind:key]",
		Short: "Show the operation log",
		Long: `Show the operation log, oldest first: the whole log, or the history of
one entity.

Examples:
  crate log
  crate log artist:0190f7c4-... --format json
  crate log --limit 20`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd, args)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "show only the newest n events (0 = all)")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := newFormatter(opts.RootOptions, cmd)

	a, err := openApp(ctx, opts.RootOptions, out.GetErrWriter())
	if err != nil {
		return err
	}
	defer a.Close()

	var events []oplog.Event
	if len(args) == 1 {
		ref, err := parseRef(args[0])
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid reference", err)
		}
		events, err = a.lib.History(ctx, ref.Kind, ref.Key)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read log", err)
		}
	} else {
		events, err = a.store.Events(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read log", err)
		}
	}
	if opts.Limit > 0 && len(events) > opts.Limit {
		events = events[len(events)-opts.Limit:]
	}
	if events == nil {
		events = []oplog.Event{}
	}
	return out.Success(eventList(events))
}
