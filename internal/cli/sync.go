package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/roach88/crate/internal/replica"
	"github.com/roach88/crate/internal/store"
	"github.com/roach88/crate/internal/transport"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Watch   bool
	NoBlobs bool
}

// SyncResult reports one synchronization round.
type SyncResult struct {
	Actor           string `json:"actor"`
	Peers           int    `json:"peers"`
	Applied         int    `json:"applied"`
	Stale           int    `json:"stale"`
	Duplicate       int    `json:"duplicate"`
	BadSnapshots    int    `json:"bad_snapshots"`
	BlobsUploaded   int    `json:"blobs_uploaded"`
	BlobsDownloaded int    `json:"blobs_downloaded"`
	BlobsMissing    int    `json:"blobs_missing"`
	BlobsFailed     int    `json:"blobs_failed"`
}

func newSyncResult(actor string, r replica.Report) SyncResult {
	return SyncResult{
		Actor:           actor,
		Peers:           r.Peers,
		Applied:         r.Applied,
		Stale:           r.Stale,
		Duplicate:       r.Duplicate,
		BadSnapshots:    r.BadSnapshots,
		BlobsUploaded:   r.BlobsUploaded,
		BlobsDownloaded: r.BlobsDownloaded,
		BlobsMissing:    r.BlobsMissing,
		BlobsFailed:     r.BlobsFailed,
	}
}

func (r SyncResult) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "✓ Synced %s with %d peers\n", r.Actor, r.Peers)
	fmt.Fprintf(w, "  events: %d applied, %d stale, %d duplicate\n", r.Applied, r.Stale, r.Duplicate)
	fmt.Fprintf(w, "  blobs:  %d uploaded, %d downloaded, %d missing, %d failed\n",
		r.BlobsUploaded, r.BlobsDownloaded, r.BlobsMissing, r.BlobsFailed)
	if r.BadSnapshots > 0 {
		fmt.Fprintf(w, "  skipped %d unreadable peer snapshots\n", r.BadSnapshots)
	}
	return nil
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Exchange changes with peers through the shared folder",
		Long: `Pull every peer snapshot from the shared folder, replay the events this
replica is missing, then publish this replica's snapshot and referenced
blobs.

With --watch a round runs every sync.interval until interrupted.

Exit codes:
  0 - Round completed (unreadable peer snapshots are skipped and reported)
  2 - Command error (no share configured, storage failure, etc.)

Examples:
  crate sync
  crate sync --watch
  CRATE_SYNC_SHARE=~/Dropbox/crate crate sync --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "keep synchronizing every sync.interval")
	cmd.Flags().BoolVar(&opts.NoBlobs, "no-blobs", false, "exchange snapshots only")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := newFormatter(opts.RootOptions, cmd)

	a, err := openApp(ctx, opts.RootOptions, out.GetErrWriter())
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Sync.Share == "" {
		return NewExitError(ExitCommandError, "sync.share is not configured")
	}
	t, err := transport.NewDir(a.cfg.Sync.Share)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open share", err)
	}

	ropts := []replica.Option{replica.WithPrefix(a.cfg.Sync.Prefix), replica.WithLogger(a.logger)}
	if !opts.NoBlobs {
		blobs, err := a.blobs()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open blob store", err)
		}
		ropts = append(ropts, replica.WithBlobs(blobs))
	}
	r := replica.New(a.lib, t, ropts...)

	if opts.Watch {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		out.VerboseLog("synchronizing every %s", a.cfg.Sync.Interval)
		if err := r.Run(ctx, a.cfg.Sync.Interval); err != nil && ctx.Err() == nil {
			return WrapExitError(ExitCommandError, "sync failed", err)
		}
		return nil
	}

	report, err := r.Sync(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "sync failed", err)
	}
	return out.Success(newSyncResult(a.lib.Actor(), report))
}

// VerifyResult reports whether the stored state matches its log.
type VerifyResult struct {
	Events     int      `json:"events"`
	Nodes      int      `json:"nodes"`
	Edges      int      `json:"edges"`
	Consistent bool     `json:"consistent"`
	Drifted    []string `json:"drifted,omitempty"`
	diff       string
}

func (r VerifyResult) RenderText(w io.Writer) error {
	if r.Consistent {
		fmt.Fprintf(w, "✓ %d nodes and %d edges match %d logged events\n", r.Nodes, r.Edges, r.Events)
		return nil
	}
	fmt.Fprintf(w, "✗ State differs from its log (%d entities)\n", len(r.Drifted))
	for _, d := range r.Drifted {
		fmt.Fprintf(w, "  %s\n", d)
	}
	return nil
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that the library matches its operation log",
		Long: `Rebuild the library in memory from its operation log alone and compare
the result with the stored entities and relationships.

Exit codes:
  0 - Stored state matches the log
  1 - Drift detected
  2 - Command error

Examples:
  crate verify
  crate verify --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, cmd)
		},
	}
	return cmd
}

func runVerify(opts *RootOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := newFormatter(opts, cmd)

	a, err := openApp(ctx, opts, out.GetErrWriter())
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := verify(ctx, a.store)
	if err != nil {
		return WrapExitError(ExitCommandError, "verify failed", err)
	}
	if result.diff != "" {
		out.VerboseLog("%s", result.diff)
	}
	if err := out.Success(result); err != nil {
		return err
	}
	if !result.Consistent {
		return NewExitError(ExitFailure, "library state differs from its log")
	}
	return nil
}

// verify rebuilds s from its log into memory and compares the two.
func verify(ctx context.Context, s store.Store) (VerifyResult, error) {
	live, err := s.Export(ctx)
	if err != nil {
		return VerifyResult{}, err
	}
	rebuilt := store.NewMemStore()
	defer rebuilt.Close()
	if _, err := replica.Rebuild(ctx, live.Log, rebuilt); err != nil {
		return VerifyResult{}, err
	}
	want, err := rebuilt.Export(ctx)
	if err != nil {
		return VerifyResult{}, err
	}

	result := VerifyResult{
		Events:     len(live.Log),
		Nodes:      len(live.Nodes),
		Edges:      len(live.Edges),
		Consistent: true,
	}
	docs := make(map[string][]byte, len(want.Nodes))
	for _, n := range want.Nodes {
		docs[string(n.Kind)+":"+n.Key] = n.Doc
	}
	for _, n := range live.Nodes {
		id := string(n.Kind) + ":" + n.Key
		if doc, ok := docs[id]; !ok || !bytes.Equal(doc, n.Doc) {
			result.Drifted = append(result.Drifted, id)
		}
		delete(docs, id)
	}
	for id := range docs {
		result.Drifted = append(result.Drifted, id)
	}

	result.diff = cmp.Diff(want.Edges, live.Edges)
	if nodes := cmp.Diff(want.Nodes, live.Nodes); nodes != "" {
		result.diff = nodes + result.diff
	}
	result.Consistent = result.diff == "" && len(result.Drifted) == 0
	return result, nil
}
