package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/hack-pad/hackpadfs"
	"github.com/spf13/cobra"

	"github.com/roach88/crate/internal/blob"
	"github.com/roach88/crate/internal/entity"
)

// NewBlobCommand creates the blob command group.
func NewBlobCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blob",
		Short: "Manage artwork and audio blobs",
	}
	cmd.AddCommand(newBlobAddCommand(rootOpts))
	cmd.AddCommand(newBlobListCommand(rootOpts))
	return cmd
}

// BlobAddOptions holds flags for blob add.
type BlobAddOptions struct {
	*RootOptions
	Artwork string
}

// AddedBlob is one stored file.
type AddedBlob struct {
	File    string      `json:"file"`
	Digest  blob.Digest `json:"digest"`
	Created bool        `json:"created"`
}

type blobAddResult []AddedBlob

func (r blobAddResult) RenderText(w io.Writer) error {
	for _, b := range r {
		state := "stored"
		if !b.Created {
			state = "already stored"
		}
		fmt.Fprintf(w, "%s  %s (%s)\n", b.Digest, b.File, state)
	}
	return nil
}

func newBlobAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BlobAddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <file>...",
		Short: "Store files in the blob store",
		Long: `Store files in the content-addressed blob store and print their digests.
With --artwork the digests are added to a release's artwork.

Examples:
  crate blob add cover.jpg
  crate blob add front.jpg back.jpg --artwork release:0190f7c4-...`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlobAdd(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Artwork, "artwork", "", "release:key to attach the blobs to")

	return cmd
}

func runBlobAdd(opts *BlobAddOptions, cmd *cobra.Command, files []string) error {
	ctx := context.Background()
	out := newFormatter(opts.RootOptions, cmd)

	a, err := openApp(ctx, opts.RootOptions, out.GetErrWriter())
	if err != nil {
		return err
	}
	defer a.Close()

	var release *entity.Release
	if opts.Artwork != "" {
		e, err := a.load(ctx, opts.Artwork)
		if err != nil {
			return err
		}
		r, ok := e.(*entity.Release)
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("--artwork wants a release, got %s", e.Kind()))
		}
		release = &entity.Release{}
		entity.SetKey(release, entity.KeyOf(r))
	}

	blobs, err := a.blobs()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open blob store", err)
	}

	result := make(blobAddResult, 0, len(files))
	for _, f := range files {
		root, rel, err := hostPath(f)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid path", err)
		}
		data, err := hackpadfs.ReadFile(root, rel)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read %s", f), err)
		}
		d, created, err := blobs.Put(data)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to store blob", err)
		}
		out.VerboseLog("%s -> %s", f, d)
		result = append(result, AddedBlob{File: f, Digest: d, Created: created})
		if release != nil {
			release.Artwork = append(release.Artwork, string(d))
		}
	}

	if release != nil {
		release.Artwork = entity.NewSet(release.Artwork...)
		// Artwork is a set, so saving the partial release unions it in.
		if _, err := a.lib.Save(ctx, release); err != nil {
			return WrapExitError(ExitCommandError, "failed to attach artwork", err)
		}
	}
	return out.Success(result)
}

type blobList []blob.Digest

func (l blobList) RenderText(w io.Writer) error {
	if len(l) == 0 {
		fmt.Fprintln(w, "No blobs stored.")
		return nil
	}
	for _, d := range l {
		fmt.Fprintln(w, d)
	}
	return nil
}

func newBlobListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List stored blob digests",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			out := newFormatter(rootOpts, cmd)

			a, err := openApp(ctx, rootOpts, out.GetErrWriter())
			if err != nil {
				return err
			}
			defer a.Close()

			blobs, err := a.blobs()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open blob store", err)
			}
			list, err := blobs.List()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list blobs", err)
			}
			return out.Success(blobList(list))
		},
	}
}
