package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/crate/internal/entity"
	"github.com/roach88/crate/internal/fragments"
	"github.com/roach88/crate/internal/logging"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	KeepGoing bool
}

// ImportedEntity is one saved fragment.
type ImportedEntity struct {
	Label string      `json:"label"`
	Kind  entity.Kind `json:"kind"`
	Key   string      `json:"key"`
	Name  string      `json:"name,omitempty"`
}

// ImportResult is the outcome of an import.
type ImportResult struct {
	Imported []ImportedEntity `json:"imported"`
	Errors   []string         `json:"errors,omitempty"`
}

// RenderText prints one line per saved entity.
func (r ImportResult) RenderText(w io.Writer) error {
	for _, e := range r.Imported {
		fmt.Fprintf(w, "%s.%s -> %s:%s\n", e.Kind, e.Label, e.Kind, e.Key)
	}
	for _, msg := range r.Errors {
		fmt.Fprintf(w, "✗ %s\n", msg)
	}
	fmt.Fprintf(w, "Imported %d entities\n", len(r.Imported))
	return nil
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <dir>",
		Short: "Import CUE fragment files into the library",
		Long: `Validate every .cue file under a directory against the fragment schema
and save the entities they describe.

Exit codes:
  0 - All fragments imported
  1 - One or more fragment files are invalid
  2 - Command error (unreadable directory, config, etc.)

Examples:
  crate import ./library
  crate import ./library --keep-going --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVarP(&opts.KeepGoing, "keep-going", "k", false, "import valid files even when others are invalid")

	return cmd
}

func runImport(opts *ImportOptions, cmd *cobra.Command, dir string) error {
	ctx := context.Background()
	out := newFormatter(opts.RootOptions, cmd)

	loader, err := fragments.NewLoader()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile fragment schema", err)
	}
	root, rel, err := hostPath(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid directory", err)
	}

	mode := fragments.FailFast
	if opts.KeepGoing {
		mode = fragments.CollectAll
	}
	frags, loadErrs := loader.LoadDir(root, rel, mode)

	var messages []string
	for _, e := range loadErrs {
		messages = append(messages, e.Error())
	}
	if len(loadErrs) > 0 && !opts.KeepGoing {
		if err := out.Error(errorCode(loadErrs[0]), "invalid fragments", messages); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d fragment errors", len(loadErrs)))
	}

	a, err := openApp(ctx, opts.RootOptions, out.GetErrWriter())
	if err != nil {
		return err
	}
	defer a.Close()

	imported, err := fragments.Import(logging.WithLogger(ctx, a.logger), a.lib, frags)
	if err != nil {
		return WrapExitError(ExitCommandError, "import failed", err)
	}

	result := ImportResult{Imported: make([]ImportedEntity, 0, len(imported)), Errors: messages}
	for _, im := range imported {
		out.VerboseLog("saved %s.%s", im.Entity.Kind(), im.Label)
		result.Imported = append(result.Imported, ImportedEntity{
			Label: im.Label,
			Kind:  im.Saved.Kind(),
			Key:   entity.KeyOf(im.Saved),
			Name:  entity.Name(im.Saved),
		})
	}
	if err := out.Success(result); err != nil {
		return err
	}
	if len(loadErrs) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d fragment errors", len(loadErrs)))
	}
	return nil
}

// errorCode returns the fragment error code of err, or E001.
func errorCode(err error) string {
	var fe *fragments.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fragments.CodeGeneric
}
