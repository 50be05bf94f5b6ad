package assistant

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewCommand creates a Cobra command tree for metadata synchronization.
// The returned command should be added to a parent CLI's root command.
//
// Commands provided:
//   - civitai sync [types...] [--overwrite] [--recalculate-hash]
//   - civitai previews [types...] [--overwrite] [--recalculate-hash]
//   - civitai list [types...] [--json]
//
// Type arguments accept short names (checkpoint, lora, embedding); all
// configured types are processed when none are given.
func NewCommand(cfg Config, opts ...SyncerOption) *cobra.Command {
	var quiet bool

	// Syncer will be created in PersistentPreRunE
	var sync Syncer

	cmd := &cobra.Command{
		Use:   "civitai",
		Short: "Sync model metadata from the Civitai catalog",
		Long:  "Reconcile local model files against the Civitai catalog: content hashes, metadata sidecars, and preview images.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			var err error
			sync, err = NewSyncer(cfg, opts...)
			if err != nil {
				return fmt.Errorf("failed to initialize syncer: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")

	cmd.AddCommand(syncCmd(&sync, &quiet))
	cmd.AddCommand(previewsCmd(&sync, &quiet))
	cmd.AddCommand(listCmd(&sync))

	return cmd
}

// batchFlags holds the flags shared by the two batch subcommands.
type batchFlags struct {
	overwrite   bool
	recalculate bool
}

func (f *batchFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.overwrite, "overwrite", false, "Process files whose target artifact already exists")
	cmd.Flags().BoolVar(&f.recalculate, "recalculate-hash", false, "Recompute content hashes even when cached")
}

func (f *batchFlags) options(w io.Writer, quiet bool) []UpdateOption {
	var opts []UpdateOption
	if f.overwrite {
		opts = append(opts, WithOverwrite())
	}
	if f.recalculate {
		opts = append(opts, WithRecalculateHash())
	}
	if !quiet {
		opts = append(opts, WithProgress(ProgressFunc(func(fraction float64, message string) {
			renderProgress(w, fraction, message)
		})))
	}
	return opts
}

func syncCmd(sync *Syncer, quiet *bool) *cobra.Command {
	var flags batchFlags

	cmd := &cobra.Command{
		Use:   "sync [types...]",
		Short: "Update metadata sidecars",
		Long:  "Look up each model file in the catalog by content hash and update its metadata sidecar.",
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := parseTypeArgs(args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			err = (*sync).UpdateMetadata(cmd.Context(), types, flags.options(out, *quiet)...)
			if !*quiet {
				fmt.Fprintln(out)
			}
			return err
		},
	}

	flags.register(cmd)
	return cmd
}

func previewsCmd(sync *Syncer, quiet *bool) *cobra.Command {
	var flags batchFlags

	cmd := &cobra.Command{
		Use:   "previews [types...]",
		Short: "Update preview images",
		Long:  "Download the canonical catalog preview image for each model file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := parseTypeArgs(args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			err = (*sync).UpdatePreviewImages(cmd.Context(), types, flags.options(out, *quiet)...)
			if !*quiet {
				fmt.Fprintln(out)
			}
			return err
		},
	}

	flags.register(cmd)
	return cmd
}

func listCmd(sync *Syncer) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list [types...]",
		Short: "List model files and their sidecar state",
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := parseTypeArgs(args)
			if err != nil {
				return err
			}

			statuses, err := (*sync).ListModels(cmd.Context(), types)
			if err != nil {
				return err
			}
			return outputModelStatuses(cmd.OutOrStdout(), statuses, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

// parseTypeArgs converts CLI type arguments to model types.
// No arguments selects every known type.
func parseTypeArgs(args []string) ([]ModelType, error) {
	if len(args) == 0 {
		return AllModelTypes, nil
	}

	types := make([]ModelType, 0, len(args))
	for _, arg := range args {
		t, err := ParseModelType(arg)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

// Output helpers

func outputModelStatuses(w io.Writer, statuses []ModelStatus, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	}

	if len(statuses) == 0 {
		fmt.Fprintln(w, "No model files found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tTYPE\tMETADATA\tPREVIEW")
	for _, st := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			st.Path,
			st.Type,
			yesNo(st.HasSidecar),
			yesNo(st.HasPreview),
		)
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// renderProgress renders a single-line progress update to the writer.
// Format: [ 42%] updating model.safetensors
// Uses \r to overwrite and \x1b[K to clear to end of line.
func renderProgress(w io.Writer, fraction float64, message string) {
	pct := int(fraction * 100)
	if pct > 100 {
		pct = 100
	}

	const barWidth = 20
	filled := int(fraction * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled)

	fmt.Fprintf(w, "\r\x1b[K[%s] %3d%% %s", bar, pct, message)
}
