package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cottand/hmerge/horizontal"
	"github.com/cottand/hmerge/horizontal/mergeerr"
	"github.com/cottand/hmerge/internal/config"
	"github.com/cottand/hmerge/internal/log"
	"github.com/cottand/hmerge/program"
	"github.com/cottand/hmerge/program/progfile"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var RunCmd = &cobra.Command{
	Use:          "run program.yaml",
	Short:        "Merge the classes of a program and print the result",
	RunE:         runRun,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
}

var (
	outPath  *string
	showLens *bool
	runFlags *commonFlags
)

func init() {
	outPath = RunCmd.Flags().StringP("out", "o", "", "write the merged program here instead of stdout")
	showLens = RunCmd.Flags().Bool("lens", false, "print the renamed types after the program")
	runFlags = addCommonFlags(RunCmd)
}

// commonFlags are the flags of every command that runs the merger
type commonFlags struct {
	configDir *string
	logLevel  *int
	workers   *int
	maxGroup  *int
	disabled  *bool
}

func addCommonFlags(c *cobra.Command) *commonFlags {
	return &commonFlags{
		configDir: c.Flags().StringP("config", "c", "", "directory holding hmerge.yml (defaults to the program's directory)"),
		logLevel:  c.Flags().IntP("log-level", "l", int(slog.LevelError), "log level, overrides the config"),
		workers:   c.Flags().IntP("workers", "j", 0, "worker goroutines, 0 means one per CPU"),
		maxGroup:  c.Flags().Int("max-group-size", 0, "largest number of classes merged into one, overrides the config"),
		disabled:  c.Flags().Bool("disable", false, "run without merging anything"),
	}
}

// setup loads the program at path and computes options from config and flags.
func setup(cmd *cobra.Command, flags *commonFlags, path string) (*program.Program, program.KeepInfo, horizontal.Options, error) {
	dir := *flags.configDir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, nil, horizontal.Options{}, err
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, nil, horizontal.Options{}, err
	}
	if cmd.Flags().Changed("log-level") {
		level = slog.Level(*flags.logLevel)
	}
	log.SetLevel(level)
	log.EnableSections(cfg.LogSections...)

	opts := cfg.Options()
	if cmd.Flags().Changed("workers") {
		opts.Workers = *flags.workers
	}
	if cmd.Flags().Changed("max-group-size") {
		opts.MaxGroupSize = *flags.maxGroup
	}
	if *flags.disabled {
		opts.Enabled = false
	}

	prog, keep, err := progfile.Load(path)
	if err != nil {
		return nil, nil, horizontal.Options{}, fmt.Errorf("could not load program: %w", err)
	}
	return prog, keep, opts, nil
}

// explain renders merge failures with their error code, as they indicate a bug rather
// than a problem with the input
func explain(err error) error {
	var failure *mergeerr.Failure
	if errors.As(err, &failure) {
		return fmt.Errorf("class merging failed (this is a bug):\n%s", mergeerr.FormatWithCode(failure))
	}
	return err
}

func runRun(cmd *cobra.Command, args []string) error {
	prog, keep, opts, err := setup(cmd, runFlags, args[0])
	if err != nil {
		return err
	}
	res, err := horizontal.Run(cmd.Context(), prog, keep, opts)
	if err != nil {
		return explain(err)
	}

	if err := writeProgram(cmd.OutOrStdout(), *outPath, res.Program); err != nil {
		return err
	}
	if *showLens {
		w := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(w, "# deleted %d classes\n", len(res.Deleted))
		res.Lens.MappedTypes(func(from, to program.Type) {
			_, _ = fmt.Fprintf(w, "# %v -> %v\n", from, to)
		})
	}
	return nil
}

// writeProgram dumps prog to path, or to stdout when path is empty.
func writeProgram(stdout io.Writer, path string, prog *program.Program) error {
	if path == "" {
		if err := progfile.Dump(stdout, prog); err != nil {
			return fmt.Errorf("could not write program: %w", err)
		}
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create output file: %w", err)
	}
	if err := progfile.Dump(f, prog); err != nil {
		_ = f.Close()
		return fmt.Errorf("could not write program: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("could not write program: %w", err)
	}
	return nil
}
