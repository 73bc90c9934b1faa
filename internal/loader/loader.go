// Package loader is the shared command-line surface of the format loader
// binaries. Each binary contributes a name, the file extension it owns, and
// an open function; everything else (flags, config resolution, output
// selection, the compatibility gate, exit-status mapping) lives here so the
// loaders behave identically from the outside.
package loader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/scanstream/internal/cloud"
	"github.com/banshee-data/scanstream/internal/config"
	"github.com/banshee-data/scanstream/internal/export"
	"github.com/banshee-data/scanstream/internal/fsutil"
	"github.com/banshee-data/scanstream/internal/monitoring"
	"github.com/banshee-data/scanstream/internal/timeutil"
	"github.com/banshee-data/scanstream/internal/version"
	"github.com/banshee-data/scanstream/internal/viz"
)

// OpenFunc opens one container file as a point-cloud source.
type OpenFunc func(path string) (cloud.Source, error)

// Main builds the loader command, executes it, and maps the result onto
// the process exit status. Incompatible input exits with
// fsutil.ExitIncompatible and no diagnostic, since a dispatcher probing
// loaders treats that status as routine; any other failure is logged and
// exits 1. It does not return.
func Main(name, ext, short string, open OpenFunc) {
	if err := NewCommand(name, ext, short, open).Execute(); err != nil {
		if errors.Is(err, fsutil.ErrIncompatible) {
			monitoring.Debugf("%s: %v", name, err)
			os.Exit(fsutil.ExitIncompatible)
		}
		monitoring.Logf("%s: %v", name, err)
		os.Exit(1)
	}
}

type loaderFlags struct {
	configFile    string
	applicationID string
	recordingID   string
	prefix        string
	chunkSize     int
	output        string
}

// NewCommand assembles the cobra command for one loader binary. Split from
// Main so tests can execute the command without touching os.Exit.
func NewCommand(name, ext, short string, open OpenFunc) *cobra.Command {
	var fl loaderFlags

	cmd := &cobra.Command{
		Use:   name + " <file" + ext + ">",
		Short: short,
		Long: short + `.

The stream is written to stdout unless --output names a file; diagnostics
go to stderr. Input that is not a regular ` + ext + ` file exits with status ` +
			strconv.Itoa(fsutil.ExitIncompatible) + ` so a dispatcher can hand the path to another loader.`,
		Version:       version.String(),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, &fl, ext, open, args[0])
		},
	}

	cmd.Flags().StringVarP(&fl.output, "output", "o", "", "write the stream to this file instead of stdout")
	cmd.Flags().StringVar(&fl.configFile, "config", "", "YAML config file")
	cmd.Flags().StringVar(&fl.applicationID, "application-id", "", "application id announced in the stream header")
	cmd.Flags().StringVar(&fl.recordingID, "recording-id", "", "recording id announced in the stream header (default: random)")
	cmd.Flags().StringVar(&fl.prefix, "prefix", "", `entity path prefix (default "`+config.DefaultPrefix+`")`)
	cmd.Flags().IntVar(&fl.chunkSize, "chunk-size", 0, "points per emitted chunk")

	return cmd
}

func run(cmd *cobra.Command, fl *loaderFlags, ext string, open OpenFunc, path string) error {
	if err := fsutil.CheckLoadable(fsutil.OSFileSystem{}, path, ext); err != nil {
		return err
	}

	cfg, err := resolveConfig(cmd, fl)
	if err != nil {
		return err
	}

	src, err := open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	out, closeOut, err := openOutput(fl.output)
	if err != nil {
		return err
	}

	stream, err := viz.NewStream(out, cfg.ApplicationID, cfg.RecordingID, timeutil.RealClock{})
	if err != nil {
		closeOut()
		return fmt.Errorf("start stream: %w", err)
	}

	if err := export.New(stream, cfg).Run(src); err != nil {
		closeOut()
		return err
	}
	if err := stream.Close(); err != nil {
		closeOut()
		return fmt.Errorf("flush stream: %w", err)
	}
	return closeOut()
}

// resolveConfig layers the sources: defaults, then config file, then
// environment, then any flag the user set explicitly.
func resolveConfig(cmd *cobra.Command, fl *loaderFlags) (*config.Config, error) {
	var opts []config.Option
	if fl.configFile != "" {
		opts = append(opts, config.WithConfigFile(fl.configFile))
	}

	cfg, err := config.NewLoader(opts...).Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cmd.Flags().Changed("application-id") {
		cfg.ApplicationID = fl.applicationID
	}
	if cmd.Flags().Changed("recording-id") {
		cfg.RecordingID = fl.recordingID
	}
	if cmd.Flags().Changed("prefix") {
		cfg.Prefix = fl.prefix
	}
	if cmd.Flags().Changed("chunk-size") {
		cfg.ChunkSize = fl.chunkSize
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return f, f.Close, nil
}
