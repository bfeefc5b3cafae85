// Package cmd holds the command-line entry points and HTTP server wiring.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"ytmusicdl/config"
	"ytmusicdl/handlers"

	"github.com/urfave/cli/v3"
)

// ErrMissingArgument is returned when a required positional argument is absent
var ErrMissingArgument = errors.New("missing argument")

// Runner holds the output streams shared by every command action
type Runner struct {
	stdout io.Writer
	stderr io.Writer
}

// NewApp builds the ytmusicdl command tree
func NewApp(stdout, stderr io.Writer, version string) *cli.Command {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	r := &Runner{stdout: stdout, stderr: stderr}
	handlers.Version = version

	return &cli.Command{
		Name:      "ytmusicdl",
		Usage:     "Download YouTube Music albums into a tagged library",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		Commands: []*cli.Command{
			serveCommand(r),
			downloadCommand(r),
			resolveCommand(r),
			configCommand(r),
		},
	}
}

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
		Sources: cli.EnvVars("YTMDL_CONFIG"),
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API with the job event feed",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "host", Usage: "Listen host (overrides config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port (overrides config)"},
		},
		Action: r.Serve,
	}
}

func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "download",
		Aliases:   []string{"dl"},
		Usage:     "Download one album in the foreground",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Audio format (defaults to audio.format)"},
			&cli.StringFlag{Name: "library", Aliases: []string{"o"}, Usage: "Library directory (overrides config)"},
		},
		Action: r.Download,
	}
}

func resolveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Print the album and track list a URL resolves to",
		ArgsUsage: "<url>",
		Flags:     []cli.Flag{configFlag()},
		Action:    r.Resolve,
	}
}

func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration helpers",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write the default configuration file",
				Flags:  []cli.Flag{configFlag()},
				Action: r.ConfigInit,
			},
			{
				Name:   "show",
				Usage:  "Print the effective configuration as JSON",
				Flags:  []cli.Flag{configFlag()},
				Action: r.ConfigShow,
			},
		},
	}
}

// Serve runs the HTTP server until the context is cancelled
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.LoadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	if host := cmd.String("host"); host != "" {
		cfg.Server.Host = host
	}
	if port := cmd.Int("port"); port != 0 {
		cfg.Server.Port = int(port)
	}

	svc, err := NewServices(ctx, cfg, r.stderr)
	if err != nil {
		return err
	}
	defer svc.Close()

	return Serve(ctx, svc)
}

// Resolve prints what a URL would download
func (r *Runner) Resolve(ctx context.Context, cmd *cli.Command) error {
	rawURL := cmd.Args().First()
	if rawURL == "" {
		return fmt.Errorf("%w: a YouTube Music URL is required", ErrMissingArgument)
	}
	cfg, err := config.LoadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	cfg.Paths.IndexPath = ""

	svc, err := NewServices(ctx, cfg, r.stderr)
	if err != nil {
		return err
	}
	defer svc.Close()

	album, err := svc.Resolver.Resolve(ctx, rawURL)
	if err != nil {
		return err
	}
	return r.writeJSON(album)
}

// ConfigInit writes the embedded default config
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if err := config.CreateConfigFile(path); err != nil {
		return err
	}
	fmt.Fprintf(r.stdout, "wrote %s\n", path)
	return nil
}

// ConfigShow prints the effective configuration
func (r *Runner) ConfigShow(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.LoadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	return r.writeJSON(cfg)
}

func (r *Runner) writeJSON(v any) error {
	enc := json.NewEncoder(r.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
