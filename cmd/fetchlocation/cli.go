package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dop251/goja"
	gojafetchlocation "github.com/joeycumines/goja-fetchlocation"
	"github.com/joeycumines/goja-fetchlocation/nativefetch"
	"github.com/joeycumines/goja-fetchlocation/runner"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/spf13/cobra"
)

var errNoBaseURL = errors.New("no base URL configured")

type commonOptions struct {
	cfg      gojafetchlocation.Config
	logLevel string
	stdout   io.Writer
	stderr   io.Writer
}

func run(args []string) error {
	root := newRootCmd(os.Stdout, os.Stderr)
	root.SetArgs(args)
	return root.Execute()
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &commonOptions{stdout: stdout, stderr: stderr}
	cmd := &cobra.Command{
		Use:           "fetchlocation",
		Short:         "Run scripts with root-relative fetch support",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	fs := cmd.PersistentFlags()
	fs.StringVarP(&opts.cfg.ManifestPath, "manifest", "m", "", "app config (JSON or YAML) providing extra.router.origin")
	fs.StringVar(&opts.cfg.Origin, "origin", "", "override extra.router.origin")
	fs.StringVar(&opts.cfg.DevServerURL, "dev-server", "", "development server URL (default: $"+gojafetchlocation.EnvDevServer+", or the script URL)")
	fs.BoolVar(&opts.cfg.Production, "production", false, "production mode (also enabled by $"+gojafetchlocation.EnvNodeEnv+"=production)")
	fs.StringVar(&opts.logLevel, "log-level", "warning", "log level: debug, info, warning or error")

	cmd.AddCommand(
		newRunCmd(opts),
		newResolveCmd(opts),
	)
	return cmd
}

func newRunCmd(opts *commonOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "run <script path or URL>",
		Short: "Execute a script and print its result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return runScript(ctx, opts, args[0])
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall timeout (0 disables)")
	return cmd
}

func newResolveCmd(opts *commonOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Print the base URL root-relative requests resolve against",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newModule(opts)
			if err != nil {
				return err
			}
			u, ok := m.ResolveBaseURL()
			if !ok {
				return errNoBaseURL
			}
			_, err = fmt.Fprintln(opts.stdout, u)
			return err
		},
	}
}

func newModule(opts *commonOptions) (*gojafetchlocation.Module, error) {
	opts.cfg.ApplyEnv()
	moduleOpts, err := opts.cfg.Options()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(opts.stderr, opts.logLevel)
	if err != nil {
		return nil, err
	}
	moduleOpts = append(moduleOpts, gojafetchlocation.WithLogger(logger))
	return gojafetchlocation.New(goja.New(), moduleOpts...)
}

func runScript(ctx context.Context, opts *commonOptions, script string) error {
	opts.cfg.ApplyEnv()
	moduleOpts, err := opts.cfg.Options()
	if err != nil {
		return err
	}
	logger, err := newLogger(opts.stderr, opts.logLevel)
	if err != nil {
		return err
	}

	source, err := loadScript(ctx, script)
	if err != nil {
		return err
	}
	if opts.cfg.DevServerURL == "" {
		moduleOpts = append(moduleOpts, gojafetchlocation.WithDevServer(gojafetchlocation.DevServerFromScriptURL(script)))
	}

	r, err := runner.New(
		runner.WithLogger(logger),
		runner.WithModuleOptions(moduleOpts...),
		runner.WithFetchOptions(nativefetch.WithContext(ctx)),
	)
	if err != nil {
		return err
	}
	defer r.Close()

	result, err := r.Run(ctx, script, source)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(opts.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func loadScript(ctx context.Context, script string) (string, error) {
	if !strings.HasPrefix(script, "http://") && !strings.HasPrefix(script, "https://") {
		b, err := os.ReadFile(script)
		if err != nil {
			return "", fmt.Errorf("read script: %w", err)
		}
		return string(b), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, script, nil)
	if err != nil {
		return "", fmt.Errorf("load script: %w", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("load script: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("load script: %s", res.Status)
	}
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("load script: %w", err)
	}
	return string(b), nil
}

func newLogger(w io.Writer, level string) (*logiface.Logger[logiface.Event], error) {
	var lvl logiface.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = logiface.LevelDebug
	case "info":
		lvl = logiface.LevelInformational
	case "warning", "warn":
		lvl = logiface.LevelWarning
	case "error", "err":
		lvl = logiface.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(lvl),
	).Logger(), nil
}
