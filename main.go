package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"recipost/internal/config"
	"recipost/internal/formatter"
	"recipost/internal/login"
	"recipost/internal/publish"
	"recipost/internal/toolserver"
)

var version = "dev"

var (
	configFile string
	v          = config.NewViper()
)

// outputOptions are the -f/-o flags of one command.
type outputOptions struct {
	format string
	file   string
	cmd    *cobra.Command
}

func main() {
	var rootCmd = &cobra.Command{
		Use:     "recipost",
		Short:   "Turn recipe pages into Xiaohongshu notes and publish them",
		Version: version,
		Long: `recipost fetches a recipe page, writes a Xiaohongshu-style note with an
OpenAI-compatible model, downloads the recipe's images or video, and drives
the creator site in a real browser to publish the note or save it as a draft.`,
		Example: `  # Log in once with a visible browser and keep the session
  recipost login

  # Preview the generated note without touching the creator site
  recipost generate https://www.thekitchn.com/grandmas-famous-lemon-bars-recipe-review-23770816 -o note.md

  # Save as a draft, then publish another one
  recipost draft www.thekitchn.com/lemon-bars
  recipost publish --account kitchen https://example.com/recipe

  # Serve the tools over stdio
  recipost serve`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "Config file (default ./recipost.yaml or $HOME/.recipost/recipost.yaml)")
	pf.String("account", "default", "Account key the session is stored under")
	pf.String("data-dir", "", "Directory for sessions, screenshots, media and history")
	pf.Bool("headless", false, "Run the browser without a window (login must already be captured)")
	pf.StringP("proxy", "p", "", "Proxy URL (e.g. http://127.0.0.1:7890)")
	pf.String("selectors", "", "Selector profile YAML (default: built-in)")
	pf.Bool("debug", false, "Verbose logging")
	for key, flag := range map[string]string{
		"account":   "account",
		"data_dir":  "data-dir",
		"headless":  "headless",
		"proxy":     "proxy",
		"selectors": "selectors",
		"debug":     "debug",
	} {
		_ = v.BindPFlag(key, pf.Lookup(flag))
	}

	rootCmd.AddCommand(
		runCommand("publish", "Generate a note from a recipe URL and publish it", publish.ModePublish),
		runCommand("draft", "Generate a note from a recipe URL and save it as a draft", publish.ModeDraft),
		generateCommand(),
		loginCommand(),
		serveCommand(),
		historyCommand(),
		screenshotsCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT/SIGTERM so an attempt can fail with a
// screenshot instead of dying mid-click.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCommand(name, short string, mode publish.Mode) *cobra.Command {
	var out *outputOptions
	cmd := &cobra.Command{
		Use:   name + " URL",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			p, err := a.Pipeline(true)
			if err != nil {
				return err
			}
			rep, err := p.Run(ctx, args[0], mode)
			if err != nil {
				return err
			}
			if err := out.write(rep); err != nil {
				return err
			}
			if !rep.Outcome.OK() {
				return fmt.Errorf("%s failed at %s: %s", name, rep.Outcome.Stage, rep.Outcome.Reason)
			}
			return nil
		},
	}
	out = addOutputFlags(cmd, "text")
	return cmd
}

func generateCommand() *cobra.Command {
	var out *outputOptions
	cmd := &cobra.Command{
		Use:   "generate URL",
		Short: "Generate a note for review without opening the creator site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			p, err := a.Pipeline(false)
			if err != nil {
				return err
			}
			d, err := p.Draft(ctx, args[0])
			if err != nil {
				return err
			}
			return out.write(d)
		},
	}
	out = addOutputFlags(cmd, "markdown")
	return cmd
}

func loginCommand() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Open a visible browser and capture the creator-site session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()
			if wait > 0 {
				a.cfg.Timeouts.LoginWait = wait
			}

			ctx, cancel := signalContext()
			defer cancel()

			state, err := a.Login(ctx, func(s login.State) {
				fmt.Fprintf(os.Stderr, "login: %s\n", s)
			})
			if err != nil {
				return err
			}
			fmt.Printf("session %s for account %q saved to %s\n", strings.ToLower(string(state)), a.cfg.Account, a.sessions.Path(a.cfg.Account))
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "How long to wait for the QR-code login (default from config, 120s)")
	return cmd
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve draft_recipe_note, save_recipe_draft and generate_and_publish_recipe over stdio JSON-RPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			if err := a.profiles.Watch(ctx); err != nil {
				a.logger.Warn("selector profile hot reload disabled", zap.Error(err))
			}

			p, err := a.Pipeline(true)
			if err != nil {
				return err
			}
			srv := toolserver.New(p, "recipost", version, a.logger.Named("toolserver"))
			a.logger.Info("serving tools on stdio", zap.String("account", a.cfg.Account))
			return srv.Serve(ctx, os.Stdin, os.Stdout)
		},
	}
}

func historyCommand() *cobra.Command {
	var (
		limit int
		out   *outputOptions
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent publish attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.History()
			if err != nil {
				return err
			}
			recs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return out.write(historyList(recs))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of attempts to show")
	out = addOutputFlags(cmd, "text")
	return cmd
}

func screenshotsCommand() *cobra.Command {
	var (
		maxAge   time.Duration
		maxFiles int
	)
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete screenshots beyond the retention policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("max-age") {
				a.cfg.Screenshots.MaxAge = maxAge
			}
			if cmd.Flags().Changed("max-files") {
				a.cfg.Screenshots.MaxFiles = maxFiles
			}
			n, err := a.shots.Prune(a.cfg.Screenshots.MaxAge, a.cfg.Screenshots.MaxFiles)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "removed %d screenshot(s) from %s\n", n, a.shots.Dir())
			return nil
		},
	}
	prune.Flags().DurationVar(&maxAge, "max-age", 0, "Remove screenshots older than this (0 keeps all ages)")
	prune.Flags().IntVar(&maxFiles, "max-files", 0, "Keep at most this many screenshots (0 means no cap)")

	cmd := &cobra.Command{
		Use:   "screenshots",
		Short: "Manage attempt screenshots",
	}
	cmd.AddCommand(prune)
	return cmd
}

func addOutputFlags(cmd *cobra.Command, defaultFormat string) *outputOptions {
	o := &outputOptions{cmd: cmd}
	cmd.Flags().StringVarP(&o.format, "format", "f", defaultFormat, "Output format ("+strings.Join(formatter.Formats, ", ")+")")
	cmd.Flags().StringVarP(&o.file, "output", "o", "", "Output file path (format inferred from extension if -f not specified)")
	return o
}

// write formats content and writes it to --output or stdout.
func (o *outputOptions) write(content formatter.Content) error {
	format := o.format
	// If output file is specified but format is not, infer format from file extension
	if o.file != "" && !o.cmd.Flags().Changed("format") {
		if inferred := formatter.InferFromExtension(o.file); inferred != "" {
			format = inferred
		}
	}
	out, err := formatter.Format(content, format)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	if o.file != "" {
		if err := os.WriteFile(o.file, []byte(out), 0644); err != nil {
			return fmt.Errorf("failed to write to file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Output written to: %s\n", o.file)
		return nil
	}
	fmt.Println(out)
	return nil
}

func loadConfig(requireLLM bool) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(requireLLM); err != nil {
		return nil, err
	}
	return cfg, nil
}
