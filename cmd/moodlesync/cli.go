package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/moodlesync/moodlesync/internal/config"
	"github.com/moodlesync/moodlesync/internal/db"
	"github.com/moodlesync/moodlesync/internal/download"
	"github.com/moodlesync/moodlesync/internal/errors"
	"github.com/moodlesync/moodlesync/internal/mcp"
	"github.com/moodlesync/moodlesync/internal/moodle"
	"github.com/moodlesync/moodlesync/internal/notify"
	"github.com/moodlesync/moodlesync/internal/ops"
	"github.com/moodlesync/moodlesync/internal/web"
	"github.com/moodlesync/moodlesync/internal/wizard"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	app := &cli.App{
		Name:    "moodlesync",
		Usage:   "Mirror Moodle course files to local storage",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "storage-dir", Aliases: []string{"d"}, Value: ".", Usage: "Mirror directory holding config, state and files"},
			&cli.BoolFlag{Name: "verbose", Usage: "Enable debug logging"},
			&cli.StringFlag{Name: "log-format", Value: "text", Usage: "Log format: text|json"},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			initCmd(),
			configCmd(),
			tokenCmd(),
			syncCmd(),
			statusCmd(),
			coursesCmd(),
			webCmd(),
			mcpCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// setupLogging installs the default slog handler per the global flags.
// Logs go to stderr so JSON command output on stdout stays parseable.
func setupLogging(c *cli.Context) error {
	level := slog.LevelInfo
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch c.String("log-format") {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text", "":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return outputError(errors.NewInvalidRequest(fmt.Sprintf("unknown log format %q", c.String("log-format"))))
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// initCmd creates the init command.
func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "First-time interactive setup (instance, login, course selection)",
		Action: func(c *cli.Context) error {
			baseDir := c.String("storage-dir")
			cfg, err := config.Load(baseDir)
			if err != nil {
				return outputError(err)
			}

			login := func(ctx context.Context, baseURL, username, password string) (string, error) {
				return moodle.Login(ctx, baseURL, username, password, clientOptions(cfg))
			}
			if err := wizard.Setup(c.Context, cfg, login); err != nil {
				return outputError(err)
			}
			if err := config.Save(baseDir, cfg); err != nil {
				return outputError(err)
			}

			if err := wizard.SelectCourses(c.Context, cfg, newClient(cfg)); err != nil {
				return outputError(err)
			}
			if err := config.Save(baseDir, cfg); err != nil {
				return outputError(err)
			}

			fmt.Printf("Configuration saved to %s. Run 'moodlesync sync' to mirror your courses.\n", baseDir)
			return nil
		},
	}
}

// configCmd creates the config command.
func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Interactive settings menu (courses, download options, mail)",
		Action: func(c *cli.Context) error {
			baseDir := c.String("storage-dir")
			cfg, err := config.Load(baseDir)
			if err != nil {
				return outputError(err)
			}
			if !cfg.Configured() {
				return outputError(errors.NewNotConfigured("token"))
			}

			if err := wizard.Configure(c.Context, cfg, newClient(cfg)); err != nil {
				return outputError(err)
			}
			if err := cfg.Validate(); err != nil {
				return outputError(err)
			}
			if err := config.Save(baseDir, cfg); err != nil {
				return outputError(err)
			}

			fmt.Println("Configuration saved.")
			return nil
		},
	}
}

// tokenCmd creates the token command.
func tokenCmd() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Obtain a webservice token from username and password",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true, Usage: "Moodle username"},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Password (read from stdin when omitted)"},
		},
		Action: func(c *cli.Context) error {
			baseDir := c.String("storage-dir")
			cfg, err := config.Load(baseDir)
			if err != nil {
				return outputError(err)
			}
			if cfg.MoodleDomain == "" {
				return outputError(errors.NewNotConfigured("moodle_domain"))
			}

			password := c.String("password")
			if password == "" {
				if !stdinHasData() {
					return outputError(errors.NewInvalidRequest("password must be given via --password or piped on stdin"))
				}
				password, err = readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
			}

			token, err := moodle.Login(c.Context, cfg.BaseURL(), c.String("username"), password, clientOptions(cfg))
			if err != nil {
				return outputError(err)
			}

			cfg.Token = token
			if err := config.Save(baseDir, cfg); err != nil {
				return outputError(err)
			}

			return outputJSON(map[string]string{"token": token})
		},
	}
}

// syncCmd creates the sync command.
func syncCmd() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Fetch remote state, report changes, download and commit",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Report changes without downloading or committing"},
			&cli.BoolFlag{Name: "skip-downloads", Usage: "Commit the new state without touching local files"},
			&cli.IntFlag{Name: "threads", Usage: "Concurrent downloads (overrides config)"},
			&cli.BoolFlag{Name: "json", Usage: "Print the result as JSON instead of the console report"},
		},
		Action: func(c *cli.Context) error {
			baseDir := c.String("storage-dir")
			database, cfg, err := openStorage(baseDir)
			if err != nil {
				return outputError(err)
			}
			defer database.Close()

			threads := cfg.SyncThreads
			if c.Int("threads") > 0 {
				threads = c.Int("threads")
			}

			deps := ops.SyncDeps{
				Fetcher: newClient(cfg),
				Downloader: download.NewScheduler(download.Options{
					StorageDir:     baseDir,
					Token:          cfg.Token,
					Threads:        threads,
					SkipCertVerify: cfg.SkipCertVerify,
					DownloadLinked: cfg.DownloadLinkedFiles,
					AllowDomains:   cfg.DownloadDomainsWhitelist,
					DenyDomains:    cfg.DownloadDomainsBlacklist,
				}),
				Notifiers: buildNotifiers(cfg, c.Bool("json")),
				Logger:    slog.Default(),
				BaseDir:   baseDir,
			}

			output, err := ops.Sync(c.Context, database, cfg, deps, ops.SyncInput{
				DryRun:        c.Bool("dry-run"),
				SkipDownloads: c.Bool("skip-downloads"),
			})
			if err != nil {
				return outputError(err)
			}

			if c.Bool("json") {
				return outputJSON(output)
			}
			return nil
		},
	}
}

// statusCmd creates the status command.
func statusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show what the mirror holds and how the last run went",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print as JSON"},
		},
		Action: func(c *cli.Context) error {
			database, cfg, err := openStorage(c.String("storage-dir"))
			if err != nil {
				return outputError(err)
			}
			defer database.Close()

			output, err := ops.Status(c.Context, database, cfg)
			if err != nil {
				return outputError(err)
			}

			if c.Bool("json") {
				return outputJSON(output)
			}

			if output.Configured {
				fmt.Printf("Instance:  %s\n", output.MoodleDomain)
			} else {
				fmt.Println("Instance:  not configured (run 'moodlesync init')")
			}
			fmt.Printf("Courses:   %d\n", output.CourseCount)
			fmt.Printf("Files:     %d\n", output.FileCount)
			fmt.Printf("Size:      %d bytes\n", output.TotalSize)
			if output.LastRun != nil {
				r := output.LastRun
				fmt.Printf("Last run:  %s (%s): %d new, %d modified, %d moved, %d deleted",
					time.Unix(r.FinishedAt, 0).Format(time.RFC3339), r.Status,
					r.New, r.Modified, r.Moved, r.Deleted)
				if r.Failed > 0 {
					fmt.Printf(", %d failed", r.Failed)
				}
				fmt.Println()
			}
			return nil
		},
	}
}

// coursesCmd creates the courses command.
func coursesCmd() *cli.Command {
	return &cli.Command{
		Name:  "courses",
		Usage: "List enrolled courses and whether they would be synced",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print as JSON"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("storage-dir"))
			if err != nil {
				return outputError(err)
			}

			output, err := ops.RemoteCourses(c.Context, cfg, newClient(cfg))
			if err != nil {
				return outputError(err)
			}

			if c.Bool("json") {
				return outputJSON(output)
			}

			for _, course := range output.Courses {
				marker := " "
				if course.Selected {
					marker = "*"
				}
				fmt.Printf("%s %6d  %s\n", marker, course.ID, course.FullName)
			}
			fmt.Printf("%d courses, * marks those the current configuration syncs\n", output.Total)
			return nil
		},
	}
}

// webCmd creates the web command.
func webCmd() *cli.Command {
	return &cli.Command{
		Name:  "web",
		Usage: "Serve the read-only mirror browser",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "127.0.0.1:8799", Usage: "Listen address"},
		},
		Action: func(c *cli.Context) error {
			baseDir := c.String("storage-dir")
			database, cfg, err := openStorage(baseDir)
			if err != nil {
				return outputError(err)
			}
			defer database.Close()

			srv := web.NewServer(database, cfg, baseDir, Version, c.String("addr"))
			return web.Run(srv)
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the mirror's read-only MCP tools over stdio",
		Action: func(c *cli.Context) error {
			database, _, err := openStorage(c.String("storage-dir"))
			if err != nil {
				return outputError(err)
			}
			defer database.Close()

			return mcp.Run(database, Version)
		},
	}
}

// Helper functions

// openStorage opens the state database and the configuration of one
// storage directory.
func openStorage(baseDir string) (*sql.DB, *config.Config, error) {
	database, err := db.Init(baseDir)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(baseDir)
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	return database, cfg, nil
}

// newClient builds the webservice client from the configuration.
func newClient(cfg *config.Config) *moodle.Client {
	return moodle.NewClient(cfg.BaseURL(), cfg.Token, clientOptions(cfg))
}

func clientOptions(cfg *config.Config) moodle.ClientOptions {
	return moodle.ClientOptions{
		Timeout:        time.Duration(cfg.RequestTimeout) * time.Second,
		SkipCertVerify: cfg.SkipCertVerify,
	}
}

// buildNotifiers assembles the run's notifiers. JSON mode drops the console
// report so stdout carries nothing but the result object.
func buildNotifiers(cfg *config.Config, jsonOutput bool) []notify.Notifier {
	var notifiers []notify.Notifier
	if !jsonOutput {
		notifiers = append(notifiers, &notify.Console{Out: os.Stdout, Color: stdoutIsTerminal()})
	}
	if cfg.Mail != nil {
		notifiers = append(notifiers, &notify.Mail{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			To:       cfg.Mail.To,
		})
	}
	return notifiers
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if syncErr, ok := err.(*errors.SyncError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", syncErr.Code, syncErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// stdoutIsTerminal reports whether stdout is a terminal, for color output.
func stdoutIsTerminal() bool {
	stat, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
