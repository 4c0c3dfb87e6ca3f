package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/scubapro711/youtube-autopilot/internal/app"
	"github.com/scubapro711/youtube-autopilot/internal/method"
	"github.com/scubapro711/youtube-autopilot/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "ytauth",
		Usage: "YouTube API credential manager",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "storage--type",
				Usage: "credential storage backend (file|keyring)",
			},
			&cli.StringFlag{
				Name:  "storage--dir",
				Usage: "credentials directory for file storage",
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			statusCommand(),
			revokeCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:      "login",
		Usage:     "acquire and store a credential for one method",
		ArgsUsage: "[oauth|api_key|service_account]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "auth--oauth--redirect-strategy",
				Usage: "OAuth redirect strategy (loopback|out_of_band)",
			},
		},
		Action: loginAction,
	}
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	interactive := term.IsTerminal(int(os.Stdin.Fd()))

	application, err := setup(cmd, app.WithInteractive(interactive))
	if err != nil {
		return err
	}
	defer shutdown(ctx)

	methodID := cmd.Args().First()
	if methodID == "" {
		methodID = method.IDOAuth
	}
	if methodID == method.IDOAuth && !interactive {
		return fmt.Errorf("oauth login needs an interactive terminal")
	}

	cred, err := application.Login(ctx, methodID)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Printf("logged in via %s (%d scopes)\n", methodID, len(cred.Scopes))
	return nil
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "show each configured method's credential state",
		Action: statusAction,
	}
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	application, err := setup(cmd)
	if err != nil {
		return err
	}
	defer shutdown(ctx)

	for _, s := range application.Status(ctx) {
		line := fmt.Sprintf("%-16s %-16s %s", s.Method.ID, s.Method.Capability, s.State)
		if s.Reason != "" {
			line += " (" + s.Reason + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func revokeCommand() *cli.Command {
	return &cli.Command{
		Name:      "revoke",
		Usage:     "delete one method's stored credential",
		ArgsUsage: "<oauth|api_key|service_account>",
		Action:    revokeAction,
	}
}

func revokeAction(ctx context.Context, cmd *cli.Command) error {
	methodID := cmd.Args().First()
	if methodID == "" {
		return fmt.Errorf("revoke requires a method argument")
	}

	application, err := setup(cmd)
	if err != nil {
		return err
	}
	defer shutdown(ctx)

	if err := application.Revoke(ctx, methodID); err != nil {
		return fmt.Errorf("revoke failed: %w", err)
	}

	fmt.Printf("revoked %s credential\n", methodID)
	return nil
}

// setup loads configuration, wires logging, and builds the application.
func setup(cmd *cli.Command, opts ...app.Option) (*app.App, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := observability.Instrument(cfg.LogLevel, string(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	application, err := app.New(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create app: %w", err)
	}
	return application, nil
}

func shutdown(ctx context.Context) {
	if err := observability.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to flush logs", "error", err)
	}
}
