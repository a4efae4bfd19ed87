package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/agent"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/timeline"
)

var (
	sessionFlag string
	verboseFlag bool
)

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Run a single turn against a session and print its steps",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "log at debug level")
}

func runChat(cmd *cobra.Command, args []string) error {
	level := slog.LevelWarn
	if verboseFlag {
		level = slog.LevelDebug
	}
	logger := newConsoleLogger(os.Stderr, level)
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	res, err := a.service.Run(ctx, agent.RunRequest{
		SessionID: sessionFlag,
		Message:   strings.Join(args, " "),
		Channel:   "cli",
		Observer: agent.ObserverFuncs{
			Step: func(ev timeline.Event) {
				if ev.Type == timeline.EventAppend || ev.Entry.Kind.Terminal() {
					printStep(out, ev.Entry)
				}
			},
		},
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%s\n", res.Final.Content)
	fmt.Fprintf(out, "\n[session %s, %s after %d iterations]\n", res.SessionID, res.Outcome, res.Iterations)
	return nil
}

var stepIcons = map[domain.StepKind]string{
	domain.StepThinking:    "…",
	domain.StepStreaming:   "✎",
	domain.StepToolCall:    "→",
	domain.StepToolSuccess: "✓",
	domain.StepToolError:   "✗",
	domain.StepInfo:        "i",
	domain.StepError:       "!",
}

// printStep writes one timeline entry as a single line.
func printStep(w io.Writer, e domain.StepEntry) {
	icon, ok := stepIcons[e.Kind]
	if !ok {
		icon = "-"
	}
	line := icon + " " + e.Text
	if e.Detail != "" {
		line += " (" + e.Detail + ")"
	}
	fmt.Fprintln(w, line)
}
