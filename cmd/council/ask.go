package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"council-ai/internal/adapter/render"
	"council-ai/internal/domain"
)

// maxImageBytes bounds each --image attachment.
const maxImageBytes = 20 << 20

// scoringGrace is how long an interrupted ask still waits for an in-flight
// stats update before the stores close.
const scoringGrace = 3 * time.Second

func newAskCmd(cfgPath func() string) *cobra.Command {
	var (
		images  []string
		verbose bool
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Ask the council a question (reads stdin when no question is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			question, err := readQuestion(args, cmd.InOrStdin(), stdinIsTerminal())
			if err != nil {
				return err
			}
			attachments, err := loadImages(images)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfgPath())
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.Council.Scoring.ResetOnStart {
				if err := a.stores.Stats.Reset(ctx); err != nil {
					return err
				}
			}

			errOut := cmd.ErrOrStderr()
			printer := render.NewEventPrinter(errOut, render.PrinterOptions{
				Color:   !noColor && isTerminal(os.Stderr),
				Verbose: verbose,
				Names:   agentNames(ctx, a.agents),
			})
			a.bus.SubscribeAll(printer.Handle)

			answer, err := a.council.Ask(ctx, question, attachments)
			if err != nil {
				if domain.IsAborted(err) {
					a.bus.Close()
					fmt.Fprintln(errOut, "aborted")
					return errAborted
				}
				return err
			}

			color := !noColor && isTerminal(os.Stdout)
			fmt.Fprint(cmd.OutOrStdout(), render.Markdown(answer.Text, terminalWidth(os.Stdout), color))

			if answer.Scoring != nil && !awaitScoring(ctx, answer.Scoring.Done(), scoringGrace) {
				a.logger.Warn("council: scoring still running at exit")
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVar(&images, "image", nil, "attach an image file (repeatable)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "print full council replies")
	flags.BoolVar(&noColor, "no-color", false, "disable colours")
	return cmd
}

// awaitScoring blocks until done is closed. Once ctx is cancelled it waits
// at most grace longer. It reports whether scoring finished.
func awaitScoring(ctx context.Context, done <-chan struct{}, grace time.Duration) bool {
	select {
	case <-done:
		return true
	case <-ctx.Done():
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// readQuestion joins the arguments, or reads the question from a piped stdin.
func readQuestion(args []string, stdin io.Reader, interactive bool) (string, error) {
	q := strings.TrimSpace(strings.Join(args, " "))
	if q != "" || interactive {
		if q == "" {
			return "", fmt.Errorf("no question given")
		}
		return q, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	q = strings.TrimSpace(string(data))
	if q == "" {
		return "", fmt.Errorf("no question given")
	}
	return q, nil
}

// loadImages reads and base64-encodes each attachment.
func loadImages(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", p, err)
		}
		if info.IsDir() || info.Size() > maxImageBytes {
			return nil, fmt.Errorf("image %s: not a file under %d MB", p, maxImageBytes>>20)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", p, err)
		}
		out = append(out, base64.StdEncoding.EncodeToString(data))
	}
	return out, nil
}

func agentNames(ctx context.Context, agents domain.AgentStore) map[string]string {
	names := make(map[string]string)
	list, err := agents.Agents(ctx)
	if err != nil {
		return names
	}
	for _, a := range list {
		names[a.ID] = a.DisplayName()
	}
	return names
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func stdinIsTerminal() bool { return isTerminal(os.Stdin) }

func terminalWidth(f *os.File) int {
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
		return min(w, render.DefaultWidth)
	}
	return render.DefaultWidth
}
