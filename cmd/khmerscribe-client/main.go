package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jo-hoe/khmerscribe/internal/client"
	"github.com/jo-hoe/khmerscribe/internal/common"
	"github.com/jo-hoe/khmerscribe/internal/pipeline"
	"github.com/jo-hoe/khmerscribe/internal/tui"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("khmerscribe-client", flag.ContinueOnError)
	serverURL := fs.String("server", envOr("KHMERSCRIBE_SERVER", common.DefaultServerURL), "transcription server base URL")
	videoURL := fs.String("url", "", "YouTube URL (plain mode submits it immediately)")
	plain := fs.Bool("plain", false, "print progress lines instead of the interactive UI")
	if err := fs.Parse(args); err != nil {
		return err
	}

	consumer := client.New(*serverURL, nil)
	if *plain || !stdinIsTTY() {
		return runPlain(ctx, consumer, *videoURL, stdout)
	}

	p := tea.NewProgram(tui.New(consumer, *videoURL), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func runPlain(ctx context.Context, consumer *client.Consumer, url string, out io.Writer) error {
	last := pipeline.StepIdle
	st, err := consumer.Submit(ctx, url, func(s client.State) {
		if s.Step != last && s.Processing() {
			fmt.Fprintln(out, client.StepMessage(s.Step))
		}
		last = s.Step
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, client.StepMessage(st.Step))
	fmt.Fprintf(out, "\n== Transcript ==\n%s\n\n== Summary ==\n%s\n", st.Transcription, st.Summary)
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func stdinIsTTY() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
