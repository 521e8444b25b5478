package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tailor/internal/api"
	"tailor/internal/progress"
	"tailor/internal/tracker"
)

// errStreamClosed reports a progress stream that ended without a terminal
// event, usually because the daemon tore down an idle channel.
var errStreamClosed = errors.New("progress stream closed before the run finished")

type watchOptions struct {
	requestID  string
	stageNames []string
	plain      bool
	jsonOut    bool
	// start runs once the subscription is confirmed. Streaming only happens
	// for runs that have a subscriber when each stage begins.
	start func(context.Context) error
}

type streamItem struct {
	event progress.Event
	err   error
}

func watchRun(cmd *cobra.Command, client *api.Client, opts watchOptions, baseURL string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	items := make(chan streamItem, 64)
	go func() {
		defer close(items)
		for event, err := range client.Progress(ctx, opts.requestID) {
			select {
			case items <- streamItem{event: event, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	first, ok := <-items
	if !ok {
		return errStreamClosed
	}
	if first.err != nil {
		return wrapDialError(first.err, baseURL)
	}
	if opts.start != nil {
		if err := opts.start(ctx); err != nil {
			return wrapDialError(err, baseURL)
		}
	}

	tr := tracker.New(opts.requestID, opts.stageNames...)
	out := cmd.OutOrStdout()
	switch {
	case opts.jsonOut:
		return watchJSON(out, tr, first.event, items)
	case !opts.plain && shouldColorize(out):
		return watchInteractive(ctx, cmd, tr, first.event, items)
	default:
		return watchPlain(out, tr, first.event, items)
	}
}

func watchJSON(out io.Writer, tr *tracker.Tracker, first progress.Event, items <-chan streamItem) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	tr.Apply(first)
	if err := enc.Encode(first); err != nil {
		return err
	}
	for item := range items {
		if item.err != nil {
			return item.err
		}
		tr.Apply(item.event)
		if err := enc.Encode(item.event); err != nil {
			return err
		}
	}
	return finishWatch(tr)
}

func watchPlain(out io.Writer, tr *tracker.Tracker, first progress.Event, items <-chan streamItem) error {
	tr.Apply(first)
	fmt.Fprintf(out, "Following %s\n", tr.RequestID())
	midLine := false
	for item := range items {
		if item.err != nil {
			return item.err
		}
		event := item.event
		if !tr.Apply(event) {
			continue
		}
		if event.Type != progress.EventStepChunk && midLine {
			fmt.Fprintln(out)
			midLine = false
		}
		switch event.Type {
		case progress.EventStepStart:
			fmt.Fprintf(out, "> %s (%d/%d)\n", stageLabel(event.Stage), event.StageIndex+1, tr.Overall().Total)
		case progress.EventStepChunk:
			fmt.Fprint(out, event.Chunk)
			midLine = !strings.HasSuffix(event.Chunk, "\n")
		case progress.EventStepComplete:
			detail := []string{valueOrDash(event.ParseResult)}
			if event.Tokens != nil {
				detail = append(detail, formatTokens(event.Tokens.Total)+" tokens")
			}
			detail = append(detail, formatDurationMs(event.DurationMs))
			fmt.Fprintf(out, "done %s: %s\n", stageLabel(event.Stage), strings.Join(detail, ", "))
		case progress.EventError:
			fmt.Fprintf(out, "error: %s\n", event.Message)
		}
	}
	if midLine {
		fmt.Fprintln(out)
	}
	if tr.Done() {
		fmt.Fprintln(out)
		fmt.Fprint(out, tr.Transcript())
		printOverall(out, tr.RequestID(), tr.Overall())
	}
	return finishWatch(tr)
}

func printOverall(out io.Writer, requestID string, overall tracker.Overall) {
	fmt.Fprintf(out, "Status: %s (%d/%d stages, %s tokens, %s)\n",
		overall.Status, overall.Completed, overall.Total,
		formatTokens(overall.Tokens.Total), formatDurationMs(overall.DurationMs))
	if overall.Status != tracker.StatusCompleted {
		return
	}
	if overall.Output == nil {
		fmt.Fprintf(out, "Output: tailor runs show %s\n", requestID)
		return
	}
	fmt.Fprintln(out, "Output:")
	fmt.Fprintln(out, formatJSON(overall.Output))
}

func finishWatch(tr *tracker.Tracker) error {
	if !tr.Done() {
		return errStreamClosed
	}
	overall := tr.Overall()
	if overall.Status != tracker.StatusError {
		return nil
	}
	if overall.FailedStage != "" {
		return fmt.Errorf("run %s failed at stage %s: %s", tr.RequestID(), overall.FailedStage, overall.Error)
	}
	return fmt.Errorf("run %s failed: %s", tr.RequestID(), overall.Error)
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var plain bool
	cmd := &cobra.Command{
		Use:   "watch <requestId>",
		Short: "Follow a run's progress",
		Long: "Watch attaches to a run's progress stream. A run that already finished\n" +
			"reports its terminal event immediately.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchRun(cmd, ctx.client(), watchOptions{
				requestID: strings.TrimSpace(args[0]),
				plain:     plain,
				jsonOut:   jsonOut,
			}, ctx.baseURL())
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print events as NDJSON")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print plain progress lines instead of the interactive view")
	return cmd
}
