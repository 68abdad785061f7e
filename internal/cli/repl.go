// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// repl.go - Interactive REPL for lorebook-cli.
//
// Reads queries with line editing and history, streams answers to stdout
// token by token, and exposes conversation management via slash commands.
//
// Interactive Commands:
//   /help, /h           Show available commands
//   /new [title]        Start a new conversation
//   /list [force]       List conversations on the server
//   /load ID            Load a conversation's history
//   /rename ID TITLE    Rename a conversation
//   /delete ID          Delete a conversation
//   /regen              Regenerate the last answer
//   /sources            Show the sources behind the last answer
//   /history [ID]       Show (or load from) the local cache
//   /stream on|off      Toggle streaming for this session
//   /status, /s         Show connection and session state
//   /quit, /q           Exit
//   Ctrl+C              Cancel the in-flight answer
//   Ctrl+D              Exit
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/lorebook-cli/internal/api"
	"github.com/jeranaias/lorebook-cli/internal/engine"
	"github.com/jeranaias/lorebook-cli/internal/history"
	"github.com/jeranaias/lorebook-cli/internal/model"
	"github.com/jeranaias/lorebook-cli/internal/store"
)

// settleWait caps how long the REPL waits for the printer to drain after
// a query finishes.
const settleWait = 3 * time.Second

// =============================================================================
// APP WIRING
// =============================================================================

// App bundles the wired components the CLI operates on.
type App struct {
	Engine   *engine.Engine
	Store    *store.Store
	Client   *api.Client
	History  *history.Cache
	Settings *SettingsState
	Logger   *zap.Logger
}

// =============================================================================
// REPL
// =============================================================================

type repl struct {
	app   *App
	input *LineReader

	// quiet is signalled by the printer when a query settles, so the
	// prompt never interleaves with late tokens.
	quiet chan struct{}
}

// RunREPL starts the interactive loop and blocks until the user exits.
func RunREPL(app *App) error {
	r := &repl{
		app:   app,
		input: NewLineReader(),
		quiet: make(chan struct{}, 1),
	}
	defer r.input.Close()

	snaps, unsubscribe := app.Store.Subscribe()
	defer unsubscribe()
	go r.runPrinter(snaps)

	// First Ctrl+C during an answer cancels it; at the prompt, liner
	// surfaces it as ErrPromptAborted instead.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			app.Engine.Cancel()
		}
	}()

	r.printWelcome()

	for {
		input, err := r.input.ReadInput(promptStyle.Render("lorebook> "))
		if err != nil {
			// Ctrl+C or Ctrl+D at the prompt exits.
			fmt.Println()
			fmt.Println(infoStyle.Render("Goodbye!"))
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			keepGoing, err := r.handleSlashCommand(input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			}
			if !keepGoing {
				fmt.Println(infoStyle.Render("Goodbye!"))
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			fmt.Println(infoStyle.Render("Goodbye!"))
			return nil
		}

		r.runQuery(input)
	}
}

// =============================================================================
// QUERY EXECUTION
// =============================================================================

// runQuery sends a query and waits for the answer to finish printing.
func (r *repl) runQuery(query string) {
	// Drop any stale settle signal from a previous query.
	select {
	case <-r.quiet:
	default:
	}

	fmt.Println()

	err := r.app.Engine.Ask(context.Background(), query)
	if err != nil {
		r.reportAskError(err)
		return
	}

	select {
	case <-r.quiet:
	case <-time.After(settleWait):
	}

	fmt.Println()
	r.printAnswerMeta()
}

func (r *repl) reportAskError(err error) {
	switch {
	case errors.Is(err, engine.ErrStreamActive):
		fmt.Fprintf(os.Stderr, "%s an answer is still streaming; cancel it with Ctrl+C first\n",
			warningStyle.Render("[Busy]"))
	case errors.Is(err, api.ErrNotConfigured):
		fmt.Fprintf(os.Stderr, "%s no API token configured; set server.api_token or LOREBOOK_API_TOKEN\n",
			errorStyle.Render("[Error]"))
	case errors.Is(err, api.ErrAuthFailed):
		fmt.Fprintf(os.Stderr, "%s authentication failed; check your API token\n",
			errorStyle.Render("[Error]"))
	case errors.Is(err, api.ErrRateLimited):
		fmt.Fprintf(os.Stderr, "%s the server is rate limiting requests; try again shortly\n",
			warningStyle.Render("[Rate limited]"))
	default:
		// The failure is already recorded on the message; just surface it.
		select {
		case <-r.quiet:
		case <-time.After(settleWait):
		}
		fmt.Fprintf(os.Stderr, "\n%s %v\n", errorStyle.Render("[Error]"), err)
	}
}

// =============================================================================
// TOKEN PRINTER
// =============================================================================

// runPrinter prints assistant content deltas as snapshots arrive. It only
// writes while a query is in flight, so loading a conversation never
// replays its last answer to stdout.
func (r *repl) runPrinter(snaps <-chan store.Snapshot) {
	printed := make(map[string]int)
	wasActive := false

	for snap := range snaps {
		active := snap.IsStreaming
		if active {
			if last := snap.LastMessage(); last != nil && last.Role == model.RoleAssistant && !last.IsError {
				n := printed[last.ID]
				if len(last.Content) > n {
					fmt.Print(last.Content[n:])
					printed[last.ID] = len(last.Content)
				}
			}
		}

		if wasActive && !active {
			printed = make(map[string]int)
			select {
			case r.quiet <- struct{}{}:
			default:
			}
		}
		wasActive = active
	}
}

// =============================================================================
// ANSWER METADATA
// =============================================================================

// printAnswerMeta shows the grounding and timing of the answer just
// printed.
func (r *repl) printAnswerMeta() {
	snap := r.app.Store.Snapshot()
	last := snap.LastMessage()
	if last == nil || last.Role != model.RoleAssistant || last.IsError {
		return
	}

	var parts []string
	if len(last.Citations) > 0 {
		parts = append(parts, fmt.Sprintf("%d sources (%d cited)", len(last.Citations), len(last.UsedCitationIndices)))
	}
	if last.ConfidenceLevel != "" {
		parts = append(parts, "confidence "+last.ConfidenceLevel)
	}
	if last.TotalDuration > 0 {
		parts = append(parts, last.TotalDuration.Round(time.Millisecond).String())
	}
	if len(parts) > 0 {
		fmt.Println(dimStyle.Render("[" + strings.Join(parts, " | ") + "]"))
	}
	if len(last.Citations) > 0 {
		fmt.Println(dimStyle.Render("Use /sources to inspect the sources."))
	}
}

// printSources lists the active citation panel and the preview selection.
func (r *repl) printSources() {
	snap := r.app.Store.Snapshot()
	if len(snap.ActiveCitations) == 0 {
		fmt.Println(infoStyle.Render("[No sources for the current answer]"))
		return
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("Sources"))
	fmt.Println(renderSeparator(20))
	for i, c := range snap.ActiveCitations {
		title := c.Title
		if title == "" {
			title = c.SourceID
		}
		line := fmt.Sprintf("  [%d] %s %s (%.2f)", i+1,
			commandStyle.Render(string(c.SourceType)), title, c.RelevanceScore)
		if c.ArtifactFilename != "" {
			line += dimStyle.Render(" " + c.ArtifactFilename)
		}
		fmt.Println(line)
	}
	if snap.Preview != nil {
		fmt.Printf("%s %s %q (id %s)\n",
			infoStyle.Render("Preview:"), snap.Preview.Type, snap.Preview.Title, snap.Preview.ID)
	}
	fmt.Println()
}
