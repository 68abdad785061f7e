// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/lorebook-cli/internal/model"
)

// =============================================================================
// ONE-SHOT ASK
// =============================================================================

// RunAsk answers a single query and exits: `lorebook "question"`. Tokens
// stream to stdout as they arrive; source metadata goes to stderr so the
// answer stays pipeable.
func RunAsk(app *App, query string) error {
	snaps, unsubscribe := app.Store.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		printed := 0
		for snap := range snaps {
			if !snap.IsStreaming {
				continue
			}
			last := snap.LastMessage()
			if last == nil || last.Role != model.RoleAssistant || last.IsError {
				continue
			}
			if len(last.Content) > printed {
				fmt.Print(last.Content[printed:])
				printed = len(last.Content)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			app.Engine.Cancel()
		}
	}()

	err := app.Engine.Ask(context.Background(), query)

	unsubscribe()
	<-done
	fmt.Println()

	if err != nil {
		return err
	}

	if IsStdoutTTY() {
		if last := app.Store.Snapshot().LastMessage(); last != nil && len(last.Citations) > 0 {
			fmt.Fprintf(os.Stderr, "%s\n", dimStyle.Render(
				fmt.Sprintf("[%d sources | %s]", len(last.Citations),
					last.TotalDuration.Round(time.Millisecond))))
		}
	}
	return nil
}
