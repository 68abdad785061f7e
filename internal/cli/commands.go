// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/lorebook-cli/internal/config"
	"github.com/jeranaias/lorebook-cli/internal/model"
)

// commandTimeout bounds the conversation management calls issued from
// slash commands.
const commandTimeout = 30 * time.Second

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes a slash command. Returns false when the
// REPL should exit.
func (r *repl) handleSlashCommand(cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		r.printHelp()
		return true, nil

	case "/new", "/n":
		return true, r.cmdNew(args)

	case "/list", "/l":
		return true, r.cmdList(args)

	case "/load":
		return true, r.cmdLoad(args)

	case "/rename":
		return true, r.cmdRename(args)

	case "/delete", "/del":
		return true, r.cmdDelete(args)

	case "/regen", "/r":
		return true, r.cmdRegen()

	case "/sources", "/citations", "/c":
		r.printSources()
		return true, nil

	case "/history":
		return true, r.cmdHistory(args)

	case "/stream":
		return true, r.cmdStream(args)

	case "/status", "/s":
		r.printStatus()
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

func (r *repl) cmdNew(args []string) error {
	title := strings.Join(args, " ")

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	meta, err := r.app.Engine.CreateConversation(ctx, title)
	if err != nil {
		return err
	}
	fmt.Printf("%s New conversation %s\n",
		commandStyle.Render("[OK]"), meta.ID)
	return nil
}

func (r *repl) cmdList(args []string) error {
	force := len(args) > 0 && strings.EqualFold(args[0], "force")

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	list, err := r.app.Engine.ListConversations(ctx, 0, 50, force)
	if err != nil {
		return err
	}
	if list == nil {
		fmt.Println(warningStyle.Render("[Throttled]") +
			infoStyle.Render(" list was fetched recently; use /list force to refresh"))
		return nil
	}
	if len(list) == 0 {
		fmt.Println(infoStyle.Render("[No conversations yet]"))
		return nil
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("Conversations"))
	fmt.Println(renderSeparator(25))
	active := r.app.Store.ConversationID()
	for _, meta := range list {
		marker := "  "
		if meta.ID == active {
			marker = commandStyle.Render("* ")
		}
		fmt.Printf("%s%s  %s %s\n", marker, meta.ID,
			meta.DisplayTitle(),
			dimStyle.Render(fmt.Sprintf("(%d msgs, %s)", meta.MessageCount, meta.UpdatedAt.Format("2006-01-02"))))
	}
	fmt.Println()
	return nil
}

func (r *repl) cmdLoad(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /load CONVERSATION_ID")
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := r.app.Engine.LoadConversation(ctx, args[0]); err != nil {
		return err
	}

	snap := r.app.Store.Snapshot()
	fmt.Printf("%s Loaded %s (%d messages)\n",
		commandStyle.Render("[OK]"), args[0], len(snap.Messages))
	r.printTranscriptTail(snap.Messages, 4)
	return nil
}

func (r *repl) cmdRename(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: /rename CONVERSATION_ID NEW_TITLE")
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	meta, err := r.app.Engine.RenameConversation(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Printf("%s Renamed to %q\n", commandStyle.Render("[OK]"), meta.Title)
	return nil
}

func (r *repl) cmdDelete(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /delete CONVERSATION_ID")
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := r.app.Engine.DeleteConversation(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("%s Deleted %s\n", commandStyle.Render("[OK]"), args[0])
	return nil
}

func (r *repl) cmdRegen() error {
	snap := r.app.Store.Snapshot()
	var targetID string
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		if snap.Messages[i].Role == model.RoleAssistant {
			targetID = snap.Messages[i].ID
			break
		}
	}
	if targetID == "" {
		return fmt.Errorf("nothing to regenerate yet")
	}

	select {
	case <-r.quiet:
	default:
	}

	fmt.Println()
	if err := r.app.Engine.Regenerate(context.Background(), targetID); err != nil {
		r.reportAskError(err)
		return nil
	}

	select {
	case <-r.quiet:
	case <-time.After(settleWait):
	}
	fmt.Println()
	r.printAnswerMeta()
	return nil
}

// cmdHistory reads the local cache: without arguments it lists cached
// conversations, with an ID it loads that conversation from the cache
// (useful when the server is unreachable).
func (r *repl) cmdHistory(args []string) error {
	if r.app.History == nil {
		return fmt.Errorf("local history cache is disabled")
	}

	if len(args) == 0 {
		list, err := r.app.History.List(50)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println(infoStyle.Render("[Local cache is empty; /load a conversation to cache it]"))
			return nil
		}
		fmt.Println()
		fmt.Println(titleStyle.Render("Cached Conversations"))
		fmt.Println(renderSeparator(25))
		for _, meta := range list {
			fmt.Printf("  %s  %s %s\n", meta.ID, meta.DisplayTitle(),
				dimStyle.Render(fmt.Sprintf("(%d msgs)", meta.MessageCount)))
		}
		fmt.Println()
		return nil
	}

	meta, msgs, err := r.app.History.Get(args[0])
	if err != nil {
		return err
	}
	r.app.Store.Load(meta.ID, msgs)
	fmt.Printf("%s Loaded %s from local cache (%d messages)\n",
		commandStyle.Render("[OK]"), meta.ID, len(msgs))
	r.printTranscriptTail(msgs, 4)
	return nil
}

func (r *repl) cmdStream(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /stream on|off")
	}
	switch strings.ToLower(args[0]) {
	case "on":
		r.app.Settings.SetStreaming(true)
		fmt.Println(commandStyle.Render("[OK]") + infoStyle.Render(" streaming enabled"))
	case "off":
		r.app.Settings.SetStreaming(false)
		fmt.Println(commandStyle.Render("[OK]") + infoStyle.Render(" streaming disabled"))
	default:
		return fmt.Errorf("usage: /stream on|off")
	}
	return nil
}

// =============================================================================
// DISPLAY
// =============================================================================

func (r *repl) printWelcome() {
	cfg := config.Global()

	fmt.Println()
	fmt.Println(titleStyle.Render("lorebook chat"))
	fmt.Println(renderSeparator(30))
	fmt.Printf("%s %s\n", infoStyle.Render("Server:"), commandStyle.Render(cfg.Server.BaseURL))
	if r.app.Client.IsConfigured() {
		fmt.Printf("%s %s\n", infoStyle.Render("Token:"),
			commandStyle.Render(r.app.Client.TokenFingerprint()))
	} else {
		fmt.Printf("%s %s\n", infoStyle.Render("Token:"),
			warningStyle.Render("not configured"))
	}
	mode := "streaming"
	if !r.app.Settings.Resolve(cfg).Streaming {
		mode = "one-shot"
	}
	fmt.Printf("%s %s\n", infoStyle.Render("Mode:"), commandStyle.Render(mode))
	fmt.Println()
	fmt.Println(infoStyle.Render("Ask about your notes. Commands: /help, /quit"))
	fmt.Println()
}

func (r *repl) printHelp() {
	fmt.Println()
	fmt.Println(titleStyle.Render("Available Commands"))
	fmt.Println(renderSeparator(20))
	fmt.Println()

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/new [title]", "Start a new conversation"},
		{"/list [force]", "List conversations on the server"},
		{"/load ID", "Load a conversation's history"},
		{"/rename ID TITLE", "Rename a conversation"},
		{"/delete ID", "Delete a conversation"},
		{"/regen, /r", "Regenerate the last answer"},
		{"/sources, /c", "Show sources for the last answer"},
		{"/history [ID]", "List or load from the local cache"},
		{"/stream on|off", "Toggle streaming for this session"},
		{"/status, /s", "Show connection and session state"},
		{"/quit, /q", "Exit"},
	}

	for _, c := range commands {
		fmt.Printf("  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-18s", c.cmd)),
			infoStyle.Render(c.desc))
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Tip: Ctrl+C cancels the current answer, Ctrl+D exits"))
	fmt.Println()
}

func (r *repl) printStatus() {
	cfg := config.Global()
	snap := r.app.Store.Snapshot()
	settings := r.app.Settings.Resolve(cfg)

	fmt.Println()
	fmt.Println(titleStyle.Render("Session Status"))
	fmt.Println(renderSeparator(20))
	fmt.Printf("  %s %s\n", infoStyle.Render("Server:"), cfg.Server.BaseURL)

	conv := snap.ConversationID
	if conv == "" {
		conv = dimStyle.Render("(none; first query creates one)")
	}
	fmt.Printf("  %s %s\n", infoStyle.Render("Conversation:"), conv)
	fmt.Printf("  %s %d\n", infoStyle.Render("Messages:"), len(snap.Messages))
	fmt.Printf("  %s streaming=%t max_sources=%d min_similarity=%.2f\n",
		infoStyle.Render("Settings:"), settings.Streaming, settings.MaxSources, settings.MinSimilarity)
	if snap.Err != nil {
		fmt.Printf("  %s %v\n", infoStyle.Render("Last error:"), snap.Err)
	}
	fmt.Println()
}

// printTranscriptTail shows the last few turns after loading a
// conversation, so the user sees where they left off.
func (r *repl) printTranscriptTail(msgs []*model.Message, n int) {
	start := len(msgs) - n
	if start < 0 {
		start = 0
	}
	if start > 0 {
		fmt.Println(dimStyle.Render(fmt.Sprintf("  ... %d earlier messages", start)))
	}
	for _, m := range msgs[start:] {
		fmt.Printf("  %s %s\n",
			infoStyle.Render(m.Role.DisplayName()+":"), m.Preview(100))
	}
}
