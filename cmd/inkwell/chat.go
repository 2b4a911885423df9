package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/inkwell-ai/inkwell/pkg/chat"
	"github.com/inkwell-ai/inkwell/pkg/conversation"
	"github.com/inkwell-ai/inkwell/pkg/events"
	"github.com/inkwell-ai/inkwell/pkg/protocol"
	"github.com/inkwell-ai/inkwell/pkg/session"
)

func newChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive drafting session",
		Long: `Start an interactive chat with the drafting assistant.

Replies stream token by token. Slash commands:
  /chats            list saved chats
  /switch <n>       switch to chat number <n>
  /new              create a fresh chat
  /delete [n]       delete chat <n> (the active one when omitted)
  /edit <i> <text>  rewrite message <i> and regenerate from there
  /doc              show the current document
  /quit             leave`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd)
		},
	}
}

func runChat(cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	backend := newClient()
	state := conversation.NewState()
	sessionController := session.NewController(sessionID(cmd), backend, state)
	if err := sessionController.Bootstrap(ctx); err != nil {
		return err
	}

	router, err := events.NewEventRouter()
	if err != nil {
		return errors.Wrap(err, "could not create event router")
	}
	defer func() {
		_ = router.Close()
	}()

	out := cmd.OutOrStdout()
	router.AddHandler("render", events.TopicChatEvents, renderHandler(out))

	controller := chat.NewController(backend, sessionController,
		chat.WithSink(events.NewWatermillSink(router.Publisher, events.TopicChatEvents)),
		chat.WithPublisher(router.Publisher),
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(egCtx)
	})

	<-router.Running()

	printTranscript(out, state)
	repl(egCtx, cmd, controller, state)

	cancel()
	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// renderHandler prints streamed protocol events as they pass over the bus.
func renderHandler(out io.Writer) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		ev, err := protocol.NewEventFromJSON(msg.Payload)
		if err != nil {
			return err
		}

		switch e := ev.(type) {
		case *protocol.EventContent:
			fmt.Fprint(out, e.Content)
		case *protocol.EventFunctionCall:
			fmt.Fprintf(out, "\n· invoking %s…\n", e.FunctionName)
		case *protocol.EventFunctionResult:
			if _, ok := e.DocumentPayload(); ok {
				fmt.Fprintln(out, "· document updated (/doc to view)")
			}
		case *protocol.EventDocument:
			fmt.Fprintln(out, "· document updated (/doc to view)")
		case *protocol.EventError:
			fmt.Fprintf(out, "\n! %s\n", e.Message)
		}
		return nil
	}
}

func repl(ctx context.Context, cmd *cobra.Command, controller *chat.Controller, state *conversation.State) {
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := runSlashCommand(ctx, out, controller, state, line); quit {
				return
			}
			continue
		}

		if err := controller.Send(ctx, line); err != nil {
			fmt.Fprintf(out, "! %s\n", err)
			continue
		}
		fmt.Fprintln(out)
	}
}

func runSlashCommand(ctx context.Context, out io.Writer, controller *chat.Controller, state *conversation.State, line string) bool {
	fields := strings.Fields(line)
	command, args := fields[0], fields[1:]

	sessionController := controller.Session()

	switch command {
	case "/quit", "/exit", "/q":
		return true

	case "/chats":
		printChats(out, sessionController)

	case "/switch":
		index, err := chatIndexArg(args, sessionController)
		if err != nil {
			fmt.Fprintf(out, "! %s\n", err)
			return false
		}
		target := sessionController.Registry().Chats()[index]
		if err := controller.SwitchChat(ctx, target.ID); err != nil {
			fmt.Fprintf(out, "! %s\n", err)
			return false
		}
		fmt.Fprintf(out, "switched to %s\n", chatLabel(target.Title))
		printTranscript(out, state)

	case "/new":
		chatSummary, err := sessionController.CreateChat(ctx, "")
		if err != nil {
			fmt.Fprintf(out, "! %s\n", err)
			return false
		}
		fmt.Fprintf(out, "created %s\n", chatLabel(chatSummary.Title))

	case "/delete":
		chatID := sessionController.Registry().ActiveChatID()
		if len(args) > 0 {
			index, err := chatIndexArg(args, sessionController)
			if err != nil {
				fmt.Fprintf(out, "! %s\n", err)
				return false
			}
			chatID = sessionController.Registry().Chats()[index].ID
		}
		if chatID == "" {
			fmt.Fprintln(out, "! no chat to delete")
			return false
		}
		if err := sessionController.DeleteChat(ctx, chatID); err != nil {
			fmt.Fprintf(out, "! %s\n", err)
			return false
		}
		fmt.Fprintln(out, "deleted")
		printTranscript(out, state)

	case "/edit":
		if len(args) < 2 {
			fmt.Fprintln(out, "usage: /edit <index> <new text>")
			return false
		}
		index, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintf(out, "! not an index: %s\n", args[0])
			return false
		}
		newContent := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, "/edit"), " "+args[0]))
		if err := controller.EditMessage(ctx, index, newContent); err != nil {
			fmt.Fprintf(out, "! %s\n", err)
			return false
		}
		fmt.Fprintln(out)

	case "/doc":
		doc, present := state.Document.Value()
		if !present {
			fmt.Fprintln(out, "no document yet")
			return false
		}
		fmt.Fprintln(out, doc)

	default:
		fmt.Fprintf(out, "unknown command %s\n", command)
	}
	return false
}

func chatIndexArg(args []string, sessionController *session.Controller) (int, error) {
	if len(args) < 1 {
		return 0, errors.New("chat number required, see /chats")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, errors.Errorf("not a chat number: %s", args[0])
	}
	if n < 1 || n > sessionController.Registry().Len() {
		return 0, errors.Errorf("chat number %d out of range", n)
	}
	return n - 1, nil
}

func chatLabel(title string) string {
	if title == "" {
		return "untitled chat"
	}
	return fmt.Sprintf("%q", title)
}

func printChats(out io.Writer, sessionController *session.Controller) {
	active := sessionController.Registry().ActiveChatID()
	for i, c := range sessionController.Registry().Chats() {
		marker := " "
		if c.ID == active {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %2d. %s\n", marker, i+1, chatLabel(c.Title))
	}
}

func printTranscript(out io.Writer, state *conversation.State) {
	// indices match the full transcript so that /edit <i> lines up
	for i, msg := range state.Messages {
		if msg.Role == conversation.RoleTool {
			continue
		}
		prefix := "  "
		switch {
		case msg.Role == conversation.RoleUser:
			prefix = fmt.Sprintf("%d>", i)
		case msg.IsError:
			prefix = " !"
		case msg.IsFunctionCall:
			prefix = " ·"
		}
		fmt.Fprintf(out, "%s %s\n", prefix, msg.Content)
	}
}
