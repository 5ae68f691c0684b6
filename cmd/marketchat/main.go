// Command marketchat is a terminal client for marketplace conversations.
//
//	marketchat [flags] inbox
//	marketchat [flags] tail <conversation-id>
//	marketchat [flags] send <conversation-id> <text...>
//	marketchat [flags] contact <listing-id> <seller-id> <text...>
//
// Credentials come from -email/-password or a stored token in MARKET_TOKEN.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"robot-market/internal/client"
	"robot-market/internal/msgsync"
	"robot-market/internal/observability"
)

type command struct {
	name string
	args []string
}

var errUsage = errors.New("usage: marketchat [flags] inbox | tail <conversation> | send <conversation> <text> | contact <listing> <seller> <text>")

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, errUsage
	}
	cmd := command{name: args[0], args: args[1:]}
	need := map[string]int{"inbox": 0, "tail": 1, "send": 2, "contact": 3}
	n, ok := need[cmd.name]
	if !ok || len(cmd.args) < n {
		return command{}, errUsage
	}
	switch cmd.name {
	case "send":
		cmd.args = []string{cmd.args[0], strings.Join(cmd.args[1:], " ")}
	case "contact":
		cmd.args = []string{cmd.args[0], cmd.args[1], strings.Join(cmd.args[2:], " ")}
	}
	return cmd, nil
}

func main() {
	api := flag.String("api", envOr("MARKET_API", "http://localhost:8083"), "marketplace base url")
	email := flag.String("email", os.Getenv("MARKET_EMAIL"), "account email")
	password := flag.String("password", os.Getenv("MARKET_PASSWORD"), "account password")
	timeout := flag.Duration("timeout", 15*time.Second, "per-request timeout")
	flag.Parse()

	logger := observability.NewLogger(envOr("APP_ENV", "local"))

	cmd, err := parseCommand(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cmd, *api, *email, *password, *timeout, logger, os.Stdout); err != nil {
		logger.Error("marketchat failed", "command", cmd.name, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd command, api, email, password string, timeout time.Duration, logger *slog.Logger, out io.Writer) error {
	base, err := client.New(api, client.WithLogger(logger))
	if err != nil {
		return err
	}

	var session msgsync.Session
	if token := os.Getenv("MARKET_TOKEN"); token != "" {
		session, err = base.RestoreSession(ctx, token)
	} else {
		session, err = base.SignIn(ctx, email, password)
	}
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	store := msgsync.NewStore(base.ForSession(session), session, msgsync.WithLogger(logger))
	defer store.Close()

	opCtx := func() (context.Context, context.CancelFunc) { return context.WithTimeout(ctx, timeout) }

	switch cmd.name {
	case "inbox":
		c, cancel := opCtx()
		defer cancel()
		convs, err := store.ListConversations(c)
		if err != nil {
			return err
		}
		for _, conv := range convs {
			fmt.Fprintf(out, "%s  %-20s  %s  %s\n", conv.ID, conv.Counterparty.Name, conv.LastActivity.Local().Format(time.DateTime), conv.Preview)
		}
	case "send":
		c, cancel := opCtx()
		defer cancel()
		msg, err := store.Send(c, cmd.args[0], cmd.args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "sent %s\n", msg.ID)
	case "contact":
		c, cancel := opCtx()
		defer cancel()
		conversationID, msg, err := store.ContactSeller(c, cmd.args[0], cmd.args[1], cmd.args[2])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "conversation %s, sent %s\n", conversationID, msg.ID)
	case "tail":
		return tail(ctx, store, cmd.args[0], timeout, out)
	}
	return nil
}

func tail(ctx context.Context, store *msgsync.Store, conversationID string, timeout time.Duration, out io.Writer) error {
	watch, err := store.SubscribeMessages(ctx, conversationID)
	if err != nil {
		return err
	}
	defer watch.Close()

	loadCtx, cancel := context.WithTimeout(ctx, timeout)
	msgs, err := store.LoadMessages(loadCtx, conversationID)
	cancel()
	if err != nil {
		return err
	}

	printed := make(map[string]struct{}, len(msgs))
	show := func(list []msgsync.Message) {
		for _, m := range list {
			if _, ok := printed[m.ID]; ok || m.Pending {
				continue
			}
			printed[m.ID] = struct{}{}
			fmt.Fprintf(out, "[%s] %-5s %s\n", m.CreatedAt.Local().Format(time.TimeOnly), m.Sender, m.Content)
		}
	}
	show(msgs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-watch.Done():
			return errors.New("realtime subscription closed")
		case change, ok := <-store.Updates():
			if !ok {
				return nil
			}
			if change.ConversationID == conversationID && change.Scope.Has(msgsync.ScopeTimeline) {
				show(store.Messages(conversationID))
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
