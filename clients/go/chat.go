package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Talha-Tahir2001/CollabSphere/clients/go/collabsphere"
	"github.com/Talha-Tahir2001/CollabSphere/clients/go/collabsphere/chat"
	"github.com/Talha-Tahir2001/CollabSphere/clients/go/collabsphere/live"
)

const livePingInterval = 20 * time.Second

var errQuit = errors.New("quit")

func (a *app) newManager(onError func(roomID string, err error)) *chat.Manager {
	return chat.NewManager(chat.Config{
		Dial:             chat.WebSocket(a.cfg.LiveURL, live.Options{Logger: a.logger, PingInterval: livePingInterval}),
		API:              chat.REST(a.client),
		Auth:             a.auth,
		Logger:           a.logger,
		OnError:          onError,
		ReconnectInitial: a.cfg.ReconnectInitial,
		ReconnectMax:     a.cfg.ReconnectMax,
		ReconnectGiveUp:  a.cfg.ReconnectGiveUp,
	})
}

func newPostCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "post <workspace-id> <message>",
		Short: "Post a message and relay it to the room",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := a.newManager(nil)
			defer func() { _ = mgr.Shutdown() }()

			s, err := mgr.OpenCurrent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			msg, err := s.Send(cmd.Context(), strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Printf("Posted %s\n", msg.ID)
			return nil
		},
	}
}

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <workspace-id>",
		Short: "Join a workspace room interactively",
		Long: `Join a workspace room. Lines typed are sent to the room.

  /older   load older messages
  /quit    leave`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runChat(ctx, args[0])
		},
	}
}

func (a *app) runChat(ctx context.Context, roomID string) error {
	ctx, cancel := context.WithCancelCause(ctx)

	mgr := a.newManager(func(_ string, err error) {
		fmt.Fprintf(os.Stderr, "! %s: %v\n", collabsphere.KindOf(err), err)
		if collabsphere.KindOf(err) == collabsphere.KindAuthRequired {
			cancel(err)
		}
	})
	defer func() {
		cancel(nil)
		_ = mgr.Shutdown()
	}()

	s, err := mgr.OpenCurrent(ctx, roomID)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	changes, dispose := watchStore(gctx, s.Store())
	defer dispose()

	lines := make(chan string)
	go readLines(ctx, os.Stdin, lines)

	fmt.Fprintf(os.Stderr, "Joined %s as %s. /quit to leave.\n", roomID, s.Identity().Username)

	g.Go(func() error {
		return render(gctx, s, changes)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return errQuit
				}
				if err := handleLine(gctx, s, line); err != nil {
					return err
				}
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, errQuit) {
		err = nil
	}
	if cause := context.Cause(ctx); err == nil && cause != nil && !errors.Is(cause, context.Canceled) {
		err = cause
	}
	return err
}

// watchStore forwards store changes until ctx ends. The watcher runs on the
// session event loop, so once the reader is gone changes are dropped rather
// than blocking it.
func watchStore(ctx context.Context, st *chat.Store) (<-chan chat.Change, func()) {
	changes := make(chan chat.Change, 256)
	dispose := st.Subscribe(func(c chat.Change) {
		select {
		case changes <- c:
		case <-ctx.Done():
		}
	})
	return changes, dispose
}

func handleLine(ctx context.Context, s *chat.Session, line string) error {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return nil
	case "/quit":
		return errQuit
	case "/older":
		n, err := s.LoadOlder(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "! load older:", err)
			return nil
		}
		fmt.Fprintf(os.Stderr, "(%d older messages)\n", n)
		return nil
	}

	if _, err := s.Send(ctx, line); err != nil {
		if errors.Is(err, collabsphere.ErrSessionClosed) {
			return err
		}
		fmt.Fprintln(os.Stderr, "! not sent:", err)
	}
	return nil
}

// render prints messages as they enter the store. Messages already in the
// store when rendering starts are printed first.
func render(ctx context.Context, s *chat.Session, changes <-chan chat.Change) error {
	printed := make(map[string]struct{})
	show := func(c chat.Change) {
		switch c.Type {
		case chat.ChangeInserted:
			if _, ok := printed[c.Message.ID]; ok {
				return
			}
			printed[c.Message.ID] = struct{}{}
			fmt.Println(formatMessage(c.Message))
		case chat.ChangePendingDropped:
			fmt.Fprintf(os.Stderr, "! dropped: %s\n", c.Pending.Content)
		}
	}

	for _, msg := range s.Store().Messages() {
		show(chat.Change{Type: chat.ChangeInserted, Message: msg})
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-changes:
			show(c)
		}
	}
}

func readLines(ctx context.Context, f *os.File, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		select {
		case out <- sc.Text():
		case <-ctx.Done():
			return
		}
	}
}
