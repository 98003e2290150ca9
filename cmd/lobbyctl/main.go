// Command lobbyctl joins or creates a lobby and follows it from the
// terminal.
//
//	lobbyctl create
//	lobbyctl join <connection-string>
//
// Then type: ready, unready, start, kick <member> [ban], show, leave.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bulleador/lobbysync/internal/config"
	"github.com/bulleador/lobbysync/internal/lobby"
	"github.com/bulleador/lobbysync/internal/lobbyapi"
	"github.com/bulleador/lobbysync/internal/logging"
	"github.com/bulleador/lobbysync/internal/model"
	"github.com/bulleador/lobbysync/internal/reconcile"
	"github.com/bulleador/lobbysync/internal/types"
	"github.com/bulleador/lobbysync/internal/ws"
)

var errLeft = errors.New("left lobby")

func main() {
	if err := run(os.Args[1:]); err != nil && !errors.Is(err, errLeft) {
		log.Fatal(err)
	}
}

func run(args []string) error {
	if len(args) == 0 || (args[0] == "join" && len(args) < 2) {
		return errors.New("usage: lobbyctl create | join <connection-string>")
	}

	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	self := model.EntityKey{ID: cfg.EntityID, Type: cfg.EntityType}
	api := lobbyapi.New(cfg.APIURL, self, &http.Client{Timeout: cfg.RequestTimeout}, logger)

	var lobbyID, connStr string
	switch args[0] {
	case "create":
		created, err := api.CreateLobby(ctx, types.CreateLobbyRequest{Owner: self})
		if err != nil {
			return fmt.Errorf("create lobby: %w", err)
		}
		lobbyID, connStr = created.LobbyID, created.ConnectionString
	case "join":
		joined, err := api.JoinLobby(ctx, args[1], nil)
		if err != nil {
			return fmt.Errorf("join lobby: %w", err)
		}
		lobbyID, connStr = joined.LobbyID, args[1]
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	fmt.Printf("lobby %s (code %s)\n", lobbyID, connStr)

	transport, err := ws.Dial(ctx, cfg.PubSubURL, self, logger)
	if err != nil {
		return err
	}
	defer transport.Close()

	l := lobby.NewLobby(ctx, lobby.Config{
		LobbyID:          lobbyID,
		ConnectionString: connStr,
		Self:             self,
		Service:          api,
		Transport:        transport,
		Logger:           logger,
		OnError: func(err error) {
			logger.Warn("lobby replica error", zap.Error(err))
		},
	})
	defer func() { l.Inbox() <- lobby.Shutdown{} }()

	events := make(chan reconcile.Event, 32)
	l.Inbox() <- lobby.Watch{ClientID: "console", Outbox: events}

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return transport.Run(ctx) })
	g.Go(func() error {
		ready := make(chan error, 1)
		l.Inbox() <- lobby.Initialise{Reply: ready}
		select {
		case err := <-ready:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
		show(l)

		for {
			select {
			case <-ctx.Done():
				return nil
			case evt, ok := <-events:
				if !ok {
					return errLeft
				}
				printEvent(evt)
				if evt.Type == reconcile.EvtLobbyLeft {
					return errLeft
				}
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if err := handle(l, strings.Fields(line)); err != nil {
					fmt.Println("error:", err)
				}
			}
		}
	})
	return g.Wait()
}

func handle(l *lobby.Lobby, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	reply := make(chan error, 1)
	switch fields[0] {
	case "ready", "unready":
		l.Inbox() <- lobby.SetReady{Ready: fields[0] == "ready", Reply: reply}
	case "start":
		l.Inbox() <- lobby.StartGame{Reply: reply}
	case "kick":
		if len(fields) < 2 {
			return errors.New("usage: kick <member> [ban]")
		}
		l.Inbox() <- lobby.Kick{MemberID: fields[1], PreventRejoin: len(fields) > 2 && fields[2] == "ban", Reply: reply}
	case "leave":
		l.Inbox() <- lobby.Leave{Reply: reply}
	case "show":
		show(l)
		return nil
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
	return <-reply
}

func show(l *lobby.Lobby) {
	reply := make(chan lobby.View, 1)
	l.Inbox() <- lobby.GetState{Reply: reply}
	v := <-reply

	fmt.Printf("state=%s owner=%s started=%t\n", v.State, v.Snapshot.Owner.ID, v.Snapshot.GameStarted())
	for _, m := range v.Snapshot.MemberList() {
		tag := ""
		switch {
		case v.Snapshot.IsOwner(m.ID()):
			tag = " (owner)"
		case m.IsReady():
			tag = " (ready)"
		}
		fmt.Printf("  %s%s\n", m.ID(), tag)
	}
}

func printEvent(evt reconcile.Event) {
	switch evt.Type {
	case reconcile.EvtMemberAdded:
		fmt.Printf("#%d %s joined\n", evt.ChangeNumber, evt.Member.ID())
	case reconcile.EvtMemberRemoved:
		fmt.Printf("#%d %s left\n", evt.ChangeNumber, evt.Member.ID())
	case reconcile.EvtMemberDataChanged:
		fmt.Printf("#%d %s ready=%t\n", evt.ChangeNumber, evt.Member.ID(), evt.Member.IsReady())
	case reconcile.EvtOwnerChanged:
		fmt.Printf("#%d %s is now the owner\n", evt.ChangeNumber, evt.Owner.ID)
	case reconcile.EvtLobbyDataChanged:
		fmt.Printf("#%d lobby data %v\n", evt.ChangeNumber, evt.LobbyData)
	case reconcile.EvtLobbyLeft:
		fmt.Printf("left lobby: %s\n", evt.Reason)
	}
}
