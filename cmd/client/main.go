package main

import (
	"bufio"
	"context"
	"flash-feed/domain"
	"flash-feed/feed"
	"flash-feed/infrastructure/grpc/client"
	"flash-feed/services"
	"flash-feed/ui"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const (
	commandRetry  = "/retry"
	commandLogout = "/logout"
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// A missing .env file is not an error, the environment may already be set.
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	conversation := domain.ConversationID(config.Conversation)
	if !conversation.Valid() {
		return exitConfig, fmt.Errorf("invalid conversation %q", config.Conversation)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := grpc.NewClient(config.ServerAddress, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	session := services.NewSession(client.NewAuthClient(conn), log)
	store := client.NewRemoteStore(conn, session, log, config.BufferSize)
	messageFeed := feed.New(store, session, conversation,
		feed.WithLogger(log),
		feed.WithSendTimeout(config.SendTimeout),
		feed.WithResubscribeInterval(config.ResubscribeInterval),
		feed.WithMaxBodyLength(config.MaxBodyLength),
		feed.WithBufferSize(config.BufferSize),
	)
	screen := ui.NewScreen(os.Stdout, config.Colours, messageFeed.IsOwn)
	input := bufio.NewScanner(os.Stdin)

	if err := logIn(ctx, config, session, screen, input); err != nil {
		return exitRuntime, err
	}
	user, _ := session.CurrentUser()
	screen.Header(fmt.Sprintf("%s as %s", conversation, user.Name()))
	screen.Info("Type a message and press enter. %s re-sends the last failed message, %s quits.",
		commandRetry, commandLogout)

	sub, err := messageFeed.Listen(ctx, screen.Message)
	if err != nil {
		return exitRuntime, fmt.Errorf("subscribe failed: %w", err)
	}
	defer sub.Close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		for input.Scan() {
			lines <- input.Text()
		}
	}()

	var failed *domain.Draft
	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case <-sub.Done():
			if err := sub.Err(); err != nil {
				return exitRuntime, fmt.Errorf("subscription ended: %w", err)
			}
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
				continue
			case line == commandLogout:
				session.Logout()
				screen.Info("Logged out")
				return exitOK, nil
			case line == commandRetry:
				if failed == nil {
					screen.Info("Nothing to retry")
					continue
				}
				failed = send(ctx, messageFeed, screen, *failed)
			default:
				failed = send(ctx, messageFeed, screen, domain.NewDraft(line))
			}
		}
	}
}

// send submits the draft and returns it when it failed, so that it can be retried as is.
func send(ctx context.Context, messageFeed *feed.MessageFeed, screen *ui.Screen, draft domain.Draft) *domain.Draft {
	if err := messageFeed.SendDraft(ctx, draft); err != nil {
		screen.Error(err)
		return &draft
	}
	return nil
}

func logIn(ctx context.Context, config Config, session *services.Session, screen *ui.Screen, input *bufio.Scanner) error {
	email, password := config.Email, config.Password
	if email == "" {
		email = prompt(screen, input, "Email: ")
	}
	if password == "" {
		password = prompt(screen, input, "Password: ")
	}
	if config.Register {
		if err := session.Register(ctx, email, password); err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}
		return nil
	}
	if err := session.Login(ctx, email, password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	return nil
}

func prompt(screen *ui.Screen, input *bufio.Scanner, label string) string {
	screen.Prompt(label)
	if !input.Scan() {
		return ""
	}
	return strings.TrimSpace(input.Text())
}
