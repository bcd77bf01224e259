package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/mahaj/chat-session/pkg/auth"
	"github.com/mahaj/chat-session/pkg/chatclient"
	"github.com/mahaj/chat-session/pkg/config"
	"github.com/mahaj/chat-session/pkg/logging"
	"github.com/mahaj/chat-session/pkg/transport/ws"
)

type flags struct {
	Addr       string
	API        string
	User       string
	Room       string
	Token      string
	ConfigPath string
	LogLevel   string
	LogFile    string
}

func main() {
	f := &flags{}

	app := &cli.Command{
		Name:  "chat",
		Usage: "Join a chat room from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "gateway service address",
				Sources:     cli.EnvVars("CHAT_ADDR"),
				Value:       "localhost:8080",
				Destination: &f.Addr,
			},
			&cli.StringFlag{
				Name:        "api",
				Usage:       "api service address",
				Sources:     cli.EnvVars("CHAT_API"),
				Value:       "http://localhost:8081",
				Destination: &f.API,
			},
			&cli.StringFlag{
				Name:        "user",
				Aliases:     []string{"u"},
				Usage:       "user id",
				Sources:     cli.EnvVars("CHAT_USER"),
				Value:       "user1",
				Destination: &f.User,
			},
			&cli.StringFlag{
				Name:        "room",
				Aliases:     []string{"r"},
				Usage:       "room id",
				Value:       "general",
				Destination: &f.Room,
			},
			&cli.StringFlag{
				Name:        "token",
				Usage:       "use this token instead of logging in",
				Sources:     cli.EnvVars("CHAT_TOKEN"),
				Destination: &f.Token,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to a YAML file with reconnect and typing settings",
				Sources:     cli.EnvVars("CHAT_CONFIG"),
				Destination: &f.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("CHAT_LOG_LEVEL"),
				Value:       "warn",
				Destination: &f.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (optional)",
				Sources:     cli.EnvVars("CHAT_LOG_FILE"),
				Destination: &f.LogFile,
			},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			return run(ctx, f)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f *flags) error {
	logFile, err := logging.Setup(f.LogLevel, f.LogFile)
	if err != nil {
		return err
	}
	defer logFile.Close()

	tuning, err := config.LoadClient(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var source auth.TokenSource = auth.LoginSource{APIAddr: f.API, UserID: f.User}
	if f.Token != "" {
		source = auth.StaticToken(f.Token)
	}
	token, err := source.Token(ctx)
	if err != nil {
		return err
	}

	con := newConsole(os.Stdout)
	u := url.URL{Scheme: "ws", Host: f.Addr, Path: "/ws"}
	client := chatclient.New(ws.New(log.Logger), chatclient.Config{
		URL:          u.String(),
		UserID:       f.User,
		Backoff:      tuning.Reconnect.Backoff(),
		DialTimeout:  tuning.DialTimeout,
		TypingQuiet:  tuning.Typing.Quiet,
		TypingExpiry: tuning.Typing.Expiry,
		Logger:       log.Logger,
		Observer:     con,
	})
	defer client.Disconnect()

	room, err := client.JoinRoom(f.Room)
	if err != nil {
		return err
	}
	if err := client.SubscribePresence(nil); err != nil {
		return err
	}

	con.printf("connecting to %s as %s", u.String(), f.User)
	client.Connect(ctx, token, func() {
		con.printf("joined #%s", f.Room)
	})

	return runLoop(ctx, os.Stdin, room, con)
}
