// wsprobe is a terminal client for poking at the realtime server. It mints a
// dev token, connects, optionally subscribes to a workspace, and then turns
// stdin lines into frames: /commands for the common cases, raw JSON for
// everything else.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loopboard/realtime/api"
	"github.com/loopboard/realtime/auth"
	"github.com/loopboard/realtime/internal/slogging"
)

type probeConfig struct {
	ServerURL string
	Token     string
	Secret    string
	UserID    string
	Name      string
	Email     string
	TokenTTL  time.Duration
	Workspace string
}

func main() {
	cfg := parseArgs()
	logger := slogging.Get()

	token := cfg.Token
	if token == "" {
		keyManager, err := auth.NewKeyManager(auth.KeyConfig{SigningMethod: "HS256", Secret: cfg.Secret})
		if err != nil {
			logger.Error("failed to build key manager: %v", err)
			os.Exit(1)
		}
		token, err = auth.NewTokenValidator(keyManager).MintToken(cfg.UserID, cfg.Email, cfg.Name, cfg.TokenTTL)
		if err != nil {
			logger.Error("failed to mint token: %v", err)
			os.Exit(1)
		}
		logger.Info("minted dev token for user %s (ttl %s)", cfg.UserID, cfg.TokenTTL)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutting down")
		cancel()
	}()

	if err := runProbe(ctx, cfg, token); err != nil {
		logger.Error("probe error: %v", err)
		os.Exit(1)
	}
}

func parseArgs() probeConfig {
	var cfg probeConfig
	var ttlSeconds int

	flag.StringVar(&cfg.ServerURL, "server", "localhost:8080", "server host:port")
	flag.StringVar(&cfg.Token, "token", "", "JWT to present; when empty one is minted with -secret")
	flag.StringVar(&cfg.Secret, "secret", "dev-secret-do-not-use-in-production", "HS256 secret for minting dev tokens")
	flag.StringVar(&cfg.UserID, "user", "probe-user", "user id for minted tokens")
	flag.StringVar(&cfg.Name, "name", "Probe User", "display name for minted tokens")
	flag.StringVar(&cfg.Email, "email", "probe@example.com", "email for minted tokens")
	flag.IntVar(&ttlSeconds, "ttl", 3600, "minted token lifetime in seconds")
	flag.StringVar(&cfg.Workspace, "workspace", "", "workspace to subscribe to after connecting")
	flag.Parse()

	cfg.TokenTTL = time.Duration(ttlSeconds) * time.Second
	cfg.ServerURL = strings.TrimPrefix(strings.TrimPrefix(cfg.ServerURL, "http://"), "ws://")
	return cfg
}

func runProbe(ctx context.Context, cfg probeConfig, token string) error {
	logger := slogging.Get()
	wsURL := fmt.Sprintf("ws://%s/ws?token=%s", cfg.ServerURL, token)
	logger.Info("connecting to ws://%s/ws", cfg.ServerURL)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	connectionLost := make(chan error, 1)
	go readFrames(conn, connectionLost)

	if cfg.Workspace != "" {
		if err := sendEnvelope(conn, api.MessageTypeSubscribe, api.SubscribePayload{WorkspaceID: cfg.Workspace}); err != nil {
			return fmt.Errorf("subscribe failed: %w", err)
		}
		logger.Info("subscribed to workspace %s", cfg.Workspace)
	}

	inputLines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			inputLines <- scanner.Text()
		}
		close(inputLines)
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case err := <-connectionLost:
			return fmt.Errorf("connection lost: %w", err)
		case line, ok := <-inputLines:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return nil
			}
			if err := handleInput(conn, line); err != nil {
				logger.Warn("send failed: %v", err)
			}
		}
	}
}

// handleInput turns one stdin line into a frame. Lines starting with / are
// commands; anything else is sent as raw JSON.
func handleInput(conn *websocket.Conn, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if !strings.HasPrefix(line, "/") {
		if !json.Valid([]byte(line)) {
			return fmt.Errorf("not valid JSON; use /help for commands")
		}
		return conn.WriteMessage(websocket.TextMessage, []byte(line))
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/subscribe":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /subscribe <workspace-id>")
		}
		return sendEnvelope(conn, api.MessageTypeSubscribe, api.SubscribePayload{WorkspaceID: fields[1]})
	case "/unsubscribe":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /unsubscribe <workspace-id>")
		}
		return sendEnvelope(conn, api.MessageTypeUnsubscribe, api.UnsubscribePayload{WorkspaceID: fields[1]})
	case "/presence":
		if len(fields) < 2 {
			return fmt.Errorf("usage: /presence <ONLINE|AWAY|BUSY|OFFLINE> [message]")
		}
		payload := api.PresenceSetPayload{Status: api.PresenceStatus(strings.ToUpper(fields[1]))}
		if len(fields) > 2 {
			payload.Message = strings.Join(fields[2:], " ")
		}
		return sendEnvelope(conn, api.MessageTypePresenceSet, payload)
	case "/ping":
		return sendEnvelope(conn, api.MessageTypePing, nil)
	case "/help":
		fmt.Println("commands: /subscribe <id>, /unsubscribe <id>, /presence <status> [msg], /ping, or raw JSON")
		return nil
	default:
		return fmt.Errorf("unknown command %s; use /help", fields[0])
	}
}

func sendEnvelope(conn *websocket.Conn, messageType api.MessageType, payload any) error {
	data, err := api.NewEnvelope(messageType, payload)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readFrames prints every inbound envelope until the connection dies.
func readFrames(conn *websocket.Conn, connectionLost chan<- error) {
	logger := slogging.Get()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			connectionLost <- err
			return
		}

		var envelope api.Envelope
		if err := json.Unmarshal(message, &envelope); err != nil {
			logger.Warn("unparseable frame: %s", string(message))
			continue
		}

		switch envelope.Type {
		case api.MessageTypeConnected:
			var p api.ConnectedPayload
			if err := json.Unmarshal(envelope.Payload, &p); err == nil {
				logger.Info("<< connected as %s", p.UserID)
			}
		case api.MessageTypePresenceUpdate:
			var p api.PresenceRecord
			if err := json.Unmarshal(envelope.Payload, &p); err == nil {
				logger.Info("<< presence %s is %s %s", p.UserID, p.Status, p.Message)
			}
		case api.MessageTypeError:
			var p api.ErrorPayload
			if err := json.Unmarshal(envelope.Payload, &p); err == nil {
				logger.Warn("<< error %s: %s", p.Code, p.Message)
			}
		case api.MessageTypePong:
			logger.Info("<< pong")
		default:
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, envelope.Payload, "", "  "); err == nil {
				logger.Info("<< %s\n%s", envelope.Type, pretty.String())
			} else {
				logger.Info("<< %s %s", envelope.Type, string(envelope.Payload))
			}
		}
	}
}
