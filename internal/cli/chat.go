package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spawnagents/spawn-sdk-go/spawn"
	"github.com/spawnagents/spawn-sdk-go/spawn/chat"
	"github.com/spawnagents/spawn-sdk-go/spawn/gorillaws"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const chatHelp = "Commands: /state, /reconnect, /quit"

// NewChatCmd creates the interactive chat command.
func NewChatCmd() *cobra.Command {
	var (
		wsURL     string
		transport string
	)

	cmd := &cobra.Command{
		Use:   "chat <agent-id>",
		Short: "Chat with an agent",
		Long: `Open the agent's chat channel and start an interactive session.

Lines are sent as chat messages. Messages typed while the connection is down
are queued and delivered on reconnect. ` + chatHelp + `.`,
		Example: `  spawnctl chat agent-42
  spawnctl chat agent-42 --url wss://spawn.example/ws --transport gorilla`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, args[0], wsURL, transport)
		},
	}

	cmd.Flags().StringVar(&wsURL, "url", "", "WebSocket endpoint (overrides ws.* config)")
	cmd.Flags().StringVar(&transport, "transport", "coder", "WebSocket library: coder or gorilla")
	return cmd
}

func runChat(cmd *cobra.Command, agentID, wsURL, transport string) error {
	cliCtx := GetCLIContext(cmd)
	cfg := cliCtx.Config.ClientConfig(agentID)
	if wsURL != "" {
		cfg.URL = wsURL
	}

	opts := []spawn.Option{spawn.WithLogger(cliCtx.Logger)}
	switch transport {
	case "", "coder":
	case "gorilla":
		opts = append(opts, spawn.WithDialer(gorillaws.New(cfg)))
	default:
		return fmt.Errorf("unknown transport %q (want coder or gorilla)", transport)
	}

	client, err := spawn.NewClient(cfg, opts...)
	if err != nil {
		return err
	}
	defer client.Close()

	p := newPrinter(cmd.OutOrStdout())
	session := chat.NewSession(client, chat.WithLogger(cliCtx.Logger))
	session.OnUpdate(p.entry)
	client.OnReconnect(p.reconnect)

	p.linef(color.New(color.Faint), "Connecting to %s as %s. %s", cfg.URL, agentID, chatHelp)
	session.Connect()

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/quit", "/exit":
			return nil
		case "/reconnect":
			session.Reconnect()
		case "/state":
			p.linef(color.New(color.FgMagenta), "state: %s, queued: %d, dropped: %d",
				client.State(), client.QueueLen(), client.Dropped())
		case "/help":
			p.linef(color.New(color.Faint), "%s", chatHelp)
		default:
			session.SendMessage(line)
		}
	}
	return scanner.Err()
}

// printer serialises transcript output from the callback goroutine and the
// input loop.
type printer struct {
	mu  sync.Mutex
	out io.Writer

	agent     *color.Color
	heartbeat *color.Color
	system    *color.Color
	warn      *color.Color
}

func newPrinter(out io.Writer) *printer {
	return &printer{
		out:       out,
		agent:     color.New(color.FgGreen),
		heartbeat: color.New(color.FgYellow),
		system:    color.New(color.Faint),
		warn:      color.New(color.FgRed),
	}
}

func (p *printer) linef(c *color.Color, format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) entry(m chat.ChatMessage) {
	ts := m.Timestamp.Local().Format("15:04:05")
	// User entries are skipped, the typed line is already on screen.
	switch m.Type {
	case chat.TypeAgent:
		p.linef(p.agent, "%s agent> %s", ts, m.Content)
	case chat.TypeHeartbeat:
		c := p.heartbeat
		if m.HeartbeatStatus == spawn.HeartbeatError {
			c = p.warn
		}
		p.linef(c, "%s [cycle %d] %s (%s)", ts, m.CycleNumber, m.Content, m.HeartbeatStatus)
	case chat.TypeSystem:
		p.linef(p.system, "%s * %s", ts, m.Content)
	}
}

func (p *printer) reconnect(ev spawn.ReconnectEvent) {
	p.linef(p.warn, "connection lost, retrying in %s (attempt %d)", ev.Delay, ev.Attempt)
}
