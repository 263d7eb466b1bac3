package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/courier-ai/courier/internal/bus"
	"github.com/courier-ai/courier/pkg/models"
)

// CLIChannel is the terminal conversation. Lines read from input become
// inbound messages for the fixed "direct" chat; replies print to output.
type CLIChannel struct {
	bus    *bus.MessageBus
	in     io.Reader
	out    io.Writer
	logger *slog.Logger
}

func NewCLIChannel(b *bus.MessageBus, in io.Reader, out io.Writer, logger *slog.Logger) *CLIChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIChannel{bus: b, in: in, out: out, logger: logger.With("component", "cli")}
}

func (c *CLIChannel) Name() string { return "cli" }

func (c *CLIChannel) Start(ctx context.Context) error {
	go c.readLoop(ctx)
	return nil
}

func (c *CLIChannel) Stop(ctx context.Context) error { return nil }

func (c *CLIChannel) Send(ctx context.Context, msg *models.OutboundMessage) error {
	if msg.IsToolNotification() {
		_, err := fmt.Fprintf(c.out, "[%s]\n", msg.Content)
		return err
	}
	_, err := fmt.Fprintf(c.out, "%s\n", msg.Content)
	return err
}

func (c *CLIChannel) readLoop(ctx context.Context) {
	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.bus.PublishInbound(&models.InboundMessage{
			Channel:   c.Name(),
			SenderID:  "user",
			ChatID:    "direct",
			Content:   line,
			Timestamp: time.Now(),
		})
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("stdin read failed", "error", err)
	}
}
