// Command chat is a terminal chat client.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gookit/color"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-go/application"
	"github.com/lk2023060901/danmu-chat-go/internal/client"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
)

const closeTimeout = 3 * time.Second

var errNotJoined = errors.New("could not join the chat")

// consoleSink prints session updates to a terminal.
type consoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *consoleSink) AppendMessage(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, text)
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(c.out)
	}
}

func (c *consoleSink) UpdateRoster(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("  ")
		}
		fmt.Fprintf(&b, "%d:%s", i, name)
	}
	color.Fprintf(c.out, "<cyan>Users online:</> %s\n", b.String())
}

func (c *consoleSink) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if connected {
		color.Fprintln(c.out, "<green>Connected</>")
		return
	}
	color.Fprintln(c.out, "<yellow>Disconnected</>")
}

func (c *consoleSink) ShowError(title, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	color.Fprintf(c.out, "<red>%s:</> %s\n", title, message)
}

func main() {
	app := application.New("chat", os.Args[1:])
	if err := app.Run(); err != nil {
		log.Fatal("failed to start", zap.Error(err))
	}
	if err := run(app, os.Stdin, os.Stdout); err != nil {
		color.Red.Println(err.Error())
		os.Exit(1)
	}
}

func run(app *application.Application, in io.Reader, out io.Writer) error {
	ctx, stop := app.Context()
	defer stop()

	lines := bufio.NewScanner(in)
	username := strings.Join(app.Args(), " ")
	if username == "" {
		fmt.Fprint(out, "Enter your name: ")
		if !lines.Scan() {
			return lines.Err()
		}
		username = lines.Text()
	}

	sink := &consoleSink{out: out}
	sess, err := client.NewSession(app.Config().Client, username, sink)
	if err != nil {
		return err
	}
	sess.SetLogger(app.Logger("client"))
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		_ = sess.Close(cctx)
	}()

	color.Fprintf(out, "Connecting to <cyan>%s</> as <cyan>%s</>...\n", app.Config().Client.Addr(), sess.Username())
	if err := sess.Connect(ctx); err != nil {
		return errNotJoined
	}
	sess.AppendMessage(usage)

	input := make(chan string)
	go func() {
		defer close(input)
		for lines.Scan() {
			input <- lines.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-input:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if quit := handle(ctx, sess, line); quit {
				return nil
			}
			if sess.State() != client.StateConnected {
				return nil
			}
		}
	}
}

// handle runs one input line. All output goes through sess so it stays ordered with callbacks.
func handle(ctx context.Context, sess *client.Session, line string) bool {
	cmd, err := parseCommand(line)
	if err != nil {
		sess.ShowError("Input Error", err.Error())
		return false
	}

	switch cmd.kind {
	case cmdQuit:
		return true
	case cmdHelp:
		sess.AppendMessage(usage)
	case cmdWho:
		if _, err := sess.RefreshRoster(ctx); err != nil {
			sess.ShowError("Error", err.Error())
		}
	case cmdPrivate:
		if _, err := sess.SendPrivate(ctx, cmd.indices, cmd.text); err != nil {
			sess.ShowError("Error", err.Error())
		}
	default:
		if err := sess.Send(ctx, cmd.text); err != nil {
			sess.ShowError("Error", err.Error())
		}
	}
	return false
}
