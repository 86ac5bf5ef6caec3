package uci

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxLineSize bounds a single line of engine output. Long principal
// variations with many MultiPV lines stay well below it.
const maxLineSize = 1 << 20

// Client speaks UCI over a pair of pipes.
//
// Output is read by a background goroutine; every other method must be
// called from a single goroutine, the one that owns the engine process.
type Client struct {
	w      io.Writer
	lines  chan string
	closed chan struct{}
	done   chan struct{}
	once   sync.Once
	parser *Parser
	logger *zap.Logger
}

// NewClient starts reading engine output from r and writes commands to w.
// If logger is nil, a no-op logger is used.
func NewClient(w io.Writer, r io.Reader, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		w:      w,
		lines:  make(chan string, 256),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
		parser: NewParser(),
		logger: logger,
	}
	go c.readLoop(r)
	return c
}

// Closed is closed once the engine output stream ends.
func (c *Client) Closed() <-chan struct{} {
	return c.closed
}

// Close stops the reader goroutine. It does not touch the process.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// Handshake performs the "uci"/"uciok" exchange and returns the engine
// identity. The deadline comes from ctx.
func (c *Client) Handshake(ctx context.Context) (Identity, error) {
	var id Identity
	if err := c.send(cmdUCI); err != nil {
		return id, err
	}
	err := c.await(ctx, func(line string) bool {
		switch {
		case strings.HasPrefix(line, "id name "):
			id.Name = strings.TrimSpace(strings.TrimPrefix(line, "id name "))
		case strings.HasPrefix(line, "id author "):
			id.Author = strings.TrimSpace(strings.TrimPrefix(line, "id author "))
		case strings.TrimSpace(line) == replyUCIOK:
			return true
		}
		return false
	})
	if err != nil {
		return id, fmt.Errorf("awaiting %s: %w", replyUCIOK, err)
	}
	return id, nil
}

// Ready sends "isready" and waits for "readyok".
func (c *Client) Ready(ctx context.Context) error {
	if err := c.send(cmdIsReady); err != nil {
		return err
	}
	err := c.await(ctx, func(line string) bool {
		return strings.TrimSpace(line) == replyReadyOK
	})
	if err != nil {
		return fmt.Errorf("awaiting %s: %w", replyReadyOK, err)
	}
	return nil
}

// SetOption sends a "setoption" command.
func (c *Client) SetOption(name, value string) error {
	return c.send(SetOptionCommand(name, value))
}

// NewGame tells the engine the next search belongs to a new game.
func (c *Client) NewGame() error {
	return c.send(cmdNewGame)
}

// Stop asks the engine to finish the running search.
func (c *Client) Stop() error {
	c.parser.Stopping()
	return c.send(cmdStop)
}

// Quit asks the engine to exit.
func (c *Client) Quit() error {
	return c.send(cmdQuit)
}

// Search analyzes position and blocks until "bestmove".
//
// If the search runs longer than bound, or ctx is done, "stop" is sent and
// the engine gets grace to answer. The result is then returned together
// with ErrSearchTimeout or the context error. Without an answer the engine
// is considered hung and ErrUnresponsive is returned.
func (c *Client) Search(ctx context.Context, position string, opts SearchOptions, bound, grace time.Duration) (*Result, error) {
	if err := c.parser.Begin(position); err != nil {
		return nil, err
	}

	for _, cmd := range []string{MultiPVCommand(opts.MultiPV), PositionCommand(position), GoCommand(opts)} {
		if err := c.send(cmd); err != nil {
			c.parser.Reset()
			return nil, err
		}
	}

	start := time.Now()
	var deadline <-chan time.Time
	if bound > 0 {
		timer := time.NewTimer(bound)
		defer timer.Stop()
		deadline = timer.C
	}

	var (
		cause      error
		graceTimer *time.Timer
		graceC     <-chan time.Time
		ctxDone    = ctx.Done()
	)
	defer func() {
		if graceTimer != nil {
			graceTimer.Stop()
		}
	}()
	beginStop := func(err error) {
		cause = err
		deadline, ctxDone = nil, nil
		// A failed write surfaces as a closed stream on the next read.
		_ = c.Stop()
		graceTimer = time.NewTimer(grace)
		graceC = graceTimer.C
	}

	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				c.parser.Reset()
				return nil, ErrClosed
			}
			res, done := c.parser.Feed(line)
			if !done {
				continue
			}
			res.AnalysisTimeMs = time.Since(start).Milliseconds()
			return res, cause
		case <-deadline:
			beginStop(ErrSearchTimeout)
		case <-ctxDone:
			beginStop(ctx.Err())
		case <-graceC:
			c.parser.Reset()
			return nil, fmt.Errorf("%w: no %s within %s of stop", ErrUnresponsive, replyBestMove, grace)
		}
	}
}

func (c *Client) send(cmd string) error {
	c.logger.Debug("uci send", zap.String("cmd", cmd))
	if _, err := io.WriteString(c.w, cmd+"\n"); err != nil {
		return fmt.Errorf("%w: writing %q: %v", ErrClosed, cmd, err)
	}
	return nil
}

// await reads lines until match returns true, the stream ends or ctx is done.
func (c *Client) await(ctx context.Context, match func(line string) bool) error {
	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				return ErrClosed
			}
			if match(line) {
				return nil
			}
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return ErrTimeout
			}
			return ctx.Err()
		}
	}
}

func (c *Client) readLoop(r io.Reader) {
	defer close(c.closed)
	defer close(c.lines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		select {
		case c.lines <- scanner.Text():
		case <-c.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Debug("engine output ended", zap.Error(err))
	}
}
