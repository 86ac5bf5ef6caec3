package uci

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// scriptedEngine answers commands from a pipe with canned replies.
type scriptedEngine struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	replies map[string][]string
	got     chan string
}

func newScriptedEngine(replies map[string][]string) *scriptedEngine {
	e := &scriptedEngine{replies: replies, got: make(chan string, 64)}
	e.stdinR, e.stdinW = io.Pipe()
	e.stdoutR, e.stdoutW = io.Pipe()
	go e.loop()
	return e
}

func (e *scriptedEngine) loop() {
	scanner := bufio.NewScanner(e.stdinR)
	for scanner.Scan() {
		cmd := scanner.Text()
		e.got <- cmd
		verb := strings.Fields(cmd)[0]
		for _, reply := range e.replies[verb] {
			if _, err := io.WriteString(e.stdoutW, reply+"\n"); err != nil {
				return
			}
		}
	}
}

func (e *scriptedEngine) close() {
	e.stdoutW.Close()
	e.stdinR.Close()
}

func newTestClient(t *testing.T, e *scriptedEngine) *Client {
	t.Helper()
	c := NewClient(e.stdinW, e.stdoutR, zaptest.NewLogger(t))
	t.Cleanup(func() {
		c.Close()
		e.close()
	})
	return c
}

func TestClient_Handshake(t *testing.T) {
	e := newScriptedEngine(map[string][]string{
		"uci":     {"id name FakeFish 1.0", "id author Test", "option name Hash type spin default 16", "uciok"},
		"isready": {"readyok"},
	})
	c := newTestClient(t, e)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	id, err := c.Handshake(ctx)
	if err != nil {
		t.Fatalf("Handshake() error = %v", err)
	}
	if id.Name != "FakeFish 1.0" || id.Author != "Test" {
		t.Errorf("Handshake() = %+v", id)
	}
	if err := c.Ready(ctx); err != nil {
		t.Fatalf("Ready() error = %v", err)
	}
}

func TestClient_ReadyTimeout(t *testing.T) {
	e := newScriptedEngine(map[string][]string{})
	c := newTestClient(t, e)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := c.Ready(ctx); !errors.Is(err, ErrTimeout) {
		t.Errorf("Ready() error = %v, want ErrTimeout", err)
	}
}

func TestClient_Search(t *testing.T) {
	e := newScriptedEngine(map[string][]string{
		"go": {
			"info depth 10 multipv 1 score cp 25 pv e2e4 e7e5",
			"info depth 10 multipv 2 score cp 15 pv d2d4",
			"bestmove e2e4 ponder e7e5",
		},
	})
	c := newTestClient(t, e)

	res, err := c.Search(context.Background(), startFEN, SearchOptions{Depth: 10, MultiPV: 2}, time.Second, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.BestMove != "e2e4" || len(res.Lines) != 2 {
		t.Errorf("Search() = %+v", res)
	}
	if res.FEN != startFEN {
		t.Errorf("FEN = %q, want %q", res.FEN, startFEN)
	}

	want := []string{"setoption name MultiPV value 2", "position fen " + startFEN, "go depth 10"}
	for _, w := range want {
		select {
		case got := <-e.got:
			if got != w {
				t.Errorf("sent %q, want %q", got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("command %q not sent", w)
		}
	}
}

func TestClient_SearchTimeoutStops(t *testing.T) {
	e := newScriptedEngine(map[string][]string{
		"go":   {"info depth 3 score cp 10 pv e2e4"},
		"stop": {"bestmove e2e4"},
	})
	c := newTestClient(t, e)

	res, err := c.Search(context.Background(), startFEN, SearchOptions{Depth: 30}, 50*time.Millisecond, time.Second)
	if !errors.Is(err, ErrSearchTimeout) {
		t.Fatalf("Search() error = %v, want ErrSearchTimeout", err)
	}
	if res == nil || res.IsComplete {
		t.Errorf("Search() result = %+v, want incomplete result", res)
	}
}

func TestClient_SearchStoppedWithinGrace(t *testing.T) {
	e := newScriptedEngine(map[string][]string{
		"go":   {"info depth 4 score cp 18 pv d2d4"},
		"stop": {"bestmove d2d4"},
	})
	c := newTestClient(t, e)

	// The grace period outlasts the test; each search must end on bestmove.
	for i := 0; i < 3; i++ {
		start := time.Now()
		res, err := c.Search(context.Background(), startFEN, SearchOptions{Depth: 30}, 20*time.Millisecond, time.Hour)
		if !errors.Is(err, ErrSearchTimeout) {
			t.Fatalf("Search() #%d error = %v, want ErrSearchTimeout", i, err)
		}
		if res == nil || res.BestMove != "d2d4" {
			t.Fatalf("Search() #%d = %+v, want bestmove d2d4", i, res)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("Search() #%d took %s after stop was answered", i, elapsed)
		}
	}
	if c.parser.State() != StateIdle {
		t.Errorf("parser state = %v, want idle", c.parser.State())
	}
}

func TestClient_SearchUnresponsive(t *testing.T) {
	e := newScriptedEngine(map[string][]string{})
	c := newTestClient(t, e)

	_, err := c.Search(context.Background(), startFEN, SearchOptions{Depth: 30}, 20*time.Millisecond, 20*time.Millisecond)
	if !errors.Is(err, ErrUnresponsive) {
		t.Errorf("Search() error = %v, want ErrUnresponsive", err)
	}
	if c.parser.State() != StateIdle {
		t.Errorf("parser state = %v, want idle", c.parser.State())
	}
}

func TestClient_SearchCanceled(t *testing.T) {
	e := newScriptedEngine(map[string][]string{
		"stop": {"bestmove d2d4"},
	})
	c := newTestClient(t, e)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Search(ctx, startFEN, SearchOptions{Depth: 30}, time.Minute, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Search() error = %v, want context.Canceled", err)
	}
}

func TestClient_StreamClosed(t *testing.T) {
	e := newScriptedEngine(map[string][]string{})
	c := newTestClient(t, e)

	go func() {
		time.Sleep(20 * time.Millisecond)
		e.stdoutW.Close()
	}()

	_, err := c.Search(context.Background(), startFEN, SearchOptions{Depth: 5}, time.Minute, time.Second)
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Search() error = %v, want ErrClosed", err)
	}
	select {
	case <-c.Closed():
	case <-time.After(time.Second):
		t.Error("Closed() not signalled")
	}
}
