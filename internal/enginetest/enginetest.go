// Package enginetest provides a scriptable in-memory UCI engine for tests.
package enginetest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/discochess/coach/internal/engine"
)

// Line is a scripted search line. Score is relative to the side to move,
// as engines report it.
type Line struct {
	Score int
	// Mate, when non-zero, is reported instead of Score.
	Mate  int
	Moves []string
	Depth int
}

// Evaluator returns the lines for a position, best first.
type Evaluator func(fen string) []Line

// DefaultEvaluator evaluates every position as equal with e2e4 best.
func DefaultEvaluator(string) []Line {
	return []Line{{Score: 0, Moves: []string{"e2e4", "e7e5"}, Depth: 12}}
}

// Engine is a fake engine binary. It implements engine.Launcher; every
// launch creates a fresh process sharing the engine's script.
type Engine struct {
	mu sync.Mutex

	name          string
	evaluate      Evaluator
	delay         time.Duration
	ignoreReady   bool
	stuck         bool
	failHandshake bool
	launchErr     error

	launches     int
	searching    int
	maxSearching int
	newGames     int
	positions    []string
	options      map[string]string
	current      *process
}

// Compile-time check that Engine implements engine.Launcher.
var _ engine.Launcher = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithEvaluator scripts the search output.
func WithEvaluator(fn Evaluator) Option {
	return func(e *Engine) { e.evaluate = fn }
}

// WithDelay makes every search run for d unless stopped earlier.
func WithDelay(d time.Duration) Option {
	return func(e *Engine) { e.delay = d }
}

// WithName sets the reported engine name.
func WithName(name string) Option {
	return func(e *Engine) { e.name = name }
}

// New creates a fake engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		name:     "FakeFish 1.0",
		evaluate: DefaultEvaluator,
		options:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Launch starts a fake process.
func (e *Engine) Launch(ctx context.Context) (engine.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.launches++
	if e.launchErr != nil {
		return nil, e.launchErr
	}

	p := newProcess(e, e.launches)
	e.current = p
	go p.serve()
	return p, nil
}

// SetDelay changes the search duration for subsequent searches.
func (e *Engine) SetDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = d
}

// SetHang makes the engine ignore "isready", "stop" and "quit", and never
// finish a search.
func (e *Engine) SetHang(hang bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ignoreReady = hang
	e.stuck = hang
}

// SetStuckSearch makes searches ignore "stop" and never finish while
// "isready" is still answered.
func (e *Engine) SetStuckSearch(stuck bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stuck = stuck
}

// SetFailHandshake makes new processes exit on "uci".
func (e *Engine) SetFailHandshake(fail bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failHandshake = fail
}

// SetLaunchError makes Launch fail with err. Nil restores launching.
func (e *Engine) SetLaunchError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.launchErr = err
}

// Crash makes the current process exit abruptly.
func (e *Engine) Crash() {
	e.mu.Lock()
	p := e.current
	e.mu.Unlock()
	if p != nil {
		p.exit()
	}
}

// Launches returns how many processes were launched.
func (e *Engine) Launches() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.launches
}

// MaxConcurrentSearches returns the highest number of searches that were
// running at the same time.
func (e *Engine) MaxConcurrentSearches() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxSearching
}

// Positions returns every position searched, in order.
func (e *Engine) Positions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.positions...)
}

// NewGames returns how many "ucinewgame" commands were received.
func (e *Engine) NewGames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.newGames
}

// Option returns the last value set for a UCI option.
func (e *Engine) Option(name string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.options[name]
}

func (e *Engine) ignoringReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ignoreReady
}

func (e *Engine) stuckSearch() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stuck
}

type process struct {
	engine *Engine
	pid    int

	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter

	writeMu sync.Mutex
	once    sync.Once
	exited  chan struct{}

	fen     string
	multiPV int
	stop    chan struct{}
}

func newProcess(e *Engine, pid int) *process {
	p := &process{
		engine:  e,
		pid:     pid,
		exited:  make(chan struct{}),
		multiPV: 1,
	}
	p.stdinR, p.stdinW = io.Pipe()
	p.stdoutR, p.stdoutW = io.Pipe()
	return p
}

func (p *process) Stdin() io.Writer        { return p.stdinW }
func (p *process) Stdout() io.Reader       { return p.stdoutR }
func (p *process) Exited() <-chan struct{} { return p.exited }
func (p *process) Pid() int                { return p.pid }

func (p *process) Terminate() error {
	p.exit()
	return nil
}

func (p *process) Kill() error {
	p.exit()
	return nil
}

func (p *process) exit() {
	p.once.Do(func() {
		p.stdinR.CloseWithError(errors.New("enginetest: process exited"))
		p.stdoutW.Close()
		close(p.exited)
	})
}

func (p *process) write(lines ...string) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	for _, line := range lines {
		if _, err := io.WriteString(p.stdoutW, line+"\n"); err != nil {
			return
		}
	}
}

func (p *process) serve() {
	scanner := bufio.NewScanner(p.stdinR)
	for scanner.Scan() {
		if !p.handle(strings.Fields(scanner.Text())) {
			p.exit()
			return
		}
	}
	p.exit()
}

func (p *process) handle(fields []string) bool {
	if len(fields) == 0 {
		return true
	}
	e := p.engine

	switch fields[0] {
	case "uci":
		e.mu.Lock()
		fail, name := e.failHandshake, e.name
		e.mu.Unlock()
		if fail {
			return false
		}
		p.write(
			"id name "+name,
			"id author The Coach Authors",
			"option name Hash type spin default 16 min 1 max 33554432",
			"option name MultiPV type spin default 1 min 1 max 500",
			"uciok",
		)
	case "isready":
		if !e.ignoringReady() {
			p.write("readyok")
		}
	case "setoption":
		name, value := parseSetOption(fields)
		e.mu.Lock()
		e.options[name] = value
		e.mu.Unlock()
		if name == "MultiPV" {
			if n, err := strconv.Atoi(value); err == nil {
				p.multiPV = n
			}
		}
	case "ucinewgame":
		e.mu.Lock()
		e.newGames++
		e.mu.Unlock()
	case "position":
		if len(fields) > 2 && fields[1] == "fen" {
			p.fen = strings.Join(fields[2:], " ")
		}
	case "go":
		p.startSearch()
	case "stop":
		if p.stop != nil && !e.stuckSearch() {
			close(p.stop)
			p.stop = nil
		}
	case "quit":
		if !e.stuckSearch() {
			return false
		}
	}
	return true
}

func (p *process) startSearch() {
	e := p.engine
	e.mu.Lock()
	e.searching++
	if e.searching > e.maxSearching {
		e.maxSearching = e.searching
	}
	e.positions = append(e.positions, p.fen)
	delay, evaluate := e.delay, e.evaluate
	e.mu.Unlock()

	stop := make(chan struct{})
	p.stop = stop
	fen, multiPV := p.fen, p.multiPV

	go func() {
		finished := func() {
			e.mu.Lock()
			e.searching--
			e.mu.Unlock()
		}

		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-stop:
			case <-p.exited:
				finished()
				return
			}
		}
		if e.stuckSearch() {
			<-p.exited
			finished()
			return
		}

		lines := evaluate(fen)
		if len(lines) > multiPV {
			lines = lines[:multiPV]
		}
		out := make([]string, 0, len(lines)+1)
		for i, l := range lines {
			out = append(out, infoLine(i+1, l))
		}
		if len(lines) == 0 || len(lines[0].Moves) == 0 {
			out = append(out, "bestmove (none)")
		} else {
			out = append(out, "bestmove "+lines[0].Moves[0])
		}
		// The search is over once bestmove is on the wire.
		finished()
		p.write(out...)
	}()
}

func infoLine(index int, l Line) string {
	depth := l.Depth
	if depth == 0 {
		depth = 10
	}
	score := "cp " + strconv.Itoa(l.Score)
	if l.Mate != 0 {
		score = "mate " + strconv.Itoa(l.Mate)
	}
	return fmt.Sprintf("info depth %d seldepth %d multipv %d score %s nodes 1000 nps 100000 time 10 pv %s",
		depth, depth, index, score, strings.Join(l.Moves, " "))
}

func parseSetOption(fields []string) (string, string) {
	var name, value []string
	target := &name
	for _, f := range fields[1:] {
		switch f {
		case "name":
			target = &name
		case "value":
			target = &value
		default:
			*target = append(*target, f)
		}
	}
	return strings.Join(name, " "), strings.Join(value, " ")
}
