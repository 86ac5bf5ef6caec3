package uci

import (
	"strconv"
	"strings"
)

const (
	cmdUCI        = "uci"
	cmdIsReady    = "isready"
	cmdNewGame    = "ucinewgame"
	cmdStop       = "stop"
	cmdQuit       = "quit"
	replyUCIOK    = "uciok"
	replyReadyOK  = "readyok"
	replyBestMove = "bestmove"
)

// PositionCommand returns the command that sets up fen.
func PositionCommand(fen string) string {
	return "position fen " + strings.TrimSpace(fen)
}

// SetOptionCommand returns a "setoption" command.
func SetOptionCommand(name, value string) string {
	return "setoption name " + name + " value " + value
}

// MultiPVCommand returns the command selecting n candidate lines.
func MultiPVCommand(n int) string {
	if n < 1 {
		n = 1
	}
	return SetOptionCommand("MultiPV", strconv.Itoa(n))
}

// GoCommand returns the "go" command for opts. Depth and move time may be
// combined, in which case the engine stops at whichever bound comes first.
func GoCommand(opts SearchOptions) string {
	var b strings.Builder
	b.WriteString("go")
	if opts.Depth > 0 {
		b.WriteString(" depth ")
		b.WriteString(strconv.Itoa(opts.Depth))
	}
	if opts.MoveTime > 0 {
		b.WriteString(" movetime ")
		b.WriteString(strconv.FormatInt(opts.MoveTime.Milliseconds(), 10))
	}
	if opts.Depth <= 0 && opts.MoveTime <= 0 {
		// Never leave the engine searching without a bound.
		b.WriteString(" depth 1")
	}
	return b.String()
}
