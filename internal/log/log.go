// Package log implements the leveled, key/value logger used throughout
// pagestore. It intentionally mirrors the small surface the engine's
// packages call against (Trace/Debug/Info/Warn/Error/Crit with trailing
// key-value pairs) rather than wrapping a general-purpose framework.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Lvl is a logging priority, lowest-to-highest verbosity ordered so that
// "log only at Warn and above" reads as lvl <= LvlWarn.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "CRIT"
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	case LvlTrace:
		return "TRACE"
	default:
		return "UNKNOWN"
	}
}

var levelColor = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgMagenta, color.Bold),
	LvlError: color.New(color.FgRed, color.Bold),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

// Logger is the interface every pagestore component logs through.
type Logger interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
	New(ctx ...interface{}) Logger
}

type logger struct {
	ctx []interface{}
	h   *handler
}

type handler struct {
	mu       sync.Mutex
	out      io.Writer
	color    bool
	lvl      Lvl
	callsite bool
}

var root = &logger{h: &handler{
	out:      colorable.NewColorable(os.Stderr),
	color:    isatty.IsTerminal(os.Stderr.Fd()),
	lvl:      LvlInfo,
	callsite: false,
}}

// Root returns the process-wide root logger.
func Root() Logger { return root }

// SetLevel adjusts the minimum level the root logger emits.
func SetLevel(l Lvl) {
	root.h.mu.Lock()
	defer root.h.mu.Unlock()
	root.h.lvl = l
}

// New returns a child logger with ctx merged into every future record.
func New(ctx ...interface{}) Logger { return root.New(ctx...) }

func (l *logger) New(ctx ...interface{}) Logger {
	merged := make([]interface{}, 0, len(l.ctx)+len(ctx))
	merged = append(merged, l.ctx...)
	merged = append(merged, ctx...)
	return &logger{ctx: merged, h: l.h}
}

func (l *logger) write(lvl Lvl, msg string, ctx []interface{}) {
	l.h.mu.Lock()
	defer l.h.mu.Unlock()
	if lvl > l.h.lvl {
		return
	}
	var caller string
	if l.h.callsite {
		caller = fmt.Sprintf(" %v", stack.Caller(2))
	}
	ts := time.Now().Format("2006-01-02T15:04:05.000")
	line := fmt.Sprintf("%s [%s]%s %s", ts, lvl, caller, msg)

	all := make([]interface{}, 0, len(l.ctx)+len(ctx))
	all = append(all, l.ctx...)
	all = append(all, ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		line += fmt.Sprintf(" %v=%v", all[i], all[i+1])
	}
	if l.h.color {
		if c, ok := levelColor[lvl]; ok {
			line = c.Sprint(line)
		}
	}
	fmt.Fprintln(l.h.out, line)
	if lvl == LvlCrit {
		os.Exit(1)
	}
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...interface{})  { l.write(LvlCrit, msg, ctx) }

// Package-level convenience funcs mirroring the root logger, matching the
// call shape used throughout pagestore: log.Warn("...", "k", v).
func Trace(msg string, ctx ...interface{}) { root.Trace(msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { root.Debug(msg, ctx...) }
func Info(msg string, ctx ...interface{})  { root.Info(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { root.Warn(msg, ctx...) }
func Error(msg string, ctx ...interface{}) { root.Error(msg, ctx...) }
func Crit(msg string, ctx ...interface{})  { root.Crit(msg, ctx...) }
