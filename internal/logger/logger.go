package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

// ParseLevel maps LOG_LEVEL values to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes categorised, colour-coded lines. It is safe for concurrent use.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	file  *os.File
	level Level

	levelColors map[Level]*color.Color
	category    *color.Color
	timestamp   *color.Color
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FILE. When LOG_FILE is set,
// lines go to both stdout and the file.
func NewLogger() *Logger {
	var out io.Writer = os.Stdout
	var file *os.File

	if path := os.Getenv("LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			file = f
			out = io.MultiWriter(os.Stdout, f)
		} else {
			fmt.Fprintf(os.Stderr, "logger: cannot open %s: %v\n", path, err)
		}
	}

	l := New(out, ParseLevel(os.Getenv("LOG_LEVEL")))
	l.file = file
	return l
}

// New returns a Logger writing to out. Tests pass a bytes.Buffer.
func New(out io.Writer, level Level) *Logger {
	return &Logger{
		out:   out,
		level: level,
		levelColors: map[Level]*color.Color{
			LevelDebug: color.New(color.FgHiBlack),
			LevelInfo:  color.New(color.FgGreen),
			LevelWarn:  color.New(color.FgYellow),
			LevelError: color.New(color.FgRed, color.Bold),
		},
		category:  color.New(color.FgCyan),
		timestamp: color.New(color.FgHiBlack),
	}
}

func (l *Logger) log(level Level, category, message string) {
	if level < l.level {
		return
	}

	line := fmt.Sprintf("%s %s %s %s\n",
		l.timestamp.Sprint(time.Now().Format("2006-01-02 15:04:05")),
		l.levelColors[level].Sprintf("[%-5s]", levelNames[level]),
		l.category.Sprintf("[%s]", category),
		message,
	)

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.out, line)
}

func (l *Logger) Debug(category, message string) { l.log(LevelDebug, category, message) }
func (l *Logger) Info(category, message string)  { l.log(LevelInfo, category, message) }
func (l *Logger) Warn(category, message string)  { l.log(LevelWarn, category, message) }
func (l *Logger) Error(category, message string) { l.log(LevelError, category, message) }

// Fatal logs at error level and exits the process.
func (l *Logger) Fatal(category, message string) {
	l.log(LevelError, category, message)
	l.Close()
	os.Exit(1)
}

func (l *Logger) LogProcess(category, message string) {
	l.log(LevelInfo, category, "⚙️  "+message)
}

func (l *Logger) LogDatabase(operation, database, message string) {
	l.log(LevelDebug, "DB:"+database, fmt.Sprintf("%s %s", operation, message))
}

func (l *Logger) LogKafka(operation, topic, message string) {
	l.log(LevelInfo, "KAFKA:"+topic, fmt.Sprintf("%s %s", operation, message))
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.log(LevelInfo, "API", fmt.Sprintf("%s %s - %s (%s)", method, path, status, duration))
}

func (l *Logger) LogSecurity(event, message string) {
	l.log(LevelWarn, "SECURITY", fmt.Sprintf("%s %s", event, message))
}

func (l *Logger) LogTicket(operation, ticketID, message string) {
	l.log(LevelInfo, "TICKET", fmt.Sprintf("%s [%s] %s", operation, ticketID, message))
}

func (l *Logger) LogWebhook(operation, reference, message string) {
	l.log(LevelInfo, "WEBHOOK", fmt.Sprintf("%s [%s] %s", operation, reference, message))
}

// Close releases the log file, if any.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *Logger {
	return New(io.Discard, LevelError+1)
}
