package authclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// NoticeLevel is the severity of a user-facing notice.
type NoticeLevel uint8

const (
	NoticeInfo NoticeLevel = iota
	NoticeSuccess
	NoticeWarning
	NoticeError
)

// String returns the lowercase level name used in writer output.
func (l NoticeLevel) String() string {
	switch l {
	case NoticeInfo:
		return "info"
	case NoticeSuccess:
		return "success"
	case NoticeWarning:
		return "warning"
	case NoticeError:
		return "error"
	default:
		return fmt.Sprintf("NoticeLevel(%d)", uint8(l))
	}
}

// Notice is a short message meant for the person using the client. The
// presentation fields are hints for whatever front-end displays it.
type Notice struct {
	Level        NoticeLevel
	Message      string
	Time         time.Time
	Timeout      time.Duration
	Position     string
	CloseOnClick bool
	PauseOnHover bool
}

// Notifier receives notices. Implementations must not block for long: the
// client calls Notify inline with the operation that produced the notice.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NoOpNotifier discards every notice. It is used when notices are disabled.
type NoOpNotifier struct{}

// Notify does nothing.
func (NoOpNotifier) Notify(context.Context, Notice) {}

// ChannelNotifier buffers notices for a consumer goroutine. When the buffer
// is full the notice is dropped and counted.
type ChannelNotifier struct {
	notices chan Notice
	dropped atomic.Uint64
}

// NewChannelNotifier returns a notifier buffering up to buffer notices.
func NewChannelNotifier(buffer int) *ChannelNotifier {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelNotifier{notices: make(chan Notice, buffer)}
}

// Notify queues n, or drops and counts it when the buffer is full.
func (c *ChannelNotifier) Notify(_ context.Context, n Notice) {
	select {
	case c.notices <- n:
	default:
		c.dropped.Add(1)
	}
}

// Notices returns the receive side of the buffer.
func (c *ChannelNotifier) Notices() <-chan Notice {
	return c.notices
}

// Dropped reports how many notices were lost to a full buffer.
func (c *ChannelNotifier) Dropped() uint64 {
	return c.dropped.Load()
}

// LogNotifier turns notices into log records.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs n at the slog level matching its NoticeLevel.
func (l LogNotifier) Notify(ctx context.Context, n Notice) {
	if l.Logger == nil {
		return
	}
	level := slog.LevelInfo
	switch n.Level {
	case NoticeWarning:
		level = slog.LevelWarn
	case NoticeError:
		level = slog.LevelError
	}
	l.Logger.Log(ctx, level, n.Message, slog.String("notice", n.Level.String()))
}

// WriterNotifier prints "[level] message" lines, for terminals.
type WriterNotifier struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriterNotifier writes one "[level] message" line per notice to w.
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

// Notify writes n. Write errors are ignored.
func (w *WriterNotifier) Notify(_ context.Context, n Notice) {
	if w == nil || w.w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = fmt.Fprintf(w.w, "[%s] %s\n", n.Level, n.Message)
}

// notice stamps cfg's presentation defaults onto a new Notice.
func (cfg NotifyConfig) notice(level NoticeLevel, message string) Notice {
	return Notice{
		Level:        level,
		Message:      message,
		Time:         time.Now(),
		Timeout:      cfg.Timeout,
		Position:     cfg.Position,
		CloseOnClick: cfg.CloseOnClick,
		PauseOnHover: cfg.PauseOnHover,
	}
}
