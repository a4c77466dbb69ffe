// Package ui renders the chat screen on a terminal.
// It observes messages delivered by a feed and never modifies feed state.
package ui

import (
	"flash-feed/domain"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gookit/color"
)

var (
	ownStyle    = color.New(color.FgCyan, color.OpBold)
	otherStyle  = color.New(color.FgMagenta)
	infoStyle   = color.New(color.FgGreen)
	errorStyle  = color.New(color.FgRed, color.OpBold)
	promptStyle = color.New(color.BgBlack, color.FgGreen)
)

// Screen writes chat lines to out. It is safe for concurrent use.
type Screen struct {
	mu      sync.Mutex
	out     io.Writer
	colours bool
	isOwn   func(domain.Message) bool
}

func NewScreen(out io.Writer, colours bool, isOwn func(domain.Message) bool) *Screen {
	return &Screen{out: out, colours: colours, isOwn: isOwn}
}

func (s *Screen) render(style color.Style, text string) string {
	if !s.colours {
		return text
	}
	return style.Render(text)
}

func (s *Screen) println(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintln(s.out, line)
}

// Message prints a chat bubble. Own messages are labelled "me".
func (s *Screen) Message(msg domain.Message) {
	at := msg.CreatedAt.Local().Format(time.TimeOnly)
	if s.isOwn != nil && s.isOwn(msg) {
		s.println(s.render(ownStyle, fmt.Sprintf("[%s] me: %s", at, msg.Body)))
		return
	}
	s.println(s.render(otherStyle, fmt.Sprintf("[%s] %s: %s", at, msg.Sender, msg.Body)))
}

func (s *Screen) Info(format string, args ...any) {
	s.println(s.render(infoStyle, fmt.Sprintf(format, args...)))
}

func (s *Screen) Error(err error) {
	s.println(s.render(errorStyle, "! "+err.Error()))
}

// Prompt prints label without a line break.
func (s *Screen) Prompt(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprint(s.out, s.render(promptStyle, label))
}

func (s *Screen) Header(title string) {
	s.println(s.render(promptStyle, fmt.Sprintf("  ====== %s ======", title)))
}
