package confirm

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// ANSI sequences used to draw after the prompt without moving the cursor.
const (
	saveCursor    = "\x1b7"
	restoreCursor = "\x1b8"
	clearToEOL    = "\x1b[K"
)

var countdownStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

// Countdown draws a spinner and the remaining seconds after the prompt text.
// A nil Countdown draws nothing.
type Countdown struct {
	out      io.Writer
	spinner  spinner.Spinner
	interval time.Duration
	width    int // Terminal columns, zero when unknown
}

// NewCountdown draws on out regardless of whether it is a terminal.
func NewCountdown(out io.Writer) *Countdown {
	s := spinner.MiniDot
	return &Countdown{
		out:      out,
		spinner:  s,
		interval: s.FPS,
	}
}

// TerminalCountdown returns a Countdown for f, or nil when f is not a
// terminal.
func TerminalCountdown(f *os.File) *Countdown {
	if f == nil || !isatty.IsTerminal(f.Fd()) {
		return nil
	}
	c := NewCountdown(f)
	if w, _, err := term.GetSize(int(f.Fd())); err == nil {
		c.width = w
	}
	return c
}

// Start begins drawing for total and returns a stop function that clears
// the indicator and waits for the ticker to exit. stop is safe to call more
// than once.
func (c *Countdown) Start(total time.Duration) (stop func()) {
	if c == nil || c.out == nil || total <= 0 {
		return func() {}
	}

	deadline := time.Now().Add(total)
	quit := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		frame := 0
		for {
			c.draw(time.Until(deadline), frame)
			frame++

			select {
			case <-quit:
				fmt.Fprint(c.out, saveCursor+clearToEOL+restoreCursor)
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(quit)
			<-exited
		})
	}
}

func (c *Countdown) draw(remaining time.Duration, frame int) {
	text := c.render(remaining, frame)
	if c.width > 0 && lipgloss.Width(text) >= c.width/2 {
		return
	}
	fmt.Fprint(c.out, saveCursor+text+clearToEOL+restoreCursor)
}

// render returns the indicator text for one frame.
func (c *Countdown) render(remaining time.Duration, frame int) string {
	if remaining < 0 {
		remaining = 0
	}
	secs := int((remaining + time.Second - 1) / time.Second)
	glyph := c.spinner.Frames[frame%len(c.spinner.Frames)]
	return countdownStyle.Render(fmt.Sprintf("  %s %ds", glyph, secs))
}
