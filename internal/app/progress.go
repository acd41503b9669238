package app

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

var progressInterval = 100 * time.Millisecond

// Progress redraws a single status line on stderr until Done is called.
// It is inert when stderr is not a terminal or progress was turned off.
type Progress struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func startProgress(enabled bool, render func() string) *Progress {
	p := &Progress{stop: make(chan struct{}), done: make(chan struct{})}
	f, ok := stderr.(*os.File)
	if !enabled || !ok || !isatty.IsTerminal(f.Fd()) {
		close(p.done)
		return p
	}
	go p.loop(f, render)
	return p
}

func (p *Progress) loop(w io.Writer, render func() string) {
	defer close(p.done)
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	start := time.Now()
	last := 0
	draw := func() {
		line := fmt.Sprintf("[%s] %s", time.Since(start).Round(time.Second), render())
		pad := ""
		if n := len(line); n < last {
			pad = strings.Repeat(" ", last-n)
		}
		last = len(line)
		fmt.Fprintf(w, "\r%s%s", line, pad)
	}
	for {
		select {
		case <-p.stop:
			draw()
			fmt.Fprintln(w)
			return
		case <-ticker.C:
			draw()
		}
	}
}

func (p *Progress) Done() {
	p.once.Do(func() { close(p.stop) })
	<-p.done
}

func bytesProgress(read, total int64) string {
	if total <= 0 {
		return humanize.Bytes(uint64(read))
	}
	return fmt.Sprintf("%s / %s", humanize.Bytes(uint64(read)), humanize.Bytes(uint64(total)))
}

func comma(n int64) string { return humanize.Comma(n) }
