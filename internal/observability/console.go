package observability

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorReset    = "\033[0m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

// termMu serializes console writes so status lines never interleave with
// log output.
var termMu sync.Mutex

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

type termWriter struct {
	w io.Writer
}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return tw.w.Write(p)
}

// NewTermWriter returns an io.Writer suitable for log.SetOutput().
func NewTermWriter() io.Writer {
	return termWriter{w: os.Stderr}
}

func PrintBanner(version string) {
	banner := `
  ____          __              _         __
 / __ \_______/ /__ ______ _  (_)__  ___/ /
/ /_/ / __/ _  / -_) __/  ' \/ / _ \/ _  /
\____/_/  \_,_/\__/_/ /_/_/_/_/_//_/\_,_/
`
	width := termWidth()
	lines := strings.Split(banner, "\n")
	lines = append(lines, "order operations agent "+version, "")

	termMu.Lock()
	defer termMu.Unlock()
	for _, l := range lines {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Printf("%s%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan, l, colorReset)
	}
}

// StatusLine renders a one-line health summary.
func StatusLine() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	st := GetStatus()

	pulseText, pulseColor := "OFFLINE", colorNeonMag
	switch delta := time.Since(st.LastHeartbeat); {
	case delta < 40*time.Second:
		pulseText, pulseColor = "HEALTHY", colorNeonCyan
	case delta < 90*time.Second:
		pulseText, pulseColor = "LAGGING", colorPurple
	}

	detail := st.Detail
	if detail == "" {
		detail = "waiting"
	}
	if len(detail) > 32 {
		detail = detail[:29] + "..."
	}

	return fmt.Sprintf("[%s] %s%-7s%s | %-15s | runs=%d | %s | up %v | %.1fMB",
		st.LastHeartbeat.Format("15:04:05"),
		pulseColor, pulseText, colorReset,
		st.State, st.ActiveRuns, detail,
		time.Since(startTime).Round(time.Second),
		float64(m.Alloc)/1024/1024,
	)
}

// PrintStatusLine writes StatusLine to stdout under the console lock.
func PrintStatusLine() {
	line := StatusLine()
	termMu.Lock()
	defer termMu.Unlock()
	fmt.Println(line)
}
