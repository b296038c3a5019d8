// Package output renders run headers and summaries for the terminal and
// in machine-readable formats.
package output

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/wesleyorama2/bombard/internal/metrics"
)

const (
	ruleWidth = 56

	boxHorizontal = "━"

	iconSuccess = "✓"
	iconFailure = "✗"
	iconInfo    = "ℹ"
	iconWarning = "⚠"
)

// RunInfo describes a run for the header.
type RunInfo struct {
	RunID       string
	Threads     int
	Iterations  int
	Duration    time.Duration
	RampUp      time.Duration
	ThreadDelay time.Duration
	Requests    int
	Report      string
	MetricsAddr string
}

// Console writes human-readable run output.
type Console struct {
	writer io.Writer
	colors *ColorScheme
	isTTY  bool
	quiet  bool

	mu sync.Mutex
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Writer      io.Writer
	Quiet       bool
	NoColor     bool
	ForceColors bool
}

// NewConsole creates a console writer. Colors are used only when the writer
// is a terminal that supports them, unless forced or disabled.
func NewConsole(config ConsoleConfig) *Console {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}

	isTTY := isTerminal(config.Writer)
	useColors := config.ForceColors || (!config.NoColor && isTTY && supportsColors())

	colors := NoColorScheme()
	if useColors {
		colors = ForcedColorScheme()
	}

	return &Console{
		writer: config.Writer,
		colors: colors,
		isTTY:  isTTY,
		quiet:  config.Quiet,
	}
}

// isTerminal checks if the writer is a terminal, including Cygwin and
// MSYS pseudo terminals on Windows.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || (f != os.Stdout && f != os.Stderr) {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// supportsColors checks if the terminal supports colors.
func supportsColors() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	if runtime.GOOS == "windows" {
		return true
	}
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run banner and the effective execution settings.
func (c *Console) PrintHeader(info RunInfo) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.rule()
	c.writeln(c.colors.Title.Sprintf("bombard %s - Running", info.RunID))
	c.rule()
	c.writeln("")

	mode := fmt.Sprintf("%d iterations", info.Iterations)
	if info.Iterations == 0 {
		mode = formatDuration(info.Duration)
	}

	c.field("Threads", fmt.Sprintf("%d", info.Threads))
	c.field("Requests", fmt.Sprintf("%d", info.Requests))
	c.field("Run for", mode)
	c.field("Ramp-up", formatDuration(info.RampUp))
	c.field("Delay", formatDurationShort(info.ThreadDelay))
	if info.Report != "" {
		c.field("Report", info.Report)
	}
	if info.MetricsAddr != "" {
		c.field("Metrics", "http://"+info.MetricsAddr+"/metrics")
	}
	c.writeln("")
}

// PrintSummary prints the final statistics. runErr is the fatal error that
// ended the run, if any.
func (c *Console) PrintSummary(title string, s *metrics.Summary, runErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quiet {
		if runErr != nil {
			c.writeln(c.colors.StatusErr.Sprint("FAILED"))
		} else {
			c.writeln(c.colors.StatusOK.Sprint("COMPLETED"))
		}
		return
	}

	status := c.colors.StatusOK.Sprint("Completed " + iconSuccess)
	if runErr != nil {
		status = c.colors.StatusErr.Sprint("Failed " + iconFailure)
	}

	c.writeln("")
	c.rule()
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprint(title), status))
	c.rule()
	c.writeln("")

	if runErr != nil {
		c.writeln(fmt.Sprintf("%s %s", c.colors.StatusErr.Sprint("Error:"), runErr))
		c.writeln("")
	}

	successRate := 1 - s.ErrorRate()
	c.field("Duration", formatDuration(s.Duration))
	c.field("Total Reqs", formatNumber(s.Total))
	c.field("Failed", c.colors.forRate(rateOf(s.Failed, s.Total)).Sprint(formatNumber(s.Failed)))
	c.field("Success Rate", c.colors.forRate(s.ErrorRate()).Sprintf("%.1f%%", successRate*100))
	c.field("Throughput", fmt.Sprintf("%.1f req/s", s.RPS))
	c.writeln("")

	if len(s.StatusCodes) > 0 || s.Failed > 0 {
		c.writeln(c.colors.Title.Sprint("Status Codes:"))
		for _, code := range sortedCodes(s.StatusCodes) {
			c.writeln(fmt.Sprintf("  %s  %s", c.colors.forStatus(code).Sprintf("%-6d", code), formatNumber(s.StatusCodes[code])))
		}
		if s.Failed > 0 {
			c.writeln(fmt.Sprintf("  %s  %s", c.colors.StatusErr.Sprintf("%-6s", "failed"), formatNumber(s.Failed)))
		}
		c.writeln("")
	}

	if s.Total == 0 {
		return
	}

	c.writeln(c.colors.Title.Sprint("Latency Distribution:"))
	c.writeln(fmt.Sprintf("  Min:       %s", formatDurationShort(s.Latency.Min)))
	c.writeln(fmt.Sprintf("  Mean:      %s", formatDurationShort(s.Latency.Mean)))
	c.writeln(fmt.Sprintf("  P50:       %s", formatDurationShort(s.Latency.P50)))
	c.writeln(fmt.Sprintf("  P90:       %s", formatDurationShort(s.Latency.P90)))
	c.writeln(fmt.Sprintf("  P95:       %s", formatDurationShort(s.Latency.P95)))
	c.writeln(fmt.Sprintf("  P99:       %s", formatDurationShort(s.Latency.P99)))
	c.writeln(fmt.Sprintf("  Max:       %s", formatDurationShort(s.Latency.Max)))
	c.writeln("")

	c.writeln(c.colors.Title.Sprint("Requests:"))
	c.requestTable(s.Requests)
	c.writeln("")
}

func (c *Console) requestTable(reqs []metrics.RequestSummary) {
	width := len("NAME")
	for _, r := range reqs {
		if len(r.Name) > width {
			width = len(r.Name)
		}
	}

	c.writeln(c.colors.Dim.Sprintf("  %-*s %9s %7s %9s %9s %9s %9s",
		width, "NAME", "COUNT", "FAILED", "P50", "P95", "P99", "MAX"))
	for _, r := range reqs {
		failed := fmt.Sprintf("%7d", r.Failed+r.HTTPErrors)
		if r.Failed+r.HTTPErrors > 0 {
			failed = c.colors.StatusErr.Sprint(failed)
		}
		c.writeln(fmt.Sprintf("  %-*s %9s %s %9s %9s %9s %9s",
			width, r.Name,
			formatNumber(r.Total),
			failed,
			formatDurationShort(r.Latency.P50),
			formatDurationShort(r.Latency.P95),
			formatDurationShort(r.Latency.P99),
			formatDurationShort(r.Latency.Max)))
	}
}

// Infof prints an informational line.
func (c *Console) Infof(format string, args ...interface{}) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeln(fmt.Sprintf("%s %s", c.colors.Value.Sprint(iconInfo), fmt.Sprintf(format, args...)))
}

// Warnf prints a warning line.
func (c *Console) Warnf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeln(fmt.Sprintf("%s %s", c.colors.StatusWarn.Sprint(iconWarning), fmt.Sprintf(format, args...)))
}

func (c *Console) field(label, value string) {
	c.writeln(fmt.Sprintf("%s %s", c.colors.Label.Sprintf("%-14s", label+":"), value))
}

func (c *Console) rule() {
	c.writeln(c.colors.Rule.Sprint(strings.Repeat(boxHorizontal, ruleWidth)))
}

// writeln writes to the output with a newline.
func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

func rateOf(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func sortedCodes(m map[int]int64) []int {
	codes := make([]int, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatDurationShort formats a duration in a short format.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}
