// Package viewer provides a TUI showing live per-channel statistics of
// the calibrated readings. It is purely observational: it never
// touches the port and receives its data from the acquisition loop.
package viewer

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/gammazero/deque"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/strainrig/gauged/calibrate"
)

const (
	viewerTitle = " GAUGED Channel Viewer "
	colWidth    = 18 // width of each channel's data column
)

// Viewer is a TUI component for displaying real-time channel data.
type Viewer struct {
	tuiApp      *tview.Application
	view        *tview.TextView
	history     []*deque.Deque[float64]
	set         *calibrate.Set
	historySize int
	mu          sync.Mutex
	ossignal    chan os.Signal
	simulated   bool
}

type channelStats struct {
	min    float64
	max    float64
	mean   float64
	stdDev float64
}

// New creates a viewer for the given channel count. historySize bounds
// the per-channel rolling window the statistics are computed over.
func New(numChannels, historySize int, set *calibrate.Set, ossignal chan os.Signal, simulated bool) *Viewer {
	v := &Viewer{
		tuiApp:      tview.NewApplication(),
		history:     make([]*deque.Deque[float64], numChannels),
		set:         set,
		historySize: historySize,
		ossignal:    ossignal,
		simulated:   simulated,
	}
	for ch := range v.history {
		v.history[ch] = new(deque.Deque[float64])
		v.history[ch].Grow(historySize)
	}
	return v
}

// Start initializes and runs the TUI. It should be called as a goroutine.
func (v *Viewer) Start(stopSignal chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	v.setupUI()

	go func() {
		<-stopSignal
		slog.Info("Stopping channel viewer TUI...")
		v.tuiApp.Stop()
	}()

	if err := v.tuiApp.Run(); err != nil {
		slog.Error("Error running channel viewer TUI", "error", err)
		os.Exit(1)
	}
	slog.Info("Channel viewer TUI has stopped.")
}

// Update receives the latest calibrated values, prepares the display
// strings, and schedules a TUI redraw. Safe for concurrent use.
func (v *Viewer) Update(values []float64) {
	v.mu.Lock()
	for ch, value := range values {
		if ch >= len(v.history) {
			break
		}
		q := v.history[ch]
		if q.Len() == v.historySize {
			q.PopFront()
		}
		q.PushBack(value)
	}
	line1, line2, line3 := v.prepareDisplayStrings()
	v.mu.Unlock()

	v.tuiApp.QueueUpdateDraw(func() {
		v.draw(line1, line2, line3)
	})
}

func (v *Viewer) setupUI() {
	v.view = tview.NewTextView()
	v.view.SetDynamicColors(true)
	v.view.SetTextAlign(tview.AlignLeft)
	v.view.SetBackgroundColor(tcell.ColorDarkSlateGray)
	v.view.SetBorder(true).SetTitle(viewerTitle).SetTitleColor(tcell.ColorLightBlue)

	var introText strings.Builder
	if v.simulated {
		introText.WriteString("[#ff0000]Caution:[-] Displaying simulated converter values.\n")
	} else {
		introText.WriteString("Displaying live calibrated readings.\n")
	}
	introText.WriteString("Hit [#ff0000]q[-] to exit, [#ff0000]r[-] to reload config and re-tare")

	intro := tview.NewTextView()
	intro.SetBorder(true).SetTitle(" GAUGED ").SetTitleColor(tcell.ColorLightBlue)
	intro.SetText(introText.String())
	intro.SetTextAlign(tview.AlignCenter)
	intro.SetDynamicColors(true)
	intro.SetBackgroundColor(tcell.ColorDarkSlateGray)

	layout := tview.NewFlex().SetDirection(tview.FlexRow)
	layout.AddItem(intro, 4, 1, false)
	// The channel view itself is 3 lines of text + 2 for the border.
	layout.AddItem(v.view, 5, 1, true)

	width := 22 + (colWidth * len(v.history))
	layout.SetRect(1, 1, width, 10)

	v.tuiApp.SetRoot(layout, true).SetFocus(v.view)
	v.tuiApp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch string(event.Rune()) {
		case "q", "Q":
			v.tuiApp.Stop()
			v.ossignal <- os.Interrupt
		case "r", "R":
			v.tuiApp.Stop()
			v.ossignal <- syscall.SIGHUP
		}
		return event
	})
}

// prepareDisplayStrings generates the output strings from the current
// channel data. Must be called with the mutex held.
func (v *Viewer) prepareDisplayStrings() (string, string, string) {
	var buft, bufm, bufb strings.Builder

	buft.WriteString(fmt.Sprintf("[yellow]%-*s[white]", colWidth+4, " [min|mean|max]"))
	bufm.WriteString(fmt.Sprintf("[yellow]%-*s[white]", colWidth+4, " Standard Deviation"))
	bufb.WriteString(fmt.Sprintf("[yellow]%-*s[white]", colWidth+4, " Channel: offset"))

	offsets := v.set.Offsets()
	for ch, q := range v.history {
		data := make([]float64, q.Len())
		for i := range q.Len() {
			data[i] = q.At(i)
		}
		stats := calculateStats(data)

		buft.WriteString(fmt.Sprintf(" [%6.0f|%6.0f|%6.0f] ", stats.min, math.Round(stats.mean), stats.max))
		bufm.WriteString(fmt.Sprintf("        %7.1f       ", stats.stdDev))
		bufb.WriteString(fmt.Sprintf("    [blue]ch%d:[-] %-8.1f   ", ch, offsets[ch]))
	}
	return buft.String(), bufm.String(), bufb.String()
}

// draw updates the TextView with the provided strings. Must be called
// from within the TUI's main thread via QueueUpdateDraw.
func (v *Viewer) draw(line1, line2, line3 string) {
	v.view.SetText(fmt.Sprintf("%s\n%s\n%s", line1, line2, line3))
}

func calculateStats(data []float64) channelStats {
	if len(data) == 0 {
		return channelStats{}
	}

	var sum float64
	min, max := data[0], data[0]
	for _, v := range data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	mean := sum / float64(len(data))

	var sumOfSquares float64
	for _, v := range data {
		sumOfSquares += (v - mean) * (v - mean)
	}
	stdDev := math.Sqrt(sumOfSquares / float64(len(data)))

	return channelStats{
		min:    min,
		max:    max,
		mean:   mean,
		stdDev: stdDev,
	}
}
