package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/entrhq/siphon/pkg/types"
)

const maxNameWidth = 32

// progressUI renders one bar per download job.
type progressUI struct {
	p *mpb.Progress
}

func newProgressUI(ctx context.Context, out io.Writer) *progressUI {
	return &progressUI{
		p: mpb.NewWithContext(ctx,
			mpb.WithOutput(out),
			mpb.WithWidth(48),
			mpb.WithRefreshRate(150*time.Millisecond),
		),
	}
}

type jobBar struct {
	bar   *mpb.Bar
	speed atomic.Value
}

func (u *progressUI) add(name string) *jobBar {
	jb := &jobBar{}
	jb.speed.Store("")

	barStyle := mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟")
	jb.bar = u.p.New(100,
		barStyle,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
			decor.OnAbort(decor.Percentage(decor.WC{W: 5}), "failed"),
		),
		mpb.AppendDecorators(
			decor.OnComplete(
				decor.Any(func(decor.Statistics) string {
					return jb.speed.Load().(string)
				}, decor.WCSyncSpace),
				"done",
			),
		),
	)
	return jb
}

// update is the download progress callback.
func (b *jobBar) update(ev types.DownloadEvent) {
	b.bar.SetCurrent(int64(ev.Progress))
	if s := speedOf(ev.Line); s != "" {
		b.speed.Store(s)
	}
}

func (b *jobBar) finish(ok bool) {
	if ok {
		b.bar.SetCurrent(100)
		b.bar.SetTotal(-1, true)
		return
	}
	b.bar.Abort(false)
}

func (u *progressUI) wait() {
	u.p.Wait()
}

// speedOf extracts the rate from a "[download] 12.5% at 1.00MiB/s" line.
func speedOf(line string) string {
	i := strings.LastIndex(line, " at ")
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(line[i+len(" at "):])
}

// shortName trims a URL to fit the bar label.
func shortName(url string) string {
	name := strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://")
	if len(name) > maxNameWidth {
		name = name[:maxNameWidth-1] + "…"
	}
	return name
}

// renderSummary formats the final status table.
func renderSummary(outcomes []jobOutcome) string {
	rows := make([]string, 0, len(outcomes)+1)
	rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
		cellStyle.Width(maxNameWidth+2).Render(headerStyle.Render("URL")),
		cellStyle.Width(11).Render(headerStyle.Render("STATUS")),
		cellStyle.Width(9).Render(headerStyle.Render("COOKIES")),
		headerStyle.Render("DETAIL"),
	))

	for _, o := range outcomes {
		detail := ""
		switch {
		case o.Err != nil:
			detail = o.Err.Error()
		case o.Duration > 0:
			detail = o.Duration.Round(time.Second).String()
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			cellStyle.Width(maxNameWidth+2).Render(shortName(o.URL)),
			cellStyle.Width(11).Render(statusStyle(o.Status).Render(o.Status)),
			cellStyle.Width(9).Render(fmt.Sprint(o.Cookies)),
			mutedStyle.Render(detail),
		))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "succeeded":
		return successStyle
	case "cancelled":
		return cancelledStyle
	}
	return errorStyle
}
