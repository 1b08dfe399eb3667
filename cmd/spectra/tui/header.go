package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	spectrav1 "github.com/jamesainslie/spectra/pkg/api/spectra/v1"
)

// renderAppHeader renders the title line: instrument identity, state and
// whether events are streaming.
func renderAppHeader(st *spectrav1.Status, live bool) string {
	appName := titleStyle.Render("SPECTRA")
	if st == nil {
		return fmt.Sprintf(" %s%s", appName, mutedTextStyle.Render("  connecting..."))
	}

	ident := st.SerialNumber
	if st.HardwareType != "" {
		ident = st.HardwareType + " " + ident
	}
	header := fmt.Sprintf(" %s%s  %s", appName,
		mutedTextStyle.Render("  "+ident+"  •"),
		stateStyle(st.State).Render(st.State))

	if st.State == "Fault" && st.FaultCause != "" {
		header += errorTextStyle.Render("  " + st.FaultCause)
	}
	if st.PumpDownRemaining > 0 {
		remaining := time.Duration(st.PumpDownRemaining * float64(time.Second)).Round(time.Second)
		header += warningTextStyle.Render(fmt.Sprintf("  pump-down %v", remaining))
	}
	if live {
		header += successTextStyle.Render("  ● LIVE")
	}
	return header
}

// renderPreventers lists the conditions holding the instrument out of
// operate. Empty when there are none.
func renderPreventers(preventers []string) string {
	if len(preventers) == 0 {
		return ""
	}
	return warningTextStyle.Render("  Preventers: " + strings.Join(preventers, ", "))
}

// renderAcquisitionMetrics renders the acquisition line: state, scan count
// and last TIC.
func renderAcquisitionMetrics(acq spectrav1.AcquisitionStatus) string {
	parts := []string{
		statsLabelStyle.Render("Acquisition: ") + statsValueStyle.Render(acq.State),
	}
	if acq.SessionID != "" {
		parts = append(parts, statsLabelStyle.Render("Session: ")+acq.SessionID)
	}
	if acq.LastScanIndex >= 0 {
		parts = append(parts, fmt.Sprintf("%s%s", statsLabelStyle.Render("Scans: "),
			humanize.Comma(int64(acq.LastScanIndex+1))))
		parts = append(parts, statsLabelStyle.Render("TIC: ")+humanize.SIWithDigits(acq.LastTIC, 3, ""))
	}
	return "  " + strings.Join(parts, "  |  ")
}

// renderProgress draws the elapsed fraction of a timed run.
func renderProgress(elapsed, total float64, width int) string {
	if total <= 0 || width < 10 {
		return ""
	}
	pct := elapsed / total
	if pct > 1 {
		pct = 1
	}
	if pct < 0 {
		pct = 0
	}
	barWidth := width - 8
	filled := int(pct * float64(barWidth))
	return "  " + progressFillStyle.Render(strings.Repeat("█", filled)) +
		progressEmptyStyle.Render(strings.Repeat("░", barWidth-filled)) +
		fmt.Sprintf(" %3d%%", int(pct*100))
}
