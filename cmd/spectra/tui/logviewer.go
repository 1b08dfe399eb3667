package tui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	spectrav1 "github.com/jamesainslie/spectra/pkg/api/spectra/v1"
	"github.com/jamesainslie/spectra/pkg/spectra/logging"
)

// ringBuffer is a thread-safe fixed-size buffer with FIFO eviction.
type ringBuffer[T any] struct {
	mu         sync.RWMutex
	entries    []T
	maxEntries int
}

func newRingBuffer[T any](maxEntries int) *ringBuffer[T] {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &ringBuffer[T]{
		entries:    make([]T, 0, maxEntries),
		maxEntries: maxEntries,
	}
}

// Add appends an entry, evicting the oldest if at capacity.
func (rb *ringBuffer[T]) Add(entry T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(rb.entries) >= rb.maxEntries {
		rb.entries = rb.entries[1:]
	}
	rb.entries = append(rb.entries, entry)
}

// Replace discards the contents and keeps the newest maxEntries of entries.
func (rb *ringBuffer[T]) Replace(entries []T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(entries) > rb.maxEntries {
		entries = entries[len(entries)-rb.maxEntries:]
	}
	rb.entries = append(rb.entries[:0], entries...)
}

// Entries returns a copy of all entries in chronological order.
func (rb *ringBuffer[T]) Entries() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	result := make([]T, len(rb.entries))
	copy(result, rb.entries)
	return result
}

func (rb *ringBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}

// entryLevel parses the level of a daemon log entry. Unknown names count
// as info.
func entryLevel(e spectrav1.LogEntry) logging.Level {
	level, err := logging.ParseLevel(e.Level)
	if err != nil {
		return logging.LevelInfo
	}
	return level
}

// filterEntriesByLevel returns entries at or above minLevel.
func filterEntriesByLevel(entries []spectrav1.LogEntry, minLevel logging.Level) []spectrav1.LogEntry {
	result := make([]spectrav1.LogEntry, 0, len(entries))
	for _, e := range entries {
		if entryLevel(e) >= minLevel {
			result = append(result, e)
		}
	}
	return result
}

// clampLogScroll keeps the scroll offset within bounds.
func clampLogScroll(offset, totalEntries, visibleRows int) int {
	if totalEntries <= visibleRows {
		return 0
	}
	maxOffset := totalEntries - visibleRows
	if offset < 0 {
		return 0
	}
	if offset > maxOffset {
		return maxOffset
	}
	return offset
}

// getVisibleLogEntries filters by level, then applies offset and limit.
func getVisibleLogEntries(entries []spectrav1.LogEntry, minLevel logging.Level, offset, limit int) []spectrav1.LogEntry {
	filtered := filterEntriesByLevel(entries, minLevel)

	if offset >= len(filtered) {
		return nil
	}

	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	return filtered[offset:end]
}

func logLevelStyle(level logging.Level) lipgloss.Style {
	switch level {
	case logging.LevelDebug:
		return logDebugStyle
	case logging.LevelWarn:
		return logWarnStyle
	case logging.LevelError:
		return logErrorStyle
	default:
		return logInfoStyle
	}
}

func logLevelChar(level logging.Level) string {
	switch level {
	case logging.LevelDebug:
		return "D"
	case logging.LevelInfo:
		return "I"
	case logging.LevelWarn:
		return "W"
	case logging.LevelError:
		return "E"
	default:
		return "?"
	}
}

// renderLogViewer renders the log pane within width x height.
func renderLogViewer(entries []spectrav1.LogEntry, filterLevel logging.Level, scrollOffset, width, height int) string {
	if height < 3 {
		return ""
	}

	var b strings.Builder

	title := fmt.Sprintf(" Daemon log [%s] ", filterLevel)
	b.WriteString(titleStyle.Render(title) + mutedTextStyle.Render("[1-4] filter  [l] close"))
	b.WriteString("\n")
	b.WriteString(renderDivider(width))
	b.WriteString("\n")

	visibleRows := max(height-2, 1)

	filtered := filterEntriesByLevel(entries, filterLevel)
	scrollOffset = clampLogScroll(scrollOffset, len(filtered), visibleRows)
	visible := getVisibleLogEntries(entries, filterLevel, scrollOffset, visibleRows)

	for _, entry := range visible {
		b.WriteString(renderLogEntry(entry, width))
		b.WriteString("\n")
	}
	for i := len(visible); i < visibleRows; i++ {
		b.WriteString("\n")
	}

	if len(filtered) > visibleRows {
		scrollPct := scrollOffset * 100 / (len(filtered) - visibleRows)
		indicator := mutedTextStyle.Render(fmt.Sprintf(" [%d/%d] %d%%", scrollOffset+1, len(filtered), scrollPct))
		if padding := width - lipgloss.Width(indicator); padding > 0 {
			b.WriteString(strings.Repeat(" ", padding))
		}
		b.WriteString(indicator)
	}

	return b.String()
}

// renderLogEntry renders "HH:MM:SS [L] component: message".
func renderLogEntry(entry spectrav1.LogEntry, width int) string {
	level := entryLevel(entry)

	comp := entry.Component
	if len(comp) > 11 {
		comp = comp[:11]
	}

	prefixWidth := 8 + 1 + 3 + 1 + len(comp) + 1 + 1
	msgWidth := max(width-prefixWidth, 10)

	msg := entry.Message
	if entry.Fields != "" {
		msg += " " + entry.Fields
	}
	if len(msg) > msgWidth {
		msg = msg[:msgWidth-3] + "..."
	}

	return fmt.Sprintf("%s %s %s: %s",
		logTimeStyle.Render(entry.Time.Format("15:04:05")),
		logLevelStyle(level).Render("["+logLevelChar(level)+"]"),
		logComponentStyle.Render(comp),
		msg)
}

// LogViewerState holds the state of the log pane.
type LogViewerState struct {
	Open         bool
	Buffer       *ringBuffer[spectrav1.LogEntry]
	FilterLevel  logging.Level
	ScrollOffset int
}

// NewLogViewerState creates a closed log pane showing every level.
func NewLogViewerState(size int) *LogViewerState {
	return &LogViewerState{
		Buffer:      newRingBuffer[spectrav1.LogEntry](size),
		FilterLevel: logging.LevelDebug,
	}
}

func (s *LogViewerState) Toggle() {
	s.Open = !s.Open
}

// SetFilterLevel sets the minimum level shown and resets the scroll.
func (s *LogViewerState) SetFilterLevel(level logging.Level) {
	s.FilterLevel = level
	s.ScrollOffset = 0
}

func (s *LogViewerState) ScrollUp() {
	if s.ScrollOffset > 0 {
		s.ScrollOffset--
	}
}

func (s *LogViewerState) ScrollDown(visibleRows int) {
	maxOffset := max(s.FilteredEntryCount()-visibleRows, 0)
	if s.ScrollOffset < maxOffset {
		s.ScrollOffset++
	}
}

// FilteredEntryCount returns the number of entries at or above the filter.
func (s *LogViewerState) FilteredEntryCount() int {
	return len(filterEntriesByLevel(s.Buffer.Entries(), s.FilterLevel))
}
