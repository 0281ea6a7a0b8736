package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/tripsync/tripctx/internal/core/domain"
)

const timeLayout = "2006-01-02 15:04 MST"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatChunk(rank int, rc domain.RetrievedChunk) string {
	title := rc.Document.Title
	if title == "" {
		title = "Untitled"
	}
	return fmt.Sprintf("[%d] %s (%s, %s, score %.3f)\n%s",
		rank, title, rc.Document.SourceType, rc.Document.CreatedAt.UTC().Format("2006-01-02"),
		rc.Score, strings.TrimSpace(rc.Chunk.Text))
}

var sectionTitles = map[domain.SectionKind]string{
	domain.SectionCalendar:    "Calendar",
	domain.SectionLedger:      "Expenses",
	domain.SectionPolls:       "Polls",
	domain.SectionPlaces:      "Saved places",
	domain.SectionChat:        "Recent chat",
	domain.SectionRoster:      "Team",
	domain.SectionBroadcasts:  "Announcements",
	domain.SectionPreferences: "Preferences",
}

func sectionHeader(kind domain.SectionKind, rec *domain.AggregateRecord) string {
	header := "### " + sectionTitles[kind]
	if kind == domain.SectionChat && !rec.IsOmitted(kind) && len(rec.Chat.Messages) > 0 {
		header += fmt.Sprintf(" (mood: %s, %.2f)", rec.Chat.Sentiment.Label, rec.Chat.Sentiment.Score)
	}
	return header
}

func sectionItems(kind domain.SectionKind, rec *domain.AggregateRecord) []string {
	var items []string
	switch kind {
	case domain.SectionCalendar:
		for _, e := range rec.Calendar {
			items = append(items, formatEvent(e))
		}
	case domain.SectionLedger:
		for _, e := range rec.Ledger {
			items = append(items, formatLedger(e))
		}
	case domain.SectionPolls:
		for _, p := range rec.Polls {
			items = append(items, formatPoll(p))
		}
	case domain.SectionPlaces:
		for _, p := range rec.Places {
			items = append(items, formatPlace(p))
		}
	case domain.SectionChat:
		for _, m := range rec.Chat.Messages {
			items = append(items, fmt.Sprintf("- [%s] %s: %s", formatTime(m.SentAt), m.Author, oneLine(m.Text)))
		}
	case domain.SectionRoster:
		for _, r := range rec.Roster {
			line := fmt.Sprintf("- %s (%s)", r.DisplayName, r.UserID)
			if r.Role != "" {
				line += ": " + r.Role
			}
			items = append(items, line)
		}
	case domain.SectionBroadcasts:
		for _, b := range rec.Broadcasts {
			items = append(items, fmt.Sprintf("- [%s] %s: %s", formatTime(b.SentAt), b.Author, oneLine(b.Text)))
		}
	case domain.SectionPreferences:
		for _, p := range rec.Preferences {
			items = append(items, fmt.Sprintf("- %s: %s = %s", p.UserID, p.Key, p.Value))
		}
	}
	return items
}

func formatEvent(e domain.CalendarEvent) string {
	var when string
	switch {
	case e.AllDay:
		when = e.Start.UTC().Format("2006-01-02") + " (all day)"
	case e.End.IsZero() || !e.End.After(e.Start):
		when = formatTime(e.Start)
	default:
		when = formatTime(e.Start) + " to " + formatTime(e.End)
	}
	line := "- " + when + ": " + e.Title
	if e.Location != "" {
		line += " @ " + e.Location
	}
	return line
}

func formatLedger(e domain.LedgerEntry) string {
	line := fmt.Sprintf("- %s: %s %s paid by %s", e.Description, formatAmount(e.Amount), e.Currency, e.PaidBy)
	if len(e.SplitWith) > 0 {
		line += ", split with " + strings.Join(e.SplitWith, ", ")
	}
	return line
}

// formatAmount renders minor units with two decimals.
func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

func formatPoll(p domain.Poll) string {
	state := "open"
	if p.Closed {
		state = "closed"
	}
	opts := make([]string, 0, len(p.Options))
	for _, o := range p.Options {
		opts = append(opts, fmt.Sprintf("%s (%d)", o.Label, o.Votes))
	}
	return fmt.Sprintf("- [%s] %s %s", state, p.Question, strings.Join(opts, ", "))
}

func formatPlace(p domain.Place) string {
	line := "- " + p.Name
	if p.Category != "" {
		line += " (" + p.Category + ")"
	}
	if p.Address != "" {
		line += ": " + p.Address
	}
	if p.Notes != "" {
		line += ". " + oneLine(p.Notes)
	}
	return line
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
