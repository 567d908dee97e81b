package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/nhle/quality-escalation/internal/app"
	"github.com/nhle/quality-escalation/internal/escalation"
	"github.com/nhle/quality-escalation/internal/model"
	"github.com/nhle/quality-escalation/internal/store"
	"github.com/nhle/quality-escalation/internal/theme"
)

// runStatus opens only the store and prints the escalation table.
func runStatus(ctx context.Context, w io.Writer, cfg *model.AppConfig) error {
	st, err := app.OpenStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()
	return status(ctx, w, st, cfg)
}

// status prints every overdue-record escalation with its current state.
func status(ctx context.Context, w io.Writer, notes store.NotificationStore, cfg *model.AppConfig) error {
	notifications, err := notes.ListNotifications(ctx, store.NotificationFilter{
		Type: model.NotificationOverdue,
	})
	if err != nil {
		return err
	}

	loc, err := cfg.TimeLocation()
	if err != nil {
		return err
	}

	fmt.Fprintln(w, theme.HeaderStyle.Render("Overdue escalations"))
	if len(notifications) == 0 {
		fmt.Fprintln(w, theme.DimmedStyle.Render("No escalations."))
		return nil
	}

	rows, states := escalationRows(notifications, time.Now(), cfg.Escalation.Cooldown, loc)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		Headers("RECORD", "USER", "STATE", "LAST EMAIL", "NEXT EMAIL").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return theme.HeaderStyle
			case col == 2:
				return theme.EscalationStateStyle(states[row])
			default:
				return theme.CellStyle
			}
		})

	fmt.Fprintln(w, t.Render())
	return nil
}

// escalationRows renders one table row per notification. The second return
// value holds the state name of each row for styling.
func escalationRows(
	notifications []model.Notification,
	now time.Time,
	cooldown time.Duration,
	loc *time.Location,
) ([][]string, []string) {
	rows := make([][]string, 0, len(notifications))
	states := make([]string, 0, len(notifications))

	for i := range notifications {
		n := &notifications[i]
		state := escalation.Classify(n, now, cooldown)

		target := "-"
		if n.TargetObjectID != nil {
			target = *n.TargetObjectID
		}

		last, next := "never", "-"
		if n.LastEmailSentAt != nil {
			last = n.LastEmailSentAt.In(loc).Format("2006-01-02 15:04")
		}
		switch state {
		case escalation.StateFresh:
			next = n.LastEmailSentAt.Add(cooldown).In(loc).Format("2006-01-02 15:04")
		case escalation.StateDue:
			next = "next scan"
		}

		rows = append(rows, []string{target, n.UserID, state.String(), last, next})
		states = append(states, state.String())
	}
	return rows, states
}
