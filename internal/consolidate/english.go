package consolidate

import (
	"fmt"
	"html"
	"strings"
)

// English mirrors the Arabic locale for non-Arabic deployments and keeps
// the message-shape tests readable.
type English struct{}

const englishDateFormat = "02 Jan 2006 15:04"

func (English) FormatRemaining(minutes int) string {
	switch {
	case minutes < 1:
		return "under a minute"
	case minutes == 1:
		return "one minute"
	case minutes < 60:
		return fmt.Sprintf("%d minutes", minutes)
	}
	hours := minutes / 60
	rem := minutes % 60
	switch {
	case hours == 1 && rem == 0:
		return "one hour"
	case hours == 1:
		return fmt.Sprintf("one hour %d minutes", rem)
	case rem == 0:
		return fmt.Sprintf("%d hours", hours)
	default:
		return fmt.Sprintf("%d hours %d minutes", hours, rem)
	}
}

func (e English) FormatElapsed(minutes int) string {
	if minutes < 1 {
		return "0 minutes"
	}
	return e.FormatRemaining(minutes)
}

func (e English) SingleReminder(title string, minutes int) string {
	ts := e.FormatRemaining(minutes)
	switch {
	case minutes <= 5:
		return fmt.Sprintf("🚨 Urgent task: %q has only %s left!", title, ts)
	case minutes <= 15:
		return fmt.Sprintf("⏰ Urgent reminder: task %q has %s left", title, ts)
	default:
		return fmt.Sprintf("📝 Reminder: task %q has %s left", title, ts)
	}
}

func (e English) MultiReminder(total int, listed []Listed) string {
	items := make([]string, 0, len(listed))
	for _, l := range listed {
		items = append(items, fmt.Sprintf("%q (%s)", l.Title, e.FormatRemaining(l.Minutes)))
	}
	return fmt.Sprintf("🔔 You have %d tasks due soon: %s%s",
		total, strings.Join(items, ", "), englishRemainder(total-len(listed)))
}

func (e English) SingleOverdue(title string, elapsedMinutes int) string {
	return fmt.Sprintf("🔴 Overdue task: %q is %s late", title, e.FormatElapsed(elapsedMinutes))
}

func (e English) MultiOverdue(total int, listed []Listed) string {
	items := make([]string, 0, len(listed))
	for _, l := range listed {
		items = append(items, fmt.Sprintf("%q (%s late)", l.Title, e.FormatElapsed(l.Minutes)))
	}
	return fmt.Sprintf("🔴 You have %d overdue tasks: %s%s",
		total, strings.Join(items, ", "), englishRemainder(total-len(listed)))
}

func englishRemainder(extra int) string {
	switch {
	case extra <= 0:
		return ""
	case extra == 1:
		return " and 1 more task"
	default:
		return fmt.Sprintf(" and %d more tasks", extra)
	}
}

func (English) ReminderSubject(total int) string {
	if total == 1 {
		return "🔔 Reminder: a task is due soon"
	}
	return fmt.Sprintf("🔔 Reminder: %d tasks are due soon", total)
}

func (English) OverdueSubject(total int) string {
	if total == 1 {
		return "🔴 Alert: a task is overdue"
	}
	return fmt.Sprintf("🔴 Alert: %d tasks are overdue", total)
}

func (English) EmailText(name, message string, details []TaskDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n%s\n\nTask details:\n", name, message)
	for i, d := range details {
		fmt.Fprintf(&b, "%d. %s - due: %s (%s)\n", i+1, d.TaskTitle, d.DueDate.Format(englishDateFormat), d.TodoListTitle)
	}
	b.WriteString("\nSign in to the task app to manage your tasks.\n\nBest regards,\nThe task app team\n")
	return b.String()
}

func (English) EmailHTML(name, message string, details []TaskDetail) string {
	var b strings.Builder
	b.WriteString(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">`)
	fmt.Fprintf(&b, `<h2 style="color: #333;">Hello %s</h2>`, html.EscapeString(name))
	fmt.Fprintf(&b, `<p style="font-size: 16px; line-height: 1.5;">%s</p>`, html.EscapeString(message))
	b.WriteString(`<h3 style="color: #555;">Task details:</h3><ul style="list-style-type: none; padding: 0;">`)
	for _, d := range details {
		fmt.Fprintf(&b,
			`<li style="background: #f5f5f5; margin: 10px 0; padding: 15px; border-radius: 5px;"><strong>%s</strong><br><span style="color: #666;">Due: %s</span><br><span style="color: #666;">List: %s</span></li>`,
			html.EscapeString(d.TaskTitle), d.DueDate.Format(englishDateFormat), html.EscapeString(d.TodoListTitle))
	}
	b.WriteString(`</ul><p style="margin-top: 30px; color: #666;">Sign in to the task app to manage your tasks.</p>`)
	b.WriteString(`<hr style="margin: 30px 0; border: 1px solid #eee;">`)
	b.WriteString(`<p style="color: #999; font-size: 14px;">Best regards,<br>The task app team</p></div>`)
	return b.String()
}
