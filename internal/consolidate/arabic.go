package consolidate

import (
	"fmt"
	"html"
	"strings"
)

// Arabic is the production locale. The strings are the ones the web client
// and its users already know; do not "fix" their spacing or punctuation.
type Arabic struct{}

const arabicDateFormat = "02/01/2006 15:04"

func (Arabic) FormatRemaining(minutes int) string {
	switch {
	case minutes < 1:
		return "أقل من دقيقة"
	case minutes == 1:
		return "دقيقة واحدة"
	case minutes < 60:
		return fmt.Sprintf("%d دقيقة", minutes)
	}
	hours := minutes / 60
	rem := minutes % 60
	switch {
	case hours == 1 && rem == 0:
		return "ساعة واحدة"
	case hours == 1:
		return fmt.Sprintf("ساعة واحدة و %d دقيقة", rem)
	case rem == 0:
		return fmt.Sprintf("%d ساعات", hours)
	default:
		return fmt.Sprintf("%d ساعات و %d دقيقة", hours, rem)
	}
}

func (Arabic) FormatElapsed(minutes int) string {
	hours := minutes / 60
	rem := minutes % 60
	switch {
	case hours == 0 && rem == 1:
		return "دقيقة واحدة"
	case hours == 0:
		return fmt.Sprintf("%d دقيقة", rem)
	case hours == 1 && rem == 0:
		return "ساعة واحدة"
	case hours == 1:
		return fmt.Sprintf("ساعة واحدة و %d دقيقة", rem)
	case rem == 0:
		return fmt.Sprintf("%d ساعات", hours)
	default:
		return fmt.Sprintf("%d ساعات و %d دقيقة", hours, rem)
	}
}

func (a Arabic) SingleReminder(title string, minutes int) string {
	ts := a.FormatRemaining(minutes)
	switch {
	case minutes <= 5:
		return fmt.Sprintf("🚨 مهمة عاجلة: \"%s\" متبقي لها %s فقط!", title, ts)
	case minutes <= 15:
		return fmt.Sprintf("⏰ تذكير عاجل: مهمة \"%s\" متبقي لها %s", title, ts)
	default:
		return fmt.Sprintf("📝 تذكير: لديك مهمة \"%s\" متبقي لها %s", title, ts)
	}
}

func (a Arabic) MultiReminder(total int, listed []Listed) string {
	items := make([]string, 0, len(listed))
	for _, l := range listed {
		items = append(items, fmt.Sprintf("\"%s\" (%s)", l.Title, a.FormatRemaining(l.Minutes)))
	}
	return fmt.Sprintf("🔔 لديك %d مهام مستحقة قريباً: %s%s",
		total, strings.Join(items, "، "), arabicRemainder(total-len(listed)))
}

func (a Arabic) SingleOverdue(title string, elapsedMinutes int) string {
	return fmt.Sprintf("🔴 مهمة متأخرة: \"%s\" تأخرت %s", title, a.FormatElapsed(elapsedMinutes))
}

func (a Arabic) MultiOverdue(total int, listed []Listed) string {
	items := make([]string, 0, len(listed))
	for _, l := range listed {
		items = append(items, fmt.Sprintf("\"%s\" (تأخرت %s)", l.Title, a.FormatElapsed(l.Minutes)))
	}
	return fmt.Sprintf("🔴 لديك %d مهام متأخرة: %s%s",
		total, strings.Join(items, "، "), arabicRemainder(total-len(listed)))
}

func arabicRemainder(extra int) string {
	switch {
	case extra <= 0:
		return ""
	case extra == 1:
		return " و مهمة أخرى"
	default:
		return fmt.Sprintf(" و %d مهام أخرى", extra)
	}
}

func (Arabic) ReminderSubject(total int) string {
	if total == 1 {
		return "🔔 تذكير: مهمة مستحقة قريباً"
	}
	return fmt.Sprintf("🔔 تذكير: %d مهام مستحقة قريباً", total)
}

func (Arabic) OverdueSubject(total int) string {
	if total == 1 {
		return "🔴 تنبيه: مهمة متأخرة"
	}
	return fmt.Sprintf("🔴 تنبيه: %d مهام متأخرة", total)
}

func (Arabic) EmailText(name, message string, details []TaskDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "مرحباً %s,\n\n%s\n\nتفاصيل المهام:\n", name, message)
	for i, d := range details {
		fmt.Fprintf(&b, "%d. %s - تاريخ الاستحقاق: %s\n", i+1, d.TaskTitle, d.DueDate.Format(arabicDateFormat))
	}
	b.WriteString("\nيمكنك تسجيل الدخول إلى تطبيق المهام لإدارة مهامك.\n\nمع أطيب التحيات،\nفريق تطبيق المهام\n")
	return b.String()
}

func (Arabic) EmailHTML(name, message string, details []TaskDetail) string {
	var b strings.Builder
	b.WriteString(`<div dir="rtl" style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">`)
	fmt.Fprintf(&b, `<h2 style="color: #333;">مرحباً %s</h2>`, html.EscapeString(name))
	fmt.Fprintf(&b, `<p style="font-size: 16px; line-height: 1.5;">%s</p>`, html.EscapeString(message))
	b.WriteString(`<h3 style="color: #555;">تفاصيل المهام:</h3><ul style="list-style-type: none; padding: 0;">`)
	for _, d := range details {
		fmt.Fprintf(&b,
			`<li style="background: #f5f5f5; margin: 10px 0; padding: 15px; border-radius: 5px;"><strong>%s</strong><br><span style="color: #666;">تاريخ الاستحقاق: %s</span><br><span style="color: #666;">قائمة المهام: %s</span></li>`,
			html.EscapeString(d.TaskTitle), d.DueDate.Format(arabicDateFormat), html.EscapeString(d.TodoListTitle))
	}
	b.WriteString(`</ul><p style="margin-top: 30px; color: #666;">يمكنك تسجيل الدخول إلى تطبيق المهام لإدارة مهامك.</p>`)
	b.WriteString(`<hr style="margin: 30px 0; border: 1px solid #eee;">`)
	b.WriteString(`<p style="color: #999; font-size: 14px;">مع أطيب التحيات،<br>فريق تطبيق المهام</p></div>`)
	return b.String()
}
