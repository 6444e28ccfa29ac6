package consolidate

// Listed is one of the up-to-three titles named in a summary message.
type Listed struct {
	Title   string
	Minutes int // remaining for reminders, elapsed for overdue
}

// Locale renders durations and messages in one language. The engine itself
// never concatenates user-visible text; everything flows through here so
// the production Arabic strings are a configuration, not a hardcode.
type Locale interface {
	// FormatRemaining renders minutes until due: a singular form for
	// exactly one unit, compound "H hours M minutes" for mixed durations,
	// and an "under a minute" form for sub-minute remainders.
	FormatRemaining(minutes int) string
	// FormatElapsed renders minutes overdue in the same unit scheme.
	FormatElapsed(minutes int) string

	SingleReminder(title string, minutes int) string
	MultiReminder(total int, listed []Listed) string
	SingleOverdue(title string, elapsedMinutes int) string
	MultiOverdue(total int, listed []Listed) string

	ReminderSubject(total int) string
	OverdueSubject(total int) string
	EmailText(name, message string, details []TaskDetail) string
	EmailHTML(name, message string, details []TaskDetail) string
}
