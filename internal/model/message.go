package model

// Message kinds map onto the alert styles used by the page templates.
const (
	KindSuccess = "success"
	KindInfo    = "info"
	KindWarning = "warning"
	KindError   = "error"
	KindDanger  = "danger"
)

// Message is a user-facing notice rendered at the top of a page.
type Message struct {
	Kind string
	Text string
}

// Empty reports whether there is nothing to show.
func (m Message) Empty() bool { return m.Text == "" }
