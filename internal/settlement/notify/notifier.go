package notify

import "context"

// AlertMessage describes an exhausted settlement run.
type AlertMessage struct {
	PeriodStart   string
	PeriodEnd     string
	RecipientType string
	Attempts      int
	LastError     string
}

// AlertNotifier delivers operational alerts.
type AlertNotifier interface {
	Notify(ctx context.Context, msg AlertMessage) error
}
