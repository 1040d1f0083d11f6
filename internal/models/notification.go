package models

// SweepTrigger сообщение из очереди, запускающее внеплановый обход подписок.
type SweepTrigger struct {
	Source      string `json:"source"`
	RequestedAt string `json:"requested_at"`
}

// NotificationData данные, подставляемые в шаблоны писем о подписке.
type NotificationData struct {
	UserEmail     string
	EndDate       string
	RenewalLink   string
	DaysRemaining int
}
