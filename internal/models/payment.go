package models

// CardDetails is raw card input headed for gateway tokenization. Never
// logged, never sent to the reservation backend.
type CardDetails struct {
	Number   string
	ExpMonth int64
	ExpYear  int64
	CVC      string
}

// BillingDetails accompany the tokenized payment method.
type BillingDetails struct {
	Name  string
	Email string
	Phone string
}
