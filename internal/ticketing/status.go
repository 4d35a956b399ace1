package ticketing

import "github.com/eventpay/eventpay/internal/models"

// StatusFor derives a ticket's payment status from its sums. The used
// and cancelled states are one-way transitions handled elsewhere and
// never produced here.
func StatusFor(amountPaid, totalDue int64) string {
	switch {
	case amountPaid >= totalDue:
		return models.TicketPaid
	case amountPaid > 0:
		return models.TicketPartial
	default:
		return models.TicketReserved
	}
}
