package orders

import (
	"time"

	"go-fulfillment-saga/order-processing/types"
)

// slaGrace lands a BOOKED re-run just after its deadline rather than on it
const slaGrace = time.Second

// NextRecoverySchedule is how long to wait before looking at order again.
// Terminal orders get zero.
func (s *Service) NextRecoverySchedule(order *types.Order) time.Duration {
	switch order.Status {
	case types.OrderStatusCreated:
		return s.schedule.CreatedRecoveryDelay
	case types.OrderStatusBooked:
		deadline, _ := order.SLADeadline(s.sla)
		untilDeadline := deadline.Sub(s.now())
		if untilDeadline <= 0 {
			return s.schedule.CreatedRecoveryDelay
		}
		if next := untilDeadline + slaGrace; next < s.schedule.BookedPollInterval {
			return next
		}
		return s.schedule.BookedPollInterval
	case types.OrderStatusFulfilled:
		return s.schedule.FulfilledRecoveryDelay
	}
	return 0
}
