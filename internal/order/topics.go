package order

const (
	// Produced by this system.
	TopicOrderCreated   = "order.created"
	TopicOrderPaid      = "order.paid"
	TopicOrderShipped   = "order.shipped"
	TopicOrderDelivered = "order.delivered"
	TopicPayoutReleased = "order.payout.released"
	TopicOrderRefunded  = "order.refunded"
	TopicOrderCancelled = "order.cancelled"
	TopicNotify         = "order.notify"

	// Consumed from collaborators (payment gateway, shipping webhook).
	TopicPaymentConfirmed  = "payment.confirmed"
	TopicDeliveryConfirmed = "shipping.delivered"
)

// Partition key = order_id, so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
