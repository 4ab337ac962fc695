package orders

const (
	TopicOrderCreated   = "order.created"
	TopicOrderCancelled = "order.cancelled"
	TopicOrderPaid      = "order.paid"
	TopicPaymentFailed  = "order.payment.failed"
)

// Partition key = order_id so every event for one order stays in order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
