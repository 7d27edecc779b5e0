package enums

// OutboxAggregateType maps to the aggregate_type column of outbox rows.
type OutboxAggregateType string

const (
	AggregateOrder     OutboxAggregateType = "order"
	AggregatePromotion OutboxAggregateType = "promotion"
)

var aggregateTypes = values[OutboxAggregateType]{"aggregate type", []OutboxAggregateType{
	AggregateOrder,
	AggregatePromotion,
}}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(value)
}

// OutboxEventType maps to the event_type column of outbox rows and the
// event_type attribute of broker messages.
type OutboxEventType string

const (
	EventOrderCreated        OutboxEventType = "order_created"
	EventOrderCancelled      OutboxEventType = "order_cancelled"
	EventOrderStatusChanged  OutboxEventType = "order_status_changed"
	EventOrderPaymentUpdated OutboxEventType = "order_payment_updated"
	EventPromotionExpired    OutboxEventType = "promotion_expired"
)

var eventTypes = values[OutboxEventType]{"event type", []OutboxEventType{
	EventOrderCreated,
	EventOrderCancelled,
	EventOrderStatusChanged,
	EventOrderPaymentUpdated,
	EventPromotionExpired,
}}

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) { return eventTypes.parse(value) }

// OutboxDLQErrorReason explains why an outbox row was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
)

var dlqReasons = values[OutboxDLQErrorReason]{"dlq error reason", []OutboxDLQErrorReason{
	OutboxDLQReasonNonRetryable,
	OutboxDLQReasonMaxAttempts,
}}

func (o OutboxDLQErrorReason) IsValid() bool { return dlqReasons.has(o) }
