package enums

type NotificationType string

const (
	NotificationTypeOrder   NotificationType = "order"
	NotificationTypePayment NotificationType = "payment"
	NotificationTypeSystem  NotificationType = "system"
)

var notificationTypes = values[NotificationType]{"notification type", []NotificationType{
	NotificationTypeOrder,
	NotificationTypePayment,
	NotificationTypeSystem,
}}

func (n NotificationType) IsValid() bool { return notificationTypes.has(n) }

func ParseNotificationType(value string) (NotificationType, error) {
	return notificationTypes.parse(value)
}
