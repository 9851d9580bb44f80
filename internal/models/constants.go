package models

const (
	// ChangeFieldRecord помечает изменение, несущее запись целиком
	ChangeFieldRecord = "record"

	// DefaultBatchSize записей в одном bulk upsert
	DefaultBatchSize = 10

	// DefaultConcurrency одновременных обращений к хранилищу
	DefaultConcurrency = 3

	// DefaultRateLimit операций в секунду к внешнему хранилищу
	DefaultRateLimit = 10

	// DefaultMaxRetries попыток перед постановкой в очередь изменений
	DefaultMaxRetries = 3

	// DefaultMaxQueueDepth предел строк pending в pending_changes
	DefaultMaxQueueDepth = 1000

	// DefaultChangeRetentionDays хранение завершённых pending_changes
	DefaultChangeRetentionDays = 30

	// DefaultHistoryRetentionDays хранение закрытых записей sync_history
	DefaultHistoryRetentionDays = 90

	// DefaultQueuePollSeconds период опроса очереди без redis
	DefaultQueuePollSeconds = 5

	// QueueWakeKey ключ redis для пробуждения воркера очереди
	QueueWakeKey = "estatesync:queue:wake"

	// DeadLetterKey ключ redis для окончательно упавших изменений
	DeadLetterKey = "estatesync:queue:deadletter"
)
