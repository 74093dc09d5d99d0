package redis

// IProducer is the publish side of the pipeline event stream. The
// transform handler publishes run summaries through it; notification
// consumers live in other services.
type IProducer[T any] interface {
	Start()
	Publish(data T) error
	Close()
}
