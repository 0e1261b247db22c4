package queue

const (
	TypeWarmupDispatch = "warmup:dispatch"
)

type WarmupPayload struct {
	Message string `json:"message"`
}
