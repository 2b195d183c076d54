package common

const (
	// SessionCookieName is the cookie carrying the signed session token.
	SessionCookieName = "mnistlab_session"

	// TaskMNIST is the task name recorded on every inference log entry.
	TaskMNIST = "mnist"

	// InferenceServiceName is reported by the inference health endpoints.
	InferenceServiceName = "mnist-inference-api"
)
