package types

// ErrorBody is the wire shape of every failed API response. Error is always a
// plain string so clients can surface it verbatim.
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`

	// RequestID lets support correlate a failure with server logs.
	RequestID string `json:"requestId,omitempty"`
}

// HealthBody answers the GET probes of webhook endpoints.
type HealthBody struct {
	Status   string `json:"status"`
	Endpoint string `json:"endpoint,omitempty"`
}
