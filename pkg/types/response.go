package types

// SuccessEnvelope wraps every successful API response body.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the wire form of a coded failure.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
