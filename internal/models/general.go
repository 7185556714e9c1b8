package models

// ErrorResponse defines API error response format.
// The admin UI reads the message from `detail`.
type ErrorResponse struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// OperationResponse defines the success body of delete-style operations
type OperationResponse struct {
	ID      string `json:"id"`      // resource id
	Status  string `json:"status"`  // operation status
	Message string `json:"message"` // response message
}
