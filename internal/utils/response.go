package utils

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func SuccessResponse(message string, data interface{}) Response {
	return Response{Success: true, Message: message, Data: data}
}

// ErrorResponse carries a user-facing message and an optional detail in Error. When no
// detail is given the message is used so clients can always read "error".
func ErrorResponse(message, detail string) Response {
	if detail == "" {
		detail = message
	}
	return Response{Success: false, Message: message, Error: detail}
}
