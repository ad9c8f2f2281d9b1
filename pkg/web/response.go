// Package web defines common components for a web application.
package web

import (
	"github.com/go-playground/validator/v10"
)

// Response holds the common response type for all APIs.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Error wraps a given err into json friendly struct.
func Error(err error) Response {
	return Response{Error: err.Error()}
}

// ErrorWithData wraps err and keeps the data that was produced before the failure.
func ErrorWithData(err error, data any) Response {
	return Response{Error: err.Error(), Data: data}
}

// GetErrorMsg returns a human readable suffix for a failed validation rule.
func GetErrorMsg(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return " is required"
	case "amount":
		return " must be a positive amount with at most 4 decimal places"
	case "balance":
		return " must be a non-negative amount with at most 4 decimal places"
	case "max":
		return " must be at most " + fe.Param()
	case "min":
		return " must be at least " + fe.Param()
	}

	return " is invalid"
}
