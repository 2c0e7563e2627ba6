// Package utils holds small helpers shared by the rate engine, handlers and CLI.
package utils

func ToPtr[T any](v T) *T {
	return &v
}
