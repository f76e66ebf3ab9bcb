package util

import (
	"time"

	"github.com/primetalk/goio/io"
)

// RunWithTimeout runs fn and gives up after timeout. A non positive timeout
// waits for fn to finish. fn keeps running in the background after a timeout.
func RunWithTimeout[T any](timeout time.Duration, fn func() (T, error)) (T, error) {
	task := io.Eval(fn)
	if timeout > 0 {
		task = io.WithTimeout[T](timeout)(task)
	}
	result := io.RunSync(task)
	return result.Value, result.Error
}

// RunErrWithTimeout is RunWithTimeout for calls without a result.
func RunErrWithTimeout(timeout time.Duration, fn func() error) error {
	_, err := RunWithTimeout(timeout, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
