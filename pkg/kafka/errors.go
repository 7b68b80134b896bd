package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProducerClosed is returned by Publish after Close.
	ErrProducerClosed = errors.New("kafka producer is closed")

	// ErrConsumerClosed is returned by Start after Close.
	ErrConsumerClosed = errors.New("kafka consumer is closed")

	// ErrInvalidMessage wraps payloads that cannot be encoded or decoded.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrEmptyKey rejects messages without a partition key.
	ErrEmptyKey = errors.New("message key cannot be empty")

	// ErrEmptyValue rejects messages without a payload.
	ErrEmptyValue = errors.New("message value cannot be empty")
)

// ErrorType tells the consumer whether a failed message is retried or dead-lettered.
type ErrorType int

const (
	// ErrorTypeUnknown is only reported for a nil error.
	ErrorTypeUnknown ErrorType = iota

	// ErrorTypeTransient covers network issues and timeouts.
	ErrorTypeTransient

	// ErrorTypePermanent covers bad payloads and schema mismatches.
	ErrorTypePermanent
)

// KafkaError carries an explicit ErrorType so handlers can decide retry behavior
// instead of relying on ClassifyError's message matching.
type KafkaError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *KafkaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *KafkaError) Unwrap() error {
	return e.Err
}

// NewTransientError marks err as retryable.
func NewTransientError(message string, err error) *KafkaError {
	return &KafkaError{Type: ErrorTypeTransient, Message: message, Err: err}
}

// NewPermanentError marks err as not worth retrying. The message goes to the DLQ.
func NewPermanentError(message string, err error) *KafkaError {
	return &KafkaError{Type: ErrorTypePermanent, Message: message, Err: err}
}

var transientPatterns = []string{
	"connection refused",
	"timeout",
	"deadline exceeded",
	"no such host",
	"network is unreachable",
	"broken pipe",
	"connection reset",
	"temporary failure",
}

// ClassifyError decides whether err is worth retrying. Unknown errors are permanent.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var kafkaErr *KafkaError
	if errors.As(err, &kafkaErr) {
		return kafkaErr.Type
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTransient
	}

	errorMsg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(errorMsg, pattern) {
			return ErrorTypeTransient
		}
	}

	return ErrorTypePermanent
}

// ShouldRetry reports whether a message that failed with err gets another attempt.
func ShouldRetry(err error, currentRetries, maxRetries int) bool {
	if err == nil || currentRetries >= maxRetries {
		return false
	}
	return ClassifyError(err) == ErrorTypeTransient
}
