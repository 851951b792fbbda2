// Package errors provides the structured application error used across
// depguard.
//
// Producers of downstream failures can tag an error as retryable (or not)
// at the point where it is created:
//
//	return nil, errors.ExternalServiceError("sanctions-feed", err)
//
// The resilience retry loop honors AppError.Retryable before falling back to
// any message-based classification. HTTP-facing callers convert guard
// failures with ToResponse.
package errors
