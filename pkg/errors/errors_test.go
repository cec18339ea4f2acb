package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Sentinel error identity ---

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrAlreadyExists, ErrInvalidInput, ErrConflict,
		ErrInsufficientStock, ErrPaymentFailed, ErrInternal,
	}

	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j],
				"sentinels %d and %d should be distinct", i, j)
		}
	}
}

// --- AppError behavior ---

func TestAppError_ErrorString_WithWrappedError(t *testing.T) {
	inner := fmt.Errorf("db connection lost")
	appErr := &AppError{Code: "INTERNAL_ERROR", Message: "something broke", Err: inner}
	assert.Contains(t, appErr.Error(), "INTERNAL_ERROR")
	assert.Contains(t, appErr.Error(), "something broke")
	assert.Contains(t, appErr.Error(), "db connection lost")
}

func TestAppError_ErrorString_WithoutWrappedError(t *testing.T) {
	appErr := &AppError{Code: "NOT_FOUND", Message: "order not found"}
	assert.Equal(t, "NOT_FOUND: order not found", appErr.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	appErr := &AppError{Code: "NOT_FOUND", Message: "nope", Err: ErrNotFound}
	assert.True(t, errors.Is(appErr, ErrNotFound))
}

func TestAppError_Unwrap_Nil(t *testing.T) {
	appErr := &AppError{Code: "TEST", Message: "test"}
	assert.Nil(t, appErr.Unwrap())
}

// --- Constructor functions ---

func TestNotFound(t *testing.T) {
	err := NotFound("order", "abc-123")
	require.NotNil(t, err)
	assert.Equal(t, "NOT_FOUND", err.Code)
	assert.Contains(t, err.Message, "order")
	assert.Contains(t, err.Message, "abc-123")
	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInvalidInput(t *testing.T) {
	err := InvalidInput("customer_id is required")
	require.NotNil(t, err)
	assert.Equal(t, "INVALID_INPUT", err.Code)
	assert.Equal(t, "customer_id is required", err.Message)
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestConflict(t *testing.T) {
	err := Conflict("customer already has an order awaiting payment")
	require.NotNil(t, err)
	assert.Equal(t, "CONFLICT", err.Code)
	assert.Equal(t, http.StatusConflict, err.Status)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestInsufficientStock(t *testing.T) {
	err := InsufficientStock("prod-7")
	require.NotNil(t, err)
	assert.Equal(t, "INSUFFICIENT_STOCK", err.Code)
	assert.Contains(t, err.Message, "prod-7")
	assert.Equal(t, http.StatusUnprocessableEntity, err.Status)
	assert.True(t, errors.Is(err, ErrInsufficientStock))
}

func TestPaymentFailed(t *testing.T) {
	err := PaymentFailed("charge declined")
	require.NotNil(t, err)
	assert.Equal(t, "PAYMENT_FAILED", err.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, err.Status)
	assert.True(t, errors.Is(err, ErrPaymentFailed))
}

func TestInternal(t *testing.T) {
	inner := fmt.Errorf("boom")
	err := Internal(inner)
	require.NotNil(t, err)
	assert.Equal(t, "INTERNAL_ERROR", err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.True(t, errors.Is(err, inner))
}

// --- HTTPStatus mapping ---

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"app error", Conflict("busy"), http.StatusConflict},
		{"wrapped app error", fmt.Errorf("create order: %w", InsufficientStock("p1")), http.StatusUnprocessableEntity},
		{"not found sentinel", ErrNotFound, http.StatusNotFound},
		{"already exists sentinel", ErrAlreadyExists, http.StatusConflict},
		{"conflict sentinel", ErrConflict, http.StatusConflict},
		{"invalid input sentinel", ErrInvalidInput, http.StatusBadRequest},
		{"insufficient stock sentinel", ErrInsufficientStock, http.StatusUnprocessableEntity},
		{"payment failed sentinel", ErrPaymentFailed, http.StatusUnprocessableEntity},
		{"unknown error", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}
