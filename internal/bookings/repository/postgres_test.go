package repository

import (
	"errors"
	"fmt"
	"testing"

	bookingserrors "spotbook/internal/bookings/errors"
	"spotbook/pkg/db/postgres"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestCreateError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"overlap", &pgconn.PgError{Code: postgres.ExclusionViolationCode}, bookingserrors.ErrTimeConflict},
		{"spot deleted", &pgconn.PgError{Code: postgres.ForeignKeyViolationCode}, bookingserrors.ErrSpotNotFound},
		{"wrapped spot deleted", fmt.Errorf("exec: %w", &pgconn.PgError{Code: postgres.ForeignKeyViolationCode}), bookingserrors.ErrSpotNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, createError(tt.err, "s1"), tt.want)
		})
	}
}

func TestCreateError_OtherFailuresStayWrapped(t *testing.T) {
	cause := errors.New("connection reset")

	err := createError(cause, "s1")
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, bookingserrors.ErrSpotNotFound)
	assert.NotErrorIs(t, err, bookingserrors.ErrTimeConflict)
}
