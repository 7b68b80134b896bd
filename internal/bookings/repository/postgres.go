package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "spotbook/internal/bookings/errors"
	"spotbook/pkg/config"
	"spotbook/pkg/db/postgres"
	"spotbook/pkg/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const bookingColumns = `id, spot_id, user_id, start_date, end_date, created_at, updated_at`

type postgresBookingRepository struct {
	cfg       *config.Config
	pool      *pgxpool.Pool
	txManager postgres.TransactionManager
}

func NewPostgresBookingRepository(cfg *config.Config) BookingRepository {
	return &postgresBookingRepository{
		cfg:       cfg,
		pool:      cfg.Client.Postgres,
		txManager: postgres.NewTransactionManager(cfg.Client.Postgres),
	}
}

func (r *postgresBookingRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, timeout, postgres.InTransaction(ctx))
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	if err := row.Scan(&b.ID, &b.SpotID, &b.UserID, &b.StartDate, &b.EndDate, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.StartDate = b.StartDate.UTC()
	b.EndDate = b.EndDate.UTC()
	return &b, nil
}

func (r *postgresBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	if err := checkBookingID(id); err != nil {
		return nil, err
	}

	row := postgres.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)

	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return b, nil
}

func (r *postgresBookingRepository) ListBySpot(ctx context.Context, spotID string) ([]*model.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE spot_id = $1 ORDER BY start_date`, spotID)
}

func (r *postgresBookingRepository) ListByUser(ctx context.Context, userID string) ([]*model.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1 ORDER BY start_date`, userID)
}

func (r *postgresBookingRepository) list(ctx context.Context, query string, arg string) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	rows, err := postgres.Conn(ctx, r.pool).Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer rows.Close()

	bookings := []*model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to decode booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

func (r *postgresBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if booking.ID == "" {
		booking.ID = newBookingID()
	}

	_, err := postgres.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO bookings (`+bookingColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		booking.ID, booking.SpotID, booking.UserID, booking.StartDate, booking.EndDate, booking.CreatedAt, booking.UpdatedAt,
	)
	if err != nil {
		return createError(err, booking.SpotID)
	}
	return nil
}

// createError maps constraint violations of an insert. The spot foreign key fires
// when the spot row was deleted after the owner lookup.
func createError(err error, spotID string) error {
	switch {
	case postgres.HasCode(err, postgres.ExclusionViolationCode):
		return bookingserrors.ErrTimeConflict
	case postgres.HasCode(err, postgres.ForeignKeyViolationCode):
		return fmt.Errorf("%w: %s", bookingserrors.ErrSpotNotFound, spotID)
	}
	return fmt.Errorf("failed to create booking: %w", err)
}

func (r *postgresBookingRepository) UpdateDates(ctx context.Context, id string, start, end, updatedAt time.Time) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if err := checkBookingID(id); err != nil {
		return nil, err
	}

	row := postgres.Conn(ctx, r.pool).QueryRow(ctx,
		`UPDATE bookings SET start_date = $2, end_date = $3, updated_at = $4
		 WHERE id = $1
		 RETURNING `+bookingColumns,
		id, start, end, updatedAt,
	)

	b, err := scanBooking(row)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, bookingserrors.ErrNotFound
		case postgres.HasCode(err, postgres.ExclusionViolationCode):
			return nil, bookingserrors.ErrTimeConflict
		}
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}
	return b, nil
}

func (r *postgresBookingRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if err := checkBookingID(id); err != nil {
		return err
	}

	tag, err := postgres.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return bookingserrors.ErrNotFound
	}
	return nil
}

func (r *postgresBookingRepository) DeleteBySpot(ctx context.Context, spotID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	tag, err := postgres.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM bookings WHERE spot_id = $1`, spotID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete bookings for spot: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *postgresBookingRepository) ExecuteTransaction(ctx context.Context, fn TxFunc) error {
	return r.txManager.ExecuteTransaction(ctx, postgres.TransactionFunc(fn))
}

type postgresSpotDirectory struct {
	cfg  *config.Config
	pool *pgxpool.Pool
}

func NewPostgresSpotDirectory(cfg *config.Config) SpotDirectory {
	return &postgresSpotDirectory{cfg: cfg, pool: cfg.Client.Postgres}
}

func (d *postgresSpotDirectory) GetOwner(ctx context.Context, spotID string) (string, error) {
	ctx, cancel := withTimeout(ctx, d.cfg.ReadTimeout, postgres.InTransaction(ctx))
	defer cancel()

	var owner string
	err := postgres.Conn(ctx, d.pool).QueryRow(ctx, `SELECT owner_id FROM spots WHERE id = $1`, spotID).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", bookingserrors.ErrSpotNotFound
		}
		return "", fmt.Errorf("failed to find spot: %w", err)
	}
	return owner, nil
}
