package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	bookingserrors "spotbook/internal/bookings/errors"
	"spotbook/internal/bookings/consumer"
	"spotbook/internal/bookings/events"
	"spotbook/internal/bookings/interval"
	"spotbook/internal/bookings/repository"
	"spotbook/pkg/config"
	apperrors "spotbook/pkg/errors"
	"spotbook/pkg/kafka"
	"spotbook/pkg/logger"
	"spotbook/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

type recordingPublisher struct {
	mu        sync.Mutex
	created   []string
	updated   []string
	cancelled []string
	err       error
}

func (p *recordingPublisher) PublishCreated(_ context.Context, b *model.Booking) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, b.ID)
	return p.err
}

func (p *recordingPublisher) PublishUpdated(_ context.Context, b *model.Booking) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated = append(p.updated, b.ID)
	return p.err
}

func (p *recordingPublisher) PublishCancelled(_ context.Context, b *model.Booking, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, b.ID)
	return p.err
}

type fixture struct {
	svc       BookingService
	repo      *repository.MemoryBookingRepository
	spots     *repository.MemorySpotDirectory
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := repository.NewMemoryBookingRepository()
	spots := repository.NewMemorySpotDirectory()
	spots.Put(model.Spot{ID: "1", OwnerID: "owner"})
	spots.Put(model.Spot{ID: "2", OwnerID: "owner"})
	publisher := &recordingPublisher{}

	cfg := &config.Config{Log: logger.Discard(), Location: time.UTC}
	svc := NewBookingService(repo, repository.NewMemorySpotLocker(5*time.Second), spots, publisher, cfg,
		WithClock(func() time.Time { return fixedNow }),
	)

	return &fixture{svc: svc, repo: repo, spots: spots, publisher: publisher}
}

func (f *fixture) seed(t *testing.T, b *model.Booking) *model.Booking {
	t.Helper()
	require.NoError(t, f.repo.Create(context.Background(), b))
	return b
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, code), "expected %s, got %v", code, err)
}

func TestCreate_Success(t *testing.T) {
	f := newFixture(t)

	b, err := f.svc.Create(context.Background(), "1", "renter", day("2026-01-10"), day("2026-01-12"))
	require.NoError(t, err)

	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "1", b.SpotID)
	assert.Equal(t, "renter", b.UserID)
	assert.True(t, b.StartDate.Equal(day("2026-01-10")))
	assert.True(t, b.EndDate.Equal(day("2026-01-12")))
	assert.True(t, b.CreatedAt.Equal(fixedNow))
	assert.Equal(t, []string{b.ID}, f.publisher.created)

	stored, err := f.repo.FindByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.UserID, stored.UserID)
}

func TestCreate_NormalizesToCalendarDates(t *testing.T) {
	f := newFixture(t)

	start := time.Date(2026, 1, 10, 15, 30, 0, 0, time.UTC)
	end := time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)

	b, err := f.svc.Create(context.Background(), "1", "renter", start, end)
	require.NoError(t, err)
	assert.True(t, b.StartDate.Equal(day("2026-01-10")))
	assert.True(t, b.EndDate.Equal(day("2026-01-12")))
}

func TestCreate_OverlapConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, "1", "2", day("2026-01-10"), day("2026-01-12"))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "1", "3", day("2026-01-11"), day("2026-01-13"))
	assertCode(t, err, apperrors.CodeConflict)

	appErr := apperrors.AsAppError(err)
	assert.Equal(t, first.ID, appErr.Details["booking_id"])
	assert.Equal(t, "2026-01-10", appErr.Details["start_date"])
	assert.Equal(t, "2026-01-12", appErr.Details["end_date"])
	assert.Len(t, f.publisher.created, 1)
}

func TestCreate_AdjacentRangesBothSucceed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "1", "2", day("2026-01-10"), day("2026-01-12"))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "1", "3", day("2026-01-12"), day("2026-01-14"))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "1", "4", day("2026-01-08"), day("2026-01-10"))
	require.NoError(t, err)
}

func TestCreate_OtherSpotNeverConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "1", "2", day("2026-01-10"), day("2026-01-12"))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "2", "3", day("2026-01-10"), day("2026-01-12"))
	require.NoError(t, err)
}

func TestCreate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		spotID string
		userID string
		start  time.Time
		end    time.Time
		code   string
	}{
		{"owner books own spot", "1", "owner", day("2026-01-10"), day("2026-01-12"), apperrors.CodeSelfBookingForbidden},
		{"unknown spot", "missing", "renter", day("2026-01-10"), day("2026-01-12"), apperrors.CodeNotFound},
		{"end before start", "1", "renter", day("2026-01-12"), day("2026-01-10"), apperrors.CodeInvalidRange},
		{"empty range", "1", "renter", day("2026-01-10"), day("2026-01-10"), apperrors.CodeInvalidRange},
		{"starts in the past", "1", "renter", day("2025-12-31"), day("2026-01-03"), apperrors.CodeInvalidRange},
		{"missing user", "1", "", day("2026-01-10"), day("2026-01-12"), apperrors.CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.Create(context.Background(), tt.spotID, tt.userID, tt.start, tt.end)
			assertCode(t, err, tt.code)
			assert.Empty(t, f.publisher.created)
		})
	}
}

func TestCreate_StartingTodayIsAllowed(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), "1", "renter", day("2026-01-01"), day("2026-01-02"))
	require.NoError(t, err)
}

func TestCreate_TodayFollowsConfiguredLocation(t *testing.T) {
	repo := repository.NewMemoryBookingRepository()
	spots := repository.NewMemorySpotDirectory()
	spots.Put(model.Spot{ID: "1", OwnerID: "owner"})

	cfg := &config.Config{Log: logger.Discard(), Location: time.FixedZone("UTC+9", 9*60*60)}
	lateEvening := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	svc := NewBookingService(repo, repository.NewMemorySpotLocker(time.Second), spots, nil, cfg,
		WithClock(func() time.Time { return lateEvening }),
	)

	_, err := svc.Create(context.Background(), "1", "renter", day("2026-01-01"), day("2026-01-03"))
	assertCode(t, err, apperrors.CodeInvalidRange)

	_, err = svc.Create(context.Background(), "1", "renter", day("2026-01-02"), day("2026-01-03"))
	require.NoError(t, err)
}

func TestEdit_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, "1", "renter", day("2026-01-10"), day("2026-01-12"))
	require.NoError(t, err)

	updated, err := f.svc.Edit(ctx, b.ID, "renter", day("2026-01-11"), day("2026-01-14"))
	require.NoError(t, err)

	assert.Equal(t, b.ID, updated.ID)
	assert.Equal(t, "1", updated.SpotID)
	assert.Equal(t, "renter", updated.UserID)
	assert.True(t, updated.StartDate.Equal(day("2026-01-11")))
	assert.True(t, updated.EndDate.Equal(day("2026-01-14")))
	assert.Equal(t, []string{b.ID}, f.publisher.updated)
}

func TestEdit_ConflictWithAnotherBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mine, err := f.svc.Create(ctx, "1", "renter", day("2026-01-10"), day("2026-01-12"))
	require.NoError(t, err)
	other, err := f.svc.Create(ctx, "1", "someone", day("2026-01-14"), day("2026-01-16"))
	require.NoError(t, err)

	_, err = f.svc.Edit(ctx, mine.ID, "renter", day("2026-01-11"), day("2026-01-15"))
	assertCode(t, err, apperrors.CodeConflict)
	assert.Equal(t, other.ID, apperrors.AsAppError(err).Details["booking_id"])

	stored, err := f.repo.FindByID(ctx, mine.ID)
	require.NoError(t, err)
	assert.True(t, stored.EndDate.Equal(day("2026-01-12")), "rejected edit must not change dates")
}

func TestEdit_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		requester string
		start     time.Time
		end       time.Time
		seed      *model.Booking
		bookingID string
		code      string
	}{
		{
			name:      "spot owner who is not the renter",
			requester: "owner",
			start:     day("2026-01-20"), end: day("2026-01-22"),
			seed: &model.Booking{ID: "b1", SpotID: "1", UserID: "renter", StartDate: day("2026-01-10"), EndDate: day("2026-01-12")},
			code: apperrors.CodeForbidden,
		},
		{
			name:      "unknown booking",
			requester: "renter",
			start:     day("2026-01-20"), end: day("2026-01-22"),
			bookingID: "nope",
			code:      apperrors.CodeNotFound,
		},
		{
			name:      "inverted range",
			requester: "renter",
			start:     day("2026-01-22"), end: day("2026-01-20"),
			seed: &model.Booking{ID: "b1", SpotID: "1", UserID: "renter", StartDate: day("2026-01-10"), EndDate: day("2026-01-12")},
			code: apperrors.CodeInvalidRange,
		},
		{
			name:      "moved into the past",
			requester: "renter",
			start:     day("2025-12-20"), end: day("2025-12-22"),
			seed: &model.Booking{ID: "b1", SpotID: "1", UserID: "renter", StartDate: day("2026-01-10"), EndDate: day("2026-01-12")},
			code: apperrors.CodeInvalidRange,
		},
		{
			name:      "active booking",
			requester: "renter",
			start:     day("2026-01-20"), end: day("2026-01-22"),
			seed: &model.Booking{ID: "b1", SpotID: "1", UserID: "renter", StartDate: day("2025-12-30"), EndDate: day("2026-01-03")},
			code: apperrors.CodeAlreadyStarted,
		},
		{
			name:      "starts today",
			requester: "renter",
			start:     day("2026-01-20"), end: day("2026-01-22"),
			seed: &model.Booking{ID: "b1", SpotID: "1", UserID: "renter", StartDate: day("2026-01-01"), EndDate: day("2026-01-03")},
			code: apperrors.CodeAlreadyStarted,
		},
		{
			name:      "completed booking",
			requester: "renter",
			start:     day("2026-01-20"), end: day("2026-01-22"),
			seed: &model.Booking{ID: "b1", SpotID: "1", UserID: "renter", StartDate: day("2025-12-01"), EndDate: day("2025-12-05")},
			code: apperrors.CodeAlreadyStarted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := tt.bookingID
			if tt.seed != nil {
				id = f.seed(t, tt.seed).ID
			}

			_, err := f.svc.Edit(context.Background(), id, tt.requester, tt.start, tt.end)
			assertCode(t, err, tt.code)
			assert.Empty(t, f.publisher.updated)
		})
	}
}

func TestCancel_TwiceIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, "1", "renter", day("2026-01-10"), day("2026-01-12"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(ctx, b.ID, "renter"))

	err = f.svc.Cancel(ctx, b.ID, "renter")
	assertCode(t, err, apperrors.CodeNotFound)
	assert.Equal(t, []string{b.ID}, f.publisher.cancelled)
}

func TestCancel_BySpotOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, "1", "renter", day("2026-01-10"), day("2026-01-12"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(ctx, b.ID, "owner"))

	_, err = f.repo.FindByID(ctx, b.ID)
	assert.ErrorIs(t, err, bookingserrors.ErrNotFound)
}

func TestCancel_FreesTheDates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, "1", "renter", day("2026-01-10"), day("2026-01-12"))
	require.NoError(t, err)
	require.NoError(t, f.svc.Cancel(ctx, b.ID, "renter"))

	_, err = f.svc.Create(ctx, "1", "other", day("2026-01-10"), day("2026-01-12"))
	require.NoError(t, err)
}

func TestCancel_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		requester  string
		seed       *model.Booking
		removeSpot bool
		code       string
	}{
		{
			name:       "stranger",
			requester:  "stranger",
			seed:       &model.Booking{ID: "b1", SpotID: "1", UserID: "renter", StartDate: day("2026-01-10"), EndDate: day("2026-01-12")},
			code:       apperrors.CodeForbidden,
		},
		{
			name:       "starts today",
			requester:  "renter",
			seed:       &model.Booking{ID: "b1", SpotID: "1", UserID: "renter", StartDate: day("2026-01-01"), EndDate: day("2026-01-04")},
			code:       apperrors.CodeAlreadyStarted,
		},
		{
			name:       "owner cannot cancel a running stay",
			requester:  "owner",
			seed:       &model.Booking{ID: "b1", SpotID: "1", UserID: "renter", StartDate: day("2025-12-28"), EndDate: day("2026-01-04")},
			code:       apperrors.CodeAlreadyStarted,
		},
		{
			name:        "spot gone",
			requester:   "renter",
			seed:        &model.Booking{ID: "b1", SpotID: "1", UserID: "renter", StartDate: day("2026-01-10"), EndDate: day("2026-01-12")},
			removeSpot: true,
			code:        apperrors.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			b := f.seed(t, tt.seed)
			if tt.removeSpot {
				f.spots.Remove(b.SpotID)
			}

			err := f.svc.Cancel(context.Background(), b.ID, tt.requester)
			assertCode(t, err, tt.code)

			_, findErr := f.repo.FindByID(context.Background(), b.ID)
			assert.NoError(t, findErr, "rejected cancel must keep the booking")
		})
	}
}

func TestListForSpot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "1", "b", day("2026-01-20"), day("2026-01-22"))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "1", "a", day("2026-01-10"), day("2026-01-12"))
	require.NoError(t, err)

	full, views, err := f.svc.ListForSpot(ctx, "1", "owner")
	require.NoError(t, err)
	assert.Nil(t, views)
	require.Len(t, full, 2)
	assert.Equal(t, "a", full[0].UserID)

	full, views, err = f.svc.ListForSpot(ctx, "1", "a")
	require.NoError(t, err)
	assert.Nil(t, full)
	require.Len(t, views, 2)
	assert.Equal(t, model.BookingView{SpotID: "1", StartDate: day("2026-01-10"), EndDate: day("2026-01-12")}, views[0])

	_, _, err = f.svc.ListForSpot(ctx, "missing", "a")
	assertCode(t, err, apperrors.CodeNotFound)
}

func TestListForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "2", "renter", day("2026-02-01"), day("2026-02-03"))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "1", "renter", day("2026-01-10"), day("2026-01-12"))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "1", "other", day("2026-01-20"), day("2026-01-22"))
	require.NoError(t, err)

	mine, err := f.svc.ListForUser(ctx, "renter")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "1", mine[0].SpotID)
	assert.Equal(t, "2", mine[1].SpotID)
}

func TestCreate_ConcurrentOverlappingRequests(t *testing.T) {
	f := newFixture(t)
	const n = 20

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Create(context.Background(), "1", fmt.Sprintf("user-%d", i), day("2026-01-10"), day("2026-01-13"))
		}(i)
	}
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case apperrors.HasCode(err, apperrors.CodeConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)
}

func TestCreate_ConcurrentDisjointRequests(t *testing.T) {
	f := newFixture(t)
	const n = 20

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := day("2026-02-01").AddDate(0, 0, 2*i)
			_, errs[i] = f.svc.Create(context.Background(), "1", fmt.Sprintf("user-%d", i), start, start.AddDate(0, 0, 2))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "request %d", i)
	}

	all, err := f.repo.ListBySpot(context.Background(), "1")
	require.NoError(t, err)
	assert.Len(t, all, n)
}

func TestLifecycle_RandomSequenceKeepsSpotsNonOverlapping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	base := day("2026-01-02")
	users := []string{"u1", "u2", "u3"}

	var ids []string
	for step := 0; step < 300; step++ {
		start := base.AddDate(0, 0, rng.Intn(40))
		end := start.AddDate(0, 0, 1+rng.Intn(5))
		user := users[rng.Intn(len(users))]

		switch op := rng.Intn(3); {
		case op == 0 || len(ids) == 0:
			if b, err := f.svc.Create(ctx, "1", user, start, end); err == nil {
				ids = append(ids, b.ID)
			}
		case op == 1:
			_, _ = f.svc.Edit(ctx, ids[rng.Intn(len(ids))], user, start, end)
		default:
			_ = f.svc.Cancel(ctx, ids[rng.Intn(len(ids))], user)
		}
	}

	all, err := f.repo.ListBySpot(ctx, "1")
	require.NoError(t, err)
	require.NotEmpty(t, all)
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			a := interval.Interval{Start: all[i].StartDate, End: all[i].EndDate}
			b := interval.Interval{Start: all[j].StartDate, End: all[j].EndDate}
			assert.False(t, interval.Overlaps(a, b), "%s overlaps %s", a, b)
		}
	}
}

// mockBookingRepository lets a test fail individual store calls.
type mockBookingRepository struct {
	*repository.MemoryBookingRepository
	CreateFunc      func(ctx context.Context, booking *model.Booking) error
	UpdateDatesFunc func(ctx context.Context, id string, start, end, updatedAt time.Time) (*model.Booking, error)
	DeleteFunc      func(ctx context.Context, id string) error
}

func (m *mockBookingRepository) UpdateDates(ctx context.Context, id string, start, end, updatedAt time.Time) (*model.Booking, error) {
	if m.UpdateDatesFunc != nil {
		return m.UpdateDatesFunc(ctx, id, start, end, updatedAt)
	}
	return m.MemoryBookingRepository.UpdateDates(ctx, id, start, end, updatedAt)
}

func (m *mockBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, booking)
	}
	return m.MemoryBookingRepository.Create(ctx, booking)
}

func (m *mockBookingRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return m.MemoryBookingRepository.Delete(ctx, id)
}

type mockSpotLocker struct {
	AcquireFunc func(ctx context.Context, spotID string) (string, error)
	released    int
}

func (m *mockSpotLocker) Acquire(ctx context.Context, spotID string) (string, error) {
	return m.AcquireFunc(ctx, spotID)
}

func (m *mockSpotLocker) Release(context.Context, string, string) error {
	m.released++
	return nil
}

type mockSpotDirectory struct {
	GetOwnerFunc func(ctx context.Context, spotID string) (string, error)
}

func (m *mockSpotDirectory) GetOwner(ctx context.Context, spotID string) (string, error) {
	return m.GetOwnerFunc(ctx, spotID)
}

func newMockedService(repo repository.BookingRepository, locker repository.SpotLocker, spots repository.SpotDirectory, publisher *recordingPublisher) BookingService {
	cfg := &config.Config{Log: logger.Discard(), Location: time.UTC}
	return NewBookingService(repo, locker, spots, publisher, cfg, WithClock(func() time.Time { return fixedNow }))
}

func ownerIs(owner string) *mockSpotDirectory {
	return &mockSpotDirectory{GetOwnerFunc: func(context.Context, string) (string, error) { return owner, nil }}
}

func TestCreate_LockWaitExhaustedIsTimeout(t *testing.T) {
	locker := &mockSpotLocker{AcquireFunc: func(context.Context, string) (string, error) {
		return "", fmt.Errorf("%w: spot 1", bookingserrors.ErrLockNotAcquired)
	}}
	svc := newMockedService(repository.NewMemoryBookingRepository(), locker, ownerIs("owner"), &recordingPublisher{})

	_, err := svc.Create(context.Background(), "1", "renter", day("2026-01-10"), day("2026-01-12"))
	assertCode(t, err, apperrors.CodeTimeout)
	assert.Equal(t, 0, locker.released)
}

func TestCreate_StorageRaceLossIsConflict(t *testing.T) {
	repo := &mockBookingRepository{
		MemoryBookingRepository: repository.NewMemoryBookingRepository(),
		CreateFunc: func(context.Context, *model.Booking) error {
			return fmt.Errorf("insert: %w", bookingserrors.ErrTimeConflict)
		},
	}
	locker := &mockSpotLocker{AcquireFunc: func(context.Context, string) (string, error) { return "tok", nil }}
	svc := newMockedService(repo, locker, ownerIs("owner"), &recordingPublisher{})

	_, err := svc.Create(context.Background(), "1", "renter", day("2026-01-10"), day("2026-01-12"))
	assertCode(t, err, apperrors.CodeConflict)
	assert.Equal(t, 1, locker.released)
}

func TestCreate_StorageRaceLossNamesTheWinner(t *testing.T) {
	mem := repository.NewMemoryBookingRepository()
	winner := &model.Booking{SpotID: "1", UserID: "fast", StartDate: day("2026-01-11"), EndDate: day("2026-01-13")}
	repo := &mockBookingRepository{
		MemoryBookingRepository: mem,
		CreateFunc: func(ctx context.Context, _ *model.Booking) error {
			// Another process commits first; the store's exclusion constraint rejects us.
			require.NoError(t, mem.Create(ctx, winner))
			return bookingserrors.ErrTimeConflict
		},
	}
	locker := &mockSpotLocker{AcquireFunc: func(context.Context, string) (string, error) { return "tok", nil }}
	svc := newMockedService(repo, locker, ownerIs("owner"), &recordingPublisher{})

	_, err := svc.Create(context.Background(), "1", "renter", day("2026-01-10"), day("2026-01-12"))
	assertCode(t, err, apperrors.CodeConflict)

	appErr := apperrors.AsAppError(err)
	assert.Equal(t, winner.ID, appErr.Details["booking_id"])
	assert.Equal(t, "2026-01-11", appErr.Details["start_date"])
	assert.Equal(t, "2026-01-13", appErr.Details["end_date"])
}

func TestEdit_StorageRaceLossNamesTheWinner(t *testing.T) {
	mem := repository.NewMemoryBookingRepository()
	mine := &model.Booking{SpotID: "1", UserID: "renter", StartDate: day("2026-01-10"), EndDate: day("2026-01-12")}
	require.NoError(t, mem.Create(context.Background(), mine))
	winner := &model.Booking{SpotID: "1", UserID: "fast", StartDate: day("2026-01-14"), EndDate: day("2026-01-16")}

	repo := &mockBookingRepository{
		MemoryBookingRepository: mem,
		UpdateDatesFunc: func(ctx context.Context, _ string, _, _, _ time.Time) (*model.Booking, error) {
			require.NoError(t, mem.Create(ctx, winner))
			return nil, bookingserrors.ErrTimeConflict
		},
	}
	locker := &mockSpotLocker{AcquireFunc: func(context.Context, string) (string, error) { return "tok", nil }}
	publisher := &recordingPublisher{}
	svc := newMockedService(repo, locker, ownerIs("owner"), publisher)

	_, err := svc.Edit(context.Background(), mine.ID, "renter", day("2026-01-10"), day("2026-01-15"))
	assertCode(t, err, apperrors.CodeConflict)
	assert.Equal(t, winner.ID, apperrors.AsAppError(err).Details["booking_id"])
	assert.Empty(t, publisher.updated)
}

func TestCreate_TransactionBoundedByLockLease(t *testing.T) {
	var deadline time.Time
	var hasDeadline bool
	repo := &mockBookingRepository{
		MemoryBookingRepository: repository.NewMemoryBookingRepository(),
		CreateFunc: func(ctx context.Context, _ *model.Booking) error {
			deadline, hasDeadline = ctx.Deadline()
			return nil
		},
	}
	locker := &mockSpotLocker{AcquireFunc: func(context.Context, string) (string, error) { return "tok", nil }}
	cfg := &config.Config{Log: logger.Discard(), Location: time.UTC, LockTTL: 10 * time.Second}
	svc := NewBookingService(repo, locker, ownerIs("owner"), nil, cfg, WithClock(func() time.Time { return fixedNow }))

	// The request itself has a far longer deadline than the lease.
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	_, err := svc.Create(ctx, "1", "renter", day("2026-01-10"), day("2026-01-12"))
	require.NoError(t, err)
	require.True(t, hasDeadline)
	assert.False(t, deadline.After(time.Now().Add(10*time.Second-lockLeaseMargin)))
}

func TestCreate_SlowTransactionGivesUpBeforeLeaseExpires(t *testing.T) {
	repo := &mockBookingRepository{
		MemoryBookingRepository: repository.NewMemoryBookingRepository(),
		CreateFunc: func(ctx context.Context, _ *model.Booking) error {
			<-ctx.Done()
			return fmt.Errorf("insert: %w", ctx.Err())
		},
	}
	locker := &mockSpotLocker{AcquireFunc: func(context.Context, string) (string, error) { return "tok", nil }}
	cfg := &config.Config{Log: logger.Discard(), Location: time.UTC, LockTTL: 100 * time.Millisecond}
	svc := NewBookingService(repo, locker, ownerIs("owner"), nil, cfg, WithClock(func() time.Time { return fixedNow }))

	started := time.Now()
	_, err := svc.Create(context.Background(), "1", "renter", day("2026-01-10"), day("2026-01-12"))
	assertCode(t, err, apperrors.CodeTimeout)
	assert.Less(t, time.Since(started), time.Second)
	assert.Equal(t, 1, locker.released)
}

func TestLeaseBudget(t *testing.T) {
	assert.Equal(t, 40*time.Second-lockLeaseMargin, leaseBudget(40*time.Second))
	assert.Equal(t, 1500*time.Millisecond, leaseBudget(3*time.Second))
	assert.Less(t, leaseBudget(lockLeaseMargin), lockLeaseMargin)
}

func TestCreate_DeletedSpotRejectedDespiteStaleCache(t *testing.T) {
	ctx := context.Background()
	dir := repository.NewMemorySpotDirectory()
	dir.Put(model.Spot{ID: "s1", OwnerID: "owner"})
	apiCache := repository.NewCachedSpotDirectory(dir, 100, time.Minute)
	defer apiCache.Stop()
	workerCache := repository.NewCachedSpotDirectory(dir, 100, time.Minute)
	defer workerCache.Stop()

	repo := repository.NewMemoryBookingRepository()
	locker := repository.NewMemorySpotLocker(time.Second)
	cfg := &config.Config{Log: logger.Discard(), Location: time.UTC}
	svc := NewBookingService(repo, locker, apiCache, nil, cfg, WithClock(func() time.Time { return fixedNow }))

	_, err := svc.Create(ctx, "s1", "renter", day("2026-01-10"), day("2026-01-12"))
	require.NoError(t, err)

	dir.Remove("s1")
	msg, err := kafka.NewMessage().
		WithKey("s1").
		WithEventType(events.TypeSpotDeleted).
		WithValue(events.SpotDeletedEvent{SpotID: "s1"}).
		Build()
	require.NoError(t, err)
	handler := consumer.NewSpotEventHandler(repo, locker, workerCache, logger.Discard())
	require.NoError(t, handler.Handle(ctx, msg))

	booking, err := svc.Create(ctx, "s1", "other", day("2026-01-20"), day("2026-01-22"))
	assertCode(t, err, apperrors.CodeNotFound)
	assert.Nil(t, booking)

	left, err := repo.ListBySpot(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, left, "no booking may outlive its spot")
}

func TestCreate_SpotForeignKeyIsNotFound(t *testing.T) {
	repo := &mockBookingRepository{
		MemoryBookingRepository: repository.NewMemoryBookingRepository(),
		CreateFunc: func(context.Context, *model.Booking) error {
			return fmt.Errorf("%w: 1", bookingserrors.ErrSpotNotFound)
		},
	}
	locker := &mockSpotLocker{AcquireFunc: func(context.Context, string) (string, error) { return "tok", nil }}
	svc := newMockedService(repo, locker, ownerIs("owner"), &recordingPublisher{})

	_, err := svc.Create(context.Background(), "1", "renter", day("2026-01-10"), day("2026-01-12"))
	assertCode(t, err, apperrors.CodeNotFound)
}

func TestCreate_StoreFailureIsInternal(t *testing.T) {
	repo := &mockBookingRepository{
		MemoryBookingRepository: repository.NewMemoryBookingRepository(),
		CreateFunc: func(context.Context, *model.Booking) error {
			return errors.New("connection reset")
		},
	}
	locker := &mockSpotLocker{AcquireFunc: func(context.Context, string) (string, error) { return "tok", nil }}
	svc := newMockedService(repo, locker, ownerIs("owner"), &recordingPublisher{})

	_, err := svc.Create(context.Background(), "1", "renter", day("2026-01-10"), day("2026-01-12"))
	assertCode(t, err, apperrors.CodeInternal)
}

func TestCreate_SpotLookupFailureIsInternal(t *testing.T) {
	spots := &mockSpotDirectory{GetOwnerFunc: func(context.Context, string) (string, error) {
		return "", errors.New("mongo down")
	}}
	locker := &mockSpotLocker{AcquireFunc: func(context.Context, string) (string, error) { return "tok", nil }}
	svc := newMockedService(repository.NewMemoryBookingRepository(), locker, spots, &recordingPublisher{})

	_, err := svc.Create(context.Background(), "1", "renter", day("2026-01-10"), day("2026-01-12"))
	assertCode(t, err, apperrors.CodeInternal)
}

func TestCancel_ConcurrentDeleteIsNotFound(t *testing.T) {
	mem := repository.NewMemoryBookingRepository()
	repo := &mockBookingRepository{
		MemoryBookingRepository: mem,
		DeleteFunc: func(context.Context, string) error { return bookingserrors.ErrNotFound },
	}
	require.NoError(t, mem.Create(context.Background(), &model.Booking{
		ID: "b1", SpotID: "1", UserID: "renter", StartDate: day("2026-01-10"), EndDate: day("2026-01-12"),
	}))
	locker := &mockSpotLocker{AcquireFunc: func(context.Context, string) (string, error) { return "tok", nil }}
	publisher := &recordingPublisher{}
	svc := newMockedService(repo, locker, ownerIs("owner"), publisher)

	err := svc.Cancel(context.Background(), "b1", "renter")
	assertCode(t, err, apperrors.CodeNotFound)
	assert.Empty(t, publisher.cancelled)
}

func TestCreate_PublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker unavailable")

	b, err := f.svc.Create(context.Background(), "1", "renter", day("2026-01-10"), day("2026-01-12"))
	require.NoError(t, err)

	_, err = f.repo.FindByID(context.Background(), b.ID)
	assert.NoError(t, err)
}
