package locker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lockersys/internal/httpx"
)

type fakeStore struct {
	lockers map[string]Locker
	nextID  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{lockers: make(map[string]Locker)}
}

func (f *fakeStore) List(_ context.Context, limit, offset int, search, status string) ([]Locker, int, error) {
	matched := make([]Locker, 0)
	for _, l := range f.lockers {
		if status != "" && l.Status != status {
			continue
		}
		if search != "" && !strings.Contains(l.Number, search) && !strings.Contains(l.Location, search) {
			continue
		}
		matched = append(matched, l)
	}

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (f *fakeStore) Get(_ context.Context, id string) (Locker, error) {
	l, ok := f.lockers[id]
	if !ok {
		return Locker{}, ErrNotFound
	}
	return l, nil
}

func (f *fakeStore) GetByNumber(_ context.Context, number string) (Locker, error) {
	for _, l := range f.lockers {
		if l.Number == number {
			return l, nil
		}
	}
	return Locker{}, ErrNotFound
}

func (f *fakeStore) Create(_ context.Context, input CreateInput) (Locker, error) {
	f.nextID++
	l := Locker{
		ID:           fmt.Sprintf("locker-%d", f.nextID),
		Number:       input.Number,
		Location:     input.Location,
		Size:         input.Size,
		Status:       input.Status,
		MonthlyPrice: input.MonthlyPrice,
		Notes:        input.Notes,
	}
	f.lockers[l.ID] = l
	return l, nil
}

func (f *fakeStore) Update(_ context.Context, id string, input UpdateInput) (Locker, error) {
	l, ok := f.lockers[id]
	if !ok {
		return Locker{}, ErrNotFound
	}
	if input.Number != nil {
		l.Number = *input.Number
	}
	if input.Location != nil {
		l.Location = *input.Location
	}
	if input.Size != nil {
		l.Size = *input.Size
	}
	if input.Status != nil {
		l.Status = *input.Status
	}
	if input.MonthlyPrice != nil {
		l.MonthlyPrice = *input.MonthlyPrice
	}
	if input.Notes != nil {
		l.Notes = input.Notes
	}
	f.lockers[id] = l
	return l, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	if _, ok := f.lockers[id]; !ok {
		return ErrNotFound
	}
	delete(f.lockers, id)
	return nil
}

func (f *fakeStore) Stats(_ context.Context) (Stats, error) {
	var s Stats
	for _, l := range f.lockers {
		s.Total++
		switch l.Status {
		case StatusAvailable:
			s.Available++
		case StatusRented:
			s.Rented++
		case StatusMaintenance:
			s.Maintenance++
		case StatusReserved:
			s.Reserved++
		}
	}
	return s, nil
}

func (f *fakeStore) Available(_ context.Context) ([]Locker, error) {
	available := make([]Locker, 0)
	for _, l := range f.lockers {
		if l.Status == StatusAvailable {
			available = append(available, l)
		}
	}
	return available, nil
}

func seedLocker(store *fakeStore, number, status string) Locker {
	l, _ := store.Create(context.Background(), CreateInput{
		Number:       number,
		Location:     "Building A",
		Size:         "medium",
		Status:       status,
		MonthlyPrice: 25,
	})
	return l
}

func TestLockerCreate(t *testing.T) {
	store := newFakeStore()
	handler := NewHandler(store)

	req := httptest.NewRequest(http.MethodPost, "/lockers", strings.NewReader(
		`{"number":"A-101","location":"Building A","size":"medium","monthly_price":25}`))
	rec := httptest.NewRecorder()
	handler.Create(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Locker Locker `json:"locker"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "A-101", body.Locker.Number)
	// Status defaults to available.
	assert.Equal(t, StatusAvailable, body.Locker.Status)
}

func TestLockerCreateValidation(t *testing.T) {
	store := newFakeStore()
	handler := NewHandler(store)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"missing number", `{"location":"Building A","size":"medium"}`, http.StatusBadRequest},
		{"bad size", `{"number":"A-101","location":"Building A","size":"huge"}`, http.StatusBadRequest},
		{"bad status", `{"number":"A-101","location":"Building A","size":"medium","status":"broken"}`, http.StatusBadRequest},
		{"negative price", `{"number":"A-101","location":"Building A","size":"medium","monthly_price":-1}`, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.Create(rec, httptest.NewRequest(http.MethodPost, "/lockers", strings.NewReader(tc.body)))
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestLockerCreateDuplicateNumber(t *testing.T) {
	store := newFakeStore()
	handler := NewHandler(store)
	seedLocker(store, "A-101", StatusAvailable)

	req := httptest.NewRequest(http.MethodPost, "/lockers", strings.NewReader(
		`{"number":"A-101","location":"Building B","size":"small"}`))
	rec := httptest.NewRecorder()
	handler.Create(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

// raceStore reports no existing locker to the pre-check but fails the
// insert the way the unique index would when a concurrent create wins.
type raceStore struct {
	*fakeStore
}

func (r *raceStore) GetByNumber(_ context.Context, _ string) (Locker, error) {
	return Locker{}, ErrNotFound
}

func (r *raceStore) Create(_ context.Context, _ CreateInput) (Locker, error) {
	return Locker{}, ErrNumberTaken
}

func TestLockerCreateLostInsertRaceIsConflict(t *testing.T) {
	handler := NewHandler(&raceStore{fakeStore: newFakeStore()})

	req := httptest.NewRequest(http.MethodPost, "/lockers", strings.NewReader(
		`{"number":"A-101","location":"Building A","size":"medium"}`))
	rec := httptest.NewRecorder()
	handler.Create(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLockerList(t *testing.T) {
	store := newFakeStore()
	handler := NewHandler(store)
	seedLocker(store, "A-101", StatusAvailable)
	seedLocker(store, "A-102", StatusRented)
	seedLocker(store, "B-201", StatusAvailable)

	rec := httptest.NewRecorder()
	handler.List(rec, httptest.NewRequest(http.MethodGet, "/lockers?status=available", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data       []Locker         `json:"data"`
		Pagination httpx.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 2)
	assert.Equal(t, 2, body.Pagination.TotalItems)
	assert.Equal(t, 1, body.Pagination.CurrentPage)
	assert.False(t, body.Pagination.HasNext)

	rec = httptest.NewRecorder()
	handler.List(rec, httptest.NewRequest(http.MethodGet, "/lockers?status=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLockerGetNotFound(t *testing.T) {
	handler := NewHandler(newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/lockers/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	handler.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLockerUpdateNumberConflict(t *testing.T) {
	store := newFakeStore()
	handler := NewHandler(store)
	seedLocker(store, "A-101", StatusAvailable)
	second := seedLocker(store, "A-102", StatusAvailable)

	req := httptest.NewRequest(http.MethodPut, "/lockers/"+second.ID, strings.NewReader(`{"number":"A-101"}`))
	req.SetPathValue("id", second.ID)
	rec := httptest.NewRecorder()
	handler.Update(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Re-submitting its own number is not a conflict.
	req = httptest.NewRequest(http.MethodPut, "/lockers/"+second.ID, strings.NewReader(`{"number":"A-102","status":"maintenance"}`))
	req.SetPathValue("id", second.ID)
	rec = httptest.NewRecorder()
	handler.Update(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLockerStatsAndAvailable(t *testing.T) {
	store := newFakeStore()
	handler := NewHandler(store)
	seedLocker(store, "A-101", StatusAvailable)
	seedLocker(store, "A-102", StatusRented)
	seedLocker(store, "A-103", StatusMaintenance)

	rec := httptest.NewRecorder()
	handler.Stats(rec, httptest.NewRequest(http.MethodGet, "/lockers/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Available)
	assert.Equal(t, 1, stats.Rented)
	assert.Equal(t, 1, stats.Maintenance)

	rec = httptest.NewRecorder()
	handler.Available(rec, httptest.NewRequest(http.MethodGet, "/lockers/available", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Lockers []Locker `json:"lockers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Lockers, 1)
	assert.Equal(t, "A-101", body.Lockers[0].Number)
}

func TestLockerDelete(t *testing.T) {
	store := newFakeStore()
	handler := NewHandler(store)
	l := seedLocker(store, "A-101", StatusAvailable)

	req := httptest.NewRequest(http.MethodDelete, "/lockers/"+l.ID, nil)
	req.SetPathValue("id", l.ID)
	rec := httptest.NewRecorder()
	handler.Delete(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.Delete(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
