package availability

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runcall/platform/internal/calendar"
	"github.com/runcall/platform/internal/google"
	"github.com/runcall/platform/pkg/logging"
)

func newHandlerRouter(svc *Service) *chi.Mux {
	h := NewHandler(svc, 14, logging.Default()).
		WithClock(func() time.Time { return at(7, 0) })
	r := chi.NewRouter()
	r.Get("/experts/{expertID}/slots", h.GetSlots)
	return r
}

func getSlots(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetSlots(t *testing.T) {
	api := &stubCalendarAPI{
		calendars: []calendar.CalendarRef{{ID: "primary"}},
		events: map[string][]calendar.Event{
			"primary": {timedEvent("a1", "RunCall", "", "", at(9, 0), at(10, 0))},
		},
		eventsErr: map[string]error{},
	}
	router := newHandlerRouter(newServiceForTest(api))

	rec := getSlots(t, router, fmt.Sprintf("/experts/%s/slots", uuid.New()))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SlotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Slots, 2)
	assert.Equal(t, at(9, 0), resp.Slots[0].Start)
	assert.Equal(t, at(9, 30), resp.Slots[1].Start)
}

func TestGetSlotsEmptyResultIsEmptyArray(t *testing.T) {
	api := &stubCalendarAPI{
		calendars: []calendar.CalendarRef{{ID: "primary"}},
		events:    map[string][]calendar.Event{},
		eventsErr: map[string]error{},
	}
	router := newHandlerRouter(newServiceForTest(api))

	rec := getSlots(t, router, fmt.Sprintf("/experts/%s/slots", uuid.New()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"slots":[]`)
}

func TestGetSlotsBadWindow(t *testing.T) {
	router := newHandlerRouter(newServiceForTest(&stubCalendarAPI{}))
	id := uuid.New()

	rec := getSlots(t, router, fmt.Sprintf("/experts/%s/slots?from=not-a-time", id))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// to before from leaves an empty window.
	rec = getSlots(t, router, fmt.Sprintf("/experts/%s/slots?to=%s", id,
		at(6, 0).Format(time.RFC3339)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSlotsInvalidExpertID(t *testing.T) {
	router := newHandlerRouter(newServiceForTest(&stubCalendarAPI{}))
	rec := getSlots(t, router, "/experts/not-a-uuid/slots")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSlotsNoConnectedAccount(t *testing.T) {
	accounts := &stubAccounts{err: google.ErrAccountNotFound}
	svc := NewService(accounts, &stubTokens{}, &stubCalendarAPI{}, Options{}, nil, logging.Default())
	router := newHandlerRouter(svc)

	rec := getSlots(t, router, fmt.Sprintf("/experts/%s/slots", uuid.New()))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSlotsReconnectRequired(t *testing.T) {
	accounts := &stubAccounts{acct: &google.Account{ExpertID: uuid.New()}}
	tokens := &stubTokens{err: google.ErrReconnectRequired}
	svc := NewService(accounts, tokens, &stubCalendarAPI{}, Options{}, nil, logging.Default())
	router := newHandlerRouter(svc)

	rec := getSlots(t, router, fmt.Sprintf("/experts/%s/slots", uuid.New()))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
