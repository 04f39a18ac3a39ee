package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/iliyamo/seat-occupancy/internal/config"
	"github.com/iliyamo/seat-occupancy/internal/model"
	"github.com/iliyamo/seat-occupancy/internal/repository"
	"github.com/iliyamo/seat-occupancy/internal/session"
)

func newTestServer(t *testing.T) (*echo.Echo, *SessionHandler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &SessionHandler{
		Sessions: session.NewManager(ctx, session.Options{MinConfidence: 0.3}),
		Layout:   config.DefaultLayout(),
		Now:      func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) },
	}
	e := echo.New()
	e.GET("/healthz", Health)
	g := e.Group("/v1/sessions")
	g.POST("", h.CreateSession)
	g.GET("/:id", h.GetSession)
	g.DELETE("/:id", h.EndSession)
	g.POST("/:id/start", h.StartSession)
	g.POST("/:id/stop", h.StopSession)
	g.POST("/:id/reset", h.ResetSession)
	g.PUT("/:id/seats/:label", h.UpsertSeat)
	g.DELETE("/:id/seats/:label", h.DeleteSeat)
	g.POST("/:id/frames", h.SubmitFrame)
	g.GET("/:id/report.csv", h.ReportCSV)
	return e, h
}

func do(e *echo.Echo, method, target, contentType string, body []byte, hdr ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func doJSON(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	return do(e, method, target, echo.MIMEApplicationJSON, []byte(body))
}

func createSession(t *testing.T, e *echo.Echo, body string) SessionView {
	t.Helper()
	rec := doJSON(e, http.MethodPost, "/v1/sessions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var v SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	e, _ := newTestServer(t)
	rec := do(e, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestCreateSession(t *testing.T) {
	e, _ := newTestServer(t)

	v := createSession(t, e, `{"use_default_layout":true}`)
	assert.Equal(t, model.PhaseConfiguring, v.Phase)
	assert.Equal(t, 4, v.Seats)
	require.Len(t, v.SeatList, 4)
	assert.Equal(t, SeatView{Label: "A", X: 25, Y: 150, Width: 100, Height: 100, TotalClock: "0:00"}, v.SeatList[0])

	empty := createSession(t, e, "")
	assert.Equal(t, 0, empty.Seats)

	custom := createSession(t, e, `{"seats":[{"label":"Z","x":0,"y":0,"width":5,"height":5}]}`)
	assert.Equal(t, "Z", custom.SeatList[0].Label)

	rec := doJSON(e, http.MethodPost, "/v1/sessions", `{"seats":[{"label":"Z","x":0,"y":0,"width":0,"height":5}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(e, http.MethodPost, "/v1/sessions", `{"seats":[{"label":"Z","x":-1,"y":0,"width":3,"height":5}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(e, http.MethodPost, "/v1/sessions", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionNotFound(t *testing.T) {
	e, _ := newTestServer(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/v1/sessions/nope"},
		{http.MethodPost, "/v1/sessions/nope/start"},
		{http.MethodPost, "/v1/sessions/nope/stop"},
		{http.MethodPost, "/v1/sessions/nope/reset"},
		{http.MethodDelete, "/v1/sessions/nope"},
		{http.MethodDelete, "/v1/sessions/nope/seats/A"},
		{http.MethodGet, "/v1/sessions/nope/report.csv"},
	} {
		rec := doJSON(e, tc.method, tc.path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tc.method, tc.path)
	}
	rec := doJSON(e, http.MethodPost, "/v1/sessions/nope/frames", `{"detections":[]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartRequiresSeats(t *testing.T) {
	e, _ := newTestServer(t)
	v := createSession(t, e, "")
	rec := doJSON(e, http.MethodPost, "/v1/sessions/"+v.ID+"/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSeatEndpoints(t *testing.T) {
	e, _ := newTestServer(t)
	v := createSession(t, e, "")
	base := "/v1/sessions/" + v.ID + "/seats/"

	rec := doJSON(e, http.MethodPut, base+"A", `{"x":10,"y":20,"width":30,"height":40}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Seats)
	assert.Equal(t, 30.0, got.SeatList[0].Width)

	rec = doJSON(e, http.MethodPut, base+"B", `{"x":10,"y":20,"width":0,"height":40}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(e, http.MethodPut, base+"B", `{"x":10,"y":20}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodDelete, base+"B", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(e, http.MethodDelete, base+"A", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSubmitFrame(t *testing.T) {
	e, _ := newTestServer(t)
	v := createSession(t, e, `{"use_default_layout":true}`)
	frames := "/v1/sessions/" + v.ID + "/frames"
	payload := `{"detections":[{"box":{"x":60,"y":185,"w":30,"h":30},"confidence":0.9,"class_id":0}]}`

	rec := doJSON(e, http.MethodPost, frames, payload)
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.Equal(t, http.StatusOK, doJSON(e, http.MethodPost, "/v1/sessions/"+v.ID+"/start", "").Code)

	rec = doJSON(e, http.MethodPost, frames, payload)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"detections":1}`, rec.Body.String())

	mp, err := msgpack.Marshal(frameRequest{Detections: []model.Detection{{Box: model.Box{W: 1, H: 1}, Confidence: 1}}})
	require.NoError(t, err)
	rec = do(e, http.MethodPost, frames, "application/msgpack", mp)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = do(e, http.MethodPost, frames, "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(e, http.MethodPost, frames, `{"detections":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(e, http.MethodPost, frames, `{"timestamp":1.5,"detections":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unix seconds")
	now := float64(time.Now().Unix())
	rec = doJSON(e, http.MethodPost, frames, fmt.Sprintf(`{"timestamp":%.1f,"detections":[]}`, now))
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	assert.Eventually(t, func() bool {
		rec := do(e, http.MethodGet, "/v1/sessions/"+v.ID, "", nil)
		var got SessionView
		return json.Unmarshal(rec.Body.Bytes(), &got) == nil && got.FramesSeen == 3
	}, time.Second, 5*time.Millisecond)
}

func TestLifecycleAndEnd(t *testing.T) {
	e, _ := newTestServer(t)
	v := createSession(t, e, `{"use_default_layout":true}`)
	base := "/v1/sessions/" + v.ID

	rec := doJSON(e, http.MethodPost, base+"/start", "")
	var got SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, model.PhaseMonitoring, got.Phase)

	rec = doJSON(e, http.MethodPost, base+"/stop", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, model.PhaseStopped, got.Phase)

	assert.Equal(t, http.StatusOK, doJSON(e, http.MethodPost, base+"/reset", "").Code)

	rec = doJSON(e, http.MethodDelete, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ended struct {
		Report   model.Report `json:"report"`
		Archived bool         `json:"archived"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ended))
	assert.False(t, ended.Archived)
	assert.Equal(t, v.ID, ended.Report.SessionID)
	assert.Len(t, ended.Report.Rows, 4)

	assert.Equal(t, http.StatusNotFound, doJSON(e, http.MethodGet, base, "").Code)
}

func TestReportCSV(t *testing.T) {
	e, _ := newTestServer(t)
	v := createSession(t, e, `{"use_default_layout":true}`)

	rec := do(e, http.MethodGet, "/v1/sessions/"+v.ID+"/report.csv", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="seat_occupancy_20260302_080000.csv"`, rec.Header().Get(echo.HeaderContentDisposition))
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/csv"))
	assert.Equal(t, "Seat Label,Accumulated Time (s)\nA,0.00\nB,0.00\nC,0.00\nD,0.00\n", rec.Body.String())
}

func TestGetSessionProtobuf(t *testing.T) {
	e, _ := newTestServer(t)
	v := createSession(t, e, `{"use_default_layout":true}`)

	rec := do(e, http.MethodGet, "/v1/sessions/"+v.ID, "", nil, echo.HeaderAccept, MIMEProtobuf)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, MIMEProtobuf, rec.Header().Get(echo.HeaderContentType))

	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, v.ID, st.Fields["id"].GetStringValue())
	assert.Equal(t, "CONFIGURING", st.Fields["phase"].GetStringValue())
	assert.Len(t, st.Fields["seat_list"].GetListValue().GetValues(), 4)
}

type fakeStore struct {
	report *model.Report
	list   []repository.ReportSummary
	err    error
	limit  int
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*model.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.report == nil || f.report.ID != id {
		return nil, repository.ErrReportNotFound
	}
	return f.report, nil
}

func (f *fakeStore) ListRecent(_ context.Context, limit int) ([]repository.ReportSummary, error) {
	f.limit = limit
	return f.list, f.err
}

func newReportServer(store ReportStore) *echo.Echo {
	h := &ReportHandler{Store: store}
	e := echo.New()
	e.GET("/v1/reports", h.ListReports)
	e.GET("/v1/reports/:id", h.GetReport)
	return e
}

func TestReportHandler(t *testing.T) {
	ended := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	store := &fakeStore{
		report: &model.Report{ID: "r-1", SessionID: "s-1", EndedAt: ended, Rows: []model.ReportRow{{Label: "A", TotalSeconds: 8}}},
		list:   []repository.ReportSummary{{ID: "r-1", SessionID: "s-1", Seats: 1}},
	}
	e := newReportServer(store)

	rec := do(e, http.MethodGet, "/v1/reports/r-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rep model.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, "s-1", rep.SessionID)

	rec = do(e, http.MethodGet, "/v1/reports/r-1?format=csv", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Seat Label,Accumulated Time (s)\nA,8.00\n", rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "seat_occupancy_20260302_093000.csv")

	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/v1/reports/r-2", "", nil).Code)

	rec = do(e, http.MethodGet, "/v1/reports?limit=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, store.limit)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/v1/reports?limit=abc", "", nil).Code)

	store.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, do(e, http.MethodGet, "/v1/reports", "", nil).Code)
	assert.Equal(t, http.StatusInternalServerError, do(e, http.MethodGet, "/v1/reports/r-1", "", nil).Code)
}

func TestReportHandlerDisabled(t *testing.T) {
	e := newReportServer(nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(e, http.MethodGet, "/v1/reports", "", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(e, http.MethodGet, "/v1/reports/x", "", nil).Code)
}
