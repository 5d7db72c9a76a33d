package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"rundown/internal/core"
	"rundown/internal/services"
	"rundown/internal/storage/memory"
)

var fixedNow = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	ids    []string
	closed bool
}

func (f *fakeNotifier) Notify(projectID string) bool {
	if f.closed {
		return false
	}
	f.ids = append(f.ids, projectID)
	return true
}

type testEnv struct {
	srv      *Server
	store    *memory.Store
	notifier *fakeNotifier
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func newTestEnv(t *testing.T, ready func(context.Context) error) *testEnv {
	t.Helper()
	store := memory.New()
	store.PutProject(core.Project{
		ID: "p1", Name: "Bridge", Budget: decimal.NewFromInt(12000),
		Contingency: decimal.NewNullDecimal(decimal.NewFromInt(1200)),
		StartDate:   day(2024, 1, 1), EndDate: day(2024, 12, 31), Active: true,
	})
	store.PutProject(core.Project{
		ID: "bad", Name: "Inverted", Budget: decimal.NewFromInt(100),
		StartDate: day(2024, 6, 1), EndDate: day(2024, 5, 1), Active: true,
	})
	store.AddEvent(core.FinancialEvent{
		ID: "e1", ProjectID: "p1", Amount: decimal.NewFromInt(3000),
		PostingDate: *day(2024, 3, 10), Kind: core.Actual,
	})

	cfg := services.DefaultGeneratorConfig()
	cfg.Now = func() time.Time { return fixedNow }
	gen := services.NewGenerator(store, nil, cfg)
	notifier := &fakeNotifier{}

	srv := NewServer(":0", Options{
		Generator:         gen,
		Scenarios:         services.NewScenarioService(store, gen),
		Store:             store,
		Notifier:          notifier,
		Ready:             ready,
		ProfileCacheTTL:   time.Minute,
		RequestsPerMinute: 1000,
	})
	gen.OnRegenerated(srv.InvalidateProfiles)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: store, notifier: notifier}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(b); err != nil {
				t.Fatal(err)
			}
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := env.do(t, http.MethodGet, path, nil); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	down := newTestEnv(t, func(context.Context) error { return errors.New("db down") })
	if rr := down.do(t, http.MethodGet, "/readyz", nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d, want 503", rr.Code)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/rundown/generate", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	res := decodeBody[core.GenerationResult](t, rr)
	if res.ProjectsProcessed != 1 || len(res.Errors) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Errors[0].ProjectID != "bad" || res.Errors[0].ErrorType != core.ErrorTypeInvalidRange {
		t.Fatalf("unexpected error entry %+v", res.Errors[0])
	}
	if res.ExecutionID == "" {
		t.Fatal("missing execution id")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	rr = env.do(t, http.MethodPost, "/api/rundown/generate?project_id=p1", nil)
	res = decodeBody[core.GenerationResult](t, rr)
	if res.ProjectsProcessed != 1 || len(res.Errors) != 0 || res.ProfilesCreated != 24 {
		t.Fatalf("single project result %+v", res)
	}

	if rr := env.do(t, http.MethodGet, "/api/rundown/generate", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET generate status=%d, want 405", rr.Code)
	}
}

func TestProfilesEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/rundown/generate?project_id=p1", nil)

	rr := env.do(t, http.MethodGet, "/api/rundown/profiles?project_id=p1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	got := decodeBody[ProfilesResponse](t, rr)
	if got.ProfileType != core.TotalBudget || got.Scenario != core.BaselineScenario {
		t.Fatalf("defaults not applied: %+v", got)
	}
	if len(got.Points) != 12 {
		t.Fatalf("points=%d, want 12", len(got.Points))
	}
	if got.Points[0].Month.String() != "202401" || got.Points[11].Month.String() != "202412" {
		t.Fatalf("points out of order: %s..%s", got.Points[0].Month, got.Points[11].Month)
	}
	if !got.Points[11].Planned.Equal(decimal.NewFromInt(12000)) {
		t.Fatalf("final planned=%s", got.Points[11].Planned)
	}
	if got.Points[0].Predicted != nil {
		t.Error("past months carry no prediction")
	}

	rr = env.do(t, http.MethodGet, "/api/rundown/profiles?project_id=p1&profile_type=contingency", nil)
	cont := decodeBody[ProfilesResponse](t, rr)
	if len(cont.Points) != 12 || !cont.Points[11].Planned.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("contingency series %+v", cont.Points)
	}

	tests := []struct {
		name, target string
		want         int
	}{
		{"missing project", "/api/rundown/profiles", http.StatusUnprocessableEntity},
		{"unknown project", "/api/rundown/profiles?project_id=ghost", http.StatusNotFound},
		{"bad type", "/api/rundown/profiles?project_id=p1&profile_type=opex", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := env.do(t, http.MethodGet, tt.target, nil); rr.Code != tt.want {
				t.Fatalf("status=%d, want %d (%s)", rr.Code, tt.want, rr.Body)
			}
		})
	}
}

func TestProfilesCacheInvalidatedOnRegeneration(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/rundown/generate?project_id=p1", nil)
	env.do(t, http.MethodGet, "/api/rundown/profiles?project_id=p1", nil)
	if env.srv.profileCache.Size() != 1 {
		t.Fatalf("cache size=%d, want 1", env.srv.profileCache.Size())
	}

	p, _ := env.store.GetProject(context.Background(), "p1")
	p.Budget = decimal.NewFromInt(24000)
	env.store.PutProject(p)
	env.do(t, http.MethodPost, "/api/rundown/generate?project_id=p1", nil)

	got := decodeBody[ProfilesResponse](t, env.do(t, http.MethodGet, "/api/rundown/profiles?project_id=p1", nil))
	if !got.Points[11].Planned.Equal(decimal.NewFromInt(24000)) {
		t.Fatalf("stale cached series served: final planned=%s", got.Points[11].Planned)
	}
}

func TestScenarioEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/rundown/generate?project_id=p1", nil)

	create := map[string]any{
		"project_id": "p1",
		"name":       "optimistic",
		"adjustment": map[string]any{"kind": "percentage", "value": -10},
		"created_by": "analyst@example.com",
	}
	rr := env.do(t, http.MethodPost, "/api/rundown/scenarios", create)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body)
	}
	if rr := env.do(t, http.MethodPost, "/api/rundown/scenarios", create); rr.Code != http.StatusConflict {
		t.Fatalf("duplicate status=%d, want 409", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/rundown/scenarios/apply", map[string]string{"project_id": "p1", "name": "optimistic"})
	if rr.Code != http.StatusOK {
		t.Fatalf("apply status=%d body=%s", rr.Code, rr.Body)
	}
	applied := decodeBody[ApplyResponse](t, rr)
	if applied.ProfilesCreated != 24 || applied.Scenario.Name != "optimistic" {
		t.Fatalf("apply result %+v", applied)
	}

	opt := decodeBody[ProfilesResponse](t, env.do(t, http.MethodGet, "/api/rundown/profiles?project_id=p1&scenario=optimistic", nil))
	if !opt.Points[11].Planned.Equal(decimal.NewFromInt(10800)) {
		t.Fatalf("optimistic final planned=%s", opt.Points[11].Planned)
	}

	rr = env.do(t, http.MethodPut, "/api/rundown/scenarios", map[string]any{
		"project_id": "p1", "name": "optimistic",
		"adjustment": map[string]any{"kind": "absolute", "value": "-2000"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body)
	}
	opt = decodeBody[ProfilesResponse](t, env.do(t, http.MethodGet, "/api/rundown/profiles?project_id=p1&scenario=optimistic", nil))
	if !opt.Points[11].Planned.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("updated final planned=%s", opt.Points[11].Planned)
	}

	list := decodeBody[[]ScenarioResponse](t, env.do(t, http.MethodGet, "/api/rundown/scenarios?project_id=p1", nil))
	if len(list) != 1 || list[0].Adjustment.Kind != core.Absolute {
		t.Fatalf("list=%+v", list)
	}

	rr = env.do(t, http.MethodDelete, "/api/rundown/scenarios", map[string]string{"project_id": "p1", "name": "optimistic"})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d body=%s", rr.Code, rr.Body)
	}
	opt = decodeBody[ProfilesResponse](t, env.do(t, http.MethodGet, "/api/rundown/profiles?project_id=p1&scenario=optimistic", nil))
	if len(opt.Points) != 0 {
		t.Fatalf("deleted scenario still served %d points", len(opt.Points))
	}
	base := decodeBody[ProfilesResponse](t, env.do(t, http.MethodGet, "/api/rundown/profiles?project_id=p1", nil))
	if !base.Points[11].Planned.Equal(decimal.NewFromInt(12000)) {
		t.Fatalf("baseline changed: %s", base.Points[11].Planned)
	}
}

func TestScenarioErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		name   string
		method string
		target string
		body   any
		want   int
		field  string
	}{
		{"malformed json", http.MethodPost, "/api/rundown/scenarios", `{"project_id":`, http.StatusBadRequest, ""},
		{"unknown field", http.MethodPost, "/api/rundown/scenarios", `{"project_id":"p1","nme":"x"}`, http.StatusBadRequest, ""},
		{"missing adjustment", http.MethodPost, "/api/rundown/scenarios", map[string]any{"project_id": "p1", "name": "x"}, http.StatusUnprocessableEntity, "adjustment"},
		{"bad kind", http.MethodPost, "/api/rundown/scenarios", map[string]any{"project_id": "p1", "name": "x", "adjustment": map[string]any{"kind": "ratio", "value": 1}}, http.StatusUnprocessableEntity, "kind"},
		{"reserved baseline", http.MethodPost, "/api/rundown/scenarios", map[string]any{"project_id": "p1", "name": "baseline", "adjustment": map[string]any{"kind": "absolute", "value": 1}}, http.StatusConflict, ""},
		{"unknown project", http.MethodPost, "/api/rundown/scenarios", map[string]any{"project_id": "ghost", "name": "x", "adjustment": map[string]any{"kind": "absolute", "value": 1}}, http.StatusNotFound, ""},
		{"apply unknown", http.MethodPost, "/api/rundown/scenarios/apply", map[string]string{"project_id": "p1", "name": "nope"}, http.StatusNotFound, ""},
		{"delete baseline", http.MethodDelete, "/api/rundown/scenarios", map[string]string{"project_id": "p1", "name": "baseline"}, http.StatusUnprocessableEntity, ""},
		{"list without project", http.MethodGet, "/api/rundown/scenarios", nil, http.StatusUnprocessableEntity, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.target, tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status=%d, want %d (%s)", rr.Code, tt.want, rr.Body)
			}
			body := decodeBody[ErrorBody](t, rr)
			if body.Error == "" {
				t.Error("empty error message")
			}
			if tt.field != "" {
				if _, ok := body.Fields[tt.field]; !ok {
					t.Errorf("fields=%v, want %q", body.Fields, tt.field)
				}
			}
		})
	}
}

func TestNotificationEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/rundown/notifications", map[string]string{"project_id": "p1", "change": "inserted", "event_id": "e9"})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	if len(env.notifier.ids) != 1 || env.notifier.ids[0] != "p1" {
		t.Fatalf("notified %v", env.notifier.ids)
	}

	if rr := env.do(t, http.MethodPost, "/api/rundown/notifications", map[string]string{"change": "inserted"}); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing project status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/api/rundown/notifications", map[string]string{"project_id": "p1", "change": "renamed"}); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad change status=%d", rr.Code)
	}

	env.notifier.closed = true
	if rr := env.do(t, http.MethodPost, "/api/rundown/notifications", map[string]string{"project_id": "p1"}); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("closed notifier status=%d", rr.Code)
	}
}

func TestGenerationLogEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	res := decodeBody[core.GenerationResult](t, env.do(t, http.MethodPost, "/api/rundown/generate", nil))
	env.do(t, http.MethodPost, "/api/rundown/generate?project_id=p1", nil)

	all := decodeBody[[]GenerationLogResponse](t, env.do(t, http.MethodGet, "/api/rundown/generation-log", nil))
	if len(all) == 0 {
		t.Fatal("empty generation log")
	}

	run := decodeBody[[]GenerationLogResponse](t, env.do(t, http.MethodGet, "/api/rundown/generation-log?execution_id="+res.ExecutionID, nil))
	for _, e := range run {
		if e.ExecutionID != res.ExecutionID {
			t.Fatalf("entry from another run: %+v", e)
		}
	}
	if len(run) == 0 || run[0].Status == core.StatusStarted {
		t.Fatalf("newest entry of the run should be terminal: %+v", run)
	}

	limited := decodeBody[[]GenerationLogResponse](t, env.do(t, http.MethodGet, "/api/rundown/generation-log?limit=1", nil))
	if len(limited) != 1 {
		t.Fatalf("limit=1 returned %d", len(limited))
	}
	if rr := env.do(t, http.MethodGet, "/api/rundown/generation-log?limit=-3", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("negative limit status=%d", rr.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/rundown/generate?project_id=p1", nil)

	rr := env.do(t, http.MethodGet, "/api/rundown/profiles/export?project_id=p1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "rundown-p1-baseline.xlsx") {
		t.Fatalf("Content-Disposition=%q", cd)
	}

	f, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) != 3 {
		t.Fatalf("sheets=%v, want summary plus two profile types", sheets)
	}

	if rr := env.do(t, http.MethodGet, "/api/rundown/profiles/export?project_id=ghost", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown project status=%d", rr.Code)
	}
}

func TestSecurityHeadersAndRateLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/healthz", nil)
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" || rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("missing security headers: %v", rr.Header())
	}

	limited := NewServer(":0", Options{Generator: nopGenerator{}, Store: memory.New(), RequestsPerMinute: 1})
	t.Cleanup(func() { _ = limited.Shutdown(context.Background()) })
	codes := make([]int, 0, 2)
	for range 2 {
		rr := httptest.NewRecorder()
		limited.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/rundown/generate", nil))
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes=%v, want [200 429]", codes)
	}
}

type nopGenerator struct{}

func (nopGenerator) Generate(context.Context, string) (core.GenerationResult, error) {
	return core.GenerationResult{ExecutionID: "x"}, nil
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&core.DuplicateScenarioError{ProjectID: "p", Name: "n"}, http.StatusConflict},
		{core.ErrProjectNotFound, http.StatusNotFound},
		{core.ErrScenarioNotFound, http.StatusNotFound},
		{&core.InvalidRangeError{Reason: "x"}, http.StatusUnprocessableEntity},
		{core.ErrInvalidAdjustment, http.StatusUnprocessableEntity},
		{&core.PersistenceError{Op: "replace", Err: errors.New("disk")}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
