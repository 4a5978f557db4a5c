package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pathakanu/mealremind/internal/mealplan"
	"github.com/pathakanu/mealremind/internal/model"
	"github.com/pathakanu/mealremind/internal/reminder"
	"github.com/pathakanu/mealremind/internal/repository"
	"github.com/pathakanu/mealremind/internal/scheduler/schedulertest"
	"github.com/pathakanu/mealremind/internal/server"
	"github.com/pathakanu/mealremind/internal/testutil"
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, reminder.Fire) error { return nil }

type testServer struct {
	ts    *httptest.Server
	tasks *schedulertest.Fake
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	tasks := schedulertest.New()
	now := func() time.Time { return time.Date(2030, 5, 10, 0, 0, 0, 0, time.UTC) }

	mgr := reminder.NewManager(repository.NewReminderRepository(db), tasks, nopNotifier{}, testutil.Logger(), reminder.WithClock(now))
	svc := mealplan.NewService(repository.NewPlanRepository(db), mgr, time.UTC, testutil.Logger(), mealplan.WithClock(now))
	srv := server.New(svc, mgr, repository.NewContactRepository(db), testutil.Logger())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{ts: ts, tasks: tasks}
}

type response struct {
	Data    json.RawMessage `json:"data"`
	Warning string          `json:"warning"`
	Error   string          `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out response
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode, out
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	resp, err := http.Get(s.ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestPlanLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	status, resp := s.do(t, http.MethodPost, "/meal-plans", map[string]any{
		"title":      "Week one",
		"user_id":    "user-1",
		"type":       "custom",
		"duration":   1,
		"start_date": "2030-05-12",
	})
	if status != http.StatusCreated {
		t.Fatalf("create plan: %d %s", status, resp.Error)
	}
	var plan mealplan.Detail
	json.Unmarshal(resp.Data, &plan)
	base := "/meal-plans/" + plan.ID + "/days/" + plan.Days[0].ID + "/meals"

	status, resp = s.do(t, http.MethodPost, base, map[string]any{
		"time":   "07:00",
		"name":   "Breakfast",
		"dishes": []map[string]any{{"dish_id": "d1", "name": "Pho"}, {"dish_id": "d2", "name": "Banh mi"}},
	})
	if status != http.StatusCreated {
		t.Fatalf("add meal: %d %s", status, resp.Error)
	}
	var meal model.Meal
	json.Unmarshal(resp.Data, &meal)

	status, resp = s.do(t, http.MethodGet, "/meal-plans/"+plan.ID+"/reminders", nil)
	if status != http.StatusOK {
		t.Fatalf("reminders: %d %s", status, resp.Error)
	}
	var report mealplan.ReminderReport
	json.Unmarshal(resp.Data, &report)
	if len(report.Reminders) != 1 || report.Reminders[0].TaskStatus != reminder.TaskPending {
		t.Fatalf("unexpected report: %+v", report)
	}

	status, resp = s.do(t, http.MethodPatch, "/meal-plans/"+plan.ID+"/pause", map[string]any{"is_pause": true})
	if status != http.StatusOK {
		t.Fatalf("pause: %d %s", status, resp.Error)
	}
	status, resp = s.do(t, http.MethodPost, base+"/"+meal.ID+"/dishes", map[string]any{
		"dishes": []map[string]any{{"dish_id": "d3", "name": "Che"}},
	})
	if status != http.StatusConflict {
		t.Fatalf("editing a paused plan should conflict, got %d", status)
	}

	s.tasks.SetDown(true)
	status, resp = s.do(t, http.MethodPatch, "/meal-plans/"+plan.ID+"/pause", map[string]any{"is_pause": false})
	if status != http.StatusAccepted || resp.Warning == "" {
		t.Fatalf("resume with scheduler down should be accepted with a warning, got %d %+v", status, resp)
	}
	s.tasks.SetDown(false)

	status, _ = s.do(t, http.MethodDelete, "/meal-plans/"+plan.ID, nil)
	if status != http.StatusOK {
		t.Fatalf("delete: %d", status)
	}
	status, _ = s.do(t, http.MethodPost, base, map[string]any{"time": "12:00"})
	if status != http.StatusNotFound {
		t.Fatalf("meal on deleted plan day should be 404, got %d", status)
	}
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		path string
		body any
	}{
		{name: "missing fields", path: "/meal-plans", body: map[string]any{"title": "x"}},
		{name: "bad type", path: "/meal-plans", body: map[string]any{"title": "x", "user_id": "u", "type": "weekly", "duration": 1, "start_date": "2030-05-12"}},
		{name: "malformed json", path: "/meal-plans", body: "not an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := s.do(t, http.MethodPost, tt.path, tt.body)
			if status != http.StatusBadRequest || resp.Error == "" {
				t.Fatalf("expected 400 with error, got %d %+v", status, resp)
			}
		})
	}

	if status, _ := s.do(t, http.MethodPatch, "/meal-plans/unknown/pause", map[string]any{"is_pause": true}); status != http.StatusNotFound {
		t.Fatalf("unknown plan should be 404, got %d", status)
	}
}

func TestContactAndCleanup(t *testing.T) {
	s := newTestServer(t)

	status, resp := s.do(t, http.MethodPut, "/users/user-1/contact", map[string]any{"whatsapp_number": "+84901234567"})
	if status != http.StatusOK {
		t.Fatalf("put contact: %d %s", status, resp.Error)
	}

	status, resp = s.do(t, http.MethodPost, "/users/user-1/reminders/cleanup", nil)
	if status != http.StatusOK {
		t.Fatalf("cleanup: %d %s", status, resp.Error)
	}
	var out map[string]int
	json.Unmarshal(resp.Data, &out)
	if out["redundant_tasks_removed"] != 0 {
		t.Fatalf("unexpected cleanup result %v", out)
	}
}

func TestReminderRoutes(t *testing.T) {
	s := newTestServer(t)

	status, resp := s.do(t, http.MethodPost, "/meal-plans", map[string]any{
		"title":      "Week one",
		"user_id":    "user-1",
		"type":       "custom",
		"duration":   1,
		"start_date": "2030-05-12",
	})
	if status != http.StatusCreated {
		t.Fatalf("create plan: %d %s", status, resp.Error)
	}
	var plan mealplan.Detail
	json.Unmarshal(resp.Data, &plan)
	status, resp = s.do(t, http.MethodPost, "/meal-plans/"+plan.ID+"/days/"+plan.Days[0].ID+"/meals", map[string]any{
		"time":   "12:00",
		"dishes": []map[string]any{{"dish_id": "d1", "name": "Bun cha"}},
	})
	if status != http.StatusCreated {
		t.Fatalf("add meal: %d %s", status, resp.Error)
	}

	status, resp = s.do(t, http.MethodGet, "/users/user-1/reminders", nil)
	if status != http.StatusOK {
		t.Fatalf("list reminders: %d %s", status, resp.Error)
	}
	var views []reminder.View
	json.Unmarshal(resp.Data, &views)
	if len(views) != 1 || views[0].TaskStatus != reminder.TaskPending {
		t.Fatalf("unexpected reminders: %+v", views)
	}
	id := views[0].ID

	status, resp = s.do(t, http.MethodGet, "/reminders/"+id, nil)
	if status != http.StatusOK {
		t.Fatalf("get reminder: %d %s", status, resp.Error)
	}

	s.tasks.SetDown(true)
	if status, _ = s.do(t, http.MethodDelete, "/reminders/"+id, nil); status != http.StatusServiceUnavailable {
		t.Fatalf("cancel with scheduler down should be 503, got %d", status)
	}
	s.tasks.SetDown(false)

	status, resp = s.do(t, http.MethodDelete, "/reminders/"+id, nil)
	if status != http.StatusOK {
		t.Fatalf("cancel reminder: %d %s", status, resp.Error)
	}
	var cancelled model.Reminder
	json.Unmarshal(resp.Data, &cancelled)
	if cancelled.Status != model.ReminderCancelled || cancelled.IsActive {
		t.Fatalf("unexpected reminder after cancel: %+v", cancelled)
	}
	if live := s.tasks.Live(id); len(live) != 0 {
		t.Fatalf("task should be cancelled, got %v", live)
	}

	if status, _ = s.do(t, http.MethodGet, "/reminders/unknown", nil); status != http.StatusNotFound {
		t.Fatalf("unknown reminder should be 404, got %d", status)
	}
}
