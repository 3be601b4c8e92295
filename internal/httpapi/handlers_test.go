package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskdesk.org/internal/audit"
	"taskdesk.org/internal/auth"
	"taskdesk.org/internal/ids"
	"taskdesk.org/internal/store/memory"
	"taskdesk.org/internal/task"
)

type testEnv struct {
	handler http.Handler
	store   *memory.Store
	admin   *auth.User
	staff   *auth.User
}

// newTestEnv wires the API over the memory store with a Manager holding
// every permission and a Staff user limited to task work.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("TASKDESK_AUTH_SECRET", "httpapi-test-secret")
	auth.ResetSecretCache()
	t.Cleanup(auth.ResetSecretCache)

	store := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	perms, err := store.ListPermissions(ctx)
	if err != nil {
		t.Fatalf("list permissions: %v", err)
	}
	var allIDs, taskIDs []string
	for _, p := range perms {
		allIDs = append(allIDs, p.ID)
		switch p.Name {
		case auth.PermTaskList, auth.PermTaskCreate, auth.PermTaskEdit:
			taskIDs = append(taskIDs, p.ID)
		}
	}

	manager := &auth.Role{ID: ids.New(), Name: "Manager", CreatedAt: now, UpdatedAt: now}
	if err := store.CreateRole(ctx, manager, allIDs,
		audit.NewEntry("", audit.ActionCreateRole, "Created a role: Manager", now)); err != nil {
		t.Fatalf("seed Manager: %v", err)
	}
	staffRole := &auth.Role{ID: ids.New(), Name: "Staff", CreatedAt: now, UpdatedAt: now}
	if err := store.CreateRole(ctx, staffRole, taskIDs,
		audit.NewEntry("", audit.ActionCreateRole, "Created a role: Staff", now)); err != nil {
		t.Fatalf("seed Staff: %v", err)
	}

	mkUser := func(name, email string, roleID string) *auth.User {
		hash, err := auth.HashPassword("password")
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		u := &auth.User{
			ID: ids.New(), Name: name, Email: email,
			PasswordHash: hash, Status: auth.UserStatusActive,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := store.CreateUser(ctx, u, []string{roleID},
			audit.NewEntry("", audit.ActionCreateUser, fmt.Sprintf("Created a new user: %s (%s)", name, email), now)); err != nil {
			t.Fatalf("seed user %s: %v", email, err)
		}
		return u
	}
	admin := mkUser("Admin", "admin@example.com", manager.ID)
	staff := mkUser("Sam", "sam@example.com", staffRole.ID)

	rbac := auth.NewService(store)
	tasks := task.NewService(store, store)
	api := New(rbac, tasks, store, ReadyProbe{}, "test")
	return &testEnv{handler: api.Handler(), store: store, admin: admin, staff: staff}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "127.0.0.1:9999"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) login(t *testing.T, email string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": email, "password": "password",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", email, rr.Code, rr.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected token in login response")
	}
	return resp.Token
}

func (e *testEnv) logCount(t *testing.T) int {
	t.Helper()
	entries, err := e.store.ListEntries(context.Background(), 1000, 0)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	return len(entries)
}

func taskBody(assignee string) map[string]string {
	return map[string]string{
		"name":        "Quarterly report",
		"detail":      "Numbers for Q3",
		"assigned_to": assignee,
		"status":      "pending",
		"due_date":    "2026-10-01",
	}
}

func TestHealthzIsPublic(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": "admin@example.com", "password": "nope",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestTasksRequireToken(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodGet, "/v1/tasks", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	rr = e.do(t, http.MethodGet, "/v1/tasks", "not-a-jwt", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rr.Code)
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, "admin@example.com")

	rr := e.do(t, http.MethodPost, "/v1/tasks", token, taskBody(e.staff.ID))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d %s", rr.Code, rr.Body.String())
	}
	var created task.Task
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if rr.Header().Get("Location") != "/v1/tasks/"+created.ID {
		t.Fatalf("unexpected Location %q", rr.Header().Get("Location"))
	}

	rr = e.do(t, http.MethodGet, "/v1/tasks/"+created.ID, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rr.Code)
	}

	body := taskBody(e.staff.ID)
	body["status"] = "done"
	rr = e.do(t, http.MethodPut, "/v1/tasks/"+created.ID, token, body)
	if rr.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d %s", rr.Code, rr.Body.String())
	}

	rr = e.do(t, http.MethodDelete, "/v1/tasks/"+created.ID, token, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rr.Code)
	}
	rr = e.do(t, http.MethodGet, "/v1/tasks/"+created.ID, token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rr.Code)
	}
}

func TestTaskValidationErrorShape(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, "admin@example.com")

	rr := e.do(t, http.MethodPost, "/v1/tasks", token, map[string]string{})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, field := range []string{"name", "detail", "assigned_to", "status", "due_date"} {
		if _, ok := resp.Fields[field]; !ok {
			t.Fatalf("expected field %q in %v", field, resp.Fields)
		}
	}
}

func TestForbiddenMutationLeavesNoTrace(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, "sam@example.com")
	before := e.logCount(t)

	rr := e.do(t, http.MethodPost, "/v1/users", token, map[string]any{
		"name": "Eve", "email": "eve@example.com",
		"password": "pw", "confirm_password": "pw",
		"roles": []string{"Staff"},
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", rr.Code, rr.Body.String())
	}
	if _, err := e.store.GetUserByEmail(context.Background(), "eve@example.com"); err == nil {
		t.Fatal("expected no user row after denied create")
	}
	if got := e.logCount(t); got != before {
		t.Fatalf("expected log count unchanged (%d), got %d", before, got)
	}
}

func TestActivityLogsPermission(t *testing.T) {
	e := newTestEnv(t)
	staffToken := e.login(t, "sam@example.com")
	adminToken := e.login(t, "admin@example.com")

	rr := e.do(t, http.MethodGet, "/v1/activity-logs", staffToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff, got %d", rr.Code)
	}

	rr = e.do(t, http.MethodGet, "/v1/activity-logs", adminToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Logs []audit.Entry `json:"logs"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Logs) == 0 {
		t.Fatal("expected seeded log entries")
	}
}

func TestInactiveUserStopsAuthenticating(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, "sam@example.com")

	// Flip the account inactive after the token was issued; the next
	// request must fail even though the token itself is still valid.
	sam, err := e.store.GetUser(context.Background(), e.staff.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	sam.Status = auth.UserStatusInactive
	entry := audit.NewEntry("", audit.ActionUpdateUser,
		fmt.Sprintf("Updated a new user: %s (%s)", sam.Name, sam.Email), time.Now().UTC())
	if err := e.store.UpdateUser(context.Background(), sam, nil, entry); err != nil {
		t.Fatalf("update user: %v", err)
	}

	rr := e.do(t, http.MethodGet, "/v1/tasks", token, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestRoleManagementOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, "admin@example.com")

	rr := e.do(t, http.MethodGet, "/v1/permissions", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("permissions: expected 200, got %d", rr.Code)
	}
	var permsResp struct {
		Permissions []auth.Permission `json:"permissions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &permsResp); err != nil {
		t.Fatalf("decode permissions: %v", err)
	}
	if len(permsResp.Permissions) != len(auth.BuiltinPermissions) {
		t.Fatalf("expected full catalog, got %d", len(permsResp.Permissions))
	}

	var logListID string
	for _, p := range permsResp.Permissions {
		if p.Name == auth.PermLogList {
			logListID = p.ID
		}
	}
	rr = e.do(t, http.MethodPost, "/v1/roles", token, map[string]any{
		"name": "Auditor", "permissions": []string{logListID},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create role: expected 201, got %d %s", rr.Code, rr.Body.String())
	}
	var role auth.Role
	if err := json.Unmarshal(rr.Body.Bytes(), &role); err != nil {
		t.Fatalf("decode role: %v", err)
	}

	rr = e.do(t, http.MethodGet, "/v1/roles/"+role.ID, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get role: expected 200, got %d", rr.Code)
	}

	rr = e.do(t, http.MethodDelete, "/v1/roles/"+role.ID, token, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete role: expected 204, got %d", rr.Code)
	}
}

func TestDuplicateEmailConflict(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, "admin@example.com")

	rr := e.do(t, http.MethodPost, "/v1/users", token, map[string]any{
		"name": "Clone", "email": "sam@example.com",
		"password": "pw", "confirm_password": "pw",
		"roles": []string{"Staff"},
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", rr.Code, rr.Body.String())
	}
}
