package app

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"reinfer-cli/internal/client"
)

func withStdin(t *testing.T, input string) {
	t.Helper()
	old := stdin
	stdin = strings.NewReader(input)
	t.Cleanup(func() { stdin = old })
}

func TestRunCreateQuota(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.ok("POST /auth/refresh-user-permissions", nil)
	api.ok("POST /api/_private/quotas/t42/comments_per_source", nil)
	g := testGlobals(t, srv)
	_, errOut := captureOutput(t)
	limit := int64(5000)

	err := RunCreateQuota(context.Background(), g, CreateQuotaOptions{
		UiPathTenantID:   "t42",
		Kind:             "comments_per_source",
		HardLimit:        1000,
		AutoIncreaseUpTo: &limit,
	})
	if err != nil {
		t.Fatalf("RunCreateQuota: %v", err)
	}
	reqs := api.calls(http.MethodPost, "/api/_private/quotas/t42/comments_per_source")
	if len(reqs) != 1 {
		t.Fatalf("quota calls = %d", len(reqs))
	}
	if got := string(reqs[0].Body); got != `{"hard_limit":1000,"auto_increase_up_to":5000}` {
		t.Fatalf("body = %s", got)
	}
	if !strings.Contains(errOut.String(), "New quota `comments_per_source` set successfully in tenant with id `t42`") {
		t.Fatalf("missing log line: %s", errOut.String())
	}
}

func TestRunCreateQuota_Validates(t *testing.T) {
	captureOutput(t)
	ctx := context.Background()
	cases := []struct {
		name string
		opts CreateQuotaOptions
		want string
	}{
		{"no tenant", CreateQuotaOptions{Kind: "sources"}, "one and only one"},
		{"two tenants", CreateQuotaOptions{ReinferTenantID: "a", UiPathTenantID: "b", Kind: "sources"}, "one and only one"},
		{"bad kind", CreateQuotaOptions{ReinferTenantID: "a", Kind: "widgets"}, "quota kind"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := RunCreateQuota(ctx, GlobalOptions{}, tc.opts)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestRunCreateStreams_PinsModelVersion(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.ok("POST /auth/refresh-user-permissions", nil)
	api.withDataset("acme", "triage", "d1")
	api.handle("PUT /api/v1/datasets/acme/triage/streams", func(w http.ResponseWriter, r *http.Request) {
		body := decodeJSON[struct {
			Stream map[string]any `json:"stream"`
		}](t, mustReadBody(t, r))
		writeOK(w, map[string]any{"stream": map[string]any{"id": "x", "name": body.Stream["name"]}})
	})
	file := filepath.Join(t.TempDir(), "streams.jsonl")
	lines := `{"name":"urgent","title":"Urgent","model":{"version":1}}` + "\n\n" + `{"name":"billing","label_threshold_filter":{"label":"Billing"}}` + "\n"
	if err := os.WriteFile(file, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}
	g := testGlobals(t, srv)
	_, errOut := captureOutput(t)

	if err := RunCreateStreams(context.Background(), g, CreateStreamsOptions{Dataset: "acme/triage", File: file, ModelVersion: 9}); err != nil {
		t.Fatalf("RunCreateStreams: %v", err)
	}
	reqs := api.calls(http.MethodPut, "/api/v1/datasets/acme/triage/streams")
	if len(reqs) != 2 {
		t.Fatalf("create calls = %d", len(reqs))
	}
	var names []string
	for _, r := range reqs {
		body := decodeJSON[struct {
			Stream struct {
				Name  string `json:"name"`
				Model struct {
					Version int `json:"version"`
				} `json:"model"`
			} `json:"stream"`
		}](t, r.Body)
		if body.Stream.Model.Version != 9 {
			t.Fatalf("stream %s model = %+v", body.Stream.Name, body.Stream.Model)
		}
		names = append(names, body.Stream.Name)
	}
	if diff := cmp.Diff([]string{"urgent", "billing"}, names); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	if !strings.Contains(errOut.String(), "Created stream 'billing' in dataset 'acme/triage'") {
		t.Fatalf("missing log line: %s", errOut.String())
	}
}

func mustReadBody(t *testing.T, r *http.Request) []byte {
	t.Helper()
	b, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

const integrationPath = "/api/_private/integrations/acme/mail"

func writeIntegrationFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "integration.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func existingIntegration(api *fakeAPI) {
	api.ok("GET "+integrationPath, map[string]any{"integration": map[string]any{
		"id": "i1", "owner": "acme", "name": "mail", "title": "Mail", "enabled": true,
		"configuration": map[string]any{"mailboxes": []any{"a@acme.com"}, "region": "eu"},
	}})
}

func TestRunCreateIntegration_CreatesWhenMissing(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.ok("POST /auth/refresh-user-permissions", nil)
	api.handle("GET "+integrationPath, func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	api.ok("PUT "+integrationPath, map[string]any{"integration": map[string]any{"id": "i9", "owner": "acme", "name": "mail"}})
	g := testGlobals(t, srv)
	_, errOut := captureOutput(t)
	file := writeIntegrationFile(t, `{"title":"Mail","configuration":{"region":"eu"}}`)

	if err := RunCreateIntegration(context.Background(), g, CreateIntegrationOptions{Name: "acme/mail", File: file}); err != nil {
		t.Fatalf("RunCreateIntegration: %v", err)
	}
	reqs := api.calls(http.MethodPut, integrationPath)
	if len(reqs) != 1 || string(reqs[0].Body) != `{"integration":{"title":"Mail","configuration":{"region":"eu"}}}` {
		t.Fatalf("create requests = %+v", reqs)
	}
	if !strings.Contains(errOut.String(), "[id: i9] created successfully") {
		t.Fatalf("missing log line: %s", errOut.String())
	}
}

func TestRunCreateIntegration_ExistingNeedsOverwrite(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.ok("POST /auth/refresh-user-permissions", nil)
	existingIntegration(api)
	g := testGlobals(t, srv)
	captureOutput(t)
	file := writeIntegrationFile(t, `{"configuration":{"region":"us"}}`)

	err := RunCreateIntegration(context.Background(), g, CreateIntegrationOptions{Name: "acme/mail", File: file})
	if err == nil || !strings.Contains(err.Error(), "--overwrite") {
		t.Fatalf("err = %v", err)
	}
	if n := len(api.calls(http.MethodPost, integrationPath)); n != 0 {
		t.Fatalf("update called %d times", n)
	}
}

func TestRunCreateIntegration_UnchangedIsAnError(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.ok("POST /auth/refresh-user-permissions", nil)
	existingIntegration(api)
	g := testGlobals(t, srv)
	captureOutput(t)
	// Key order differs from the server's copy.
	file := writeIntegrationFile(t, `{"configuration":{"region":"eu","mailboxes":["a@acme.com"]}}`)

	err := RunCreateIntegration(context.Background(), g, CreateIntegrationOptions{Name: "acme/mail", File: file, Overwrite: true})
	if err == nil || !strings.Contains(err.Error(), "same as the existing") {
		t.Fatalf("err = %v", err)
	}
}

func TestRunCreateIntegration_UpdatesAfterConfirmation(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.ok("POST /auth/refresh-user-permissions", nil)
	existingIntegration(api)
	api.ok("POST "+integrationPath, map[string]any{"integration": map[string]any{"id": "i1"}})
	g := testGlobals(t, srv)
	_, errOut := captureOutput(t)
	withStdin(t, "y\n")
	file := writeIntegrationFile(t, `{"enabled":false,"configuration":{"region":"us","mailboxes":["a@acme.com"]}}`)

	if err := RunCreateIntegration(context.Background(), g, CreateIntegrationOptions{Name: "acme/mail", File: file, Overwrite: true}); err != nil {
		t.Fatalf("RunCreateIntegration: %v", err)
	}
	reqs := api.calls(http.MethodPost, integrationPath)
	if len(reqs) != 1 {
		t.Fatalf("update calls = %d", len(reqs))
	}
	body := decodeJSON[struct {
		Integration client.NewIntegration `json:"integration"`
	}](t, reqs[0].Body)
	if body.Integration.Title != "Mail" || body.Integration.Enabled == nil || *body.Integration.Enabled {
		t.Fatalf("update body = %s", reqs[0].Body)
	}
	for _, want := range []string{`"us"`, `"eu"`, "Integration `acme/mail` updated successfully"} {
		if !strings.Contains(errOut.String(), want) {
			t.Fatalf("stderr missing %q:\n%s", want, errOut.String())
		}
	}
}

func TestRunCreateIntegration_DeclinedUpdate(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.ok("POST /auth/refresh-user-permissions", nil)
	existingIntegration(api)
	g := testGlobals(t, srv)
	captureOutput(t)
	withStdin(t, "n\n")
	file := writeIntegrationFile(t, `{"configuration":{"region":"us"}}`)

	err := RunCreateIntegration(context.Background(), g, CreateIntegrationOptions{Name: "acme/mail", File: file, Overwrite: true})
	if err == nil || !strings.Contains(err.Error(), "aborted") {
		t.Fatalf("err = %v", err)
	}
	if n := len(api.calls(http.MethodPost, integrationPath)); n != 0 {
		t.Fatalf("update called %d times", n)
	}
}

const bucketPath = "/api/_private/buckets/acme/inbox"

func TestRunGetEmails_PagesIntoFile(t *testing.T) {
	api, srv := newFakeAPI(t)
	withBucket(api)
	api.ok("GET "+bucketPath+"/statistics", map[string]any{"statistics": map[string]any{"count": map[string]any{"kind": "exact", "value": 3}}})
	api.handle("POST "+bucketPath+"/emails/iter", func(w http.ResponseWriter, r *http.Request) {
		body := decodeJSON[struct {
			Continuation string `json:"continuation"`
		}](t, mustReadBody(t, r))
		if body.Continuation == "" {
			writeOK(w, map[string]any{"emails": []any{
				map[string]any{"id": "e1", "mime_content": "a"},
				map[string]any{"id": "e2", "mime_content": "b"},
			}, "continuation": "k1"})
			return
		}
		writeOK(w, map[string]any{"emails": []any{map[string]any{"id": "e3", "mime_content": "c", "mailbox": "ops@acme.com"}}})
	})
	g := testGlobals(t, srv)
	_, errOut := captureOutput(t)
	file := filepath.Join(t.TempDir(), "emails.jsonl")

	if err := RunGetEmails(context.Background(), g, GetEmailsOptions{Bucket: "acme/inbox", File: file}); err != nil {
		t.Fatalf("RunGetEmails: %v", err)
	}
	b, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		ids = append(ids, decodeJSON[client.Email](t, []byte(line)).ID)
	}
	if diff := cmp.Diff([]string{"e1", "e2", "e3"}, ids); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
	if n := len(api.calls(http.MethodGet, bucketPath+"/statistics")); n != 1 {
		t.Fatalf("statistics calls = %d", n)
	}
	if !strings.Contains(errOut.String(), "Successfully downloaded 3 emails.") {
		t.Fatalf("missing summary: %s", errOut.String())
	}
}

func TestRunGetKeyedSyncStates_UsesBucketID(t *testing.T) {
	api, srv := newFakeAPI(t)
	withBucket(api)
	api.ok("POST /api/_private/buckets/id:b1/keyed-sync-states", map[string]any{"keyed_sync_states": []any{
		map[string]any{"key": "k", "status": "ok", "mailbox_name": "ops@acme.com", "folder_id": "f", "folder_path": []any{"Inbox"}},
	}})
	g := testGlobals(t, srv)
	g.Output = "json"
	out, _ := captureOutput(t)

	if err := RunGetKeyedSyncStates(context.Background(), g, "acme/inbox"); err != nil {
		t.Fatalf("RunGetKeyedSyncStates: %v", err)
	}
	got := decodeJSON[client.KeyedSyncState](t, out.Bytes())
	if got.MailboxName != "ops@acme.com" || got.Status != "ok" {
		t.Fatalf("printed state = %+v", got)
	}
}

func TestRunGetComment_WritesFile(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.withSource("acme", "support", "s1")
	api.ok("GET /api/v1/sources/acme/support/comments/c1", map[string]any{"comment": apiComment("c1")})
	g := testGlobals(t, srv)
	out, _ := captureOutput(t)
	file := filepath.Join(t.TempDir(), "comment.jsonl")

	if err := RunGetComment(context.Background(), g, "acme/support", "c1", file); err != nil {
		t.Fatalf("RunGetComment: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("stdout should stay empty, got %s", out.String())
	}
	b, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if got := decodeJSON[client.Comment](t, b); got.ID != "c1" {
		t.Fatalf("comment = %+v", got)
	}
}

func TestRunCreateTriggerException(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.ok("POST /auth/refresh-user-permissions", nil)
	api.ok("PUT /api/v1/datasets/acme/triage/triggers/urgent/exceptions", nil)
	g := testGlobals(t, srv)
	_, errOut := captureOutput(t)

	err := RunCreateTriggerException(context.Background(), g, CreateStreamExceptionOptions{
		Stream: "acme/triage/urgent",
		Type:   "No Prediction",
		UIDs:   []string{"s1.c1", "s1.c2"},
	})
	if err != nil {
		t.Fatalf("RunCreateTriggerException: %v", err)
	}
	reqs := api.calls(http.MethodPut, "/api/v1/datasets/acme/triage/triggers/urgent/exceptions")
	if len(reqs) != 1 {
		t.Fatalf("exception calls = %d", len(reqs))
	}
	body := decodeJSON[struct {
		Exceptions []client.StreamException `json:"exceptions"`
	}](t, reqs[0].Body)
	if len(body.Exceptions) != 2 || body.Exceptions[1].UID != "s1.c2" || body.Exceptions[0].Metadata.Type != "No Prediction" {
		t.Fatalf("body = %s", reqs[0].Body)
	}
	if !strings.Contains(errOut.String(), "Tagged 2 comments as exceptions on trigger `acme/triage/urgent`") {
		t.Fatalf("missing log line: %s", errOut.String())
	}
}
