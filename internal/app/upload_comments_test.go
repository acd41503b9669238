package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"reinfer-cli/internal/client"
)

func commentLine(id string, annotated bool) string {
	line := fmt.Sprintf(`{"comment":{"id":%q,"timestamp":"2024-01-01T00:00:00Z","messages":[{"body":{"text":"hello %s"}}]}`, id, id)
	if annotated {
		line = strings.TrimSuffix(line, "}") + `,"labelling":{"assigned":[{"name":"Billing","sentiment":"positive"}]}}`
	}
	return line
}

func writeLines(t *testing.T, lines ...string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "comments.jsonl")
	if err := os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func batchIDs(t *testing.T, reqs []recordedRequest) [][]string {
	t.Helper()
	var out [][]string
	for _, r := range reqs {
		body := decodeJSON[struct {
			Comments []struct {
				ID string `json:"id"`
			} `json:"comments"`
		}](t, r.Body)
		var ids []string
		for _, c := range body.Comments {
			ids = append(ids, c.ID)
		}
		out = append(out, ids)
	}
	return out
}

const (
	putPath  = "/api/_private/sources/acme/support/comments"
	syncPath = "/api/v1/sources/acme/support/sync"
)

func TestRunCreateComments_SplitsPutAndSync(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.withSource("acme", "support", "src1")
	api.ok("PUT "+putPath, nil)
	api.ok("POST "+syncPath, map[string]any{"new": 0, "updated": 1, "unchanged": 0})
	g := testGlobals(t, srv)
	_, errOut := captureOutput(t)

	file := writeLines(t, commentLine("a", false), commentLine("b", false), commentLine("a", false), commentLine("c", false))
	err := RunCreateComments(context.Background(), g, CreateCommentsOptions{
		Source:          "acme/support",
		File:            file,
		BatchSize:       2,
		AllowDuplicates: true,
		NoProgress:      true,
	})
	if err != nil {
		t.Fatalf("RunCreateComments: %v", err)
	}
	if diff := cmp.Diff([][]string{{"a", "b"}, {"c"}}, batchIDs(t, api.calls(http.MethodPut, putPath))); diff != "" {
		t.Fatalf("put batches (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{{"a"}}, batchIDs(t, api.calls(http.MethodPost, syncPath))); diff != "" {
		t.Fatalf("sync batches (-want +got):\n%s", diff)
	}
	if !strings.Contains(errOut.String(), "Successfully uploaded 4 comments (of which 0 are annotated). 0 skipped") {
		t.Fatalf("missing summary: %s", errOut.String())
	}
}

func TestRunCreateComments_OverwriteSyncsEverything(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.withSource("acme", "support", "src1")
	api.ok("POST "+syncPath, map[string]any{"new": 2, "updated": 1, "unchanged": 0})
	g := testGlobals(t, srv)
	_, errOut := captureOutput(t)

	file := writeLines(t, commentLine("a", false), commentLine("b", false), commentLine("c", false))
	err := RunCreateComments(context.Background(), g, CreateCommentsOptions{
		Source:     "acme/support",
		File:       file,
		BatchSize:  128,
		Overwrite:  true,
		NoProgress: true,
	})
	if err != nil {
		t.Fatalf("RunCreateComments: %v", err)
	}
	if n := len(api.calls(http.MethodPut, putPath)); n != 0 {
		t.Fatalf("put calls = %d, want 0", n)
	}
	want := "Successfully uploaded 3 comments [2 new | 1 updated | 0 unchanged | 0 skipped] of which 0 are annotated."
	if !strings.Contains(errOut.String(), want) {
		t.Fatalf("missing summary %q in %s", want, errOut.String())
	}
}

func rejectID(bad string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Comments []struct {
				ID string `json:"id"`
			} `json:"comments"`
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		for _, c := range body.Comments {
			if c.ID == bad {
				writeError(w, http.StatusUnprocessableEntity, "bad comment")
				return
			}
		}
		writeOK(w, nil)
	}
}

func TestRunCreateComments_ResumeOnErrorSplitsBatch(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.withSource("acme", "support", "src1")
	api.handle("PUT "+putPath, rejectID("bad"))
	g := testGlobals(t, srv)
	_, errOut := captureOutput(t)

	file := writeLines(t, commentLine("ok1", false), commentLine("bad", false), commentLine("ok2", false))
	err := RunCreateComments(context.Background(), g, CreateCommentsOptions{
		Source:        "acme/support",
		File:          file,
		BatchSize:     3,
		ResumeOnError: true,
		NoProgress:    true,
	})
	if err != nil {
		t.Fatalf("RunCreateComments: %v", err)
	}
	want := [][]string{{"ok1", "bad", "ok2"}, {"ok1"}, {"bad"}, {"ok2"}}
	if diff := cmp.Diff(want, batchIDs(t, api.calls(http.MethodPut, putPath))); diff != "" {
		t.Fatalf("put batches (-want +got):\n%s", diff)
	}
	if !strings.Contains(errOut.String(), "Successfully uploaded 2 comments (of which 0 are annotated). 1 skipped") {
		t.Fatalf("missing summary: %s", errOut.String())
	}
}

func TestRunCreateComments_FailsWithoutResume(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.withSource("acme", "support", "src1")
	api.handle("PUT "+putPath, rejectID("bad"))
	g := testGlobals(t, srv)
	captureOutput(t)

	file := writeLines(t, commentLine("ok1", false), commentLine("bad", false))
	err := RunCreateComments(context.Background(), g, CreateCommentsOptions{
		Source:     "acme/support",
		File:       file,
		BatchSize:  8,
		NoProgress: true,
	})
	if err == nil || !strings.Contains(err.Error(), "could not put batch of comments") {
		t.Fatalf("err = %v", err)
	}
	if !client.IsStatus(err, http.StatusUnprocessableEntity) {
		t.Fatalf("expected 422 in chain: %v", err)
	}
}

func TestRunCreateComments_UploadsAnnotationsAfterComments(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.withSource("acme", "support", "src1")
	api.withDataset("acme", "triage", "ds1")
	api.ok("PUT "+putPath, nil)
	labellingPrefix := "/api/_private/datasets/acme/triage/labellings/"
	for _, id := range []string{"a", "c"} {
		api.ok("POST "+labellingPrefix+"src1."+id, nil)
	}
	g := testGlobals(t, srv)
	_, errOut := captureOutput(t)

	file := writeLines(t, commentLine("a", true), commentLine("b", false), commentLine("c", true))
	err := RunCreateComments(context.Background(), g, CreateCommentsOptions{
		Source:     "acme/support",
		Dataset:    "acme/triage",
		File:       file,
		BatchSize:  2,
		NoProgress: true,
	})
	if err != nil {
		t.Fatalf("RunCreateComments: %v", err)
	}

	api.mu.Lock()
	requests := append([]recordedRequest(nil), api.requests...)
	api.mu.Unlock()
	lastPut, firstLabelling := -1, -1
	for i, r := range requests {
		if r.Method == http.MethodPut && r.Path == putPath {
			lastPut = i
		}
		if strings.HasPrefix(r.Path, labellingPrefix) && firstLabelling < 0 {
			firstLabelling = i
		}
	}
	if firstLabelling < 0 || lastPut > firstLabelling {
		t.Fatalf("labellings must follow their comments: lastPut=%d firstLabelling=%d", lastPut, firstLabelling)
	}
	for _, id := range []string{"a", "c"} {
		if n := len(api.calls(http.MethodPost, labellingPrefix+"src1."+id)); n != 1 {
			t.Fatalf("labelling %s calls = %d", id, n)
		}
	}
	if !strings.Contains(errOut.String(), "of which 2 are annotated") {
		t.Fatalf("missing annotation count: %s", errOut.String())
	}
}

func TestRunCreateComments_InputGuards(t *testing.T) {
	isolateHome(t)
	captureOutput(t)
	ctx := context.Background()

	if err := RunCreateComments(ctx, GlobalOptions{}, CreateCommentsOptions{BatchSize: 0}); err == nil || !strings.Contains(err.Error(), "--batch-size") {
		t.Fatalf("batch size err = %v", err)
	}
	if err := RunCreateComments(ctx, GlobalOptions{}, CreateCommentsOptions{BatchSize: 1}); err == nil || !strings.Contains(err.Error(), "--allow-duplicates") {
		t.Fatalf("stdin err = %v", err)
	}
	dup := writeLines(t, commentLine("a", false), commentLine("a", false))
	err := RunCreateComments(ctx, GlobalOptions{}, CreateCommentsOptions{BatchSize: 1, File: dup})
	if err == nil || !strings.Contains(err.Error(), "duplicate comments with id a") {
		t.Fatalf("duplicate err = %v", err)
	}
}

func TestSplitOnFailure(t *testing.T) {
	unprocessable := &client.APIError{StatusCode: http.StatusUnprocessableEntity}
	call := func(_ context.Context, items []int) error {
		for _, v := range items {
			if v < 0 {
				return unprocessable
			}
		}
		return nil
	}
	ctx := context.Background()

	failed, err := splitOnFailure(ctx, []int{1, -1, 2, -3}, true, call)
	if err != nil || failed != 2 {
		t.Fatalf("failed=%d err=%v, want 2 nil", failed, err)
	}
	if _, err := splitOnFailure(ctx, []int{1, -1}, false, call); !errors.Is(err, error(unprocessable)) {
		t.Fatalf("err = %v, want the batch error", err)
	}
	forbidden := func(context.Context, []int) error { return &client.APIError{StatusCode: http.StatusForbidden} }
	if _, err := splitOnFailure(ctx, []int{1, 2}, true, forbidden); !client.IsStatus(err, http.StatusForbidden) {
		t.Fatalf("non-splittable error should be returned, got %v", err)
	}
	encodeErr := fmt.Errorf("%w: bad float", client.ErrEncodeRequest)
	if !shouldSplit(encodeErr) || !shouldSplit(&client.APIError{StatusCode: http.StatusBadRequest}) {
		t.Fatal("encode errors and 400s should split")
	}
}

func TestCommentUploaderShouldSync(t *testing.T) {
	u := &commentUploader{seen: map[string]struct{}{"a": {}}}
	if u.shouldSync("a") || u.shouldSync("b") {
		t.Fatal("plain uploads always put")
	}
	u.allowDuplicates = true
	if !u.shouldSync("a") || u.shouldSync("b") {
		t.Fatal("with duplicates allowed only repeated ids sync")
	}
	u.overwrite = true
	if !u.shouldSync("b") {
		t.Fatal("overwrite syncs everything")
	}
}
