package mastering

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestGetUploadURLAndConfirm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		switch r.URL.Path {
		case "/get-upload-url":
			assert.Equal(t, "ep1.wav", r.URL.Query().Get("filename"))
			assert.Equal(t, "audio/wav", r.URL.Query().Get("content_type"))
			_, _ = w.Write([]byte(`{"file_id":"f-1","upload_url":"https://r2.example/put","r2_key":"uploads/f-1.wav"}`))
		case "/confirm-upload":
			assert.Equal(t, "f-1", r.URL.Query().Get("file_id"))
			assert.Equal(t, "42", r.URL.Query().Get("size"))
			_, _ = w.Write([]byte(`{"file_id":"f-1","size":42,"status":"confirmed"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL + "/")
	require.NoError(t, err)

	slot, err := client.GetUploadURL(context.Background(), "ep1.wav", "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, "f-1", slot.FileID)
	assert.Equal(t, "uploads/f-1.wav", slot.ObjectKey)

	confirmed, err := client.ConfirmUpload(context.Background(), "f-1", 42)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", confirmed.Status)
}

func TestMasterRequiresReference(t *testing.T) {
	client, err := NewClient("http://mastering.test")
	require.NoError(t, err)

	_, err = client.Master(context.Background(), MasterRequest{TargetFileID: "f-1"})
	require.Error(t, err)
}

func TestMasterSendsQuery(t *testing.T) {
	var captured string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		captured = req.URL.String()
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"job_id":"job-1","message":"Mastering job started"}`)),
			Header:     http.Header{},
		}, nil
	})
	client, err := NewClient("http://mastering.test", WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	jobID, err := client.Master(context.Background(), MasterRequest{
		TargetFileID:  "f-1",
		TemplateID:    "warm",
		OutputQuality: "high",
		LimiterMode:   "loud",
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
	assert.Equal(t, "http://mastering.test/master?limiter_mode=loud&output_quality=high&target_file_id=f-1&template_id=warm", captured)
}

func TestStatusErrorDetail(t *testing.T) {
	cases := map[string]string{
		`{"detail":"Job not found"}`:                              "Job not found",
		`{"detail":[{"msg":"field required"},{"msg":"bad fps"}]}`: "field required, bad fps",
		`{"error":"boom"}`:                                        "boom",
		`upstream timeout`:                                        "upstream timeout",
	}
	for body, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(body))
		}))
		client, err := NewClient(srv.URL)
		require.NoError(t, err)

		_, err = client.Status(context.Background(), "job-x")
		se, ok := AsStatusError(err)
		require.True(t, ok, body)
		assert.Equal(t, http.StatusNotFound, se.Status)
		assert.Equal(t, want, se.Detail)
		srv.Close()
	}
}

func TestStartRenderPostsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/video/render", r.URL.Path)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "https://cdn.example/a.wav", payload["audio_url"])
		assert.Equal(t, []any{}, payload["captions"])
		_, _ = w.Write([]byte(`{"job_id":"render-1"}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	jobID, err := client.StartRender(context.Background(), RenderRequest{AudioURL: "https://cdn.example/a.wav", FPS: 30})
	require.NoError(t, err)
	assert.Equal(t, "render-1", jobID)
}

func TestPutObjectRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("SignatureDoesNotMatch"))
	}))
	defer srv.Close()

	client, err := NewClient("http://mastering.test")
	require.NoError(t, err)

	err = client.PutObject(context.Background(), srv.URL+"/put", strings.NewReader("abc"), 3, "audio/wav")
	se, ok := AsStatusError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, se.Status)
}

func TestPutObjectEmptyFileSendsContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.TransferEncoding) > 0 || r.ContentLength != 0 {
			w.WriteHeader(http.StatusLengthRequired)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient("http://mastering.test")
	require.NoError(t, err)

	// Wrapped so net/http cannot sniff the length from a known reader type.
	body := struct{ io.Reader }{strings.NewReader("")}
	require.NoError(t, client.PutObject(context.Background(), srv.URL+"/put", body, 0, "audio/wav"))
}

func TestDownloadURL(t *testing.T) {
	client, err := NewClient("https://api.example/")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example/download/job%201", client.DownloadURL("job 1"))
}
