package feastore

// Contract test for S3TableDirectory against a fake S3 HTTP endpoint, the
// way a storage-engine test suite exercises an interface once per backend
// rather than re-testing TableDirectory semantics from scratch (mirrors
// LocalTableDirectory's own tests in tabledir_test.go).

import (
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

type fakeS3Object struct {
	data []byte
}

// fakeS3Server implements just enough of the S3 REST API (PutObject,
// GetObject, ListObjectsV2) for aws-sdk-go-v2's s3.Client to talk to, with
// a single bucket and in-memory storage.
type fakeS3Server struct {
	mu      sync.Mutex
	objects map[string]fakeS3Object
}

type listBucketResult struct {
	XMLName     xml.Name      `xml:"ListBucketResult"`
	Contents    []listContent `xml:"Contents"`
	IsTruncated bool          `xml:"IsTruncated"`
}

type listContent struct {
	Key  string `xml:"Key"`
	Size int64  `xml:"Size"`
}

type s3ErrorBody struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

func newFakeS3Server() *fakeS3Server {
	return &fakeS3Server{objects: make(map[string]fakeS3Object)}
}

func (s *fakeS3Server) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/")
		// Path-style requests are "/bucket/key...": strip the leading segment.
		if parts := strings.SplitN(key, "/", 2); len(parts) == 2 {
			key = parts[1]
		} else {
			key = ""
		}

		switch r.Method {
		case http.MethodPut:
			body, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			s.mu.Lock()
			s.objects[key] = fakeS3Object{data: body}
			s.mu.Unlock()
			w.WriteHeader(http.StatusOK)

		case http.MethodGet:
			if r.URL.Query().Get("list-type") == "2" {
				s.handleList(w, r)
				return
			}
			s.mu.Lock()
			obj, ok := s.objects[key]
			s.mu.Unlock()
			if !ok {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				_ = xml.NewEncoder(w).Encode(s3ErrorBody{Code: "NoSuchKey", Message: "not found"})
				return
			}
			w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(obj.data)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func (s *fakeS3Server) handleList(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	s.mu.Lock()
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	s.mu.Unlock()
	sort.Strings(keys)

	result := listBucketResult{IsTruncated: false}
	for _, k := range keys {
		s.mu.Lock()
		obj := s.objects[k]
		s.mu.Unlock()
		result.Contents = append(result.Contents, listContent{Key: k, Size: int64(len(obj.data))})
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(result)
}

func newTestS3Directory(t *testing.T) *S3TableDirectory {
	t.Helper()
	srv := newFakeS3Server()
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	return NewS3TableDirectory(S3Config{
		Bucket:          "feastore-test",
		Prefix:          "tables/t1",
		Region:          "us-east-1",
		Endpoint:        ts.URL,
		ForcePathStyle:  true,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
}

func TestS3TableDirectoryEmptyReturnsNil(t *testing.T) {
	dir := newTestS3Directory(t)
	idx, err := dir.Index()
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if idx != nil {
		t.Fatal("expected nil index before any catalog write")
	}
}

func TestS3TableDirectoryCatalogRoundTrip(t *testing.T) {
	dir := newTestS3Directory(t)
	schema := testSchema()
	if err := dir.WriteCatalog(schema); err != nil {
		t.Fatalf("WriteCatalog: %v", err)
	}

	idx, err := dir.Index()
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if idx == nil {
		t.Fatal("expected non-nil index")
	}
	if idx.Schema.Key != schema.Key {
		t.Errorf("got key %q, want %q", idx.Schema.Key, schema.Key)
	}
	if len(idx.Segments) != 0 {
		t.Errorf("expected no segments, got %d", len(idx.Segments))
	}
}

func TestS3TableDirectorySegmentRoundTrip(t *testing.T) {
	dir := newTestS3Directory(t)
	if err := dir.WriteCatalog(testSchema()); err != nil {
		t.Fatalf("WriteCatalog: %v", err)
	}

	buf := writeSegment([]footerEntry{{Name: "data"}}, [][]byte{{1, 2, 3, 4}})
	if _, err := dir.WriteSegment(segmentFileName(0), buf); err != nil {
		t.Fatalf("WriteSegment: %v", err)
	}

	idx, err := dir.Index()
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if len(idx.Segments) != 1 || idx.Segments[0].ID != 0 {
		t.Fatalf("got segments %+v, want one segment with id 0", idx.Segments)
	}

	seg, err := dir.OpenSegment(0, segmentFileName(0))
	if err != nil {
		t.Fatalf("OpenSegment: %v", err)
	}
	defer seg.Close()

	data, ok := seg.Column("data")
	if !ok || len(data) != 4 {
		t.Fatalf("got %v, ok=%v", data, ok)
	}
}

func TestS3TableDirectorySegmentsSortedByName(t *testing.T) {
	dir := newTestS3Directory(t)
	if err := dir.WriteCatalog(testSchema()); err != nil {
		t.Fatalf("WriteCatalog: %v", err)
	}
	for _, id := range []int{5, 2, 8} {
		buf := writeSegment([]footerEntry{{Name: "key"}}, [][]byte{{byte(id)}})
		if _, err := dir.WriteSegment(segmentFileName(id), buf); err != nil {
			t.Fatalf("WriteSegment(%d): %v", id, err)
		}
	}

	idx, err := dir.Index()
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	wantOrder := []int{2, 5, 8}
	if len(idx.Segments) != len(wantOrder) {
		t.Fatalf("got %d segments, want %d", len(idx.Segments), len(wantOrder))
	}
	for i, want := range wantOrder {
		if idx.Segments[i].ID != want {
			t.Errorf("position %d: got id %d, want %d", i, idx.Segments[i].ID, want)
		}
	}
}

func TestS3TableDirectoryIndexIsolatedByPrefix(t *testing.T) {
	srv := newFakeS3Server()
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	mk := func(prefix string) *S3TableDirectory {
		return NewS3TableDirectory(S3Config{
			Bucket:         "feastore-test",
			Prefix:         prefix,
			Region:         "us-east-1",
			Endpoint:       ts.URL,
			ForcePathStyle: true,
		})
	}

	a := mk("tables/a")
	b := mk("tables/b")
	if err := a.WriteCatalog(testSchema()); err != nil {
		t.Fatalf("WriteCatalog(a): %v", err)
	}

	idxB, err := b.Index()
	if err != nil {
		t.Fatalf("Index(b): %v", err)
	}
	if idxB != nil {
		t.Fatalf("expected table b to have no catalog, got %+v", idxB)
	}

	idxA, err := a.Index()
	if err != nil {
		t.Fatalf("Index(a): %v", err)
	}
	if idxA == nil {
		t.Fatal("expected table a to have a catalog")
	}
}

func TestS3ErrorBodyMarshalsExpectedCode(t *testing.T) {
	// Sanity check on the fake server's error shape, since the SDK's
	// not-found detection depends on the error message containing
	// "NoSuchKey" (tabledir_s3.go / isS3NotFound).
	body := s3ErrorBody{Code: "NoSuchKey", Message: "not found"}
	out, err := xml.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(out), "<Code>NoSuchKey</Code>") {
		t.Fatalf("unexpected xml shape: %s", out)
	}
}
