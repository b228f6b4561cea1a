package subaru

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMirror serves a minimal path-style S3 API: one bucket carrying a
// zstd-compressed repo index under a key the caller does not know up front.
func fakeMirror(t *testing.T, bucket string, objects map[string][]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/"+bucket && r.URL.Query().Get("list-type") == "2" {
			prefix := r.URL.Query().Get("prefix")
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>`)
			fmt.Fprintf(w, `<ListBucketResult><Name>%s</Name><Prefix>%s</Prefix>`, bucket, prefix)
			n := 0
			for key := range objects {
				if len(prefix) == 0 || (len(key) >= len(prefix) && key[:len(prefix)] == prefix) {
					fmt.Fprintf(w, `<Contents><Key>%s</Key><Size>%d</Size></Contents>`, key, len(objects[key]))
					n++
				}
			}
			fmt.Fprintf(w, `<KeyCount>%d</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated></ListBucketResult>`, n)
			return
		}
		key := r.URL.Path[len("/"+bucket+"/"):]
		data, ok := objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code></Error>`)
			return
		}
		w.Write(data)
	}))
}

func mirrorConfig(endpoint string) *Config {
	return &Config{Values: map[string]string{
		"S3_ENDPOINT":          endpoint,
		"S3_ACCESS_KEY_ID":     "test",
		"S3_SECRET_ACCESS_KEY": "test",
		"S3_BUCKET_NAME":       "mirror",
	}}
}

func zstdIndex(t *testing.T, entries []RepoEntry) []byte {
	t.Helper()
	plain := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, SaveRepoIndex(plain, entries))
	payload, err := os.ReadFile(plain)
	require.NoError(t, err)

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = zw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestNewMirrorClientRequiresCredentials(t *testing.T) {
	_, err := NewMirrorClient(&Config{Values: map[string]string{}})
	require.Error(t, err)
}

func TestMirrorFetchRepoIndexExactKey(t *testing.T) {
	srv := fakeMirror(t, "mirror", map[string][]byte{
		"core/index.json": []byte(`[{"name":"bash","version":"5.2","release":"1","arch":"x86_64"}]`),
	})
	defer srv.Close()

	mirror, err := NewMirrorClient(mirrorConfig(srv.URL))
	require.NoError(t, err)

	data, key, err := mirror.FetchRepoIndex(context.Background(), "core", "index.json")
	require.NoError(t, err)
	assert.Equal(t, "core/index.json", key)
	assert.Contains(t, string(data), "bash")
}

func TestMirrorFetchRepoIndexDiscoversVariant(t *testing.T) {
	compressed := zstdIndex(t, sampleEntries())
	srv := fakeMirror(t, "mirror", map[string][]byte{
		"core/index.json.zst": compressed,
	})
	defer srv.Close()

	mirror, err := NewMirrorClient(mirrorConfig(srv.URL))
	require.NoError(t, err)

	// The expected key is absent; the prefix listing finds the zst variant.
	data, key, err := mirror.FetchRepoIndex(context.Background(), "core", "index.json")
	require.NoError(t, err)
	assert.Equal(t, "core/index.json.zst", key)
	assert.Equal(t, compressed, data)
}

func TestFetchRepoIndexFallsBackToMirror(t *testing.T) {
	dir := t.TempDir()
	IndexCache = filepath.Join(dir, "cache")

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer dead.Close()

	srv := fakeMirror(t, "mirror", map[string][]byte{
		"core/index.json.zst": zstdIndex(t, sampleEntries()),
	})
	defer srv.Close()

	entries, err := fetchRepoIndex(context.Background(),
		Repo{Name: "core", URL: dead.URL + "/index.json"},
		mirrorConfig(srv.URL))
	require.NoError(t, err)
	require.Len(t, entries, len(sampleEntries()))
	assert.Equal(t, "core", entries[0].Repo)
}
