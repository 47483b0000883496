package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdneilsfield/translens/internal/client"
	"github.com/nerdneilsfield/translens/internal/marker"
)

// mockService 模拟翻译服务：句子里含 “天气” 就翻译它，否则 404
type mockService struct {
	mu     sync.Mutex
	easy   []string
	server *httptest.Server
}

func newMockService(t *testing.T) *mockService {
	t.Helper()
	m := &mockService{}
	mux := http.NewServeMux()
	mux.HandleFunc("/translate", func(w http.ResponseWriter, r *http.Request) {
		var req client.TranslateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !strings.Contains(req.Sentence, "天气") {
			http.Error(w, `{"detail":"none"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(client.Result{TargetWord: "天气", Translation: "weather"})
	})
	mux.HandleFunc("/mark_easy", func(w http.ResponseWriter, r *http.Request) {
		var req client.MarkEasyRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		m.mu.Lock()
		m.easy = append(m.easy, req.Word)
		m.mu.Unlock()
		_ = json.NewEncoder(w).Encode(client.MarkEasyResult{Status: "success", Word: req.Word, NewLevel: 1, SuppressDays: 1})
	})
	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockService) marked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.easy...)
}

// writeConfig 写一个指向模拟服务的配置文件
func writeConfig(t *testing.T, dir, serviceURL string) string {
	t.Helper()
	path := filepath.Join(dir, "translens.yaml")
	content := "service_url: " + serviceURL + "\nsample_fraction: 1.0\nrequest_timeout: 5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand("test", "abc123", "today")
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestHelpListsSubcommands(t *testing.T) {
	out, _, err := run(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"annotate", "watch", "easy", "serve", "config"} {
		assert.Contains(t, out, sub)
	}
	assert.Contains(t, out, "--service-url")
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "commit abc123")
	assert.Contains(t, out, "built today")
}

func TestAnnotateWritesAnnotatedDocument(t *testing.T) {
	svc := newMockService(t)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, svc.server.URL)

	input := filepath.Join(dir, "page.html")
	output := filepath.Join(dir, "page.out.html")
	require.NoError(t, os.WriteFile(input, []byte(
		`<html><body><p>今天天气很好</p><p>我们去公园</p><p style="display:none">隐藏的天气</p></body></html>`), 0o644))

	_, stderr, err := run(t, "annotate", input, "-o", output, "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, stderr, "weather")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	got := string(data)
	assert.Contains(t, got, "天气"+marker.OpenMarker)
	assert.Equal(t, 1, strings.Count(got, marker.OpenMarker))
	assert.Contains(t, got, "隐藏的天气</p>")
}

func TestAnnotateRejectsBadFraction(t *testing.T) {
	svc := newMockService(t)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, svc.server.URL)
	input := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(input, []byte(`<p>今天天气很好</p>`), 0o644))

	_, _, err := run(t, "annotate", input, "--config", cfgPath, "--fraction", "1.5", "-q")
	assert.Error(t, err)
}

func TestEasyWord(t *testing.T) {
	svc := newMockService(t)
	cfgPath := writeConfig(t, t.TempDir(), svc.server.URL)

	out, _, err := run(t, "easy", "世界", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "世界")
	assert.Equal(t, []string{"世界"}, svc.marked())
}

func TestEasyRemovesUnitFromFile(t *testing.T) {
	svc := newMockService(t)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, svc.server.URL)

	page := filepath.Join(dir, "annotated.html")
	unit := marker.Unit{ID: "unit-1", Word: "天气", Translation: "weather"}
	require.NoError(t, os.WriteFile(page, []byte(
		`<html><body><p>今天天气`+unit.HTML()+`很好</p></body></html>`), 0o644))

	out, _, err := run(t, "easy", "--file", page, "--list", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "unit-1")
	assert.Contains(t, out, "weather")

	_, _, err = run(t, "easy", "--file", page, "--id", "unit-1", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"天气"}, svc.marked())

	data, err := os.ReadFile(page)
	require.NoError(t, err)
	assert.NotContains(t, string(data), marker.OpenMarker)
	assert.Contains(t, string(data), "今天天气很好")

	_, _, err = run(t, "easy", "--file", page, "--id", "unit-1", "--config", cfgPath)
	assert.Error(t, err)
}

func TestConfigCommand(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir(), "http://127.0.0.1:9999")
	out, _, err := run(t, "config", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "http://127.0.0.1:9999")
	assert.Contains(t, out, "local_llama")
}
