//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gridport/gridport/internal/session"
	"github.com/gridport/gridport/internal/source"
	"github.com/gridport/gridport/internal/storage"
)

func pgConnString(t *testing.T) string {
	t.Helper()
	host := envOrDefault("GRIDPORT_TEST_PG_HOST", "localhost")
	port := envOrDefault("GRIDPORT_TEST_PG_PORT", "25432")
	db := envOrDefault("GRIDPORT_TEST_PG_DATABASE", "gridport_test")
	user := envOrDefault("GRIDPORT_TEST_PG_USER", "postgres")
	pass := envOrDefault("GRIDPORT_TEST_PG_PASSWORD", "postgres")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, db)
}

func skipIfNoPostgres(t *testing.T) {
	t.Helper()
	if os.Getenv("GRIDPORT_TEST_PG_HOST") == "" && os.Getenv("GRIDPORT_TEST_PG_PORT") == "" {
		t.Skip("skipping: GRIDPORT_TEST_PG_HOST/PORT not set")
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func connectStore(t *testing.T) *storage.Postgres {
	t.Helper()
	store, err := storage.Connect(context.Background(), pgConnString(t), 5)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { store.Close(context.Background()) })
	return store
}

func dropTables(t *testing.T, store *storage.Postgres, tables ...string) {
	t.Helper()
	if err := store.DropTables(context.Background(), tables); err != nil {
		t.Fatalf("dropping tables %v: %v", tables, err)
	}
}

func sessionStore(t *testing.T, store *storage.Postgres) *session.PostgresStore {
	t.Helper()
	sessions := session.NewPostgresStore(store.Pool())
	if err := sessions.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensuring session schema: %v", err)
	}
	return sessions
}

// fixtureTable, fixtureField, and fixtureRecord describe a base served by
// the fixture grid server.
type fixtureTable struct {
	ID      string
	Name    string
	Fields  []fixtureField
	Records []fixtureRecord
}

type fixtureField struct {
	ID      string
	Name    string
	Type    string
	Options map[string]any
}

type fixtureRecord struct {
	ID     string
	Fields map[string]any
}

// gridServer serves a fixed base over the grid wire format, paging records
// with numeric cursors. SetFail makes one table's record pages return 500
// until cleared, which is how the retry tests break a table mid-import.
type gridServer struct {
	*httptest.Server
	baseID string
	tables []fixtureTable

	mu   sync.Mutex
	fail map[string]bool
}

func newGridServer(t *testing.T, baseID string, tables []fixtureTable) *gridServer {
	t.Helper()
	gs := &gridServer{
		baseID: baseID,
		tables: tables,
		fail:   make(map[string]bool),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v0/meta/bases/"+baseID+"/tables", gs.handleMeta)
	mux.HandleFunc("/v0/"+baseID+"/", gs.handleRecords)
	gs.Server = httptest.NewServer(mux)
	t.Cleanup(gs.Close)
	return gs
}

func (g *gridServer) SetFail(table string, fail bool) {
	g.mu.Lock()
	g.fail[table] = fail
	g.mu.Unlock()
}

func (g *gridServer) handleMeta(w http.ResponseWriter, _ *http.Request) {
	type fieldJSON struct {
		ID      string         `json:"id"`
		Name    string         `json:"name"`
		Type    string         `json:"type"`
		Options map[string]any `json:"options,omitempty"`
	}
	type tableJSON struct {
		ID     string      `json:"id"`
		Name   string      `json:"name"`
		Fields []fieldJSON `json:"fields"`
	}
	var out struct {
		Tables []tableJSON `json:"tables"`
	}
	for _, tbl := range g.tables {
		tj := tableJSON{ID: tbl.ID, Name: tbl.Name}
		for _, f := range tbl.Fields {
			tj.Fields = append(tj.Fields, fieldJSON{ID: f.ID, Name: f.Name, Type: f.Type, Options: f.Options})
		}
		out.Tables = append(out.Tables, tj)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (g *gridServer) handleRecords(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/v0/"+g.baseID+"/")
	var tbl *fixtureTable
	for i := range g.tables {
		if g.tables[i].Name == name {
			tbl = &g.tables[i]
			break
		}
	}
	if tbl == nil {
		http.NotFound(w, r)
		return
	}

	g.mu.Lock()
	failed := g.fail[name]
	g.mu.Unlock()
	if failed {
		http.Error(w, "records unavailable", http.StatusInternalServerError)
		return
	}

	pageSize := 100
	if v := r.URL.Query().Get("pageSize"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			pageSize = n
		}
	}
	start := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			start = n
		}
	}
	if start > len(tbl.Records) {
		start = len(tbl.Records)
	}
	end := start + pageSize
	if end > len(tbl.Records) {
		end = len(tbl.Records)
	}

	type recordJSON struct {
		ID     string         `json:"id"`
		Fields map[string]any `json:"fields"`
	}
	var out struct {
		Records []recordJSON `json:"records"`
		Offset  string       `json:"offset,omitempty"`
	}
	for _, rec := range tbl.Records[start:end] {
		out.Records = append(out.Records, recordJSON{ID: rec.ID, Fields: rec.Fields})
	}
	if end < len(tbl.Records) {
		out.Offset = strconv.Itoa(end)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func newGridSource(t *testing.T, gs *gridServer, pageSize int) *source.GridClient {
	t.Helper()
	return source.NewGridClient(source.GridConfig{
		BaseURL:  gs.URL,
		BaseID:   gs.baseID,
		Token:    "test-token",
		PageSize: pageSize,
	})
}

// testBase is a two-table base: Projects, and Tasks linking into it. Thirty
// tasks reuse two project ids, so the link classifies as many-to-one; each
// task carries one of four tags, so the tag column classifies as
// many-to-many against a generated options table.
func testBase() []fixtureTable {
	projects := fixtureTable{
		ID:   "tblprj",
		Name: "Projects",
		Fields: []fixtureField{
			{ID: "fld01", Name: "Name", Type: "text"},
			{ID: "fld02", Name: "Budget", Type: "number", Options: map[string]any{"precision": 2}},
		},
		Records: []fixtureRecord{
			{ID: "recP1", Fields: map[string]any{"Name": "Apollo", "Budget": 1200.5}},
			{ID: "recP2", Fields: map[string]any{"Name": "Borealis", "Budget": 300}},
		},
	}

	tasks := fixtureTable{
		ID:   "tbltsk",
		Name: "Tasks",
		Fields: []fixtureField{
			{ID: "fld03", Name: "Title", Type: "text"},
			{ID: "fld04", Name: "Project", Type: "link", Options: map[string]any{"linkedTable": "Projects"}},
			{ID: "fld05", Name: "Tags", Type: "multiSelect", Options: map[string]any{"choices": []string{"red", "green", "blue", "yellow"}}},
		},
	}
	tags := []string{"red", "green", "blue", "yellow"}
	for i := 1; i <= 30; i++ {
		project := "recP1"
		if i%3 == 0 {
			project = "recP2"
		}
		tasks.Records = append(tasks.Records, fixtureRecord{
			ID: fmt.Sprintf("recT%02d", i),
			Fields: map[string]any{
				"Title":   fmt.Sprintf("Task %d", i),
				"Project": []string{project},
				"Tags":    []string{tags[i%len(tags)]},
			},
		})
	}

	return []fixtureTable{projects, tasks}
}
