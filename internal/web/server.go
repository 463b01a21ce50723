package web

import (
	"database/sql"
	"errors"
	"html/template"
	"log"
	"net/http"
	"strconv"

	"mspro-labs/map-extractor/internal/ai"
	"mspro-labs/map-extractor/internal/db"
	"mspro-labs/map-extractor/internal/models"
	"mspro-labs/map-extractor/internal/searcher"
)

// MinScore hides search matches below a 20% similarity.
const MinScore = 0.2

// Helper for templates
var funcMap = template.FuncMap{
	"mul": func(a, b float32) float32 { return a * b },
}

// Server renders the run journal and semantic search.
type Server struct {
	database *sql.DB
	embedder ai.Embedder

	homeTmpl   *template.Template
	runTmpl    *template.Template
	searchTmpl *template.Template
}

// NewServer parses the templates. embedder may be nil, in which case only
// cached queries can be searched.
func NewServer(database *sql.DB, embedder ai.Embedder) (*Server, error) {
	// Each page is base + its own "content", parsed separately to avoid block collisions
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(Assets, "templates/base.html")
	if err != nil {
		return nil, err
	}
	page := func(name string) (*template.Template, error) {
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		return t.ParseFS(Assets, "templates/"+name)
	}

	s := &Server{database: database, embedder: embedder}
	if s.homeTmpl, err = page("home.html"); err != nil {
		return nil, err
	}
	if s.runTmpl, err = page("run.html"); err != nil {
		return nil, err
	}
	if s.searchTmpl, err = page("search.html"); err != nil {
		return nil, err
	}
	return s, nil
}

// Handler returns the routes of the UI.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /runs/{id}", s.handleRun)
	mux.HandleFunc("GET /search", s.handleSearch)
	return mux
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	runs, err := db.ListRuns(s.database, 100)
	if err != nil {
		log.Printf("DB error: %v", err)
		http.Error(w, "Failed to load runs", http.StatusInternalServerError)
		return
	}
	s.render(w, s.homeTmpl, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	run, err := db.GetRun(s.database, id)
	if errors.Is(err, db.ErrRunNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		log.Printf("DB error: %v", err)
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}
	listings, err := db.GetRunListings(s.database, id)
	if err != nil {
		log.Printf("DB error: %v", err)
		http.Error(w, "Failed to load listings", http.StatusInternalServerError)
		return
	}

	data := struct {
		Run      models.Run
		Listings []models.Listing
	}{run, listings}
	s.render(w, s.runTmpl, data)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	results, err := searcher.Perform(r.Context(), s.database, s.embedder, query, searcher.DefaultLimit)
	if err != nil {
		log.Printf("Search error: %v", err)
		http.Error(w, "Search failed", http.StatusInternalServerError)
		return
	}

	var filtered []searcher.Result
	for _, res := range results {
		if res.Score >= MinScore {
			filtered = append(filtered, res)
		}
	}

	data := struct {
		Query   string
		Results []searcher.Result
	}{
		Query:   query,
		Results: filtered,
	}
	s.render(w, s.searchTmpl, data)
}

func (s *Server) render(w http.ResponseWriter, t *template.Template, data any) {
	if err := t.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Template error: %v", err)
	}
}
