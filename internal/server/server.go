package server

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"sync"

	"github.com/loopwidget/planscope/pkg/events"
	"github.com/loopwidget/planscope/pkg/intent"
	"github.com/loopwidget/planscope/pkg/logging"
	"github.com/loopwidget/planscope/pkg/money"
	"github.com/loopwidget/planscope/pkg/pricing"
	"github.com/loopwidget/planscope/pkg/sources"
	"github.com/loopwidget/planscope/pkg/storage"
	"github.com/loopwidget/planscope/pkg/widget"
)

//go:embed web
var WebFS embed.FS

// SourceFactory returns the plan sources for one store. Remote may be nil.
type SourceFactory func(store string) (sources.InlineSource, sources.RemoteSource)

type Config struct {
	// DB backs the change and stats endpoints; nil disables them.
	DB          *storage.DB
	Sources     SourceFactory
	Engine      *pricing.Engine
	Formatter   money.Formatter
	DefaultMode intent.Mode
	Username    string
	Password    string
	Log         logging.Logger
}

// Server holds widget sessions. Every session subscribes to one shared bus,
// so a variant-change event reaches the widgets of its section.
type Server struct {
	cfg Config
	bus *events.LocalBus
	log logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	widgets map[string]*widget.Widget
}

func New(cfg Config) *Server {
	if cfg.Engine == nil {
		cfg.Engine = pricing.NewEngine(pricing.DefaultBundlePolicy(), cfg.Log)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		bus:     events.NewLocalBus(),
		log:     logging.OrNop(cfg.Log),
		ctx:     ctx,
		cancel:  cancel,
		widgets: make(map[string]*widget.Widget),
	}
}

// Handler returns the routed API and static files.
func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	// API Group
	mux.HandleFunc("GET /api/plans", s.basicAuth(s.handlePlans))
	mux.HandleFunc("POST /api/widgets", s.basicAuth(s.handleCreateWidget))
	mux.HandleFunc("GET /api/widgets/{id}", s.basicAuth(s.handleGetWidget))
	mux.HandleFunc("POST /api/widgets/{id}/mode", s.basicAuth(s.handleSwitchMode))
	mux.HandleFunc("POST /api/widgets/{id}/plan", s.basicAuth(s.handleSelectPlan))
	mux.HandleFunc("DELETE /api/widgets/{id}", s.basicAuth(s.handleDeleteWidget))
	mux.HandleFunc("POST /api/events/variant-change", s.basicAuth(s.handleVariantChange))
	mux.HandleFunc("GET /api/changes", s.basicAuth(s.handleChanges))
	mux.HandleFunc("GET /api/stats", s.basicAuth(s.handleStats))
	mux.HandleFunc("GET /api/entries", s.basicAuth(s.handleEntries))
	mux.HandleFunc("GET /api/products", s.basicAuth(s.handleProducts))

	// Static Files
	webRoot, err := fs.Sub(WebFS, "web")
	if err != nil {
		return nil, err
	}
	fileServer := http.FileServer(http.FS(webRoot))
	mux.Handle("/", s.basicAuthMiddlewareForStatic(fileServer))
	return mux, nil
}

func (s *Server) Start(addr string) error {
	h, err := s.Handler()
	if err != nil {
		return err
	}
	s.log.Infof("Starting server on %s", addr)
	return http.ListenAndServe(addr, h)
}

// Close deactivates every widget session.
func (s *Server) Close() {
	s.mu.Lock()
	sessions := s.widgets
	s.widgets = make(map[string]*widget.Widget)
	s.mu.Unlock()

	for _, w := range sessions {
		w.Deactivate()
	}
	s.cancel()
}

func (s *Server) lookup(id string) (*widget.Widget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.widgets[id]
	return w, ok
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.Username == "" && s.cfg.Password == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	return ok && user == s.cfg.Username && pass == s.cfg.Password
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) basicAuthMiddlewareForStatic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
