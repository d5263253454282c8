package host

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/tevino/abool/v2"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/expvarhandler"

	"github.com/thomasrohde/oscript/pkg/evaluator"
)

// Request counters, served on /stats.
var (
	hostRequests   = expvar.NewInt("oscriptRequests")
	hostBadRequest = expvar.NewInt("oscriptBadRequests")
	hostValidated  = expvar.NewInt("oscriptValidations")
	hostDeployed   = expvar.NewInt("oscriptDeployments")
	hostPruned     = expvar.NewInt("oscriptCachePruned")
)

// ServerConfig tunes the HTTP server.
type ServerConfig struct {
	// PruneInterval is how often idle parsed programs are dropped. Zero
	// disables pruning.
	PruneInterval time.Duration
	// MaxIdle is how long a parsed program may stay unused in the cache.
	MaxIdle      time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server exposes a Host over HTTP with JSON bodies.
type Server struct {
	host    *Host
	cfg     ServerConfig
	srv     *fasthttp.Server
	pruning *abool.AtomicBool

	mu        sync.Mutex
	scheduler gocron.Scheduler
}

// NewServer creates a server for h.
func NewServer(h *Host, cfg ServerConfig) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.MaxIdle == 0 {
		cfg.MaxIdle = 10 * time.Minute
	}
	s := &Server{host: h, cfg: cfg, pruning: abool.NewBool(false)}
	s.srv = &fasthttp.Server{
		Handler:      s.Handle,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Name:         "oscript",
	}
	return s
}

type documentRequest struct {
	Source   string   `json:"source"`
	Mode     string   `json:"mode"`
	Position Position `json:"position"`
	URI      string   `json:"uri"`
}

// Handle routes a request. /stats output may be filtered with ?r=<regexp>.
func (s *Server) Handle(ctx *fasthttp.RequestCtx) {
	hostRequests.Add(1)
	path := string(ctx.Path())
	if path == "/stats" {
		expvarhandler.ExpvarHandler(ctx)
		return
	}
	if !ctx.IsPost() {
		ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
		return
	}
	var req documentRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		hostBadRequest.Add(1)
		ctx.Error(fmt.Sprintf("bad request body: %v", err), fasthttp.StatusBadRequest)
		return
	}

	var out any
	switch path {
	case "/validate":
		mode, err := evaluator.ParseMode(req.Mode)
		if err != nil {
			hostBadRequest.Add(1)
			ctx.Error(err.Error(), fasthttp.StatusBadRequest)
			return
		}
		hostValidated.Add(1)
		out = s.host.Validate(req.Source, mode)
	case "/completion":
		out = s.host.Complete(req.Source, req.Position)
	case "/hover":
		if res, ok := s.host.Hover(req.Source, req.Position); ok {
			out = res
		}
	case "/deploy":
		hostDeployed.Add(1)
		out = s.host.Deploy(req.URI)
	default:
		ctx.Error("not found", fasthttp.StatusNotFound)
		return
	}

	buf, err := json.Marshal(out)
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}
	ctx.Success("application/json", buf)
}

// pruneTask drops idle programs from the parse cache. Overlapping runs are
// skipped.
func (s *Server) pruneTask() {
	if !s.pruning.SetToIf(false, true) {
		return
	}
	defer s.pruning.UnSet()
	n := s.host.rt.Cache().Prune(s.cfg.MaxIdle)
	hostPruned.Add(int64(n))
	if n > 0 {
		s.host.logger.Debug().Int("pruned", n).Msg("parse cache pruned")
	}
}

func (s *Server) startScheduler() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.PruneInterval <= 0 || s.scheduler != nil {
		return nil
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	if _, err := sched.NewJob(gocron.DurationJob(s.cfg.PruneInterval), gocron.NewTask(s.pruneTask)); err != nil {
		_ = sched.Shutdown()
		return err
	}
	sched.Start()
	s.scheduler = sched
	return nil
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.startScheduler(); err != nil {
		return fmt.Errorf("start cache pruning: %w", err)
	}
	s.host.logger.Info().Str("addr", ln.Addr().String()).Msg("serving")
	return s.srv.Serve(ln)
}

// ListenAndServe listens on addr and serves.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown stops the scheduler and gracefully closes the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.scheduler != nil {
		if err := s.scheduler.Shutdown(); err != nil {
			s.host.logger.Warn().Err(err).Msg("scheduler shutdown")
		}
		s.scheduler = nil
	}
	s.mu.Unlock()
	return s.srv.ShutdownWithContext(ctx)
}
