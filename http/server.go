package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fwojciec/chorus"
	"github.com/fwojciec/chorus/sse"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultKeepalive   = 15 * time.Second
	defaultMaxDuration = 10 * time.Minute
	shutdownTimeout    = 30 * time.Second
)

// Route binds a backend to the name clients request it by. Model and
// MaxTokens are passed to the backend on every generation; a request's own
// MaxTokens takes precedence.
type Route struct {
	Name      string
	Backend   chorus.Backend
	Model     string
	MaxTokens int
}

// Server is the fan-out server. It implements http.Handler.
type Server struct {
	routes      map[string]Route
	names       []string
	keepalive   time.Duration
	maxDuration time.Duration
	logger      *zap.Logger
	observer    chorus.BackendObserver
	metrics     http.Handler
	mux         *http.ServeMux
}

// ServerOption configures a [Server].
type ServerOption func(*Server)

// WithKeepalive sets how often running channels get keepalive frames.
func WithKeepalive(d time.Duration) ServerOption {
	return func(s *Server) { s.keepalive = d }
}

// WithMaxDuration bounds each fan-out request.
func WithMaxDuration(d time.Duration) ServerOption {
	return func(s *Server) { s.maxDuration = d }
}

func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithBackendObserver reports every backend generation to o.
func WithBackendObserver(o chorus.BackendObserver) ServerOption {
	return func(s *Server) { s.observer = o }
}

// WithMetrics serves the metrics gathered by g at /metrics.
func WithMetrics(g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.metrics = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
}

// NewServer creates a Server for routes. Route names must be unique; a later
// route with a repeated name replaces the earlier one.
func NewServer(routes []Route, opts ...ServerOption) *Server {
	s := &Server{
		routes:      make(map[string]Route, len(routes)),
		keepalive:   defaultKeepalive,
		maxDuration: defaultMaxDuration,
		logger:      zap.NewNop(),
		observer:    chorus.NopBackendObserver(),
	}
	for _, r := range routes {
		if _, ok := s.routes[r.Name]; !ok {
			s.names = append(s.names, r.Name)
		}
		s.routes[r.Name] = r
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With(zap.String("component", "server"))

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+generatePath, s.handleGenerate)
	mux.HandleFunc("GET "+modelsPath, s.handleModels)
	mux.HandleFunc("GET "+healthPath, s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET "+metricsPath, s.metrics)
	}
	s.mux = mux
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Names returns the registered route names in registration order.
func (s *Server) Names() []string {
	return append([]string(nil), s.names...)
}

// Resolve expands model names and doublestar patterns into route names. The
// result follows request order and holds each name once. A pattern that
// matches nothing is an error wrapping [chorus.ErrUnknownModel].
func (s *Server) Resolve(models []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, pattern := range models {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid model pattern %q: %w", pattern, chorus.ErrValidation)
		}
		matched := false
		for _, name := range s.names {
			if ok, _ := doublestar.Match(pattern, name); !ok {
				continue
			}
			matched = true
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
		if !matched {
			return nil, fmt.Errorf("%q: %w", pattern, chorus.ErrUnknownModel)
		}
	}
	return out, nil
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.logger.Info("listening", zap.String("addr", ln.Addr().String()), zap.Strings("backends", s.names))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Backends: len(s.names)})
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, modelsResponse{Models: s.Names()})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var dto generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body: "+err.Error())
		return
	}
	req := dto.toDomain()
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	channels, err := s.Resolve(req.Models)
	if err != nil {
		if errors.Is(err, chorus.ErrUnknownModel) {
			writeError(w, http.StatusNotFound, codeUnknownModel, err.Error())
		} else {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		}
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, codeInternal, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s.stream(r.Context(), sse.NewWriter(w), req, channels)
}

// channelOutcome is what one channel contributes to the complete frame.
type channelOutcome struct {
	usage chorus.Usage
	err   error
}

// stream runs every channel concurrently and writes the session's frames.
// Channel failures never cancel sibling channels.
func (s *Server) stream(ctx context.Context, sw *sse.Writer, req chorus.Request, channels []string) {
	start := time.Now()
	log := s.logger.With(zap.Strings("channels", channels))
	log.Info("generate", zap.Int("prompt_bytes", len(req.Prompt)))

	ctx, cancel := context.WithTimeout(ctx, s.maxDuration)
	defer cancel()

	running := newRunningSet(channels)
	stopKeepalive := s.keepaliveLoop(ctx, sw, running, log)

	outcomes := make([]channelOutcome, len(channels))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range channels {
		g.Go(func() error {
			outcomes[i] = s.runChannel(gctx, sw, running, s.routes[name], req, log)
			return nil
		})
	}
	_ = g.Wait()
	stopKeepalive()

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		log.Warn("request exceeded max duration", zap.Duration("max_duration", s.maxDuration))
		if err := sw.Error(fmt.Sprintf("request exceeded %s", s.maxDuration)); err != nil {
			log.Debug("write error frame", zap.Error(err))
		}
		return
	case ctx.Err() != nil:
		log.Info("client went away")
		return
	}

	meta := chorus.Metadata{Duration: time.Since(start)}
	var usage chorus.Usage
	for _, o := range outcomes {
		if o.err == nil {
			meta.Succeeded++
		} else {
			meta.Failed++
		}
		usage.InputTokens += o.usage.InputTokens
		usage.OutputTokens += o.usage.OutputTokens
		usage.CacheReadTokens += o.usage.CacheReadTokens
	}
	meta.Extra = map[string]string{
		"input_tokens":  strconv.Itoa(usage.InputTokens),
		"output_tokens": strconv.Itoa(usage.OutputTokens),
	}
	if err := sw.Complete(meta); err != nil {
		log.Warn("write complete frame", zap.Error(err))
		return
	}
	log.Info("generate finished",
		zap.Int("succeeded", meta.Succeeded),
		zap.Int("failed", meta.Failed),
		zap.Duration("duration", meta.Duration),
	)
}

func (s *Server) runChannel(ctx context.Context, sw *sse.Writer, running *runningSet, route Route, req chorus.Request, log *zap.Logger) channelOutcome {
	log = log.With(zap.String("channel", route.Name))
	s.observer.BackendStarted(route.Name)
	start := time.Now()
	usage, err := s.generate(ctx, sw, route, req)
	s.observer.BackendFinished(route.Name, time.Since(start), usage, err)

	running.remove(route.Name)
	if ctx.Err() != nil {
		return channelOutcome{usage: usage, err: ctx.Err()}
	}
	msg := ""
	if err != nil {
		log.Warn("backend failed", zap.Error(err))
		msg = err.Error()
	}
	if werr := sw.Done(route.Name, msg); werr != nil {
		log.Debug("write done frame", zap.Error(werr))
	}
	return channelOutcome{usage: usage, err: err}
}

func (s *Server) generate(ctx context.Context, sw *sse.Writer, route Route, req chorus.Request) (chorus.Usage, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = route.MaxTokens
	}
	stream, err := route.Backend.Generate(ctx, chorus.GenerateRequest{
		Model:        route.Model,
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		MaxTokens:    maxTokens,
	})
	if err != nil {
		return chorus.Usage{}, err
	}
	defer stream.Close()

	if err := sw.Start(route.Name); err != nil {
		return chorus.Usage{}, err
	}
	for {
		text, err := stream.Next()
		if err == io.EOF {
			return usageOf(stream), nil
		}
		if err != nil {
			return usageOf(stream), err
		}
		if text == "" {
			continue
		}
		if err := sw.Chunk(route.Name, text); err != nil {
			return usageOf(stream), err
		}
	}
}

func usageOf(stream chorus.TextStream) chorus.Usage {
	if r, ok := stream.(chorus.UsageReporter); ok {
		return r.Usage()
	}
	return chorus.Usage{}
}

// keepaliveLoop writes a keepalive frame for every running channel on each
// tick. The returned func stops the loop and waits for it.
func (s *Server) keepaliveLoop(ctx context.Context, sw *sse.Writer, running *runningSet, log *zap.Logger) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.keepalive)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if err := running.keepalive(sw); err != nil {
					log.Debug("write keepalive", zap.Error(err))
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// runningSet tracks channels that have not finished. Removal and keepalive
// writes share a lock, so no keepalive follows a channel's done frame.
type runningSet struct {
	mu    sync.Mutex
	order []string
	live  map[string]bool
}

func newRunningSet(names []string) *runningSet {
	live := make(map[string]bool, len(names))
	for _, n := range names {
		live[n] = true
	}
	return &runningSet{order: names, live: live}
}

func (r *runningSet) remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, name)
}

func (r *runningSet) keepalive(sw *sse.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range r.order {
		if !r.live[name] {
			continue
		}
		if err := sw.Keepalive(name); err != nil {
			return err
		}
	}
	return nil
}
