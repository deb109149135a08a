package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"pricememory/internal/cache"
	"pricememory/internal/log"
	"pricememory/internal/middleware/ratelimit"
	"pricememory/internal/middleware/security"
	"pricememory/internal/middleware/trace"
	"pricememory/internal/services"
	appweb "pricememory/web"
)

const (
	cacheCleanupInterval = 5 * time.Minute
	staticMaxAge         = 86400
)

// Options configures NewServer. Purchases and Entry are required.
type Options struct {
	Addr           string
	Purchases      *services.PurchaseService
	Entry          *services.Entry
	Logger         *log.Logger
	CurrencySymbol string
	MaxPhotoBytes  int64
	PhotoCacheSize int
	PhotoCacheTTL  time.Duration
	RateLimit      ratelimit.Config

	// Now overrides the clock, for tests.
	Now func() time.Time
}

type Server struct {
	http.Server

	purchases *services.PurchaseService
	entry     *services.Entry
	templates *template.Template
	static    fs.FS
	logger    *log.Logger

	photos *cache.PhotoCache
	caches *cache.Manager

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	currency      string
	maxPhotoBytes int64
	now           func() time.Time

	appMetrics *appMetrics

	done         chan struct{}
	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime           time.Time
	purchasesCreated int64
	purchasesDeleted int64
	validationErrors int64
	exports          int64
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CurrencySymbol == "" {
		opts.CurrencySymbol = "₦"
	}
	if opts.MaxPhotoBytes <= 0 {
		opts.MaxPhotoBytes = services.DefaultMaxPhotoBytes
	}

	tmpl, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Error("Failed to parse templates",
			log.FieldComponent, log.ComponentTemplate,
			log.FieldError, err)
		tmpl = nil
	}
	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		logger.Error("Failed to open static assets", log.FieldError, err)
	}

	detector := security.NewDetector()

	s := &Server{
		purchases:        opts.Purchases,
		entry:            opts.Entry,
		templates:        tmpl,
		static:           static,
		logger:           logger,
		photos:           cache.NewPhotoCache(opts.PhotoCacheSize, opts.PhotoCacheTTL, opts.Purchases.Get),
		caches:           cache.NewManager(logger),
		rateLimiter:      ratelimit.NewLimiter(opts.RateLimit),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(logger, detector.ExtractClientIP),
		currency:         opts.CurrencySymbol,
		maxPhotoBytes:    opts.MaxPhotoBytes,
		now:              opts.Now,
		appMetrics:       &appMetrics{uptime: time.Now()},
		done:             make(chan struct{}),
	}

	opts.Purchases.Broker().Observe(s.photos.Observe)
	opts.Purchases.Broker().Observe(s.recordEvent)
	s.caches.Register(s.photos)
	s.caches.StartCleanup(cacheCleanupInterval)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /purchases", s.handleList)
	mux.HandleFunc("POST /purchases", s.handleCreate)
	mux.HandleFunc("GET /add", s.handleAddForm)
	mux.HandleFunc("GET /purchases/{id}", s.handleDetail)
	mux.HandleFunc("GET /purchases/{id}/photo", s.handlePhoto)
	mux.HandleFunc("DELETE /purchases/{id}", s.handleDelete)
	mux.HandleFunc("/purchases/{id}/delete", s.handleDelete)

	mux.HandleFunc("GET /export.csv", s.handleExport)
	mux.HandleFunc("GET /export.xlsx", s.handleExport)
	mux.HandleFunc("GET /events", s.handleEvents)

	mux.HandleFunc("GET /manifest.webmanifest", s.handleManifest)
	mux.HandleFunc("GET /sw.js", s.handleServiceWorker)
	if s.static != nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(s.static)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(staticMaxAge)(static))
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	limited := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, ratelimit.WritesOnly, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
			log.FieldPath, r.URL.Path)
		TooManyRequestsError("Too many requests. Please wait a moment and try again.").Write(w)
	})

	var handler http.Handler = mux
	handler = limited(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	return handler
}

// Shutdown ends SSE streams, stops background work and drains the
// listener. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.done)
		s.rateLimiter.Stop()
		s.caches.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
