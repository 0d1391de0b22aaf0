package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"merkleverifier/internal/config"
	"merkleverifier/internal/domain"
	"merkleverifier/internal/infra/auth/oidc"
	"merkleverifier/internal/infra/db"
	"merkleverifier/internal/infra/memstore"
	"merkleverifier/internal/infra/merkle"
	"merkleverifier/internal/infra/pebblestore"
	"merkleverifier/internal/infra/policyopa"
	"merkleverifier/internal/infra/ratelimit"
	"merkleverifier/internal/logging"
	"merkleverifier/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Server struct {
	cfg config.Config
	r   *gin.Engine
	log logrus.FieldLogger

	verifiers *usecase.VerifierService
	merkle    *merkle.Service
	backend   string

	adminAPIKey   string
	authnMode     string
	authenticator domain.Authenticator

	rateLimiter          domain.RateLimiter
	rateLimitRequests    int
	rateLimitWindow      time.Duration
	rateLimitWithSubject bool
	rateLimitFailClosed  bool
	rateLimitSubjectMax  int
	rateLimitSubjectHash bool

	closers []io.Closer
}

type ServerDeps struct {
	Verifiers   *usecase.VerifierService
	Merkle      *merkle.Service
	Backend     string
	AdminAPIKey string
	// Authenticator verifies bearer tokens when cfg.AuthnMode is oidc.
	Authenticator domain.Authenticator
	RateLimiter   domain.RateLimiter
	Logger        logrus.FieldLogger
}

// NewServer opens the configured store, hasher, authenticator, authorizer
// and rate limiter and registers the routes. Close releases what it opened.
func NewServer(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*Server, error) {
	s := &Server{cfg: cfg, log: log, adminAPIKey: cfg.AdminAPIKey}
	if err := s.initAuthn(ctx); err != nil {
		return nil, err
	}
	if err := s.initDeps(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.initRateLimit(ctx, nil); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.initRouter()
	return s, nil
}

// NewServerWithDeps wires prebuilt dependencies. A rate limiter that fails
// to start is logged and replaced by the in-memory limiter.
func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	s := &Server{
		cfg:           cfg,
		log:           deps.Logger,
		verifiers:     deps.Verifiers,
		merkle:        deps.Merkle,
		backend:       deps.Backend,
		adminAPIKey:   deps.AdminAPIKey,
		authnMode:     authnMode(cfg),
		authenticator: deps.Authenticator,
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.merkle == nil && s.verifiers != nil {
		if svc, ok := s.verifiers.Merkle.(*merkle.Service); ok {
			s.merkle = svc
		}
	}
	if s.backend == "" {
		s.backend = config.StoreMemory
	}
	if err := s.initRateLimit(context.Background(), deps.RateLimiter); err != nil {
		s.log.WithError(err).WithField("redis_addr", cfg.RedisAddr).Error("rate limiter unavailable, using in-memory limiter")
		s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
			MaxKeys: cfg.RateLimitMaxKeys,
		})
	}
	s.initRouter()
	return s
}

func authnMode(cfg config.Config) string {
	if cfg.AuthnMode == "" {
		return config.AuthnModeOIDC
	}
	return cfg.AuthnMode
}

func (s *Server) initAuthn(ctx context.Context) error {
	s.authnMode = authnMode(s.cfg)
	switch s.authnMode {
	case config.AuthnModeOIDC:
		authenticator, err := oidc.NewAuthenticator(ctx, s.cfg)
		if err != nil {
			return fmt.Errorf("oidc authenticator: %w", err)
		}
		s.authenticator = authenticator
	case config.AuthnModeNone:
		s.log.Warn("AUTHN_MODE=none: caller identity is taken from the X-Identity header without verification")
	default:
		return fmt.Errorf("unsupported authn mode %q", s.cfg.AuthnMode)
	}
	return nil
}

func (s *Server) initDeps(ctx context.Context) error {
	hasher, err := merkle.HasherByName(s.cfg.HashAlgorithm)
	if err != nil {
		return err
	}
	s.merkle = merkle.NewService(hasher)

	var (
		repo      usecase.VerifierRepository
		auditRepo usecase.AuditEventRepository
	)
	s.backend = s.cfg.StoreBackend()
	switch s.backend {
	case config.StorePostgres:
		store, err := db.NewStore(s.cfg, s.log)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, store)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		repo, auditRepo = store.Verifiers, store.Audit
	case config.StorePebble:
		store, err := pebblestore.Open(s.cfg.PebblePath)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, store)
		repo, auditRepo = store, store
	default:
		store := memstore.New()
		repo, auditRepo = store, store
	}

	admins := make([]domain.Identity, 0, len(s.cfg.AdminIdentities))
	for _, id := range s.cfg.AdminIdentities {
		admins = append(admins, domain.Identity(id))
	}
	var authorizer domain.Authorizer
	switch s.cfg.AuthMode {
	case config.AuthModeOwner, "":
		authorizer = usecase.OwnerAuthorizer{Admins: admins}
	case config.AuthModeOPA:
		var opa *policyopa.Authorizer
		if s.cfg.PolicyBundlePath != "" {
			opa, err = policyopa.NewAuthorizerFromBundlePath(ctx, s.cfg.PolicyBundlePath, admins)
		} else {
			opa, err = policyopa.NewAuthorizer(ctx, admins)
		}
		if err != nil {
			return fmt.Errorf("load policy: %w", err)
		}
		s.log.WithField("bundle_hash", opa.BundleHash()).Info("policy authorizer loaded")
		authorizer = opa
	default:
		return fmt.Errorf("unsupported auth mode %q", s.cfg.AuthMode)
	}

	s.verifiers = usecase.NewVerifierService(repo, s.merkle, hasher.Name())
	s.verifiers.Authorizer = authorizer
	s.verifiers.Audit = usecase.NewAuditEmitter(auditRepo, nil)
	s.verifiers.Logger = s.log
	return nil
}

func (s *Server) initRateLimit(ctx context.Context, override domain.RateLimiter) error {
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
	if s.rateLimitWindow <= 0 {
		s.rateLimitWindow = time.Minute
	}
	s.rateLimitWithSubject = s.cfg.RateLimitIncludeSubject
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
	s.rateLimitSubjectMax = s.cfg.RateLimitSubjectMaxLen
	s.rateLimitSubjectHash = s.cfg.RateLimitSubjectHash

	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter != nil || s.cfg.RateLimitRequests <= 0 {
		return nil
	}
	if s.cfg.RedisAddr == "" {
		s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
			MaxKeys: s.cfg.RateLimitMaxKeys,
		})
		return nil
	}
	limiter, err := ratelimit.NewRedisLimiter(ctx, ratelimit.RedisLimiterConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPassword,
		DB:       s.cfg.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("redis rate limiter: %w", err)
	}
	s.closers = append(s.closers, limiter)
	s.rateLimiter = limiter
	return nil
}

func (s *Server) initRouter() {
	s.r = gin.New()
	s.r.Use(gin.Recovery(), logging.Middleware(s.log))
	s.routes()
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealth)

	v1 := s.r.Group("/v1")
	{
		v1.POST("/verify", s.handleVerify)
		v1.POST("/verifiers", s.handleCreateVerifier)
		v1.GET("/verifiers/:id", s.handleGetVerifier)
		v1.PUT("/verifiers/:id/root", s.handleSetRoot)
		v1.POST("/verifiers/:id/check", s.handleCheckProof)
		v1.GET("/verifiers/:id/audit", s.handleAuditTrail)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.WithFields(logrus.Fields{
			"addr":     s.cfg.HTTPAddr,
			"store":    s.backend,
			"hash_alg": s.merkle.Hasher.Name(),
		}).Info("verifierd listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
