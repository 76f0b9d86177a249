package gate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/onegate/internal/deeplink"
	"github.com/danmuck/onegate/internal/intake"
	"github.com/danmuck/onegate/internal/observability"
	"github.com/danmuck/onegate/internal/walletcore"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidHeartbeatInterval = errors.New("gate: invalid heartbeat interval")
	ErrWalletDisabled           = errors.New("gate: wallet kit disabled")
)

const (
	defaultRecentReports   = 64
	defaultShutdownTimeout = 5 * time.Second
)

// ServiceConfig is the full runtime configuration of the daemon.
type ServiceConfig struct {
	Name              string
	ListenAddr        string
	CorsOrigins       []string
	HeartbeatInterval time.Duration

	Scheme        deeplink.Scheme
	RelayProtocol string
	ExpiryOffset  time.Duration

	// LinkToken, when set, is required as a bearer token on POST /links.
	LinkToken string

	// LaunchLink is handed to the hub before intake mounts.
	LaunchLink       string
	SubscriberBuffer int
	RecentReports    int

	// Wallet is skipped entirely when Address is empty.
	Wallet walletcore.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:              "onegate",
		ListenAddr:        "127.0.0.1:7420",
		CorsOrigins:       []string{"http://localhost:3000"},
		HeartbeatInterval: 30 * time.Second,
		Scheme:            deeplink.DefaultScheme(),
		RelayProtocol:     deeplink.DefaultRelayProtocol,
		ExpiryOffset:      deeplink.DefaultExpiryOffset,
		SubscriberBuffer:  32,
		RecentReports:     defaultRecentReports,
		Wallet:            walletcore.DefaultConfig(),
	}
}

// WalletOpener builds the pairing initiator once the service starts.
type WalletOpener func(ctx context.Context, cfg walletcore.Config) (intake.Initiator, func() error, error)

// Service owns the link hub, the mounted intake, the wallet kit handle and
// the HTTP surface.
type Service struct {
	cfg ServiceConfig

	hub        *intake.Hub
	normalizer *deeplink.Normalizer
	cell       *intake.InitiatorCell
	intake     *intake.Intake
	reports    *reportLog
	router     *gin.Engine
	openWallet WalletOpener

	appeared time.Time

	mu          sync.Mutex
	closeWallet func() error
	walletErr   error
	walletDone  chan struct{}
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	def := DefaultServiceConfig()
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = def.Name
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.Scheme.Root == "" {
		cfg.Scheme.Root = def.Scheme.Root
	}
	if cfg.Scheme.PairingPrefix == "" {
		cfg.Scheme.PairingPrefix = def.Scheme.PairingPrefix
	}
	if cfg.RecentReports <= 0 {
		cfg.RecentReports = defaultRecentReports
	}

	normalizer := deeplink.NewNormalizer(cfg.Scheme)
	if cfg.RelayProtocol != "" {
		normalizer.RelayProtocol = cfg.RelayProtocol
	}
	if cfg.ExpiryOffset > 0 {
		normalizer.ExpiryOffset = cfg.ExpiryOffset
	}

	s := &Service{
		cfg:        cfg,
		hub:        intake.NewHub(intake.WithSubscriberBuffer(cfg.SubscriberBuffer)),
		normalizer: normalizer,
		cell:       intake.NewInitiatorCell(),
		reports:    newReportLog(cfg.RecentReports),
		openWallet: openWalletCore,
		appeared:   time.Now(),
		walletDone: make(chan struct{}),
	}
	s.intake = intake.New(s.hub, s.normalizer, s.cell, intake.WithObserver(s.reports.add))
	s.router = s.newRouter()
	return s
}

// WithWalletOpener replaces the wallet-core dialer. Must be called before Serve.
func (s *Service) WithWalletOpener(open WalletOpener) *Service {
	if open != nil {
		s.openWallet = open
	}
	return s
}

func (s *Service) Hub() *intake.Hub {
	return s.hub
}

func (s *Service) Router() *gin.Engine {
	return s.router
}

// WalletReady blocks until wallet kit initialization finished and reports
// its error, if any.
func (s *Service) WalletReady(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.walletDone:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.walletErr
	}
}

// Run listens on the configured address and blocks until SIGINT/SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("gate: listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the service on ln until ctx is canceled. A Service serves once.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.HeartbeatInterval <= 0 {
		_ = ln.Close()
		return ErrInvalidHeartbeatInterval
	}
	observability.SetWalletKitReady(false)

	if link := strings.TrimSpace(s.cfg.LaunchLink); link != "" {
		d, err := s.hub.Launch(link)
		if err != nil {
			log.Warn().Err(err).Msg("gate.Service.Serve launch link rejected")
		} else {
			log.Info().Str("delivery_id", d.ID).Msg("gate.Service.Serve launch link pending")
		}
	}
	if err := s.intake.Mount(ctx); err != nil {
		_ = ln.Close()
		return err
	}
	defer s.shutdownIntake()

	go s.initWalletKit(ctx)

	srv := &http.Server{Handler: s.router}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()
	log.Info().
		Str("service", s.cfg.Name).
		Str("addr", ln.Addr().String()).
		Str("scheme", s.cfg.Scheme.Root).
		Msg("gate.Service.Serve listening")

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("gate.Service.Serve http shutdown")
			}
			<-serveErr
			return nil
		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ticker.C:
			s.heartbeat()
		}
	}
}

func (s *Service) heartbeat() {
	log.Info().
		Str("service", s.cfg.Name).
		Bool("mounted", s.intake.Mounted()).
		Bool("wallet_ready", s.cell.Ready()).
		Int("subscribers", s.hub.SubscriberCount()).
		Int("recent_links", s.reports.len()).
		Msg("gate.Service.heartbeat")
}

func (s *Service) initWalletKit(ctx context.Context) {
	var err error
	defer func() {
		s.mu.Lock()
		s.walletErr = err
		s.mu.Unlock()
		close(s.walletDone)
	}()

	if strings.TrimSpace(s.cfg.Wallet.Address) == "" {
		err = ErrWalletDisabled
		log.Warn().Msg("gate.Service.initWalletKit wallet_address unset, pairing disabled")
		return
	}
	initiator, closeFn, openErr := s.openWallet(ctx, s.cfg.Wallet)
	if openErr != nil {
		err = openErr
		log.Error().Err(openErr).Str("addr", s.cfg.Wallet.Address).Msg("gate.Service.initWalletKit failed")
		return
	}
	if setErr := s.cell.Set(initiator); setErr != nil {
		err = setErr
		if closeFn != nil {
			_ = closeFn()
		}
		return
	}
	s.mu.Lock()
	s.closeWallet = closeFn
	s.mu.Unlock()
	observability.SetWalletKitReady(true)
	log.Info().Str("addr", s.cfg.Wallet.Address).Msg("gate.Service.initWalletKit ready")
}

func (s *Service) shutdownIntake() {
	s.intake.Unmount()
	s.hub.Close()
	<-s.walletDone

	s.mu.Lock()
	closeFn := s.closeWallet
	s.closeWallet = nil
	s.mu.Unlock()
	if closeFn != nil {
		if err := closeFn(); err != nil {
			log.Warn().Err(err).Msg("gate.Service.shutdown wallet close")
		}
	}
	observability.SetWalletKitReady(false)
	log.Info().Str("service", s.cfg.Name).Msg("gate.Service.shutdown complete")
}

func openWalletCore(ctx context.Context, cfg walletcore.Config) (intake.Initiator, func() error, error) {
	client, err := walletcore.NewClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Connect(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return client, client.Close, nil
}
