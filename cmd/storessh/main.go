// Package main implements the SSH server that serves the storefront TUI.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"
	"go.uber.org/zap"
	gossh "golang.org/x/crypto/ssh"

	"github.com/thomas/storefront-terminal-go/internal/auth"
	"github.com/thomas/storefront-terminal-go/internal/cache"
	"github.com/thomas/storefront-terminal-go/internal/cart"
	"github.com/thomas/storefront-terminal-go/internal/checkout"
	"github.com/thomas/storefront-terminal-go/internal/config"
	"github.com/thomas/storefront-terminal-go/internal/fx"
	"github.com/thomas/storefront-terminal-go/internal/logging"
	"github.com/thomas/storefront-terminal-go/internal/pricing"
	"github.com/thomas/storefront-terminal-go/internal/storage"
	"github.com/thomas/storefront-terminal-go/internal/storefront"
	"github.com/thomas/storefront-terminal-go/internal/tui"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := ensureHostKey(cfg.SSHHostKeyPath, logger); err != nil {
		logger.Fatal("Failed to ensure host key", zap.Error(err))
	}

	var allowlist *auth.Allowlist
	if cfg.SSHAuthMode == config.AuthModeAllowlist {
		allowlist, err = auth.LoadAllowlist(cfg.AllowlistPath)
		if err != nil {
			if errors.Is(err, auth.ErrAllowlistNotFound) {
				logger.Info("Creating empty allowlist", zap.String("path", cfg.AllowlistPath))
				if err := auth.CreateEmptyAllowlist(cfg.AllowlistPath); err != nil {
					logger.Fatal("Failed to create allowlist", zap.Error(err))
				}
				logger.Warn("Add your SSH public key to the allowlist and restart")
				os.Exit(1)
			}
			logger.Fatal("Failed to load allowlist", zap.Error(err))
		}
		if allowlist.Len() == 0 {
			logger.Warn("Allowlist is empty, no connections will be accepted", zap.String("path", cfg.AllowlistPath))
		}
		logger.Info("Loaded allowlist", zap.Int("keys", allowlist.Len()))
	} else {
		logger.Warn("Running in PUBLIC mode, anyone can connect")
	}

	ctx := context.Background()
	backend, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.String("backend", string(cfg.StorageBackend)), zap.Error(err))
	}
	defer closeBackend()

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	clientOpts := []storefront.ClientOption{
		storefront.WithHTTPClient(httpClient),
		storefront.WithAPIPrefix(cfg.StoreAPIPrefix),
		storefront.WithCountriesURL(cfg.CountriesURL),
		storefront.WithLogger(logger.Named("storefront")),
	}
	if cfg.CSRFToken != "" {
		clientOpts = append(clientOpts, storefront.WithCSRFToken(cfg.CSRFToken))
	}
	client := storefront.NewClient(cfg.StoreBaseURL, clientOpts...)

	// Catalog reads are shared between sessions.
	catalog := cache.New[string, []storefront.Product](cfg.CacheTTL)
	countries := cache.New[string, []storefront.Country](24 * time.Hour)

	newSession := func(s ssh.Session) tui.Deps {
		namespace := auth.Namespace(s.PublicKey())
		sessionLogger := logger.With(zap.String("buyer", namespace), zap.String("remote", s.RemoteAddr().String()))

		store := storage.New(backend, namespace, sessionLogger)
		sessionStore := storage.New(storage.NewMemoryBackend(), namespace, sessionLogger)

		rates := fx.NewProvider(store, cfg.BaseCurrency, cfg.DisplayCurrency,
			fx.WithEndpoint(cfg.FXURL),
			fx.WithTTL(cfg.FXTTL),
			fx.WithDefaultRate(cfg.FXDefaultRate),
			fx.WithHTTPClient(httpClient),
			fx.WithLogger(sessionLogger),
		)

		return tui.Deps{
			Client:          client,
			Catalog:         catalog,
			Countries:       countries,
			Store:           store,
			Cart:            cart.New(store),
			Wishlist:        cart.NewWishlist(store),
			Pricing:         pricing.NewState(s.Context(), store, cfg.BaseCurrency, cfg.DisplayCurrency, cfg.FXDefaultRate, sessionLogger),
			Rates:           rates,
			Submitter:       checkout.NewSubmitter(client, sessionStore, sessionLogger),
			Payments:        checkout.NewPayments(client, store, cfg.StoreBaseURL, sessionLogger),
			PaymentCurrency: cfg.PaymentCurrency,
			BrandName:       cfg.BrandName,
			Logger:          sessionLogger,
		}
	}

	opts := []ssh.Option{
		wish.WithAddress(cfg.SSHAddr),
		wish.WithHostKeyPath(cfg.SSHHostKeyPath),
		wish.WithMiddleware(
			bubbletea.Middleware(func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
				m := tui.NewModel(newSession(s))
				go func() {
					<-s.Context().Done()
					m.Close()
				}()
				logger.Info("Session started", zap.String("buyer", auth.Namespace(s.PublicKey())))
				return m, []tea.ProgramOption{tea.WithAltScreen()}
			}),
		),
	}

	if cfg.SSHAuthMode == config.AuthModeAllowlist {
		opts = append(opts, wish.WithPublicKeyAuth(func(ctx ssh.Context, key ssh.PublicKey) bool {
			return allowlist.Allows(key)
		}))
	} else {
		opts = append(opts, wish.WithPublicKeyAuth(func(ctx ssh.Context, key ssh.PublicKey) bool {
			return true
		}))
	}

	// Always disable password auth
	opts = append(opts, wish.WithPasswordAuth(func(ctx ssh.Context, password string) bool {
		return false
	}))

	server, err := wish.NewServer(opts...)
	if err != nil {
		logger.Fatal("Failed to create SSH server", zap.Error(err))
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Starting SSH server",
		zap.String("addr", cfg.SSHAddr),
		zap.String("store", cfg.APIBaseURL()),
		zap.String("auth_mode", string(cfg.SSHAuthMode)),
		zap.String("storage", string(cfg.StorageBackend)))

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	<-done
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
}

// openBackend builds the persistent storage backend selected in config.
func openBackend(ctx context.Context, cfg *config.Config) (storage.Backend, func(), error) {
	noop := func() {}
	switch cfg.StorageBackend {
	case config.StorageRedis:
		rb, err := storage.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, noop, err
		}
		return rb, func() { rb.Close() }, nil
	case config.StorageMemory:
		return storage.NewMemoryBackend(), noop, nil
	default:
		fb, err := storage.NewFileBackend(cfg.StorageDir)
		if err != nil {
			return nil, noop, err
		}
		return fb, noop, nil
	}
}

// ensureHostKey generates an ED25519 host key if it doesn't exist.
func ensureHostKey(path string, logger *zap.Logger) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	logger.Info("Generating new ED25519 host key", zap.String("path", path))

	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}

	sshPrivKey, err := gossh.MarshalPrivateKey(privKey, "")
	if err != nil {
		return fmt.Errorf("marshaling private key: %w", err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(sshPrivKey), 0600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}

	sshPubKey, err := gossh.NewPublicKey(pubKey)
	if err != nil {
		return fmt.Errorf("creating public key: %w", err)
	}
	if err := os.WriteFile(path+".pub", gossh.MarshalAuthorizedKey(sshPubKey), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	return nil
}
