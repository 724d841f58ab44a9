package business

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/config"
	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/credential"
	"github.com/openkcm/session-client/pkg/permission"
	"github.com/openkcm/session-client/pkg/pipeline"
	"github.com/openkcm/session-client/pkg/session"
	sessionfile "github.com/openkcm/session-client/pkg/session/file"
	sessionmemory "github.com/openkcm/session-client/pkg/session/memory"
	sessionsql "github.com/openkcm/session-client/pkg/session/sql"
	sessionvalkey "github.com/openkcm/session-client/pkg/session/valkey"
)

// app is the composed client for one command run.
type app struct {
	cfg      *config.Config
	store    *session.Store
	provider credential.Provider
	client   *pipeline.Client
	mapper   *permission.Mapper
	out      io.Writer

	closeFns []func()
}

func initApp(ctx context.Context, cfg *config.Config, out io.Writer) (_ *app, err error) {
	a := &app{cfg: cfg, out: out}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	category := credential.Category(cfg.API.UserCategory)

	persister, closeFn, err := persisterFromConfig(ctx, cfg, category)
	if err != nil {
		return nil, fmt.Errorf("initialising session storage: %w", err)
	}
	a.closeFns = append(a.closeFns, closeFn)

	a.store = session.NewStore(persister)
	if err := a.store.Hydrate(ctx); err != nil {
		return nil, fmt.Errorf("loading the stored session: %w", err)
	}

	httpClient, err := httpClientFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("loading http client: %w", err)
	}

	a.provider, err = credential.NewProvider(category, cfg.API.BaseURL, httpClient, a.store)
	if err != nil {
		return nil, err
	}

	a.client, err = pipeline.New(ctx, a.store, a.provider,
		pipeline.WithHTTPClient(httpClient),
		pipeline.WithBaseURL(cfg.API.BaseURL),
		pipeline.WithNavigator(pipeline.NavigatorFunc(a.navigate)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating the request pipeline: %w", err)
	}
	// Closed first so background server logouts still have their storage.
	a.closeFns = append(a.closeFns, a.client.Close)

	a.mapper, err = permission.LoadMapper(cfg.Permissions.File)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// Close releases the resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func (a *app) navigate(ctx context.Context, route string) {
	slogctx.Debug(ctx, "Navigating to the login route", "route", route)
	_, _ = fmt.Fprintf(a.out, "Session ended, log in again with \"session-client login\" (%s)\n", route)
}

func persisterFromConfig(ctx context.Context, cfg *config.Config, category credential.Category) (session.Persister, func(), error) {
	namespace := cfg.Storage.Namespace
	if namespace == "" {
		namespace = string(category)
	}

	switch cfg.Storage.Type {
	case config.StorageFile, "":
		path := cfg.Storage.Path
		if path == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return nil, nil, fmt.Errorf("locating the user config dir: %w", err)
			}
			path = filepath.Join(dir, "session-client", namespace+".json")
		}

		return sessionfile.NewPersister(path), func() {}, nil
	case config.StorageMemory:
		return sessionmemory.NewPersister(cfg.Storage.TTL), func() {}, nil
	case config.StorageValKey:
		client, err := valkeyClientFromConfig(cfg)
		if err != nil {
			return nil, nil, err
		}

		return sessionvalkey.NewPersister(client, cfg.ValKey.Prefix, namespace), client.Close, nil
	case config.StoragePostgres:
		pool, err := pgxPoolFromConfig(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}

		return sessionsql.NewPersister(pool, namespace), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", serviceerr.ErrUnknownStorageType, cfg.Storage.Type)
	}
}

func pgxPoolFromConfig(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	connStr, err := config.MakeConnStr(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("making dsn from config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing pgxpool config: %w", err)
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("initialising pgxpool connection: %w", err)
	}

	return pool, nil
}

func valkeyClientFromConfig(cfg *config.Config) (valkey.Client, error) {
	valkeyHost, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Host)
	if err != nil {
		return nil, fmt.Errorf("loading valkey host: %w", err)
	}

	valkeyUsername, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.User)
	if err != nil {
		return nil, fmt.Errorf("loading valkey username: %w", err)
	}

	valkeyPassword, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Password)
	if err != nil {
		return nil, fmt.Errorf("loading valkey password: %w", err)
	}

	valkeyOpts := valkey.ClientOption{
		InitAddress: []string{string(valkeyHost)},
		Username:    string(valkeyUsername),
		Password:    string(valkeyPassword),
	}

	if cfg.ValKey.SecretRef.Type == commoncfg.MTLSSecretType {
		tlsConfig, err := commoncfg.LoadMTLSConfig(&cfg.ValKey.SecretRef.MTLS)
		if err != nil {
			return nil, fmt.Errorf("loading valkey mTLS config from secret ref: %w", err)
		}

		valkeyOpts.TLSConfig = tlsConfig
	}

	valkeyClient, err := valkey.NewClient(valkeyOpts)
	if err != nil {
		return nil, fmt.Errorf("creating a new valkey client: %w", err)
	}

	return valkeyClient, nil
}

var errUnknownClientAuth = errors.New("unknown client auth type")

func httpClientFromConfig(cfg *config.Config) (*http.Client, error) {
	timeout := cfg.API.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	switch cfg.API.ClientAuth.Type {
	case "", "none":
		return pipeline.NewHTTPClient(timeout, nil, cfg.API.UserAgent), nil
	case "mtls":
		if cfg.API.ClientAuth.MTLS == nil {
			return nil, fmt.Errorf("%w: mtls requires an mtls block", errUnknownClientAuth)
		}

		tlsConfig, err := commoncfg.LoadMTLSConfig(cfg.API.ClientAuth.MTLS)
		if err != nil {
			return nil, fmt.Errorf("loading mTLS config: %w", err)
		}

		return pipeline.NewHTTPClient(timeout, tlsConfig, cfg.API.UserAgent), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownClientAuth, cfg.API.ClientAuth.Type)
	}
}
