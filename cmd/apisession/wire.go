package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/jonwraymond/apisession/client"
	"github.com/jonwraymond/apisession/config"
	"github.com/jonwraymond/apisession/idp"
	"github.com/jonwraymond/apisession/observe"
	"github.com/jonwraymond/apisession/persist"
	"github.com/jonwraymond/apisession/resilience"
	"github.com/jonwraymond/apisession/session"
)

// app holds everything one command needs.
type app struct {
	obs     observe.Observer
	client  *client.Client
	manager *session.Manager
	rdb     redis.UniversalClient
}

// build wires the packages together from cfg. Faults that deserve a user
// hint are reported to notices.
func build(ctx context.Context, cfg *config.Config, notices io.Writer) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close(context.WithoutCancel(ctx))
		}
	}()

	obsCfg := cfg.ObserveConfig()
	obsCfg.Output = notices
	a.obs, err = observe.NewObserver(ctx, obsCfg)
	if err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	logger := a.obs.Logger()

	a.client, err = client.New(
		client.WithBaseURL(cfg.Client.BaseURL),
		client.WithDefaultTimeout(cfg.Client.Timeout),
		client.WithRetryPolicy(resilience.NewRetryPolicy(cfg.RetryConfig())),
		client.WithObserver(a.obs),
		client.WithUserAgent(cfg.Client.UserAgent),
		client.WithRequestInterceptors(staticHeaders(cfg.Client.Headers)),
		client.WithErrorInterceptors(client.NotifyInterceptor(func(_ context.Context, n client.Notice, _ *client.Fault) {
			fmt.Fprintf(notices, "apisession: %s\n", n.Message)
		})),
	)
	if err != nil {
		return nil, err
	}

	store, err := a.buildStore(cfg.Session)
	if err != nil {
		return nil, err
	}
	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	metrics, err := observe.NewSessionMetrics(a.obs.Meter())
	if err != nil {
		return nil, fmt.Errorf("session metrics: %w", err)
	}
	a.manager, err = session.NewManager(session.Config{
		Provider:              provider,
		Persistence:           store,
		RefreshOnUnauthorized: cfg.Session.RefreshOnUnauthorized,
		Logger:                logger,
		Metrics:               metrics,
	})
	if err != nil {
		return nil, err
	}
	a.manager.Attach(a.client)
	return a, nil
}

// buildStore returns the session.Persistence selected by cfg.
func (a *app) buildStore(cfg config.SessionConfig) (*persist.Store, error) {
	var (
		backend persist.Backend
		label   string
		err     error
	)
	switch cfg.Store {
	case config.StoreFile:
		backend, err = persist.NewFile(cfg.Path)
		label = cfg.Path
	case config.StoreRedis:
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		backend, err = persist.NewRedis(a.rdb, persist.WithKey(cfg.Key), persist.WithTTL(cfg.TTL))
		label = cfg.Key
	default:
		backend = persist.NewMemory()
		label = cfg.Key
	}
	if err != nil {
		return nil, err
	}

	if cfg.SealKey != "" {
		backend, err = persist.NewSealed(backend, []byte(cfg.SealKey), label)
		if err != nil {
			return nil, err
		}
	}
	return persist.NewStore(backend)
}

// buildProvider discovers the issuer when one is configured, then builds
// the access token verifier and the OAuth2 provider. Explicit URLs in cfg
// take precedence over discovered ones.
func buildProvider(ctx context.Context, cfg *config.Config) (*idp.OAuth2Provider, error) {
	ic := cfg.Identity
	claims := idp.ClaimNames{
		ID:    ic.Claims.ID,
		Email: ic.Claims.Email,
		Name:  ic.Claims.Name,
		Role:  ic.Claims.Role,
	}

	tokenURL, revocationURL, jwksURL := ic.TokenURL, ic.RevocationURL, ic.JWKSURL
	var idVerifier idp.ClaimsVerifier
	if ic.Issuer != "" {
		d, err := idp.DiscoverOIDC(ctx, ic.Issuer, idp.OIDCConfig{ClientID: ic.ClientID, Claims: claims})
		if err != nil {
			return nil, err
		}
		idVerifier = d.Verifier
		tokenURL = cmp.Or(tokenURL, d.Endpoint.TokenURL)
		revocationURL = cmp.Or(revocationURL, d.RevocationURL)
		jwksURL = cmp.Or(jwksURL, d.JWKSURL)
	}

	var verifier idp.ClaimsVerifier
	switch ic.Verifier {
	case config.VerifierHMAC:
		verifier = idp.NewJWTVerifier(idp.JWTConfig{
			Issuer:   ic.Issuer,
			Audience: ic.Audience,
			Methods:  []string{"HS256", "HS384", "HS512"},
			Claims:   claims,
		}, idp.NewStaticKeyProvider([]byte(ic.HMACSecret)))
	case config.VerifierIntrospection:
		v, err := idp.NewIntrospectionVerifier(idp.IntrospectionConfig{
			Endpoint:     ic.IntrospectionURL,
			ClientID:     ic.ClientID,
			ClientSecret: ic.ClientSecret,
			Claims:       claims,
		})
		if err != nil {
			return nil, err
		}
		verifier = v
	default:
		if jwksURL == "" {
			return nil, errors.New("identity: issuer does not advertise jwks_uri; set identity.jwks_url")
		}
		verifier = idp.NewJWTVerifier(idp.JWTConfig{
			Issuer:   ic.Issuer,
			Audience: ic.Audience,
			Methods:  []string{"RS256", "RS384", "RS512", "ES256", "ES384"},
			Claims:   claims,
		}, idp.NewJWKSKeyProvider(idp.JWKSConfig{URL: jwksURL}))
	}

	return idp.NewOAuth2Provider(idp.OAuth2Config{
		Endpoint:        oauth2.Endpoint{TokenURL: tokenURL},
		ClientID:        ic.ClientID,
		ClientSecret:    ic.ClientSecret,
		Scopes:          cfg.Scopes(),
		RevocationURL:   revocationURL,
		Verifier:        verifier,
		IDTokenVerifier: idVerifier,
	})
}

// staticHeaders adds the configured headers to every request that does not
// already set them.
func staticHeaders(headers map[string]string) client.RequestInterceptor {
	return func(_ context.Context, req client.Request) (client.Request, error) {
		for k, v := range headers {
			if _, ok := req.Header(k); !ok {
				req = req.WithHeader(k, v)
			}
		}
		return req, nil
	}
}

func (a *app) close(ctx context.Context) {
	if a.manager != nil {
		_ = a.manager.Shutdown(ctx)
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.obs != nil {
		_ = a.obs.Shutdown(ctx)
	}
}
