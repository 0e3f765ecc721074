// Command apisession signs in to an API, keeps the session on disk or in
// Redis, and sends authenticated requests with it.
//
//	apisession [-config path] login -u alice
//	apisession whoami
//	apisession request GET /v1/items
//	apisession request POST /v1/items '{"name":"x"}'
//	apisession refresh
//	apisession logout
//	apisession doctor
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/jonwraymond/apisession/client"
	"github.com/jonwraymond/apisession/config"
	"github.com/jonwraymond/apisession/health"
	"github.com/jonwraymond/apisession/session"
)

const (
	configEnv   = "APISESSION_CONFIG"
	passwordEnv = "APISESSION_PASSWORD"
)

var (
	errUsage       = errors.New("usage: apisession [-config path] login|whoami|refresh|logout|request|doctor")
	errNotSignedIn = errors.New("not signed in")
	errUnhealthy   = errors.New("one or more checks failed")
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "apisession: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("apisession", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", envOr(configEnv, "apisession.toml"), "config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errUsage
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	cfg, err := config.Load(ctx, *configPath)
	if err != nil {
		return err
	}
	a, err := build(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	switch cmd {
	case "login":
		return a.login(ctx, rest, stdin, stdout)
	case "whoami":
		return a.whoami(ctx, stdout)
	case "refresh":
		return a.refresh(ctx, stdout)
	case "logout":
		return a.logout(ctx, stdout)
	case "request":
		return a.request(ctx, rest, stdin, stdout)
	case "doctor":
		return a.doctor(ctx, rest, stdout)
	default:
		return fmt.Errorf("unknown command %q\n%w", cmd, errUsage)
	}
}

func (a *app) login(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", "", "username")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return errors.New("login: -u is required")
	}

	password, ok := os.LookupEnv(passwordEnv)
	if !ok {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("login: read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	if err := a.manager.Login(ctx, session.Credentials{Username: *username, Password: password}); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	id := a.manager.CurrentIdentity()
	fmt.Fprintf(stdout, "signed in as %s\n", displayName(id))
	return nil
}

func (a *app) whoami(ctx context.Context, stdout io.Writer) error {
	a.manager.Initialize(ctx)
	id := a.manager.CurrentIdentity()
	if id == nil {
		if err := a.manager.LastError(); err != nil {
			return fmt.Errorf("%w: %v", errNotSignedIn, err)
		}
		return errNotSignedIn
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		ID          string `json:"id"`
		Email       string `json:"email,omitempty"`
		DisplayName string `json:"display_name,omitempty"`
		Role        string `json:"role,omitempty"`
		State       string `json:"state"`
	}{id.ID, id.Email, id.DisplayName, id.Role, a.manager.State().String()})
}

func (a *app) refresh(ctx context.Context, stdout io.Writer) error {
	a.manager.Initialize(ctx)
	if !a.manager.IsAuthenticated() {
		return errNotSignedIn
	}
	tokens, err := a.manager.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if tokens.ExpiresAt.IsZero() {
		fmt.Fprintln(stdout, "refreshed")
		return nil
	}
	fmt.Fprintf(stdout, "refreshed, expires %s\n", tokens.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}

func (a *app) logout(ctx context.Context, stdout io.Writer) error {
	a.manager.Initialize(ctx)
	if err := a.manager.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	fmt.Fprintln(stdout, "signed out")
	return nil
}

func (a *app) request(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("request", flag.ContinueOnError)
	var headers headerFlags
	fs.Var(&headers, "H", "extra header as 'Name: value' (repeatable)")
	retries := fs.Int("retries", client.DefaultRetries, "retry budget; -1 uses the method default")
	contentType := fs.String("type", "application/json", "request body content type")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 || fs.NArg() > 3 {
		return errors.New("usage: apisession request [-H 'Name: value'] METHOD PATH [BODY|@file|-]")
	}
	method, path := strings.ToUpper(fs.Arg(0)), fs.Arg(1)

	body := client.NoBody
	if fs.NArg() == 3 {
		data, err := readBody(fs.Arg(2), stdin)
		if err != nil {
			return err
		}
		body = client.Raw(data, *contentType)
	}

	a.manager.Initialize(ctx)
	req := client.NewRequest(method, path, body)
	for k, v := range headers {
		req = req.WithHeader(k, v)
	}
	if *retries >= 0 {
		req.MaxRetries = *retries
	}

	resp, err := a.client.Do(ctx, req)
	if err != nil {
		if f, ok := client.AsFault(err); ok && len(f.Body) > 0 {
			_, _ = stdout.Write(f.Body)
			fmt.Fprintln(stdout)
		}
		return err
	}
	_, err = stdout.Write(resp.Body)
	if err == nil && len(resp.Body) > 0 && resp.Body[len(resp.Body)-1] != '\n' {
		_, err = fmt.Fprintln(stdout)
	}
	return err
}

func (a *app) doctor(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	path := fs.String("path", "/", "API path probed by the endpoint check")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a.manager.Initialize(ctx)
	agg := health.NewAggregator()
	agg.Register(health.NewEndpointChecker("api", a.client, *path))
	agg.Register(health.NewSessionChecker(a.manager))
	if a.rdb != nil {
		agg.Register(health.NewRedisChecker(a.rdb))
	}

	results := agg.CheckAll(ctx)
	names := agg.Names()
	slices.Sort(names)
	for _, name := range names {
		r := results[name]
		line := fmt.Sprintf("%-8s %-9s %s", name, r.Status, r.Message)
		if r.Error != nil {
			line += ": " + r.Error.Error()
		}
		fmt.Fprintf(stdout, "%s (%s)\n", line, r.Duration.Round(time.Millisecond))
	}

	overall := health.OverallStatus(results)
	fmt.Fprintf(stdout, "overall: %s\n", overall)
	if overall == health.StatusUnhealthy {
		return errUnhealthy
	}
	return nil
}

func displayName(id *session.Identity) string {
	switch {
	case id == nil:
		return "unknown"
	case id.DisplayName != "":
		return id.DisplayName
	case id.Email != "":
		return id.Email
	default:
		return id.ID
	}
}

// readBody interprets a request body argument: "-" reads stdin, "@path"
// reads a file, anything else is sent as is.
func readBody(arg string, stdin io.Reader) ([]byte, error) {
	switch {
	case arg == "-":
		return io.ReadAll(stdin)
	case strings.HasPrefix(arg, "@"):
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, fmt.Errorf("request body: %w", err)
		}
		return data, nil
	default:
		return []byte(arg), nil
	}
}

type headerFlags map[string]string

func (h *headerFlags) String() string { return fmt.Sprint(map[string]string(*h)) }

func (h *headerFlags) Set(v string) error {
	name, value, ok := strings.Cut(v, ":")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("header %q: want 'Name: value'", v)
	}
	if *h == nil {
		*h = headerFlags{}
	}
	(*h)[strings.TrimSpace(name)] = strings.TrimSpace(value)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
