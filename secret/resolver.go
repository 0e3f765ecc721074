package secret

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const refPrefix = "secretref:"

// Resolver resolves secret references using registered providers.
//
// Values with the prefix "secretref:" are resolved via providers.
// Other values are returned after strict environment expansion.
type Resolver struct {
	providers map[string]Provider
	strict    bool
}

// NewResolver creates a resolver. In strict mode a provider returning an
// empty value is an error.
func NewResolver(strict bool, providers ...Provider) *Resolver {
	r := &Resolver{
		providers: make(map[string]Provider),
		strict:    strict,
	}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// NewDefaultResolver returns a strict resolver with the env provider and a
// file provider rooted at dir.
func NewDefaultResolver(dir string) *Resolver {
	return NewResolver(true, EnvProvider{}, FileProvider{Dir: dir})
}

// Register registers a provider, replacing any provider with the same name.
func (r *Resolver) Register(provider Provider) {
	if r == nil || provider == nil {
		return
	}
	if r.providers == nil {
		r.providers = make(map[string]Provider)
	}
	r.providers[provider.Name()] = provider
}

// Close closes every registered provider.
func (r *Resolver) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("secret: close %s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// ResolveValue resolves environment variables and secret refs in value.
// A nil Resolver only expands the environment.
func (r *Resolver) ResolveValue(ctx context.Context, value string) (string, error) {
	expanded, err := ExpandEnvStrict(value)
	if err != nil {
		return "", err
	}
	if r == nil {
		return expanded, nil
	}

	if providerName, ref, ok := ParseSecretRef(expanded); ok {
		return r.resolveSingle(ctx, providerName, ref)
	}
	if strings.HasPrefix(expanded, refPrefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, expanded)
	}
	return r.resolveInline(ctx, expanded)
}

// ResolveSlice resolves each value in values.
func (r *Resolver) ResolveSlice(ctx context.Context, values []string) ([]string, error) {
	if values == nil {
		return nil, nil
	}
	resolved := make([]string, len(values))
	for i, v := range values {
		out, err := r.ResolveValue(ctx, v)
		if err != nil {
			return nil, err
		}
		resolved[i] = out
	}
	return resolved, nil
}

// ResolveMap resolves each string value in input.
func (r *Resolver) ResolveMap(ctx context.Context, input map[string]string) (map[string]string, error) {
	if input == nil {
		return nil, nil
	}
	out := make(map[string]string, len(input))
	for k, v := range input {
		resolved, err := r.ResolveValue(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

// ParseSecretRef parses a full secret reference of the form:
//
//	secretref:<provider>:<ref>
func ParseSecretRef(value string) (provider string, ref string, ok bool) {
	if !strings.HasPrefix(value, refPrefix) {
		return "", "", false
	}
	provider, ref, found := strings.Cut(strings.TrimPrefix(value, refPrefix), ":")
	if !found || provider == "" || ref == "" {
		return "", "", false
	}
	return provider, ref, true
}

func (r *Resolver) resolveSingle(ctx context.Context, providerName string, ref string) (string, error) {
	provider, ok := r.providers[providerName]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, providerName)
	}
	resolved, err := provider.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if r.strict && resolved == "" {
		return "", fmt.Errorf("%w: %s:%s", ErrEmptySecret, providerName, ref)
	}
	return resolved, nil
}

var inlineSecretRefPattern = regexp.MustCompile(`secretref:([^:\s]+):([^\s]+)`) // provider:ref

func (r *Resolver) resolveInline(ctx context.Context, value string) (string, error) {
	matches := inlineSecretRefPattern.FindAllStringSubmatchIndex(value, -1)
	if len(matches) == 0 {
		return value, nil
	}

	out := value
	for i := len(matches) - 1; i >= 0; i-- {
		match := matches[i]

		// Replacing from the end keeps earlier indexes valid.
		providerName := out[match[2]:match[3]]
		ref := out[match[4]:match[5]]

		resolved, err := r.resolveSingle(ctx, providerName, ref)
		if err != nil {
			return "", err
		}

		out = out[:match[0]] + resolved + out[match[1]:]
	}
	return out, nil
}
