// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

// Package ssmresolver replaces environment values that are SSM Parameter
// Store ARNs with the parameter values, so hosts can receive BRIDGE_* settings
// and application secrets by reference.
package ssmresolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/chainguard-dev/clog"

	"github.com/cruxstack/workerbridge/internal/configwait"
)

// Lambda init has roughly ten seconds, so retries are shorter than the
// long-running hosts use.
const (
	DefaultMaxRetries    = 5
	DefaultRetryInterval = time.Second
)

// ErrNoValue is returned when a parameter exists but carries no value.
var ErrNoValue = errors.New("ssm parameter has no value")

// arn:aws:ssm:<region>:<account>:parameter/<path>
var arnPattern = regexp.MustCompile(`^arn:aws:ssm:[^:]+:[^:]+:parameter/(.+)$`)

// Client is the subset of the SSM API the resolver uses.
type Client interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver resolves parameter ARNs through an SSM client.
type Resolver struct {
	client Client
}

// New creates a Resolver using the default AWS configuration chain.
func New(ctx context.Context) (*Resolver, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithClient(ssm.NewFromConfig(cfg)), nil
}

// NewWithClient creates a Resolver with the given client.
func NewWithClient(client Client) *Resolver {
	return &Resolver{client: client}
}

// IsARN reports whether value is an SSM parameter ARN.
func IsARN(value string) bool {
	return arnPattern.MatchString(value)
}

// ParameterName extracts the parameter name, with a leading slash, from an ARN.
func ParameterName(arn string) (string, bool) {
	m := arnPattern.FindStringSubmatch(arn)
	if len(m) != 2 {
		return "", false
	}
	name := m[1]
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return name, true
}

// ResolveValue returns value unchanged unless it is a parameter ARN, in which
// case the decrypted parameter value is returned.
func (r *Resolver) ResolveValue(ctx context.Context, value string) (string, error) {
	name, ok := ParameterName(value)
	if !ok {
		return value, nil
	}

	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("get ssm parameter %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("%w: %s", ErrNoValue, name)
	}
	return *out.Parameter.Value, nil
}

// ResolveEnvironment resolves every environment variable holding a parameter
// ARN and overwrites it in the process environment.
func (r *Resolver) ResolveEnvironment(ctx context.Context) error {
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !IsARN(value) {
			continue
		}
		resolved, err := r.ResolveValue(ctx, value)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", key, err)
		}
		if err := os.Setenv(key, resolved); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
		clog.FromContext(ctx).Debugf("[ssmresolver] resolved %s", key)
	}
	return nil
}

// RetryConfig returns the wait configuration for cold starts: the configwait
// environment overrides applied over the shorter Lambda defaults.
func RetryConfig() configwait.Config {
	cfg := configwait.NewConfigFromEnv()
	if os.Getenv(configwait.EnvMaxRetries) == "" {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if os.Getenv(configwait.EnvRetryInterval) == "" {
		cfg.RetryInterval = DefaultRetryInterval
	}
	return cfg
}

// ResolveEnvironmentWithRetry resolves the environment, retrying failures as
// parameters may not be readable immediately after deploy.
func (r *Resolver) ResolveEnvironmentWithRetry(ctx context.Context, cfg configwait.Config) error {
	return configwait.Wait(ctx, cfg, r.ResolveEnvironment)
}
