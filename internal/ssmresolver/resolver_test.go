// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package ssmresolver

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/chainguard-dev/clog/slogtest"

	"github.com/cruxstack/workerbridge/internal/configwait"
)

type fakeClient struct {
	params map[string]string
	err    error
	calls  int
}

func (f *fakeClient) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.params[aws.ToString(in.Name)]
	if !ok {
		return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name}}, nil
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name, Value: aws.String(v)}}, nil
}

func TestParameterName(t *testing.T) {
	tests := []struct {
		arn    string
		want   string
		wantOK bool
	}{
		{"arn:aws:ssm:us-east-1:123456789012:parameter/bridge/prod/ROOT", "/bridge/prod/ROOT", true},
		{"arn:aws:ssm:us-east-1:123456789012:parameter//already/slashed", "/already/slashed", true},
		{"arn:aws:ssm:us-east-1:123456789012:parameter/flat", "/flat", true},
		{"arn:aws:s3:::bucket", "", false},
		{"/srv/app", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.arn, func(t *testing.T) {
			got, ok := ParameterName(tt.arn)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParameterName() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
			if IsARN(tt.arn) != tt.wantOK {
				t.Errorf("IsARN() = %v, want %v", !tt.wantOK, tt.wantOK)
			}
		})
	}
}

func TestResolveValue(t *testing.T) {
	ctx := slogtest.Context(t)
	client := &fakeClient{params: map[string]string{"/bridge/root": "/srv/app"}}
	r := NewWithClient(client)

	got, err := r.ResolveValue(ctx, "plain")
	if err != nil || got != "plain" {
		t.Errorf("ResolveValue(plain) = (%q, %v)", got, err)
	}
	if client.calls != 0 {
		t.Errorf("plain values must not hit ssm, calls = %d", client.calls)
	}

	got, err = r.ResolveValue(ctx, "arn:aws:ssm:us-east-1:1:parameter/bridge/root")
	if err != nil || got != "/srv/app" {
		t.Errorf("ResolveValue(arn) = (%q, %v)", got, err)
	}

	if _, err := r.ResolveValue(ctx, "arn:aws:ssm:us-east-1:1:parameter/missing"); !errors.Is(err, ErrNoValue) {
		t.Errorf("missing value error = %v, want ErrNoValue", err)
	}
}

func TestResolveEnvironment(t *testing.T) {
	t.Setenv("BRIDGE_ROOT_DIR", "arn:aws:ssm:us-east-1:1:parameter/bridge/root")
	t.Setenv("BRIDGE_PLAIN", "untouched")

	r := NewWithClient(&fakeClient{params: map[string]string{"/bridge/root": "/srv/app"}})
	if err := r.ResolveEnvironment(slogtest.Context(t)); err != nil {
		t.Fatalf("ResolveEnvironment() returned error: %v", err)
	}
	if got := os.Getenv("BRIDGE_ROOT_DIR"); got != "/srv/app" {
		t.Errorf("BRIDGE_ROOT_DIR = %q", got)
	}
	if got := os.Getenv("BRIDGE_PLAIN"); got != "untouched" {
		t.Errorf("BRIDGE_PLAIN = %q", got)
	}
}

func TestResolveEnvironmentWithRetry(t *testing.T) {
	t.Setenv("BRIDGE_SECRET", "arn:aws:ssm:us-east-1:1:parameter/secret")

	client := &fakeClient{err: errors.New("throttled")}
	r := NewWithClient(client)
	err := r.ResolveEnvironmentWithRetry(slogtest.Context(t), configwait.Config{MaxRetries: 3, RetryInterval: time.Millisecond})
	if err == nil {
		t.Fatal("expected error after retries")
	}
	if client.calls != 3 {
		t.Errorf("calls = %d, want 3", client.calls)
	}
}

func TestRetryConfig(t *testing.T) {
	t.Setenv(configwait.EnvMaxRetries, "")
	t.Setenv(configwait.EnvRetryInterval, "")
	if got := RetryConfig(); got.MaxRetries != DefaultMaxRetries || got.RetryInterval != DefaultRetryInterval {
		t.Errorf("RetryConfig() = %+v", got)
	}

	t.Setenv(configwait.EnvMaxRetries, "9")
	if got := RetryConfig(); got.MaxRetries != 9 {
		t.Errorf("MaxRetries = %d, want 9", got.MaxRetries)
	}
}
