// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package awssm implements a secrets provider backed by AWS Secrets Manager.
package awssm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/cardinalhq/celestus/internal/logctx"
	"github.com/cardinalhq/celestus/internal/providers"
)

// KindName is the fragment a declared provider name must contain.
const KindName = "AWSSM"

const roleSessionName = "celestus"

var (
	ErrSecretNotFound   = errors.New("secret not found")
	ErrNotAuthenticated = errors.New("store is not authenticated")
)

// Config is the parameter set read under a provider's prefix.
type Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	RoleARN         string
	SecretID        string
	Provision       providers.Provision
}

// LoadConfig reads an AWS Secrets Manager provider's parameters.
func LoadConfig(ctx context.Context, p providers.Params) (Config, error) {
	var cfg Config
	var err error

	if cfg.Region, err = p.Require(ctx, "REGION"); err != nil {
		return cfg, err
	}
	conn, err := p.Connection(ctx, 0)
	if err != nil {
		return cfg, err
	}
	if conn.URL != "" || conn.Host != "" {
		if cfg.Endpoint, err = conn.Address(); err != nil {
			return cfg, err
		}
	}
	if cfg.AccessKeyID, err = p.Optional(ctx, "LOGIN_ID", ""); err != nil {
		return cfg, err
	}
	if cfg.AccessKeyID != "" {
		if cfg.SecretAccessKey, err = p.Require(ctx, "LOGIN_PASS"); err != nil {
			return cfg, err
		}
	}
	if cfg.RoleARN, err = p.Optional(ctx, "ROLE", ""); err != nil {
		return cfg, err
	}
	if cfg.SecretID, err = p.Require(ctx, "SECRET_PATH"); err != nil {
		return cfg, err
	}
	if cfg.Provision, err = p.Provision(ctx); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Kind registers AWS Secrets Manager with provider discovery.
func Kind() providers.Kind {
	return providers.Kind{Match: KindName, Build: Build}
}

// Build constructs an unauthenticated AWS Secrets Manager provider.
func Build(ctx context.Context, p providers.Params) (*providers.SecretsProvider, error) {
	cfg, err := LoadConfig(ctx, p)
	if err != nil {
		return nil, err
	}

	sp := &providers.SecretsProvider{}
	sp.ConnectionInfo = providers.ConnectionInfo{URL: cfg.Endpoint}
	sp.ProvisionType = cfg.Provision
	sp.Connectivity = providers.ConnectionPool
	sp.Implementation = NewStore(cfg)
	return sp, nil
}

// API is the Secrets Manager call the store makes.
type API interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Store is a providers.SecretStore over Secrets Manager.
type Store struct {
	cfg     Config
	connect func(ctx context.Context, cfg Config) (API, error)
	api     API
}

var _ providers.SecretStore = (*Store)(nil)

func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg, connect: connect}
}

// Authenticate resolves credentials (assuming ROLE when set) and creates
// the Secrets Manager client.
func (s *Store) Authenticate(ctx context.Context) error {
	api, err := s.connect(ctx, s.cfg)
	if err != nil {
		return err
	}
	s.api = api
	logctx.FromContext(ctx).Debug("Connected to AWS Secrets Manager",
		slog.String("region", s.cfg.Region),
		slog.String("endpoint", s.cfg.Endpoint),
		slog.Bool("assumeRole", s.cfg.RoleARN != ""))
	return nil
}

// Fetch reads the secret and decodes its string value as a JSON object.
func (s *Store) Fetch(ctx context.Context) (map[string]any, error) {
	if s.api == nil {
		return nil, ErrNotAuthenticated
	}

	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.cfg.SecretID),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException" {
			return nil, fmt.Errorf("secret %s: %w", s.cfg.SecretID, ErrSecretNotFound)
		}
		return nil, fmt.Errorf("get secret %s: %w", s.cfg.SecretID, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", s.cfg.SecretID)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(*out.SecretString), &data); err != nil {
		return nil, fmt.Errorf("secret %s is not a JSON object: %w", s.cfg.SecretID, err)
	}
	if data == nil {
		return nil, fmt.Errorf("secret %s is not a JSON object", s.cfg.SecretID)
	}
	return data, nil
}

func connect(ctx context.Context, c Config) (API, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	if c.RoleARN != "" {
		stsClient := sts.NewFromConfig(cfg)
		cfg.Credentials = aws.NewCredentialsCache(stscreds.NewAssumeRoleProvider(stsClient, c.RoleARN, func(aro *stscreds.AssumeRoleOptions) {
			aro.RoleSessionName = roleSessionName
			aro.Duration = 60 * time.Minute
		}))
	}

	otelaws.AppendMiddlewares(&cfg.APIOptions)

	if cfg.Credentials == nil {
		return nil, errors.New("no AWS credentials available")
	}
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		return nil, fmt.Errorf("retrieving AWS credentials: %w", err)
	}

	return secretsmanager.NewFromConfig(cfg, func(o *secretsmanager.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	}), nil
}
