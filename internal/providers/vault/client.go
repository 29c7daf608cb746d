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

package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/vault/api"
	"github.com/hashicorp/vault/api/auth/approle"
)

// Client is the slice of the Vault API the store needs.
type Client interface {
	Unwrap(ctx context.Context, wrappingToken string) (string, error)
	Login(ctx context.Context, roleID, secretID string) error
	ReadKV2(ctx context.Context, mount, path string) (map[string]any, error)
}

type apiClient struct {
	c *api.Client
}

func newAPIClient(address, token string) (*apiClient, error) {
	cfg := api.DefaultConfig()
	if cfg.Error != nil {
		return nil, fmt.Errorf("vault client config: %w", cfg.Error)
	}
	cfg.Address = address

	c, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if token != "" {
		c.SetToken(token)
	}
	return &apiClient{c: c}, nil
}

func (a *apiClient) Unwrap(ctx context.Context, wrappingToken string) (string, error) {
	secret, err := a.c.Logical().UnwrapWithContext(ctx, wrappingToken)
	if err != nil {
		return "", err
	}
	if secret == nil || secret.Data == nil {
		return "", errors.New("empty unwrap response")
	}
	id, ok := secret.Data["secret_id"].(string)
	if !ok || id == "" {
		return "", errors.New("unwrap response carries no secret_id")
	}
	return id, nil
}

func (a *apiClient) Login(ctx context.Context, roleID, secretID string) error {
	auth, err := approle.NewAppRoleAuth(roleID, &approle.SecretID{FromString: secretID})
	if err != nil {
		return err
	}
	secret, err := a.c.Auth().Login(ctx, auth)
	if err != nil {
		return err
	}
	if secret == nil || secret.Auth == nil {
		return errors.New("login returned no auth info")
	}
	return nil
}

func (a *apiClient) ReadKV2(ctx context.Context, mount, path string) (map[string]any, error) {
	secret, err := a.c.KVv2(mount).Get(ctx, path)
	if err != nil {
		if errors.Is(err, api.ErrSecretNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if secret == nil {
		return nil, nil
	}
	return secret.Data, nil
}
