package sdk

import (
	"context"
	"net/http"

	"github.com/frostu8/nymph/pkg/api"
)

// ProxyToken mints a delegated token for a Discord user. It always uses the
// service key, whatever mode c is in.
func (c *Client) ProxyToken(ctx context.Context, discordID, displayName string) (string, error) {
	var resp api.ProxyTokenResponse
	err := c.service().Send(ctx, Request{
		Method: http.MethodPost,
		Path:   "/users/proxy",
		Body:   api.ProxyTokenRequest{DiscordID: discordID, DisplayName: displayName},
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// UpsertDiscordUser creates or renames the principal linked to a Discord
// account. When a token is generated it is also placed in the credential
// cache, so a following delegated call does not mint again.
func (c *Client) UpsertDiscordUser(ctx context.Context, in api.DiscordUserRequest) (*api.DiscordUserResponse, error) {
	var resp api.DiscordUserResponse
	err := c.service().Send(ctx, Request{
		Method: http.MethodPost,
		Path:   "/users/discord",
		Body:   in,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.AccessToken != nil {
		c.cache.Put(ctx, discordCacheKey(in.DiscordID), *resp.AccessToken)
	}
	return &resp, nil
}

// WhoAmI describes the principal c authenticates as.
func (c *Client) WhoAmI(ctx context.Context) (*api.WhoAmIResponse, error) {
	var resp api.WhoAmIResponse
	if err := c.Send(ctx, Request{Method: http.MethodGet, Path: "/users/me"}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
