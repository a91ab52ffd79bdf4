package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/resource-allocator/ractl/pkg/ractl/auth"
)

const (
	loginEndpoint      = "login"
	loginAzureEndpoint = "login_azure"
	registerEndpoint   = "register"
)

var _ auth.LoginAPI = (*Client)(nil)

type passwordLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type codeExchangeRequest struct {
	Code        string `json:"code"`
	Email       string `json:"email"`
	RedirectURI string `json:"redirect_uri"`
}

type authorizationURLResponse struct {
	AuthURL string `json:"auth_url"`
}

func (c *Client) PasswordLogin(ctx context.Context, email, password string) (auth.LoginResponse, error) {
	var resp auth.LoginResponse
	err := c.do(ctx, request{
		method:    http.MethodPost,
		endpoint:  loginEndpoint,
		body:      passwordLoginRequest{Email: email, Password: password},
		anonymous: true,
	}, &resp)
	return resp, err
}

// AuthorizationURL asks the server where to send the user for an
// interactive login that redirects back to redirectURI.
func (c *Client) AuthorizationURL(ctx context.Context, redirectURI string) (string, error) {
	var resp authorizationURLResponse
	err := c.do(ctx, request{
		method:    http.MethodGet,
		endpoint:  loginAzureEndpoint,
		query:     url.Values{"redirect_uri": {redirectURI}},
		anonymous: true,
	}, &resp)
	return resp.AuthURL, err
}

func (c *Client) ExchangeCode(ctx context.Context, code, email, redirectURI string) (auth.LoginResponse, error) {
	var resp auth.LoginResponse
	err := c.do(ctx, request{
		method:    http.MethodPost,
		endpoint:  loginAzureEndpoint,
		body:      codeExchangeRequest{Code: code, Email: email, RedirectURI: redirectURI},
		anonymous: true,
	}, &resp)
	return resp, err
}

func (c *Client) Register(ctx context.Context, req auth.RegisterRequest) (auth.LoginResponse, error) {
	var resp auth.LoginResponse
	err := c.do(ctx, request{
		method:    http.MethodPost,
		endpoint:  registerEndpoint,
		body:      req,
		anonymous: true,
	}, &resp)
	return resp, err
}
