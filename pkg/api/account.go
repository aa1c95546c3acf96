package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
)

// UserInfo is the signed-in user's profile.
type UserInfo struct {
	Oid      string `json:"oid"              yaml:"oid"`
	ID       int64  `json:"id"               yaml:"id"`
	Username string `json:"username"         yaml:"username"`
	Name     string `json:"name"             yaml:"name"`
	Avatar   string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
	Status   int    `json:"status"           yaml:"status"`
}

// SignInResult is returned by SignIn.
type SignInResult struct {
	Token            string   `json:"token"`
	Access           []string `json:"access"`
	UserInfo         UserInfo `json:"userInfo"`
	InstalledPlugins []string `json:"installedPlugins"`
	IsLocalhost      bool     `json:"isLocalhost"`
}

// UserDetail is returned by UserInfo.
type UserDetail struct {
	ID           int64    `json:"id"               yaml:"id"`
	Oid          string   `json:"oid"              yaml:"oid"`
	Name         string   `json:"name,omitempty"   yaml:"name,omitempty"`
	Avatar       string   `json:"avatar,omitempty" yaml:"avatar,omitempty"`
	Roles        []string `json:"roles"            yaml:"roles"`
	Status       int      `json:"status"           yaml:"status"`
	CreateAt     string   `json:"createAt,omitempty" yaml:"createAt,omitempty"`
	IsSuperAdmin bool     `json:"isSuperAdmin"     yaml:"isSuperAdmin"`
}

// hashPassword hex-encodes the sha256 of a password; the backend never
// receives plaintext.
func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// SignIn authenticates and, on success, installs the returned token on c.
func (c *Client) SignIn(ctx context.Context, username, password, lang string) (*SignInResult, error) {
	body := map[string]string{
		"username": username,
		"password": hashPassword(password),
		"lang":     lang,
	}
	var out SignInResult
	if err := c.call(ctx, http.MethodPost, "/user/sign-in", body, &out); err != nil {
		return nil, err
	}
	if out.Token != "" {
		c.SetToken(out.Token)
	}
	return &out, nil
}

// UserInfo fetches a user's profile.
func (c *Client) UserInfo(ctx context.Context, username string) (*UserDetail, error) {
	var out UserDetail
	if err := c.call(ctx, http.MethodGet, "/user/info/"+url.PathEscape(username), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword updates the caller's password.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) (bool, error) {
	body := map[string]string{
		"oldPassword": hashPassword(oldPassword),
		"newPassword": hashPassword(newPassword),
	}
	var ok bool
	if err := c.call(ctx, http.MethodPut, "/user/password", body, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// GetSetting returns the value of a user setting, or nil when unset.
func (c *Client) GetSetting(ctx context.Context, key string) (map[string]any, error) {
	var out map[string]any
	if err := c.call(ctx, http.MethodGet, "/user-settings/"+url.PathEscape(key), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertSetting creates or replaces a user setting and returns the stored value.
func (c *Client) UpsertSetting(ctx context.Context, key string, value map[string]any, description string) (map[string]any, error) {
	body := map[string]any{"value": value}
	if description != "" {
		body["description"] = description
	}
	var out map[string]any
	if err := c.call(ctx, http.MethodPut, "/user-settings/"+url.PathEscape(key), body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteSetting removes a user setting.
func (c *Client) DeleteSetting(ctx context.Context, key string) error {
	return c.call(ctx, http.MethodDelete, "/user-settings/"+url.PathEscape(key), nil, nil)
}

// ServerVersion returns the backend version string.
func (c *Client) ServerVersion(ctx context.Context) (string, error) {
	var v string
	if err := c.call(ctx, http.MethodGet, "/system-info/version", nil, &v); err != nil {
		return "", err
	}
	return v, nil
}

// FormatResult is the outcome of server-side code formatting.
type FormatResult struct {
	FormattedCode string `json:"formattedCode"`
	Changed       bool   `json:"changed"`
	Formatter     string `json:"formatter"`
}

// FormatPython formats report source with black on the backend. Failures are
// never raised on the notification channel; callers fall back to the
// unformatted code.
func (c *Client) FormatPython(ctx context.Context, code string, lineLength int) (*FormatResult, error) {
	body := map[string]any{"code": code}
	if lineLength > 0 {
		body["lineLength"] = lineLength
	}
	var out FormatResult
	if err := c.call(ctx, http.MethodPost, "/code-format/python/black", body, &out, StopNotifyError()); err != nil {
		return nil, err
	}
	return &out, nil
}
