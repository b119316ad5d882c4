package backend

import (
	"context"
	"fmt"
	"net/http"
)

// ManagePersistentSession tells the backend whether this device should
// keep a long-lived session.
func (c *Client) ManagePersistentSession(ctx context.Context, accessToken, fingerprint string, persist bool) error {
	body := map[string]any{
		"device_fingerprint": fingerprint,
		"persist":            persist,
	}
	if err := c.do(ctx, http.MethodPost, "/rest/v1/rpc/manage_persistent_session", accessToken, body, nil); err != nil {
		return fmt.Errorf("managing persistent session: %w", err)
	}
	return nil
}

// TrustDevice registers this device as trusted for the signed-in user.
func (c *Client) TrustDevice(ctx context.Context, accessToken, fingerprint, name string) error {
	body := map[string]string{
		"device_fingerprint": fingerprint,
		"device_name":        name,
	}
	if err := c.do(ctx, http.MethodPost, "/rest/v1/rpc/trust_device", accessToken, body, nil); err != nil {
		return fmt.Errorf("trusting device: %w", err)
	}
	return nil
}
