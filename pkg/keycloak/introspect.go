package keycloak

import (
	"context"
	"net/url"

	sserr "github.com/StricklySoft/stricklysoft-auth/pkg/errors"
)

// IntrospectionRequest carries the inputs for an RFC 7662 token
// introspection call.
type IntrospectionRequest struct {
	// Token is the opaque or JWT token to introspect.
	Token string

	// Client identifies the confidential client performing the
	// introspection. Keycloak requires client authentication on the
	// introspection endpoint, so ClientSecret must be set.
	Client ClientConfig
}

// IntrospectionClient performs OAuth2 token introspection (RFC 7662)
// against the realm's introspection endpoint, through the circuit-breaker
// gateway.
//
// Safe for concurrent use.
type IntrospectionClient struct {
	gateway   *gateway
	discovery *DiscoveryCache
}

func newIntrospectionClient(gw *gateway, discovery *DiscoveryCache) *IntrospectionClient {
	return &IntrospectionClient{gateway: gw, discovery: discovery}
}

// Introspect posts the token to the realm's introspection endpoint and
// returns the provider's response. A response with Active=false is a
// successful call, not an error; callers must treat it as "credential
// rejected". Errors indicate the endpoint itself failed: unreachable,
// non-2xx, malformed response, or circuit open.
//
// A missing client secret is a configuration error raised before any
// network I/O, since Keycloak's introspection endpoint always requires
// client authentication.
func (c *IntrospectionClient) Introspect(ctx context.Context, req IntrospectionRequest) (*IntrospectionResponse, error) {
	if req.Token == "" {
		return nil, sserr.New(sserr.CodeValidationRequired,
			"keycloak: introspection token is required")
	}
	if len(req.Token) > maxTokenSize {
		return nil, sserr.Newf(sserr.CodeAuthenticationInvalid,
			"keycloak: token exceeds maximum size of %d bytes", maxTokenSize)
	}
	if err := req.Client.Validate(); err != nil {
		return nil, err
	}
	if req.Client.ClientSecret.Value() == "" {
		return nil, sserr.Newf(sserr.CodeInternalConfiguration,
			"keycloak: client %q has no client secret configured for introspection",
			req.Client.ClientID)
	}

	doc, err := c.discovery.Get(ctx, req.Client.Realm)
	if err != nil {
		return nil, err
	}
	if doc.IntrospectionEndpoint == "" {
		return nil, sserr.Newf(sserr.CodeInternalConfiguration,
			"keycloak: realm %q discovery document has no introspection_endpoint",
			req.Client.Realm)
	}

	form := url.Values{}
	form.Set("token", req.Token)
	form.Set("token_type_hint", "access_token")

	var resp IntrospectionResponse
	err = c.gateway.postForm(ctx, "introspection", doc.IntrospectionEndpoint, form,
		req.Client.ClientID, req.Client.ClientSecret.Value(), &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
