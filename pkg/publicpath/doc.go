// Package publicpath classifies outgoing request paths for the transport
// interceptor.
//
// Public paths (login, refresh, validate, public catalog reads, uploaded
// assets) function without a credential and must not receive one unless the
// caller forces attachment. Auth-endpoint paths are the subset whose 401
// responses must never trigger another refresh attempt.
//
// The default rule sets cover the storefront backend's known path variants;
// custom sets can be supplied for tests or non-default deployments:
//
//	c := publicpath.New(publicpath.WithPublicRules(
//	    publicpath.Prefix("/api/catalog/"),
//	))
package publicpath
