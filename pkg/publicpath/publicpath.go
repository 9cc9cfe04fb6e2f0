package publicpath

import "strings"

type matchKind int

const (
	matchExact matchKind = iota
	matchPrefix
	matchSubtree
)

// Rule matches a request path. Rules are evaluated in order; the first match
// wins, so narrow rules should precede broad ones.
type Rule struct {
	kind matchKind
	path string
}

// Exact matches the path itself and nothing else.
func Exact(path string) Rule {
	return Rule{kind: matchExact, path: path}
}

// Prefix matches any path beginning with the given literal prefix.
func Prefix(prefix string) Rule {
	return Rule{kind: matchPrefix, path: prefix}
}

// Subtree matches the path itself and anything nested under it.
func Subtree(path string) Rule {
	return Rule{kind: matchSubtree, path: strings.TrimSuffix(path, "/")}
}

func (r Rule) match(path string) bool {
	switch r.kind {
	case matchExact:
		return path == r.path
	case matchPrefix:
		return strings.HasPrefix(path, r.path)
	case matchSubtree:
		return path == r.path || strings.HasPrefix(path, r.path+"/")
	default:
		return false
	}
}

// Classifier decides whether an outgoing request target is public (never
// receives forced credential attachment) and whether it is an auth endpoint
// (a 401 from which must never trigger refresh-and-retry). It is a pure
// predicate: no side effects, no network access.
type Classifier struct {
	auth   []Rule
	public []Rule
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithAuthRules replaces the auth-endpoint rule set.
func WithAuthRules(rules ...Rule) Option {
	return func(c *Classifier) { c.auth = rules }
}

// WithPublicRules replaces the public rule set. Auth endpoints stay public
// regardless; these rules cover the rest of the unauthenticated surface.
func WithPublicRules(rules ...Rule) Option {
	return func(c *Classifier) { c.public = rules }
}

// New creates a Classifier with the storefront's default rule sets, which
// options may replace.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		auth:   defaultAuthRules(),
		public: defaultPublicRules(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsPublic reports whether the path must function without a credential.
// Auth endpoints are public by definition.
func (c *Classifier) IsPublic(path string) bool {
	if c.IsAuthEndpoint(path) {
		return true
	}
	for _, r := range c.public {
		if r.match(path) {
			return true
		}
	}
	return false
}

// IsAuthEndpoint reports whether the path belongs to the login/refresh/validate
// surface. A 401 from these endpoints means the renewal machinery itself
// failed; retrying through it again would recurse forever.
func (c *Classifier) IsAuthEndpoint(path string) bool {
	for _, r := range c.auth {
		if r.match(path) {
			return true
		}
	}
	return false
}

// The backend has shipped several equivalent spellings of the auth surface
// over time, with and without the /api prefix. All variants stay listed so a
// deployment behind either proxy layout classifies correctly.
func defaultAuthRules() []Rule {
	return []Rule{
		Exact("/api/auth/user/login"),
		Exact("/auth/user/login"),
		Exact("/api/auth/admin/login"),
		Exact("/auth/admin/login"),
		Exact("/api/auth/refresh"),
		Exact("/auth/refresh"),
		Exact("/auth/user/refresh"),
		Exact("/api/auth/user/refresh"),
		Exact("/api/auth/validate"),
		Exact("/auth/validate"),
		Exact("/api/auth/user/validate"),
		Exact("/auth/user/validate"),
	}
}

func defaultPublicRules() []Rule {
	return []Rule{
		Subtree("/api/auth/email-verify"),
		Prefix("/api/ai/public/"),
		Prefix("/uploads/"),
		Prefix("/api/notices/"),
		Prefix("/api/faqs/"),
		Prefix("/api/products/"),
		Exact("/api/pay/webhook"),
	}
}
