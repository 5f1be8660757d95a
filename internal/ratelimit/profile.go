package ratelimit

import (
	"sort"
	"strings"
	"time"
)

// Profile names a logical endpoint class with its own request budget.
type Profile string

const (
	ProfileDefault          Profile = "default"
	ProfileAuth             Profile = "auth"
	ProfileWebhook          Profile = "webhook"
	ProfilePayment          Profile = "payment"
	ProfileUpload           Profile = "upload"
	ProfileSearch           Profile = "search"
	ProfileResourceCreation Profile = "resource_creation"
)

// Config is the budget of one profile: at most MaxRequests admissions per trailing Window.
type Config struct {
	Profile     Profile
	MaxRequests int
	Window      time.Duration
}

var profiles = map[Profile]Config{
	ProfileDefault:          {Profile: ProfileDefault, MaxRequests: 100, Window: time.Minute},
	ProfileAuth:             {Profile: ProfileAuth, MaxRequests: 5, Window: time.Minute},
	ProfileWebhook:          {Profile: ProfileWebhook, MaxRequests: 1000, Window: time.Minute},
	ProfilePayment:          {Profile: ProfilePayment, MaxRequests: 10, Window: time.Minute},
	ProfileUpload:           {Profile: ProfileUpload, MaxRequests: 20, Window: time.Minute},
	ProfileSearch:           {Profile: ProfileSearch, MaxRequests: 50, Window: time.Minute},
	ProfileResourceCreation: {Profile: ProfileResourceCreation, MaxRequests: 30, Window: time.Minute},
}

// ConfigFor returns the budget of p, falling back to the default profile.
func ConfigFor(p Profile) Config {
	if cfg, ok := profiles[p]; ok {
		return cfg
	}
	return profiles[ProfileDefault]
}

// Profiles lists every configured profile ordered by name.
func Profiles() []Config {
	out := make([]Config, 0, len(profiles))
	for _, cfg := range profiles {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Profile < out[j].Profile })
	return out
}

// routePrefixDepth is how many leading path segments name a route class.
const routePrefixDepth = 2

// creationCollections are final path segments whose POST creates a resource.
var creationCollections = map[string]bool{
	"notifications": true,
	"resources":     true,
	"create":        true,
}

// NormalizeEndpoint is the form an endpoint is counted and logged under.
func NormalizeEndpoint(endpoint string) string {
	return strings.ToLower(strings.TrimSpace(endpoint))
}

// ProfileForEndpoint classifies an endpoint given as a profile name, a path or
// "METHOD /path". A path ending in a creation collection is resource creation
// unless a method other than POST is given.
func ProfileForEndpoint(endpoint string) Profile {
	method, path := splitMethod(NormalizeEndpoint(endpoint))
	if _, ok := profiles[Profile(strings.ReplaceAll(path, "-", "_"))]; ok {
		return Profile(strings.ReplaceAll(path, "-", "_"))
	}

	segments := pathSegments(path)
	for _, segment := range segments {
		switch segment {
		case "auth", "login", "signup", "register", "password":
			return ProfileAuth
		case "webhook", "webhooks":
			return ProfileWebhook
		case "payment", "payments", "checkout":
			return ProfilePayment
		case "upload", "uploads":
			return ProfileUpload
		case "search":
			return ProfileSearch
		}
	}

	if n := len(segments); n > 0 && creationCollections[segments[n-1]] && (method == "" || method == "post") {
		return ProfileResourceCreation
	}
	return ProfileDefault
}

// RouteClass is the log key of an HTTP request: profile, method and the first
// path segments. Identifiers deeper in the path share the class, so varying
// them never opens a fresh budget.
func RouteClass(method, path string) string {
	method = NormalizeEndpoint(method)
	segments := pathSegments(NormalizeEndpoint(path))
	if len(segments) > routePrefixDepth {
		segments = segments[:routePrefixDepth]
	}
	profile := ProfileForEndpoint(method + " " + path)
	return string(profile) + ":" + method + " /" + strings.Join(segments, "/")
}

func splitMethod(endpoint string) (method, path string) {
	if m, rest, ok := strings.Cut(endpoint, " "); ok && !strings.HasPrefix(m, "/") {
		return m, strings.TrimSpace(rest)
	}
	return "", endpoint
}

func pathSegments(path string) []string {
	var segments []string
	for _, s := range strings.Split(strings.Trim(path, "/"), "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
