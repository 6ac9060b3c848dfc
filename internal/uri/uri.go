// Package uri resolves resource references found in page markup against the
// document they came from. Resolution is purely textual: no network access,
// no percent-decoding, and malformed input degrades to concatenation.
package uri

import "strings"

var absolutePrefixes = []string{"http://", "https://", "file://", "data:"}

const defaultScheme = "http"

// Resolve turns ref into an absolute URI using the document base URI and the
// document origin (host, with port when present).
//
//	absolute (http, https, file, data) -> unchanged
//	//host/path                         -> <scheme>://host/path
//	/path                               -> <scheme>://<origin>/path
//	anything else                       -> base up to its last '/' + ref
//
// The scheme is taken from base.
func Resolve(ref, base, origin string) string {
	return resolve(ref, base, Scheme(base), origin)
}

// Resolver carries the per-document inputs for Resolve. The scheme comes from
// DocumentURI, falling back to BaseURI when the document URI has none.
type Resolver struct {
	DocumentURI string
	BaseURI     string
	Origin      string
}

// Resolve resolves ref against the resolver's document.
func (r Resolver) Resolve(ref string) string {
	scheme := defaultScheme
	if hasScheme(r.DocumentURI) {
		scheme = Scheme(r.DocumentURI)
	} else if hasScheme(r.BaseURI) {
		scheme = Scheme(r.BaseURI)
	}
	base := r.BaseURI
	if base == "" {
		base = r.DocumentURI
	}
	return resolve(ref, base, scheme, r.Origin)
}

// Scheme returns the part of u before "://", or "http" when u has none.
func Scheme(u string) string {
	if i := strings.Index(u, "://"); i > 0 {
		return u[:i]
	}
	return defaultScheme
}

// IsAbsolute reports whether ref already carries one of the accepted schemes.
func IsAbsolute(ref string) bool {
	lower := strings.ToLower(ref)
	for _, p := range absolutePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func hasScheme(u string) bool { return strings.Index(u, "://") > 0 }

func resolve(ref, base, scheme, origin string) string {
	switch {
	case IsAbsolute(ref):
		return ref
	case strings.HasPrefix(ref, "//"):
		return scheme + "://" + ref[2:]
	case strings.HasPrefix(ref, "/"):
		return scheme + "://" + origin + ref
	}
	i := strings.LastIndexByte(base, '/')
	if i < 0 {
		return base + "/" + ref
	}
	return base[:i+1] + ref
}

// IsScript reports whether v uses a scheme that executes code when followed.
// Browsers ignore whitespace and control characters inside the scheme, so
// they are skipped here too.
func IsScript(v string) bool {
	var b strings.Builder
	for _, r := range v {
		if r <= ' ' {
			continue
		}
		b.WriteRune(r)
		if b.Len() > len("javascript:") {
			break
		}
	}
	s := strings.ToLower(b.String())
	return strings.HasPrefix(s, "javascript:") || strings.HasPrefix(s, "vbscript:")
}
