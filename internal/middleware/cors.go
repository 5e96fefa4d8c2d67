package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	// AllowedOrigins is a list of allowed origins. Use ["*"] to allow all origins.
	AllowedOrigins []string
	// AllowedMethods is a list of allowed HTTP methods
	AllowedMethods []string
	// AllowedHeaders is a list of allowed headers
	AllowedHeaders []string
	// AllowCredentials indicates whether the request can include user credentials
	AllowCredentials bool
	// MaxAge indicates how long (in seconds) the results of a preflight request can be cached
	MaxAge int
}

type cors struct {
	config         CORSConfig
	allowedOrigins map[string]bool
	allowedHeaders map[string]bool
}

// CORS returns middleware that answers preflight requests and sets the
// allow-origin headers for the static dashboard
func CORS(config CORSConfig) Middleware {
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}
	if len(config.AllowedMethods) == 0 {
		config.AllowedMethods = []string{http.MethodGet, http.MethodOptions}
	}

	c := &cors{
		config:         config,
		allowedOrigins: make(map[string]bool, len(config.AllowedOrigins)),
		allowedHeaders: make(map[string]bool, len(config.AllowedHeaders)),
	}
	for _, origin := range config.AllowedOrigins {
		c.allowedOrigins[strings.ToLower(origin)] = true
	}
	for _, header := range config.AllowedHeaders {
		c.allowedHeaders[strings.ToLower(header)] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				c.handlePreflight(w, r, origin)
				return
			}

			c.setOrigin(w, origin)
			next.ServeHTTP(w, r)
		})
	}
}

func (c *cors) handlePreflight(w http.ResponseWriter, r *http.Request, origin string) {
	headers := w.Header()
	c.setOrigin(w, origin)

	if c.isMethodAllowed(r.Header.Get("Access-Control-Request-Method")) {
		headers.Set("Access-Control-Allow-Methods", strings.Join(c.config.AllowedMethods, ", "))
	}

	if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" && c.areHeadersAllowed(reqHeaders) {
		headers.Set("Access-Control-Allow-Headers", reqHeaders)
	}

	if c.config.MaxAge > 0 {
		headers.Set("Access-Control-Max-Age", strconv.Itoa(c.config.MaxAge))
	}

	w.WriteHeader(http.StatusNoContent)
}

func (c *cors) setOrigin(w http.ResponseWriter, origin string) {
	if !c.isOriginAllowed(origin) {
		return
	}
	headers := w.Header()
	headers.Set("Access-Control-Allow-Origin", origin)
	headers.Add("Vary", "Origin")
	if c.config.AllowCredentials {
		headers.Set("Access-Control-Allow-Credentials", "true")
	}
}

func (c *cors) isOriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	if c.allowedOrigins["*"] {
		return true
	}
	return c.allowedOrigins[strings.ToLower(origin)]
}

func (c *cors) isMethodAllowed(method string) bool {
	for _, allowed := range c.config.AllowedMethods {
		if strings.EqualFold(allowed, method) {
			return true
		}
	}
	return false
}

func (c *cors) areHeadersAllowed(headers string) bool {
	if c.allowedHeaders["*"] {
		return true
	}
	for _, header := range strings.Split(headers, ",") {
		if !c.allowedHeaders[strings.TrimSpace(strings.ToLower(header))] {
			return false
		}
	}
	return true
}
