package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSConfig controls which admin UIs may call the API from a browser.
// An origin entry may be "*", an exact origin, or a subdomain wildcard such
// as "https://*.portal.example.com".
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodOptions,
		},
		AllowHeaders:  []string{"Authorization", "Content-Type", HeaderXRequestID},
		ExposeHeaders: []string{HeaderXRequestID, "X-API-Version"},
		MaxAge:        600,
	}
}

// matchOrigin reports the value for Access-Control-Allow-Origin, or "".
func (cfg CORSConfig) matchOrigin(origin string) string {
	for _, o := range cfg.AllowOrigins {
		switch {
		case o == "*":
			// browsers reject "*" on credentialed requests
			if cfg.AllowCredentials && origin != "" {
				return origin
			}
			return "*"
		case o == origin:
			return origin
		case origin != "" && strings.Contains(o, "://*."):
			scheme, suffix, _ := strings.Cut(o, "*")
			if strings.HasPrefix(origin, scheme) && strings.HasSuffix(origin, suffix) &&
				len(origin) > len(scheme)+len(suffix) {
				return origin
			}
		}
	}
	return ""
}

func CORS(config CORSConfig) gin.HandlerFunc {
	methods := strings.Join(config.AllowMethods, ", ")
	headers := strings.Join(config.AllowHeaders, ", ")
	expose := strings.Join(config.ExposeHeaders, ", ")
	maxAge := strconv.Itoa(config.MaxAge)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := config.matchOrigin(origin)

		if allowed != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			h.Set("Access-Control-Expose-Headers", expose)
			if config.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if allowed != "*" {
				h.Add("Vary", "Origin")
			}
		}

		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}

		// preflight
		if allowed != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			h.Set("Access-Control-Max-Age", maxAge)
		}
		c.AbortWithStatus(http.StatusNoContent)
	}
}
