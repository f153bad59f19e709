// Package middleware provides the HTTP middleware for the supervisor API.
//
//   - CORS: cross-origin policy, origins taken from CORS_ORIGINS
//   - RateLimit: per-IP token bucket; idle clients are forgotten
//   - GlobalRateLimit: one bucket shared by every client
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.CORSFromConfig(cfg.Server)))
//	router.Use(middleware.RateLimit(middleware.RateLimitFromConfig(cfg.RateLimit)))
package middleware
