// Package middleware provides HTTP middleware for the ingest API.
//
// It includes:
//   - Request logging in W3C Extended Log Format, with optional health check filtering
//   - Prometheus request metrics labelled by route template
//   - A request body limit for upload routes
package middleware
