// Package api contains transport-facing API implementations.
//
// The http subpackage exposes the template, profile, feedback, metrics and
// export services over a chi router. Admin-only routes (template mutations,
// feedback review, training export) require a verified admin grant; tenant
// routes take the tenant id from the path.
//
// Operator tooling lives under internal/mcp instead and shares the same
// service layer, so both surfaces enforce identical semantics.
package api
