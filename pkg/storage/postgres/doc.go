// Package postgres provides the PostgreSQL connection pool, schema
// migrations and the optional Redis connection.
//
// PostgreSQL is the single source of truth for every authorization
// decision: users, workspaces, memberships, roles and grants are read
// fresh on each request. Redis only backs the distributed login rate
// limiter and the service runs without it.
package postgres
