// Package api wires the HTTP surface: login and registration, session
// introspection, workspace member and invitation management, and the
// role/permission registry. Handlers stay thin; all authorization
// decisions happen in the middleware chain and the rbac evaluator.
package api
