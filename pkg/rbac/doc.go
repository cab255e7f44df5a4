// Package rbac implements the module/action permission model: the
// permission evaluator, the role/permission registry store and REST
// handlers, and the per-route enforcement middleware.
//
// Permissions are (module, action) pairs joined to roles through a
// grant table. An actor's effective set is read fresh from the store on
// every request; nothing permission-relevant is cached, so a registry
// edit is visible on the affected members' very next request. The
// user-level super-admin flag bypasses the tables entirely and is
// checked before any lookup.
//
// The reserved admin role name exists only as a display label. It can
// never be edited or deleted through the registry and carries no grant
// rows of its own.
package rbac
