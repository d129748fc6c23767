// Package migrations embeds the SQL applied to tenant and control-plane
// databases.
package migrations

import "embed"

// Tenant holds the schema applied to every freshly provisioned tenant
// database, in lexical order.
//
//go:embed tenant/*.sql
var Tenant embed.FS

// ControlPlane holds the schema for the service's own database.
//
//go:embed controlplane/*.sql
var ControlPlane embed.FS
