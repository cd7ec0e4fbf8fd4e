package sqlassets

import _ "embed"

//go:embed schema/hub/systems.sql
var SystemsSQL string

//go:embed schema/hub/tenants.sql
var TenantsSQL string

//go:embed schema/hub/users.sql
var UsersSQL string

//go:embed schema/hub/memberships.sql
var MembershipsSQL string

//go:embed schema/hub/sessions.sql
var SessionsSQL string

// TenantTemplateSQL is the default schema applied to newly provisioned tenant databases
// when no template path is configured.
//
//go:embed schema/tenant_template/default.sql
var TenantTemplateSQL string

// HubSchema returns the hub DDL files in dependency order.
func HubSchema() []string {
	return []string{SystemsSQL, TenantsSQL, UsersSQL, MembershipsSQL, SessionsSQL}
}
