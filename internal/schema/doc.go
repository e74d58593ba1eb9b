// Package schema holds the entity catalog: tables, columns, derived query
// attributes and relations. It resolves association targets for the plan
// builder and the loader, and renders CREATE TABLE statements for the
// supported SQL dialects.
package schema
