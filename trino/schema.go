// Package trino implements the row-filter and column-masking engine Trino's
// OPA-backed access-control plugin calls into: translating Trino's resource
// shapes into the cached decision layer's query shape, and applying the
// YAML-configured row-filter/column-mask rules on top of the decisions OPA
// returns.
package trino

// Request is the {"input": ...} envelope every Trino-facing endpoint is
// posted with.
type Request[T any] struct {
	Input T `json:"input"`
}

// Response is the {"result": ...} envelope every Trino-facing endpoint
// replies with.
type Response[T any] struct {
	Result T `json:"result"`
}

// Identity is the Trino user/group context attached to every authz request.
type Identity struct {
	User   string   `json:"user"`
	Groups []string `json:"groups"`
}

// SoftwareStack carries the Trino server version, used to build the sdk
// string on outbound OPA queries.
type SoftwareStack struct {
	TrinoVersion string `json:"trinoVersion"`
}

// Context wraps Identity and SoftwareStack, present on every request.
type Context struct {
	Identity      Identity      `json:"identity"`
	SoftwareStack SoftwareStack `json:"softwareStack"`
}

// NamedEntity is a bare name, used for catalogs and system session
// properties.
type NamedEntity struct {
	Name string `json:"name"`
}

// Table identifies a catalog/schema/table, optionally scoped to specific
// columns (used by SelectFromColumns-style operations).
type Table struct {
	CatalogName string   `json:"catalogName"`
	SchemaName  string   `json:"schemaName"`
	TableName   string   `json:"tableName"`
	Columns     []string `json:"columns,omitempty"`
}

// Schema identifies a catalog/schema pair.
type Schema struct {
	CatalogName string `json:"catalogName"`
	SchemaName  string `json:"schemaName"`
}

// Function identifies a catalog function by its schema and name.
type Function struct {
	Schema       Schema `json:"schema"`
	FunctionName string `json:"functionName"`
}

// TrinoUser identifies the Trino system-level "user" resource (used for
// impersonation checks).
type TrinoUser struct {
	User string `json:"user"`
}

// Resource is the tagged union of everything Trino can ask authorization
// for. Exactly one field is populated per request; Go has no sum type for
// this, so every field is a pointer and nil means "not this variant".
type Resource struct {
	Table                  *Table       `json:"table,omitempty"`
	Schema                 *Schema      `json:"schema,omitempty"`
	Catalog                *NamedEntity `json:"catalog,omitempty"`
	Function               *Function    `json:"function,omitempty"`
	User                   *TrinoUser   `json:"user,omitempty"`
	SystemSessionProperty  *NamedEntity `json:"systemSessionProperty,omitempty"`
	CatalogSessionProperty *NamedEntity `json:"catalogSessionProperty,omitempty"`
}

// ColumnMaskColumn identifies a single column within a batch column-mask
// request.
type ColumnMaskColumn struct {
	CatalogName string `json:"catalogName"`
	SchemaName  string `json:"schemaName"`
	TableName   string `json:"tableName"`
	ColumnName  string `json:"columnName"`
	ColumnType  string `json:"columnType"`
}

// ColumnMaskFilterResource wraps one column entry of a batch column-mask
// request's filterResources list.
type ColumnMaskFilterResource struct {
	Column ColumnMaskColumn `json:"column"`
}

// AllowAction is the /trino/allowed request's action payload.
type AllowAction struct {
	Operation       string     `json:"operation"`
	Resource        *Resource  `json:"resource,omitempty"`
	FilterResources []Resource `json:"filterResources,omitempty"`
}

// AuthzQuery is the /trino/allowed request body's "input".
type AuthzQuery struct {
	Context Context     `json:"context"`
	Action  AllowAction `json:"action"`
}

// RowFilterAction is the /trino/row-filter request's action payload — the
// resource is always a table.
type RowFilterAction struct {
	Operation string `json:"operation"`
	Resource  Resource `json:"resource"`
}

// RowFilterQuery is the /trino/row-filter request body's "input".
type RowFilterQuery struct {
	Context Context         `json:"context"`
	Action  RowFilterAction `json:"action"`
}

// RowFilterResult is one emitted row-filter expression.
type RowFilterResult struct {
	Expression string `json:"expression"`
}

// ColumnMaskAction is the /trino/batch-column-masking request's action
// payload.
type ColumnMaskAction struct {
	Operation       string                     `json:"operation"`
	FilterResources []ColumnMaskFilterResource `json:"filterResources"`
}

// ColumnMaskQuery is the /trino/batch-column-masking request body's "input".
type ColumnMaskQuery struct {
	Context Context          `json:"context"`
	Action  ColumnMaskAction `json:"action"`
}

// ViewExpression is the SQL masking expression Trino should apply,
// optionally evaluated as a different identity.
type ViewExpression struct {
	Expression string  `json:"expression"`
	Identity   *string `json:"identity,omitempty"`
}

// ColumnMaskResult is one emitted mask, tagged with the original request
// index so the caller can apply it to the right column.
type ColumnMaskResult struct {
	Index          int            `json:"index"`
	ViewExpression ViewExpression `json:"viewExpression"`
}
