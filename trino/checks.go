package trino

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/permitio/pdp-sidecar/opaclient"
)

// resourceTagSystem is the "trino_sys" tag used for user/session-property/
// no-resource checks, which all share one system-level permission.
const resourceTagSystem = "trino_sys"

// tableTag synthesizes the resource tag a Trino table maps to.
func tableTag(catalog, schema, table string) string {
	return fmt.Sprintf("trino_table_%s_%s_%s", catalog, schema, table)
}

// columnTag synthesizes the resource tag a single column within a table
// maps to.
func columnTag(catalog, schema, table, column string) string {
	return fmt.Sprintf("trino_column_%s_%s_%s_%s", catalog, schema, table, column)
}

// schemaTag synthesizes the resource tag a Trino schema maps to.
func schemaTag(catalog, schema string) string {
	return fmt.Sprintf("trino_schema_%s_%s", catalog, schema)
}

// catalogTag synthesizes the resource tag a Trino catalog maps to.
func catalogTag(catalog string) string {
	return fmt.Sprintf("trino_catalog_%s", catalog)
}

// functionTag synthesizes the resource tag a Trino catalog function maps
// to.
func functionTag(catalog, schema, fn string) string {
	return fmt.Sprintf("trino_function_%s_%s_%s", catalog, schema, fn)
}

// resourceTagFor maps a Trino Resource to its synthesized permit.io
// resource tag. ok is false for a resource variant this sidecar does not
// recognize (a future Trino resource kind), in which case the caller
// should deny and log rather than query OPA with a bogus tag.
func resourceTagFor(r *Resource) (tag string, ok bool) {
	switch {
	case r == nil:
		return resourceTagSystem, true
	case r.Table != nil:
		return tableTag(r.Table.CatalogName, r.Table.SchemaName, r.Table.TableName), true
	case r.Schema != nil:
		return schemaTag(r.Schema.CatalogName, r.Schema.SchemaName), true
	case r.Catalog != nil:
		return catalogTag(r.Catalog.Name), true
	case r.Function != nil:
		return functionTag(r.Function.Schema.CatalogName, r.Function.Schema.SchemaName, r.Function.FunctionName), true
	case r.User != nil:
		return resourceTagSystem, true
	case r.SystemSessionProperty != nil:
		return resourceTagSystem, true
	case r.CatalogSessionProperty != nil:
		return resourceTagSystem, true
	default:
		return "", false
	}
}

// buildAllowedQuery builds the OPA query for a Trino authz check at the
// given resource tag. The tenant is always "default" — Trino resources
// aren't tenant-scoped in the reference implementation, a known
// simplification carried over unchanged.
func buildAllowedQuery(ctx Context, action string, resourceTag string) opaclient.AllowedQuery {
	return opaclient.AllowedQuery{
		User: opaclient.User{
			Key: ctx.Identity.User,
			Attributes: map[string]interface{}{
				"groups": ctx.Identity.Groups,
			},
		},
		Action: action,
		Resource: opaclient.Resource{
			Type:   resourceTag,
			Tenant: "default",
		},
		SDK: fmt.Sprintf("trino/%s", ctx.SoftwareStack.TrinoVersion),
	}
}

// CheckAllowed answers a single /trino/allowed query. A Table resource is
// checked at the table level first; if that is denied and the table
// request named specific columns, it falls back to requiring every named
// column be individually allowed. Schema/Catalog/Function resources are
// single checks at their own tag. User/session-property/no-resource
// checks go through the shared system tag. An unrecognized resource
// variant is denied and logged rather than sent to OPA.
func CheckAllowed(ctx context.Context, client *opaclient.CachedClient, query AuthzQuery, cc opaclient.CacheControl, logger zerolog.Logger) (bool, error) {
	r := query.Action.Resource
	if r != nil && r.Table != nil {
		return checkTableAllowed(ctx, client, query.Context, query.Action.Operation, *r.Table, cc)
	}

	tag, ok := resourceTagFor(r)
	if !ok {
		logger.Warn().Interface("resource", r).Msg("unsupported trino resource variant, denying")
		return false, nil
	}

	q := buildAllowedQuery(query.Context, query.Action.Operation, tag)
	result, err := client.QueryAllowedCached(ctx, q, cc)
	if err != nil {
		return false, err
	}
	return result.Allow, nil
}

// checkTableAllowed implements the table-then-columns fallback: check the
// table tag directly, and only if that's denied and the request named
// columns, require every named column individually allowed. An empty
// column list leaves the table-level decision as the final answer.
func checkTableAllowed(ctx context.Context, client *opaclient.CachedClient, trinoCtx Context, operation string, table Table, cc opaclient.CacheControl) (bool, error) {
	tag := tableTag(table.CatalogName, table.SchemaName, table.TableName)
	q := buildAllowedQuery(trinoCtx, operation, tag)
	result, err := client.QueryAllowedCached(ctx, q, cc)
	if err != nil {
		return false, err
	}
	if result.Allow {
		return true, nil
	}

	if len(table.Columns) == 0 {
		// Empty/absent columns means the table-level decision is the
		// whole answer; there is nothing to fall back to.
		return false, nil
	}

	checks := make([]opaclient.AllowedQuery, len(table.Columns))
	for i, col := range table.Columns {
		checks[i] = buildAllowedQuery(trinoCtx, operation, columnTag(table.CatalogName, table.SchemaName, table.TableName, col))
	}
	bulk, err := client.QueryAllowedBulkCached(ctx, checks, cc)
	if err != nil {
		return false, err
	}
	for _, r := range bulk.Allow {
		if !r.Allow {
			return false, nil
		}
	}
	return true, nil
}

// RowFilterExpressions answers /trino/row-filter. Only Table resources
// have row filters; anything else returns no expressions. A missing
// config, or a table with no configured filters, also returns no
// expressions rather than an error — row filtering is opt-in per table.
func RowFilterExpressions(ctx context.Context, client *opaclient.CachedClient, config *AuthzConfig, query RowFilterQuery, cc opaclient.CacheControl, logger zerolog.Logger) ([]RowFilterResult, error) {
	table := query.Action.Resource.Table
	if table == nil {
		logger.Warn().Msg("row-filter requested for a non-table resource, returning no filters")
		return nil, nil
	}
	if config == nil {
		logger.Info().Msg("trino authz config not loaded, returning no row filters")
		return nil, nil
	}

	tag := tableTag(table.CatalogName, table.SchemaName, table.TableName)
	filters := config.Filters(tag)
	if len(filters) == 0 {
		return nil, nil
	}

	checks := make([]opaclient.AllowedQuery, len(filters))
	for i, f := range filters {
		checks[i] = buildAllowedQuery(query.Context, f.Action, tag)
	}

	bulk, err := client.QueryAllowedBulkCached(ctx, checks, cc)
	if err != nil {
		return nil, err
	}

	results := make([]RowFilterResult, 0, len(filters))
	for i, filter := range filters {
		if i < len(bulk.Allow) && bulk.Allow[i].Allow {
			results = append(results, RowFilterResult{Expression: filter.Expression})
		}
	}
	return results, nil
}

// ColumnMasks answers /trino/batch-column-masking. For every requested
// column, the configured mask is included iff the table itself is
// allowed at the resolved action OR the column individually is. The
// resolved action is the column's own override if set, else the table's
// default action. Unmatched columns (not present in the table's
// configured column list, or with no config loaded/no config for the
// table) are skipped silently — masking is opt-in per column.
func ColumnMasks(ctx context.Context, client *opaclient.CachedClient, config *AuthzConfig, query ColumnMaskQuery, cc opaclient.CacheControl, logger zerolog.Logger) ([]ColumnMaskResult, error) {
	if config == nil {
		logger.Info().Msg("trino authz config not loaded, returning no column masks")
		return nil, nil
	}

	type match struct {
		index     int
		tableTag  string
		columnTag string
		column    ColumnRule
		action    string
	}

	var matches []match
	for i, fr := range query.Action.FilterResources {
		col := fr.Column
		tag := tableTag(col.CatalogName, col.SchemaName, col.TableName)
		rule, ok := config.ColumnMasks(tag)
		if !ok {
			continue
		}
		var found *ColumnRule
		for j := range rule.Columns {
			if rule.Columns[j].ColumnName == col.ColumnName {
				found = &rule.Columns[j]
				break
			}
		}
		if found == nil {
			continue
		}
		action := rule.Action
		if found.Action != nil && *found.Action != "" {
			action = *found.Action
		}
		matches = append(matches, match{
			index:     i,
			tableTag:  tag,
			columnTag: columnTag(col.CatalogName, col.SchemaName, col.TableName, col.ColumnName),
			column:    *found,
			action:    action,
		})
	}

	if len(matches) == 0 {
		return nil, nil
	}

	checks := make([]opaclient.AllowedQuery, 0, len(matches)*2)
	for _, m := range matches {
		checks = append(checks,
			buildAllowedQuery(query.Context, m.action, m.tableTag),
			buildAllowedQuery(query.Context, m.action, m.columnTag),
		)
	}

	bulk, err := client.QueryAllowedBulkCached(ctx, checks, cc)
	if err != nil {
		return nil, err
	}

	results := make([]ColumnMaskResult, 0, len(matches))
	for i, m := range matches {
		tableAllowed := bulk.Allow[i*2].Allow
		columnAllowed := bulk.Allow[i*2+1].Allow
		if !tableAllowed && !columnAllowed {
			continue
		}
		results = append(results, ColumnMaskResult{
			Index: m.index,
			ViewExpression: ViewExpression{
				Expression: m.column.ViewExpression,
				Identity:   m.column.Identity,
			},
		})
	}
	return results, nil
}
