// Package sqltrace instruments database/sql drivers with query capture.
//
// Wrap any driver.Driver and every query or exec routed through its
// connections is recorded against the unit of work named by the request
// context:
//
//	base, _ := sql.Open("sqlite", ":memory:")
//	drv := base.Driver()
//	base.Close()
//
//	db := sql.OpenDB(sqltrace.Connector(":memory:", drv, eng,
//		sqltrace.WithShapeFunc(shapeFor)))
//
//	ctx := ormcost.WithContextID(r.Context(), requestID)
//	rows, _ := db.QueryContext(ctx, "SELECT id, name FROM users")
//
// Declared columns come from driver.Rows.Columns and row counts from
// iteration, so the hot path never parses SQL. Statements issued outside
// a unit of work pass through untouched.
package sqltrace
