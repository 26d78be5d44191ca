/*
Sqlnest turns flat SQL results into nested rows and embeds correlated
sub-query results in them.

It does three things:

  - it lets a query name its parameters (":id") instead of numbering them, and
    rewrites the query for the driver's positional placeholders;
  - it reads a result cursor row by row into ordered, nested [Row] values where
    dotted column labels ("name.first") denote nesting;
  - it runs attached sub-queries once per row, with the row itself as the
    sub-query arguments, and stores the sub-query rows under a key of the row.

# Templates

A [Template] is parsed once and reused:

	t := sqlnest.Parse(`
		SELECT emp_no AS employeeNumber, first_name AS firstName
		FROM employees
		WHERE first_name LIKE :name OR last_name LIKE :name`)

	t.SQL()    // ... WHERE first_name LIKE ? OR last_name LIKE ?
	t.Params() // [name name]

	args := t.Apply(sqlnest.M{"name": "Geo%"}) // [Geo% Geo%]

A colon that is not followed by a name is plain text, and so are "::" casts,
quoted strings, quoted identifiers and comments. Parsing never fails.

Use [ParseStyle] with [Dollar] or [AtP] for drivers that number their
placeholders.

# Nesting

Given the columns

	SELECT id, first_name AS "name.first", last_name AS "name.last" FROM person

each row becomes

	{"id": 1, "name": {"first": "A", "last": "B"}}

Columns sharing a prefix are merged into the same nested row, in column order.
Trailing dots are ignored ("a." is the key "a"); empty components elsewhere
become empty keys.

# Attachments

An [Adapter] owns a cursor. Sub-queries attached to it run for every row, with
the row as their arguments:

	a, err := sqlnest.Query(ctx, sqlnest.SQL(conn), t, sqlnest.M{"id": 10001})
	if err != nil {
		return err
	}
	defer a.Close()

	err = a.Attach("titles", `
		SELECT title, from_date AS fromDate
		FROM titles WHERE emp_no = :employeeNumber`)
	if err != nil {
		return err
	}

	row, err := a.One()

Attachments are run in the order they were attached and their keys follow the
column keys in the row. A [Subquery] can carry attachments of its own. Once
the adapter has read its first row, neither the adapter nor its sub-queries
accept new attachments.

Attachment queries are run on the same [Queryer] while the outer cursor is
still open. The driver must allow several open cursors per connection, or the
Queryer must buffer its results (see the pgxnest package).

# Failures

Any error reading the cursor or running an attachment ends the iteration. The
error is reported by [Adapter.Err], [Adapter.All] and [Adapter.One]; the row
being built is dropped.
*/
package sqlnest
