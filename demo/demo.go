// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Demo serves the employees of a small in-memory database as nested JSON
// documents, with their titles and salaries attached.
//
//	go run ./demo -name 'Geo*' -details titles,salaries
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/canonical/sqlnest"
	"github.com/canonical/sqlnest/middleware/querylog"
)

type employee struct {
	number   int
	first    string
	last     string
	titles   []title
	salaries []salary
}

type title struct {
	title    string
	from, to string
}

type salary struct {
	salary   int
	from, to string
}

var employees = []employee{{
	number: 10001, first: "Georgi", last: "Facello",
	titles:   []title{{"Senior Engineer", "1986-06-26", "9999-01-01"}},
	salaries: []salary{{60117, "1986-06-26", "1987-06-26"}, {62102, "1987-06-26", "1988-06-25"}},
}, {
	number: 10002, first: "Bezalel", last: "Simmel",
	titles:   []title{{"Staff", "1996-08-03", "9999-01-01"}},
	salaries: []salary{{65828, "1996-08-03", "1997-08-03"}},
}, {
	number: 10003, first: "Parto", last: "Georgiev",
	titles:   []title{{"Engineer", "1995-12-03", "2001-12-03"}, {"Senior Engineer", "2001-12-03", "9999-01-01"}},
	salaries: []salary{{40006, "1995-12-03", "1996-12-02"}},
}}

// details are the sub-queries that can be attached to an employee.
var details = map[string]string{
	"titles": `
		SELECT title, from_date AS "period.from", to_date AS "period.to"
		FROM titles WHERE emp_no = :employeeNumber ORDER BY from_date`,
	"salaries": `
		SELECT salary, from_date AS "period.from", to_date AS "period.to"
		FROM salaries WHERE emp_no = :employeeNumber ORDER BY from_date`,
}

var getEmployees = sqlnest.Parse(`
	SELECT emp_no AS employeeNumber,
	       first_name AS "name.first",
	       last_name AS "name.last"
	FROM employees
	WHERE first_name LIKE :name OR last_name LIKE :name
	ORDER BY emp_no`)

func setup(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE employees (emp_no integer, first_name text, last_name text);
		CREATE TABLE titles (emp_no integer, title text, from_date text, to_date text);
		CREATE TABLE salaries (emp_no integer, salary integer, from_date text, to_date text);`)
	if err != nil {
		return err
	}
	for _, e := range employees {
		_, err := conn.ExecContext(ctx, "INSERT INTO employees VALUES (?, ?, ?)", e.number, e.first, e.last)
		if err != nil {
			return err
		}
		for _, t := range e.titles {
			_, err := conn.ExecContext(ctx, "INSERT INTO titles VALUES (?, ?, ?, ?)", e.number, t.title, t.from, t.to)
			if err != nil {
				return err
			}
		}
		for _, s := range e.salaries {
			_, err := conn.ExecContext(ctx, "INSERT INTO salaries VALUES (?, ?, ?, ?)", e.number, s.salary, s.from, s.to)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// writeEmployees writes the employees matching name, one JSON document per
// line. A "*" in name matches any text.
func writeEmployees(ctx context.Context, w io.Writer, q sqlnest.Queryer, name string, attach []string, opts ...sqlnest.Option) error {
	a, err := sqlnest.Query(ctx, q, getEmployees, sqlnest.M{"name": strings.ReplaceAll(name, "*", "%")}, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, detail := range attach {
		query, ok := details[detail]
		if !ok {
			return fmt.Errorf("unknown detail %q", detail)
		}
		if err := a.Attach(detail, query); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(w)
	for row, err := range a.Iter() {
		if err != nil {
			return err
		}
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return a.Close()
}

func run() error {
	name := flag.String("name", "*", "employee first or last name, * matches any text")
	attach := flag.String("details", "", "comma separated details to attach: titles, salaries")
	verbose := flag.Bool("v", false, "log the queries")
	flag.Parse()

	ctx := context.Background()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return err
	}
	defer db.Close()
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := setup(ctx, conn); err != nil {
		return err
	}

	opts := []sqlnest.Option{sqlnest.WithStatementCache(len(details))}
	if *verbose {
		opts = append(opts, sqlnest.WithMiddlewares(querylog.NewBuilder().Build()))
	}
	var attachments []string
	if *attach != "" {
		attachments = strings.Split(*attach, ",")
	}
	return writeEmployees(ctx, os.Stdout, sqlnest.SQL(conn), *name, attachments, opts...)
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
