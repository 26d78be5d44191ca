// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlnest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/mattn/go-sqlite3"
)

// This file contains a wrapper sql.Driver over the SQLite driver which records
// the prepared statements opened and closed by each test, and counts the
// queries run directly on a connection and through a prepared statement.

// openedStmts and closedStmts store the addresses of the opened/closed
// statements indexed by test name.
var openedStmts = map[string]map[uintptr]string{}
var closedStmts = map[string]map[uintptr]bool{}
var stmtRegistryMutex sync.RWMutex

// connQueriesRun and stmtQueriesRun are indexed by test name. The
// queriesRunMutex must be used when accessing them.
var connQueriesRun = map[string]int{}
var stmtQueriesRun = map[string]int{}
var queriesRunMutex sync.RWMutex

const testNameTag = "testName"

type trackedDriver struct {
	driver.Driver
}

type trackedConn struct {
	testName string
	*sqlite3.SQLiteConn
}

type trackedStmt struct {
	testName string
	*sqlite3.SQLiteStmt
}

func countQuery(counts map[string]int, testName string) {
	queriesRunMutex.Lock()
	defer queriesRunMutex.Unlock()
	counts[testName]++
}

func (s *trackedStmt) Close() error {
	stmtRegistryMutex.Lock()
	defer stmtRegistryMutex.Unlock()
	if _, ok := closedStmts[s.testName]; !ok {
		closedStmts[s.testName] = map[uintptr]bool{}
	}
	closedStmts[s.testName][uintptr(unsafe.Pointer(s))] = true
	return s.SQLiteStmt.Close()
}

func (s *trackedStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	rows, err := s.SQLiteStmt.QueryContext(ctx, args)
	if err == nil {
		countQuery(stmtQueriesRun, s.testName)
	}
	return rows, err
}

func (c *trackedConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	s, err := c.SQLiteConn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	sm, ok := s.(*sqlite3.SQLiteStmt)
	if !ok {
		panic(fmt.Sprintf("internal error: base driver is not SQLite, got %T", s))
	}
	tracked := &trackedStmt{SQLiteStmt: sm, testName: c.testName}

	stmtRegistryMutex.Lock()
	defer stmtRegistryMutex.Unlock()
	if _, ok := openedStmts[c.testName]; !ok {
		openedStmts[c.testName] = map[uintptr]string{}
	}
	openedStmts[c.testName][uintptr(unsafe.Pointer(tracked))] = query
	return tracked, nil
}

func (c *trackedConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *trackedConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	rows, err := c.SQLiteConn.QueryContext(ctx, query, args)
	if err == nil {
		countQuery(connQueriesRun, c.testName)
	}
	return rows, err
}

// Open expects the DSN to contain the test name using the testNameTag
// attribute.
func (d *trackedDriver) Open(name string) (driver.Conn, error) {
	var testName string
	if _, parameters, ok := strings.Cut(name, "?"); ok {
		for _, p := range strings.Split(parameters, "&") {
			if value, ok := strings.CutPrefix(p, testNameTag+"="); ok {
				testName = value
			}
		}
	}
	if testName == "" {
		panic("internal error: testName is not found in the db DSN")
	}

	baseConn, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	sqliteConn, ok := baseConn.(*sqlite3.SQLiteConn)
	if !ok {
		panic("internal error: base driver is not SQLite")
	}
	return &trackedConn{SQLiteConn: sqliteConn, testName: testName}, nil
}

func init() {
	sql.Register("sqlite3_stmtChecked", &trackedDriver{
		&sqlite3.SQLiteDriver{},
	})
}
