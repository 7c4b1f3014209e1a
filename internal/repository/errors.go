// Package repository persists the party ledger in MySQL.  Conditional
// writes report whether their condition held through model.TxResult;
// infrastructure failures come back as ordinary errors.
package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

const (
	mysqlDuplicateEntry  = 1062
	mysqlCheckViolated   = 3819
	mysqlForeignKeyChild = 1452
)

// isDuplicate reports a unique or primary key violation.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// isConstraint reports a CHECK or foreign key violation.
func isConstraint(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && (me.Number == mysqlCheckViolated || me.Number == mysqlForeignKeyChild)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
