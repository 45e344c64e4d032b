package models

import (
	"errors"
	"fmt"
	"testing"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

func TestIsDuplicateKeyError(t *testing.T) {
	dup := &mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry 'b-1'-'bk-1' for key 'idx_job_booking'"}
	if !isDuplicateKeyError(dup) {
		t.Fatal("expected ER_DUP_ENTRY to be detected")
	}
	if !isDuplicateKeyError(fmt.Errorf("create job: %w", dup)) {
		t.Fatal("expected wrapped ER_DUP_ENTRY to be detected")
	}
	if isDuplicateKeyError(&mysqlDriver.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}) {
		t.Fatal("deadlock must not be treated as a duplicate key")
	}
	if isDuplicateKeyError(errors.New("Duplicate entry mentioned in an application error")) {
		t.Fatal("plain errors must not be treated as a duplicate key")
	}
	if isDuplicateKeyError(nil) {
		t.Fatal("nil error must not be treated as a duplicate key")
	}
}
