package db

import (
	"errors"
	"testing"
)

func TestIsUniqueViolation(t *testing.T) {
	err := errors.New(`duplicate key value violates unique constraint "uq_customers_tenant_email"`)

	if !IsUniqueViolation(err, "") {
		t.Fatal("generic duplicate key message should match")
	}
	if !IsUniqueViolation(err, "uq_customers_tenant_email") {
		t.Fatal("named constraint should match")
	}
	if IsUniqueViolation(err, "uq_other_constraint") {
		t.Fatal("different constraint should not match")
	}
	if IsUniqueViolation(errors.New("connection refused"), "") {
		t.Fatal("unrelated error should not match")
	}
	if IsUniqueViolation(nil, "uq_customers_tenant_email") {
		t.Fatal("nil error should not match")
	}
}
