package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap/zaptest"
)

func TestSeed_CountsInsertedRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	for i := range seedCategories {
		// the second category already exists
		affected := int64(1)
		if i == 1 {
			affected = 0
		}
		mock.ExpectExec("INSERT INTO categories").
			WithArgs(seedCategories[i].name, seedCategories[i].description, seedCategories[i].image).
			WillReturnResult(sqlmock.NewResult(0, affected))
	}
	for _, p := range seedProducts {
		mock.ExpectExec("INSERT INTO products").
			WithArgs(p.name, p.description, p.price, p.image, p.category, p.stock).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	for _, m := range seedPaymentMethods {
		mock.ExpectExec("INSERT INTO payment_methods").
			WithArgs(m.name, string(m.kind), m.active, m.instructions, m.order).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	res, err := Seed(context.Background(), db, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	want := SeedResult{Categories: 3, Products: 3, PaymentMethods: 4}
	if res != want {
		t.Errorf("Expected %+v, got %+v", want, res)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestSeed_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO categories").WillReturnError(errors.New("relation \"categories\" does not exist"))
	mock.ExpectRollback()

	if _, err := Seed(context.Background(), db, zaptest.NewLogger(t)); err == nil {
		t.Fatal("Expected an error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestSeed_OnlyCashIsActive(t *testing.T) {
	for _, m := range seedPaymentMethods {
		if m.active != (m.name == "Contra Entrega") {
			t.Errorf("Unexpected active flag for %s: %v", m.name, m.active)
		}
	}
}

func TestEnsureAdmin(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO users .* ON CONFLICT \\(email\\) DO NOTHING").
		WithArgs("Owner", "owner@example.com", sqlmock.AnyArg(), "admin").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO users").
		WithArgs("Owner", "owner@example.com", sqlmock.AnyArg(), "admin").
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := EnsureAdmin(context.Background(), db, "Owner", "owner@example.com", "password123")
	if err != nil || !created {
		t.Errorf("Expected admin to be created, got created=%v err=%v", created, err)
	}
	created, err = EnsureAdmin(context.Background(), db, "Owner", "owner@example.com", "password123")
	if err != nil || created {
		t.Errorf("Expected existing admin to be kept, got created=%v err=%v", created, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	if err := Migrate(context.Background(), db, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}
