package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kozaktomas/evoface/internal/database"
	"github.com/kozaktomas/evoface/internal/database/mock"
)

func TestProvider_NotInitialized(t *testing.T) {
	database.ResetBackend()
	ctx := context.Background()

	if database.IsInitialized() {
		t.Fatal("expected backend to be uninitialized")
	}
	if _, err := database.GetTemplateWriter(ctx); !errors.Is(err, database.ErrBackendNotInitialized) {
		t.Errorf("expected ErrBackendNotInitialized, got %v", err)
	}
	if _, err := database.GetDailyRecordStore(ctx); !errors.Is(err, database.ErrBackendNotInitialized) {
		t.Errorf("expected ErrBackendNotInitialized, got %v", err)
	}
	if database.GetTemplateIndexRebuilder() != nil {
		t.Error("expected no rebuilder")
	}
}

func TestProvider_RegisterBackend(t *testing.T) {
	defer database.ResetBackend()
	ctx := context.Background()

	backend := mock.NewBackend()
	backend.Register()

	if !database.IsInitialized() {
		t.Fatal("expected backend to be initialized")
	}

	employees, err := database.GetEmployeeWriter(ctx)
	if err != nil {
		t.Fatalf("GetEmployeeWriter: %v", err)
	}
	if err := employees.RegisterEmployee(ctx, database.Employee{ID: "E001", Name: "Jan"}, []float32{3, 4}); err != nil {
		t.Fatalf("RegisterEmployee: %v", err)
	}

	templates, err := database.GetTemplateWriter(ctx)
	if err != nil {
		t.Fatalf("GetTemplateWriter: %v", err)
	}
	got, err := templates.GetTemplates(ctx, "E001")
	if err != nil {
		t.Fatalf("GetTemplates: %v", err)
	}
	if len(got) != 1 || got[0].SampleCount != 1 {
		t.Fatalf("expected seeded template, got %+v", got)
	}

	if _, err := database.GetPunchWriter(ctx); err != nil {
		t.Errorf("GetPunchWriter: %v", err)
	}
}
