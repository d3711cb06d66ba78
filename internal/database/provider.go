package database

import (
	"context"
	"errors"
	"fmt"
)

// ErrBackendNotInitialized is returned when no storage backend has been registered.
var ErrBackendNotInitialized = errors.New("storage backend not initialized: DATABASE_URL is required")

// IndexRebuilder is an interface for repositories that keep an in-memory HNSW index
type IndexRebuilder interface {
	// RebuildIndex rebuilds the in-memory HNSW index from storage
	RebuildIndex(ctx context.Context) error
	// IndexCount returns the number of items in the HNSW index
	IndexCount() int
	// SaveIndex saves the current index to disk (if path configured)
	SaveIndex() error
}

var (
	templateWriter    func() TemplateWriter
	employeeWriter    func() EmployeeWriter
	punchWriter       func() PunchWriter
	dailyRecordStore  func() DailyRecordStore
	templateRebuilder IndexRebuilder
	initialized       bool
)

// RegisterBackend registers repository constructors.
// This is called by the storage package to avoid import cycles.
func RegisterBackend(
	templates func() TemplateWriter,
	employees func() EmployeeWriter,
	punches func() PunchWriter,
	records func() DailyRecordStore,
) {
	templateWriter = templates
	employeeWriter = employees
	punchWriter = punches
	dailyRecordStore = records
	initialized = true
}

// RegisterTemplateIndexRebuilder registers the HNSW rebuilder for the template repository.
func RegisterTemplateIndexRebuilder(rebuilder IndexRebuilder) {
	templateRebuilder = rebuilder
}

// GetTemplateIndexRebuilder returns the registered rebuilder, or nil if not registered.
func GetTemplateIndexRebuilder() IndexRebuilder {
	return templateRebuilder
}

// IsInitialized returns whether a backend has been registered.
func IsInitialized() bool {
	return initialized
}

// ResetBackend clears every registration. Used by tests.
func ResetBackend() {
	templateWriter = nil
	employeeWriter = nil
	punchWriter = nil
	dailyRecordStore = nil
	templateRebuilder = nil
	initialized = false
}

// GetTemplateWriter returns the registered Identity Store
func GetTemplateWriter(ctx context.Context) (TemplateWriter, error) {
	if !initialized {
		return nil, ErrBackendNotInitialized
	}
	if templateWriter == nil {
		return nil, fmt.Errorf("template writer not registered")
	}
	return templateWriter(), nil
}

// GetEmployeeWriter returns the registered employee repository
func GetEmployeeWriter(ctx context.Context) (EmployeeWriter, error) {
	if !initialized {
		return nil, ErrBackendNotInitialized
	}
	if employeeWriter == nil {
		return nil, fmt.Errorf("employee writer not registered")
	}
	return employeeWriter(), nil
}

// GetPunchWriter returns the registered punch repository
func GetPunchWriter(ctx context.Context) (PunchWriter, error) {
	if !initialized {
		return nil, ErrBackendNotInitialized
	}
	if punchWriter == nil {
		return nil, fmt.Errorf("punch writer not registered")
	}
	return punchWriter(), nil
}

// GetDailyRecordStore returns the registered daily record repository
func GetDailyRecordStore(ctx context.Context) (DailyRecordStore, error) {
	if !initialized {
		return nil, ErrBackendNotInitialized
	}
	if dailyRecordStore == nil {
		return nil, fmt.Errorf("daily record store not registered")
	}
	return dailyRecordStore(), nil
}
