package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/credential-registry-backend/interfaces"
)

// MultiStorageBackend replicates content to several backends. Its locators
// list one replica locator per backend that accepted the write.
type MultiStorageBackend struct {
	backends []interfaces.StorageBackend
	log      *slog.Logger
}

// NewMultiStorageBackend creates a new multi-storage backend with fallback
func NewMultiStorageBackend(backends []interfaces.StorageBackend, logger *slog.Logger) *MultiStorageBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiStorageBackend{
		backends: backends,
		log:      logger,
	}
}

// Fetch tries each replica locator against each available backend and
// returns the first successful read.
func (m *MultiStorageBackend) Fetch(ctx context.Context, loc interfaces.Locator) ([]byte, error) {
	start := time.Now()
	var errs []error
	notFound := 0

	for _, part := range loc.Parts() {
		for _, backend := range m.backends {
			if !backend.Available(ctx) {
				m.log.Debug("Backend unavailable",
					slog.String("backend_name", backend.Name()))
				continue
			}

			data, err := backend.Fetch(ctx, part)
			if err == nil {
				m.log.Debug("Fetched content",
					slog.String("backend_name", backend.Name()),
					slog.String("locator", part.String()),
					slog.Duration("duration", time.Since(start)))
				return data, nil
			}
			if errors.Is(err, interfaces.ErrInvalidLocationURI) {
				continue
			}
			if errors.Is(err, interfaces.ErrContentNotFound) {
				notFound++
			}

			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Debug("Failed to fetch from backend",
				slog.String("backend_name", backend.Name()),
				slog.String("locator", part.String()),
				"err", err)
		}
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no available backend serves %s", interfaces.ErrBackendUnavailable, loc)
	}

	m.log.Error("All backends failed to fetch content",
		slog.String("locator", loc.String()),
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))

	if notFound == len(errs) {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrContentNotFound, errors.Join(errs...))
	}
	return nil, fmt.Errorf("%w: all backends failed to fetch: %v", interfaces.ErrBackendUnavailable, errors.Join(errs...))
}

// Store saves data to all available backends and joins the replica locators.
func (m *MultiStorageBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.Locator, error) {
	start := time.Now()
	var locators []interfaces.Locator
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			errs = append(errs, fmt.Errorf("%s: unavailable", backend.Name()))
			continue
		}

		loc, err := backend.Store(ctx, data, contentType)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Warn("Failed to store to backend",
				slog.String("backend_name", backend.Name()),
				"err", err)
			continue
		}
		locators = append(locators, loc)
	}

	if len(locators) == 0 {
		m.log.Error("All backends failed to store data",
			slog.Int("failed_backends", len(errs)),
			slog.Duration("duration", time.Since(start)))
		return "", fmt.Errorf("%w: all backends failed to store data: %v", interfaces.ErrBackendUnavailable, errors.Join(errs...))
	}

	loc := interfaces.JoinLocators(locators...)
	m.log.Info("Stored content",
		slog.Int("replicas", len(locators)),
		slog.String("contentType", contentType.String()),
		slog.Duration("duration", time.Since(start)))

	return loc, nil
}

// Available checks if any backend is available
func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend
func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

// LocationURI returns the URIs of all member backends.
func (m *MultiStorageBackend) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}
