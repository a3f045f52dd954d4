package usecase

import (
	"context"
	"errors"
	"strings"

	"kioskguard/internal/domain"
)

type DeviceRegistry struct{}

// GetOrCreate resolves fingerprint to its device inside the caller's unit of work.
// Concurrent creators converge on the same row.
func (DeviceRegistry) GetOrCreate(ctx context.Context, devices DeviceRepository, fingerprint, nameHint string) (domain.Device, error) {
	if devices == nil {
		return domain.Device{}, errors.New("device repository is required")
	}
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return domain.Device{}, domain.ErrInvalidArgument
	}
	name := strings.TrimSpace(nameHint)
	if name == "" {
		name = domain.DefaultDeviceName(fingerprint)
	}
	device, _, err := devices.GetOrCreate(ctx, fingerprint, name)
	if err != nil {
		return domain.Device{}, err
	}
	return device, nil
}
