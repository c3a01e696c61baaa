package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/devicekey"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/models"
)

// ErrDeviceExists is returned when a device identifier is already registered
var ErrDeviceExists = errors.New("device already exists")

// CreateDevice registers a device and issues its first API key. The plain key
// is returned once; only its hash is stored.
func (dm *DatabaseManager) CreateDevice(ctx context.Context, device *models.Device) (string, error) {
	device.DeviceID = strings.TrimSpace(device.DeviceID)
	if device.DeviceID == "" {
		return "", errors.New("device_id must not be empty")
	}
	if device.DeviceName == "" {
		device.DeviceName = device.DeviceID
	}
	if device.Status == "" {
		device.Status = models.DeviceStatusActive
	}
	if !validDeviceStatus(device.Status) {
		return "", fmt.Errorf("invalid device status %q", device.Status)
	}
	if device.FirmwareVersion == "" {
		device.FirmwareVersion = "1.0.0"
	}

	apiKey, err := devicekey.Generate()
	if err != nil {
		return "", err
	}

	if err := dm.healthChecker.EnsureConnection(ctx); err != nil {
		return "", err
	}

	tx, err := dm.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	device.ID = uuid.New()
	query := `
        INSERT INTO devices (id, device_id, device_name, location, description, status, firmware_version)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING created_at, updated_at
    `
	err = tx.QueryRowContext(ctx, query,
		device.ID,
		device.DeviceID,
		device.DeviceName,
		device.Location,
		device.Description,
		device.Status,
		device.FirmwareVersion,
	).Scan(&device.CreatedAt, &device.UpdatedAt)
	if err != nil {
		if isPQCode(err, pqUniqueViolation) {
			return "", fmt.Errorf("%w: %s", ErrDeviceExists, device.DeviceID)
		}
		return "", fmt.Errorf("failed to create device: %w", err)
	}

	if err := insertDeviceKey(ctx, tx, device.ID, apiKey); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit device: %w", err)
	}
	return apiKey, nil
}

// RotateDeviceKey deactivates every key of the device and issues a new one
func (dm *DatabaseManager) RotateDeviceKey(ctx context.Context, deviceID string) (string, error) {
	apiKey, err := devicekey.Generate()
	if err != nil {
		return "", err
	}

	if err := dm.healthChecker.EnsureConnection(ctx); err != nil {
		return "", err
	}

	tx, err := dm.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var id uuid.UUID
	err = tx.QueryRowContext(ctx, `SELECT id FROM devices WHERE device_id = $1`, deviceID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("device %s: %w", deviceID, models.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load device: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE device_keys SET is_active = FALSE WHERE device_id = $1`, id); err != nil {
		return "", fmt.Errorf("failed to deactivate device keys: %w", err)
	}

	if err := insertDeviceKey(ctx, tx, id, apiKey); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit key rotation: %w", err)
	}
	return apiKey, nil
}

func insertDeviceKey(ctx context.Context, tx *sql.Tx, deviceID uuid.UUID, apiKey string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO device_keys (id, device_id, api_key_hash) VALUES ($1, $2, $3)`,
		uuid.New(), deviceID, devicekey.Hash(apiKey),
	)
	if err != nil {
		return fmt.Errorf("failed to store device key: %w", err)
	}
	return nil
}

// SetDeviceStatus changes the lifecycle state of a device
func (dm *DatabaseManager) SetDeviceStatus(ctx context.Context, deviceID, status string) error {
	if !validDeviceStatus(status) {
		return fmt.Errorf("invalid device status %q", status)
	}

	result, err := dm.ExecWithHealthCheck(ctx,
		`UPDATE devices SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE device_id = $1`,
		deviceID, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update device status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("device %s: %w", deviceID, models.ErrNotFound)
	}
	return nil
}

// ListDevices returns all registered devices, newest first
func (dm *DatabaseManager) ListDevices(ctx context.Context) ([]models.Device, error) {
	query := `
        SELECT id, device_id, device_name, location, description, status,
               is_online, last_seen, ip_address, firmware_version, created_at, updated_at
        FROM devices
        ORDER BY created_at DESC
    `

	rows, err := dm.QueryWithHealthCheck(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := []models.Device{}
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, *device)
	}
	return devices, rows.Err()
}

// GetDevice loads one device by its identifier
func (dm *DatabaseManager) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	query := `
        SELECT id, device_id, device_name, location, description, status,
               is_online, last_seen, ip_address, firmware_version, created_at, updated_at
        FROM devices
        WHERE device_id = $1
    `

	row, err := dm.QueryRowWithHealthCheck(ctx, query, deviceID)
	if err != nil {
		return nil, err
	}
	device, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("device %s: %w", deviceID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}
	return device, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var device models.Device
	var lastSeen sql.NullTime
	err := row.Scan(
		&device.ID,
		&device.DeviceID,
		&device.DeviceName,
		&device.Location,
		&device.Description,
		&device.Status,
		&device.IsOnline,
		&lastSeen,
		&device.IPAddress,
		&device.FirmwareVersion,
		&device.CreatedAt,
		&device.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		device.LastSeen = &t
	}
	return &device, nil
}

// Resolve maps a device credential to its identity and records the sighting.
// last_seen never moves backwards. Unknown keys yield models.ErrNotFound and
// keys of devices that are not active yield models.ErrDeviceInactive.
func (dm *DatabaseManager) Resolve(ctx context.Context, credential, ipAddress string) (*models.DeviceIdentity, error) {
	if credential == "" {
		return nil, models.ErrNotFound
	}
	hash := devicekey.Hash(credential)
	now := time.Now().UTC()

	query := `
        WITH matched AS (
            UPDATE device_keys
            SET last_used_at = $2
            WHERE api_key_hash = $1 AND is_active
            RETURNING device_id
        )
        UPDATE devices d
        SET last_seen = GREATEST(COALESCE(d.last_seen, $2), $2),
            is_online = TRUE,
            ip_address = COALESCE(NULLIF($3, ''), d.ip_address),
            updated_at = $2
        FROM matched
        WHERE d.id = matched.device_id AND d.status = 'active'
        RETURNING d.id, d.device_id, d.device_name
    `

	row, err := dm.QueryRowWithHealthCheck(ctx, query, hash, now, ipAddress)
	if err != nil {
		return nil, err
	}

	var identity models.DeviceIdentity
	err = row.Scan(&identity.ID, &identity.DeviceID, &identity.Name)
	if err == nil {
		return &identity, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to resolve device key: %w", err)
	}

	// tell a disabled device apart from an unknown key
	var status string
	err = dm.db.QueryRowContext(ctx, `
        SELECT d.status
        FROM device_keys k
        JOIN devices d ON d.id = k.device_id
        WHERE k.api_key_hash = $1 AND k.is_active
    `, hash).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, models.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to resolve device key: %w", err)
	default:
		return nil, fmt.Errorf("%w: status %s", models.ErrDeviceInactive, status)
	}
}

func validDeviceStatus(status string) bool {
	switch status {
	case models.DeviceStatusActive, models.DeviceStatusInactive, models.DeviceStatusMaintenance:
		return true
	}
	return false
}
