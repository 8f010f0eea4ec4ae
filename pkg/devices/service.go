// Package devices resolves a stable device identity for each request, used
// to key the one-open-session-per-device rule.
package devices

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/mileusna/useragent"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/kikubooks/kiku/pkg/models"
)

// ClientDeviceInfo is the device descriptor mobile clients send alongside
// playback requests. All fields are optional.
type ClientDeviceInfo struct {
	DeviceID      string `json:"device_id"`
	ClientName    string `json:"client_name"`
	ClientVersion string `json:"client_version"`
	Manufacturer  string `json:"manufacturer"`
	Model         string `json:"model"`
	SDKVersion    string `json:"sdk_version"`
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// Resolve builds the device record for this request and upserts it. When the
// client supplies a device id, that id keys the row and the client's fields
// win outright (fields not sent are cleared). Without one, the id is derived
// by hashing the user and the request fingerprint, so the same browser on
// the same machine maps to the same row across requests.
func (svc *Service) Resolve(ctx context.Context, userID int, ip, userAgent string, client *ClientDeviceInfo) (*models.Device, error) {
	now := time.Now()
	device := &models.Device{
		CreatedAt: now,
		UpdatedAt: now,
		UserID:    userID,
		IPAddress: ip,
	}

	if userAgent != "" {
		ua := useragent.Parse(userAgent)
		device.BrowserName = ua.Name
		device.BrowserVersion = ua.Version
		device.OSName = ua.OS
		device.OSVersion = ua.OSVersion
		switch {
		case ua.Mobile:
			device.DeviceType = "mobile"
		case ua.Tablet:
			device.DeviceType = "tablet"
		case ua.Desktop:
			device.DeviceType = "desktop"
		}
	}

	if client != nil {
		device.ID = client.DeviceID
		device.ClientName = client.ClientName
		device.ClientVersion = client.ClientVersion
		device.Manufacturer = client.Manufacturer
		device.Model = client.Model
		device.SDKVersion = client.SDKVersion
	}

	if device.ID == "" {
		device.ID = fallbackID(userID, device)
	}

	_, err := svc.db.NewInsert().
		Model(device).
		On("CONFLICT (id) DO UPDATE").
		Set("updated_at = EXCLUDED.updated_at").
		Set("user_id = EXCLUDED.user_id").
		Set("ip_address = EXCLUDED.ip_address").
		Set("browser_name = EXCLUDED.browser_name").
		Set("browser_version = EXCLUDED.browser_version").
		Set("os_name = EXCLUDED.os_name").
		Set("os_version = EXCLUDED.os_version").
		Set("device_type = EXCLUDED.device_type").
		Set("client_name = EXCLUDED.client_name").
		Set("client_version = EXCLUDED.client_version").
		Set("manufacturer = EXCLUDED.manufacturer").
		Set("model = EXCLUDED.model").
		Set("sdk_version = EXCLUDED.sdk_version").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return device, nil
}

// fallbackID derives a deterministic pseudo-id from the user and the request
// fingerprint. Deliberately excludes anything that changes between requests
// from the same client.
func fallbackID(userID int, d *models.Device) string {
	parts := []string{
		strconv.Itoa(userID),
		d.BrowserName,
		d.OSName,
		d.OSVersion,
		d.ClientName,
		d.ClientVersion,
		d.Manufacturer,
		d.Model,
		d.SDKVersion,
		d.IPAddress,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "temp-" + hex.EncodeToString(sum[:8])
}
