package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Device is one client device as last seen by the server. Rows are keyed by
// the client-supplied device id, or a derived id when the client doesn't
// send one, and are updated in place on every request (never duplicated).
type Device struct {
	bun.BaseModel `bun:"table:devices,alias:d"`

	ID        string    `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    int       `bun:",nullzero" json:"user_id"`

	IPAddress string `bun:",nullzero" json:"ip_address"`

	// From the User-Agent header.
	BrowserName    string `bun:",nullzero" json:"browser_name,omitempty"`
	BrowserVersion string `bun:",nullzero" json:"browser_version,omitempty"`
	OSName         string `bun:",nullzero" json:"os_name,omitempty"`
	OSVersion      string `bun:",nullzero" json:"os_version,omitempty"`
	DeviceType     string `bun:",nullzero" json:"device_type,omitempty"`

	// From the client payload (mobile apps).
	ClientName    string `bun:",nullzero" json:"client_name,omitempty"`
	ClientVersion string `bun:",nullzero" json:"client_version,omitempty"`
	Manufacturer  string `bun:",nullzero" json:"manufacturer,omitempty"`
	Model         string `bun:",nullzero" json:"model,omitempty"`
	SDKVersion    string `bun:",nullzero" json:"sdk_version,omitempty"` // Android only
}

// Description is a human-readable device label for admin views.
func (d *Device) Description() string {
	if d.Model != "" {
		if d.SDKVersion != "" {
			return d.Model + " SDK " + d.SDKVersion + " / v" + d.ClientVersion
		}
		return d.Model + " / v" + d.ClientVersion
	}
	return d.OSName + " " + d.OSVersion + " / " + d.BrowserName
}
