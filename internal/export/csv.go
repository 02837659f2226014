// Package export renders the user directory as CSV and archives exports to the configured
// storage backend with a checksum sidecar and an optional OpenPGP detached signature.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dpc-platform/dpc-admin/internal/db/models"
)

// Columns is the fixed CSV header, in output order.
var Columns = []string{
	"id",
	"first_name",
	"last_name",
	"email",
	"organization",
	"organization_type",
	"address_1",
	"address_2",
	"city",
	"state",
	"zip",
	"agree_to_terms",
	"num_providers",
	"created_at",
	"updated_at",
}

const timestampLayout = "2006-01-02 15:04:05 UTC"

// UserSource streams every user in the directory
type UserSource interface {
	Each(ctx context.Context, fn func(*models.User) error) error
}

// Export is a rendered CSV file
type Export struct {
	Filename string
	Data     []byte
	Rows     int
}

// Filename returns the download name for an export taken at t, e.g. users-20240301T1200.csv
func Filename(t time.Time) string {
	return "users-" + t.UTC().Format("20060102T1504") + ".csv"
}

// Build renders every user from src into an in-memory CSV named for now
func Build(ctx context.Context, src UserSource, now time.Time) (*Export, error) {
	var buf bytes.Buffer
	rows, err := WriteUsers(ctx, &buf, src)
	if err != nil {
		return nil, err
	}
	return &Export{Filename: Filename(now), Data: buf.Bytes(), Rows: rows}, nil
}

// WriteUsers writes the header and one row per user to w and returns the number of data rows
func WriteUsers(ctx context.Context, w io.Writer, src UserSource) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return 0, fmt.Errorf("failed to write csv header: %w", err)
	}

	rows := 0
	err := src.Each(ctx, func(u *models.User) error {
		if err := cw.Write(Row(u)); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
		rows++
		return nil
	})
	if err != nil {
		return rows, err
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, fmt.Errorf("failed to flush csv: %w", err)
	}
	return rows, nil
}

// Row renders u in Columns order
func Row(u *models.User) []string {
	numProviders := ""
	if u.NumProviders != nil {
		numProviders = strconv.Itoa(*u.NumProviders)
	}

	return []string{
		u.ID,
		u.FirstName,
		u.LastName,
		u.Email,
		u.Organization,
		u.OrganizationType,
		u.Address1,
		u.Address2,
		u.City,
		u.State,
		u.Zip,
		strconv.FormatBool(u.AgreeToTerms),
		numProviders,
		formatTime(u.CreatedAt),
		formatTime(u.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}
