package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/opscore/internal/models"
)

// InvoiceClientName pairs an accounting contact name with the client it was booked to.
type InvoiceClientName struct {
	Name     string
	ClientID string
}

// Communications returns every decodable communication ordered by ID.
func (db *DB) Communications(ctx context.Context) ([]models.Communication, []SkippedRow, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, from_address, from_domain, subject, body_text, client_id, link_status
		FROM communications ORDER BY id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("store: load communications: %w", err)
	}
	var out []models.Communication
	skipped, err := scanEach(rows, "communications", func(rows *sql.Rows) error {
		var id, from, fromDomain, subject, body, clientID, status sql.NullString
		if err := rows.Scan(&id, &from, &fromDomain, &subject, &body, &clientID, &status); err != nil {
			return err
		}
		cid, err := requireID(id)
		if err != nil {
			return err
		}
		c := models.Communication{
			ID:          cid,
			FromAddress: from.String,
			FromDomain:  nullable(fromDomain),
			Subject:     subject.String,
			BodyText:    body.String,
			ClientID:    nullable(clientID),
		}
		c.LinkStatus, _ = models.ParseCommLinkStatus(status.String)
		out = append(out, c)
		return nil
	})
	return out, skipped, err
}

// ClientIdentities returns the address/domain lookup table. Rows missing any
// field cannot match anything and are skipped.
func (db *DB) ClientIdentities(ctx context.Context) ([]models.ClientIdentity, []SkippedRow, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT client_id, kind, value FROM client_identities ORDER BY kind, value`)
	if err != nil {
		return nil, nil, fmt.Errorf("store: load client identities: %w", err)
	}
	var out []models.ClientIdentity
	skipped, err := scanEach(rows, "client_identities", func(rows *sql.Rows) error {
		var clientID, kind, value sql.NullString
		if err := rows.Scan(&clientID, &kind, &value); err != nil {
			return err
		}
		if !clientID.Valid || !kind.Valid || !value.Valid {
			return errIncomplete
		}
		out = append(out, models.ClientIdentity{ClientID: clientID.String, Kind: kind.String, Value: value.String})
		return nil
	})
	return out, skipped, err
}

// InvoiceClientNames returns distinct (client_name, client_id) pairs booked on invoices.
func (db *DB) InvoiceClientNames(ctx context.Context) ([]InvoiceClientName, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT client_name, client_id FROM invoices
		WHERE client_name IS NOT NULL AND client_name != '' AND client_id IS NOT NULL
		ORDER BY client_name, client_id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: load invoice client names: %w", err)
	}
	defer rows.Close()
	var out []InvoiceClientName
	for rows.Next() {
		var n InvoiceClientName
		if err := rows.Scan(&n.Name, &n.ClientID); err != nil {
			return nil, fmt.Errorf("store: scan invoice client name: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UpdateCommunicationLink writes a communication's derived columns.
func (db *DB) UpdateCommunicationLink(ctx context.Context, id string, fromDomain, clientID *string, status models.CommLinkStatus) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE communications SET from_domain = ?, client_id = ?, link_status = ? WHERE id = ?`,
		fromDomain, clientID, status, id)
	if err != nil {
		return fmt.Errorf("store: update communication %s link: %w", id, err)
	}
	return nil
}

// Invoices returns every decodable invoice ordered by ID.
func (db *DB) Invoices(ctx context.Context) ([]models.Invoice, []SkippedRow, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, status, client_id, client_name, amount, due_date, paid_date, aging_bucket
		FROM invoices ORDER BY id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("store: load invoices: %w", err)
	}
	var out []models.Invoice
	skipped, err := scanEach(rows, "invoices", func(rows *sql.Rows) error {
		var (
			id, status, clientID, clientName sql.NullString
			dueDate, paidDate, aging         sql.NullString
			amount                           sql.NullFloat64
		)
		if err := rows.Scan(&id, &status, &clientID, &clientName, &amount, &dueDate, &paidDate, &aging); err != nil {
			return err
		}
		iid, err := requireID(id)
		if err != nil {
			return err
		}
		inv := models.Invoice{
			ID:         iid,
			Status:     models.InvoiceStatus(status.String),
			ClientID:   nullable(clientID),
			ClientName: nullable(clientName),
			Amount:     amount.Float64,
			DueDate:    nullable(dueDate),
			PaidDate:   nullable(paidDate),
		}
		inv.AgingBucket, _ = models.ParseAgingBucket(aging.String)
		out = append(out, inv)
		return nil
	})
	return out, skipped, err
}

// UpdateInvoiceAging writes an invoice's aging bucket.
func (db *DB) UpdateInvoiceAging(ctx context.Context, id string, bucket models.AgingBucket) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE invoices SET aging_bucket = ? WHERE id = ?`, bucket, id)
	if err != nil {
		return fmt.Errorf("store: update invoice %s aging: %w", id, err)
	}
	return nil
}
