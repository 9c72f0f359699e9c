package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"grocermap/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS mails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS orders (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL UNIQUE,
  mailId INTEGER,
  totalItems INTEGER NOT NULL,
  mappedCount INTEGER NOT NULL,
  unmappedCount INTEGER NOT NULL,
  exportFilename TEXT,
  durationMs REAL NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(mailId) REFERENCES mails(id)
);
CREATE INDEX IF NOT EXISTS idx_orders_mailId ON orders(mailId);

CREATE TABLE IF NOT EXISTS order_lines (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  orderId INTEGER NOT NULL,
  lineNo INTEGER NOT NULL,
  originalText TEXT NOT NULL,
  quantity REAL NOT NULL,
  confidence TEXT NOT NULL,
  itemCode TEXT,
  itemName TEXT,
  category TEXT,
  similarity REAL,
  FOREIGN KEY(orderId) REFERENCES orders(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

const mailColumns = `id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef`

func scanMail(s interface{ Scan(...any) error }) (internal.MailRow, error) {
	var row internal.MailRow
	err := s.Scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef)
	return row, err
}

func (d *DB) UpsertMail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.MailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO mails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.MailRow{}, err
	}

	row, err := d.GetMailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.MailRow{}, err
	}
	if row == nil {
		return internal.MailRow{}, errors.New("failed to upsert mail")
	}
	return *row, nil
}

func (d *DB) GetMailByProviderMessageID(provider, messageID string) (*internal.MailRow, error) {
	row, err := scanMail(d.conn.QueryRow(`SELECT `+mailColumns+` FROM mails WHERE provider = ? AND messageId = ?`, provider, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetMailByID(id int) (*internal.MailRow, error) {
	row, err := scanMail(d.conn.QueryRow(`SELECT `+mailColumns+` FROM mails WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) MustMailByProviderMessageID(provider, messageID string) (internal.MailRow, error) {
	row, err := d.GetMailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.MailRow{}, err
	}
	if row == nil {
		return internal.MailRow{}, fmt.Errorf("mail not found: provider=%s messageId=%s", provider, messageID)
	}
	return *row, nil
}

func (d *DB) ListMailsByStatus(status string, limit int) ([]internal.MailRow, error) {
	rows, err := d.conn.Query(`SELECT `+mailColumns+` FROM mails WHERE status = ? ORDER BY receivedAt ASC, id ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.MailRow
	for rows.Next() {
		row, err := scanMail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateMailStatus(mailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE mails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, mailID)
	return err
}

// RecordOrder stores a processed order and its lines, mapped first then
// unmapped, in one transaction.
func (d *DB) RecordOrder(traceID string, mailID *int, order internal.ProcessedOrder) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
INSERT INTO orders (traceId, mailId, totalItems, mappedCount, unmappedCount, exportFilename, durationMs)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, traceID, mailID, order.TotalItems, order.MappedCount, order.UnmappedCount, order.ExportFilename, order.ProcessingTimeMs)
	if err != nil {
		return err
	}
	orderID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO order_lines (orderId, lineNo, originalText, quantity, confidence, itemCode, itemName, category, similarity)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	lineNo := 0
	for _, item := range order.MappedItems {
		lineNo++
		if _, err := stmt.Exec(orderID, lineNo, item.OriginalText, item.Quantity, string(item.Confidence), item.Code, item.Name, item.Category, item.SimilarityScore); err != nil {
			return err
		}
	}
	for _, text := range order.UnmappedItems {
		lineNo++
		if _, err := stmt.Exec(orderID, lineNo, text, 0, string(internal.ConfidenceUnmatched), nil, nil, nil, nil); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) ListOrders(limit int) ([]internal.OrderRunRow, error) {
	rows, err := d.conn.Query(`
SELECT id, traceId, mailId, totalItems, mappedCount, unmappedCount, exportFilename, durationMs, createdAt
FROM orders ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.OrderRunRow
	for rows.Next() {
		var row internal.OrderRunRow
		if err := rows.Scan(&row.ID, &row.TraceID, &row.MailID, &row.TotalItems, &row.MappedCount, &row.UnmappedCount, &row.ExportFilename, &row.DurationMs, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// OrderLines returns the stored lines of an order in line order.
func (d *DB) OrderLines(traceID string) ([]internal.MappedItem, error) {
	rows, err := d.conn.Query(`
SELECT l.originalText, l.quantity, l.confidence, l.itemCode, l.itemName, l.category, l.similarity
FROM order_lines l
JOIN orders o ON o.id = l.orderId
WHERE o.traceId = ?
ORDER BY l.lineNo ASC
`, traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.MappedItem
	for rows.Next() {
		var item internal.MappedItem
		var confidence string
		if err := rows.Scan(&item.OriginalText, &item.Quantity, &confidence, &item.Code, &item.Name, &item.Category, &item.SimilarityScore); err != nil {
			return nil, err
		}
		item.Confidence = internal.ConfidenceTier(confidence)
		out = append(out, item)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
