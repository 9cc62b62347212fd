package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-enocean/internal/bridges/knx"
	"github.com/nerrad567/gray-logic-enocean/internal/enocean"
	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-enocean/internal/rocker"
)

// Ensure SQLiteStore implements rocker.Store.
var _ rocker.Store = (*SQLiteStore)(nil)

// SQLiteStore keeps the directory and button state in SQLite.
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore creates a store on a migrated database.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Import replaces the stored configuration with dir in one transaction.
//
// It performs:
//  1. Clears all toggle bindings
//  2. Prunes devices and buttons no longer configured, then upserts the rest
//  3. Rewrites the switch table
//  4. Inserts one toggle command and its switch binding per configured button
//
// Pressed state of buttons that remain configured is kept.
//
// Parameters:
//   - ctx: Bounds the transaction
//   - dir: Validated directory from Load or LoadFile
//
// Returns:
//   - error: The first failing statement; nothing is changed
func (s *SQLiteStore) Import(ctx context.Context, dir *Directory) error {
	now := time.Now().UTC().Format(time.RFC3339)

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		// Toggle bindings are rebuilt from scratch.
		for _, q := range []string{
			`DELETE FROM toggle_command_switches`,
			`DELETE FROM toggle_commands`,
		} {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("clearing toggle commands: %w", err)
			}
		}

		if err := pruneDevices(ctx, tx, dir.Devices); err != nil {
			return err
		}
		for _, d := range dir.Devices {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO devices (id, name, eep, created_at) VALUES (?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET name = excluded.name, eep = excluded.eep`,
				d.ID.Hex(), d.Name, d.EEP.String(), now)
			if err != nil {
				return fmt.Errorf("upserting device %s: %w", d.ID.Hex(), err)
			}
		}

		if err := pruneButtons(ctx, tx, dir.Buttons); err != nil {
			return err
		}
		for _, b := range dir.Buttons {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO buttons (device_id, position, name, is_pressed, updated_at) VALUES (?, ?, ?, 0, ?)
				ON CONFLICT(device_id, position) DO UPDATE SET name = excluded.name`,
				b.Device.Hex(), string(b.Position), b.Name, now)
			if err != nil {
				return fmt.Errorf("upserting button %s: %w", b.ButtonKey, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM switches`); err != nil {
			return fmt.Errorf("clearing switches: %w", err)
		}
		for _, sw := range dir.Switches {
			_, err := tx.ExecContext(ctx, `INSERT INTO switches (name, main_address) VALUES (?, ?)`,
				sw.Name, sw.MainAddress.String())
			if err != nil {
				return fmt.Errorf("inserting switch %q: %w", sw.Name, err)
			}
		}

		for _, tc := range dir.Toggles {
			dev, pos := tc.Button.Device.Hex(), string(tc.Button.Position)
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO toggle_commands (device_id, position, name) VALUES (?, ?, ?)`,
				dev, pos, tc.Name); err != nil {
				return fmt.Errorf("inserting toggle command %s: %w", tc.Button, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO toggle_command_switches (device_id, position, switch_name) VALUES (?, ?, ?)`,
				dev, pos, tc.Switch.Name); err != nil {
				return fmt.Errorf("binding toggle command %s: %w", tc.Button, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("importing directory: %w", err)
	}
	return nil
}

// pruneDevices removes devices that are no longer configured. Their buttons
// go with them.
func pruneDevices(ctx context.Context, tx *sql.Tx, keep []enocean.Device) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM devices`)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}
	var stale []string
	wanted := make(map[string]bool, len(keep))
	for _, d := range keep {
		wanted[d.ID.Hex()] = true
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scanning device: %w", err)
		}
		if !wanted[id] {
			stale = append(stale, id)
		}
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id); err != nil {
			return fmt.Errorf("removing device %s: %w", id, err)
		}
	}
	return nil
}

// pruneButtons removes buttons that are no longer configured.
func pruneButtons(ctx context.Context, tx *sql.Tx, keep []rocker.Button) error {
	rows, err := tx.QueryContext(ctx, `SELECT device_id, position FROM buttons`)
	if err != nil {
		return fmt.Errorf("listing buttons: %w", err)
	}
	wanted := make(map[[2]string]bool, len(keep))
	for _, b := range keep {
		wanted[[2]string{b.Device.Hex(), string(b.Position)}] = true
	}
	var stale [][2]string
	for rows.Next() {
		var k [2]string
		if err := rows.Scan(&k[0], &k[1]); err != nil {
			rows.Close()
			return fmt.Errorf("scanning button: %w", err)
		}
		if !wanted[k] {
			stale = append(stale, k)
		}
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("listing buttons: %w", err)
	}

	for _, k := range stale {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM buttons WHERE device_id = ? AND position = ?`, k[0], k[1]); err != nil {
			return fmt.Errorf("removing button %s/%s: %w", k[0], k[1], err)
		}
	}
	return nil
}

// Devices returns the stored devices ordered by ID.
func (s *SQLiteStore) Devices(ctx context.Context) ([]enocean.Device, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, eep FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []enocean.Device
	for rows.Next() {
		var id, name, eep string
		if err := rows.Scan(&id, &name, &eep); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		d := enocean.Device{Name: name}
		if d.ID, err = enocean.ParseDeviceID(id); err != nil {
			return nil, fmt.Errorf("device %q: %w", id, err)
		}
		if d.EEP, err = enocean.ParseEEP(eep); err != nil {
			return nil, fmt.Errorf("device %q: %w", id, err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Buttons returns all stored buttons ordered by device and position.
func (s *SQLiteStore) Buttons(ctx context.Context) ([]rocker.Button, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, position, name, is_pressed, updated_at
		FROM buttons
		ORDER BY device_id, position`)
	if err != nil {
		return nil, fmt.Errorf("querying buttons: %w", err)
	}
	defer rows.Close()

	var buttons []rocker.Button
	for rows.Next() {
		b, err := scanButton(rows)
		if err != nil {
			return nil, err
		}
		buttons = append(buttons, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating buttons: %w", err)
	}
	return buttons, nil
}

// Begin implements rocker.Store.
//
// Parameters:
//   - ctx: Bounds the transaction until Commit or Rollback
//
// Returns:
//   - rocker.UnitOfWork: Lookups and saves inside one SQL transaction
//   - error: If the transaction cannot start
func (s *SQLiteStore) Begin(ctx context.Context) (rocker.UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &unitOfWork{tx: tx}, nil
}

// unitOfWork is a rocker.UnitOfWork over one SQL transaction.
type unitOfWork struct {
	tx *sql.Tx
}

func (u *unitOfWork) LookupButton(ctx context.Context, key rocker.ButtonKey) (rocker.Button, bool, error) {
	row := u.tx.QueryRowContext(ctx, `
		SELECT device_id, position, name, is_pressed, updated_at
		FROM buttons
		WHERE device_id = ? AND position = ?`,
		key.Device.Hex(), string(key.Position))

	b, err := scanButton(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rocker.Button{}, false, nil
	}
	if err != nil {
		return rocker.Button{}, false, err
	}
	return b, true, nil
}

func (u *unitOfWork) LookupToggleCommand(ctx context.Context, key rocker.ButtonKey) (rocker.ToggleCommand, bool, error) {
	rows, err := u.tx.QueryContext(ctx, `
		SELECT tc.name, s.name, s.main_address
		FROM toggle_commands tc
		JOIN toggle_command_switches tcs
			ON tcs.device_id = tc.device_id AND tcs.position = tc.position
		JOIN switches s ON s.name = tcs.switch_name
		WHERE tc.device_id = ? AND tc.position = ?
		ORDER BY s.name`,
		key.Device.Hex(), string(key.Position))
	if err != nil {
		return rocker.ToggleCommand{}, false, fmt.Errorf("querying toggle command %s: %w", key, err)
	}
	defer rows.Close()

	var cmds []rocker.ToggleCommand
	for rows.Next() {
		var name, swName, addr string
		if err := rows.Scan(&name, &swName, &addr); err != nil {
			return rocker.ToggleCommand{}, false, fmt.Errorf("scanning toggle command %s: %w", key, err)
		}
		ga, err := knx.ParseGroupAddress(addr)
		if err != nil {
			return rocker.ToggleCommand{}, false, fmt.Errorf("switch %q: %w", swName, err)
		}
		cmds = append(cmds, rocker.ToggleCommand{
			Button: key,
			Name:   name,
			Switch: rocker.Switch{Name: swName, MainAddress: ga},
		})
	}
	if err := rows.Err(); err != nil {
		return rocker.ToggleCommand{}, false, fmt.Errorf("iterating toggle command %s: %w", key, err)
	}

	switch len(cmds) {
	case 0:
		return rocker.ToggleCommand{}, false, nil
	case 1:
		return cmds[0], true, nil
	default:
		return rocker.ToggleCommand{}, false, fmt.Errorf("%w: %s has %d switches", rocker.ErrAmbiguousToggle, key, len(cmds))
	}
}

func (u *unitOfWork) SaveButton(ctx context.Context, b rocker.Button) error {
	updated := b.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	res, err := u.tx.ExecContext(ctx, `
		UPDATE buttons SET is_pressed = ?, updated_at = ?
		WHERE device_id = ? AND position = ?`,
		boolToInt(b.Pressed), updated.UTC().Format(time.RFC3339Nano),
		b.Device.Hex(), string(b.Position))
	if err != nil {
		return fmt.Errorf("saving button %s: %w", b.ButtonKey, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("saving button %s: %w", b.ButtonKey, ErrButtonNotFound)
	}
	return nil
}

func (u *unitOfWork) Commit() error {
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

func (u *unitOfWork) Rollback() error {
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rolling back: %w", err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanButton(row rowScanner) (rocker.Button, error) {
	var (
		dev, pos, name, updated string
		pressed                 int
	)
	if err := row.Scan(&dev, &pos, &name, &pressed, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rocker.Button{}, err
		}
		return rocker.Button{}, fmt.Errorf("scanning button: %w", err)
	}

	id, err := enocean.ParseDeviceID(dev)
	if err != nil {
		return rocker.Button{}, fmt.Errorf("button device %q: %w", dev, err)
	}
	position, err := rocker.ParsePosition(pos)
	if err != nil {
		return rocker.Button{}, fmt.Errorf("button %s: %w", dev, err)
	}

	b := rocker.Button{
		ButtonKey: rocker.ButtonKey{Device: id, Position: position},
		Name:      name,
		Pressed:   pressed == 1,
	}
	// Timestamps are written by this package; a bad value only loses UpdatedAt.
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		b.UpdatedAt = t
	}
	return b, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
