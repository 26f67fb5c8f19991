package quarantine

import (
	"database/sql"

	"codeberg.org/mutker/datafilter/internal/errors"
)

const (
	createTableSQL = `
        CREATE TABLE IF NOT EXISTS rejected_readings (
            id              INTEGER PRIMARY KEY AUTOINCREMENT,
            received_at_ms  INTEGER NOT NULL,
            sensor_id       TEXT NOT NULL,
            sequence_number INTEGER NOT NULL,
            temperature     REAL,
            humidity        REAL,
            timestamp       TEXT NOT NULL,
            reason          TEXT NOT NULL,
            raw             BLOB NOT NULL
        );
        CREATE INDEX IF NOT EXISTS rejected_readings_reason ON rejected_readings (reason);`

	insertEntrySQL = `
        INSERT INTO rejected_readings (
            received_at_ms, sensor_id, sequence_number,
            temperature, humidity, timestamp,
            reason, raw
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
)

// initSchema creates the quarantine table if it does not exist yet.
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(createTableSQL); err != nil {
		return errors.New().Wrap(ErrSchemaInitFailed, err)
	}

	return nil
}
