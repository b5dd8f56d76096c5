package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// toConfigData accepts a string, raw bytes or anything JSON can encode.
func toConfigData(config any) (configData sql.NullString, err error) {
	switch c := config.(type) {
	case nil:
		return

	case string:
		configData.Valid = true
		configData.String = c

	case []byte:
		configData.Valid = true
		configData.String = string(c)

	default:
		var p []byte
		if p, err = json.Marshal(config); err != nil {
			err = fmt.Errorf("marshaling config: %w", err)
			return
		}

		configData.Valid = true
		configData.String = string(p)
	}
	return
}

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var sess sessionData
	if err := row.Scan(&sess.ID, &sess.StartTime, &sess.Vehicle, &sess.TargetX, &sess.TargetY, &sess.TargetZ, &sess.Config); err != nil {
		return nil, err
	}
	return sess.toSession(), nil
}
