package storage

const (
	initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions
(
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    start_time DATETIME NOT NULL,
    vehicle    TEXT     NOT NULL,
    target_x   REAL     NOT NULL,
    target_y   REAL     NOT NULL,
    target_z   REAL     NOT NULL,
    config     TEXT
);

CREATE TABLE IF NOT EXISTS telemetry
(
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id   INTEGER  NOT NULL REFERENCES sessions (id),
    recorded_at  DATETIME NOT NULL,
    time_boot_ms INTEGER  NOT NULL,
    x            REAL     NOT NULL,
    y            REAL     NOT NULL,
    z            REAL     NOT NULL,
    vx           REAL     NOT NULL,
    vy           REAL     NOT NULL,
    vz           REAL     NOT NULL,
    roll         REAL     NOT NULL,
    pitch        REAL     NOT NULL,
    yaw          REAL     NOT NULL,
    roll_rate    REAL     NOT NULL,
    pitch_rate   REAL     NOT NULL,
    yaw_rate     REAL     NOT NULL
);

CREATE TABLE IF NOT EXISTS commands
(
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  INTEGER  NOT NULL REFERENCES sessions (id),
    recorded_at DATETIME NOT NULL,
    label       TEXT     NOT NULL
);

CREATE TABLE IF NOT EXISTS status_events
(
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  INTEGER  NOT NULL REFERENCES sessions (id),
    recorded_at DATETIME NOT NULL,
    status      TEXT     NOT NULL
);`

	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_telemetry_session_time ON telemetry (session_id, time_boot_ms);
CREATE INDEX IF NOT EXISTS idx_commands_session ON commands (session_id);
CREATE INDEX IF NOT EXISTS idx_status_events_session ON status_events (session_id);`

	insertSessionSQL = `
INSERT INTO sessions (start_time,
                      vehicle,
                      target_x,
                      target_y,
                      target_z,
                      config)
VALUES (?, ?, ?, ?, ?, ?)`

	selectSessionSQL = `
SELECT 
    id, 
    start_time, 
    vehicle, 
    target_x, 
    target_y, 
    target_z, 
    config 
FROM sessions 
WHERE 
    id = ?`

	selectSessionsSQL = `
SELECT 
    id, 
    start_time, 
    vehicle, 
    target_x, 
    target_y, 
    target_z, 
    config 
FROM sessions
ORDER BY start_time, id`

	insertTelemetrySQL = `
INSERT INTO telemetry (session_id,
                       recorded_at,
                       time_boot_ms,
                       x,
                       y,
                       z,
                       vx,
                       vy,
                       vz,
                       roll,
                       pitch,
                       yaw,
                       roll_rate,
                       pitch_rate,
                       yaw_rate)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectTelemetrySQL = `
SELECT 
    recorded_at,
    time_boot_ms,
    x,
    y,
    z,
    vx,
    vy,
    vz,
    roll,
    pitch,
    yaw,
    roll_rate,
    pitch_rate,
    yaw_rate
FROM telemetry
WHERE 
    session_id = ?
    AND time_boot_ms BETWEEN ? AND ?
ORDER BY time_boot_ms, id`

	insertCommandSQL = `
INSERT INTO commands (session_id, recorded_at, label)
VALUES (?, ?, ?)`

	selectCommandCountsSQL = `
SELECT 
    CASE instr(label, ':') 
        WHEN 0 THEN label 
        ELSE substr(label, 1, instr(label, ':') - 1) 
    END AS kind,
    COUNT(*)
FROM commands
WHERE 
    session_id = ?
GROUP BY kind
ORDER BY kind`

	insertStatusSQL = `
INSERT INTO status_events (session_id, recorded_at, status)
VALUES (?, ?, ?)`

	selectStatusEventsSQL = `
SELECT 
    recorded_at, 
    status
FROM status_events
WHERE 
    session_id = ?
ORDER BY id`
)
