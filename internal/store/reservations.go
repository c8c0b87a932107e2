package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Reservation statuses.
const (
	ReservationReserved = "reserved"
	ReservationRunning  = "running"
	ReservationReleased = "released"
)

// Reservation maps a benchmark run to the sandbox container it owns.
type Reservation struct {
	RunID        string    `json:"run_id"`
	InstanceName string    `json:"instance_name"`
	ContainerID  string    `json:"container_id,omitempty"`
	HostPort     int       `json:"host_port,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const reservationColumns = `run_id, instance_name, container_id, host_port, status, created_at, updated_at`

func (s *Store) CreateReservation(r *Reservation) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = ReservationReserved
	}
	err := retryOnBusy(func() error {
		_, e := s.db.Exec(
			`INSERT INTO reservations (`+reservationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, r.InstanceName, r.ContainerID, r.HostPort, r.Status, r.CreatedAt.UTC(), r.UpdatedAt,
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("inserting reservation: %w", err)
	}
	return nil
}

func (s *Store) GetReservation(runID string) (*Reservation, error) {
	row := s.db.QueryRow(`SELECT `+reservationColumns+` FROM reservations WHERE run_id = ?`, runID)
	return scanReservation(row)
}

// AttachContainer records the container launched for a run and marks it running.
func (s *Store) AttachContainer(runID, containerID string, hostPort int) error {
	var result sql.Result
	err := retryOnBusy(func() error {
		var e error
		result, e = s.db.Exec(
			`UPDATE reservations SET container_id = ?, host_port = ?, status = ?, updated_at = ? WHERE run_id = ?`,
			containerID, hostPort, ReservationRunning, time.Now().UTC(), runID,
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("attaching container: %w", err)
	}
	return checkRowAffected(result, "reservation", runID)
}

func (s *Store) ReleaseReservation(runID string) error {
	var result sql.Result
	err := retryOnBusy(func() error {
		var e error
		result, e = s.db.Exec(
			`UPDATE reservations SET status = ?, updated_at = ? WHERE run_id = ?`,
			ReservationReleased, time.Now().UTC(), runID,
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("releasing reservation: %w", err)
	}
	return checkRowAffected(result, "reservation", runID)
}

// ListStaleReservations returns unreleased reservations created at or before cutoff.
func (s *Store) ListStaleReservations(cutoff time.Time) ([]*Reservation, error) {
	rows, err := s.db.Query(
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE status != ? AND created_at <= ? ORDER BY created_at`,
		ReservationReleased, cutoff.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing stale reservations: %w", err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

// ListActiveReservations returns every reservation that has not been released.
func (s *Store) ListActiveReservations() ([]*Reservation, error) {
	rows, err := s.db.Query(
		`SELECT `+reservationColumns+` FROM reservations WHERE status != ? ORDER BY created_at`,
		ReservationReleased,
	)
	if err != nil {
		return nil, fmt.Errorf("listing active reservations: %w", err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanReservation(row scannable) (*Reservation, error) {
	var r Reservation
	err := row.Scan(&r.RunID, &r.InstanceName, &r.ContainerID, &r.HostPort, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning reservation: %w", err)
	}
	return &r, nil
}

func scanReservations(rows *sql.Rows) ([]*Reservation, error) {
	var out []*Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reservations: %w", err)
	}
	return out, nil
}
