package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"attendance-service/internal/models"
)

const presenceColumns = `session_type, session_id, user_id, first_join_time, last_leave_time,
	cumulative_duration_minutes, join_count, leave_count, is_currently_present, cycles, updated_at`

func scanPresence(sc scanner) (*models.PresenceRecord, error) {
	var (
		p      models.PresenceRecord
		cycles []byte
	)

	err := sc.Scan(
		&p.SessionType,
		&p.SessionID,
		&p.UserID,
		&p.FirstJoinTime,
		&p.LastLeaveTime,
		&p.CumulativeDurationMinutes,
		&p.JoinCount,
		&p.LeaveCount,
		&p.IsCurrentlyPresent,
		&cycles,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(cycles) > 0 {
		if err := json.Unmarshal(cycles, &p.Cycles); err != nil {
			return nil, fmt.Errorf("decode cycles: %w", err)
		}
	}

	return &p, nil
}

// #### presence ####

func (s *Storage) GetPresence(ctx context.Context, ref models.SessionRef, userID string) (*models.PresenceRecord, error) {
	const op = "storage.postgres.GetPresence"

	row := s.db.QueryRowContext(ctx,
		`SELECT `+presenceColumns+` FROM meeting_attendances
		WHERE session_type = $1 AND session_id = $2 AND user_id = $3`,
		string(ref.Type), ref.ID, userID,
	)

	p, err := scanPresence(row)
	if err != nil {
		return nil, mapError(op, err)
	}
	return p, nil
}

func (s *Storage) SavePresence(ctx context.Context, p *models.PresenceRecord) error {
	const op = "storage.postgres.SavePresence"

	cycles := p.Cycles
	if cycles == nil {
		cycles = []models.Cycle{}
	}
	raw, err := json.Marshal(cycles)
	if err != nil {
		return fmt.Errorf("%s: encode cycles: %w", op, err)
	}

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO meeting_attendances
		(session_type, session_id, user_id, first_join_time, last_leave_time,
		cumulative_duration_minutes, join_count, leave_count, is_currently_present, cycles)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_type, session_id, user_id)
		DO UPDATE
		SET first_join_time = EXCLUDED.first_join_time,
			last_leave_time = EXCLUDED.last_leave_time,
			cumulative_duration_minutes = EXCLUDED.cumulative_duration_minutes,
			join_count = EXCLUDED.join_count,
			leave_count = EXCLUDED.leave_count,
			is_currently_present = EXCLUDED.is_currently_present,
			cycles = EXCLUDED.cycles,
			updated_at = now()
		RETURNING updated_at`,
		string(p.SessionType),
		p.SessionID,
		p.UserID,
		p.FirstJoinTime,
		p.LastLeaveTime,
		p.CumulativeDurationMinutes,
		p.JoinCount,
		p.LeaveCount,
		p.IsCurrentlyPresent,
		raw,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return mapError(op, err)
	}

	return nil
}

func (s *Storage) ListPresence(ctx context.Context, ref models.SessionRef) ([]*models.PresenceRecord, error) {
	const op = "storage.postgres.ListPresence"

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+presenceColumns+` FROM meeting_attendances
		WHERE session_type = $1 AND session_id = $2
		ORDER BY user_id`,
		string(ref.Type), ref.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]*models.PresenceRecord, 0)
	for rows.Next() {
		p, err := scanPresence(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}
