package shared

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// ApprovalAction enumerates approval log actions.
type ApprovalAction string

const (
	// ApprovalApprove marks a manager sign-off on an over-threshold operation.
	ApprovalApprove ApprovalAction = "APPROVE"
	// ApprovalReject marks a refused sign-off.
	ApprovalReject ApprovalAction = "REJECT"
)

// ApprovalLog represents a single approval record.
type ApprovalLog struct {
	ID         int64
	BusinessID int64
	Module     string
	RefID      uuid.UUID
	ActorID    int64
	Action     ApprovalAction
	ReasonCode string
	Note       string
	At         time.Time
}

// ApprovalRecorder persists approval history and verifies manager identity.
type ApprovalRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewApprovalRecorder constructs ApprovalRecorder.
func NewApprovalRecorder(pool *pgxpool.Pool, logger *slog.Logger) *ApprovalRecorder {
	return &ApprovalRecorder{pool: pool, logger: logger}
}

// VerifyManagerPIN checks that the approver belongs to the business, holds a
// manager or owner role, and that the PIN matches their stored bcrypt hash.
func (r *ApprovalRecorder) VerifyManagerPIN(ctx context.Context, businessID, approverID int64, pin string) error {
	if r == nil {
		return errors.New("approval recorder not initialised")
	}
	if approverID == 0 || pin == "" {
		return ErrApprovalRequired
	}
	var pinHash string
	err := r.pool.QueryRow(ctx, `SELECT pin_hash FROM users
WHERE id=$1 AND business_id=$2 AND role IN ('MANAGER','OWNER')`, approverID, businessID).Scan(&pinHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrApprovalRequired
		}
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(pinHash), []byte(pin)); err != nil {
		return ErrBadApproverPIN
	}
	return nil
}

// Record writes an approval entry to the database.
func (r *ApprovalRecorder) Record(ctx context.Context, log ApprovalLog) error {
	if r == nil {
		return errors.New("approval recorder not initialised")
	}
	if log.Module == "" {
		return errors.New("approval module required")
	}
	if log.ActorID == 0 {
		return errors.New("approval actor required")
	}
	if log.RefID == uuid.Nil {
		return errors.New("approval ref id required")
	}
	if log.Action == "" {
		return errors.New("approval action required")
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO approvals (business_id, module, ref_id, actor_id, action, reason_code, note, at)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`,
		log.BusinessID, log.Module, log.RefID, log.ActorID, string(log.Action), log.ReasonCode, log.Note, log.At)
	if err != nil {
		r.logger.Error("record approval", slog.Any("error", err))
		return err
	}
	return nil
}

// List returns approvals for module/ref within a business.
func (r *ApprovalRecorder) List(ctx context.Context, businessID int64, module string, ref uuid.UUID) ([]ApprovalLog, error) {
	if r == nil {
		return nil, errors.New("approval recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, business_id, module, ref_id, actor_id, action, reason_code, note, at
FROM approvals WHERE business_id=$1 AND module=$2 AND ref_id=$3 ORDER BY at ASC`, businessID, module, ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []ApprovalLog
	for rows.Next() {
		var l ApprovalLog
		var action string
		if err := rows.Scan(&l.ID, &l.BusinessID, &l.Module, &l.RefID, &l.ActorID, &action, &l.ReasonCode, &l.Note, &l.At); err != nil {
			return nil, err
		}
		l.Action = ApprovalAction(action)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}
