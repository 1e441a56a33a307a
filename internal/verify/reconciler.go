package verify

import (
	"context"
	"strconv"
	"time"

	"github.com/ad/script-agent-bot/internal/domain"
	"github.com/ad/script-agent-bot/internal/storage"
)

// Outcome is the result of one verification attempt.
type Outcome int

const (
	// OutcomeNoRequest means no live website submission exists for the
	// user. Stale submissions count as absent.
	OutcomeNoRequest Outcome = iota

	// OutcomeMismatch means the live chat username differs from the
	// website submission. The pending request is consumed so the user
	// must submit again.
	OutcomeMismatch

	// OutcomeSuccess means identity was confirmed and the role granted.
	OutcomeSuccess

	// OutcomeRoleGrantFailed means identity was confirmed and recorded
	// but granting the role failed. The user stays verified on record.
	OutcomeRoleGrantFailed
)

// RoleGranter applies the verified role reward to a user.
type RoleGranter interface {
	GrantVerified(ctx context.Context, userID int64, username string) error
}

// Reconciler matches the live chat identity against website-side
// pending submissions.
type Reconciler struct {
	pending *storage.PendingStore
	records *storage.RecordStore
	roles   RoleGranter
	logger  domain.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(pending *storage.PendingStore, records *storage.RecordStore, roles RoleGranter, log domain.Logger) *Reconciler {
	return &Reconciler{
		pending: pending,
		records: records,
		roles:   roles,
		logger:  log,
	}
}

// Reconcile checks the user's live username against their pending
// submission. The match is exact; usernames are identifiers, not
// prose. The submitted username is returned alongside the outcome so
// a mismatch can be reported with both values. On success the pending
// entry is consumed and the verification is recorded before the role
// grant runs, so a grant failure still leaves the user verified on
// record. Repeating a successful verification is harmless.
func (r *Reconciler) Reconcile(ctx context.Context, userID int64, live string) (Outcome, string, error) {
	id := strconv.FormatInt(userID, 10)

	req, ok, err := r.pending.Get(id, time.Now())
	if err != nil {
		return OutcomeNoRequest, "", err
	}
	if !ok {
		r.logger.Info("verification attempt without request", "user_id", id)
		return OutcomeNoRequest, "", nil
	}

	if live != req.Username {
		if err := r.pending.Delete(id); err != nil {
			return OutcomeMismatch, req.Username, err
		}
		r.logger.Warn("verification username mismatch",
			"user_id", id, "live", live, "submitted", req.Username)
		return OutcomeMismatch, req.Username, nil
	}

	// Verification rewards both roles at once.
	roleReward := domain.RoleVerified + ", " + domain.RoleUploader
	if err := r.records.MarkVerified(id, req.Username, roleReward, time.Now()); err != nil {
		return OutcomeNoRequest, req.Username, err
	}
	if err := r.pending.Delete(id); err != nil {
		return OutcomeSuccess, req.Username, err
	}

	if err := r.roles.GrantVerified(ctx, userID, req.Username); err != nil {
		r.logger.Error("role grant failed after verification", "user_id", id, "error", err)
		return OutcomeRoleGrantFailed, req.Username, nil
	}

	r.logger.Info("user verified", "user_id", id, "username", req.Username)
	return OutcomeSuccess, req.Username, nil
}
