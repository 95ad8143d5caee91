package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/usp/internal/errors"
)

func newApproval(policy ApprovalPolicyType, approverCount int) *AccessApproval {
	approvers := make([]uuid.UUID, approverCount)
	for i := range approvers {
		approvers[i] = uuid.Must(uuid.NewV7())
	}
	return &AccessApproval{
		ID:          uuid.Must(uuid.NewV7()),
		RequesterID: uuid.Must(uuid.NewV7()),
		Policy:      policy,
		Approvers:   approvers,
		Status:      ApprovalPending,
		ExpiresAt:   time.Now().Add(DefaultApprovalTTL),
		CreatedAt:   time.Now(),
	}
}

func action(approval *AccessApproval, index int, approved bool) ApproverAction {
	return ApproverAction{
		ApproverID: approval.Approvers[index],
		Approved:   approved,
		ActedAt:    time.Now(),
	}
}

func TestAccessApproval_RecordAction(t *testing.T) {
	t.Run("Success_SingleApproverDecides", func(t *testing.T) {
		approval := newApproval(PolicySingleApprover, 3)

		require.NoError(t, approval.RecordAction(action(approval, 0, true)))
		assert.Equal(t, ApprovalApproved, approval.Status)

		denied := newApproval(PolicySingleApprover, 3)
		require.NoError(t, denied.RecordAction(action(denied, 1, false)))
		assert.Equal(t, ApprovalDenied, denied.Status)
	})

	t.Run("Success_DualControlNeedsTwoDistinct", func(t *testing.T) {
		approval := newApproval(PolicyDualControl, 3)

		require.NoError(t, approval.RecordAction(action(approval, 0, true)))
		assert.Equal(t, ApprovalPending, approval.Status)

		err := approval.RecordAction(action(approval, 0, true))
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidState)

		require.NoError(t, approval.RecordAction(action(approval, 1, true)))
		assert.Equal(t, ApprovalApproved, approval.Status)
	})

	t.Run("Success_AllApproversDenialSinks", func(t *testing.T) {
		approval := newApproval(PolicyAllApprovers, 3)

		require.NoError(t, approval.RecordAction(action(approval, 0, true)))
		require.NoError(t, approval.RecordAction(action(approval, 1, false)))

		assert.Equal(t, ApprovalDenied, approval.Status)
	})

	t.Run("Success_AllApproversComplete", func(t *testing.T) {
		approval := newApproval(PolicyAllApprovers, 3)

		require.NoError(t, approval.RecordAction(action(approval, 0, true)))
		require.NoError(t, approval.RecordAction(action(approval, 1, true)))
		assert.Equal(t, ApprovalPending, approval.Status)

		require.NoError(t, approval.RecordAction(action(approval, 2, true)))
		assert.Equal(t, ApprovalApproved, approval.Status)
	})

	t.Run("Success_MajorityOfFive", func(t *testing.T) {
		// ceil(5/2)+1 = 4 approvals required.
		approval := newApproval(PolicyMajority, 5)
		assert.Equal(t, 4, approval.RequiredApprovals())

		for i := 0; i < 3; i++ {
			require.NoError(t, approval.RecordAction(action(approval, i, true)))
		}
		assert.Equal(t, ApprovalPending, approval.Status)

		require.NoError(t, approval.RecordAction(action(approval, 3, true)))
		assert.Equal(t, ApprovalApproved, approval.Status)
	})

	t.Run("Success_MajorityUnreachableDenies", func(t *testing.T) {
		approval := newApproval(PolicyMajority, 5)

		require.NoError(t, approval.RecordAction(action(approval, 0, false)))
		require.NoError(t, approval.RecordAction(action(approval, 1, false)))

		assert.Equal(t, ApprovalDenied, approval.Status)
	})

	t.Run("Error_RequesterSelfApproval", func(t *testing.T) {
		approval := newApproval(PolicySingleApprover, 2)

		err := approval.RecordAction(ApproverAction{
			ApproverID: approval.RequesterID,
			Approved:   true,
			ActedAt:    time.Now(),
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
		assert.Equal(t, ApprovalPending, approval.Status)
	})

	t.Run("Error_UnlistedApprover", func(t *testing.T) {
		approval := newApproval(PolicyDualControl, 2)

		err := approval.RecordAction(ApproverAction{
			ApproverID: uuid.Must(uuid.NewV7()),
			Approved:   true,
			ActedAt:    time.Now(),
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("Error_ActionAfterExpiry", func(t *testing.T) {
		approval := newApproval(PolicySingleApprover, 2)
		approval.ExpiresAt = time.Now().Add(-time.Minute)

		err := approval.RecordAction(action(approval, 0, true))

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidState)
		assert.Equal(t, ApprovalExpired, approval.Status)
	})
}

func TestSafe_PermissionFor(t *testing.T) {
	owner := uuid.Must(uuid.NewV7())
	reader := uuid.Must(uuid.NewV7())
	operator := uuid.Must(uuid.NewV7())
	stranger := uuid.Must(uuid.NewV7())

	safe := &Safe{ID: uuid.Must(uuid.NewV7()), OwnerID: owner}
	acl := []AclEntry{
		{SafeID: safe.ID, UserID: reader, Permission: PermissionRead},
		{SafeID: safe.ID, UserID: operator, Permission: PermissionCheckout},
	}

	assert.Equal(t, PermissionManage, safe.PermissionFor(owner, acl))
	assert.Equal(t, PermissionRead, safe.PermissionFor(reader, acl))
	assert.Equal(t, PermissionCheckout, safe.PermissionFor(operator, acl))
	assert.Equal(t, SafePermission(""), safe.PermissionFor(stranger, acl))

	assert.True(t, PermissionManage.Covers(PermissionRead))
	assert.True(t, PermissionCheckout.Covers(PermissionRead))
	assert.False(t, PermissionRead.Covers(PermissionCheckout))
	assert.False(t, SafePermission("").Covers(PermissionRead))
}
