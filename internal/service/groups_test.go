package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/association-finance/internal/model"
)

func groupInput(maxMembers *int) GroupInput {
	return GroupInput{
		Name:               "Savings circle",
		ContributionAmount: dec("50"),
		MaxMembers:         maxMembers,
		RotationFrequency:  "monthly",
		StartDate:          testNow,
	}
}

func intPtr(v int) *int { return &v }

func TestCreateRotatingGroup(t *testing.T) {
	svc, _, pub := newTestService(Options{})

	g, err := svc.CreateRotatingGroup(context.Background(), groupInput(intPtr(3)))
	require.NoError(t, err)
	assert.Equal(t, model.GroupStatusActive, g.Status)
	assert.Equal(t, model.FrequencyMonthly, g.RotationFrequency)
	assert.Empty(t, g.MemberIDs)
	assert.Equal(t, []model.EventType{model.EventGroupCreated}, pub.types())
}

func TestCreateRotatingGroup_Validation(t *testing.T) {
	svc, repo, _ := newTestService(Options{})
	before := testNow.AddDate(0, 0, -1)

	tests := []struct {
		name   string
		mutate func(in *GroupInput)
	}{
		{"empty name", func(in *GroupInput) { in.Name = "  " }},
		{"unknown frequency", func(in *GroupInput) { in.RotationFrequency = "DAILY" }},
		{"zero contribution", func(in *GroupInput) { in.ContributionAmount = dec("0") }},
		{"zero max members", func(in *GroupInput) { in.MaxMembers = intPtr(0) }},
		{"end before start", func(in *GroupInput) { in.EndDate = &before }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := groupInput(nil)
			tt.mutate(&in)
			_, err := svc.CreateRotatingGroup(context.Background(), in)
			require.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
	assert.Empty(t, repo.groups)
}

func TestAddGroupMember(t *testing.T) {
	svc, repo, pub := newTestService(Options{})
	repo.addMember(1, true, "10")
	repo.addMember(2, true, "10")
	repo.addMember(3, true, "10")
	ctx := context.Background()

	g, err := svc.CreateRotatingGroup(ctx, groupInput(intPtr(2)))
	require.NoError(t, err)

	_, err = svc.AddGroupMember(ctx, g.ID, 1)
	require.NoError(t, err)

	_, err = svc.AddGroupMember(ctx, g.ID, 1)
	require.ErrorIs(t, err, ErrConflict, "duplicate member")

	got, err := svc.AddGroupMember(ctx, g.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, got.MemberIDs)

	_, err = svc.AddGroupMember(ctx, g.ID, 3)
	require.ErrorIs(t, err, ErrConflict, "group is full")

	_, err = svc.AddGroupMember(ctx, g.ID, 99)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.AddGroupMember(ctx, 99, 1)
	require.ErrorIs(t, err, ErrNotFound)

	members, err := svc.ListGroupMembers(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, members)

	require.NoError(t, svc.RemoveGroupMember(ctx, g.ID, 1))
	require.ErrorIs(t, svc.RemoveGroupMember(ctx, g.ID, 1), ErrNotFound)

	_, err = svc.AddGroupMember(ctx, g.ID, 3)
	require.NoError(t, err)

	assert.Equal(t, []model.EventType{
		model.EventGroupCreated,
		model.EventGroupMemberAdded,
		model.EventGroupMemberAdded,
		model.EventGroupMemberAdded,
	}, pub.types())
}

func TestUpdateRotatingGroup_Transitions(t *testing.T) {
	svc, repo, _ := newTestService(Options{})
	repo.addMember(1, true, "10")
	repo.addMember(2, true, "10")
	ctx := context.Background()

	g, err := svc.CreateRotatingGroup(ctx, groupInput(nil))
	require.NoError(t, err)
	_, err = svc.AddGroupMember(ctx, g.ID, 1)
	require.NoError(t, err)
	_, err = svc.AddGroupMember(ctx, g.ID, 2)
	require.NoError(t, err)

	_, err = svc.UpdateRotatingGroup(ctx, g.ID, groupInput(intPtr(1)))
	require.ErrorIs(t, err, ErrConflict, "cap below member count")

	in := groupInput(nil)
	in.Status = "bogus"
	_, err = svc.UpdateRotatingGroup(ctx, g.ID, in)
	require.ErrorIs(t, err, ErrInvalidArgument)

	in.Status = "completed"
	got, err := svc.UpdateRotatingGroup(ctx, g.ID, in)
	require.NoError(t, err)
	assert.Equal(t, model.GroupStatusCompleted, got.Status)

	in.Status = "active"
	_, err = svc.UpdateRotatingGroup(ctx, g.ID, in)
	require.ErrorIs(t, err, ErrConflict, "completed group is final")

	_, err = svc.CreateRound(ctx, g.ID, RoundInput{RoundNumber: 1, StartDate: testNow})
	require.ErrorIs(t, err, ErrConflict, "rounds need an active group")

	repo.addMember(3, true, "10")
	_, err = svc.AddGroupMember(ctx, g.ID, 3)
	require.ErrorIs(t, err, ErrConflict, "members need an active group")
}

func TestGroupTransitionAllowed(t *testing.T) {
	tests := []struct {
		from, to model.GroupStatus
		want     bool
	}{
		{model.GroupStatusActive, model.GroupStatusActive, true},
		{model.GroupStatusActive, model.GroupStatusCompleted, true},
		{model.GroupStatusActive, model.GroupStatusCancelled, true},
		{model.GroupStatusCompleted, model.GroupStatusActive, false},
		{model.GroupStatusCancelled, model.GroupStatusCompleted, false},
	}
	for _, tt := range tests {
		if got := groupTransitionAllowed(tt.from, tt.to); got != tt.want {
			t.Fatalf("groupTransitionAllowed(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestRoundTransitionAllowed(t *testing.T) {
	tests := []struct {
		from, to model.RoundStatus
		want     bool
	}{
		{model.RoundStatusUpcoming, model.RoundStatusActive, true},
		{model.RoundStatusActive, model.RoundStatusCompleted, true},
		{model.RoundStatusUpcoming, model.RoundStatusCompleted, false},
		{model.RoundStatusCompleted, model.RoundStatusActive, false},
		{model.RoundStatusActive, model.RoundStatusUpcoming, false},
		{model.RoundStatusCompleted, model.RoundStatusCompleted, true},
	}
	for _, tt := range tests {
		if got := roundTransitionAllowed(tt.from, tt.to); got != tt.want {
			t.Fatalf("roundTransitionAllowed(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCreateRound(t *testing.T) {
	svc, _, pub := newTestService(Options{})
	ctx := context.Background()

	g, err := svc.CreateRotatingGroup(ctx, groupInput(nil))
	require.NoError(t, err)

	rd, err := svc.CreateRound(ctx, g.ID, RoundInput{RoundNumber: 1, StartDate: testNow})
	require.NoError(t, err)
	assert.Equal(t, model.RoundStatusUpcoming, rd.Status)
	assert.Equal(t, g.ID, rd.GroupID)

	// Без строгого режима номера не проверяются.
	_, err = svc.CreateRound(ctx, g.ID, RoundInput{RoundNumber: 1, StartDate: testNow})
	require.NoError(t, err)

	_, err = svc.CreateRound(ctx, g.ID, RoundInput{RoundNumber: 0, StartDate: testNow})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.CreateRound(ctx, 99, RoundInput{RoundNumber: 1, StartDate: testNow})
	require.ErrorIs(t, err, ErrNotFound)

	rounds, err := svc.ListRounds(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, rounds, 2)

	_, err = svc.ListRounds(ctx, 99)
	require.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []model.EventType{model.EventGroupCreated, model.EventRoundCreated, model.EventRoundCreated}, pub.types())
}

func TestCreateRound_Strict(t *testing.T) {
	svc, _, _ := newTestService(Options{StrictRounds: true})
	ctx := context.Background()

	g, err := svc.CreateRotatingGroup(ctx, groupInput(nil))
	require.NoError(t, err)

	_, err = svc.CreateRound(ctx, g.ID, RoundInput{RoundNumber: 2, StartDate: testNow})
	require.ErrorIs(t, err, ErrConflict)

	_, err = svc.CreateRound(ctx, g.ID, RoundInput{RoundNumber: 1, StartDate: testNow})
	require.NoError(t, err)

	_, err = svc.CreateRound(ctx, g.ID, RoundInput{RoundNumber: 1, StartDate: testNow})
	require.ErrorIs(t, err, ErrConflict)

	r2, err := svc.CreateRound(ctx, g.ID, RoundInput{RoundNumber: 2, StartDate: testNow})
	require.NoError(t, err)

	_, err = svc.UpdateRound(ctx, r2.ID, RoundInput{RoundNumber: 1, StartDate: testNow})
	require.ErrorIs(t, err, ErrConflict)
	_, err = svc.UpdateRound(ctx, r2.ID, RoundInput{RoundNumber: 5, StartDate: testNow})
	require.ErrorIs(t, err, ErrConflict)

	got, err := svc.UpdateRound(ctx, r2.ID, RoundInput{RoundNumber: 2, StartDate: testNow, Status: "ACTIVE"})
	require.NoError(t, err)
	assert.Equal(t, 2, got.RoundNumber)
	assert.Equal(t, model.RoundStatusActive, got.Status)
}

func TestUpdateRound_RenumberWithoutStrict(t *testing.T) {
	svc, _, _ := newTestService(Options{})
	ctx := context.Background()

	g, err := svc.CreateRotatingGroup(ctx, groupInput(nil))
	require.NoError(t, err)
	rd, err := svc.CreateRound(ctx, g.ID, RoundInput{RoundNumber: 1, StartDate: testNow})
	require.NoError(t, err)

	got, err := svc.UpdateRound(ctx, rd.ID, RoundInput{RoundNumber: 3, StartDate: testNow})
	require.NoError(t, err)
	assert.Equal(t, 3, got.RoundNumber)
}

func TestUpdateRound(t *testing.T) {
	svc, _, _ := newTestService(Options{})
	ctx := context.Background()

	g, err := svc.CreateRotatingGroup(ctx, groupInput(nil))
	require.NoError(t, err)
	rd, err := svc.CreateRound(ctx, g.ID, RoundInput{RoundNumber: 1, StartDate: testNow})
	require.NoError(t, err)

	_, err = svc.UpdateRound(ctx, rd.ID, RoundInput{RoundNumber: 1, StartDate: testNow, Status: "COMPLETED"})
	require.ErrorIs(t, err, ErrConflict)

	got, err := svc.UpdateRound(ctx, rd.ID, RoundInput{RoundNumber: 1, StartDate: testNow, Status: "active"})
	require.NoError(t, err)
	assert.Equal(t, model.RoundStatusActive, got.Status)

	got, err = svc.UpdateRound(ctx, rd.ID, RoundInput{RoundNumber: 1, StartDate: testNow, Status: "COMPLETED"})
	require.NoError(t, err)
	assert.Equal(t, model.RoundStatusCompleted, got.Status)

	_, err = svc.UpdateRound(ctx, rd.ID, RoundInput{RoundNumber: 1, StartDate: testNow, Status: "ACTIVE"})
	require.ErrorIs(t, err, ErrConflict)

	require.NoError(t, svc.DeleteRound(ctx, rd.ID))
	_, err = svc.GetRound(ctx, rd.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRotatingGroup(t *testing.T) {
	svc, repo, _ := newTestService(Options{})
	ctx := context.Background()

	g, err := svc.CreateRotatingGroup(ctx, groupInput(nil))
	require.NoError(t, err)
	_, err = svc.CreateRound(ctx, g.ID, RoundInput{RoundNumber: 1, StartDate: testNow})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRotatingGroup(ctx, g.ID))
	assert.Empty(t, repo.rounds)

	_, err = svc.GetRotatingGroup(ctx, g.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, svc.DeleteRotatingGroup(ctx, g.ID), ErrNotFound)
}

func TestDeleteWithLedgerRows(t *testing.T) {
	svc, repo, _ := newTestService(Options{})
	ctx := context.Background()

	rd := setupRound(t, svc, repo)
	c, err := svc.MakeContribution(ctx, 1, rd.ID, dec("50"), testNow)
	require.NoError(t, err)

	require.ErrorIs(t, svc.DeleteRound(ctx, rd.ID), ErrConflict)
	require.ErrorIs(t, svc.DeleteRotatingGroup(ctx, rd.GroupID), ErrConflict)

	remaining, err := svc.CalculateRemainingAmountForMember(ctx, 1)
	require.NoError(t, err)
	assert.True(t, remaining.Equal(dec("50")), "remaining = %s", remaining)

	require.NoError(t, svc.DeleteContribution(ctx, c.ID))
	p, err := svc.ApplyPenalty(ctx, PenaltyInput{MemberID: 1, RoundID: rd.ID, Amount: dec("5"), PenaltyType: "late"})
	require.NoError(t, err)
	require.ErrorIs(t, svc.DeleteRound(ctx, rd.ID), ErrConflict)

	require.NoError(t, svc.DeletePenalty(ctx, p.ID))
	require.NoError(t, svc.DeleteRound(ctx, rd.ID))
	require.NoError(t, svc.DeleteRotatingGroup(ctx, rd.GroupID))
}
